package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stefanovp/faculty-api/internal/models"
	appErrors "github.com/stefanovp/faculty-api/pkg/errors"
)

type fakeUserRepo struct {
	users     map[string]*models.User
	auditLogs []models.AuditLog
}

func newFakeUserRepo(users ...*models.User) *fakeUserRepo {
	repo := &fakeUserRepo{users: make(map[string]*models.User)}
	for _, u := range users {
		repo.users[u.ID] = u
	}
	return repo
}

func (f *fakeUserRepo) List(ctx context.Context, filter models.UserFilter) ([]models.User, int, error) {
	out := make([]models.User, 0, len(f.users))
	for _, u := range f.users {
		out = append(out, *u)
	}
	return out, len(out), nil
}

func (f *fakeUserRepo) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	for _, u := range f.users {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (f *fakeUserRepo) FindByID(ctx context.Context, id string) (*models.User, error) {
	u, ok := f.users[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return u, nil
}

func (f *fakeUserRepo) Create(ctx context.Context, user *models.User) error {
	f.users[user.ID] = user
	return nil
}

func (f *fakeUserRepo) Update(ctx context.Context, user *models.User) error {
	f.users[user.ID] = user
	return nil
}

func (f *fakeUserRepo) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	f.auditLogs = append(f.auditLogs, *log)
	return nil
}

type fakeTeacherReader struct {
	teachers map[int64]*models.Teacher
}

func (f *fakeTeacherReader) FindByID(ctx context.Context, id int64) (*models.Teacher, error) {
	teacher, ok := f.teachers[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return teacher, nil
}

func newTestUserService(repo *fakeUserRepo) *UserService {
	teachers := &fakeTeacherReader{teachers: map[int64]*models.Teacher{
		5: {ID: 5, FirstName: "Marko", LastName: "Ilic"},
	}}
	students := &fakeStudentReader{students: map[int64]*models.Student{
		42: {ID: 42, StudentCode: "161/2022"},
	}}
	return NewUserService(repo, teachers, students, nil, nil)
}

func validCreateUserRequest() CreateUserRequest {
	return CreateUserRequest{
		Email:       "new@faculty.example",
		Password:    "secret-pass",
		FullName:    "Jovana Ristic",
		PhoneNumber: "641234567",
	}
}

// The role is never taken from the payload; the domain reference decides it.
func TestUserCreateRoleDerivation(t *testing.T) {
	tests := []struct {
		name      string
		teacherID *int64
		studentID *int64
		want      models.UserRole
	}{
		{"no refs means admin", nil, nil, models.RoleAdmin},
		{"teacher ref", int64Ptr(5), nil, models.RoleTeacher},
		{"student ref", nil, int64Ptr(42), models.RoleStudent},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			svc := newTestUserService(newFakeUserRepo())
			req := validCreateUserRequest()
			req.TeacherID = tc.teacherID
			req.StudentID = tc.studentID

			user, err := svc.Create(context.Background(), adminIdent(), req)
			require.NoError(t, err)
			assert.Equal(t, tc.want, user.Role)
			assert.True(t, user.Active)
			assert.NotEqual(t, "secret-pass", user.PasswordHash)
		})
	}
}

func TestUserCreatePhoneRule(t *testing.T) {
	for _, phone := range []string{"12345678", "1234567890", "64123456a", ""} {
		svc := newTestUserService(newFakeUserRepo())
		req := validCreateUserRequest()
		req.PhoneNumber = phone

		_, err := svc.Create(context.Background(), adminIdent(), req)
		require.Error(t, err, "phone %q", phone)
		appErr := appErrors.FromError(err)
		assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
		assert.Contains(t, appErr.Details, "phonenumber")
	}
}

func TestUserCreateDuplicateEmail(t *testing.T) {
	existing := &models.User{ID: "user-1", Email: "new@faculty.example"}
	svc := newTestUserService(newFakeUserRepo(existing))

	_, err := svc.Create(context.Background(), adminIdent(), validCreateUserRequest())
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
	assert.Contains(t, appErr.Details, "email")
}

func TestUserCreateBothRefsRejected(t *testing.T) {
	svc := newTestUserService(newFakeUserRepo())
	req := validCreateUserRequest()
	req.TeacherID = int64Ptr(5)
	req.StudentID = int64Ptr(42)

	_, err := svc.Create(context.Background(), adminIdent(), req)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestUserCreateUnknownRef(t *testing.T) {
	svc := newTestUserService(newFakeUserRepo())
	req := validCreateUserRequest()
	req.TeacherID = int64Ptr(999)

	_, err := svc.Create(context.Background(), adminIdent(), req)
	require.Error(t, err)
	assert.Contains(t, appErrors.FromError(err).Details, "teacher_id")

	req = validCreateUserRequest()
	req.StudentID = int64Ptr(999)
	_, err = svc.Create(context.Background(), adminIdent(), req)
	require.Error(t, err)
	assert.Contains(t, appErrors.FromError(err).Details, "student_id")
}

func TestUserUpdate(t *testing.T) {
	existing := &models.User{ID: "user-1", Email: "ana@faculty.example", FullName: "Ana", PhoneNumber: "641234567", Active: true}
	repo := newFakeUserRepo(existing)
	svc := newTestUserService(repo)

	inactive := false
	updated, err := svc.Update(context.Background(), adminIdent(), "user-1", UpdateUserRequest{
		FullName: strPtr("Ana Petrova"),
		Active:   &inactive,
	})
	require.NoError(t, err)
	assert.Equal(t, "Ana Petrova", updated.FullName)
	assert.False(t, updated.Active)
	assert.Equal(t, "641234567", updated.PhoneNumber)

	_, err = svc.Update(context.Background(), adminIdent(), "missing", UpdateUserRequest{})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}
