package service

import (
	"context"
	"database/sql"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stefanovp/faculty-api/internal/models"
	appErrors "github.com/stefanovp/faculty-api/pkg/errors"
)

type fakeEnrollmentRepo struct {
	rows      map[int64]*models.EnrollmentDetail
	termTaken bool
	nextID    int64

	// beforeUpdate runs at the top of UpdateVersioned to simulate a
	// concurrent writer racing the commit.
	beforeUpdate func()
}

func newFakeEnrollmentRepo(rows ...*models.EnrollmentDetail) *fakeEnrollmentRepo {
	repo := &fakeEnrollmentRepo{rows: make(map[int64]*models.EnrollmentDetail), nextID: 100}
	for _, r := range rows {
		repo.rows[r.ID] = r
	}
	return repo
}

func (f *fakeEnrollmentRepo) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error) {
	out := make([]models.EnrollmentDetail, 0, len(f.rows))
	for _, r := range f.rows {
		out = append(out, *r)
	}
	return out, len(out), nil
}

func (f *fakeEnrollmentRepo) FindDetailByID(ctx context.Context, id int64) (*models.EnrollmentDetail, error) {
	row, ok := f.rows[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	cp := *row
	return &cp, nil
}

func (f *fakeEnrollmentRepo) Exists(ctx context.Context, id int64) (bool, error) {
	_, ok := f.rows[id]
	return ok, nil
}

func (f *fakeEnrollmentRepo) ExistsForTerm(ctx context.Context, courseID, studentID int64, semester, year int) (bool, error) {
	return f.termTaken, nil
}

func (f *fakeEnrollmentRepo) Create(ctx context.Context, enrollment *models.Enrollment) error {
	f.nextID++
	enrollment.ID = f.nextID
	enrollment.Version = 1
	f.rows[enrollment.ID] = &models.EnrollmentDetail{Enrollment: *enrollment}
	return nil
}

func (f *fakeEnrollmentRepo) UpdateVersioned(ctx context.Context, enrollment *models.Enrollment, expectedVersion int64) (int64, error) {
	if f.beforeUpdate != nil {
		f.beforeUpdate()
	}
	row, ok := f.rows[enrollment.ID]
	if !ok || row.Version != expectedVersion {
		return 0, sql.ErrNoRows
	}
	merged := *enrollment
	merged.Version = expectedVersion + 1
	detail := *row
	detail.Enrollment = merged
	f.rows[enrollment.ID] = &detail
	return merged.Version, nil
}

func (f *fakeEnrollmentRepo) Delete(ctx context.Context, id int64) (bool, error) {
	_, ok := f.rows[id]
	delete(f.rows, id)
	return ok, nil
}

func (f *fakeEnrollmentRepo) ListByCourse(ctx context.Context, courseID int64, year int) ([]models.EnrollmentDetail, error) {
	out := make([]models.EnrollmentDetail, 0)
	for _, r := range f.rows {
		if r.CourseID == courseID && r.Year == year {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (f *fakeEnrollmentRepo) ListByStudent(ctx context.Context, studentID int64) ([]models.EnrollmentDetail, error) {
	out := make([]models.EnrollmentDetail, 0)
	for _, r := range f.rows {
		if r.StudentID == studentID {
			out = append(out, *r)
		}
	}
	return out, nil
}

type fakeCourseReader struct {
	courses map[int64]*models.Course
}

func (f *fakeCourseReader) FindByID(ctx context.Context, id int64) (*models.Course, error) {
	course, ok := f.courses[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return course, nil
}

type fakeStudentReader struct {
	students map[int64]*models.Student
}

func (f *fakeStudentReader) FindByID(ctx context.Context, id int64) (*models.Student, error) {
	student, ok := f.students[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return student, nil
}

type fakeAttachmentStorage struct {
	saved []string
	fail  error
}

func (f *fakeAttachmentStorage) SaveStream(filename string, r io.Reader) (string, error) {
	if f.fail != nil {
		return "", f.fail
	}
	if _, err := io.Copy(io.Discard, r); err != nil {
		return "", err
	}
	f.saved = append(f.saved, filename)
	return filename, nil
}

func int64Ptr(v int64) *int64 { return &v }
func intPtr(v int) *int       { return &v }
func strPtr(v string) *string { return &v }

func adminIdent() models.Identity {
	return models.Identity{UserID: "admin-1", Role: models.RoleAdmin}
}

func teacherIdent(teacherID int64) models.Identity {
	return models.Identity{UserID: "teacher-1", Role: models.RoleTeacher, TeacherID: int64Ptr(teacherID)}
}

func studentIdent(studentID int64) models.Identity {
	return models.Identity{UserID: "student-1", Role: models.RoleStudent, StudentID: int64Ptr(studentID)}
}

func seedDetail() *models.EnrollmentDetail {
	return &models.EnrollmentDetail{
		Enrollment: models.Enrollment{
			ID:         10,
			CourseID:   7,
			StudentID:  42,
			Semester:   3,
			Year:       2025,
			ProjectURL: strPtr("https://git.example.com/proj"),
			Version:    1,
		},
		CourseTitle:     "Distributed Systems",
		StudentFullName: "Ana Petrova",
		StudentCode:     "161/2022",
		FirstTeacherID:  int64Ptr(5),
		SecondTeacherID: int64Ptr(6),
	}
}

func newTestService(repo *fakeEnrollmentRepo) (*EnrollmentService, *fakeAttachmentStorage) {
	storage := &fakeAttachmentStorage{}
	courses := &fakeCourseReader{courses: map[int64]*models.Course{
		7: {ID: 7, Title: "Distributed Systems", FirstTeacherID: int64Ptr(5), SecondTeacherID: int64Ptr(6)},
	}}
	students := &fakeStudentReader{students: map[int64]*models.Student{
		42: {ID: 42, StudentCode: "161/2022", FirstName: "Ana", LastName: "Petrova"},
	}}
	svc := NewEnrollmentService(repo, courses, students, storage, nil, nil, EnrollmentServiceConfig{MaxAttachmentSize: 1 << 20})
	return svc, storage
}

func TestEnrollmentGetNotFound(t *testing.T) {
	svc, _ := newTestService(newFakeEnrollmentRepo())

	_, err := svc.Get(context.Background(), adminIdent(), 999)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestEnrollmentGetOwnership(t *testing.T) {
	tests := []struct {
		name    string
		ident   models.Identity
		allowed bool
	}{
		{"admin", adminIdent(), true},
		{"first teacher", teacherIdent(5), true},
		{"second teacher", teacherIdent(6), true},
		{"other teacher", teacherIdent(99), false},
		{"owning student", studentIdent(42), true},
		{"other student", studentIdent(43), false},
		{"unauthenticated", models.Identity{}, false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			svc, _ := newTestService(newFakeEnrollmentRepo(seedDetail()))
			detail, err := svc.Get(context.Background(), tc.ident, 10)
			if tc.allowed {
				require.NoError(t, err)
				assert.Equal(t, int64(10), detail.ID)
				return
			}
			require.Error(t, err)
			assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
		})
	}
}

func TestEnrollmentListAdminOnly(t *testing.T) {
	svc, _ := newTestService(newFakeEnrollmentRepo(seedDetail()))

	_, _, err := svc.List(context.Background(), teacherIdent(5), models.EnrollmentFilter{})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)

	rows, pagination, err := svc.List(context.Background(), adminIdent(), models.EnrollmentFilter{})
	require.NoError(t, err)
	assert.Len(t, rows, 1)
	assert.Equal(t, 1, pagination.TotalCount)
}

func TestEnrollmentCreateDeniedForNonAdmins(t *testing.T) {
	svc, _ := newTestService(newFakeEnrollmentRepo())
	req := CreateEnrollmentRequest{CourseID: 7, StudentID: 42, Semester: 3, Year: 2025}

	for _, ident := range []models.Identity{teacherIdent(5), studentIdent(42), {}} {
		_, err := svc.Create(context.Background(), ident, req)
		require.Error(t, err)
		assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
	}
}

func TestEnrollmentCreate(t *testing.T) {
	repo := newFakeEnrollmentRepo()
	svc, _ := newTestService(repo)

	detail, err := svc.Create(context.Background(), adminIdent(), CreateEnrollmentRequest{
		CourseID: 7, StudentID: 42, Semester: 3, Year: 2025,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), detail.Version)
	assert.Equal(t, int64(7), detail.CourseID)
}

func TestEnrollmentCreateDuplicateTerm(t *testing.T) {
	repo := newFakeEnrollmentRepo()
	repo.termTaken = true
	svc, _ := newTestService(repo)

	_, err := svc.Create(context.Background(), adminIdent(), CreateEnrollmentRequest{
		CourseID: 7, StudentID: 42, Semester: 3, Year: 2025,
	})
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
	assert.Contains(t, appErr.Details, "student_id")
}

func TestEnrollmentCreateUnknownRefs(t *testing.T) {
	svc, _ := newTestService(newFakeEnrollmentRepo())

	_, err := svc.Create(context.Background(), adminIdent(), CreateEnrollmentRequest{
		CourseID: 999, StudentID: 42, Semester: 3, Year: 2025,
	})
	require.Error(t, err)
	assert.Contains(t, appErrors.FromError(err).Details, "course_id")

	_, err = svc.Create(context.Background(), adminIdent(), CreateEnrollmentRequest{
		CourseID: 7, StudentID: 999, Semester: 3, Year: 2025,
	})
	require.Error(t, err)
	assert.Contains(t, appErrors.FromError(err).Details, "student_id")
}

func TestEnrollmentCreateValidationBounds(t *testing.T) {
	svc, _ := newTestService(newFakeEnrollmentRepo())

	_, err := svc.Create(context.Background(), adminIdent(), CreateEnrollmentRequest{
		CourseID: 7, StudentID: 42, Semester: 9, Year: 2025,
	})
	require.Error(t, err)
	assert.Contains(t, appErrors.FromError(err).Details, "semester")

	_, err = svc.Create(context.Background(), adminIdent(), CreateEnrollmentRequest{
		CourseID: 7, StudentID: 42, Semester: 3, Year: 2025, Grade: intPtr(11),
	})
	require.Error(t, err)
	assert.Contains(t, appErrors.FromError(err).Details, "grade")
}

func TestEnrollmentUpdateRequiresVersionToken(t *testing.T) {
	svc, _ := newTestService(newFakeEnrollmentRepo(seedDetail()))

	_, err := svc.Update(context.Background(), adminIdent(), 10, UpdateEnrollmentRequest{Grade: intPtr(9)}, 0)
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
	assert.Contains(t, appErr.Details, "version")
}

func TestEnrollmentUpdateNonOwnerDenied(t *testing.T) {
	for _, ident := range []models.Identity{teacherIdent(99), studentIdent(43)} {
		svc, _ := newTestService(newFakeEnrollmentRepo(seedDetail()))
		_, err := svc.Update(context.Background(), ident, 10, UpdateEnrollmentRequest{Grade: intPtr(9)}, 1)
		require.Error(t, err)
		assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
	}
}

// Teacher submits the full form but only grading fields land; the rest of
// the record keeps its stored values.
func TestEnrollmentUpdateTeacherFieldConfinement(t *testing.T) {
	repo := newFakeEnrollmentRepo(seedDetail())
	svc, _ := newTestService(repo)

	updated, err := svc.Update(context.Background(), teacherIdent(5), 10, UpdateEnrollmentRequest{
		Semester:   intPtr(8),
		Year:       intPtr(2030),
		ExamPoints: intPtr(40),
		ProjectURL: strPtr("https://evil.example.com"),
	}, 1)
	require.NoError(t, err)

	require.NotNil(t, updated.ExamPoints)
	assert.Equal(t, 40, *updated.ExamPoints)
	assert.Equal(t, 3, updated.Semester)
	assert.Equal(t, 2025, updated.Year)
	require.NotNil(t, updated.ProjectURL)
	assert.Equal(t, "https://git.example.com/proj", *updated.ProjectURL)
	assert.Equal(t, int64(2), updated.Version)
}

// The stored project URL survives an update that does not submit it.
func TestEnrollmentUpdatePreservesUnsubmittedFields(t *testing.T) {
	repo := newFakeEnrollmentRepo(seedDetail())
	svc, _ := newTestService(repo)

	updated, err := svc.Update(context.Background(), teacherIdent(5), 10, UpdateEnrollmentRequest{
		ExamPoints: intPtr(40),
	}, 1)
	require.NoError(t, err)

	require.NotNil(t, updated.ProjectURL)
	assert.Equal(t, "https://git.example.com/proj", *updated.ProjectURL)
	assert.NotEqual(t, int64(1), updated.Version)
}

func TestEnrollmentUpdateStudentCannotForgeGrade(t *testing.T) {
	repo := newFakeEnrollmentRepo(seedDetail())
	svc, _ := newTestService(repo)

	updated, err := svc.Update(context.Background(), studentIdent(42), 10, UpdateEnrollmentRequest{
		Grade:      intPtr(10),
		ProjectURL: strPtr("https://git.example.com/final"),
	}, 1)
	require.NoError(t, err)

	assert.Nil(t, updated.Grade)
	require.NotNil(t, updated.ProjectURL)
	assert.Equal(t, "https://git.example.com/final", *updated.ProjectURL)
}

// Two callers both fetched version 1. The first commit wins and bumps the
// version; the second is rejected with a conflict and the first merge stays.
func TestEnrollmentUpdateStaleVersionConflict(t *testing.T) {
	repo := newFakeEnrollmentRepo(seedDetail())
	svc, _ := newTestService(repo)

	first, err := svc.Update(context.Background(), teacherIdent(5), 10, UpdateEnrollmentRequest{
		ExamPoints: intPtr(40),
	}, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(2), first.Version)

	_, err = svc.Update(context.Background(), teacherIdent(6), 10, UpdateEnrollmentRequest{
		ExamPoints: intPtr(70),
	}, 1)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)

	current, err := svc.Get(context.Background(), adminIdent(), 10)
	require.NoError(t, err)
	require.NotNil(t, current.ExamPoints)
	assert.Equal(t, 40, *current.ExamPoints)
	assert.Equal(t, int64(2), current.Version)
}

// A row deleted between fetch and commit reports NotFound, not Conflict.
func TestEnrollmentUpdateVanishedRow(t *testing.T) {
	repo := newFakeEnrollmentRepo(seedDetail())
	svc, _ := newTestService(repo)

	repo.beforeUpdate = func() {
		delete(repo.rows, 10)
	}

	_, err := svc.Update(context.Background(), adminIdent(), 10, UpdateEnrollmentRequest{
		Grade: intPtr(9),
	}, 1)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestEnrollmentUpdateStudentAttachment(t *testing.T) {
	repo := newFakeEnrollmentRepo(seedDetail())
	svc, storage := newTestService(repo)

	updated, err := svc.Update(context.Background(), studentIdent(42), 10, UpdateEnrollmentRequest{
		Attachment: &AttachmentUpload{
			Filename: "seminar final.pdf",
			Size:     128,
			Content:  strings.NewReader("pdf bytes"),
		},
	}, 1)
	require.NoError(t, err)

	require.Len(t, storage.saved, 1)
	require.NotNil(t, updated.SeminarFile)
	assert.Equal(t, storage.saved[0], *updated.SeminarFile)
	assert.True(t, strings.HasPrefix(*updated.SeminarFile, "coursework/"))
	assert.True(t, strings.HasSuffix(*updated.SeminarFile, "_seminar_final.pdf"))
}

// Teachers cannot smuggle a coursework file through the update payload.
func TestEnrollmentUpdateTeacherAttachmentIgnored(t *testing.T) {
	repo := newFakeEnrollmentRepo(seedDetail())
	svc, storage := newTestService(repo)

	updated, err := svc.Update(context.Background(), teacherIdent(5), 10, UpdateEnrollmentRequest{
		ExamPoints: intPtr(55),
		Attachment: &AttachmentUpload{
			Filename: "notes.pdf",
			Size:     16,
			Content:  strings.NewReader("notes"),
		},
	}, 1)
	require.NoError(t, err)

	assert.Empty(t, storage.saved)
	assert.Nil(t, updated.SeminarFile)
}

func TestEnrollmentUpdateAttachmentTooLarge(t *testing.T) {
	repo := newFakeEnrollmentRepo(seedDetail())
	svc, storage := newTestService(repo)

	_, err := svc.Update(context.Background(), studentIdent(42), 10, UpdateEnrollmentRequest{
		Attachment: &AttachmentUpload{
			Filename: "huge.zip",
			Size:     (1 << 20) + 1,
			Content:  strings.NewReader("x"),
		},
	}, 1)
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
	assert.Contains(t, appErr.Details, "file")
	assert.Empty(t, storage.saved)
}

func TestEnrollmentDelete(t *testing.T) {
	repo := newFakeEnrollmentRepo(seedDetail())
	svc, _ := newTestService(repo)

	err := svc.Delete(context.Background(), studentIdent(42), 10)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)

	require.NoError(t, svc.Delete(context.Background(), adminIdent(), 10))

	err = svc.Delete(context.Background(), adminIdent(), 10)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestEnrollmentCourseRoster(t *testing.T) {
	repo := newFakeEnrollmentRepo(seedDetail())
	svc, _ := newTestService(repo)

	rows, err := svc.CourseRoster(context.Background(), teacherIdent(5), 7, 2025)
	require.NoError(t, err)
	assert.Len(t, rows, 1)

	_, err = svc.CourseRoster(context.Background(), teacherIdent(99), 7, 2025)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)

	_, err = svc.CourseRoster(context.Background(), teacherIdent(5), 999, 2025)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestEnrollmentAttachmentRef(t *testing.T) {
	detail := seedDetail()
	detail.SeminarFile = strPtr("coursework/abc_seminar.pdf")
	svc, _ := newTestService(newFakeEnrollmentRepo(detail))

	ref, err := svc.AttachmentRef(context.Background(), studentIdent(42), 10)
	require.NoError(t, err)
	assert.Equal(t, "coursework/abc_seminar.pdf", ref)

	_, err = svc.AttachmentRef(context.Background(), studentIdent(43), 10)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)

	bare := seedDetail()
	svc2, _ := newTestService(newFakeEnrollmentRepo(bare))
	_, err = svc2.AttachmentRef(context.Background(), studentIdent(42), 10)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}
