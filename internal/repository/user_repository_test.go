package repository

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stefanovp/faculty-api/internal/models"
)

func newUserRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestUserRepositoryFindByEmail(t *testing.T) {
	db, mock, cleanup := newUserRepoMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows([]string{
		"id", "email", "password_hash", "full_name", "phone_number", "role",
		"teacher_id", "student_id", "active", "last_login", "created_at", "updated_at",
	}).AddRow("user-1", "ana@faculty.example", "hash", "Ana Petrova", "641234567", "TEACHER",
		5, nil, true, nil, now, now)

	mock.ExpectQuery("SELECT (.+) FROM users WHERE email").
		WithArgs("ana@faculty.example").
		WillReturnRows(rows)

	user, err := repo.FindByEmail(context.Background(), "ana@faculty.example")
	require.NoError(t, err)
	assert.Equal(t, models.RoleTeacher, user.Role)
	require.NotNil(t, user.TeacherID)
	assert.Equal(t, int64(5), *user.TeacherID)
	assert.Nil(t, user.StudentID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepositoryCreate(t *testing.T) {
	db, mock, cleanup := newUserRepoMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	mock.ExpectExec("INSERT INTO users").
		WillReturnResult(sqlmock.NewResult(0, 1))

	user := &models.User{
		Email:        "new@faculty.example",
		PasswordHash: "hash",
		FullName:     "Jovana Ristic",
		PhoneNumber:  "641234567",
		Role:         models.RoleAdmin,
		Active:       true,
	}
	require.NoError(t, repo.Create(context.Background(), user))
	assert.NotEmpty(t, user.ID)
	assert.False(t, user.UpdatedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepositoryUpdateMissing(t *testing.T) {
	db, mock, cleanup := newUserRepoMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	mock.ExpectExec("UPDATE users SET email").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Update(context.Background(), &models.User{ID: "missing"})
	assert.Equal(t, ErrNoRowsAffected, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepositoryRefreshTokenLifecycle(t *testing.T) {
	db, mock, cleanup := newUserRepoMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	mock.ExpectExec("INSERT INTO refresh_tokens").
		WillReturnResult(sqlmock.NewResult(0, 1))

	token := &models.RefreshToken{
		ID:        "rt-1",
		UserID:    "user-1",
		Token:     "opaque",
		ExpiresAt: time.Now().Add(time.Hour),
		CreatedAt: time.Now(),
	}
	require.NoError(t, repo.CreateRefreshToken(context.Background(), token))

	rows := sqlmock.NewRows([]string{
		"id", "user_id", "token", "expires_at", "created_at", "revoked", "revoked_at", "ip_address", "user_agent",
	}).AddRow("rt-1", "user-1", "opaque", token.ExpiresAt, token.CreatedAt, false, nil, "", "")
	mock.ExpectQuery("SELECT (.+) FROM refresh_tokens WHERE token").
		WithArgs("opaque").
		WillReturnRows(rows)

	stored, err := repo.FindRefreshToken(context.Background(), "opaque")
	require.NoError(t, err)
	assert.Equal(t, "user-1", stored.UserID)
	assert.False(t, stored.Revoked)

	mock.ExpectExec("UPDATE refresh_tokens SET revoked = TRUE, revoked_at").
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.RevokeRefreshToken(context.Background(), "rt-1", time.Now()))
	assert.NoError(t, mock.ExpectationsWereMet())
}
