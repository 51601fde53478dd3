package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stefanovp/faculty-api/internal/models"
)

func newEnrollmentRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

var detailColumns = []string{
	"id", "course_id", "student_id", "semester", "year", "grade", "project_url",
	"seminar_file", "exam_points", "seminar_points", "project_points", "additional_points",
	"finish_date", "version", "course_title", "first_teacher_id", "second_teacher_id",
	"student_full_name", "student_code",
}

func TestEnrollmentRepositoryCreate(t *testing.T) {
	db, mock, cleanup := newEnrollmentRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectQuery("INSERT INTO enrollments").
		WithArgs(int64(7), int64(42), 3, 2025, nil, nil, nil, nil, nil, nil, nil, nil).
		WillReturnRows(sqlmock.NewRows([]string{"id", "version"}).AddRow(10, 1))

	enrollment := &models.Enrollment{CourseID: 7, StudentID: 42, Semester: 3, Year: 2025}
	require.NoError(t, repo.Create(context.Background(), enrollment))
	assert.Equal(t, int64(10), enrollment.ID)
	assert.Equal(t, int64(1), enrollment.Version)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryUpdateVersioned(t *testing.T) {
	db, mock, cleanup := newEnrollmentRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectQuery("UPDATE enrollments SET semester").
		WithArgs(int64(10), int64(1), 3, 2025, nil, nil, nil, nil, nil, nil, nil, nil).
		WillReturnRows(sqlmock.NewRows([]string{"version"}).AddRow(2))

	enrollment := &models.Enrollment{ID: 10, Semester: 3, Year: 2025}
	newVersion, err := repo.UpdateVersioned(context.Background(), enrollment, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(2), newVersion)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// A stale token matches no row; the sentinel passes through unchanged so the
// service can decide between conflict and not-found.
func TestEnrollmentRepositoryUpdateVersionedStale(t *testing.T) {
	db, mock, cleanup := newEnrollmentRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectQuery("UPDATE enrollments SET semester").
		WithArgs(int64(10), int64(1), 3, 2025, nil, nil, nil, nil, nil, nil, nil, nil).
		WillReturnRows(sqlmock.NewRows([]string{"version"}))

	enrollment := &models.Enrollment{ID: 10, Semester: 3, Year: 2025}
	_, err := repo.UpdateVersioned(context.Background(), enrollment, 1)
	assert.Equal(t, sql.ErrNoRows, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryExists(t *testing.T) {
	db, mock, cleanup := newEnrollmentRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM enrollments WHERE id = $1")).
		WithArgs(int64(10)).
		WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow(1))

	exists, err := repo.Exists(context.Background(), 10)
	require.NoError(t, err)
	assert.True(t, exists)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM enrollments WHERE id = $1")).
		WithArgs(int64(11)).
		WillReturnRows(sqlmock.NewRows([]string{"1"}))

	exists, err = repo.Exists(context.Background(), 11)
	require.NoError(t, err)
	assert.False(t, exists)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryExistsForTerm(t *testing.T) {
	db, mock, cleanup := newEnrollmentRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM enrollments WHERE course_id = $1 AND student_id = $2 AND semester = $3 AND year = $4 LIMIT 1")).
		WithArgs(int64(7), int64(42), 3, 2025).
		WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow(1))

	exists, err := repo.ExistsForTerm(context.Background(), 7, 42, 3, 2025)
	require.NoError(t, err)
	assert.True(t, exists)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryDelete(t *testing.T) {
	db, mock, cleanup := newEnrollmentRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM enrollments WHERE id = $1")).
		WithArgs(int64(10)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	existed, err := repo.Delete(context.Background(), 10)
	require.NoError(t, err)
	assert.True(t, existed)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM enrollments WHERE id = $1")).
		WithArgs(int64(11)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	existed, err = repo.Delete(context.Background(), 11)
	require.NoError(t, err)
	assert.False(t, existed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryListByCourse(t *testing.T) {
	db, mock, cleanup := newEnrollmentRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	rows := sqlmock.NewRows(detailColumns).
		AddRow(10, 7, 42, 3, 2025, nil, nil, nil, nil, nil, nil, nil, nil, 1,
			"Distributed Systems", 5, nil, "Ana Petrova", "161/2022")
	mock.ExpectQuery("SELECT (.+) FROM enrollments e").
		WithArgs(int64(7), 2025).
		WillReturnRows(rows)

	list, err := repo.ListByCourse(context.Background(), 7, 2025)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "Distributed Systems", list[0].CourseTitle)
	assert.Equal(t, "161/2022", list[0].StudentCode)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryFindDetailByID(t *testing.T) {
	db, mock, cleanup := newEnrollmentRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	rows := sqlmock.NewRows(detailColumns).
		AddRow(10, 7, 42, 3, 2025, 9, nil, nil, nil, nil, nil, nil, nil, 4,
			"Distributed Systems", 5, 6, "Ana Petrova", "161/2022")
	mock.ExpectQuery("SELECT (.+) FROM enrollments e").
		WithArgs(int64(10)).
		WillReturnRows(rows)

	detail, err := repo.FindDetailByID(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, int64(4), detail.Version)
	require.NotNil(t, detail.Grade)
	assert.Equal(t, 9, *detail.Grade)
	assert.NoError(t, mock.ExpectationsWereMet())
}
