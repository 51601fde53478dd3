package service

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stefanovp/faculty-api/internal/models"
	appErrors "github.com/stefanovp/faculty-api/pkg/errors"
)

func newTestExportService(repo *fakeEnrollmentRepo) *ExportService {
	courses := &fakeCourseReader{courses: map[int64]*models.Course{
		7: {ID: 7, Title: "Distributed Systems", FirstTeacherID: int64Ptr(5)},
	}}
	students := &fakeStudentReader{students: map[int64]*models.Student{
		42: {ID: 42, StudentCode: "161/2022", FirstName: "Ana", LastName: "Petrova"},
	}}
	return NewExportService(repo, courses, students, nil)
}

func TestCourseRosterExport(t *testing.T) {
	svc := newTestExportService(newFakeEnrollmentRepo(seedDetail()))

	result, err := svc.CourseRoster(context.Background(), teacherIdent(5), 7, 2025, FormatCSV)
	require.NoError(t, err)
	assert.Equal(t, "text/csv", result.ContentType)
	assert.Equal(t, "roster_course_7_2025.csv", result.Filename)

	content := string(result.Content)
	assert.True(t, strings.HasPrefix(content, "StudentCode,Student,"))
	assert.Contains(t, content, "161/2022")
	assert.Contains(t, content, "Ana Petrova")
}

func TestCourseRosterExportDeniedForOtherTeacher(t *testing.T) {
	svc := newTestExportService(newFakeEnrollmentRepo(seedDetail()))

	_, err := svc.CourseRoster(context.Background(), teacherIdent(99), 7, 2025, FormatCSV)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestStudentTranscriptExport(t *testing.T) {
	svc := newTestExportService(newFakeEnrollmentRepo(seedDetail()))

	result, err := svc.StudentTranscript(context.Background(), studentIdent(42), 42, FormatPDF)
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", result.ContentType)
	assert.Equal(t, "transcript_161-2022.pdf", result.Filename)
	assert.NotEmpty(t, result.Content)
}

func TestStudentTranscriptExportOwnership(t *testing.T) {
	svc := newTestExportService(newFakeEnrollmentRepo(seedDetail()))

	_, err := svc.StudentTranscript(context.Background(), studentIdent(43), 42, FormatCSV)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)

	_, err = svc.StudentTranscript(context.Background(), teacherIdent(5), 42, FormatCSV)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)

	_, err = svc.StudentTranscript(context.Background(), adminIdent(), 42, FormatCSV)
	require.NoError(t, err)
}

func TestExportUnsupportedFormat(t *testing.T) {
	svc := newTestExportService(newFakeEnrollmentRepo(seedDetail()))

	_, err := svc.CourseRoster(context.Background(), adminIdent(), 7, 2025, "xlsx")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}
