package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/stefanovp/faculty-api/internal/models"
	"github.com/stefanovp/faculty-api/internal/policy"
	appErrors "github.com/stefanovp/faculty-api/pkg/errors"
	"github.com/stefanovp/faculty-api/pkg/export"
)

// ExportFormat selects the rendered output type.
type ExportFormat string

const (
	FormatCSV ExportFormat = "csv"
	FormatPDF ExportFormat = "pdf"
)

type rosterLister interface {
	ListByCourse(ctx context.Context, courseID int64, year int) ([]models.EnrollmentDetail, error)
	ListByStudent(ctx context.Context, studentID int64) ([]models.EnrollmentDetail, error)
}

// ExportResult holds the rendered document and its response metadata.
type ExportResult struct {
	Content     []byte
	ContentType string
	Filename    string
}

// ExportService renders course rosters and student transcripts.
type ExportService struct {
	enrollments rosterLister
	courses     courseReader
	students    studentReader
	csv         *export.CSVExporter
	pdf         *export.PDFExporter
	logger      *zap.Logger
}

// NewExportService constructs an ExportService instance.
func NewExportService(enrollments rosterLister, courses courseReader, students studentReader, logger *zap.Logger) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExportService{
		enrollments: enrollments,
		courses:     courses,
		students:    students,
		csv:         export.NewCSVExporter(),
		pdf:         export.NewPDFExporter(),
		logger:      logger,
	}
}

// CourseRoster renders the enrollment roster of a course. Admins may
// export any course, teachers only courses they co-teach.
func (s *ExportService) CourseRoster(ctx context.Context, ident models.Identity, courseID int64, year int, format ExportFormat) (*ExportResult, error) {
	course, err := s.courses.FindByID(ctx, courseID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}

	if !policy.OwnsCourse(ident, course) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "access denied")
	}

	if year == 0 {
		year = time.Now().Year()
	}

	rows, err := s.enrollments.ListByCourse(ctx, courseID, year)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course roster")
	}

	data := export.Dataset{
		Headers: []string{"StudentCode", "Student", "Semester", "Year", "Exam", "Seminar", "Project", "Additional", "Grade", "Finished"},
		Rows:    make([]map[string]string, 0, len(rows)),
	}
	for _, e := range rows {
		data.Rows = append(data.Rows, map[string]string{
			"StudentCode": e.StudentCode,
			"Student":     e.StudentFullName,
			"Semester":    strconv.Itoa(e.Semester),
			"Year":        strconv.Itoa(e.Year),
			"Exam":        formatPoints(e.ExamPoints),
			"Seminar":     formatPoints(e.SeminarPoints),
			"Project":     formatPoints(e.ProjectPoints),
			"Additional":  formatPoints(e.AdditionalPoints),
			"Grade":       formatPoints(e.Grade),
			"Finished":    formatDate(e.FinishDate),
		})
	}

	title := fmt.Sprintf("Roster %s %d", course.Title, year)
	filename := fmt.Sprintf("roster_course_%d_%d", courseID, year)
	return s.render(data, title, filename, format)
}

// StudentTranscript renders all enrollments of a student. Admins may
// export any transcript, students only their own.
func (s *ExportService) StudentTranscript(ctx context.Context, ident models.Identity, studentID int64, format ExportFormat) (*ExportResult, error) {
	allowed := ident.Role == models.RoleAdmin ||
		(ident.Role == models.RoleStudent && ident.StudentID != nil && *ident.StudentID == studentID)
	if !allowed {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "access denied")
	}

	student, err := s.students.FindByID(ctx, studentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}

	rows, err := s.enrollments.ListByStudent(ctx, studentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load transcript")
	}

	data := export.Dataset{
		Headers: []string{"Course", "Semester", "Year", "Grade", "Finished"},
		Rows:    make([]map[string]string, 0, len(rows)),
	}
	for _, e := range rows {
		data.Rows = append(data.Rows, map[string]string{
			"Course":   e.CourseTitle,
			"Semester": strconv.Itoa(e.Semester),
			"Year":     strconv.Itoa(e.Year),
			"Grade":    formatPoints(e.Grade),
			"Finished": formatDate(e.FinishDate),
		})
	}

	title := fmt.Sprintf("Transcript %s (%s)", student.FullName(), student.StudentCode)
	filename := fmt.Sprintf("transcript_%s", strings.ReplaceAll(student.StudentCode, "/", "-"))
	return s.render(data, title, filename, format)
}

func (s *ExportService) render(data export.Dataset, title, filename string, format ExportFormat) (*ExportResult, error) {
	switch format {
	case FormatCSV, "":
		content, err := s.csv.Render(data)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render csv")
		}
		return &ExportResult{Content: content, ContentType: "text/csv", Filename: filename + ".csv"}, nil
	case FormatPDF:
		content, err := s.pdf.Render(data, title)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render pdf")
		}
		return &ExportResult{Content: content, ContentType: "application/pdf", Filename: filename + ".pdf"}, nil
	default:
		return nil, appErrors.WithDetails(
			appErrors.Clone(appErrors.ErrValidation, "unsupported export format"),
			map[string]string{"format": "must be csv or pdf"},
		)
	}
}

func formatPoints(v *int) string {
	if v == nil {
		return ""
	}
	return strconv.Itoa(*v)
}

func formatDate(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format("2006-01-02")
}
