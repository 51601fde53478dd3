package service

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/stefanovp/faculty-api/internal/models"
	"github.com/stefanovp/faculty-api/internal/policy"
	appErrors "github.com/stefanovp/faculty-api/pkg/errors"
)

type enrollmentRepository interface {
	List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error)
	FindDetailByID(ctx context.Context, id int64) (*models.EnrollmentDetail, error)
	Exists(ctx context.Context, id int64) (bool, error)
	ExistsForTerm(ctx context.Context, courseID, studentID int64, semester, year int) (bool, error)
	Create(ctx context.Context, enrollment *models.Enrollment) error
	UpdateVersioned(ctx context.Context, enrollment *models.Enrollment, expectedVersion int64) (int64, error)
	Delete(ctx context.Context, id int64) (bool, error)
	ListByCourse(ctx context.Context, courseID int64, year int) ([]models.EnrollmentDetail, error)
	ListByStudent(ctx context.Context, studentID int64) ([]models.EnrollmentDetail, error)
}

type courseReader interface {
	FindByID(ctx context.Context, id int64) (*models.Course, error)
}

type studentReader interface {
	FindByID(ctx context.Context, id int64) (*models.Student, error)
}

type attachmentStorage interface {
	SaveStream(filename string, r io.Reader) (string, error)
}

// CreateEnrollmentRequest describes enrollment creation payload.
type CreateEnrollmentRequest struct {
	CourseID  int64 `json:"course_id" validate:"required"`
	StudentID int64 `json:"student_id" validate:"required"`
	Semester  int   `json:"semester" validate:"required,min=1,max=8"`
	Year      int   `json:"year" validate:"required,min=2000,max=2100"`
	Grade     *int  `json:"grade" validate:"omitempty,min=5,max=10"`
}

// AttachmentUpload describes an uploaded coursework file.
type AttachmentUpload struct {
	Filename string
	Size     int64
	Content  io.Reader
}

// UpdateEnrollmentRequest carries a partial enrollment mutation. Nil fields
// were not submitted. Fields the caller's role cannot write are dropped
// during merge, not rejected: the surrounding forms always submit the full
// record regardless of role.
type UpdateEnrollmentRequest struct {
	Semester         *int       `json:"semester" validate:"omitempty,min=1,max=8"`
	Year             *int       `json:"year" validate:"omitempty,min=2000,max=2100"`
	Grade            *int       `json:"grade" validate:"omitempty,min=5,max=10"`
	ProjectURL       *string    `json:"project_url" validate:"omitempty,max=2048"`
	ExamPoints       *int       `json:"exam_points" validate:"omitempty,min=0,max=100"`
	SeminarPoints    *int       `json:"seminar_points" validate:"omitempty,min=0,max=100"`
	ProjectPoints    *int       `json:"project_points" validate:"omitempty,min=0,max=100"`
	AdditionalPoints *int       `json:"additional_points" validate:"omitempty,min=0,max=100"`
	FinishDate       *time.Time `json:"finish_date"`
	Attachment       *AttachmentUpload `json:"-"`
}

// EnrollmentServiceConfig tunes the workflow.
type EnrollmentServiceConfig struct {
	MaxAttachmentSize int64
}

// EnrollmentService orchestrates the role-scoped enrollment workflow:
// fetch, authorization, partial-field merge, attachment handling and the
// version-checked commit.
type EnrollmentService struct {
	repo      enrollmentRepository
	courses   courseReader
	students  studentReader
	storage   attachmentStorage
	validator *validator.Validate
	logger    *zap.Logger
	config    EnrollmentServiceConfig
}

// NewEnrollmentService constructs EnrollmentService.
func NewEnrollmentService(repo enrollmentRepository, courses courseReader, students studentReader, storage attachmentStorage, validate *validator.Validate, logger *zap.Logger, config EnrollmentServiceConfig) *EnrollmentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EnrollmentService{repo: repo, courses: courses, students: students, storage: storage, validator: validate, logger: logger, config: config}
}

// Get returns an enrollment with course/student context when the caller may
// read it. A missing row is NotFound; an ownership or role mismatch is an
// access-denied outcome, never disguised as NotFound.
func (s *EnrollmentService) Get(ctx context.Context, ident models.Identity, id int64) (*models.EnrollmentDetail, error) {
	detail, err := s.repo.FindDetailByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}
	if !policy.Authorize(ident, detail, policy.OpRead).Allowed {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "access denied")
	}
	return detail, nil
}

// List returns enrollments with pagination metadata. Admin only.
func (s *EnrollmentService) List(ctx context.Context, ident models.Identity, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, *models.Pagination, error) {
	if ident.Role != models.RoleAdmin {
		return nil, nil, appErrors.Clone(appErrors.ErrForbidden, "access denied")
	}
	enrollments, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list enrollments")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	pagination := &models.Pagination{Page: page, PageSize: size, TotalCount: total}
	return enrollments, pagination, nil
}

// CourseRoster returns the enrollments of a course for a year, for the
// owning teachers and admins. Year zero defaults to the current year.
func (s *EnrollmentService) CourseRoster(ctx context.Context, ident models.Identity, courseID int64, year int) ([]models.EnrollmentDetail, error) {
	course, err := s.courses.FindByID(ctx, courseID)
	if err != nil {
		if err == sql.ErrNoRows {
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
	enrollments, err := s.repo.ListByCourse(ctx, courseID, year)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list course enrollments")
	}
	return enrollments, nil
}

// Create enrolls a student in a course for a semester and year. Admin only.
func (s *EnrollmentService) Create(ctx context.Context, ident models.Identity, req CreateEnrollmentRequest) (*models.EnrollmentDetail, error) {
	if !policy.Authorize(ident, nil, policy.OpCreate).Allowed {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "access denied")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid enrollment payload")
	}
	if _, err := s.courses.FindByID(ctx, req.CourseID); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.WithDetails(appErrors.ErrValidation, map[string]string{"course_id": "course not found"})
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	if _, err := s.students.FindByID(ctx, req.StudentID); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.WithDetails(appErrors.ErrValidation, map[string]string{"student_id": "student not found"})
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	exists, err := s.repo.ExistsForTerm(ctx, req.CourseID, req.StudentID, req.Semester, req.Year)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to validate enrollment")
	}
	if exists {
		return nil, appErrors.WithDetails(appErrors.ErrValidation, map[string]string{"student_id": "student already enrolled in course for this term"})
	}
	enrollment := &models.Enrollment{
		CourseID:  req.CourseID,
		StudentID: req.StudentID,
		Semester:  req.Semester,
		Year:      req.Year,
		Grade:     req.Grade,
	}
	if err := s.repo.Create(ctx, enrollment); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create enrollment")
	}
	detail, err := s.repo.FindDetailByID(ctx, enrollment.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment detail")
	}
	return detail, nil
}

// Update applies a partial mutation under the role-scoped writable field
// set and commits it conditioned on the version token the caller fetched.
// On a guard failure the row's existence decides between NotFound and
// Conflict; the workflow never retries on the caller's behalf.
func (s *EnrollmentService) Update(ctx context.Context, ident models.Identity, id int64, req UpdateEnrollmentRequest, expectedVersion int64) (*models.EnrollmentDetail, error) {
	if expectedVersion <= 0 {
		return nil, appErrors.WithDetails(appErrors.ErrValidation, map[string]string{"version": "fetched version token is required"})
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid enrollment payload")
	}

	detail, err := s.repo.FindDetailByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}

	decision := policy.Authorize(ident, detail, policy.OpUpdate)
	if !decision.Allowed {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "access denied")
	}

	merged := detail.Enrollment
	applyWritable(&merged, req, decision.Writable)

	if req.Attachment != nil && decision.Writable.Has(policy.FieldSeminarFile) {
		ref, err := s.storeAttachment(req.Attachment)
		if err != nil {
			return nil, err
		}
		merged.SeminarFile = &ref
	}

	newVersion, err := s.repo.UpdateVersioned(ctx, &merged, expectedVersion)
	if err != nil {
		if err == sql.ErrNoRows {
			exists, existsErr := s.repo.Exists(ctx, id)
			if existsErr != nil {
				return nil, appErrors.Wrap(existsErr, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to re-check enrollment")
			}
			if !exists {
				return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
			}
			return nil, appErrors.Clone(appErrors.ErrConflict, "enrollment was modified by another user, reload and retry")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update enrollment")
	}

	s.logger.Info("enrollment updated",
		zap.Int64("enrollment_id", id),
		zap.String("role", string(ident.Role)),
		zap.Int64("version", newVersion),
	)

	updated, err := s.repo.FindDetailByID(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment detail")
	}
	return updated, nil
}

// Delete removes an enrollment. Admin only; deleting cascades nothing
// beyond the row itself and stored coursework blobs stay orphaned.
func (s *EnrollmentService) Delete(ctx context.Context, ident models.Identity, id int64) error {
	if !policy.Authorize(ident, nil, policy.OpDelete).Allowed {
		return appErrors.Clone(appErrors.ErrForbidden, "access denied")
	}
	existed, err := s.repo.Delete(ctx, id)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete enrollment")
	}
	if !existed {
		return appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
	}
	return nil
}

// AttachmentRef returns the stored coursework reference for callers allowed
// to read the enrollment.
func (s *EnrollmentService) AttachmentRef(ctx context.Context, ident models.Identity, id int64) (string, error) {
	detail, err := s.Get(ctx, ident, id)
	if err != nil {
		return "", err
	}
	if detail.SeminarFile == nil || *detail.SeminarFile == "" {
		return "", appErrors.Clone(appErrors.ErrNotFound, "enrollment has no coursework attachment")
	}
	return *detail.SeminarFile, nil
}

// applyWritable merges the submitted fields into the stored record,
// restricted to the caller's writable set. Everything else keeps the stored
// value; a student payload can never forge a grade.
func applyWritable(e *models.Enrollment, req UpdateEnrollmentRequest, writable policy.FieldSet) {
	if req.Semester != nil && writable.Has(policy.FieldSemester) {
		e.Semester = *req.Semester
	}
	if req.Year != nil && writable.Has(policy.FieldYear) {
		e.Year = *req.Year
	}
	if req.Grade != nil && writable.Has(policy.FieldGrade) {
		e.Grade = req.Grade
	}
	if req.ProjectURL != nil && writable.Has(policy.FieldProjectURL) {
		e.ProjectURL = req.ProjectURL
	}
	if req.ExamPoints != nil && writable.Has(policy.FieldExamPoints) {
		e.ExamPoints = req.ExamPoints
	}
	if req.SeminarPoints != nil && writable.Has(policy.FieldSeminarPoints) {
		e.SeminarPoints = req.SeminarPoints
	}
	if req.ProjectPoints != nil && writable.Has(policy.FieldProjectPoints) {
		e.ProjectPoints = req.ProjectPoints
	}
	if req.AdditionalPoints != nil && writable.Has(policy.FieldAdditionalPoints) {
		e.AdditionalPoints = req.AdditionalPoints
	}
	if req.FinishDate != nil && writable.Has(policy.FieldFinishDate) {
		e.FinishDate = req.FinishDate
	}
}

// storeAttachment writes the upload under a globally unique reference. The
// previous blob, if any, is left in place: replacement is reference-swap
// only and the orphan is not garbage-collected here.
func (s *EnrollmentService) storeAttachment(upload *AttachmentUpload) (string, error) {
	if s.storage == nil {
		return "", appErrors.Clone(appErrors.ErrInternal, "attachment storage not configured")
	}
	if s.config.MaxAttachmentSize > 0 && upload.Size > s.config.MaxAttachmentSize {
		return "", appErrors.WithDetails(appErrors.ErrValidation, map[string]string{
			"file": fmt.Sprintf("file exceeds maximum size of %d bytes", s.config.MaxAttachmentSize),
		})
	}
	name := uuid.NewString() + "_" + sanitizeFilename(upload.Filename)
	ref, err := s.storage.SaveStream(filepath.Join("coursework", name), upload.Content)
	if err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store attachment")
	}
	return ref, nil
}

func sanitizeFilename(name string) string {
	base := filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	base = strings.ReplaceAll(base, " ", "_")
	if base == "" || base == "." || base == "/" {
		return "upload"
	}
	return base
}

// validationError converts validator output into a field-keyed error.
func validationError(err error, message string) *appErrors.Error {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, message)
	}
	details := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		details[strings.ToLower(fe.Field())] = fmt.Sprintf("failed on %s", fe.Tag())
	}
	e := appErrors.Clone(appErrors.ErrValidation, message)
	e.Details = details
	return e
}
