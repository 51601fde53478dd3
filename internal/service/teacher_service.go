package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/stefanovp/faculty-api/internal/models"
	"github.com/stefanovp/faculty-api/internal/repository"
	appErrors "github.com/stefanovp/faculty-api/pkg/errors"
)

type teacherRepository interface {
	List(ctx context.Context, filter models.TeacherFilter) ([]models.Teacher, int, error)
	FindByID(ctx context.Context, id int64) (*models.Teacher, error)
	Create(ctx context.Context, teacher *models.Teacher) error
	Update(ctx context.Context, teacher *models.Teacher) error
	Delete(ctx context.Context, id int64) (bool, error)
}

type teacherCourseLister interface {
	ListByTeacher(ctx context.Context, teacherID int64) ([]models.Course, error)
}

// TeacherRequest carries teacher fields for create and update.
type TeacherRequest struct {
	FirstName    string    `json:"first_name" validate:"required,max=80"`
	LastName     string    `json:"last_name" validate:"required,max=80"`
	Degree       string    `json:"degree" validate:"required,max=100"`
	AcademicRank string    `json:"academic_rank" validate:"required,max=100"`
	OfficeNumber string    `json:"office_number" validate:"omitempty,max=20"`
	HireDate     time.Time `json:"hire_date" validate:"required"`
}

// TeacherService manages teacher records.
type TeacherService struct {
	repo      teacherRepository
	courses   teacherCourseLister
	validator *validator.Validate
	logger    *zap.Logger
}

// NewTeacherService constructs a TeacherService instance.
func NewTeacherService(repo teacherRepository, courses teacherCourseLister, validate *validator.Validate, logger *zap.Logger) *TeacherService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &TeacherService{repo: repo, courses: courses, validator: validate, logger: logger}
}

// List returns teachers matching the filter.
func (s *TeacherService) List(ctx context.Context, filter models.TeacherFilter) ([]models.Teacher, *models.Pagination, error) {
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize < 1 || filter.PageSize > 100 {
		filter.PageSize = 20
	}

	teachers, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list teachers")
	}
	return teachers, &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: total}, nil
}

// Get returns a single teacher by ID.
func (s *TeacherService) Get(ctx context.Context, id int64) (*models.Teacher, error) {
	teacher, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "teacher not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load teacher")
	}
	return teacher, nil
}

// ListCourses returns the courses the teacher co-teaches.
func (s *TeacherService) ListCourses(ctx context.Context, teacherID int64) ([]models.Course, error) {
	if _, err := s.repo.FindByID(ctx, teacherID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "teacher not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load teacher")
	}

	courses, err := s.courses.ListByTeacher(ctx, teacherID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list teacher courses")
	}
	return courses, nil
}

// Create adds a new teacher record.
func (s *TeacherService) Create(ctx context.Context, req TeacherRequest) (*models.Teacher, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid teacher payload")
	}

	teacher := &models.Teacher{
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		Degree:       req.Degree,
		AcademicRank: req.AcademicRank,
		OfficeNumber: req.OfficeNumber,
		HireDate:     req.HireDate,
	}
	if err := s.repo.Create(ctx, teacher); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create teacher")
	}
	return teacher, nil
}

// Update replaces the teacher fields.
func (s *TeacherService) Update(ctx context.Context, id int64, req TeacherRequest) (*models.Teacher, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid teacher payload")
	}

	teacher := &models.Teacher{
		ID:           id,
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		Degree:       req.Degree,
		AcademicRank: req.AcademicRank,
		OfficeNumber: req.OfficeNumber,
		HireDate:     req.HireDate,
	}
	if err := s.repo.Update(ctx, teacher); err != nil {
		if errors.Is(err, repository.ErrNoRowsAffected) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "teacher not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update teacher")
	}
	return teacher, nil
}

// Delete removes a teacher record.
func (s *TeacherService) Delete(ctx context.Context, id int64) error {
	existed, err := s.repo.Delete(ctx, id)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete teacher")
	}
	if !existed {
		return appErrors.Clone(appErrors.ErrNotFound, "teacher not found")
	}
	return nil
}
