package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/stefanovp/faculty-api/internal/models"
	"github.com/stefanovp/faculty-api/internal/repository"
	appErrors "github.com/stefanovp/faculty-api/pkg/errors"
)

const courseCachePrefix = "catalog:courses:"

type courseRepository interface {
	List(ctx context.Context, filter models.CourseFilter) ([]models.Course, int, error)
	FindByID(ctx context.Context, id int64) (*models.Course, error)
	ListByTeacher(ctx context.Context, teacherID int64) ([]models.Course, error)
	Create(ctx context.Context, course *models.Course) error
	Update(ctx context.Context, course *models.Course) error
	Delete(ctx context.Context, id int64) (bool, error)
}

type catalogCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	DeleteByPattern(ctx context.Context, pattern string) error
}

// CourseRequest carries the course fields for create and update.
type CourseRequest struct {
	Title           string `json:"title" validate:"required,max=200"`
	Programme       string `json:"programme" validate:"required,max=100"`
	Credits         int    `json:"credits" validate:"required,min=1,max=30"`
	Semester        int    `json:"semester" validate:"required,min=1,max=8"`
	EducationLevel  string `json:"education_level" validate:"required,max=50"`
	FirstTeacherID  *int64 `json:"first_teacher_id,omitempty"`
	SecondTeacherID *int64 `json:"second_teacher_id,omitempty"`
}

type cachedCourseList struct {
	Courses []models.Course `json:"courses"`
	Total   int             `json:"total"`
}

// CourseService manages the course catalog.
type CourseService struct {
	repo      courseRepository
	teachers  teacherReader
	cache     catalogCache
	validator *validator.Validate
	logger    *zap.Logger
	cacheTTL  time.Duration
}

// NewCourseService constructs a CourseService instance.
func NewCourseService(repo courseRepository, teachers teacherReader, cache catalogCache, validate *validator.Validate, logger *zap.Logger, cacheTTL time.Duration) *CourseService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	if cacheTTL <= 0 {
		cacheTTL = 5 * time.Minute
	}
	return &CourseService{repo: repo, teachers: teachers, cache: cache, validator: validate, logger: logger, cacheTTL: cacheTTL}
}

// List returns courses matching the filter. List results are cached per
// filter combination and invalidated on any catalog write.
func (s *CourseService) List(ctx context.Context, filter models.CourseFilter) ([]models.Course, *models.Pagination, error) {
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize < 1 || filter.PageSize > 100 {
		filter.PageSize = 20
	}

	key := fmt.Sprintf("%slist:p%d:s%d:prog=%s:teacher=%d:q=%s:sort=%s-%s",
		courseCachePrefix, filter.Page, filter.PageSize, filter.Programme, filter.TeacherID, filter.Search, filter.SortBy, filter.SortOrder)

	if s.cache != nil {
		var cached cachedCourseList
		if err := s.cache.Get(ctx, key, &cached); err == nil {
			return cached.Courses, &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: cached.Total}, nil
		} else if !errors.Is(err, appErrors.ErrCacheMiss) {
			s.logger.Warn("course cache read failed", zap.Error(err))
		}
	}

	courses, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list courses")
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, key, cachedCourseList{Courses: courses, Total: total}, s.cacheTTL); err != nil {
			s.logger.Warn("course cache write failed", zap.Error(err))
		}
	}

	return courses, &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: total}, nil
}

// Get returns a single course by ID.
func (s *CourseService) Get(ctx context.Context, id int64) (*models.Course, error) {
	course, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	return course, nil
}

// ListByTeacher returns the courses co-taught by the given teacher.
func (s *CourseService) ListByTeacher(ctx context.Context, teacherID int64) ([]models.Course, error) {
	courses, err := s.repo.ListByTeacher(ctx, teacherID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list teacher courses")
	}
	return courses, nil
}

// Create adds a new course to the catalog.
func (s *CourseService) Create(ctx context.Context, req CourseRequest) (*models.Course, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid course payload")
	}
	if err := s.checkTeacherRefs(ctx, req); err != nil {
		return nil, err
	}

	course := &models.Course{
		Title:           req.Title,
		Programme:       req.Programme,
		Credits:         req.Credits,
		Semester:        req.Semester,
		EducationLevel:  req.EducationLevel,
		FirstTeacherID:  req.FirstTeacherID,
		SecondTeacherID: req.SecondTeacherID,
	}
	if err := s.repo.Create(ctx, course); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create course")
	}

	s.invalidateCache(ctx)
	return course, nil
}

// Update replaces the course fields.
func (s *CourseService) Update(ctx context.Context, id int64, req CourseRequest) (*models.Course, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid course payload")
	}
	if err := s.checkTeacherRefs(ctx, req); err != nil {
		return nil, err
	}

	course := &models.Course{
		ID:              id,
		Title:           req.Title,
		Programme:       req.Programme,
		Credits:         req.Credits,
		Semester:        req.Semester,
		EducationLevel:  req.EducationLevel,
		FirstTeacherID:  req.FirstTeacherID,
		SecondTeacherID: req.SecondTeacherID,
	}
	if err := s.repo.Update(ctx, course); err != nil {
		if errors.Is(err, repository.ErrNoRowsAffected) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update course")
	}

	s.invalidateCache(ctx)
	return course, nil
}

// Delete removes a course from the catalog.
func (s *CourseService) Delete(ctx context.Context, id int64) error {
	existed, err := s.repo.Delete(ctx, id)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete course")
	}
	if !existed {
		return appErrors.Clone(appErrors.ErrNotFound, "course not found")
	}

	s.invalidateCache(ctx)
	return nil
}

func (s *CourseService) checkTeacherRefs(ctx context.Context, req CourseRequest) error {
	for field, ref := range map[string]*int64{
		"first_teacher_id":  req.FirstTeacherID,
		"second_teacher_id": req.SecondTeacherID,
	} {
		if ref == nil {
			continue
		}
		if _, err := s.teachers.FindByID(ctx, *ref); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return appErrors.WithDetails(
					appErrors.Clone(appErrors.ErrValidation, "referenced teacher does not exist"),
					map[string]string{field: "does not exist"},
				)
			}
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check teacher reference")
		}
	}
	return nil
}

func (s *CourseService) invalidateCache(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.DeleteByPattern(ctx, courseCachePrefix+"*"); err != nil {
		s.logger.Warn("course cache invalidation failed", zap.Error(err))
	}
}
