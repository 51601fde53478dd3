package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/stefanovp/faculty-api/internal/models"
	appErrors "github.com/stefanovp/faculty-api/pkg/errors"
)

type userRepository interface {
	List(ctx context.Context, filter models.UserFilter) ([]models.User, int, error)
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	FindByID(ctx context.Context, id string) (*models.User, error)
	Create(ctx context.Context, user *models.User) error
	Update(ctx context.Context, user *models.User) error
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

type teacherReader interface {
	FindByID(ctx context.Context, id int64) (*models.Teacher, error)
}

// CreateUserRequest provisions a new account. Exactly one of teacher_id
// or student_id binds the account to a domain record; accounts with
// neither are administrators.
type CreateUserRequest struct {
	Email       string `json:"email" validate:"required,email"`
	Password    string `json:"password" validate:"required,min=6"`
	FullName    string `json:"full_name" validate:"required,max=120"`
	PhoneNumber string `json:"phone_number" validate:"required,len=9,numeric"`
	TeacherID   *int64 `json:"teacher_id,omitempty"`
	StudentID   *int64 `json:"student_id,omitempty"`
}

// UpdateUserRequest carries mutable account fields. Nil fields keep
// their current value.
type UpdateUserRequest struct {
	FullName    *string `json:"full_name,omitempty" validate:"omitempty,max=120"`
	PhoneNumber *string `json:"phone_number,omitempty" validate:"omitempty,len=9,numeric"`
	Active      *bool   `json:"active,omitempty"`
}

// UserService manages application accounts.
type UserService struct {
	repo      userRepository
	teachers  teacherReader
	students  studentReader
	validator *validator.Validate
	logger    *zap.Logger
}

// NewUserService constructs a UserService instance.
func NewUserService(repo userRepository, teachers teacherReader, students studentReader, validate *validator.Validate, logger *zap.Logger) *UserService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &UserService{repo: repo, teachers: teachers, students: students, validator: validate, logger: logger}
}

// List returns accounts matching the filter with pagination metadata.
func (s *UserService) List(ctx context.Context, filter models.UserFilter) ([]models.User, *models.Pagination, error) {
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize < 1 || filter.PageSize > 100 {
		filter.PageSize = 20
	}

	users, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list users")
	}
	return users, &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: total}, nil
}

// Get returns a single account by ID.
func (s *UserService) Get(ctx context.Context, id string) (*models.User, error) {
	user, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}
	return user, nil
}

// Create provisions a new account. The role is derived from the domain
// reference, never supplied by the caller.
func (s *UserService) Create(ctx context.Context, actor models.Identity, req CreateUserRequest) (*models.User, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid user payload")
	}

	if req.TeacherID != nil && req.StudentID != nil {
		return nil, appErrors.WithDetails(
			appErrors.Clone(appErrors.ErrValidation, "account cannot reference both a teacher and a student"),
			map[string]string{"teacher_id": "mutually exclusive with student_id"},
		)
	}

	if existing, err := s.repo.FindByEmail(ctx, req.Email); err == nil && existing != nil {
		return nil, appErrors.WithDetails(
			appErrors.Clone(appErrors.ErrValidation, "email is already registered"),
			map[string]string{"email": "already registered"},
		)
	} else if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check email uniqueness")
	}

	role := models.RoleAdmin
	switch {
	case req.StudentID != nil:
		if _, err := s.students.FindByID(ctx, *req.StudentID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, appErrors.WithDetails(
					appErrors.Clone(appErrors.ErrValidation, "referenced student does not exist"),
					map[string]string{"student_id": "does not exist"},
				)
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check student reference")
		}
		role = models.RoleStudent
	case req.TeacherID != nil:
		if _, err := s.teachers.FindByID(ctx, *req.TeacherID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, appErrors.WithDetails(
					appErrors.Clone(appErrors.ErrValidation, "referenced teacher does not exist"),
					map[string]string{"teacher_id": "does not exist"},
				)
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check teacher reference")
		}
		role = models.RoleTeacher
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash password")
	}

	now := time.Now().UTC()
	user := &models.User{
		ID:           uuid.NewString(),
		Email:        req.Email,
		PasswordHash: string(hash),
		FullName:     req.FullName,
		PhoneNumber:  req.PhoneNumber,
		Role:         role,
		TeacherID:    req.TeacherID,
		StudentID:    req.StudentID,
		Active:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.repo.Create(ctx, user); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create user")
	}

	if err := s.repo.CreateAuditLog(ctx, &models.AuditLog{
		UserID:     &actor.UserID,
		Action:     models.AuditActionUserCreate,
		Resource:   "users",
		ResourceID: &user.ID,
	}); err != nil {
		s.logger.Warn("failed to record user create audit log", zap.Error(err))
	}

	s.logger.Info("user created",
		zap.String("user_id", user.ID),
		zap.String("role", string(user.Role)),
	)
	return user, nil
}

// Update modifies mutable account fields.
func (s *UserService) Update(ctx context.Context, actor models.Identity, id string, req UpdateUserRequest) (*models.User, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid user payload")
	}

	user, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}

	if req.FullName != nil {
		user.FullName = *req.FullName
	}
	if req.PhoneNumber != nil {
		user.PhoneNumber = *req.PhoneNumber
	}
	if req.Active != nil {
		user.Active = *req.Active
	}
	user.UpdatedAt = time.Now().UTC()

	if err := s.repo.Update(ctx, user); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update user")
	}

	if err := s.repo.CreateAuditLog(ctx, &models.AuditLog{
		UserID:     &actor.UserID,
		Action:     models.AuditActionUserUpdate,
		Resource:   "users",
		ResourceID: &user.ID,
	}); err != nil {
		s.logger.Warn("failed to record user update audit log", zap.Error(err))
	}

	return user, nil
}
