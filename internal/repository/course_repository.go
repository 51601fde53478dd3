package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/stefanovp/faculty-api/internal/models"
)

// CourseRepository handles persistence of courses.
type CourseRepository struct {
	db *sqlx.DB
}

// NewCourseRepository constructs the repository.
func NewCourseRepository(db *sqlx.DB) *CourseRepository {
	return &CourseRepository{db: db}
}

const courseColumns = `id, title, programme, credits, semester, education_level, first_teacher_id, second_teacher_id`

// List returns courses filtered by the provided criteria.
func (r *CourseRepository) List(ctx context.Context, filter models.CourseFilter) ([]models.Course, int, error) {
	var conditions []string
	var args []interface{}

	if filter.Programme != "" {
		conditions = append(conditions, fmt.Sprintf("programme = $%d", len(args)+1))
		args = append(args, filter.Programme)
	}
	if filter.TeacherID != 0 {
		conditions = append(conditions, fmt.Sprintf("(first_teacher_id = $%d OR second_teacher_id = $%d)", len(args)+1, len(args)+1))
		args = append(args, filter.TeacherID)
	}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("title ILIKE $%d", len(args)+1))
		args = append(args, "%"+filter.Search+"%")
	}

	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
	}

	allowedSorts := map[string]string{
		"title":     "title",
		"programme": "programme",
		"credits":   "credits",
	}
	orderBy := allowedSorts[filter.SortBy]
	if orderBy == "" {
		orderBy = "title"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "ASC"
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT %s FROM courses%s ORDER BY %s %s LIMIT %d OFFSET %d`,
		courseColumns, clause, orderBy, order, size, offset)

	var courses []models.Course
	if err := r.db.SelectContext(ctx, &courses, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list courses: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM courses%s", clause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count courses: %w", err)
	}
	return courses, total, nil
}

// FindByID returns a course by its ID.
func (r *CourseRepository) FindByID(ctx context.Context, id int64) (*models.Course, error) {
	query := fmt.Sprintf(`SELECT %s FROM courses WHERE id = $1`, courseColumns)
	var course models.Course
	if err := r.db.GetContext(ctx, &course, query, id); err != nil {
		return nil, err
	}
	return &course, nil
}

// ListByTeacher returns courses co-taught by the given teacher.
func (r *CourseRepository) ListByTeacher(ctx context.Context, teacherID int64) ([]models.Course, error) {
	query := fmt.Sprintf(`SELECT %s FROM courses WHERE first_teacher_id = $1 OR second_teacher_id = $1 ORDER BY title`, courseColumns)
	var courses []models.Course
	if err := r.db.SelectContext(ctx, &courses, query, teacherID); err != nil {
		return nil, fmt.Errorf("list teacher courses: %w", err)
	}
	return courses, nil
}

// Create persists a new course and fills in the assigned id.
func (r *CourseRepository) Create(ctx context.Context, course *models.Course) error {
	const query = `INSERT INTO courses (title, programme, credits, semester, education_level, first_teacher_id, second_teacher_id)
        VALUES ($1, $2, $3, $4, $5, $6, $7)
        RETURNING id`
	row := r.db.QueryRowxContext(ctx, query,
		course.Title, course.Programme, course.Credits, course.Semester,
		course.EducationLevel, course.FirstTeacherID, course.SecondTeacherID,
	)
	if err := row.Scan(&course.ID); err != nil {
		return fmt.Errorf("create course: %w", err)
	}
	return nil
}

// Update replaces the mutable course fields.
func (r *CourseRepository) Update(ctx context.Context, course *models.Course) error {
	const query = `UPDATE courses SET title = $2, programme = $3, credits = $4, semester = $5,
        education_level = $6, first_teacher_id = $7, second_teacher_id = $8 WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query,
		course.ID, course.Title, course.Programme, course.Credits, course.Semester,
		course.EducationLevel, course.FirstTeacherID, course.SecondTeacherID,
	)
	if err != nil {
		return fmt.Errorf("update course: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update course result: %w", err)
	}
	if affected == 0 {
		return ErrNoRowsAffected
	}
	return nil
}

// Delete removes the course row, reporting whether it existed.
func (r *CourseRepository) Delete(ctx context.Context, id int64) (bool, error) {
	const query = `DELETE FROM courses WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return false, fmt.Errorf("delete course: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete course result: %w", err)
	}
	return affected > 0, nil
}
