package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/stefanovp/faculty-api/internal/models"
)

// EnrollmentRepository handles persistence of enrollments.
type EnrollmentRepository struct {
	db *sqlx.DB
}

// NewEnrollmentRepository constructs the repository.
func NewEnrollmentRepository(db *sqlx.DB) *EnrollmentRepository {
	return &EnrollmentRepository{db: db}
}

const enrollmentColumns = `id, course_id, student_id, semester, year, grade, project_url, seminar_file,
        exam_points, seminar_points, project_points, additional_points, finish_date, version`

const enrollmentDetailColumns = `e.id, e.course_id, e.student_id, e.semester, e.year, e.grade, e.project_url,
        e.seminar_file, e.exam_points, e.seminar_points, e.project_points, e.additional_points,
        e.finish_date, e.version,
        c.title AS course_title, c.first_teacher_id, c.second_teacher_id,
        s.first_name || ' ' || s.last_name AS student_full_name, s.student_code`

const enrollmentDetailJoins = `FROM enrollments e
JOIN courses c ON c.id = e.course_id
JOIN students s ON s.id = e.student_id`

// List returns enrollments filtered by the provided criteria.
func (r *EnrollmentRepository) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error) {
	var conditions []string
	var args []interface{}

	if filter.CourseID != 0 {
		conditions = append(conditions, fmt.Sprintf("e.course_id = $%d", len(args)+1))
		args = append(args, filter.CourseID)
	}
	if filter.StudentID != 0 {
		conditions = append(conditions, fmt.Sprintf("e.student_id = $%d", len(args)+1))
		args = append(args, filter.StudentID)
	}
	if filter.CourseTitle != "" {
		conditions = append(conditions, fmt.Sprintf("c.title ILIKE $%d", len(args)+1))
		args = append(args, "%"+filter.CourseTitle+"%")
	}
	if filter.StudentCode != "" {
		conditions = append(conditions, fmt.Sprintf("s.student_code ILIKE $%d", len(args)+1))
		args = append(args, "%"+filter.StudentCode+"%")
	}
	if filter.Year != 0 {
		conditions = append(conditions, fmt.Sprintf("e.year = $%d", len(args)+1))
		args = append(args, filter.Year)
	}

	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
	}

	allowedSorts := map[string]string{
		"course_title": "c.title",
		"student_code": "s.student_code",
		"year":         "e.year",
		"grade":        "e.grade",
	}
	orderBy := allowedSorts[filter.SortBy]
	if orderBy == "" {
		orderBy = "c.title"
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

	query := fmt.Sprintf(`SELECT %s
        %s%s ORDER BY %s %s LIMIT %d OFFSET %d`,
		enrollmentDetailColumns, enrollmentDetailJoins, clause, orderBy, order, size, offset)

	var enrollments []models.EnrollmentDetail
	if err := r.db.SelectContext(ctx, &enrollments, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list enrollments: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s%s", enrollmentDetailJoins, clause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count enrollments: %w", err)
	}
	return enrollments, total, nil
}

// FindByID returns an enrollment by its ID.
func (r *EnrollmentRepository) FindByID(ctx context.Context, id int64) (*models.Enrollment, error) {
	query := fmt.Sprintf(`SELECT %s FROM enrollments WHERE id = $1`, enrollmentColumns)
	var enrollment models.Enrollment
	if err := r.db.GetContext(ctx, &enrollment, query, id); err != nil {
		return nil, err
	}
	return &enrollment, nil
}

// FindDetailByID returns an enrollment with course and student context.
func (r *EnrollmentRepository) FindDetailByID(ctx context.Context, id int64) (*models.EnrollmentDetail, error) {
	query := fmt.Sprintf(`SELECT %s
        %s
        WHERE e.id = $1`, enrollmentDetailColumns, enrollmentDetailJoins)
	var detail models.EnrollmentDetail
	if err := r.db.GetContext(ctx, &detail, query, id); err != nil {
		return nil, err
	}
	return &detail, nil
}

// Exists checks whether an enrollment row is present.
func (r *EnrollmentRepository) Exists(ctx context.Context, id int64) (bool, error) {
	const query = `SELECT 1 FROM enrollments WHERE id = $1`
	var one int
	if err := r.db.GetContext(ctx, &one, query, id); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check enrollment: %w", err)
	}
	return true, nil
}

// ExistsForTerm checks whether the student already holds an enrollment in
// the course for the given semester and year.
func (r *EnrollmentRepository) ExistsForTerm(ctx context.Context, courseID, studentID int64, semester, year int) (bool, error) {
	const query = `SELECT 1 FROM enrollments WHERE course_id = $1 AND student_id = $2 AND semester = $3 AND year = $4 LIMIT 1`
	var one int
	if err := r.db.GetContext(ctx, &one, query, courseID, studentID, semester, year); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check enrollment term: %w", err)
	}
	return true, nil
}

// Create persists a new enrollment record and fills in the assigned id and
// initial version.
func (r *EnrollmentRepository) Create(ctx context.Context, enrollment *models.Enrollment) error {
	const query = `INSERT INTO enrollments (course_id, student_id, semester, year, grade, project_url, seminar_file,
        exam_points, seminar_points, project_points, additional_points, finish_date, version)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, 1)
        RETURNING id, version`
	row := r.db.QueryRowxContext(ctx, query,
		enrollment.CourseID, enrollment.StudentID, enrollment.Semester, enrollment.Year,
		enrollment.Grade, enrollment.ProjectURL, enrollment.SeminarFile,
		enrollment.ExamPoints, enrollment.SeminarPoints, enrollment.ProjectPoints,
		enrollment.AdditionalPoints, enrollment.FinishDate,
	)
	if err := row.Scan(&enrollment.ID, &enrollment.Version); err != nil {
		return fmt.Errorf("create enrollment: %w", err)
	}
	return nil
}

// UpdateVersioned commits the merged enrollment conditioned on the version
// token read at fetch time. The guard and the increment are a single
// statement, so no two successful writes can share a version for one row.
// Returns sql.ErrNoRows when no row matched (caller distinguishes a vanished
// row from a stale version).
func (r *EnrollmentRepository) UpdateVersioned(ctx context.Context, enrollment *models.Enrollment, expectedVersion int64) (int64, error) {
	const query = `UPDATE enrollments SET semester = $3, year = $4, grade = $5, project_url = $6, seminar_file = $7,
        exam_points = $8, seminar_points = $9, project_points = $10, additional_points = $11, finish_date = $12,
        version = version + 1
        WHERE id = $1 AND version = $2
        RETURNING version`
	var newVersion int64
	err := r.db.QueryRowxContext(ctx, query,
		enrollment.ID, expectedVersion,
		enrollment.Semester, enrollment.Year, enrollment.Grade,
		enrollment.ProjectURL, enrollment.SeminarFile,
		enrollment.ExamPoints, enrollment.SeminarPoints, enrollment.ProjectPoints,
		enrollment.AdditionalPoints, enrollment.FinishDate,
	).Scan(&newVersion)
	if err != nil {
		if err == sql.ErrNoRows {
			return 0, sql.ErrNoRows
		}
		return 0, fmt.Errorf("update enrollment: %w", err)
	}
	return newVersion, nil
}

// Delete removes the enrollment row, reporting whether it existed.
func (r *EnrollmentRepository) Delete(ctx context.Context, id int64) (bool, error) {
	const query = `DELETE FROM enrollments WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return false, fmt.Errorf("delete enrollment: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete enrollment result: %w", err)
	}
	return affected > 0, nil
}

// ListByCourse returns the course roster for a year.
func (r *EnrollmentRepository) ListByCourse(ctx context.Context, courseID int64, year int) ([]models.EnrollmentDetail, error) {
	query := fmt.Sprintf(`SELECT %s
        %s
        WHERE e.course_id = $1 AND e.year = $2
        ORDER BY s.student_code`, enrollmentDetailColumns, enrollmentDetailJoins)
	var enrollments []models.EnrollmentDetail
	if err := r.db.SelectContext(ctx, &enrollments, query, courseID, year); err != nil {
		return nil, fmt.Errorf("list course enrollments: %w", err)
	}
	return enrollments, nil
}

// ListByStudent returns all enrollments of a student for transcript views.
func (r *EnrollmentRepository) ListByStudent(ctx context.Context, studentID int64) ([]models.EnrollmentDetail, error) {
	query := fmt.Sprintf(`SELECT %s
        %s
        WHERE e.student_id = $1
        ORDER BY e.year, e.semester, c.title`, enrollmentDetailColumns, enrollmentDetailJoins)
	var enrollments []models.EnrollmentDetail
	if err := r.db.SelectContext(ctx, &enrollments, query, studentID); err != nil {
		return nil, fmt.Errorf("list student enrollments: %w", err)
	}
	return enrollments, nil
}
