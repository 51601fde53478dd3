package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/stefanovp/faculty-api/internal/models"
)

// StudentRepository handles persistence of students.
type StudentRepository struct {
	db *sqlx.DB
}

// NewStudentRepository constructs the repository.
func NewStudentRepository(db *sqlx.DB) *StudentRepository {
	return &StudentRepository{db: db}
}

const studentColumns = `id, student_code, first_name, last_name, enrolled_date`

// List returns students filtered by the provided criteria.
func (r *StudentRepository) List(ctx context.Context, filter models.StudentFilter) ([]models.Student, int, error) {
	var conditions []string
	var args []interface{}

	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(student_code ILIKE $%d OR first_name || ' ' || last_name ILIKE $%d)", len(args)+1, len(args)+1))
		args = append(args, "%"+filter.Search+"%")
	}

	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
	}

	allowedSorts := map[string]string{
		"student_code":  "student_code",
		"last_name":     "last_name",
		"enrolled_date": "enrolled_date",
	}
	orderBy := allowedSorts[filter.SortBy]
	if orderBy == "" {
		orderBy = "student_code"
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

	query := fmt.Sprintf(`SELECT %s FROM students%s ORDER BY %s %s LIMIT %d OFFSET %d`,
		studentColumns, clause, orderBy, order, size, offset)

	var students []models.Student
	if err := r.db.SelectContext(ctx, &students, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list students: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM students%s", clause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count students: %w", err)
	}
	return students, total, nil
}

// FindByID returns a student by its ID.
func (r *StudentRepository) FindByID(ctx context.Context, id int64) (*models.Student, error) {
	query := fmt.Sprintf(`SELECT %s FROM students WHERE id = $1`, studentColumns)
	var student models.Student
	if err := r.db.GetContext(ctx, &student, query, id); err != nil {
		return nil, err
	}
	return &student, nil
}

// Create persists a new student and fills in the assigned id.
func (r *StudentRepository) Create(ctx context.Context, student *models.Student) error {
	const query = `INSERT INTO students (student_code, first_name, last_name, enrolled_date)
        VALUES ($1, $2, $3, $4)
        RETURNING id`
	row := r.db.QueryRowxContext(ctx, query,
		student.StudentCode, student.FirstName, student.LastName, student.EnrolledDate,
	)
	if err := row.Scan(&student.ID); err != nil {
		return fmt.Errorf("create student: %w", err)
	}
	return nil
}

// Update replaces the mutable student fields.
func (r *StudentRepository) Update(ctx context.Context, student *models.Student) error {
	const query = `UPDATE students SET student_code = $2, first_name = $3, last_name = $4, enrolled_date = $5 WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query,
		student.ID, student.StudentCode, student.FirstName, student.LastName, student.EnrolledDate,
	)
	if err != nil {
		return fmt.Errorf("update student: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update student result: %w", err)
	}
	if affected == 0 {
		return ErrNoRowsAffected
	}
	return nil
}

// Delete removes the student row, reporting whether it existed.
func (r *StudentRepository) Delete(ctx context.Context, id int64) (bool, error) {
	const query = `DELETE FROM students WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return false, fmt.Errorf("delete student: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete student result: %w", err)
	}
	return affected > 0, nil
}
