package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/stefanovp/faculty-api/internal/models"
)

// TeacherRepository handles persistence of teachers.
type TeacherRepository struct {
	db *sqlx.DB
}

// NewTeacherRepository constructs the repository.
func NewTeacherRepository(db *sqlx.DB) *TeacherRepository {
	return &TeacherRepository{db: db}
}

const teacherColumns = `id, first_name, last_name, degree, academic_rank, office_number, hire_date`

// List returns teachers filtered by academic rank, degree and name search.
func (r *TeacherRepository) List(ctx context.Context, filter models.TeacherFilter) ([]models.Teacher, int, error) {
	var conditions []string
	var args []interface{}

	if filter.AcademicRank != "" {
		conditions = append(conditions, fmt.Sprintf("academic_rank = $%d", len(args)+1))
		args = append(args, filter.AcademicRank)
	}
	if filter.Degree != "" {
		conditions = append(conditions, fmt.Sprintf("degree = $%d", len(args)+1))
		args = append(args, filter.Degree)
	}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("first_name || ' ' || last_name ILIKE $%d", len(args)+1))
		args = append(args, "%"+filter.Search+"%")
	}

	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
	}

	allowedSorts := map[string]string{
		"last_name":     "last_name",
		"academic_rank": "academic_rank",
		"hire_date":     "hire_date",
	}
	orderBy := allowedSorts[filter.SortBy]
	if orderBy == "" {
		orderBy = "last_name"
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

	query := fmt.Sprintf(`SELECT %s FROM teachers%s ORDER BY %s %s LIMIT %d OFFSET %d`,
		teacherColumns, clause, orderBy, order, size, offset)

	var teachers []models.Teacher
	if err := r.db.SelectContext(ctx, &teachers, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list teachers: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM teachers%s", clause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count teachers: %w", err)
	}
	return teachers, total, nil
}

// FindByID returns a teacher by its ID.
func (r *TeacherRepository) FindByID(ctx context.Context, id int64) (*models.Teacher, error) {
	query := fmt.Sprintf(`SELECT %s FROM teachers WHERE id = $1`, teacherColumns)
	var teacher models.Teacher
	if err := r.db.GetContext(ctx, &teacher, query, id); err != nil {
		return nil, err
	}
	return &teacher, nil
}

// Create persists a new teacher and fills in the assigned id.
func (r *TeacherRepository) Create(ctx context.Context, teacher *models.Teacher) error {
	const query = `INSERT INTO teachers (first_name, last_name, degree, academic_rank, office_number, hire_date)
        VALUES ($1, $2, $3, $4, $5, $6)
        RETURNING id`
	row := r.db.QueryRowxContext(ctx, query,
		teacher.FirstName, teacher.LastName, teacher.Degree,
		teacher.AcademicRank, teacher.OfficeNumber, teacher.HireDate,
	)
	if err := row.Scan(&teacher.ID); err != nil {
		return fmt.Errorf("create teacher: %w", err)
	}
	return nil
}

// Update replaces the mutable teacher fields.
func (r *TeacherRepository) Update(ctx context.Context, teacher *models.Teacher) error {
	const query = `UPDATE teachers SET first_name = $2, last_name = $3, degree = $4,
        academic_rank = $5, office_number = $6, hire_date = $7 WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query,
		teacher.ID, teacher.FirstName, teacher.LastName, teacher.Degree,
		teacher.AcademicRank, teacher.OfficeNumber, teacher.HireDate,
	)
	if err != nil {
		return fmt.Errorf("update teacher: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update teacher result: %w", err)
	}
	if affected == 0 {
		return ErrNoRowsAffected
	}
	return nil
}

// Delete removes the teacher row, reporting whether it existed.
func (r *TeacherRepository) Delete(ctx context.Context, id int64) (bool, error) {
	const query = `DELETE FROM teachers WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return false, fmt.Errorf("delete teacher: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete teacher result: %w", err)
	}
	return affected > 0, nil
}
