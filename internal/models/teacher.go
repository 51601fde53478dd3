package models

import "time"

// Teacher represents an instructor record.
type Teacher struct {
	ID           int64     `db:"id" json:"id"`
	FirstName    string    `db:"first_name" json:"first_name"`
	LastName     string    `db:"last_name" json:"last_name"`
	Degree       string    `db:"degree" json:"degree"`
	AcademicRank string    `db:"academic_rank" json:"academic_rank"`
	OfficeNumber string    `db:"office_number" json:"office_number"`
	HireDate     time.Time `db:"hire_date" json:"hire_date"`
}

// FullName joins the name parts for display purposes.
func (t Teacher) FullName() string {
	return t.FirstName + " " + t.LastName
}

// TeacherFilter captures filtering options for listing teachers.
type TeacherFilter struct {
	AcademicRank string
	Degree       string
	Search       string
	Page         int
	PageSize     int
	SortBy       string
	SortOrder    string
}
