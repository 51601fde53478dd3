package models

import "time"

// Student represents a learner registered at the faculty. StudentCode is
// the external-facing index number, distinct from the surrogate id.
type Student struct {
	ID           int64     `db:"id" json:"id"`
	StudentCode  string    `db:"student_code" json:"student_code"`
	FirstName    string    `db:"first_name" json:"first_name"`
	LastName     string    `db:"last_name" json:"last_name"`
	EnrolledDate time.Time `db:"enrolled_date" json:"enrolled_date"`
}

// FullName joins the name parts for display purposes.
func (s Student) FullName() string {
	return s.FirstName + " " + s.LastName
}

// StudentFilter encapsulates allowed search parameters for listing students.
type StudentFilter struct {
	Search    string
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}
