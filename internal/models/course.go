package models

// Course represents a taught course. A course is owned by up to two
// teachers; the pair is read-only from the enrollment workflow's view.
type Course struct {
	ID              int64  `db:"id" json:"id"`
	Title           string `db:"title" json:"title"`
	Programme       string `db:"programme" json:"programme"`
	Credits         int    `db:"credits" json:"credits"`
	Semester        int    `db:"semester" json:"semester"`
	EducationLevel  string `db:"education_level" json:"education_level"`
	FirstTeacherID  *int64 `db:"first_teacher_id" json:"first_teacher_id,omitempty"`
	SecondTeacherID *int64 `db:"second_teacher_id" json:"second_teacher_id,omitempty"`
}

// TaughtBy reports whether the given teacher ref co-teaches the course.
func (c Course) TaughtBy(teacherID int64) bool {
	if c.FirstTeacherID != nil && *c.FirstTeacherID == teacherID {
		return true
	}
	if c.SecondTeacherID != nil && *c.SecondTeacherID == teacherID {
		return true
	}
	return false
}

// CourseFilter captures filtering options for the course catalog.
type CourseFilter struct {
	Programme string
	TeacherID int64
	Search    string
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}
