package models

import "time"

// Enrollment captures a student's registration to a course for a semester
// and year, together with the assessment fields the course staff maintain.
// Version is the optimistic-concurrency token: the store bumps it on every
// successful write and rejects commits presented with a stale value.
type Enrollment struct {
	ID               int64      `db:"id" json:"id"`
	CourseID         int64      `db:"course_id" json:"course_id"`
	StudentID        int64      `db:"student_id" json:"student_id"`
	Semester         int        `db:"semester" json:"semester"`
	Year             int        `db:"year" json:"year"`
	Grade            *int       `db:"grade" json:"grade,omitempty"`
	ProjectURL       *string    `db:"project_url" json:"project_url,omitempty"`
	SeminarFile      *string    `db:"seminar_file" json:"seminar_file,omitempty"`
	ExamPoints       *int       `db:"exam_points" json:"exam_points,omitempty"`
	SeminarPoints    *int       `db:"seminar_points" json:"seminar_points,omitempty"`
	ProjectPoints    *int       `db:"project_points" json:"project_points,omitempty"`
	AdditionalPoints *int       `db:"additional_points" json:"additional_points,omitempty"`
	FinishDate       *time.Time `db:"finish_date" json:"finish_date,omitempty"`
	Version          int64      `db:"version" json:"version"`
}

// EnrollmentDetail enriches Enrollment with course and student context,
// including the course's teacher refs used for ownership checks.
type EnrollmentDetail struct {
	Enrollment
	CourseTitle     string `db:"course_title" json:"course_title"`
	StudentFullName string `db:"student_full_name" json:"student_full_name"`
	StudentCode     string `db:"student_code" json:"student_code"`
	FirstTeacherID  *int64 `db:"first_teacher_id" json:"-"`
	SecondTeacherID *int64 `db:"second_teacher_id" json:"-"`
}

// TaughtBy reports whether the given teacher ref co-teaches the enrolled course.
func (e EnrollmentDetail) TaughtBy(teacherID int64) bool {
	if e.FirstTeacherID != nil && *e.FirstTeacherID == teacherID {
		return true
	}
	if e.SecondTeacherID != nil && *e.SecondTeacherID == teacherID {
		return true
	}
	return false
}

// EnrollmentFilter provides filters for listing enrollments.
type EnrollmentFilter struct {
	CourseID    int64
	StudentID   int64
	CourseTitle string
	StudentCode string
	Year        int
	Page        int
	PageSize    int
	SortBy      string
	SortOrder   string
}
