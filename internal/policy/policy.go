// Package policy decides, per caller identity and per enrollment record,
// which operations are allowed and which fields may be written. It is a
// pure lookup: role picks the maximum writable field set, ownership is a
// separate boolean gate, and nothing here touches persistence.
package policy

import "github.com/stefanovp/faculty-api/internal/models"

// Operation enumerates the enrollment workflow operations.
type Operation string

const (
	OpCreate Operation = "create"
	OpRead   Operation = "read"
	OpUpdate Operation = "update"
	OpDelete Operation = "delete"
)

// Field identifies a writable enrollment field. The id, course and student
// refs are deliberately absent: re-pointing an enrollment is not supported
// for any role.
type Field string

const (
	FieldSemester         Field = "semester"
	FieldYear             Field = "year"
	FieldGrade            Field = "grade"
	FieldExamPoints       Field = "exam_points"
	FieldSeminarPoints    Field = "seminar_points"
	FieldProjectPoints    Field = "project_points"
	FieldAdditionalPoints Field = "additional_points"
	FieldProjectURL       Field = "project_url"
	FieldSeminarFile      Field = "seminar_file"
	FieldFinishDate       Field = "finish_date"
)

// FieldSet is a set of writable fields.
type FieldSet map[Field]struct{}

// Has reports whether the field is in the set.
func (s FieldSet) Has(f Field) bool {
	_, ok := s[f]
	return ok
}

func newFieldSet(fields ...Field) FieldSet {
	s := make(FieldSet, len(fields))
	for _, f := range fields {
		s[f] = struct{}{}
	}
	return s
}

// writableByRole is the authorization surface for updates: each role maps
// to its maximum writable field set, independent of request content.
var writableByRole = map[models.UserRole]FieldSet{
	models.RoleAdmin: newFieldSet(
		FieldSemester, FieldYear, FieldGrade,
		FieldExamPoints, FieldSeminarPoints, FieldProjectPoints, FieldAdditionalPoints,
		FieldProjectURL, FieldSeminarFile, FieldFinishDate,
	),
	models.RoleTeacher: newFieldSet(
		FieldGrade,
		FieldExamPoints, FieldSeminarPoints, FieldProjectPoints, FieldAdditionalPoints,
		FieldFinishDate,
	),
	models.RoleStudent: newFieldSet(
		FieldProjectURL, FieldSeminarFile,
	),
}

// Decision is the outcome of an authorization check. Writable is populated
// only for allowed updates.
type Decision struct {
	Allowed  bool
	Writable FieldSet
}

var denied = Decision{}

// Owns reports whether the identity owns the enrollment: a teacher owns it
// when co-teaching the enrolled course, a student when the enrollment is
// their own. Admin ownership is unconditional.
func Owns(ident models.Identity, enr *models.EnrollmentDetail) bool {
	if enr == nil {
		return false
	}
	switch ident.Role {
	case models.RoleAdmin:
		return true
	case models.RoleTeacher:
		return ident.TeacherID != nil && enr.TaughtBy(*ident.TeacherID)
	case models.RoleStudent:
		return ident.StudentID != nil && *ident.StudentID == enr.StudentID
	default:
		return false
	}
}

// OwnsCourse reports whether the identity may act on the course roster.
func OwnsCourse(ident models.Identity, course *models.Course) bool {
	if course == nil {
		return false
	}
	switch ident.Role {
	case models.RoleAdmin:
		return true
	case models.RoleTeacher:
		return ident.TeacherID != nil && course.TaughtBy(*ident.TeacherID)
	default:
		return false
	}
}

// Authorize maps (identity, enrollment, operation) to a decision. For
// OpCreate the enrollment may be nil since the record does not exist yet.
func Authorize(ident models.Identity, enr *models.EnrollmentDetail, op Operation) Decision {
	if ident.IsZero() {
		return denied
	}

	switch op {
	case OpCreate, OpDelete:
		if ident.Role == models.RoleAdmin {
			return Decision{Allowed: true}
		}
		return denied
	case OpRead:
		if Owns(ident, enr) {
			return Decision{Allowed: true}
		}
		return denied
	case OpUpdate:
		if !Owns(ident, enr) {
			return denied
		}
		writable, ok := writableByRole[ident.Role]
		if !ok {
			return denied
		}
		return Decision{Allowed: true, Writable: writable}
	default:
		return denied
	}
}
