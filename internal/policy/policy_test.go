package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stefanovp/faculty-api/internal/models"
)

func int64Ptr(v int64) *int64 { return &v }

func sampleDetail() *models.EnrollmentDetail {
	return &models.EnrollmentDetail{
		Enrollment: models.Enrollment{
			ID:        10,
			CourseID:  3,
			StudentID: 7,
			Semester:  2,
			Year:      2024,
			Version:   1,
		},
		CourseTitle:     "Operating Systems",
		StudentCode:     "161522",
		FirstTeacherID:  int64Ptr(4),
		SecondTeacherID: int64Ptr(5),
	}
}

func TestAuthorizeCreateAndDeleteAdminOnly(t *testing.T) {
	enr := sampleDetail()
	admin := models.Identity{UserID: "u1", Role: models.RoleAdmin}
	teacher := models.Identity{UserID: "u2", Role: models.RoleTeacher, TeacherID: int64Ptr(4)}
	student := models.Identity{UserID: "u3", Role: models.RoleStudent, StudentID: int64Ptr(7)}

	for _, op := range []Operation{OpCreate, OpDelete} {
		assert.True(t, Authorize(admin, enr, op).Allowed, "admin %s", op)
		assert.False(t, Authorize(teacher, enr, op).Allowed, "teacher %s", op)
		assert.False(t, Authorize(student, enr, op).Allowed, "student %s", op)
	}

	// Create has no target record yet.
	assert.True(t, Authorize(admin, nil, OpCreate).Allowed)
	assert.False(t, Authorize(student, nil, OpCreate).Allowed)
}

func TestAuthorizeReadOwnership(t *testing.T) {
	enr := sampleDetail()

	cases := []struct {
		name  string
		ident models.Identity
		want  bool
	}{
		{"admin", models.Identity{Role: models.RoleAdmin}, true},
		{"first teacher", models.Identity{Role: models.RoleTeacher, TeacherID: int64Ptr(4)}, true},
		{"second teacher", models.Identity{Role: models.RoleTeacher, TeacherID: int64Ptr(5)}, true},
		{"other teacher", models.Identity{Role: models.RoleTeacher, TeacherID: int64Ptr(9)}, false},
		{"teacher without ref", models.Identity{Role: models.RoleTeacher}, false},
		{"owning student", models.Identity{Role: models.RoleStudent, StudentID: int64Ptr(7)}, true},
		{"other student", models.Identity{Role: models.RoleStudent, StudentID: int64Ptr(8)}, false},
		{"unauthenticated", models.Identity{}, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Authorize(tc.ident, enr, OpRead).Allowed)
		})
	}
}

func TestAuthorizeUpdateWritableSets(t *testing.T) {
	enr := sampleDetail()

	t.Run("admin writes everything except refs", func(t *testing.T) {
		dec := Authorize(models.Identity{Role: models.RoleAdmin}, enr, OpUpdate)
		require.True(t, dec.Allowed)
		for _, f := range []Field{
			FieldSemester, FieldYear, FieldGrade,
			FieldExamPoints, FieldSeminarPoints, FieldProjectPoints, FieldAdditionalPoints,
			FieldProjectURL, FieldSeminarFile, FieldFinishDate,
		} {
			assert.True(t, dec.Writable.Has(f), "admin should write %s", f)
		}
	})

	t.Run("owning teacher writes grade and points only", func(t *testing.T) {
		dec := Authorize(models.Identity{Role: models.RoleTeacher, TeacherID: int64Ptr(5)}, enr, OpUpdate)
		require.True(t, dec.Allowed)
		assert.True(t, dec.Writable.Has(FieldGrade))
		assert.True(t, dec.Writable.Has(FieldExamPoints))
		assert.True(t, dec.Writable.Has(FieldSeminarPoints))
		assert.True(t, dec.Writable.Has(FieldProjectPoints))
		assert.True(t, dec.Writable.Has(FieldAdditionalPoints))
		assert.True(t, dec.Writable.Has(FieldFinishDate))
		assert.False(t, dec.Writable.Has(FieldProjectURL))
		assert.False(t, dec.Writable.Has(FieldSeminarFile))
		assert.False(t, dec.Writable.Has(FieldSemester))
		assert.False(t, dec.Writable.Has(FieldYear))
	})

	t.Run("owning student writes self-service fields only", func(t *testing.T) {
		dec := Authorize(models.Identity{Role: models.RoleStudent, StudentID: int64Ptr(7)}, enr, OpUpdate)
		require.True(t, dec.Allowed)
		assert.True(t, dec.Writable.Has(FieldProjectURL))
		assert.True(t, dec.Writable.Has(FieldSeminarFile))
		assert.False(t, dec.Writable.Has(FieldGrade))
		assert.False(t, dec.Writable.Has(FieldExamPoints))
		assert.False(t, dec.Writable.Has(FieldFinishDate))
	})

	t.Run("non-owner denied entirely", func(t *testing.T) {
		dec := Authorize(models.Identity{Role: models.RoleTeacher, TeacherID: int64Ptr(9)}, enr, OpUpdate)
		assert.False(t, dec.Allowed)
		assert.Empty(t, dec.Writable)

		dec = Authorize(models.Identity{Role: models.RoleStudent, StudentID: int64Ptr(99)}, enr, OpUpdate)
		assert.False(t, dec.Allowed)
	})
}

func TestOwnsCourse(t *testing.T) {
	course := &models.Course{ID: 3, FirstTeacherID: int64Ptr(4)}

	assert.True(t, OwnsCourse(models.Identity{Role: models.RoleAdmin}, course))
	assert.True(t, OwnsCourse(models.Identity{Role: models.RoleTeacher, TeacherID: int64Ptr(4)}, course))
	assert.False(t, OwnsCourse(models.Identity{Role: models.RoleTeacher, TeacherID: int64Ptr(5)}, course))
	assert.False(t, OwnsCourse(models.Identity{Role: models.RoleStudent, StudentID: int64Ptr(7)}, course))
	assert.False(t, OwnsCourse(models.Identity{Role: models.RoleAdmin}, nil))
}
