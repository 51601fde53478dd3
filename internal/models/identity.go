package models

// Identity is the transient per-request caller identity resolved from the
// access token. Ownership of domain records is established by comparing
// TeacherID/StudentID against the refs on a course or enrollment, never by
// matching names.
type Identity struct {
	UserID    string
	Role      UserRole
	TeacherID *int64
	StudentID *int64
}

// IsZero reports whether the identity is unauthenticated. All core
// operations must deny a zero identity.
func (i Identity) IsZero() bool {
	return i.Role == ""
}
