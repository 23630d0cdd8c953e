package model

// Role is the caller role asserted by the identity provider.
type Role string

const (
	RoleStudent  Role = "student"
	RoleReviewer Role = "reviewer"
	RoleAdmin    Role = "admin"
)

// IsReviewer reports whether the role may read sessions it does not own.
func (r Role) IsReviewer() bool {
	return r == RoleReviewer || r == RoleAdmin
}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleStudent, RoleReviewer, RoleAdmin:
		return true
	}
	return false
}
