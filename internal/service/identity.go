package service

import "github.com/stemsi/exstem-cbt/internal/model"

// Identity is the verified caller, as asserted by the identity provider.
// Session ownership is always taken from here, never from request input.
type Identity struct {
	UserID int
	Role   model.Role
}

func (i Identity) owns(s *model.Session) bool {
	return i.UserID == s.OwnerID
}

// canRead reports whether the caller may view a session and its results.
func (i Identity) canRead(s *model.Session) bool {
	return i.owns(s) || i.Role.IsReviewer()
}
