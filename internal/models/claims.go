package models

import "github.com/golang-jwt/jwt/v4"

// MemberClaims are the JWT claims identifying a member. The subject is used
// when member_id is absent.
type MemberClaims struct {
	MemberID string `json:"member_id,omitempty"`
	Email    string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// Member returns the id of the authenticated member.
func (c *MemberClaims) Member() string {
	if c.MemberID != "" {
		return c.MemberID
	}
	return c.Subject
}
