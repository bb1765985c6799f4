package iam

import (
	"github.com/terraconstructs/authuser/internal/db/models"
)

// PublicPrincipal is the externally visible projection of a principal. It
// never carries the password hash.
type PublicPrincipal struct {
	ID       string   `json:"id"`
	Username string   `json:"username"`
	Roles    []string `json:"roles"`
}

// NewPublicPrincipal projects p with its resolved role names.
func NewPublicPrincipal(p *models.Principal, roles []models.Role) PublicPrincipal {
	names := make([]string, 0, len(roles))
	for _, role := range roles {
		names = append(names, role.Name)
	}
	return PublicPrincipal{ID: p.ID, Username: p.Username, Roles: names}
}

// filterDatum is the shape list filters are evaluated against.
func (p PublicPrincipal) filterDatum() map[string]any {
	return map[string]any{
		"id":       p.ID,
		"username": p.Username,
		"roles":    p.Roles,
	}
}

// PrincipalUpdate carries the fields a principal update may change. Nil
// fields are left untouched.
type PrincipalUpdate struct {
	Username *string `json:"username,omitempty"`
	Password *string `json:"password,omitempty"`
}
