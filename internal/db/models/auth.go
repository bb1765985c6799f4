package models

import (
	"time"

	"github.com/uptrace/bun"
)

// Principal is an authenticatable user. PasswordHash always holds a bcrypt
// hash once the row has been persisted.
type Principal struct {
	bun.BaseModel `bun:"table:principals,alias:p"`

	ID           string    `bun:"id,pk,type:uuid" json:"id"`
	Username     string    `bun:"username,notnull,unique" json:"username"`
	PasswordHash string    `bun:"password_hash,notnull" json:"-"`
	CreatedAt    time.Time `bun:"created_at,notnull,default:current_timestamp" json:"created_at"`
	UpdatedAt    time.Time `bun:"updated_at,notnull,default:current_timestamp" json:"updated_at"`
}

// Role is a named grouping of principals.
type Role struct {
	bun.BaseModel `bun:"table:roles,alias:r"`

	ID        string    `bun:"id,pk,type:uuid" json:"id"`
	Name      string    `bun:"name,notnull,unique" json:"name"`
	CreatedAt time.Time `bun:"created_at,notnull,default:current_timestamp" json:"created_at"`
	UpdatedAt time.Time `bun:"updated_at,notnull,default:current_timestamp" json:"updated_at"`
}

// PrincipalRole is the pivot between principals and roles. The pair
// (principal_id, role_id) is unique.
type PrincipalRole struct {
	bun.BaseModel `bun:"table:principal_roles,alias:pr"`

	ID          string    `bun:"id,pk,type:uuid" json:"id"`
	PrincipalID string    `bun:"principal_id,notnull,type:uuid" json:"principal_id"` // FK to principals(id)
	RoleID      string    `bun:"role_id,notnull,type:uuid" json:"role_id"`           // FK to roles(id)
	AssignedAt  time.Time `bun:"assigned_at,notnull,default:current_timestamp" json:"assigned_at"`
}

// Token is a persisted bearer token. Only the SHA256 hash of the token
// value is stored.
type Token struct {
	bun.BaseModel `bun:"table:tokens,alias:tok"`

	ID          string    `bun:"id,pk,type:uuid"`
	PrincipalID string    `bun:"principal_id,notnull,type:uuid"` // FK to principals(id)
	TokenHash   string    `bun:"token_hash,notnull,unique"`
	ExpiresAt   time.Time `bun:"expires_at,notnull"`
	CreatedAt   time.Time `bun:"created_at,notnull,default:current_timestamp"`
}

// Session tracks a cookie session when the bun session store is in use.
type Session struct {
	bun.BaseModel `bun:"table:sessions,alias:sess"`

	ID          string    `bun:"id,pk,type:uuid"`
	PrincipalID string    `bun:"principal_id,notnull,type:uuid"` // FK to principals(id)
	TokenHash   string    `bun:"token_hash,notnull,unique"`      // SHA256 hash of the cookie value
	ExpiresAt   time.Time `bun:"expires_at,notnull"`
	CreatedAt   time.Time `bun:"created_at,notnull,default:current_timestamp"`
}
