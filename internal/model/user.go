// Package model defines the data structures used throughout the application.
package model

import "time"

// Roles a user account can hold. Role gates the admin-only routes
// (user search, content seeding) — everything else is open to any
// authenticated account, this being a training target.
const (
	RoleUser    = "user"
	RoleAdmin   = "admin"
	RoleService = "service"
)

// User is the canonical in-memory shape of a user account.
//
// The same logical user lives in TWO backends at once: a MongoDB document and
// a SQLite row. Each backend stores this data in its own native shape (see
// internal/repository/record) — this struct is what the rest of the app sees,
// regardless of which backend a particular read was served from.
//
// WHY ID string (not an ObjectID or int64)?
// The two backends are not required to agree on how they identify a user.
// The document store's identifier (a Mongo ObjectID hex) is adopted as
// canonical when it exists; when only the relational store holds the user,
// the coordinator falls back to a locally generated xid. An opaque string is
// the only type that can carry both.
type User struct {
	ID               string         `json:"id"`
	Username         string         `json:"username"`
	Email            string         `json:"email"`
	CredentialSecret string         `json:"-"` // bcrypt hash — never in JSON
	Role             string         `json:"role"`
	FlagsFound       []string       `json:"flagsFound"`
	IsActive         bool           `json:"isActive"`
	Profile          map[string]any `json:"profile,omitempty"`
	CreatedAt        time.Time      `json:"createdAt"`
	LastLogin        *time.Time     `json:"lastLogin,omitempty"` // nil until first login
}

// HasFlag reports whether the user has already completed the given flag.
// Flag ids are opaque strings owned by the vulnerability catalog.
func (u *User) HasFlag(flagID string) bool {
	for _, f := range u.FlagsFound {
		if f == flagID {
			return true
		}
	}
	return false
}
