// Package repository defines the storage contracts for user accounts.
//
// TWO LEVELS OF CONTRACT:
// This app keeps every user in two independent backends at once — a MongoDB
// document collection and a SQLite table. That gives us two interfaces:
//
//   - Driver:         the capability set ONE backend must provide
//     (implemented by repository/mongo and repository/sqlite)
//   - UserRepository: the single logical store the rest of the app talks to
//     (implemented by repository/dualstore, which coordinates two Drivers)
//
// Services and handlers only ever see UserRepository. Which backend actually
// served a read, and whether both writes landed, is the dualstore package's
// business alone.
package repository

import (
	"context"

	"github.com/rahat/vulnarena/internal/model"
)

// Canonical field names accepted by Driver.FindByField and Driver.UpdateField.
// Each driver maps these to its native names ("id" → "_id" in Mongo, column
// names in SQLite). Anything else is rejected as a query error.
const (
	FieldID        = "id"
	FieldUsername  = "username"
	FieldEmail     = "email"
	FieldLastLogin = "last_login"
	FieldFlags     = "flags_found"
	FieldProfile   = "profile"
)

// Driver is the uniform capability set each backend adapter implements.
//
// MISS IS NOT AN ERROR:
// FindByField returns (nil, nil) when no record matches. Absence is a valid
// outcome the read resolver branches on — it is never modeled as an error,
// so fallback logic never has to catch-and-continue.
//
// ERROR TAXONOMY:
// Failures are classified through the apperror sentinels:
//   - apperror.ErrUnavailable — backend unreachable (triggers fallback)
//   - apperror.ErrConflict    — unique key clash (surfaced, not retried)
//   - anything else           — driver/query-level failure, wrapped with context
type Driver interface {
	// Name identifies the backend in logs and error messages
	// ("document", "relational").
	Name() string

	// EnsureConnected brings the backend connection up. It is idempotent:
	// after the first successful call, repeated calls are no-ops and must
	// not open additional connections. The coordinator calls this before
	// every operation.
	EnsureConnected(ctx context.Context) error

	// Create stores a new user and returns the identifier the backend
	// assigned. If user.ID is already set (the coordinator passing down a
	// canonical id), the backend must store the record under that id
	// instead of assigning its own.
	Create(ctx context.Context, user *model.User) (string, error)

	// FindByField looks a user up by one of FieldID/FieldUsername/FieldEmail.
	// Returns (nil, nil) when no record matches.
	FindByField(ctx context.Context, field, value string) (*model.User, error)

	// UpdateField sets a single field on an existing record. The value's
	// concrete type depends on the field: time.Time for FieldLastLogin,
	// []string for FieldFlags, map[string]any for FieldProfile.
	UpdateField(ctx context.Context, id, field string, value any) error

	// Search runs the backend's native pattern match of term against
	// username and email and returns all matching users.
	Search(ctx context.Context, term string) ([]model.User, error)
}

// CreateUserInput carries the caller-supplied attributes for a new account.
// Role and Profile are optional; the coordinator fills in the defaults.
type CreateUserInput struct {
	Username         string
	Email            string
	CredentialSecret string
	Role             string
	Profile          map[string]any
}

// UserRepository is the logical user store consumed by the registration,
// login, profile, and flag-tracking flows.
//
// Reads follow primary-first fallback: when both backends hold a record for
// the same key, the primary's copy is always the one returned. Writes are
// best-effort dual-writes: a failure in one backend is logged and tolerated,
// and only a failure in BOTH is surfaced to the caller.
type UserRepository interface {
	// Initialize brings both backend connections up. Idempotent — safe to
	// call on every cold start. It fails only when neither backend could
	// be reached.
	Initialize(ctx context.Context) error

	// CreateUser attempts creation in both backends and returns the
	// canonical record. Fails with apperror.ErrCreateFailed only when
	// both backends rejected the write.
	CreateUser(ctx context.Context, input CreateUserInput) (*model.User, error)

	// Find* return (nil, nil) when no backend holds a matching record.
	FindUserByID(ctx context.Context, id string) (*model.User, error)
	FindUserByEmail(ctx context.Context, email string) (*model.User, error)
	FindUserByUsername(ctx context.Context, username string) (*model.User, error)

	// UpdateLastLogin stamps the login time; RecordLogout stamps a
	// profile sub-field. Both are best-effort dual updates.
	UpdateLastLogin(ctx context.Context, id string) error
	RecordLogout(ctx context.Context, id string) error

	// AddFlag appends flagID to the user's completed flags if absent and
	// writes the new set to both backends. Returns the updated user, or
	// (nil, nil) if no backend knows the id.
	AddFlag(ctx context.Context, id, flagID string) (*model.User, error)

	// SearchUsers runs the primary's native search, falling back to the
	// secondary only when the primary is unreachable. Results are not
	// merged across backends.
	SearchUsers(ctx context.Context, term string) ([]model.User, error)
}
