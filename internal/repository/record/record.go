// Package record converts between the canonical model.User and the two
// backend-native record shapes.
//
// WHY A CONVERTER PACKAGE?
// The document backend stores flags and profile as native BSON structures and
// timestamps as native dates. The relational backend stores flags and profile
// as serialized JSON text columns and timestamps as RFC3339 text. Neither
// native shape is allowed past the repository boundary — drivers decode into
// model.User on the way out and encode on the way in, both through this
// package. That keeps "what a user looks like" in exactly one place.
//
// CORRUPTION IS NOT FATAL:
// A user row whose flags_found column holds corrupt JSON must still be
// readable — the account's identity fields are intact and login must keep
// working. Malformed serialized fields therefore degrade to empty containers
// with a log line instead of failing the read.
package record

import (
	"database/sql"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/rahat/vulnarena/internal/model"
)

// Document is the native shape of a user in the MongoDB backend.
//
// The _id is a string, not a primitive.ObjectID: the dual-write coordinator
// sometimes passes a canonical id down that was minted elsewhere (an xid, or
// an ObjectID hex adopted from an earlier write), and a string _id accepts
// both. Mongo is perfectly happy indexing string _id values.
type Document struct {
	ID         string         `bson:"_id,omitempty"`
	Username   string         `bson:"username"`
	Email      string         `bson:"email"`
	Password   string         `bson:"password"`
	Role       string         `bson:"role"`
	FlagsFound []string       `bson:"flags_found"`
	IsActive   bool           `bson:"is_active"`
	Profile    map[string]any `bson:"profile,omitempty"`
	CreatedAt  time.Time      `bson:"created_at"`
	LastLogin  *time.Time     `bson:"last_login,omitempty"`
}

// Row is the native shape of a user in the SQLite backend. Flags and profile
// are serialized JSON text; timestamps are RFC3339 text.
type Row struct {
	ID          string
	Username    string
	Email       string
	Password    string
	Role        string
	FlagsJSON   string
	IsActive    bool
	ProfileJSON string
	CreatedAt   string
	LastLogin   sql.NullString
}

// NormalizeTime is the canonical timestamp form: UTC, whole seconds.
//
// The two backends disagree below this precision — SQLite stores whatever
// string we format, Mongo stores millisecond BSON datetimes in UTC — so the
// converter truncates both directions to keep round-trips stable.
func NormalizeTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Second)
}

// FormatTime renders a timestamp in the relational backend's text form.
func FormatTime(t time.Time) string {
	return NormalizeTime(t).Format(time.RFC3339)
}

// User converts a document into the canonical shape.
func (d Document) User() *model.User {
	u := &model.User{
		ID:               d.ID,
		Username:         d.Username,
		Email:            d.Email,
		CredentialSecret: d.Password,
		Role:             d.Role,
		FlagsFound:       d.FlagsFound,
		IsActive:         d.IsActive,
		Profile:          d.Profile,
		CreatedAt:        NormalizeTime(d.CreatedAt),
	}
	if u.FlagsFound == nil {
		u.FlagsFound = []string{}
	}
	if d.LastLogin != nil {
		t := NormalizeTime(*d.LastLogin)
		u.LastLogin = &t
	}
	return u
}

// FromUser converts the canonical shape into a document.
func FromUser(u *model.User) Document {
	d := Document{
		ID:         u.ID,
		Username:   u.Username,
		Email:      u.Email,
		Password:   u.CredentialSecret,
		Role:       u.Role,
		FlagsFound: u.FlagsFound,
		IsActive:   u.IsActive,
		Profile:    u.Profile,
		CreatedAt:  NormalizeTime(u.CreatedAt),
	}
	if d.FlagsFound == nil {
		d.FlagsFound = []string{}
	}
	if u.LastLogin != nil {
		t := NormalizeTime(*u.LastLogin)
		d.LastLogin = &t
	}
	return d
}

// User converts a relational row into the canonical shape.
//
// Decoding failures on the serialized columns (flags_found, profile) and on
// the timestamp texts are logged and degraded — flags become an empty set,
// profile an empty map, timestamps the zero time. The identity fields are
// returned untouched either way.
func (r Row) User(logger *slog.Logger) *model.User {
	u := &model.User{
		ID:               r.ID,
		Username:         r.Username,
		Email:            r.Email,
		CredentialSecret: r.Password,
		Role:             r.Role,
		IsActive:         r.IsActive,
		FlagsFound:       []string{},
		Profile:          nil,
	}

	if r.FlagsJSON != "" {
		if err := json.Unmarshal([]byte(r.FlagsJSON), &u.FlagsFound); err != nil {
			logger.Warn("corrupt flags_found column, treating as empty",
				slog.String("userID", r.ID),
				slog.String("error", err.Error()),
			)
			u.FlagsFound = []string{}
		}
	}

	if r.ProfileJSON != "" {
		if err := json.Unmarshal([]byte(r.ProfileJSON), &u.Profile); err != nil {
			logger.Warn("corrupt profile column, treating as empty",
				slog.String("userID", r.ID),
				slog.String("error", err.Error()),
			)
			u.Profile = nil
		}
	}

	if r.CreatedAt != "" {
		t, err := time.Parse(time.RFC3339, r.CreatedAt)
		if err != nil {
			logger.Warn("corrupt created_at column, treating as zero",
				slog.String("userID", r.ID),
				slog.String("error", err.Error()),
			)
		} else {
			u.CreatedAt = NormalizeTime(t)
		}
	}

	if r.LastLogin.Valid && r.LastLogin.String != "" {
		t, err := time.Parse(time.RFC3339, r.LastLogin.String)
		if err != nil {
			logger.Warn("corrupt last_login column, treating as never",
				slog.String("userID", r.ID),
				slog.String("error", err.Error()),
			)
		} else {
			norm := NormalizeTime(t)
			u.LastLogin = &norm
		}
	}

	return u
}

// RowFromUser converts the canonical shape into a relational row.
//
// Marshaling []string and map[string]any cannot fail for the value types the
// app stores (strings, numbers, bools, nested maps), so encode errors are
// logged and the column falls back to its empty container — mirroring the
// decode direction.
func RowFromUser(u *model.User, logger *slog.Logger) Row {
	r := Row{
		ID:          u.ID,
		Username:    u.Username,
		Email:       u.Email,
		Password:    u.CredentialSecret,
		Role:        u.Role,
		IsActive:    u.IsActive,
		FlagsJSON:   "[]",
		ProfileJSON: "{}",
		CreatedAt:   FormatTime(u.CreatedAt),
	}

	if b, err := json.Marshal(flagsOrEmpty(u.FlagsFound)); err != nil {
		logger.Warn("encoding flags_found, storing empty",
			slog.String("userID", u.ID),
			slog.String("error", err.Error()),
		)
	} else {
		r.FlagsJSON = string(b)
	}

	if u.Profile != nil {
		if b, err := json.Marshal(u.Profile); err != nil {
			logger.Warn("encoding profile, storing empty",
				slog.String("userID", u.ID),
				slog.String("error", err.Error()),
			)
		} else {
			r.ProfileJSON = string(b)
		}
	}

	if u.LastLogin != nil {
		r.LastLogin = sql.NullString{String: FormatTime(*u.LastLogin), Valid: true}
	}

	return r
}

func flagsOrEmpty(flags []string) []string {
	if flags == nil {
		return []string{}
	}
	return flags
}
