// Package sqlite implements the relational backend driver on SQLite.
//
// WHY SQLITE?
// SQLite is an embedded database — it lives inside the binary as a single
// file. No separate server to install or manage, which matters for a training
// app people run on their laptops.
//
// WHY modernc.org/sqlite INSTEAD OF github.com/mattn/go-sqlite3?
// mattn/go-sqlite3 uses CGo, which needs a C compiler and makes
// cross-compilation painful. modernc.org/sqlite is a pure Go translation of
// SQLite — works everywhere Go works.
//
// RECORD SHAPE:
// The users table stores flags_found and profile as serialized JSON text and
// timestamps as RFC3339 text. All encoding/decoding goes through the record
// package — nothing above this driver ever sees a raw row.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/rs/xid"

	// Side-effect import: registers the "sqlite" driver with database/sql.
	_ "modernc.org/sqlite"

	"github.com/rahat/vulnarena/internal/apperror"
	"github.com/rahat/vulnarena/internal/model"
	"github.com/rahat/vulnarena/internal/repository"
	"github.com/rahat/vulnarena/internal/repository/record"
)

// backendName identifies this driver in logs and fallback decisions.
const backendName = "relational"

// Driver is the relational half of the dual store.
//
// CONNECTION LIFECYCLE:
// New does not touch the database. The connection is opened lazily by
// EnsureConnected, which the dual-store coordinator calls before every
// operation. The mutex makes bring-up idempotent: concurrent cold starts
// open exactly one pool.
type Driver struct {
	path   string
	logger *slog.Logger

	mu   sync.Mutex
	conn *sql.DB
}

// compile-time check that *Driver implements repository.Driver
var _ repository.Driver = (*Driver)(nil)

// New creates an unconnected driver for the database file at path.
func New(path string, logger *slog.Logger) *Driver {
	return &Driver{path: path, logger: logger}
}

// Name implements repository.Driver.
func (d *Driver) Name() string { return backendName }

// EnsureConnected opens the connection pool, applies pragmas, and runs the
// schema migration. Repeated calls after the first success are no-ops.
//
// Every bring-up failure is classified as apperror.ErrUnavailable: whether
// the file is unopenable or the schema unwritable, the backend cannot serve
// and the coordinator should fall back.
func (d *Driver) EnsureConnected(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.conn != nil {
		return nil
	}

	conn, err := sql.Open("sqlite", d.path)
	if err != nil {
		return apperror.Unavailable(backendName, fmt.Errorf("opening database: %w", err))
	}

	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return apperror.Unavailable(backendName, fmt.Errorf("pinging database: %w", err))
	}

	// WAL mode allows concurrent reads while a write is in flight —
	// needed because every HTTP request hits this pool.
	if _, err := conn.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return apperror.Unavailable(backendName, fmt.Errorf("setting WAL mode: %w", err))
	}

	if err := migrate(ctx, conn); err != nil {
		conn.Close()
		return apperror.Unavailable(backendName, fmt.Errorf("running migrations: %w", err))
	}

	d.conn = conn
	d.logger.Info("relational backend connected", slog.String("path", d.path))
	return nil
}

// Close closes the connection pool. Safe to call on a never-connected driver.
func (d *Driver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.conn == nil {
		return nil
	}
	err := d.conn.Close()
	d.conn = nil
	return err
}

// db returns the live pool, or ErrUnavailable if EnsureConnected has not
// succeeded yet. Operations never connect implicitly — bring-up is the
// coordinator's call to make.
func (d *Driver) db() (*sql.DB, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.conn == nil {
		return nil, apperror.Unavailable(backendName, errors.New("not connected"))
	}
	return d.conn, nil
}

func migrate(ctx context.Context, conn *sql.DB) error {
	_, err := conn.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS users (
			id          TEXT PRIMARY KEY,
			username    TEXT NOT NULL UNIQUE,
			email       TEXT NOT NULL UNIQUE,
			password    TEXT NOT NULL,
			role        TEXT NOT NULL DEFAULT 'user',
			flags_found TEXT NOT NULL DEFAULT '[]',
			is_active   INTEGER NOT NULL DEFAULT 1,
			profile     TEXT NOT NULL DEFAULT '{}',
			created_at  TEXT NOT NULL,
			last_login  TEXT
		);
		CREATE INDEX IF NOT EXISTS idx_users_email ON users(email);
		CREATE INDEX IF NOT EXISTS idx_users_username ON users(username);
	`)
	if err != nil {
		return fmt.Errorf("creating users table: %w", err)
	}
	return nil
}

// fieldColumns maps the canonical lookup field names to column names.
// Restricting lookups to this map keeps arbitrary column names out of the
// SQL text.
var fieldColumns = map[string]string{
	repository.FieldID:       "id",
	repository.FieldUsername: "username",
	repository.FieldEmail:    "email",
}

const selectColumns = `id, username, email, password, role, flags_found, is_active, profile, created_at, last_login`

// Create inserts a new user row.
//
// If user.ID is empty this backend assigns its own xid. When the coordinator
// already adopted a canonical id from the document backend, that id is used
// verbatim so both stores address the same logical user.
func (d *Driver) Create(ctx context.Context, user *model.User) (string, error) {
	conn, err := d.db()
	if err != nil {
		return "", err
	}

	stored := *user
	if stored.ID == "" {
		stored.ID = xid.New().String()
	}

	row := record.RowFromUser(&stored, d.logger)
	_, err = conn.ExecContext(ctx,
		`INSERT INTO users (`+selectColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		row.ID,
		row.Username,
		row.Email,
		row.Password,
		row.Role,
		row.FlagsJSON,
		row.IsActive,
		row.ProfileJSON,
		row.CreatedAt,
		row.LastLogin,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return "", apperror.Conflict("user", stored.Username)
		}
		return "", fmt.Errorf("sqlite: inserting user %s: %w", stored.Username, err)
	}

	return stored.ID, nil
}

// FindByField implements the single-record lookup. Returns (nil, nil) on miss.
func (d *Driver) FindByField(ctx context.Context, field, value string) (*model.User, error) {
	conn, err := d.db()
	if err != nil {
		return nil, err
	}

	column, ok := fieldColumns[field]
	if !ok {
		return nil, fmt.Errorf("sqlite: unsupported lookup field %q", field)
	}

	var row record.Row
	err = conn.QueryRowContext(ctx,
		`SELECT `+selectColumns+` FROM users WHERE `+column+` = ?`, value,
	).Scan(
		&row.ID,
		&row.Username,
		&row.Email,
		&row.Password,
		&row.Role,
		&row.FlagsJSON,
		&row.IsActive,
		&row.ProfileJSON,
		&row.CreatedAt,
		&row.LastLogin,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // miss, not an error
		}
		return nil, fmt.Errorf("sqlite: finding user by %s: %w", field, err)
	}

	return row.User(d.logger), nil
}

// UpdateField sets one mutable field on an existing row. The serialized
// columns are re-encoded through the record package.
func (d *Driver) UpdateField(ctx context.Context, id, field string, value any) error {
	conn, err := d.db()
	if err != nil {
		return err
	}

	var column string
	var stored any

	switch field {
	case repository.FieldLastLogin:
		t, ok := value.(time.Time)
		if !ok {
			return fmt.Errorf("sqlite: last_login expects time.Time, got %T", value)
		}
		column, stored = "last_login", record.FormatTime(t)

	case repository.FieldFlags:
		flags, ok := value.([]string)
		if !ok {
			return fmt.Errorf("sqlite: flags_found expects []string, got %T", value)
		}
		u := model.User{ID: id, FlagsFound: flags}
		column, stored = "flags_found", record.RowFromUser(&u, d.logger).FlagsJSON

	case repository.FieldProfile:
		profile, ok := value.(map[string]any)
		if !ok {
			return fmt.Errorf("sqlite: profile expects map[string]any, got %T", value)
		}
		u := model.User{ID: id, Profile: profile}
		column, stored = "profile", record.RowFromUser(&u, d.logger).ProfileJSON

	default:
		return fmt.Errorf("sqlite: unsupported update field %q", field)
	}

	res, err := conn.ExecContext(ctx,
		`UPDATE users SET `+column+` = ? WHERE id = ?`, stored, id,
	)
	if err != nil {
		return fmt.Errorf("sqlite: updating %s for user %s: %w", field, id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return apperror.NotFound("user", id)
	}
	return nil
}

// Search matches term against username and email with LIKE. The term is a
// plain substring — SQLite has no native regex without an extension, and the
// aggregator treats each backend's match semantics as backend-native.
func (d *Driver) Search(ctx context.Context, term string) ([]model.User, error) {
	conn, err := d.db()
	if err != nil {
		return nil, err
	}

	pattern := "%" + term + "%"
	rows, err := conn.QueryContext(ctx,
		`SELECT `+selectColumns+` FROM users
		 WHERE username LIKE ? OR email LIKE ?
		 ORDER BY created_at`,
		pattern, pattern,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: searching users: %w", err)
	}
	defer rows.Close()

	var users []model.User
	for rows.Next() {
		var row record.Row
		if err := rows.Scan(
			&row.ID,
			&row.Username,
			&row.Email,
			&row.Password,
			&row.Role,
			&row.FlagsJSON,
			&row.IsActive,
			&row.ProfileJSON,
			&row.CreatedAt,
			&row.LastLogin,
		); err != nil {
			return nil, fmt.Errorf("sqlite: scanning search result: %w", err)
		}
		users = append(users, *row.User(d.logger))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating search results: %w", err)
	}

	return users, nil
}

// isUniqueViolation detects a UNIQUE constraint clash. modernc.org/sqlite
// does not export a typed error for this, so we match the stable message
// text SQLite itself produces.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
