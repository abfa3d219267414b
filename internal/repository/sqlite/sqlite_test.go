package sqlite

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/rahat/vulnarena/internal/apperror"
	"github.com/rahat/vulnarena/internal/model"
	"github.com/rahat/vulnarena/internal/repository"
	"github.com/rahat/vulnarena/internal/repository/record"
)

// newTestDriver returns a connected driver backed by a throwaway database
// file. A file (not ":memory:") because database/sql may open several pool
// connections, and each in-memory connection would see its own empty DB.
func newTestDriver(t *testing.T) *Driver {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	d := New(filepath.Join(t.TempDir(), "test.db"), logger)
	if err := d.EnsureConnected(context.Background()); err != nil {
		t.Fatalf("EnsureConnected() error = %v", err)
	}
	t.Cleanup(func() { d.Close() })
	return d
}

// createTestUser inserts a user and fails the test on error.
func createTestUser(t *testing.T, d *Driver, username, email string) *model.User {
	t.Helper()

	user := &model.User{
		Username:         username,
		Email:            email,
		CredentialSecret: "$2a$04$testhash",
		Role:             model.RoleUser,
		FlagsFound:       []string{},
		IsActive:         true,
		CreatedAt:        record.NormalizeTime(time.Now()),
	}
	id, err := d.Create(context.Background(), user)
	if err != nil {
		t.Fatalf("failed to create test user: %v", err)
	}
	user.ID = id
	return user
}

func TestEnsureConnectedIsIdempotent(t *testing.T) {
	d := newTestDriver(t)

	// Second and third calls must be no-ops against the same pool.
	first := d.conn
	for i := 0; i < 2; i++ {
		if err := d.EnsureConnected(context.Background()); err != nil {
			t.Fatalf("EnsureConnected() call %d error = %v", i+2, err)
		}
	}
	if d.conn != first {
		t.Error("EnsureConnected() replaced the existing connection pool")
	}
}

func TestOperationsBeforeConnectAreUnavailable(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	d := New(filepath.Join(t.TempDir(), "never.db"), logger)

	_, err := d.FindByField(context.Background(), repository.FieldID, "u-1")
	if !errors.Is(err, apperror.ErrUnavailable) {
		t.Errorf("FindByField before connect: error = %v, want ErrUnavailable", err)
	}

	_, err = d.Create(context.Background(), &model.User{Username: "x", Email: "x@x.com"})
	if !errors.Is(err, apperror.ErrUnavailable) {
		t.Errorf("Create before connect: error = %v, want ErrUnavailable", err)
	}
}

func TestCreateAssignsID(t *testing.T) {
	d := newTestDriver(t)
	user := createTestUser(t, d, "alice", "alice@x.com")

	if user.ID == "" {
		t.Fatal("Create() did not assign an id")
	}

	found, err := d.FindByField(context.Background(), repository.FieldID, user.ID)
	if err != nil {
		t.Fatalf("FindByField() error = %v", err)
	}
	if found == nil {
		t.Fatal("created user not found by id")
	}
	if found.Username != "alice" {
		t.Errorf("Username = %q, want %q", found.Username, "alice")
	}
}

func TestCreateHonorsCanonicalID(t *testing.T) {
	d := newTestDriver(t)

	// The coordinator hands down the id adopted from the document backend;
	// this driver must store under it rather than minting its own.
	user := &model.User{
		ID:        "65e1a2b3c4d5e6f7a8b9c0d1",
		Username:  "carol",
		Email:     "carol@x.com",
		IsActive:  true,
		CreatedAt: time.Now(),
	}
	id, err := d.Create(context.Background(), user)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if id != "65e1a2b3c4d5e6f7a8b9c0d1" {
		t.Errorf("Create() returned id %q, want the canonical id", id)
	}
}

func TestCreateDuplicateIsConflict(t *testing.T) {
	d := newTestDriver(t)
	createTestUser(t, d, "dave", "dave@x.com")

	tests := []struct {
		name     string
		username string
		email    string
	}{
		{name: "duplicate username", username: "dave", email: "other@x.com"},
		{name: "duplicate email", username: "other", email: "dave@x.com"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := d.Create(context.Background(), &model.User{
				Username:  tt.username,
				Email:     tt.email,
				IsActive:  true,
				CreatedAt: time.Now(),
			})
			if !errors.Is(err, apperror.ErrConflict) {
				t.Errorf("Create() error = %v, want ErrConflict", err)
			}
		})
	}
}

func TestFindByFieldMissIsNotAnError(t *testing.T) {
	d := newTestDriver(t)

	found, err := d.FindByField(context.Background(), repository.FieldEmail, "ghost@x.com")
	if err != nil {
		t.Fatalf("FindByField() error = %v", err)
	}
	if found != nil {
		t.Errorf("FindByField() = %+v, want nil", found)
	}
}

func TestFindByFieldRejectsUnknownField(t *testing.T) {
	d := newTestDriver(t)

	_, err := d.FindByField(context.Background(), "password", "hunter2")
	if err == nil {
		t.Fatal("FindByField() accepted a non-lookup field")
	}
}

func TestUpdateLastLogin(t *testing.T) {
	d := newTestDriver(t)
	user := createTestUser(t, d, "erin", "erin@x.com")

	stamp := record.NormalizeTime(time.Now())
	if err := d.UpdateField(context.Background(), user.ID, repository.FieldLastLogin, stamp); err != nil {
		t.Fatalf("UpdateField() error = %v", err)
	}

	found, err := d.FindByField(context.Background(), repository.FieldID, user.ID)
	if err != nil {
		t.Fatalf("FindByField() error = %v", err)
	}
	if found.LastLogin == nil || !found.LastLogin.Equal(stamp) {
		t.Errorf("LastLogin = %v, want %v", found.LastLogin, stamp)
	}
}

func TestUpdateFlagsAndProfile(t *testing.T) {
	d := newTestDriver(t)
	user := createTestUser(t, d, "frank", "frank@x.com")
	ctx := context.Background()

	flags := []string{"sqli-1", "xss-2"}
	if err := d.UpdateField(ctx, user.ID, repository.FieldFlags, flags); err != nil {
		t.Fatalf("UpdateField(flags) error = %v", err)
	}
	profile := map[string]any{"logged_out_at": "2024-03-01T10:00:00Z"}
	if err := d.UpdateField(ctx, user.ID, repository.FieldProfile, profile); err != nil {
		t.Fatalf("UpdateField(profile) error = %v", err)
	}

	found, err := d.FindByField(ctx, repository.FieldID, user.ID)
	if err != nil {
		t.Fatalf("FindByField() error = %v", err)
	}
	if len(found.FlagsFound) != 2 || found.FlagsFound[0] != "sqli-1" {
		t.Errorf("FlagsFound = %v, want %v", found.FlagsFound, flags)
	}
	if found.Profile["logged_out_at"] != "2024-03-01T10:00:00Z" {
		t.Errorf("Profile = %v, want logged_out_at set", found.Profile)
	}
}

func TestUpdateMissingUserIsNotFound(t *testing.T) {
	d := newTestDriver(t)

	err := d.UpdateField(context.Background(), "no-such-id", repository.FieldLastLogin, time.Now())
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("UpdateField() error = %v, want ErrNotFound", err)
	}
}

func TestSearchMatchesUsernameAndEmail(t *testing.T) {
	d := newTestDriver(t)
	createTestUser(t, d, "grace", "grace@x.com")
	createTestUser(t, d, "heidi", "heidi@corp.example")
	createTestUser(t, d, "corpfan", "fan@x.com")

	results, err := d.Search(context.Background(), "corp")
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}

	// "corp" appears in heidi's email and corpfan's username.
	if len(results) != 2 {
		t.Fatalf("Search() returned %d users, want 2: %+v", len(results), results)
	}
}

func TestSearchNoMatchesReturnsEmpty(t *testing.T) {
	d := newTestDriver(t)
	createTestUser(t, d, "ivan", "ivan@x.com")

	results, err := d.Search(context.Background(), "zzz-no-match")
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(results) != 0 {
		t.Errorf("Search() = %+v, want empty", results)
	}
}
