// Package dualstore keeps one logical user store on top of two independent
// backends: a primary and a secondary.
//
// THE THREE RULES:
//  1. Writes are best-effort dual-writes — both backends are attempted, a
//     partial success counts as success, and only a double failure is an
//     error. No rollback of the half that landed.
//  2. Reads are primary-first — when both backends hold a record for the
//     same key, the primary's copy is the one callers see. The secondary is
//     only ever visible when the primary is unreachable or has no record.
//  3. The primary's identifier is canonical — adopted on create and used to
//     address the same logical user in both stores. When only the secondary
//     write lands, a locally generated xid stands in.
//
// WHAT THIS IS NOT:
// There is no two-phase commit, no conflict resolution beyond "primary
// wins", and no exactly-once guarantee. A user created while the secondary
// was down simply never appears there. This is a deliberate design for a
// training tool, not a bug to fix.
//
// Which backend is primary is fixed for the process lifetime (set once in
// New, chosen by config). Reconfiguring it mid-process is undefined behavior.
package dualstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/rs/xid"

	"github.com/rahat/vulnarena/internal/apperror"
	"github.com/rahat/vulnarena/internal/model"
	"github.com/rahat/vulnarena/internal/repository"
	"github.com/rahat/vulnarena/internal/repository/record"
)

// Repository coordinates the two backend drivers. It holds no user data of
// its own — each backend owns its copy, and every method here is a stateless
// sequence of driver calls (primary first, then secondary).
type Repository struct {
	primary   repository.Driver
	secondary repository.Driver
	logger    *slog.Logger
}

// compile-time check that *Repository implements repository.UserRepository
var _ repository.UserRepository = (*Repository)(nil)

// New wires a coordinator over the given drivers. The first argument is the
// primary for the lifetime of the process.
func New(primary, secondary repository.Driver, logger *slog.Logger) *Repository {
	return &Repository{
		primary:   primary,
		secondary: secondary,
		logger:    logger,
	}
}

// Initialize brings both backend connections up. Idempotent — EnsureConnected
// is a no-op on an already-connected driver, so calling this on every cold
// start is safe and opens no duplicate connections.
//
// One unreachable backend is tolerated (that is the whole point of having
// two); only a double failure is an error.
func (r *Repository) Initialize(ctx context.Context) error {
	primaryErr := r.primary.EnsureConnected(ctx)
	if primaryErr != nil {
		r.logger.Warn("primary backend unavailable at initialize",
			slog.String("backend", r.primary.Name()),
			slog.String("error", primaryErr.Error()),
		)
	}

	secondaryErr := r.secondary.EnsureConnected(ctx)
	if secondaryErr != nil {
		r.logger.Warn("secondary backend unavailable at initialize",
			slog.String("backend", r.secondary.Name()),
			slog.String("error", secondaryErr.Error()),
		)
	}

	if primaryErr != nil && secondaryErr != nil {
		return fmt.Errorf("no backend reachable: %w", errors.Join(primaryErr, secondaryErr))
	}
	return nil
}

// CreateUser attempts creation in the primary, then — regardless of the
// primary's outcome — in the secondary.
//
// CANONICAL ID DECISION:
//   - primary write lands → its assigned id is canonical, and the secondary
//     stores the record under that same id (its own id generation is bypassed)
//   - primary write fails → a locally generated xid becomes canonical and
//     the secondary attempt uses it; on success the record exists only there
//   - both writes fail → apperror.ErrCreateFailed carrying both causes; no
//     partial success is reported
func (r *Repository) CreateUser(ctx context.Context, input repository.CreateUserInput) (*model.User, error) {
	role := input.Role
	if role == "" {
		role = model.RoleUser
	}

	user := &model.User{
		Username:         input.Username,
		Email:            input.Email,
		CredentialSecret: input.CredentialSecret,
		Role:             role,
		FlagsFound:       []string{},
		IsActive:         true,
		Profile:          input.Profile,
		CreatedAt:        record.NormalizeTime(time.Now()),
	}

	primaryErr := r.createIn(ctx, r.primary, user)
	if primaryErr != nil {
		r.logger.Warn("primary create failed",
			slog.String("backend", r.primary.Name()),
			slog.String("username", input.Username),
			slog.String("error", primaryErr.Error()),
		)
		// No primary-assigned id to adopt — mint the canonical id locally
		// so the secondary stores the record under a known identifier.
		user.ID = xid.New().String()
	}

	secondaryErr := r.createIn(ctx, r.secondary, user)
	if secondaryErr != nil {
		r.logger.Warn("secondary create failed",
			slog.String("backend", r.secondary.Name()),
			slog.String("username", input.Username),
			slog.String("error", secondaryErr.Error()),
		)
	}

	if primaryErr != nil && secondaryErr != nil {
		return nil, apperror.CreateFailed(primaryErr, secondaryErr)
	}

	return user, nil
}

// createIn connects and creates in one backend, adopting the assigned id
// into user.ID when the user does not have one yet.
func (r *Repository) createIn(ctx context.Context, d repository.Driver, user *model.User) error {
	if err := d.EnsureConnected(ctx); err != nil {
		return err
	}
	id, err := d.Create(ctx, user)
	if err != nil {
		return err
	}
	if user.ID == "" {
		user.ID = id
	}
	return nil
}

// FindUserByID resolves a user by canonical id, primary first.
func (r *Repository) FindUserByID(ctx context.Context, id string) (*model.User, error) {
	return r.findByField(ctx, repository.FieldID, id)
}

// FindUserByEmail resolves a user by email, primary first.
func (r *Repository) FindUserByEmail(ctx context.Context, email string) (*model.User, error) {
	return r.findByField(ctx, repository.FieldEmail, email)
}

// FindUserByUsername resolves a user by username, primary first.
func (r *Repository) FindUserByUsername(ctx context.Context, username string) (*model.User, error) {
	return r.findByField(ctx, repository.FieldUsername, username)
}

// findByField is the primary-first read resolver.
//
// A found record in the primary short-circuits the lookup. Primary failures
// of any kind — unreachable, query error — are swallowed here and logged;
// they demote the lookup to the secondary, never fail it. Both backends
// empty-handed is a clean (nil, nil): absence is a valid outcome.
//
// The only error this returns is the case where NEITHER backend could be
// queried at all — the caller genuinely cannot know whether the user exists.
func (r *Repository) findByField(ctx context.Context, field, value string) (*model.User, error) {
	user, primaryErr := r.findIn(ctx, r.primary, field, value)
	if user != nil {
		return user, nil
	}

	user, secondaryErr := r.findIn(ctx, r.secondary, field, value)
	if user != nil {
		return user, nil
	}

	if primaryErr != nil && secondaryErr != nil {
		return nil, fmt.Errorf("user lookup by %s failed in both backends: %w",
			field, errors.Join(primaryErr, secondaryErr))
	}
	return nil, nil
}

// findIn connects and looks up in one backend. Failures are logged and
// returned for the resolver to branch on.
func (r *Repository) findIn(ctx context.Context, d repository.Driver, field, value string) (*model.User, error) {
	if err := d.EnsureConnected(ctx); err != nil {
		r.logger.Warn("backend unreachable during lookup",
			slog.String("backend", d.Name()),
			slog.String("field", field),
		)
		return nil, err
	}
	user, err := d.FindByField(ctx, field, value)
	if err != nil {
		r.logger.Warn("backend lookup failed",
			slog.String("backend", d.Name()),
			slog.String("field", field),
			slog.String("error", err.Error()),
		)
		return nil, err
	}
	return user, nil
}

// UpdateLastLogin stamps the user's login time in both backends.
func (r *Repository) UpdateLastLogin(ctx context.Context, id string) error {
	return r.updateBoth(ctx, id, repository.FieldLastLogin, record.NormalizeTime(time.Now()))
}

// RecordLogout stamps a logout timestamp into the user's profile sub-field
// and writes the updated profile to both backends.
func (r *Repository) RecordLogout(ctx context.Context, id string) error {
	user, err := r.findByField(ctx, repository.FieldID, id)
	if err != nil {
		return err
	}
	if user == nil {
		return apperror.NotFound("user", id)
	}

	profile := make(map[string]any, len(user.Profile)+1)
	for k, v := range user.Profile {
		profile[k] = v
	}
	profile["logged_out_at"] = record.FormatTime(time.Now())

	return r.updateBoth(ctx, id, repository.FieldProfile, profile)
}

// AddFlag appends flagID to the user's completed flags if absent and writes
// the new set to both backends. Calling it again with the same flag id is a
// no-op — the set never gains duplicates.
//
// The read-modify-write is not atomic: two concurrent completions of
// different flags by the same user can race, and the last write wins. Each
// backend's native update primitive is the only guarantee carried here.
func (r *Repository) AddFlag(ctx context.Context, id, flagID string) (*model.User, error) {
	user, err := r.findByField(ctx, repository.FieldID, id)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, nil
	}

	if user.HasFlag(flagID) {
		return user, nil
	}

	flags := make([]string, 0, len(user.FlagsFound)+1)
	flags = append(flags, user.FlagsFound...)
	flags = append(flags, flagID)

	if err := r.updateBoth(ctx, id, repository.FieldFlags, flags); err != nil {
		return nil, err
	}

	user.FlagsFound = flags
	return user, nil
}

// updateBoth applies one field update to both backends, primary first.
// Best-effort: a single-backend failure (unreachable, or the record only
// ever landed in the other store) is logged and tolerated. Only a double
// failure is an error.
func (r *Repository) updateBoth(ctx context.Context, id, field string, value any) error {
	primaryErr := r.updateIn(ctx, r.primary, id, field, value)
	secondaryErr := r.updateIn(ctx, r.secondary, id, field, value)

	if primaryErr != nil && secondaryErr != nil {
		return fmt.Errorf("updating %s failed in both backends: %w",
			field, errors.Join(primaryErr, secondaryErr))
	}
	return nil
}

func (r *Repository) updateIn(ctx context.Context, d repository.Driver, id, field string, value any) error {
	if err := d.EnsureConnected(ctx); err != nil {
		r.logger.Warn("backend unreachable during update",
			slog.String("backend", d.Name()),
			slog.String("field", field),
			slog.String("userID", id),
		)
		return err
	}
	if err := d.UpdateField(ctx, id, field, value); err != nil {
		r.logger.Warn("backend update failed",
			slog.String("backend", d.Name()),
			slog.String("field", field),
			slog.String("userID", id),
			slog.String("error", err.Error()),
		)
		return err
	}
	return nil
}

// SearchUsers runs the primary's native search. The secondary is consulted
// ONLY when the primary is unreachable — results are never merged or
// deduplicated across backends, so a search reflects exactly one store's
// view of the world. Each backend keeps its own match semantics (regex in
// the document store, substring in the relational store).
func (r *Repository) SearchUsers(ctx context.Context, term string) ([]model.User, error) {
	results, err := r.searchIn(ctx, r.primary, term)
	switch {
	case err == nil:
		return results, nil
	case errors.Is(err, apperror.ErrUnavailable):
		r.logger.Warn("primary unreachable for search, falling back",
			slog.String("backend", r.primary.Name()),
		)
	default:
		// The primary was reachable and its query failed — that is a real
		// error, not grounds for showing the secondary's different view.
		return nil, err
	}

	results, err = r.searchIn(ctx, r.secondary, term)
	if err != nil {
		return nil, fmt.Errorf("search failed in both backends: %w", err)
	}
	return results, nil
}

func (r *Repository) searchIn(ctx context.Context, d repository.Driver, term string) ([]model.User, error) {
	if err := d.EnsureConnected(ctx); err != nil {
		return nil, err
	}
	results, err := d.Search(ctx, term)
	if err != nil {
		return nil, err
	}
	if results == nil {
		results = []model.User{}
	}
	return results, nil
}
