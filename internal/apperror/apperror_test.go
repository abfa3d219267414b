package apperror

import (
	"errors"
	"testing"
)

func TestErrorsIs(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		target    error
		wantMatch bool
	}{
		{
			name:      "NotFound wraps ErrNotFound",
			err:       NotFound("user", "abc123"),
			target:    ErrNotFound,
			wantMatch: true,
		},
		{
			name:      "Conflict wraps ErrConflict",
			err:       Conflict("user", "alice@x.com"),
			target:    ErrConflict,
			wantMatch: true,
		},
		{
			name:      "Unavailable wraps ErrUnavailable",
			err:       Unavailable("document", errors.New("connection refused")),
			target:    ErrUnavailable,
			wantMatch: true,
		},
		{
			name:      "CreateFailed wraps ErrCreateFailed",
			err:       CreateFailed(errors.New("primary down"), errors.New("secondary down")),
			target:    ErrCreateFailed,
			wantMatch: true,
		},
		{
			name:      "NotFound does NOT match ErrUnavailable",
			err:       NotFound("user", "abc123"),
			target:    ErrUnavailable,
			wantMatch: false,
		},
		{
			name:      "Unavailable does NOT match ErrConflict",
			err:       Unavailable("relational", errors.New("dial tcp: refused")),
			target:    ErrConflict,
			wantMatch: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := errors.Is(tt.err, tt.target)
			if got != tt.wantMatch {
				t.Errorf("errors.Is(%v, %v) = %v, want %v", tt.err, tt.target, got, tt.wantMatch)
			}
		})
	}
}

// CreateFailed joins the two backend causes with errors.Join, so errors.Is
// must find each original cause through the aggregate. The read resolver and
// the HTTP layer both rely on this to classify a dual failure.
func TestCreateFailedKeepsBothCauses(t *testing.T) {
	primaryCause := Unavailable("document", errors.New("no reachable servers"))
	secondaryCause := Conflict("user", "alice")

	err := CreateFailed(primaryCause, secondaryCause)

	if !errors.Is(err, ErrUnavailable) {
		t.Error("CreateFailed lost the primary's ErrUnavailable cause")
	}
	if !errors.Is(err, ErrConflict) {
		t.Error("CreateFailed lost the secondary's ErrConflict cause")
	}
}

func TestErrorMessages(t *testing.T) {
	tests := []struct {
		name        string
		err         *AppError
		wantMessage string
	}{
		{
			name:        "NotFound message includes resource and id",
			err:         NotFound("user", "abc123"),
			wantMessage: "user not found with id abc123",
		},
		{
			name:        "Conflict message includes resource and key",
			err:         Conflict("user", "alice@x.com"),
			wantMessage: "user already exists: alice@x.com",
		},
		{
			name:        "Unavailable message names the backend",
			err:         Unavailable("document", errors.New("timeout")),
			wantMessage: "document backend unavailable",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.wantMessage {
				t.Errorf("Error() = %q, want %q", got, tt.wantMessage)
			}
		})
	}
}

func TestValidationFailedField(t *testing.T) {
	err := ValidationFailed("email", "invalid email format")

	if err.Field != "email" {
		t.Errorf("Field = %q, want %q", err.Field, "email")
	}
	if !errors.Is(err, ErrValidation) {
		t.Error("ValidationFailed should wrap ErrValidation")
	}
}
