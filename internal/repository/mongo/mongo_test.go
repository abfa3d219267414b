package mongo

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/rahat/vulnarena/internal/apperror"
	"github.com/rahat/vulnarena/internal/model"
	"github.com/rahat/vulnarena/internal/repository"
)

// These tests cover the driver's contract behavior that does not need a live
// mongod: the not-connected classification, field-name mapping, and update
// value validation. The cross-backend semantics are covered with fake drivers
// in the dualstore package.

func newUnconnectedDriver() *Driver {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New("mongodb://localhost:27017", "vulnarena_test", logger)
}

func TestName(t *testing.T) {
	if got := newUnconnectedDriver().Name(); got != "document" {
		t.Errorf("Name() = %q, want %q", got, "document")
	}
}

func TestOperationsBeforeConnectAreUnavailable(t *testing.T) {
	d := newUnconnectedDriver()
	ctx := context.Background()

	if _, err := d.FindByField(ctx, repository.FieldID, "abc"); !errors.Is(err, apperror.ErrUnavailable) {
		t.Errorf("FindByField before connect: error = %v, want ErrUnavailable", err)
	}
	if _, err := d.Create(ctx, &model.User{Username: "x"}); !errors.Is(err, apperror.ErrUnavailable) {
		t.Errorf("Create before connect: error = %v, want ErrUnavailable", err)
	}
	if err := d.UpdateField(ctx, "abc", repository.FieldFlags, []string{}); !errors.Is(err, apperror.ErrUnavailable) {
		t.Errorf("UpdateField before connect: error = %v, want ErrUnavailable", err)
	}
	if _, err := d.Search(ctx, "a"); !errors.Is(err, apperror.ErrUnavailable) {
		t.Errorf("Search before connect: error = %v, want ErrUnavailable", err)
	}
}

func TestCloseOnNeverConnectedDriverIsSafe(t *testing.T) {
	d := newUnconnectedDriver()
	if err := d.Close(context.Background()); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}

func TestFieldNamesCoverLookupFields(t *testing.T) {
	tests := []struct {
		field string
		want  string
	}{
		{repository.FieldID, "_id"},
		{repository.FieldUsername, "username"},
		{repository.FieldEmail, "email"},
	}
	for _, tt := range tests {
		if got := fieldNames[tt.field]; got != tt.want {
			t.Errorf("fieldNames[%q] = %q, want %q", tt.field, got, tt.want)
		}
	}
}
