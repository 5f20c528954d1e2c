package lifecycle

import (
	"errors"
	"testing"
	"time"

	"github.com/meridian-hq/meridian/internal/shared"
)

func TestStateOf(t *testing.T) {
	if got := StateOf(nil); got != StateActive {
		t.Fatalf("StateOf(nil) = %q, want %q", got, StateActive)
	}
	now := time.Now()
	if got := StateOf(&now); got != StateTrashed {
		t.Fatalf("StateOf(&now) = %q, want %q", got, StateTrashed)
	}
}

func TestTransitions(t *testing.T) {
	cases := []struct {
		name    string
		check   func(State) error
		state   State
		wantErr bool
	}{
		{"trash active", EnsureCanTrash, StateActive, false},
		{"trash trashed", EnsureCanTrash, StateTrashed, true},
		{"restore trashed", EnsureCanRestore, StateTrashed, false},
		{"restore active", EnsureCanRestore, StateActive, true},
		{"purge trashed", EnsureCanPurge, StateTrashed, false},
		{"purge active", EnsureCanPurge, StateActive, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.check(tc.state)
			if tc.wantErr {
				if !errors.Is(err, shared.ErrPrecondition) {
					t.Fatalf("got %v, want precondition failure", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}
