// Package lifecycle models the soft-delete/restore/purge state machine shared
// by roles, users and tenants. An entity is ACTIVE, TRASHED (soft deleted,
// restorable) or purged out of existence. Purge is only reachable from
// TRASHED; restore is the only back-edge.
package lifecycle

import (
	"time"

	"github.com/meridian-hq/meridian/internal/shared"
)

// State is the lifecycle state of an entity.
type State string

const (
	// StateActive marks a live entity.
	StateActive State = "ACTIVE"
	// StateTrashed marks a soft-deleted entity awaiting restore or purge.
	StateTrashed State = "TRASHED"
)

// StateOf derives the lifecycle state from the soft-delete timestamp.
func StateOf(deletedAt *time.Time) State {
	if deletedAt != nil {
		return StateTrashed
	}
	return StateActive
}

// EnsureCanTrash verifies the entity may transition ACTIVE -> TRASHED.
func EnsureCanTrash(s State) error {
	if s != StateActive {
		return shared.Preconditionf("entity is already trashed")
	}
	return nil
}

// EnsureCanRestore verifies the entity may transition TRASHED -> ACTIVE.
func EnsureCanRestore(s State) error {
	if s != StateTrashed {
		return shared.Preconditionf("entity is not trashed")
	}
	return nil
}

// EnsureCanPurge verifies the entity may be permanently deleted. Purging an
// ACTIVE entity must fail rather than silently trash-then-purge.
func EnsureCanPurge(s State) error {
	if s != StateTrashed {
		return shared.Preconditionf("entity must be trashed before permanent deletion")
	}
	return nil
}
