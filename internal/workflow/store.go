package workflow

import (
	"context"
)

// Store persists workflow state. Implementations enforce optimistic
// concurrency: Save applies only when the persisted version still
// equals expectedVersion, otherwise it returns ErrConflict.
type Store interface {
	// Create persists a new state. Returns ErrAlreadyExists when the
	// feature is already present.
	Create(ctx context.Context, st *State) error

	// Load returns a copy of the state for a feature, or ErrNotFound.
	Load(ctx context.Context, feature string) (*State, error)

	// Save persists st (whose Version the caller has already
	// advanced) iff the stored version equals expectedVersion.
	// Returns ErrConflict on a lost race and ErrNotFound when the
	// feature vanished.
	Save(ctx context.Context, st *State, expectedVersion int64) error

	// List returns all states ordered by feature name.
	List(ctx context.Context) ([]*State, error)
}
