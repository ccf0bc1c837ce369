package workflow

import (
	"time"
)

// TransitionRecord is one history entry: a forward approval or a
// backward navigation.
type TransitionRecord struct {
	ID        string    `json:"id"`
	From      Phase     `json:"from"`
	To        Phase     `json:"to"`
	Reason    string    `json:"reason,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// State is the full workflow record for one feature. All mutation goes
// through the service; stores persist and load it atomically under
// optimistic concurrency.
type State struct {
	FeatureName  string `json:"feature_name"`
	CurrentPhase Phase  `json:"current_phase"`

	// Approved records which phases have been approved by a completed
	// forward transition.
	Approved map[Phase]bool `json:"approved"`

	// ValidationPassed records the outcome of the most recent document
	// validation per phase.
	ValidationPassed map[Phase]bool `json:"validation_passed"`

	History []TransitionRecord `json:"history"`

	// Version increments on every persisted mutation and backs the
	// compare-and-swap in Store.Save.
	Version int64 `json:"version"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewState returns the initial state for a feature.
func NewState(feature string, now time.Time) *State {
	return &State{
		FeatureName:      feature,
		CurrentPhase:     PhaseRequirements,
		Approved:         make(map[Phase]bool),
		ValidationPassed: make(map[Phase]bool),
		History:          []TransitionRecord{},
		Version:          0,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

// Clone returns a deep copy. Stores hand out clones so callers cannot
// alias persisted state.
func (s *State) Clone() *State {
	if s == nil {
		return nil
	}
	out := *s
	out.Approved = make(map[Phase]bool, len(s.Approved))
	for k, v := range s.Approved {
		out.Approved[k] = v
	}
	out.ValidationPassed = make(map[Phase]bool, len(s.ValidationPassed))
	for k, v := range s.ValidationPassed {
		out.ValidationPassed[k] = v
	}
	out.History = make([]TransitionRecord, len(s.History))
	copy(out.History, s.History)
	return &out
}
