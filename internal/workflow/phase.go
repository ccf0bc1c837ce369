// Package workflow implements the phase-gated lifecycle for a feature:
// requirements, design, tasks, complete. Phases advance one step at a
// time through approval gates and may move backward freely.
package workflow

import (
	"fmt"
)

// Phase is one stage of the feature lifecycle. The zero value is
// PhaseRequirements, the phase every new workflow starts in.
type Phase int

const (
	PhaseRequirements Phase = iota
	PhaseDesign
	PhaseTasks
	PhaseComplete
)

var phaseNames = [...]string{
	PhaseRequirements: "requirements",
	PhaseDesign:       "design",
	PhaseTasks:        "tasks",
	PhaseComplete:     "complete",
}

// Phases returns every phase in lifecycle order.
func Phases() []Phase {
	return []Phase{PhaseRequirements, PhaseDesign, PhaseTasks, PhaseComplete}
}

func (p Phase) String() string {
	if p < 0 || int(p) >= len(phaseNames) {
		return fmt.Sprintf("phase(%d)", int(p))
	}
	return phaseNames[p]
}

// ParsePhase converts a phase name into a Phase.
func ParsePhase(s string) (Phase, error) {
	for i, name := range phaseNames {
		if s == name {
			return Phase(i), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownPhase, s)
}

// Next returns the successor phase. ok is false for PhaseComplete.
func (p Phase) Next() (Phase, bool) {
	if p < PhaseRequirements || p >= PhaseComplete {
		return p, false
	}
	return p + 1, true
}

// Previous returns the predecessor phase. ok is false for
// PhaseRequirements.
func (p Phase) Previous() (Phase, bool) {
	if p <= PhaseRequirements || p > PhaseComplete {
		return p, false
	}
	return p - 1, true
}

// Before reports whether p strictly precedes other in the lifecycle.
func (p Phase) Before(other Phase) bool {
	return p < other
}

// MarshalText encodes the phase by name, which also makes Phase usable
// as a JSON map key.
func (p Phase) MarshalText() ([]byte, error) {
	if p < 0 || int(p) >= len(phaseNames) {
		return nil, fmt.Errorf("%w: %d", ErrUnknownPhase, int(p))
	}
	return []byte(phaseNames[p]), nil
}

// UnmarshalText decodes a phase name.
func (p *Phase) UnmarshalText(text []byte) error {
	parsed, err := ParsePhase(string(text))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}
