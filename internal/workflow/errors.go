package workflow

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound indicates no workflow exists for the feature.
	ErrNotFound = errors.New("workflow not found")

	// ErrAlreadyExists indicates a workflow was already created for
	// the feature.
	ErrAlreadyExists = errors.New("workflow already exists")

	// ErrConflict indicates a concurrent update won; the caller saw a
	// stale version.
	ErrConflict = errors.New("workflow version conflict")

	// ErrUnknownPhase indicates a phase name outside the lifecycle.
	ErrUnknownPhase = errors.New("unknown phase")
)

// ConditionCode identifies one transition precondition.
type ConditionCode string

const (
	CondWrongCurrentPhase    ConditionCode = "wrong_current_phase"
	CondNotNextPhase         ConditionCode = "not_next_phase"
	CondValidationNotPassed  ConditionCode = "validation_not_passed"
	CondApprovalNotConfirmed ConditionCode = "approval_not_confirmed"
	CondTargetNotEarlier     ConditionCode = "target_not_earlier"
)

// UnmetCondition is one precondition a requested operation failed.
type UnmetCondition struct {
	Code    ConditionCode `json:"code"`
	Message string        `json:"message"`
}

// Error reports a rejected workflow operation together with every
// precondition it violated, not just the first.
type Error struct {
	Feature    string
	Op         string
	Conditions []UnmetCondition
}

func (e *Error) Error() string {
	msgs := make([]string, len(e.Conditions))
	for i, c := range e.Conditions {
		msgs[i] = c.Message
	}
	return fmt.Sprintf("workflow %s: %s blocked: %s", e.Feature, e.Op, strings.Join(msgs, "; "))
}

// Has reports whether the error includes the given condition code.
func (e *Error) Has(code ConditionCode) bool {
	for _, c := range e.Conditions {
		if c.Code == code {
			return true
		}
	}
	return false
}
