package ears

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify_Templates(t *testing.T) {
	tests := []struct {
		name     string
		line     string
		kind     ClauseKind
		valid    bool
		trigger  string
		response string
	}{
		{
			name:     "when clause",
			line:     "WHEN user submits form THEN system SHALL validate input",
			kind:     ClauseWhenThenShall,
			valid:    true,
			trigger:  "user submits form",
			response: "validate input",
		},
		{
			name:     "if clause",
			line:     "IF the session has expired THEN the system SHALL redirect to login",
			kind:     ClauseIfThenShall,
			valid:    true,
			trigger:  "the session has expired",
			response: "redirect to login",
		},
		{
			name:     "while clause",
			line:     "WHILE the upload is in progress THEN the system SHALL display a progress bar",
			kind:     ClauseWhileThenShall,
			valid:    true,
			trigger:  "the upload is in progress",
			response: "display a progress bar",
		},
		{
			name:     "where clause",
			line:     "WHERE the deployment is multi-region THEN the system SHALL replicate writes",
			kind:     ClauseWhereThenShall,
			valid:    true,
			trigger:  "the deployment is multi-region",
			response: "replicate writes",
		},
		{
			name:     "plain shall",
			line:     "The system SHALL persist every audit record",
			kind:     ClausePlainShall,
			valid:    true,
			response: "persist every audit record",
		},
		{
			name:  "no shall",
			line:  "The system might do something",
			kind:  ClauseUnrecognized,
			valid: false,
		},
		{
			name:  "empty line",
			line:  "   ",
			kind:  ClauseUnrecognized,
			valid: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Classify(tt.line)
			assert.Equal(t, tt.kind, c.Kind)
			assert.Equal(t, tt.valid, c.Valid)
			if tt.trigger != "" {
				assert.Equal(t, tt.trigger, c.Trigger)
			}
			if tt.response != "" {
				assert.Equal(t, tt.response, c.Response)
			}
		})
	}
}

func TestClassify_OuterClauseWins(t *testing.T) {
	// The embedded WHEN must not shadow the outer IF clause.
	c := Classify("IF x WHEN y THEN z SHALL w")
	assert.Equal(t, ClauseIfThenShall, c.Kind)
	assert.True(t, c.Valid)
}

func TestClassify_CaseInsensitive(t *testing.T) {
	c := Classify("when the user logs out then the system shall clear the session")
	assert.Equal(t, ClauseWhenThenShall, c.Kind)
	assert.True(t, c.Valid)
	assert.Equal(t, "the user logs out", c.Trigger)
}

func TestClassify_CompoundCriteria(t *testing.T) {
	c := Classify("WHEN a file is saved AND the linter is enabled THEN the system SHALL run the linter AND report findings")
	assert.Equal(t, ClauseWhenThenShall, c.Kind)
	assert.True(t, c.Valid)
}

func TestClassify_MissingResponse(t *testing.T) {
	c := Classify("WHEN the job finishes THEN the system SHALL")
	assert.Equal(t, ClauseWhenThenShall, c.Kind)
	assert.False(t, c.Valid)
	assert.Contains(t, c.Problem(), "response")
}

func TestClassify_KeywordsOutOfOrder(t *testing.T) {
	// THEN before WHEN cannot match the WHEN template; the line still
	// contains SHALL so it degrades to a plain SHALL statement.
	c := Classify("THEN something WHEN it happens the system SHALL react")
	assert.Equal(t, ClausePlainShall, c.Kind)
}

func TestClassify_WordBoundaries(t *testing.T) {
	// "whenever" must not count as a WHEN anchor.
	c := Classify("Whenever possible the system SHALL reuse connections")
	assert.Equal(t, ClausePlainShall, c.Kind)
	assert.True(t, c.Valid)
}

func TestProblem_ValidIsEmpty(t *testing.T) {
	c := Classify("WHEN a THEN b SHALL c")
	assert.True(t, c.Valid)
	assert.Empty(t, c.Problem())
}
