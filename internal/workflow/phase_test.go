package workflow

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPhase_Order(t *testing.T) {
	assert.Equal(t, []Phase{PhaseRequirements, PhaseDesign, PhaseTasks, PhaseComplete}, Phases())

	next, ok := PhaseRequirements.Next()
	require.True(t, ok)
	assert.Equal(t, PhaseDesign, next)

	_, ok = PhaseComplete.Next()
	assert.False(t, ok)

	prev, ok := PhaseComplete.Previous()
	require.True(t, ok)
	assert.Equal(t, PhaseTasks, prev)

	_, ok = PhaseRequirements.Previous()
	assert.False(t, ok)

	assert.True(t, PhaseRequirements.Before(PhaseComplete))
	assert.False(t, PhaseTasks.Before(PhaseTasks))
	assert.False(t, PhaseComplete.Before(PhaseDesign))
}

func TestParsePhase(t *testing.T) {
	for _, p := range Phases() {
		got, err := ParsePhase(p.String())
		require.NoError(t, err)
		assert.Equal(t, p, got)
	}

	_, err := ParsePhase("review")
	assert.ErrorIs(t, err, ErrUnknownPhase)

	_, err = ParsePhase("Requirements")
	assert.ErrorIs(t, err, ErrUnknownPhase, "phase names are lowercase")
}

func TestPhase_JSONMapKeys(t *testing.T) {
	in := map[Phase]bool{PhaseRequirements: true, PhaseDesign: false}
	data, err := json.Marshal(in)
	require.NoError(t, err)
	assert.JSONEq(t, `{"requirements": true, "design": false}`, string(data))

	var out map[Phase]bool
	require.NoError(t, json.Unmarshal(data, &out))
	assert.Equal(t, in, out)
}

func TestPhase_StringUnknown(t *testing.T) {
	assert.Equal(t, "phase(9)", Phase(9).String())

	_, err := Phase(9).MarshalText()
	assert.ErrorIs(t, err, ErrUnknownPhase)
}
