package workflow_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/specd/internal/events"
	"github.com/fyrsmithlabs/specd/internal/sanitize"
	"github.com/fyrsmithlabs/specd/internal/workflow"
	"github.com/fyrsmithlabs/specd/internal/workflow/store"
)

type capturePublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *capturePublisher) Publish(_ context.Context, ev events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

func (p *capturePublisher) byType(eventType string) []events.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []events.Event
	for _, ev := range p.events {
		if ev.Type == eventType {
			out = append(out, ev)
		}
	}
	return out
}

type failPublisher struct{}

func (failPublisher) Publish(context.Context, events.Event) error {
	return errors.New("broker down")
}

func newService(t *testing.T, pub events.Publisher) workflow.Service {
	t.Helper()
	svc, err := workflow.NewService(&workflow.Config{
		Store:  store.NewMemory(),
		Events: pub,
		Logger: zap.NewNop(),
	})
	require.NoError(t, err)
	return svc
}

// advance records a passing validation and approves the transition out
// of the workflow's current phase.
func advance(t *testing.T, svc workflow.Service, feature string, from workflow.Phase) *workflow.State {
	t.Helper()
	_, err := svc.RecordValidation(context.Background(), feature, from, true)
	require.NoError(t, err)

	next, ok := from.Next()
	require.True(t, ok)

	st, err := svc.Transition(context.Background(), workflow.TransitionRequest{
		Feature:           feature,
		From:              from,
		To:                next,
		ApprovalConfirmed: true,
	})
	require.NoError(t, err)
	return st
}

func TestNewService_Validation(t *testing.T) {
	_, err := workflow.NewService(nil)
	assert.Error(t, err)

	_, err = workflow.NewService(&workflow.Config{})
	assert.Error(t, err)
}

func TestService_Create(t *testing.T) {
	pub := &capturePublisher{}
	svc := newService(t, pub)

	st, err := svc.Create(context.Background(), "user-auth")
	require.NoError(t, err)
	assert.Equal(t, workflow.PhaseRequirements, st.CurrentPhase)
	assert.Equal(t, int64(0), st.Version)
	assert.Empty(t, st.Approved)

	created := pub.byType(events.TypeWorkflowCreated)
	require.Len(t, created, 1)
	assert.Equal(t, "user-auth", created[0].Feature)
}

func TestService_CreateDuplicate(t *testing.T) {
	svc := newService(t, nil)
	_, err := svc.Create(context.Background(), "user-auth")
	require.NoError(t, err)

	_, err = svc.Create(context.Background(), "user-auth")
	assert.ErrorIs(t, err, workflow.ErrAlreadyExists)
}

func TestService_CreateInvalidName(t *testing.T) {
	svc := newService(t, nil)
	for _, name := range []string{"", "User Auth", "../escape", "UPPER"} {
		_, err := svc.Create(context.Background(), name)
		assert.ErrorIs(t, err, sanitize.ErrInvalidFeatureName, "name %q", name)
	}
}

func TestService_GetMissing(t *testing.T) {
	svc := newService(t, nil)
	_, err := svc.Get(context.Background(), "ghost")
	assert.ErrorIs(t, err, workflow.ErrNotFound)
}

func TestService_TransitionHappyPath(t *testing.T) {
	pub := &capturePublisher{}
	svc := newService(t, pub)
	ctx := context.Background()

	_, err := svc.Create(ctx, "user-auth")
	require.NoError(t, err)

	st := advance(t, svc, "user-auth", workflow.PhaseRequirements)
	assert.Equal(t, workflow.PhaseDesign, st.CurrentPhase)
	assert.True(t, st.Approved[workflow.PhaseRequirements])
	require.Len(t, st.History, 1)
	assert.Equal(t, workflow.PhaseRequirements, st.History[0].From)
	assert.Equal(t, workflow.PhaseDesign, st.History[0].To)
	assert.NotEmpty(t, st.History[0].ID)

	// RecordValidation bumped once, Transition once.
	assert.Equal(t, int64(2), st.Version)

	moved := pub.byType(events.TypeWorkflowTransitioned)
	require.Len(t, moved, 1)
	assert.Equal(t, "requirements", moved[0].From)
	assert.Equal(t, "design", moved[0].To)
}

func TestService_TransitionToComplete(t *testing.T) {
	svc := newService(t, nil)
	ctx := context.Background()
	_, err := svc.Create(ctx, "user-auth")
	require.NoError(t, err)

	advance(t, svc, "user-auth", workflow.PhaseRequirements)
	advance(t, svc, "user-auth", workflow.PhaseDesign)
	st := advance(t, svc, "user-auth", workflow.PhaseTasks)

	assert.Equal(t, workflow.PhaseComplete, st.CurrentPhase)
	assert.True(t, st.Approved[workflow.PhaseTasks])
	assert.Len(t, st.History, 3)
}

func TestService_TransitionReportsEveryUnmetCondition(t *testing.T) {
	svc := newService(t, nil)
	ctx := context.Background()
	_, err := svc.Create(ctx, "user-auth")
	require.NoError(t, err)

	// Wrong current phase, no validation, no approval, all at once.
	_, err = svc.Transition(ctx, workflow.TransitionRequest{
		Feature: "user-auth",
		From:    workflow.PhaseDesign,
		To:      workflow.PhaseTasks,
	})
	var werr *workflow.Error
	require.ErrorAs(t, err, &werr)
	assert.True(t, werr.Has(workflow.CondWrongCurrentPhase))
	assert.True(t, werr.Has(workflow.CondValidationNotPassed))
	assert.True(t, werr.Has(workflow.CondApprovalNotConfirmed))
	assert.Len(t, werr.Conditions, 3)
}

func TestService_TransitionSkippingPhase(t *testing.T) {
	svc := newService(t, nil)
	ctx := context.Background()
	_, err := svc.Create(ctx, "user-auth")
	require.NoError(t, err)
	_, err = svc.RecordValidation(ctx, "user-auth", workflow.PhaseRequirements, true)
	require.NoError(t, err)

	_, err = svc.Transition(ctx, workflow.TransitionRequest{
		Feature:           "user-auth",
		From:              workflow.PhaseRequirements,
		To:                workflow.PhaseTasks,
		ApprovalConfirmed: true,
	})
	var werr *workflow.Error
	require.ErrorAs(t, err, &werr)
	assert.True(t, werr.Has(workflow.CondNotNextPhase))
	assert.Len(t, werr.Conditions, 1)
}

func TestService_TransitionFailsWhenValidationFailed(t *testing.T) {
	svc := newService(t, nil)
	ctx := context.Background()
	_, err := svc.Create(ctx, "user-auth")
	require.NoError(t, err)
	_, err = svc.RecordValidation(ctx, "user-auth", workflow.PhaseRequirements, false)
	require.NoError(t, err)

	_, err = svc.Transition(ctx, workflow.TransitionRequest{
		Feature:           "user-auth",
		From:              workflow.PhaseRequirements,
		To:                workflow.PhaseDesign,
		ApprovalConfirmed: true,
	})
	var werr *workflow.Error
	require.ErrorAs(t, err, &werr)
	assert.True(t, werr.Has(workflow.CondValidationNotPassed))
	assert.Len(t, werr.Conditions, 1)
}

func TestService_TransitionOutOfComplete(t *testing.T) {
	svc := newService(t, nil)
	ctx := context.Background()
	_, err := svc.Create(ctx, "user-auth")
	require.NoError(t, err)
	advance(t, svc, "user-auth", workflow.PhaseRequirements)
	advance(t, svc, "user-auth", workflow.PhaseDesign)
	advance(t, svc, "user-auth", workflow.PhaseTasks)

	_, err = svc.Transition(ctx, workflow.TransitionRequest{
		Feature:           "user-auth",
		From:              workflow.PhaseComplete,
		To:                workflow.PhaseComplete,
		ApprovalConfirmed: true,
	})
	var werr *workflow.Error
	require.ErrorAs(t, err, &werr)
	assert.True(t, werr.Has(workflow.CondNotNextPhase))
}

func TestService_NavigateBackwardClearsLaterPhases(t *testing.T) {
	pub := &capturePublisher{}
	svc := newService(t, pub)
	ctx := context.Background()
	_, err := svc.Create(ctx, "user-auth")
	require.NoError(t, err)
	advance(t, svc, "user-auth", workflow.PhaseRequirements)
	advance(t, svc, "user-auth", workflow.PhaseDesign)

	st, err := svc.NavigateBackward(ctx, workflow.BackwardRequest{
		Feature: "user-auth",
		Target:  workflow.PhaseRequirements,
		Reason:  "requirements changed after review",
	})
	require.NoError(t, err)

	assert.Equal(t, workflow.PhaseRequirements, st.CurrentPhase)
	assert.False(t, st.Approved[workflow.PhaseRequirements])
	assert.False(t, st.Approved[workflow.PhaseDesign])
	assert.False(t, st.ValidationPassed[workflow.PhaseRequirements])
	assert.False(t, st.ValidationPassed[workflow.PhaseDesign])

	require.Len(t, st.History, 3)
	last := st.History[2]
	assert.Equal(t, workflow.PhaseTasks, last.From)
	assert.Equal(t, workflow.PhaseRequirements, last.To)
	assert.Equal(t, "requirements changed after review", last.Reason)

	reverted := pub.byType(events.TypeWorkflowReverted)
	require.Len(t, reverted, 1)
	assert.Equal(t, "tasks", reverted[0].From)
	assert.Equal(t, "requirements", reverted[0].To)
}

func TestService_NavigateBackwardPreservesEarlierApprovals(t *testing.T) {
	svc := newService(t, nil)
	ctx := context.Background()
	_, err := svc.Create(ctx, "user-auth")
	require.NoError(t, err)
	advance(t, svc, "user-auth", workflow.PhaseRequirements)
	advance(t, svc, "user-auth", workflow.PhaseDesign)

	st, err := svc.NavigateBackward(ctx, workflow.BackwardRequest{
		Feature: "user-auth",
		Target:  workflow.PhaseDesign,
		Reason:  "design needs rework",
	})
	require.NoError(t, err)

	assert.Equal(t, workflow.PhaseDesign, st.CurrentPhase)
	assert.True(t, st.Approved[workflow.PhaseRequirements], "earlier phases keep their approvals")
	assert.True(t, st.ValidationPassed[workflow.PhaseRequirements])
	assert.False(t, st.Approved[workflow.PhaseDesign])
	assert.False(t, st.ValidationPassed[workflow.PhaseDesign])
}

func TestService_NavigateBackwardRejectsNonEarlierTarget(t *testing.T) {
	svc := newService(t, nil)
	ctx := context.Background()
	_, err := svc.Create(ctx, "user-auth")
	require.NoError(t, err)

	for _, target := range []workflow.Phase{workflow.PhaseRequirements, workflow.PhaseDesign} {
		_, err = svc.NavigateBackward(ctx, workflow.BackwardRequest{
			Feature: "user-auth",
			Target:  target,
		})
		var werr *workflow.Error
		require.ErrorAs(t, err, &werr, "target %s", target)
		assert.True(t, werr.Has(workflow.CondTargetNotEarlier))
	}
}

func TestService_CheckTransitionRequirements(t *testing.T) {
	svc := newService(t, nil)
	ctx := context.Background()
	_, err := svc.Create(ctx, "user-auth")
	require.NoError(t, err)

	conds, err := svc.CheckTransitionRequirements(ctx, "user-auth", workflow.PhaseDesign)
	require.NoError(t, err)
	codes := conditionCodes(conds)
	assert.Contains(t, codes, workflow.CondValidationNotPassed)
	assert.Contains(t, codes, workflow.CondApprovalNotConfirmed)
	assert.NotContains(t, codes, workflow.CondWrongCurrentPhase)

	_, err = svc.RecordValidation(ctx, "user-auth", workflow.PhaseRequirements, true)
	require.NoError(t, err)

	conds, err = svc.CheckTransitionRequirements(ctx, "user-auth", workflow.PhaseDesign)
	require.NoError(t, err)
	codes = conditionCodes(conds)
	assert.NotContains(t, codes, workflow.CondValidationNotPassed)
	assert.Contains(t, codes, workflow.CondApprovalNotConfirmed)

	// The check never mutates state.
	st, err := svc.Get(ctx, "user-auth")
	require.NoError(t, err)
	assert.Equal(t, int64(1), st.Version)
	assert.Equal(t, workflow.PhaseRequirements, st.CurrentPhase)
}

func TestService_CheckTransitionRequirementsSkippedPhase(t *testing.T) {
	svc := newService(t, nil)
	ctx := context.Background()
	_, err := svc.Create(ctx, "user-auth")
	require.NoError(t, err)

	conds, err := svc.CheckTransitionRequirements(ctx, "user-auth", workflow.PhaseComplete)
	require.NoError(t, err)
	assert.Contains(t, conditionCodes(conds), workflow.CondNotNextPhase)
}

func TestService_RecordValidation(t *testing.T) {
	pub := &capturePublisher{}
	svc := newService(t, pub)
	ctx := context.Background()
	_, err := svc.Create(ctx, "user-auth")
	require.NoError(t, err)

	st, err := svc.RecordValidation(ctx, "user-auth", workflow.PhaseRequirements, true)
	require.NoError(t, err)
	assert.True(t, st.ValidationPassed[workflow.PhaseRequirements])
	assert.Equal(t, int64(1), st.Version)

	recorded := pub.byType(events.TypeValidationRecorded)
	require.Len(t, recorded, 1)
	assert.Equal(t, "requirements", recorded[0].Phase)
	assert.True(t, recorded[0].Passed)
}

func TestService_PublisherFailureDoesNotFailOperation(t *testing.T) {
	svc := newService(t, failPublisher{})
	_, err := svc.Create(context.Background(), "user-auth")
	assert.NoError(t, err)
}

func TestService_ListOrdersByFeature(t *testing.T) {
	svc := newService(t, nil)
	ctx := context.Background()
	for _, name := range []string{"nu", "alpha"} {
		_, err := svc.Create(ctx, name)
		require.NoError(t, err)
	}

	states, err := svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, states, 2)
	assert.Equal(t, "alpha", states[0].FeatureName)
	assert.Equal(t, "nu", states[1].FeatureName)
}

func conditionCodes(conds []workflow.UnmetCondition) []workflow.ConditionCode {
	out := make([]workflow.ConditionCode, len(conds))
	for i, c := range conds {
		out[i] = c.Code
	}
	return out
}
