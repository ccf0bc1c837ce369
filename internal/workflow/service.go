package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/specd/internal/events"
	"github.com/fyrsmithlabs/specd/internal/sanitize"
)

const instrumentationName = "github.com/fyrsmithlabs/specd/internal/workflow"

// TransitionRequest asks to advance a workflow one phase forward.
type TransitionRequest struct {
	Feature           string
	From              Phase
	To                Phase
	ApprovalConfirmed bool
}

// BackwardRequest asks to move a workflow to an earlier phase.
type BackwardRequest struct {
	Feature string
	Target  Phase
	Reason  string
}

// Service manages feature workflow lifecycles.
type Service interface {
	// Create starts a workflow in the requirements phase.
	Create(ctx context.Context, feature string) (*State, error)

	// Get returns the current state for a feature.
	Get(ctx context.Context, feature string) (*State, error)

	// List returns all workflow states.
	List(ctx context.Context) ([]*State, error)

	// Transition advances a workflow to the next phase. Every violated
	// precondition is reported in a single *Error.
	Transition(ctx context.Context, req TransitionRequest) (*State, error)

	// NavigateBackward moves a workflow to a strictly earlier phase,
	// clearing approvals and validation results for the target phase
	// and everything after it.
	NavigateBackward(ctx context.Context, req BackwardRequest) (*State, error)

	// CheckTransitionRequirements reports which preconditions a
	// forward transition to target would currently fail, without
	// mutating anything.
	CheckTransitionRequirements(ctx context.Context, feature string, target Phase) ([]UnmetCondition, error)

	// RecordValidation stores the outcome of the most recent document
	// validation for a phase.
	RecordValidation(ctx context.Context, feature string, phase Phase, passed bool) (*State, error)
}

// Config holds dependencies for the workflow service.
type Config struct {
	Store  Store
	Events events.Publisher
	Logger *zap.Logger
}

type service struct {
	store  Store
	events events.Publisher
	logger *zap.Logger
	tracer trace.Tracer
	now    func() time.Time
}

// NewService creates a workflow Service.
func NewService(cfg *Config) (Service, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if cfg.Store == nil {
		return nil, errors.New("store is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &service{
		store:  cfg.Store,
		events: cfg.Events,
		logger: logger,
		tracer: otel.Tracer(instrumentationName),
		now:    time.Now,
	}, nil
}

func (s *service) Create(ctx context.Context, feature string) (*State, error) {
	ctx, span := s.tracer.Start(ctx, "workflow.create")
	defer span.End()
	span.SetAttributes(attribute.String("workflow.feature", feature))

	if err := sanitize.ValidateFeatureName(feature); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	st := NewState(feature, s.now().UTC())
	if err := s.store.Create(ctx, st); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("create workflow %s: %w", feature, err)
	}

	s.logger.Info("workflow created", zap.String("feature", feature))
	s.publish(ctx, events.Event{
		Type:    events.TypeWorkflowCreated,
		Feature: feature,
		To:      PhaseRequirements.String(),
	})
	return st, nil
}

func (s *service) Get(ctx context.Context, feature string) (*State, error) {
	ctx, span := s.tracer.Start(ctx, "workflow.get")
	defer span.End()
	span.SetAttributes(attribute.String("workflow.feature", feature))

	st, err := s.store.Load(ctx, feature)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("load workflow %s: %w", feature, err)
	}
	return st, nil
}

func (s *service) List(ctx context.Context) ([]*State, error) {
	ctx, span := s.tracer.Start(ctx, "workflow.list")
	defer span.End()

	states, err := s.store.List(ctx)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("list workflows: %w", err)
	}
	span.SetAttributes(attribute.Int("workflow.count", len(states)))
	return states, nil
}

func (s *service) Transition(ctx context.Context, req TransitionRequest) (*State, error) {
	ctx, span := s.tracer.Start(ctx, "workflow.transition")
	defer span.End()
	span.SetAttributes(
		attribute.String("workflow.feature", req.Feature),
		attribute.String("workflow.from", req.From.String()),
		attribute.String("workflow.to", req.To.String()),
	)

	st, err := s.store.Load(ctx, req.Feature)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("load workflow %s: %w", req.Feature, err)
	}

	if conds := transitionConditions(st, req.From, req.To, req.ApprovalConfirmed); len(conds) > 0 {
		werr := &Error{Feature: req.Feature, Op: "transition", Conditions: conds}
		span.RecordError(werr)
		span.SetStatus(codes.Error, werr.Error())
		return nil, werr
	}

	expected := st.Version
	now := s.now().UTC()
	st.CurrentPhase = req.To
	st.Approved[req.From] = true
	st.History = append(st.History, TransitionRecord{
		ID:        uuid.New().String(),
		From:      req.From,
		To:        req.To,
		Timestamp: now,
	})
	st.Version++
	st.UpdatedAt = now

	if err := s.store.Save(ctx, st, expected); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("save workflow %s: %w", req.Feature, err)
	}

	s.logger.Info("workflow transitioned",
		zap.String("feature", req.Feature),
		zap.Stringer("from", req.From),
		zap.Stringer("to", req.To))
	s.publish(ctx, events.Event{
		Type:    events.TypeWorkflowTransitioned,
		Feature: req.Feature,
		From:    req.From.String(),
		To:      req.To.String(),
	})
	return st, nil
}

func (s *service) NavigateBackward(ctx context.Context, req BackwardRequest) (*State, error) {
	ctx, span := s.tracer.Start(ctx, "workflow.navigate_backward")
	defer span.End()
	span.SetAttributes(
		attribute.String("workflow.feature", req.Feature),
		attribute.String("workflow.target", req.Target.String()),
	)

	st, err := s.store.Load(ctx, req.Feature)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("load workflow %s: %w", req.Feature, err)
	}

	if !req.Target.Before(st.CurrentPhase) {
		werr := &Error{
			Feature: req.Feature,
			Op:      "navigate_backward",
			Conditions: []UnmetCondition{{
				Code:    CondTargetNotEarlier,
				Message: fmt.Sprintf("target phase %s does not precede current phase %s", req.Target, st.CurrentPhase),
			}},
		}
		span.RecordError(werr)
		span.SetStatus(codes.Error, werr.Error())
		return nil, werr
	}

	expected := st.Version
	now := s.now().UTC()
	from := st.CurrentPhase

	// Returning to a phase voids its approval and everything after it.
	for _, p := range Phases() {
		if !p.Before(req.Target) {
			delete(st.Approved, p)
			delete(st.ValidationPassed, p)
		}
	}
	st.CurrentPhase = req.Target
	st.History = append(st.History, TransitionRecord{
		ID:        uuid.New().String(),
		From:      from,
		To:        req.Target,
		Reason:    req.Reason,
		Timestamp: now,
	})
	st.Version++
	st.UpdatedAt = now

	if err := s.store.Save(ctx, st, expected); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("save workflow %s: %w", req.Feature, err)
	}

	s.logger.Info("workflow navigated backward",
		zap.String("feature", req.Feature),
		zap.Stringer("from", from),
		zap.Stringer("to", req.Target),
		zap.String("reason", req.Reason))
	s.publish(ctx, events.Event{
		Type:    events.TypeWorkflowReverted,
		Feature: req.Feature,
		From:    from.String(),
		To:      req.Target.String(),
		Reason:  req.Reason,
	})
	return st, nil
}

func (s *service) CheckTransitionRequirements(ctx context.Context, feature string, target Phase) ([]UnmetCondition, error) {
	ctx, span := s.tracer.Start(ctx, "workflow.check_transition_requirements")
	defer span.End()
	span.SetAttributes(
		attribute.String("workflow.feature", feature),
		attribute.String("workflow.target", target.String()),
	)

	st, err := s.store.Load(ctx, feature)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("load workflow %s: %w", feature, err)
	}

	// Approval is supplied at transition time, so it always shows as
	// unmet here.
	conds := transitionConditions(st, st.CurrentPhase, target, false)
	span.SetAttributes(attribute.Int("workflow.unmet_conditions", len(conds)))
	return conds, nil
}

func (s *service) RecordValidation(ctx context.Context, feature string, phase Phase, passed bool) (*State, error) {
	ctx, span := s.tracer.Start(ctx, "workflow.record_validation")
	defer span.End()
	span.SetAttributes(
		attribute.String("workflow.feature", feature),
		attribute.String("workflow.phase", phase.String()),
		attribute.Bool("workflow.passed", passed),
	)

	st, err := s.store.Load(ctx, feature)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("load workflow %s: %w", feature, err)
	}

	expected := st.Version
	st.ValidationPassed[phase] = passed
	st.Version++
	st.UpdatedAt = s.now().UTC()

	if err := s.store.Save(ctx, st, expected); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("save workflow %s: %w", feature, err)
	}

	s.logger.Info("validation recorded",
		zap.String("feature", feature),
		zap.Stringer("phase", phase),
		zap.Bool("passed", passed))
	s.publish(ctx, events.Event{
		Type:    events.TypeValidationRecorded,
		Feature: feature,
		Phase:   phase.String(),
		Passed:  passed,
	})
	return st, nil
}

// transitionConditions evaluates every forward-transition gate and
// returns all that fail.
func transitionConditions(st *State, from, to Phase, approvalConfirmed bool) []UnmetCondition {
	var conds []UnmetCondition

	if from != st.CurrentPhase {
		conds = append(conds, UnmetCondition{
			Code:    CondWrongCurrentPhase,
			Message: fmt.Sprintf("workflow is in phase %s, not %s", st.CurrentPhase, from),
		})
	}

	next, ok := from.Next()
	switch {
	case !ok:
		conds = append(conds, UnmetCondition{
			Code:    CondNotNextPhase,
			Message: fmt.Sprintf("phase %s has no next phase", from),
		})
	case to != next:
		conds = append(conds, UnmetCondition{
			Code:    CondNotNextPhase,
			Message: fmt.Sprintf("phase %s does not follow %s; next is %s", to, from, next),
		})
	}

	if !st.ValidationPassed[from] {
		conds = append(conds, UnmetCondition{
			Code:    CondValidationNotPassed,
			Message: fmt.Sprintf("phase %s has not passed validation", from),
		})
	}
	if !approvalConfirmed {
		conds = append(conds, UnmetCondition{
			Code:    CondApprovalNotConfirmed,
			Message: fmt.Sprintf("approval not confirmed for phase %s", from),
		})
	}
	return conds
}

func (s *service) publish(ctx context.Context, ev events.Event) {
	if s.events == nil {
		return
	}
	if err := s.events.Publish(ctx, ev); err != nil {
		s.logger.Warn("failed to publish event",
			zap.String("type", ev.Type),
			zap.String("feature", ev.Feature),
			zap.Error(err))
	}
}
