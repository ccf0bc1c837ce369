package watch

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/specd/internal/document"
	"github.com/fyrsmithlabs/specd/internal/specstore"
	"github.com/fyrsmithlabs/specd/internal/validation"
	"github.com/fyrsmithlabs/specd/internal/workflow"
)

// RecorderConfig holds dependencies for a Recorder.
type RecorderConfig struct {
	Specs     *specstore.Store
	Validator validation.Service
	Workflows workflow.Service
	Logger    *zap.Logger
}

// Recorder consumes change events, re-validates the changed document,
// and records the outcome into the feature's workflow state. Features
// without a workflow are skipped.
type Recorder struct {
	specs     *specstore.Store
	validator validation.Service
	workflows workflow.Service
	logger    *zap.Logger
}

// NewRecorder creates a Recorder.
func NewRecorder(cfg *RecorderConfig) (*Recorder, error) {
	if cfg == nil {
		return nil, errors.New("recorder config is required")
	}
	if cfg.Specs == nil {
		return nil, errors.New("spec store is required")
	}
	if cfg.Validator == nil {
		return nil, errors.New("validation service is required")
	}
	if cfg.Workflows == nil {
		return nil, errors.New("workflow service is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Recorder{
		specs:     cfg.Specs,
		validator: cfg.Validator,
		workflows: cfg.Workflows,
		logger:    logger,
	}, nil
}

// Run consumes events until the channel closes or the context is
// canceled.
func (r *Recorder) Run(ctx context.Context, events <-chan ChangeEvent) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			r.record(ctx, ev)
		}
	}
}

func (r *Recorder) record(ctx context.Context, ev ChangeEvent) {
	content, err := r.specs.LoadDocument(ctx, ev.Feature, ev.DocType)
	if err != nil {
		r.logger.Warn("cannot load changed document",
			zap.String("feature", ev.Feature),
			zap.String("document", string(ev.DocType)),
			zap.Error(err))
		return
	}

	req := &validation.Request{
		DocumentType: ev.DocType,
		Content:      content,
	}
	if ev.DocType != document.TypeRequirements {
		// Requirements context sharpens design and tasks validation;
		// its absence is not a reason to skip recording.
		if reqs, err := r.specs.LoadDocument(ctx, ev.Feature, document.TypeRequirements); err == nil {
			req.RequirementsContent = reqs
		}
	}

	rep, err := r.validator.Validate(ctx, req)
	if err != nil {
		r.logger.Warn("validation failed for changed document",
			zap.String("feature", ev.Feature),
			zap.String("document", string(ev.DocType)),
			zap.Error(err))
		return
	}

	phase, err := workflow.ParsePhase(string(ev.DocType))
	if err != nil {
		return
	}

	if _, err := r.workflows.RecordValidation(ctx, ev.Feature, phase, rep.Passed); err != nil {
		if errors.Is(err, workflow.ErrNotFound) {
			r.logger.Debug("no workflow for changed document",
				zap.String("feature", ev.Feature))
			return
		}
		r.logger.Warn("cannot record validation outcome",
			zap.String("feature", ev.Feature),
			zap.Error(err))
		return
	}

	r.logger.Info("recorded validation for changed document",
		zap.String("feature", ev.Feature),
		zap.String("document", string(ev.DocType)),
		zap.Int("score", rep.Score),
		zap.Bool("passed", rep.Passed))
}
