// Package events publishes workflow lifecycle notifications over NATS.
// Subjects follow specs.workflow.{feature}.{event} for state changes
// and specs.validation.{feature}.{phase} for validation outcomes, so
// consumers can subscribe with wildcards.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

const (
	TypeWorkflowCreated      = "workflow.created"
	TypeWorkflowTransitioned = "workflow.transitioned"
	TypeWorkflowReverted     = "workflow.reverted"
	TypeValidationRecorded   = "validation.recorded"
)

// Event is the wire payload for every notification.
type Event struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Feature string `json:"feature"`

	// From and To are set for transitions and reverts.
	From string `json:"from,omitempty"`
	To   string `json:"to,omitempty"`

	// Phase and Passed are set for validation outcomes.
	Phase  string `json:"phase,omitempty"`
	Passed bool   `json:"passed"`

	Reason    string    `json:"reason,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Subject returns the NATS subject the event is published on.
func (e Event) Subject() string {
	suffix := e.Type
	if i := strings.LastIndex(e.Type, "."); i >= 0 {
		suffix = e.Type[i+1:]
	}
	if e.Type == TypeValidationRecorded {
		return fmt.Sprintf("specs.validation.%s.%s", e.Feature, e.Phase)
	}
	return fmt.Sprintf("specs.workflow.%s.%s", e.Feature, suffix)
}

// Publisher delivers events. Implementations must be safe for
// concurrent use.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// NATSPublisher publishes events on a NATS connection. A nil publisher
// or nil connection silently drops events so callers need no guards.
type NATSPublisher struct {
	nc     *nats.Conn
	logger *zap.Logger
}

func NewNATSPublisher(nc *nats.Conn, logger *zap.Logger) *NATSPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NATSPublisher{nc: nc, logger: logger}
}

func (p *NATSPublisher) Publish(_ context.Context, ev Event) error {
	if p == nil || p.nc == nil {
		return nil
	}
	if ev.ID == "" {
		ev.ID = uuid.New().String()
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}

	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := p.nc.Publish(ev.Subject(), data); err != nil {
		return fmt.Errorf("publish %s: %w", ev.Subject(), err)
	}
	p.logger.Debug("published event",
		zap.String("subject", ev.Subject()),
		zap.String("type", ev.Type),
		zap.String("feature", ev.Feature))
	return nil
}
