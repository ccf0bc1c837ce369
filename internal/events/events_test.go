package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	natsserver "github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func startTestNATSServer(t *testing.T) *natsserver.Server {
	t.Helper()
	opts := &natsserver.Options{
		Host:   "127.0.0.1",
		Port:   -1,
		NoLog:  true,
		NoSigs: true,
	}
	srv, err := natsserver.NewServer(opts)
	require.NoError(t, err)

	go srv.Start()
	if !srv.ReadyForConnections(5 * time.Second) {
		t.Fatal("nats server did not become ready")
	}
	t.Cleanup(srv.Shutdown)
	return srv
}

func TestSubject(t *testing.T) {
	tests := []struct {
		ev   Event
		want string
	}{
		{Event{Type: TypeWorkflowCreated, Feature: "user-auth"}, "specs.workflow.user-auth.created"},
		{Event{Type: TypeWorkflowTransitioned, Feature: "user-auth"}, "specs.workflow.user-auth.transitioned"},
		{Event{Type: TypeWorkflowReverted, Feature: "user-auth"}, "specs.workflow.user-auth.reverted"},
		{Event{Type: TypeValidationRecorded, Feature: "user-auth", Phase: "design"}, "specs.validation.user-auth.design"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.ev.Subject())
	}
}

func TestNATSPublisher_Publish(t *testing.T) {
	srv := startTestNATSServer(t)

	nc, err := nats.Connect(srv.ClientURL())
	require.NoError(t, err)
	t.Cleanup(nc.Close)

	msgs := make(chan *nats.Msg, 4)
	sub, err := nc.ChanSubscribe("specs.workflow.>", msgs)
	require.NoError(t, err)
	t.Cleanup(func() { _ = sub.Unsubscribe() })

	pub := NewNATSPublisher(nc, zap.NewNop())
	err = pub.Publish(context.Background(), Event{
		Type:    TypeWorkflowTransitioned,
		Feature: "user-auth",
		From:    "requirements",
		To:      "design",
	})
	require.NoError(t, err)

	select {
	case msg := <-msgs:
		assert.Equal(t, "specs.workflow.user-auth.transitioned", msg.Subject)

		var got Event
		require.NoError(t, json.Unmarshal(msg.Data, &got))
		assert.Equal(t, "user-auth", got.Feature)
		assert.Equal(t, "requirements", got.From)
		assert.Equal(t, "design", got.To)
		assert.NotEmpty(t, got.ID)
		assert.False(t, got.Timestamp.IsZero())
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestNATSPublisher_NilConnectionDropsEvents(t *testing.T) {
	pub := NewNATSPublisher(nil, nil)
	assert.NoError(t, pub.Publish(context.Background(), Event{Type: TypeWorkflowCreated, Feature: "x"}))

	var nilPub *NATSPublisher
	assert.NoError(t, nilPub.Publish(context.Background(), Event{Type: TypeWorkflowCreated, Feature: "x"}))
}
