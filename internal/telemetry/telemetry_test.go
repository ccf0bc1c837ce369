package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/specd/internal/config"
)

func TestNew_Disabled(t *testing.T) {
	tel, err := New(context.Background(), config.TelemetryConfig{Enabled: false}, "0.1.0", nil)
	require.NoError(t, err)
	require.NotNil(t, tel)

	assert.False(t, tel.Degraded())
	assert.NotNil(t, tel.Tracer("test"))
	assert.NotNil(t, tel.Meter("test"))
	assert.NoError(t, tel.Shutdown(context.Background()))
}

func TestNew_EnabledGRPC(t *testing.T) {
	cfg := config.TelemetryConfig{
		Enabled:     true,
		ServiceName: "specd-test",
		Endpoint:    "localhost:4317",
		Protocol:    "grpc",
		Insecure:    true,
		SampleRate:  0.5,
	}

	tel, err := New(context.Background(), cfg, "0.1.0", nil)
	require.NoError(t, err)
	assert.False(t, tel.Degraded())
	assert.NotNil(t, tel.Tracer("test"))
	assert.NotNil(t, tel.Meter("test"))

	// Nothing listens on the endpoint; shutdown must still return
	// once the deadline passes.
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	_ = tel.Shutdown(ctx)
}

func TestNew_EnabledHTTP(t *testing.T) {
	cfg := config.TelemetryConfig{
		Enabled:     true,
		ServiceName: "specd-test",
		Endpoint:    "http://localhost:4318",
		Protocol:    "http/protobuf",
		Insecure:    true,
		SampleRate:  1.0,
	}

	tel, err := New(context.Background(), cfg, "0.1.0", nil)
	require.NoError(t, err)
	assert.False(t, tel.Degraded())

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	_ = tel.Shutdown(ctx)
}

func TestNilTelemetry(t *testing.T) {
	var tel *Telemetry
	assert.False(t, tel.Degraded())
	assert.NotNil(t, tel.Tracer("test"))
	assert.NotNil(t, tel.Meter("test"))
	assert.NoError(t, tel.Shutdown(context.Background()))
}

func TestStripScheme(t *testing.T) {
	assert.Equal(t, "localhost:4318", stripScheme("http://localhost:4318"))
	assert.Equal(t, "otel.example.com:443", stripScheme("https://otel.example.com:443"))
	assert.Equal(t, "localhost:4318", stripScheme("localhost:4318"))
}
