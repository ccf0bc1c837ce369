package mcp

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/specd/internal/content"
	"github.com/fyrsmithlabs/specd/internal/specstore"
	"github.com/fyrsmithlabs/specd/internal/validation"
	"github.com/fyrsmithlabs/specd/internal/workflow"
	"github.com/fyrsmithlabs/specd/internal/workflow/store"
)

func newTestWorkflows(t *testing.T) workflow.Service {
	t.Helper()
	svc, err := workflow.NewService(&workflow.Config{Store: store.NewMemory()})
	require.NoError(t, err)
	return svc
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	srv, err := NewServer(nil, validation.NewService(nil), newTestWorkflows(t), content.NewLibrary(), nil)
	require.NoError(t, err)
	return srv
}

// newTestServerWithSpecs builds a server over a temp specs directory.
func newTestServerWithSpecs(t *testing.T) (*Server, *specstore.Store) {
	t.Helper()
	specs, err := specstore.New(t.TempDir(), zap.NewNop())
	require.NoError(t, err)

	srv, err := NewServer(nil, validation.NewService(nil), newTestWorkflows(t), content.NewLibrary(), specs)
	require.NoError(t, err)
	return srv, specs
}

func writeSpecDoc(t *testing.T, specs *specstore.Store, feature, fileName, text string) {
	t.Helper()
	dir := filepath.Join(specs.Root(), feature)
	require.NoError(t, os.MkdirAll(dir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, fileName), []byte(text), 0644))
}

func TestNewServer(t *testing.T) {
	validator := validation.NewService(nil)
	library := content.NewLibrary()

	t.Run("successful creation", func(t *testing.T) {
		cfg := &Config{Name: "test-server", Version: "1.0.0", Logger: zap.NewNop()}
		srv, err := NewServer(cfg, validator, newTestWorkflows(t), library, nil)
		require.NoError(t, err)
		require.NotNil(t, srv)
		require.NotNil(t, srv.mcp)
	})

	t.Run("nil config uses defaults", func(t *testing.T) {
		srv, err := NewServer(nil, validator, newTestWorkflows(t), library, nil)
		require.NoError(t, err)
		require.NotNil(t, srv)
	})

	t.Run("missing validation service", func(t *testing.T) {
		_, err := NewServer(nil, nil, newTestWorkflows(t), library, nil)
		require.Error(t, err)
		require.Contains(t, err.Error(), "validation service is required")
	})

	t.Run("missing workflow service", func(t *testing.T) {
		_, err := NewServer(nil, validator, nil, library, nil)
		require.Error(t, err)
		require.Contains(t, err.Error(), "workflow service is required")
	})

	t.Run("missing content library", func(t *testing.T) {
		_, err := NewServer(nil, validator, newTestWorkflows(t), nil, nil)
		require.Error(t, err)
		require.Contains(t, err.Error(), "content library is required")
	})
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	require.Equal(t, "specd", cfg.Name)
	require.Equal(t, "0.1.0", cfg.Version)
	require.NotNil(t, cfg.Logger)
}

func TestResolveContent(t *testing.T) {
	srv := newTestServer(t)

	t.Run("inline content wins", func(t *testing.T) {
		text, err := srv.resolveContent(context.Background(), "", "requirements", "# Requirements Document\n")
		require.NoError(t, err)
		require.Equal(t, "# Requirements Document\n", text)
	})

	t.Run("neither content nor feature", func(t *testing.T) {
		_, err := srv.resolveContent(context.Background(), "", "requirements", "")
		require.Error(t, err)
		require.Contains(t, err.Error(), "content or feature_name is required")
	})

	t.Run("feature without specs directory", func(t *testing.T) {
		_, err := srv.resolveContent(context.Background(), "user-auth", "requirements", "")
		require.Error(t, err)
		require.Contains(t, err.Error(), "no specs directory configured")
	})
}
