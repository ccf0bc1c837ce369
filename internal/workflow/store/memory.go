// Package store provides workflow state persistence backends: an
// in-memory store for tests and single-process use, and a SQLite store
// for durability. Both enforce the same optimistic concurrency
// contract.
package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/fyrsmithlabs/specd/internal/workflow"
)

// Memory is a map-backed workflow.Store. Safe for concurrent use.
type Memory struct {
	mu     sync.RWMutex
	states map[string]*workflow.State
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{states: make(map[string]*workflow.State)}
}

func (m *Memory) Create(_ context.Context, st *workflow.State) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.states[st.FeatureName]; ok {
		return fmt.Errorf("%s: %w", st.FeatureName, workflow.ErrAlreadyExists)
	}
	m.states[st.FeatureName] = st.Clone()
	return nil
}

func (m *Memory) Load(_ context.Context, feature string) (*workflow.State, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	st, ok := m.states[feature]
	if !ok {
		return nil, fmt.Errorf("%s: %w", feature, workflow.ErrNotFound)
	}
	return st.Clone(), nil
}

func (m *Memory) Save(_ context.Context, st *workflow.State, expectedVersion int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cur, ok := m.states[st.FeatureName]
	if !ok {
		return fmt.Errorf("%s: %w", st.FeatureName, workflow.ErrNotFound)
	}
	if cur.Version != expectedVersion {
		return fmt.Errorf("%s: expected version %d, have %d: %w",
			st.FeatureName, expectedVersion, cur.Version, workflow.ErrConflict)
	}
	m.states[st.FeatureName] = st.Clone()
	return nil
}

func (m *Memory) List(_ context.Context) ([]*workflow.State, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*workflow.State, 0, len(m.states))
	for _, st := range m.states {
		out = append(out, st.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].FeatureName < out[j].FeatureName
	})
	return out, nil
}
