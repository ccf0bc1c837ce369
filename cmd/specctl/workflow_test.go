package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPhasesWhere(t *testing.T) {
	tests := []struct {
		name   string
		phases map[string]bool
		want   []string
	}{
		{
			name:   "keeps workflow order",
			phases: map[string]bool{"tasks": true, "requirements": true},
			want:   []string{"requirements", "tasks"},
		},
		{
			name:   "skips false entries",
			phases: map[string]bool{"design": true, "complete": false},
			want:   []string{"design"},
		},
		{
			name:   "empty map",
			phases: map[string]bool{},
			want:   nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := phasesWhere(tt.phases)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("phasesWhere(%v) = %v, want %v", tt.phases, got, tt.want)
			}
		})
	}
}

// resetWorkflowFlags restores the workflow command flags between tests.
func resetWorkflowFlags() {
	wfFromPhase = ""
	wfReason = ""
	wfOutputJSON = false
}

func testWorkflowState(feature, phase string) WorkflowState {
	now := time.Date(2026, 3, 14, 10, 30, 0, 0, time.UTC)
	return WorkflowState{
		FeatureName:      feature,
		CurrentPhase:     phase,
		Approved:         map[string]bool{},
		ValidationPassed: map[string]bool{},
		Version:          1,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

func TestRunWorkflowCreate(t *testing.T) {
	defer resetWorkflowFlags()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/v1/workflows", r.URL.Path)

		var req CreateWorkflowRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "payments", req.FeatureName)

		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(testWorkflowState("payments", "requirements"))
	}))
	defer server.Close()

	oldServerURL := serverURL
	serverURL = server.URL
	defer func() { serverURL = oldServerURL }()

	err := runWorkflowCreate(nil, []string{"payments"})

	require.NoError(t, err)
}

func TestRunWorkflowStatus(t *testing.T) {
	defer resetWorkflowFlags()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/workflows/payments", r.URL.Path)

		st := testWorkflowState("payments", "design")
		st.ValidationPassed["requirements"] = true
		st.Approved["requirements"] = true
		st.History = []TransitionRecord{
			{ID: "t1", From: "requirements", To: "design", Timestamp: st.CreatedAt},
		}
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(st)
	}))
	defer server.Close()

	oldServerURL := serverURL
	serverURL = server.URL
	defer func() { serverURL = oldServerURL }()

	err := runWorkflowStatus(nil, []string{"payments"})

	require.NoError(t, err)
}

func TestRunWorkflowList(t *testing.T) {
	defer resetWorkflowFlags()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/workflows", r.URL.Path)

		resp := ListWorkflowsResponse{
			Workflows: []WorkflowState{
				testWorkflowState("payments", "design"),
				testWorkflowState("user-auth", "requirements"),
			},
			Count: 2,
		}
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	oldServerURL := serverURL
	serverURL = server.URL
	defer func() { serverURL = oldServerURL }()

	err := runWorkflowList(nil, nil)

	require.NoError(t, err)
}

func TestRunWorkflowApprove(t *testing.T) {
	t.Run("executes an approved transition", func(t *testing.T) {
		defer resetWorkflowFlags()

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/api/v1/workflows/payments/transition", r.URL.Path)

			var req TransitionRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, "design", req.TargetPhase)
			assert.True(t, req.Approved)

			w.WriteHeader(http.StatusOK)
			_ = json.NewEncoder(w).Encode(testWorkflowState("payments", "design"))
		}))
		defer server.Close()

		oldServerURL := serverURL
		serverURL = server.URL
		defer func() { serverURL = oldServerURL }()

		err := runWorkflowApprove(nil, []string{"payments", "design"})

		require.NoError(t, err)
	})

	t.Run("pins the expected phase", func(t *testing.T) {
		defer resetWorkflowFlags()
		wfFromPhase = "requirements"

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var req TransitionRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, "requirements", req.CurrentPhase)

			w.WriteHeader(http.StatusOK)
			_ = json.NewEncoder(w).Encode(testWorkflowState("payments", "design"))
		}))
		defer server.Close()

		oldServerURL := serverURL
		serverURL = server.URL
		defer func() { serverURL = oldServerURL }()

		err := runWorkflowApprove(nil, []string{"payments", "design"})

		require.NoError(t, err)
	})

	t.Run("surfaces blocked transitions", func(t *testing.T) {
		defer resetWorkflowFlags()

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnprocessableEntity)
			_ = json.NewEncoder(w).Encode(ErrorResponse{
				Error: "workflow payments: transition blocked: validation_not_passed",
				Conditions: []UnmetCondition{
					{Code: "validation_not_passed", Message: "requirements validation has not passed"},
				},
			})
		}))
		defer server.Close()

		oldServerURL := serverURL
		serverURL = server.URL
		defer func() { serverURL = oldServerURL }()

		err := runWorkflowApprove(nil, []string{"payments", "design"})

		require.Error(t, err)
		assert.Contains(t, err.Error(), "status 422")
		assert.Contains(t, err.Error(), "validation_not_passed: requirements validation has not passed")
	})
}

func TestRunWorkflowBack(t *testing.T) {
	defer resetWorkflowFlags()
	wfReason = "missing auth cases"

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/workflows/payments/back", r.URL.Path)

		var req BackRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "requirements", req.TargetPhase)
		assert.Equal(t, "missing auth cases", req.Reason)

		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(testWorkflowState("payments", "requirements"))
	}))
	defer server.Close()

	oldServerURL := serverURL
	serverURL = server.URL
	defer func() { serverURL = oldServerURL }()

	err := runWorkflowBack(nil, []string{"payments", "requirements"})

	require.NoError(t, err)
}

func TestRunWorkflowCheck(t *testing.T) {
	defer resetWorkflowFlags()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/workflows/payments/transition-check", r.URL.Path)
		assert.Equal(t, "design", r.URL.Query().Get("target"))

		resp := TransitionCheckResponse{
			FeatureName:   "payments",
			TargetPhase:   "design",
			CanTransition: true,
			Unmet: []UnmetCondition{
				{Code: "approval_not_confirmed", Message: "transition to design requires explicit approval"},
			},
		}
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	oldServerURL := serverURL
	serverURL = server.URL
	defer func() { serverURL = oldServerURL }()

	err := runWorkflowCheck(nil, []string{"payments", "design"})

	require.NoError(t, err)
}
