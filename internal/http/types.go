package http

import (
	"github.com/fyrsmithlabs/specd/internal/report"
	"github.com/fyrsmithlabs/specd/internal/traceability"
	"github.com/fyrsmithlabs/specd/internal/workflow"
)

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error string `json:"error"`

	// Conditions lists the unmet transition preconditions when a
	// workflow operation was blocked.
	Conditions []workflow.UnmetCondition `json:"conditions,omitempty"`
}

// ValidateRequest is the request body for POST /api/v1/validate.
type ValidateRequest struct {
	DocumentType        string `json:"document_type"`
	Content             string `json:"content"`
	RequirementsContent string `json:"requirements_content,omitempty"`
	DesignContent       string `json:"design_content,omitempty"`
	TasksContent        string `json:"tasks_content,omitempty"`
	Strict              bool   `json:"strict,omitempty"`
}

// ValidateResponse is the response body for POST /api/v1/validate.
type ValidateResponse struct {
	report.Report
	ErrorCount   int `json:"error_count"`
	WarningCount int `json:"warning_count"`
}

// TraceabilityRequest is the request body for POST /api/v1/traceability.
type TraceabilityRequest struct {
	RequirementsContent string `json:"requirements_content"`
	DesignContent       string `json:"design_content,omitempty"`
	TasksContent        string `json:"tasks_content,omitempty"`
}

// CitationRef is one resolved or unresolved requirement citation.
type CitationRef struct {
	ID     string `json:"id"`
	Line   int    `json:"line"`
	Source string `json:"source"`
}

// ElementRef names a design element and where it starts.
type ElementRef struct {
	Name string `json:"name"`
	Line int    `json:"line"`
}

// TaskRef names a task and where it starts.
type TaskRef struct {
	ID   string `json:"id"`
	Line int    `json:"line"`
}

// TraceabilityResponse is the response body for POST /api/v1/traceability.
type TraceabilityResponse struct {
	RequirementIDs     []string                 `json:"requirement_ids"`
	CoveragePercent    int                      `json:"coverage_percent"`
	Citations          map[string][]CitationRef `json:"citations"`
	OrphanRequirements []string                 `json:"orphan_requirements"`
	OrphanElements     []ElementRef             `json:"orphan_elements"`
	UncitedTasks       []TaskRef                `json:"uncited_tasks"`
	UnknownCitations   []CitationRef            `json:"unknown_citations"`
}

func newTraceabilityResponse(rep *traceability.Report) TraceabilityResponse {
	resp := TraceabilityResponse{
		RequirementIDs:     rep.RequirementIDs,
		CoveragePercent:    100,
		Citations:          make(map[string][]CitationRef, len(rep.Citations)),
		OrphanRequirements: rep.OrphanRequirements,
		OrphanElements:     make([]ElementRef, 0, len(rep.OrphanElements)),
		UncitedTasks:       make([]TaskRef, 0, len(rep.UncitedTasks)),
		UnknownCitations:   newCitationRefs(rep.UnknownCitations),
	}
	if len(rep.RequirementIDs) > 0 {
		covered := len(rep.RequirementIDs) - len(rep.OrphanRequirements)
		resp.CoveragePercent = covered * 100 / len(rep.RequirementIDs)
	}
	for id, cites := range rep.Citations {
		resp.Citations[id] = newCitationRefs(cites)
	}
	for _, el := range rep.OrphanElements {
		resp.OrphanElements = append(resp.OrphanElements, ElementRef{Name: el.Name, Line: el.Line})
	}
	for _, task := range rep.UncitedTasks {
		resp.UncitedTasks = append(resp.UncitedTasks, TaskRef{ID: task.ID, Line: task.Line})
	}
	return resp
}

func newCitationRefs(cites []traceability.Citation) []CitationRef {
	out := make([]CitationRef, 0, len(cites))
	for _, cite := range cites {
		out = append(out, CitationRef{ID: cite.ID, Line: cite.Line, Source: string(cite.Source)})
	}
	return out
}

// CreateWorkflowRequest is the request body for POST /api/v1/workflows.
type CreateWorkflowRequest struct {
	FeatureName string `json:"feature_name"`
}

// ListWorkflowsResponse is the response body for GET /api/v1/workflows.
type ListWorkflowsResponse struct {
	Workflows []*workflow.State `json:"workflows"`
	Count     int               `json:"count"`
}

// TransitionPhaseRequest is the request body for
// POST /api/v1/workflows/:feature/transition.
type TransitionPhaseRequest struct {
	TargetPhase string `json:"target_phase"`

	// CurrentPhase pins the phase the client believes the workflow is
	// in. When set, a stale client fails the transition instead of
	// silently advancing from somewhere else.
	CurrentPhase string `json:"current_phase,omitempty"`

	Approved bool `json:"approved"`
}

// BackRequest is the request body for POST /api/v1/workflows/:feature/back.
type BackRequest struct {
	TargetPhase string `json:"target_phase"`
	Reason      string `json:"reason,omitempty"`
}

// TransitionCheckResponse is the response body for
// GET /api/v1/workflows/:feature/transition-check.
type TransitionCheckResponse struct {
	FeatureName string `json:"feature_name"`
	TargetPhase string `json:"target_phase"`

	// CanTransition is true when only explicit approval is still
	// missing. Approval is granted at transition time, so it always
	// appears in Unmet.
	CanTransition bool                      `json:"can_transition"`
	Unmet         []workflow.UnmetCondition `json:"unmet"`
}
