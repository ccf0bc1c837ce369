package mcp

import (
	"context"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/fyrsmithlabs/specd/internal/workflow"
)

type createWorkflowInput struct {
	FeatureName string `json:"feature_name" jsonschema:"required,Kebab-case feature name, e.g. user-auth"`
}

type transitionRecordPayload struct {
	ID        string    `json:"id" jsonschema:"Transition record ID"`
	From      string    `json:"from" jsonschema:"Phase the workflow left"`
	To        string    `json:"to" jsonschema:"Phase the workflow entered"`
	Reason    string    `json:"reason,omitempty" jsonschema:"Reason given for a backward navigation"`
	Timestamp time.Time `json:"timestamp" jsonschema:"When the transition happened"`
}

type workflowStatePayload struct {
	FeatureName      string                    `json:"feature_name" jsonschema:"Feature the workflow tracks"`
	CurrentPhase     string                    `json:"current_phase" jsonschema:"Current lifecycle phase"`
	Approved         map[string]bool           `json:"approved,omitempty" jsonschema:"Phases approved by a completed forward transition"`
	ValidationPassed map[string]bool           `json:"validation_passed,omitempty" jsonschema:"Latest validation outcome per phase"`
	History          []transitionRecordPayload `json:"history,omitempty" jsonschema:"Transition history, oldest first"`
	Version          int64                     `json:"version" jsonschema:"Optimistic concurrency version"`
	CreatedAt        time.Time                 `json:"created_at" jsonschema:"When the workflow was created"`
	UpdatedAt        time.Time                 `json:"updated_at" jsonschema:"When the workflow last changed"`
}

type getWorkflowStatusInput struct {
	FeatureName string `json:"feature_name" jsonschema:"required,Feature name"`
}

type transitionPhaseInput struct {
	FeatureName  string `json:"feature_name" jsonschema:"required,Feature name"`
	TargetPhase  string `json:"target_phase" jsonschema:"required,Phase to advance to: design tasks or complete"`
	CurrentPhase string `json:"current_phase,omitempty" jsonschema:"Phase the caller believes the workflow is in; checked when given"`
	Approved     bool   `json:"approved,omitempty" jsonschema:"Explicit user approval for leaving the current phase"`
}

type navigateBackwardInput struct {
	FeatureName string `json:"feature_name" jsonschema:"required,Feature name"`
	TargetPhase string `json:"target_phase" jsonschema:"required,Earlier phase to return to"`
	Reason      string `json:"reason,omitempty" jsonschema:"Why the workflow is moving backward"`
}

type checkTransitionInput struct {
	FeatureName string `json:"feature_name" jsonschema:"required,Feature name"`
	TargetPhase string `json:"target_phase" jsonschema:"required,Phase to check a forward transition to"`
}

type unmetConditionPayload struct {
	Code    string `json:"code" jsonschema:"Machine-readable condition code"`
	Message string `json:"message" jsonschema:"What is unmet and how to satisfy it"`
}

type checkTransitionOutput struct {
	FeatureName   string                  `json:"feature_name" jsonschema:"Feature name"`
	TargetPhase   string                  `json:"target_phase" jsonschema:"Checked target phase"`
	CanTransition bool                    `json:"can_transition" jsonschema:"True when only explicit approval is still missing"`
	Unmet         []unmetConditionPayload `json:"unmet" jsonschema:"Preconditions the transition currently fails, approval included"`
}

type workflowSummaryPayload struct {
	FeatureName  string    `json:"feature_name" jsonschema:"Feature the workflow tracks"`
	CurrentPhase string    `json:"current_phase" jsonschema:"Current lifecycle phase"`
	Version      int64     `json:"version" jsonschema:"Optimistic concurrency version"`
	UpdatedAt    time.Time `json:"updated_at" jsonschema:"When the workflow last changed"`
}

type listWorkflowsInput struct{}

type listWorkflowsOutput struct {
	Workflows []workflowSummaryPayload `json:"workflows" jsonschema:"All workflows sorted by feature name"`
	Count     int                      `json:"count" jsonschema:"Number of workflows"`
}

func (s *Server) registerWorkflowTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "create_workflow",
		Description: "Create a feature workflow starting in the requirements phase",
	}, instrument(s, "create_workflow", s.handleCreateWorkflow))

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "get_workflow_status",
		Description: "Get the current phase, approvals, and history of a feature workflow",
	}, instrument(s, "get_workflow_status", s.handleGetWorkflowStatus))

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "transition_phase",
		Description: "Advance a workflow to the next phase; requires passed validation and explicit approval",
	}, instrument(s, "transition_phase", s.handleTransitionPhase))

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "navigate_backward",
		Description: "Move a workflow back to an earlier phase, voiding later approvals",
	}, instrument(s, "navigate_backward", s.handleNavigateBackward))

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "check_transition_requirements",
		Description: "Report which preconditions a forward transition would currently fail, without changing anything",
	}, instrument(s, "check_transition_requirements", s.handleCheckTransition))

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "list_workflows",
		Description: "List all feature workflows with their current phases",
	}, instrument(s, "list_workflows", s.handleListWorkflows))
}

func (s *Server) handleCreateWorkflow(ctx context.Context, _ *mcp.CallToolRequest, args createWorkflowInput) (*mcp.CallToolResult, workflowStatePayload, error) {
	st, err := s.workflows.Create(ctx, args.FeatureName)
	if err != nil {
		return nil, workflowStatePayload{}, err
	}

	out := statePayload(st)
	return textResult("workflow created for %s in %s phase", st.FeatureName, st.CurrentPhase), out, nil
}

func (s *Server) handleGetWorkflowStatus(ctx context.Context, _ *mcp.CallToolRequest, args getWorkflowStatusInput) (*mcp.CallToolResult, workflowStatePayload, error) {
	st, err := s.workflows.Get(ctx, args.FeatureName)
	if err != nil {
		return nil, workflowStatePayload{}, err
	}

	out := statePayload(st)
	return textResult("workflow %s is in %s phase (version %d)", st.FeatureName, st.CurrentPhase, st.Version), out, nil
}

func (s *Server) handleTransitionPhase(ctx context.Context, _ *mcp.CallToolRequest, args transitionPhaseInput) (*mcp.CallToolResult, workflowStatePayload, error) {
	target, err := workflow.ParsePhase(args.TargetPhase)
	if err != nil {
		return nil, workflowStatePayload{}, err
	}

	from, err := s.resolveCurrentPhase(ctx, args.FeatureName, args.CurrentPhase)
	if err != nil {
		return nil, workflowStatePayload{}, err
	}

	st, err := s.workflows.Transition(ctx, workflow.TransitionRequest{
		Feature:           args.FeatureName,
		From:              from,
		To:                target,
		ApprovalConfirmed: args.Approved,
	})
	if err != nil {
		return nil, workflowStatePayload{}, err
	}

	out := statePayload(st)
	return textResult("workflow %s advanced to %s phase", st.FeatureName, st.CurrentPhase), out, nil
}

// resolveCurrentPhase uses the caller's stated phase when given so a
// stale client fails the transition instead of silently advancing
// from somewhere else.
func (s *Server) resolveCurrentPhase(ctx context.Context, feature, stated string) (workflow.Phase, error) {
	if stated != "" {
		return workflow.ParsePhase(stated)
	}
	st, err := s.workflows.Get(ctx, feature)
	if err != nil {
		return 0, err
	}
	return st.CurrentPhase, nil
}

func (s *Server) handleNavigateBackward(ctx context.Context, _ *mcp.CallToolRequest, args navigateBackwardInput) (*mcp.CallToolResult, workflowStatePayload, error) {
	target, err := workflow.ParsePhase(args.TargetPhase)
	if err != nil {
		return nil, workflowStatePayload{}, err
	}

	st, err := s.workflows.NavigateBackward(ctx, workflow.BackwardRequest{
		Feature: args.FeatureName,
		Target:  target,
		Reason:  args.Reason,
	})
	if err != nil {
		return nil, workflowStatePayload{}, err
	}

	out := statePayload(st)
	return textResult("workflow %s moved back to %s phase", st.FeatureName, st.CurrentPhase), out, nil
}

func (s *Server) handleCheckTransition(ctx context.Context, _ *mcp.CallToolRequest, args checkTransitionInput) (*mcp.CallToolResult, checkTransitionOutput, error) {
	target, err := workflow.ParsePhase(args.TargetPhase)
	if err != nil {
		return nil, checkTransitionOutput{}, err
	}

	unmet, err := s.workflows.CheckTransitionRequirements(ctx, args.FeatureName, target)
	if err != nil {
		return nil, checkTransitionOutput{}, err
	}

	// Approval is granted at transition time, so it is always listed
	// as unmet; readiness means nothing else is.
	out := checkTransitionOutput{
		FeatureName:   args.FeatureName,
		TargetPhase:   target.String(),
		CanTransition: true,
		Unmet:         make([]unmetConditionPayload, 0, len(unmet)),
	}
	for _, c := range unmet {
		if c.Code != workflow.CondApprovalNotConfirmed {
			out.CanTransition = false
		}
		out.Unmet = append(out.Unmet, unmetConditionPayload{
			Code:    string(c.Code),
			Message: c.Message,
		})
	}

	if out.CanTransition {
		return textResult("workflow %s is ready to advance to %s pending approval", args.FeatureName, target), out, nil
	}
	return textResult("workflow %s cannot advance to %s yet: %d condition(s) unmet", args.FeatureName, target, len(out.Unmet)), out, nil
}

func (s *Server) handleListWorkflows(ctx context.Context, _ *mcp.CallToolRequest, _ listWorkflowsInput) (*mcp.CallToolResult, listWorkflowsOutput, error) {
	states, err := s.workflows.List(ctx)
	if err != nil {
		return nil, listWorkflowsOutput{}, err
	}

	out := listWorkflowsOutput{
		Workflows: make([]workflowSummaryPayload, 0, len(states)),
		Count:     len(states),
	}
	for _, st := range states {
		out.Workflows = append(out.Workflows, workflowSummaryPayload{
			FeatureName:  st.FeatureName,
			CurrentPhase: st.CurrentPhase.String(),
			Version:      st.Version,
			UpdatedAt:    st.UpdatedAt,
		})
	}

	return textResult("%d workflow(s)", out.Count), out, nil
}

func statePayload(st *workflow.State) workflowStatePayload {
	out := workflowStatePayload{
		FeatureName:      st.FeatureName,
		CurrentPhase:     st.CurrentPhase.String(),
		Approved:         phaseMap(st.Approved),
		ValidationPassed: phaseMap(st.ValidationPassed),
		Version:          st.Version,
		CreatedAt:        st.CreatedAt,
		UpdatedAt:        st.UpdatedAt,
	}
	for _, rec := range st.History {
		out.History = append(out.History, transitionRecordPayload{
			ID:        rec.ID,
			From:      rec.From.String(),
			To:        rec.To.String(),
			Reason:    rec.Reason,
			Timestamp: rec.Timestamp,
		})
	}
	return out
}

func phaseMap(m map[workflow.Phase]bool) map[string]bool {
	if len(m) == 0 {
		return nil
	}
	out := make(map[string]bool, len(m))
	for phase, v := range m {
		out[phase.String()] = v
	}
	return out
}
