package main

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

var (
	// workflow command flags
	wfFromPhase  string
	wfReason     string
	wfOutputJSON bool
)

var workflowCmd = &cobra.Command{
	Use:   "workflow",
	Short: "Manage feature workflows",
	Long: `Manage phase-gated workflows for spec features.

A workflow starts in the requirements phase and advances through design and
tasks to complete. Each forward step needs a passing validation for the
current phase and explicit approval at transition time.

Examples:
  # Create a workflow
  specctl workflow create payments

  # Inspect it
  specctl workflow status payments

  # Check readiness, then approve the move to design
  specctl workflow check payments design
  specctl workflow approve payments design

  # Go back to requirements to revisit scope
  specctl workflow back payments requirements --reason "missing auth cases"`,
}

var workflowCreateCmd = &cobra.Command{
	Use:   "create <feature>",
	Short: "Create a workflow for a feature",
	Long: `Create a workflow for a feature. The feature name must be lowercase
letters, digits, and hyphens, and the workflow starts in the requirements phase.

Examples:
  # Create a workflow
  specctl workflow create payments`,
	Args: cobra.ExactArgs(1),
	RunE: runWorkflowCreate,
}

var workflowStatusCmd = &cobra.Command{
	Use:   "status <feature>",
	Short: "Show the state of a feature workflow",
	Long: `Show the current phase, recorded validations and approvals, and the
transition history of a feature workflow.

Examples:
  # Show workflow state
  specctl workflow status payments

  # Raw state as JSON
  specctl workflow status payments --json`,
	Args: cobra.ExactArgs(1),
	RunE: runWorkflowStatus,
}

var workflowListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all feature workflows",
	Long: `List all feature workflows known to the server.

Examples:
  # List workflows
  specctl workflow list`,
	RunE: runWorkflowList,
}

var workflowApproveCmd = &cobra.Command{
	Use:   "approve <feature> <target-phase>",
	Short: "Approve and execute a phase transition",
	Long: `Approve the transition of a feature workflow to the target phase and
execute it. The transition still fails when the phase order is wrong or the
current phase has no passing validation.

Examples:
  # Advance from requirements to design
  specctl workflow approve payments design

  # Pin the expected current phase so a stale view fails instead of advancing
  specctl workflow approve payments design --from requirements`,
	Args: cobra.ExactArgs(2),
	RunE: runWorkflowApprove,
}

var workflowBackCmd = &cobra.Command{
	Use:   "back <feature> <target-phase>",
	Short: "Move a workflow back to an earlier phase",
	Long: `Move a feature workflow back to an earlier phase. Backward moves need
no validation or approval, and the recorded approval for the target phase is
cleared so the redone work is approved again.

Examples:
  # Return to requirements
  specctl workflow back payments requirements --reason "missing auth cases"`,
	Args: cobra.ExactArgs(2),
	RunE: runWorkflowBack,
}

var workflowCheckCmd = &cobra.Command{
	Use:   "check <feature> <target-phase>",
	Short: "Check whether a transition is ready",
	Long: `Check whether a feature workflow could transition to the target phase.
Approval is granted at transition time, so it is always listed as an unmet
condition; ready means nothing else blocks the move.

Examples:
  # Check readiness for the move to design
  specctl workflow check payments design`,
	Args: cobra.ExactArgs(2),
	RunE: runWorkflowCheck,
}

func init() {
	rootCmd.AddCommand(workflowCmd)
	workflowCmd.AddCommand(workflowCreateCmd)
	workflowCmd.AddCommand(workflowStatusCmd)
	workflowCmd.AddCommand(workflowListCmd)
	workflowCmd.AddCommand(workflowApproveCmd)
	workflowCmd.AddCommand(workflowBackCmd)
	workflowCmd.AddCommand(workflowCheckCmd)

	workflowCmd.PersistentFlags().BoolVar(&wfOutputJSON, "json", false, "Output results as JSON")
	workflowApproveCmd.Flags().StringVar(&wfFromPhase, "from", "", "Phase the workflow is expected to be in")
	workflowBackCmd.Flags().StringVar(&wfReason, "reason", "", "Reason for moving backward")
}

// CreateWorkflowRequest matches internal/http/types.go CreateWorkflowRequest
type CreateWorkflowRequest struct {
	FeatureName string `json:"feature_name"`
}

// WorkflowState matches the state payload served by internal/http
type WorkflowState struct {
	FeatureName      string             `json:"feature_name"`
	CurrentPhase     string             `json:"current_phase"`
	Approved         map[string]bool    `json:"approved"`
	ValidationPassed map[string]bool    `json:"validation_passed"`
	History          []TransitionRecord `json:"history"`
	Version          int64              `json:"version"`
	CreatedAt        time.Time          `json:"created_at"`
	UpdatedAt        time.Time          `json:"updated_at"`
}

// TransitionRecord matches internal/workflow TransitionRecord
type TransitionRecord struct {
	ID        string    `json:"id"`
	From      string    `json:"from"`
	To        string    `json:"to"`
	Reason    string    `json:"reason,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// ListWorkflowsResponse matches internal/http/types.go ListWorkflowsResponse
type ListWorkflowsResponse struct {
	Workflows []WorkflowState `json:"workflows"`
	Count     int             `json:"count"`
}

// TransitionRequest matches internal/http/types.go TransitionPhaseRequest
type TransitionRequest struct {
	TargetPhase  string `json:"target_phase"`
	CurrentPhase string `json:"current_phase,omitempty"`
	Approved     bool   `json:"approved"`
}

// BackRequest matches internal/http/types.go BackRequest
type BackRequest struct {
	TargetPhase string `json:"target_phase"`
	Reason      string `json:"reason,omitempty"`
}

// TransitionCheckResponse matches internal/http/types.go TransitionCheckResponse
type TransitionCheckResponse struct {
	FeatureName   string           `json:"feature_name"`
	TargetPhase   string           `json:"target_phase"`
	CanTransition bool             `json:"can_transition"`
	Unmet         []UnmetCondition `json:"unmet"`
}

// runWorkflowCreate handles the workflow create command
func runWorkflowCreate(cmd *cobra.Command, args []string) error {
	req := CreateWorkflowRequest{FeatureName: args[0]}

	var st WorkflowState
	if err := postJSON("/api/v1/workflows", req, &st); err != nil {
		return err
	}

	if wfOutputJSON {
		return outputJSON(st)
	}
	fmt.Printf("Created workflow for %s (phase: %s)\n", st.FeatureName, st.CurrentPhase)
	return nil
}

// runWorkflowStatus handles the workflow status command
func runWorkflowStatus(cmd *cobra.Command, args []string) error {
	var st WorkflowState
	if err := getJSON("/api/v1/workflows/"+args[0], &st); err != nil {
		return err
	}

	if wfOutputJSON {
		return outputJSON(st)
	}
	printWorkflowState(&st)
	return nil
}

// runWorkflowList handles the workflow list command
func runWorkflowList(cmd *cobra.Command, args []string) error {
	var resp ListWorkflowsResponse
	if err := getJSON("/api/v1/workflows", &resp); err != nil {
		return err
	}

	if wfOutputJSON {
		return outputJSON(resp)
	}

	if resp.Count == 0 {
		fmt.Println("No workflows found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "FEATURE\tPHASE\tVERSION\tUPDATED")
	for _, st := range resp.Workflows {
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\n",
			st.FeatureName,
			st.CurrentPhase,
			st.Version,
			st.UpdatedAt.Format("2006-01-02 15:04"),
		)
	}
	w.Flush()

	return nil
}

// runWorkflowApprove handles the workflow approve command
func runWorkflowApprove(cmd *cobra.Command, args []string) error {
	req := TransitionRequest{
		TargetPhase:  args[1],
		CurrentPhase: wfFromPhase,
		Approved:     true,
	}

	var st WorkflowState
	if err := postJSON(fmt.Sprintf("/api/v1/workflows/%s/transition", args[0]), req, &st); err != nil {
		return err
	}

	if wfOutputJSON {
		return outputJSON(st)
	}
	fmt.Printf("Transitioned %s to %s\n", st.FeatureName, st.CurrentPhase)
	return nil
}

// runWorkflowBack handles the workflow back command
func runWorkflowBack(cmd *cobra.Command, args []string) error {
	req := BackRequest{
		TargetPhase: args[1],
		Reason:      wfReason,
	}

	var st WorkflowState
	if err := postJSON(fmt.Sprintf("/api/v1/workflows/%s/back", args[0]), req, &st); err != nil {
		return err
	}

	if wfOutputJSON {
		return outputJSON(st)
	}
	fmt.Printf("Moved %s back to %s\n", st.FeatureName, st.CurrentPhase)
	return nil
}

// runWorkflowCheck handles the workflow check command
func runWorkflowCheck(cmd *cobra.Command, args []string) error {
	var result TransitionCheckResponse
	path := fmt.Sprintf("/api/v1/workflows/%s/transition-check?target=%s", args[0], args[1])
	if err := getJSON(path, &result); err != nil {
		return err
	}

	if wfOutputJSON {
		return outputJSON(result)
	}

	fmt.Printf("Feature: %s\n", result.FeatureName)
	fmt.Printf("Target phase: %s\n", result.TargetPhase)
	if result.CanTransition {
		fmt.Println("Ready: yes (approval is confirmed by the transition itself)")
	} else {
		fmt.Println("Ready: no")
	}
	if len(result.Unmet) > 0 {
		fmt.Println("Unmet conditions:")
		fmt.Println(formatConditions(result.Unmet))
	}
	return nil
}

// phaseOrder lists phases in workflow order for stable output.
var phaseOrder = []string{"requirements", "design", "tasks", "complete"}

// printWorkflowState renders a workflow state for terminal output.
func printWorkflowState(st *WorkflowState) {
	fmt.Printf("Feature: %s\n", st.FeatureName)
	fmt.Printf("Phase: %s\n", st.CurrentPhase)
	fmt.Printf("Version: %d\n", st.Version)
	if passed := phasesWhere(st.ValidationPassed); len(passed) > 0 {
		fmt.Printf("Validated: %s\n", strings.Join(passed, ", "))
	}
	if approved := phasesWhere(st.Approved); len(approved) > 0 {
		fmt.Printf("Approved: %s\n", strings.Join(approved, ", "))
	}
	if len(st.History) > 0 {
		fmt.Println("History:")
		for _, rec := range st.History {
			when := rec.Timestamp.Format("2006-01-02 15:04")
			if rec.Reason != "" {
				fmt.Printf("  %s -> %s at %s (%s)\n", rec.From, rec.To, when, rec.Reason)
			} else {
				fmt.Printf("  %s -> %s at %s\n", rec.From, rec.To, when)
			}
		}
	}
}

// phasesWhere returns the phases marked true in m, in workflow order.
func phasesWhere(m map[string]bool) []string {
	var out []string
	for _, phase := range phaseOrder {
		if m[phase] {
			out = append(out, phase)
		}
	}
	return out
}
