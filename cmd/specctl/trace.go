package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	// trace command flags
	traceReqsFile   string
	traceDesignFile string
	traceTasksFile  string
	traceJSON       bool
)

// traceCmd checks requirement traceability across a document set
var traceCmd = &cobra.Command{
	Use:   "trace",
	Short: "Check requirement traceability across spec documents",
	Long: `Check requirement traceability across a feature's requirements, design, and
tasks documents using the specd server.

The requirements document is required, plus at least one downstream document.
The report lists citation coverage, orphan requirements, design elements with
no citations, and tasks that reference nothing.

Examples:
  # Full document chain
  specctl trace --requirements specs/payments/requirements.md \
    --design specs/payments/design.md --tasks specs/payments/tasks.md

  # Requirements against design only
  specctl trace --requirements requirements.md --design design.md`,
	RunE: runTrace,
}

func init() {
	rootCmd.AddCommand(traceCmd)

	traceCmd.Flags().StringVar(&traceReqsFile, "requirements", "", "Requirements document (required)")
	traceCmd.Flags().StringVar(&traceDesignFile, "design", "", "Design document")
	traceCmd.Flags().StringVar(&traceTasksFile, "tasks", "", "Tasks document")
	traceCmd.Flags().BoolVar(&traceJSON, "json", false, "Output results as JSON")
}

// TraceRequest matches internal/http/types.go TraceabilityRequest
type TraceRequest struct {
	RequirementsContent string `json:"requirements_content"`
	DesignContent       string `json:"design_content,omitempty"`
	TasksContent        string `json:"tasks_content,omitempty"`
}

// TraceResponse matches internal/http/types.go TraceabilityResponse
type TraceResponse struct {
	RequirementIDs     []string                 `json:"requirement_ids"`
	CoveragePercent    int                      `json:"coverage_percent"`
	Citations          map[string][]CitationRef `json:"citations"`
	OrphanRequirements []string                 `json:"orphan_requirements"`
	OrphanElements     []ElementRef             `json:"orphan_elements"`
	UncitedTasks       []TaskRef                `json:"uncited_tasks"`
	UnknownCitations   []CitationRef            `json:"unknown_citations"`
}

// CitationRef matches internal/http/types.go CitationRef
type CitationRef struct {
	ID     string `json:"id"`
	Line   int    `json:"line"`
	Source string `json:"source"`
}

// ElementRef matches internal/http/types.go ElementRef
type ElementRef struct {
	Name string `json:"name"`
	Line int    `json:"line"`
}

// TaskRef matches internal/http/types.go TaskRef
type TaskRef struct {
	ID   string `json:"id"`
	Line int    `json:"line"`
}

// runTrace handles the trace command
func runTrace(cmd *cobra.Command, args []string) error {
	if traceReqsFile == "" {
		return fmt.Errorf("--requirements is required")
	}
	if traceDesignFile == "" && traceTasksFile == "" {
		return fmt.Errorf("at least one of --design or --tasks is required")
	}

	var req TraceRequest
	var err error
	if req.RequirementsContent, err = readCompanion(traceReqsFile); err != nil {
		return err
	}
	if req.DesignContent, err = readCompanion(traceDesignFile); err != nil {
		return err
	}
	if req.TasksContent, err = readCompanion(traceTasksFile); err != nil {
		return err
	}

	var result TraceResponse
	if err := postJSON("/api/v1/traceability", req, &result); err != nil {
		return err
	}

	if traceJSON {
		return outputJSON(result)
	}

	fmt.Printf("Coverage: %d%% (%d requirement(s))\n", result.CoveragePercent, len(result.RequirementIDs))
	for _, id := range result.RequirementIDs {
		citations := result.Citations[id]
		if len(citations) == 0 {
			fmt.Printf("  requirement %s: no citations\n", id)
			continue
		}
		fmt.Printf("  requirement %s: %d citation(s)\n", id, len(citations))
	}

	if len(result.OrphanRequirements) > 0 {
		fmt.Println("Orphan requirements:")
		for _, id := range result.OrphanRequirements {
			fmt.Printf("  - %s\n", id)
		}
	}
	if len(result.OrphanElements) > 0 {
		fmt.Println("Design elements with no citations:")
		for _, el := range result.OrphanElements {
			fmt.Printf("  - %s (line %d)\n", el.Name, el.Line)
		}
	}
	if len(result.UncitedTasks) > 0 {
		fmt.Println("Tasks with no requirement references:")
		for _, task := range result.UncitedTasks {
			fmt.Printf("  - task %s (line %d)\n", task.ID, task.Line)
		}
	}
	if len(result.UnknownCitations) > 0 {
		fmt.Println("Citations of unknown requirements:")
		for _, cit := range result.UnknownCitations {
			fmt.Printf("  - %s (%s, line %d)\n", cit.ID, cit.Source, cit.Line)
		}
	}

	if len(result.OrphanRequirements) == 0 && len(result.OrphanElements) == 0 &&
		len(result.UncitedTasks) == 0 && len(result.UnknownCitations) == 0 {
		fmt.Println("No traceability gaps found")
	}
	return nil
}
