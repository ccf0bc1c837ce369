package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
)

var (
	// validate command flags
	validateType       string
	validateStrict     bool
	validateReqsFile   string
	validateDesignFile string
	validateTasksFile  string
	validateJSON       bool
)

// validateCmd validates a single spec document
var validateCmd = &cobra.Command{
	Use:   "validate [file]",
	Short: "Validate a spec document",
	Long: `Validate a requirements, design, or tasks document using the specd server.

The document type is taken from --type, or inferred from the file name when the
flag is omitted. Companion documents extend the report with traceability
findings, for example citation checks when validating a design document.

Examples:
  # Validate a requirements document
  specctl validate specs/payments/requirements.md

  # Validate from stdin
  cat design.md | specctl validate --type design -

  # Validate a design document against its requirements
  specctl validate specs/payments/design.md --requirements specs/payments/requirements.md

  # Escalate traceability warnings to errors
  specctl validate --strict specs/payments/tasks.md --requirements specs/payments/requirements.md`,
	Args: cobra.MaximumNArgs(1),
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().StringVar(&validateType, "type", "", "Document type: requirements, design, or tasks")
	validateCmd.Flags().BoolVar(&validateStrict, "strict", false, "Escalate traceability warnings to errors")
	validateCmd.Flags().StringVar(&validateReqsFile, "requirements", "", "Companion requirements document")
	validateCmd.Flags().StringVar(&validateDesignFile, "design", "", "Companion design document")
	validateCmd.Flags().StringVar(&validateTasksFile, "tasks", "", "Companion tasks document")
	validateCmd.Flags().BoolVar(&validateJSON, "json", false, "Output results as JSON")
}

// ValidateRequest matches internal/http/types.go ValidateRequest
type ValidateRequest struct {
	DocumentType        string `json:"document_type"`
	Content             string `json:"content"`
	RequirementsContent string `json:"requirements_content,omitempty"`
	DesignContent       string `json:"design_content,omitempty"`
	TasksContent        string `json:"tasks_content,omitempty"`
	Strict              bool   `json:"strict,omitempty"`
}

// ValidateResponse matches internal/http/types.go ValidateResponse
type ValidateResponse struct {
	DocumentType string  `json:"document_type"`
	Issues       []Issue `json:"issues"`
	Score        int     `json:"score"`
	Passed       bool    `json:"passed"`
	ErrorCount   int     `json:"error_count"`
	WarningCount int     `json:"warning_count"`
}

// Issue matches internal/report Issue
type Issue struct {
	Severity string `json:"severity"`
	Message  string `json:"message"`
	Line     int    `json:"line,omitempty"`
}

// runValidate handles the validate command
func runValidate(cmd *cobra.Command, args []string) error {
	content, err := readDocument(args)
	if err != nil {
		return err
	}
	if len(content) == 0 {
		return fmt.Errorf("no content to validate")
	}

	docType := validateType
	if docType == "" && len(args) == 1 {
		docType = inferDocumentType(args[0])
	}
	if docType == "" {
		return fmt.Errorf("document type is unknown: pass --type or name the file requirements.md, design.md, or tasks.md")
	}

	req := ValidateRequest{
		DocumentType: docType,
		Content:      string(content),
		Strict:       validateStrict,
	}
	if req.RequirementsContent, err = readCompanion(validateReqsFile); err != nil {
		return err
	}
	if req.DesignContent, err = readCompanion(validateDesignFile); err != nil {
		return err
	}
	if req.TasksContent, err = readCompanion(validateTasksFile); err != nil {
		return err
	}

	var result ValidateResponse
	if err := postJSON("/api/v1/validate", req, &result); err != nil {
		return err
	}

	if validateJSON {
		return outputJSON(result)
	}

	for _, issue := range result.Issues {
		fmt.Println(formatIssue(issue))
	}
	fmt.Printf("Score: %d/100 (%d error(s), %d warning(s))\n", result.Score, result.ErrorCount, result.WarningCount)
	if !result.Passed {
		fmt.Println("Result: FAIL")
		return fmt.Errorf("validation failed with %d error(s)", result.ErrorCount)
	}
	fmt.Println("Result: PASS")
	return nil
}

// readDocument reads the document under validation from a file or stdin.
func readDocument(args []string) ([]byte, error) {
	if len(args) == 0 || args[0] == "-" {
		content, err := io.ReadAll(os.Stdin)
		if err != nil {
			return nil, fmt.Errorf("failed to read from stdin: %w", err)
		}
		return content, nil
	}

	content, err := os.ReadFile(args[0])
	if err != nil {
		return nil, fmt.Errorf("failed to read file %s: %w", args[0], err)
	}
	return content, nil
}

// readCompanion reads an optional companion document. An empty path means
// the companion was not supplied.
func readCompanion(path string) (string, error) {
	if path == "" {
		return "", nil
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read file %s: %w", path, err)
	}
	return string(content), nil
}

// inferDocumentType guesses the document type from a file name. Returns an
// empty string when the name gives no hint.
func inferDocumentType(path string) string {
	name := strings.ToLower(filepath.Base(path))
	switch {
	case strings.HasPrefix(name, "requirements"):
		return "requirements"
	case strings.HasPrefix(name, "design"):
		return "design"
	case strings.HasPrefix(name, "tasks"):
		return "tasks"
	default:
		return ""
	}
}

// formatIssue renders one report issue for terminal output.
func formatIssue(issue Issue) string {
	if issue.Line > 0 {
		return fmt.Sprintf("%s (line %d): %s", issue.Severity, issue.Line, issue.Message)
	}
	return fmt.Sprintf("%s: %s", issue.Severity, issue.Message)
}
