package mcp

import (
	"context"
	"errors"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/specd/internal/document"
	"github.com/fyrsmithlabs/specd/internal/report"
	"github.com/fyrsmithlabs/specd/internal/traceability"
	"github.com/fyrsmithlabs/specd/internal/validation"
	"github.com/fyrsmithlabs/specd/internal/workflow"
)

type validateDocumentInput struct {
	DocumentType string `json:"document_type" jsonschema:"required,Document type: requirements design or tasks"`
	Content      string `json:"content,omitempty" jsonschema:"Markdown content to validate; loaded from the feature directory when omitted"`
	FeatureName  string `json:"feature_name,omitempty" jsonschema:"Feature whose workflow records the validation outcome"`
	Strict       bool   `json:"strict,omitempty" jsonschema:"Escalate traceability gap warnings to errors"`
}

type issuePayload struct {
	Severity string `json:"severity" jsonschema:"error or warning"`
	Message  string `json:"message" jsonschema:"What is wrong and where"`
	Line     int    `json:"line,omitempty" jsonschema:"1-based line number, 0 for document-level issues"`
}

type validateDocumentOutput struct {
	DocumentType string         `json:"document_type" jsonschema:"Validated document type"`
	FeatureName  string         `json:"feature_name,omitempty" jsonschema:"Feature the validation was recorded against"`
	Score        int            `json:"score" jsonschema:"Quality score 0-100"`
	Passed       bool           `json:"passed" jsonschema:"True when no errors were found"`
	ErrorCount   int            `json:"error_count" jsonschema:"Number of error severity issues"`
	WarningCount int            `json:"warning_count" jsonschema:"Number of warning severity issues"`
	Issues       []issuePayload `json:"issues" jsonschema:"All issues ordered by line"`
	Recorded     bool           `json:"recorded,omitempty" jsonschema:"True when the outcome was recorded in the feature workflow"`
}

type checkTraceabilityInput struct {
	FeatureName         string `json:"feature_name,omitempty" jsonschema:"Feature whose documents are loaded from the specs directory"`
	RequirementsContent string `json:"requirements_content,omitempty" jsonschema:"Requirements document content"`
	DesignContent       string `json:"design_content,omitempty" jsonschema:"Design document content"`
	TasksContent        string `json:"tasks_content,omitempty" jsonschema:"Tasks document content"`
}

type citationPayload struct {
	ID     string `json:"id" jsonschema:"Requirement ID as written in the citation"`
	Line   int    `json:"line" jsonschema:"Line the citation appears on"`
	Source string `json:"source" jsonschema:"Document the citation came from"`
}

type checkTraceabilityOutput struct {
	RequirementIDs     []string          `json:"requirement_ids" jsonschema:"All requirement IDs in document order"`
	CoveragePercent    int               `json:"coverage_percent" jsonschema:"Share of requirements cited downstream"`
	OrphanRequirements []string          `json:"orphan_requirements" jsonschema:"Requirements nothing downstream cites"`
	OrphanElements     []string          `json:"orphan_elements" jsonschema:"Design elements citing no requirements"`
	UncitedTasks       []string          `json:"uncited_tasks" jsonschema:"Tasks citing no requirements"`
	UnknownCitations   []citationPayload `json:"unknown_citations" jsonschema:"Citations of requirement IDs that do not exist"`
}

type getValidationChecklistInput struct {
	DocumentType string `json:"document_type" jsonschema:"required,Document type: requirements design or tasks"`
}

type getValidationChecklistOutput struct {
	DocumentType string `json:"document_type" jsonschema:"Document type the checklist covers"`
	Checklist    string `json:"checklist" jsonschema:"Checklist in markdown"`
}

type explainValidationErrorInput struct {
	ErrorKind string `json:"error_kind" jsonschema:"required,Error kind reported by validation (ears_format user_story_format missing_section numbering task_format traceability)"`
}

type explainValidationErrorOutput struct {
	ErrorKind   string `json:"error_kind" jsonschema:"Explained error kind"`
	Explanation string `json:"explanation" jsonschema:"Explanation with common mistakes and fixes"`
}

func (s *Server) registerValidationTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "validate_document",
		Description: "Validate a requirements, design, or tasks document and return a scored issue report",
	}, instrument(s, "validate_document", s.handleValidateDocument))

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "check_traceability",
		Description: "Check requirement coverage across requirements, design, and tasks documents",
	}, instrument(s, "check_traceability", s.handleCheckTraceability))

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "get_validation_checklist",
		Description: "Get the validation checklist for a document type",
	}, instrument(s, "get_validation_checklist", s.handleGetValidationChecklist))

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "explain_validation_error",
		Description: "Explain a validation error kind with common mistakes and how to fix them",
	}, instrument(s, "explain_validation_error", s.handleExplainValidationError))
}

func (s *Server) handleValidateDocument(ctx context.Context, _ *mcp.CallToolRequest, args validateDocumentInput) (*mcp.CallToolResult, validateDocumentOutput, error) {
	docType, err := document.ParseType(args.DocumentType)
	if err != nil {
		return nil, validateDocumentOutput{}, err
	}

	text, err := s.resolveContent(ctx, args.FeatureName, docType, args.Content)
	if err != nil {
		return nil, validateDocumentOutput{}, err
	}

	req := &validation.Request{
		DocumentType: docType,
		Content:      text,
		Strict:       args.Strict,
	}
	switch docType {
	case document.TypeRequirements:
		req.DesignContent = s.loadCompanion(ctx, args.FeatureName, document.TypeDesign)
		req.TasksContent = s.loadCompanion(ctx, args.FeatureName, document.TypeTasks)
	default:
		req.RequirementsContent = s.loadCompanion(ctx, args.FeatureName, document.TypeRequirements)
	}

	rep, err := s.validator.Validate(ctx, req)
	if err != nil {
		return nil, validateDocumentOutput{}, err
	}

	out := validateDocumentOutput{
		DocumentType: string(docType),
		FeatureName:  args.FeatureName,
		Score:        rep.Score,
		Passed:       rep.Passed,
		ErrorCount:   len(rep.Errors()),
		WarningCount: len(rep.Warnings()),
		Issues:       issuePayloads(rep.Issues),
	}

	if args.FeatureName != "" {
		out.Recorded = s.recordOutcome(ctx, args.FeatureName, docType, rep.Passed)
	}

	return textResult("%s validation: score %d/100, %d error(s), %d warning(s)",
		docType, rep.Score, out.ErrorCount, out.WarningCount), out, nil
}

// recordOutcome stores the validation result in the feature workflow.
// A feature without a workflow is not an error; the report stands on
// its own.
func (s *Server) recordOutcome(ctx context.Context, feature string, docType document.Type, passed bool) bool {
	phase, err := workflow.ParsePhase(string(docType))
	if err != nil {
		return false
	}
	if _, err := s.workflows.RecordValidation(ctx, feature, phase, passed); err != nil {
		if errors.Is(err, workflow.ErrNotFound) {
			s.logger.Debug("no workflow for validated feature",
				zap.String("feature", feature))
		} else {
			s.logger.Warn("failed to record validation outcome",
				zap.String("feature", feature),
				zap.Error(err))
		}
		return false
	}
	return true
}

func (s *Server) handleCheckTraceability(ctx context.Context, _ *mcp.CallToolRequest, args checkTraceabilityInput) (*mcp.CallToolResult, checkTraceabilityOutput, error) {
	reqs, err := s.resolveContent(ctx, args.FeatureName, document.TypeRequirements, args.RequirementsContent)
	if err != nil {
		return nil, checkTraceabilityOutput{}, err
	}

	design := args.DesignContent
	if design == "" {
		design = s.loadCompanion(ctx, args.FeatureName, document.TypeDesign)
	}
	tasks := args.TasksContent
	if tasks == "" {
		tasks = s.loadCompanion(ctx, args.FeatureName, document.TypeTasks)
	}

	rep, err := s.validator.CheckTraceability(ctx, &validation.TraceabilityRequest{
		RequirementsContent: reqs,
		DesignContent:       design,
		TasksContent:        tasks,
	})
	if err != nil {
		return nil, checkTraceabilityOutput{}, err
	}

	out := traceabilityPayload(rep)
	return textResult("traceability: %d%% of %d requirement(s) covered, %d orphan(s), %d unknown citation(s)",
		out.CoveragePercent, len(out.RequirementIDs), len(out.OrphanRequirements), len(out.UnknownCitations)), out, nil
}

func (s *Server) handleGetValidationChecklist(_ context.Context, _ *mcp.CallToolRequest, args getValidationChecklistInput) (*mcp.CallToolResult, getValidationChecklistOutput, error) {
	docType, err := document.ParseType(args.DocumentType)
	if err != nil {
		return nil, getValidationChecklistOutput{}, err
	}

	checklist, err := s.library.Checklist(docType)
	if err != nil {
		return nil, getValidationChecklistOutput{}, err
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: checklist}},
	}, getValidationChecklistOutput{DocumentType: string(docType), Checklist: checklist}, nil
}

func (s *Server) handleExplainValidationError(_ context.Context, _ *mcp.CallToolRequest, args explainValidationErrorInput) (*mcp.CallToolResult, explainValidationErrorOutput, error) {
	explanation, err := s.library.Explain(args.ErrorKind)
	if err != nil {
		return nil, explainValidationErrorOutput{}, err
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: explanation}},
	}, explainValidationErrorOutput{ErrorKind: args.ErrorKind, Explanation: explanation}, nil
}

func issuePayloads(issues []report.Issue) []issuePayload {
	out := make([]issuePayload, len(issues))
	for i, issue := range issues {
		out[i] = issuePayload{
			Severity: string(issue.Severity),
			Message:  issue.Message,
			Line:     issue.Line,
		}
	}
	return out
}

func traceabilityPayload(rep *traceability.Report) checkTraceabilityOutput {
	out := checkTraceabilityOutput{
		RequirementIDs:     rep.RequirementIDs,
		OrphanRequirements: rep.OrphanRequirements,
		CoveragePercent:    100,
	}
	if len(rep.RequirementIDs) > 0 {
		covered := len(rep.RequirementIDs) - len(rep.OrphanRequirements)
		out.CoveragePercent = covered * 100 / len(rep.RequirementIDs)
	}
	for _, el := range rep.OrphanElements {
		out.OrphanElements = append(out.OrphanElements, el.Name)
	}
	for _, task := range rep.UncitedTasks {
		out.UncitedTasks = append(out.UncitedTasks, task.ID)
	}
	for _, cite := range rep.UnknownCitations {
		out.UnknownCitations = append(out.UnknownCitations, citationPayload{
			ID:     cite.ID,
			Line:   cite.Line,
			Source: string(cite.Source),
		})
	}
	return out
}
