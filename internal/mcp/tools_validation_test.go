package mcp

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/specd/internal/workflow"
)

const reqsFixture = `# Requirements Document

## Introduction

The engine validates phase documents.

## Requirements

### Requirement 1: Parsing

**User Story:** As a developer, I want documents parsed, so that structure is visible.

#### Acceptance Criteria

1. WHEN a document is submitted THEN the system SHALL parse it into sections

### Requirement 2: Reporting

**User Story:** As a reviewer, I want scored reports, so that quality is measurable.

#### Acceptance Criteria

1. WHEN validation finishes THEN the system SHALL return a scored report
`

var designFixture = "# Design Document\n\n" +
	"## Overview\n\nThe engine parses documents and checks them.\n\n" +
	"## Architecture\n\n```mermaid\ngraph TD\n    Client --> Engine\n```\n\n" +
	"## Components and Interfaces\n\n" +
	"### Parser\n\nSplits documents into sections. _Requirements: 1_\n\n" +
	"## Data Models\n\nSections, issues, reports.\n\n" +
	"## Error Handling\n\nParse failures fail the report.\n\n" +
	"## Testing Strategy\n\nTable-driven tests per rule.\n"

const tasksFixtureMCP = `# Implementation Plan

- [x] 1. Create the parser
  - _Requirements: 1.1_

- [ ] 2. Build the report formatter
  - _Requirements: 2.1_
`

func TestValidateDocument_InlinePassing(t *testing.T) {
	srv := newTestServer(t)

	_, out, err := srv.handleValidateDocument(context.Background(), nil, validateDocumentInput{
		DocumentType: "requirements",
		Content:      reqsFixture,
	})
	require.NoError(t, err)

	assert.Equal(t, "requirements", out.DocumentType)
	assert.Equal(t, 100, out.Score)
	assert.True(t, out.Passed)
	assert.Zero(t, out.ErrorCount)
	assert.Zero(t, out.WarningCount)
	assert.False(t, out.Recorded)
}

func TestValidateDocument_UnknownType(t *testing.T) {
	srv := newTestServer(t)

	_, _, err := srv.handleValidateDocument(context.Background(), nil, validateDocumentInput{
		DocumentType: "memo",
		Content:      "# Memo\n",
	})
	assert.Error(t, err)
}

func TestValidateDocument_RequiresContentOrFeature(t *testing.T) {
	srv := newTestServer(t)

	_, _, err := srv.handleValidateDocument(context.Background(), nil, validateDocumentInput{
		DocumentType: "requirements",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "content or feature_name is required")
}

func TestValidateDocument_RecordsOutcome(t *testing.T) {
	srv, specs := newTestServerWithSpecs(t)
	ctx := context.Background()

	_, err := srv.workflows.Create(ctx, "user-auth")
	require.NoError(t, err)
	writeSpecDoc(t, specs, "user-auth", "requirements.md", reqsFixture)

	_, out, err := srv.handleValidateDocument(ctx, nil, validateDocumentInput{
		DocumentType: "requirements",
		FeatureName:  "user-auth",
	})
	require.NoError(t, err)
	assert.True(t, out.Passed)
	assert.True(t, out.Recorded)

	st, err := srv.workflows.Get(ctx, "user-auth")
	require.NoError(t, err)
	assert.True(t, st.ValidationPassed[workflow.PhaseRequirements])
}

func TestValidateDocument_RecordsFailure(t *testing.T) {
	srv, specs := newTestServerWithSpecs(t)
	ctx := context.Background()

	_, err := srv.workflows.Create(ctx, "user-auth")
	require.NoError(t, err)
	writeSpecDoc(t, specs, "user-auth", "requirements.md", "just some notes\n")

	_, out, err := srv.handleValidateDocument(ctx, nil, validateDocumentInput{
		DocumentType: "requirements",
		FeatureName:  "user-auth",
	})
	require.NoError(t, err)
	assert.False(t, out.Passed)
	assert.True(t, out.Recorded)

	st, err := srv.workflows.Get(ctx, "user-auth")
	require.NoError(t, err)
	assert.False(t, st.ValidationPassed[workflow.PhaseRequirements])
}

func TestValidateDocument_NoWorkflowStillValidates(t *testing.T) {
	srv, specs := newTestServerWithSpecs(t)
	writeSpecDoc(t, specs, "user-auth", "requirements.md", reqsFixture)

	_, out, err := srv.handleValidateDocument(context.Background(), nil, validateDocumentInput{
		DocumentType: "requirements",
		FeatureName:  "user-auth",
	})
	require.NoError(t, err)
	assert.True(t, out.Passed)
	assert.False(t, out.Recorded)
}

func TestValidateDocument_LoadsCompanionsFromSpecs(t *testing.T) {
	srv, specs := newTestServerWithSpecs(t)
	writeSpecDoc(t, specs, "user-auth", "requirements.md", reqsFixture)
	writeSpecDoc(t, specs, "user-auth", "tasks.md", "# Implementation Plan\n\n- [ ] 1. Build the exporter\n  - _Requirements: 9.1_\n")

	_, out, err := srv.handleValidateDocument(context.Background(), nil, validateDocumentInput{
		DocumentType: "tasks",
		FeatureName:  "user-auth",
	})
	require.NoError(t, err)

	assert.Equal(t, 1, out.ErrorCount)
	found := false
	for _, issue := range out.Issues {
		if issue.Severity == "error" && strings.Contains(issue.Message, "references unknown requirement 9") {
			found = true
		}
	}
	assert.True(t, found, "expected an unknown requirement citation error, got %v", out.Issues)
}

func TestCheckTraceability_FullCoverage(t *testing.T) {
	srv := newTestServer(t)

	_, out, err := srv.handleCheckTraceability(context.Background(), nil, checkTraceabilityInput{
		RequirementsContent: reqsFixture,
		DesignContent:       designFixture,
		TasksContent:        tasksFixtureMCP,
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"1", "2"}, out.RequirementIDs)
	assert.Equal(t, 100, out.CoveragePercent)
	assert.Empty(t, out.OrphanRequirements)
	assert.Empty(t, out.OrphanElements)
	assert.Empty(t, out.UncitedTasks)
	assert.Empty(t, out.UnknownCitations)
}

func TestCheckTraceability_ReportsGaps(t *testing.T) {
	srv := newTestServer(t)

	_, out, err := srv.handleCheckTraceability(context.Background(), nil, checkTraceabilityInput{
		RequirementsContent: reqsFixture,
		DesignContent:       designFixture,
	})
	require.NoError(t, err)

	assert.Equal(t, 50, out.CoveragePercent)
	assert.Equal(t, []string{"2"}, out.OrphanRequirements)
}

func TestCheckTraceability_FromSpecsDirectory(t *testing.T) {
	srv, specs := newTestServerWithSpecs(t)
	writeSpecDoc(t, specs, "user-auth", "requirements.md", reqsFixture)
	writeSpecDoc(t, specs, "user-auth", "design.md", designFixture)
	writeSpecDoc(t, specs, "user-auth", "tasks.md", tasksFixtureMCP)

	_, out, err := srv.handleCheckTraceability(context.Background(), nil, checkTraceabilityInput{
		FeatureName: "user-auth",
	})
	require.NoError(t, err)
	assert.Equal(t, 100, out.CoveragePercent)
}

func TestCheckTraceability_RequiresRequirements(t *testing.T) {
	srv := newTestServer(t)

	_, _, err := srv.handleCheckTraceability(context.Background(), nil, checkTraceabilityInput{
		DesignContent: designFixture,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "content or feature_name is required")
}

func TestGetValidationChecklist(t *testing.T) {
	srv := newTestServer(t)

	_, out, err := srv.handleGetValidationChecklist(context.Background(), nil, getValidationChecklistInput{
		DocumentType: "design",
	})
	require.NoError(t, err)
	assert.Equal(t, "design", out.DocumentType)
	assert.Contains(t, out.Checklist, "Design Document Validation Checklist")

	_, _, err = srv.handleGetValidationChecklist(context.Background(), nil, getValidationChecklistInput{
		DocumentType: "memo",
	})
	assert.Error(t, err)
}

func TestExplainValidationError(t *testing.T) {
	srv := newTestServer(t)

	_, out, err := srv.handleExplainValidationError(context.Background(), nil, explainValidationErrorInput{
		ErrorKind: "ears_format",
	})
	require.NoError(t, err)
	assert.Equal(t, "ears_format", out.ErrorKind)
	assert.Contains(t, out.Explanation, "EARS")

	_, _, err = srv.handleExplainValidationError(context.Background(), nil, explainValidationErrorInput{
		ErrorKind: "mystery",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "available:")
}
