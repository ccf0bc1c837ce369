// Package report defines the issue and scoring model shared by every
// validation pass.
package report

import (
	"fmt"
	"sort"

	"github.com/fyrsmithlabs/specd/internal/document"
)

// Severity grades an issue. Errors fail the document, warnings only
// lower its score.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

const (
	maxScore       = 100
	errorPenalty   = 10
	warningPenalty = 2
)

// Issue is one finding against a document.
type Issue struct {
	Severity Severity `json:"severity"`
	Message  string   `json:"message"`

	// Line is 1-based. Zero means the issue applies to the document as
	// a whole.
	Line int `json:"line,omitempty"`
}

// Report is the aggregated outcome of validating one document.
type Report struct {
	DocumentType document.Type `json:"document_type"`
	Issues       []Issue       `json:"issues"`
	Score        int           `json:"score"`
	Passed       bool          `json:"passed"`

	final bool
}

// New starts an empty report for a document type.
func New(docType document.Type) *Report {
	return &Report{DocumentType: docType, Issues: []Issue{}}
}

// Add records one issue.
func (r *Report) Add(severity Severity, line int, format string, args ...any) {
	r.Issues = append(r.Issues, Issue{
		Severity: severity,
		Message:  fmt.Sprintf(format, args...),
		Line:     line,
	})
}

// AddError records an error issue.
func (r *Report) AddError(line int, format string, args ...any) {
	r.Add(SeverityError, line, format, args...)
}

// AddWarning records a warning issue.
func (r *Report) AddWarning(line int, format string, args ...any) {
	r.Add(SeverityWarning, line, format, args...)
}

// AddAll records a batch of issues.
func (r *Report) AddAll(issues []Issue) {
	r.Issues = append(r.Issues, issues...)
}

// Errors counts error-severity issues.
func (r *Report) Errors() int {
	n := 0
	for _, is := range r.Issues {
		if is.Severity == SeverityError {
			n++
		}
	}
	return n
}

// Warnings counts warning-severity issues.
func (r *Report) Warnings() int {
	n := 0
	for _, is := range r.Issues {
		if is.Severity == SeverityWarning {
			n++
		}
	}
	return n
}

// Finalize orders issues by line, computes the score, and sets the
// pass flag. Issues recorded after Finalize are not reflected until it
// is called again.
func (r *Report) Finalize() *Report {
	sort.SliceStable(r.Issues, func(i, j int) bool {
		return r.Issues[i].Line < r.Issues[j].Line
	})

	score := maxScore - errorPenalty*r.Errors() - warningPenalty*r.Warnings()
	if score < 0 {
		score = 0
	}
	r.Score = score
	r.Passed = r.Errors() == 0
	r.final = true
	return r
}

// Finalized reports whether Finalize has run.
func (r *Report) Finalized() bool {
	return r.final
}
