// Package validation composes the document parser, the EARS grammar
// checks, the structural rules, and the traceability linker into
// scored reports.
package validation

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/specd/internal/document"
	"github.com/fyrsmithlabs/specd/internal/report"
	"github.com/fyrsmithlabs/specd/internal/structure"
	"github.com/fyrsmithlabs/specd/internal/traceability"
)

const instrumentationName = "github.com/fyrsmithlabs/specd/internal/validation"

// Request describes one document validation. Companion contents are
// optional; when present they extend the report with traceability
// findings.
type Request struct {
	DocumentType document.Type
	Content      string

	// RequirementsContent supplies requirements context when
	// validating a design or tasks document.
	RequirementsContent string

	// DesignContent and TasksContent supply downstream context when
	// validating a requirements document.
	DesignContent string
	TasksContent  string

	// Strict escalates traceability warnings to errors.
	Strict bool
}

// TraceabilityRequest asks for the full coverage picture across a
// document set.
type TraceabilityRequest struct {
	RequirementsContent string
	DesignContent       string
	TasksContent        string
}

// Service validates phase documents.
type Service interface {
	// Validate parses and checks one document, returning a finalized
	// report. Unparseable input yields a failed report, not an error.
	Validate(ctx context.Context, req *Request) (*report.Report, error)

	// CheckTraceability links a requirements document against at
	// least one downstream document.
	CheckTraceability(ctx context.Context, req *TraceabilityRequest) (*traceability.Report, error)
}

// Config holds dependencies for the validation service.
type Config struct {
	Logger *zap.Logger
}

type service struct {
	logger *zap.Logger
	tracer trace.Tracer
}

// NewService creates a validation Service.
func NewService(cfg *Config) Service {
	logger := zap.NewNop()
	if cfg != nil && cfg.Logger != nil {
		logger = cfg.Logger
	}
	return &service{
		logger: logger,
		tracer: otel.Tracer(instrumentationName),
	}
}

func (s *service) Validate(ctx context.Context, req *Request) (*report.Report, error) {
	_, span := s.tracer.Start(ctx, "validation.validate")
	defer span.End()
	span.SetAttributes(attribute.String("document.type", string(req.DocumentType)))

	docType, err := document.ParseType(string(req.DocumentType))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	rep := report.New(docType)

	doc, err := document.Parse(docType, req.Content)
	if err != nil {
		var perr *document.ParseError
		if !errors.As(err, &perr) {
			span.RecordError(err)
			return nil, err
		}
		rep.AddError(perr.Line, "document failed to parse: %s", perr.Detail)
		return s.finish(span, rep), nil
	}

	rep.AddAll(structure.Check(doc))

	if docType == document.TypeRequirements {
		s.checkGrammar(doc, rep)
	}
	s.checkTraceability(doc, req, rep)

	return s.finish(span, rep), nil
}

// checkGrammar folds the per-criterion EARS classifications into the
// report.
func (s *service) checkGrammar(doc *document.Document, rep *report.Report) {
	for _, r := range doc.Requirements {
		for _, c := range r.Criteria {
			if problem := c.Classification.Problem(); problem != "" {
				rep.AddError(c.Line, "requirement %s criterion %d %s", r.ID, c.Number, problem)
			}
		}
	}
}

// checkTraceability adds coverage findings when companion documents
// accompany the request. Companion parse failures downgrade to
// warnings; the companion is simply left out of the link.
func (s *service) checkTraceability(doc *document.Document, req *Request, rep *report.Report) {
	gapSeverity := report.SeverityWarning
	if req.Strict {
		gapSeverity = report.SeverityError
	}

	switch doc.Type {
	case document.TypeRequirements:
		design := s.parseCompanion(document.TypeDesign, req.DesignContent, rep)
		tasks := s.parseCompanion(document.TypeTasks, req.TasksContent, rep)
		if design == nil && tasks == nil {
			return
		}
		tr := traceability.Link(doc, design, tasks)
		for _, id := range tr.OrphanRequirements {
			line := 0
			if r := doc.RequirementByID(id); r != nil {
				line = r.Line
			}
			rep.Add(gapSeverity, line, "requirement %s is not referenced by %s", id, coverageScope(design, tasks))
		}

	case document.TypeDesign:
		reqs := s.parseCompanion(document.TypeRequirements, req.RequirementsContent, rep)
		if reqs == nil {
			return
		}
		tr := traceability.Link(reqs, doc, nil)
		for _, cite := range tr.UnknownCitations {
			rep.AddError(cite.Line, "references unknown requirement %s", cite.ID)
		}
		for _, el := range tr.OrphanElements {
			rep.Add(gapSeverity, el.Line, "design element %q cites no requirements", el.Name)
		}
		for _, id := range tr.OrphanRequirements {
			rep.Add(gapSeverity, 0, "requirement %s is not addressed by this design", id)
		}

	case document.TypeTasks:
		reqs := s.parseCompanion(document.TypeRequirements, req.RequirementsContent, rep)
		if reqs == nil {
			return
		}
		tr := traceability.Link(reqs, nil, doc)
		for _, cite := range tr.UnknownCitations {
			rep.AddError(cite.Line, "references unknown requirement %s", cite.ID)
		}
		// Per-task coverage warnings already come from the structural
		// rules, so only requirement-side gaps are added here.
		for _, id := range tr.OrphanRequirements {
			rep.Add(gapSeverity, 0, "requirement %s is not implemented by any task", id)
		}
	}
}

func (s *service) parseCompanion(docType document.Type, content string, rep *report.Report) *document.Document {
	if content == "" {
		return nil
	}
	doc, err := document.Parse(docType, content)
	if err != nil {
		rep.AddWarning(0, "companion %s document could not be parsed: %v", docType, err)
		return nil
	}
	return doc
}

func coverageScope(design, tasks *document.Document) string {
	switch {
	case design != nil && tasks != nil:
		return "any design element or task"
	case design != nil:
		return "any design element"
	default:
		return "any task"
	}
}

func (s *service) finish(span trace.Span, rep *report.Report) *report.Report {
	rep.Finalize()
	span.SetAttributes(
		attribute.Int("report.score", rep.Score),
		attribute.Bool("report.passed", rep.Passed),
		attribute.Int("report.errors", rep.Errors()),
		attribute.Int("report.warnings", rep.Warnings()),
	)
	s.logger.Debug("validated document",
		zap.String("type", string(rep.DocumentType)),
		zap.Int("score", rep.Score),
		zap.Bool("passed", rep.Passed))
	return rep
}

func (s *service) CheckTraceability(ctx context.Context, req *TraceabilityRequest) (*traceability.Report, error) {
	_, span := s.tracer.Start(ctx, "validation.check_traceability")
	defer span.End()

	if req.RequirementsContent == "" {
		err := errors.New("requirements content is required")
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if req.DesignContent == "" && req.TasksContent == "" {
		err := errors.New("at least one of design or tasks content is required")
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	reqs, err := document.Parse(document.TypeRequirements, req.RequirementsContent)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("parse requirements: %w", err)
	}

	var design, tasks *document.Document
	if req.DesignContent != "" {
		if design, err = document.Parse(document.TypeDesign, req.DesignContent); err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("parse design: %w", err)
		}
	}
	if req.TasksContent != "" {
		if tasks, err = document.Parse(document.TypeTasks, req.TasksContent); err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("parse tasks: %w", err)
		}
	}

	tr := traceability.Link(reqs, design, tasks)
	span.SetAttributes(
		attribute.Int("traceability.requirements", len(tr.RequirementIDs)),
		attribute.Int("traceability.orphans", len(tr.OrphanRequirements)),
		attribute.Int("traceability.unknown_citations", len(tr.UnknownCitations)),
	)
	return tr, nil
}
