package http

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/specd/internal/document"
	"github.com/fyrsmithlabs/specd/internal/sanitize"
	"github.com/fyrsmithlabs/specd/internal/validation"
	"github.com/fyrsmithlabs/specd/internal/workflow"
)

// handleValidate validates a single document and returns the scored
// report.
func (s *Server) handleValidate(c echo.Context) error {
	var req ValidateRequest
	if err := c.Bind(&req); err != nil {
		s.logger.Warn("invalid validate request", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	docType, err := document.ParseType(req.DocumentType)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.Content == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "content field is required")
	}

	rep, err := s.validator.Validate(c.Request().Context(), &validation.Request{
		DocumentType:        docType,
		Content:             req.Content,
		RequirementsContent: req.RequirementsContent,
		DesignContent:       req.DesignContent,
		TasksContent:        req.TasksContent,
		Strict:              req.Strict,
	})
	if err != nil {
		return s.domainError(c, err)
	}

	return c.JSON(http.StatusOK, ValidateResponse{
		Report:       *rep,
		ErrorCount:   rep.Errors(),
		WarningCount: rep.Warnings(),
	})
}

// handleTraceability reports requirement coverage across the supplied
// documents.
func (s *Server) handleTraceability(c echo.Context) error {
	var req TraceabilityRequest
	if err := c.Bind(&req); err != nil {
		s.logger.Warn("invalid traceability request", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.RequirementsContent == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "requirements_content field is required")
	}

	rep, err := s.validator.CheckTraceability(c.Request().Context(), &validation.TraceabilityRequest{
		RequirementsContent: req.RequirementsContent,
		DesignContent:       req.DesignContent,
		TasksContent:        req.TasksContent,
	})
	if err != nil {
		return s.domainError(c, err)
	}

	return c.JSON(http.StatusOK, newTraceabilityResponse(rep))
}

func (s *Server) handleCreateWorkflow(c echo.Context) error {
	var req CreateWorkflowRequest
	if err := c.Bind(&req); err != nil {
		s.logger.Warn("invalid create workflow request", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.FeatureName == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "feature_name field is required")
	}

	st, err := s.workflows.Create(c.Request().Context(), req.FeatureName)
	if err != nil {
		return s.domainError(c, err)
	}

	return c.JSON(http.StatusCreated, st)
}

func (s *Server) handleListWorkflows(c echo.Context) error {
	states, err := s.workflows.List(c.Request().Context())
	if err != nil {
		return s.domainError(c, err)
	}

	return c.JSON(http.StatusOK, ListWorkflowsResponse{
		Workflows: states,
		Count:     len(states),
	})
}

func (s *Server) handleGetWorkflow(c echo.Context) error {
	st, err := s.workflows.Get(c.Request().Context(), c.Param("feature"))
	if err != nil {
		return s.domainError(c, err)
	}

	return c.JSON(http.StatusOK, st)
}

func (s *Server) handleTransition(c echo.Context) error {
	feature := c.Param("feature")

	var req TransitionPhaseRequest
	if err := c.Bind(&req); err != nil {
		s.logger.Warn("invalid transition request", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	target, err := workflow.ParsePhase(req.TargetPhase)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	var from workflow.Phase
	if req.CurrentPhase != "" {
		from, err = workflow.ParsePhase(req.CurrentPhase)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
	} else {
		st, err := s.workflows.Get(c.Request().Context(), feature)
		if err != nil {
			return s.domainError(c, err)
		}
		from = st.CurrentPhase
	}

	st, err := s.workflows.Transition(c.Request().Context(), workflow.TransitionRequest{
		Feature:           feature,
		From:              from,
		To:                target,
		ApprovalConfirmed: req.Approved,
	})
	if err != nil {
		return s.domainError(c, err)
	}

	return c.JSON(http.StatusOK, st)
}

func (s *Server) handleBack(c echo.Context) error {
	feature := c.Param("feature")

	var req BackRequest
	if err := c.Bind(&req); err != nil {
		s.logger.Warn("invalid back navigation request", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	target, err := workflow.ParsePhase(req.TargetPhase)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	st, err := s.workflows.NavigateBackward(c.Request().Context(), workflow.BackwardRequest{
		Feature: feature,
		Target:  target,
		Reason:  req.Reason,
	})
	if err != nil {
		return s.domainError(c, err)
	}

	return c.JSON(http.StatusOK, st)
}

func (s *Server) handleTransitionCheck(c echo.Context) error {
	feature := c.Param("feature")

	targetParam := c.QueryParam("target")
	if targetParam == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "target query parameter is required")
	}
	target, err := workflow.ParsePhase(targetParam)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	unmet, err := s.workflows.CheckTransitionRequirements(c.Request().Context(), feature, target)
	if err != nil {
		return s.domainError(c, err)
	}

	resp := TransitionCheckResponse{
		FeatureName:   feature,
		TargetPhase:   target.String(),
		CanTransition: true,
		Unmet:         unmet,
	}
	// Approval is granted at transition time, so it is always listed
	// as unmet here; readiness means nothing else is.
	for _, cond := range unmet {
		if cond.Code != workflow.CondApprovalNotConfirmed {
			resp.CanTransition = false
		}
	}

	return c.JSON(http.StatusOK, resp)
}

// domainError maps service errors onto HTTP status codes. Blocked
// transitions carry their unmet conditions in the body so clients can
// show what is missing.
func (s *Server) domainError(c echo.Context, err error) error {
	var wfErr *workflow.Error
	if errors.As(err, &wfErr) {
		return c.JSON(http.StatusUnprocessableEntity, ErrorResponse{
			Error:      wfErr.Error(),
			Conditions: wfErr.Conditions,
		})
	}

	switch {
	case errors.Is(err, workflow.ErrNotFound):
		return c.JSON(http.StatusNotFound, ErrorResponse{Error: err.Error()})
	case errors.Is(err, workflow.ErrAlreadyExists), errors.Is(err, workflow.ErrConflict):
		return c.JSON(http.StatusConflict, ErrorResponse{Error: err.Error()})
	case errors.Is(err, workflow.ErrUnknownPhase), errors.Is(err, sanitize.ErrInvalidFeatureName):
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
	default:
		s.logger.Error("request failed", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
	}
}
