package httpapi

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/emberfix/repaird/internal/input"
	"github.com/emberfix/repaird/internal/knowledge"
	"github.com/emberfix/repaird/internal/retrieval"
	"github.com/emberfix/repaird/internal/session"
)

// StartSessionRequest is the request body for POST /v1/sessions.
type StartSessionRequest struct {
	Symptoms        []string `json:"symptoms"`
	VisualSymptoms  []string `json:"visual_symptoms,omitempty"`
	Category        string   `json:"category"`
	Brand           string   `json:"brand,omitempty"`
	BrandConfidence float64  `json:"brand_confidence,omitempty"`
	Keywords        []string `json:"keywords,omitempty"`
	Description     string   `json:"description,omitempty"`
}

// AnswerRequest is the request body for POST /v1/sessions/:id/answer.
type AnswerRequest struct {
	QuestionID string `json:"question_id"`
	Answer     string `json:"answer"`
}

// FeedbackRequest is the request body for POST /v1/sessions/:id/feedback.
type FeedbackRequest struct {
	TutorialID string `json:"tutorial_id"`
	Resolved   bool   `json:"resolved"`
	Clarity    int    `json:"clarity_rating"`
	Accuracy   int    `json:"accuracy_rating"`
}

// HealthResponse is the response body for GET /healthz.
type HealthResponse struct {
	Status           string `json:"status"`
	SnapshotVersion  int64  `json:"snapshot_version,omitempty"`
	KnowledgeHealthy bool   `json:"knowledge_healthy"`
}

func (s *Server) handleHealth(c echo.Context) error {
	resp := HealthResponse{Status: "ok"}
	if s.knowledge != nil {
		if snap, err := s.knowledge.Current(); err == nil {
			resp.KnowledgeHealthy = true
			resp.SnapshotVersion = snap.Version
		}
	}
	if !resp.KnowledgeHealthy {
		resp.Status = "degraded"
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) handleStartSession(c echo.Context) error {
	var req StartSessionRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	view, err := s.orchestrator.StartSession(c.Request().Context(), &input.ProcessedInput{
		Symptoms:        req.Symptoms,
		VisualSymptoms:  req.VisualSymptoms,
		Category:        req.Category,
		Brand:           req.Brand,
		BrandConfidence: req.BrandConfidence,
		Keywords:        req.Keywords,
		Description:     req.Description,
	})
	if err != nil {
		return s.mapError(c, err)
	}
	return c.JSON(http.StatusCreated, view)
}

func (s *Server) handleGetSession(c echo.Context) error {
	view, err := s.orchestrator.GetSession(c.Param("id"))
	if err != nil {
		return s.mapError(c, err)
	}
	return c.JSON(http.StatusOK, view)
}

func (s *Server) handleAnswerQuestion(c echo.Context) error {
	var req AnswerRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.QuestionID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "question_id is required")
	}

	view, err := s.orchestrator.AnswerQuestion(c.Request().Context(), c.Param("id"), req.QuestionID, req.Answer)
	if err != nil {
		return s.mapError(c, err)
	}
	return c.JSON(http.StatusOK, view)
}

func (s *Server) handleSubmitFeedback(c echo.Context) error {
	var req FeedbackRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.TutorialID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "tutorial_id is required")
	}

	err := s.orchestrator.SubmitFeedback(c.Request().Context(), c.Param("id"), req.TutorialID, req.Resolved, req.Clarity, req.Accuracy)
	if err != nil {
		return s.mapError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleGetAuditTrail(c echo.Context) error {
	trail, err := s.orchestrator.GetAuditTrail(c.Param("id"))
	if err != nil {
		return s.mapError(c, err)
	}
	return c.JSON(http.StatusOK, trail)
}

// mapError translates domain errors onto HTTP status codes.
func (s *Server) mapError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, session.ErrSessionNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "session not found")
	case errors.Is(err, input.ErrEmptyInput),
		errors.Is(err, input.ErrMissingCategory):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, session.ErrSessionTerminal),
		errors.Is(err, session.ErrFeedbackBeforeTerminal):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, knowledge.ErrStoreUnavailable),
		errors.Is(err, retrieval.ErrTotalFailure):
		// Retryable: the session (if any) keeps its state.
		return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
	default:
		s.logger.Error(c.Request().Context(), "request failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}
}
