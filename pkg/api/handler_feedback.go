package api

import (
	"net/http"
	"strconv"

	echo "github.com/labstack/echo/v5"

	"github.com/cortexhq/cortex/pkg/learning"
	"github.com/cortexhq/cortex/pkg/models"
)

// submitFeedbackHandler handles POST /api/v1/feedback. Explicit feedback on a
// processed event runs one learning cycle against its retained working
// memory.
func (s *Server) submitFeedbackHandler(c *echo.Context) error {
	var req SubmitFeedbackRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.EventID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "event_id is required")
	}
	if s.learner == nil || s.recaller == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "learning is not configured")
	}

	feedback, err := models.NewFeedback(models.UserFeedback{
		Approval:     req.Approval,
		Rating:       req.Rating,
		Comment:      req.Comment,
		Correction:   req.Correction,
		Modification: req.Modification,
	})
	if err != nil {
		return s.mapStoreError(err)
	}

	mem, ok := s.recaller.Recall(req.EventID)
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound,
			"event not found or its processing record has expired")
	}

	result, err := s.learner.Learn(c.Request().Context(), learning.LearnInput{
		Feedback: feedback,
		Memory:   mem,
	})
	if err != nil {
		s.logger.Error("feedback learning cycle failed", "event_id", req.EventID, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "learning cycle failed")
	}

	return c.JSON(http.StatusOK, &FeedbackResponse{
		EventID:  req.EventID,
		Learning: result,
	})
}

// listSessionsHandler handles GET /api/v1/sessions: the recent processing
// history when a database is configured.
func (s *Server) listSessionsHandler(c *echo.Context) error {
	if s.history == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "history is not configured")
	}

	limit := 50
	if raw := c.QueryParam("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 || parsed > 500 {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid limit: must be 1..500")
		}
		limit = parsed
	}

	sessions, err := s.history.Recent(c.Request().Context(), limit)
	if err != nil {
		s.logger.Error("listing history sessions failed", "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "internal server error")
	}
	return c.JSON(http.StatusOK, sessions)
}
