package api

import (
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/cortexhq/cortex/pkg/events"
	"github.com/cortexhq/cortex/pkg/models"
)

// listDraftsHandler handles GET /api/v1/drafts.
func (s *Server) listDraftsHandler(c *echo.Context) error {
	drafts, err := s.draftStore.ListDrafts(c.Request().Context())
	if err != nil {
		return s.mapStoreError(err)
	}
	return c.JSON(http.StatusOK, drafts)
}

// getDraftHandler handles GET /api/v1/drafts/:id.
func (s *Server) getDraftHandler(c *echo.Context) error {
	id := c.Param("id")
	if id == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "draft id is required")
	}
	draft, err := s.draftStore.GetDraft(c.Request().Context(), id)
	if err != nil {
		return s.mapStoreError(err)
	}
	return c.JSON(http.StatusOK, draft)
}

// updateDraftHandler handles PUT /api/v1/drafts/:id. Only the body is
// editable; each edit is recorded in the draft's history.
func (s *Server) updateDraftHandler(c *echo.Context) error {
	id := c.Param("id")
	if id == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "draft id is required")
	}

	var req UpdateDraftRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.Body == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "body is required")
	}

	draft, err := s.draftStore.EditDraft(c.Request().Context(), id, req.Body)
	if err != nil {
		return s.mapStoreError(err)
	}
	s.broadcastDraft(draft)
	return c.JSON(http.StatusOK, draft)
}

// markDraftSentHandler handles POST /api/v1/drafts/:id/send. The caller sends
// the reply through its own mail path and marks the draft here; the core does
// not send on approval.
func (s *Server) markDraftSentHandler(c *echo.Context) error {
	return s.transitionDraft(c, models.DraftSent)
}

// discardDraftHandler handles POST /api/v1/drafts/:id/discard.
func (s *Server) discardDraftHandler(c *echo.Context) error {
	return s.transitionDraft(c, models.DraftDiscarded)
}

func (s *Server) transitionDraft(c *echo.Context, to models.DraftStatus) error {
	id := c.Param("id")
	if id == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "draft id is required")
	}
	draft, err := s.draftStore.TransitionDraft(c.Request().Context(), id, to)
	if err != nil {
		return s.mapStoreError(err)
	}
	s.broadcastDraft(draft)
	return c.JSON(http.StatusOK, draft)
}

// broadcastDraft announces a draft lifecycle change on the queue channel.
func (s *Server) broadcastDraft(draft models.DraftReply) {
	if s.manager == nil {
		return
	}
	payload := events.ItemPayload{
		Kind:    "draft",
		ItemID:  draft.DraftID,
		EventID: draft.EventID,
		Status:  string(draft.Status),
	}
	frame := payload.Frame(events.FrameItemUpdated)
	if s.masker != nil {
		frame = s.masker.MaskPayload(frame)
	}
	s.manager.BroadcastToChannel(events.ChannelQueue, "", frame)
}
