package api

import (
	"net/http"
	"time"

	echo "github.com/labstack/echo/v5"

	"github.com/cortexhq/cortex/pkg/events"
	"github.com/cortexhq/cortex/pkg/learning"
	"github.com/cortexhq/cortex/pkg/models"
)

// listQueueHandler handles GET /api/v1/queue. Without a status filter it
// returns pending items whose snooze window has elapsed.
func (s *Server) listQueueHandler(c *echo.Context) error {
	status := c.QueryParam("status")
	switch status {
	case "":
		items, err := s.queueStore.Pending(c.Request().Context())
		if err != nil {
			return s.mapStoreError(err)
		}
		return c.JSON(http.StatusOK, items)
	case string(models.QueuePending), string(models.QueueApproved), string(models.QueueRejected):
		items, err := s.queueStore.ListItems(c.Request().Context(), models.QueueStatus(status))
		if err != nil {
			return s.mapStoreError(err)
		}
		return c.JSON(http.StatusOK, items)
	default:
		return echo.NewHTTPError(http.StatusBadRequest, "invalid status: must be pending, approved, or rejected")
	}
}

// getQueueItemHandler handles GET /api/v1/queue/:id.
func (s *Server) getQueueItemHandler(c *echo.Context) error {
	id := c.Param("id")
	if id == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "item id is required")
	}
	item, err := s.queueStore.GetItem(c.Request().Context(), id)
	if err != nil {
		return s.mapStoreError(err)
	}
	return c.JSON(http.StatusOK, item)
}

// approveQueueItemHandler handles POST /api/v1/queue/:id/approve. The item
// moves to approved, the change is broadcast, and the confirmation feeds one
// learning cycle.
func (s *Server) approveQueueItemHandler(c *echo.Context) error {
	id := c.Param("id")
	if id == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "item id is required")
	}

	item, err := s.queueStore.TransitionItem(c.Request().Context(), id, models.QueueApproved)
	if err != nil {
		return s.mapStoreError(err)
	}

	s.broadcastItem(item)
	s.learnFromReview(c, item, models.UserFeedback{
		Approval:  true,
		CreatedAt: time.Now().UTC(),
	})
	return c.JSON(http.StatusOK, item)
}

// rejectQueueItemHandler handles POST /api/v1/queue/:id/reject. An optional
// body carries the user's correction, which drives the learning cycle.
func (s *Server) rejectQueueItemHandler(c *echo.Context) error {
	id := c.Param("id")
	if id == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "item id is required")
	}

	var req RejectItemRequest
	if c.Request().ContentLength > 0 {
		if err := c.Bind(&req); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
	}

	item, err := s.queueStore.TransitionItem(c.Request().Context(), id, models.QueueRejected)
	if err != nil {
		return s.mapStoreError(err)
	}

	s.broadcastItem(item)
	s.learnFromReview(c, item, models.UserFeedback{
		Approval:   false,
		Comment:    req.Comment,
		Correction: req.Correction,
		CreatedAt:  time.Now().UTC(),
	})
	return c.JSON(http.StatusOK, item)
}

// broadcastItem announces a queue item lifecycle change on the queue channel.
func (s *Server) broadcastItem(item models.QueueItem) {
	if s.manager == nil {
		return
	}
	payload := events.ItemPayload{
		Kind:    "queue_item",
		ItemID:  item.ItemID,
		EventID: item.EventID,
		Status:  string(item.Status),
	}
	frame := payload.Frame(events.FrameItemUpdated)
	if s.masker != nil {
		frame = s.masker.MaskPayload(frame)
	}
	s.manager.BroadcastToChannel(events.ChannelQueue, "", frame)
}

// learnFromReview runs a learning cycle for an explicit review decision. The
// cycle needs the event's retained working memory; when it has aged out the
// decision is logged and skipped.
func (s *Server) learnFromReview(c *echo.Context, item models.QueueItem, feedback models.UserFeedback) {
	if s.learner == nil || s.recaller == nil {
		return
	}
	mem, ok := s.recaller.Recall(item.EventID)
	if !ok {
		s.logger.Info("no retained memory for reviewed event, skipping learning",
			"event_id", item.EventID, "item_id", item.ItemID)
		return
	}
	result, err := s.learner.Learn(c.Request().Context(), learning.LearnInput{
		Feedback: feedback,
		Memory:   mem,
	})
	if err != nil {
		s.logger.Error("learning from review failed", "event_id", item.EventID, "error", err)
		return
	}
	s.logger.Info("review decision learned",
		"event_id", item.EventID,
		"approved", feedback.Approval,
		"updates_applied", result.UpdatesApplied)
}
