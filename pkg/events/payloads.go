package events

// Typed payloads for domain broadcasts. Each builds the flat frame map the
// manager augments with channel, room_id, and timestamp at send time.

// ProcessingEventPayload announces a pipeline state transition for one event.
type ProcessingEventPayload struct {
	EventID    string  `json:"event_id"`
	Stage      string  `json:"stage"`
	State      string  `json:"state"`
	Confidence float64 `json:"confidence,omitempty"`
	Detail     string  `json:"detail,omitempty"`
}

// Frame returns the broadcast frame for the payload.
func (p ProcessingEventPayload) Frame() map[string]any {
	frame := map[string]any{
		"type":     FrameProcessingEvent,
		"event_id": p.EventID,
		"stage":    p.Stage,
		"state":    p.State,
	}
	if p.Confidence != 0 {
		frame["confidence"] = p.Confidence
	}
	if p.Detail != "" {
		frame["detail"] = p.Detail
	}
	return frame
}

// ItemPayload announces a review-queue or draft lifecycle change.
type ItemPayload struct {
	Kind    string         `json:"kind"` // "queue_item" or "draft"
	ItemID  string         `json:"item_id"`
	EventID string         `json:"event_id,omitempty"`
	Status  string         `json:"status,omitempty"`
	Fields  map[string]any `json:"fields,omitempty"`
}

// Frame returns the broadcast frame with the given lifecycle frame type
// (item_added, item_updated, item_removed).
func (p ItemPayload) Frame(frameType string) map[string]any {
	frame := map[string]any{
		"type":    frameType,
		"kind":    p.Kind,
		"item_id": p.ItemID,
	}
	if p.EventID != "" {
		frame["event_id"] = p.EventID
	}
	if p.Status != "" {
		frame["status"] = p.Status
	}
	for k, v := range p.Fields {
		frame[k] = v
	}
	return frame
}

// StatsPayload announces aggregate counters (queue depth, worker health).
type StatsPayload struct {
	Stats map[string]any `json:"stats"`
}

// Frame returns the broadcast frame for the payload.
func (p StatsPayload) Frame() map[string]any {
	return map[string]any{
		"type":  FrameStatsUpdated,
		"stats": p.Stats,
	}
}
