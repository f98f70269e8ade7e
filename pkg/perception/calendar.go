package perception

import (
	"fmt"
	"time"

	"github.com/cortexhq/cortex/pkg/integrations"
	"github.com/cortexhq/cortex/pkg/models"
)

// CalendarNormalizer converts calendar events into normalized events.
// Urgency is temporal: how soon the meeting starts and whether the user has
// responded determine the level.
type CalendarNormalizer struct {
	AccountIdentity string
	Now             Clock
}

// NewCalendarNormalizer creates a calendar normalizer using the wall clock.
func NewCalendarNormalizer(accountIdentity string) *CalendarNormalizer {
	return &CalendarNormalizer{AccountIdentity: accountIdentity, Now: time.Now}
}

// Normalize converts one calendar event into a perceived event.
func (n *CalendarNormalizer) Normalize(cal *integrations.CalendarEvent) (models.PerceivedEvent, error) {
	now := n.clock()()

	metadata := map[string]any{
		"account_id":      cal.AccountID,
		"event_uid":       cal.EventUID,
		"start":           cal.Start.UTC().Format(time.RFC3339Nano),
		"end":             cal.End.UTC().Format(time.RFC3339Nano),
		"response_status": string(cal.ResponseStatus),
		"all_day":         cal.IsAllDay,
	}
	if cal.Location != "" {
		metadata["location"] = cal.Location
	}

	occurred, received, perceived := normalizeTimes(n.clock(), cal.CreatedAt, cal.CreatedAt, metadata, "source_created_at")

	organizer := formatPerson(cal.OrganizerName, cal.Organizer)
	if organizer == "" {
		organizer = n.AccountIdentity
	}

	var entities []models.Entity
	entities = appendEntity(entities, "person", organizer, 0.95, map[string]any{"role": "organizer"})
	for _, attendee := range cal.Attendees {
		entities = appendEntity(entities, "person", attendee, 0.9, map[string]any{"role": "attendee"})
	}
	if cal.Location != "" {
		entities = appendEntity(entities, "location", cal.Location, 0.9, nil)
	}
	for _, cat := range cal.Categories {
		entities = appendEntity(entities, "category", cat, 0.8, nil)
	}
	if !cal.Start.IsZero() {
		entities = appendEntity(entities, "datetime", cal.Start.UTC().Format(time.RFC3339), 0.95, map[string]any{"kind": "start"})
	}

	event := models.PerceivedEvent{
		EventID:              newEventID(),
		Source:               models.SourceCalendar,
		SourceID:             cal.EventUID,
		OccurredAt:           occurred,
		ReceivedAt:           received,
		PerceivedAt:          perceived,
		Title:                cal.Subject,
		Content:              cal.Body,
		Type:                 classifyCalendar(cal),
		Urgency:              CalendarUrgency(now, cal.Start, cal.End, cal.ResponseStatus),
		Entities:             entities,
		Topics:               append([]string{}, cal.Categories...),
		URLs:                 ExtractURLs(cal.Body, cal.OnlineMeeting, cal.WebLink),
		FromPerson:           organizer,
		ToPeople:             append([]string{}, cal.Attendees...),
		Metadata:             metadata,
		PerceptionConfidence: confidenceStructured,
	}

	built, err := models.NewEvent(event)
	if err != nil {
		return models.PerceivedEvent{}, fmt.Errorf("normalize calendar %q: %w", cal.EventUID, err)
	}
	return built, nil
}

func (n *CalendarNormalizer) clock() Clock {
	if n.Now != nil {
		return n.Now
	}
	return time.Now
}

// classifyCalendar derives the event type from response state.
func classifyCalendar(cal *integrations.CalendarEvent) models.EventType {
	switch {
	case cal.IsCancelled:
		return models.EventTypeStatusUpdate
	case cal.ResponseStatus == integrations.ResponseNotResponded:
		return models.EventTypeDecisionNeeded
	case cal.ResponseStatus == integrations.ResponseOrganizer:
		return models.EventTypeReminder
	default:
		return models.EventTypeInvitation
	}
}

// CalendarUrgency implements the temporal urgency policy. Boundaries are
// inclusive on the lower side of each bucket: exactly 1h away is high,
// exactly 4h is medium, exactly 12h is low-or-medium, exactly 24h is low.
func CalendarUrgency(now, start, end time.Time, response integrations.ResponseStatus) models.Urgency {
	notResponded := response == integrations.ResponseNotResponded

	// Past events carry no urgency.
	if !end.IsZero() && !end.After(now) {
		return models.UrgencyNone
	}

	// In progress.
	if !start.After(now) {
		if notResponded {
			return models.UrgencyHigh
		}
		return models.UrgencyMedium
	}

	until := start.Sub(now)
	switch {
	case until < time.Hour:
		return models.UrgencyCritical
	case until < 4*time.Hour:
		return models.UrgencyHigh
	case until < 12*time.Hour:
		return models.UrgencyMedium
	case until < 24*time.Hour:
		if notResponded {
			return models.UrgencyMedium
		}
		return models.UrgencyLow
	default:
		return models.UrgencyLow
	}
}
