package perception

import (
	"fmt"
	"time"

	"github.com/cortexhq/cortex/pkg/integrations"
	"github.com/cortexhq/cortex/pkg/models"
)

// ChatNormalizer converts chat messages into normalized events. Explicit
// importance maps directly onto urgency; a mention of the account raises the
// urgency one level.
type ChatNormalizer struct {
	AccountIdentity string
	Now             Clock
}

// NewChatNormalizer creates a chat normalizer using the wall clock.
func NewChatNormalizer(accountIdentity string) *ChatNormalizer {
	return &ChatNormalizer{AccountIdentity: accountIdentity, Now: time.Now}
}

// importanceToUrgency maps the explicit chat importance flag onto urgency.
var importanceToUrgency = map[integrations.ChatImportance]models.Urgency{
	integrations.ChatImportanceUrgent: models.UrgencyCritical,
	integrations.ChatImportanceHigh:   models.UrgencyHigh,
	integrations.ChatImportanceNormal: models.UrgencyMedium,
	integrations.ChatImportanceLow:    models.UrgencyLow,
}

// Normalize converts one chat message into a perceived event.
func (n *ChatNormalizer) Normalize(msg *integrations.ChatMessage) (models.PerceivedEvent, error) {
	metadata := map[string]any{
		"account_id": msg.AccountID,
		"channel_id": msg.ChannelID,
		"message_id": msg.MessageID,
	}

	occurred, received, perceived := normalizeTimes(n.clock(), msg.SentAt, msg.SentAt, metadata, "source_sent_at")

	from := formatPerson(msg.FromName, msg.From)
	if from == "" {
		from = n.AccountIdentity
	}

	urgency, ok := importanceToUrgency[msg.Importance]
	if !ok {
		urgency = models.UrgencyMedium
	}
	if msg.MentionsMe {
		urgency = urgency.Raise()
	}

	var entities []models.Entity
	if from != "" {
		entities = appendEntity(entities, "person", from, 0.95, map[string]any{"role": "sender"})
	}
	for _, mention := range msg.Mentions {
		entities = appendEntity(entities, "person", mention, 0.9, map[string]any{"role": "mentioned"})
	}

	eventType := models.EventTypeInformation
	if msg.MentionsMe {
		eventType = models.EventTypeRequest
	}
	if msg.ReplyToID != "" {
		eventType = models.EventTypeReply
	}

	event := models.PerceivedEvent{
		EventID:              newEventID(),
		Source:               models.SourceChat,
		SourceID:             msg.MessageID,
		OccurredAt:           occurred,
		ReceivedAt:           received,
		PerceivedAt:          perceived,
		Title:                firstLine(msg.Text),
		Content:              msg.Text,
		Type:                 eventType,
		Urgency:              urgency,
		Entities:             entities,
		URLs:                 ExtractURLs(msg.Text, msg.WebLink),
		FromPerson:           from,
		ToPeople:             append([]string{}, msg.Mentions...),
		ThreadID:             msg.ThreadID,
		InReplyTo:            msg.ReplyToID,
		Metadata:             metadata,
		PerceptionConfidence: confidenceStructured,
	}

	built, err := models.NewEvent(event)
	if err != nil {
		return models.PerceivedEvent{}, fmt.Errorf("normalize chat %q: %w", msg.MessageID, err)
	}
	return built, nil
}

func (n *ChatNormalizer) clock() Clock {
	if n.Now != nil {
		return n.Now
	}
	return time.Now
}

// firstLine returns the first line of text, bounded for use as a title.
func firstLine(text string) string {
	for i, r := range text {
		if r == '\n' || i >= 120 {
			return text[:i]
		}
	}
	return text
}
