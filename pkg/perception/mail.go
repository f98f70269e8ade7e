package perception

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/cortexhq/cortex/pkg/integrations"
	"github.com/cortexhq/cortex/pkg/models"
)

// MailNormalizer converts mail messages into normalized events. Urgency is
// left at medium here; the pre-filter and downstream reasoning refine it.
type MailNormalizer struct {
	// AccountIdentity is used as from_person for self-authored messages.
	AccountIdentity string
	Now             Clock
}

// NewMailNormalizer creates a mail normalizer using the wall clock.
func NewMailNormalizer(accountIdentity string) *MailNormalizer {
	return &MailNormalizer{AccountIdentity: accountIdentity, Now: time.Now}
}

// Normalize converts one mail message into a perceived event.
func (n *MailNormalizer) Normalize(msg *integrations.MailMessage) (models.PerceivedEvent, error) {
	metadata := map[string]any{
		"account_id": msg.AccountID,
		"folder":     msg.Folder,
		"uid":        msg.UID,
	}

	occurred, received, perceived := normalizeTimes(n.clock(), msg.SentAt, msg.ReceivedAt, metadata, "source_sent_at")

	from := formatPerson(msg.FromName, msg.From)
	if from == "" {
		from = n.AccountIdentity
	}

	var entities []models.Entity
	if from != "" {
		entities = appendEntity(entities, "person", from, 0.95, map[string]any{"role": "sender"})
	}
	for _, to := range msg.To {
		entities = appendEntity(entities, "person", to, 0.9, map[string]any{"role": "recipient"})
	}
	for _, cc := range msg.Cc {
		entities = appendEntity(entities, "person", cc, 0.85, map[string]any{"role": "cc"})
	}

	attachmentTypes := make([]string, 0, len(msg.Attachments))
	for _, a := range msg.Attachments {
		t := a.MIMEType
		if t == "" {
			t = strings.TrimPrefix(filepath.Ext(a.Filename), ".")
		}
		attachmentTypes = append(attachmentTypes, t)
	}

	event := models.PerceivedEvent{
		EventID:              newEventID(),
		Source:               models.SourceMail,
		SourceID:             msg.UID,
		OccurredAt:           occurred,
		ReceivedAt:           received,
		PerceivedAt:          perceived,
		Title:                msg.Subject,
		Content:              msg.Body,
		Type:                 classifyMail(msg),
		Urgency:              models.UrgencyMedium,
		Entities:             entities,
		URLs:                 ExtractURLs(msg.Body),
		FromPerson:           from,
		ToPeople:             append([]string{}, msg.To...),
		CcPeople:             append([]string{}, msg.Cc...),
		ThreadID:             msg.ThreadID,
		InReplyTo:            msg.InReplyTo,
		References:           append([]string{}, msg.References...),
		HasAttachments:       len(msg.Attachments) > 0,
		AttachmentCount:      len(msg.Attachments),
		AttachmentTypes:      attachmentTypes,
		Metadata:             metadata,
		PerceptionConfidence: confidenceFreeForm,
	}

	built, err := models.NewEvent(event)
	if err != nil {
		return models.PerceivedEvent{}, fmt.Errorf("normalize mail %q: %w", msg.UID, err)
	}
	return built, nil
}

func (n *MailNormalizer) clock() Clock {
	if n.Now != nil {
		return n.Now
	}
	return time.Now
}

// classifyMail derives a coarse event type from structure alone. Deeper
// classification is the reasoner's job.
func classifyMail(msg *integrations.MailMessage) models.EventType {
	subject := strings.ToLower(msg.Subject)
	switch {
	case msg.InReplyTo != "":
		return models.EventTypeReply
	case strings.Contains(subject, "invitation") || strings.Contains(subject, "invite"):
		return models.EventTypeInvitation
	case strings.Contains(subject, "reminder"):
		return models.EventTypeReminder
	case strings.Contains(subject, "confirm"):
		return models.EventTypeConfirmation
	case strings.HasPrefix(subject, "re:"):
		return models.EventTypeReply
	default:
		return models.EventTypeInformation
	}
}

// formatPerson renders "Name <address>" or the address alone.
func formatPerson(name, address string) string {
	name = strings.TrimSpace(name)
	address = strings.TrimSpace(address)
	switch {
	case name != "" && address != "":
		return name + " <" + address + ">"
	case address != "":
		return address
	default:
		return name
	}
}
