package actions

import (
	"errors"
	"fmt"
	"strings"

	"github.com/cortexhq/cortex/pkg/integrations"
	"github.com/cortexhq/cortex/pkg/models"
)

// ErrUnknownDisposition indicates the analysis produced a disposition the
// factory has no mapping for.
var ErrUnknownDisposition = errors.New("unknown disposition")

// Disposition is the converged analysis outcome for a mail-like event.
type Disposition string

// Dispositions the factory maps to actions. Review and snooze produce no
// actions; those events surface on the review queue instead.
const (
	DispositionArchive   Disposition = "archive"
	DispositionDelete    Disposition = "delete"
	DispositionReference Disposition = "reference"
	DispositionTask      Disposition = "task"
	DispositionReply     Disposition = "reply"
	DispositionRespond   Disposition = "respond"
	DispositionReview    Disposition = "review"
	DispositionSnooze    Disposition = "snooze"
)

// Folders is the account-scoped folder configuration actions validate
// against. Credentials are never held here; clients resolve them at execute
// time through the secrets interface.
type Folders struct {
	Archive   string
	Trash     string
	Reference string
}

// Factory maps converged analysis outcomes to executable actions wired to
// the account's clients.
type Factory struct {
	Mail     integrations.MailClient
	Tasks    integrations.TaskManager
	Calendar integrations.CalendarClient
	Drafts   DraftSaver
	Folders  Folders
	TaskTags []string
}

// BuildInput carries the per-event parameters of one Build call.
type BuildInput struct {
	Disposition Disposition
	Event       *models.PerceivedEvent

	// Permanent applies to the delete disposition only.
	Permanent bool

	// Reply draft parameters, used by the reply disposition.
	ReplyBody string

	// Response applies to the respond disposition; tentative when unset.
	Response integrations.ResponseStatus
}

// Build returns the action list for one analysis outcome. Review and snooze
// return an empty list: the caller surfaces those on the queue.
func (f *Factory) Build(in BuildInput) ([]Action, error) {
	if in.Event == nil {
		return nil, fmt.Errorf("building actions: nil event")
	}
	event := in.Event

	switch in.Disposition {
	case DispositionArchive:
		return []Action{f.archive(event)}, nil

	case DispositionDelete:
		return []Action{&DeleteEmail{
			Mail:        f.Mail,
			AccountID:   event.AccountID(),
			MessageUID:  event.SourceID,
			TrashFolder: f.Folders.Trash,
			Permanent:   in.Permanent,
		}}, nil

	case DispositionReference:
		return []Action{&MoveEmail{
			Mail:         f.Mail,
			AccountID:    event.AccountID(),
			MessageUID:   event.SourceID,
			TargetFolder: f.Folders.Reference,
		}}, nil

	case DispositionTask:
		task := &CreateTask{
			Tasks:   f.Tasks,
			EventID: event.EventID,
			Request: integrations.TaskRequest{
				Name: taskName(event),
				Note: taskNote(event),
				Tags: f.TaskTags,
			},
		}
		archive := f.archive(event)
		archive.After(task.ID())
		return []Action{task, archive}, nil

	case DispositionReply:
		return []Action{&PrepareReply{
			Drafts:    f.Drafts,
			AccountID: event.AccountID(),
			EventID:   event.EventID,
			To:        []string{event.FromPerson},
			Subject:   replySubject(event.Title),
			Body:      in.ReplyBody,
		}}, nil

	case DispositionRespond:
		response := in.Response
		if response == "" {
			response = integrations.ResponseTentative
		}
		return []Action{&RespondToEvent{
			Calendar:  f.Calendar,
			AccountID: event.AccountID(),
			EventUID:  event.SourceID,
			Response:  response,
		}}, nil

	case DispositionReview, DispositionSnooze:
		return []Action{}, nil

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDisposition, in.Disposition)
	}
}

func (f *Factory) archive(event *models.PerceivedEvent) *ArchiveEmail {
	return &ArchiveEmail{
		Mail:          f.Mail,
		AccountID:     event.AccountID(),
		MessageUID:    event.SourceID,
		ArchiveFolder: f.Folders.Archive,
	}
}

func taskName(event *models.PerceivedEvent) string {
	title := strings.TrimSpace(event.Title)
	if title == "" {
		return "Follow up on message"
	}
	return title
}

func taskNote(event *models.PerceivedEvent) string {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\n", event.FromPerson)
	if event.Content != "" {
		b.WriteString(event.Content)
	}
	for _, u := range event.URLs {
		fmt.Fprintf(&b, "\n%s", u)
	}
	return b.String()
}

func replySubject(title string) string {
	if title == "" {
		return "Re:"
	}
	lower := strings.ToLower(title)
	if strings.HasPrefix(lower, "re:") {
		return title
	}
	return "Re: " + title
}
