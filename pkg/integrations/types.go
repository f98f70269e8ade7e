// Package integrations defines the boundary to the external collaborators:
// source clients (mail, chat, calendar), the note manager, and the task
// manager. The core only depends on these interfaces; concrete clients live
// outside this repository. In-memory implementations for tests and local
// development are provided in fake.go.
package integrations

import (
	"context"
	"time"
)

// MailMessage is a source-native mail record as returned by a mail client.
type MailMessage struct {
	UID         string
	AccountID   string
	From        string
	FromName    string
	To          []string
	Cc          []string
	Subject     string
	Body        string
	SentAt      time.Time
	ReceivedAt  time.Time
	ThreadID    string
	InReplyTo   string
	References  []string
	Attachments []Attachment
	Folder      string
	Headers     map[string]string
}

// Attachment describes one mail attachment.
type Attachment struct {
	Filename string
	MIMEType string
	Size     int64
}

// ChatImportance is the explicit importance flag carried by chat messages.
type ChatImportance string

// Chat importance levels.
const (
	ChatImportanceUrgent ChatImportance = "urgent"
	ChatImportanceHigh   ChatImportance = "high"
	ChatImportanceNormal ChatImportance = "normal"
	ChatImportanceLow    ChatImportance = "low"
)

// ChatMessage is a source-native chat record.
type ChatMessage struct {
	MessageID  string
	AccountID  string
	ChannelID  string
	From       string
	FromName   string
	Text       string
	SentAt     time.Time
	Importance ChatImportance
	Mentions   []string
	MentionsMe bool
	ThreadID   string
	ReplyToID  string
	WebLink    string
}

// ResponseStatus is the user's response state on a calendar event.
type ResponseStatus string

// Calendar response states.
const (
	ResponseAccepted     ResponseStatus = "accepted"
	ResponseDeclined     ResponseStatus = "declined"
	ResponseTentative    ResponseStatus = "tentative"
	ResponseNotResponded ResponseStatus = "not_responded"
	ResponseOrganizer    ResponseStatus = "organizer"
)

// CalendarEvent is a source-native calendar record.
type CalendarEvent struct {
	EventUID       string
	AccountID      string
	Organizer      string
	OrganizerName  string
	Attendees      []string
	Subject        string
	Body           string
	Location       string
	Start          time.Time
	End            time.Time
	CreatedAt      time.Time
	ResponseStatus ResponseStatus
	IsAllDay       bool
	IsCancelled    bool
	OnlineMeeting  string
	Categories     []string
	WebLink        string
}

// MailClient is the external mail source and side-effect surface.
type MailClient interface {
	ListSince(ctx context.Context, accountID, cursor string) ([]MailMessage, string, error)
	Fetch(ctx context.Context, accountID, uid string) (*MailMessage, error)
	Move(ctx context.Context, accountID, uid, folder string) error
	Delete(ctx context.Context, accountID, uid string, permanent bool) error
	Send(ctx context.Context, accountID string, to []string, subject, body string) (string, error)
}

// ChatClient is the external chat source and side-effect surface.
type ChatClient interface {
	ListSince(ctx context.Context, accountID, cursor string) ([]ChatMessage, string, error)
	Fetch(ctx context.Context, accountID, messageID string) (*ChatMessage, error)
	Send(ctx context.Context, accountID, channelID, replyToID, text string) (string, error)
	DeleteMessage(ctx context.Context, accountID, channelID, messageID string) error
	Flag(ctx context.Context, accountID, channelID, messageID string, flagged bool) error
}

// CalendarClient is the external calendar source and side-effect surface.
type CalendarClient interface {
	ListSince(ctx context.Context, accountID, cursor string) ([]CalendarEvent, string, error)
	Fetch(ctx context.Context, accountID, uid string) (*CalendarEvent, error)
	Respond(ctx context.Context, accountID, uid string, response ResponseStatus, comment string) error
	CreateEvent(ctx context.Context, accountID string, event CalendarEvent) (string, error)
	DeleteEvent(ctx context.Context, accountID, uid string) error
}

// Note is a knowledge-base note as seen through the note manager.
type Note struct {
	NoteID   string
	Title    string
	Content  string
	Tags     []string
	Entities []string
	Metadata map[string]any
}

// NoteManager is the external markdown/YAML note surface used by both the
// knowledge updater and the note actions.
type NoteManager interface {
	CreateNote(ctx context.Context, title, content string, tags, entities []string, metadata map[string]any) (string, error)
	UpdateNote(ctx context.Context, noteID string, changes map[string]any) error
	GetNote(ctx context.Context, noteID string) (*Note, error)
	DeleteNote(ctx context.Context, noteID string) error
}

// Task is an external task-manager item.
type Task struct {
	TaskID           string
	Name             string
	Note             string
	Project          string
	Tags             []string
	DueDate          time.Time
	DeferDate        time.Time
	EstimatedMinutes int
	Flagged          bool
	Completed        bool
}

// TaskRequest carries the fields for creating or editing a task.
type TaskRequest struct {
	Name             string
	Note             string
	Project          string
	Tags             []string
	DueDate          time.Time
	DeferDate        time.Time
	EstimatedMinutes int
	Flagged          bool
}

// TaskManager is the external task-manager surface.
type TaskManager interface {
	AddTask(ctx context.Context, req TaskRequest) (*Task, error)
	EditTask(ctx context.Context, idOrName string, req TaskRequest) (*Task, error)
	RemoveTask(ctx context.Context, idOrName string) error
	CompleteTask(ctx context.Context, idOrName string) (*Task, error)
	GetTaskByName(ctx context.Context, name string) (*Task, error)
	GetTaskByID(ctx context.Context, id string) (*Task, error)
}
