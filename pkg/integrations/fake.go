package integrations

import (
	"context"
	"fmt"
	"sync"
)

// FakeMailClient is an in-memory MailClient for tests and local development.
// It records side effects so tests can assert on them and supports injecting
// per-method failures.
type FakeMailClient struct {
	mu       sync.Mutex
	Messages map[string]*MailMessage // uid -> message
	Moves    []string                // "uid->folder" in call order
	Deleted  []string
	Sent     []string // sent message ids
	FailNext map[string]error
	nextID   int
}

// NewFakeMailClient creates an empty fake mail client.
func NewFakeMailClient() *FakeMailClient {
	return &FakeMailClient{
		Messages: make(map[string]*MailMessage),
		FailNext: make(map[string]error),
	}
}

func (f *FakeMailClient) failure(op string) error {
	if err, ok := f.FailNext[op]; ok {
		delete(f.FailNext, op)
		return err
	}
	return nil
}

// ListSince returns all stored messages; the cursor is ignored.
func (f *FakeMailClient) ListSince(_ context.Context, _, cursor string) ([]MailMessage, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failure("list"); err != nil {
		return nil, "", err
	}
	out := make([]MailMessage, 0, len(f.Messages))
	for _, m := range f.Messages {
		out = append(out, *m)
	}
	return out, cursor, nil
}

// Fetch returns the message with the given uid.
func (f *FakeMailClient) Fetch(_ context.Context, _, uid string) (*MailMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failure("fetch"); err != nil {
		return nil, err
	}
	m, ok := f.Messages[uid]
	if !ok {
		return nil, fmt.Errorf("message %q not found", uid)
	}
	copied := *m
	return &copied, nil
}

// Move relocates a message to the given folder.
func (f *FakeMailClient) Move(_ context.Context, _, uid, folder string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failure("move"); err != nil {
		return err
	}
	m, ok := f.Messages[uid]
	if !ok {
		return fmt.Errorf("message %q not found", uid)
	}
	m.Folder = folder
	f.Moves = append(f.Moves, uid+"->"+folder)
	return nil
}

// Delete removes a message (to trash unless permanent).
func (f *FakeMailClient) Delete(_ context.Context, _, uid string, permanent bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failure("delete"); err != nil {
		return err
	}
	m, ok := f.Messages[uid]
	if !ok {
		return fmt.Errorf("message %q not found", uid)
	}
	if permanent {
		delete(f.Messages, uid)
	} else {
		m.Folder = "Trash"
	}
	f.Deleted = append(f.Deleted, uid)
	return nil
}

// Send records an outgoing message and returns its id.
func (f *FakeMailClient) Send(_ context.Context, _ string, _ []string, _, _ string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failure("send"); err != nil {
		return "", err
	}
	f.nextID++
	id := fmt.Sprintf("sent-%d", f.nextID)
	f.Sent = append(f.Sent, id)
	return id, nil
}

// Folder returns the current folder of a message (test helper).
func (f *FakeMailClient) Folder(uid string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if m, ok := f.Messages[uid]; ok {
		return m.Folder
	}
	return ""
}

// FakeChatClient is an in-memory ChatClient.
type FakeChatClient struct {
	mu       sync.Mutex
	Messages map[string]*ChatMessage
	SentIDs  []string
	Deleted  []string
	Flags    map[string]bool
	FailNext map[string]error
	nextID   int
}

// NewFakeChatClient creates an empty fake chat client.
func NewFakeChatClient() *FakeChatClient {
	return &FakeChatClient{
		Messages: make(map[string]*ChatMessage),
		Flags:    make(map[string]bool),
		FailNext: make(map[string]error),
	}
}

func (f *FakeChatClient) failure(op string) error {
	if err, ok := f.FailNext[op]; ok {
		delete(f.FailNext, op)
		return err
	}
	return nil
}

// ListSince returns all stored messages; the cursor is ignored.
func (f *FakeChatClient) ListSince(_ context.Context, _, cursor string) ([]ChatMessage, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]ChatMessage, 0, len(f.Messages))
	for _, m := range f.Messages {
		out = append(out, *m)
	}
	return out, cursor, nil
}

// Fetch returns the message with the given id.
func (f *FakeChatClient) Fetch(_ context.Context, _, messageID string) (*ChatMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.Messages[messageID]
	if !ok {
		return nil, fmt.Errorf("chat message %q not found", messageID)
	}
	copied := *m
	return &copied, nil
}

// Send records a reply and returns the new message id.
func (f *FakeChatClient) Send(_ context.Context, _, _, _, _ string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failure("send"); err != nil {
		return "", err
	}
	f.nextID++
	id := fmt.Sprintf("chat-sent-%d", f.nextID)
	f.SentIDs = append(f.SentIDs, id)
	return id, nil
}

// DeleteMessage removes a sent message.
func (f *FakeChatClient) DeleteMessage(_ context.Context, _, _, messageID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failure("delete"); err != nil {
		return err
	}
	f.Deleted = append(f.Deleted, messageID)
	return nil
}

// Flag sets or clears the flagged state of a message.
func (f *FakeChatClient) Flag(_ context.Context, _, _, messageID string, flagged bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failure("flag"); err != nil {
		return err
	}
	f.Flags[messageID] = flagged
	return nil
}

// FakeCalendarClient is an in-memory CalendarClient.
type FakeCalendarClient struct {
	mu        sync.Mutex
	Events    map[string]*CalendarEvent
	Responses map[string]ResponseStatus
	Created   []string
	Deleted   []string
	FailNext  map[string]error
	nextID    int
}

// NewFakeCalendarClient creates an empty fake calendar client.
func NewFakeCalendarClient() *FakeCalendarClient {
	return &FakeCalendarClient{
		Events:    make(map[string]*CalendarEvent),
		Responses: make(map[string]ResponseStatus),
		FailNext:  make(map[string]error),
	}
}

func (f *FakeCalendarClient) failure(op string) error {
	if err, ok := f.FailNext[op]; ok {
		delete(f.FailNext, op)
		return err
	}
	return nil
}

// ListSince returns all stored events; the cursor is ignored.
func (f *FakeCalendarClient) ListSince(_ context.Context, _, cursor string) ([]CalendarEvent, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]CalendarEvent, 0, len(f.Events))
	for _, e := range f.Events {
		out = append(out, *e)
	}
	return out, cursor, nil
}

// Fetch returns the event with the given uid.
func (f *FakeCalendarClient) Fetch(_ context.Context, _, uid string) (*CalendarEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.Events[uid]
	if !ok {
		return nil, fmt.Errorf("calendar event %q not found", uid)
	}
	copied := *e
	return &copied, nil
}

// Respond records a response to an event invitation.
func (f *FakeCalendarClient) Respond(_ context.Context, _, uid string, response ResponseStatus, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failure("respond"); err != nil {
		return err
	}
	f.Responses[uid] = response
	return nil
}

// CreateEvent stores a new event and returns its uid.
func (f *FakeCalendarClient) CreateEvent(_ context.Context, _ string, event CalendarEvent) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failure("create"); err != nil {
		return "", err
	}
	f.nextID++
	uid := fmt.Sprintf("cal-%d", f.nextID)
	event.EventUID = uid
	f.Events[uid] = &event
	f.Created = append(f.Created, uid)
	return uid, nil
}

// DeleteEvent removes an event.
func (f *FakeCalendarClient) DeleteEvent(_ context.Context, _, uid string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failure("delete"); err != nil {
		return err
	}
	delete(f.Events, uid)
	f.Deleted = append(f.Deleted, uid)
	return nil
}

// FakeNoteManager is an in-memory NoteManager.
type FakeNoteManager struct {
	mu       sync.Mutex
	Notes    map[string]*Note
	Updates  []string // note ids updated, in call order
	FailNext map[string]error
	nextID   int
}

// NewFakeNoteManager creates an empty fake note manager.
func NewFakeNoteManager() *FakeNoteManager {
	return &FakeNoteManager{
		Notes:    make(map[string]*Note),
		FailNext: make(map[string]error),
	}
}

func (f *FakeNoteManager) failure(op string) error {
	if err, ok := f.FailNext[op]; ok {
		delete(f.FailNext, op)
		return err
	}
	return nil
}

// CreateNote stores a note and returns its id.
func (f *FakeNoteManager) CreateNote(_ context.Context, title, content string, tags, entities []string, metadata map[string]any) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failure("create"); err != nil {
		return "", err
	}
	f.nextID++
	id := fmt.Sprintf("note-%d", f.nextID)
	f.Notes[id] = &Note{NoteID: id, Title: title, Content: content, Tags: tags, Entities: entities, Metadata: metadata}
	return id, nil
}

// UpdateNote applies changes to an existing note.
func (f *FakeNoteManager) UpdateNote(_ context.Context, noteID string, changes map[string]any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failure("update"); err != nil {
		return err
	}
	n, ok := f.Notes[noteID]
	if !ok {
		// Knowledge targets are created on demand.
		n = &Note{NoteID: noteID, Metadata: map[string]any{}}
		f.Notes[noteID] = n
	}
	if n.Metadata == nil {
		n.Metadata = map[string]any{}
	}
	for k, v := range changes {
		n.Metadata[k] = v
	}
	f.Updates = append(f.Updates, noteID)
	return nil
}

// GetNote returns a note by id, or nil when absent.
func (f *FakeNoteManager) GetNote(_ context.Context, noteID string) (*Note, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n, ok := f.Notes[noteID]
	if !ok {
		return nil, nil
	}
	copied := *n
	return &copied, nil
}

// DeleteNote removes a note.
func (f *FakeNoteManager) DeleteNote(_ context.Context, noteID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.Notes, noteID)
	return nil
}

// FakeTaskManager is an in-memory TaskManager.
type FakeTaskManager struct {
	mu       sync.Mutex
	Tasks    map[string]*Task
	Removed  []string
	FailNext map[string]error
	nextID   int
}

// NewFakeTaskManager creates an empty fake task manager.
func NewFakeTaskManager() *FakeTaskManager {
	return &FakeTaskManager{
		Tasks:    make(map[string]*Task),
		FailNext: make(map[string]error),
	}
}

func (f *FakeTaskManager) failure(op string) error {
	if err, ok := f.FailNext[op]; ok {
		delete(f.FailNext, op)
		return err
	}
	return nil
}

// AddTask stores a new task and returns it.
func (f *FakeTaskManager) AddTask(_ context.Context, req TaskRequest) (*Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failure("add"); err != nil {
		return nil, err
	}
	f.nextID++
	task := &Task{
		TaskID:           fmt.Sprintf("task-%d", f.nextID),
		Name:             req.Name,
		Note:             req.Note,
		Project:          req.Project,
		Tags:             req.Tags,
		DueDate:          req.DueDate,
		DeferDate:        req.DeferDate,
		EstimatedMinutes: req.EstimatedMinutes,
		Flagged:          req.Flagged,
	}
	f.Tasks[task.TaskID] = task
	copied := *task
	return &copied, nil
}

// EditTask updates an existing task.
func (f *FakeTaskManager) EditTask(_ context.Context, idOrName string, req TaskRequest) (*Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	task := f.find(idOrName)
	if task == nil {
		return nil, fmt.Errorf("task %q not found", idOrName)
	}
	if req.Name != "" {
		task.Name = req.Name
	}
	if req.Note != "" {
		task.Note = req.Note
	}
	copied := *task
	return &copied, nil
}

// RemoveTask deletes a task.
func (f *FakeTaskManager) RemoveTask(_ context.Context, idOrName string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failure("remove"); err != nil {
		return err
	}
	task := f.find(idOrName)
	if task == nil {
		return fmt.Errorf("task %q not found", idOrName)
	}
	delete(f.Tasks, task.TaskID)
	f.Removed = append(f.Removed, task.TaskID)
	return nil
}

// CompleteTask marks a task completed.
func (f *FakeTaskManager) CompleteTask(_ context.Context, idOrName string) (*Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failure("complete"); err != nil {
		return nil, err
	}
	task := f.find(idOrName)
	if task == nil {
		return nil, fmt.Errorf("task %q not found", idOrName)
	}
	task.Completed = true
	copied := *task
	return &copied, nil
}

// GetTaskByName returns a task by name, or nil when absent.
func (f *FakeTaskManager) GetTaskByName(_ context.Context, name string) (*Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range f.Tasks {
		if t.Name == name {
			copied := *t
			return &copied, nil
		}
	}
	return nil, nil
}

// GetTaskByID returns a task by id, or nil when absent.
func (f *FakeTaskManager) GetTaskByID(_ context.Context, id string) (*Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if t, ok := f.Tasks[id]; ok {
		copied := *t
		return &copied, nil
	}
	return nil, nil
}

func (f *FakeTaskManager) find(idOrName string) *Task {
	if t, ok := f.Tasks[idOrName]; ok {
		return t
	}
	for _, t := range f.Tasks {
		if t.Name == idOrName {
			return t
		}
	}
	return nil
}
