package client

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/shubhamagrawalwork/langgraph-tavily-chatbot/models"
)

// ThreadManager tracks the active conversation thread, a local mirror of its
// message history, and the set of thread IDs seen so far. Turns run against
// the service with search progress folded into the displayed text.
type ThreadManager struct {
	API      *API
	ThreadID string
	// MessageHistory mirrors the active thread's conversation. The user
	// message is appended optimistically when a turn starts; the assistant
	// message is committed only when the turn ends successfully.
	MessageHistory []models.HistoryMessage

	knownThreadIDs []string
}

func NewThreadManager(api *API) *ThreadManager {
	m := &ThreadManager{API: api}
	m.ThreadID = uuid.NewString()
	m.registerThread(m.ThreadID)
	return m
}

func (m *ThreadManager) registerThread(threadID string) {
	for _, id := range m.knownThreadIDs {
		if id == threadID {
			return
		}
	}
	m.knownThreadIDs = append(m.knownThreadIDs, threadID)
}

// KnownThreads returns every thread ID this client has seen, in the order
// they were first encountered.
func (m *ThreadManager) KnownThreads() []string {
	return append([]string(nil), m.knownThreadIDs...)
}

// SyncThreads merges the service's thread list into the known set.
func (m *ThreadManager) SyncThreads(ctx context.Context) error {
	threads, err := m.API.ListThreads(ctx)
	if err != nil {
		return err
	}
	for _, id := range threads {
		m.registerThread(id)
	}
	return nil
}

// NewConversation switches to a fresh empty thread and returns its ID. The
// old thread stays intact on the service.
func (m *ThreadManager) NewConversation() string {
	m.ThreadID = uuid.NewString()
	m.MessageHistory = nil
	m.registerThread(m.ThreadID)
	return m.ThreadID
}

// SwitchConversation fetches threadID's committed history and, only if that
// succeeds, makes it the active thread. On a transport failure the client
// stays on its current thread with its history untouched.
func (m *ThreadManager) SwitchConversation(ctx context.Context, threadID string) error {
	if strings.TrimSpace(threadID) == "" {
		return fmt.Errorf("thread id must not be empty")
	}

	history, err := m.API.GetHistory(ctx, threadID)
	if err != nil {
		return fmt.Errorf("switching to thread %s: %w", threadID, err)
	}

	m.ThreadID = threadID
	m.MessageHistory = history
	m.registerThread(threadID)
	return nil
}

// History refreshes the local mirror from the service's committed history
// and returns it.
func (m *ThreadManager) History(ctx context.Context) ([]models.HistoryMessage, error) {
	history, err := m.API.GetHistory(ctx, m.ThreadID)
	if err != nil {
		return nil, err
	}
	m.MessageHistory = history
	return history, nil
}

// Send runs one turn on the active thread. The user message joins the local
// history immediately; content fragments and search annotations stream to
// the renderer as they arrive. On success the accumulated text is committed
// as the assistant message and returned. On failure the partial text is
// discarded — no assistant message locally, none on the service — leaving
// the two sides consistent.
func (m *ThreadManager) Send(ctx context.Context, message string, renderer Renderer) (string, error) {
	m.MessageHistory = append(m.MessageHistory, models.HistoryMessage{Role: "user", Content: message})

	var accumulated strings.Builder
	emit := func(text string) {
		accumulated.WriteString(text)
		renderer.Fragment(text)
	}

	err := m.API.StreamChat(ctx, m.ThreadID, message, func(event models.StreamEvent) error {
		switch event.Type {
		case models.EventContent:
			emit(event.Content)
		case models.EventSearchStart:
			emit(fmt.Sprintf("\n\nSearching for: %s...", event.Query))
		case models.EventSearchResults:
			emit(fmt.Sprintf("\n\nFound some results: %s\n\n", strings.Join(event.URLs, ", ")))
		case models.EventEnd:
			renderer.Done()
		}
		return nil
	})
	if err != nil {
		return "", err
	}

	text := accumulated.String()
	m.MessageHistory = append(m.MessageHistory, models.HistoryMessage{Role: "assistant", Content: text})
	return text, nil
}
