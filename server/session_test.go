package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	chatbot "github.com/shubhamagrawalwork/langgraph-tavily-chatbot"
	"github.com/shubhamagrawalwork/langgraph-tavily-chatbot/models"
	"github.com/shubhamagrawalwork/langgraph-tavily-chatbot/stores"
	"github.com/shubhamagrawalwork/langgraph-tavily-chatbot/tools"
)

// scriptedModel replays one scripted step per Stream_Model_Request call.
type scriptedStep struct {
	parts []models.Model_Part
	err   error
}

type scriptedModel struct {
	steps []scriptedStep
	calls int
}

func (m *scriptedModel) Model_Request(request models.Model_Request, decls []models.FunctionDeclaration, history []stores.Message) (models.Model_Response, error) {
	respChan, errChan := m.Stream_Model_Request(request, decls, history)
	var response models.Model_Response
	for r := range respChan {
		response.Parts = append(response.Parts, r.Parts...)
	}
	if err := <-errChan; err != nil {
		return models.Model_Response{}, err
	}
	return response, nil
}

func (m *scriptedModel) Stream_Model_Request(request models.Model_Request, decls []models.FunctionDeclaration, history []stores.Message) (<-chan models.Model_Response, <-chan error) {
	respChan := make(chan models.Model_Response)
	errChan := make(chan error, 1)

	step := scriptedStep{}
	if m.calls < len(m.steps) {
		step = m.steps[m.calls]
	}
	m.calls++

	go func() {
		defer close(respChan)
		defer close(errChan)
		for _, part := range step.parts {
			respChan <- models.Model_Response{Parts: []models.Model_Part{part}}
		}
		if step.err != nil {
			errChan <- step.err
		}
	}()

	return respChan, errChan
}

// memStore is an in-memory MessageStore for session tests.
type memStore struct {
	mu       sync.Mutex
	messages map[string][]stores.Message
	saveErr  error
	fetchErr error
}

func newMemStore() *memStore {
	return &memStore{messages: map[string][]stores.Message{}}
}

func (s *memStore) SaveMessage(threadID, role, messageType string, parts interface{}, functionID string) error {
	if s.saveErr != nil {
		return s.saveErr
	}
	partsJSON, err := json.Marshal(parts)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages[threadID] = append(s.messages[threadID], stores.Message{
		ConversationID: threadID,
		Sequence:       len(s.messages[threadID]) + 1,
		Role:           role,
		Type:           messageType,
		FunctionID:     functionID,
		PartsJSON:      string(partsJSON),
	})
	return nil
}

func (s *memStore) FetchHistory(threadID string, limit int) ([]stores.Message, error) {
	if s.fetchErr != nil {
		return nil, s.fetchErr
	}
	return s.snapshot(threadID), nil
}

func (s *memStore) snapshot(threadID string) []stores.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]stores.Message(nil), s.messages[threadID]...)
}

func (s *memStore) CreateConversation(threadID string) error { return nil }

func (s *memStore) ListConversations() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.messages))
	for id := range s.messages {
		ids = append(ids, id)
	}
	return ids, nil
}

func (s *memStore) PruneBefore(cutoff time.Time) (int64, error) { return 0, nil }
func (s *memStore) Connect() error                              { return nil }
func (s *memStore) Close() error                                { return nil }
func (s *memStore) Ping() error                                 { return nil }

func textPart(text string) models.Model_Part {
	return models.Model_Part{Text: &text}
}

func callPart(id, name, query string) models.Model_Part {
	return models.Model_Part{FunctionCall: &models.FunctionCall{
		ID:   id,
		Name: name,
		Args: map[string]interface{}{"query": query},
	}}
}

func newTestSession(model chatbot.Model, store stores.MessageStore, toolSet []models.FunctionDeclaration) *ChatSession {
	agent := chatbot.New_Agent(model, toolSet)
	return NewChatSession("thread-1", &agent, store)
}

func collectEvents(t *testing.T, session *ChatSession, message string) ([]models.StreamEvent, error) {
	t.Helper()
	var events []models.StreamEvent
	err := session.RunTurn(context.Background(), message, func(event models.StreamEvent) error {
		events = append(events, event)
		return nil
	})
	return events, err
}

func TestRunTurnPlainTextEndsExactlyOnce(t *testing.T) {
	model := &scriptedModel{steps: []scriptedStep{
		{parts: []models.Model_Part{textPart("Hello"), textPart(", world")}},
	}}
	store := newMemStore()
	session := newTestSession(model, store, nil)

	events, err := collectEvents(t, session, "hi")
	if err != nil {
		t.Fatalf("RunTurn failed: %v", err)
	}

	endCount := 0
	for i, ev := range events {
		if ev.Type == models.EventEnd {
			endCount++
			if i != len(events)-1 {
				t.Errorf("end event at position %d, want last", i)
			}
		}
	}
	if endCount != 1 {
		t.Fatalf("got %d end events, want exactly 1", endCount)
	}

	if events[0].Type != models.EventContent || events[0].Content != "Hello" {
		t.Errorf("first event = %+v, want content Hello", events[0])
	}
	if events[1].Content != ", world" {
		t.Errorf("second event = %+v, want content ', world'", events[1])
	}
}

func TestRunTurnPersistsUserAndAssistantMessages(t *testing.T) {
	model := &scriptedModel{steps: []scriptedStep{
		{parts: []models.Model_Part{textPart("answer")}},
	}}
	store := newMemStore()
	session := newTestSession(model, store, nil)

	if _, err := collectEvents(t, session, "question"); err != nil {
		t.Fatalf("RunTurn failed: %v", err)
	}

	msgs := store.messages["thread-1"]
	if len(msgs) != 2 {
		t.Fatalf("got %d persisted messages, want 2: %+v", len(msgs), msgs)
	}
	if msgs[0].Type != "user_message" || msgs[1].Type != "model_message" {
		t.Errorf("persisted types = %s, %s", msgs[0].Type, msgs[1].Type)
	}
	if msgs[0].Sequence >= msgs[1].Sequence {
		t.Errorf("sequence not increasing: %d, %d", msgs[0].Sequence, msgs[1].Sequence)
	}
}

func TestRunTurnToolCycleEmitsSearchEvents(t *testing.T) {
	searchOutput := `{"query":"go","results":[{"title":"A","url":"https://a.example","content":"x"},{"title":"B","url":"https://b.example","content":"y"}]}`

	toolSet := []models.FunctionDeclaration{{
		Name:        tools.WebSearchName,
		Description: "test search",
		Parameters: models.Parameters{
			Type:       "object",
			Properties: map[string]interface{}{"query": map[string]interface{}{"type": "string"}},
			Required:   []string{"query"},
		},
		Callable: func(query string) (string, error) {
			return searchOutput, nil
		},
	}}

	model := &scriptedModel{steps: []scriptedStep{
		{parts: []models.Model_Part{callPart("call_1", tools.WebSearchName, "go")}},
		{parts: []models.Model_Part{textPart("Found it.")}},
	}}
	store := newMemStore()
	session := newTestSession(model, store, toolSet)

	events, err := collectEvents(t, session, "search go")
	if err != nil {
		t.Fatalf("RunTurn failed: %v", err)
	}

	var kinds []string
	for _, ev := range events {
		kinds = append(kinds, ev.Type)
	}
	want := []string{models.EventSearchStart, models.EventSearchResults, models.EventContent, models.EventEnd}
	if fmt.Sprint(kinds) != fmt.Sprint(want) {
		t.Fatalf("event kinds = %v, want %v", kinds, want)
	}

	if events[0].Query != "go" {
		t.Errorf("search_start query = %q, want go", events[0].Query)
	}
	if len(events[1].URLs) != 2 || events[1].URLs[0] != "https://a.example" {
		t.Errorf("search_results urls = %v", events[1].URLs)
	}

	// Tool cycle is committed: user_message, function_call, function_response, model_message.
	var types []string
	for _, msg := range store.messages["thread-1"] {
		types = append(types, msg.Type)
	}
	wantTypes := []string{"user_message", "function_call", "function_response", "model_message"}
	if fmt.Sprint(types) != fmt.Sprint(wantTypes) {
		t.Errorf("persisted types = %v, want %v", types, wantTypes)
	}
}

// capturingModel records the history and request each model step receives.
type capturingModel struct {
	scriptedModel
	histories [][]stores.Message
	requests  []models.Model_Request
}

func (m *capturingModel) Stream_Model_Request(request models.Model_Request, decls []models.FunctionDeclaration, history []stores.Message) (<-chan models.Model_Response, <-chan error) {
	m.histories = append(m.histories, append([]stores.Message(nil), history...))
	m.requests = append(m.requests, request)
	return m.scriptedModel.Stream_Model_Request(request, decls, history)
}

func TestRunTurnModelContextCarriesEachRecordOnce(t *testing.T) {
	// Backends append the request's own contents after the history they are
	// given, so the turn engine must keep the in-flight request out of it:
	// otherwise the user message is sent twice and a tool turn carries two
	// tool results for the same call ID, which chat APIs reject.
	toolSet := []models.FunctionDeclaration{{
		Name: tools.WebSearchName,
		Parameters: models.Parameters{
			Type:       "object",
			Properties: map[string]interface{}{"query": map[string]interface{}{"type": "string"}},
			Required:   []string{"query"},
		},
		Callable: func(query string) (string, error) {
			return `{"query":"go","results":[]}`, nil
		},
	}}

	model := &capturingModel{scriptedModel: scriptedModel{steps: []scriptedStep{
		{parts: []models.Model_Part{callPart("call_1", tools.WebSearchName, "go")}},
		{parts: []models.Model_Part{textPart("done")}},
	}}}
	store := newMemStore()

	// A prior committed turn, to prove existing context still flows through.
	prior := models.NewTextMessage("earlier question")
	if err := store.SaveMessage("thread-1", "user", "user_message", prior.Content.Parts, ""); err != nil {
		t.Fatal(err)
	}
	earlier := "earlier answer"
	if err := store.SaveMessage("thread-1", "model", "model_message", []models.Model_Part{{Text: &earlier}}, ""); err != nil {
		t.Fatal(err)
	}

	session := newTestSession(model, store, toolSet)
	if _, err := collectEvents(t, session, "search go"); err != nil {
		t.Fatalf("RunTurn failed: %v", err)
	}

	if len(model.histories) != 2 {
		t.Fatalf("model invoked %d times, want 2", len(model.histories))
	}

	// Step 1: prior turn only; the new user message travels in the request.
	if len(model.histories[0]) != 2 {
		t.Fatalf("step 1 history has %d records, want the 2 prior ones: %+v", len(model.histories[0]), model.histories[0])
	}
	if model.requests[0].User_Message == nil {
		t.Fatal("step 1 request lost its user message")
	}
	for _, msg := range model.histories[0] {
		if strings.Contains(msg.PartsJSON, "search go") {
			t.Errorf("step 1 history already contains the request's user message: %+v", msg)
		}
	}

	// Step 2: user message and function_call joined history exactly once;
	// the tool result travels only in the request.
	var userMsgs, callMsgs, responseMsgs int
	for _, msg := range model.histories[1] {
		switch msg.Type {
		case "user_message":
			userMsgs++
		case "function_call":
			callMsgs++
		case "function_response":
			responseMsgs++
		}
	}
	if userMsgs != 2 || callMsgs != 1 {
		t.Errorf("step 2 history: %d user_message (want 2 incl. prior turn), %d function_call (want 1)", userMsgs, callMsgs)
	}
	if responseMsgs != 0 {
		t.Errorf("step 2 history contains %d function_response records; the result must travel only as Tool_Results", responseMsgs)
	}
	if model.requests[1].Tool_Results == nil || len(*model.requests[1].Tool_Results) != 1 {
		t.Fatalf("step 2 request Tool_Results = %+v, want exactly 1", model.requests[1].Tool_Results)
	}
}

// blockingModel emits one text part and then holds the stream open until
// released; it lets tests cancel a turn mid-stream.
type blockingModel struct {
	release chan struct{}
}

func (m *blockingModel) Model_Request(request models.Model_Request, decls []models.FunctionDeclaration, history []stores.Message) (models.Model_Response, error) {
	return models.Model_Response{}, nil
}

func (m *blockingModel) Stream_Model_Request(request models.Model_Request, decls []models.FunctionDeclaration, history []stores.Message) (<-chan models.Model_Response, <-chan error) {
	respChan := make(chan models.Model_Response, 1)
	errChan := make(chan error, 1)
	text := "partial "
	respChan <- models.Model_Response{Parts: []models.Model_Part{{Text: &text}}}

	go func() {
		<-m.release
		close(respChan)
		close(errChan)
	}()

	return respChan, errChan
}

func TestRunTurnStopsWhenContextCancelled(t *testing.T) {
	model := &blockingModel{release: make(chan struct{})}
	t.Cleanup(func() { close(model.release) })

	store := newMemStore()
	session := newTestSession(model, store, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var events []models.StreamEvent
	err := session.RunTurn(ctx, "hi", func(event models.StreamEvent) error {
		events = append(events, event)
		// Client walks away after the first fragment.
		cancel()
		return nil
	})
	if err == nil {
		t.Fatal("expected error from cancelled turn")
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}

	for _, ev := range events {
		if ev.Type == models.EventEnd {
			t.Error("end event emitted on an abandoned turn")
		}
	}
	for _, msg := range store.messages["thread-1"] {
		if msg.Type == "model_message" {
			t.Errorf("partial assistant message committed: %+v", msg)
		}
	}
}

func TestRunTurnModelErrorOmitsEndAndAssistantCommit(t *testing.T) {
	model := &scriptedModel{steps: []scriptedStep{
		{parts: []models.Model_Part{textPart("partial ")}, err: errors.New("upstream hiccup")},
	}}
	store := newMemStore()
	session := newTestSession(model, store, nil)

	events, err := collectEvents(t, session, "hi")
	if err == nil {
		t.Fatal("expected error from failed turn")
	}

	for _, ev := range events {
		if ev.Type == models.EventEnd {
			t.Error("end event emitted on a failed turn")
		}
	}

	for _, msg := range store.messages["thread-1"] {
		if msg.Type == "model_message" {
			t.Errorf("partial assistant message committed: %+v", msg)
		}
	}
}

func TestRunTurnUnknownToolCompletesTurn(t *testing.T) {
	model := &scriptedModel{steps: []scriptedStep{
		{parts: []models.Model_Part{textPart("trying"), callPart("call_1", "no_such_tool", "x")}},
	}}
	store := newMemStore()
	session := newTestSession(model, store, nil)

	events, err := collectEvents(t, session, "hi")
	if err != nil {
		t.Fatalf("RunTurn failed: %v", err)
	}
	if events[len(events)-1].Type != models.EventEnd {
		t.Fatalf("last event = %+v, want end", events[len(events)-1])
	}
}

func TestRunTurnEmptyMessageRejected(t *testing.T) {
	model := &scriptedModel{}
	session := newTestSession(model, newMemStore(), nil)

	if _, err := collectEvents(t, session, "   "); err == nil {
		t.Fatal("expected error for empty message")
	}
	if model.calls != 0 {
		t.Errorf("model invoked %d times for empty message", model.calls)
	}
}

func TestRunTurnFetchHistoryErrorDegradesToEmpty(t *testing.T) {
	model := &scriptedModel{steps: []scriptedStep{
		{parts: []models.Model_Part{textPart("ok")}},
	}}
	store := newMemStore()
	store.fetchErr = errors.New("db down")
	session := newTestSession(model, store, nil)

	events, err := collectEvents(t, session, "hi")
	if err != nil {
		t.Fatalf("RunTurn failed: %v", err)
	}
	if events[len(events)-1].Type != models.EventEnd {
		t.Error("turn did not complete after history fetch failure")
	}
}

func TestThreadHistoryMapsRolesAndHidesToolRecords(t *testing.T) {
	store := newMemStore()
	session := newTestSession(&scriptedModel{}, store, nil)

	user := models.NewTextMessage("what is up")
	if err := store.SaveMessage("thread-1", "user", "user_message", user.Content.Parts, ""); err != nil {
		t.Fatal(err)
	}
	if err := store.SaveMessage("thread-1", "model", "function_call", []models.Model_Part{callPart("call_1", "web_search", "up")}, "call_1"); err != nil {
		t.Fatal(err)
	}
	if err := store.SaveMessage("thread-1", "user", "function_response", []models.User_Part{{FunctionResponse: &models.FunctionResponse{ID: "call_1", Name: "web_search"}}}, "call_1"); err != nil {
		t.Fatal(err)
	}
	answer := "not much"
	if err := store.SaveMessage("thread-1", "model", "model_message", []models.Model_Part{{Text: &answer}}, ""); err != nil {
		t.Fatal(err)
	}

	history := session.ThreadHistory()
	if len(history) != 2 {
		t.Fatalf("got %d history messages, want 2: %+v", len(history), history)
	}
	if history[0].Role != "user" || history[0].Content != "what is up" {
		t.Errorf("history[0] = %+v", history[0])
	}
	if history[1].Role != "assistant" || history[1].Content != "not much" {
		t.Errorf("history[1] = %+v", history[1])
	}
}

func TestThreadHistoryUnknownThreadIsEmpty(t *testing.T) {
	session := newTestSession(&scriptedModel{}, newMemStore(), nil)
	history := session.ThreadHistory()
	if history == nil {
		t.Fatal("history is nil, want empty slice")
	}
	if len(history) != 0 {
		t.Errorf("got %d messages for unknown thread", len(history))
	}
}
