package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strings"

	chatbot "github.com/shubhamagrawalwork/langgraph-tavily-chatbot"
	"github.com/shubhamagrawalwork/langgraph-tavily-chatbot/models"
	"github.com/shubhamagrawalwork/langgraph-tavily-chatbot/stores"
	"github.com/shubhamagrawalwork/langgraph-tavily-chatbot/tools"
)

// EmitFunc delivers one stream event to the client. A non-nil error means
// the client is gone and the turn should stop.
type EmitFunc func(event models.StreamEvent) error

// ChatSession drives one thread's turns: an explicit loop alternating
// between model inference and tool execution until the model stops
// requesting tools.
type ChatSession struct {
	Agent    *chatbot.Agent
	ThreadID string
	Store    stores.MessageStore
	Logger   *log.Logger
}

func NewChatSession(threadID string, agent *chatbot.Agent, store stores.MessageStore) *ChatSession {
	logger := log.New(os.Stdout, fmt.Sprintf("[chat %s] ", threadID), log.LstdFlags)

	return &ChatSession{
		Agent:    agent,
		ThreadID: threadID,
		Store:    store,
		Logger:   logger,
	}
}

// RunTurn processes one user message to completion, emitting content and
// search events as they happen and exactly one end event on success. On any
// failure the stream is cut without an end event and no assistant message is
// persisted; streamed fragments are never committed partially.
func (s *ChatSession) RunTurn(ctx context.Context, userText string, emit EmitFunc) error {
	if strings.TrimSpace(userText) == "" {
		return fmt.Errorf("message must not be empty")
	}

	// One history snapshot per turn; the per-thread lock keeps it coherent.
	// A store failure degrades to an empty history instead of failing the turn.
	history, err := s.Store.FetchHistory(s.ThreadID, 0)
	if err != nil {
		s.Logger.Printf("Error fetching history, starting from empty: %v", err)
		history = nil
	}
	history = stores.SanitizeHistory(history)

	userMessage := models.NewTextMessage(userText)

	// Model backends append the current request's contents after the history
	// they are given, so the request must never be mirrored into history
	// before the step that carries it. pending holds the records of the
	// in-flight request; they join history once the step has consumed them.
	seq := len(history)
	pending := []stores.Message{
		s.persist("user", "user_message", userMessage.Content.Parts, "", &seq),
	}

	currentReq := models.Model_Request{User_Message: &userMessage}
	var turnText strings.Builder

	for {
		calls, err := s.streamModelStep(ctx, currentReq, history, &turnText, emit)
		if err != nil {
			return err
		}

		if len(calls) == 0 {
			break
		}

		history = append(history, pending...)
		pending = nil

		// Persist the call record so the next model step (and future turns)
		// sees a complete tool cycle. Text parts are not repeated here; the
		// accumulated turn text is committed once at the end.
		callParts := make([]models.Model_Part, 0, len(calls))
		for i := range calls {
			callParts = append(callParts, models.Model_Part{FunctionCall: &calls[i]})
		}
		history = append(history, s.persist("model", "function_call", callParts, calls[0].ID, &seq))

		toolResults, responseRecords := s.runToolStep(calls, emit, &seq)
		if len(toolResults) == 0 {
			// No recognized tool produced a result; treat the turn as done
			// rather than looping forever on unknown calls.
			s.Logger.Printf("No recognized tool calls executed; completing turn")
			break
		}

		pending = responseRecords
		currentReq = models.Model_Request{Tool_Results: &toolResults}
	}

	if turnText.Len() > 0 {
		text := turnText.String()
		if err := s.Store.SaveMessage(s.ThreadID, "model", "model_message", []models.Model_Part{{Text: &text}}, ""); err != nil {
			s.Logger.Printf("Error saving assistant message: %v", err)
		}
	}

	return emit(models.EndEvent())
}

// streamModelStep runs one model inference over the accumulated history,
// forwarding text fragments as content events and collecting tool calls.
func (s *ChatSession) streamModelStep(ctx context.Context, request models.Model_Request, history []stores.Message, turnText *strings.Builder, emit EmitFunc) ([]models.FunctionCall, error) {
	respChan, errChan := s.Agent.Run_Stream(request, history)

	var calls []models.FunctionCall

	for respChan != nil || errChan != nil {
		select {
		case response, ok := <-respChan:
			if !ok {
				respChan = nil
				continue
			}
			for _, part := range response.Parts {
				if part.Text != nil && *part.Text != "" {
					turnText.WriteString(*part.Text)
					if err := emit(models.ContentEvent(*part.Text)); err != nil {
						return nil, err
					}
				}
				if part.FunctionCall != nil {
					call := *part.FunctionCall
					if call.ID == "" {
						call.ID = fmt.Sprintf("func_%s_%d", call.Name, len(calls))
					}
					calls = append(calls, call)
				}
			}

		case err, ok := <-errChan:
			if !ok {
				errChan = nil
				continue
			}
			if err != nil {
				return nil, fmt.Errorf("model error: %w", err)
			}

		case <-ctx.Done():
			s.Logger.Printf("Client disconnected, abandoning turn")
			return nil, ctx.Err()
		}
	}

	return calls, nil
}

// runToolStep executes each recognized tool call in order, emitting search
// events for web searches and persisting a result record per call. Calls for
// unrecognized tool names are skipped silently. The returned records are the
// next request's contents and must not enter history until after that step.
func (s *ChatSession) runToolStep(calls []models.FunctionCall, emit EmitFunc, seq *int) ([]models.Tool_Result, []stores.Message) {
	toolResults := []models.Tool_Result{}
	var responseRecords []stores.Message

	for _, call := range calls {
		if !s.Agent.HasTool(call.Name) {
			s.Logger.Printf("Ignoring unrecognized tool call: %s", call.Name)
			continue
		}

		isSearch := call.Name == tools.WebSearchName
		if isSearch {
			if err := emit(models.SearchStartEvent(tools.SearchQuery(call.Args))); err != nil {
				s.Logger.Printf("Error emitting search_start: %v", err)
			}
		}

		output, err := s.Agent.ExecuteTool(call.Name, call.Args)
		if err != nil {
			// The output already carries a JSON error document for the model.
			s.Logger.Printf("Tool execution error for %s: %v", call.Name, err)
		}

		if isSearch {
			if err := emit(models.SearchResultsEvent(tools.ResultURLs(output))); err != nil {
				s.Logger.Printf("Error emitting search_results: %v", err)
			}
		}

		var resultMap map[string]interface{}
		if err := json.Unmarshal([]byte(output), &resultMap); err != nil {
			resultMap = map[string]interface{}{"raw_output": output}
		}

		responsePart := models.User_Part{
			FunctionResponse: &models.FunctionResponse{
				ID:       call.ID,
				Name:     call.Name,
				Response: resultMap,
			},
		}
		responseRecords = append(responseRecords,
			s.persist("user", "function_response", []models.User_Part{responsePart}, call.ID, seq))

		toolResults = append(toolResults, models.Tool_Result{
			Tool_ID:     call.ID,
			Tool_Name:   call.Name,
			Tool_Output: output,
		})
	}

	return toolResults, responseRecords
}

// persist saves a record and returns its in-memory mirror so the caller
// decides when it becomes visible to model steps. Store failures degrade to
// logging; the in-memory copy keeps the turn coherent regardless.
func (s *ChatSession) persist(role, messageType string, parts interface{}, functionID string, seq *int) stores.Message {
	if err := s.Store.SaveMessage(s.ThreadID, role, messageType, parts, functionID); err != nil {
		s.Logger.Printf("Error saving %s: %v", messageType, err)
	}

	partsJSON, err := json.Marshal(parts)
	if err != nil {
		s.Logger.Printf("Error marshalling %s parts: %v", messageType, err)
	}

	*seq++
	return stores.Message{
		ConversationID: s.ThreadID,
		Sequence:       *seq,
		Role:           role,
		Type:           messageType,
		PartsJSON:      string(partsJSON),
		FunctionID:     functionID,
	}
}

// ThreadHistory returns the committed conversation for this session's thread
// with roles normalized to user/assistant. Tool records never appear.
// Unknown threads and store errors both yield an empty history.
func (s *ChatSession) ThreadHistory() []models.HistoryMessage {
	msgs, err := s.Store.FetchHistory(s.ThreadID, 0)
	if err != nil {
		s.Logger.Printf("Error fetching history, returning empty: %v", err)
		return []models.HistoryMessage{}
	}

	history := make([]models.HistoryMessage, 0, len(msgs))
	for _, msg := range msgs {
		switch msg.Type {
		case "user_message":
			var userParts []models.User_Part
			if err := json.Unmarshal([]byte(msg.PartsJSON), &userParts); err != nil {
				s.Logger.Printf("Error unmarshalling parts for message %d: %v", msg.ID, err)
				continue
			}
			var text strings.Builder
			for _, p := range userParts {
				text.WriteString(p.Text)
			}
			history = append(history, models.HistoryMessage{Role: "user", Content: text.String()})

		case "model_message":
			var modelParts []models.Model_Part
			if err := json.Unmarshal([]byte(msg.PartsJSON), &modelParts); err != nil {
				s.Logger.Printf("Error unmarshalling parts for message %d: %v", msg.ID, err)
				continue
			}
			var text strings.Builder
			for _, p := range modelParts {
				if p.Text != nil {
					text.WriteString(*p.Text)
				}
			}
			history = append(history, models.HistoryMessage{Role: "assistant", Content: text.String()})
		}
	}

	return history
}
