package openai

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"sort"
	"strings"

	"github.com/shubhamagrawalwork/langgraph-tavily-chatbot/models"
	"github.com/shubhamagrawalwork/langgraph-tavily-chatbot/stores"
)

const OpenAIBaseURL = "https://api.openai.com/v1/chat/completions"

// OpenAI_Model talks to the OpenAI chat-completions API (or any compatible
// endpoint via BaseURL).
type OpenAI_Model struct {
	Model        string `json:"model"`
	SystemPrompt string `json:"system_prompt,omitempty"`
	BaseURL      string `json:"base_url,omitempty"`
	APIKeyEnv    string `json:"api_key_env,omitempty"` // defaults to OPENAI_API_KEY

	Temperature *float64 `json:"temperature,omitempty"`
	MaxTokens   *int     `json:"max_tokens,omitempty"`
}

func (o *OpenAI_Model) Model_Request(request models.Model_Request, tools []models.FunctionDeclaration, conversationHistory []stores.Message) (models.Model_Response, error) {
	if request.User_Message == nil && request.Tool_Results == nil {
		return models.Model_Response{}, fmt.Errorf("request must contain either user message or tool results")
	}

	requestBody, err := o.createChatRequest(request, tools, conversationHistory, false)
	if err != nil {
		return models.Model_Response{}, fmt.Errorf("failed to create chat request: %w", err)
	}

	jsonBytes, err := json.Marshal(requestBody)
	if err != nil {
		return models.Model_Response{}, fmt.Errorf("failed to marshal request body: %w", err)
	}

	req, err := http.NewRequest("POST", o.baseURL(), bytes.NewReader(jsonBytes))
	if err != nil {
		return models.Model_Response{}, fmt.Errorf("failed to create HTTP request: %w", err)
	}
	o.setHeaders(req)

	client := &http.Client{}
	resp, err := client.Do(req)
	if err != nil {
		return models.Model_Response{}, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return models.Model_Response{}, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return models.Model_Response{}, apiError(resp.StatusCode, body)
	}

	var response ChatResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return models.Model_Response{}, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	return chatResponseToModelResponse(response), nil
}

func (o *OpenAI_Model) Stream_Model_Request(request models.Model_Request, tools []models.FunctionDeclaration, conversationHistory []stores.Message) (<-chan models.Model_Response, <-chan error) {
	respChan := make(chan models.Model_Response)
	errChan := make(chan error, 1)

	go func() {
		defer close(respChan)
		defer close(errChan)

		if request.User_Message == nil && request.Tool_Results == nil {
			errChan <- fmt.Errorf("request must contain either user message or tool results")
			return
		}

		requestBody, err := o.createChatRequest(request, tools, conversationHistory, true)
		if err != nil {
			errChan <- fmt.Errorf("failed to create chat request: %w", err)
			return
		}

		jsonBytes, err := json.Marshal(requestBody)
		if err != nil {
			errChan <- fmt.Errorf("failed to marshal request body: %w", err)
			return
		}

		req, err := http.NewRequest("POST", o.baseURL(), bytes.NewReader(jsonBytes))
		if err != nil {
			errChan <- fmt.Errorf("failed to create HTTP request: %w", err)
			return
		}
		o.setHeaders(req)

		client := &http.Client{}
		resp, err := client.Do(req)
		if err != nil {
			errChan <- fmt.Errorf("HTTP request failed: %w", err)
			return
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(resp.Body)
			errChan <- apiError(resp.StatusCode, body)
			return
		}

		// Tool call fragments accumulate across chunks, keyed by index.
		toolCallAccumulator := make(map[int]*ToolCall)

		flushToolCalls := func() {
			if len(toolCallAccumulator) == 0 {
				return
			}
			indexes := make([]int, 0, len(toolCallAccumulator))
			for idx := range toolCallAccumulator {
				indexes = append(indexes, idx)
			}
			sort.Ints(indexes)

			modelResp := models.Model_Response{}
			for _, idx := range indexes {
				tc := toolCallAccumulator[idx]
				var args map[string]interface{}
				if err := json.Unmarshal([]byte(tc.Function.Arguments), &args); err != nil {
					log.Printf("Warning: Failed to unmarshal tool call arguments: %v", err)
					args = map[string]interface{}{}
				}
				modelResp.Parts = append(modelResp.Parts, models.Model_Part{
					FunctionCall: &models.FunctionCall{
						ID:   tc.ID,
						Name: tc.Function.Name,
						Args: args,
					},
				})
			}
			respChan <- modelResp
		}

		reader := bufio.NewReader(resp.Body)
		for {
			line, err := reader.ReadString('\n')
			if err != nil {
				if err == io.EOF {
					flushToolCalls()
					return
				}
				errChan <- fmt.Errorf("error reading stream: %w", err)
				return
			}

			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}

			if !strings.HasPrefix(line, "data: ") {
				continue
			}

			data := strings.TrimPrefix(line, "data: ")
			if data == "[DONE]" {
				flushToolCalls()
				return
			}

			var streamResp StreamResponse
			if err := json.Unmarshal([]byte(data), &streamResp); err != nil {
				log.Printf("Warning: Failed to unmarshal stream chunk: %v, data: %s", err, data)
				continue
			}

			for _, choice := range streamResp.Choices {
				if choice.Delta == nil {
					continue
				}

				if choice.Delta.Content != nil && *choice.Delta.Content != "" {
					text := *choice.Delta.Content
					respChan <- models.Model_Response{Parts: []models.Model_Part{{Text: &text}}}
				}

				for _, toolCall := range choice.Delta.ToolCalls {
					if existing, ok := toolCallAccumulator[toolCall.Index]; ok {
						existing.Function.Arguments += toolCall.Function.Arguments
						if toolCall.ID != "" {
							existing.ID = toolCall.ID
						}
						if toolCall.Function.Name != "" {
							existing.Function.Name = toolCall.Function.Name
						}
					} else {
						toolCallAccumulator[toolCall.Index] = &ToolCall{
							ID:   toolCall.ID,
							Type: toolCall.Type,
							Function: ToolCallFunction{
								Name:      toolCall.Function.Name,
								Arguments: toolCall.Function.Arguments,
							},
						}
					}
				}
			}
		}
	}()

	return respChan, errChan
}

func (o *OpenAI_Model) baseURL() string {
	if o.BaseURL != "" {
		return o.BaseURL
	}
	return OpenAIBaseURL
}

func (o *OpenAI_Model) setHeaders(req *http.Request) {
	apiKeyEnv := o.APIKeyEnv
	if apiKeyEnv == "" {
		apiKeyEnv = "OPENAI_API_KEY"
	}
	req.Header.Set("Authorization", "Bearer "+os.Getenv(apiKeyEnv))
	req.Header.Set("Content-Type", "application/json")
}

func apiError(status int, body []byte) error {
	var errResp ErrorResponse
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error.Message != "" {
		return fmt.Errorf("OpenAI API error: %s (type: %s)", errResp.Error.Message, errResp.Error.Type)
	}
	return fmt.Errorf("OpenAI API error: status %d, body: %s", status, string(body))
}

// createChatRequest builds the request body: system prompt, converted
// history, then either the current turn's tool results or its user message.
// The request's own contents are never in the supplied history; the session
// guarantees that.
func (o *OpenAI_Model) createChatRequest(request models.Model_Request, tools []models.FunctionDeclaration, conversationHistory []stores.Message, stream bool) (ChatRequest, error) {
	messages := []ChatMessage{}

	if o.SystemPrompt != "" {
		messages = append(messages, ChatMessage{
			Role:    "system",
			Content: o.SystemPrompt,
		})
	}

	for _, histMsg := range conversationHistory {
		converted, err := convertHistoryMessage(histMsg)
		if err != nil {
			log.Printf("Warning: Failed to convert history message %d: %v", histMsg.ID, err)
			continue
		}
		messages = append(messages, converted...)
	}

	if request.Tool_Results != nil && len(*request.Tool_Results) > 0 {
		for _, tr := range *request.Tool_Results {
			toolCallID := tr.Tool_ID
			messages = append(messages, ChatMessage{
				Role:       "tool",
				Content:    tr.Tool_Output,
				ToolCallID: &toolCallID,
			})
		}
	} else if request.User_Message != nil {
		if text := userMessageText(*request.User_Message); text != "" {
			messages = append(messages, ChatMessage{
				Role:    "user",
				Content: text,
			})
		}
	}

	if len(messages) == 0 {
		return ChatRequest{}, fmt.Errorf("cannot create chat request with no messages")
	}

	chatReq := ChatRequest{
		Model:    o.Model,
		Messages: messages,
		Stream:   stream,
	}

	if len(tools) > 0 {
		chatReq.Tools = ConvertTools(tools)
		chatReq.ToolChoice = "auto"
	}

	if o.Temperature != nil {
		chatReq.Temperature = o.Temperature
	}
	if o.MaxTokens != nil {
		chatReq.MaxTokens = o.MaxTokens
	}

	return chatReq, nil
}

// convertHistoryMessage maps one stored record onto chat messages. A stored
// function_response becomes a "tool" role message; a function_call record
// becomes an assistant message carrying tool_calls.
func convertHistoryMessage(histMsg stores.Message) ([]ChatMessage, error) {
	if histMsg.PartsJSON == "" || histMsg.PartsJSON == "{}" || histMsg.PartsJSON == "null" {
		return nil, nil
	}

	switch histMsg.Role {
	case "user":
		var userParts []models.User_Part
		if err := json.Unmarshal([]byte(histMsg.PartsJSON), &userParts); err != nil {
			return nil, fmt.Errorf("failed to unmarshal user parts: %w", err)
		}

		var out []ChatMessage
		var textParts []string
		for _, part := range userParts {
			if part.FunctionResponse != nil {
				toolCallID := part.FunctionResponse.ID
				responseBytes, _ := json.Marshal(part.FunctionResponse.Response)
				out = append(out, ChatMessage{
					Role:       "tool",
					Content:    string(responseBytes),
					ToolCallID: &toolCallID,
				})
				continue
			}
			if part.Text != "" {
				textParts = append(textParts, part.Text)
			}
		}
		if len(textParts) > 0 {
			out = append(out, ChatMessage{
				Role:    "user",
				Content: strings.Join(textParts, ""),
			})
		}
		return out, nil

	case "model":
		var modelParts []models.Model_Part
		if err := json.Unmarshal([]byte(histMsg.PartsJSON), &modelParts); err != nil {
			return nil, fmt.Errorf("failed to unmarshal model parts: %w", err)
		}

		msg := ChatMessage{Role: "assistant"}
		var textContent strings.Builder
		for _, part := range modelParts {
			if part.Text != nil && *part.Text != "" {
				textContent.WriteString(*part.Text)
			}
			if part.FunctionCall != nil {
				argsBytes, _ := json.Marshal(part.FunctionCall.Args)
				msg.ToolCalls = append(msg.ToolCalls, ToolCall{
					ID:   part.FunctionCall.ID,
					Type: "function",
					Function: ToolCallFunction{
						Name:      part.FunctionCall.Name,
						Arguments: string(argsBytes),
					},
				})
			}
		}
		msg.Content = textContent.String()

		if msg.Content == "" && len(msg.ToolCalls) == 0 {
			return nil, nil
		}
		return []ChatMessage{msg}, nil
	}

	return nil, fmt.Errorf("unknown role: %s", histMsg.Role)
}

func userMessageText(message models.User_Message) string {
	var b strings.Builder
	for _, part := range message.Content.Parts {
		b.WriteString(part.Text)
	}
	return b.String()
}

// ConvertTools maps FunctionDeclarations to the OpenAI tool schema.
func ConvertTools(tools []models.FunctionDeclaration) []Tool {
	out := make([]Tool, 0, len(tools))
	for _, tool := range tools {
		out = append(out, Tool{
			Type: "function",
			Function: ToolFunction{
				Name:        tool.Name,
				Description: tool.Description,
				Parameters:  tool.Parameters,
			},
		})
	}
	return out
}

func chatResponseToModelResponse(response ChatResponse) models.Model_Response {
	modelResponse := models.Model_Response{}

	for _, choice := range response.Choices {
		if choice.Message.Content != nil && *choice.Message.Content != "" {
			text := *choice.Message.Content
			modelResponse.Parts = append(modelResponse.Parts, models.Model_Part{Text: &text})
		}

		for _, toolCall := range choice.Message.ToolCalls {
			if toolCall.Type != "function" {
				continue
			}
			var args map[string]interface{}
			if err := json.Unmarshal([]byte(toolCall.Function.Arguments), &args); err != nil {
				log.Printf("Warning: Failed to unmarshal tool call arguments: %v", err)
				args = map[string]interface{}{}
			}
			modelResponse.Parts = append(modelResponse.Parts, models.Model_Part{
				FunctionCall: &models.FunctionCall{
					ID:   toolCall.ID,
					Name: toolCall.Function.Name,
					Args: args,
				},
			})
		}
	}

	return modelResponse
}
