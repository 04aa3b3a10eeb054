package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"google.golang.org/genai"

	"github.com/shubhamagrawalwork/langgraph-tavily-chatbot/models"
	"github.com/shubhamagrawalwork/langgraph-tavily-chatbot/stores"
)

// Gemini_Model talks to the Gemini API through the official genai SDK.
// The client reads GEMINI_API_KEY / GOOGLE_API_KEY from the environment.
type Gemini_Model struct {
	Model        string `json:"model"`
	SystemPrompt string `json:"system_prompt,omitempty"`
}

const defaultGeminiModel = "gemini-2.0-flash"

func (g *Gemini_Model) modelName() string {
	if g.Model != "" {
		return g.Model
	}
	return defaultGeminiModel
}

func (g *Gemini_Model) Model_Request(request models.Model_Request, tools []models.FunctionDeclaration, conversationHistory []stores.Message) (models.Model_Response, error) {
	if request.User_Message == nil && request.Tool_Results == nil {
		return models.Model_Response{}, fmt.Errorf("request must contain either user message or tool results")
	}

	ctx := context.Background()
	client, err := genai.NewClient(ctx, nil)
	if err != nil {
		return models.Model_Response{}, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	contents, err := buildContents(request, conversationHistory)
	if err != nil {
		return models.Model_Response{}, err
	}

	result, err := client.Models.GenerateContent(ctx, g.modelName(), contents, g.generateConfig(tools))
	if err != nil {
		return models.Model_Response{}, fmt.Errorf("Gemini request failed: %w", err)
	}

	return responseToModelResponse(result), nil
}

func (g *Gemini_Model) Stream_Model_Request(request models.Model_Request, tools []models.FunctionDeclaration, conversationHistory []stores.Message) (<-chan models.Model_Response, <-chan error) {
	respChan := make(chan models.Model_Response)
	errChan := make(chan error, 1)

	go func() {
		defer close(respChan)
		defer close(errChan)

		if request.User_Message == nil && request.Tool_Results == nil {
			errChan <- fmt.Errorf("request must contain either user message or tool results")
			return
		}

		ctx := context.Background()
		client, err := genai.NewClient(ctx, nil)
		if err != nil {
			errChan <- fmt.Errorf("failed to create Gemini client: %w", err)
			return
		}

		contents, err := buildContents(request, conversationHistory)
		if err != nil {
			errChan <- err
			return
		}

		for chunk, err := range client.Models.GenerateContentStream(ctx, g.modelName(), contents, g.generateConfig(tools)) {
			if err != nil {
				errChan <- fmt.Errorf("Gemini stream failed: %w", err)
				return
			}
			modelResp := responseToModelResponse(chunk)
			if len(modelResp.Parts) > 0 {
				respChan <- modelResp
			}
		}
	}()

	return respChan, errChan
}

func (g *Gemini_Model) generateConfig(tools []models.FunctionDeclaration) *genai.GenerateContentConfig {
	config := &genai.GenerateContentConfig{}

	if g.SystemPrompt != "" {
		config.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: g.SystemPrompt}},
		}
	}

	if len(tools) > 0 {
		declarations := make([]*genai.FunctionDeclaration, 0, len(tools))
		for _, tool := range tools {
			declarations = append(declarations, &genai.FunctionDeclaration{
				Name:        tool.Name,
				Description: tool.Description,
				Parameters:  convertParameters(tool.Parameters),
			})
		}
		config.Tools = []*genai.Tool{{FunctionDeclarations: declarations}}
	}

	return config
}

// buildContents converts stored history plus the current request into the
// Gemini content list. History records with role "user" may carry function
// responses; role "model" records may carry function calls.
func buildContents(request models.Model_Request, conversationHistory []stores.Message) ([]*genai.Content, error) {
	var contents []*genai.Content

	for _, histMsg := range conversationHistory {
		content, err := convertHistoryMessage(histMsg)
		if err != nil {
			log.Printf("Warning: Failed to convert history message %d: %v", histMsg.ID, err)
			continue
		}
		if content != nil {
			contents = append(contents, content)
		}
	}

	if request.Tool_Results != nil && len(*request.Tool_Results) > 0 {
		parts := make([]*genai.Part, 0, len(*request.Tool_Results))
		for _, tr := range *request.Tool_Results {
			var response map[string]any
			if err := json.Unmarshal([]byte(tr.Tool_Output), &response); err != nil {
				response = map[string]any{"raw_output": tr.Tool_Output}
			}
			parts = append(parts, &genai.Part{
				FunctionResponse: &genai.FunctionResponse{
					ID:       tr.Tool_ID,
					Name:     tr.Tool_Name,
					Response: response,
				},
			})
		}
		contents = append(contents, &genai.Content{Role: "user", Parts: parts})
	} else if request.User_Message != nil {
		var parts []*genai.Part
		for _, part := range request.User_Message.Content.Parts {
			if part.Text != "" {
				parts = append(parts, &genai.Part{Text: part.Text})
			}
		}
		if len(parts) > 0 {
			contents = append(contents, &genai.Content{Role: "user", Parts: parts})
		}
	}

	if len(contents) == 0 {
		return nil, fmt.Errorf("cannot create Gemini request with no contents")
	}

	return contents, nil
}

func convertHistoryMessage(histMsg stores.Message) (*genai.Content, error) {
	if histMsg.PartsJSON == "" || histMsg.PartsJSON == "{}" || histMsg.PartsJSON == "null" {
		return nil, nil
	}

	switch histMsg.Role {
	case "user":
		var userParts []models.User_Part
		if err := json.Unmarshal([]byte(histMsg.PartsJSON), &userParts); err != nil {
			return nil, fmt.Errorf("failed to unmarshal user parts: %w", err)
		}

		var parts []*genai.Part
		for _, part := range userParts {
			if part.FunctionResponse != nil {
				parts = append(parts, &genai.Part{
					FunctionResponse: &genai.FunctionResponse{
						ID:       part.FunctionResponse.ID,
						Name:     part.FunctionResponse.Name,
						Response: part.FunctionResponse.Response,
					},
				})
				continue
			}
			if part.Text != "" {
				parts = append(parts, &genai.Part{Text: part.Text})
			}
		}
		if len(parts) == 0 {
			return nil, nil
		}
		return &genai.Content{Role: "user", Parts: parts}, nil

	case "model":
		var modelParts []models.Model_Part
		if err := json.Unmarshal([]byte(histMsg.PartsJSON), &modelParts); err != nil {
			return nil, fmt.Errorf("failed to unmarshal model parts: %w", err)
		}

		var parts []*genai.Part
		for _, part := range modelParts {
			if part.Text != nil && *part.Text != "" {
				parts = append(parts, &genai.Part{Text: *part.Text})
			}
			if part.FunctionCall != nil {
				parts = append(parts, &genai.Part{
					FunctionCall: &genai.FunctionCall{
						ID:   part.FunctionCall.ID,
						Name: part.FunctionCall.Name,
						Args: part.FunctionCall.Args,
					},
				})
			}
		}
		if len(parts) == 0 {
			return nil, nil
		}
		return &genai.Content{Role: "model", Parts: parts}, nil
	}

	return nil, fmt.Errorf("unknown role: %s", histMsg.Role)
}

// convertParameters maps the registry's JSON-schema parameter block onto the
// genai Schema type. Only the flat object schemas our tools declare are
// handled; unrecognized property types fall back to string.
func convertParameters(params models.Parameters) *genai.Schema {
	schema := &genai.Schema{
		Type:       genai.TypeObject,
		Properties: map[string]*genai.Schema{},
		Required:   params.Required,
	}

	for name, raw := range params.Properties {
		prop, ok := raw.(map[string]interface{})
		if !ok {
			schema.Properties[name] = &genai.Schema{Type: genai.TypeString}
			continue
		}

		propSchema := &genai.Schema{Type: schemaType(prop["type"])}
		if desc, ok := prop["description"].(string); ok {
			propSchema.Description = desc
		}
		if rawEnum, ok := prop["enum"].([]string); ok {
			propSchema.Enum = rawEnum
		}
		schema.Properties[name] = propSchema
	}

	return schema
}

func schemaType(raw interface{}) genai.Type {
	t, _ := raw.(string)
	switch t {
	case "string":
		return genai.TypeString
	case "integer":
		return genai.TypeInteger
	case "number":
		return genai.TypeNumber
	case "boolean":
		return genai.TypeBoolean
	case "array":
		return genai.TypeArray
	case "object":
		return genai.TypeObject
	default:
		return genai.TypeString
	}
}

func responseToModelResponse(response *genai.GenerateContentResponse) models.Model_Response {
	modelResponse := models.Model_Response{}
	if response == nil {
		return modelResponse
	}

	for _, candidate := range response.Candidates {
		if candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if part.Text != "" {
				text := part.Text
				modelResponse.Parts = append(modelResponse.Parts, models.Model_Part{Text: &text})
			}
			if part.FunctionCall != nil {
				modelResponse.Parts = append(modelResponse.Parts, models.Model_Part{
					FunctionCall: &models.FunctionCall{
						ID:   part.FunctionCall.ID,
						Name: part.FunctionCall.Name,
						Args: part.FunctionCall.Args,
					},
				})
			}
		}
	}

	return modelResponse
}
