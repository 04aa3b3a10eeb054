package tools

import (
	"github.com/shubhamagrawalwork/langgraph-tavily-chatbot/models"
)

// WebSearchName is the only tool name the conversation service recognizes;
// calls for any other name are ignored.
const WebSearchName = "web_search"

// WebSearchTool returns the FunctionDeclaration for the Tavily search tool.
func WebSearchTool() models.FunctionDeclaration {
	return models.FunctionDeclaration{
		Name:        WebSearchName,
		Description: "Search the web using the Tavily API. Returns titles, URLs, and snippets.",
		Parameters: models.Parameters{
			Type: "object",
			Properties: map[string]interface{}{
				"query": map[string]interface{}{
					"type":        "string",
					"description": "Search query string",
				},
			},
			Required: []string{"query"},
		},
		Callable: Tavily_Search,
	}
}

// DefaultTools returns the tool set the chat service exposes to the model.
func DefaultTools() []models.FunctionDeclaration {
	return []models.FunctionDeclaration{
		WebSearchTool(),
	}
}
