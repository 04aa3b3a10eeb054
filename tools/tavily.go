package tools

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
)

// tavilyURL is a variable so tests can point the tool at a local server.
var tavilyURL = "https://api.tavily.com/search"

const tavilyMaxResults = 4

// Structs for Tavily API request and response

type tavilyRequest struct {
	Query      string `json:"query"`
	MaxResults int    `json:"max_results,omitempty"`
}

type SearchResult struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Content string `json:"content"`
}

type SearchResponse struct {
	Query   string         `json:"query"`
	Answer  string         `json:"answer,omitempty"`
	Results []SearchResult `json:"results"`
}

// Tavily_Search is a tool to search the web using the Tavily API. The output
// is the JSON-encoded SearchResponse so callers (and the model) can consume
// titles, URLs and snippets.
func Tavily_Search(query string) (string, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return "", fmt.Errorf("search query cannot be empty")
	}

	apiKey := os.Getenv("TAVILY_API_KEY")
	if apiKey == "" {
		return "", fmt.Errorf("TAVILY_API_KEY environment variable not set")
	}

	requestBody := tavilyRequest{
		Query:      query,
		MaxResults: tavilyMaxResults,
	}

	jsonData, err := json.Marshal(requestBody)
	if err != nil {
		return "", fmt.Errorf("error marshalling request body: %w", err)
	}

	req, err := http.NewRequest("POST", tavilyURL, bytes.NewBuffer(jsonData))
	if err != nil {
		return "", fmt.Errorf("error creating request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	client := &http.Client{}
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("error sending request to Tavily API: %w", err)
	}
	defer resp.Body.Close()

	responseBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("error reading response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("Tavily API request failed with status %d: %s", resp.StatusCode, string(responseBody))
	}

	var searchResponse SearchResponse
	if err := json.Unmarshal(responseBody, &searchResponse); err != nil {
		return "", fmt.Errorf("error unmarshalling Tavily API response: %w. Raw response: %s", err, string(responseBody))
	}

	// Re-encode the simplified struct so the tool output carries only the
	// fields we documented, regardless of what the API adds.
	out, err := json.Marshal(searchResponse)
	if err != nil {
		return "", fmt.Errorf("error marshalling search results: %w", err)
	}

	return string(out), nil
}

// ResultURLs extracts the result URLs from a Tavily_Search output string.
// Malformed output yields an empty slice rather than an error; the stream
// protocol still emits a search_results event with whatever was found.
func ResultURLs(toolOutput string) []string {
	var searchResponse SearchResponse
	if err := json.Unmarshal([]byte(toolOutput), &searchResponse); err != nil {
		return []string{}
	}

	urls := make([]string, 0, len(searchResponse.Results))
	for _, result := range searchResponse.Results {
		if result.URL != "" {
			urls = append(urls, result.URL)
		}
	}
	return urls
}

// SearchQuery pulls the query string out of a web_search call's argument map.
func SearchQuery(args map[string]interface{}) string {
	if q, ok := args["query"].(string); ok {
		return q
	}
	return ""
}
