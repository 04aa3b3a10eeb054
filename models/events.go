package models

import "encoding/json"

// Stream event kinds carried on the /chat event stream. Every turn emits
// zero or more content/search events followed by exactly one end event.
const (
	EventContent       = "content"
	EventSearchStart   = "search_start"
	EventSearchResults = "search_results"
	EventEnd           = "end"
)

// StreamEvent is one event on the turn progress stream. Which fields are
// meaningful depends on Type:
//
//	content        -> Content (one assistant text fragment)
//	search_start   -> Query (the web search about to run)
//	search_results -> URLs (result URLs, possibly empty)
//	end            -> no fields
type StreamEvent struct {
	Type    string   `json:"type"`
	Content string   `json:"content,omitempty"`
	Query   string   `json:"query,omitempty"`
	URLs    []string `json:"urls,omitempty"`
}

func ContentEvent(fragment string) StreamEvent {
	return StreamEvent{Type: EventContent, Content: fragment}
}

func SearchStartEvent(query string) StreamEvent {
	return StreamEvent{Type: EventSearchStart, Query: query}
}

func SearchResultsEvent(urls []string) StreamEvent {
	return StreamEvent{Type: EventSearchResults, URLs: urls}
}

func EndEvent() StreamEvent {
	return StreamEvent{Type: EventEnd}
}

// MarshalJSON emits only the fields that belong to the event's type, so the
// wire shape stays exact: a content event never carries a urls field, an end
// event is {"type":"end"}, and search_results keeps its urls array even when
// empty (omitempty would drop it).
func (e StreamEvent) MarshalJSON() ([]byte, error) {
	switch e.Type {
	case EventContent:
		return json.Marshal(struct {
			Type    string `json:"type"`
			Content string `json:"content"`
		}{e.Type, e.Content})
	case EventSearchStart:
		return json.Marshal(struct {
			Type  string `json:"type"`
			Query string `json:"query"`
		}{e.Type, e.Query})
	case EventSearchResults:
		urls := e.URLs
		if urls == nil {
			urls = []string{}
		}
		return json.Marshal(struct {
			Type string   `json:"type"`
			URLs []string `json:"urls"`
		}{e.Type, urls})
	default:
		return json.Marshal(struct {
			Type string `json:"type"`
		}{e.Type})
	}
}
