package models

import (
	"encoding/json"
	"testing"
)

func TestContentEventWireShape(t *testing.T) {
	data, err := json.Marshal(ContentEvent("Hello"))
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	want := `{"type":"content","content":"Hello"}`
	if string(data) != want {
		t.Errorf("got %s, want %s", data, want)
	}
}

func TestSearchStartEventWireShape(t *testing.T) {
	data, err := json.Marshal(SearchStartEvent("go generics"))
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	want := `{"type":"search_start","query":"go generics"}`
	if string(data) != want {
		t.Errorf("got %s, want %s", data, want)
	}
}

func TestSearchResultsEventWireShape(t *testing.T) {
	data, err := json.Marshal(SearchResultsEvent([]string{"https://a.example", "https://b.example"}))
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	want := `{"type":"search_results","urls":["https://a.example","https://b.example"]}`
	if string(data) != want {
		t.Errorf("got %s, want %s", data, want)
	}
}

func TestSearchResultsEventKeepsEmptyURLs(t *testing.T) {
	// A search that found nothing still reports its urls field.
	data, err := json.Marshal(SearchResultsEvent(nil))
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	want := `{"type":"search_results","urls":[]}`
	if string(data) != want {
		t.Errorf("got %s, want %s", data, want)
	}
}

func TestEndEventWireShape(t *testing.T) {
	data, err := json.Marshal(EndEvent())
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	want := `{"type":"end"}`
	if string(data) != want {
		t.Errorf("got %s, want %s", data, want)
	}
}

func TestContentEventEscapesSpecialCharacters(t *testing.T) {
	data, err := json.Marshal(ContentEvent(`it's a "quote"` + "\nnewline"))
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	var decoded map[string]string
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("event is not valid JSON: %v\n%s", err, data)
	}
	if decoded["content"] != `it's a "quote"`+"\nnewline" {
		t.Errorf("content round trip mismatch: %q", decoded["content"])
	}
}
