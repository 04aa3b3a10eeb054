package models

// HistoryMessage is one committed conversation turn as returned by the
// history endpoint. Roles are normalized to "user" and "assistant";
// tool traffic is never surfaced here.
type HistoryMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}
