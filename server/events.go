package server

import (
	"encoding/json"
	"fmt"

	"github.com/gin-gonic/gin"

	"github.com/shubhamagrawalwork/langgraph-tavily-chatbot/models"
)

// SSEWriter writes stream events in Server-Sent-Events framing.
type SSEWriter interface {
	WriteEvent(event models.StreamEvent) error
	Flush()
}

// GinSSEWriter implements SSEWriter on top of a gin request context.
// Each event is one "data: <json>" line followed by a blank line.
type GinSSEWriter struct {
	Context *gin.Context
}

func (w *GinSSEWriter) WriteEvent(event models.StreamEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal stream event: %w", err)
	}
	if _, err := fmt.Fprintf(w.Context.Writer, "data: %s\n\n", data); err != nil {
		return fmt.Errorf("failed to write to SSE stream: %w", err)
	}
	return nil
}

func (w *GinSSEWriter) Flush() {
	w.Context.Writer.Flush()
}
