package server

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/shubhamagrawalwork/langgraph-tavily-chatbot/models"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// wsChatMessage is one inbound frame on the websocket transport.
type wsChatMessage struct {
	Message string `json:"message"`
}

// handleWebsocketChat serves a persistent websocket session for one thread.
// Each inbound {"message": ...} frame runs a turn; the same events that the
// SSE endpoint streams are sent back as JSON frames.
func (s *Server) handleWebsocketChat(c *gin.Context) {
	threadID := c.Query("thread_id")
	if threadID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "thread_id is required"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.Logger.Printf("Websocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	session := NewChatSession(threadID, s.Agent, s.Store)

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.Logger.Printf("Websocket read error: %v", err)
			}
			return
		}

		var inbound wsChatMessage
		if err := json.Unmarshal(payload, &inbound); err != nil || inbound.Message == "" {
			if err := conn.WriteJSON(gin.H{"error": "expected {\"message\": ...}"}); err != nil {
				return
			}
			continue
		}

		unlock := s.lockThread(threadID)
		err = session.RunTurn(c.Request.Context(), inbound.Message, func(event models.StreamEvent) error {
			return conn.WriteJSON(event)
		})
		unlock()

		if err != nil {
			s.Logger.Printf("Websocket turn failed for thread %s: %v", threadID, err)
			if writeErr := conn.WriteJSON(gin.H{"error": "turn failed"}); writeErr != nil {
				return
			}
		}
	}
}
