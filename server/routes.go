package server

import (
	"log"
	"net/http"
	"os"
	"sync"

	"github.com/gin-gonic/gin"

	chatbot "github.com/shubhamagrawalwork/langgraph-tavily-chatbot"
	"github.com/shubhamagrawalwork/langgraph-tavily-chatbot/models"
	"github.com/shubhamagrawalwork/langgraph-tavily-chatbot/stores"
)

// Server exposes the conversation service over HTTP: SSE chat turns,
// history reads, and thread listing. Turns on the same thread are
// serialized; different threads run concurrently.
type Server struct {
	Agent  *chatbot.Agent
	Store  stores.MessageStore
	Logger *log.Logger

	threadLocks sync.Map
}

func NewServer(agent *chatbot.Agent, store stores.MessageStore) *Server {
	return &Server{
		Agent:  agent,
		Store:  store,
		Logger: log.New(os.Stdout, "[server] ", log.LstdFlags),
	}
}

// RegisterRoutes attaches the service's endpoints to a gin router.
func (s *Server) RegisterRoutes(router *gin.Engine) {
	router.GET("/chat", s.handleChat)
	router.GET("/history/:thread_id", s.handleHistory)
	router.GET("/threads", s.handleThreads)
	router.GET("/ws/chat", s.handleWebsocketChat)
}

// lockThread takes the per-thread turn lock, creating it on first use, and
// returns the unlock func.
func (s *Server) lockThread(threadID string) func() {
	value, _ := s.threadLocks.LoadOrStore(threadID, &sync.Mutex{})
	mu := value.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// handleChat runs one conversation turn and streams its events over SSE.
func (s *Server) handleChat(c *gin.Context) {
	message := c.Query("message")
	threadID := c.Query("thread_id")
	if message == "" || threadID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "message and thread_id are required"})
		return
	}

	unlock := s.lockThread(threadID)
	defer unlock()

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	session := NewChatSession(threadID, s.Agent, s.Store)
	writer := &GinSSEWriter{Context: c}

	err := session.RunTurn(c.Request.Context(), message, func(event models.StreamEvent) error {
		if err := writer.WriteEvent(event); err != nil {
			return err
		}
		writer.Flush()
		return nil
	})
	if err != nil {
		// The stream is cut without an end event; the client treats that as
		// a failed turn.
		s.Logger.Printf("Turn failed for thread %s: %v", threadID, err)
	}
}

// handleHistory returns the committed conversation for a thread. Unknown
// threads yield an empty list, never an error.
func (s *Server) handleHistory(c *gin.Context) {
	threadID := c.Param("thread_id")

	session := NewChatSession(threadID, s.Agent, s.Store)
	c.JSON(http.StatusOK, session.ThreadHistory())
}

// handleThreads lists known conversation IDs, most recently active first.
func (s *Server) handleThreads(c *gin.Context) {
	threadIDs, err := s.Store.ListConversations()
	if err != nil {
		s.Logger.Printf("Error listing conversations: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list conversations"})
		return
	}
	if threadIDs == nil {
		threadIDs = []string{}
	}
	c.JSON(http.StatusOK, gin.H{"threads": threadIDs})
}
