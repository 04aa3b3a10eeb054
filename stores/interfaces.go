package stores

import (
	"time"

	"gorm.io/gorm"
)

// Message represents any chat message or function interaction within a
// conversation turn. Sequence defines the committed order inside a thread;
// it is the only ordering the service guarantees.
type Message struct {
	gorm.Model
	ConversationID string `gorm:"index;not null"`
	Sequence       int    `gorm:"not null"`
	Role           string `gorm:"not null"` // "user", "model"
	Type           string `gorm:"not null"` // "user_message", "model_message", "function_call", "function_response"
	// FunctionID links a function_response back to its originating function_call.
	FunctionID string `gorm:"index" json:"function_id,omitempty"`
	// PartsJSON stores the JSON marshaled array of content parts for this turn.
	// Either []models.User_Part or []models.Model_Part depending on Role/Type.
	PartsJSON string `gorm:"type:json"`
}

// Conversation holds metadata for one thread.
type Conversation struct {
	gorm.Model
	ConversationID string    `gorm:"uniqueIndex;not null"`
	MessageCount   int       `gorm:"default:0"`
	Messages       []Message `gorm:"foreignKey:ConversationID;references:ConversationID"`
}

// MessageStore abstracts thread history persistence. Implementations must
// preserve insertion order per thread across restarts.
type MessageStore interface {
	// Message operations
	SaveMessage(threadID, role, messageType string, parts interface{}, functionID string) error
	FetchHistory(threadID string, limit int) ([]Message, error)

	// Thread operations
	CreateConversation(threadID string) error
	ListConversations() ([]string, error)

	// PruneBefore deletes threads whose last activity is older than cutoff
	// and returns how many threads were removed.
	PruneBefore(cutoff time.Time) (int64, error)

	// Connection management
	Connect() error
	Close() error

	// Health check
	Ping() error
}

// StoreConfig holds configuration for database stores
type StoreConfig struct {
	Type       string            `json:"type"`       // "sqlite", "postgres"
	Connection string            `json:"connection"` // connection string
	Options    map[string]string `json:"options"`    // additional options
}

// NewStoreConfig creates a new store configuration
func NewStoreConfig(storeType, connection string) *StoreConfig {
	return &StoreConfig{
		Type:       storeType,
		Connection: connection,
		Options:    make(map[string]string),
	}
}

// WithOption adds an option to the store configuration
func (c *StoreConfig) WithOption(key, value string) *StoreConfig {
	c.Options[key] = value
	return c
}
