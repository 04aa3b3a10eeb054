package chatbot

import (
	"os"
	"strconv"
	"time"

	"github.com/shubhamagrawalwork/langgraph-tavily-chatbot/stores"
)

// Config holds the service configuration. Values come from the environment
// with sensible defaults; With* setters override them programmatically.
type Config struct {
	Addr          string
	ModelProvider string // "openai" or "gemini"
	ModelName     string
	SystemPrompt  string
	StoreType     string // "sqlite" or "postgres"
	StoreDSN      string
	// Threads idle longer than RetentionWindow are pruned on
	// RetentionSchedule. A zero window disables pruning.
	RetentionWindow   time.Duration
	RetentionSchedule string
}

// NewConfig builds a configuration from the environment.
func NewConfig() *Config {
	cfg := &Config{
		Addr:              envOr("CHATBOT_ADDR", ":8000"),
		ModelProvider:     envOr("MODEL_PROVIDER", "openai"),
		ModelName:         envOr("MODEL_NAME", "gpt-4o"),
		SystemPrompt:      os.Getenv("SYSTEM_PROMPT"),
		StoreType:         envOr("STORE_TYPE", "sqlite"),
		StoreDSN:          os.Getenv("STORE_DSN"), // empty lets the store factory pick its default

		RetentionSchedule: envOr("RETENTION_SCHEDULE", "@hourly"),
	}

	if hours := os.Getenv("RETENTION_HOURS"); hours != "" {
		if h, err := strconv.Atoi(hours); err == nil && h > 0 {
			cfg.RetentionWindow = time.Duration(h) * time.Hour
		}
	}

	return cfg
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// WithAddr sets the listen address
func (c *Config) WithAddr(addr string) *Config {
	c.Addr = addr
	return c
}

// WithModel sets the model provider and name
func (c *Config) WithModel(provider, name string) *Config {
	c.ModelProvider = provider
	c.ModelName = name
	return c
}

// WithSystemPrompt sets the system prompt sent on every model call
func (c *Config) WithSystemPrompt(prompt string) *Config {
	c.SystemPrompt = prompt
	return c
}

// WithStore sets the store type and connection string
func (c *Config) WithStore(storeType, dsn string) *Config {
	c.StoreType = storeType
	c.StoreDSN = dsn
	return c
}

// WithRetention sets the idle window and cron schedule for thread pruning
func (c *Config) WithRetention(window time.Duration, schedule string) *Config {
	c.RetentionWindow = window
	c.RetentionSchedule = schedule
	return c
}

// BuildStore opens the configured message store.
func (c *Config) BuildStore() (stores.MessageStore, error) {
	return stores.NewStore(stores.NewStoreConfig(c.StoreType, c.StoreDSN))
}
