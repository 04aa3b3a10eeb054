package stores

import (
	"fmt"
)

// Connection defaults applied when a StoreConfig carries no DSN.
const (
	DefaultSQLitePath  = "chat_history.sqlite"
	defaultPostgresDSN = "host=localhost user=postgres dbname=chatbot port=5432 sslmode=disable"
)

// NewStore opens the message store described by config. An empty connection
// string falls back to the store type's default.
func NewStore(config *StoreConfig) (MessageStore, error) {
	if config.Connection == "" {
		config.Connection = defaultConnection(config.Type)
	}

	switch config.Type {
	case "sqlite":
		return NewSQLiteStore(config)
	case "postgres":
		return NewPostgresStore(config)
	default:
		return nil, fmt.Errorf("unsupported store type: %s", config.Type)
	}
}

func defaultConnection(storeType string) string {
	if storeType == "postgres" {
		return defaultPostgresDSN
	}
	return DefaultSQLitePath
}
