// Package msgstore keeps raw captured messages, keyed by message id.
package msgstore

import (
	"context"
	"errors"

	"github.com/rs/zerolog"
)

// ErrNotFound is returned when a requested message does not exist.
var ErrNotFound = errors.New("msgstore: message not found")

// MessageStore stores raw RFC 5322 messages.
type MessageStore interface {
	Put(ctx context.Context, messageID string, data []byte) error
	Get(ctx context.Context, messageID string) ([]byte, error)
	Delete(ctx context.Context, messageID string) error
	// List returns stored message ids in ascending order.
	List(ctx context.Context) ([]string, error)
}

// Config selects a MessageStore.
type Config struct {
	Type string // "local" or "memory"
	Path string // base directory for the local store
}

// New creates a MessageStore based on cfg. An empty or unknown type falls
// back to the local store when a path is set and to memory otherwise.
func New(cfg Config, logger zerolog.Logger) (MessageStore, error) {
	switch cfg.Type {
	case "local":
		return NewLocalFileStore(cfg.Path)
	case "memory":
		return NewMemoryStore(), nil
	}

	if cfg.Path != "" {
		logger.Warn().
			Str("type", cfg.Type).
			Str("path", cfg.Path).
			Msg("unsupported or empty store type, defaulting to local")
		return NewLocalFileStore(cfg.Path)
	}
	logger.Warn().
		Str("type", cfg.Type).
		Msg("unsupported or empty store type and no path, keeping messages in memory")
	return NewMemoryStore(), nil
}
