package logger

import (
	"context"
	"io"
	"os"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Config mirrors config.LoggingConfig so that this package stays free of
// application imports.
type Config struct {
	Level     string
	Format    string // json (default) or console
	Output    string // stdout (default) or file
	FilePath  string
	MaxSizeMB int
	MaxFiles  int
	// Service is attached to every entry as the "service" field when set.
	Service string
}

type contextKey string

const (
	loggerKey        contextKey = "logger"
	correlationIDKey contextKey = "correlation_id"
)

// New creates a zerolog.Logger with the specified level and JSON output.
// If the level string is invalid, it defaults to info.
func New(level string) zerolog.Logger {
	return zerolog.New(os.Stdout).
		Level(parseLevel(level)).
		With().
		Timestamp().
		Logger()
}

// NewFromConfig builds a logger whose writer is chosen by cfg.Output:
// "file" rotates through lumberjack, anything else writes to stdout.
// Format "console" renders human-readable lines instead of JSON.
func NewFromConfig(cfg Config) zerolog.Logger {
	var writer io.Writer = os.Stdout
	if cfg.Output == "file" && cfg.FilePath != "" {
		writer = NewFileWriter(FileConfig{
			Path:      cfg.FilePath,
			MaxSizeMB: cfg.MaxSizeMB,
			MaxFiles:  cfg.MaxFiles,
		})
	}
	if cfg.Format == "console" {
		writer = zerolog.ConsoleWriter{Out: writer, NoColor: cfg.Output == "file"}
	}

	zctx := zerolog.New(writer).
		Level(parseLevel(cfg.Level)).
		With().
		Timestamp()
	if cfg.Service != "" {
		zctx = zctx.Str("service", cfg.Service)
	}
	return zctx.Logger()
}

func parseLevel(level string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		return zerolog.InfoLevel
	}
	return lvl
}

// WithLogger stores a logger in the context.
func WithLogger(ctx context.Context, logger zerolog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey, logger)
}

// WithCorrelationID stores a correlation ID in the context.
func WithCorrelationID(ctx context.Context, correlationID string) context.Context {
	return context.WithValue(ctx, correlationIDKey, correlationID)
}

// CorrelationIDFromContext retrieves the correlation ID from the context.
// Returns an empty string if not set.
func CorrelationIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(correlationIDKey).(string); ok {
		return id
	}
	return ""
}

// FromContext retrieves the logger from the context, falling back to an
// info-level stdout logger. A correlation ID in the context is attached.
func FromContext(ctx context.Context) zerolog.Logger {
	var log zerolog.Logger

	if l, ok := ctx.Value(loggerKey).(zerolog.Logger); ok {
		log = l
	} else {
		log = New("info")
	}

	if id := CorrelationIDFromContext(ctx); id != "" {
		log = log.With().Str("correlation_id", id).Logger()
	}

	return log
}

// NewCorrelationID generates a new UUID-based correlation ID.
func NewCorrelationID() string {
	return uuid.New().String()
}
