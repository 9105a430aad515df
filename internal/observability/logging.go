// Package observability provides logging and tracing.
package observability

import (
	"context"
	"log/slog"
	"os"

	"github.com/google/uuid"
)

// Logger wraps slog.Logger to provide specialized logging methods.
type Logger struct {
	*slog.Logger
}

// GlobalLogger is the default logger instance for the application.
var GlobalLogger *Logger

func init() {
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})
	GlobalLogger = &Logger{Logger: slog.New(handler)}
}

// LogContextKey is a type for context keys used by the logging package.
type LogContextKey string

// Context keys for logging
const (
	CorrelationID LogContextKey = "correlation_id"
	NodeID        LogContextKey = "node_id"
)

// GenerateCorrelationID creates a new unique correlation ID.
func GenerateCorrelationID() string {
	return uuid.NewString()
}

// WithCorrelationID returns a new context with the given correlation ID.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, CorrelationID, id)
}

// ExtractCorrelationID retrieves the correlation ID from the context.
func ExtractCorrelationID(ctx context.Context) string {
	if id := ctx.Value(CorrelationID); id != nil {
		return id.(string)
	}
	return ""
}

// EngineLogger provides structured logging for game-engine transitions. Every
// transition is logged with the node identity so overlapping leaders can be
// spotted in aggregated output.
type EngineLogger struct {
	nodeID string
	logger *Logger
}

// NewEngineLogger creates an EngineLogger for the given node.
func NewEngineLogger(nodeID string) *EngineLogger {
	return &EngineLogger{nodeID: nodeID, logger: GlobalLogger}
}

// LogTransition logs a state-machine transition with arbitrary fields.
func (l *EngineLogger) LogTransition(ctx context.Context, event string, fields map[string]interface{}) {
	attrs := []any{
		slog.String("node_id", l.nodeID),
		slog.String("event", event),
		slog.String("correlation_id", ExtractCorrelationID(ctx)),
	}
	for k, v := range fields {
		attrs = append(attrs, slog.Any(k, v))
	}
	l.logger.InfoContext(ctx, "engine transition", attrs...)
}

// LogRecovery logs a health-check self-heal action.
func (l *EngineLogger) LogRecovery(ctx context.Context, kind string, fields map[string]interface{}) {
	attrs := []any{
		slog.String("node_id", l.nodeID),
		slog.String("recovery", kind),
	}
	for k, v := range fields {
		attrs = append(attrs, slog.Any(k, v))
	}
	l.logger.WarnContext(ctx, "engine self-heal", attrs...)
}

// LogError logs a swallowed engine error. The station keeps running; errors
// never propagate to listeners.
func (l *EngineLogger) LogError(ctx context.Context, op string, err error) {
	l.logger.ErrorContext(ctx, "engine error",
		slog.String("node_id", l.nodeID),
		slog.String("operation", op),
		slog.String("error", err.Error()),
	)
}
