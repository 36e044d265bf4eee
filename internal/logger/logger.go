package logger

import (
	"context"
	"log"
)

type requestIDKey struct{}

type projectIDKey struct{}

// WithRequestID stores the request id for loggers created from ctx.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

// WithProject tags ctx with the project being processed.
func WithProject(ctx context.Context, projectID string) context.Context {
	return context.WithValue(ctx, projectIDKey{}, projectID)
}

func RequestID(ctx context.Context) string {
	if rid, ok := ctx.Value(requestIDKey{}).(string); ok {
		return rid
	}
	return ""
}

func ProjectID(ctx context.Context) string {
	if pid, ok := ctx.Value(projectIDKey{}).(string); ok {
		return pid
	}
	return ""
}

// Logger writes key=value lines scoped to a request and optionally a project.
type Logger struct {
	requestID string
	projectID string
}

// New creates a logger from the ids carried by ctx.
func New(ctx context.Context) *Logger {
	requestID := RequestID(ctx)
	if requestID == "" {
		requestID = "unknown"
	}
	return &Logger{requestID: requestID, projectID: ProjectID(ctx)}
}

func (l *Logger) Error(operation string, err error) {
	l.printf("error", operation, "error=%v", err)
}

func (l *Logger) Errorf(operation string, format string, args ...interface{}) {
	l.printf("error", operation, format, args...)
}

func (l *Logger) Info(operation string, message string) {
	l.printf("info", operation, "message=%s", message)
}

func (l *Logger) Infof(operation string, format string, args ...interface{}) {
	l.printf("info", operation, format, args...)
}

func (l *Logger) Warn(operation string, message string) {
	l.printf("warn", operation, "message=%s", message)
}

func (l *Logger) Warnf(operation string, format string, args ...interface{}) {
	l.printf("warn", operation, format, args...)
}

func (l *Logger) printf(level, operation, format string, args ...interface{}) {
	if l.projectID != "" {
		log.Printf("[%s] request_id=%s project_id=%s operation=%s "+format,
			append([]interface{}{level, l.requestID, l.projectID, operation}, args...)...)
		return
	}
	log.Printf("[%s] request_id=%s operation=%s "+format,
		append([]interface{}{level, l.requestID, operation}, args...)...)
}
