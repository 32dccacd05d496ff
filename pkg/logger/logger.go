package logger

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Logger wraps zerolog.Logger
type Logger struct {
	zerolog.Logger
}

// New creates a new logger instance. Development gets a human readable
// console writer at debug level; every other environment logs JSON at info.
func New(serviceName string, environment string) *Logger {
	var output io.Writer = os.Stdout
	level := zerolog.InfoLevel

	if environment == "development" {
		output = zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		}
		level = zerolog.DebugLevel
	}

	logger := zerolog.New(output).
		Level(level).
		With().
		Timestamp().
		Str("service", serviceName).
		Logger()

	return &Logger{Logger: logger}
}

// Nop returns a logger that discards everything.
func Nop() *Logger {
	return &Logger{Logger: zerolog.Nop()}
}

// WithRequestID returns a logger with the request ID attached
func (l *Logger) WithRequestID(requestID string) *Logger {
	return &Logger{
		Logger: l.Logger.With().Str("request_id", requestID).Logger(),
	}
}

// WithActor returns a logger tagged with the acting user
func (l *Logger) WithActor(userID, role string) *Logger {
	return &Logger{
		Logger: l.Logger.With().Str("actor_id", userID).Str("actor_role", role).Logger(),
	}
}

// WithComponent returns a logger with the component name attached
func (l *Logger) WithComponent(component string) *Logger {
	return &Logger{
		Logger: l.Logger.With().Str("component", component).Logger(),
	}
}

type fieldsKey struct{}

type requestFields struct {
	requestID string
	actorID   string
	actorRole string
}

func fieldsFrom(ctx context.Context) requestFields {
	f, _ := ctx.Value(fieldsKey{}).(requestFields)
	return f
}

// ContextWithRequestID records the request ID picked up by For.
func ContextWithRequestID(ctx context.Context, requestID string) context.Context {
	f := fieldsFrom(ctx)
	f.requestID = requestID
	return context.WithValue(ctx, fieldsKey{}, f)
}

// ContextWithActor records the acting user picked up by For.
func ContextWithActor(ctx context.Context, userID, role string) context.Context {
	f := fieldsFrom(ctx)
	f.actorID, f.actorRole = userID, role
	return context.WithValue(ctx, fieldsKey{}, f)
}

// For returns l tagged with whatever request ID and actor ctx carries.
func (l *Logger) For(ctx context.Context) *Logger {
	f := fieldsFrom(ctx)
	out := l
	if f.requestID != "" {
		out = out.WithRequestID(f.requestID)
	}
	if f.actorID != "" {
		out = out.WithActor(f.actorID, f.actorRole)
	}
	return out
}
