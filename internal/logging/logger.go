// Package logging provides the structured logger shared by every package in
// the gateway.
//
// Adapted from the teacher's internal/v1/logging: a sync.Once-guarded
// zap.Logger with development/production presets and thin Info/Warn/Error
// wrappers that pull correlation fields out of a context.Context. The
// context keys are rebuilt for this domain: a session is one IRC
// connection, so SessionIDKey/NickKey/RoomIDKey replace the teacher's
// correlation/user/room keys.
package logging

import (
	"context"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	logger *zap.Logger
	once   sync.Once
)

type contextKey string

const (
	// SessionIDKey tags every log line emitted while handling one IRC
	// connection, from accept through teardown.
	SessionIDKey contextKey = "session_id"
	// NickKey is the client's current nickname, set once the handshake
	// completes and updated after any canonical-username rename.
	NickKey contextKey = "nick"
	// RoomIDKey is the backend room id a log line pertains to, when one
	// particular room is relevant.
	RoomIDKey contextKey = "room_id"
)

// Initialize sets up the global logger. Call once at process startup.
func Initialize(development bool) error {
	var err error
	once.Do(func() {
		var config zap.Config
		if development {
			config = zap.NewDevelopmentConfig()
			config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		} else {
			config = zap.NewProductionConfig()
			config.EncoderConfig.TimeKey = "timestamp"
			config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		}

		config.OutputPaths = []string{"stdout"}
		config.ErrorOutputPaths = []string{"stderr"}

		logger, err = config.Build(zap.AddCallerSkip(1))
	})
	return err
}

// GetLogger returns the global logger, falling back to a development logger
// if Initialize was never called (tests).
func GetLogger() *zap.Logger {
	if logger == nil {
		l, _ := zap.NewDevelopment()
		return l
	}
	return logger
}

// Info logs a message at InfoLevel.
func Info(ctx context.Context, msg string, fields ...zap.Field) {
	GetLogger().Info(msg, appendContextFields(ctx, fields)...)
}

// Warn logs a message at WarnLevel.
func Warn(ctx context.Context, msg string, fields ...zap.Field) {
	GetLogger().Warn(msg, appendContextFields(ctx, fields)...)
}

// Error logs a message at ErrorLevel.
func Error(ctx context.Context, msg string, fields ...zap.Field) {
	GetLogger().Error(msg, appendContextFields(ctx, fields)...)
}

// Fatal logs a message at FatalLevel and then exits the process.
func Fatal(ctx context.Context, msg string, fields ...zap.Field) {
	GetLogger().Fatal(msg, appendContextFields(ctx, fields)...)
}

// WithSession returns a context tagged with a session id for the lifetime
// of one IRC connection.
func WithSession(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, SessionIDKey, sessionID)
}

// WithNick returns a context additionally tagged with the client's current
// nickname.
func WithNick(ctx context.Context, nick string) context.Context {
	return context.WithValue(ctx, NickKey, nick)
}

func appendContextFields(ctx context.Context, fields []zap.Field) []zap.Field {
	if ctx == nil {
		return fields
	}

	if sid, ok := ctx.Value(SessionIDKey).(string); ok {
		fields = append(fields, zap.String("session_id", sid))
	}
	if nick, ok := ctx.Value(NickKey).(string); ok {
		fields = append(fields, zap.String("nick", nick))
	}
	if rid, ok := ctx.Value(RoomIDKey).(string); ok {
		fields = append(fields, zap.String("room_id", rid))
	}

	fields = append(fields, zap.String("service", "ircbridge"))

	return fields
}
