package logger

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

var (
	// Logger is the global logger instance. It discards output until Init
	// is called so packages can log from tests without setup.
	Logger = zerolog.Nop()
)

// Init initializes the global logger
func Init(level string) {
	var output io.Writer = os.Stdout

	// Pretty console logging in development
	if os.Getenv("ENV") == "development" {
		output = zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		}
	}

	Logger = New(output, level)

	Logger.Info().
		Str("level", zerolog.GlobalLevel().String()).
		Msg("logger initialized")
}

// New builds a logger writing to w at the given level.
func New(w io.Writer, level string) zerolog.Logger {
	logLevel, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		logLevel = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(logLevel)

	return zerolog.New(w).
		With().
		Timestamp().
		Caller().
		Str("service", "rockguard").
		Logger()
}

// WithComponent returns a logger with a component field
func WithComponent(component string) zerolog.Logger {
	return Logger.With().Str("component", component).Logger()
}

// WithRequestID returns a logger with a request ID field
func WithRequestID(requestID string) zerolog.Logger {
	return Logger.With().Str("request_id", requestID).Logger()
}

// WithSession returns a logger scoped to one notification session
func WithSession(component, session string) zerolog.Logger {
	return Logger.With().
		Str("component", component).
		Str("session_id", session).
		Logger()
}
