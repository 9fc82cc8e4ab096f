// Package log configures the process-wide slog logger.
package log

import (
	"log/slog"
	"os"
	"strings"
)

// Standard component names used across the service.
const (
	ComponentAPI       = "api"
	ComponentWorker    = "worker"
	ComponentStorage   = "storage"
	ComponentAMQP      = "amqp"
	ComponentConnector = "connector"
)

// Config holds logger configuration
type Config struct {
	Level     slog.Level
	Component string
	JSON      bool
}

// DefaultConfig reads LOG_LEVEL and LOG_FORMAT from the environment.
func DefaultConfig(component string) Config {
	return Config{
		Level:     parseLevel(os.Getenv("LOG_LEVEL")),
		Component: component,
		JSON:      strings.EqualFold(os.Getenv("LOG_FORMAT"), "json"),
	}
}

// Setup builds a logger for the component and installs it as the slog
// default.
func Setup(config Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: config.Level}

	var handler slog.Handler
	if config.JSON {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(handler).With("component", config.Component)
	slog.SetDefault(logger)
	return logger
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
