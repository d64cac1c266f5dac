// Package logging initializes the process-wide slog logger.
package logging

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/lmittmann/tint"
)

const (
	JSON = "json"
	Text = "text"
	Tint = "tint"
)

// Initialize installs the default slog logger. loggingType selects the
// handler (json, text, or tint for colorized terminal output); level is a
// slog level name like "debug" or "warn".
func Initialize(loggingType string, level string) error {
	var logLevel slog.Level
	if err := logLevel.UnmarshalText([]byte(level)); err != nil {
		return fmt.Errorf("could not parse log level: %v", err)
	}

	opts := slog.HandlerOptions{Level: logLevel}

	var handler slog.Handler
	switch loggingType {
	case JSON:
		handler = slog.NewJSONHandler(os.Stderr, &opts)
	case Text:
		handler = slog.NewTextHandler(os.Stderr, &opts)
	case Tint:
		handler = tint.NewHandler(os.Stderr, &tint.Options{Level: logLevel})
	default:
		return fmt.Errorf("unknown logging type: %s", loggingType)
	}

	slog.SetDefault(slog.New(handler))
	return nil
}
