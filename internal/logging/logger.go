package logging

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// L is the process-wide logger. Components derive child loggers from it
// via L.With() so every line carries its component name.
var L zerolog.Logger

// Init configures the global logger. When path is empty, log lines go to
// stderr through a console writer; otherwise they are appended to the file
// as JSON.
func Init(level string, path string) error {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}

	var w io.Writer
	if path != "" {
		file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return err
		}
		w = file
	} else {
		w = zerolog.ConsoleWriter{Out: os.Stderr}
	}

	L = zerolog.New(w).Level(lvl).With().Timestamp().Logger()
	return nil
}

// For returns a child logger tagged with a component name.
func For(component string) zerolog.Logger {
	return L.With().Str("component", component).Logger()
}
