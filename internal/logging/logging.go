package logging

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// New builds the process logger: human readable in dev, JSON elsewhere.
// An unknown level falls back to info.
func New(env, level string) zerolog.Logger {
	return newWithWriter(env, level, os.Stdout)
}

func newWithWriter(env, level string, w io.Writer) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}

	out := w
	if env == "dev" || env == "development" {
		out = zerolog.ConsoleWriter{Out: w, TimeFormat: "15:04:05"}
	}

	return zerolog.New(out).Level(lvl).With().Timestamp().Logger()
}
