package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const service = "vaulted"

// Init configures the global logger on stderr. An empty or unknown level
// falls back to info.
func Init(level string) zerolog.Level {
	return Setup(os.Stderr, level)
}

// Setup configures the global logger to write to w. Debug and trace get
// colored console output; higher levels are plain.
func Setup(w io.Writer, level string) zerolog.Level {
	lvl := zerolog.InfoLevel
	parsed, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	switch {
	case err != nil:
		log.Warn().Str("provided_level", level).Err(err).Msg("Invalid log level, defaulting to 'info'")
	case parsed != zerolog.NoLevel:
		lvl = parsed
	}
	zerolog.SetGlobalLevel(lvl)

	console := zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339, NoColor: lvl > zerolog.DebugLevel}
	log.Logger = zerolog.New(console).With().Timestamp().Str("service", service).Logger()

	log.Debug().Str("log_level", lvl.String()).Msg("Logger initialized")
	return lvl
}
