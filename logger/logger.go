package logger

import (
	"os"
	"strings"

	"github.com/alfreddev/fusegate/config"
	"github.com/rs/zerolog"
)

// New returns a zerolog.Logger configured from cfg. Development environments
// get a human-readable console writer; everything else gets structured JSON.
func New(cfg *config.Config) zerolog.Logger {
	var out zerolog.ConsoleWriter
	var log zerolog.Logger

	lvl, err := zerolog.ParseLevel(strings.ToLower(cfg.LogLevel))
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)

	if cfg.IsDevelopment() {
		out = zerolog.ConsoleWriter{Out: os.Stderr}
		log = zerolog.New(out).With().Timestamp().Logger()
	} else {
		log = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}

	return log
}
