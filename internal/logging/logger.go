// Package logging configures the global zerolog logger.
package logging

import (
	"io"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Init sets the global level and output. Format "console" gives human
// readable output, anything else JSON lines.
func Init(level, format string, out io.Writer, fields map[string]string) {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)

	if strings.EqualFold(format, "console") {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}
	ctx := zerolog.New(out).With().Timestamp()
	for k, v := range fields {
		ctx = ctx.Str(k, v)
	}
	log.Logger = ctx.Logger()

	// Loggers pulled from a context without one fall back to the global.
	zerolog.DefaultContextLogger = &log.Logger
}
