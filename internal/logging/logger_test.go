package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func restoreGlobals(t *testing.T) {
	level := zerolog.GlobalLevel()
	logger := log.Logger
	fallback := zerolog.DefaultContextLogger
	t.Cleanup(func() {
		zerolog.SetGlobalLevel(level)
		log.Logger = logger
		zerolog.DefaultContextLogger = fallback
	})
}

func TestInitJSON(t *testing.T) {
	restoreGlobals(t)
	var buf bytes.Buffer

	Init("warn", "json", &buf, map[string]string{"app": "moviecatalog"})
	log.Info().Msg("dropped")
	log.Warn().Str("username", "alice").Msg("kept")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "kept", entry["message"])
	assert.Equal(t, "warn", entry["level"])
	assert.Equal(t, "moviecatalog", entry["app"])
	assert.Equal(t, "alice", entry["username"])
}

func TestInitUnknownLevelFallsBackToInfo(t *testing.T) {
	restoreGlobals(t)
	var buf bytes.Buffer

	Init("chatty", "json", &buf, nil)
	assert.Equal(t, zerolog.InfoLevel, zerolog.GlobalLevel())
}

func TestContextLoggerFallsBackToGlobal(t *testing.T) {
	restoreGlobals(t)
	var buf bytes.Buffer

	Init("info", "json", &buf, nil)
	zerolog.Ctx(context.Background()).Info().Msg("from context")
	assert.Contains(t, buf.String(), "from context")
}
