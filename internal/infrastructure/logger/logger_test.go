package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/janhq/photo-bot/internal/config"
)

func TestNew_JSONFormat(t *testing.T) {
	t.Cleanup(func() { zerolog.SetGlobalLevel(zerolog.TraceLevel) })

	var buf bytes.Buffer
	log := newWithWriter(&config.Config{LogLevel: "debug", LogFormat: "json", ServiceName: "photo-bot", Environment: "test"}, &buf)
	log.Debug().Str("owner_id", "42").Msg("hello")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "hello", entry["message"])
	assert.Equal(t, "photo-bot", entry["service"])
	assert.Equal(t, "test", entry["environment"])
	assert.Equal(t, "42", entry["owner_id"])
	assert.Equal(t, "debug", entry["level"])
}

func TestNew_LevelFiltering(t *testing.T) {
	t.Cleanup(func() { zerolog.SetGlobalLevel(zerolog.TraceLevel) })

	var buf bytes.Buffer
	log := newWithWriter(&config.Config{LogLevel: "warn", LogFormat: "json"}, &buf)
	log.Info().Msg("dropped")
	assert.Empty(t, buf.String())

	log.Warn().Msg("kept")
	assert.Contains(t, buf.String(), "kept")
}

func TestNew_UnknownLevelDefaultsToInfo(t *testing.T) {
	t.Cleanup(func() { zerolog.SetGlobalLevel(zerolog.TraceLevel) })

	var buf bytes.Buffer
	log := newWithWriter(&config.Config{LogLevel: "chatty", LogFormat: "console"}, &buf)
	assert.Equal(t, zerolog.InfoLevel, log.GetLevel())
	log.Info().Msg("console line")
	assert.Contains(t, buf.String(), "console line")
}
