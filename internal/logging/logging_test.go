package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_JSON(t *testing.T) {
	var buf bytes.Buffer
	l, err := New("info", FormatJSON, &buf)
	require.NoError(t, err)

	l.Debug().Msg("hidden")
	l.Info().Str("path", "a.go").Msg("shown")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "shown", entry["message"])
	assert.Equal(t, "a.go", entry["path"])
	assert.Equal(t, "info", entry["level"])
}

func TestNew_Console(t *testing.T) {
	var buf bytes.Buffer
	l, err := New("", FormatConsole, &buf)
	require.NoError(t, err)

	l.Info().Msg("below default level")
	assert.Empty(t, buf.String())

	l.Warn().Msg("cache unavailable")
	assert.Contains(t, buf.String(), "cache unavailable")
}

func TestNew_Invalid(t *testing.T) {
	_, err := New("loud", FormatJSON, nil)
	assert.Error(t, err)

	_, err = New("info", "xml", nil)
	assert.Error(t, err)
}

func TestSetupAndComponent(t *testing.T) {
	prev := log.Logger
	t.Cleanup(func() { log.Logger = prev })

	var buf bytes.Buffer
	require.NoError(t, Setup("debug", FormatJSON, &buf))

	l := Component("cache")
	l.Debug().Str("analyzer", "static").Msg("cache hit")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "cache", entry["cmp"])
	assert.Equal(t, "static", entry["analyzer"])
	assert.Equal(t, "debug", entry["level"])
}

func TestSetup_InvalidKeepsLogger(t *testing.T) {
	prev := log.Logger
	t.Cleanup(func() { log.Logger = prev })

	var buf bytes.Buffer
	require.NoError(t, Setup("info", FormatJSON, &buf))
	require.Error(t, Setup("verbose", FormatJSON, nil))

	log.Info().Msg("still here")
	assert.Contains(t, buf.String(), "still here")
}
