package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewJSON(t *testing.T) {
	var buf bytes.Buffer
	log, err := New(Config{Level: "warn", Format: "json"}, &buf)
	require.NoError(t, err)

	log.Info().Msg("dropped")
	log.Warn().Str("component", "risk").Msg("kept")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "kept", line["message"])
	assert.Equal(t, "risk", line["component"])
	assert.Equal(t, "warn", line["level"])
}

func TestNewConsole(t *testing.T) {
	var buf bytes.Buffer
	log, err := New(Config{}, &buf)
	require.NoError(t, err)
	log.Info().Msg("hello")
	assert.Contains(t, buf.String(), "hello")
}

func TestNewRejectsBadConfig(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"level", Config{Level: "loud"}},
		{"format", Config{Format: "xml"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.cfg, nil)
			assert.Error(t, err)
		})
	}
}
