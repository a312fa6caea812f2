package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_JSONOutsideDev(t *testing.T) {
	var buf bytes.Buffer
	logger := newWithWriter("prod", "warn", &buf)

	logger.Info().Msg("hidden")
	logger.Warn().Str("slot_id", "abc").Msg("shown")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "warn", line["level"])
	assert.Equal(t, "abc", line["slot_id"])
	assert.Contains(t, line, "time")
}

func TestNew_UnknownLevelFallsBackToInfo(t *testing.T) {
	var buf bytes.Buffer
	logger := newWithWriter("prod", "loud", &buf)

	logger.Debug().Msg("hidden")
	assert.Zero(t, buf.Len())
	logger.Info().Msg("shown")
	assert.NotZero(t, buf.Len())
}
