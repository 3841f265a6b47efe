package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWritesJSONWithServiceFields(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{
		Level:       "debug",
		Environment: "production",
		ServiceName: "be-ap-approver-selection",
		Version:     "1.2.3",
		Output:      &buf,
	})

	log.WithComponent("engine").Info().Int("hierarchy_level", 2).Msg("approver selected")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "be-ap-approver-selection", line["service"])
	assert.Equal(t, "1.2.3", line["version"])
	assert.Equal(t, "engine", line["component"])
	assert.Equal(t, "approver selected", line["message"])
	assert.EqualValues(t, 2, line["hierarchy_level"])
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zerolog.InfoLevel, parseLevel(""))
	assert.Equal(t, zerolog.WarnLevel, parseLevel("WARN"))
	assert.Equal(t, zerolog.InfoLevel, parseLevel("chatty"))
}
