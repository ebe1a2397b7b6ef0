package log_test

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/jblamy/quadstore/internal/log"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitJSONOutputRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	log.Init(log.Config{Level: log.WarnLevel, JSONOutput: true, Output: &buf})
	t.Cleanup(func() { log.Init(log.Config{Level: log.InfoLevel}) })

	log.Logger.Info().Msg("should be suppressed")
	log.Logger.Warn().Msg("should appear")

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 1)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(lines[0], &decoded))
	assert.Equal(t, "should appear", decoded["message"])
	assert.Equal(t, zerolog.WarnLevel.String(), decoded["level"])
}

func TestWithComponentTagsField(t *testing.T) {
	var buf bytes.Buffer
	log.Init(log.Config{Level: log.DebugLevel, JSONOutput: true, Output: &buf})
	t.Cleanup(func() { log.Init(log.Config{Level: log.InfoLevel}) })

	log.WithComponent("store").Info().Msg("opened")

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &decoded))
	assert.Equal(t, "store", decoded["component"])
}

func TestWithGraphTagsComponentAndGraph(t *testing.T) {
	var buf bytes.Buffer
	log.Init(log.Config{Level: log.DebugLevel, JSONOutput: true, Output: &buf})
	t.Cleanup(func() { log.Init(log.Config{Level: log.InfoLevel}) })

	log.WithGraph("engine", "http://example.org/g").Info().Msg("query")

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &decoded))
	assert.Equal(t, "engine", decoded["component"])
	assert.Equal(t, "http://example.org/g", decoded["graph"])
}
