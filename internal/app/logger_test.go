package app

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoggerJSONRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, &Config{AppEnv: "production", LogFormat: "json", LogLevel: "warn"})

	logger.Info("dropped")
	require.Zero(t, buf.Len())

	logger.Warn("stock lock timeout")
	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	require.Equal(t, "WARN", entry["level"])
	require.Equal(t, "odyssey-trade", entry["service"])
	require.NotContains(t, entry, "source")
}

func TestLoggerTextDefaults(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, nil)

	logger.Debug("hidden")
	logger.Info("ready", "addr", ":8080")
	out := buf.String()
	require.NotContains(t, out, "hidden")
	require.True(t, strings.Contains(out, "msg=ready"), out)
	require.Contains(t, out, "source=")
}

func TestParseLevel(t *testing.T) {
	require.Equal(t, "DEBUG", parseLevel("Debug").String())
	require.Equal(t, "WARN", parseLevel("warning").String())
	require.Equal(t, "ERROR", parseLevel("error").String())
	require.Equal(t, "INFO", parseLevel("verbose").String())
}
