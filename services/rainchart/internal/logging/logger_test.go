package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/02loveslollipop/shizuku-rain-chart/services/rainchart/internal/config"
)

func TestNewProdWritesJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, config.Config{AppEnv: "prod", LogLevel: slog.LevelInfo}, "1.2.3", "rainchart")

	logger.Info("poll applied", "series", 2)
	logger.Debug("hidden")

	var line map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &line))
	assert.Equal(t, "poll applied", line["msg"])
	assert.Equal(t, "rainchart", line["app"])
	assert.Equal(t, "1.2.3", line["version"])
	assert.Equal(t, "prod", line["env"])
	assert.EqualValues(t, 2, line["series"])
}

func TestNewDevRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, config.Config{AppEnv: "dev", LogLevel: slog.LevelWarn}, "dev", "rainchart")

	logger.Info("quiet")
	assert.Empty(t, buf.String())

	logger.Warn("poll failed")
	assert.Contains(t, buf.String(), "poll failed")
}
