package logging

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("trace"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("WARN"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("bogus"))
}

func TestGetLog_FileSinkAndLevels(t *testing.T) {
	file := filepath.Join(t.TempDir(), "dynctl.log")
	Configure(&Config{
		Filename:     file,
		DefaultLevel: "WARN",
		Levels:       []LevelConfig{{Pattern: "estimator*", Level: "DEBUG"}},
	})
	defer Close()

	GetLog("estimator.ukf").Debug("downdate", "column", 2)
	GetLog("control").Info("hidden")
	GetLog("control").Warn("shown", "k", 1.5)

	data, err := os.ReadFile(file)
	require.NoError(t, err)
	out := string(data)
	assert.Contains(t, out, "module=estimator.ukf")
	assert.Contains(t, out, "column=2")
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "msg=shown")
}

func TestGetLog_DiscardByDefault(t *testing.T) {
	Close()
	assert.False(t, GetLog("riccati").Enabled(context.Background(), slog.LevelDebug))
}
