package logger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"matchbook/infra/config"
)

func TestNewWritesRotatingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "engine.log")
	log, err := New(config.Logging{Level: "info", File: path, MaxSizeMB: 1})
	require.NoError(t, err)

	log.Debug("hidden")
	log.Info("order accepted")
	_ = log.Sync()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	out := string(data)
	assert.Contains(t, out, `"msg":"order accepted"`)
	assert.Contains(t, out, `"level":"INFO"`)
	assert.Contains(t, out, `"ts":`)
	assert.False(t, strings.Contains(out, "hidden"))
}

func TestNewRejectsBadLevel(t *testing.T) {
	_, err := New(config.Logging{Level: "chatty"})
	assert.Error(t, err)
}
