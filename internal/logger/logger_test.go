package logger

import (
	"io/ioutil"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNewWritesJSONToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.log")

	lg, err := New(Config{Level: "warn", Output: path})
	require.NoError(t, err)

	lg.Info("dropped")
	lg.Warn("kept", zap.String("txn", "abc"))
	require.NoError(t, lg.Sync())

	data, err := ioutil.ReadFile(path)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], `"msg":"kept"`)
	assert.Contains(t, lines[0], `"txn":"abc"`)
	assert.Contains(t, lines[0], `"service":"featuretxn"`)
}

func TestNewUnknownLevelDefaultsToInfo(t *testing.T) {
	lg, err := New(Config{Level: "loud", Output: "stderr", Format: "console"})
	require.NoError(t, err)
	assert.True(t, lg.Core().Enabled(zap.InfoLevel))
	assert.False(t, lg.Core().Enabled(zap.DebugLevel))
}

func TestNewCreatesLogDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "out.log")

	lg, err := New(Config{Output: path, MaxSizeMB: 1, MaxBackups: 2})
	require.NoError(t, err)
	lg.Info("hello")

	data, err := ioutil.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"hello"`)
}
