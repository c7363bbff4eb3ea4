package monitoring

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetLogger(t *testing.T) {
	original := Logf
	defer func() { Logf = original }()

	called := false
	SetLogger(func(format string, v ...interface{}) { called = true })
	Logf("test message")
	assert.True(t, called, "custom logger was not called")

	called = false
	SetLogger(nil)
	Logf("test message")
	assert.False(t, called, "no-op logger should not have triggered callback")
}

func TestLogfDefaultDoesNotPanic(t *testing.T) {
	require.NotNil(t, Logf)
	assert.NotPanics(t, func() { Logf("test message: %s", "value") })
}

func TestNewLoggerConsole(t *testing.T) {
	var buf bytes.Buffer
	l, closeFn, err := NewLogger(Options{Console: &buf})
	require.NoError(t, err)

	l.Infof("level %d std=%.2f", 3, 1.25)
	l.Debugf("hidden at info level")
	require.NoError(t, closeFn())

	out := buf.String()
	assert.Contains(t, out, "level 3 std=1.25")
	assert.NotContains(t, out, "hidden at info level")
}

func TestNewLoggerFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cascade.log")
	l, closeFn, err := NewLogger(Options{Debug: true, FilePath: path, NoConsole: true})
	require.NoError(t, err)

	l.Named("cascade").Debugf("trace line")
	require.NoError(t, closeFn())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(data), `"msg":"trace line"`), string(data))
	assert.Contains(t, string(data), `"logger":"cascade"`)
}

func TestNewLoggerNeedsASink(t *testing.T) {
	_, _, err := NewLogger(Options{NoConsole: true})
	assert.Error(t, err)
}

func TestUseSugared(t *testing.T) {
	original := Logf
	defer func() { Logf = original }()

	var buf bytes.Buffer
	l, closeFn, err := NewLogger(Options{Console: &buf})
	require.NoError(t, err)
	defer closeFn()

	UseSugared(l)
	Logf("migration %d applied", 2)
	assert.Contains(t, buf.String(), "migration 2 applied")
}
