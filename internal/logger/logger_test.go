package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRejectsBadConfig(t *testing.T) {
	_, err := New(Config{Level: "loud"})
	assert.Error(t, err)

	_, err = New(Config{Level: "info", Encoding: "xml"})
	assert.Error(t, err)
}

func TestNewWritesJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.log")
	l, err := New(Config{Level: "debug", Encoding: "json", OutputPaths: []string{path}})
	require.NoError(t, err)

	l.Named("worker").Debug("ring ready")
	require.NoError(t, l.Sync())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"logger":"worker"`)
	assert.Contains(t, string(data), `"message":"ring ready"`)
}

func TestSamplingDropsRepeats(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.log")
	l, err := New(Config{Level: "info", Encoding: "json", OutputPaths: []string{path}, Initial: 2, Thereafter: 1000})
	require.NoError(t, err)

	for i := 0; i < 50; i++ {
		l.Warn("send failed")
	}
	require.NoError(t, l.Sync())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Less(t, countLines(data), 50)
}

func TestInitAndGet(t *testing.T) {
	require.NoError(t, Init(Config{Level: "warn", Encoding: "json", OutputPaths: []string{filepath.Join(t.TempDir(), "g.log")}}))
	assert.NotNil(t, Get())
	assert.False(t, Get().Core().Enabled(-1))
}

func countLines(b []byte) int {
	n := 0
	for _, c := range b {
		if c == '\n' {
			n++
		}
	}
	return n
}
