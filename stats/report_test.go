package stats_test

import (
	"bytes"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/momentics/hioload-burn/stats"
)

func sampleReport() stats.Report {
	r := stats.NewReport("run-1", 10*time.Second, stats.Statistics{
		FailedConnections: 3,
		WrongReturns:      1,
		SuccessfulReturns: 2500,
	})
	r.Target = "127.0.0.1:6664"
	r.Protocol = "udp"
	r.Backend = "io_uring"
	r.Threads = 2
	r.Connections = 4
	return r
}

func TestRenderText(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, sampleReport().Render(&buf, stats.FormatText))

	out := buf.String()
	assert.Contains(t, out, "BENCHMARK ENDED\n")
	assert.Contains(t, out, "Failed to connect in 3 cases\n")
	assert.Contains(t, out, "Wrong results have been given in 1 cases\n")
	assert.Contains(t, out, "Right results have been given in 2500 cases\n")
	assert.Contains(t, out, "Average good pongs per second: 250\n")
	assert.NotContains(t, out, "Send errors")
}

func TestRenderJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, sampleReport().Render(&buf, stats.FormatJSON))

	var got stats.Report
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, uint64(2500), got.Stats.SuccessfulReturns)
	assert.Equal(t, "run-1", got.RunID)

	var raw struct {
		Stats map[string]uint64 `json:"stats"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &raw))
	assert.Equal(t, uint64(3), raw.Stats["failed_connections"])
	assert.Equal(t, uint64(1), raw.Stats["wrong_return"])
	assert.Equal(t, uint64(2500), raw.Stats["successful_returns"])
}

func TestRenderYAML(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, sampleReport().Render(&buf, stats.FormatYAML))

	var got map[string]any
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, "udp", got["protocol"])
	assert.EqualValues(t, 10, got["duration_seconds"])
	assert.Contains(t, got["stats"], "wrong_return")
}

func TestParseFormat(t *testing.T) {
	f, err := stats.ParseFormat("JSON")
	require.NoError(t, err)
	assert.Equal(t, stats.FormatJSON, f)

	_, err = stats.ParseFormat("xml")
	assert.Error(t, err)
}

func TestGoodPongsPerSecondShortRun(t *testing.T) {
	r := stats.NewReport("", 500*time.Millisecond, stats.Statistics{SuccessfulReturns: 7})
	assert.Equal(t, uint64(7), r.GoodPongsPerSecond())
}
