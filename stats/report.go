// File: stats/report.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Final benchmark report rendering. Reads only public Statistics fields.

package stats

import (
	"fmt"
	"io"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"gopkg.in/yaml.v3"

	"github.com/momentics/hioload-burn/api"
)

// Format selects the report encoding.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// ParseFormat validates a report format name.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(s)); f {
	case FormatText, FormatJSON, FormatYAML:
		return f, nil
	default:
		return "", api.Wrap(api.ErrInvalidArgument, api.ErrCodeInvalidArgument, fmt.Sprintf("unknown report format %q", s))
	}
}

// Report is the merged result of a benchmark run.
type Report struct {
	RunID       string     `json:"run_id" yaml:"run_id"`
	Target      string     `json:"target" yaml:"target"`
	Protocol    string     `json:"protocol" yaml:"protocol"`
	Backend     string     `json:"backend" yaml:"backend"`
	Threads     int        `json:"threads" yaml:"threads"`
	Connections int        `json:"connections" yaml:"connections"`
	Seconds     float64    `json:"duration_seconds" yaml:"duration_seconds"`
	Stats       Statistics `json:"stats" yaml:"stats"`
	Error       string     `json:"error,omitempty" yaml:"error,omitempty"`
}

// NewReport builds a report for a run of the given duration.
func NewReport(runID string, d time.Duration, s Statistics) Report {
	return Report{RunID: runID, Seconds: d.Seconds(), Stats: s}
}

// GoodPongsPerSecond is the average rate of successful echoes.
func (r Report) GoodPongsPerSecond() uint64 {
	secs := uint64(r.Seconds)
	if secs == 0 {
		return r.Stats.SuccessfulReturns
	}
	return r.Stats.SuccessfulReturns / secs
}

// Render writes the report to w in format f.
func (r Report) Render(w io.Writer, f Format) error {
	switch f {
	case FormatJSON:
		data, err := json.MarshalIndent(r, "", "  ")
		if err != nil {
			return fmt.Errorf("encode json report: %w", err)
		}
		_, err = fmt.Fprintf(w, "%s\n", data)
		return err
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(r); err != nil {
			return fmt.Errorf("encode yaml report: %w", err)
		}
		return enc.Close()
	default:
		return r.renderText(w)
	}
}

func (r Report) renderText(w io.Writer) error {
	var b strings.Builder
	b.WriteString("BENCHMARK ENDED\n")
	if r.RunID != "" {
		fmt.Fprintf(&b, "Run %s against %s/%s (%s, %d threads, %d connections)\n",
			r.RunID, r.Target, r.Protocol, r.Backend, r.Threads, r.Connections)
	}
	fmt.Fprintf(&b, "Failed to connect in %d cases\n", r.Stats.FailedConnections)
	fmt.Fprintf(&b, "Wrong results have been given in %d cases\n", r.Stats.WrongReturns)
	fmt.Fprintf(&b, "Right results have been given in %d cases\n", r.Stats.SuccessfulReturns)
	fmt.Fprintf(&b, "Average good pongs per second: %d\n", r.GoodPongsPerSecond())
	if r.Stats.SendErrors+r.Stats.ReadErrors > 0 {
		fmt.Fprintf(&b, "Send errors: %d, read errors: %d\n", r.Stats.SendErrors, r.Stats.ReadErrors)
	}
	if r.Error != "" {
		fmt.Fprintf(&b, "Run truncated: %s\n", r.Error)
	}
	_, err := io.WriteString(w, b.String())
	return err
}
