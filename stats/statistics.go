// File: stats/statistics.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Per-worker benchmark counters. A Statistics value is owned by exactly one
// worker thread while it runs and is only merged after that worker exits.

package stats

// Statistics accumulates the outcome of echo cycles.
type Statistics struct {
	FailedConnections uint64 `json:"failed_connections" yaml:"failed_connections"`
	WrongReturns      uint64 `json:"wrong_return" yaml:"wrong_return"`
	SuccessfulReturns uint64 `json:"successful_returns" yaml:"successful_returns"`

	SendErrors  uint64 `json:"send_errors" yaml:"send_errors"`
	ReadErrors  uint64 `json:"read_errors" yaml:"read_errors"`
	Batches     uint64 `json:"batches" yaml:"batches"`
	Completions uint64 `json:"completions" yaml:"completions"`
}

// Merge folds other into s. Merge is commutative and associative.
func (s *Statistics) Merge(other Statistics) {
	s.FailedConnections += other.FailedConnections
	s.WrongReturns += other.WrongReturns
	s.SuccessfulReturns += other.SuccessfulReturns
	s.SendErrors += other.SendErrors
	s.ReadErrors += other.ReadErrors
	s.Batches += other.Batches
	s.Completions += other.Completions
}

// IncrementConnectFail records one refused or failed connect attempt.
func (s *Statistics) IncrementConnectFail() { s.FailedConnections++ }

// IncrementWrongReturns records one echo whose payload did not match.
func (s *Statistics) IncrementWrongReturns() { s.WrongReturns++ }

// IncrementSuccessfulReturns records one byte-identical echo.
func (s *Statistics) IncrementSuccessfulReturns() { s.SuccessfulReturns++ }

// MergeAll merges a set of per-worker results in order.
func MergeAll(all ...Statistics) Statistics {
	var out Statistics
	for _, s := range all {
		out.Merge(s)
	}
	return out
}
