// File: internal/session/state.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package session

import "strings"

// State names the completion a connection is waiting for.
type State uint8

const (
	// StateNewSock has nothing outstanding; the next step creates a socket.
	StateNewSock State = iota
	// StateConnect waits for the socket creation result.
	StateConnect
	// StateSetup waits for a connect result.
	StateSetup
	// StateReceive waits for a send to finish.
	StateReceive
	// StateSend waits for the echoed bytes.
	StateSend
)

func (s State) String() string {
	switch s {
	case StateNewSock:
		return "new_sock"
	case StateConnect:
		return "connect"
	case StateSetup:
		return "setup"
	case StateReceive:
		return "receive"
	case StateSend:
		return "send"
	default:
		return "unknown"
	}
}

// Outcome is the set of statistics events produced by one transition.
type Outcome uint8

const (
	ConnectFailed Outcome = 1 << iota
	Matched
	Mismatched
	SendFailed
	ReadFailed
)

// Has reports whether every bit of o2 is set in o.
func (o Outcome) Has(o2 Outcome) bool { return o&o2 == o2 }

func (o Outcome) String() string {
	if o == 0 {
		return "none"
	}
	var parts []string
	for _, e := range []struct {
		bit  Outcome
		name string
	}{
		{ConnectFailed, "connect_failed"},
		{Matched, "matched"},
		{Mismatched, "mismatched"},
		{SendFailed, "send_failed"},
		{ReadFailed, "read_failed"},
	} {
		if o&e.bit != 0 {
			parts = append(parts, e.name)
		}
	}
	return strings.Join(parts, "|")
}
