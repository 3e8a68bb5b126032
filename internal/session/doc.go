// Package session
// Author: momentics <momentics@gmail.com>
//
// Per-connection echo state machines and the pool that owns them.
// Each Connection maps to one socket and cycles through
// socket -> connect -> send -> read forever, keeping at most one ring
// operation outstanding. The Pool owns the buffer arena, routes
// completions by user data (the connection index) and folds each
// transition's outcome into the worker's statistics.
//
// Nothing here is safe for concurrent use: a pool lives on exactly one
// worker thread together with its ring.

package session
