// Package pool
// Author: momentics <momentics@gmail.com>
//
// Memory layer for hioload-burn workers.
// Arena maps one page-aligned region per worker and hands every connection
// a fixed send/receive Slot inside it. See arena.go.
package pool
