//go:build !unix

// File: pool/arena_other.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package pool

func mapRegion(size int) ([]byte, error) {
	return make([]byte, size), nil
}

func unmapRegion([]byte) error { return nil }
