//go:build linux

package affinity

import (
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllowedAndPin(t *testing.T) {
	cpus, err := Allowed()
	require.NoError(t, err)
	require.NotEmpty(t, cpus)
	for i := 1; i < len(cpus); i++ {
		assert.Less(t, cpus[i-1], cpus[i])
	}

	cpu, err := ForWorker(len(cpus))
	require.NoError(t, err)
	assert.Equal(t, cpus[0], cpu)

	// Left locked: the pinned thread is discarded with the test goroutine.
	runtime.LockOSThread()
	require.NoError(t, SetAffinity(cpus[0]))
	pinned, err := Allowed()
	require.NoError(t, err)
	assert.Equal(t, []int{cpus[0]}, pinned)
}
