// control/debug.go
// Author: momentics <momentics@gmail.com>
//
// Debug probe registry. With --debug the CLI dumps the settings and every
// probe before the burn starts.

package control

import (
	"runtime"
	"sort"
	"sync"

	"github.com/shirou/gopsutil/v3/mem"
)

// DebugProbes holds registered probe functions.
type DebugProbes struct {
	mu     sync.RWMutex
	probes map[string]func() any
}

// NewDebugProbes creates a probe registry.
func NewDebugProbes() *DebugProbes {
	return &DebugProbes{
		probes: make(map[string]func() any),
	}
}

// RegisterProbe inserts a named debug hook.
func (dp *DebugProbes) RegisterProbe(name string, fn func() any) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	dp.probes[name] = fn
}

// Names returns the registered probe names in order.
func (dp *DebugProbes) Names() []string {
	dp.mu.RLock()
	defer dp.mu.RUnlock()
	names := make([]string, 0, len(dp.probes))
	for k := range dp.probes {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// DumpState returns output of all probes.
func (dp *DebugProbes) DumpState() map[string]any {
	dp.mu.RLock()
	defer dp.mu.RUnlock()
	out := make(map[string]any)
	for k, fn := range dp.probes {
		out[k] = fn()
	}
	return out
}

// RegisterHostProbes adds probes common to every platform.
func RegisterHostProbes(dp *DebugProbes) {
	dp.RegisterProbe("host.goos", func() any { return runtime.GOOS + "/" + runtime.GOARCH })
	dp.RegisterProbe("host.cpus", func() any { return DefaultThreads() })
	dp.RegisterProbe("host.mem_available", func() any {
		vm, err := mem.VirtualMemory()
		if err != nil {
			return err.Error()
		}
		return vm.Available
	})
	registerPlatformProbes(dp)
}

// MemoryHeadroom reports whether the arenas of all workers fit into the
// memory currently available. ok is true when the check cannot be made.
func MemoryHeadroom(s Settings) (need, avail uint64, ok bool) {
	need = s.ArenaBytes() * uint64(s.Threads)
	vm, err := mem.VirtualMemory()
	if err != nil {
		return need, 0, true
	}
	return need, vm.Available, need <= vm.Available
}
