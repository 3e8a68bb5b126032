// File: affinity/affinity.go
// Author: momentics <momentics@gmail.com>
//
// Platform-neutral API for CPU affinity. Platform-specific implementations are located
// in separate files (affinity_linux.go, affinity_stub.go) guarded by build tags.

package affinity

// SetAffinity pins the calling OS thread to a given logical CPU. The caller
// must hold runtime.LockOSThread, otherwise the pin applies to whatever
// goroutine runs on the thread next.
func SetAffinity(cpuID int) error {
	return setAffinityPlatform(cpuID)
}

// Allowed returns the CPUs the process may run on, in ascending order.
func Allowed() ([]int, error) {
	return allowedPlatform()
}

// ForWorker picks the CPU for worker id by spreading workers round-robin
// over the allowed set.
func ForWorker(id int) (int, error) {
	cpus, err := Allowed()
	if err != nil {
		return -1, err
	}
	return cpus[id%len(cpus)], nil
}
