// Package control
// Author: momentics <momentics@gmail.com>
//
// Run configuration, result export and debug introspection for
// hioload-burn:
//   - Settings with defaults, viper loading and validation
//   - Prometheus textfile export of the merged statistics
//   - Debug probes describing the host and its io_uring support
package control
