// control/config.go
// Author: momentics <momentics@gmail.com>
//
// Benchmark settings: defaults, loading from viper (flags, environment,
// optional config file) and validation.

package control

import (
	"fmt"
	"net/netip"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/spf13/viper"

	"github.com/momentics/hioload-burn/api"
	"github.com/momentics/hioload-burn/internal/uring"
	"github.com/momentics/hioload-burn/stats"
)

const (
	// QueueDepth is the submission queue size of every worker ring.
	QueueDepth = 512
	// BufferSize is the per-direction buffer size of every connection.
	BufferSize = 4096

	// EnvPrefix prefixes environment overrides, e.g. HIOLOAD_BURN_THREADS.
	EnvPrefix = "HIOLOAD_BURN"

	DefaultTarget      = "127.0.0.1:6664"
	DefaultConnections = 1024
	DefaultDuration    = 10 * time.Second

	// MinDuration is the shortest burn the deadline timer is armed for.
	MinDuration = time.Millisecond
	// MaxConnectionsPerThread keeps 4 completions per connection plus the
	// deadline inside the largest completion queue the kernel allocates.
	MaxConnectionsPerThread = (uring.MaxCQEntries - 2) / 4
)

// Viper keys.
const (
	KeyTarget      = "target"
	KeyProtocol    = "proto"
	KeyConnections = "connections"
	KeyThreads     = "threads"
	KeyDuration    = "burn"
	KeyBackend     = "backend"
	KeyDirect      = "direct"
	KeyPin         = "pin"
	KeyDebug       = "debug"
	KeyLogLevel    = "log-level"
	KeyLogFormat   = "log-format"
	KeyReport      = "report"
	KeyMetricsFile = "metrics-file"
	KeySeed        = "seed"
)

// Settings is the validated benchmark configuration.
type Settings struct {
	Target      netip.AddrPort `json:"target" yaml:"target"`
	Protocol    api.Protocol   `json:"protocol" yaml:"protocol"`
	Connections int            `json:"connections" yaml:"connections"`
	Threads     int            `json:"threads" yaml:"threads"`
	Duration    time.Duration  `json:"duration" yaml:"duration"`
	Backend     api.Backend    `json:"backend" yaml:"backend"`
	Direct      bool           `json:"direct" yaml:"direct"`
	Pin         bool           `json:"pin" yaml:"pin"`
	Debug       bool           `json:"debug" yaml:"debug"`
	LogLevel    string         `json:"log_level" yaml:"log_level"`
	LogFormat   string         `json:"log_format" yaml:"log_format"`
	Report      stats.Format   `json:"report" yaml:"report"`
	MetricsFile string         `json:"metrics_file,omitempty" yaml:"metrics_file,omitempty"`
	SeedBase    uint64         `json:"seed" yaml:"seed"`
}

// DefaultThreads returns the logical CPU count.
func DefaultThreads() int {
	if n, err := cpu.Counts(true); err == nil && n > 0 {
		return n
	}
	return runtime.NumCPU()
}

// DefaultSettings returns the settings used when nothing is overridden.
func DefaultSettings() Settings {
	return Settings{
		Target:      netip.MustParseAddrPort(DefaultTarget),
		Protocol:    api.ProtocolUDP,
		Connections: DefaultConnections,
		Threads:     DefaultThreads(),
		Duration:    DefaultDuration,
		Backend:     api.BackendAuto,
		Direct:      true,
		LogLevel:    "info",
		LogFormat:   "console",
		Report:      stats.FormatText,
	}
}

// SetDefaults registers DefaultSettings with v.
func SetDefaults(v *viper.Viper) {
	d := DefaultSettings()
	v.SetDefault(KeyTarget, d.Target.String())
	v.SetDefault(KeyProtocol, d.Protocol.String())
	v.SetDefault(KeyConnections, d.Connections)
	v.SetDefault(KeyThreads, d.Threads)
	v.SetDefault(KeyDuration, d.Duration.String())
	v.SetDefault(KeyBackend, d.Backend.String())
	v.SetDefault(KeyDirect, d.Direct)
	v.SetDefault(KeyPin, d.Pin)
	v.SetDefault(KeyDebug, d.Debug)
	v.SetDefault(KeyLogLevel, d.LogLevel)
	v.SetDefault(KeyLogFormat, d.LogFormat)
	v.SetDefault(KeyReport, string(d.Report))
	v.SetDefault(KeyMetricsFile, "")
	v.SetDefault(KeySeed, uint64(0))
}

// NewViper returns a viper instance with defaults and environment binding.
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	SetDefaults(v)
	return v
}

// Load reads settings from v and validates them.
func Load(v *viper.Viper) (Settings, error) {
	var s Settings
	var err error

	target := strings.TrimSpace(v.GetString(KeyTarget))
	if s.Target, err = ParseTarget(target); err != nil {
		return Settings{}, err
	}
	if s.Protocol, err = api.ParseProtocol(v.GetString(KeyProtocol)); err != nil {
		return Settings{}, err
	}
	if s.Backend, err = api.ParseBackend(v.GetString(KeyBackend)); err != nil {
		return Settings{}, err
	}
	if s.Report, err = stats.ParseFormat(v.GetString(KeyReport)); err != nil {
		return Settings{}, err
	}
	if s.Duration, err = ParseDuration(v.GetString(KeyDuration)); err != nil {
		return Settings{}, err
	}
	s.Connections = v.GetInt(KeyConnections)
	s.Threads = v.GetInt(KeyThreads)
	s.Direct = v.GetBool(KeyDirect)
	s.Pin = v.GetBool(KeyPin)
	s.Debug = v.GetBool(KeyDebug)
	s.LogLevel = v.GetString(KeyLogLevel)
	s.LogFormat = v.GetString(KeyLogFormat)
	s.MetricsFile = v.GetString(KeyMetricsFile)
	s.SeedBase = v.GetUint64(KeySeed)

	if err := s.Validate(); err != nil {
		return Settings{}, err
	}
	return s, nil
}

// ParseTarget accepts "host:port" with a literal IPv4 or IPv6 address.
// A bare address gets the default port.
func ParseTarget(s string) (netip.AddrPort, error) {
	if ap, err := netip.ParseAddrPort(s); err == nil {
		return ap, nil
	}
	if addr, err := netip.ParseAddr(strings.Trim(s, "[]")); err == nil {
		def := netip.MustParseAddrPort(DefaultTarget)
		return netip.AddrPortFrom(addr, def.Port()), nil
	}
	return netip.AddrPort{}, api.Wrap(api.ErrInvalidArgument, api.ErrCodeInvalidArgument,
		fmt.Sprintf("target %q is not an ip:port", s))
}

// ParseDuration reads a burn duration. A bare integer counts whole seconds;
// anything else must be a Go duration such as "250ms" or "1m30s".
func ParseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if secs, err := strconv.ParseUint(s, 10, 32); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, api.Wrap(api.ErrInvalidArgument, api.ErrCodeInvalidArgument,
			fmt.Sprintf("burn duration %q is neither seconds nor a duration", s))
	}
	return d, nil
}

// Validate rejects settings no worker could run with.
func (s Settings) Validate() error {
	invalid := func(msg string) error {
		return api.Wrap(api.ErrInvalidArgument, api.ErrCodeInvalidArgument, msg)
	}
	switch {
	case !s.Target.IsValid() || s.Target.Port() == 0:
		return invalid("target must be a valid ip:port")
	case s.Connections <= 0:
		return invalid("connections must be positive")
	case s.Threads <= 0:
		return invalid("threads must be positive")
	case s.Duration < MinDuration:
		return invalid(fmt.Sprintf("burn duration must be at least %s", MinDuration))
	case s.ConnectionsPerThread() > MaxConnectionsPerThread:
		return invalid(fmt.Sprintf("at most %d connections per thread", MaxConnectionsPerThread))
	}
	return nil
}

// ConnectionsPerThread spreads the connections over the workers, rounding
// up so that every requested connection is opened.
func (s Settings) ConnectionsPerThread() int {
	return (s.Connections + s.Threads - 1) / s.Threads
}

// ArenaBytes is the buffer memory every worker maps.
func (s Settings) ArenaBytes() uint64 {
	return uint64(s.ConnectionsPerThread()) * 2 * BufferSize
}
