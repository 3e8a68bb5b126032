// File: cmd/hioload-burn/main.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// hioload-burn drives concurrent echo cycles against a target and reports
// how many came back intact.

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/momentics/hioload-burn/control"
	"github.com/momentics/hioload-burn/internal/logger"
	"github.com/momentics/hioload-burn/stats"
	"github.com/momentics/hioload-burn/worker"
)

var version = "0.1.0"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	v := control.NewViper()
	var configFile string

	root := &cobra.Command{
		Use:   "hioload-burn [target ip:port]",
		Short: "io_uring echo load generator",
		Long: `hioload-burn opens many connections to an echo service, sends random
payloads and checks that every byte comes back. Each worker thread drives
its connections through one io_uring instance (epoll where io_uring is
unavailable).

Example:
  hioload-burn -c 4096 -t 8 -b 30s -p tcp 10.0.0.5:6664`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				v.Set(control.KeyTarget, args[0])
			}
			if configFile != "" {
				v.SetConfigFile(configFile)
				if err := v.ReadInConfig(); err != nil {
					return fmt.Errorf("read config %s: %w", configFile, err)
				}
			}
			return runBurn(cmd, v)
		},
	}

	d := control.DefaultSettings()
	f := root.Flags()
	f.IntP(control.KeyConnections, "c", d.Connections, "Total number of connections across all threads")
	f.StringP(control.KeyDuration, "b", d.Duration.String(), "How long to burn the target, in seconds or as a duration (250ms)")
	f.IntP(control.KeyThreads, "t", d.Threads, "Worker threads, one ring each")
	f.StringP(control.KeyProtocol, "p", d.Protocol.String(), "Protocol: udp or tcp")
	f.String(control.KeyBackend, d.Backend.String(), "Ring backend: auto, uring or epoll")
	f.Bool(control.KeyDirect, d.Direct, "Use ring-managed (direct) socket descriptors when supported")
	f.Bool(control.KeyPin, d.Pin, "Pin each worker thread to its own CPU")
	f.Bool(control.KeyDebug, d.Debug, "Print settings and host probes before the burn")
	f.String(control.KeyLogLevel, d.LogLevel, "Log level (debug, info, warn, error)")
	f.String(control.KeyLogFormat, d.LogFormat, "Log encoding (console, json)")
	f.String(control.KeyReport, string(d.Report), "Report format (text, json, yaml)")
	f.String(control.KeyMetricsFile, "", "Write Prometheus metrics to this textfile")
	f.Uint64(control.KeySeed, 0, "Base seed for payload generators")
	f.StringVar(&configFile, "config", "", "Optional YAML config file")
	if err := v.BindPFlags(f); err != nil {
		panic(err)
	}

	root.AddCommand(newVersionCmd(), newProbeCmd())
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "hioload-burn v%s\n", version)
			fmt.Fprintf(out, "Go version: %s\n", runtime.Version())
			fmt.Fprintf(out, "OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	}
}

func newProbeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "probe",
		Short: "Describe the host and its io_uring support",
		RunE: func(cmd *cobra.Command, args []string) error {
			return dumpProbes(cmd)
		},
	}
}

func dumpProbes(cmd *cobra.Command) error {
	dp := control.NewDebugProbes()
	control.RegisterHostProbes(dp)
	enc := yaml.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent(2)
	if err := enc.Encode(map[string]any{"probes": dp.DumpState()}); err != nil {
		return err
	}
	return enc.Close()
}

func runBurn(cmd *cobra.Command, v *viper.Viper) error {
	s, err := control.Load(v)
	if err != nil {
		return err
	}

	logCfg := logger.DefaultConfig()
	logCfg.Level = s.LogLevel
	logCfg.Encoding = s.LogFormat
	logCfg.Development = s.Debug
	if err := logger.Init(logCfg); err != nil {
		return err
	}
	defer logger.Sync()

	runID := uuid.NewString()
	log := logger.Get().With(zap.String("run_id", runID))

	if s.Debug {
		enc := yaml.NewEncoder(cmd.ErrOrStderr())
		enc.SetIndent(2)
		_ = enc.Encode(map[string]any{"settings": s})
		_ = enc.Close()
		dp := control.NewDebugProbes()
		control.RegisterHostProbes(dp)
		state := dp.DumpState()
		for _, name := range dp.Names() {
			log.Debug("probe", zap.String("name", name), zap.Any("value", state[name]))
		}
	}
	if need, avail, ok := control.MemoryHeadroom(s); !ok {
		log.Warn("buffer arenas exceed available memory",
			zap.Uint64("need_bytes", need), zap.Uint64("available_bytes", avail))
	}

	log.Info("burn started",
		zap.Stringer("target", s.Target),
		zap.Stringer("proto", s.Protocol),
		zap.Int("connections", s.Connections),
		zap.Int("threads", s.Threads),
		zap.Duration("burn", s.Duration),
		zap.Stringer("backend", s.Backend))

	sum, burnErr := worker.Burn(cmd.Context(), s, log)
	log.Info("burn finished", zap.Duration("elapsed", sum.Elapsed), zap.Error(burnErr))

	report := stats.NewReport(runID, s.Duration, sum.Total)
	report.Target = s.Target.String()
	report.Protocol = s.Protocol.String()
	report.Backend = s.Backend.String()
	report.Threads = s.Threads
	report.Connections = s.Connections
	if burnErr != nil {
		report.Error = burnErr.Error()
	}
	if err := report.Render(cmd.OutOrStdout(), s.Report); err != nil {
		return err
	}

	if s.MetricsFile != "" {
		exp := control.NewExporter(runID, s)
		for _, r := range sum.Workers {
			exp.ObserveWorker(r.ID, r.Stats, r.Err)
		}
		exp.ObserveReport(report)
		if err := exp.WriteToTextfile(s.MetricsFile); err != nil {
			log.Error("metrics export failed", zap.Error(err))
		}
	}
	return burnErr
}
