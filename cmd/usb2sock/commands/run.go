package commands

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/ardnew/usb2sock/bridge"
	"github.com/ardnew/usb2sock/config"
	"github.com/ardnew/usb2sock/fanout"
	"github.com/ardnew/usb2sock/metrics"
	"github.com/ardnew/usb2sock/pkg"
	"github.com/ardnew/usb2sock/pkg/prof"
	"github.com/ardnew/usb2sock/pkg/usbid"
	"github.com/ardnew/usb2sock/usb"
)

// runBridge serves until SIGINT or SIGTERM.
func runBridge(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	stopProfiling, err := startProfiling(cfg.Profiling)
	if err != nil {
		return err
	}
	defer stopProfiling()

	return serve(ctx, cfg, cmd.OutOrStdout())
}

// startProfiling starts the configured profilers and returns the function
// that stops them and writes the exit snapshots.
func startProfiling(cfg config.ProfilingConfig) (func(), error) {
	var stops []func()
	stopAll := func() {
		for i := len(stops) - 1; i >= 0; i-- {
			stops[i]()
		}
	}

	if cfg.CPUProfile != "" {
		if err := prof.StartCPU(cfg.CPUProfile); err != nil {
			return nil, fmt.Errorf("cpu profile: %w", err)
		}
		stops = append(stops, prof.StopCPU)
	}

	if cfg.HeapProfile != "" {
		path := cfg.HeapProfile
		stops = append(stops, func() {
			if err := prof.Write(prof.ProfileHeap, path); err != nil {
				pkg.LogWarn(pkg.ComponentBridge, "heap profile not written", "path", path, "error", err)
			}
		})
	}

	if cfg.Pyroscope.Enabled {
		stop, err := prof.StartContinuous(prof.ContinuousConfig{
			ServiceName:    "usb2sock",
			ServiceVersion: Version,
			Endpoint:       cfg.Pyroscope.Endpoint,
			ProfileTypes:   cfg.Pyroscope.ProfileTypes,
		})
		if err != nil {
			stopAll()
			return nil, err
		}
		stops = append(stops, func() {
			if err := stop(); err != nil {
				pkg.LogDebug(pkg.ComponentBridge, "pyroscope stop failed", "error", err)
			}
		})
		pkg.LogInfo(pkg.ComponentBridge, "continuous profiling enabled", "endpoint", cfg.Pyroscope.Endpoint)
	}

	return stopAll, nil
}

// serve opens the listener, optional metrics endpoint, and USB context,
// then runs the supervisor until ctx is done or a fatal error occurs.
func serve(ctx context.Context, cfg *config.Config, out io.Writer) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	ln, err := fanout.Listen(cfg.Listen, cfg.Backlog)
	if err != nil {
		return fmt.Errorf("listen %s: %w", cfg.Listen, err)
	}

	status := bridge.NewStatus(out, ln.Addr())

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		reg := prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		m = metrics.NewMetrics(reg)

		var mounts []func(*http.ServeMux)
		if cfg.Profiling.PProf {
			mounts = append(mounts, prof.Register)
		}
		ms, err := metrics.Listen(cfg.Metrics.Listen, reg, mounts...)
		if err != nil {
			ln.Close()
			return fmt.Errorf("metrics listen %s: %w", cfg.Metrics.Listen, err)
		}
		go func() {
			if err := ms.Serve(ctx); err != nil {
				pkg.LogWarn(pkg.ComponentMetrics, "metrics server stopped", pkg.ErrorAttrs(err)...)
			}
		}()
	}

	fan := fanout.NewServer(ln,
		fanout.WithCapacity(cfg.MaxClients),
		fanout.WithMetrics(m),
		fanout.WithJoinHook(status.Joined),
	)
	defer fan.Close()

	pkg.LogInfo(pkg.ComponentFanout, "listening", "listen", fan.Addr())

	tr, err := newTransport(cfg)
	if err != nil {
		return fmt.Errorf("usb backend %s: %w", cfg.USB.Backend, err)
	}
	defer tr.Close()

	options := []bridge.Option{
		bridge.WithMetrics(m),
		bridge.WithNames(loadNames()),
	}
	if cfg.Hotplug {
		hint, err := usb.NewHotplugHint(cfg.Identity())
		if err != nil {
			pkg.LogDebug(pkg.ComponentHotplug, "hotplug notifications unavailable, polling only",
				pkg.ErrorAttrs(err)...)
		} else {
			defer hint.Close()
			options = append(options, bridge.WithHint(hint))
		}
	}

	sup := bridge.NewSupervisor(tr, fan, status, cfg.BridgeOptions(), options...)
	err = sup.Run(ctx)

	// Leave the status line intact
	fmt.Fprintln(out)
	return err
}

// loadNames returns the USB ID database, or nil when none is installed.
func loadNames() *usbid.Database {
	db := usbid.New()
	if !db.Load() {
		pkg.LogDebug(pkg.ComponentUSB, "usb.ids not found, devices shown by id only")
		return nil
	}
	return db
}
