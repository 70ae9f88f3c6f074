// Command telemetryd runs the navcore ingestion and inference pipeline:
// sensor fusion, position estimation, the device store, and proximity/
// speed alerting. It wires the core components together, runs the
// periodic background tasks (pruning, snapshot persistence, dedup
// sweeps), and serves the reference HTTP/WebSocket adapter in
// adapter.go — a thin, illustrative transport, not a specified contract
// (see SPEC_FULL.md §6).
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/trailmesh/navcore/pkg/alerts"
	"github.com/trailmesh/navcore/pkg/config"
	"github.com/trailmesh/navcore/pkg/devicestore"
	"github.com/trailmesh/navcore/pkg/dispatch"
	"github.com/trailmesh/navcore/pkg/geo"
	"github.com/trailmesh/navcore/pkg/logx"
	"github.com/trailmesh/navcore/pkg/metrics"
	"github.com/trailmesh/navcore/pkg/mqtt"
	"github.com/trailmesh/navcore/pkg/pidfile"
	"github.com/trailmesh/navcore/pkg/positioning"
	"github.com/trailmesh/navcore/pkg/proximity"
	"github.com/trailmesh/navcore/pkg/scheduler"
)

var (
	pidPath     = flag.String("pid-file", "/tmp/telemetryd.pid", "Path to PID file")
	logLevel    = flag.String("log-level", "info", "Log level (debug|info|warn|error|trace)")
	metricsAddr = flag.String("metrics-addr", "", "Address to serve /metrics on (empty disables the metrics listener)")
	version     = flag.Bool("version", false, "Show version information")
	force       = flag.Bool("force", false, "Force start by removing a stale PID file")
)

const (
	appName    = "telemetryd"
	appVersion = "1.0.0"
)

func main() {
	flag.Parse()

	if *version {
		fmt.Printf("%s version %s\n", appName, appVersion)
		os.Exit(0)
	}

	logger := logx.NewLogger(*logLevel, appName)

	pf := pidfile.New(*pidPath)
	running, existingPID, err := pf.CheckRunning()
	if err != nil {
		logger.Error("failed to check for a running instance", "error", err.Error())
		os.Exit(1)
	}
	if running {
		if !*force {
			logger.Error("another instance is already running", "existing_pid", existingPID, "pid_file", *pidPath)
			fmt.Fprintf(os.Stderr, "Error: %s is already running with PID %d\n", appName, existingPID)
			os.Exit(1)
		}
		logger.Warn("another instance appears to be running, but --force was given", "existing_pid", existingPID)
		if err := pf.ForceRemove(); err != nil {
			logger.Error("failed to remove stale PID file", "error", err.Error())
			os.Exit(1)
		}
	}
	if err := pf.Create(); err != nil {
		logger.Error("failed to create PID file", "error", err.Error(), "path", *pidPath)
		os.Exit(1)
	}
	defer func() {
		if err := pf.Remove(); err != nil {
			logger.Error("failed to remove PID file", "error", err.Error())
		}
	}()

	logger.Info("starting navcore telemetry daemon", "version", appVersion, "pid", os.Getpid())

	cfg := config.Load()

	store := devicestore.New(logger)
	if err := store.Load(cfg.SnapshotPath); err != nil {
		logger.Warn("snapshot load failed, starting with an empty store", "path", cfg.SnapshotPath, "error", err.Error())
	}

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	assist := geo.NewGoogleAssist(cfg.GoogleMapsAPIKey, logger)
	positioner := positioning.New(store, cfg, assist, logger)
	scanner := proximity.New(cfg)
	dedup := alerts.NewDedup(cfg.DedupWindow)
	builder := alerts.NewBuilder(dedup, cfg.MaxSafeSpeedMps)

	hub := newWSHub(logger)
	sinks := []dispatch.EventSink{dispatch.NewLogSink(logger), hub}

	mqttCfg := mqtt.LoadConfig()
	var mqttClient *mqtt.Client
	if mqttCfg.Enabled {
		mqttClient = mqtt.NewClient(mqttCfg, logger)
		if err := mqttClient.Connect(); err != nil {
			logger.Error("failed to connect to mqtt broker", "error", err.Error())
			mqttClient = nil
		} else {
			defer mqttClient.Disconnect()
			sinks = append(sinks, mqttClient)
		}
	}

	sink := dispatch.NewMultiSink(sinks...)
	dispatcher := dispatch.New(store, positioner, scanner, builder, sink, cfg, logger)

	sched := scheduler.New(logger)
	sched.Register(scheduler.Task{
		Name:     "prune",
		Interval: cfg.PruneInterval,
		Run: func(ctx context.Context) {
			dispatcher.Prune(cfg.DeviceTTL)
		},
	})
	sched.Register(scheduler.Task{
		Name:     "persist",
		Interval: cfg.PersistInterval,
		Run: func(ctx context.Context) {
			store.SaveBestEffort(cfg.SnapshotPath)
		},
	})
	sched.Register(scheduler.Task{
		Name:     "dedup-sweep",
		Interval: cfg.DedupSweepInterval,
		Run: func(ctx context.Context) {
			evicted := dedup.Sweep()
			if evicted > 0 {
				logger.Debug("dedup sweep evicted stale entries", "count", evicted)
			}
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	schedErrCh := make(chan error, 1)
	go func() { schedErrCh <- sched.Run(ctx) }()

	var metricsSrv *http.Server
	if *metricsAddr != "" {
		metricsMux := http.NewServeMux()
		metricsMux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		metricsSrv = &http.Server{Addr: *metricsAddr, Handler: metricsMux}
		go func() {
			logger.Info("metrics listener starting", "addr", *metricsAddr)
			if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("metrics listener failed", "error", err.Error())
			}
		}()
	}

	router := newRouter(dispatcher, logger)
	adapterAddr := fmt.Sprintf(":%d", cfg.Port)
	adapterSrv := &http.Server{Addr: adapterAddr, Handler: router}
	go func() {
		logger.Info("ingest/status adapter listening", "addr", adapterAddr)
		if err := adapterSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("ingest/status adapter failed", "error", err.Error())
		}
	}()

	reportStoreSize(store, m)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	sig := <-sigChan
	logger.Info("received shutdown signal", "signal", sig.String())

	cancel()

	shutdownHTTPCtx, shutdownHTTPCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownHTTPCancel()
	if err := adapterSrv.Shutdown(shutdownHTTPCtx); err != nil {
		logger.Warn("ingest/status adapter shutdown error", "error", err.Error())
	}

	if metricsSrv != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("metrics listener shutdown error", "error", err.Error())
		}
	}

	store.SaveBestEffort(cfg.SnapshotPath)

	select {
	case <-schedErrCh:
	case <-time.After(5 * time.Second):
		logger.Warn("scheduler did not stop within the shutdown grace period")
	}

	logger.Info("shutdown complete")
}

func reportStoreSize(store *devicestore.Store, m *metrics.Metrics) {
	sum := store.GetSummary()
	m.DevicesActive.Set(float64(sum.TotalDevices))
	m.BaseStations.Set(float64(sum.BaseStations))
}
