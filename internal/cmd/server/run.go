package serverrun

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pulsegrid/pulsegrid/internal/aggregate"
	"github.com/pulsegrid/pulsegrid/internal/bus"
	"github.com/pulsegrid/pulsegrid/internal/config"
	"github.com/pulsegrid/pulsegrid/internal/fanout"
	"github.com/pulsegrid/pulsegrid/internal/gateway"
	"github.com/pulsegrid/pulsegrid/internal/observability"
	"github.com/pulsegrid/pulsegrid/internal/runtime"
	wsserver "github.com/pulsegrid/pulsegrid/internal/server/ws"
	pebblestore "github.com/pulsegrid/pulsegrid/internal/storage/pebble"
	"github.com/pulsegrid/pulsegrid/internal/worker"
	logpkg "github.com/pulsegrid/pulsegrid/pkg/log"
)

func buildLogger(cfg config.LogConfig) logpkg.Logger {
	logger, err := logpkg.ApplyConfig(&logpkg.Config{Level: cfg.Level, Format: cfg.Format})
	if err != nil {
		lvl := logpkg.InfoLevel
		if l, e := logpkg.ParseLevel(cfg.Level); e == nil {
			lvl = l
		}
		logger = logpkg.NewLogger(logpkg.WithLevel(lvl), logpkg.WithFormatter(&logpkg.TextFormatter{}))
	}
	return logger
}

// RunDurable starts the durable-queue pipeline (HTTP gateway, worker pool,
// dashboard WebSocket server, retention trimmer) and blocks until ctx is
// cancelled or a termination signal arrives.
func RunDurable(ctx context.Context, cfg config.Config) error {
	// Layer a local signal context over the provided one so callers without
	// signal-aware contexts still shut down cleanly.
	sctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := buildLogger(cfg.Log)
	logpkg.RedirectStdLog(logger)

	if cfg.DataDir == "" {
		cfg.DataDir = config.DefaultDataDir()
	}
	fsync, err := pebblestore.ParseFsyncMode(cfg.Fsync)
	if err != nil {
		return err
	}
	metrics := observability.New()
	rt, err := runtime.Open(runtime.Options{
		DataDir:       filepath.Join(cfg.DataDir, "store"),
		Fsync:         fsync,
		FsyncInterval: cfg.FsyncInterval(),
		Metrics:       metrics,
		Stream:        cfg.Stream,
		ClaimTimeout:  cfg.ClaimTimeout(),
	})
	if err != nil {
		return err
	}
	defer rt.Close()

	logger.Info("Starting PulseGrid durable pipeline",
		logpkg.Str("http", cfg.HTTPAddr),
		logpkg.Str("ws", cfg.WSAddr),
		logpkg.Str("data_dir", cfg.DataDir),
		logpkg.Str("stream", cfg.Stream),
		logpkg.Int("workers", cfg.Workers),
		logpkg.Str("fsync", cfg.Fsync))

	b := bus.New(logger)
	hub := fanout.NewHub(logger)
	gw := gateway.New(logger, rt.Log(), b, metrics)
	dash := wsserver.NewDashboardServer(logger, hub, rt.Cache(), b, metrics)
	pool := worker.NewPool(logger, rt.Groups(), rt.Cache(), b, metrics, worker.Options{
		Group:     cfg.ConsumerGroup,
		Size:      cfg.Workers,
		PollBatch: cfg.PollBatch,
		PollBlock: cfg.PollBlock(),
	})

	httpSrv := &http.Server{Addr: cfg.HTTPAddr, Handler: gw.Handler()}
	wsSrv := &http.Server{Addr: cfg.WSAddr, Handler: dash.Handler()}

	// Pipeline goroutines outlive the signal so servers can drain first.
	pipeCtx, stopPipeline := context.WithCancel(context.Background())
	defer stopPipeline()

	var wg sync.WaitGroup
	serve := func(name string, srv *http.Server) {
		defer wg.Done()
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", logpkg.Str("server", name), logpkg.Err(err))
			stop()
		}
	}
	wg.Add(2)
	go serve("gateway", httpSrv)
	go serve("dashboard", wsSrv)

	wg.Add(3)
	go func() { defer wg.Done(); pool.Run(pipeCtx) }()
	go func() { defer wg.Done(); dash.RunBroadcast(pipeCtx) }()
	go func() { defer wg.Done(); hub.RunHeartbeat(pipeCtx, cfg.HeartbeatInterval()) }()

	wg.Add(1)
	go func() {
		defer wg.Done()
		runTrimmer(pipeCtx, logger, rt, cfg)
	}()

	<-sctx.Done()
	logger.Info("Shutting down durable pipeline")

	shutCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout())
	defer cancel()
	_ = httpSrv.Shutdown(shutCtx)
	_ = wsSrv.Shutdown(shutCtx)
	hub.CloseAll()
	stopPipeline()
	wg.Wait()
	b.Close()
	return nil
}

// runTrimmer enforces the log's retention bounds on a fixed cadence.
func runTrimmer(ctx context.Context, logger logpkg.Logger, rt *runtime.Runtime, cfg config.Config) {
	interval := cfg.TrimInterval()
	if interval <= 0 {
		interval = time.Minute
	}
	trimLogger := logger.WithComponent("trimmer")
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if cfg.RetainMaxAgeMs > 0 {
				cutoff := time.Now().UnixMilli() - cfg.RetainMaxAgeMs
				if n, _, err := rt.Log().TrimOlderThan(ctx, cutoff, 512, 0); err != nil {
					trimLogger.Warn("age trim failed", logpkg.Err(err))
				} else if n > 0 {
					trimLogger.Debug("trimmed by age", logpkg.Int("entries", n))
				}
			}
			if cfg.RetainMaxBytes > 0 {
				if n, err := rt.Log().TrimToMaxBytes(ctx, cfg.RetainMaxBytes, 512, 0); err != nil {
					trimLogger.Warn("size trim failed", logpkg.Err(err))
				} else if n > 0 {
					trimLogger.Debug("trimmed by size", logpkg.Int("entries", n))
				}
			}
		}
	}
}

// RunDirect starts the direct-aggregation pipeline (single WebSocket router
// with in-memory aggregation) and blocks until shutdown.
func RunDirect(ctx context.Context, cfg config.Config) error {
	sctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := buildLogger(cfg.Log)
	logpkg.RedirectStdLog(logger)

	metrics := observability.New()
	hub := fanout.NewHub(logger)
	agg := aggregate.New(aggregate.Options{
		BaseWindow:  cfg.WindowBase(),
		Multipliers: cfg.WindowMultipliers,
		Capacity:    cfg.BufferCapacity,
	})
	router := wsserver.NewRouterServer(logger, hub, agg, metrics)

	logger.Info("Starting PulseGrid direct pipeline",
		logpkg.Str("addr", cfg.DirectAddr),
		logpkg.Int("buffer_capacity", cfg.BufferCapacity),
		logpkg.Int("window_base_ms", cfg.WindowBaseMs))

	mux := http.NewServeMux()
	mux.Handle("/ws", router.Handler())
	mux.Handle("/metrics", promhttp.HandlerFor(metrics.Registry(), promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	srv := &http.Server{Addr: cfg.DirectAddr, Handler: mux}

	pipeCtx, stopPipeline := context.WithCancel(context.Background())
	defer stopPipeline()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", logpkg.Err(err))
			stop()
		}
	}()
	wg.Add(1)
	go func() { defer wg.Done(); hub.RunHeartbeat(pipeCtx, cfg.HeartbeatInterval()) }()

	<-sctx.Done()
	logger.Info("Shutting down direct pipeline")

	shutCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout())
	defer cancel()
	_ = srv.Shutdown(shutCtx)
	hub.CloseAll()
	stopPipeline()
	wg.Wait()
	return nil
}
