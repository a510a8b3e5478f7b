package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"google.golang.org/grpc"

	"github.com/signalsfoundry/mto-simulator/core"
	"github.com/signalsfoundry/mto-simulator/internal/config"
	"github.com/signalsfoundry/mto-simulator/internal/httpapi"
	"github.com/signalsfoundry/mto-simulator/internal/logging"
	"github.com/signalsfoundry/mto-simulator/internal/observability"
	"github.com/signalsfoundry/mto-simulator/internal/rpc"
	sim "github.com/signalsfoundry/mto-simulator/internal/sim/state"
	"github.com/signalsfoundry/mto-simulator/internal/storage"
	"github.com/signalsfoundry/mto-simulator/kb"
	"github.com/signalsfoundry/mto-simulator/timectrl"
)

func main() {
	configPath := flag.String("config", "", "Path to a YAML config file")
	envFile := flag.String("env-file", ".env", "Path to a .env file; missing files are ignored")
	flag.Parse()

	cfg, err := config.Load(*configPath, *envFile)
	if err != nil {
		logging.NewFromEnv().Error(context.Background(), "load config", logging.Err(err))
		os.Exit(1)
	}

	log := logging.New(cfg.Log)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, cfg, log, listeners{}); err != nil {
		log.Error(ctx, "server exited", logging.Err(err))
		os.Exit(1)
	}
}

// listeners lets tests hand in pre-bound sockets. Nil entries are bound
// from the configured addresses.
type listeners struct {
	grpc net.Listener
	http net.Listener
}

func run(ctx context.Context, cfg config.Config, log logging.Logger, lis listeners) (err error) {
	var cfs CleanupFuncs
	defer func() {
		if cerr := cfs.Cleanup(); cerr != nil {
			err = errors.Join(err, cerr)
		}
	}()

	shutdownTracing, err := observability.InitTracing(ctx, cfg.Tracing, log)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	cfs.Defer(func() error {
		observability.ShutdownWithTimeout(context.Background(), shutdownTracing, log)
		return nil
	})

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	apiMetrics, err := observability.NewAPICollector(reg)
	if err != nil {
		return fmt.Errorf("init api metrics: %w", err)
	}
	engineMetrics, err := observability.NewEngineCollector(reg)
	if err != nil {
		return fmt.Errorf("init engine metrics: %w", err)
	}

	levelName := "generated"
	opts := []sim.SessionOption{
		sim.WithMetricsRecorder(engineMetrics),
		sim.WithHistoryLimit(cfg.HistoryLimit),
	}
	if cfg.LevelPath != "" {
		lvl, err := loadLevel(cfg.LevelPath)
		if err != nil {
			return err
		}
		levelName = lvl.Name
		opts = append(opts, sim.WithLevel(lvl))
		log.Info(ctx, "loaded level", logging.String("path", cfg.LevelPath), logging.String("name", lvl.Name), logging.Int("orders", len(lvl.Orders)))
	}

	session, err := sim.NewSession(cfg.Session, kb.DefaultCatalog(), log, opts...)
	if err != nil {
		return fmt.Errorf("new session: %w", err)
	}

	var store *storage.SnapshotStore
	if cfg.SnapshotPath != "" {
		store = storage.NewSnapshotStore(cfg.SnapshotPath, log)
		restoreLatest(ctx, session, store, log)
	}

	if cfg.ArchivePath != "" {
		archive, err := storage.OpenArchive(ctx, cfg.ArchivePath)
		if err != nil {
			return fmt.Errorf("open archive: %w", err)
		}
		cfs.Defer(archive.Close)
		cfs.Defer(archiveOnCompletion(session, archive, levelName, log))
	}

	grpcServer := rpc.NewServer(session, log, apiMetrics)
	if lis.grpc == nil {
		if lis.grpc, err = net.Listen("tcp", cfg.Server.GRPCAddr); err != nil {
			return fmt.Errorf("listen grpc %s: %w", cfg.Server.GRPCAddr, err)
		}
	}
	errCh := make(chan error, 3)
	go serveGRPC(ctx, grpcServer, lis.grpc, log, errCh)
	cfs.Defer(func() error {
		stopGRPC(grpcServer, 5*time.Second)
		return nil
	})

	httpServer := httpapi.NewServer(httpapi.Config{
		Addr:        cfg.Server.HTTPAddr,
		ActionRate:  cfg.ActionRate,
		ActionBurst: cfg.ActionBurst,
	}, log, httpapi.Dependencies{Session: session, Collector: apiMetrics, Store: store})
	if lis.http == nil {
		if lis.http, err = net.Listen("tcp", cfg.Server.HTTPAddr); err != nil {
			return fmt.Errorf("listen http %s: %w", cfg.Server.HTTPAddr, err)
		}
	}
	go serveHTTP(ctx, "http api", httpServer, lis.http, log, errCh)
	cfs.Defer(shutdownHTTP(httpServer))

	if cfg.Server.MetricsAddr != "" {
		metricsSrv := metricsServer(cfg.Server.MetricsAddr, apiMetrics)
		go serveHTTP(ctx, "metrics", metricsSrv, nil, log, errCh)
		cfs.Defer(shutdownHTTP(metricsSrv))
	}

	mode := timectrl.RealTime
	if cfg.Accelerated {
		mode = timectrl.Accelerated
	}
	tc := timectrl.NewTimeController(cfg.TickInterval, mode)
	loopCtx, cancelLoop := context.WithCancel(ctx)
	loopDone := runSimLoop(loopCtx, tc, session, log)
	cfs.Defer(func() error {
		cancelLoop()
		<-loopDone
		return nil
	})

	if store != nil && cfg.SnapshotInterval > 0 {
		snapDone := runSnapshotLoop(loopCtx, session, store, cfg.SnapshotInterval, log)
		cfs.Defer(func() error {
			cancelLoop()
			<-snapDone
			_, err := store.Save(context.Background(), session.ID(), session.Snapshot())
			return err
		})
	}

	log.Info(ctx, "mto server started",
		logging.String("session_id", session.ID()),
		logging.String("grpc_addr", lis.grpc.Addr().String()),
		logging.String("http_addr", lis.http.Addr().String()),
	)

	select {
	case <-ctx.Done():
		log.Info(context.Background(), "shutting down mto server")
		return nil
	case err := <-errCh:
		return err
	}
}

func loadLevel(path string) (*core.Level, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open level: %w", err)
	}
	defer f.Close()
	lvl, err := core.LoadLevel(f)
	if err != nil {
		return nil, fmt.Errorf("load level %s: %w", path, err)
	}
	if lvl.Name == "" {
		lvl.Name = filepath.Base(path)
	}
	return lvl, nil
}

// restoreLatest resumes from the newest fresh snapshot, if any.
func restoreLatest(ctx context.Context, session *sim.Session, store *storage.SnapshotStore, log logging.Logger) {
	snap, err := store.Latest(ctx)
	switch {
	case errors.Is(err, storage.ErrSnapshotNotFound):
		return
	case err != nil:
		log.Warn(ctx, "skipping snapshot restore", logging.Err(err))
		return
	}
	if err := session.Restore(ctx, snap.GameState); err != nil {
		log.Warn(ctx, "snapshot restore failed", logging.Err(err))
		return
	}
	log.Info(ctx, "restored snapshot",
		logging.String("from_session", snap.SessionID),
		logging.String("saved_at", snap.Timestamp.Format(time.RFC3339)),
	)
}

func serveGRPC(ctx context.Context, srv *grpc.Server, lis net.Listener, log logging.Logger, errCh chan<- error) {
	log.Info(ctx, "serving gRPC", logging.String("addr", lis.Addr().String()))
	if err := srv.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		errCh <- fmt.Errorf("grpc server: %w", err)
	}
}

func serveHTTP(ctx context.Context, name string, srv *http.Server, lis net.Listener, log logging.Logger, errCh chan<- error) {
	var err error
	if lis != nil {
		log.Info(ctx, "serving "+name, logging.String("addr", lis.Addr().String()))
		err = srv.Serve(lis)
	} else {
		log.Info(ctx, "serving "+name, logging.String("addr", srv.Addr))
		err = srv.ListenAndServe()
	}
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		errCh <- fmt.Errorf("%s server: %w", name, err)
	}
}

// stopGRPC drains in-flight RPCs but cuts open WatchState streams once the
// grace period runs out.
func stopGRPC(srv *grpc.Server, grace time.Duration) {
	done := make(chan struct{})
	go func() {
		srv.GracefulStop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(grace):
		srv.Stop()
		<-done
	}
}

func shutdownHTTP(srv *http.Server) func() error {
	return func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(ctx)
	}
}

func metricsServer(addr string, collector *observability.APICollector) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", collector.Handler())
	return &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 3 * time.Second,
	}
}
