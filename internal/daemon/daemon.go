package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/tabdulradi/pan-tut/internal/build"
	"github.com/tabdulradi/pan-tut/internal/config"
	"github.com/tabdulradi/pan-tut/internal/metrics"
)

// buildStatus tracks the latest build result for the status endpoint.
type buildStatus struct {
	mu           sync.RWMutex
	lastError    error
	lastBuildID  string
	hasGoodBuild bool
}

func (bs *buildStatus) setResult(buildID string, err error) {
	bs.mu.Lock()
	defer bs.mu.Unlock()
	bs.lastBuildID = buildID
	bs.lastError = err
	if err == nil {
		bs.hasGoodBuild = true
	}
}

func (bs *buildStatus) snapshot() (buildID string, lastErr error, hasGoodBuild bool) {
	bs.mu.RLock()
	defer bs.mu.RUnlock()
	return bs.lastBuildID, bs.lastError, bs.hasGoodBuild
}

// Daemon runs the build pipeline continuously: an initial build, rebuilds on
// debounced source changes, optional periodic rebuilds, and a preview HTTP
// server over the produced artifacts.
type Daemon struct {
	cfg       *config.Config
	pipeline  *build.Pipeline
	watcher   *SourceWatcher
	scheduler *Scheduler
	server    *http.Server
	registry  *prom.Registry
	status    buildStatus
	startTime time.Time

	rebuilds chan struct{}
	wg       sync.WaitGroup
}

// New creates a daemon around a configured pipeline. The pipeline gains a
// Prometheus recorder bound to the daemon's registry.
func New(cfg *config.Config, pipeline *build.Pipeline) (*Daemon, error) {
	watcher, err := NewSourceWatcher(cfg.Source.Directory, cfg.Watch.Debounce)
	if err != nil {
		return nil, err
	}

	registry := prom.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	pipeline.WithRecorder(metrics.NewPrometheusRecorder(registry))

	d := &Daemon{
		cfg:      cfg,
		pipeline: pipeline,
		watcher:  watcher,
		registry: registry,
		rebuilds: make(chan struct{}, 1),
	}

	if cfg.Watch.RebuildInterval > 0 {
		scheduler, err := NewScheduler(d.requestRebuild)
		if err != nil {
			watcher.Stop()
			return nil, err
		}
		if _, err := scheduler.SchedulePeriodicRebuild(cfg.Watch.RebuildInterval); err != nil {
			watcher.Stop()
			return nil, err
		}
		d.scheduler = scheduler
	}
	return d, nil
}

// requestRebuild coalesces rebuild requests; at most one is pending.
func (d *Daemon) requestRebuild() {
	select {
	case d.rebuilds <- struct{}{}:
	default:
	}
}

// Start runs the daemon until the context is canceled.
func (d *Daemon) Start(ctx context.Context) error {
	d.startTime = time.Now()

	// The preview has something to serve from the first request on.
	d.runBuild(ctx)

	d.watcher.Start(ctx)
	if d.scheduler != nil {
		d.scheduler.Start()
	}

	d.wg.Add(1)
	go d.rebuildLoop(ctx)

	return d.serveHTTP(ctx)
}

// rebuildLoop serializes rebuilds: the pipeline never runs concurrently with
// itself no matter how many triggers arrive.
func (d *Daemon) rebuildLoop(ctx context.Context) {
	defer d.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-d.watcher.Triggers():
			d.runBuild(ctx)
		case <-d.rebuilds:
			d.runBuild(ctx)
		}
	}
}

func (d *Daemon) runBuild(ctx context.Context) {
	report, err := d.pipeline.Run(ctx)
	d.status.setResult(report.BuildID, err)
	if err != nil {
		// Keep serving the previous good build; surface the failure in status.
		slog.Error("Rebuild failed", "build_id", report.BuildID, "error", err)
		return
	}
	slog.Info("Rebuild completed", "build_id", report.BuildID, "converted", report.Converted)
}

func (d *Daemon) serveHTTP(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.Handle("/", http.FileServer(http.Dir(d.cfg.Source.Target)))
	mux.Handle("/metrics", metrics.HTTPHandler(d.registry))
	mux.HandleFunc("/healthz", d.handleHealthz)

	d.server = &http.Server{
		Addr:              d.cfg.Watch.ListenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		slog.Info("Preview server listening", "addr", d.cfg.Watch.ListenAddr, "root", d.cfg.Source.Target)
		if err := d.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	select {
	case err := <-errChan:
		return fmt.Errorf("preview server failed: %w", err)
	case <-ctx.Done():
		return nil
	}
}

func (d *Daemon) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	buildID, lastErr, hasGoodBuild := d.status.snapshot()
	if lastErr != nil && !hasGoodBuild {
		w.WriteHeader(http.StatusServiceUnavailable)
		fmt.Fprintf(w, "unhealthy: build %s failed: %v\n", buildID, lastErr)
		return
	}
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "ok: last build %s, uptime %s\n", buildID, time.Since(d.startTime).Round(time.Second))
}

// Stop shuts down the watcher, scheduler, and HTTP server.
func (d *Daemon) Stop(ctx context.Context) error {
	var errs []error
	if err := d.watcher.Stop(); err != nil {
		errs = append(errs, fmt.Errorf("stop watcher: %w", err))
	}
	if d.scheduler != nil {
		if err := d.scheduler.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("stop scheduler: %w", err))
		}
	}
	if d.server != nil {
		if err := d.server.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown preview server: %w", err))
		}
	}
	d.wg.Wait()
	return errors.Join(errs...)
}
