package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/railmind/internal/orchestrator"
	"github.com/ShayCichocki/railmind/internal/server"
	"github.com/ShayCichocki/railmind/internal/signals"
	"github.com/ShayCichocki/railmind/internal/state"
	"github.com/ShayCichocki/railmind/pkg/models"
)

const (
	shutdownGrace = 30 * time.Second
	purgeInterval = time.Hour
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve requests over HTTP",
	Long: `Serve requests over HTTP.

Endpoints:
  POST   /v1/requests          JSON {request, context, max_iterations, user_id, async}
  DELETE /v1/runs/{id}         cancel an in-flight run
  GET    /v1/runs[/{id}]       run history (when memory is enabled)
  GET    /v1/events            live run events (server-sent events)
  POST   /api/train-delay      JSON {train_number, delay_minutes, current_location}
  POST   /api/passenger-query  JSON {query, passenger_id, pnr}
  POST   /api/send-alert       JSON {message, recipients, channels}
  GET    /api/agents/status
  GET    /api/demo/scenarios
  POST   /webhook/whatsapp     form-encoded From, Body, MessageSid
  POST   /webhook/status       form-encoded MessageSid, MessageStatus
  GET    /v1/deliveries/{sid}  delivery status (when memory is enabled)
  GET    /healthz
  GET    /metrics              Prometheus metrics

Concurrent runs are capped by server.max_concurrent_runs. A stop signal
('railmind signal stop') cancels in-flight runs and a pause signal makes
new requests return 503.`,
	Args: cobra.NoArgs,
	RunE: serve,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (default from config)")
}

func serve(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if serveAddr != "" {
		cfg.Server.Addr = serveAddr
	}

	rt, err := newRuntime(cfg, runtimeOptions{metrics: true, events: true})
	if err != nil {
		return err
	}
	defer rt.Close()

	pool := orchestrator.NewPool(rt.orch, cfg.Server.MaxConcurrentRuns)
	defer pool.Stop()

	var runner server.Runner = pool
	opts := []server.Option{
		server.WithReplier(rt.notifier),
		server.WithGatherer(rt.metrics),
		server.WithCapabilities(rt.capabilities),
		server.WithEvents(rt.orch.Events()),
	}
	if rt.store != nil {
		opts = append(opts, server.WithHistory(rt.store), server.WithDeliveries(rt.store))
	}
	if rt.signals != nil {
		runner = signalRunner{pool: pool, signals: rt.signals}
		opts = append(opts, server.WithGate(rt.signals))
	}

	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      server.New(runner, opts...),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if rt.store != nil && cfg.Memory.Retention > 0 {
		go purgeLoop(ctx, rt.store, cfg.Memory.Retention, purgeInterval)
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	fmt.Fprintf(cmd.OutOrStdout(), "%s railmind listening on %s\n", color.GreenString("✓"), cfg.Server.Addr)

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	fmt.Fprintln(cmd.OutOrStdout(), "Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		n := pool.CancelAll()
		log.Printf("[serve] shutdown: %v (cancelled %d runs)", err, n)
	}
	return nil
}

// signalRunner cancels pool runs when a stop signal arrives.
type signalRunner struct {
	pool    *orchestrator.Pool
	signals *signals.Manager
}

func (r signalRunner) Run(ctx context.Context, request string, runCtx map[string]any, maxIterations int) (*models.Response, error) {
	ctx, release := r.signals.Context(ctx)
	defer release()
	return r.pool.Run(ctx, request, runCtx, maxIterations)
}

// Submit starts a background run that a stop signal also cancels.
func (r signalRunner) Submit(ctx context.Context, request string, runCtx map[string]any, maxIterations int) (string, <-chan *models.Response, error) {
	ctx, release := r.signals.Context(ctx)
	id, out, err := r.pool.Submit(ctx, request, runCtx, maxIterations)
	if err != nil {
		release()
		return "", nil, err
	}
	done := make(chan *models.Response, 1)
	go func() {
		defer close(done)
		resp, ok := <-out
		release()
		if ok {
			done <- resp
		}
	}()
	return id, done, nil
}

func (r signalRunner) Cancel(runID string) bool {
	return r.pool.Cancel(runID)
}

func (r signalRunner) Count() int {
	return r.pool.Count()
}

// purgeLoop drops run history older than retention until ctx ends.
func purgeLoop(ctx context.Context, store state.RunStore, retention, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		purgeOnce(ctx, store, retention)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func purgeOnce(ctx context.Context, store state.RunStore, retention time.Duration) {
	n, err := store.PurgeOldRuns(ctx, retention)
	switch {
	case err != nil && ctx.Err() == nil:
		log.Printf("[serve] purge run history: %v", err)
	case n > 0:
		log.Printf("[serve] purged %d run(s) older than %s", n, retention)
	}
}
