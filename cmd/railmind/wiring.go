package main

import (
	"errors"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/ShayCichocki/railmind/internal/api"
	"github.com/ShayCichocki/railmind/internal/config"
	"github.com/ShayCichocki/railmind/internal/executors"
	"github.com/ShayCichocki/railmind/internal/notify"
	"github.com/ShayCichocki/railmind/internal/orchestrator"
	"github.com/ShayCichocki/railmind/internal/planner"
	"github.com/ShayCichocki/railmind/internal/railway"
	"github.com/ShayCichocki/railmind/internal/signals"
	"github.com/ShayCichocki/railmind/internal/state"
)

// runtimeOptions selects the optional parts of a runtime.
type runtimeOptions struct {
	// planPath replays a plan file instead of asking a planner.
	planPath string
	events   bool
	metrics  bool
}

// runtime is everything a command needs to serve requests.
type runtime struct {
	orch     *orchestrator.Orchestrator
	notifier notify.Notifier
	// store is nil when memory is disabled.
	store *state.DB
	// signals is nil when signal files are disabled.
	signals *signals.Manager
	// metrics is nil unless requested.
	metrics *prometheus.Registry
	// usage is nil unless the model planner is in use.
	usage        *api.TokenTracker
	capabilities []string
	closers      []func() error
}

// planners is the planning side of a runtime.
type planners struct {
	planner   orchestrator.Planner
	replanner orchestrator.Replanner
	// usage counts model tokens; nil for the keyword planner.
	usage *api.TokenTracker
}

// newRuntime wires config into an orchestrator and its collaborators.
func newRuntime(cfg *config.Config, ro runtimeOptions) (_ *runtime, retErr error) {
	rt := &runtime{}
	defer func() {
		if retErr != nil {
			rt.Close()
		}
	}()

	logger := orchestrator.NopLogger()
	if cfg.Log.Debug {
		logger = orchestrator.NewDebugLoggerForDir(cfg.Log.Dir)
		rt.closers = append(rt.closers, logger.Close)
	}

	dataset, err := loadDataset(cfg)
	if err != nil {
		return nil, err
	}

	n, closeNotifier, err := buildNotifier(cfg)
	if err != nil {
		return nil, err
	}
	rt.notifier = n
	rt.closers = append(rt.closers, closeNotifier)

	registry := orchestrator.NewExecutorRegistry(cfg.Orchestrator.TaskTimeout)
	if err := executors.RegisterDefaults(registry, executors.Deps{
		Schedule: dataset,
		Bookings: dataset,
		Notifier: n,
	}); err != nil {
		return nil, fmt.Errorf("register executors: %w", err)
	}
	rt.capabilities = registry.Capabilities()

	var ps planners
	if ro.planPath != "" {
		fp, err := planner.NewFilePlanner(ro.planPath)
		if err != nil {
			return nil, err
		}
		ps.planner = fp
	} else {
		ps, err = buildPlanner(cfg, rt.capabilities)
		if err != nil {
			return nil, err
		}
	}
	rt.usage = ps.usage

	opts := []orchestrator.Option{
		orchestrator.WithPolicy(cfg.Policy()),
		orchestrator.WithLogger(logger),
	}
	if ps.replanner != nil {
		opts = append(opts, orchestrator.WithReplanner(ps.replanner))
	}

	if cfg.Memory.Enabled {
		db, err := state.OpenMigrated(cfg.DBPath(state.GlobalDBPath()))
		if err != nil {
			return nil, fmt.Errorf("open state: %w", err)
		}
		rt.store = db
		rt.closers = append(rt.closers, db.Close)
		opts = append(opts, orchestrator.WithMemory(db), orchestrator.WithRecorder(db))
	}

	if ro.metrics {
		rt.metrics = prometheus.NewRegistry()
		opts = append(opts, orchestrator.WithMetrics(orchestrator.NewMetrics(rt.metrics)))
	}
	if ro.events {
		opts = append(opts, orchestrator.WithEvents())
	}

	if cfg.Signals.Enabled {
		m, err := signals.New(cfg.Signals.Root, cfg.Signals.PollInterval)
		if err != nil {
			return nil, fmt.Errorf("start signal watcher: %w", err)
		}
		rt.signals = m
		rt.closers = append(rt.closers, func() error { m.Close(); return nil })
	}

	rt.orch = orchestrator.New(orchestrator.RequiredConfig{Planner: ps.planner, Registry: registry}, opts...)
	rt.closers = append(rt.closers, func() error { rt.orch.Close(); return nil })
	return rt, nil
}

// Close releases collaborators in reverse order of creation.
func (rt *runtime) Close() error {
	var errs []error
	for i := len(rt.closers) - 1; i >= 0; i-- {
		if err := rt.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	rt.closers = nil
	return errors.Join(errs...)
}

func loadDataset(cfg *config.Config) (*railway.StaticProvider, error) {
	if cfg.Data.DatasetPath == "" {
		return railway.Default()
	}
	sp, err := railway.Load(cfg.Data.DatasetPath)
	if err != nil {
		return nil, fmt.Errorf("load dataset: %w", err)
	}
	return sp, nil
}

// buildPlanner uses the model planner when credentials are available and
// the keyword planner otherwise. The keyword planner has no replanner, so
// retries fall back to the orchestrator's default.
func buildPlanner(cfg *config.Config, capabilities []string) (planners, error) {
	creds := config.ResolveCredentials(cfg)
	if !creds.Available() {
		return planners{planner: planner.KeywordPlanner{}}, nil
	}

	client, err := api.NewClient(api.ClientConfig{
		Model:         anthropic.Model(cfg.LLM.Model),
		APIKey:        creds.APIKey,
		MaxTokens:     cfg.LLM.MaxTokens,
		UseAWSBedrock: cfg.LLM.UseBedrock,
		AWSRegion:     cfg.LLM.AWSRegion,
		AWSProfile:    cfg.LLM.AWSProfile,
		BaseURL:       cfg.LLM.BaseURL,
	})
	if err != nil {
		return planners{}, fmt.Errorf("create API client: %w", err)
	}
	p := planner.NewLLMPlanner(client, capabilities)
	return planners{planner: p, replanner: p, usage: client.Tracker()}, nil
}

func buildNotifier(cfg *config.Config) (notify.Notifier, func() error, error) {
	if cfg.Notify.Backend == config.NotifyNATS {
		n, err := notify.ConnectNATS(cfg.Notify.NATSURL, cfg.Notify.Subject)
		if err != nil {
			return nil, nil, fmt.Errorf("connect notifier: %w", err)
		}
		return n, n.Close, nil
	}
	return notify.NewLogNotifier(false), func() error { return nil }, nil
}
