package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"

	"github.com/dshills/support-triage/classify"
	"github.com/dshills/support-triage/config"
	"github.com/dshills/support-triage/graph"
	"github.com/dshills/support-triage/graph/emit"
	"github.com/dshills/support-triage/graph/model"
	"github.com/dshills/support-triage/graph/model/anthropic"
	"github.com/dshills/support-triage/graph/model/google"
	"github.com/dshills/support-triage/graph/model/openai"
	"github.com/dshills/support-triage/graph/store"
	"github.com/dshills/support-triage/graph/tool"
	"github.com/dshills/support-triage/notify"
	"github.com/dshills/support-triage/server"
	"github.com/dshills/support-triage/telemetry"
	"github.com/dshills/support-triage/triage"
)

// app holds the wired components of one triagebot process.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	registry *prometheus.Registry
	costs    *graph.CostTracker
	store    store.Store[triage.State]
	service  *triage.Service

	closers []func(context.Context) error
}

// newApp wires every component from cfg. The caller must call close.
func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	a := &app{
		cfg:      cfg,
		logger:   logger,
		registry: prometheus.NewRegistry(),
		costs:    graph.NewCostTracker(),
	}
	if err := a.wire(ctx); err != nil {
		_ = a.close(context.Background())
		return nil, err
	}
	return a, nil
}

func (a *app) wire(ctx context.Context) error {
	cfg, logger := a.cfg, a.logger

	a.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	chat, err := a.newChatModel(ctx)
	if err != nil {
		return err
	}

	var classifierOpts []classify.Option
	classifierOpts = append(classifierOpts,
		classify.WithCostTracker(a.costs),
		classify.WithMetrics(classify.NewMetrics(a.registry)),
		classify.WithLogger(logger),
		classify.WithModelName(cfg.ModelConfig().Model),
	)
	if cfg.Classify.RateLimit > 0 {
		classifierOpts = append(classifierOpts, classify.WithRateLimit(cfg.Classify.RateLimit, cfg.Classify.Burst))
	}
	classifier := classify.NewLLMClassifier(chat, classifierOpts...)

	notifier, err := a.newNotifier(ctx)
	if err != nil {
		return err
	}

	knowledge, err := triage.LoadKnowledge(cfg.Knowledge.Path)
	if err != nil {
		return err
	}

	deps := triage.Deps{
		Classifier: classifier,
		Notifier:   notifier,
		Directory:  triage.NewDirectory(knowledge.Directory),
		HelpCenter: triage.NewHelpCenter(knowledge.Articles),
		Channels:   cfg.Channels,
		Logger:     logger,
	}
	if cfg.Classify.Timeout > 0 {
		deps.ClassifyPolicy = &graph.NodePolicy{Timeout: cfg.Classify.Timeout}
	}
	g, err := triage.NewGraph(deps)
	if err != nil {
		return err
	}

	st, err := a.newStore(ctx)
	if err != nil {
		return err
	}
	a.store = st

	emitter, err := a.newEmitter(ctx)
	if err != nil {
		return err
	}

	opts := []graph.Option{
		graph.WithMaxSteps(cfg.Engine.MaxSteps),
		graph.WithDefaultNodeTimeout(cfg.Engine.NodeTimeout),
		graph.WithRunWallClockBudget(cfg.Engine.RunBudget),
		graph.WithRetryPolicy(cfg.RetryPolicy()),
		graph.WithEmitter(emitter),
		graph.WithMetrics(graph.NewPrometheusMetrics(a.registry)),
	}
	if st != nil {
		opts = append(opts, graph.WithStore[triage.State](st))
	}
	engine, err := graph.New(g, opts...)
	if err != nil {
		return err
	}

	a.service = triage.NewService(engine, logger)
	return nil
}

// newChatModel creates the adapter for the configured provider.
func (a *app) newChatModel(ctx context.Context) (model.ChatModel, error) {
	mc := a.cfg.ModelConfig()
	switch a.cfg.LLM.Provider {
	case "anthropic":
		return anthropic.NewChatModel(mc)
	case "google":
		m, err := google.NewChatModel(ctx, mc)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func(context.Context) error { return m.Close() })
		return m, nil
	case "openai", "":
		return openai.NewChatModel(mc)
	default:
		return nil, fmt.Errorf("unknown llm provider %q", a.cfg.LLM.Provider)
	}
}

// newNotifier builds the delivery chain: log (and webhook) behind
// key-based dedup.
func (a *app) newNotifier(ctx context.Context) (notify.Notifier, error) {
	nc := a.cfg.Notify

	var sink notify.Notifier = notify.NewLogNotifier(a.logger)
	if nc.WebhookURL != "" {
		hook := notify.NewWebhookNotifier(tool.NewHTTPTool(nc.WebhookTimeout), nc.WebhookURL, nc.WebhookHeaders)
		sink = notify.Multi(sink, hook)
	}

	var keys notify.KeyStore
	if nc.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     nc.RedisAddr,
			Password: nc.RedisPassword,
			DB:       nc.RedisDB,
		})
		a.closers = append(a.closers, func(context.Context) error { return client.Close() })
		rk := notify.NewRedisKeyStore(client, nc.KeyPrefix)
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := rk.Ping(pingCtx); err != nil {
			return nil, fmt.Errorf("redis %s: %w", nc.RedisAddr, err)
		}
		keys = rk
	} else {
		keys = notify.NewMemoryKeyStore()
	}

	return notify.NewDedup(sink, keys,
		notify.WithTTL(nc.DedupTTL),
		notify.WithMetrics(notify.NewMetrics(a.registry)),
		notify.WithLogger(a.logger),
	), nil
}

// newStore opens the configured run-history store. The none driver
// returns a nil store.
func (a *app) newStore(ctx context.Context) (store.Store[triage.State], error) {
	sc := a.cfg.Store
	switch sc.Driver {
	case "none":
		return nil, nil
	case "sqlite":
		st, err := store.NewSQLiteStore[triage.State](sc.DSN)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func(context.Context) error { return st.Close() })
		return st, nil
	case "mysql":
		st, err := store.NewMySQLStore[triage.State](sc.DSN)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func(context.Context) error { return st.Close() })
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := st.Ping(pingCtx); err != nil {
			return nil, fmt.Errorf("mysql: %w", err)
		}
		return st, nil
	default:
		if sc.MaxRuns > 0 {
			return store.NewMemStoreWithLimit[triage.State](sc.MaxRuns), nil
		}
		return store.NewMemStore[triage.State](), nil
	}
}

// newEmitter logs engine events and, with tracing enabled, turns them into
// spans.
func (a *app) newEmitter(ctx context.Context) (emit.Emitter, error) {
	logEmitter := emit.NewLogEmitter(a.logger)
	if !a.cfg.Tracing.Enabled {
		return logEmitter, nil
	}

	tp, err := telemetry.NewTracerProvider(ctx, telemetry.Options{
		ServiceName: a.cfg.Tracing.ServiceName,
		Endpoint:    a.cfg.Tracing.Endpoint,
		Logger:      a.logger,
	})
	if err != nil {
		return nil, fmt.Errorf("tracing: %w", err)
	}
	otel.SetTracerProvider(tp)
	telemetry.SetupPropagation()
	a.closers = append(a.closers, tp.Shutdown)

	otelEmitter := emit.NewOTelEmitter(telemetry.Tracer(tp))
	a.closers = append(a.closers, otelEmitter.Flush)
	return emit.Multi(logEmitter, otelEmitter), nil
}

// server returns the HTTP API over the app's components.
func (a *app) server() *server.Server {
	return server.New(a.service, server.Options{
		Store:        a.store,
		Costs:        a.costs,
		Gatherer:     a.registry,
		Metrics:      server.NewMetrics(a.registry),
		ExposeErrors: a.cfg.Server.ExposeErrors,
		Logger:       a.logger,
	})
}

// pruneLoop deletes SQLite history older than the retention until ctx ends.
func (a *app) pruneLoop(ctx context.Context) error {
	st, ok := a.store.(*store.SQLiteStore[triage.State])
	if !ok || a.cfg.Store.Retention <= 0 {
		return nil
	}
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		n, err := st.Prune(ctx, time.Now().Add(-a.cfg.Store.Retention))
		switch {
		case err != nil && ctx.Err() == nil:
			a.logger.Warn("failed to prune run history", slog.Any("error", err))
		case n > 0:
			a.logger.Info("pruned run history", slog.Int64("steps", n))
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// close releases resources in reverse order of creation.
func (a *app) close(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
