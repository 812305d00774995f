// Package app wires the context engine's components into a runnable
// service: configuration, provider registry, the fractal TreeStore, the
// VectorIndex, the CausalGraph, the CoarseGrainer, the Orchestrator, the
// HTTP transport, and observability.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/causalfractal/contextengine/internal/causalfilter"
	"github.com/causalfractal/contextengine/internal/causalgraph"
	"github.com/causalfractal/contextengine/internal/coarsegrain"
	"github.com/causalfractal/contextengine/internal/config"
	"github.com/causalfractal/contextengine/internal/health"
	"github.com/causalfractal/contextengine/internal/knowledgedocs"
	"github.com/causalfractal/contextengine/internal/observe"
	"github.com/causalfractal/contextengine/internal/orchestrator"
	"github.com/causalfractal/contextengine/internal/resilience"
	"github.com/causalfractal/contextengine/internal/security"
	transporthttp "github.com/causalfractal/contextengine/internal/transport/http"
	"github.com/causalfractal/contextengine/internal/treestore"
	"github.com/causalfractal/contextengine/internal/vectorindex"
	"github.com/causalfractal/contextengine/pkg/provider/llm"
)

// serviceName is reported to OpenTelemetry in place of observe.InitProvider's
// own default.
const serviceName = "contextengine"

// App holds every long-lived component of a running context engine instance
// and coordinates their startup and shutdown.
type App struct {
	cfg *config.Config

	pool    *pgxpool.Pool
	graph   *causalgraph.Atomic
	grainer *coarsegrain.Grainer
	sweeper *coarsegrain.Sweeper

	orch   *orchestrator.Orchestrator
	server *http.Server

	otelShutdown func(context.Context) error

	graphWatchCancel context.CancelFunc
}

// New builds an App from cfg. Registry must already have the provider
// factories the config's Providers section references (see
// RegisterDefaultProviders).
func New(ctx context.Context, cfg *config.Config, reg *config.Registry) (*App, error) {
	metrics, otelShutdown, err := initObservability(ctx)
	if err != nil {
		return nil, fmt.Errorf("app: init observability: %w", err)
	}

	pool, err := pgxpool.New(ctx, cfg.Postgres.DSN)
	if err != nil {
		_ = otelShutdown(ctx)
		return nil, fmt.Errorf("app: connect to postgres: %w", err)
	}

	if err := migrateSchema(ctx, pool, cfg.Postgres.EmbeddingDimensions); err != nil {
		pool.Close()
		_ = otelShutdown(ctx)
		return nil, err
	}

	embedder, err := reg.CreateEmbeddings(cfg.Providers.Embeddings)
	if err != nil {
		pool.Close()
		_ = otelShutdown(ctx)
		return nil, fmt.Errorf("app: create embeddings provider: %w", err)
	}

	llmProvider, err := buildLLMProvider(reg, cfg.Providers)
	if err != nil {
		pool.Close()
		_ = otelShutdown(ctx)
		return nil, err
	}

	tree := treestore.New(pool, embedder, cfg.Engine.SimilarityThreshold)
	vectors := vectorindex.New(pool, embedder)
	docs := knowledgedocs.New(pool, vectors)
	graph := causalgraph.NewAtomic()
	if cfg.CausalGraph.Path != "" {
		if err := graph.LoadFromDisk(cfg.CausalGraph.Path); err != nil {
			slog.Warn("app: could not load causal graph from disk at startup, starting with an empty graph", "path", cfg.CausalGraph.Path, "error", err)
		}
	}

	filter := causalfilter.New(graph)
	sec := security.New()

	grainer := coarsegrain.New(coarsegrain.Config{
		Store:      tree,
		Summarizer: coarsegrain.NewLLMSummarizer(llmProvider),
		QueueSize:  cfg.Engine.CoarseGrainQueueSize,
		Workers:    cfg.Engine.CoarseGrainWorkers,
	})

	sweepInterval, err := parseOptionalDuration(cfg.Engine.ConsolidationSweepInterval)
	if err != nil {
		pool.Close()
		grainer.Close()
		_ = otelShutdown(ctx)
		return nil, fmt.Errorf("app: parse consolidation_sweep_interval: %w", err)
	}
	sweeper := coarsegrain.NewSweeper(grainer, tree, sweepInterval)

	orch := orchestrator.New(orchestrator.Config{
		TreeStore:        tree,
		VectorIndex:      vectors,
		CausalFilter:     filter,
		Security:         sec,
		LLM:              llmProvider,
		CoarseGrainer:    grainer,
		SystemPersona:    cfg.Engine.SystemPersona,
		Temperature:      cfg.Engine.Temperature,
		MaxContextTokens: cfg.Engine.MaxContextTokens,
	})

	handler := transporthttp.New(orch, docs, metrics)
	mux := http.NewServeMux()
	handler.Register(mux)

	healthHandler := health.New(health.Checker{
		Name: "postgres",
		Check: func(ctx context.Context) error {
			return pool.Ping(ctx)
		},
	})
	healthHandler.Register(mux)
	mux.Handle("/metrics", promMetricsHandler())

	a := &App{
		cfg:          cfg,
		pool:         pool,
		graph:        graph,
		grainer:      grainer,
		sweeper:      sweeper,
		orch:         orch,
		otelShutdown: otelShutdown,
		server: &http.Server{
			Addr:    cfg.Server.ListenAddr,
			Handler: observe.Middleware(metrics)(mux),
		},
	}

	if rebuildInterval, err := parseOptionalDuration(cfg.CausalGraph.RebuildInterval); err == nil && rebuildInterval > 0 && cfg.CausalGraph.Path != "" {
		watchCtx, cancel := context.WithCancel(context.Background())
		a.graphWatchCancel = cancel
		graph.WatchReload(watchCtx, cfg.CausalGraph.Path, rebuildInterval)
	}

	return a, nil
}

// Run starts the HTTP server and the background coarse-graining
// reconciliation sweep. It blocks until the server stops (via Shutdown or a
// fatal listen error).
func (a *App) Run(ctx context.Context) error {
	a.sweeper.Start(ctx)

	slog.Info("contextengine: server starting", "addr", a.server.Addr)
	if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("app: server: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the HTTP server, background workers, and flushes
// telemetry. It should be called with a context carrying a deadline.
func (a *App) Shutdown(ctx context.Context) error {
	var errs []error

	if err := a.server.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("http server shutdown: %w", err))
	}
	a.sweeper.Stop()
	a.grainer.Close()
	if a.graphWatchCancel != nil {
		a.graphWatchCancel()
	}
	a.pool.Close()
	if err := a.otelShutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("telemetry shutdown: %w", err))
	}

	if len(errs) == 0 {
		return nil
	}
	joined := errs[0]
	for _, e := range errs[1:] {
		joined = fmt.Errorf("%w; %w", joined, e)
	}
	return joined
}

func migrateSchema(ctx context.Context, pool *pgxpool.Pool, embeddingDimensions int) error {
	if err := treestore.Migrate(ctx, pool); err != nil {
		return fmt.Errorf("app: migrate treestore schema: %w", err)
	}
	if err := vectorindex.Migrate(ctx, pool, embeddingDimensions); err != nil {
		return fmt.Errorf("app: migrate vectorindex schema: %w", err)
	}
	if err := knowledgedocs.Migrate(ctx, pool); err != nil {
		return fmt.Errorf("app: migrate knowledgedocs schema: %w", err)
	}
	return nil
}

// buildLLMProvider constructs the primary LLM provider plus any configured
// fallbacks, composed into a single resilience.LLMFallback so the
// orchestrator sees one llm.Provider regardless of how many backends are
// configured.
func buildLLMProvider(reg *config.Registry, cfg config.ProvidersConfig) (llm.Provider, error) {
	primary, err := reg.CreateLLM(cfg.LLM)
	if err != nil {
		return nil, fmt.Errorf("app: create primary llm provider: %w", err)
	}
	if len(cfg.LLMFallbacks) == 0 {
		return primary, nil
	}

	fb := resilience.NewLLMFallback(primary, providerLabel(cfg.LLM), resilience.FallbackConfig{
		CircuitBreaker: resilience.CircuitBreakerConfig{MaxFailures: 3, ResetTimeout: 30 * time.Second},
	})
	for _, entry := range cfg.LLMFallbacks {
		p, err := reg.CreateLLM(entry)
		if err != nil {
			return nil, fmt.Errorf("app: create fallback llm provider %q: %w", entry.Name, err)
		}
		fb.AddFallback(providerLabel(entry), p)
	}
	return fb, nil
}

func providerLabel(entry config.ProviderEntry) string {
	if entry.Model != "" {
		return entry.Name + "/" + entry.Model
	}
	return entry.Name
}

func parseOptionalDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	return time.ParseDuration(s)
}
