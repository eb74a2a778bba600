package main

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/signalworks/listening-cli/internal/pipeline"
	"github.com/signalworks/listening-cli/internal/platform"
	"github.com/signalworks/listening-cli/internal/store"
	anthropicpkg "github.com/signalworks/listening-cli/pkg/anthropic"
	"github.com/signalworks/listening-cli/pkg/jina"
	"github.com/signalworks/listening-cli/pkg/provider"
)

// pipelineEnv holds the initialized store, clients and runner needed by the
// run/serve commands.
type pipelineEnv struct {
	Store    store.Store
	Pipeline *pipeline.Pipeline
	Runner   *pipeline.Runner
	Registry *platform.Registry
}

// Close releases resources held by the pipeline environment.
func (pe *pipelineEnv) Close() {
	if pe.Store != nil {
		_ = pe.Store.Close()
	}
}

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "listening.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, nil)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// initEnv sets up the store, API clients, platform registry and runner.
// Callers should defer env.Close().
func initEnv(ctx context.Context) (*pipelineEnv, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	registry, err := platform.LoadRegistry(cfg.Provider.RegistryPath)
	if err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "load platform registry")
	}

	providerClient := provider.NewClient(cfg.Provider.Key,
		provider.WithBaseURL(cfg.Provider.BaseURL),
		provider.WithRateLimit(cfg.Provider.RequestsPerSec),
	)
	anthropicClient := anthropicpkg.NewClient(cfg.Anthropic.Key)
	jinaClient := jina.NewClient(cfg.Jina.Key,
		jina.WithBaseURL(cfg.Jina.BaseURL),
		jina.WithDefaultModel(cfg.Jina.Model),
	)

	p := pipeline.New(cfg, st, providerClient, anthropicClient, jinaClient, registry)

	return &pipelineEnv{
		Store:    st,
		Pipeline: p,
		Runner:   pipeline.NewRunner(p, st, cfg.Pipeline.MaxConcurrentRuns),
		Registry: registry,
	}, nil
}
