package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/rand/fathom/internal/cache"
	"github.com/rand/fathom/internal/config"
	"github.com/rand/fathom/internal/memory"
	"github.com/rand/fathom/internal/provider"
	"github.com/rand/fathom/internal/resolver"
	"github.com/rand/fathom/internal/router"
	"github.com/rand/fathom/internal/telemetry"
	"github.com/rand/fathom/internal/trace"
)

// app holds the wired components for one CLI invocation.
type app struct {
	resolver     *resolver.Resolver
	telem        *telemetry.Aggregator
	trace        *trace.Store
	providerName string
}

func buildApp(cfg *config.Config) (*app, error) {
	invoker, name, err := createInvoker()
	if err != nil {
		return nil, err
	}

	catalog := router.DefaultCatalog()
	telem := telemetry.NewAggregator(router.NewCatalog(catalog).Rates())

	rt := router.New(invoker, telem, router.Config{
		Catalog:     catalog,
		CallTimeout: cfg.Model.CallTimeout,
	})

	mem, err := buildMemory(cfg)
	if err != nil {
		return nil, err
	}
	if mem != nil {
		telem.SetCacheStats(mem.Cache().Counters)
	}

	var traceStore *trace.Store
	if cfg.Trace.Enabled {
		traceStore, err = trace.New(trace.Config{Path: cfg.Trace.Path})
		if err != nil {
			return nil, fmt.Errorf("open trace store: %w", err)
		}
	}

	var tracer resolver.Tracer
	if traceStore != nil {
		tracer = traceStore
	}

	return &app{
		resolver:     resolver.New(rt, mem, telem, tracer),
		telem:        telem,
		trace:        traceStore,
		providerName: name,
	}, nil
}

func (a *app) Close() {
	if a.trace != nil {
		if err := a.trace.Close(); err != nil {
			slog.Warn("close trace store", "error", err)
		}
	}
}

// createInvoker picks the backing provider. OpenRouter serves every
// catalog family, so it wins when both keys are present.
func createInvoker() (router.Invoker, string, error) {
	if key := os.Getenv("OPENROUTER_API_KEY"); key != "" {
		client, err := provider.NewOpenRouter(key)
		if err == nil {
			return client, client.Name(), nil
		}
		slog.Warn("openrouter unavailable, trying anthropic", "error", err)
	}

	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" {
		client, err := provider.NewAnthropic(key)
		if err != nil {
			return nil, "", fmt.Errorf("create anthropic provider: %w", err)
		}
		return client, client.Name(), nil
	}

	return nil, "", fmt.Errorf("no provider available: set OPENROUTER_API_KEY or ANTHROPIC_API_KEY")
}

// buildMemory wires the retrieval cache over the configured document
// corpus. No documents means no memory store at all.
func buildMemory(cfg *config.Config) (*memory.Store, error) {
	if len(cfg.Memory.Documents) == 0 {
		return nil, nil
	}

	docs := memory.NewDocumentLookuper()
	for scope, path := range cfg.Memory.Documents {
		if err := docs.AddFile(scope, path); err != nil {
			return nil, fmt.Errorf("load document %s: %w", path, err)
		}
	}

	store := cache.New(cfg.Memory.CacheCapacity)
	return memory.NewStore(store, docs), nil
}
