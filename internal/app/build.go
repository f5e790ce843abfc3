package app

import (
	"context"
	"fmt"

	"github.com/antoniostano/agentdispatch/internal/config"
	"github.com/antoniostano/agentdispatch/internal/dispatch"
	"github.com/antoniostano/agentdispatch/internal/httpapi"
	"github.com/antoniostano/agentdispatch/internal/jobs"
	"github.com/antoniostano/agentdispatch/internal/observability"
	"github.com/antoniostano/agentdispatch/internal/session"
)

type BuildResult struct {
	Config     config.Config
	API        *httpapi.Server
	Dispatcher *dispatch.Dispatcher
	// Poller is nil unless the service runs in queue mode.
	Poller   *dispatch.Poller
	Store    jobs.Store
	Statuses *session.Registry
	Metrics  *observability.Metrics

	// Cleanup should be called on shutdown to release external resources (DB, etc).
	Cleanup func() error
}

func Build(ctx context.Context, cfg config.Config) (*BuildResult, error) {
	metrics := observability.NewMetrics(cfg.MetricsNamespace)

	store, err := jobs.NewStore(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("job store init failed: %w", err)
	}

	stack, err := resolveVoiceStack(cfg)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	cfg.VoiceProvider = stack.resolvedProvider

	statuses := session.NewRegistry()
	dispatcher := dispatch.New(stack.connector, stack.providers, statuses, metrics, cfg.IdleTimeout)

	var poller *dispatch.Poller
	if cfg.DispatchMode == config.DispatchQueue {
		poller = dispatch.NewPoller(store, dispatcher, cfg.PollInterval)
	}

	api := httpapi.New(cfg, dispatcher, store, statuses, metrics)

	return &BuildResult{
		Config:     cfg,
		API:        api,
		Dispatcher: dispatcher,
		Poller:     poller,
		Store:      store,
		Statuses:   statuses,
		Metrics:    metrics,
		Cleanup:    store.Close,
	}, nil
}
