// Package app provides the main application setup and dependency injection.
package app

import (
	"fmt"

	"anime1-proxy-go/pkg/anime1"
	"anime1-proxy-go/pkg/appctx"
	"anime1-proxy-go/pkg/config"
	"anime1-proxy-go/pkg/handlers/api"
	"anime1-proxy-go/pkg/httpclient"
	"anime1-proxy-go/pkg/logging"
	"anime1-proxy-go/pkg/metrics"
	"anime1-proxy-go/pkg/recent"
	"anime1-proxy-go/pkg/server"
	"anime1-proxy-go/pkg/services"
)

// App is the main application container.
type App struct {
	Ctx        *appctx.Context
	Server     *server.Server
	HTTPClient *httpclient.Client
}

// New creates and initializes the application.
func New() (*App, error) {
	// Load configuration
	cfg := config.Load()

	// Initialize logger
	log := logging.New(cfg.LogLevel, cfg.LogJSON, nil)
	log.Info("initializing gateway",
		"bind", cfg.BindAddr,
		"port", cfg.Port,
		"upstream", cfg.UpstreamBase,
		"stream_mode", cfg.StreamMode,
	)

	// Create application context
	ctx := appctx.New(cfg, log)

	// Metrics collectors
	m := metrics.New()
	ctx.WithMetrics(m)

	// Create upstream HTTP client
	httpClient, err := httpclient.New(cfg, log)
	if err != nil {
		return nil, fmt.Errorf("http client: %w", err)
	}

	// Resolution pipeline
	fetcher := anime1.NewFetcher(httpClient, cfg.UpstreamBase, log)
	builder := anime1.NewBuilder(fetcher, cfg.UpstreamBase, log)
	resolver := anime1.NewResolver(fetcher, cfg.UpstreamAPI, log)

	// Recency store
	store, err := recent.Open(cfg.RecentDB, cfg.RecentCapacity, log)
	if err != nil {
		return nil, fmt.Errorf("recency store: %w", err)
	}

	// Gateway service
	gateway := services.NewGateway(cfg, log, m, fetcher, builder, resolver, store, ctx.BaseURL)
	ctx.WithGateway(gateway)

	// Create HTTP server
	srv := server.New(cfg, log, m)

	// Create API handlers
	handlers := api.NewHandlers(ctx)
	handlers.RegisterRoutes(srv.Router())

	return &App{
		Ctx:        ctx,
		Server:     srv,
		HTTPClient: httpClient,
	}, nil
}

// Run starts the application.
func (a *App) Run() error {
	a.Ctx.Log.Info("starting gateway server", "base_url", a.Ctx.BaseURL)
	return a.Server.Start()
}

// Shutdown gracefully shuts down the application.
func (a *App) Shutdown() {
	a.Ctx.Log.Info("shutting down application")

	if a.Ctx.Gateway != nil {
		if err := a.Ctx.Gateway.Close(); err != nil {
			a.Ctx.Log.WithError(err).Warn("gateway close failed")
		}
	}
}
