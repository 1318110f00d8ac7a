// Package appctx provides the application context that holds all runtime dependencies.
package appctx

import (
	"fmt"

	"anime1-proxy-go/pkg/config"
	"anime1-proxy-go/pkg/logging"
	"anime1-proxy-go/pkg/metrics"
	"anime1-proxy-go/pkg/services"
)

// Context holds all application runtime dependencies.
// Pass this single struct to components instead of individual parameters.
type Context struct {
	Config  *config.Config
	Log     *logging.Logger
	Metrics *metrics.Metrics
	Gateway *services.Gateway
	BaseURL string
}

// New creates a new application context.
func New(cfg *config.Config, log *logging.Logger) *Context {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = fmt.Sprintf("http://localhost:%d", cfg.Port)
	}
	return &Context{
		Config:  cfg,
		Log:     log,
		BaseURL: baseURL,
	}
}

// WithGateway sets the gateway service.
func (c *Context) WithGateway(g *services.Gateway) *Context {
	c.Gateway = g
	return c
}

// WithMetrics sets the metrics collectors.
func (c *Context) WithMetrics(m *metrics.Metrics) *Context {
	c.Metrics = m
	return c
}
