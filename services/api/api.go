// Package api exposes the artifact generator and retention sweeper over HTTP.
package api

import (
	"context"
	"errors"
	"io"
	"log"
	"net/http"
	"time"

	"stagegen/pkg/render"
	"stagegen/services/generator"
	"stagegen/services/ledger"
	"stagegen/services/sweeper"
)

const (
	defaultRequestTimeout = 60 * time.Second
	rateLimitWindow       = time.Minute
)

// Generator runs the artifact pipeline.
type Generator interface {
	Generate(ctx context.Context, req generator.Request) (*generator.Result, error)
}

// Sweeper runs one retention sweep.
type Sweeper interface {
	Sweep(ctx context.Context) sweeper.Report
}

// History lists recorded generations.
type History interface {
	Recent(ctx context.Context, limit int) ([]ledger.Generation, error)
}

// ReadinessCheck reports whether a dependency can serve traffic.
type ReadinessCheck func(ctx context.Context) error

// Config controls runtime behaviour for the HTTP handlers.
type Config struct {
	// PublicBaseURL pins the base of every generated link. Empty derives it
	// from the request Host.
	PublicBaseURL string
	// TrustProxyHeaders honours X-Forwarded-* headers for link bases and
	// client IPs. Enable only behind a proxy that overwrites them.
	TrustProxyHeaders bool
	// StaticRoots maps a URL prefix (without slashes) to a directory served
	// read-only beneath it.
	StaticRoots map[string]string
	// Debug adds the descriptor block to every generate response.
	Debug bool
	// GenerateRateLimit caps generate requests per client IP per minute.
	// Zero disables the limit.
	GenerateRateLimit int
	RequestTimeout    time.Duration
	Logger            *log.Logger
}

// API wires dependencies and configuration for the HTTP handlers.
type API struct {
	gen      Generator
	sweeper  Sweeper
	history  History
	renderer *render.Engine
	ready    map[string]ReadinessCheck
	config   Config
}

// Option sets an optional dependency.
type Option func(*API)

// WithHistory enables /v1/generations.
func WithHistory(h History) Option {
	return func(a *API) { a.history = h }
}

// WithReadinessCheck adds a named check to /readyz.
func WithReadinessCheck(name string, check ReadinessCheck) Option {
	return func(a *API) {
		if check != nil {
			a.ready[name] = check
		}
	}
}

// New initialises the API layer with defaults applied to cfg.
func New(gen Generator, sw Sweeper, renderer *render.Engine, cfg Config, opts ...Option) (*API, error) {
	if gen == nil {
		return nil, errors.New("generator is required")
	}
	if sw == nil {
		return nil, errors.New("sweeper is required")
	}
	if renderer == nil {
		return nil, errors.New("renderer is required")
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = defaultRequestTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = log.New(io.Discard, "", 0)
	}

	a := &API{
		gen:      gen,
		sweeper:  sw,
		renderer: renderer,
		ready:    map[string]ReadinessCheck{},
		config:   cfg,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func (a *API) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := withTimeout(r.Context())
	defer cancel()

	failures := map[string]string{}
	for name, check := range a.ready {
		if err := check(ctx); err != nil {
			failures[name] = err.Error()
		}
	}
	if len(failures) > 0 {
		respondJSON(w, http.StatusServiceUnavailable, map[string]any{"ready": false, "failures": failures})
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"ready": true})
}
