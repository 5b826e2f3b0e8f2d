package api

import (
	"errors"
	"net/http"
	"sort"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Routes constructs the chi router containing all endpoints.
func (a *API) Routes() (http.Handler, error) {
	if a == nil {
		return nil, errors.New("nil api")
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	if a.config.TrustProxyHeaders {
		r.Use(middleware.RealIP)
	}
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(a.config.RequestTimeout))

	r.Get("/healthz", healthHandler)
	r.Get("/readyz", a.handleReady)
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		if a.config.GenerateRateLimit > 0 {
			r.Use(httprate.LimitByIP(a.config.GenerateRateLimit, rateLimitWindow))
		}
		r.Get("/generate", a.handleGenerate(a.config.Debug))
		r.Get("/get", a.handleGenerate(a.config.Debug))
		r.Get("/get2", a.handleGenerate(true))
	})

	r.Get("/cleanup", a.handleCleanup)

	r.Route("/v1", func(r chi.Router) {
		r.Get("/generations", a.handleGenerations)
	})

	prefixes := make([]string, 0, len(a.config.StaticRoots))
	for prefix := range a.config.StaticRoots {
		prefixes = append(prefixes, prefix)
	}
	sort.Strings(prefixes)
	for _, prefix := range prefixes {
		mount := "/" + prefix
		r.Handle(mount+"/*", http.StripPrefix(mount, staticHandler(a.config.StaticRoots[prefix])))
	}

	return r, nil
}
