// Package api serves the artifacts of a completed run over HTTP: panel,
// posterior summary, convergence report, scenarios and comparisons.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Server routes artifact queries.
type Server struct {
	artifacts *Artifacts
	registry  *prometheus.Registry
	metrics   *metrics
	validate  *validator.Validate
	router    chi.Router
}

// NewServer builds the router over a. Each server owns its metrics
// registry so several can coexist in one process.
func NewServer(a *Artifacts) *Server {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	s := &Server{
		artifacts: a,
		registry:  reg,
		metrics:   newMetrics(reg),
		validate:  newValidator(),
	}
	s.router = s.routes()
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))
	r.Use(s.metrics.instrument)

	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))

	r.Route("/api", func(r chi.Router) {
		r.Use(render.SetContentType(render.ContentTypeJSON))
		r.Get("/summary", s.handleSummary)
		r.Get("/convergence", s.handleConvergence)
		r.Get("/panel", s.handlePanel)
		r.Get("/retailers", s.handleRetailers)
		r.Get("/manifest", s.handleManifest)
		r.Get("/scenarios/price", s.handlePriceScenario)
		r.Get("/scenarios/discount", s.handleDiscountScenario)
		r.Get("/compare", s.handleCompare)
		r.Get("/compare/elasticities", s.handleCompareElasticities)
		r.Get("/probability", s.handleProbability)
	})
	return r
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		zap.L().Debug("api: request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}
