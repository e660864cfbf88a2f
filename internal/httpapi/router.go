// Package httpapi implements the HTTP Surface (C9): chi-routed JSON read
// endpoints over the Dashboard Aggregator, plus Prometheus metrics exposed
// via promhttp.
package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"checkcx/internal/dashboard"
	"checkcx/internal/metrics"
	appmw "checkcx/internal/middleware"
	"checkcx/internal/providers"
)

// requestTimeout must exceed providers.ProbeTimeout: both dashboard
// endpoints refresh with snapshot.RefreshAlways, which can block on a probe
// for up to ProbeTimeout. A shorter ceiling here would cut off a legitimate
// in-spec "degraded" response before the probe itself finishes.
const requestTimeout = providers.ProbeTimeout + 15*time.Second

// Dependencies aggregates everything the router needs to build handlers.
type Dependencies struct {
	Aggregator *dashboard.Aggregator
	Metrics    *metrics.Registry
	Logger     *zap.Logger
}

// NewRouter builds the chi router for the health monitor's read surface.
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.Recoverer)
	r.Use(appmw.RequestLogger(deps.Logger))
	r.Use(appmw.Metrics(deps.Metrics))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))
	r.Use(chimw.Timeout(requestTimeout))

	h := &handlers{aggregator: deps.Aggregator, logger: deps.Logger}

	r.Get("/healthz", h.health)
	r.Get("/api/dashboard", h.dashboard)
	r.Get("/api/group/{groupName}", h.group)

	if deps.Metrics != nil {
		r.Handle("/metrics", promhttp.Handler())
	}

	return r
}

type handlers struct {
	aggregator *dashboard.Aggregator
	logger     *zap.Logger
}
