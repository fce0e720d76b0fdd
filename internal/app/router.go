package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/conductor-hq/conductor-stock/internal/counts"
	"github.com/conductor-hq/conductor-stock/internal/kits"
	"github.com/conductor-hq/conductor-stock/internal/locations"
	"github.com/conductor-hq/conductor-stock/internal/observability"
	"github.com/conductor-hq/conductor-stock/internal/reservations"
	"github.com/conductor-hq/conductor-stock/internal/stock"
	"github.com/conductor-hq/conductor-stock/internal/transfers"
	"github.com/conductor-hq/conductor-stock/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger *slog.Logger
	Config *Config

	LocationsHandler    *locations.Handler
	StockHandler        *stock.Handler
	ReservationsHandler *reservations.Handler
	TransfersHandler    *transfers.Handler
	CountsHandler       *counts.Handler
	KitsHandler         *kits.Handler
	JobHandler          *jobs.Handler

	Metrics *observability.Metrics
}

// NewRouter constructs the chi.Router with Conductor defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	if params.LocationsHandler != nil {
		r.Route("/locations", params.LocationsHandler.MountRoutes)
	}
	if params.StockHandler != nil {
		r.Route("/stock", params.StockHandler.MountRoutes)
	}
	if params.ReservationsHandler != nil {
		r.Route("/reservations", params.ReservationsHandler.MountRoutes)
	}
	if params.TransfersHandler != nil {
		r.Route("/transfers", params.TransfersHandler.MountRoutes)
	}
	if params.CountsHandler != nil {
		r.Route("/inventories", params.CountsHandler.MountRoutes)
	}
	if params.KitsHandler != nil {
		r.Route("/kits", params.KitsHandler.MountRoutes)
	}
	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	return r
}
