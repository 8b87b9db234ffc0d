package adminapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/arkeep-io/switchboard/internal/messagelog"
)

// RouterConfig holds every dependency the admin router needs.
type RouterConfig struct {
	Switchboard StatusProvider
	MsgLog      *messagelog.Log
	Registry    *prometheus.Registry
	Logger      *zap.Logger
}

// NewRouter builds the admin HTTP surface: liveness, Prometheus metrics,
// and a small read-only debug API over space/connection/message state.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger(cfg.Logger))
	r.Use(middleware.Recoverer)

	r.Get("/healthz", healthHandler{}.ServeHTTP)
	r.Handle("/metrics", promhttp.HandlerFor(cfg.Registry, promhttp.HandlerOpts{}))

	r.Route("/debug", func(r chi.Router) {
		r.Get("/spaces", spacesHandler{sb: cfg.Switchboard}.ServeHTTP)
		r.Get("/messages", messagesHandler{log: cfg.MsgLog}.ServeHTTP)
	})

	return r
}
