// Package httpapi wires the control plane's minimal public HTTP surface:
// a health check, the Prometheus scrape endpoint, and the WebSocket
// upgrade route. The operator-facing trading API (market listings, manual
// trade approval, portfolio queries) is intentionally not part of this
// surface; nothing here replaces it.
package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/aclarkson2013/boz-weather-trader/internal/telemetry"
	"github.com/aclarkson2013/boz-weather-trader/internal/wsgateway"
)

// WSHandler is the minimal surface httpapi needs from a WebSocket gateway.
type WSHandler interface {
	HandleWS(w http.ResponseWriter, r *http.Request)
}

var _ WSHandler = (*wsgateway.Gateway)(nil)

// New builds the chi router serving /health, /metrics, and /ws.
func New(ws WSHandler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(telemetry.Middleware(routeTemplate))

	r.Get("/health", healthHandler)
	r.Handle("/metrics", telemetry.Handler())
	r.Get("/ws", ws.HandleWS)

	return r
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok","service":"boz-weather-trader"}`))
}

// routeTemplate reports the matched chi route pattern so the metrics
// middleware never sees unbounded path cardinality.
func routeTemplate(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return r.URL.Path
}
