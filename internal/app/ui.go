package app

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sourccey/kiosk-relay/internal/handler"
	"github.com/sourccey/kiosk-relay/internal/middleware"
	redisclient "github.com/sourccey/kiosk-relay/internal/redis"
	"github.com/sourccey/kiosk-relay/internal/sse"
)

// newHealthChecker avoids handing a typed nil to the health handler.
func newHealthChecker(client *redisclient.Client) handler.HealthChecker {
	if client == nil {
		return nil
	}
	return client
}

// newUIRouter builds the loopback HTTP surface used by the kiosk shell.
func newUIRouter(svc handler.KioskService, broker *sse.Broker, redis handler.HealthChecker) http.Handler {
	pairingHandler := handler.NewPairingHandler(svc)
	eventsHandler := handler.NewEventsHandler(broker, svc)
	healthHandler := handler.NewHealthHandler(redis)
	securityHeaders := middleware.NewSecurityHeadersMiddleware(true)
	bodyLimit := middleware.NewBodyLimitMiddleware(0)

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(middleware.LoopbackOnly)
	r.Use(middleware.RequestLogger)
	r.Use(chimiddleware.Recoverer)
	r.Use(bodyLimit.Handler)

	r.Get("/health", healthHandler.ServeHTTP)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Use(securityHeaders.Handler)
		r.Get("/events", eventsHandler.ServeHTTP)
		r.Mount("/", pairingHandler.Routes())
	})

	return r
}
