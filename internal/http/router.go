package http

import (
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/talktalk/server/internal/auth"
	"github.com/talktalk/server/internal/http/handlers"
	"github.com/talktalk/server/internal/middleware"
	"github.com/talktalk/server/internal/store"
	"github.com/talktalk/server/internal/ws"
)

// NewRouter creates a new HTTP router with all routes configured
func NewRouter(
	otpHandler *handlers.OtpHandler,
	directoryHandler *handlers.DirectoryHandler,
	gateway *ws.Gateway,
	jwtService *auth.JWTService,
	identities *store.IdentityStore,
	metricsRegistry *prometheus.Registry,
) *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)

	healthHandler := handlers.NewHealthHandler()
	r.Get("/health", healthHandler.ServeHTTP)
	r.Handle("/metrics", promhttp.HandlerFor(metricsRegistry, promhttp.HandlerOpts{}))

	r.Post("/request-otp", otpHandler.HandleRequestOTP)
	r.Post("/verify-otp", otpHandler.HandleVerifyOTP)
	r.Get("/identities", directoryHandler.HandleIdentities)
	r.Get("/history/{idA}/{idB}", directoryHandler.HandleHistory)

	r.Get("/ws", gateway.HandleWS)

	// Protected routes (require valid JWT)
	r.Group(func(r chi.Router) {
		r.Use(middleware.AuthMiddleware(jwtService, identities))
		r.Get("/me", directoryHandler.HandleMe)
	})

	return r
}
