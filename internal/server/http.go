package server

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/windfall/jamtalk_service/internal/config"
	httphandler "github.com/windfall/jamtalk_service/internal/handler/http"
	wshandler "github.com/windfall/jamtalk_service/internal/handler/ws"
	"github.com/windfall/jamtalk_service/internal/middleware"
	"github.com/windfall/jamtalk_service/pkg/response"
)

// HTTPServer represents the HTTP server.
type HTTPServer struct {
	server *http.Server
	log    zerolog.Logger
}

// Handlers groups the HTTP and WebSocket handlers the router mounts.
type Handlers struct {
	Health    *httphandler.HealthHandler
	Practice  *httphandler.PracticeHandler
	Narration *httphandler.NarrationHandler
	Billing   *httphandler.BillingHandler
	Practices *wshandler.Handler
}

// NewHTTPServer creates a new HTTP server.
func NewHTTPServer(cfg *config.Config, log zerolog.Logger, h Handlers, hub *WebSocketHub) *HTTPServer {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logger(log))
	r.Use(middleware.Recovery(log))

	// CORS
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSAllowedOrigins,
		AllowedMethods:   cfg.CORSAllowedMethods,
		AllowedHeaders:   cfg.CORSAllowedHeaders,
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		response.NotFound(w, "route not found")
	})

	// Health endpoints (public)
	r.Get("/health", h.Health.Health)
	r.Get("/ready", h.Health.Ready)
	r.Get("/live", h.Health.Live)

	identity := middleware.Identity(cfg.IsProduction())

	// API routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(chimiddleware.Compress(5))
		r.Use(identity)

		r.Get("/prompt", h.Practice.Prompt)
		r.Get("/usage", h.Practice.Usage)
		r.Post("/usage/reset", h.Practice.ResetUsage)

		// Subscription gated
		r.Post("/script", h.Practice.Script)
		r.Post("/narration/render", h.Narration.Render)

		r.Post("/billing/checkout", h.Billing.Checkout)
		r.Post("/billing/confirm", h.Billing.Confirm)
	})

	// Practice socket, uncompressed
	r.With(identity).Get("/ws/practice", func(w http.ResponseWriter, r *http.Request) {
		hub.HandleWebSocket(w, r, h.Practices)
	})

	server := &http.Server{
		Addr:         cfg.HTTPAddress(),
		Handler:      r,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	return &HTTPServer{
		server: server,
		log:    log,
	}
}

// Start starts the HTTP server.
func (s *HTTPServer) Start() error {
	s.log.Info().Str("addr", s.server.Addr).Msg("Starting HTTP server")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the HTTP server.
func (s *HTTPServer) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("Shutting down HTTP server")
	return s.server.Shutdown(ctx)
}
