package http

import (
	"net/http"
	"time"

	"github.com/didip/tollbooth/v6"
	"github.com/didip/tollbooth/v6/limiter"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/virangk414141/vimesta2/internal/auth"
	"github.com/virangk414141/vimesta2/internal/http/handlers"
	"github.com/virangk414141/vimesta2/internal/middleware"
)

// NewRouter creates a new HTTP router with all routes configured
func NewRouter(authHandler *handlers.AuthHandler, fileHandler *handlers.FileHandler, authService *auth.Service) *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)

	healthHandler := handlers.NewHealthHandler()
	r.Get("/api/health", healthHandler.ServeHTTP)

	// Per-IP throttle on the auth endpoints. Per-phone throttling happens
	// inside the auth handler on top of this.
	authLimiter := tollbooth.NewLimiter(1, &limiter.ExpirableOptions{DefaultExpirationTTL: time.Hour})
	authLimiter.SetBurst(5)
	authLimiter.SetIPLookups([]string{"X-Forwarded-For", "X-Real-IP", "RemoteAddr"})
	authLimiter.SetMessageContentType("application/json")
	authLimiter.SetMessage(`{"error":"rate_limited","message":"Too many requests, slow down."}`)

	r.Route("/api/auth", func(r chi.Router) {
		r.Use(ipLimit(authLimiter))
		r.Post("/request-otp", authHandler.HandleRequestOTP)
		r.Post("/verify-otp", authHandler.HandleVerifyOTP)
	})

	// Public share links need no session.
	r.Get("/share/{hash}", fileHandler.HandlePublicFile)

	// Protected routes (require valid JWT)
	r.Group(func(r chi.Router) {
		r.Use(middleware.AuthMiddleware(authService))

		r.Get("/api/auth/verify", authHandler.HandleVerifyAuth)
		r.Post("/api/auth/logout", authHandler.HandleLogout)

		r.Route("/api/files", func(r chi.Router) {
			r.Post("/upload", fileHandler.HandleUpload)
			r.Get("/", fileHandler.HandleList)
			r.Get("/{id}/download", fileHandler.HandleDownload)
			r.Delete("/{id}", fileHandler.HandleDelete)
			r.Post("/{id}/share", fileHandler.HandleShare)
		})

		r.Get("/api/user/profile", authHandler.HandleProfile)
		r.Get("/api/user/storage", fileHandler.HandleStorageStats)
	})

	return r
}

func ipLimit(lmt *limiter.Limiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return tollbooth.LimitHandler(lmt, next)
	}
}
