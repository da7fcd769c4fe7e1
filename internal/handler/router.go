package handler

import (
	"net/http"

	"quicknotes/internal/config"
	"quicknotes/internal/middleware"
	"quicknotes/internal/service"
	"quicknotes/pkg/response"

	"github.com/gorilla/mux"
)

type Services struct {
	Auth  *service.AuthService
	Users *service.UserService
	Notes *service.NoteService
}

// NewRouter builds the store server's HTTP API under /api/v1. limiter may be
// nil to disable rate limiting.
func NewRouter(cfg *config.Config, services Services, limiter *middleware.RateLimiter) *mux.Router {
	authHandler := NewAuthHandler(services.Auth)
	userHandler := NewUserHandler(services.Users)
	noteHandler := NewNoteHandler(services.Notes)

	r := mux.NewRouter()

	r.Use(middleware.LoggerMiddleware())
	r.Use(middleware.CORSMiddleware(cfg.CORS))

	api := r.PathPrefix("/api/v1").Subrouter()

	// anonymous routes are limited per IP, the rest per user
	public := api.PathPrefix("/auth").Subrouter()
	if limiter != nil {
		public.Use(limiter.Middleware())
	}

	public.HandleFunc("/register", authHandler.Register).Methods("POST", "OPTIONS")
	public.HandleFunc("/login", authHandler.Login).Methods("POST", "OPTIONS")
	public.HandleFunc("/refresh", authHandler.Refresh).Methods("POST", "OPTIONS")
	public.HandleFunc("/logout", authHandler.Logout).Methods("POST", "OPTIONS")

	protected := api.PathPrefix("").Subrouter()
	protected.Use(middleware.AuthMiddleware(cfg.JWT.Secret))
	if limiter != nil {
		protected.Use(limiter.Middleware())
	}

	protected.HandleFunc("/users/me", userHandler.GetMe).Methods("GET", "OPTIONS")
	protected.HandleFunc("/users/me", userHandler.UpdateMe).Methods("PUT", "OPTIONS")

	protected.HandleFunc("/notes", noteHandler.Create).Methods("POST", "OPTIONS")
	protected.HandleFunc("/notes", noteHandler.List).Methods("GET", "OPTIONS")
	protected.HandleFunc("/notes/{id}", noteHandler.Get).Methods("GET", "OPTIONS")
	protected.HandleFunc("/notes/{id}", noteHandler.Update).Methods("PATCH", "OPTIONS")
	protected.HandleFunc("/notes/{id}", noteHandler.Delete).Methods("DELETE", "OPTIONS")

	r.HandleFunc("/health", healthHandler).Methods("GET")

	return r
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	response.Success(w, map[string]string{
		"status":  "healthy",
		"service": "quicknotes",
	})
}
