package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/dhruvbuilds/strategia-connect/internal/config"
	appMiddleware "github.com/dhruvbuilds/strategia-connect/internal/middleware"
	"github.com/dhruvbuilds/strategia-connect/internal/services"
	"github.com/dhruvbuilds/strategia-connect/internal/session"
	"github.com/dhruvbuilds/strategia-connect/internal/verify"
)

// RouterDeps are what the HTTP layer is built from. Avatars and Recaptcha may
// be nil.
type RouterDeps struct {
	Config    *config.Config
	Sessions  *session.Manager
	Registry  *verify.Registry
	Avatars   *services.AvatarService
	Recaptcha *services.RecaptchaVerifier
	Limiter   *appMiddleware.IPRateLimiter
}

func NewRouter(d RouterDeps) http.Handler {
	cfg := d.Config
	limiter := d.Limiter
	if limiter == nil {
		limiter = appMiddleware.NewIPRateLimiter(cfg.VerifyRatePerMin, cfg.VerifyRateBurst)
	}

	sessionHandler := NewSessionHandler(d.Sessions, d.Registry, cfg.JWTSecret, cfg.JWTExpiration, cfg.AllowedOrigins)
	authHandler := NewAuthHandler(d.Sessions, d.Registry, d.Recaptcha)
	profileHandler := NewProfileHandler(d.Sessions)
	imageHandler := NewImageHandler(d.Sessions, d.Avatars, cfg.MaxUploadSizeMB)
	connectionHandler := NewConnectionHandler(d.Sessions)
	contentHandler := NewContentHandler(d.Sessions, d.Registry)
	adminHandler := NewAdminHandler(d.Sessions)

	r := chi.NewRouter()

	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)
	r.Use(chimw.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	r.Route("/api", func(r chi.Router) {
		r.Get("/registry", sessionHandler.GetRegistry)
		r.With(limiter.Middleware).Post("/sessions", sessionHandler.CreateSession)

		r.Group(func(r chi.Router) {
			r.Use(appMiddleware.JWTAuth(cfg.JWTSecret))

			r.Get("/session", sessionHandler.GetSession)
			r.Delete("/session", sessionHandler.EndSession)
			r.Put("/session/view", sessionHandler.Navigate)
			r.Get("/stream", sessionHandler.Stream)
			r.Get("/commands", sessionHandler.ListCommands)
			r.Post("/commands/{commandId}/retry", sessionHandler.RetryCommand)

			// Identity checks are rate limited per client address.
			r.Group(func(r chi.Router) {
				r.Use(limiter.Middleware)
				r.Post("/verify", authHandler.Verify)
				r.Post("/signup", authHandler.Signup)
				r.Post("/login", authHandler.Login)
			})
			r.Post("/logout", authHandler.Logout)

			r.Route("/profiles", func(r chi.Router) {
				r.Get("/", profileHandler.Discover)
				r.Get("/{profileId}", profileHandler.GetProfile)
				r.Post("/{profileId}/flag", profileHandler.Flag)
			})
			r.Put("/profile/settings", profileHandler.UpdateSettings)
			r.Post("/profile/avatar", imageHandler.UploadAvatar)

			r.Get("/connections", connectionHandler.ListConnections)
			r.Get("/requests/sent", connectionHandler.ListSent)
			r.Get("/requests/received", connectionHandler.ListReceived)
			r.Route("/connections/{profileId}", func(r chi.Router) {
				r.Post("/request", connectionHandler.Request)
				r.Post("/accept", connectionHandler.Accept)
				r.Post("/decline", connectionHandler.Decline)
				r.Post("/cancel", connectionHandler.Cancel)
			})

			r.Get("/announcements", contentHandler.ListAnnouncements)
			r.Get("/feedback/status", contentHandler.FeedbackStatus)
			r.Post("/feedback", contentHandler.SubmitFeedback)

			r.Route("/admin", func(r chi.Router) {
				r.With(limiter.Middleware).Post("/login", authHandler.AdminLogin)
				r.Post("/logout", authHandler.AdminLogout)
				r.Get("/profiles", adminHandler.ListProfiles)
				r.Get("/flagged", adminHandler.ListFlagged)
				r.Post("/profiles/{profileId}/unflag", adminHandler.Unflag)
				r.Delete("/profiles/{profileId}", adminHandler.RemoveProfile)
				r.Post("/announcements", adminHandler.PostAnnouncement)
				r.Delete("/announcements/{announcementId}", adminHandler.DeleteAnnouncement)
				r.Get("/feedback", adminHandler.ListFeedback)
			})
		})
	})

	return r
}
