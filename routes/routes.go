package routes

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/Dosada05/tcg-tournaments/docs"
	"github.com/Dosada05/tcg-tournaments/handlers"
	"github.com/Dosada05/tcg-tournaments/middleware"
	"github.com/Dosada05/tcg-tournaments/models"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	httpSwagger "github.com/swaggo/http-swagger"
)

type Handlers struct {
	Auth         *handlers.AuthHandler
	User         *handlers.UserHandler
	Tournament   *handlers.TournamentHandler
	Registration *handlers.RegistrationHandler
	Match        *handlers.MatchHandler
	GameTable    *handlers.GameTableHandler
	WebSocket    *handlers.WebSocketHandler
}

type Options struct {
	JWTSecret      string
	AllowedOrigins []string
	Logger         *slog.Logger
}

func SetupRoutes(router chi.Router, h Handlers, opts Options) {
	router.Use(chiMiddleware.RequestID)
	router.Use(chiMiddleware.RealIP)
	router.Use(requestLogger(opts.Logger))
	router.Use(chiMiddleware.Recoverer)
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   opts.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	authenticate := middleware.Authenticate(opts.JWTSecret, opts.Logger)
	adminOnly := middleware.RequireRole(models.RoleAdmin)

	router.Get("/swagger/openapi.json", docs.ServeOpenAPI)
	router.Get("/swagger/*", httpSwagger.Handler(httpSwagger.URL("/swagger/openapi.json")))

	router.Get("/ws", h.WebSocket.ServeWs)

	router.Route("/auth", func(r chi.Router) {
		r.Post("/signup", h.Auth.Signup)
		r.Post("/login", h.Auth.Login)
	})

	router.Route("/tournaments", func(r chi.Router) {
		r.Get("/", h.Tournament.List)
		r.Get("/{tournamentID}", h.Tournament.GetByID)
		r.Get("/{tournamentID}/capacity", h.Tournament.Capacity)

		r.Group(func(r chi.Router) {
			r.Use(authenticate, adminOnly)
			r.Post("/", h.Tournament.Create)
			r.Patch("/{tournamentID}", h.Tournament.Update)
			r.Delete("/{tournamentID}", h.Tournament.Delete)
			r.Post("/{tournamentID}/archive", h.Tournament.Archive)
		})
	})

	router.Route("/registrations", func(r chi.Router) {
		r.Use(authenticate)
		r.Post("/", h.Registration.Create)
		r.Get("/", h.Registration.List)
		r.Get("/{registrationID}", h.Registration.GetByID)

		r.Group(func(r chi.Router) {
			r.Use(adminOnly)
			r.Patch("/{registrationID}", h.Registration.Update)
			r.Delete("/{registrationID}", h.Registration.Delete)
			r.Post("/sync-payments", h.Registration.SyncPayments)
		})
	})

	router.Route("/matches", func(r chi.Router) {
		r.Get("/", h.Match.List)
		r.Get("/{matchID}", h.Match.GetByID)

		r.Group(func(r chi.Router) {
			r.Use(authenticate, adminOnly)
			r.Post("/", h.Match.Create)
			r.Patch("/{matchID}", h.Match.Update)
			r.Delete("/{matchID}", h.Match.Delete)
		})
	})

	router.Route("/game-tables", func(r chi.Router) {
		r.Get("/", h.GameTable.List)
		r.Get("/{tableID}", h.GameTable.GetByID)

		r.Group(func(r chi.Router) {
			r.Use(authenticate, adminOnly)
			r.Post("/", h.GameTable.Create)
			r.Patch("/{tableID}", h.GameTable.Update)
			r.Delete("/{tableID}", h.GameTable.Delete)
		})
	})

	router.Route("/users", func(r chi.Router) {
		r.Use(authenticate)
		r.Get("/me", h.User.Me)
		r.Get("/{userID}", h.User.GetByID)
		r.Patch("/{userID}", h.User.Update)

		r.Group(func(r chi.Router) {
			r.Use(adminOnly)
			r.Get("/", h.User.List)
			r.Delete("/{userID}", h.User.Delete)
		})
	})
}

// requestLogger пишет одну строку slog на запрос.
func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			defer func() {
				logger.Info("http request",
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path),
					slog.Int("status", ww.Status()),
					slog.Int("bytes", ww.BytesWritten()),
					slog.Duration("duration", time.Since(start)),
					slog.String("request_id", chiMiddleware.GetReqID(r.Context())),
				)
			}()
			next.ServeHTTP(ww, r)
		})
	}
}
