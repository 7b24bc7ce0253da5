package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Dosada05/tcg-tournaments/config"
	"github.com/Dosada05/tcg-tournaments/db"
	"github.com/Dosada05/tcg-tournaments/handlers"
	"github.com/Dosada05/tcg-tournaments/jobs"
	"github.com/Dosada05/tcg-tournaments/live"
	"github.com/Dosada05/tcg-tournaments/payments"
	"github.com/Dosada05/tcg-tournaments/repositories"
	"github.com/Dosada05/tcg-tournaments/routes"
	"github.com/Dosada05/tcg-tournaments/services"
	"github.com/Dosada05/tcg-tournaments/storage"
	"github.com/go-chi/chi/v5"
	_ "github.com/lib/pq"
)

const (
	shutdownTimeout     = 15 * time.Second
	paymentSyncDeadline = time.Minute
)

func main() {
	// Загрузка конфигурации
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	// Настройка логгера
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)
	logger.Info("configuration loaded", slog.Int("port", cfg.ServerPort))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Миграции и подключение к базе данных
	version, err := db.Migrate(cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to apply migrations", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("database schema is up to date", slog.Uint64("version", uint64(version)))

	dbConn, err := db.Connect(cfg.DatabaseURL, 5*time.Second)
	if err != nil {
		logger.Error("failed to connect to database", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := dbConn.Close(); err != nil {
			logger.Error("failed to close database connection", slog.Any("error", err))
		} else {
			logger.Info("database connection closed")
		}
	}()
	logger.Info("database connection established")

	// Хаб наблюдателей и, если задан Redis, ретрансляция между инстансами
	hub := live.NewHub(logger)
	go hub.Run(ctx)

	var publisher live.Publisher = hub
	if cfg.RedisURL != "" {
		redisClient, err := live.NewRedisClient(cfg.RedisURL, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			logger.Error("failed to configure redis", slog.Any("error", err))
			os.Exit(1)
		}
		defer redisClient.Close()

		relay := live.NewRedisRelay(redisClient, cfg.RedisChannel, hub, logger)
		go func() {
			if err := relay.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("redis relay stopped", slog.Any("error", err))
			}
		}()
		publisher = relay
		logger.Info("live events relayed through redis", slog.String("channel", cfg.RedisChannel))
	}

	// Платежный провайдер
	gateway := payments.NewMercadoPagoClient(payments.MercadoPagoConfig{
		AccessToken: cfg.MercadoPagoAccessToken,
		BaseURL:     cfg.PaymentAPIURL,
		Timeout:     cfg.PaymentTimeout,
		MaxAttempts: cfg.PaymentMaxAttempts,
	}, logger)
	if cfg.MercadoPagoAccessToken == "" {
		logger.Warn("MERCADO_PAGO_ACCESS_TOKEN is not set, registrations will fail at payment generation")
	}

	// Архив результатов в Cloudflare R2 (опционально)
	var uploader storage.FileUploader
	if cfg.R2Enabled() {
		uploader, err = storage.NewCloudflareR2Uploader(ctx, storage.CloudflareR2UploaderConfig{
			AccountID:       cfg.R2AccountID,
			AccessKeyID:     cfg.R2AccessKeyID,
			SecretAccessKey: cfg.R2SecretAccessKey,
			BucketName:      cfg.R2BucketName,
			PublicBaseURL:   cfg.R2PublicBaseURL,
		})
		if err != nil {
			logger.Error("failed to initialize Cloudflare R2 uploader", slog.Any("error", err))
			os.Exit(1)
		}
		logger.Info("Cloudflare R2 uploader initialized")
	} else {
		logger.Info("Cloudflare R2 is not configured, results archive disabled")
	}

	// Инициализация репозиториев
	userRepo := repositories.NewPostgresUserRepository(dbConn)
	tournamentRepo := repositories.NewPostgresTournamentRepository(dbConn)
	registrationRepo := repositories.NewPostgresRegistrationRepository(dbConn)
	matchRepo := repositories.NewPostgresMatchRepository(dbConn)
	gameTableRepo := repositories.NewPostgresGameTableRepository(dbConn)

	// Инициализация сервисов
	authService := services.NewAuthService(userRepo)
	userService := services.NewUserService(userRepo)
	registrationService := services.NewRegistrationService(
		registrationRepo,
		userRepo,
		tournamentRepo,
		gateway,
		publisher,
		services.RegistrationServiceConfig{PaymentTimeout: cfg.PaymentTimeout},
		logger,
	)
	tournamentService := services.NewTournamentService(tournamentRepo, registrationRepo, matchRepo, uploader, logger)
	matchService := services.NewMatchService(matchRepo, tournamentRepo, gameTableRepo, userRepo, publisher, logger)
	gameTableService := services.NewGameTableService(gameTableRepo)
	logger.Info("services initialized")

	scheduler, err := jobs.StartPaymentSync(ctx, registrationService, cfg.PaymentSyncInterval, paymentSyncDeadline, logger)
	if err != nil {
		logger.Error("failed to start payment sync", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := scheduler.Shutdown(); err != nil {
			logger.Error("failed to stop scheduler", slog.Any("error", err))
		}
	}()

	// Настройка маршрутизатора
	router := chi.NewRouter()
	routes.SetupRoutes(router, routes.Handlers{
		Auth:         handlers.NewAuthHandler(authService, cfg.JWTSecretKey),
		User:         handlers.NewUserHandler(userService),
		Tournament:   handlers.NewTournamentHandler(tournamentService, registrationService),
		Registration: handlers.NewRegistrationHandler(registrationService),
		Match:        handlers.NewMatchHandler(matchService),
		GameTable:    handlers.NewGameTableHandler(gameTableService),
		WebSocket:    handlers.NewWebSocketHandler(hub, cfg.AllowedOrigins, logger),
	}, routes.Options{
		JWTSecret:      cfg.JWTSecretKey,
		AllowedOrigins: cfg.AllowedOrigins,
		Logger:         logger,
	})

	// Настройка и запуск HTTP-сервера. WriteTimeout покрывает вызов платежного провайдера.
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.ServerPort),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.PaymentTimeout + 15*time.Second,
		IdleTimeout:  120 * time.Second,
		ErrorLog:     slog.NewLogLogger(logger.Handler(), slog.LevelError),
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("starting server", slog.String("address", server.Addr))
		serverErrors <- server.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", slog.Any("error", err))
			os.Exit(1)
		}
		logger.Info("server stopped gracefully")
	case <-ctx.Done():
		logger.Info("shutdown signal received")
		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancelShutdown()

		logger.Info("shutting down server", slog.Duration("timeout", shutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("graceful shutdown failed", slog.Any("error", err))
			if closeErr := server.Close(); closeErr != nil {
				logger.Error("failed to force close server", slog.Any("error", closeErr))
			}
		} else {
			logger.Info("server shutdown complete")
		}
	}
	logger.Info("application exited")
}
