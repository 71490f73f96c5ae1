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

	"github.com/Dosada05/tournament-progression/brackets"
	"github.com/Dosada05/tournament-progression/config"
	"github.com/Dosada05/tournament-progression/db"
	"github.com/Dosada05/tournament-progression/handlers"
	"github.com/Dosada05/tournament-progression/models"
	"github.com/Dosada05/tournament-progression/pairing"
	"github.com/Dosada05/tournament-progression/repositories"
	api "github.com/Dosada05/tournament-progression/routes"
	"github.com/Dosada05/tournament-progression/services"
	"github.com/Dosada05/tournament-progression/storage"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
)

const (
	failureTrackerTTL = 30 * 24 * time.Hour
	shutdownTimeout   = 15 * time.Second
)

func main() {
	// Настройка логгера
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	if err := run(logger); err != nil {
		logger.Error("application failed", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("application exited")
}

func run(logger *slog.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Загрузка конфигурации
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	logger.Info("configuration loaded", slog.Int("port", cfg.ServerPort))

	// Подключение к базе данных
	dbConn, err := db.Connect(cfg.DatabaseURL, 5*time.Second, db.PoolOptions{
		MaxOpenConns: cfg.DBMaxOpenConns,
		MaxIdleConns: cfg.DBMaxIdleConns,
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer func() {
		if err := dbConn.Close(); err != nil {
			logger.Error("failed to close database connection", slog.Any("error", err))
		} else {
			logger.Info("database connection closed")
		}
	}()
	if err := db.ApplySchema(ctx, dbConn); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	logger.Info("database connection established")

	// Инициализация репозиториев
	matchRepo := repositories.NewPostgresMatchRepository(dbConn)
	candidateRepo := repositories.NewPostgresCandidateRepository(dbConn)
	statusRepo := repositories.NewPostgresStatusRepository(dbConn)
	fallbackConfigRepo := repositories.NewPostgresFallbackConfigRepository(dbConn)

	failures, closeFailures, err := newFailureStore(ctx, cfg.RedisURL, logger)
	if err != nil {
		return err
	}
	defer closeFailures()
	logger.Info("repositories initialized")

	pairingClient, err := pairing.NewClient(pairing.Config{
		BaseURL:     cfg.PairingServiceURL,
		APIKey:      cfg.PairingServiceAPIKey,
		MaxAttempts: cfg.PairingMaxAttempts,
		RetryDelay:  cfg.PairingRetryDelay,
		Logger:      logger,
	})
	if err != nil {
		return fmt.Errorf("failed to create pairing client: %w", err)
	}

	var notifier services.AdminNotifier = services.NewNoopNotifier()
	if cfg.SMTP.Enabled() {
		notifier = services.NewEmailService(services.SMTPConfig{
			Host:     cfg.SMTP.Host,
			Port:     cfg.SMTP.Port,
			User:     cfg.SMTP.User,
			Password: cfg.SMTP.Password,
			From:     cfg.SMTP.From,
		})
		logger.Info("smtp notifications enabled", slog.String("host", cfg.SMTP.Host))
	}

	// Инициализация сервисов
	sched := services.NewScheduler()
	bus := services.NewEventBus(logger)
	fallbackService := services.NewFallbackService(fallbackConfigRepo, failures, notifier, nil, sched, logger)
	progressionService := services.NewProgressionService(
		statusRepo,
		matchRepo,
		candidateRepo,
		pairingClient,
		fallbackService,
		bus,
		sched,
		logger,
		cfg.RecheckDelay,
	)
	monitorService := services.NewMonitorService(progressionService, matchRepo, candidateRepo, sched, logger, services.DefaultActionDelay)
	matchService := services.NewMatchService(matchRepo, logger)
	logger.Info("services initialized")

	// Инициализация WebSocket Hub
	wsHub := brackets.NewHub(logger)
	go wsHub.Run(ctx)
	logger.Info("WebSocket Hub started")

	// Подписчики событий прогрессии
	bus.Subscribe(wsHub.ProgressionListener())
	bus.Subscribe(monitorService.Listener())
	bus.Subscribe(services.NewNotificationListener(progressionService, notifier, logger))

	r2 := storage.R2Config{
		AccountID:       cfg.R2.AccountID,
		AccessKeyID:     cfg.R2.AccessKeyID,
		SecretAccessKey: cfg.R2.SecretAccessKey,
		BucketName:      cfg.R2.BucketName,
		PublicBaseURL:   cfg.R2.PublicBaseURL,
	}
	if r2.Configured() {
		store, err := storage.NewR2Store(ctx, r2, logger)
		if err != nil {
			return fmt.Errorf("failed to initialize Cloudflare R2 store: %w", err)
		}
		bus.SubscribeTo(models.EventTournamentCompleted, storage.NewArchiver(store, progressionService, logger).Listener())
		logger.Info("tournament archiving to Cloudflare R2 enabled", slog.String("bucket", r2.BucketName))
	}

	resumeMonitoring(ctx, progressionService, monitorService, cfg.MonitorInterval, logger)

	// Инициализация обработчиков HTTP
	router := chi.NewRouter()
	api.SetupRoutes(router, api.Handlers{
		Progression: handlers.NewProgressionHandler(progressionService, monitorService, fallbackDefaults(cfg.Fallback), cfg.MonitorInterval),
		Match:       handlers.NewMatchHandler(matchService),
		Health:      handlers.NewHealthHandler(pairingClient),
		WebSocket:   handlers.NewWebSocketHandler(wsHub, progressionService, cfg.CORSAllowedOrigins, logger),
	}, []byte(cfg.JWTSecretKey), cfg.CORSAllowedOrigins)
	logger.Info("routes configured")

	// Настройка и запуск HTTP-сервера; WriteTimeout покрывает генерацию раунда county
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.ServerPort),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 12 * time.Minute,
		IdleTimeout:  120 * time.Second,
		ErrorLog:     slog.NewLogLogger(logger.Handler(), slog.LevelError),
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("starting server", slog.String("address", server.Addr))
		serverErrors <- server.ListenAndServe()
	}()

	// Ожидание сигнала завершения
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		logger.Info("server stopped gracefully")
	case sig := <-quit:
		logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		// Сначала останавливаем таймеры, чтобы не начинать новых шагов прогрессии
		monitorService.StopAll()
		progressionService.Shutdown()

		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancelShutdown()

		logger.Info("shutting down server", slog.Duration("timeout", shutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("graceful shutdown failed", slog.Any("error", err))
			if closeErr := server.Close(); closeErr != nil {
				logger.Error("failed to force close server", slog.Any("error", closeErr))
			}
			return err
		}
		logger.Info("server shutdown complete")
	}
	return nil
}

// newFailureStore: Redis, если задан REDIS_URL, иначе память процесса.
func newFailureStore(ctx context.Context, redisURL string, logger *slog.Logger) (repositories.FailureStore, func(), error) {
	if redisURL == "" {
		logger.Info("failure tracker stored in memory")
		return repositories.NewMemoryFailureStore(), func() {}, nil
	}

	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid REDIS_URL: %w", err)
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	logger.Info("failure tracker stored in redis", slog.String("addr", opts.Addr))

	return repositories.NewRedisFailureStore(client, "", failureTrackerTTL), func() {
		if err := client.Close(); err != nil {
			logger.Error("failed to close redis client", slog.Any("error", err))
		}
	}, nil
}

// resumeMonitoring снова ставит на мониторинг незавершённые турниры после рестарта.
func resumeMonitoring(ctx context.Context, progression services.ProgressionService, monitor services.MonitorService, interval time.Duration, logger *slog.Logger) {
	statuses, err := progression.ListStatuses(ctx)
	if err != nil {
		logger.Error("failed to list progression statuses for monitoring", slog.Any("error", err))
		return
	}
	resumed := 0
	for _, st := range statuses {
		if st.State == models.StateTournamentComplete || !st.Config.EnableAutomation {
			continue
		}
		if _, err := monitor.StartMonitoring(ctx, st.TournamentID, interval); err != nil {
			logger.Warn("failed to resume monitoring",
				slog.Int("tournament_id", st.TournamentID),
				slog.Any("error", err))
			continue
		}
		resumed++
	}
	logger.Info("completion monitoring resumed", slog.Int("tournaments", resumed))
}

func fallbackDefaults(d config.FallbackDefaults) models.FallbackConfig {
	fc := models.DefaultFallbackConfig()
	fc.Enabled = d.Enabled
	fc.TriggerThreshold = d.TriggerThreshold
	fc.NotifyAdmins = d.NotifyAdmins
	fc.AdminEmails = d.AdminEmails
	if s := models.FallbackStrategy(d.Strategy); s.IsValid() {
		fc.FallbackStrategy = s
	}
	return fc
}
