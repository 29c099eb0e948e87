package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"DF-WIZARD/internal"
	"DF-WIZARD/internal/backend"
	"DF-WIZARD/internal/config"
	"DF-WIZARD/internal/handlers"
	"DF-WIZARD/internal/logger"
	"DF-WIZARD/internal/middleware"
	"DF-WIZARD/internal/services"
	"DF-WIZARD/internal/session"
	"DF-WIZARD/internal/storage"
	"DF-WIZARD/internal/wizard"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if err := logger.Init(cfg.IsProduction()); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(cfg); err != nil {
		logger.Log.Fatal("server stopped", zap.Error(err))
	}
}

func run(cfg *config.Config) error {
	ctx := context.Background()

	if cfg.Database.Enabled() {
		if err := internal.InitDB(cfg); err != nil {
			return fmt.Errorf("initialize database: %w", err)
		}
		defer internal.CloseDB()
	}

	store, purger, closeStore, err := newSessionStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	stager, closeStager, err := newStager(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStager()

	var history wizard.HistoryRecorder
	var historyService *services.GenerationLogService
	if internal.DB != nil {
		historyService = services.NewGenerationLogService(internal.DB)
		history = historyService
	}

	client := backend.NewClient(cfg.Backend.URL, cfg.Backend.Timeout)
	w := wizard.New(store, stager, client, history)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger())

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = cfg.Server.AllowOrigins
	corsConfig.AllowCredentials = true
	r.Use(cors.New(corsConfig))
	r.Use(middleware.Session(cfg.IsProduction(), int(cfg.Session.TTL.Seconds())))

	r.SetHTMLTemplate(handlers.Templates())
	r.GET("/healthz", handlers.Health)
	handlers.NewWizardHandler(w).Register(r)
	if historyService != nil {
		handlers.NewHistoryHandler(historyService).Register(r)
	}

	cleanupService := handlers.NewCleanupService(stager, cfg.Staging.MaxAge, purger, cfg.Session.TTL)
	cleanupService.Start()
	defer cleanupService.Stop()

	srv := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: r,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Log.Info("starting server",
			zap.String("port", cfg.Server.Port),
			zap.String("backend", client.BaseURL()),
			zap.String("session_store", cfg.Session.Store))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	select {
	case err := <-errCh:
		return err
	case <-quit:
	}

	logger.Log.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func newSessionStore(ctx context.Context, cfg *config.Config) (session.Store, handlers.SessionPurger, func(), error) {
	switch cfg.Session.Store {
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Session.RedisAddr,
			Password: cfg.Session.RedisPassword,
			DB:       cfg.Session.RedisDB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, nil, nil, fmt.Errorf("connect to redis: %w", err)
		}
		return session.NewRedisStore(client, cfg.Session.TTL), nil, func() { client.Close() }, nil
	case "mysql":
		store := session.NewDBStore(internal.DB)
		return store, store, func() {}, nil
	default:
		logger.Log.Warn("using in-memory session store; sessions are lost on restart")
		return session.NewMemoryStore(), nil, func() {}, nil
	}
}

// newStager stages in Cloud Storage when a bucket is configured, otherwise on
// local disk.
func newStager(ctx context.Context, cfg *config.Config) (storage.Stager, func(), error) {
	if cfg.GCS.BucketName != "" {
		gcs, err := storage.NewGCSClient(ctx, cfg.GCS.BucketName, cfg.GCS.ProjectID, cfg.GCS.CredentialsPath)
		if err != nil {
			return nil, nil, fmt.Errorf("initialize GCS staging: %w", err)
		}
		return gcs, func() { gcs.Close() }, nil
	}
	local, err := storage.NewLocalStager(cfg.Staging.Dir)
	if err != nil {
		return nil, nil, err
	}
	return local, func() {}, nil
}
