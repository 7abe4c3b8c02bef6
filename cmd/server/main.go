package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/redis/go-redis/v9"

	"github.com/usrflo/mailtrain/internal/api"
	"github.com/usrflo/mailtrain/internal/auth"
	"github.com/usrflo/mailtrain/internal/config"
	"github.com/usrflo/mailtrain/internal/pkg/logger"
	"github.com/usrflo/mailtrain/internal/sendconf"
	"github.com/usrflo/mailtrain/internal/shares"
)

func main() {
	configPath := "config/config.yaml"
	if len(os.Args) > 1 {
		configPath = os.Args[1]
	}

	cfg, err := config.LoadFromEnv(configPath)
	if err != nil {
		logger.Error("failed to load config", "err", err)
		os.Exit(1)
	}

	db, err := sql.Open("postgres", cfg.Database.DSN)
	if err != nil {
		logger.Error("failed to open database", "err", err)
		os.Exit(1)
	}
	defer db.Close()
	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(time.Duration(cfg.Database.ConnMaxLifetime) * time.Minute)
	if err := db.Ping(); err != nil {
		logger.Error("database unreachable", "err", err)
		os.Exit(1)
	}

	var cache *shares.Cache
	if !cfg.Redis.Disabled {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := redisClient.Ping(context.Background()).Err(); err != nil {
			logger.Warn("redis unreachable, permission cache disabled", "err", err)
		} else {
			cache = shares.NewCache(redisClient, cfg.Redis.KeyPrefix,
				time.Duration(cfg.Redis.CacheTTL)*time.Second)
		}
	}

	gate := shares.NewGate(cfg, cache)
	store := sendconf.NewStore(db, gate, cfg.Mailer.SystemSendConfigurationID)

	var authManager *auth.Manager
	if cfg.Auth.Enabled {
		baseURL := fmt.Sprintf("http://%s:%d", cfg.Server.GetHost(), cfg.Server.Port)
		if url := os.Getenv("BASE_URL"); url != "" {
			baseURL = url
		}
		authManager = auth.NewManager(&cfg.Auth, db, baseURL)
		authManager.CleanupExpiredSessions()
	}

	devMode := os.Getenv("DEV_MODE") == "true"
	handlers := api.NewHandlers(store, gate, db, authManager, devMode)
	router := api.SetupRoutes(handlers, authManager, cfg.Server.AllowedOrigins, devMode)

	addr := fmt.Sprintf("%s:%d", cfg.Server.GetHost(), cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", addr,
			"system_send_configuration", cfg.Mailer.SystemSendConfigurationID)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server failed", "err", err)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("shutdown failed", "err", err)
	}
}
