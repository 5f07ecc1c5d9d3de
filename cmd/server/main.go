package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"stablemint-backend/internal/app"
	"stablemint-backend/internal/config"

	"github.com/sirupsen/logrus"
)

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	if level, err := logrus.ParseLevel(getEnv("LOG_LEVEL", "info")); err == nil {
		logger.SetLevel(level)
	}

	configPath := getEnv("CONFIG_PATH", "config.yaml")
	if err := config.LoadConfig(configPath); err != nil {
		logger.WithFields(logrus.Fields{
			"config_path": configPath,
			"error":       err.Error(),
		}).Fatal("failed to load configuration")
	}
	cfg := config.AppConfig

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	container, err := app.InitializeContainer(ctx, cfg, logger)
	cancel()
	if err != nil {
		logger.WithField("error", err.Error()).Fatal("failed to initialize services")
	}
	defer container.Cleanup()

	container.Start()

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      container.Engine,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		logger.WithField("addr", addr).Info("http server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithField("error", err.Error()).Fatal("http server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutdown signal received")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.WithField("error", err.Error()).Warn("http server shutdown was not clean")
	}
	logger.Info("server stopped")
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
