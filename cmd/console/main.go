package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/xela07ax/integrity-gate/internal/console/handler"
	"github.com/xela07ax/integrity-gate/internal/console/server"
	"github.com/xela07ax/integrity-gate/internal/console/service"
	"github.com/xela07ax/integrity-gate/internal/infra"
	"github.com/xela07ax/integrity-gate/internal/repository/postgres"
)

func main() {
	// 1. Инициализация ресурсов
	cfg, err := infra.LoadConfig()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	logger, err := infra.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("logger error: %v", err)
	}
	defer logger.Sync()

	if cfg.Database.URL == "" {
		logger.Fatal("database.url is required for console API")
	}

	repo, err := postgres.NewEvidenceRepo(cfg.Database.URL, cfg.Database.MaxConns)
	if err != nil {
		logger.Fatal("postgres init failed", zap.Error(err))
	}

	// Ждем готовности базы (ретраи только здесь, на старте)
	waitCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := repo.WaitReady(waitCtx); err != nil {
		logger.Fatal("database unreachable", zap.Error(err))
	}
	cancel()

	// 2. Инициализация слоев (Dependency Injection)
	authService, err := service.NewAuthService(cfg.Auth)
	if err != nil {
		logger.Fatal("auth service init failed", zap.Error(err))
	}
	evidenceService := service.NewEvidenceService(repo)

	srvHandler := server.NewConsoleServer(
		cfg,
		logger,
		authService,
		handler.NewAuthHandler(authService),
		handler.NewEvidenceHandler(evidenceService),
	)

	// 3. Запуск сервера
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.ConsolePort),
		Handler:      srvHandler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	logger.Info("Console API started", zap.String("addr", srv.Addr))
	if err := srv.ListenAndServe(); err != nil {
		logger.Fatal("listen failed", zap.Error(err))
	}
}
