package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/xela07ax/integrity-gate/internal/evidence"
	"github.com/xela07ax/integrity-gate/internal/guard"
	"github.com/xela07ax/integrity-gate/internal/infra"
	"github.com/xela07ax/integrity-gate/internal/repository/postgres"
)

func main() {
	// 1. Конфигурация и логгер. Кривой конфиг — отказ старта:
	// шлюз не принимает трафик с недопонятой политикой
	cfg, err := infra.LoadConfig()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	logger, err := infra.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("logger error: %v", err)
	}
	defer logger.Sync()

	// Контекст жизненного цикла фоновых горутин (janitor)
	appCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 2. Guardrail-ядро
	whitelist, err := guard.NewWhitelist(cfg.Guard.Whitelist)
	if err != nil {
		logger.Fatal("invalid whitelist", zap.Error(err))
	}

	reg := prometheus.NewRegistry()
	metrics := guard.NewMetrics(reg)

	store := guard.NewWindowStore(guard.RateLimitWindow)
	chain := guard.NewChain(whitelist, cfg.Guard.ShadowMode, metrics, logger,
		guard.NewBurstProtector(store, cfg.Guard.BurstLimit),
		guard.NewRateLimiter(store, cfg.Guard.RateLimitPerMinute),
	)

	janitor := guard.NewJanitor(store, cfg.Guard.JanitorInterval, metrics, logger)
	go janitor.Run(appCtx)

	// 3. Evidence-конвейер: подписант + хранилища
	var signer evidence.Signer
	if cfg.Signer.URL != "" {
		signer = evidence.NewHTTPSigner(
			cfg.Signer.URL, cfg.Signer.Timeout,
			cfg.Signer.RatePerSecond, cfg.Signer.RateBurst,
			metrics, logger,
		)
	} else {
		logger.Warn("signer is not configured: all evidence bundles will be persisted as failed")
	}

	fsStore, err := evidence.NewFSStore(cfg.Evidence.Dir, logger)
	if err != nil {
		logger.Fatal("evidence store init failed", zap.Error(err))
	}
	stores := []evidence.Store{fsStore}

	if cfg.Database.URL != "" {
		repo, err := postgres.NewEvidenceRepo(cfg.Database.URL, cfg.Database.MaxConns)
		if err != nil {
			logger.Fatal("postgres init failed", zap.Error(err))
		}
		stores = append(stores, repo)
		logger.Info("postgres evidence sink enabled")
	}

	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		stores = append(stores, evidence.NewAnnouncer(rdb, logger))
		logger.Info("redis evidence announcer enabled")
	}

	generator := evidence.NewGenerator(evidence.Config{
		BufferSize:    cfg.Evidence.BufferSize,
		BatchSize:     cfg.Evidence.BatchSize,
		FlushInterval: cfg.Evidence.FlushInterval,
		SignTimeout:   cfg.Signer.Timeout,
	}, signer, stores, metrics, logger)
	generator.Start()

	// 4. Экспорт метрик для Prometheus
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		addr := fmt.Sprintf(":%d", cfg.Server.MetricsPort)
		logger.Info("metrics exporter started", zap.String("addr", addr))
		if err := http.ListenAndServe(addr, mux); err != nil {
			logger.Error("metrics exporter failed", zap.Error(err))
		}
	}()

	// 5. HTTP Server. Порядок цепочки: Trace -> Guard -> Endpoint
	guardMW := guard.NewMiddleware(chain, generator, cfg.Guard.TrustProxyHeader, cfg.Guard.ProxyHeader, logger)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(guard.TracingMiddleware) // 1. Присваиваем Trace-ID
	r.Use(guardMW.Handler)         // 2. Guardrail-цепочка + evidence

	// Демонстрационный защищаемый эндпоинт; в проде сюда монтируется
	// реальный бэкенд (reverse proxy или хендлеры сервиса)
	r.Post("/v1/process", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// 6. Graceful Shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		logger.Info("Integrity Gateway started",
			zap.String("addr", srv.Addr),
			zap.Bool("shadow_mode", cfg.Guard.ShadowMode),
			zap.Int("rate_limit_per_minute", cfg.Guard.RateLimitPerMinute),
			zap.Int("burst_limit", cfg.Guard.BurstLimit),
			zap.Int("whitelist_entries", whitelist.Size()),
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("listen failed", zap.Error(err))
		}
	}()

	<-stop // Ждем сигнал
	logger.Info("Integrity Gateway stopping...")

	// Даем 5 секунд на завершение запросов
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", zap.Error(err))
	}

	// Останавливаем фоновые горутины и дожимаем буфер evidence
	cancel()
	generator.Stop()
	logger.Info("Integrity Gateway exited properly")
}
