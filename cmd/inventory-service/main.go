package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/suyashwaghule/joitex-IVM/internal/inventory/consumers"
	"github.com/suyashwaghule/joitex-IVM/internal/inventory/events"
	"github.com/suyashwaghule/joitex-IVM/internal/inventory/handler"
	"github.com/suyashwaghule/joitex-IVM/internal/inventory/repository"
	"github.com/suyashwaghule/joitex-IVM/internal/inventory/service"
	"github.com/suyashwaghule/joitex-IVM/pkg/config"
	"github.com/suyashwaghule/joitex-IVM/pkg/database"
	"github.com/suyashwaghule/joitex-IVM/pkg/httputil"
	"github.com/suyashwaghule/joitex-IVM/pkg/logger"
	"github.com/suyashwaghule/joitex-IVM/pkg/messaging"
	"github.com/suyashwaghule/joitex-IVM/pkg/metrics"
	"github.com/suyashwaghule/joitex-IVM/pkg/redis"
)

const serviceName = "inventory-service"

func main() {
	// Load configuration with validation (fails fast in production if required config is missing)
	cfg, err := config.LoadWithValidation(serviceName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(serviceName, cfg.Server.Environment)
	log.Info().Msg("starting Inventory Service")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := database.New(&cfg.Database, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	// RabbitMQ is optional; a nil broker leaves the publisher silent and the consumer off
	var rmq *messaging.RabbitMQ
	if cfg.RabbitMQ.Enabled {
		rmq, err = messaging.New(&cfg.RabbitMQ, log)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to RabbitMQ")
		}
		defer rmq.Close()
	}

	var publisher *events.InventoryEventPublisher
	if rmq != nil {
		publisher, err = events.NewInventoryEventPublisher(rmq, log)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create event publisher")
		}
	}

	var (
		rdb     *redis.Client
		counter service.Counter
	)
	if cfg.Redis.Enabled {
		rdb, err = redis.New(ctx, cfg.Redis, log)
		if err != nil {
			log.Warn().Err(err).Msg("redis unavailable, request numbers fall back to the database sequence")
		} else {
			defer rdb.Close()
			counter = rdb
		}
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	allocMetrics := metrics.NewAllocationMetrics(registry, serviceName)

	// Repositories
	itemRepo := repository.NewItemRepository(db)
	txRepo := repository.NewTransactionRepository(db)
	requestRepo := repository.NewRequestRepository(db)
	userCacheRepo := repository.NewUserCacheRepository(db)

	// Services
	inventoryService := service.NewInventoryService(db, itemRepo, txRepo, requestRepo, userCacheRepo, log)
	engine := service.NewStockAllocationEngine(db, itemRepo, txRepo, requestRepo, publisher, allocMetrics, log)
	workflow := service.NewRequestWorkflow(requestRepo, counter, publisher, log)

	handlers := &handler.Handlers{
		Items:     handler.NewItemHandler(inventoryService, log),
		Requests:  handler.NewRequestHandler(workflow, engine, log),
		Stock:     handler.NewStockHandler(engine, inventoryService, log),
		Dashboard: handler.NewDashboardHandler(inventoryService, log),
	}

	if rmq != nil {
		userConsumer, err := consumers.NewUserEventConsumer(rmq, userCacheRepo, log)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create user event consumer")
		}
		if err := userConsumer.Start(ctx); err != nil {
			log.Fatal().Err(err).Msg("failed to start user event consumer")
		}
	}

	r := chi.NewRouter()

	r.Use(middleware.RealIP)
	r.Use(httputil.RequestID)
	r.Use(httputil.Logger(log))
	r.Use(httputil.Recoverer(log))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORS.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		redisHealth := map[string]string{"status": "disabled"}
		if rdb != nil {
			redisHealth = rdb.Health(r.Context())
		}
		httputil.JSON(w, http.StatusOK, map[string]interface{}{
			"status":   "healthy",
			"service":  serviceName,
			"database": db.Health(r.Context()),
			"rabbitmq": rmq.Health(),
			"redis":    redisHealth,
		})
	})

	if cfg.Metrics.Enabled {
		r.Handle(cfg.Metrics.Path, promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1/inventory", func(r chi.Router) {
		r.Use(httputil.Authenticate(cfg.JWT.Secret, cfg.JWT.Issuer, log))
		handlers.Register(r)
	})

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")

	// Stop consumers before draining HTTP
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server stopped")
}
