package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/driftcart/dropship-backend/internal/config"
	"github.com/driftcart/dropship-backend/internal/events"
	"github.com/driftcart/dropship-backend/internal/modules/auth"
	"github.com/driftcart/dropship-backend/internal/modules/cart"
	"github.com/driftcart/dropship-backend/internal/modules/catalog"
	"github.com/driftcart/dropship-backend/internal/modules/inventory"
	"github.com/driftcart/dropship-backend/internal/modules/order"
	"github.com/driftcart/dropship-backend/internal/modules/payment"
	"github.com/driftcart/dropship-backend/internal/modules/user"
	"github.com/driftcart/dropship-backend/internal/platform/logging"
	"github.com/driftcart/dropship-backend/internal/platform/postgres"
	"github.com/driftcart/dropship-backend/internal/platform/redisx"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()

	log, err := logging.New(cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	db, err := postgres.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatal("database connection failed", zap.Error(err))
	}
	defer db.Close()
	log.Info("connected to postgres")

	rdb, err := redisx.New(cfg.RedisAddr)
	if err != nil {
		log.Fatal("redis connection failed", zap.Error(err))
	}
	defer rdb.Close()
	log.Info("connected to redis")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	producer := events.NewProducer(cfg.KafkaBrokers, log, 256)
	producer.Start(ctx)

	// ── Router ──────────────────────────────────────────────
	router := chi.NewRouter()
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)
	router.Use(middleware.RequestID)

	// ── Identity ────────────────────────────────────────────
	userRepo := user.NewPostgresRepository(db)
	userService := user.NewService(userRepo)
	user.NewHandler(userService).RegisterRoutes(router)

	authService := auth.NewService(userRepo, cfg.JWTSecret)
	auth.NewHandler(authService).RegisterRoutes(router)
	authMW := auth.NewMiddleware(cfg.JWTSecret)

	// ── Catalog & Inventory ─────────────────────────────────
	catalogRepo := catalog.NewPostgresRepository(db)
	catalogService := catalog.NewService(catalogRepo)
	catalog.NewHandler(catalogService).RegisterRoutes(router, authMW)

	inventoryRepo := inventory.NewPostgresRepository(db)
	inventoryService := inventory.NewService(inventoryRepo)
	inventory.NewHandler(inventoryService).RegisterRoutes(router, authMW)

	// ── Cart ────────────────────────────────────────────────
	cartRepo := cart.NewRedisRepository(rdb)
	cartService := cart.NewService(cartRepo, inventoryService)
	cart.NewHandler(cartService).RegisterRoutes(router, authMW)

	// ── Orders ──────────────────────────────────────────────
	orderRepo := order.NewPostgresRepository(db)
	orderService := order.NewService(orderRepo, cartService, inventoryService, producer, log, cfg.ServiceName)
	order.NewHandler(orderService).RegisterRoutes(router, authMW)

	// ── Payments ────────────────────────────────────────────
	paymentGateways := payment.Registry{
		payment.ProviderStripe: payment.NewStripeGateway(
			cfg.StripeSecretKey,
			cfg.StripeWebhookSecret,
			cfg.GatewayTimeout,
		),
		payment.ProviderSSLCommerz: payment.NewSSLCommerzGateway(
			cfg.SSLCommerzStoreID,
			cfg.SSLCommerzStorePass,
			cfg.SSLCommerzLive,
			cfg.GatewayTimeout,
		),
	}
	paymentRepo := payment.NewPostgresRepository(db)
	reconciler := payment.NewReconciler(paymentRepo, orderService, producer, log, cfg.ServiceName)
	paymentService := payment.NewService(paymentRepo, orderService, paymentGateways, reconciler, log, cfg.GatewayTimeout)
	payment.NewHandler(paymentService, log).RegisterRoutes(router, authMW)

	// ── Server ──────────────────────────────────────────────
	srv := &http.Server{
		Addr:              ":" + cfg.AppPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("api server starting", zap.String("port", cfg.AppPort))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server stopped", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server shutdown failed", zap.Error(err))
	}
	producer.WaitClosed()

	os.Exit(0)
}
