package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/joho/godotenv"

	"github.com/mukhtabar/mukhtabar-backend/api/routes"
	"github.com/mukhtabar/mukhtabar-backend/internal/exchangerequests"
	"github.com/mukhtabar/mukhtabar-backend/internal/exchanges"
	"github.com/mukhtabar/mukhtabar-backend/internal/inventory"
	"github.com/mukhtabar/mukhtabar-backend/internal/listings"
	"github.com/mukhtabar/mukhtabar-backend/internal/notifications"
	"github.com/mukhtabar/mukhtabar-backend/internal/orders"
	"github.com/mukhtabar/mukhtabar-backend/internal/wallets"
	internalwebhooks "github.com/mukhtabar/mukhtabar-backend/internal/webhooks"
	"github.com/mukhtabar/mukhtabar-backend/pkg/config"
	"github.com/mukhtabar/mukhtabar-backend/pkg/db"
	"github.com/mukhtabar/mukhtabar-backend/pkg/logger"
	"github.com/mukhtabar/mukhtabar-backend/pkg/migrate"
	"github.com/mukhtabar/mukhtabar-backend/pkg/moyasar"
	"github.com/mukhtabar/mukhtabar-backend/pkg/redis"
)

const shutdownTimeout = 15 * time.Second

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	moyasarClient, err := moyasar.NewClient(context.Background(), cfg.Moyasar, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create moyasar client", err)
		os.Exit(1)
	}

	conn := dbClient.DB()

	inventoryService, err := inventory.NewService(inventory.NewRepository(conn))
	if err != nil {
		logg.Error(context.Background(), "failed to create inventory service", err)
		os.Exit(1)
	}

	listingsService, err := listings.NewService(listings.NewRepository(conn))
	if err != nil {
		logg.Error(context.Background(), "failed to create listings service", err)
		os.Exit(1)
	}

	exchangesRepo := exchanges.NewRepository(conn)
	exchangesService, err := exchanges.NewService(exchangesRepo, dbClient, inventoryService, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create exchanges service", err)
		os.Exit(1)
	}

	requestsService, err := exchangerequests.NewService(
		exchangerequests.NewRepository(conn), dbClient, inventoryService, exchangesRepo, cfg.Exchange)
	if err != nil {
		logg.Error(context.Background(), "failed to create exchange requests service", err)
		os.Exit(1)
	}

	walletsRepo := wallets.NewRepository(conn)
	walletsService, err := wallets.NewService(walletsRepo, dbClient, cfg.Wallets)
	if err != nil {
		logg.Error(context.Background(), "failed to create wallets service", err)
		os.Exit(1)
	}

	ordersService, err := orders.NewService(
		orders.NewRepository(conn), dbClient, inventoryService, walletsService, moyasarClient, cfg.Orders)
	if err != nil {
		logg.Error(context.Background(), "failed to create orders service", err)
		os.Exit(1)
	}

	webhookService, err := internalwebhooks.NewService(ordersService, redisClient, cfg.Moyasar.IdempotencyTTL, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create webhook service", err)
		os.Exit(1)
	}

	notifier, err := notifications.NewService(logg, notifications.NewLogSink(logg))
	if err != nil {
		logg.Error(context.Background(), "failed to create notifications service", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(
			cfg,
			logg,
			dbClient,
			redisClient,
			listingsService,
			requestsService,
			exchangesService,
			ordersService,
			walletsService,
			walletsRepo,
			webhookService,
			moyasarClient,
			notifier,
		),
	}

	stopCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			logg.Error(ctx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-stopCtx.Done():
		logg.Info(ctx, "shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(ctx, "graceful shutdown failed", err)
			os.Exit(1)
		}
	}

	logg.Info(ctx, "api server shut down gracefully")
}
