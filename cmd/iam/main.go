// Command iam serves the IAM HTTP API.
//
// @title        IAM Service API
// @version      1.0
// @description  Users and roles with a cache-first user lookup.
// @BasePath     /
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

	"github.com/rs/zerolog"

	_ "github.com/iam-platform/iam-service/docs"
	"github.com/iam-platform/iam-service/internal/api"
	"github.com/iam-platform/iam-service/internal/api/handler"
	"github.com/iam-platform/iam-service/internal/core/domain"
	"github.com/iam-platform/iam-service/internal/core/ports"
	"github.com/iam-platform/iam-service/internal/core/resilience"
	"github.com/iam-platform/iam-service/internal/core/service"
	"github.com/iam-platform/iam-service/internal/infrastructure/db/postgres"
	redisdb "github.com/iam-platform/iam-service/internal/infrastructure/db/redis"
	"github.com/iam-platform/iam-service/internal/infrastructure/messaging/rabbitmq"
	"github.com/iam-platform/iam-service/internal/infrastructure/queue"
	"github.com/iam-platform/iam-service/internal/pkg/config"
	"github.com/iam-platform/iam-service/pkg/logger"
)

const shutdownTimeout = 15 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	log := logger.Init(logger.Options{
		Level:   cfg.LogLevel,
		Pretty:  cfg.LogPretty,
		Service: "iam-service",
		Env:     cfg.Env,
	})

	if err := run(ctx, cfg, log); err != nil {
		log.Fatal().Err(err).Msg("iam-service stopped with error")
	}
	log.Info().Msg("iam-service stopped")
}

func run(ctx context.Context, cfg *config.Config, log zerolog.Logger) error {
	// --- Store ---
	if err := postgres.Migrate(cfg.Database.URL, log); err != nil {
		return err
	}
	store, err := postgres.Connect(ctx, postgres.Config{URL: cfg.Database.URL})
	if err != nil {
		return err
	}
	defer store.Close()

	// --- Cache ---
	rdb, err := redisdb.Connect(ctx, redisdb.Config{URL: cfg.Redis.URL})
	if err != nil {
		return err
	}
	defer rdb.Close()
	cache := redisdb.NewCache(rdb)

	// --- Broker ---
	broker, err := rabbitmq.Connect(ctx, cfg.RabbitMQ.URL, log)
	if err != nil {
		return err
	}
	defer broker.Close()

	var events ports.EventPublisher = broker
	if cfg.RabbitMQ.Async {
		dispatcher := queue.NewDispatcher(cfg.RabbitMQ.Workers, broker, log)
		dispatcher.Start(ctx)
		defer func() {
			drainCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := dispatcher.Close(drainCtx); err != nil {
				log.Warn().Err(err).Msg("event dispatcher did not drain")
			}
		}()
		events = dispatcher
	}

	// --- Services ---
	guard := resilience.NewGuard("user.get", cfg.Resilience.Guard(), domain.IsDomainError, log)
	userService := service.NewUserService(
		postgres.NewUserRepository(store),
		cache,
		events,
		guard,
		cfg.Redis.CacheTTL,
		log.With().Str("component", "user_service").Logger(),
	)
	roleService := service.NewRoleService(
		postgres.NewRoleRepository(store),
		log.With().Str("component", "role_service").Logger(),
	)

	e := api.NewRouter(api.Deps{
		Users: userService,
		Roles: roleService,
		Health: map[string]handler.Pinger{
			"postgres": store,
			"redis":    cache,
			"rabbitmq": broker,
		},
		Log: log,
	})

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("port", cfg.Port).Msg("http server listening")
		if err := e.Start(":" + cfg.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}
