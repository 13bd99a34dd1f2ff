package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	nethttp "net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/layer-3/sentinel/adapters/events"
	"github.com/layer-3/sentinel/adapters/hasher"
	"github.com/layer-3/sentinel/adapters/store"
	"github.com/layer-3/sentinel/adapters/tokenizer"
	"github.com/layer-3/sentinel/internal/config"
	"github.com/layer-3/sentinel/internal/logging"
	"github.com/layer-3/sentinel/ports"
	"github.com/layer-3/sentinel/service"
	"github.com/layer-3/sentinel/transport/http"
	"github.com/redis/go-redis/v9"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := logging.NewJSONLogger(os.Stdout, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error(ctx, "server stopped", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger logging.Logger) error {
	var closers []func() error
	defer func() {
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i](); err != nil {
				logger.Warn(ctx, "close failed", "error", err)
			}
		}
	}()

	// Redis backs both the store and the event stream when either needs it
	var redisClient *redis.Client
	if cfg.StoreDriver == config.StoreRedis || cfg.EventsEnabled {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("failed to parse Redis URL: %w", err)
		}
		redisClient = redis.NewClient(opts)
		closers = append(closers, redisClient.Close)
	}

	credentialStore, closeStore, err := openStore(ctx, cfg, redisClient)
	if err != nil {
		return err
	}
	if closeStore != nil {
		closers = append(closers, closeStore)
	}

	var eventPub ports.EventPublisher = events.NopPublisher{}
	if cfg.EventsEnabled {
		publisher, err := redisstream.NewPublisher(
			redisstream.PublisherConfig{
				Client: redisClient,
			},
			watermill.NewStdLogger(false, false),
		)
		if err != nil {
			return fmt.Errorf("failed to create Redis publisher: %w", err)
		}
		closers = append(closers, publisher.Close)
		eventPub = events.NewWatermillPublisher(publisher, cfg.EventsTopic)
	}

	authService := service.NewAuthService(
		credentialStore,
		tokenizer.NewJWTTokenizer([]byte(cfg.SecretKey)),
		hasher.NewBcryptHasher(cfg.BcryptCost),
		eventPub,
		service.WithTTL(cfg.AccessTokenTTL, cfg.RenewalTokenTTL),
		service.WithLogger(logger),
	)

	if cfg.AdminUsername != "" {
		if _, err := authService.EnsureAdmin(ctx, cfg.AdminUsername, cfg.AdminPassword); err != nil {
			return fmt.Errorf("failed to seed admin: %w", err)
		}
	}

	srv := &nethttp.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           http.SetupRouter(authService, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info(ctx, "starting server", "addr", cfg.HTTPAddr, "store", cfg.StoreDriver)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, nethttp.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.Info(ctx, "shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// openStore builds the configured credential store and its closer, if any.
func openStore(ctx context.Context, cfg *config.Config, redisClient *redis.Client) (ports.CredentialStore, func() error, error) {
	switch cfg.StoreDriver {
	case config.StoreRedis:
		if err := redisClient.Ping(ctx).Err(); err != nil {
			return nil, nil, fmt.Errorf("redis ping: %w", err)
		}
		return store.NewRedisStore(redisClient), nil, nil

	case config.StorePostgres:
		db, err := store.OpenPostgres(ctx, cfg.DatabaseDSN)
		if err != nil {
			return nil, nil, fmt.Errorf("db init error: %w", err)
		}
		if err := store.RunMigrations(ctx, db); err != nil {
			db.Close()
			return nil, nil, err
		}
		return store.NewPostgresStore(db), db.Close, nil

	default:
		return store.NewMemoryStore(), nil, nil
	}
}
