package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/sungwon/newsletter/internal/api"
	"github.com/sungwon/newsletter/internal/auth"
	"github.com/sungwon/newsletter/internal/config"
	"github.com/sungwon/newsletter/internal/idempotency"
	"github.com/sungwon/newsletter/internal/issue"
	"github.com/sungwon/newsletter/internal/logger"
	"github.com/sungwon/newsletter/internal/publish"
	"github.com/sungwon/newsletter/internal/queue"
	"github.com/sungwon/newsletter/internal/storage"
	"github.com/sungwon/newsletter/internal/subscription"
)

const purgeInterval = time.Hour

func main() {
	configDir := flag.String("config", "config", "directory containing config.yaml")
	issueToken := flag.String("issue-token", "", "print an access token for the given user id and exit")
	flag.Parse()

	envLoaded, err := config.LoadDotEnv(".env")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load .env: %v\n", err)
		os.Exit(1)
	}

	// Load configuration
	cfg, err := config.Load(*configDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize JWT service
	jwtService := auth.NewJWTService(auth.JWTConfig{
		SigningKey:        cfg.Auth.SigningKey,
		AccessTokenExpiry: cfg.Auth.AccessTokenTTL,
		Issuer:            cfg.Auth.Issuer,
		Audience:          cfg.Auth.Audience,
	})

	if *issueToken != "" {
		printToken(jwtService, *issueToken)
		return
	}

	// Initialize logger
	log := logger.NewFromConfig(logger.Config{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		Output:    cfg.Logging.Output,
		FilePath:  cfg.Logging.FilePath,
		MaxSizeMB: cfg.Logging.MaxSizeMB,
		MaxFiles:  cfg.Logging.MaxFiles,
		Service:   "api-server",
	})
	log.Info().Bool("dotenv", envLoaded).Msg("starting API server")

	if cfg.Auth.SigningKey == "" || cfg.Auth.SigningKey == "dev-signing-key-change-me" {
		log.Warn().Msg("JWT signing key is not set or using default value; set NEWSLETTER_AUTH_SIGNING_KEY in production")
	}

	// Connect to database
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := storage.NewDB(
		ctx,
		cfg.Database.URL,
		cfg.Database.PoolMin,
		cfg.Database.PoolMax,
		cfg.Database.ConnectTimeout,
	)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	log.Info().Msg("database connection established")

	var storeOpts []idempotency.Option
	if cfg.Idempotency.CacheEnabled {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()

		if err := redisClient.Ping(ctx).Err(); err != nil {
			log.Warn().Err(err).Str("addr", cfg.Redis.Addr).Msg("replay cache unreachable; lookups will fall through to the database")
		}
		storeOpts = append(storeOpts, idempotency.WithCache(idempotency.NewRedisCache(redisClient, cfg.Idempotency.CacheTTL)))
		log.Info().Str("addr", cfg.Redis.Addr).Dur("ttl", cfg.Idempotency.CacheTTL).Msg("replay cache enabled")
	}

	store := idempotency.NewStore(db.Pool, log, storeOpts...)
	orchestrator := publish.NewOrchestrator(
		store,
		issue.NewRepository(),
		subscription.NewPostgresLister(),
		queue.NewPostgresQueue(db.Pool),
		log,
	)

	if cfg.Idempotency.Retention > 0 {
		go purgeLoop(ctx, store, cfg.Idempotency.Retention, log)
	}

	router := api.NewRouter(orchestrator, jwtService, db, log)

	// Configure HTTP server
	addr := cfg.API.Addr()
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.API.ReadTimeout,
		WriteTimeout: cfg.API.WriteTimeout,
	}

	// Start server in goroutine
	go func() {
		log.Info().Str("addr", addr).Msg("API server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down server")

	// Graceful shutdown with 30-second timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server stopped")
}

func printToken(jwtService *auth.JWTService, rawUserID string) {
	userID, err := uuid.Parse(rawUserID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid user id %q: %v\n", rawUserID, err)
		os.Exit(1)
	}
	token, err := jwtService.GenerateAccessToken(userID, "")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to issue token: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(token)
}

// purgeLoop removes completed idempotency records older than retention.
func purgeLoop(ctx context.Context, store *idempotency.Store, retention time.Duration, log zerolog.Logger) {
	ticker := time.NewTicker(purgeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := store.Purge(ctx, retention)
			if err != nil {
				log.Error().Err(err).Msg("idempotency purge failed")
				continue
			}
			log.Info().Int64("purged", n).Dur("retention", retention).Msg("idempotency records purged")
		}
	}
}
