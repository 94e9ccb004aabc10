package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sungwon/newsletter/internal/config"
	"github.com/sungwon/newsletter/internal/issue"
	"github.com/sungwon/newsletter/internal/logger"
	"github.com/sungwon/newsletter/internal/provider"
	"github.com/sungwon/newsletter/internal/queue"
	"github.com/sungwon/newsletter/internal/storage"
	"github.com/sungwon/newsletter/internal/worker"
)

func main() {
	configDir := flag.String("config", "config", "directory containing config.yaml")
	flag.Parse()

	envLoaded, err := config.LoadDotEnv(".env")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load .env: %v\n", err)
		os.Exit(1)
	}

	cfg, err := config.Load(*configDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.NewFromConfig(logger.Config{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		Output:    cfg.Logging.Output,
		FilePath:  cfg.Logging.FilePath,
		MaxSizeMB: cfg.Logging.MaxSizeMB,
		MaxFiles:  cfg.Logging.MaxFiles,
		Service:   "delivery-worker",
	})
	log.Info().Bool("dotenv", envLoaded).Msg("starting delivery worker")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize database connection pool.
	db, err := storage.NewDB(ctx, cfg.Database.URL, cfg.Database.PoolMin, cfg.Database.PoolMax, cfg.Database.ConnectTimeout)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	// Initialize the email provider.
	p, err := provider.NewProvider(provider.ProviderConfig{
		Type:     cfg.Email.Provider,
		APIKey:   cfg.Email.APIKey,
		Endpoint: cfg.Email.Endpoint,
		Domain:   cfg.Email.Domain,
		Timeout:  cfg.Email.Timeout,
		SMTPHost: cfg.Email.SMTP.Host,
		SMTPPort: cfg.Email.SMTP.Port,
		Username: cfg.Email.SMTP.Username,
		Password: cfg.Email.SMTP.Password,
		StartTLS: cfg.Email.SMTP.StartTLS,
	}, nil)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to configure email provider")
	}
	if err := p.HealthCheck(ctx); err != nil {
		log.Warn().Err(err).Str("provider", p.GetName()).Msg("email provider health check failed")
	}

	q := queue.NewPostgresQueue(db.Pool)
	if depth, err := q.Depth(ctx); err == nil {
		log.Info().Int64("pending_tasks", depth).Msg("delivery queue depth")
	}

	exec := worker.NewExecutor(
		q,
		issue.NewRepository(),
		provider.NewSender(p, cfg.Email.Sender, log),
		worker.NewLimiter(cfg.Worker.SendRatePerSec, cfg.Worker.SendBurst),
		log,
		worker.WithFinishTimeout(cfg.Worker.ShutdownTimeout),
	)

	pool := worker.NewPool(
		cfg.Worker.Workers,
		exec,
		cfg.Worker.ShutdownTimeout,
		log,
		worker.WithDelays(cfg.Worker.EmptyQueueDelay, cfg.Worker.ErrorDelay),
	)

	pool.Start(context.Background())
	log.Info().
		Int("workers", cfg.Worker.Workers).
		Str("provider", p.GetName()).
		Msg("delivery worker pool started")

	<-ctx.Done()
	log.Info().Msg("shutting down delivery worker")

	pool.Stop()

	log.Info().Msg("delivery worker stopped")
}
