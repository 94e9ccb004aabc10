package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/sungwon/newsletter/internal/bootstrap"
	"github.com/sungwon/newsletter/internal/config"
	"github.com/sungwon/newsletter/internal/logger"
	"github.com/sungwon/newsletter/internal/storage"
)

func main() {
	configDir := flag.String("config", "config", "directory containing config.yaml")
	steps := flag.Int("steps", 1, "number of migrations to roll back with \"down\"")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: migrate [flags] up|down|version|seed <file>\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	command := "up"
	if flag.NArg() > 0 {
		command = flag.Arg(0)
	}

	if _, err := config.LoadDotEnv(".env"); err != nil {
		fmt.Fprintf(os.Stderr, "failed to load .env: %v\n", err)
		os.Exit(1)
	}

	cfg, err := config.Load(*configDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Logging.Level)

	switch command {
	case "up":
		if err := storage.Migrate(cfg.Database.URL); err != nil {
			log.Fatal().Err(err).Msg("migration failed")
		}
		log.Info().Msg("migrations applied")
	case "down":
		if err := storage.MigrateDown(cfg.Database.URL, *steps); err != nil {
			log.Fatal().Err(err).Int("steps", *steps).Msg("rollback failed")
		}
		log.Info().Int("steps", *steps).Msg("migrations rolled back")
	case "version":
		version, dirty, err := storage.MigrationVersion(cfg.Database.URL)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to read migration version")
		}
		log.Info().Uint("version", version).Bool("dirty", dirty).Msg("schema version")
	case "seed":
		if err := seed(cfg, flag.Arg(1), log); err != nil {
			log.Fatal().Err(err).Msg("seeding subscribers failed")
		}
	default:
		flag.Usage()
		os.Exit(2)
	}
}

// seed marks every address listed in path as a confirmed subscriber. The
// whole list is applied in one transaction.
func seed(cfg *config.Config, path string, log zerolog.Logger) error {
	if path == "" {
		return errors.New("seed requires a subscriber list file")
	}
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open subscriber list: %w", err)
	}
	defer f.Close()

	subs, err := bootstrap.ParseSubscribers(f)
	if err != nil {
		return err
	}

	ctx := context.Background()
	db, err := storage.NewDB(ctx, cfg.Database.URL, 1, 2, cfg.Database.ConnectTimeout)
	if err != nil {
		return err
	}
	defer db.Close()

	return db.InTx(ctx, func(tx pgx.Tx) error {
		_, err := bootstrap.SeedSubscribers(ctx, tx, log, subs)
		return err
	})
}
