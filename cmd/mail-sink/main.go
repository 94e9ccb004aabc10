package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/sungwon/newsletter/internal/config"
	"github.com/sungwon/newsletter/internal/logger"
	"github.com/sungwon/newsletter/internal/mailsink"
	"github.com/sungwon/newsletter/internal/msgstore"
)

func main() {
	configDir := flag.String("config", "config", "directory containing config.yaml")
	flag.Parse()

	if _, err := config.LoadDotEnv(".env"); err != nil {
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
		Service:   "mail-sink",
	})

	sc := cfg.MailSink
	store, err := msgstore.New(msgstore.Config{Type: sc.StoreType, Path: sc.StorePath}, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize message store")
	}

	backend := mailsink.NewBackend(store, mailsink.Credentials{
		Username: sc.Username,
		Password: sc.Password,
	}, log, sc.MaxConnections)

	s := mailsink.NewServer(backend, mailsink.Options{
		Addr:            sc.Addr(),
		ReadTimeout:     sc.ReadTimeout,
		WriteTimeout:    sc.WriteTimeout,
		MaxMessageBytes: sc.MaxMessageBytes,
		MaxRecipients:   sc.MaxRecipients,
	})

	ln, err := net.Listen("tcp", s.Addr)
	if err != nil {
		log.Fatal().Err(err).Str("addr", s.Addr).Msg("failed to listen")
	}

	go func() {
		log.Info().
			Str("addr", s.Addr).
			Str("store", sc.StoreType).
			Bool("auth", sc.Username != "").
			Msg("mail sink listening")
		if err := s.Serve(ln); err != nil {
			log.Error().Err(err).Msg("mail sink server error")
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	log.Info().Int64("active_sessions", backend.ActiveSessions()).Msg("shutting down mail sink")
	if err := s.Close(); err != nil {
		log.Error().Err(err).Msg("mail sink close error")
	}
	if ids, err := store.List(context.Background()); err == nil {
		log.Info().Int("captured", len(ids)).Msg("mail sink stopped")
	}
}
