package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"contact-service/internal/api"
	"contact-service/internal/config"
	"contact-service/internal/logging"
	"contact-service/internal/messaging"
	"contact-service/internal/metrics"
	"contact-service/internal/notify"
	"contact-service/internal/storage"
	"contact-service/internal/submission"
	"contact-service/internal/tracing"
)

const (
	shutdownTimeout   = 5 * time.Second
	queueDepthPeriod  = 10 * time.Second
	startupPingWindow = 5 * time.Second
)

func runServe(ctx context.Context, configPath string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger, logCloser, err := logging.New(cfg.Log)
	if err != nil {
		return fmt.Errorf("failed to init logging: %w", err)
	}
	defer logCloser.Close()
	logger.Info().Msg("configuration loaded")

	metrics.Init()

	shutdownTracing, err := tracing.Setup(ctx, cfg.Tracing)
	if err != nil {
		logger.Warn().Err(err).Msg("tracing disabled")
		shutdownTracing = func(context.Context) error { return nil }
	}

	store := openStore(ctx, cfg, logger)
	defer store.Close()

	notifier, rabbit := buildNotifier(cfg, logger)
	if rabbit != nil {
		defer rabbit.Close()
		go watchRelayQueue(ctx, rabbit, cfg.Mail.RelayQueue)
	}

	pipeline := submission.NewPipeline(store, notifier, submission.Config{
		StoreTimeout:  cfg.Database.Timeout,
		NotifyTimeout: cfg.Mail.Timeout,
	}, logger)

	server := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           api.NewAPI(pipeline, cfg, logger).Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", server.Addr).Msg("starting API server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
		logger.Info().Msg("shutdown initiated")
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("HTTP shutdown error")
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("tracer shutdown error")
	}

	logger.Info().Msg("graceful shutdown complete")
	return nil
}

// openStore never fails: a bad or missing DATABASE_URL yields a store whose
// every save is reported as unavailable, so the server still starts.
func openStore(ctx context.Context, cfg *config.Config, logger zerolog.Logger) storage.Backend {
	store, err := storage.Open(ctx, cfg.Database.URL)
	if err != nil {
		logger.Warn().Err(err).Msg("store not configured, submissions will fail")
		return storage.Unavailable(err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, startupPingWindow)
	defer cancel()
	if err := store.Ping(pingCtx); err != nil {
		logger.Error().Err(err).Msg("store unreachable at startup")
	} else {
		logger.Info().Msg("store connected")
	}
	return store
}

func buildNotifier(cfg *config.Config, logger zerolog.Logger) (submission.Notifier, *messaging.RabbitClient) {
	if cfg.Mail.Transport == config.TransportAMQP {
		rabbit := messaging.NewRabbitClient(cfg.Mail.RelayURL, logger)
		logger.Info().Str("queue", cfg.Mail.RelayQueue).Msg("mail relayed through RabbitMQ")
		return notify.NewRelayNotifier(rabbit, cfg.Mail), rabbit
	}

	if cfg.Mail.User == "" {
		logger.Warn().Msg("EMAIL_USER not set, notifications will fail")
	}
	return notify.NewSMTPNotifier(cfg.Mail), nil
}

func watchRelayQueue(ctx context.Context, rabbit *messaging.RabbitClient, queue string) {
	ticker := time.NewTicker(queueDepthPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			tickCtx, cancel := context.WithTimeout(ctx, queueDepthPeriod/2)
			rabbit.UpdateQueueDepth(tickCtx, queue)
			cancel()
		}
	}
}
