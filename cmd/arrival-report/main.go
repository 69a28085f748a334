package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	httpadapter "github.com/couchcryptid/telemetry-arrival-report/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/telemetry-arrival-report/internal/adapter/kafka"
	"github.com/couchcryptid/telemetry-arrival-report/internal/adapter/postgres"
	"github.com/couchcryptid/telemetry-arrival-report/internal/adapter/rulesfile"
	"github.com/couchcryptid/telemetry-arrival-report/internal/config"
	"github.com/couchcryptid/telemetry-arrival-report/internal/observability"
	"github.com/couchcryptid/telemetry-arrival-report/internal/report"
)

func main() {
	// A .env file is optional; real environment variables take precedence.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := postgres.Open(ctx, cfg.DatabaseURL, cfg.DBConnectRetries, logger)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	source, err := postgres.NewSource(db,
		postgres.WithStationsTable(cfg.StationsTable),
		postgres.WithRecordsTable(cfg.RecordsTable),
	)
	if err != nil {
		logger.Error("invalid data source settings", "error", err)
		os.Exit(1)
	}

	store := rulesfile.NewStore(cfg.RulesPath, logger)

	opts := []report.Option{
		report.WithQueryTimeout(cfg.QueryTimeout),
		report.WithCacheSize(cfg.ReportCacheSize),
		report.WithCacheTTL(cfg.ReportCacheTTL),
		report.WithPublishTimeout(cfg.PublishTimeout),
	}

	var publisher *kafkaadapter.Publisher
	if cfg.KafkaEnabled {
		publisher = kafkaadapter.NewPublisher(cfg, logger)
		opts = append(opts, report.WithPublisher(publisher))
		logger.Info("report publishing enabled", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaReportTopic)
	} else {
		logger.Info("report publishing disabled")
	}

	svc := report.New(source, store, logger, metrics, opts...)

	if _, err := svc.LoadOrGenerateRules(ctx); err != nil {
		logger.Warn("initial rules generation failed, will retry on first report", "error", err)
	}

	srv := httpadapter.NewServer(cfg.HTTPAddr, svc, logger)

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	if publisher != nil {
		if err := publisher.Close(); err != nil {
			logger.Error("kafka publisher close error", "error", err)
		}
	}

	logger.Info("shutdown complete")
}
