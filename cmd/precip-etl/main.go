package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/couchcryptid/forecast-precip-etl/internal/adapter/forecastfs"
	"github.com/couchcryptid/forecast-precip-etl/internal/adapter/httpadapter"
	kafkaadapter "github.com/couchcryptid/forecast-precip-etl/internal/adapter/kafka"
	"github.com/couchcryptid/forecast-precip-etl/internal/adapter/mapbox"
	"github.com/couchcryptid/forecast-precip-etl/internal/adapter/report"
	"github.com/couchcryptid/forecast-precip-etl/internal/config"
	"github.com/couchcryptid/forecast-precip-etl/internal/domain"
	"github.com/couchcryptid/forecast-precip-etl/internal/observability"
	"github.com/couchcryptid/forecast-precip-etl/internal/pipeline"
	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
)

func main() {
	// A missing .env is fine; real environment variables always win.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	if err := run(cfg, logger); err != nil {
		logger.Error("precipitation run failed", "error", err, "kind", pipeline.ErrorKind(err))
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	metrics := observability.NewMetrics()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	polygon, err := domain.ReadContourFile(cfg.ContourFile)
	if err != nil {
		return err
	}
	logger.Info("contour loaded", "file", cfg.ContourFile, "vertices", polygon.Len())

	// Initialize geocoder (feature-flagged via MAPBOX_ENABLED / MAPBOX_TOKEN).
	var geocoder domain.Geocoder
	if cfg.MapboxEnabled {
		client := mapbox.NewClient(cfg.MapboxToken, cfg.MapboxTimeout, metrics, logger)
		geocoder = mapbox.NewCachedGeocoder(client, cfg.MapboxCacheSize, metrics)
		metrics.GeocodeEnabled.Set(1)
		logger.Info("mapbox geocoding enabled", "cache_size", cfg.MapboxCacheSize, "timeout", cfg.MapboxTimeout)
	} else {
		logger.Info("mapbox geocoding disabled")
	}
	region := strings.TrimSuffix(filepath.Base(cfg.ContourFile), filepath.Ext(cfg.ContourFile))

	source, err := forecastfs.NewSource(cfg.ForecastDir, cfg.ForecastPattern, logger)
	if err != nil {
		return err
	}

	reportWriter, err := newReportWriter(cfg)
	if err != nil {
		return err
	}
	loaders := []pipeline.ReportLoader{reportWriter}

	if cfg.KafkaEnabled {
		writer := kafkaadapter.NewWriter(cfg, logger)
		defer func() {
			if err := writer.Close(); err != nil {
				logger.Error("kafka writer close error", "error", err)
			}
		}()
		loaders = append(loaders, writer)
		logger.Info("kafka publishing enabled", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaSinkTopic)
	}

	p := pipeline.New(source, pipeline.NewClipper(polygon, logger), loaders, logger, metrics, region)
	if geocoder != nil {
		p.WithGeocoder(polygon, geocoder)
	}

	if !cfg.ServiceMode() {
		_, err := p.Run(ctx)
		return err
	}
	return serve(ctx, cfg, p, logger)
}

// serve reruns the pipeline every RUN_INTERVAL behind the HTTP server until a
// shutdown signal arrives.
func serve(ctx context.Context, cfg *config.Config, p *pipeline.Pipeline, logger *slog.Logger) error {
	srv := httpadapter.NewServer(cfg.HTTPAddr, p, p, logger)

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	p.Watch(ctx, clockwork.NewRealClock(), cfg.RunInterval)
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}

	logger.Info("shutdown complete")
	return nil
}

// newReportWriter writes to stdout when OUTPUT_FILE is empty; otherwise each
// successful run replaces the file.
func newReportWriter(cfg *config.Config) (*report.Writer, error) {
	if cfg.OutputFile == "" {
		return report.NewWriter(os.Stdout, cfg.OutputFormat)
	}
	return report.NewFileWriter(cfg.OutputFile, cfg.OutputFormat)
}
