package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"go.uber.org/multierr"

	"photoingest/internal/analysis"
	"photoingest/internal/batch"
	"photoingest/internal/enrich"
	"photoingest/internal/fileutil"
	"photoingest/internal/logger"
	"photoingest/internal/models"
	"photoingest/internal/queue"
	"photoingest/internal/storage"
	"photoingest/internal/transform"
)

// app holds the wired components shared by the serve and ingest commands.
type app struct {
	cfg   *models.Config
	log   *slog.Logger
	store storage.Store
	orch  *batch.Orchestrator
	pool  *enrich.Pool

	kafka          *queue.KafkaScheduler
	stopConsumer   context.CancelFunc
	consumerDone   sync.WaitGroup
	closeAnalyzer  func() error
	closeLogOutput func() error
}

func loadConfig(path string) (*models.Config, *slog.Logger, func() error, error) {
	cfg, err := models.LoadConfig(path)
	if err != nil {
		return nil, nil, nil, err
	}
	log, closeLog := logger.Setup(cfg.LogFile, cfg.LogLevel)
	return cfg, log, closeLog, nil
}

func newApp(ctx context.Context, configPath string) (*app, error) {
	const op = "main.newApp"

	cfg, log, closeLog, err := loadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	a := &app{cfg: cfg, log: log, closeLogOutput: closeLog}

	if err := fileutil.EnsureDirs(cfg.UploadDir, cfg.ThumbnailDir); err != nil {
		_ = a.close(ctx)
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	a.store, err = storage.Open(ctx, cfg.DatabaseURL, log)
	if err != nil {
		_ = a.close(ctx)
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	analyzer, closeAnalyzer, err := analysis.New(ctx, cfg.Analysis)
	if err != nil {
		_ = a.close(ctx)
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	a.closeAnalyzer = closeAnalyzer

	enricher := enrich.NewEnricher(a.store, analyzer, enrich.Config{
		MaxRetries: cfg.Enrichment.MaxRetries,
		Fallback:   cfg.Enrichment.FallbackEnabled(),
	}, log.With("component", "enrich"))
	a.pool = enrich.NewPool(enricher, cfg.Enrichment.Workers, cfg.Enrichment.RatePerSecond, log.With("component", "pool"))

	var scheduler enrich.Scheduler = a.pool
	if cfg.Enrichment.Transport == models.TransportKafka {
		a.kafka = queue.NewKafkaScheduler(cfg.Kafka)
		scheduler = a.kafka

		consumerCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		a.stopConsumer = cancel
		consumer := queue.NewConsumer(cfg.Kafka, a.pool, log.With("component", "consumer"))
		a.consumerDone.Add(1)
		go func() {
			defer a.consumerDone.Done()
			if err := consumer.Run(consumerCtx); err != nil {
				log.Error("enrichment consumer stopped", "error", err)
			}
		}()
	}

	engine := transform.NewEngine(cfg.UploadDir, cfg.ThumbnailDir, cfg.MaxMetadataBytes, log.With("component", "transform"))
	a.orch = batch.New(a.store, engine, scheduler, batch.Config{
		UploadDir:    cfg.UploadDir,
		ThumbnailDir: cfg.ThumbnailDir,
		Defaults:     cfg.Defaults,
	}, log.With("component", "batch"))

	log.Info("photoingest ready",
		"database", storageKind(cfg.DatabaseURL),
		"transport", cfg.Enrichment.Transport,
		"provider", cfg.Analysis.Provider,
		"workers", cfg.Enrichment.Workers)
	return a, nil
}

// close stops components in dependency order: batches first, then the
// enrichment that they feed, then the store underneath both.
func (a *app) close(ctx context.Context) error {
	var err error
	if a.orch != nil {
		err = multierr.Append(err, a.orch.Shutdown(ctx))
	}
	if a.kafka != nil {
		err = multierr.Append(err, a.kafka.Close())
	}
	if a.stopConsumer != nil {
		a.stopConsumer()
		a.consumerDone.Wait()
	}
	if a.pool != nil {
		err = multierr.Append(err, a.pool.Close(ctx))
	}
	if a.closeAnalyzer != nil {
		err = multierr.Append(err, a.closeAnalyzer())
	}
	if a.store != nil {
		err = multierr.Append(err, a.store.Close())
	}
	if err != nil && a.log != nil {
		a.log.Error("shutdown finished with errors", "error", err)
	}
	if a.closeLogOutput != nil {
		err = multierr.Append(err, a.closeLogOutput())
	}
	return err
}

func shutdownContext(timeout time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), timeout)
}

func storageKind(url string) string {
	if scheme, _, ok := strings.Cut(url, "://"); ok {
		return scheme
	}
	return "unknown"
}
