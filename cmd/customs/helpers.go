package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/viper"

	"github.com/Veraticus/customs-flow/internal/cache"
	"github.com/Veraticus/customs-flow/internal/classify"
	"github.com/Veraticus/customs-flow/internal/common"
	"github.com/Veraticus/customs-flow/internal/config"
	"github.com/Veraticus/customs-flow/internal/engine"
	"github.com/Veraticus/customs-flow/internal/metrics"
	"github.com/Veraticus/customs-flow/internal/review"
	"github.com/Veraticus/customs-flow/internal/service"
	"github.com/Veraticus/customs-flow/internal/storage"
	"github.com/Veraticus/customs-flow/internal/submission"
)

// app holds the process-wide dependencies of one command run.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	storage  service.Storage
	registry *prometheus.Registry
	metrics  *metrics.Metrics
	cache    cache.Store
}

// newApp opens and migrates the database. Other dependencies are built on
// first use so commands only connect to what they need.
func newApp(ctx context.Context) (*app, error) {
	cfg := loadedCfg
	if cfg == nil {
		return nil, fmt.Errorf("%w: configuration not loaded", common.ErrMissingConfig)
	}

	store, err := initStorage(ctx, cfg.Database.Path)
	if err != nil {
		return nil, err
	}

	registry := prometheus.NewRegistry()
	return &app{
		cfg:      cfg,
		logger:   slog.Default(),
		storage:  store,
		registry: registry,
		metrics:  metrics.New(registry),
	}, nil
}

// initStorage opens the database and brings its schema up to date.
func initStorage(ctx context.Context, dbPath string) (service.Storage, error) {
	store, err := storage.NewSQLiteStorage(dbPath)
	if err != nil {
		return nil, err
	}

	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return store, nil
}

// Close releases every dependency and writes the metrics file when requested.
func (a *app) Close() error {
	var errs []error
	if a.cache != nil {
		errs = append(errs, a.cache.Close())
	}
	errs = append(errs, a.storage.Close())

	if path := viper.GetString("metrics.file"); path != "" {
		if err := prometheus.WriteToTextfile(path, a.registry); err != nil {
			errs = append(errs, fmt.Errorf("failed to write metrics: %w", err))
		}
	}
	return errors.Join(errs...)
}

func (a *app) resultCache(ctx context.Context) (*cache.ResultCache, error) {
	if a.cache == nil {
		store, err := cache.NewStore(ctx, a.cfg.Cache, a.logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create cache: %w", err)
		}
		a.cache = store
	}
	return cache.NewResultCache(a.cache, a.cfg.Cache.TTL, a.logger, a.metrics), nil
}

func (a *app) classifier(ctx context.Context) (*classify.Classifier, error) {
	remote, err := classify.NewHTTPClient(a.cfg.Classification)
	if err != nil {
		return nil, fmt.Errorf("failed to create classification client: %w", err)
	}
	if a.cfg.Classification.APIURL == "" || !a.cfg.Classification.APIKey.IsSet() {
		a.logger.Warn("Classification API is not configured; every line will be flagged as failed")
	}

	rc, err := a.resultCache(ctx)
	if err != nil {
		return nil, err
	}

	return classify.NewClassifier(remote, rc, classify.Options{
		Logger:    a.logger,
		Metrics:   a.metrics,
		Threshold: a.cfg.Classification.ConfidenceThreshold,
		Timeout:   a.cfg.Classification.Timeout,
	}), nil
}

func (a *app) bulk(ctx context.Context) (*classify.Bulk, error) {
	classifier, err := a.classifier(ctx)
	if err != nil {
		return nil, err
	}
	return classify.NewBulk(classifier, a.cfg.Classification.BatchSize, a.logger), nil
}

func (a *app) engine(ctx context.Context) (*engine.ClassificationEngine, error) {
	bulk, err := a.bulk(ctx)
	if err != nil {
		return nil, err
	}
	return engine.New(a.storage, bulk, a.logger), nil
}

func (a *app) review() *review.Service {
	return review.NewService(a.storage, a.logger)
}

func (a *app) orchestrator() *submission.Orchestrator {
	sub := a.cfg.Submission
	return submission.NewOrchestrator(a.storage,
		submission.NewAPIClient(sub),
		submission.NewSFTPUploader(a.cfg.SFTP, a.logger),
		submission.Options{
			Logger:  a.logger,
			Metrics: a.metrics,
			Retry: service.RetryOptions{
				MaxAttempts:  sub.MaxRetries,
				InitialDelay: sub.RetryDelay,
				MaxDelay:     sub.RetryDelay * 8,
				Multiplier:   sub.RetryBackoffMultiplier(),
			},
			AttemptTimeout: sub.Timeout,
		})
}

func (a *app) reconciler() *submission.Reconciler {
	return submission.NewReconciler(a.storage,
		submission.NewAPIClient(a.cfg.Submission),
		a.cfg.Submission.Timeout,
		a.logger,
		a.metrics)
}

// withApp runs fn with a fresh app and always closes it.
func withApp(ctx context.Context, fn func(a *app) error) (err error) {
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := a.Close(); closeErr != nil {
			a.logger.Error("Failed to close resources", "error", closeErr)
			if err == nil {
				err = closeErr
			}
		}
	}()
	return fn(a)
}
