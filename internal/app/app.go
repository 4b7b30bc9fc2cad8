// Package app assembles the identification pipeline from settings. It is
// shared by the serve, identify and catalog commands.
package app

import (
	"context"

	"golang.org/x/time/rate"

	"github.com/tphakala/plantid/internal/buildinfo"
	"github.com/tphakala/plantid/internal/catalog"
	"github.com/tphakala/plantid/internal/classifier"
	"github.com/tphakala/plantid/internal/conf"
	"github.com/tphakala/plantid/internal/datastore"
	"github.com/tphakala/plantid/internal/errors"
	"github.com/tphakala/plantid/internal/httpclient"
	"github.com/tphakala/plantid/internal/identify"
	"github.com/tphakala/plantid/internal/logger"
	"github.com/tphakala/plantid/internal/normalizer"
	"github.com/tphakala/plantid/internal/observability"
	"github.com/tphakala/plantid/internal/recorder"
	"github.com/tphakala/plantid/internal/resultcache"
	"github.com/tphakala/plantid/internal/storage"
)

// App holds the long-lived components. Close releases them in reverse order.
type App struct {
	Settings  *conf.Settings
	Build     *buildinfo.Context
	Log       logger.Logger
	Metrics   *observability.Metrics
	Store     *datastore.Store
	Catalog   *catalog.Repository
	Cache     resultcache.Store
	Service   *identify.Service
	HTTP      *httpclient.Client
	closeFunc []func() error
}

// New opens storage backends and wires the identify service.
func New(ctx context.Context, settings *conf.Settings, build *buildinfo.Context, log logger.Logger) (_ *App, err error) {
	if log == nil {
		log = logger.Global().Module("app")
	}
	a := &App{Settings: settings, Build: build, Log: log}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	a.Metrics, err = observability.NewMetrics()
	if err != nil {
		return nil, errors.New(err).Component("app").Category(errors.CategoryConfiguration).Build()
	}

	a.Store, err = datastore.Open(settings, log.Module("datastore"))
	if err != nil {
		return nil, err
	}
	a.onClose(a.Store.Close)

	a.Catalog, err = catalog.NewRepository(a.Store.DB, log.Module("catalog"))
	if err != nil {
		return nil, err
	}

	a.Cache, err = resultcache.New(ctx, &settings.Cache, log.Module("resultcache"))
	if err != nil {
		return nil, err
	}
	a.onClose(a.Cache.Close)

	objects, err := storage.New(ctx, &settings.Storage, log.Module("storage"))
	if err != nil {
		return nil, err
	}

	a.HTTP = httpclient.New(&httpclient.Config{UserAgent: "plantid/" + build.GetVersion()})
	a.onClose(func() error {
		a.HTTP.Close()
		return nil
	})

	classifierClient, err := newClassifier(settings, a.HTTP, a.Metrics, log)
	if err != nil {
		return nil, err
	}

	norm := normalizer.New(normalizer.Config{
		MaxDimension:  settings.Normalizer.MaxDimension,
		Quality:       settings.Normalizer.Quality,
		MaxInputBytes: settings.Normalizer.MaxInputBytes,
		FetchTimeout:  settings.Normalizer.FetchTimeout,
	}, a.HTTP, log.Module("normalizer"))

	enricher := catalog.NewEnricher(a.Catalog, catalog.EnricherConfig{
		TopN:        settings.Catalog.TopN,
		Concurrency: settings.Catalog.Concurrency,
	}, a.Metrics.Identification, log.Module("enricher"))

	deps := identify.Dependencies{
		Normalizer: norm,
		Cache:      a.Cache,
		Classifier: classifierClient,
		Enricher:   enricher,
		Scans:      a.Store,
		Metrics:    a.Metrics.Identification,
	}
	if objects != nil {
		deps.Storage = objects
	}
	if settings.Recorder.Enabled {
		deps.Recorder = recorder.New(a.Store, settings.Recorder.Timeout, a.Metrics.Identification, log.Module("recorder"))
	}

	a.Service, err = identify.New(deps, identify.Config{
		Threshold:        settings.Gate.Threshold,
		TTL:              settings.Cache.TTL,
		LowConfidenceTTL: settings.Cache.LowConfidenceTTL,
		TopN:             settings.Catalog.TopN,
		StoragePrefix:    settings.Storage.KeyPrefix,
	}, log.Module("identify"))
	if err != nil {
		return nil, err
	}

	log.Info("Identification pipeline ready",
		logger.String("version", build.GetVersion()),
		logger.String("cache_backend", settings.Cache.Backend),
		logger.Bool("storage_enabled", objects != nil),
		logger.Bool("recorder_enabled", settings.Recorder.Enabled),
		logger.Float64("threshold", settings.Gate.Threshold))
	return a, nil
}

func newClassifier(settings *conf.Settings, doer classifier.Doer, m *observability.Metrics, log logger.Logger) (*classifier.Client, error) {
	cs := settings.Classifier
	opts := []classifier.Option{
		classifier.WithObserver(m.Identification),
		classifier.WithLogger(log.Module("classifier")),
	}
	if cs.MaxAttempts > 0 {
		opts = append(opts, classifier.WithRetryMaxAttempts(cs.MaxAttempts))
	}
	if cs.BaseDelay > 0 && cs.MaxDelay >= cs.BaseDelay {
		opts = append(opts, classifier.WithRetryBackoff(cs.BaseDelay, cs.MaxDelay))
	}
	if cs.RateLimit > 0 {
		opts = append(opts, classifier.WithRateLimiter(rate.NewLimiter(rate.Limit(cs.RateLimit), max(cs.RateBurst, 1))))
	}

	return classifier.NewClient(classifier.Config{
		Endpoint:       cs.Endpoint,
		APIKey:         cs.APIKey,
		Organ:          cs.Organ,
		Language:       cs.Language,
		AttemptTimeout: cs.AttemptTimeout,
	}, doer, opts...)
}

func (a *App) onClose(fn func() error) {
	a.closeFunc = append(a.closeFunc, fn)
}

// Close releases every opened component and returns the joined errors.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closeFunc) - 1; i >= 0; i-- {
		if err := a.closeFunc[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closeFunc = nil
	return errors.Join(errs...)
}
