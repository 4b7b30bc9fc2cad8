// Package telemetry provides opt-in, privacy filtered error reporting to Sentry.
package telemetry

import (
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/tphakala/plantid/internal/conf"
	"github.com/tphakala/plantid/internal/errors"
	"github.com/tphakala/plantid/internal/logger"
)

// DefaultFlushTimeout bounds the final flush at shutdown.
const DefaultFlushTimeout = 2 * time.Second

// Option adjusts the Sentry client options before Init.
type Option func(*sentry.ClientOptions)

// WithTransport replaces the HTTP transport, mainly for tests.
func WithTransport(t sentry.Transport) Option {
	return func(o *sentry.ClientOptions) { o.Transport = t }
}

var (
	initMu      sync.Mutex
	initialized bool
)

// Init configures the Sentry SDK and installs the errors package reporter so
// every built EnhancedError is forwarded. When telemetry is disabled nothing
// is installed and the returned flush is a no-op.
func Init(settings *conf.SentrySettings, release string, log logger.Logger, opts ...Option) (flush func(), err error) {
	if log == nil {
		log = logger.Global().Module("telemetry")
	}
	if settings == nil || !settings.Enabled {
		log.Info("Sentry telemetry is disabled (opt-in required)")
		return func() {}, nil
	}

	options := sentry.ClientOptions{
		Dsn:              settings.DSN,
		Environment:      settings.Environment,
		SampleRate:       settings.SampleRate,
		Release:          "plantid@" + release,
		AttachStacktrace: false,
		ServerName:       "",
		BeforeSend: func(event *sentry.Event, _ *sentry.EventHint) *sentry.Event {
			return applyPrivacyFilters(event)
		},
	}
	for _, opt := range opts {
		opt(&options)
	}

	if err := sentry.Init(options); err != nil {
		return nil, errors.New(fmt.Errorf("sentry initialization failed: %w", err)).
			Component("telemetry").
			Category(errors.CategoryConfiguration).
			Build()
	}

	initMu.Lock()
	initialized = true
	initMu.Unlock()

	errors.SetTelemetryReporter(errors.NewSentryReporter(true))
	log.Info("Sentry telemetry initialized",
		logger.String("environment", settings.Environment),
		logger.String("release", options.Release))

	return func() {
		errors.SetTelemetryReporter(nil)
		if !sentry.Flush(DefaultFlushTimeout) {
			log.Warn("Sentry flush timed out", logger.Duration("timeout", DefaultFlushTimeout))
		}
	}, nil
}

// Enabled reports whether Init installed a live client.
func Enabled() bool {
	initMu.Lock()
	defer initMu.Unlock()
	return initialized
}

// applyPrivacyFilters strips host, user and request data that could
// identify the caller or leak the uploaded photo.
func applyPrivacyFilters(event *sentry.Event) *sentry.Event {
	event.User = sentry.User{}
	event.ServerName = ""

	if event.Contexts != nil {
		delete(event.Contexts, "device")
		delete(event.Contexts, "os")
		delete(event.Contexts, "runtime")
	}

	for k := range event.Extra {
		if k != "error_type" && k != "component" {
			delete(event.Extra, k)
		}
	}

	if event.Tags != nil {
		delete(event.Tags, "server_name")
		delete(event.Tags, "hostname")
	}

	if event.Request != nil {
		event.Request.Data = ""
		event.Request.Cookies = ""
		event.Request.QueryString = ""
		event.Request.Headers = nil
		event.Request.Env = nil
		event.Request.URL = stripQuery(event.Request.URL)
	}

	return event
}

func stripQuery(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	u.RawQuery = ""
	u.User = nil
	u.Fragment = ""
	return u.String()
}
