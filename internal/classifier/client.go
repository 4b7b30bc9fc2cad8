// Package classifier submits normalized images to the upstream species
// classification service and retries transient failures with exponential
// backoff.
package classifier

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/time/rate"

	"github.com/tphakala/plantid/internal/errors"
	"github.com/tphakala/plantid/internal/logger"
	"github.com/tphakala/plantid/internal/plant"
)

const (
	defaultMaxAttempts    = 3
	defaultBaseDelay      = time.Second
	defaultMaxDelay       = 8 * time.Second
	defaultAttemptTimeout = 15 * time.Second

	// maxErrorBody bounds how much of an error response is kept for messages.
	maxErrorBody = 4 << 10
	// maxResponseBody bounds a successful response read.
	maxResponseBody = 4 << 20
)

// Attempt outcomes reported to the Observer.
const (
	OutcomeSuccess        = "success"
	OutcomeClientError    = "client_error"
	OutcomeServerError    = "server_error"
	OutcomeTransportError = "transport_error"
	OutcomeTimeout        = "timeout"
	OutcomeDecodeError    = "decode_error"
	OutcomeCanceled       = "canceled"
)

// Doer sends HTTP requests. *httpclient.Client satisfies it.
type Doer interface {
	Do(ctx context.Context, req *http.Request) (*http.Response, error)
}

// Observer receives one call per attempt.
type Observer interface {
	ObserveClassifierAttempt(attempt int, outcome string, elapsed time.Duration)
}

// Config describes the upstream endpoint.
type Config struct {
	Endpoint       string // full identify URL, e.g. https://my-api.plantnet.org/v2/identify/all
	APIKey         string
	Organ          string // default organ hint, empty to omit
	Language       string
	AttemptTimeout time.Duration
}

// Client is safe for concurrent use. Attempts within one Classify call are
// sequential; separate calls are independent.
type Client struct {
	cfg      Config
	endpoint *url.URL
	http     Doer
	log      logger.Logger

	maxAttempts int
	baseDelay   time.Duration
	maxDelay    time.Duration
	sleeper     func(time.Duration)
	limiter     *rate.Limiter
	observer    Observer
}

// Option customizes the client.
type Option func(*Client)

// WithRetryMaxAttempts sets the total number of attempts (minimum 1).
func WithRetryMaxAttempts(attempts int) Option {
	return func(c *Client) {
		if attempts > 0 {
			c.maxAttempts = attempts
		}
	}
}

// WithRetryBackoff sets the first retry delay and the cap for later ones.
func WithRetryBackoff(baseDelay, maxDelay time.Duration) Option {
	return func(c *Client) {
		c.baseDelay = baseDelay
		c.maxDelay = maxDelay
	}
}

// WithSleeper replaces the backoff sleep, mostly for tests. Cancellation is
// still checked after the sleeper returns.
func WithSleeper(sleeper func(time.Duration)) Option {
	return func(c *Client) {
		c.sleeper = sleeper
	}
}

// WithRateLimiter throttles attempts to protect the upstream quota.
func WithRateLimiter(limiter *rate.Limiter) Option {
	return func(c *Client) {
		c.limiter = limiter
	}
}

// WithObserver reports every attempt, typically to metrics.
func WithObserver(observer Observer) Option {
	return func(c *Client) {
		c.observer = observer
	}
}

// WithLogger sets the logger; the global module logger is used otherwise.
func WithLogger(log logger.Logger) Option {
	return func(c *Client) {
		if log != nil {
			c.log = log
		}
	}
}

// NewClient validates cfg and returns a client sending through doer.
func NewClient(cfg Config, doer Doer, opts ...Option) (*Client, error) {
	cfg.Endpoint = strings.TrimSpace(cfg.Endpoint)
	cfg.APIKey = strings.TrimSpace(cfg.APIKey)

	endpoint, err := url.Parse(cfg.Endpoint)
	if err != nil || (endpoint.Scheme != "http" && endpoint.Scheme != "https") || endpoint.Host == "" {
		return nil, errors.Newf("classifier endpoint %q is not an http(s) URL", cfg.Endpoint).
			Component("classifier").
			Category(errors.CategoryConfiguration).
			Build()
	}
	if cfg.APIKey == "" {
		return nil, errors.Newf("classifier API key is not configured").
			Component("classifier").
			Category(errors.CategoryConfiguration).
			Build()
	}
	if doer == nil {
		return nil, errors.Newf("classifier requires an HTTP client").
			Component("classifier").
			Category(errors.CategoryConfiguration).
			Build()
	}
	if cfg.AttemptTimeout <= 0 {
		cfg.AttemptTimeout = defaultAttemptTimeout
	}

	c := &Client{
		cfg:         cfg,
		endpoint:    endpoint,
		http:        doer,
		log:         logger.Global().Module("classifier"),
		maxAttempts: defaultMaxAttempts,
		baseDelay:   defaultBaseDelay,
		maxDelay:    defaultMaxDelay,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Classify submits image and returns candidates ordered by descending score.
// organ overrides the configured organ hint when non-empty.
//
// A 4xx answer fails immediately with *ClientRequestError. Server errors,
// transport failures and attempt timeouts are retried; when attempts run out
// the result is *ClassificationUnavailableError. Cancelling ctx aborts the
// current attempt or backoff and returns ctx.Err().
func (c *Client) Classify(ctx context.Context, image []byte, organ string) ([]plant.RawSuggestion, error) {
	if organ == "" {
		organ = c.cfg.Organ
	}
	body, contentType, err := buildMultipart(image, organ)
	if err != nil {
		return nil, err
	}

	var lastErr error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		start := time.Now()
		suggestions, err := c.attempt(ctx, body, contentType)
		elapsed := time.Since(start)
		outcome := classifyOutcome(ctx, err)
		c.observe(attempt, outcome, elapsed)

		log := c.log.With(
			logger.Int("attempt", attempt),
			logger.Int("max_attempts", c.maxAttempts),
			logger.String("outcome", outcome),
			logger.Duration("took", elapsed))

		switch outcome {
		case OutcomeSuccess:
			log.Debug("classification succeeded", logger.Int("suggestions", len(suggestions)))
			return suggestions, nil
		case OutcomeCanceled:
			log.Debug("classification cancelled")
			return nil, ctx.Err()
		case OutcomeClientError:
			log.Warn("classifier rejected request", logger.Error(err))
			return nil, err
		}

		lastErr = err
		if attempt == c.maxAttempts {
			log.Warn("classification attempt failed, giving up", logger.Error(err))
			break
		}

		delay := c.backoff(attempt)
		log.Debug("classification attempt failed, retrying",
			logger.Error(err),
			logger.Duration("delay", delay))
		if err := c.sleep(ctx, delay); err != nil {
			return nil, err
		}
	}

	return nil, &ClassificationUnavailableError{Attempts: c.maxAttempts, Last: lastErr}
}

// attempt performs one bounded request.
func (c *Client) attempt(ctx context.Context, body []byte, contentType string) ([]plant.RawSuggestion, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("rate limiter: %w", err)
		}
	}

	attemptCtx, cancel := context.WithTimeout(ctx, c.cfg.AttemptTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodPost, c.requestURL(), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build classifier request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(attemptCtx, req)
	if err != nil {
		return nil, c.redact(err)
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			c.log.Debug("failed to close classifier response body", logger.Error(cerr))
		}
	}()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		// the upstream answers 404 when it recognises no species at all
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		if isSpeciesNotFound(data) {
			return []plant.RawSuggestion{}, nil
		}
		return nil, &ClientRequestError{StatusCode: resp.StatusCode, Message: errorMessage(data)}
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &ClientRequestError{StatusCode: resp.StatusCode, Message: errorMessage(data)}
	case resp.StatusCode >= 500:
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody))
		return nil, &upstreamStatusError{StatusCode: resp.StatusCode}
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, &upstreamStatusError{StatusCode: resp.StatusCode}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, c.redact(err)
	}
	return parseResponse(data)
}

func (c *Client) requestURL() string {
	u := *c.endpoint
	q := u.Query()
	q.Set("api-key", c.cfg.APIKey)
	if c.cfg.Language != "" {
		q.Set("lang", c.cfg.Language)
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// redact strips the query string, which carries the API key, from transport
// errors before they reach logs.
func (c *Client) redact(err error) error {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		u := *c.endpoint
		u.RawQuery = ""
		urlErr.URL = u.String()
	}
	return err
}

// backoff returns BaseDelay * 2^(attempt-1), capped at MaxDelay.
func (c *Client) backoff(attempt int) time.Duration {
	delay := c.baseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if c.maxDelay > 0 && delay >= c.maxDelay {
			return c.maxDelay
		}
	}
	if c.maxDelay > 0 && delay > c.maxDelay {
		return c.maxDelay
	}
	return delay
}

func (c *Client) sleep(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return ctx.Err()
	}
	if c.sleeper != nil {
		c.sleeper(delay)
		return ctx.Err()
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (c *Client) observe(attempt int, outcome string, elapsed time.Duration) {
	if c.observer != nil {
		c.observer.ObserveClassifierAttempt(attempt, outcome, elapsed)
	}
}

// classifyOutcome labels an attempt result. The caller's context decides
// between cancellation and a per-attempt timeout.
func classifyOutcome(ctx context.Context, err error) string {
	var clientErr *ClientRequestError
	var statusErr *upstreamStatusError
	var decodeErr *decodeError

	switch {
	case err == nil:
		return OutcomeSuccess
	case ctx.Err() != nil:
		return OutcomeCanceled
	case errors.As(err, &clientErr):
		return OutcomeClientError
	case errors.As(err, &statusErr):
		return OutcomeServerError
	case errors.As(err, &decodeErr):
		return OutcomeDecodeError
	case errors.Is(err, context.DeadlineExceeded):
		return OutcomeTimeout
	default:
		return OutcomeTransportError
	}
}

func buildMultipart(image []byte, organ string) ([]byte, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", `form-data; name="images"; filename="image.jpg"`)
	header.Set("Content-Type", "image/jpeg")
	part, err := w.CreatePart(header)
	if err != nil {
		return nil, "", fmt.Errorf("create image part: %w", err)
	}
	if _, err := part.Write(image); err != nil {
		return nil, "", fmt.Errorf("write image part: %w", err)
	}

	if organ != "" {
		if err := w.WriteField("organs", organ); err != nil {
			return nil, "", fmt.Errorf("write organs field: %w", err)
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("close multipart body: %w", err)
	}
	return buf.Bytes(), w.FormDataContentType(), nil
}

func isSpeciesNotFound(body []byte) bool {
	return strings.Contains(strings.ToLower(string(body)), "species not found")
}

// maxErrorMessage bounds ClientRequestError.Message in bytes.
const maxErrorMessage = 200

// errorMessage pulls a short human message out of an error body.
func errorMessage(body []byte) string {
	msg := strings.TrimSpace(string(body))
	if obj, err := parseErrorObject(body); err == nil {
		msg = obj
	}
	if len(msg) > maxErrorMessage {
		cut := maxErrorMessage
		for cut > 0 && !utf8.RuneStart(msg[cut]) {
			cut--
		}
		msg = msg[:cut]
	}
	return msg
}
