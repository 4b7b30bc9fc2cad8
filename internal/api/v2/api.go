// Package api exposes the identification pipeline and the species catalog
// as a JSON API under /api/v2.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/tphakala/plantid/internal/catalog"
	"github.com/tphakala/plantid/internal/conf"
	"github.com/tphakala/plantid/internal/errors"
	"github.com/tphakala/plantid/internal/identify"
	"github.com/tphakala/plantid/internal/logger"
	"github.com/tphakala/plantid/internal/normalizer"
)

// DefaultBodyLimit caps request bodies when settings leave it empty. It must
// fit a base64 data URI of an image at normalizer.DefaultMaxInputBytes.
const DefaultBodyLimit = "30M"

// IdentifyService runs identifications. *identify.Service satisfies it.
type IdentifyService interface {
	Identify(ctx context.Context, req identify.Request) (*identify.Response, error)
	Retry(ctx context.Context, req identify.Request) (*identify.Response, error)
	ClearCache(ctx context.Context, in normalizer.Input) error
	GetScan(ctx context.Context, scanID string) (*identify.Response, error)
}

// SpeciesSearcher is the catalog surface used by the API.
type SpeciesSearcher interface {
	Search(ctx context.Context, query string, limit, offset int) ([]catalog.Species, int64, error)
}

// Pinger reports whether a backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HTTPMetrics receives per-request measurements.
type HTTPMetrics interface {
	RecordRequest(method, path string, status int, d time.Duration)
	RecordError(method, path, errorType string)
}

// Controller owns the /api/v2 route group.
type Controller struct {
	Echo     *echo.Echo
	Group    *echo.Group
	Settings *conf.Settings

	identifier IdentifyService
	species    SpeciesSearcher
	database   Pinger
	metrics    HTTPMetrics
	metricsH   http.Handler
	version    string
	log        logger.Logger
	startTime  time.Time
}

// Option configures a Controller.
type Option func(*Controller)

// WithSpecies enables the species search endpoint.
func WithSpecies(s SpeciesSearcher) Option {
	return func(c *Controller) { c.species = s }
}

// WithDatabase adds a database check to the health endpoint.
func WithDatabase(p Pinger) Option {
	return func(c *Controller) { c.database = p }
}

// WithMetrics records request metrics and serves handler at /metrics.
func WithMetrics(m HTTPMetrics, handler http.Handler) Option {
	return func(c *Controller) {
		c.metrics = m
		c.metricsH = handler
	}
}

// WithVersion sets the version reported by the health endpoint.
func WithVersion(v string) Option {
	return func(c *Controller) { c.version = v }
}

// WithLogger replaces the module logger.
func WithLogger(l logger.Logger) Option {
	return func(c *Controller) { c.log = l }
}

// New registers the API routes on e.
func New(e *echo.Echo, settings *conf.Settings, identifier IdentifyService, opts ...Option) (*Controller, error) {
	if identifier == nil {
		return nil, errors.Newf("api: identify service is required").
			Component("api").
			Category(errors.CategoryConfiguration).
			Build()
	}
	if settings == nil {
		settings = &conf.Settings{}
	}

	c := &Controller{
		Echo:       e,
		Settings:   settings,
		identifier: identifier,
		log:        logger.Global().Module("api"),
		startTime:  time.Now(),
	}
	for _, opt := range opts {
		opt(c)
	}

	bodyLimit := settings.WebServer.BodyLimit
	if bodyLimit == "" {
		bodyLimit = DefaultBodyLimit
	}

	c.Group = e.Group("/api/v2")
	c.Group.Use(middleware.Recover())
	c.Group.Use(middleware.RequestID())
	c.Group.Use(middleware.CORS())
	c.Group.Use(middleware.BodyLimit(bodyLimit))
	c.Group.Use(c.LoggingMiddleware())
	if c.metrics != nil {
		c.Group.Use(c.MetricsMiddleware())
	}

	c.initRoutes()
	return c, nil
}

func (c *Controller) initRoutes() {
	c.Group.GET("/health", c.HealthCheck)

	c.Group.POST("/identify", c.Identify)
	c.Group.POST("/identify/retry", c.RetryIdentify)
	c.Group.DELETE("/identify/cache", c.ClearCache)
	c.Group.GET("/scans/:id", c.GetScan)

	if c.species != nil {
		c.Group.GET("/species/search", c.SearchSpecies)
	}

	if c.metricsH != nil {
		c.Echo.GET("/metrics", echo.WrapHandler(c.metricsH))
	}
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Success       bool   `json:"success"`
	Error         string `json:"error"`
	Message       string `json:"message"`
	Code          int    `json:"code"`
	CorrelationID string `json:"correlation_id"`
}

// NewErrorResponse builds an error body with a fresh correlation id.
func NewErrorResponse(userMessage, message string, code int) *ErrorResponse {
	return &ErrorResponse{
		Error:         userMessage,
		Message:       message,
		Code:          code,
		CorrelationID: uuid.NewString()[:8],
	}
}

// HandleError logs err with a correlation id and writes an error body. The
// underlying error text is logged, never returned to the caller.
func (c *Controller) HandleError(ctx echo.Context, err error, message string, code int) error {
	resp := NewErrorResponse(identify.UserMessage(err), message, code)
	if err == nil {
		resp.Error = message
	}

	fields := []logger.Field{
		logger.String("correlation_id", resp.CorrelationID),
		logger.String("message", message),
		logger.Int("code", code),
		logger.String("path", ctx.Request().URL.Path),
		logger.String("method", ctx.Request().Method),
		logger.String("ip", ctx.RealIP()),
	}
	if err != nil {
		fields = append(fields, logger.Error(err))
	}
	log := c.log.WithContext(ctx.Request().Context())
	if code >= http.StatusInternalServerError {
		log.Error("API error", fields...)
	} else {
		log.Info("API request rejected", fields...)
	}

	return ctx.JSON(code, resp)
}

// LoggingMiddleware logs each request and tags its context with the request id.
func (c *Controller) LoggingMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			start := time.Now()
			req := ctx.Request()
			if id := ctx.Response().Header().Get(echo.HeaderXRequestID); id != "" {
				ctx.SetRequest(req.WithContext(logger.WithTraceID(req.Context(), id)))
			}

			err := next(ctx)

			res := ctx.Response()
			fields := []logger.Field{
				logger.String("method", req.Method),
				logger.String("path", req.URL.Path),
				logger.Int("status", res.Status),
				logger.String("ip", ctx.RealIP()),
				logger.String("user_agent", req.UserAgent()),
				logger.Duration("latency", time.Since(start)),
			}
			if err != nil {
				fields = append(fields, logger.Error(err))
			}
			c.log.WithContext(ctx.Request().Context()).Debug("API request", fields...)
			return err
		}
	}
}

// MetricsMiddleware records request counts and latencies by route template.
func (c *Controller) MetricsMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			start := time.Now()
			err := next(ctx)

			status := ctx.Response().Status
			var httpErr *echo.HTTPError
			if err != nil && errors.As(err, &httpErr) {
				status = httpErr.Code
			}

			method := ctx.Request().Method
			path := ctx.Path()
			c.metrics.RecordRequest(method, path, status, time.Since(start))
			if status >= http.StatusBadRequest {
				c.metrics.RecordError(method, path, errorType(status))
			}
			return err
		}
	}
}

func errorType(status int) string {
	switch {
	case status == http.StatusNotFound:
		return "not_found"
	case status == http.StatusRequestEntityTooLarge:
		return "too_large"
	case status >= http.StatusInternalServerError:
		return "server"
	default:
		return "client"
	}
}

// HealthCheck reports liveness, uptime and database reachability.
func (c *Controller) HealthCheck(ctx echo.Context) error {
	response := map[string]any{
		"status":         "healthy",
		"version":        c.version,
		"timestamp":      time.Now().Format(time.RFC3339),
		"uptime_seconds": time.Since(c.startTime).Seconds(),
	}

	status := http.StatusOK
	if c.database != nil {
		pingCtx, cancel := context.WithTimeout(ctx.Request().Context(), 2*time.Second)
		defer cancel()
		if err := c.database.Ping(pingCtx); err != nil {
			response["status"] = "degraded"
			response["database_status"] = "disconnected"
			status = http.StatusServiceUnavailable
			c.log.Warn("Health check database ping failed", logger.Error(err))
		} else {
			response["database_status"] = "connected"
		}
	}

	return ctx.JSON(status, response)
}
