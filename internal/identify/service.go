// Package identify runs the identification pipeline: normalize the photo,
// consult the result cache, classify, gate on confidence, enrich from the
// catalog, record the scan and cache the outcome.
package identify

import (
	"context"
	"time"

	"github.com/tphakala/plantid/internal/datastore"
	"github.com/tphakala/plantid/internal/errors"
	"github.com/tphakala/plantid/internal/gate"
	"github.com/tphakala/plantid/internal/logger"
	"github.com/tphakala/plantid/internal/normalizer"
	"github.com/tphakala/plantid/internal/observability/metrics"
	"github.com/tphakala/plantid/internal/plant"
	"github.com/tphakala/plantid/internal/resultcache"
	"github.com/tphakala/plantid/internal/storage"
)

const (
	DefaultTTL              = 5 * time.Minute
	DefaultLowConfidenceTTL = time.Minute
	DefaultTopN             = 5
)

// ImageNormalizer turns caller input into a canonical JPEG.
type ImageNormalizer interface {
	Normalize(ctx context.Context, in normalizer.Input) (*normalizer.NormalizedImage, error)
}

// Classifier submits an image to the upstream species service.
type Classifier interface {
	Classify(ctx context.Context, image []byte, organ string) ([]plant.RawSuggestion, error)
}

// Enricher attaches catalog data to accepted suggestions.
type Enricher interface {
	Enrich(ctx context.Context, raw []plant.RawSuggestion) []plant.Suggestion
}

// ScanRecorder appends a completed identification to the scan log.
type ScanRecorder interface {
	Record(ctx context.Context, result *plant.Result, fingerprint string, userID *string) (string, error)
}

// ScanReader loads persisted scans.
type ScanReader interface {
	GetScan(ctx context.Context, id string) (*datastore.ScanRecord, error)
}

// Metrics receives pipeline measurements.
type Metrics interface {
	RecordIdentification(outcome string, d time.Duration)
	RecordStage(stage string, d time.Duration)
	RecordCacheLookup(hit bool)
	RecordImageUpload(result string)
}

// Dependencies are the collaborators of a Service. Normalizer, Cache,
// Classifier and Enricher are required; the rest may be nil.
type Dependencies struct {
	Normalizer ImageNormalizer
	Cache      resultcache.Store
	Classifier Classifier
	Enricher   Enricher
	Recorder   ScanRecorder
	Scans      ScanReader
	Storage    storage.ObjectStore
	Metrics    Metrics
}

// Config holds the pipeline policy.
type Config struct {
	Threshold        float64
	TTL              time.Duration
	LowConfidenceTTL time.Duration
	TopN             int    // suggestions kept on a rejected result
	StoragePrefix    string // object key prefix for uploaded images
}

// Request is one identification call.
type Request struct {
	Image  normalizer.Input
	UserID *string // nil for anonymous scans
	Organ  string  // optional organ hint, empty uses the classifier default
}

// Option configures a Service.
type Option func(*Service)

// WithTransitionHook registers fn to observe every state change.
func WithTransitionHook(fn func(from, to State)) Option {
	return func(s *Service) { s.onTransition = fn }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// Service is the identification orchestrator. It is safe for concurrent use.
type Service struct {
	deps         Dependencies
	cfg          Config
	log          logger.Logger
	now          func() time.Time
	onTransition func(from, to State)
}

// New validates deps and applies config defaults.
func New(deps Dependencies, cfg Config, log logger.Logger, opts ...Option) (*Service, error) {
	if deps.Normalizer == nil || deps.Cache == nil || deps.Classifier == nil || deps.Enricher == nil {
		return nil, errors.Newf("identify: normalizer, cache, classifier and enricher are required").
			Component("identify").
			Category(errors.CategoryConfiguration).
			Build()
	}
	if log == nil {
		log = logger.Global().Module("identify")
	}
	if deps.Metrics == nil {
		deps.Metrics = noopMetrics{}
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.LowConfidenceTTL <= 0 {
		cfg.LowConfidenceTTL = DefaultLowConfidenceTTL
	}
	if cfg.TopN <= 0 {
		cfg.TopN = DefaultTopN
	}

	s := &Service{deps: deps, cfg: cfg, log: log, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Identify runs the full pipeline. Errors are returned for invalid input
// and classifier failures; a low confidence outcome is a Response with
// Success false.
func (s *Service) Identify(ctx context.Context, req Request) (*Response, error) {
	return s.run(ctx, req, false)
}

// Retry drops any cached result for the image and identifies it again.
func (s *Service) Retry(ctx context.Context, req Request) (*Response, error) {
	return s.run(ctx, req, true)
}

// ClearCache forgets the cached result for an image.
func (s *Service) ClearCache(ctx context.Context, in normalizer.Input) error {
	img, err := s.deps.Normalizer.Normalize(ctx, in)
	if err != nil {
		return normalizer.AsInvalidImage(err)
	}
	return s.deps.Cache.Delete(ctx, resultcache.IdentifyKey(img.Fingerprint))
}

// GetScan reads back a recorded scan. Results are memoized in the cache.
func (s *Service) GetScan(ctx context.Context, scanID string) (*Response, error) {
	key := resultcache.ScanKey(scanID)
	if entry, ok := s.deps.Cache.Get(ctx, key); ok {
		return &Response{Success: true, Data: entry.Result}, nil
	}
	if s.deps.Scans == nil {
		return nil, errors.Newf("scan %s not found", scanID).
			Component("identify").
			Category(errors.CategoryNotFound).
			Build()
	}

	rec, err := s.deps.Scans.GetScan(ctx, scanID)
	if err != nil {
		return nil, err
	}
	result := rec.ToResult()
	if err := s.deps.Cache.Set(ctx, key, result, s.cfg.TTL); err != nil {
		s.log.Warn("Failed to cache scan", logger.String("scan_id", scanID), logger.Error(err))
	}
	return &Response{Success: true, Data: result.Clone()}, nil
}

// pipeline carries the per-request state of one run.
type pipeline struct {
	svc   *Service
	log   logger.Logger
	state State
	mark  time.Time
}

func (p *pipeline) enter(next State) {
	if !p.state.CanTransition(next) {
		p.log.Error("Illegal state transition",
			logger.String("from", p.state.String()),
			logger.String("to", next.String()))
	}
	p.log.Trace("State transition",
		logger.String("from", p.state.String()),
		logger.String("to", next.String()))
	if p.svc.onTransition != nil {
		p.svc.onTransition(p.state, next)
	}
	p.state = next
}

// stage records the time since the previous stage mark.
func (p *pipeline) stage(name string) {
	now := time.Now()
	p.svc.deps.Metrics.RecordStage(name, now.Sub(p.mark))
	p.mark = now
}

func (s *Service) run(ctx context.Context, req Request, refresh bool) (resp *Response, err error) {
	start := time.Now()
	p := &pipeline{svc: s, log: s.log.WithContext(ctx), state: StateNormalizing, mark: start}

	outcome := metrics.OutcomeFailed
	defer func() {
		if err != nil {
			outcome = outcomeFor(ctx, err)
			p.enter(StateFailed)
		}
		s.deps.Metrics.RecordIdentification(outcome, time.Since(start))
	}()

	img, err := s.deps.Normalizer.Normalize(ctx, req.Image)
	if err != nil {
		p.log.Info("Image normalization failed", logger.Error(err))
		return nil, normalizer.AsInvalidImage(err)
	}
	p.stage(metrics.StageNormalize)
	p.log = p.log.With(logger.String("fingerprint", shortFingerprint(img.Fingerprint)))

	p.enter(StateCacheCheck)
	key := resultcache.IdentifyKey(img.Fingerprint)
	if refresh {
		if err := s.deps.Cache.Delete(ctx, key); err != nil {
			p.log.Warn("Failed to clear cached result", logger.Error(err))
		}
	} else if entry, ok := s.deps.Cache.Get(ctx, key); ok {
		s.deps.Metrics.RecordCacheLookup(true)
		p.stage(metrics.StageCache)
		p.enter(StateCacheHit)
		p.enter(StateDone)
		outcome = metrics.OutcomeCacheHit
		p.log.Debug("Returning cached result", logger.String("scan_id", entry.Result.ScanID))
		return responseFor(entry.Result), nil
	}
	s.deps.Metrics.RecordCacheLookup(false)
	p.stage(metrics.StageCache)

	p.enter(StateClassifying)
	raw, err := s.deps.Classifier.Classify(ctx, img.Data, req.Organ)
	if err != nil {
		p.log.Warn("Classification failed", logger.Error(err))
		return nil, err
	}
	p.stage(metrics.StageClassify)

	p.enter(StateGating)
	decision := gate.Evaluate(raw, s.cfg.Threshold)

	var draft *plant.Result
	ttl := s.cfg.TTL
	if decision.Accepted {
		p.enter(StateEnriching)
		draft = s.accepted(ctx, p, img, req.UserID, decision)
		outcome = metrics.OutcomeAccepted
	} else {
		p.enter(StateRejected)
		draft = s.rejected(img, raw, decision)
		ttl = s.cfg.LowConfidenceTTL
		outcome = metrics.OutcomeRejected
	}

	p.enter(StateRecording)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var scanID string
	if s.deps.Recorder != nil && len(draft.Suggestions) > 0 {
		// failures are logged by the recorder and leave the result without a scan id
		scanID, _ = s.deps.Recorder.Record(ctx, draft, img.Fingerprint, req.UserID)
	}
	p.stage(metrics.StageRecord)
	result := withScanID(draft, scanID)

	p.enter(StateCacheStoring)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := s.deps.Cache.Set(ctx, key, result, ttl); err != nil {
		p.log.Warn("Failed to cache result", logger.Error(err))
	}
	p.stage(metrics.StageCache)

	p.enter(StateDone)
	p.log.Info("Identification complete",
		logger.String("outcome", outcome),
		logger.String("scan_id", scanID),
		logger.Float64("confidence", result.Confidence),
		logger.Duration("duration", time.Since(start)))
	return responseFor(result.Clone()), nil
}

func (s *Service) accepted(ctx context.Context, p *pipeline, img *normalizer.NormalizedImage, userID *string, decision gate.Result) *plant.Result {
	suggestions := s.deps.Enricher.Enrich(ctx, decision.Suggestions)
	p.stage(metrics.StageEnrich)

	imageURL := s.upload(ctx, p, img, userID)
	p.stage(metrics.StageUpload)

	result := &plant.Result{
		Suggestions:  suggestions,
		ImageURL:     imageURL,
		ThresholdMet: true,
		Confidence:   decision.BestConfidence,
	}
	if len(suggestions) > 0 {
		top := suggestions[0].Clone()
		result.TopSuggestion = &top
	}
	return result
}

func (s *Service) rejected(img *normalizer.NormalizedImage, raw []plant.RawSuggestion, decision gate.Result) *plant.Result {
	raw = raw[:min(len(raw), s.cfg.TopN)]
	suggestions := make([]plant.Suggestion, len(raw))
	for i, r := range raw {
		suggestions[i] = plant.FromRaw(r)
	}
	return &plant.Result{
		Suggestions:  suggestions,
		ImageURL:     plant.StringPtr(img.SourceURL),
		ThresholdMet: false,
		Confidence:   decision.BestConfidence,
	}
}

// upload stores the normalized image and returns its URL. Without storage,
// or when the upload fails, the original URL (if any) is used instead.
func (s *Service) upload(ctx context.Context, p *pipeline, img *normalizer.NormalizedImage, userID *string) *string {
	fallback := plant.StringPtr(img.SourceURL)
	if s.deps.Storage == nil || ctx.Err() != nil {
		return fallback
	}

	key := storage.ScanImageKey(s.cfg.StoragePrefix, userID, s.now())
	url, err := s.deps.Storage.Put(ctx, key, img.Data, img.ContentType)
	if err != nil {
		s.deps.Metrics.RecordImageUpload(metrics.ResultError)
		p.log.Warn("Image upload failed, continuing without stored image", logger.Error(err))
		return fallback
	}
	s.deps.Metrics.RecordImageUpload(metrics.ResultSuccess)
	return &url
}

func withScanID(r *plant.Result, scanID string) *plant.Result {
	out := r.Clone()
	out.ScanID = scanID
	return out
}

func shortFingerprint(fp string) string {
	return fp[:min(len(fp), 12)]
}

type noopMetrics struct{}

func (noopMetrics) RecordIdentification(string, time.Duration) {}
func (noopMetrics) RecordStage(string, time.Duration)          {}
func (noopMetrics) RecordCacheLookup(bool)                     {}
func (noopMetrics) RecordImageUpload(string)                   {}
