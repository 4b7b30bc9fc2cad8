package identify

import (
	"bytes"
	"context"
	stderrors "errors"
	"image"
	"image/color"
	"image/png"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/tphakala/plantid/internal/catalog"
	"github.com/tphakala/plantid/internal/classifier"
	"github.com/tphakala/plantid/internal/datastore"
	"github.com/tphakala/plantid/internal/errors"
	"github.com/tphakala/plantid/internal/logger"
	"github.com/tphakala/plantid/internal/normalizer"
	"github.com/tphakala/plantid/internal/observability/metrics"
	"github.com/tphakala/plantid/internal/plant"
	"github.com/tphakala/plantid/internal/recorder"
	"github.com/tphakala/plantid/internal/resultcache"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func quietLogger() logger.Logger {
	return logger.NewSlogLogger(&bytes.Buffer{}, logger.LogLevelError, nil)
}

// photo returns a small PNG in a flat colour; different colours give
// different fingerprints.
func photo(t *testing.T, c color.RGBA) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 32, 24))
	for y := range 24 {
		for x := range 32 {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

var (
	monsteraPhoto = color.RGBA{R: 30, G: 140, B: 60, A: 255}
	blurryPhoto   = color.RGBA{R: 120, G: 120, B: 120, A: 255}
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fakeClassifier struct {
	mu     sync.Mutex
	calls  int
	result []plant.RawSuggestion
	err    error
	// onCall runs before the result is returned.
	onCall func()
}

func (f *fakeClassifier) Classify(_ context.Context, _ []byte, _ string) ([]plant.RawSuggestion, error) {
	f.mu.Lock()
	f.calls++
	onCall := f.onCall
	f.mu.Unlock()
	if onCall != nil {
		onCall()
	}
	return f.result, f.err
}

func (f *fakeClassifier) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeEnricher struct {
	mu    sync.Mutex
	calls int
}

func (f *fakeEnricher) Enrich(_ context.Context, raw []plant.RawSuggestion) []plant.Suggestion {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	out := make([]plant.Suggestion, 0, len(raw))
	for _, r := range raw {
		s := plant.FromRaw(r)
		if r.ScientificName == "Monstera deliciosa" {
			s.SpeciesID = plant.StringPtr("sp-monstera")
			s.CareProfile = &plant.CareProfile{LightRequirement: plant.LightPartialShade, WaterFrequencyDays: 7}
		}
		out = append(out, s)
	}
	return out
}

func (f *fakeEnricher) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeRecorder struct {
	mu      sync.Mutex
	results []*plant.Result
	err     error
}

func (f *fakeRecorder) Record(_ context.Context, result *plant.Result, _ string, _ *string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	f.results = append(f.results, result.Clone())
	return "scan-" + string(rune('a'+len(f.results)-1)), nil
}

func (f *fakeRecorder) Count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.results)
}

type fakeStorage struct {
	mu   sync.Mutex
	keys []string
	err  error
}

func (f *fakeStorage) Put(_ context.Context, key string, _ []byte, _ string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	f.keys = append(f.keys, key)
	return "https://images.example.com/" + key, nil
}

type recordingMetrics struct {
	mu       sync.Mutex
	outcomes []string
	hits     int
	misses   int
	uploads  []string
}

func (m *recordingMetrics) RecordIdentification(outcome string, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outcomes = append(m.outcomes, outcome)
}

func (m *recordingMetrics) RecordStage(string, time.Duration) {}

func (m *recordingMetrics) RecordCacheLookup(hit bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if hit {
		m.hits++
	} else {
		m.misses++
	}
}

func (m *recordingMetrics) RecordImageUpload(result string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.uploads = append(m.uploads, result)
}

func (m *recordingMetrics) Outcomes() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.outcomes...)
}

type harness struct {
	svc        *Service
	clock      *fakeClock
	cache      *resultcache.MemoryStore
	classifier *fakeClassifier
	enricher   *fakeEnricher
	recorder   *fakeRecorder
	storage    *fakeStorage
	metrics    *recordingMetrics

	mu    sync.Mutex
	trail []State
}

func (h *harness) Trail() []State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]State(nil), h.trail...)
}

func monsteraSuggestions() []plant.RawSuggestion {
	return []plant.RawSuggestion{
		{ScientificName: "Monstera deliciosa", CommonName: "Swiss cheese plant", Score: 0.92},
		{ScientificName: "Philodendron bipinnatifidum", CommonName: "Lacy tree philodendron", Score: 0.04},
	}
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		clock:      newFakeClock(),
		classifier: &fakeClassifier{result: monsteraSuggestions()},
		enricher:   &fakeEnricher{},
		recorder:   &fakeRecorder{},
		storage:    &fakeStorage{},
		metrics:    &recordingMetrics{},
	}
	h.cache = resultcache.NewMemoryStore(resultcache.MemoryConfig{MaxEntries: 16, Now: h.clock.Now}, quietLogger())
	t.Cleanup(func() { _ = h.cache.Close() })

	svc, err := New(Dependencies{
		Normalizer: normalizer.New(normalizer.DefaultConfig(), nil, quietLogger()),
		Cache:      h.cache,
		Classifier: h.classifier,
		Enricher:   h.enricher,
		Recorder:   h.recorder,
		Storage:    h.storage,
		Metrics:    h.metrics,
	}, Config{Threshold: 0.5, TopN: 3, StoragePrefix: "test"}, quietLogger(),
		WithClock(h.clock.Now),
		WithTransitionHook(func(_, to State) {
			h.mu.Lock()
			defer h.mu.Unlock()
			h.trail = append(h.trail, to)
		}))
	require.NoError(t, err)
	h.svc = svc
	return h
}

func TestIdentifyAcceptedEndToEnd(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	user := "user-1"
	resp, err := h.svc.Identify(t.Context(), Request{Image: normalizer.FromBytes(photo(t, monsteraPhoto)), UserID: &user})
	require.NoError(t, err)

	require.True(t, resp.Success)
	assert.Empty(t, resp.Error)
	require.NotNil(t, resp.Data)
	assert.True(t, resp.Data.ThresholdMet)
	assert.InDelta(t, 0.92, resp.Data.Confidence, 1e-9)
	assert.Equal(t, "scan-a", resp.Data.ScanID)

	require.NotNil(t, resp.Data.TopSuggestion)
	assert.Equal(t, "Monstera deliciosa", resp.Data.TopSuggestion.ScientificName)
	assert.True(t, resp.Data.TopSuggestion.Enriched())
	require.NotNil(t, resp.Data.TopSuggestion.CareProfile)
	assert.Equal(t, plant.LightPartialShade, resp.Data.TopSuggestion.CareProfile.LightRequirement)
	assert.Len(t, resp.Data.Suggestions, 2)

	require.NotNil(t, resp.Data.ImageURL)
	assert.Contains(t, *resp.Data.ImageURL, "https://images.example.com/test/scans/user-1/2026/04/01/")
	assert.Equal(t, []string{metrics.ResultSuccess}, h.metrics.uploads)

	assert.Equal(t, 1, h.recorder.Count())
	assert.Equal(t, 1, h.cache.Len())
	assert.Equal(t, []State{StateCacheCheck, StateClassifying, StateGating, StateEnriching, StateRecording, StateCacheStoring, StateDone}, h.Trail())
	assert.Equal(t, []string{metrics.OutcomeAccepted}, h.metrics.Outcomes())
}

func TestIdentifyLowConfidence(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.classifier.result = []plant.RawSuggestion{
		{ScientificName: "Ficus lyrata", CommonName: "Fiddle-leaf fig", Score: 0.21},
		{ScientificName: "Ficus elastica", CommonName: "Rubber plant", Score: 0.15},
		{ScientificName: "Ficus benjamina", CommonName: "Weeping fig", Score: 0.11},
		{ScientificName: "Ficus pumila", CommonName: "Creeping fig", Score: 0.05},
	}

	resp, err := h.svc.Identify(t.Context(), Request{Image: normalizer.FromBytes(photo(t, blurryPhoto))})
	require.NoError(t, err)

	assert.False(t, resp.Success)
	assert.Equal(t, MsgLowConfidence, resp.Error)
	require.NotNil(t, resp.Data)
	assert.False(t, resp.Data.ThresholdMet)
	assert.Nil(t, resp.Data.TopSuggestion)
	assert.Len(t, resp.Data.Suggestions, 3, "rejected results keep the configured top N")
	assert.InDelta(t, 0.21, resp.Data.Confidence, 1e-9)
	assert.Nil(t, resp.Data.ImageURL)

	assert.Zero(t, h.enricher.Calls())
	assert.Empty(t, h.storage.keys)
	assert.Equal(t, []State{StateCacheCheck, StateClassifying, StateGating, StateRejected, StateRecording, StateCacheStoring, StateDone}, h.Trail())
	assert.Equal(t, []string{metrics.OutcomeRejected}, h.metrics.Outcomes())

	// low confidence results live for the short TTL only
	h.clock.Advance(DefaultLowConfidenceTTL + time.Second)
	_, err = h.svc.Identify(t.Context(), Request{Image: normalizer.FromBytes(photo(t, blurryPhoto))})
	require.NoError(t, err)
	assert.Equal(t, 2, h.classifier.Calls())
}

func TestIdentifyEmptyClassifierResult(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.classifier.result = nil

	resp, err := h.svc.Identify(t.Context(), Request{Image: normalizer.FromBytes(photo(t, blurryPhoto))})
	require.NoError(t, err)
	assert.False(t, resp.Success)
	assert.Empty(t, resp.Data.Suggestions)
	assert.Zero(t, resp.Data.Confidence)
	assert.Zero(t, h.recorder.Count(), "empty results are not recorded")
}

func TestIdentifyIsIdempotentWithinTTL(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	img := photo(t, monsteraPhoto)

	first, err := h.svc.Identify(t.Context(), Request{Image: normalizer.FromBytes(img)})
	require.NoError(t, err)
	second, err := h.svc.Identify(t.Context(), Request{Image: normalizer.FromBytes(img)})
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, h.classifier.Calls())
	assert.Equal(t, 1, h.recorder.Count(), "cache hits are not recorded again")
	assert.Equal(t, []string{metrics.OutcomeAccepted, metrics.OutcomeCacheHit}, h.metrics.Outcomes())

	h.clock.Advance(DefaultTTL + time.Second)
	third, err := h.svc.Identify(t.Context(), Request{Image: normalizer.FromBytes(img)})
	require.NoError(t, err)
	assert.Equal(t, 2, h.classifier.Calls())
	assert.NotEqual(t, first.Data.ScanID, third.Data.ScanID)
}

func TestIdentifyCachedResultIsIsolated(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	img := photo(t, monsteraPhoto)

	first, err := h.svc.Identify(t.Context(), Request{Image: normalizer.FromBytes(img)})
	require.NoError(t, err)
	first.Data.Suggestions[0].CommonName = "mutated"
	first.Data.TopSuggestion.CommonName = "mutated"

	second, err := h.svc.Identify(t.Context(), Request{Image: normalizer.FromBytes(img)})
	require.NoError(t, err)
	assert.Equal(t, "Swiss cheese plant", second.Data.Suggestions[0].CommonName)
	assert.Equal(t, "Swiss cheese plant", second.Data.TopSuggestion.CommonName)
}

func TestIdentifyInvalidImage(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	resp, err := h.svc.Identify(t.Context(), Request{Image: normalizer.FromBytes([]byte("definitely not an image"))})
	require.Error(t, err)
	assert.Nil(t, resp)
	assert.True(t, normalizer.IsInputError(err))
	assert.Equal(t, MsgInvalidImage, UserMessage(err))

	assert.Zero(t, h.classifier.Calls())
	assert.Zero(t, h.cache.Len())
	assert.Equal(t, []State{StateFailed}, h.Trail())
	assert.Equal(t, []string{metrics.OutcomeInvalidImage}, h.metrics.Outcomes())
}

func TestIdentifyUnsupportedInputIsInvalidImage(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input normalizer.Input
	}{
		{"svg bytes", normalizer.FromBytes([]byte(`<svg xmlns="http://www.w3.org/2000/svg"></svg>`))},
		{"garbage bytes", normalizer.FromBytes([]byte{0x00, 0x01, 0x02, 0x03})},
		{"not a reference", normalizer.FromString("not base64 !!")},
		{"malformed data uri", normalizer.FromString("data:image/png;base64")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			h := newHarness(t)

			_, err := h.svc.Identify(t.Context(), Request{Image: tt.input})
			var invalid *normalizer.InvalidImageError
			require.ErrorAs(t, err, &invalid)
			var unsupported *normalizer.UnsupportedFormatError
			assert.ErrorAs(t, err, &unsupported, "cause stays reachable")
			assert.Equal(t, MsgInvalidImage, UserMessage(err))

			err = h.svc.ClearCache(t.Context(), tt.input)
			require.ErrorAs(t, err, &invalid)
		})
	}
}

func TestIdentifyClassifierUnavailable(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.classifier.result = nil
	h.classifier.err = &classifier.ClassificationUnavailableError{Attempts: 3, Last: stderrors.New("503 service unavailable")}

	resp, err := h.svc.Identify(t.Context(), Request{Image: normalizer.FromBytes(photo(t, monsteraPhoto))})
	require.Error(t, err)
	assert.Nil(t, resp)
	assert.Equal(t, MsgUnavailable, UserMessage(err))
	assert.Zero(t, h.cache.Len(), "failures are never cached")
	assert.Zero(t, h.recorder.Count())
	assert.Equal(t, []string{metrics.OutcomeUnavailable}, h.metrics.Outcomes())

	trail := h.Trail()
	require.NotEmpty(t, trail)
	assert.Equal(t, StateFailed, trail[len(trail)-1])
}

func TestIdentifyCanceledBeforeRecording(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()
	h.classifier.onCall = cancel

	resp, err := h.svc.Identify(ctx, Request{Image: normalizer.FromBytes(photo(t, monsteraPhoto))})
	require.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, resp)
	assert.Equal(t, MsgCanceled, UserMessage(err))

	assert.Zero(t, h.recorder.Count())
	assert.Zero(t, h.cache.Len())
	assert.Empty(t, h.storage.keys)
	assert.Equal(t, []string{metrics.OutcomeCanceled}, h.metrics.Outcomes())
}

func TestIdentifyRecorderFailureKeepsResult(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.recorder.err = stderrors.New("database is locked")

	resp, err := h.svc.Identify(t.Context(), Request{Image: normalizer.FromBytes(photo(t, monsteraPhoto))})
	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.Empty(t, resp.Data.ScanID)
	assert.Equal(t, 1, h.cache.Len())
}

func TestIdentifyUploadFailureFallsBack(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.storage.err = stderrors.New("bucket unreachable")

	resp, err := h.svc.Identify(t.Context(), Request{Image: normalizer.FromBytes(photo(t, monsteraPhoto))})
	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.Nil(t, resp.Data.ImageURL, "byte uploads have no source URL to fall back to")
	assert.Equal(t, []string{metrics.ResultError}, h.metrics.uploads)
}

func TestRetryBypassesCache(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	img := photo(t, monsteraPhoto)

	_, err := h.svc.Identify(t.Context(), Request{Image: normalizer.FromBytes(img)})
	require.NoError(t, err)
	resp, err := h.svc.Retry(t.Context(), Request{Image: normalizer.FromBytes(img)})
	require.NoError(t, err)

	assert.True(t, resp.Success)
	assert.Equal(t, 2, h.classifier.Calls())
	assert.Equal(t, "scan-b", resp.Data.ScanID)

	cached, err := h.svc.Identify(t.Context(), Request{Image: normalizer.FromBytes(img)})
	require.NoError(t, err)
	assert.Equal(t, "scan-b", cached.Data.ScanID, "retry replaces the cached result")
	assert.Equal(t, 2, h.classifier.Calls())
}

func TestClearCache(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	img := photo(t, monsteraPhoto)

	_, err := h.svc.Identify(t.Context(), Request{Image: normalizer.FromBytes(img)})
	require.NoError(t, err)
	require.NoError(t, h.svc.ClearCache(t.Context(), normalizer.FromBytes(img)))
	assert.Zero(t, h.cache.Len())

	_, err = h.svc.Identify(t.Context(), Request{Image: normalizer.FromBytes(img)})
	require.NoError(t, err)
	assert.Equal(t, 2, h.classifier.Calls())

	err = h.svc.ClearCache(t.Context(), normalizer.FromBytes([]byte("nope")))
	assert.True(t, normalizer.IsInputError(err))
}

func TestNewRequiresCoreDependencies(t *testing.T) {
	t.Parallel()

	_, err := New(Dependencies{}, Config{}, quietLogger())
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryConfiguration))
}

func TestNewAppliesDefaults(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	svc, err := New(Dependencies{
		Normalizer: normalizer.New(normalizer.DefaultConfig(), nil, nil),
		Cache:      h.cache,
		Classifier: h.classifier,
		Enricher:   h.enricher,
	}, Config{}, nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultTTL, svc.cfg.TTL)
	assert.Equal(t, DefaultLowConfidenceTTL, svc.cfg.LowConfidenceTTL)
	assert.Equal(t, DefaultTopN, svc.cfg.TopN)
	assert.NotNil(t, svc.deps.Metrics)
}

// TestPipelineWithCatalogAndScanLog wires the real catalog, recorder and
// scan store on SQLite.
func TestPipelineWithCatalogAndScanLog(t *testing.T) {
	t.Parallel()

	store, err := datastore.OpenSQLite(filepath.Join(t.TempDir(), "plantid.db"), quietLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	repo, err := catalog.NewRepository(store.DB, quietLogger())
	require.NoError(t, err)
	entries, err := catalog.ParseSeed([]byte(`
species:
  - common_name: Monstera
    scientific_name: Monstera deliciosa
    category: aroid
    description: Climbing aroid.
    care_profile:
      light_requirement: partial_shade
      water_frequency_days: 7
      difficulty: easy
`), catalog.FormatYAML)
	require.NoError(t, err)
	report, err := repo.Import(t.Context(), entries)
	require.NoError(t, err)
	require.Equal(t, 1, report.Imported)

	cache := resultcache.NewMemoryStore(resultcache.MemoryConfig{}, quietLogger())
	t.Cleanup(func() { _ = cache.Close() })

	svc, err := New(Dependencies{
		Normalizer: normalizer.New(normalizer.DefaultConfig(), nil, quietLogger()),
		Cache:      cache,
		Classifier: &fakeClassifier{result: monsteraSuggestions()},
		Enricher:   catalog.NewEnricher(repo, catalog.EnricherConfig{}, nil, quietLogger()),
		Recorder:   recorder.New(store, time.Second, nil, quietLogger()),
		Scans:      store,
	}, Config{Threshold: 0.5}, quietLogger())
	require.NoError(t, err)

	resp, err := svc.Identify(t.Context(), Request{Image: normalizer.FromBytes(photo(t, monsteraPhoto))})
	require.NoError(t, err)
	require.True(t, resp.Success)
	top := resp.Data.TopSuggestion
	require.NotNil(t, top)
	assert.Equal(t, "Monstera", top.CommonName, "catalog common name wins")
	require.NotNil(t, top.SpeciesID)
	require.NotNil(t, top.Description)
	assert.Equal(t, "Climbing aroid.", *top.Description)
	assert.False(t, resp.Data.Suggestions[1].Enriched())
	require.NotEmpty(t, resp.Data.ScanID)

	scan, err := svc.GetScan(t.Context(), resp.Data.ScanID)
	require.NoError(t, err)
	assert.True(t, scan.Success)
	assert.Equal(t, resp.Data.ScanID, scan.Data.ScanID)
	assert.Equal(t, *top.SpeciesID, *scan.Data.TopSuggestion.SpeciesID)
	assert.Equal(t, 2, cache.Len(), "identify result and scan are both cached")

	_, err = svc.GetScan(t.Context(), "00000000-0000-0000-0000-000000000000")
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))
	assert.Equal(t, MsgNotFound, UserMessage(err))
}

func TestGetScanWithoutScanLog(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	_, err := h.svc.GetScan(t.Context(), "missing")
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))
}

func TestConcurrentIdentify(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	img := photo(t, monsteraPhoto)

	var wg sync.WaitGroup
	for range 8 {
		wg.Go(func() {
			resp, err := h.svc.Identify(t.Context(), Request{Image: normalizer.FromBytes(img)})
			assert.NoError(t, err)
			assert.True(t, resp.Success)
		})
	}
	wg.Wait()

	assert.GreaterOrEqual(t, h.classifier.Calls(), 1)
	assert.Equal(t, 1, h.cache.Len())
}

func TestStateTransitions(t *testing.T) {
	t.Parallel()

	tests := []struct {
		from, to State
		want     bool
	}{
		{StateNormalizing, StateCacheCheck, true},
		{StateCacheCheck, StateCacheHit, true},
		{StateCacheCheck, StateEnriching, false},
		{StateGating, StateRejected, true},
		{StateRejected, StateEnriching, false},
		{StateRecording, StateCacheStoring, true},
		{StateClassifying, StateFailed, true},
		{StateDone, StateFailed, false},
		{StateFailed, StateNormalizing, false},
	}
	for _, tt := range tests {
		t.Run(tt.from.String()+"->"+tt.to.String(), func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, tt.from.CanTransition(tt.to))
		})
	}

	assert.Equal(t, "unknown", State(99).String())
	assert.True(t, StateDone.Terminal())
	assert.False(t, StateGating.Terminal())
}

func TestUserMessage(t *testing.T) {
	t.Parallel()

	assert.Empty(t, UserMessage(nil))
	assert.Equal(t, MsgClientError, UserMessage(&classifier.ClientRequestError{StatusCode: 400, Message: "bad organ"}))
	assert.Equal(t, MsgCanceled, UserMessage(context.DeadlineExceeded))
	assert.Equal(t, MsgInternal, UserMessage(stderrors.New("boom")))
}

func TestOutcomeFor(t *testing.T) {
	t.Parallel()

	canceled, cancel := context.WithCancel(t.Context())
	cancel()

	assert.Equal(t, metrics.OutcomeCanceled, outcomeFor(canceled, &classifier.ClassificationUnavailableError{}))
	assert.Equal(t, metrics.OutcomeClientError, outcomeFor(t.Context(), &classifier.ClientRequestError{StatusCode: 413}))
	assert.Equal(t, metrics.OutcomeFailed, outcomeFor(t.Context(), stderrors.New("boom")))
}
