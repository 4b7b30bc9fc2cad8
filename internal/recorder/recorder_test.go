package recorder

import (
	"bytes"
	"context"
	stderrors "errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/plantid/internal/datastore"
	"github.com/tphakala/plantid/internal/errors"
	"github.com/tphakala/plantid/internal/logger"
	"github.com/tphakala/plantid/internal/observability/metrics"
	"github.com/tphakala/plantid/internal/plant"
)

func quietLogger() logger.Logger {
	return logger.NewSlogLogger(&bytes.Buffer{}, logger.LogLevelError, nil)
}

type resultsObserver struct {
	mu      sync.Mutex
	results []string
}

func (o *resultsObserver) RecordScanWrite(result string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.results = append(o.results, result)
}

type fakeWriter struct {
	mu    sync.Mutex
	saved []*datastore.ScanRecord
	err   error
	block bool
}

func (w *fakeWriter) SaveScan(ctx context.Context, rec *datastore.ScanRecord) error {
	if w.block {
		<-ctx.Done()
		return ctx.Err()
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.saved = append(w.saved, rec)
	return nil
}

func sampleResult() *plant.Result {
	top := plant.Suggestion{CommonName: "Swiss cheese plant", ScientificName: "Monstera deliciosa", Score: 0.92}
	return &plant.Result{TopSuggestion: &top, Suggestions: []plant.Suggestion{top}, ThresholdMet: true, Confidence: 0.92}
}

func TestRecordPersists(t *testing.T) {
	t.Parallel()

	store, err := datastore.OpenSQLite(filepath.Join(t.TempDir(), "scans.db"), quietLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	observer := &resultsObserver{}
	r := New(store, time.Second, observer, quietLogger())

	user := "u1"
	id, err := r.Record(t.Context(), sampleResult(), "fp-1", &user)
	require.NoError(t, err)
	require.NotEmpty(t, id)

	rec, err := store.GetScan(t.Context(), id)
	require.NoError(t, err)
	assert.Equal(t, "fp-1", rec.Fingerprint)
	assert.Equal(t, []string{metrics.ResultSuccess}, observer.results)
}

func TestRecordSwallowsFailure(t *testing.T) {
	t.Parallel()

	observer := &resultsObserver{}
	r := New(&fakeWriter{err: stderrors.New("disk full")}, time.Second, observer, quietLogger())

	id, err := r.Record(t.Context(), sampleResult(), "fp", nil)
	assert.Empty(t, id)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.Equal(t, []string{metrics.ResultError}, observer.results)
}

func TestRecordTimesOut(t *testing.T) {
	t.Parallel()

	r := New(&fakeWriter{block: true}, 30*time.Millisecond, nil, quietLogger())

	start := time.Now()
	id, err := r.Record(t.Context(), sampleResult(), "fp", nil)
	assert.Empty(t, id)
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryTimeout))
	assert.Less(t, time.Since(start), time.Second)
}

func TestRecordSkipsCanceledContext(t *testing.T) {
	t.Parallel()

	writer := &fakeWriter{}
	observer := &resultsObserver{}
	r := New(writer, time.Second, observer, quietLogger())

	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	id, err := r.Record(ctx, sampleResult(), "fp", nil)
	assert.Empty(t, id)
	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, writer.saved)
	assert.Equal(t, []string{metrics.ResultSkipped}, observer.results)
}

func TestNewDefaultsTimeout(t *testing.T) {
	t.Parallel()

	r := New(&fakeWriter{}, 0, nil, nil)
	assert.Equal(t, DefaultTimeout, r.timeout)
}
