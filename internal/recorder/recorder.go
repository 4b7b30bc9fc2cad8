// Package recorder appends completed identifications to the scan log.
// Recording is best effort: a failed write never fails the identification.
package recorder

import (
	"context"
	"time"

	"github.com/tphakala/plantid/internal/datastore"
	"github.com/tphakala/plantid/internal/errors"
	"github.com/tphakala/plantid/internal/logger"
	"github.com/tphakala/plantid/internal/observability/metrics"
	"github.com/tphakala/plantid/internal/plant"
)

// DefaultTimeout bounds a single scan write.
const DefaultTimeout = 5 * time.Second

// ScanWriter persists scan records.
type ScanWriter interface {
	SaveScan(ctx context.Context, rec *datastore.ScanRecord) error
}

// Observer receives one call per Record, with a metrics.Result* value.
type Observer interface {
	RecordScanWrite(result string)
}

// Recorder writes scan records with a bounded timeout.
type Recorder struct {
	writer   ScanWriter
	timeout  time.Duration
	observer Observer
	log      logger.Logger
}

// New returns a recorder. A zero timeout uses DefaultTimeout; observer may be nil.
func New(writer ScanWriter, timeout time.Duration, observer Observer, log logger.Logger) *Recorder {
	if log == nil {
		log = logger.Global().Module("recorder")
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Recorder{writer: writer, timeout: timeout, observer: observer, log: log}
}

// Record stores one scan and returns its id. On failure it logs, returns ""
// and the error for diagnostics only; callers continue without a scan id.
// Nothing is written when ctx is already done.
func (r *Recorder) Record(ctx context.Context, result *plant.Result, fingerprint string, userID *string) (string, error) {
	if err := ctx.Err(); err != nil {
		r.observe(metrics.ResultSkipped)
		r.log.Debug("Skipping scan record, request canceled", logger.Error(err))
		return "", err
	}

	writeCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	rec := datastore.NewScanRecord(result, fingerprint, userID)
	start := time.Now()
	if err := r.writer.SaveScan(writeCtx, rec); err != nil {
		r.observe(metrics.ResultError)
		if writeCtx.Err() != nil && ctx.Err() == nil {
			err = errors.New(err).
				Component("recorder").
				Category(errors.CategoryTimeout).
				Timing("save_scan", time.Since(start)).
				Build()
		}
		r.log.Warn("Failed to persist scan record",
			logger.String("fingerprint", fingerprint),
			logger.Duration("elapsed", time.Since(start)),
			logger.Error(err))
		return "", err
	}

	r.observe(metrics.ResultSuccess)
	r.log.Debug("Scan recorded",
		logger.String("scan_id", rec.ID),
		logger.Bool("threshold_met", result.ThresholdMet),
		logger.Duration("elapsed", time.Since(start)))
	return rec.ID, nil
}

func (r *Recorder) observe(result string) {
	if r.observer != nil {
		r.observer.RecordScanWrite(result)
	}
}
