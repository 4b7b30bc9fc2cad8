// Package metrics defines the Prometheus collectors for plantid.
package metrics

// Identification outcomes.
const (
	OutcomeAccepted     = "accepted"
	OutcomeRejected     = "rejected"
	OutcomeCacheHit     = "cache_hit"
	OutcomeInvalidImage = "invalid_image"
	OutcomeUnavailable  = "unavailable"
	OutcomeClientError  = "client_error"
	OutcomeCanceled     = "canceled"
	OutcomeFailed       = "failed"
)

// Generic write results.
const (
	ResultSuccess = "success"
	ResultError   = "error"
	ResultSkipped = "skipped"
)

// Pipeline stages timed by StageDuration.
const (
	StageNormalize = "normalize"
	StageCache     = "cache"
	StageClassify  = "classify"
	StageEnrich    = "enrich"
	StageUpload    = "upload"
	StageRecord    = "record"
)

// Histogram bucket parameters.
const (
	BucketStart1ms  = 0.001
	BucketStart10ms = 0.01
	BucketFactor2   = 2
	BucketCount12   = 12
	BucketCount15   = 15
)
