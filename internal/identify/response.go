package identify

import (
	"context"

	"github.com/tphakala/plantid/internal/classifier"
	"github.com/tphakala/plantid/internal/errors"
	"github.com/tphakala/plantid/internal/normalizer"
	"github.com/tphakala/plantid/internal/observability/metrics"
	"github.com/tphakala/plantid/internal/plant"
)

// User-facing messages. Each failure class gets its own wording.
const (
	MsgInvalidImage  = "could not process your photo"
	MsgUnavailable   = "identification service unavailable, try again"
	MsgLowConfidence = "low confidence, retake or search manually"
	MsgClientError   = "identification request was rejected"
	MsgCanceled      = "identification canceled"
	MsgNotFound      = "scan not found"
	MsgInternal      = "identification failed"
)

// Response is the outcome of an identification. A low confidence result
// has Success false with Data set and is not an error.
type Response struct {
	Success bool          `json:"success"`
	Data    *plant.Result `json:"data,omitempty"`
	Error   string        `json:"error,omitempty"`
	Message string        `json:"message,omitempty"`
}

func responseFor(result *plant.Result) *Response {
	if result.ThresholdMet {
		return &Response{Success: true, Data: result}
	}
	return &Response{Success: false, Data: result, Error: MsgLowConfidence}
}

// UserMessage maps a pipeline error to the message shown to users.
func UserMessage(err error) string {
	var (
		unavailable *classifier.ClassificationUnavailableError
		clientErr   *classifier.ClientRequestError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &unavailable):
		return MsgUnavailable
	case errors.As(err, &clientErr):
		return MsgClientError
	case normalizer.IsInputError(err):
		return MsgInvalidImage
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return MsgCanceled
	case errors.IsNotFound(err):
		return MsgNotFound
	default:
		return MsgInternal
	}
}

// outcomeFor maps a failed run to its metrics outcome label. A done ctx
// wins over whatever error the interrupted stage returned.
func outcomeFor(ctx context.Context, err error) string {
	var (
		unavailable *classifier.ClassificationUnavailableError
		clientErr   *classifier.ClientRequestError
	)
	switch {
	case ctx.Err() != nil:
		return metrics.OutcomeCanceled
	case errors.As(err, &unavailable):
		return metrics.OutcomeUnavailable
	case errors.As(err, &clientErr):
		return metrics.OutcomeClientError
	case normalizer.IsInputError(err):
		return metrics.OutcomeInvalidImage
	default:
		return metrics.OutcomeFailed
	}
}
