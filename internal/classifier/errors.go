package classifier

import (
	"fmt"

	"github.com/tphakala/plantid/internal/errors"
)

// ClientRequestError is a 4xx answer from the classifier. The request itself
// is wrong (bad key, bad image, quota) so it is never retried.
type ClientRequestError struct {
	StatusCode int
	Message    string
}

func (e *ClientRequestError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("classifier rejected request: status %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("classifier rejected request: status %d", e.StatusCode)
}

// ErrorCategory implements errors.CategorizedError.
func (e *ClientRequestError) ErrorCategory() errors.ErrorCategory {
	return errors.CategoryHTTP
}

// ClassificationUnavailableError means every attempt failed transiently.
type ClassificationUnavailableError struct {
	Attempts int
	Last     error
}

func (e *ClassificationUnavailableError) Error() string {
	return fmt.Sprintf("classification unavailable: failed after %d attempts: %v", e.Attempts, e.Last)
}

func (e *ClassificationUnavailableError) Unwrap() error { return e.Last }

// ErrorCategory implements errors.CategorizedError.
func (e *ClassificationUnavailableError) ErrorCategory() errors.ErrorCategory {
	return errors.CategoryClassification
}

// upstreamStatusError is a retryable 5xx answer.
type upstreamStatusError struct {
	StatusCode int
}

func (e *upstreamStatusError) Error() string {
	return fmt.Sprintf("classifier returned status %d", e.StatusCode)
}

// decodeError is a 2xx body we could not map. Treated like an upstream fault.
type decodeError struct {
	Reason string
	Err    error
}

func (e *decodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("decode classifier response: %s: %v", e.Reason, e.Err)
	}
	return "decode classifier response: " + e.Reason
}

func (e *decodeError) Unwrap() error { return e.Err }
