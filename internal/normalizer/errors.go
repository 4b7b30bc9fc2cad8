package normalizer

import (
	"fmt"

	"github.com/tphakala/plantid/internal/errors"
)

// InvalidImageError means the input could not be decoded or violates a limit.
type InvalidImageError struct {
	Reason string
	Err    error
}

func (e *InvalidImageError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid image: %s: %v", e.Reason, e.Err)
	}
	return "invalid image: " + e.Reason
}

func (e *InvalidImageError) Unwrap() error { return e.Err }

// ErrorCategory implements errors.CategorizedError.
func (e *InvalidImageError) ErrorCategory() errors.ErrorCategory {
	return errors.CategoryImageDecode
}

// UnsupportedFormatError means the input is not an image format we accept,
// or not an image reference at all.
type UnsupportedFormatError struct {
	Format Format
	Detail string
}

func (e *UnsupportedFormatError) Error() string {
	if e.Format != FormatUnknown {
		return fmt.Sprintf("unsupported image format %q", string(e.Format))
	}
	if e.Detail != "" {
		return "unsupported image input: " + e.Detail
	}
	return "unsupported image input"
}

// ErrorCategory implements errors.CategorizedError.
func (e *UnsupportedFormatError) ErrorCategory() errors.ErrorCategory {
	return errors.CategoryValidation
}

// FetchError means a remote image URL could not be retrieved.
type FetchError struct {
	URL        string
	StatusCode int // zero for transport failures
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch image: unexpected status %d", e.StatusCode)
	}
	return fmt.Sprintf("fetch image: %v", e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// ErrorCategory implements errors.CategorizedError.
func (e *FetchError) ErrorCategory() errors.ErrorCategory {
	return errors.CategoryImageFetch
}

// IsInputError reports whether err was caused by the caller's image, as
// opposed to a failure further down the pipeline.
func IsInputError(err error) bool {
	var invalid *InvalidImageError
	var unsupported *UnsupportedFormatError
	var fetch *FetchError
	return errors.As(err, &invalid) || errors.As(err, &unsupported) || errors.As(err, &fetch)
}

// AsInvalidImage reports a normalization failure in caller terms: fetch
// failures pass through and everything else becomes an *InvalidImageError.
// The original error stays reachable through Unwrap.
func AsInvalidImage(err error) error {
	var invalid *InvalidImageError
	var fetch *FetchError
	if err == nil || errors.As(err, &invalid) || errors.As(err, &fetch) {
		return err
	}
	return &InvalidImageError{Reason: "unsupported input", Err: err}
}
