package errors

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"
)

func TestBuildDefaults(t *testing.T) {
	t.Parallel()

	ee := New(fmt.Errorf("test error")).Build()

	if ee.Err.Error() != "test error" {
		t.Errorf("Expected error message 'test error', got '%s'", ee.Err.Error())
	}
	if ee.GetComponent() != ComponentUnknown {
		t.Errorf("Expected component 'unknown', got '%s'", ee.GetComponent())
	}
	if ee.Category != CategoryGeneric {
		t.Errorf("Expected category 'generic', got '%s'", ee.Category)
	}
	if ee.Timestamp.IsZero() {
		t.Error("Expected timestamp to be set")
	}
}

func TestBuilderChain(t *testing.T) {
	t.Parallel()

	ee := Newf("classifier returned %d", 503).
		Component("classifier").
		Category(CategoryClassification).
		Priority(PriorityHigh).
		Context("status_code", 503).
		Timing("classify", 1500*time.Millisecond).
		Build()

	if ee.GetComponent() != "classifier" {
		t.Errorf("Expected component 'classifier', got '%s'", ee.GetComponent())
	}
	if ee.Category != CategoryClassification {
		t.Errorf("Expected category %q, got %q", CategoryClassification, ee.Category)
	}
	if ee.GetPriority() != PriorityHigh {
		t.Errorf("Expected priority high, got %q", ee.GetPriority())
	}
	ctx := ee.GetContext()
	if ctx["status_code"] != 503 {
		t.Errorf("Expected status_code 503 in context, got %v", ctx["status_code"])
	}
	if ctx["duration_ms"] != int64(1500) {
		t.Errorf("Expected duration_ms 1500, got %v", ctx["duration_ms"])
	}
	if ctx["operation"] != "classify" {
		t.Errorf("Expected operation 'classify', got %v", ctx["operation"])
	}
}

func TestInvalidPriorityFallsBackToMedium(t *testing.T) {
	t.Parallel()

	ee := NewStd("x")
	built := New(ee).Priority("urgent").Build()
	if built.GetPriority() != PriorityMedium {
		t.Errorf("Expected medium priority fallback, got %q", built.GetPriority())
	}
}

func TestDetectCategory(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want ErrorCategory
	}{
		{"cancelled", context.Canceled, CategoryCancellation},
		{"deadline", context.DeadlineExceeded, CategoryTimeout},
		{"connection", fmt.Errorf("dial tcp: connection refused"), CategoryNetwork},
		{"invalid", fmt.Errorf("invalid image header"), CategoryValidation},
		{"nested enhanced", fmt.Errorf("wrap: %w", New(NewStd("x")).Category(CategoryDatabase).Build()), CategoryDatabase},
		{"generic", fmt.Errorf("something odd"), CategoryGeneric},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := New(tt.err).Build().Category; got != tt.want {
				t.Errorf("Expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestIsCategory(t *testing.T) {
	t.Parallel()

	base := New(NewStd("species missing")).Category(CategoryNotFound).Build()
	wrapped := fmt.Errorf("lookup: %w", base)

	if !IsNotFound(wrapped) {
		t.Error("Expected wrapped error to be not-found")
	}
	if IsCategory(wrapped, CategoryDatabase) {
		t.Error("Did not expect database category")
	}
	if !Is(wrapped, &EnhancedError{Category: CategoryNotFound}) {
		t.Error("Expected Is to match on category")
	}
}

func TestScrubMessageForPrivacy(t *testing.T) {
	t.Parallel()

	scrubbed := scrubMessageForPrivacy("Error at https://my-api.plantnet.org/v2/identify?api-key=secret123&lang=en")
	expected := "Error at https://my-api.plantnet.org/v2/identify?[REDACTED]"
	if scrubbed != expected {
		t.Errorf("URL scrubbing failed. Expected: %s, got: %s", expected, scrubbed)
	}

	scrubbed = scrubMessageForPrivacy("Config error: api_key=secret123 is invalid")
	if !strings.Contains(scrubbed, "[API_KEY_REDACTED]") {
		t.Errorf("Expected API key redaction, got: %s", scrubbed)
	}

	scrubbed = scrubMessageForPrivacy("bad payload data:image/jpeg;base64,/9j/4AAQSkZJRg== from user_id=u1")
	if strings.Contains(scrubbed, "/9j/4AAQ") || strings.Contains(scrubbed, "u1") {
		t.Errorf("Sensitive data still present: %s", scrubbed)
	}
}

type countingReporter struct {
	count int
}

func (r *countingReporter) ReportError(ee *EnhancedError) {
	r.count++
	ee.MarkReported()
}

func (r *countingReporter) IsEnabled() bool { return true }

// Not parallel: swaps the package-level reporter.
func TestBuildReportsWhenReporterActive(t *testing.T) {
	reporter := &countingReporter{}
	SetTelemetryReporter(reporter)
	t.Cleanup(func() { SetTelemetryReporter(nil) })

	ee := Newf("upload failed").Category(CategoryStorage).Build()

	if reporter.count != 1 {
		t.Errorf("Expected 1 report, got %d", reporter.count)
	}
	if !ee.IsReported() {
		t.Error("Expected error to be marked as reported")
	}
}

func TestGenerateErrorTitle(t *testing.T) {
	t.Parallel()

	ee := Newf("boom").
		Component("classifier").
		Category(CategoryClassification).
		Context("operation", "plant_identification").
		Build()

	if got := generateErrorTitle(ee); got != "Classifier Classification Error Plant Identification" {
		t.Errorf("Unexpected title: %q", got)
	}
}
