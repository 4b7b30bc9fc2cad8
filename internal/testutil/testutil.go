// Package testutil holds helpers shared by package tests.
package testutil

import (
	"bytes"
	"testing"
	"time"

	"github.com/tphakala/plantid/internal/logger"
)

// Common test timeouts.
const (
	DefaultTestTimeout = 5 * time.Second
	ShortTestTimeout   = time.Second
)

// QuietLogger returns a logger that drops everything below error level.
func QuietLogger() logger.Logger {
	return logger.NewSlogLogger(&bytes.Buffer{}, logger.LogLevelError, nil)
}

// Receive returns the next value from ch or fails the test after timeout.
func Receive[T any](t *testing.T, ch <-chan T, timeout time.Duration, msg string) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(timeout):
		t.Fatal(msg)
	}
	var zero T
	return zero
}
