package httpserver

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	api "github.com/tphakala/plantid/internal/api/v2"
	"github.com/tphakala/plantid/internal/conf"
	"github.com/tphakala/plantid/internal/errors"
	"github.com/tphakala/plantid/internal/identify"
	"github.com/tphakala/plantid/internal/normalizer"
	"github.com/tphakala/plantid/internal/testutil"
)

type stubIdentifier struct{}

func (stubIdentifier) Identify(context.Context, identify.Request) (*identify.Response, error) {
	return &identify.Response{}, nil
}

func (stubIdentifier) Retry(context.Context, identify.Request) (*identify.Response, error) {
	return &identify.Response{}, nil
}

func (stubIdentifier) ClearCache(context.Context, normalizer.Input) error { return nil }

func (stubIdentifier) GetScan(context.Context, string) (*identify.Response, error) {
	return nil, errors.Newf("scan not found").Category(errors.CategoryNotFound).Build()
}

func testSettings() *conf.Settings {
	s := &conf.Settings{}
	s.WebServer.Listen = "127.0.0.1:0"
	s.WebServer.ReadTimeout = 5 * time.Second
	s.WebServer.WriteTimeout = 5 * time.Second
	return s
}

func TestNewRegistersAPIRoutes(t *testing.T) {
	t.Parallel()

	srv, err := New(testSettings(), stubIdentifier{}, api.WithVersion("1.2.3"))
	require.NoError(t, err)
	require.NotNil(t, srv.APIController())

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v2/health", http.NoBody))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"version":"1.2.3"`)

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v2/scans/missing", http.NoBody))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestNewRequiresIdentifier(t *testing.T) {
	t.Parallel()

	_, err := New(testSettings(), nil)
	require.Error(t, err)
}

func TestServeStopsOnContextCancel(t *testing.T) {
	t.Parallel()

	srv, err := New(testSettings(), stubIdentifier{})
	require.NoError(t, err)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, ln) }()

	client := &http.Client{Timeout: 2 * time.Second}
	t.Cleanup(client.CloseIdleConnections)

	url := "http://" + ln.Addr().String() + "/api/v2/health"
	require.Eventually(t, func() bool {
		resp, err := client.Get(url)
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)

	cancel()
	require.NoError(t, testutil.Receive(t, done, testutil.DefaultTestTimeout, "server did not stop after context cancel"))
}

func TestStartRejectsBadAddress(t *testing.T) {
	t.Parallel()

	s := testSettings()
	s.WebServer.Listen = "256.0.0.1:99999"
	srv, err := New(s, stubIdentifier{})
	require.NoError(t, err)

	err = srv.Start(t.Context())
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryNetwork))
}
