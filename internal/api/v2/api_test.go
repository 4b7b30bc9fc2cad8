package api

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	stderrors "errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	units "github.com/labstack/gommon/bytes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/tphakala/plantid/internal/catalog"
	"github.com/tphakala/plantid/internal/classifier"
	"github.com/tphakala/plantid/internal/conf"
	"github.com/tphakala/plantid/internal/errors"
	"github.com/tphakala/plantid/internal/identify"
	"github.com/tphakala/plantid/internal/logger"
	"github.com/tphakala/plantid/internal/normalizer"
	"github.com/tphakala/plantid/internal/observability"
	"github.com/tphakala/plantid/internal/plant"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type MockIdentifyService struct {
	mock.Mock
}

func (m *MockIdentifyService) Identify(ctx context.Context, req identify.Request) (*identify.Response, error) {
	args := m.Called(ctx, req)
	resp, _ := args.Get(0).(*identify.Response)
	return resp, args.Error(1)
}

func (m *MockIdentifyService) Retry(ctx context.Context, req identify.Request) (*identify.Response, error) {
	args := m.Called(ctx, req)
	resp, _ := args.Get(0).(*identify.Response)
	return resp, args.Error(1)
}

func (m *MockIdentifyService) ClearCache(ctx context.Context, in normalizer.Input) error {
	return m.Called(ctx, in).Error(0)
}

func (m *MockIdentifyService) GetScan(ctx context.Context, scanID string) (*identify.Response, error) {
	args := m.Called(ctx, scanID)
	resp, _ := args.Get(0).(*identify.Response)
	return resp, args.Error(1)
}

type MockSpeciesSearcher struct {
	mock.Mock
}

func (m *MockSpeciesSearcher) Search(ctx context.Context, query string, limit, offset int) ([]catalog.Species, int64, error) {
	args := m.Called(ctx, query, limit, offset)
	results, _ := args.Get(0).([]catalog.Species)
	return results, args.Get(1).(int64), args.Error(2)
}

type stubPinger struct{ err error }

func (p stubPinger) Ping(context.Context) error { return p.err }

func quietLogger() logger.Logger {
	return logger.NewSlogLogger(&bytes.Buffer{}, logger.LogLevelError, nil)
}

func setupTestEnvironment(t *testing.T, opts ...Option) (*echo.Echo, *MockIdentifyService, *MockSpeciesSearcher) {
	t.Helper()

	e := echo.New()
	svc := new(MockIdentifyService)
	species := new(MockSpeciesSearcher)

	settings := &conf.Settings{WebServer: conf.WebServerSettings{BodyLimit: "1M"}}
	opts = append([]Option{WithSpecies(species), WithLogger(quietLogger()), WithVersion("1.0.0-test")}, opts...)
	_, err := New(e, settings, svc, opts...)
	require.NoError(t, err)
	return e, svc, species
}

func serve(e *echo.Echo, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func jsonRequest(method, path, body string) *http.Request {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	return req
}

func acceptedResponse() *identify.Response {
	top := plant.Suggestion{
		SpeciesID:      plant.StringPtr("sp-1"),
		CommonName:     "Swiss cheese plant",
		ScientificName: "Monstera deliciosa",
		Score:          0.92,
	}
	return &identify.Response{Success: true, Data: &plant.Result{
		ScanID:        "scan-1",
		TopSuggestion: &top,
		Suggestions:   []plant.Suggestion{top},
		ThresholdMet:  true,
		Confidence:    0.92,
	}}
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestHealthCheck(t *testing.T) {
	t.Parallel()

	e, _, _ := setupTestEnvironment(t, WithDatabase(stubPinger{}))
	rec := serve(e, httptest.NewRequest(http.MethodGet, "/api/v2/health", http.NoBody))

	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[map[string]any](t, rec)
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "connected", body["database_status"])
	assert.Equal(t, "1.0.0-test", body["version"])
	assert.NotEmpty(t, rec.Header().Get(echo.HeaderXRequestID))
}

func TestHealthCheckDatabaseDown(t *testing.T) {
	t.Parallel()

	e, _, _ := setupTestEnvironment(t, WithDatabase(stubPinger{err: stderrors.New("connection refused")}))
	rec := serve(e, httptest.NewRequest(http.MethodGet, "/api/v2/health", http.NoBody))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	body := decode[map[string]any](t, rec)
	assert.Equal(t, "degraded", body["status"])
}

func TestIdentifyAccepted(t *testing.T) {
	t.Parallel()

	e, svc, _ := setupTestEnvironment(t)
	svc.On("Identify", mock.Anything, mock.MatchedBy(func(req identify.Request) bool {
		return req.Image.Ref == "https://example.com/monstera.jpg" &&
			req.UserID != nil && *req.UserID == "user-1" &&
			req.Organ == "leaf"
	})).Return(acceptedResponse(), nil).Once()

	rec := serve(e, jsonRequest(http.MethodPost, "/api/v2/identify",
		`{"image":" https://example.com/monstera.jpg ","user_id":"user-1","organ":"leaf"}`))

	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[map[string]any](t, rec)
	assert.Equal(t, true, body["success"])
	data := body["data"].(map[string]any)
	assert.Equal(t, "scan-1", data["scan_id"])
	assert.Equal(t, true, data["threshold_met"])
	assert.Contains(t, data, "all_suggestions")
	top := data["top_suggestion"].(map[string]any)
	assert.Equal(t, "Monstera deliciosa", top["scientific_name"])
	svc.AssertExpectations(t)
}

func TestIdentifyLowConfidence(t *testing.T) {
	t.Parallel()

	e, svc, _ := setupTestEnvironment(t)
	svc.On("Identify", mock.Anything, mock.Anything).Return(&identify.Response{
		Success: false,
		Data:    &plant.Result{Suggestions: []plant.Suggestion{{ScientificName: "Ficus lyrata", Score: 0.21}}, Confidence: 0.21},
		Error:   identify.MsgLowConfidence,
	}, nil).Once()

	rec := serve(e, jsonRequest(http.MethodPost, "/api/v2/identify", `{"image":"aGVsbG8="}`))

	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[identify.Response](t, rec)
	assert.False(t, body.Success)
	assert.Equal(t, identify.MsgLowConfidence, body.Error)
	assert.NotEmpty(t, body.Message)
	require.NotNil(t, body.Data)
	assert.False(t, body.Data.ThresholdMet)
}

func TestIdentifyErrorMapping(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		err     error
		status  int
		message string
	}{
		{"invalid image", &normalizer.InvalidImageError{Reason: "decode failed"}, http.StatusBadRequest, identify.MsgInvalidImage},
		{"fetch failure", &normalizer.FetchError{URL: "https://example.com/x.jpg", StatusCode: 404}, http.StatusBadRequest, identify.MsgInvalidImage},
		{"classifier rejected", &classifier.ClientRequestError{StatusCode: 401}, http.StatusBadGateway, identify.MsgClientError},
		{"classifier unavailable", &classifier.ClassificationUnavailableError{Attempts: 3, Last: stderrors.New("503")}, http.StatusServiceUnavailable, identify.MsgUnavailable},
		{"unexpected", stderrors.New("boom"), http.StatusInternalServerError, identify.MsgInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			e, svc, _ := setupTestEnvironment(t)
			svc.On("Identify", mock.Anything, mock.Anything).Return(nil, tt.err).Once()

			rec := serve(e, jsonRequest(http.MethodPost, "/api/v2/identify", `{"image":"aGVsbG8="}`))

			require.Equal(t, tt.status, rec.Code)
			body := decode[ErrorResponse](t, rec)
			assert.False(t, body.Success)
			assert.Equal(t, tt.message, body.Error)
			assert.Equal(t, tt.status, body.Code)
			assert.Len(t, body.CorrelationID, 8)
			assert.NotContains(t, rec.Body.String(), "boom", "internal error text is not exposed")
		})
	}
}

func TestIdentifyRejectsMissingImage(t *testing.T) {
	t.Parallel()

	e, svc, _ := setupTestEnvironment(t)

	for _, body := range []string{`{}`, `{"image":"   "}`, `not json`} {
		rec := serve(e, jsonRequest(http.MethodPost, "/api/v2/identify", body))
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
	}
	svc.AssertNotCalled(t, "Identify", mock.Anything, mock.Anything)
}

func TestIdentifyMultipartUpload(t *testing.T) {
	t.Parallel()

	e, svc, _ := setupTestEnvironment(t)
	payload := []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x10}
	svc.On("Identify", mock.Anything, mock.MatchedBy(func(req identify.Request) bool {
		return bytes.Equal(req.Image.Bytes, payload) && req.UserID == nil && req.Organ == "flower"
	})).Return(acceptedResponse(), nil).Once()

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("image", "photo.jpg")
	require.NoError(t, err)
	_, err = part.Write(payload)
	require.NoError(t, err)
	require.NoError(t, w.WriteField("organ", "flower"))
	require.NoError(t, w.WriteField("user_id", " "))
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v2/identify", &buf)
	req.Header.Set(echo.HeaderContentType, w.FormDataContentType())
	rec := serve(e, req)

	require.Equal(t, http.StatusOK, rec.Code)
	svc.AssertExpectations(t)
}

func TestIdentifyBodyLimit(t *testing.T) {
	t.Parallel()

	e, svc, _ := setupTestEnvironment(t)
	big := `{"image":"` + strings.Repeat("A", 2<<20) + `"}`

	rec := serve(e, jsonRequest(http.MethodPost, "/api/v2/identify", big))
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	svc.AssertNotCalled(t, "Identify", mock.Anything, mock.Anything)
}

func TestDefaultBodyLimitFitsLargestDataURI(t *testing.T) {
	t.Parallel()

	limit, err := units.Parse(DefaultBodyLimit)
	require.NoError(t, err)

	envelope := `{"image":"data:image/jpeg;base64,"}`
	largest := int64(base64.StdEncoding.EncodedLen(normalizer.DefaultMaxInputBytes) + len(envelope))
	assert.Greater(t, limit, largest)
}

func TestRetryIdentify(t *testing.T) {
	t.Parallel()

	e, svc, _ := setupTestEnvironment(t)
	svc.On("Retry", mock.Anything, mock.Anything).Return(acceptedResponse(), nil).Once()

	rec := serve(e, jsonRequest(http.MethodPost, "/api/v2/identify/retry", `{"image":"aGVsbG8="}`))

	assert.Equal(t, http.StatusOK, rec.Code)
	svc.AssertExpectations(t)
	svc.AssertNotCalled(t, "Identify", mock.Anything, mock.Anything)
}

func TestClearCache(t *testing.T) {
	t.Parallel()

	e, svc, _ := setupTestEnvironment(t)
	svc.On("ClearCache", mock.Anything, normalizer.FromString("aGVsbG8=")).Return(nil).Once()

	rec := serve(e, jsonRequest(http.MethodDelete, "/api/v2/identify/cache", `{"image":"aGVsbG8="}`))

	assert.Equal(t, http.StatusNoContent, rec.Code)
	svc.AssertExpectations(t)
}

func TestGetScan(t *testing.T) {
	t.Parallel()

	e, svc, _ := setupTestEnvironment(t)
	svc.On("GetScan", mock.Anything, "scan-1").Return(acceptedResponse(), nil).Once()
	svc.On("GetScan", mock.Anything, "missing").Return(nil, errors.Newf("scan missing not found").
		Component("identify").
		Category(errors.CategoryNotFound).
		Build()).Once()

	rec := serve(e, httptest.NewRequest(http.MethodGet, "/api/v2/scans/scan-1", http.NoBody))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "scan-1", decode[identify.Response](t, rec).Data.ScanID)

	rec = serve(e, httptest.NewRequest(http.MethodGet, "/api/v2/scans/missing", http.NoBody))
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, identify.MsgNotFound, decode[ErrorResponse](t, rec).Error)
}

func TestSearchSpecies(t *testing.T) {
	t.Parallel()

	e, _, species := setupTestEnvironment(t)
	species.On("Search", mock.Anything, "fig", catalog.MaxSearchLimit, 10).Return([]catalog.Species{
		{ID: "sp-1", CommonName: "Fiddle-leaf fig", ScientificName: "Ficus lyrata"},
	}, int64(11), nil).Once()
	species.On("Search", mock.Anything, "", catalog.DefaultSearchLimit, 0).Return(nil, int64(0), nil).Once()

	rec := serve(e, httptest.NewRequest(http.MethodGet, "/api/v2/species/search?q=fig&limit=500&offset=10", http.NoBody))
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[SpeciesSearchResponse](t, rec)
	assert.Equal(t, int64(11), body.Total)
	assert.Equal(t, catalog.MaxSearchLimit, body.Limit)
	require.Len(t, body.Species, 1)
	assert.Equal(t, "Ficus lyrata", body.Species[0].ScientificName)

	rec = serve(e, httptest.NewRequest(http.MethodGet, "/api/v2/species/search", http.NoBody))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"species":[],"total":0,"limit":20,"offset":0}`, rec.Body.String())

	species.AssertExpectations(t)
}

func TestSearchSpeciesValidatesPaging(t *testing.T) {
	t.Parallel()

	e, _, species := setupTestEnvironment(t)
	for _, q := range []string{"limit=0", "limit=abc", "offset=-1"} {
		rec := serve(e, httptest.NewRequest(http.MethodGet, "/api/v2/species/search?"+q, http.NoBody))
		assert.Equal(t, http.StatusBadRequest, rec.Code, q)
	}
	species.AssertNotCalled(t, "Search", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()

	m, err := observability.NewMetrics()
	require.NoError(t, err)
	e, svc, _ := setupTestEnvironment(t, WithMetrics(m.HTTP, m.Handler()))
	svc.On("GetScan", mock.Anything, "scan-1").Return(acceptedResponse(), nil)

	serve(e, httptest.NewRequest(http.MethodGet, "/api/v2/scans/scan-1", http.NoBody))
	rec := serve(e, httptest.NewRequest(http.MethodGet, "/metrics", http.NoBody))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `plantid_http_requests_total{method="GET",path="/api/v2/scans/:id",status_code="200"} 1`)
}

func TestNewRequiresIdentifier(t *testing.T) {
	t.Parallel()

	_, err := New(echo.New(), nil, nil)
	require.Error(t, err)
}
