package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/pagelift/pagelift/internal/extract"
	"github.com/pagelift/pagelift/internal/metrics"
)

func TestServer_Healthz(t *testing.T) {
	t.Parallel()
	metrics.Init()

	server := NewServer(&fakeStatusProvider{}, zap.NewNop())

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"ok"`)
	require.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestServer_Readyz(t *testing.T) {
	t.Parallel()
	metrics.Init()

	server := NewServer(&fakeStatusProvider{}, zap.NewNop())

	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"ready"`)
}

func TestServer_Metrics(t *testing.T) {
	t.Parallel()
	metrics.Init()

	server := NewServer(&fakeStatusProvider{}, zap.NewNop())

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestServer_GetRun_NoRunYet(t *testing.T) {
	t.Parallel()
	metrics.Init()

	server := NewServer(&fakeStatusProvider{}, zap.NewNop())

	req := httptest.NewRequest(http.MethodGet, "/v1/run", nil)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Contains(t, rec.Body.String(), "no run started")
}

func TestServer_GetRun_ActiveRun(t *testing.T) {
	t.Parallel()
	metrics.Init()

	provider := &fakeStatusProvider{}
	provider.set(extract.RunStatus{
		RunID:           "0196a2b3-7c4d-7e5f-8a9b-0c1d2e3f4a5b",
		Document:        "roll-042.pdf",
		State:           extract.RunStateExtracting,
		TotalChunks:     5,
		CompletedChunks: 3,
		SucceededChunks: 2,
		FailedChunks:    1,
		TotalRecords:    87,
		StartedAt:       time.Date(2025, 4, 12, 9, 30, 0, 0, time.UTC),
	})
	server := NewServer(provider, zap.NewNop())

	req := httptest.NewRequest(http.MethodGet, "/v1/run", nil)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var got extract.RunStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Equal(t, "roll-042.pdf", got.Document)
	require.Equal(t, extract.RunStateExtracting, got.State)
	require.Equal(t, 5, got.TotalChunks)
	require.Equal(t, 3, got.CompletedChunks)
	require.Equal(t, 2, got.SucceededChunks)
	require.Equal(t, 1, got.FailedChunks)
	require.Equal(t, 87, got.TotalRecords)
}

func TestServer_NilProviderNotReady(t *testing.T) {
	t.Parallel()
	metrics.Init()

	server := NewServer(nil, zap.NewNop())

	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestServer_RecoverMiddleware(t *testing.T) {
	t.Parallel()
	metrics.Init()

	server := NewServer(&panickyProvider{}, zap.NewNop())

	req := httptest.NewRequest(http.MethodGet, "/v1/run", nil)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.Contains(t, rec.Body.String(), "internal server error")
}

type fakeStatusProvider struct {
	mu     sync.Mutex
	status extract.RunStatus
}

func (f *fakeStatusProvider) set(s extract.RunStatus) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.status = s
}

func (f *fakeStatusProvider) RunStatus() extract.RunStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status
}

type panickyProvider struct{}

func (p *panickyProvider) RunStatus() extract.RunStatus {
	panic("status unavailable")
}
