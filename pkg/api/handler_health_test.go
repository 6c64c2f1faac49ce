package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/intelligence-arena/arena/pkg/repository"
)

func TestHealthzHealthy(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(t, http.MethodGet, "/healthz", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp HealthResponse
	decode(t, rec, &resp)
	assert.Equal(t, healthStatusHealthy, resp.Status)
	assert.NotEmpty(t, resp.Version)
	require.Contains(t, resp.Checks, "repository")
	assert.Equal(t, healthStatusHealthy, resp.Checks["repository"].Status)
}

// failingPing wraps a repository with a Ping that always fails.
type failingPing struct {
	repository.Repository
}

func (f *failingPing) Ping(context.Context) error {
	return errors.New("connection refused")
}

func TestHealthzRepositoryDown(t *testing.T) {
	ts := newTestServer(t, nil)
	srv := NewServer(&failingPing{Repository: ts.repo}, ts.sched, ts.pool, ts.bus, ts.cfg)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var resp HealthResponse
	decode(t, rec, &resp)
	assert.Equal(t, healthStatusUnhealthy, resp.Status)
	require.Contains(t, resp.Checks, "repository")
	assert.Equal(t, healthStatusUnhealthy, resp.Checks["repository"].Status)
	assert.Contains(t, resp.Checks["repository"].Message, "connection refused")
}
