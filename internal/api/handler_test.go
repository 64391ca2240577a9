package api

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kurihiro0119/sponsor-access-sync/internal/domain"
	apperrors "github.com/kurihiro0119/sponsor-access-sync/internal/errors"
)

type stubAggregator struct {
	numbers   *domain.Numbers
	roster    []domain.Account
	runs      []*domain.Run
	err       error
	lastLimit int
}

func (s *stubAggregator) GetNumbers(context.Context) (*domain.Numbers, error) {
	return s.numbers, s.err
}

func (s *stubAggregator) GetPublicRoster(context.Context) ([]domain.Account, error) {
	return s.roster, s.err
}

func (s *stubAggregator) ListRuns(_ context.Context, limit int) ([]*domain.Run, error) {
	s.lastLimit = limit
	return s.runs, s.err
}

func (s *stubAggregator) GetRun(_ context.Context, id string) (*domain.Run, error) {
	for _, r := range s.runs {
		if r.ID == id {
			return r, nil
		}
	}
	return nil, apperrors.NewNotFoundError("run " + id)
}

func newTestRouter(agg *stubAggregator) *gin.Engine {
	gin.SetMode(gin.TestMode)
	return SetupRoutes(NewHandler(agg), slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func do(t *testing.T, router *gin.Engine, method, path string) (*httptest.ResponseRecorder, map[string]json.RawMessage) {
	t.Helper()
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(method, path, nil))

	var body map[string]json.RawMessage
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	}
	return rec, body
}

func TestHealthCheck(t *testing.T) {
	rec, body := do(t, newTestRouter(&stubAggregator{}), http.MethodGet, "/health")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `"ok"`, string(body["status"]))
}

func TestGetNumbersAndSponsors(t *testing.T) {
	agg := &stubAggregator{
		numbers: &domain.Numbers{Total: 40, Count: 3},
		roster:  []domain.Account{{Name: "alice", Image: "i", URL: "u"}, {Name: "acme", IsOrganization: true}},
	}
	router := newTestRouter(agg)

	rec, body := do(t, router, http.MethodGet, "/api/v1/numbers")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"total":40,"count":3}`, string(body["data"]))

	rec, body = do(t, router, http.MethodGet, "/api/v1/sponsors")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[
		{"name":"alice","image":"i","url":"u","org":false},
		{"name":"acme","image":"","url":"","org":true}
	]`, string(body["data"]))
}

func TestRuns(t *testing.T) {
	agg := &stubAggregator{runs: []*domain.Run{{ID: "r1", Eligible: 3}}}
	router := newTestRouter(agg)

	rec, _ := do(t, router, http.MethodGet, "/api/v1/runs?limit=5")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 5, agg.lastLimit)

	rec, _ = do(t, router, http.MethodGet, "/api/v1/runs?limit=oops")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 20, agg.lastLimit)

	rec, body := do(t, router, http.MethodGet, "/api/v1/runs?limit=500")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, string(body["error"]), "BAD_REQUEST")

	rec, body = do(t, router, http.MethodGet, "/api/v1/runs/r1")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, string(body["data"]), `"id":"r1"`)

	rec, body = do(t, router, http.MethodGet, "/api/v1/runs/missing")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, string(body["error"]), "NOT_FOUND")
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{name: "not found", err: apperrors.NewNotFoundError("run"), status: http.StatusNotFound},
		{name: "internal", err: apperrors.NewInternalError("db", nil), status: http.StatusInternalServerError},
		{name: "plain error", err: io.ErrUnexpectedEOF, status: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, _ := do(t, newTestRouter(&stubAggregator{err: tt.err}), http.MethodGet, "/api/v1/numbers")
			assert.Equal(t, tt.status, rec.Code)
		})
	}
}

func TestCORSPreflight(t *testing.T) {
	rec, _ := do(t, newTestRouter(&stubAggregator{}), http.MethodOptions, "/api/v1/numbers")

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}
