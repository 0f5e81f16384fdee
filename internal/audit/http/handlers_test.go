package audithttp

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orderdesk/authz/internal/audit"
	"github.com/orderdesk/authz/internal/shared"
)

type stubListService struct {
	result      audit.Result
	err         error
	lastFilters audit.Filters
}

func (s *stubListService) List(ctx context.Context, filters audit.Filters) (audit.Result, error) {
	s.lastFilters = filters
	return s.result, s.err
}

func newRouter(service *stubListService) http.Handler {
	r := chi.NewRouter()
	NewHandler(nil, service).MountRoutes(r)
	return r
}

func TestListReturnsRows(t *testing.T) {
	service := &stubListService{result: audit.Result{
		Rows:   []audit.Record{{ID: 1, ActorID: "u1", Action: audit.ActionRouteAccess, Outcome: audit.OutcomeDenied, At: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)}},
		Paging: shared.NewPagination(2, 10, false),
	}}
	req := httptest.NewRequest(http.MethodGet, "/permissions/audits?page=2&page_size=10&actor=u1&outcome=denied", nil)
	rr := httptest.NewRecorder()
	newRouter(service).ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var body audit.Result
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Len(t, body.Rows, 1)
	assert.Equal(t, "u1", body.Rows[0].ActorID)
	assert.Equal(t, 2, service.lastFilters.Page)
	assert.Equal(t, 10, service.lastFilters.PageSize)
	assert.Equal(t, audit.OutcomeDenied, service.lastFilters.Outcome)
}

func TestListRejectsBadFilters(t *testing.T) {
	for _, query := range []string{"page=0", "page=x", "page_size=-1", "outcome=maybe"} {
		rr := httptest.NewRecorder()
		newRouter(&stubListService{}).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/permissions/audits?"+query, nil))
		assert.Equal(t, http.StatusBadRequest, rr.Code, query)
	}
}

func TestListServiceError(t *testing.T) {
	rr := httptest.NewRecorder()
	newRouter(&stubListService{err: errors.New("db down")}).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/permissions/audits", nil))
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
}
