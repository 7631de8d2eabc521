package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mipworks/algo-control-plane/internal/algorithm"
	brokermem "github.com/mipworks/algo-control-plane/internal/broker/memory"
	connmem "github.com/mipworks/algo-control-plane/internal/connections/memory"
	"github.com/mipworks/algo-control-plane/internal/dispatch"
	orchmem "github.com/mipworks/algo-control-plane/internal/orchestrator/memory"
	"github.com/mipworks/algo-control-plane/internal/provisioner"
	registrymem "github.com/mipworks/algo-control-plane/internal/registry/memory"
	"github.com/mipworks/algo-control-plane/internal/router"
	"github.com/mipworks/algo-control-plane/internal/service"
	storagemem "github.com/mipworks/algo-control-plane/internal/storage/memory"
)

const adminToken = "test-admin-token"

type syncInvoker struct {
	prov *provisioner.Provisioner
}

// Invoke runs the controller inline so tests observe provisioning results
// without a worker pool.
func (i *syncInvoker) Invoke(ctx context.Context, req provisioner.Request) error {
	return i.prov.Handle(ctx, req)
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	store := registrymem.NewStore()
	b := brokermem.New(0)
	orch := orchmem.New()
	prov := provisioner.New(store, b, orch, storagemem.New(), provisioner.Config{
		WorkerIdentity: "workers@test",
	}, zap.NewNop())

	svc := service.New(store, &syncInvoker{prov: prov}, service.StaticTokens{Admin: adminToken}, zap.NewNop())
	jobs := router.New(store, b, zap.NewNop())
	return NewServer(svc, jobs, NewEventHub(), connmem.NewStore(), zap.NewNop(), nil)
}

func doJSON(t *testing.T, h http.Handler, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	var rd *strings.Reader
	if body == "" {
		rd = strings.NewReader("")
	} else {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rd)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func registerAlgorithm(t *testing.T, h http.Handler, id string) {
	t.Helper()
	body := `{"algorithm_id":"` + id + `","image_ref":"registry.example/` + id + `:v1","name":"Test Algo"}`
	rec := doJSON(t, h, http.MethodPost, "/algorithms/", adminToken, body)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
}

func TestHealthEndpoints(t *testing.T) {
	t.Parallel()
	h := newTestServer(t).Handler()

	assert.Equal(t, http.StatusOK, doJSON(t, h, http.MethodGet, "/healthz", "", "").Code)
	assert.Equal(t, http.StatusOK, doJSON(t, h, http.MethodGet, "/readyz", "", "").Code)
	assert.Equal(t, http.StatusOK, doJSON(t, h, http.MethodGet, "/metrics", "", "").Code)
}

func TestAdminLifecycleOverHTTP(t *testing.T) {
	t.Parallel()
	h := newTestServer(t).Handler()
	registerAlgorithm(t, h, "price-fit")

	// The synchronous invoker has already provisioned it.
	rec := doJSON(t, h, http.MethodGet, "/algorithms/price-fit/", adminToken, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var got algorithm.Algorithm
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, algorithm.StatusActive, got.Status)
	assert.Equal(t, "mem://requests-price-fit", got.ResourceStatus.QueueID)

	rec = doJSON(t, h, http.MethodPatch, "/algorithms/price-fit/", adminToken,
		`{"image_ref":"registry.example/price-fit:v2"}`)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	rec = doJSON(t, h, http.MethodDelete, "/algorithms/price-fit/?hard=true", adminToken, "")
	require.Equal(t, http.StatusAccepted, rec.Code)

	rec = doJSON(t, h, http.MethodGet, "/algorithms/price-fit/", adminToken, "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, algorithm.StatusDeleted, got.Status)
}

func TestAdminErrorMapping(t *testing.T) {
	t.Parallel()
	h := newTestServer(t).Handler()
	registerAlgorithm(t, h, "price-fit")

	cases := []struct {
		name   string
		method string
		path   string
		token  string
		body   string
		want   int
	}{
		{"missing token on write", http.MethodPost, "/algorithms/", "", `{"algorithm_id":"x-1","image_ref":"x"}`, http.StatusUnauthorized},
		{"bad token", http.MethodGet, "/algorithms/", "wrong", "", http.StatusUnauthorized},
		{"invalid spec", http.MethodPost, "/algorithms/", adminToken, `{"algorithm_id":"NO","image_ref":"x"}`, http.StatusBadRequest},
		{"bad json", http.MethodPost, "/algorithms/", adminToken, `{`, http.StatusBadRequest},
		{"duplicate", http.MethodPost, "/algorithms/", adminToken, `{"algorithm_id":"price-fit","image_ref":"x"}`, http.StatusConflict},
		{"empty patch", http.MethodPatch, "/algorithms/price-fit/", adminToken, `{}`, http.StatusBadRequest},
		{"patch missing", http.MethodPatch, "/algorithms/ghost/", adminToken, `{"cpu":512}`, http.StatusNotFound},
		{"get missing", http.MethodGet, "/algorithms/ghost/", adminToken, "", http.StatusNotFound},
		{"delete missing", http.MethodDelete, "/algorithms/ghost/", adminToken, "", http.StatusNotFound},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			rec := doJSON(t, h, tc.method, tc.path, tc.token, tc.body)
			assert.Equal(t, tc.want, rec.Code, rec.Body.String())
		})
	}
}

func TestPublicCatalog(t *testing.T) {
	t.Parallel()
	h := newTestServer(t).Handler()
	registerAlgorithm(t, h, "price-fit")

	rec := doJSON(t, h, http.MethodGet, "/algorithms/", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Algorithms []service.PublicAlgorithm `json:"algorithms"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list.Algorithms, 1)
	assert.Equal(t, service.PublicActive, list.Algorithms[0].Status)

	rec = doJSON(t, h, http.MethodGet, "/algorithms/price-fit", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	// Admin-only fields must not leak through the projection.
	assert.NotContains(t, rec.Body.String(), "image_ref")
	assert.NotContains(t, rec.Body.String(), "resource_status")

	rec = doJSON(t, h, http.MethodGet, "/algorithms/ghost", "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestProcessRoute(t *testing.T) {
	t.Parallel()
	h := newTestServer(t).Handler()
	registerAlgorithm(t, h, "price-fit")

	rec := doJSON(t, h, http.MethodPost, "/process/price-fit", "", `{"job_id":"j-1","input":"x"}`)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	var receipt router.Receipt
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &receipt))
	assert.NotEmpty(t, receipt.QueueMessageID)

	rec = doJSON(t, h, http.MethodPost, "/process/ghost", "", `{}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestProcessRejectsInactive(t *testing.T) {
	t.Parallel()
	h := newTestServer(t).Handler()
	registerAlgorithm(t, h, "price-fit")

	rec := doJSON(t, h, http.MethodDelete, "/algorithms/price-fit/", adminToken, "")
	require.Equal(t, http.StatusAccepted, rec.Code)

	rec = doJSON(t, h, http.MethodPost, "/process/price-fit", "", `{}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCORSPreflightIsOpen(t *testing.T) {
	t.Parallel()
	h := newTestServer(t).Handler()

	req := httptest.NewRequest(http.MethodOptions, "/algorithms/", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestRequestIDHeader(t *testing.T) {
	t.Parallel()
	h := newTestServer(t).Handler()

	rec := doJSON(t, h, http.MethodGet, "/healthz", "", "")
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestDispatcherIntegration(t *testing.T) {
	t.Parallel()
	store := registrymem.NewStore()
	b := brokermem.New(0)
	orch := orchmem.New()
	prov := provisioner.New(store, b, orch, storagemem.New(), provisioner.Config{
		WorkerIdentity: "workers@test",
	}, zap.NewNop())
	d := dispatch.New(prov, dispatch.Options{}, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Run(ctx)

	svc := service.New(store, d, service.StaticTokens{Admin: adminToken}, zap.NewNop())
	jobs := router.New(store, b, zap.NewNop())
	h := NewServer(svc, jobs, NewEventHub(), connmem.NewStore(), zap.NewNop(), nil).Handler()

	registerAlgorithm(t, h, "price-fit")

	require.Eventually(t, func() bool {
		rec := doJSON(t, h, http.MethodGet, "/algorithms/price-fit/", adminToken, "")
		var got algorithm.Algorithm
		if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
			return false
		}
		return got.Status == algorithm.StatusActive
	}, 2*time.Second, 10*time.Millisecond)
}
