package routes

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/angelmondragon/sourcing-engine/api/controllers"
	"github.com/angelmondragon/sourcing-engine/api/middleware"
	"github.com/angelmondragon/sourcing-engine/internal/requests"
	"github.com/angelmondragon/sourcing-engine/pkg/config"
	"github.com/angelmondragon/sourcing-engine/pkg/db/models"
	"github.com/angelmondragon/sourcing-engine/pkg/enums"
	"github.com/angelmondragon/sourcing-engine/pkg/logger"
	"github.com/angelmondragon/sourcing-engine/pkg/metrics"
)

type stubRequests struct {
	requests.Service
	created int
}

func (s *stubRequests) Create(_ context.Context, input requests.CreateInput) (*models.Request, error) {
	s.created++
	return &models.Request{ID: uuid.New(), ClientEmail: input.ClientEmail, Status: enums.RequestStatusOpenForQuotes, Version: 1}, nil
}

func (s *stubRequests) List(context.Context, requests.ListFilter) ([]models.Request, error) {
	return []models.Request{}, nil
}

type memoryStore struct {
	data map[string]string
}

func (m *memoryStore) Get(_ context.Context, key string) (string, error) {
	if v, ok := m.data[key]; ok {
		return v, nil
	}
	return "", redis.Nil
}

func (m *memoryStore) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	if _, ok := m.data[key]; ok {
		return false, nil
	}
	m.data[key] = fmt.Sprint(value)
	return true, nil
}

func (m *memoryStore) IdempotencyKey(scope, id string) string {
	return scope + ":" + id
}

func testRouter(t *testing.T, reqs *stubRequests) http.Handler {
	t.Helper()
	cfg := &config.Config{App: config.AppConfig{
		Env:            "test",
		CORSOrigins:    []string{"http://localhost:3000"},
		IdempotencyTTL: time.Hour,
	}}
	reg := prometheus.NewRegistry()
	return NewRouter(cfg, logger.Nop(), Dependencies{
		Probes:         []controllers.ReadinessProbe{{Name: "database", Check: func(context.Context) error { return nil }}},
		Idempotency:    &memoryStore{data: map[string]string{}},
		HTTPMetrics:    metrics.NewHTTPMetrics(reg),
		MetricsHandler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		Requests:       reqs,
	})
}

func do(h http.Handler, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func actor(id string, role enums.ActorRole) map[string]string {
	return map[string]string{middleware.ActorIDHeader: id, middleware.ActorRoleHeader: string(role)}
}

func TestHealthRoutesArePublic(t *testing.T) {
	h := testRouter(t, &stubRequests{})

	if rec := do(h, http.MethodGet, "/health/live", "", nil); rec.Code != http.StatusOK {
		t.Fatalf("live expected 200 got %d", rec.Code)
	}
	if rec := do(h, http.MethodGet, "/health/ready", "", nil); rec.Code != http.StatusOK {
		t.Fatalf("ready expected 200 got %d", rec.Code)
	}
}

func TestAPIRequiresActor(t *testing.T) {
	h := testRouter(t, &stubRequests{})

	rec := do(h, http.MethodGet, "/api/v1/requests", "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", rec.Code)
	}
}

func TestRoleGuards(t *testing.T) {
	h := testRouter(t, &stubRequests{})

	if rec := do(h, http.MethodGet, "/api/v1/requests", "", actor("supplier-1", enums.ActorRoleSupplier)); rec.Code != http.StatusForbidden {
		t.Fatalf("supplier listing requests expected 403 got %d", rec.Code)
	}
	if rec := do(h, http.MethodGet, "/api/v1/requests", "", actor("manager-1", enums.ActorRoleManager)); rec.Code != http.StatusOK {
		t.Fatalf("manager listing requests expected 200 got %d", rec.Code)
	}
	if rec := do(h, http.MethodGet, "/api/v1/finance/summary", "", actor("client-1", enums.ActorRoleClient)); rec.Code != http.StatusForbidden {
		t.Fatalf("client reading finance expected 403 got %d", rec.Code)
	}
}

func TestCreateRequestIsIdempotent(t *testing.T) {
	reqs := &stubRequests{}
	h := testRouter(t, reqs)
	headers := actor("client-1", enums.ActorRoleClient)
	headers[middleware.IdempotencyHeader] = "create-1"
	body := `{"client_email":"buyer@example.com","components":[{"reference":"ALT-1","quantity":1}]}`

	first := do(h, http.MethodPost, "/api/v1/requests", body, headers)
	if first.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d: %s", first.Code, first.Body.String())
	}
	second := do(h, http.MethodPost, "/api/v1/requests", body, headers)
	if second.Code != http.StatusCreated || second.Header().Get("Idempotent-Replay") != "true" {
		t.Fatalf("expected replayed 201, got %d replay=%q", second.Code, second.Header().Get("Idempotent-Replay"))
	}
	if first.Body.String() != second.Body.String() {
		t.Fatalf("replayed body differs")
	}
	if reqs.created != 1 {
		t.Fatalf("expected one create, got %d", reqs.created)
	}
}

func TestMetricsEndpointReportsRoutes(t *testing.T) {
	h := testRouter(t, &stubRequests{})
	do(h, http.MethodGet, "/api/v1/requests", "", actor("manager-1", enums.ActorRoleManager))

	rec := do(h, http.MethodGet, "/metrics", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `route="/api/v1/requests`) {
		t.Fatalf("expected route pattern label in metrics output:\n%s", rec.Body.String())
	}
}

func TestUnknownRouteIs404(t *testing.T) {
	h := testRouter(t, &stubRequests{})
	if rec := do(h, http.MethodGet, "/api/v1/nothing", "", actor("manager-1", enums.ActorRoleManager)); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 got %d", rec.Code)
	}
}
