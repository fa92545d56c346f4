package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/angelmondragon/sourcing-engine/pkg/enums"
	pkgerrors "github.com/angelmondragon/sourcing-engine/pkg/errors"
)

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var payload struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("parse error response: %v", err)
	}
	return payload.Error.Code
}

func TestActorSeedsContext(t *testing.T) {
	var gotID string
	var gotRole enums.ActorRole
	handler := Actor(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotID = ActorIDFromContext(r.Context())
		gotRole = RoleFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/requests", nil)
	req.Header.Set(ActorIDHeader, " manager-1 ")
	req.Header.Set(ActorRoleHeader, "Manager")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204 got %d", rec.Code)
	}
	if gotID != "manager-1" || gotRole != enums.ActorRoleManager {
		t.Fatalf("unexpected actor %q/%q", gotID, gotRole)
	}
}

func TestActorRejectsMissingIdentity(t *testing.T) {
	handler := Actor(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("handler must not run")
	}))

	missingID := httptest.NewRequest(http.MethodGet, "/api/v1/requests", nil)
	missingID.Header.Set(ActorRoleHeader, "manager")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, missingID)
	if rec.Code != http.StatusUnauthorized || errorCode(t, rec) != string(pkgerrors.CodeUnauthorized) {
		t.Fatalf("expected 401 got %d", rec.Code)
	}

	badRole := httptest.NewRequest(http.MethodGet, "/api/v1/requests", nil)
	badRole.Header.Set(ActorIDHeader, "someone")
	badRole.Header.Set(ActorRoleHeader, "admin")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, badRole)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for unknown role got %d", rec.Code)
	}
}

func TestRequireRole(t *testing.T) {
	handler := RequireRole(nil, enums.ActorRoleManager)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/requests/x/winner", nil)
	req = req.WithContext(WithActor(req.Context(), "supplier-1", enums.ActorRoleSupplier))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden || errorCode(t, rec) != string(pkgerrors.CodeForbidden) {
		t.Fatalf("expected 403 got %d", rec.Code)
	}

	req = req.WithContext(WithActor(req.Context(), "manager-1", enums.ActorRoleManager))
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}
}

func TestRequestIDEchoesOrMints(t *testing.T) {
	handler := RequestID(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	req := httptest.NewRequest(http.MethodGet, "/health/live", nil)
	req.Header.Set(requestIDHeader, "abc-123")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Header().Get(requestIDHeader) != "abc-123" {
		t.Fatalf("expected request id echoed")
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	if len(rec.Header().Get(requestIDHeader)) != 36 {
		t.Fatalf("expected minted uuid, got %q", rec.Header().Get(requestIDHeader))
	}
}

func TestRecovererWritesInternalError(t *testing.T) {
	handler := Recoverer(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusInternalServerError || errorCode(t, rec) != string(pkgerrors.CodeInternal) {
		t.Fatalf("expected 500 got %d", rec.Code)
	}
}
