package apierror

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
)

func decode(t *testing.T, rec *httptest.ResponseRecorder) Payload {
	t.Helper()
	var body Body
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid json body %q: %v", rec.Body.String(), err)
	}
	return body.Error
}

func TestWrite_AppErrorUsesStatusAndMessage(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/x", nil)

	Write(rec, req, Forbidden(""))

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "application/json") {
		t.Fatalf("expected json content type, got %q", ct)
	}
	p := decode(t, rec)
	if p.Message != "Insufficient permissions" || p.Status != 403 {
		t.Fatalf("unexpected payload: %+v", p)
	}
	if _, err := time.Parse(time.RFC3339, p.Timestamp); err != nil {
		t.Fatalf("expected RFC3339 timestamp, got %q", p.Timestamp)
	}
}

func TestWrite_WrappedAppErrorIsFound(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/x", nil)

	Write(rec, req, fmt.Errorf("handler: %w", Validation("Validation failed", map[string]string{"email": "required"})))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if p := decode(t, rec); p.Fields["email"] != "required" {
		t.Fatalf("expected fields in payload, got %+v", p)
	}
}

func TestWrite_UnknownErrorHidesDetailsOutsideDevelopment(t *testing.T) {
	SetDevelopment(false)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/x", nil)

	Write(rec, req, errors.New("pq: connection refused"))

	p := decode(t, rec)
	if rec.Code != http.StatusInternalServerError || p.Message != "Internal server error" {
		t.Fatalf("expected generic 500, got %d %+v", rec.Code, p)
	}
	if p.Stack != "" {
		t.Fatalf("expected no stack outside development")
	}
}

func TestWrite_DevelopmentExposesStack(t *testing.T) {
	SetDevelopment(true)
	defer SetDevelopment(false)

	rec := httptest.NewRecorder()
	Write(rec, httptest.NewRequest(http.MethodGet, "/x", nil), errors.New("boom"))

	p := decode(t, rec)
	if p.Message != "boom" || p.Stack == "" {
		t.Fatalf("expected original message and stack, got %+v", p)
	}
}

func TestTooManyRequests_BodyFieldOrder(t *testing.T) {
	now := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	raw, err := json.Marshal(NewBody(TooManyRequests("slow down", 900), now))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want := `{"error":{"message":"slow down","status":429,"retryAfter":900,"timestamp":"2026-05-01T10:00:00.000Z"}}`
	if string(raw) != want {
		t.Fatalf("unexpected body:\n got %s\nwant %s", raw, want)
	}
}

func TestNotFound(t *testing.T) {
	rec := httptest.NewRecorder()
	NotFound(rec, httptest.NewRequest(http.MethodGet, "/api/v1/nope?x=1", nil))

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	if p := decode(t, rec); p.Message != "Route /api/v1/nope?x=1 not found" {
		t.Fatalf("unexpected message %q", p.Message)
	}
}

func TestRecoverer_TurnsPanicInto500(t *testing.T) {
	h := Recoverer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("kaboom")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
}
