package httpapi

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

type fakeWS struct{ called bool }

func (f *fakeWS) HandleWS(w http.ResponseWriter, r *http.Request) { f.called = true }

func TestHealthReturnsOK(t *testing.T) {
	h := New(&fakeWS{})
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
}

func TestMetricsIsServed(t *testing.T) {
	h := New(&fakeWS{})
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
}

func TestWSRouteDelegatesToHandler(t *testing.T) {
	ws := &fakeWS{}
	h := New(ws)
	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if !ws.called {
		t.Error("expected /ws to delegate to the WebSocket handler")
	}
}
