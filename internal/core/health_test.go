package core

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func decodeHealth(t *testing.T, w *httptest.ResponseRecorder) healthResponse {
	t.Helper()
	var resp healthResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding health response: %v", err)
	}
	return resp
}

func TestHealth_NoProbes(t *testing.T) {
	s := newTestServer(t)

	w := httptest.NewRecorder()
	s.HandleHealth(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if resp := decodeHealth(t, w); resp.Status != "healthy" {
		t.Errorf("status = %q, want healthy", resp.Status)
	}
}

func TestHealth_AllHealthy(t *testing.T) {
	s := newTestServer(t)
	s.HealthProbes = []HealthProbe{
		PingProbe{ProbeName: "database", Ping: func(ctx context.Context) error { return nil }},
		PingProbe{ProbeName: "bus", Ping: func(ctx context.Context) error { return nil }},
	}

	w := httptest.NewRecorder()
	s.HandleHealth(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	resp := decodeHealth(t, w)
	if resp.Status != "healthy" {
		t.Errorf("status = %q, want healthy", resp.Status)
	}
	if len(resp.Components) != 2 {
		t.Errorf("components = %d, want 2", len(resp.Components))
	}
	if resp.Components["database"].Status != "healthy" {
		t.Errorf("database status = %q, want healthy", resp.Components["database"].Status)
	}
}

func TestHealth_OneUnhealthy(t *testing.T) {
	s := newTestServer(t)
	s.HealthProbes = []HealthProbe{
		PingProbe{ProbeName: "database", Ping: func(ctx context.Context) error { return nil }},
		PingProbe{ProbeName: "bus", Ping: func(ctx context.Context) error {
			return errors.New("queue unreachable")
		}},
	}

	w := httptest.NewRecorder()
	s.HandleHealth(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", w.Code)
	}
	resp := decodeHealth(t, w)
	if resp.Status != "unhealthy" {
		t.Errorf("status = %q, want unhealthy", resp.Status)
	}
	if resp.Components["bus"].Status != "unhealthy" {
		t.Errorf("bus status = %q, want unhealthy", resp.Components["bus"].Status)
	}
	if resp.Components["bus"].Message != "queue unreachable" {
		t.Errorf("bus message = %q", resp.Components["bus"].Message)
	}
	if resp.Components["database"].Status != "healthy" {
		t.Errorf("database status = %q, want healthy", resp.Components["database"].Status)
	}
}

func TestHealth_ProbePanicIsUnhealthy(t *testing.T) {
	s := newTestServer(t)
	s.HealthProbes = []HealthProbe{
		PingProbe{ProbeName: "database", Ping: func(ctx context.Context) error {
			panic("probe exploded")
		}},
	}

	w := httptest.NewRecorder()
	s.HandleHealth(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", w.Code)
	}
	resp := decodeHealth(t, w)
	if resp.Components["database"].Status != "unhealthy" {
		t.Errorf("database status = %q, want unhealthy", resp.Components["database"].Status)
	}
}
