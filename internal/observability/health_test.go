package observability

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

func TestReadinessHandler_AllHealthy(t *testing.T) {
	handler := ReadinessHandler(
		NamedCheck{Name: "translation", Check: func(ctx context.Context) (bool, error) { return true, nil }},
		NamedCheck{Name: "synthesis", Check: func(ctx context.Context) (bool, error) { return true, nil }},
	)

	rec := httptest.NewRecorder()
	handler(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}

	var status HealthStatus
	if err := json.NewDecoder(rec.Body).Decode(&status); err != nil {
		t.Fatalf("Failed to decode body: %v", err)
	}
	if status.Status != "ready" {
		t.Errorf("Expected status 'ready', got '%s'", status.Status)
	}
	if len(status.Dependencies) != 2 {
		t.Errorf("Expected 2 dependencies, got %d", len(status.Dependencies))
	}
}

func TestReadinessHandler_Unhealthy(t *testing.T) {
	handler := ReadinessHandler(
		NamedCheck{Name: "translation", Check: func(ctx context.Context) (bool, error) {
			return false, errors.New("GEMINI_API_KEY not set")
		}},
	)

	rec := httptest.NewRecorder()
	handler(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("Expected 503, got %d", rec.Code)
	}

	var status HealthStatus
	if err := json.NewDecoder(rec.Body).Decode(&status); err != nil {
		t.Fatalf("Failed to decode body: %v", err)
	}
	dep := status.Dependencies["translation"]
	if dep.Status != "unhealthy" || dep.Message != "GEMINI_API_KEY not set" {
		t.Errorf("Unexpected dependency status: %+v", dep)
	}
}

func TestUpdateGRPCHealth(t *testing.T) {
	checks := []NamedCheck{
		{Name: "translation", Check: func(ctx context.Context) (bool, error) { return true, nil }},
		{Name: "recognition", Check: func(ctx context.Context) (bool, error) { return false, nil }},
	}
	_, hs := NewGRPCHealthServer(checks)

	if UpdateGRPCHealth(context.Background(), hs, checks) {
		t.Error("Expected overall readiness to be false")
	}

	resp, err := hs.Check(context.Background(), &healthpb.HealthCheckRequest{Service: "translation"})
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if resp.Status != healthpb.HealthCheckResponse_SERVING {
		t.Errorf("Expected translation SERVING, got %v", resp.Status)
	}

	resp, err = hs.Check(context.Background(), &healthpb.HealthCheckRequest{Service: ""})
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if resp.Status != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Errorf("Expected overall NOT_SERVING, got %v", resp.Status)
	}
}
