package metrics

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestRegisterComponent(t *testing.T) {
	processChecker = &processHealthChecker{
		components: make(map[string]componentStatus),
		startTime:  time.Now(),
	}

	RegisterComponent("test-component", true, "running")

	if len(processChecker.components) != 1 {
		t.Errorf("expected 1 component, got %d", len(processChecker.components))
	}

	comp := processChecker.components["test-component"]
	if !comp.Healthy {
		t.Error("component should be healthy")
	}

	if comp.Message != "running" {
		t.Errorf("expected message 'running', got '%s'", comp.Message)
	}
}

func TestGetHealth_AllHealthy(t *testing.T) {
	processChecker = &processHealthChecker{
		components: make(map[string]componentStatus),
		startTime:  time.Now(),
		version:    "1.0.0",
	}

	RegisterComponent("connector", true, "")
	RegisterComponent("orchestrator", true, "")

	health := GetHealth()

	if health.Status != "healthy" {
		t.Errorf("expected status 'healthy', got '%s'", health.Status)
	}

	if len(health.Components) != 2 {
		t.Errorf("expected 2 components, got %d", len(health.Components))
	}

	if health.Version != "1.0.0" {
		t.Errorf("expected version '1.0.0', got '%s'", health.Version)
	}
}

func TestGetHealth_OneUnhealthy(t *testing.T) {
	processChecker = &processHealthChecker{
		components: make(map[string]componentStatus),
		startTime:  time.Now(),
	}

	RegisterComponent("connector", true, "")
	RegisterComponent("orchestrator", false, "not connected")

	health := GetHealth()

	if health.Status != "unhealthy" {
		t.Errorf("expected status 'unhealthy', got '%s'", health.Status)
	}

	if health.Components["orchestrator"] != "unhealthy: not connected" {
		t.Errorf("unexpected orchestrator status: %s", health.Components["orchestrator"])
	}
}

func TestGetStartupStatus_AllReady(t *testing.T) {
	processChecker = &processHealthChecker{
		components: make(map[string]componentStatus),
		startTime:  time.Now(),
	}

	RegisterComponent("orchestrator", true, "")
	RegisterComponent("artifacts", true, "")
	RegisterComponent("connector", true, "")

	startup := GetStartupStatus()

	if startup.Status != "ready" {
		t.Errorf("expected status 'ready', got '%s'", startup.Status)
	}
}

func TestGetStartupStatus_MissingCriticalComponent(t *testing.T) {
	processChecker = &processHealthChecker{
		components: make(map[string]componentStatus),
		startTime:  time.Now(),
	}

	RegisterComponent("connector", true, "")
	// orchestrator and artifacts not registered

	startup := GetStartupStatus()

	if startup.Status != "not_ready" {
		t.Errorf("expected status 'not_ready', got '%s'", startup.Status)
	}

	if startup.Message == "" {
		t.Error("expected message explaining why not ready")
	}
}

func TestGetStartupStatus_CriticalComponentUnhealthy(t *testing.T) {
	processChecker = &processHealthChecker{
		components: make(map[string]componentStatus),
		startTime:  time.Now(),
	}

	RegisterComponent("orchestrator", false, "not yet accepting ticks")
	RegisterComponent("artifacts", true, "")
	RegisterComponent("connector", true, "")

	startup := GetStartupStatus()

	if startup.Status != "not_ready" {
		t.Errorf("expected status 'not_ready', got '%s'", startup.Status)
	}
}

func TestHealthHandler(t *testing.T) {
	processChecker = &processHealthChecker{
		components: make(map[string]componentStatus),
		startTime:  time.Now(),
		version:    "test",
	}

	RegisterComponent("test", true, "")

	req := httptest.NewRequest("GET", "/healthz", nil)
	w := httptest.NewRecorder()

	handler := HealthHandler()
	handler(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", w.Code)
	}

	var health ProcessStatus
	if err := json.NewDecoder(w.Body).Decode(&health); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	if health.Status != "healthy" {
		t.Errorf("expected healthy status, got %s", health.Status)
	}

	if health.Version != "test" {
		t.Errorf("expected version 'test', got %s", health.Version)
	}
}

func TestHealthHandler_Unhealthy(t *testing.T) {
	processChecker = &processHealthChecker{
		components: make(map[string]componentStatus),
		startTime:  time.Now(),
	}

	RegisterComponent("test", false, "broken")

	req := httptest.NewRequest("GET", "/healthz", nil)
	w := httptest.NewRecorder()

	handler := HealthHandler()
	handler(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("expected status 503, got %d", w.Code)
	}

	var health ProcessStatus
	if err := json.NewDecoder(w.Body).Decode(&health); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	if health.Status != "unhealthy" {
		t.Errorf("expected unhealthy status, got %s", health.Status)
	}
}

func TestStartupHandler(t *testing.T) {
	processChecker = &processHealthChecker{
		components: make(map[string]componentStatus),
		startTime:  time.Now(),
	}

	RegisterComponent("orchestrator", true, "")
	RegisterComponent("artifacts", true, "")
	RegisterComponent("connector", true, "")

	req := httptest.NewRequest("GET", "/startupz", nil)
	w := httptest.NewRecorder()

	handler := StartupHandler()
	handler(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", w.Code)
	}

	var startup ProcessStatus
	if err := json.NewDecoder(w.Body).Decode(&startup); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	if startup.Status != "ready" {
		t.Errorf("expected ready status, got %s", startup.Status)
	}
}

func TestStartupHandler_NotReady(t *testing.T) {
	processChecker = &processHealthChecker{
		components: make(map[string]componentStatus),
		startTime:  time.Now(),
	}

	RegisterComponent("connector", true, "")
	// orchestrator not registered

	req := httptest.NewRequest("GET", "/startupz", nil)
	w := httptest.NewRecorder()

	handler := StartupHandler()
	handler(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("expected status 503, got %d", w.Code)
	}

	var startup ProcessStatus
	if err := json.NewDecoder(w.Body).Decode(&startup); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	if startup.Status != "not_ready" {
		t.Errorf("expected not_ready status, got %s", startup.Status)
	}
}

func TestLivenessHandler(t *testing.T) {
	processChecker = &processHealthChecker{
		components: make(map[string]componentStatus),
		startTime:  time.Now(),
	}

	req := httptest.NewRequest("GET", "/livez", nil)
	w := httptest.NewRecorder()

	handler := LivenessHandler()
	handler(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", w.Code)
	}

	var response map[string]string
	if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	if response["status"] != "alive" {
		t.Errorf("expected status 'alive', got '%s'", response["status"])
	}

	if response["uptime"] == "" {
		t.Error("uptime should not be empty")
	}
}

func TestUpdateComponent(t *testing.T) {
	processChecker = &processHealthChecker{
		components: make(map[string]componentStatus),
		startTime:  time.Now(),
	}

	RegisterComponent("test", true, "ok")
	UpdateComponent("test", false, "error")

	comp := processChecker.components["test"]
	if comp.Healthy {
		t.Error("component should be unhealthy after update")
	}

	if comp.Message != "error" {
		t.Errorf("expected message 'error', got '%s'", comp.Message)
	}
}
