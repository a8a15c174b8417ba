package metrics

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"
)

// ProcessStatus represents the liveness/startup status of the soak engine
// process itself — distinct from the KPI Gate's release verdict (pkg/kpigate),
// which judges the quality of what the process produced, not whether it is
// running.
type ProcessStatus struct {
	Status     string            `json:"status"` // "healthy", "degraded", "unhealthy"
	Timestamp  time.Time         `json:"timestamp"`
	Components map[string]string `json:"components,omitempty"`
	Message    string            `json:"message,omitempty"`
	Version    string            `json:"version,omitempty"`
	Uptime     string            `json:"uptime,omitempty"`
	StartTime  time.Time         `json:"-"`
}

var (
	processChecker = &processHealthChecker{
		components: make(map[string]componentStatus),
		startTime:  time.Now(),
	}
)

// componentStatus tracks the health of a single engine subsystem.
type componentStatus struct {
	Name    string
	Healthy bool
	Message string
	Updated time.Time
}

// processHealthChecker aggregates subsystem status for the /healthz,
// /startupz and /livez HTTP endpoints exposed alongside the Prometheus
// handler.
type processHealthChecker struct {
	mu         sync.RWMutex
	components map[string]componentStatus
	startTime  time.Time
	version    string
}

// SetVersion sets the version string for health responses.
func SetVersion(version string) {
	processChecker.mu.Lock()
	defer processChecker.mu.Unlock()
	processChecker.version = version
}

// RegisterComponent registers a subsystem for health reporting.
func RegisterComponent(name string, healthy bool, message string) {
	processChecker.mu.Lock()
	defer processChecker.mu.Unlock()

	processChecker.components[name] = componentStatus{
		Name:    name,
		Healthy: healthy,
		Message: message,
		Updated: time.Now(),
	}
}

// UpdateComponent updates the health status of a subsystem.
func UpdateComponent(name string, healthy bool, message string) {
	RegisterComponent(name, healthy, message)
}

// GetHealth returns the overall process status.
func GetHealth() ProcessStatus {
	processChecker.mu.RLock()
	defer processChecker.mu.RUnlock()

	status := "healthy"
	components := make(map[string]string)

	for name, comp := range processChecker.components {
		if !comp.Healthy {
			status = "unhealthy"
			components[name] = "unhealthy: " + comp.Message
		} else {
			components[name] = "healthy"
		}
	}

	uptime := time.Since(processChecker.startTime)

	return ProcessStatus{
		Status:     status,
		Timestamp:  time.Now(),
		Components: components,
		Version:    processChecker.version,
		Uptime:     uptime.String(),
		StartTime:  processChecker.startTime,
	}
}

// GetStartupStatus reports whether the engine's critical subsystems —
// orchestrator, artifact store, exchange connector — have finished
// initializing. Distinct from GetHealth: a component can be healthy but
// the engine still mid-startup (e.g. connector dialed but artifact store
// directory not yet created).
func GetStartupStatus() ProcessStatus {
	processChecker.mu.RLock()
	defer processChecker.mu.RUnlock()

	status := "ready"
	message := ""
	components := make(map[string]string)

	criticalComponents := []string{"orchestrator", "artifacts", "connector"}

	for _, name := range criticalComponents {
		if comp, exists := processChecker.components[name]; exists {
			if !comp.Healthy {
				status = "not_ready"
				message = "waiting for " + name
				components[name] = "not ready: " + comp.Message
			} else {
				components[name] = "ready"
			}
		} else {
			status = "not_ready"
			message = "waiting for " + name + " initialization"
			components[name] = "not registered"
		}
	}

	uptime := time.Since(processChecker.startTime)

	return ProcessStatus{
		Status:     status,
		Timestamp:  time.Now(),
		Components: components,
		Message:    message,
		Version:    processChecker.version,
		Uptime:     uptime.String(),
		StartTime:  processChecker.startTime,
	}
}

// HealthHandler serves /healthz.
func HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		health := GetHealth()

		w.Header().Set("Content-Type", "application/json")
		statusCode := http.StatusOK
		if health.Status == "unhealthy" {
			statusCode = http.StatusServiceUnavailable
		}
		w.WriteHeader(statusCode)
		_ = json.NewEncoder(w).Encode(health)
	}
}

// StartupHandler serves /startupz.
func StartupHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		startup := GetStartupStatus()

		w.Header().Set("Content-Type", "application/json")
		statusCode := http.StatusOK
		if startup.Status != "ready" {
			statusCode = http.StatusServiceUnavailable
		}
		w.WriteHeader(statusCode)
		_ = json.NewEncoder(w).Encode(startup)
	}
}

// LivenessHandler serves /livez: a simple "is the process running" check
// with no dependency on subsystem state.
func LivenessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]string{
			"status": "alive",
			"uptime": time.Since(processChecker.startTime).String(),
		})
	}
}
