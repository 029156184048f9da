// Package health provides health check functionality for services
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"
)

// Status represents the health status
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusUnhealthy Status = "unhealthy"
	StatusDegraded  Status = "degraded"
)

// Check represents a single health check
type Check struct {
	Name      string `json:"name"`
	Status    Status `json:"status"`
	Critical  bool   `json:"critical"`
	Message   string `json:"message,omitempty"`
	LatencyMS int64  `json:"latency_ms"`
}

// Response is the health check response
type Response struct {
	Status        Status            `json:"status"`
	Timestamp     time.Time         `json:"timestamp"`
	Version       string            `json:"version,omitempty"`
	Service       string            `json:"service,omitempty"`
	Checks        map[string]*Check `json:"checks,omitempty"`
	UptimeSeconds int64             `json:"uptime_seconds"`
}

// Checker is a function that performs a health check
type Checker func(ctx context.Context) error

type registered struct {
	checker  Checker
	critical bool
}

// Handler manages health checks for a service. A failing critical check
// makes the service unhealthy; a failing non-critical one only degrades it.
type Handler struct {
	mu        sync.RWMutex
	checks    map[string]registered
	service   string
	version   string
	startTime time.Time
}

// NewHandler creates a new health handler
func NewHandler(service, version string) *Handler {
	return &Handler{
		checks:    make(map[string]registered),
		service:   service,
		version:   version,
		startTime: time.Now(),
	}
}

// AddCheck registers a critical health check
func (h *Handler) AddCheck(name string, checker Checker) {
	h.add(name, checker, true)
}

// AddNonCritical registers a check whose failure degrades but does not
// fail readiness, e.g. the search history store.
func (h *Handler) AddNonCritical(name string, checker Checker) {
	h.add(name, checker, false)
}

func (h *Handler) add(name string, checker Checker, critical bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checks[name] = registered{checker: checker, critical: critical}
}

// Check runs all health checks in parallel and returns the result
func (h *Handler) Check(ctx context.Context) *Response {
	h.mu.RLock()
	defer h.mu.RUnlock()

	resp := &Response{
		Status:        StatusHealthy,
		Timestamp:     time.Now().UTC(),
		Version:       h.version,
		Service:       h.service,
		Checks:        make(map[string]*Check, len(h.checks)),
		UptimeSeconds: int64(time.Since(h.startTime) / time.Second),
	}

	var wg sync.WaitGroup
	var mu sync.Mutex

	for name, reg := range h.checks {
		wg.Add(1)
		go func(name string, reg registered) {
			defer wg.Done()

			start := time.Now()
			err := reg.checker(ctx)

			check := &Check{
				Name:      name,
				Status:    StatusHealthy,
				Critical:  reg.critical,
				LatencyMS: time.Since(start).Milliseconds(),
			}
			if err != nil {
				check.Status = StatusUnhealthy
				check.Message = err.Error()
			}

			mu.Lock()
			defer mu.Unlock()
			resp.Checks[name] = check
			switch {
			case err == nil:
			case reg.critical:
				resp.Status = StatusUnhealthy
			case resp.Status == StatusHealthy:
				resp.Status = StatusDegraded
			}
		}(name, reg)
	}

	wg.Wait()
	return resp
}

// LivenessHandler returns an HTTP handler for liveness probe
func (h *Handler) LivenessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "alive"})
	}
}

// ReadinessHandler returns an HTTP handler for readiness probe. Degraded
// services stay ready.
func (h *Handler) ReadinessHandler() http.HandlerFunc {
	return h.handler(5 * time.Second)
}

// HealthHandler returns an HTTP handler for detailed health check
func (h *Handler) HealthHandler() http.HandlerFunc {
	return h.handler(10 * time.Second)
}

func (h *Handler) handler(timeout time.Duration) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()

		resp := h.Check(ctx)
		status := http.StatusOK
		if resp.Status == StatusUnhealthy {
			status = http.StatusServiceUnavailable
		}
		writeJSON(w, status, resp)
	}
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
