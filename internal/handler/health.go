package handler

import (
	"net/http"
	"runtime"
	"time"

	"cardbored-api/internal/priceindex"
	"cardbored-api/pkg/response"
)

// StartTime tracks when the server started for uptime calculation
var StartTime = time.Now()

// IndexStatus reports the state of the price index.
type IndexStatus interface {
	Status() priceindex.Status
}

// Handler contains shared HTTP handlers and their dependencies.
type Handler struct {
	index   IndexStatus
	service string
	version string
}

// New creates a new handler.
func New(index IndexStatus, service, version string) *Handler {
	return &Handler{index: index, service: service, version: version}
}

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Version   string    `json:"version"`
}

// Health handles GET /api/v1/health
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC(),
		Version:   h.version,
	}
	response.OK(w, resp)
}

// ReadyResponse represents the readiness check response.
type ReadyResponse struct {
	Ready     bool      `json:"ready"`
	Timestamp time.Time `json:"timestamp"`
	Checks    []Check   `json:"checks"`
}

// Check represents an individual readiness check.
type Check struct {
	Name   string `json:"name"`
	Status string `json:"status"`
}

// Ready handles GET /api/v1/ready. The service is ready once a price
// snapshot exists.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	st := h.index.Status()
	index := Check{Name: "price_index", Status: "ok"}
	switch {
	case !st.Ready:
		index.Status = "empty"
	case st.Stale:
		index.Status = "stale"
	}

	resp := ReadyResponse{
		Ready:     st.Ready,
		Timestamp: time.Now().UTC(),
		Checks:    []Check{{Name: "api", Status: "ok"}, index},
	}

	status := http.StatusOK
	if !resp.Ready {
		status = http.StatusServiceUnavailable
	}
	response.JSON(w, status, resp)
}

// StatusChecks represents the checks in status response
type StatusChecks struct {
	PriceIndex   string  `json:"price_index"`
	IndexRecords int     `json:"index_records"`
	IndexAgeHrs  float64 `json:"index_age_hours"`
	MemoryMB     float64 `json:"memory_mb"`
}

// StatusResponse represents the unified status response for monitoring
type StatusResponse struct {
	Service       string       `json:"service"`
	Status        string       `json:"status"`
	Timestamp     string       `json:"timestamp"`
	UptimeSeconds int64        `json:"uptime_seconds"`
	Checks        StatusChecks `json:"checks"`
}

// Status handles GET /api/status
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)
	memoryMB := float64(memStats.Alloc) / 1024 / 1024

	st := h.index.Status()
	checks := StatusChecks{
		PriceIndex:   "ok",
		IndexRecords: st.Records,
		IndexAgeHrs:  float64(int(st.AgeSeconds/36)) / 100,
		MemoryMB:     float64(int(memoryMB*100)) / 100,
	}
	overall := "ok"
	switch {
	case !st.Ready:
		checks.PriceIndex = "empty"
		overall = "degraded"
	case st.Stale:
		checks.PriceIndex = "stale"
	}

	resp := StatusResponse{
		Service:       h.service,
		Status:        overall,
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		UptimeSeconds: int64(time.Since(StartTime).Seconds()),
		Checks:        checks,
	}

	w.Header().Set("Cache-Control", "no-store, no-cache, must-revalidate")
	response.OK(w, resp)
}
