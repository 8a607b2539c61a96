package handler

import (
	"context"
	"log"
	"net/http"
	"runtime"
	"time"

	"cardbored-api/internal/model"
	"cardbored-api/pkg/apierror"
	"cardbored-api/pkg/response"
)

// IndexRefresher forces a price index refresh.
type IndexRefresher interface {
	RunNow(ctx context.Context) (*model.Snapshot, error)
}

// LookupCache drops cached live lookup results.
type LookupCache interface {
	Purge(ctx context.Context) error
}

// AdminHandler handles admin-related HTTP requests.
type AdminHandler struct {
	index     IndexStatus
	refresher IndexRefresher
	lookups   LookupCache
	storeType string // Snapshot store: none, kv, file, sqlite, postgres, mysql, mongodb
	cacheType string
	startTime time.Time
}

// NewAdminHandler creates a new admin handler. lookups may be nil.
func NewAdminHandler(index IndexStatus, refresher IndexRefresher, lookups LookupCache, storeType, cacheType string) *AdminHandler {
	return &AdminHandler{
		index:     index,
		refresher: refresher,
		lookups:   lookups,
		storeType: storeType,
		cacheType: cacheType,
		startTime: time.Now(),
	}
}

// GetIndex handles GET /api/v1/admin/index
func (h *AdminHandler) GetIndex(w http.ResponseWriter, r *http.Request) {
	stats := make(map[string]interface{})

	stats["index"] = h.index.Status()
	stats["store_type"] = h.storeType
	stats["cache_type"] = h.cacheType
	stats["uptime_seconds"] = int64(time.Since(h.startTime).Seconds())
	stats["server_time"] = time.Now().Format(time.RFC3339)

	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)
	stats["memory"] = map[string]interface{}{
		"alloc_mb":      float64(memStats.Alloc) / 1024 / 1024,
		"sys_mb":        float64(memStats.Sys) / 1024 / 1024,
		"heap_inuse_mb": float64(memStats.HeapInuse) / 1024 / 1024,
		"num_gc":        memStats.NumGC,
		"goroutines":    runtime.NumGoroutine(),
	}
	stats["runtime"] = map[string]interface{}{
		"go_version": runtime.Version(),
		"os":         runtime.GOOS,
		"arch":       runtime.GOARCH,
		"cpus":       runtime.NumCPU(),
	}

	response.OK(w, stats)
}

// RefreshIndex handles POST /api/v1/admin/index/refresh
func (h *AdminHandler) RefreshIndex(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	snap, err := h.refresher.RunNow(r.Context())
	if err != nil {
		response.Error(w, apierror.BadGateway("refresh failed: "+err.Error()))
		return
	}

	// Cached live prices predate the new snapshot.
	purged := false
	if h.lookups != nil {
		if err := h.lookups.Purge(r.Context()); err != nil {
			log.Printf("[Admin] Failed to purge lookup cache: %v", err)
		} else {
			purged = true
		}
	}

	response.OK(w, map[string]interface{}{
		"status":             "refreshed",
		"lookupCacheCleared": purged,
		"records":            snap.Len(),
		"fetchedAt":          snap.FetchedAt.UTC().Format(time.RFC3339),
		"duration_ms":        time.Since(start).Milliseconds(),
		"index":              h.index.Status(),
	})
}
