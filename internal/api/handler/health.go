package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"runtime"
	"time"

	"github.com/iconidentify/grabbot/internal/domain"
)

var startTime = time.Now()

// UserTracker reports how many users hold rate limit state.
type UserTracker interface {
	Users() int
}

// FetchGauge reports download slot usage.
type FetchGauge interface {
	InFlight() int64
	MaxConcurrent() int
}

// HealthHandler handles health check and stats endpoints.
type HealthHandler struct {
	downloadsRoot string
	users         UserTracker
	fetches       FetchGauge
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(downloadsRoot string, users UserTracker, fetches FetchGauge) *HealthHandler {
	return &HealthHandler{
		downloadsRoot: downloadsRoot,
		users:         users,
		fetches:       fetches,
	}
}

// HealthResponse is the JSON response for health checks.
type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Error     string `json:"error,omitempty"`
}

// Live handles GET /health - liveness check.
func (h *HealthHandler) Live(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(HealthResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// Ready handles GET /ready - readiness check. The downloads root must be
// writable.
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if err := checkWritable(h.downloadsRoot); err != nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		json.NewEncoder(w).Encode(HealthResponse{
			Status:    "error",
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			Error:     err.Error(),
		})
		return
	}

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(HealthResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

func checkWritable(dir string) error {
	f, err := os.CreateTemp(dir, ".ready-*")
	if err != nil {
		return fmt.Errorf("downloads root not writable: %w", err)
	}
	name := f.Name()
	f.Close()
	return os.Remove(name)
}

// SystemStats contains runtime and storage statistics.
type SystemStats struct {
	Uptime         int64   `json:"uptime_seconds"`
	UptimeHuman    string  `json:"uptime_human"`
	MemAllocMB     int64   `json:"mem_alloc_mb"`
	MemSysMB       int64   `json:"mem_sys_mb"`
	NumGoroutines  int     `json:"num_goroutines"`
	NumCPU         int     `json:"num_cpu"`
	TrackedUsers   int     `json:"tracked_users"`
	FetchesActive  int64   `json:"fetches_in_flight"`
	FetchSlots     int     `json:"fetch_slots"`
	DiskUsedBytes  int64   `json:"disk_used_bytes"`
	DiskFreeBytes  int64   `json:"disk_free_bytes"`
	DiskTotalBytes int64   `json:"disk_total_bytes"`
	DiskUsedPct    float64 `json:"disk_used_pct"`
	DownloadsRoot  string  `json:"downloads_root"`
}

// Stats handles GET /api/v1/stats - system statistics.
func (h *HealthHandler) Stats(w http.ResponseWriter, r *http.Request) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	uptime := time.Since(startTime)

	stats := SystemStats{
		Uptime:        int64(uptime.Seconds()),
		UptimeHuman:   formatUptime(uptime),
		MemAllocMB:    int64(m.Alloc / 1024 / 1024),
		MemSysMB:      int64(m.Sys / 1024 / 1024),
		NumGoroutines: runtime.NumGoroutine(),
		NumCPU:        runtime.NumCPU(),
		DownloadsRoot: h.downloadsRoot,
	}
	if h.users != nil {
		stats.TrackedUsers = h.users.Users()
	}
	if h.fetches != nil {
		stats.FetchesActive = h.fetches.InFlight()
		stats.FetchSlots = h.fetches.MaxConcurrent()
	}

	stats.DiskTotalBytes, stats.DiskFreeBytes, stats.DiskUsedBytes, stats.DiskUsedPct = getDiskStats(h.downloadsRoot)

	writeJSON(w, http.StatusOK, stats)
}

func formatUptime(d time.Duration) string {
	days := int(d.Hours() / 24)
	hours := int(d.Hours()) % 24
	mins := int(d.Minutes()) % 60

	if days > 0 {
		return fmt.Sprintf("%dd %dh %dm", days, hours, mins)
	}
	if hours > 0 {
		return fmt.Sprintf("%dh %dm", hours, mins)
	}
	return fmt.Sprintf("%dm", mins)
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// userIDParam validates a user id supplied by an API client.
func userIDParam(s string) (domain.UserID, bool) {
	if s == "" || len(s) > 128 {
		return "", false
	}
	return domain.UserID(s), true
}
