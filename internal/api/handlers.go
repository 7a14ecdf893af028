package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/agildata/fieldbase/internal/store"
	syncengine "github.com/agildata/fieldbase/internal/sync"
	"github.com/agildata/fieldbase/internal/types"
)

// snapshotBodyLimit caps uploaded snapshot files. Field datasets are
// small; anything past this is not a legitimate snapshot.
const snapshotBodyLimit = 64 << 20

// SyncController is the sync engine surface the API needs.
type SyncController interface {
	Status() syncengine.Status
	ForceSync(ctx context.Context) (*syncengine.RunResult, error)
}

// BackupService is the backup manager surface the API needs.
type BackupService interface {
	Create(ctx context.Context) (*store.BackupRecord, error)
	List(ctx context.Context) ([]store.BackupRecord, error)
	Delete(ctx context.Context, backupID string) error
	Restore(ctx context.Context, raw []byte, clearExisting bool) (*store.RestoreLogEntry, error)
	RestoreRecord(ctx context.Context, backupID string, clearExisting bool) (*store.RestoreLogEntry, error)
	RestoreHistory(ctx context.Context) ([]store.RestoreLogEntry, error)
}

// BackupScheduler is the auto-backup settings surface the API needs.
type BackupScheduler interface {
	Configure(ctx context.Context, enabled bool, interval time.Duration) error
	Settings(ctx context.Context) (enabled bool, interval time.Duration)
}

// StatsStore is the read-only store surface for health and stats.
type StatsStore interface {
	Counts(ctx context.Context) (map[types.Kind]int, error)
	QueueSize(ctx context.Context) (int, error)
	ListQueue(ctx context.Context) ([]syncengine.QueueEntry, error)
	GetLastSyncAt(ctx context.Context) (*time.Time, error)
}

// Handler implements the API handlers
type Handler struct {
	store     StatsStore
	engine    SyncController
	backups   BackupService
	scheduler BackupScheduler
	apiKey    string
	version   string
}

// NewHandler creates a new Handler.
func NewHandler(s StatsStore, e SyncController, b BackupService, sched BackupScheduler, apiKey, version string) *Handler {
	return &Handler{
		store:     s,
		engine:    e,
		backups:   b,
		scheduler: sched,
		apiKey:    apiKey,
		version:   version,
	}
}

// HealthResponse is the GET /health payload.
type HealthResponse struct {
	Status     string     `json:"status"`
	Version    string     `json:"version"`
	Online     bool       `json:"online"`
	QueueSize  int        `json:"queue_size"`
	LastSyncAt *time.Time `json:"last_sync_at,omitempty"`
}

// StatsResponse is the GET /stats payload.
type StatsResponse struct {
	Records   map[types.Kind]int `json:"records"`
	QueueSize int                `json:"queue_size"`
	Sync      syncengine.Status  `json:"sync"`
}

// Health returns the daemon health status
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	size, err := h.store.QueueSize(r.Context())
	if err != nil {
		MapDomainError(w, r, err)
		return
	}

	status := h.engine.Status()
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:     "healthy",
		Version:    h.version,
		Online:     status.Online,
		QueueSize:  size,
		LastSyncAt: status.LastSyncAt,
	})
}

// Stats handles GET /api/v1/stats
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	counts, err := h.store.Counts(r.Context())
	if err != nil {
		MapDomainError(w, r, err)
		return
	}
	size, err := h.store.QueueSize(r.Context())
	if err != nil {
		MapDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, StatsResponse{
		Records:   counts,
		QueueSize: size,
		Sync:      h.engine.Status(),
	})
}

// SyncStatus handles GET /api/v1/sync/status
func (h *Handler) SyncStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.engine.Status())
}

// SyncQueue handles GET /api/v1/sync/queue. Payloads are included; the
// queue is bounded by local edit volume, not worth paginating.
func (h *Handler) SyncQueue(w http.ResponseWriter, r *http.Request) {
	entries, err := h.store.ListQueue(r.Context())
	if err != nil {
		MapDomainError(w, r, err)
		return
	}
	if entries == nil {
		entries = []syncengine.QueueEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

// ForceSync handles POST /api/v1/sync
func (h *Handler) ForceSync(w http.ResponseWriter, r *http.Request) {
	result, err := h.engine.ForceSync(r.Context())
	if err != nil {
		MapDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// CreateBackup handles POST /api/v1/backups
func (h *Handler) CreateBackup(w http.ResponseWriter, r *http.Request) {
	rec, err := h.backups.Create(r.Context())
	if err != nil {
		slog.Error("backup creation failed", "error", err)
		MapDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

// ListBackups handles GET /api/v1/backups
func (h *Handler) ListBackups(w http.ResponseWriter, r *http.Request) {
	records, err := h.backups.List(r.Context())
	if err != nil {
		MapDomainError(w, r, err)
		return
	}
	if records == nil {
		records = []store.BackupRecord{}
	}
	writeJSON(w, http.StatusOK, records)
}

// DeleteBackup handles DELETE /api/v1/backups/{id}
func (h *Handler) DeleteBackup(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.backups.Delete(r.Context(), id); err != nil {
		MapDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RestoreBackup handles POST /api/v1/backups/{id}/restore
func (h *Handler) RestoreBackup(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	entry, err := h.backups.RestoreRecord(r.Context(), id, clearParam(r))
	if err != nil {
		slog.Error("restore failed", "error", err, "backup_id", id)
		MapDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

// RestoreUpload handles POST /api/v1/restore with a raw snapshot file
// as the request body.
func (h *Handler) RestoreUpload(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(io.LimitReader(r.Body, snapshotBodyLimit))
	if err != nil {
		WriteProblem(w, r, http.StatusBadRequest, fmt.Sprintf("Reading request body: %s", err.Error()))
		return
	}

	entry, err := h.backups.Restore(r.Context(), raw, clearParam(r))
	if err != nil {
		slog.Error("restore failed", "error", err)
		MapDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

// ScheduleResponse is the backup schedule payload. Interval uses Go
// duration syntax ("6h", "90m").
type ScheduleResponse struct {
	Enabled  bool   `json:"enabled"`
	Interval string `json:"interval"`
}

// ScheduleRequest is the PUT /api/v1/backups/schedule body. An empty
// interval keeps the persisted one.
type ScheduleRequest struct {
	Enabled  bool   `json:"enabled"`
	Interval string `json:"interval,omitempty"`
}

// GetSchedule handles GET /api/v1/backups/schedule
func (h *Handler) GetSchedule(w http.ResponseWriter, r *http.Request) {
	enabled, interval := h.scheduler.Settings(r.Context())
	writeJSON(w, http.StatusOK, ScheduleResponse{
		Enabled:  enabled,
		Interval: interval.String(),
	})
}

// UpdateSchedule handles PUT /api/v1/backups/schedule
func (h *Handler) UpdateSchedule(w http.ResponseWriter, r *http.Request) {
	var req ScheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteProblem(w, r, http.StatusBadRequest, fmt.Sprintf("Decoding request body: %s", err.Error()))
		return
	}

	var interval time.Duration
	if req.Interval != "" {
		d, err := time.ParseDuration(req.Interval)
		if err != nil || d <= 0 {
			WriteProblem(w, r, http.StatusBadRequest, fmt.Sprintf("Invalid interval %q", req.Interval))
			return
		}
		interval = d
	}

	if err := h.scheduler.Configure(r.Context(), req.Enabled, interval); err != nil {
		MapDomainError(w, r, err)
		return
	}

	enabled, effective := h.scheduler.Settings(r.Context())
	writeJSON(w, http.StatusOK, ScheduleResponse{
		Enabled:  enabled,
		Interval: effective.String(),
	})
}

// RestoreHistory handles GET /api/v1/restore/log
func (h *Handler) RestoreHistory(w http.ResponseWriter, r *http.Request) {
	entries, err := h.backups.RestoreHistory(r.Context())
	if err != nil {
		MapDomainError(w, r, err)
		return
	}
	if entries == nil {
		entries = []store.RestoreLogEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

// clearParam reads the ?clear query flag on restore endpoints.
// Restores replace existing data by default.
func clearParam(r *http.Request) bool {
	v := r.URL.Query().Get("clear")
	return v == "" || v == "true" || v == "1"
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}
