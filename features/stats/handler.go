package stats

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"selflearning/apps/worker/features/job"
	"selflearning/apps/worker/internal/middleware"
	"selflearning/apps/worker/internal/pool"
)

type JobCounter interface {
	Counts(ctx context.Context) (job.Counts, error)
}

type PoolStats interface {
	Stats() map[pool.Category]*pool.Stats
}

type ChunkCounter interface {
	CountChunks(ctx context.Context, lessonID string) (int, error)
}

type Handler struct {
	jobs   JobCounter
	pools  PoolStats
	chunks ChunkCounter
}

// NewHandler builds the stats handler. pools is nil in API-only processes,
// which do not run workers.
func NewHandler(jobs JobCounter, pools PoolStats, chunks ChunkCounter) *Handler {
	return &Handler{jobs: jobs, pools: pools, chunks: chunks}
}

type StatsResponse struct {
	Jobs   job.Counts                    `json:"jobs"`
	Chunks int                           `json:"chunks"`
	Pools  map[pool.Category]*pool.Stats `json:"pools,omitempty"`
}

func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	counts, err := h.jobs.Counts(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "failed to count jobs", "error", err)
		h.writeError(ctx, w, "INTERNAL_ERROR", "failed to count jobs", http.StatusInternalServerError)
		return
	}

	chunks, err := h.chunks.CountChunks(ctx, "")
	if err != nil {
		slog.ErrorContext(ctx, "failed to count chunks", "error", err)
		h.writeError(ctx, w, "INTERNAL_ERROR", "failed to count chunks", http.StatusInternalServerError)
		return
	}

	resp := StatsResponse{Jobs: counts, Chunks: chunks}
	if h.pools != nil {
		resp.Pools = h.pools.Stats()
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]interface{}{"data": resp}); err != nil {
		slog.ErrorContext(ctx, "failed to encode response", "error", err)
	}
}

func (h *Handler) writeError(ctx context.Context, w http.ResponseWriter, code, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	resp := map[string]interface{}{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
		"correlationId": middleware.GetCorrelationID(ctx),
	}

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("failed to encode error response", "error", err)
	}
}
