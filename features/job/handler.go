package job

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"selflearning/apps/worker/internal/events"
	"selflearning/apps/worker/internal/middleware"
)

const DefaultKeepAlive = 15 * time.Second

// Stream is the read side of the event hub used by the live endpoint.
type Stream interface {
	GetLast(jobID string) (events.Event, bool)
	Subscribe(jobID string, l events.Listener) func()
}

type Handler struct {
	service   *Service
	stream    Stream
	keepAlive time.Duration
}

func NewHandler(s *Service, stream Stream, keepAlive time.Duration) *Handler {
	if keepAlive <= 0 {
		keepAlive = DefaultKeepAlive
	}
	return &Handler{service: s, stream: stream, keepAlive: keepAlive}
}

type enqueueRequest struct {
	JobType string          `json:"jobType"`
	Payload json.RawMessage `json:"payload"`
}

func (h *Handler) Enqueue(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req enqueueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(ctx, w, "VALIDATION_ERROR", "Invalid request body", http.StatusBadRequest)
		return
	}

	j, err := h.service.Enqueue(ctx, req.JobType, req.Payload)
	if err != nil {
		if errors.Is(err, ErrInvalidJob) {
			h.writeError(ctx, w, "VALIDATION_ERROR", err.Error(), http.StatusBadRequest)
			return
		}
		slog.ErrorContext(ctx, "failed to enqueue job", "error", err, "job_type", req.JobType)
		h.writeError(ctx, w, "INTERNAL_ERROR", err.Error(), http.StatusInternalServerError)
		return
	}

	h.writeJSON(ctx, w, http.StatusAccepted, map[string]interface{}{"data": j})
}

// List returns failed jobs; ?dead=true narrows to dead-lettered jobs, ?dead=false to retryable ones.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	f := Filter{Status: StatusFailed}
	switch r.URL.Query().Get("dead") {
	case "":
	case "true":
		f = DeadOnly()
	case "false":
		f = Retryable()
	default:
		h.writeError(ctx, w, "VALIDATION_ERROR", "dead must be true or false", http.StatusBadRequest)
		return
	}

	slog.InfoContext(ctx, "listing failed jobs", "dead", r.URL.Query().Get("dead"))

	jobs, err := h.service.List(ctx, f)
	if err != nil {
		slog.ErrorContext(ctx, "failed to list jobs", "error", err)
		h.writeError(ctx, w, "INTERNAL_ERROR", err.Error(), http.StatusInternalServerError)
		return
	}
	if jobs == nil {
		jobs = []Job{}
	}

	h.writeJSON(ctx, w, http.StatusOK, map[string]interface{}{
		"data": jobs,
		"meta": map[string]int{"count": len(jobs)},
	})
}

func (h *Handler) Retry(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := r.PathValue("id")

	slog.InfoContext(ctx, "retrying job", "id", id)

	if err := h.service.Retry(ctx, id); err != nil {
		h.writeServiceError(ctx, w, "failed to retry job", id, err)
		return
	}
	h.writeJSON(ctx, w, http.StatusOK, map[string]interface{}{"data": "job retried"})
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := r.PathValue("id")

	if err := h.service.Delete(ctx, id); err != nil {
		h.writeServiceError(ctx, w, "failed to delete job", id, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) Purge(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	n, err := h.service.Purge(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "failed to purge dead jobs", "error", err)
		h.writeError(ctx, w, "INTERNAL_ERROR", err.Error(), http.StatusInternalServerError)
		return
	}
	h.writeJSON(ctx, w, http.StatusOK, map[string]interface{}{"data": map[string]int64{"purged": n}})
}

// Events streams a job's lifecycle as server-sent events until the client goes away.
func (h *Handler) Events(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := r.PathValue("id")

	flusher, ok := w.(http.Flusher)
	if !ok {
		h.writeError(ctx, w, "INTERNAL_ERROR", "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	first, seen := h.stream.GetLast(id)
	if !seen {
		first = events.Ready(id)
	}
	h.writeEvent(w, first)
	flusher.Flush()

	msgs := make(chan events.Event, 16)
	unsubscribe := h.stream.Subscribe(id, func(ev events.Event) {
		select {
		case msgs <- ev:
		default:
			slog.WarnContext(ctx, "job event subscriber is lagging, dropping event", "job_id", id, "type", ev.Type)
		}
	})
	defer unsubscribe()

	// Covers a publish that landed between the first read and Subscribe.
	if last, ok := h.stream.GetLast(id); ok && last != first {
		h.writeEvent(w, last)
		flusher.Flush()
	}

	slog.InfoContext(ctx, "job event stream opened", "job_id", id)

	ticker := time.NewTicker(h.keepAlive)
	defer ticker.Stop()

	for {
		select {
		case ev := <-msgs:
			h.writeEvent(w, ev)
			flusher.Flush()
		case <-ticker.C:
			fmt.Fprint(w, ": keepalive\n\n")
			flusher.Flush()
		case <-ctx.Done():
			slog.InfoContext(ctx, "job event stream closed", "job_id", id)
			return
		}
	}
}

func (h *Handler) writeEvent(w http.ResponseWriter, ev events.Event) {
	body, err := json.Marshal(ev)
	if err != nil {
		slog.Error("failed to marshal job event", "error", err)
		return
	}
	fmt.Fprintf(w, "data: %s\n\n", body)
}

func (h *Handler) writeServiceError(ctx context.Context, w http.ResponseWriter, msg, id string, err error) {
	if errors.Is(err, ErrNotFound) {
		h.writeError(ctx, w, "NOT_FOUND", "Job not found", http.StatusNotFound)
		return
	}
	slog.ErrorContext(ctx, msg, "id", id, "error", err)
	h.writeError(ctx, w, "INTERNAL_ERROR", err.Error(), http.StatusInternalServerError)
}

func (h *Handler) writeJSON(ctx context.Context, w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
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
