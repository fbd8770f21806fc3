package retrieval

import (
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Outcome classifies a retrieval for offline tuning of minScore and topK.
type Outcome string

const (
	OutcomeAnswered       Outcome = "answered"
	OutcomeNotEmbedded    Outcome = "lesson_not_embedded"
	OutcomeBelowThreshold Outcome = "below_threshold"
)

// QueryLogEntry is one line of the retrieval log. Candidates counts the
// chunks the vector store returned before the score filter.
type QueryLogEntry struct {
	Timestamp     time.Time `json:"timestamp"`
	LessonID      string    `json:"lesson_id"`
	Query         string    `json:"query"`
	TopK          int       `json:"top_k"`
	Candidates    int       `json:"candidates"`
	NumResults    int       `json:"num_results"`
	TopScore      float32   `json:"top_score"`
	MinScore      float32   `json:"min_score"`
	Outcome       Outcome   `json:"outcome"`
	LatencyMs     int64     `json:"latency_ms"`
	CorrelationID string    `json:"correlation_id,omitempty"`
}

// QueryLogger appends one JSON line per lesson retrieval.
type QueryLogger struct {
	mu  sync.Mutex
	enc *json.Encoder
	log *slog.Logger
}

func NewQueryLogger(w io.Writer) *QueryLogger {
	return &QueryLogger{
		enc: json.NewEncoder(w),
		log: slog.With("component", "retrieval_query_log"),
	}
}

// NewFileQueryLogger appends to path, creating its directory.
func NewFileQueryLogger(path string) (*QueryLogger, io.Closer, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, nil, err
	}

	f, err := os.OpenFile(filepath.Clean(path), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600) // #nosec G304 -- path comes from config
	if err != nil {
		return nil, nil, err
	}
	return NewQueryLogger(f), f, nil
}

// Record builds the entry for a finished retrieval and appends it.
func (l *QueryLogger) Record(lessonID, question string, topK int, minScore float32, stats searchStats, elapsed time.Duration, correlationID string) {
	e := QueryLogEntry{
		LessonID:      lessonID,
		Query:         question,
		TopK:          topK,
		Candidates:    stats.candidates,
		NumResults:    stats.kept,
		TopScore:      stats.topScore,
		MinScore:      minScore,
		Outcome:       stats.outcome(),
		LatencyMs:     elapsed.Milliseconds(),
		CorrelationID: correlationID,
	}
	l.Log(e)
}

// Log stamps e and writes it. Write failures are reported, never returned.
func (l *QueryLogger) Log(e QueryLogEntry) {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}

	l.mu.Lock()
	err := l.enc.Encode(e)
	l.mu.Unlock()
	if err != nil {
		l.log.Error("failed to append retrieval log entry", "lesson_id", e.LessonID, "error", err)
	}
}

// searchStats summarises one pass through the vector store.
type searchStats struct {
	embedded   bool
	candidates int
	kept       int
	topScore   float32
}

func (s searchStats) outcome() Outcome {
	switch {
	case !s.embedded:
		return OutcomeNotEmbedded
	case s.kept == 0:
		return OutcomeBelowThreshold
	default:
		return OutcomeAnswered
	}
}
