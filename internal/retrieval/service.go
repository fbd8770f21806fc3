package retrieval

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"selflearning/apps/worker/internal/middleware"
)

const (
	DefaultTopK = 5
	MaxTopK     = 10
)

const (
	noLessonContent   = "No relevant content found for lesson data."
	noQuestionContent = "No relevant content found for this question."
	sourceSeparator   = "\n\n---\n\n"
)

var ErrEmptyQuestion = errors.New("question is required")

type Result struct {
	Content     string  `json:"content"`
	Score       float32 `json:"score"`
	LessonTitle string  `json:"lessonTitle,omitempty"`
	ChunkIndex  int     `json:"chunkIndex"`
	SourceType  string  `json:"sourceType,omitempty"`
}

// Context is the prompt-ready text plus the chunks it was built from.
type Context struct {
	Text    string   `json:"context"`
	Sources []Result `json:"sources"`
}

type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

type VectorStore interface {
	Search(ctx context.Context, lessonID string, vector []float32, limit int) ([]Result, error)
	CountChunks(ctx context.Context, lessonID string) (int, error)
}

type Service struct {
	embedder Embedder
	store    VectorStore
	logger   *QueryLogger
	minScore float32
}

// NewService builds a retriever. Chunks scoring below minScore are dropped;
// a nil logger disables query logging.
func NewService(e Embedder, s VectorStore, l *QueryLogger, minScore float32) *Service {
	return &Service{embedder: e, store: s, logger: l, minScore: minScore}
}

// Retrieve embeds the question and returns the closest chunks of one lesson.
// topK outside (0, MaxTopK] falls back to DefaultTopK or is capped.
func (s *Service) Retrieve(ctx context.Context, lessonID, question string, topK int) (*Context, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, ErrEmptyQuestion
	}
	switch {
	case topK <= 0:
		topK = DefaultTopK
	case topK > MaxTopK:
		topK = MaxTopK
	}

	start := time.Now()
	out, stats, err := s.retrieve(ctx, lessonID, question, topK)
	if err != nil {
		return nil, err
	}

	if s.logger != nil {
		s.logger.Record(lessonID, question, topK, s.minScore, stats, time.Since(start), middleware.GetCorrelationID(ctx))
	}
	return out, nil
}

func (s *Service) retrieve(ctx context.Context, lessonID, question string, topK int) (*Context, searchStats, error) {
	var stats searchStats

	n, err := s.store.CountChunks(ctx, lessonID)
	if err != nil {
		return nil, stats, fmt.Errorf("count lesson chunks: %w", err)
	}
	if n == 0 {
		return &Context{Text: noLessonContent, Sources: []Result{}}, stats, nil
	}
	stats.embedded = true

	vec, err := s.embedder.Embed(ctx, question)
	if err != nil {
		return nil, stats, fmt.Errorf("embed question: %w", err)
	}

	found, err := s.store.Search(ctx, lessonID, vec, topK)
	if err != nil {
		return nil, stats, fmt.Errorf("search lesson chunks: %w", err)
	}
	stats.candidates = len(found)

	sources := make([]Result, 0, len(found))
	for _, r := range found {
		if r.Score > stats.topScore {
			stats.topScore = r.Score
		}
		if r.Score >= s.minScore {
			sources = append(sources, r)
		}
	}
	stats.kept = len(sources)
	if len(sources) == 0 {
		return &Context{Text: noQuestionContent, Sources: sources}, stats, nil
	}

	return &Context{Text: Format(sources), Sources: sources}, stats, nil
}

// Format renders sources as numbered blocks separated by rules.
func Format(sources []Result) string {
	blocks := make([]string, len(sources))
	for i, r := range sources {
		blocks[i] = fmt.Sprintf("[Source %d: %s]\n%s", i+1, r.LessonTitle, r.Content)
	}
	return strings.Join(blocks, sourceSeparator)
}
