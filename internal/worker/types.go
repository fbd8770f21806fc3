package worker

import (
	"context"

	"selflearning/apps/worker/features/lesson"
)

// Chunk is one embedded piece of a lesson as stored in the vector store.
type Chunk struct {
	LessonID    string
	LessonTitle string
	Content     string
	ChunkIndex  int
	SourceType  string
	Vector      []float32
}

type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

type VectorStore interface {
	StoreChunk(ctx context.Context, chunk Chunk) error
	DeleteLessonChunks(ctx context.Context, lessonID string) error
}

type LessonSource interface {
	GetLesson(ctx context.Context, lessonID string) (*lesson.Lesson, error)
}

// LessonPayload is the payload of embedLesson and removeLesson jobs.
type LessonPayload struct {
	LessonID string `json:"lesson_id"`
}

const (
	TypeEmbedLesson  = "embedLesson"
	TypeRemoveLesson = "removeLesson"
	TypeHelloWorld   = "helloWorld"
)

// KnownTypes validates job types without building their handlers, for
// processes such as the CLI that enqueue but never execute.
type KnownTypes struct{}

func (KnownTypes) Has(jobType string) bool {
	switch jobType {
	case TypeEmbedLesson, TypeRemoveLesson, TypeHelloWorld:
		return true
	}
	return false
}
