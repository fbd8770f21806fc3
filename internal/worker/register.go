package worker

import (
	"selflearning/apps/worker/internal/pool"
	"selflearning/apps/worker/internal/tasks"
)

// Register adds the worker's job types to r.
func Register(r *tasks.Registry, embedder *LessonEmbedder, remover *LessonRemover) error {
	if err := r.Register(TypeEmbedLesson, pool.CategoryEmbedding, embedder); err != nil {
		return err
	}
	if err := r.Register(TypeRemoveLesson, pool.CategoryEmbedding, remover); err != nil {
		return err
	}
	return r.Register(TypeHelloWorld, pool.CategoryGeneral, tasks.HandlerFunc(HelloWorld))
}
