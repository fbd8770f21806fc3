package lesson

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// PostgresSource reads lessons from the platform's lessons table.
type PostgresSource struct {
	db *sql.DB
}

func NewPostgresSource(db *sql.DB) *PostgresSource {
	return &PostgresSource{db: db}
}

func (s *PostgresSource) GetLesson(ctx context.Context, lessonID string) (*Lesson, error) {
	var title string
	var content []byte
	err := s.db.QueryRowContext(ctx, `SELECT title, content FROM lessons WHERE lesson_id = $1`, lessonID).
		Scan(&title, &content)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, lessonID)
	}
	if err != nil {
		return nil, fmt.Errorf("get lesson: %w", err)
	}

	articles, err := ParseContent(content)
	if err != nil {
		return nil, fmt.Errorf("lesson %s: %w", lessonID, err)
	}
	return &Lesson{ID: lessonID, Title: title, Articles: articles}, nil
}
