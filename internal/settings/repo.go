package settings

import (
	"context"
	"database/sql"
	"fmt"
)

type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

func (r *PostgresRepo) Get(ctx context.Context) (*Settings, error) {
	s := &Settings{}
	query := `SELECT gemini_api_key, embedding_model FROM settings WHERE id = 1`
	if err := r.db.QueryRowContext(ctx, query).Scan(&s.GeminiAPIKey, &s.EmbeddingModel); err != nil {
		return nil, fmt.Errorf("get settings: %w", err)
	}
	return s, nil
}

func (r *PostgresRepo) Update(ctx context.Context, s *Settings) error {
	query := `UPDATE settings SET gemini_api_key = $1, embedding_model = $2, updated_at = NOW() WHERE id = 1`
	if _, err := r.db.ExecContext(ctx, query, s.GeminiAPIKey, s.EmbeddingModel); err != nil {
		return fmt.Errorf("update settings: %w", err)
	}
	return nil
}
