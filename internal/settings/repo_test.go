package settings_test

import (
	"context"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"selflearning/apps/worker/internal/settings"
)

func TestPostgresRepo_Get(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := settings.NewPostgresRepo(db)

	t.Run("Success", func(t *testing.T) {
		rows := sqlmock.NewRows([]string{"gemini_api_key", "embedding_model"}).
			AddRow("key1", "text-embedding-004")

		mock.ExpectQuery(regexp.QuoteMeta("SELECT gemini_api_key, embedding_model FROM settings WHERE id = 1")).
			WillReturnRows(rows)

		s, err := repo.Get(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "key1", s.GeminiAPIKey)
		assert.Equal(t, "text-embedding-004", s.EmbeddingModel)
	})

	t.Run("Error", func(t *testing.T) {
		mock.ExpectQuery(regexp.QuoteMeta("SELECT gemini_api_key")).
			WillReturnError(sqlmock.ErrCancelled)

		s, err := repo.Get(context.Background())
		assert.ErrorIs(t, err, sqlmock.ErrCancelled)
		assert.Nil(t, s)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepo_Update(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := settings.NewPostgresRepo(db)
	s := &settings.Settings{GeminiAPIKey: "k2", EmbeddingModel: "gemini-embedding-001"}

	mock.ExpectExec(regexp.QuoteMeta("UPDATE settings SET gemini_api_key = $1, embedding_model = $2, updated_at = NOW() WHERE id = 1")).
		WithArgs(s.GeminiAPIKey, s.EmbeddingModel).
		WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, repo.Update(context.Background(), s))
	assert.NoError(t, mock.ExpectationsWereMet())
}
