package settings_test

import (
	"context"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"

	"webrag/internal/settings"
)

func TestPostgresRepo_Get(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	repo := settings.NewPostgresRepo(db)

	t.Run("Success", func(t *testing.T) {
		rows := sqlmock.NewRows([]string{"id", "llm_provider", "deepseek_api_key", "openai_api_key", "search_top_k"}).
			AddRow(1, "deepseek", "key1", "key2", 10)

		mock.ExpectQuery(regexp.QuoteMeta("SELECT id, llm_provider, deepseek_api_key, openai_api_key, search_top_k FROM settings WHERE id = 1")).
			WillReturnRows(rows)

		s, err := repo.Get(context.Background())
		assert.NoError(t, err)
		assert.NotNil(t, s)
		assert.Equal(t, "deepseek", s.LLMProvider)
		assert.Equal(t, "key1", s.DeepSeekAPIKey)
		assert.Equal(t, "key2", s.OpenAIAPIKey)
		assert.Equal(t, 10, s.SearchTopK)
	})

	t.Run("Error", func(t *testing.T) {
		mock.ExpectQuery(regexp.QuoteMeta("SELECT id")).
			WillReturnError(sqlmock.ErrCancelled)

		s, err := repo.Get(context.Background())
		assert.Error(t, err)
		assert.Nil(t, s)
	})
}

func TestPostgresRepo_Update(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	repo := settings.NewPostgresRepo(db)

	t.Run("Success", func(t *testing.T) {
		s := &settings.Settings{
			LLMProvider:    "openai",
			DeepSeekAPIKey: "k1",
			OpenAIAPIKey:   "k2",
			SearchTopK:     20,
		}

		mock.ExpectExec(regexp.QuoteMeta("UPDATE settings")).
			WithArgs(s.LLMProvider, s.DeepSeekAPIKey, s.OpenAIAPIKey, s.SearchTopK).
			WillReturnResult(sqlmock.NewResult(1, 1))

		err := repo.Update(context.Background(), s)
		assert.NoError(t, err)
	})
}
