package query_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"webrag/features/query"
	"webrag/internal/index"
	"webrag/internal/pipeline"
	"webrag/internal/retrieval"
)

// MockRetriever
type MockRetriever struct {
	mock.Mock
}

func (m *MockRetriever) FindRelevantContext(ctx context.Context, q string, topK int) (*retrieval.Result, error) {
	args := m.Called(ctx, q, topK)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*retrieval.Result), args.Error(1)
}

func (m *MockRetriever) SearchByKeywords(ctx context.Context, keywords []string, topK int) (*retrieval.Result, error) {
	args := m.Called(ctx, keywords, topK)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*retrieval.Result), args.Error(1)
}

func (m *MockRetriever) GetSimilarDocuments(ctx context.Context, documentID string, topK int) ([]retrieval.SearchHit, error) {
	args := m.Called(ctx, documentID, topK)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]retrieval.SearchHit), args.Error(1)
}

func (m *MockRetriever) CollectionInfo(ctx context.Context) (*retrieval.CollectionInfo, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*retrieval.CollectionInfo), args.Error(1)
}

// MockAsker
type MockAsker struct {
	mock.Mock
}

func (m *MockAsker) Ask(ctx context.Context, q string, topK int) pipeline.Answer {
	args := m.Called(ctx, q, topK)
	return args.Get(0).(pipeline.Answer)
}

func TestSearch(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		retriever := new(MockRetriever)
		h := query.NewHandler(retriever, new(MockAsker))

		retriever.On("FindRelevantContext", mock.Anything, "what is go", 3).
			Return(&retrieval.Result{
				Query:   "what is go",
				Context: "[Go]\ntext",
				Sources: []string{"https://a.com"},
			}, nil).Once()

		req := httptest.NewRequest(http.MethodPost, "/search",
			strings.NewReader(`{"query": "what is go", "top_k": 3}`))
		rec := httptest.NewRecorder()
		h.Search(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		var body retrieval.Result
		assert.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
		assert.Equal(t, "what is go", body.Query)
		assert.Equal(t, []string{"https://a.com"}, body.Sources)
	})

	t.Run("Invalid Body", func(t *testing.T) {
		h := query.NewHandler(new(MockRetriever), new(MockAsker))

		req := httptest.NewRequest(http.MethodPost, "/search", strings.NewReader("{not json"))
		rec := httptest.NewRecorder()
		h.Search(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), "INVALID_BODY")
	})

	t.Run("Empty Query", func(t *testing.T) {
		retriever := new(MockRetriever)
		h := query.NewHandler(retriever, new(MockAsker))

		retriever.On("FindRelevantContext", mock.Anything, "", 0).
			Return(nil, retrieval.ErrEmptyQuery).Once()

		req := httptest.NewRequest(http.MethodPost, "/search", strings.NewReader(`{"query": ""}`))
		rec := httptest.NewRecorder()
		h.Search(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), "EMPTY_QUERY")
	})

	t.Run("Backend Failure", func(t *testing.T) {
		retriever := new(MockRetriever)
		h := query.NewHandler(retriever, new(MockAsker))

		retriever.On("FindRelevantContext", mock.Anything, "q", 0).
			Return(nil, errors.New("index query: connection refused")).Once()

		req := httptest.NewRequest(http.MethodPost, "/search", strings.NewReader(`{"query": "q"}`))
		rec := httptest.NewRecorder()
		h.Search(rec, req)

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.Contains(t, rec.Body.String(), "SEARCH_FAILED")
	})
}

func TestSearchKeywords(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		retriever := new(MockRetriever)
		h := query.NewHandler(retriever, new(MockAsker))

		retriever.On("SearchByKeywords", mock.Anything, []string{"go", "channels"}, 0).
			Return(&retrieval.Result{Query: "go channels"}, nil).Once()

		req := httptest.NewRequest(http.MethodPost, "/search/keywords",
			strings.NewReader(`{"keywords": ["go", "channels"]}`))
		rec := httptest.NewRecorder()
		h.SearchKeywords(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("No Keywords", func(t *testing.T) {
		retriever := new(MockRetriever)
		h := query.NewHandler(retriever, new(MockAsker))

		retriever.On("SearchByKeywords", mock.Anything, mock.Anything, 0).
			Return(nil, retrieval.ErrNoKeywords).Once()

		req := httptest.NewRequest(http.MethodPost, "/search/keywords", strings.NewReader(`{}`))
		rec := httptest.NewRecorder()
		h.SearchKeywords(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), "NO_KEYWORDS")
	})
}

func TestAsk(t *testing.T) {
	t.Run("Always Returns 200 With Answer", func(t *testing.T) {
		asker := new(MockAsker)
		h := query.NewHandler(new(MockRetriever), asker)

		asker.On("Ask", mock.Anything, "what is go", 0).
			Return(pipeline.Answer{
				Text:    "Go is a language.",
				Success: true,
				Query:   "what is go",
			}).Once()

		req := httptest.NewRequest(http.MethodPost, "/ask", strings.NewReader(`{"query": "what is go"}`))
		rec := httptest.NewRecorder()
		h.Ask(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		var answer pipeline.Answer
		assert.NoError(t, json.NewDecoder(rec.Body).Decode(&answer))
		assert.True(t, answer.Success)
		assert.Equal(t, "Go is a language.", answer.Text)
	})

	t.Run("Folded Error Still 200", func(t *testing.T) {
		asker := new(MockAsker)
		h := query.NewHandler(new(MockRetriever), asker)

		asker.On("Ask", mock.Anything, "q", 0).
			Return(pipeline.Answer{
				Text:    "Search error: index query: connection refused",
				Success: false,
			}).Once()

		req := httptest.NewRequest(http.MethodPost, "/ask", strings.NewReader(`{"query": "q"}`))
		rec := httptest.NewRecorder()
		h.Ask(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		var answer pipeline.Answer
		assert.NoError(t, json.NewDecoder(rec.Body).Decode(&answer))
		assert.False(t, answer.Success)
	})
}

func TestSimilar(t *testing.T) {
	newSimilarRequest := func(id, query string) *http.Request {
		req := httptest.NewRequest(http.MethodGet, "/similar/"+id+query, nil)
		req.SetPathValue("id", id)
		return req
	}

	t.Run("Success", func(t *testing.T) {
		retriever := new(MockRetriever)
		h := query.NewHandler(retriever, new(MockAsker))

		retriever.On("GetSimilarDocuments", mock.Anything, "https://a.com_0", 3).
			Return([]retrieval.SearchHit{
				{ID: "https://b.com_0", Rank: 1},
				{ID: "https://c.com_0", Rank: 2},
			}, nil).Once()

		rec := httptest.NewRecorder()
		h.Similar(rec, newSimilarRequest("https://a.com_0", "?top_k=3"))

		assert.Equal(t, http.StatusOK, rec.Code)
		var body struct {
			SimilarDocuments []retrieval.SearchHit `json:"similar_documents"`
			TotalFound       int                   `json:"total_found"`
		}
		assert.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
		assert.Equal(t, 2, body.TotalFound)
		assert.Len(t, body.SimilarDocuments, 2)
	})

	t.Run("Not Found", func(t *testing.T) {
		retriever := new(MockRetriever)
		h := query.NewHandler(retriever, new(MockAsker))

		retriever.On("GetSimilarDocuments", mock.Anything, "missing_0", 0).
			Return(nil, fmt.Errorf("chunk %q: %w", "missing_0", index.ErrNotFound)).Once()

		rec := httptest.NewRecorder()
		h.Similar(rec, newSimilarRequest("missing_0", ""))

		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Contains(t, rec.Body.String(), "NOT_FOUND")
	})

	t.Run("Backend Failure", func(t *testing.T) {
		retriever := new(MockRetriever)
		h := query.NewHandler(retriever, new(MockAsker))

		retriever.On("GetSimilarDocuments", mock.Anything, "a_0", 0).
			Return(nil, errors.New("weaviate down")).Once()

		rec := httptest.NewRecorder()
		h.Similar(rec, newSimilarRequest("a_0", ""))

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})
}

func TestInfo(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		retriever := new(MockRetriever)
		h := query.NewHandler(retriever, new(MockAsker))

		retriever.On("CollectionInfo", mock.Anything).
			Return(&retrieval.CollectionInfo{
				TotalChunks: 42,
				SampleURLs:  []string{"https://a.com"},
				Name:        "PageChunk",
			}, nil).Once()

		req := httptest.NewRequest(http.MethodGet, "/info", nil)
		rec := httptest.NewRecorder()
		h.Info(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		var info retrieval.CollectionInfo
		assert.NoError(t, json.NewDecoder(rec.Body).Decode(&info))
		assert.Equal(t, 42, info.TotalChunks)
		assert.Equal(t, "PageChunk", info.Name)
	})

	t.Run("Backend Failure", func(t *testing.T) {
		retriever := new(MockRetriever)
		h := query.NewHandler(retriever, new(MockAsker))

		retriever.On("CollectionInfo", mock.Anything).
			Return(nil, errors.New("aggregate failed")).Once()

		req := httptest.NewRequest(http.MethodGet, "/info", nil)
		rec := httptest.NewRecorder()
		h.Info(rec, req)

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})
}
