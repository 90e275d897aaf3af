package worker_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/nsqio/go-nsq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"webrag/internal/indexer"
	"webrag/internal/middleware"
	"webrag/internal/worker"
)

// MockPageIndexer
type MockPageIndexer struct {
	mock.Mock
}

func (m *MockPageIndexer) IndexPage(ctx context.Context, page indexer.Page) (int, error) {
	args := m.Called(ctx, page)
	return args.Int(0), args.Error(1)
}

func newMessage(body []byte) *nsq.Message {
	return nsq.NewMessage(nsq.MessageID{}, body)
}

func TestIndexConsumer_HandleMessage(t *testing.T) {
	t.Run("Empty Body Is Dropped", func(t *testing.T) {
		ix := new(MockPageIndexer)
		consumer := worker.NewIndexConsumer(ix)

		err := consumer.HandleMessage(newMessage(nil))
		assert.NoError(t, err)
		ix.AssertNotCalled(t, "IndexPage", mock.Anything, mock.Anything)
	})

	t.Run("Poison Pill Is Not Requeued", func(t *testing.T) {
		ix := new(MockPageIndexer)
		consumer := worker.NewIndexConsumer(ix)

		err := consumer.HandleMessage(newMessage([]byte("{not json")))
		assert.NoError(t, err)
		ix.AssertNotCalled(t, "IndexPage", mock.Anything, mock.Anything)
	})

	t.Run("Valid Payload Is Indexed", func(t *testing.T) {
		ix := new(MockPageIndexer)
		consumer := worker.NewIndexConsumer(ix)

		payload := worker.IndexPagePayload{
			URL:           "https://a.com",
			Title:         "Page A",
			Text:          "some page text",
			CorrelationID: "corr-123",
		}
		body, err := json.Marshal(payload)
		assert.NoError(t, err)

		var gotCtx context.Context
		ix.On("IndexPage", mock.Anything, indexer.Page{
			URL:   "https://a.com",
			Title: "Page A",
			Text:  "some page text",
		}).Run(func(args mock.Arguments) {
			gotCtx = args.Get(0).(context.Context)
		}).Return(3, nil).Once()

		err = consumer.HandleMessage(newMessage(body))
		assert.NoError(t, err)
		assert.Equal(t, "corr-123", middleware.GetCorrelationID(gotCtx))

		// The indexing context carries a deadline.
		_, hasDeadline := gotCtx.Deadline()
		assert.True(t, hasDeadline)

		ix.AssertExpectations(t)
	})

	t.Run("Indexing Error Is Requeued", func(t *testing.T) {
		ix := new(MockPageIndexer)
		consumer := worker.NewIndexConsumer(ix)

		body, _ := json.Marshal(worker.IndexPagePayload{URL: "https://a.com", Text: "text"})
		ix.On("IndexPage", mock.Anything, mock.Anything).
			Return(0, errors.New("embedder down")).Once()

		err := consumer.HandleMessage(newMessage(body))
		assert.Error(t, err)
	})
}
