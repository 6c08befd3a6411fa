package outbox

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"example.com/funnel-payments/pkg/kafka"
)

// ===== Моки =====

type mockRepository struct {
	mock.Mock
}

func (m *mockRepository) Create(ctx context.Context, o *Outbox) error {
	return m.Called(ctx, o).Error(0)
}

func (m *mockRepository) GetUnprocessed(ctx context.Context, limit int) ([]*Outbox, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*Outbox), args.Error(1)
}

func (m *mockRepository) MarkProcessed(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

func (m *mockRepository) MarkFailed(ctx context.Context, id string, err error) error {
	return m.Called(ctx, id, err).Error(0)
}

func (m *mockRepository) DeleteProcessedBefore(ctx context.Context, before time.Time) (int64, error) {
	args := m.Called(ctx, before)
	return args.Get(0).(int64), args.Error(1)
}

type mockProducer struct {
	mock.Mock
}

func (m *mockProducer) SendMessage(ctx context.Context, msg *kafka.Message) error {
	return m.Called(ctx, msg).Error(0)
}

// ===== Тесты =====

func TestNew(t *testing.T) {
	record, err := New("pay-1", "payment.approved", kafka.TopicPaymentEvents,
		map[string]string{"status": "paid"}, map[string]string{"trace_id": "t-1"})

	require.NoError(t, err)
	assert.NotEmpty(t, record.ID)
	assert.Equal(t, AggregatePayment, record.AggregateType)
	assert.Equal(t, "pay-1", record.MessageKey)
	assert.JSONEq(t, `{"status":"paid"}`, string(record.Payload))
}

func TestWorker_Publish_Success(t *testing.T) {
	ctx := context.Background()
	repo := new(mockRepository)
	producer := new(mockProducer)
	worker := NewWorker(repo, producer, DefaultWorkerConfig())

	record := &Outbox{
		ID:         "outbox-1",
		EventType:  "payment.approved",
		Topic:      kafka.TopicPaymentEvents,
		MessageKey: "pay-1",
		Payload:    []byte(`{}`),
		Headers:    map[string]string{"trace_id": "trace-1"},
	}

	producer.On("SendMessage", ctx, mock.MatchedBy(func(msg *kafka.Message) bool {
		return msg.Topic == kafka.TopicPaymentEvents &&
			string(msg.Key) == "pay-1" &&
			msg.Headers[kafka.HeaderEventType] == "payment.approved" &&
			msg.Headers["trace_id"] == "trace-1"
	})).Return(nil)
	repo.On("MarkProcessed", ctx, "outbox-1").Return(nil)

	require.NoError(t, worker.Publish(ctx, record))
	producer.AssertExpectations(t)
	repo.AssertExpectations(t)
}

func TestWorker_Publish_SendError(t *testing.T) {
	ctx := context.Background()
	repo := new(mockRepository)
	producer := new(mockProducer)
	worker := NewWorker(repo, producer, DefaultWorkerConfig())

	record := &Outbox{ID: "outbox-1", Topic: kafka.TopicPaymentEvents, MessageKey: "pay-1", Payload: []byte(`{}`)}

	sendErr := errors.New("kafka unavailable")
	producer.On("SendMessage", ctx, mock.AnythingOfType("*kafka.Message")).Return(sendErr)
	repo.On("MarkFailed", ctx, "outbox-1", sendErr).Return(nil)

	err := worker.Publish(ctx, record)

	assert.ErrorIs(t, err, sendErr)
	repo.AssertNotCalled(t, "MarkProcessed", mock.Anything, mock.Anything)
}

func TestWorker_ProcessBatch(t *testing.T) {
	tests := []struct {
		name        string
		records     []*Outbox
		wantSends   int
		wantMarkIDs []string
	}{
		{
			name:    "пустой outbox",
			records: []*Outbox{},
		},
		{
			name: "две записи отправляются",
			records: []*Outbox{
				{ID: "o-1", Topic: kafka.TopicPaymentEvents, MessageKey: "pay-1"},
				{ID: "o-2", Topic: kafka.TopicPaymentEvents, MessageKey: "pay-2"},
			},
			wantSends:   2,
			wantMarkIDs: []string{"o-1", "o-2"},
		},
		{
			name: "dead letter выводится без отправки",
			records: []*Outbox{
				{ID: "o-dead", Topic: kafka.TopicPaymentEvents, RetryCount: 5},
			},
			wantMarkIDs: []string{"o-dead"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			repo := new(mockRepository)
			producer := new(mockProducer)
			cfg := DefaultWorkerConfig()
			worker := NewWorker(repo, producer, cfg)

			repo.On("GetUnprocessed", ctx, cfg.BatchSize).Return(tt.records, nil)
			if tt.wantSends > 0 {
				producer.On("SendMessage", ctx, mock.Anything).Return(nil).Times(tt.wantSends)
			}
			for _, id := range tt.wantMarkIDs {
				repo.On("MarkProcessed", ctx, id).Return(nil)
			}

			worker.processBatch(ctx)

			repo.AssertExpectations(t)
			producer.AssertNumberOfCalls(t, "SendMessage", tt.wantSends)
		})
	}
}

func TestWorker_Run_ContextCancel(t *testing.T) {
	repo := new(mockRepository)
	producer := new(mockProducer)
	cfg := DefaultWorkerConfig()
	cfg.PollInterval = 10 * time.Millisecond
	worker := NewWorker(repo, producer, cfg)

	repo.On("GetUnprocessed", mock.Anything, cfg.BatchSize).Return([]*Outbox{}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		worker.Run(ctx)
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Worker не остановился после отмены context")
	}
}
