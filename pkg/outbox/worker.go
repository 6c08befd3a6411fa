package outbox

import (
	"context"
	"time"

	"example.com/funnel-payments/pkg/kafka"
	"example.com/funnel-payments/pkg/logger"
)

// Producer — отправка сообщений в Kafka.
type Producer interface {
	SendMessage(ctx context.Context, msg *kafka.Message) error
}

// WorkerConfig — настройки Worker.
type WorkerConfig struct {
	PollInterval     time.Duration
	BatchSize        int
	MaxRetries       int           // после превышения запись выводится из очереди
	CleanupInterval  time.Duration // 0 — очистка отключена
	CleanupRetention time.Duration
}

// DefaultWorkerConfig возвращает конфигурацию по умолчанию.
func DefaultWorkerConfig() WorkerConfig {
	return WorkerConfig{
		PollInterval:     time.Second,
		BatchSize:        100,
		MaxRetries:       5,
		CleanupInterval:  time.Hour,
		CleanupRetention: 7 * 24 * time.Hour,
	}
}

// Worker публикует записи outbox в Kafka (at-least-once).
type Worker struct {
	repo     Repository
	producer Producer
	cfg      WorkerConfig
}

// NewWorker создаёт Worker.
func NewWorker(repo Repository, producer Producer, cfg WorkerConfig) *Worker {
	return &Worker{repo: repo, producer: producer, cfg: cfg}
}

// Run опрашивает outbox до отмены ctx.
func (w *Worker) Run(ctx context.Context) {
	log := logger.FromContext(ctx)
	log.Info().
		Dur("poll_interval", w.cfg.PollInterval).
		Int("batch_size", w.cfg.BatchSize).
		Msg("Запуск Outbox Worker")

	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	var cleanup <-chan time.Time
	if w.cfg.CleanupInterval > 0 {
		cleanupTicker := time.NewTicker(w.cfg.CleanupInterval)
		defer cleanupTicker.Stop()
		cleanup = cleanupTicker.C
	}

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Остановка Outbox Worker")
			return
		case <-ticker.C:
			w.processBatch(ctx)
		case <-cleanup:
			w.cleanupProcessed(ctx)
		}
	}
}

func (w *Worker) cleanupProcessed(ctx context.Context) {
	deleted, err := w.repo.DeleteProcessedBefore(ctx, time.Now().UTC().Add(-w.cfg.CleanupRetention))
	if err != nil {
		logger.Ctx(ctx).Error().Err(err).Msg("Ошибка очистки outbox")
		return
	}
	if deleted > 0 {
		logger.Ctx(ctx).Info().Int64("deleted", deleted).Msg("Очистка обработанных записей outbox")
	}
}

// processBatch отправляет одну пачку записей.
func (w *Worker) processBatch(ctx context.Context) {
	log := logger.FromContext(ctx)

	records, err := w.repo.GetUnprocessed(ctx, w.cfg.BatchSize)
	if err != nil {
		log.Error().Err(err).Msg("Ошибка чтения outbox")
		return
	}

	for _, record := range records {
		if ctx.Err() != nil {
			return
		}

		if record.RetryCount >= w.cfg.MaxRetries {
			log.Warn().
				Str("outbox_id", record.ID).
				Str("event_type", record.EventType).
				Str("payment_id", record.AggregateID).
				Int("retry_count", record.RetryCount).
				Msg("Dead letter: превышен лимит попыток, запись выведена из очереди")

			if err := w.repo.MarkProcessed(ctx, record.ID); err != nil {
				log.Error().Err(err).Str("outbox_id", record.ID).Msg("Ошибка пометки dead letter")
			}
			continue
		}

		if err := w.Publish(ctx, record); err != nil {
			log.Warn().
				Err(err).
				Str("outbox_id", record.ID).
				Str("event_type", record.EventType).
				Msg("Ошибка публикации записи outbox")
		}
	}
}

// Publish отправляет одну запись и отмечает результат в outbox.
func (w *Worker) Publish(ctx context.Context, record *Outbox) error {
	headers := make(map[string]string, len(record.Headers)+1)
	for k, v := range record.Headers {
		headers[k] = v
	}
	headers[kafka.HeaderEventType] = record.EventType

	msg := &kafka.Message{
		Topic:   record.Topic,
		Key:     []byte(record.MessageKey),
		Value:   record.Payload,
		Headers: headers,
	}

	if err := w.producer.SendMessage(ctx, msg); err != nil {
		_ = w.repo.MarkFailed(ctx, record.ID, err)
		return err
	}

	return w.repo.MarkProcessed(ctx, record.ID)
}
