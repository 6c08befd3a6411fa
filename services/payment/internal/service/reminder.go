package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"example.com/funnel-payments/pkg/logger"
	"example.com/funnel-payments/pkg/metrics"
	"example.com/funnel-payments/pkg/tracing"
	"example.com/funnel-payments/services/payment/internal/client/telegram"
	"example.com/funnel-payments/services/payment/internal/domain"
	"example.com/funnel-payments/services/payment/internal/repository"
)

// =============================================================================
// ReminderSweeper — напоминания о неоплаченных PIX
// =============================================================================

// ReminderConfig — настройки напоминаний.
type ReminderConfig struct {
	// DefaultMinutes — возраст pending платежа, после которого шлём напоминание.
	DefaultMinutes int

	// BatchSize — максимум платежей за один проход.
	BatchSize int
}

// SweepResult — итог одного прохода.
type SweepResult struct {
	Reminded int
	Errors   int
	Total    int
}

// ReminderSweeper рассылает напоминания. Каждый платёж сначала захватывается
// условным UPDATE reminded_at, поэтому пересекающиеся проходы не дублируют сообщения.
type ReminderSweeper struct {
	reminders repository.ReminderRepository
	catalog   repository.CatalogRepository
	messenger Messenger
	cfg       ReminderConfig
	now       func() time.Time
}

// NewReminderSweeper создаёт ReminderSweeper.
func NewReminderSweeper(
	reminders repository.ReminderRepository,
	catalog repository.CatalogRepository,
	messenger Messenger,
	cfg ReminderConfig,
) *ReminderSweeper {
	if cfg.DefaultMinutes <= 0 {
		cfg.DefaultMinutes = 5
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	return &ReminderSweeper{
		reminders: reminders,
		catalog:   catalog,
		messenger: messenger,
		cfg:       cfg,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Sweep выполняет один проход. reminderMinutes <= 0 — значение по умолчанию.
// Сбой по одному платежу учитывается в Errors и не прерывает проход.
func (s *ReminderSweeper) Sweep(ctx context.Context, reminderMinutes int) (*SweepResult, error) {
	if reminderMinutes <= 0 {
		reminderMinutes = s.cfg.DefaultMinutes
	}

	ctx, span := tracing.Start(ctx, "reminder.Sweep", attribute.Int("reminder_minutes", reminderMinutes))
	defer span.End()

	log := logger.FromContext(ctx)
	before := s.now().Add(-time.Duration(reminderMinutes) * time.Minute)

	candidates, err := s.reminders.ListCandidates(ctx, before, s.cfg.BatchSize)
	if err != nil {
		tracing.RecordError(span, err)
		return nil, err
	}

	result := &SweepResult{Total: len(candidates)}
	for _, p := range candidates {
		select {
		case <-ctx.Done():
			return result, ctx.Err()
		default:
		}

		sent, err := s.remind(ctx, p)
		switch {
		case err != nil:
			result.Errors++
			metrics.Reminders.WithLabelValues("error").Inc()
			log.Error().Err(err).Str("payment_id", p.ID).Msg("Ошибка отправки напоминания")
		case sent:
			result.Reminded++
			metrics.Reminders.WithLabelValues("sent").Inc()
		default:
			metrics.Reminders.WithLabelValues("skipped").Inc()
		}
	}

	span.SetAttributes(
		attribute.Int("reminded", result.Reminded),
		attribute.Int("errors", result.Errors),
	)
	if result.Total > 0 {
		log.Info().
			Int("total", result.Total).
			Int("reminded", result.Reminded).
			Int("errors", result.Errors).
			Msg("Проход напоминаний завершён")
	}
	return result, nil
}

// remind захватывает платёж и отправляет напоминание. false без ошибки —
// напоминание уже захвачено другим проходом.
func (s *ReminderSweeper) remind(ctx context.Context, p *domain.Payment) (bool, error) {
	// DATETIME(0): Release сравнивает reminded_at с точностью до секунды.
	claimedAt := s.now().Truncate(time.Second)

	claimed, err := s.reminders.Claim(ctx, p.ID, claimedAt)
	if err != nil {
		return false, err
	}
	if !claimed {
		return false, nil
	}

	msg, err := s.send(ctx, p)
	if err != nil {
		if relErr := s.reminders.Release(ctx, p.ID, claimedAt); relErr != nil {
			logger.Ctx(ctx).Error().Err(relErr).Str("payment_id", p.ID).Msg("Ошибка снятия захвата напоминания")
		}
		return false, err
	}

	if err := s.reminders.AppendLog(ctx, &domain.ReminderLog{
		ID:        uuid.New().String(),
		PaymentID: p.ID,
		ChatID:    msg.chatID,
		MessageID: msg.messageID,
		CreatedAt: claimedAt,
	}); err != nil {
		// Сообщение уже ушло, reminded_at стоит: повторной отправки не будет.
		logger.Ctx(ctx).Error().Err(err).Str("payment_id", p.ID).Msg("Ошибка записи журнала напоминаний")
	}
	return true, nil
}

type sentReminder struct {
	chatID    int64
	messageID int64
}

func (s *ReminderSweeper) send(ctx context.Context, p *domain.Payment) (*sentReminder, error) {
	if p.FunnelID == nil || p.LeadID == nil {
		return nil, domain.Validationf("у платежа %s нет воронки или лида", p.ID)
	}

	funnel, err := s.catalog.GetFunnel(ctx, *p.FunnelID)
	if err != nil {
		return nil, err
	}
	lead, err := s.catalog.GetLead(ctx, *p.LeadID)
	if err != nil {
		return nil, err
	}

	sent, err := s.messenger.SendMessage(ctx, funnel.BotToken, telegram.Message{
		ChatID:    lead.ChatID,
		Text:      ReminderText(p),
		ParseMode: telegram.ParseModeHTML,
		Buttons:   ReminderButtons(p.ID),
	})
	if err != nil {
		return nil, err
	}

	return &sentReminder{chatID: lead.ChatID, messageID: sent.MessageID}, nil
}

// Run запускает периодические проходы. Блокирует выполнение до отмены контекста.
func (s *ReminderSweeper) Run(ctx context.Context, interval time.Duration) {
	log := logger.FromContext(ctx)
	log.Info().
		Dur("interval", interval).
		Int("reminder_minutes", s.cfg.DefaultMinutes).
		Msg("Запуск Reminder Sweeper")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Остановка Reminder Sweeper")
			return
		case <-ticker.C:
			if _, err := s.Sweep(ctx, 0); err != nil {
				log.Error().Err(err).Msg("Ошибка прохода напоминаний")
			}
		}
	}
}
