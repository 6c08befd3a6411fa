package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"example.com/funnel-payments/pkg/kafka"
	"example.com/funnel-payments/pkg/outbox"
	"example.com/funnel-payments/services/payment/internal/domain"
)

// ===== Вспомогательные функции =====

func setupMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	sqlDB, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err, "Ошибка создания sqlmock")
	t.Cleanup(func() { _ = sqlDB.Close() })

	gormDB, err := gorm.Open(mysql.New(mysql.Config{
		Conn:                      sqlDB,
		SkipInitializeWithVersion: true,
	}), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err, "Ошибка инициализации GORM")

	return gormDB, mock
}

// ===== PaymentRepository =====

func TestPaymentRepository_ApplyTransition(t *testing.T) {
	paidAt := time.Date(2025, 1, 10, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name        string
		transition  domain.Transition
		mockSetup   func(mock sqlmock.Sqlmock)
		wantApplied bool
		wantClaimed bool
	}{
		{
			name: "первый paid вебхук: статус, outbox и захват выдачи",
			transition: domain.Transition{
				PaymentID: "pay-1", Provider: domain.ProviderPixGateway,
				To: domain.StatusPaid, PaidAt: &paidAt, At: paidAt,
			},
			mockSetup: func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin()
				mock.ExpectExec(regexp.QuoteMeta("UPDATE `transactions` SET")).
					WillReturnResult(sqlmock.NewResult(0, 1))
				mock.ExpectExec(regexp.QuoteMeta("INSERT INTO `outbox`")).
					WillReturnResult(sqlmock.NewResult(0, 1))
				mock.ExpectExec(regexp.QuoteMeta("UPDATE `transactions` SET `delivered_at`")).
					WillReturnResult(sqlmock.NewResult(0, 1))
				mock.ExpectCommit()
			},
			wantApplied: true,
			wantClaimed: true,
		},
		{
			name: "повторный paid вебхук: ничего не меняется",
			transition: domain.Transition{
				PaymentID: "pay-1", Provider: domain.ProviderPixGateway,
				To: domain.StatusPaid, At: paidAt,
			},
			mockSetup: func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin()
				mock.ExpectExec(regexp.QuoteMeta("UPDATE `transactions` SET")).
					WillReturnResult(sqlmock.NewResult(0, 0))
				mock.ExpectExec(regexp.QuoteMeta("UPDATE `transactions` SET `delivered_at`")).
					WillReturnResult(sqlmock.NewResult(0, 0))
				mock.ExpectCommit()
			},
		},
		{
			name: "refused в funnel_payments без захвата выдачи",
			transition: domain.Transition{
				PaymentID: "pay-2", Provider: domain.ProviderMercadoPago,
				To: domain.StatusRefused, At: paidAt,
			},
			mockSetup: func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin()
				mock.ExpectExec(regexp.QuoteMeta("UPDATE `funnel_payments` SET")).
					WillReturnResult(sqlmock.NewResult(0, 1))
				mock.ExpectExec(regexp.QuoteMeta("INSERT INTO `outbox`")).
					WillReturnResult(sqlmock.NewResult(0, 1))
				mock.ExpectCommit()
			},
			wantApplied: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock := setupMockDB(t)
			repo := NewPaymentRepository(db)
			tt.mockSetup(mock)

			event, err := outbox.New(tt.transition.PaymentID, "payment.test", kafka.TopicPaymentEvents, map[string]string{}, nil)
			require.NoError(t, err)

			result, err := repo.ApplyTransition(context.Background(), tt.transition, []*outbox.Outbox{event})

			require.NoError(t, err)
			assert.Equal(t, tt.wantApplied, result.Applied)
			assert.Equal(t, tt.wantClaimed, result.Claimed)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestPaymentRepository_ApplyTransition_Rollback(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewPaymentRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE `transactions` SET")).
		WillReturnError(errors.New("deadlock"))
	mock.ExpectRollback()

	_, err := repo.ApplyTransition(context.Background(), domain.Transition{
		PaymentID: "pay-1", Provider: domain.ProviderPixGateway, To: domain.StatusPaid, At: time.Now(),
	}, nil)

	require.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPaymentRepository_GetByProviderPaymentID_NotFound(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewPaymentRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM `funnel_payments`")).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := repo.GetByProviderPaymentID(context.Background(), domain.ProviderMercadoPago, "mp-404")

	assert.ErrorIs(t, err, domain.ErrPaymentNotFound)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestPaymentRepository_GetByID_SecondTable(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewPaymentRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM `transactions`")).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM `funnel_payments`")).
		WillReturnRows(sqlmock.NewRows([]string{"id", "provider", "status", "amount_cents"}).
			AddRow("pay-2", "mercadopago", "pending", 1990))

	p, err := repo.GetByID(context.Background(), "pay-2")

	require.NoError(t, err)
	assert.Equal(t, domain.ProviderMercadoPago, p.Provider)
	assert.Equal(t, int64(1990), p.AmountCents)
	assert.Equal(t, domain.StatusPending, p.Status)
}

func TestPaymentRepository_Create_Duplicate(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewPaymentRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO `transactions`")).
		WillReturnError(errors.New("Error 1062 (23000): Duplicate entry 'pixgateway-tx_1' for key 'uq_transactions_provider_payment'"))
	mock.ExpectRollback()

	err := repo.Create(context.Background(), &domain.Payment{ID: "pay-1", Provider: domain.ProviderPixGateway}, nil)

	assert.ErrorIs(t, err, domain.ErrDuplicatePayment)
}

func TestPaymentRepository_Create_WithOutbox(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewPaymentRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO `funnel_payments`")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO `outbox`")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	event, err := outbox.New("pay-2", "payment.pending", kafka.TopicPaymentEvents, map[string]string{}, nil)
	require.NoError(t, err)

	payment := &domain.Payment{ID: "pay-2", Provider: domain.ProviderMercadoPago, Status: domain.StatusPending}
	require.NoError(t, repo.Create(context.Background(), payment, []*outbox.Outbox{event}))

	assert.False(t, payment.CreatedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

// ===== ReminderRepository =====

func TestReminderRepository_Claim(t *testing.T) {
	tests := []struct {
		name     string
		affected int64
		want     bool
	}{
		{"захват получен", 1, true},
		{"напоминание уже захвачено", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock := setupMockDB(t)
			repo := NewReminderRepository(db)

			mock.ExpectBegin()
			mock.ExpectExec(regexp.QuoteMeta("UPDATE `funnel_payments` SET `reminded_at`")).
				WillReturnResult(sqlmock.NewResult(0, tt.affected))
			mock.ExpectCommit()

			ok, err := repo.Claim(context.Background(), "pay-1", time.Now().UTC())

			require.NoError(t, err)
			assert.Equal(t, tt.want, ok)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

// ===== CatalogRepository =====

func TestCatalogRepository_MarkItemSold_AlreadySold(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewCatalogRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE `tiktok_accounts` SET")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	err := repo.MarkItemSold(context.Background(), domain.ProductTikTokAccount, "acc-1", "buyer-1", time.Now())

	assert.ErrorIs(t, err, domain.ErrItemSold)
}

func TestCatalogRepository_ReserveItem_HeldByOther(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewCatalogRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE `models` SET")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM `models`")).
		WillReturnRows(sqlmock.NewRows([]string{"id", "is_sold", "reserved_by"}).AddRow("model-1", false, "user-2"))

	now := time.Now()
	err := repo.ReserveItem(context.Background(), domain.ProductModel, "model-1", "user-1", now.Add(time.Minute), now)

	assert.ErrorIs(t, err, domain.ErrItemReserved)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCatalogRepository_ReserveItem_SameBuyerRetry(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewCatalogRepository(db)

	// значения совпали с уже сохранёнными: MySQL сообщает 0 изменённых строк
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE `models` SET")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM `models`")).
		WillReturnRows(sqlmock.NewRows([]string{"id", "is_sold", "reserved_by"}).AddRow("model-1", false, "user-1"))

	now := time.Now()
	err := repo.ReserveItem(context.Background(), domain.ProductModel, "model-1", "user-1", now.Add(time.Minute), now)

	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCatalogRepository_GetPlanBySlug_NotFound(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewCatalogRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM `subscription_plans`")).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := repo.GetPlanBySlug(context.Background(), "enterprise")

	assert.ErrorIs(t, err, domain.ErrPlanNotFound)
}

// ===== TrackingRepository =====

func TestTrackingRepository_Reserve(t *testing.T) {
	tests := []struct {
		name    string
		execErr error
		want    bool
		wantErr bool
	}{
		{"новое событие", nil, true, false},
		{"событие уже отправлено", errors.New("Error 1062: Duplicate entry 'tx_1-approved'"), false, false},
		{"ошибка БД", errors.New("connection refused"), false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock := setupMockDB(t)
			repo := NewTrackingRepository(db)

			mock.ExpectBegin()
			exec := mock.ExpectExec(regexp.QuoteMeta("INSERT INTO `tracking_events`"))
			if tt.execErr != nil {
				exec.WillReturnError(tt.execErr)
				mock.ExpectRollback()
			} else {
				exec.WillReturnResult(sqlmock.NewResult(0, 1))
				mock.ExpectCommit()
			}

			ok, err := repo.Reserve(context.Background(), "tx_1", "approved")

			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, ok)
		})
	}
}

// ===== EntitlementRepository =====

func TestEntitlementRepository_ActivatePlan(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewEntitlementRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO `profiles`") + ".*ON DUPLICATE KEY UPDATE").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO `subscriptions`") + ".*ON DUPLICATE KEY UPDATE").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	now := time.Now().UTC()
	err := repo.ActivatePlan(context.Background(), "user-1", "pro", now, now.AddDate(0, 1, 0))

	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
