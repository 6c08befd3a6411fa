package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeBuyerName(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"цифры и символы удаляются", "John123 O'Brien-Smith!!", "John O'Brien-Smith"},
		{"только цифры", "123456", DefaultBuyerName},
		{"только символы", "!!@@##", DefaultBuyerName},
		{"одна буква", "J1", DefaultBuyerName},
		{"пустая строка", "", DefaultBuyerName},
		{"диакритика сохраняется", "João  Conceição", "João Conceição"},
		{"пробелы по краям", "  Maria   Silva  ", "Maria Silva"},
		{"табуляция", "Ana\tPaula", "Ana Paula"},
		{"кириллица", "Иван Петров", "Иван Петров"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SanitizeBuyerName(tt.input))
		})
	}
}

func TestNormalizeStatus(t *testing.T) {
	tests := []struct {
		input string
		want  Status
	}{
		{"paid", StatusPaid},
		{"approved", StatusPaid},
		{"APPROVED", StatusPaid},
		{"charged_back", StatusChargeback},
		{"chargeback", StatusChargeback},
		{"canceled", StatusCancelled},
		{"rejected", StatusRefused},
		{"waiting_payment", StatusPending},
		{"expired", StatusExpired},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := NormalizeStatus(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := NormalizeStatus("unknown")
	assert.ErrorIs(t, err, ErrValidation)
}

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to Status
		want     bool
	}{
		{StatusPending, StatusPaid, true},
		{StatusPending, StatusRefused, true},
		{StatusPending, StatusExpired, true},
		{StatusPaid, StatusRefunded, true},
		{StatusPaid, StatusChargeback, true},
		{StatusPaid, StatusPending, false},
		{StatusPaid, StatusPaid, false},
		{StatusRefused, StatusPaid, false},
		{StatusPending, StatusRefunded, false},
		{StatusRefunded, StatusChargeback, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, CanTransition(tt.from, tt.to))
		})
	}
}

func TestNewExternalID(t *testing.T) {
	now := time.UnixMilli(1700000000123)
	assert.Equal(t, "subscription_user-1_1700000000123", NewExternalID(ProductSubscription, "user-1", now))
}

func TestProvider_Table(t *testing.T) {
	assert.Equal(t, "transactions", ProviderPixGateway.Table())
	assert.Equal(t, "funnel_payments", ProviderMercadoPago.Table())
}

func TestMarketplaceItem_HeldByOther(t *testing.T) {
	now := time.Now()
	other := "user-2"
	future := now.Add(time.Minute)
	past := now.Add(-time.Minute)

	assert.False(t, (&MarketplaceItem{}).HeldByOther("user-1", now))
	assert.True(t, (&MarketplaceItem{ReservedBy: &other, ReservedUntil: &future}).HeldByOther("user-1", now))
	assert.False(t, (&MarketplaceItem{ReservedBy: &other, ReservedUntil: &past}).HeldByOther("user-1", now))
	assert.False(t, (&MarketplaceItem{ReservedBy: &other, ReservedUntil: &future}).HeldByOther("user-2", now))
}

func TestErrorTaxonomy(t *testing.T) {
	assert.ErrorIs(t, ErrPlanNotFound, ErrNotFound)
	assert.ErrorIs(t, ErrItemSold, ErrConflict)
	assert.ErrorIs(t, Validationf("поле %s", "email"), ErrValidation)

	var upstream error = &UpstreamError{Provider: "pixgateway", StatusCode: 422, Body: `{"error":"bad"}`}
	var ue *UpstreamError
	require.True(t, errors.As(upstream, &ue))
	assert.True(t, ue.IsClientError())
	assert.Contains(t, upstream.Error(), "422")
}
