package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"example.com/funnel-payments/pkg/kafka"
	"example.com/funnel-payments/services/payment/internal/client/utmify"
	"example.com/funnel-payments/services/payment/internal/domain"
	"example.com/funnel-payments/services/payment/internal/testutil"
)

func newRelayForTest(payments ...*domain.Payment) (*TrackingRelay, *MockIntegrationRepository, *MockTrackingRepository, *MockAttributionClient) {
	integrations := new(MockIntegrationRepository)
	events := new(MockTrackingRepository)
	client := new(MockAttributionClient)

	relay := NewTrackingRelay(testutil.NewMemoryPayments(payments...), integrations, events, client,
		TrackingConfig{Platform: "FunnelBot"})
	relay.now = fixedNow

	integrations.On("GetUtmify", mock.Anything, "seller-1").
		Return(&domain.UtmifyIntegration{UserID: "seller-1", APIToken: "utm-token", IsActive: true}, nil)

	return relay, integrations, events, client
}

func trackedPayment() *domain.Payment {
	p := pendingFunnelPayment("pay-1", 10)
	p.UTM = domain.UTM{Source: strPtr("facebook"), Campaign: strPtr("black-friday"), Src: strPtr("ig")}
	return p
}

func TestTrackingRelay_TrackEvent(t *testing.T) {
	tests := []struct {
		name        string
		setup       func(events *MockTrackingRepository, client *MockAttributionClient)
		want        *TrackResult
		wantRelease bool
	}{
		{
			name: "отправлено",
			setup: func(events *MockTrackingRepository, client *MockAttributionClient) {
				events.On("Reserve", mock.Anything, "mercadopago:mp-pay-1", EventApproved).Return(true, nil)
				client.On("SendOrder", mock.Anything, "utm-token", mock.Anything).Return(&utmify.Response{StatusCode: 200, Body: `{"OK":true}`}, nil)
				events.On("MarkSent", mock.Anything, "mercadopago:mp-pay-1", EventApproved, 200).Return(nil)
			},
			want: &TrackResult{OK: true, Sent: true, Status: 200},
		},
		{
			name: "уже отправлялось",
			setup: func(events *MockTrackingRepository, client *MockAttributionClient) {
				events.On("Reserve", mock.Anything, "mercadopago:mp-pay-1", EventApproved).Return(false, nil)
			},
			want: &TrackResult{OK: true, Sent: false},
		},
		{
			name: "UTMify отклонил",
			setup: func(events *MockTrackingRepository, client *MockAttributionClient) {
				events.On("Reserve", mock.Anything, "mercadopago:mp-pay-1", EventApproved).Return(true, nil)
				client.On("SendOrder", mock.Anything, "utm-token", mock.Anything).Return(&utmify.Response{StatusCode: 400, Body: "invalid orderId"}, nil)
				events.On("Release", mock.Anything, "mercadopago:mp-pay-1", EventApproved).Return(nil)
			},
			want:        &TrackResult{OK: false, Error: "utmify_rejected", Status: 400, Details: "invalid orderId"},
			wantRelease: true,
		},
		{
			name: "UTMify недоступен",
			setup: func(events *MockTrackingRepository, client *MockAttributionClient) {
				events.On("Reserve", mock.Anything, "mercadopago:mp-pay-1", EventApproved).Return(true, nil)
				client.On("SendOrder", mock.Anything, "utm-token", mock.Anything).Return(nil, errors.New("dial tcp: timeout"))
				events.On("Release", mock.Anything, "mercadopago:mp-pay-1", EventApproved).Return(nil)
			},
			want:        &TrackResult{OK: false, Error: "utmify_unavailable", Details: "dial tcp: timeout"},
			wantRelease: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			relay, _, events, client := newRelayForTest(trackedPayment())
			tt.setup(events, client)

			res, err := relay.TrackEvent(context.Background(), TrackEventRequest{
				PaymentID: "pay-1",
				UserID:    "seller-1",
				EventType: "paid",
			})

			require.NoError(t, err)
			assert.Equal(t, tt.want, res)
			if tt.wantRelease {
				events.AssertCalled(t, "Release", mock.Anything, "mercadopago:mp-pay-1", EventApproved)
			} else {
				events.AssertNotCalled(t, "Release", mock.Anything, mock.Anything, mock.Anything)
			}
			events.AssertExpectations(t)
			client.AssertExpectations(t)
		})
	}
}

func TestTrackingRelay_TrackEvent_Errors(t *testing.T) {
	t.Run("неизвестный event_type", func(t *testing.T) {
		relay, _, _, _ := newRelayForTest(trackedPayment())

		_, err := relay.TrackEvent(context.Background(), TrackEventRequest{PaymentID: "pay-1", EventType: "shipped"})

		assert.True(t, errors.Is(err, domain.ErrValidation))
	})

	t.Run("платёж не найден", func(t *testing.T) {
		relay, _, _, _ := newRelayForTest()

		_, err := relay.TrackEvent(context.Background(), TrackEventRequest{PaymentID: "nope", EventType: "paid"})

		assert.True(t, errors.Is(err, domain.ErrPaymentNotFound))
	})

	t.Run("нет интеграции UTMify", func(t *testing.T) {
		relay, integrations, events, _ := newRelayForTest(trackedPayment())
		integrations.On("GetUtmify", mock.Anything, "seller-2").Return(nil, domain.ErrIntegrationNotFound)

		_, err := relay.TrackEvent(context.Background(), TrackEventRequest{PaymentID: "pay-1", UserID: "seller-2", EventType: "paid"})

		assert.True(t, errors.Is(err, domain.ErrNotFound))
		events.AssertNotCalled(t, "Reserve", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("чужой платёж", func(t *testing.T) {
		relay, integrations, events, client := newRelayForTest(trackedPayment())

		_, err := relay.TrackEvent(context.Background(), TrackEventRequest{
			PaymentID:   "pay-1",
			UserID:      "seller-9",
			RequesterID: "seller-9",
			EventType:   "paid",
		})

		assert.True(t, errors.Is(err, domain.ErrPaymentNotFound))
		integrations.AssertNotCalled(t, "GetUtmify", mock.Anything, "seller-9")
		events.AssertNotCalled(t, "Reserve", mock.Anything, mock.Anything, mock.Anything)
		client.AssertNotCalled(t, "SendOrder", mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestTrackingRelay_TrackEvent_OwnerRequest(t *testing.T) {
	relay, _, events, client := newRelayForTest(trackedPayment())
	events.On("Reserve", mock.Anything, "mercadopago:mp-pay-1", EventApproved).Return(true, nil)
	client.On("SendOrder", mock.Anything, "utm-token", mock.Anything).Return(&utmify.Response{StatusCode: 200}, nil)
	events.On("MarkSent", mock.Anything, "mercadopago:mp-pay-1", EventApproved, 200).Return(nil)

	res, err := relay.TrackEvent(context.Background(), TrackEventRequest{
		PaymentID:   "pay-1",
		RequesterID: "seller-1",
		EventType:   "approved",
	})

	require.NoError(t, err)
	assert.True(t, res.Sent)
	events.AssertExpectations(t)
}

func TestTrackingKey(t *testing.T) {
	gateway := &domain.Payment{ID: "pay-1", Provider: domain.ProviderPixGateway, ProviderPaymentID: "123"}
	mp := &domain.Payment{ID: "pay-2", Provider: domain.ProviderMercadoPago, ProviderPaymentID: "123"}
	noID := &domain.Payment{ID: "pay-3", Provider: domain.ProviderPixGateway}

	assert.Equal(t, "pixgateway:123", trackingKey(gateway))
	assert.Equal(t, "mercadopago:123", trackingKey(mp))
	assert.NotEqual(t, trackingKey(gateway), trackingKey(mp))
	assert.Equal(t, "pixgateway:pay-3", trackingKey(noID))
}

func TestTrackingRelay_BuildOrder(t *testing.T) {
	relay, _, _, _ := newRelayForTest()
	p := trackedPayment()
	paidAt := time.Date(2026, 3, 10, 11, 59, 30, 0, time.UTC)
	p.PaidAt = &paidAt
	p.Buyer.Phone = "+5511999999999"

	order := relay.buildOrder(p, EventApproved)

	assert.Equal(t, p.ExternalID, order.OrderID)
	assert.Equal(t, "FunnelBot", order.Platform)
	assert.Equal(t, "pix", order.PaymentMethod)
	assert.Equal(t, "approved", order.Status)
	assert.Equal(t, "2026-03-10 11:50:00", order.CreatedAt)
	require.NotNil(t, order.ApprovedDate)
	assert.Equal(t, "2026-03-10 11:59:30", *order.ApprovedDate)
	assert.Nil(t, order.RefundedAt)
	assert.Nil(t, order.Customer.Document)
	require.NotNil(t, order.Customer.Phone)
	assert.Equal(t, "facebook", *order.TrackingParameters.UTMSource)
	assert.Equal(t, "ig", *order.TrackingParameters.Src)
	assert.Nil(t, order.TrackingParameters.UTMMedium)
	assert.Equal(t, int64(4990), order.Commission.TotalPriceInCents)

	refund := relay.buildOrder(p, EventRefunded)
	require.NotNil(t, refund.RefundedAt)
	assert.Equal(t, "2026-03-10 12:00:00", *refund.RefundedAt)
}

func TestTrackingRelay_HandleEvent(t *testing.T) {
	message := func(t *testing.T, eventType string) *kafka.Message {
		body, err := json.Marshal(PaymentEvent{PaymentID: "pay-1", UserID: "seller-1", EventType: eventType, Status: "paid"})
		require.NoError(t, err)
		return &kafka.Message{Key: []byte("pay-1"), Value: body, Topic: kafka.TopicPaymentEvents}
	}

	t.Run("5xx повторяется", func(t *testing.T) {
		relay, _, events, client := newRelayForTest(trackedPayment())
		events.On("Reserve", mock.Anything, "mercadopago:mp-pay-1", EventApproved).Return(true, nil)
		events.On("Release", mock.Anything, "mercadopago:mp-pay-1", EventApproved).Return(nil)
		client.On("SendOrder", mock.Anything, mock.Anything, mock.Anything).Return(&utmify.Response{StatusCode: 502}, nil)

		err := relay.HandleEvent(context.Background(), message(t, EventApproved))

		assert.Error(t, err)
	})

	t.Run("4xx не повторяется", func(t *testing.T) {
		relay, _, events, client := newRelayForTest(trackedPayment())
		events.On("Reserve", mock.Anything, "mercadopago:mp-pay-1", EventApproved).Return(true, nil)
		events.On("Release", mock.Anything, "mercadopago:mp-pay-1", EventApproved).Return(nil)
		client.On("SendOrder", mock.Anything, mock.Anything, mock.Anything).Return(&utmify.Response{StatusCode: 422}, nil)

		assert.NoError(t, relay.HandleEvent(context.Background(), message(t, EventApproved)))
	})

	t.Run("неизвестный платёж пропускается", func(t *testing.T) {
		relay, _, _, _ := newRelayForTest()

		assert.NoError(t, relay.HandleEvent(context.Background(), message(t, EventApproved)))
	})

	t.Run("некорректный JSON пропускается", func(t *testing.T) {
		relay, _, _, _ := newRelayForTest()

		assert.NoError(t, relay.HandleEvent(context.Background(), &kafka.Message{Value: []byte("{")}))
	})
}
