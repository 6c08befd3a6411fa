package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"example.com/funnel-payments/services/payment/internal/domain"
)

func TestClient_SendMessage(t *testing.T) {
	var got sendBody
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/bot123:ABC/sendMessage", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"ok":true,"result":{"message_id":42}}`))
	}))
	defer srv.Close()

	c := New(Config{APIURL: srv.URL, Timeout: time.Second}, nil)

	sent, err := c.SendMessage(context.Background(), "123:ABC", Message{
		ChatID:    777,
		Text:      "<b>Olá</b>",
		ParseMode: ParseModeHTML,
		Buttons: [][]InlineButton{{
			{Text: "✅ Já paguei", CallbackData: "check_payment:pay-1"},
			{Text: "❌ Cancelar", CallbackData: "cancel_payment:pay-1"},
		}},
	})

	require.NoError(t, err)
	assert.Equal(t, int64(42), sent.MessageID)
	assert.Equal(t, int64(777), got.ChatID)
	require.NotNil(t, got.ReplyMarkup)
	assert.Equal(t, "check_payment:pay-1", got.ReplyMarkup.InlineKeyboard[0][0].CallbackData)
}

func TestClient_SendMessage_Errors(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		wantStatus int
	}{
		{"бот заблокирован", http.StatusForbidden, `{"ok":false,"description":"Forbidden: bot was blocked by the user"}`, http.StatusForbidden},
		{"ok:false при 200", http.StatusOK, `{"ok":false,"description":"chat not found"}`, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := New(Config{APIURL: srv.URL, Timeout: time.Second}, nil).
				SendMessage(context.Background(), "token", Message{ChatID: 1, Text: "x"})

			var ue *domain.UpstreamError
			require.True(t, errors.As(err, &ue))
			assert.Equal(t, tt.wantStatus, ue.StatusCode)
		})
	}
}

func TestClient_SendMessage_NoToken(t *testing.T) {
	_, err := New(Config{}, nil).SendMessage(context.Background(), "", Message{ChatID: 1})
	assert.ErrorIs(t, err, domain.ErrValidation)
}
