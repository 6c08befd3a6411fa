// Package telegram — отправка сообщений ботами воронок через Bot API.
package telegram

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"example.com/funnel-payments/pkg/circuitbreaker"
	"example.com/funnel-payments/services/payment/internal/client"
	"example.com/funnel-payments/services/payment/internal/domain"
)

// ProviderName — имя в логах, метриках и ошибках.
const ProviderName = "telegram"

// DefaultAPIURL — публичный Bot API.
const DefaultAPIURL = "https://api.telegram.org"

// ParseModeHTML — разметка сообщений о выдаче и напоминаний.
const ParseModeHTML = "HTML"

// Config — настройки клиента.
type Config struct {
	APIURL  string
	Timeout time.Duration
}

// InlineButton — кнопка inline клавиатуры с callback data.
type InlineButton struct {
	Text         string `json:"text"`
	CallbackData string `json:"callback_data,omitempty"`
	URL          string `json:"url,omitempty"`
}

// Message — исходящее сообщение.
type Message struct {
	ChatID                int64
	Text                  string
	ParseMode             string
	DisableWebPagePreview bool
	Buttons               [][]InlineButton // строки клавиатуры
}

// SentMessage — результат отправки.
type SentMessage struct {
	MessageID int64
}

type replyMarkup struct {
	InlineKeyboard [][]InlineButton `json:"inline_keyboard"`
}

type sendBody struct {
	ChatID                int64        `json:"chat_id"`
	Text                  string       `json:"text"`
	ParseMode             string       `json:"parse_mode,omitempty"`
	DisableWebPagePreview bool         `json:"disable_web_page_preview,omitempty"`
	ReplyMarkup           *replyMarkup `json:"reply_markup,omitempty"`
}

type sendResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
	Result      struct {
		MessageID int64 `json:"message_id"`
	} `json:"result"`
}

// Client — клиент Bot API. Токен бота передаётся в каждый вызов:
// у каждой воронки свой бот.
type Client struct {
	apiURL string
	http   *http.Client
}

// New создаёт клиент. httpClient nil — клиент с circuit breaker и таймаутом из cfg.
func New(cfg Config, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = circuitbreaker.NewHTTPClient(ProviderName, cfg.Timeout)
	}
	api := cfg.APIURL
	if api == "" {
		api = DefaultAPIURL
	}
	return &Client{apiURL: strings.TrimRight(api, "/"), http: httpClient}
}

// SendMessage вызывает sendMessage. ok:false в ответе — *domain.UpstreamError.
func (c *Client) SendMessage(ctx context.Context, botToken string, msg Message) (*SentMessage, error) {
	if botToken == "" {
		return nil, domain.Validationf("не задан токен бота")
	}

	body := sendBody{
		ChatID:                msg.ChatID,
		Text:                  msg.Text,
		ParseMode:             msg.ParseMode,
		DisableWebPagePreview: msg.DisableWebPagePreview,
	}
	if len(msg.Buttons) > 0 {
		body.ReplyMarkup = &replyMarkup{InlineKeyboard: msg.Buttons}
	}

	var resp sendResponse
	endpoint := fmt.Sprintf("%s/bot%s/sendMessage", c.apiURL, botToken)
	if err := client.DoJSON(ctx, c.http, ProviderName, http.MethodPost, endpoint, nil, body, &resp); err != nil {
		return nil, err
	}
	if !resp.OK {
		return nil, &domain.UpstreamError{Provider: ProviderName, StatusCode: http.StatusOK, Body: resp.Description}
	}

	return &SentMessage{MessageID: resp.Result.MessageID}, nil
}
