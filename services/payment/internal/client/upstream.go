// Package client содержит общие помощники HTTP клиентов внешних провайдеров.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"example.com/funnel-payments/pkg/logger"
	"example.com/funnel-payments/services/payment/internal/domain"
)

// maxBodySize — предел чтения тела ответа провайдера.
const maxBodySize = 1 << 20

// DoJSON выполняет запрос с JSON телом и декодирует 2xx ответ в out.
// Не-2xx и сетевые ошибки возвращаются как *domain.UpstreamError.
func DoJSON(ctx context.Context, httpClient *http.Client, provider, method, url string, headers map[string]string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("%s: ошибка сериализации запроса: %w", provider, err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return fmt.Errorf("%s: ошибка создания запроса: %w", provider, err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return &domain.UpstreamError{Provider: provider, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return &domain.UpstreamError{Provider: provider, StatusCode: resp.StatusCode, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		logger.Ctx(ctx).Warn().
			Str("provider", provider).
			Int("status", resp.StatusCode).
			Msg("Провайдер вернул ошибку")
		return &domain.UpstreamError{Provider: provider, StatusCode: resp.StatusCode, Body: string(raw)}
	}

	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return &domain.UpstreamError{
			Provider:   provider,
			StatusCode: resp.StatusCode,
			Body:       string(raw),
			Err:        fmt.Errorf("ошибка разбора ответа: %w", err),
		}
	}
	return nil
}
