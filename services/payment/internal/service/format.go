package service

import (
	"fmt"
	"html"
	"strings"

	"github.com/shopspring/decimal"

	"example.com/funnel-payments/services/payment/internal/client/telegram"
	"example.com/funnel-payments/services/payment/internal/domain"
)

// FormatBRL форматирует центаво в реалы: 4990 → "R$ 49,90", 123456 → "R$ 1.234,56".
func FormatBRL(cents int64) string {
	amount := decimal.New(cents, -2)
	sign := ""
	if amount.IsNegative() {
		sign = "-"
		amount = amount.Abs()
	}

	parts := strings.SplitN(amount.StringFixed(2), ".", 2)
	intPart := parts[0]

	var b strings.Builder
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte('.')
		}
		b.WriteRune(r)
	}

	return fmt.Sprintf("R$ %s%s,%s", sign, b.String(), parts[1])
}

// DeliveryText — сообщение о выдаче продукта воронки.
func DeliveryText(p *domain.FunnelProduct) string {
	var b strings.Builder
	b.WriteString("✅ Pagamento confirmado!\n\n")
	b.WriteString("<b>" + html.EscapeString(p.Name) + "</b>\n")

	if (p.DeliveryType == domain.DeliveryMessage || p.DeliveryType == domain.DeliveryBoth) && p.DeliveryMessage != "" {
		b.WriteString("\n" + p.DeliveryMessage + "\n")
	}
	if (p.DeliveryType == domain.DeliveryLink || p.DeliveryType == domain.DeliveryBoth) && p.DeliveryLink != "" {
		b.WriteString("\n🔗 Acesse: " + p.DeliveryLink + "\n")
	}

	return strings.TrimRight(b.String(), "\n")
}

// ReminderText — напоминание о неоплаченном PIX.
func ReminderText(p *domain.Payment) string {
	var b strings.Builder
	b.WriteString("⏰ <b>Seu PIX ainda está pendente!</b>\n\n")
	if p.ProductName != "" {
		b.WriteString("Produto: <b>" + html.EscapeString(p.ProductName) + "</b>\n")
	}
	b.WriteString("Valor: <b>" + FormatBRL(p.AmountCents) + "</b>\n")
	if p.Pix.Code != "" {
		b.WriteString("\nCopie o código PIX abaixo para pagar:\n")
		b.WriteString("<code>" + html.EscapeString(p.Pix.Code) + "</code>")
	}
	return strings.TrimRight(b.String(), "\n")
}

// ReminderButtons — кнопки «Já paguei» / «Cancelar» с ID платежа.
func ReminderButtons(paymentID string) [][]telegram.InlineButton {
	return [][]telegram.InlineButton{{
		{Text: "✅ Já paguei", CallbackData: "check_payment:" + paymentID},
		{Text: "❌ Cancelar", CallbackData: "cancel_payment:" + paymentID},
	}}
}
