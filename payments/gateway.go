// Package payments содержит адаптер платежного провайдера (PIX через Mercado Pago).
package payments

import (
	"context"
	"errors"
	"strings"

	"github.com/Dosada05/tcg-tournaments/models"
	"github.com/shopspring/decimal"
)

var (
	// ErrNotConfigured - у адаптера нет учетных данных провайдера.
	ErrNotConfigured = errors.New("payment provider is not configured")
	// ErrProviderRejected - провайдер ответил ошибкой. Тело ответа только логируется.
	ErrProviderRejected = errors.New("payment provider rejected the request")
	// ErrMalformedResponse - ответ провайдера не содержит обязательных полей.
	ErrMalformedResponse = errors.New("payment provider returned a malformed response")
)

type PaymentRequest struct {
	Amount      decimal.Decimal
	Description string
	PayerEmail  string
}

// Payment - платеж в том виде, в каком его видит остальная система.
// Реквизиты PIX заполнены только в ответе на создание платежа.
type Payment struct {
	ID             string               `json:"id"`
	Status         models.PaymentStatus `json:"status"`
	ProviderStatus string               `json:"provider_status"`
	QRCode         string               `json:"qr_code,omitempty"`
	QRCodeBase64   string               `json:"qr_code_base64,omitempty"`
	TicketURL      string               `json:"ticket_url,omitempty"`
}

type Gateway interface {
	CreatePayment(ctx context.Context, req PaymentRequest) (*Payment, error)
	GetPayment(ctx context.Context, id string) (*Payment, error)
	CancelPayment(ctx context.Context, id string) error
}

// MapStatus переводит статус провайдера в закрытый набор статусов регистрации.
// Неизвестные статусы считаются ожидающими оплаты.
func MapStatus(providerStatus string) models.PaymentStatus {
	switch strings.ToLower(strings.TrimSpace(providerStatus)) {
	case "approved":
		return models.PaymentPaid
	case "rejected", "cancelled":
		return models.PaymentFailed
	case "refunded", "charged_back":
		return models.PaymentRefunded
	default:
		// pending, in_process, authorized и все незнакомое.
		return models.PaymentPending
	}
}
