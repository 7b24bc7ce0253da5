package payments

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
)

const (
	paymentsPath     = "/v1/payments"
	maxErrorBodySize = 4 << 10
	retryBaseDelay   = 200 * time.Millisecond
)

type MercadoPagoConfig struct {
	AccessToken string
	BaseURL     string
	Timeout     time.Duration
	// MaxAttempts ограничивает число попыток при сетевых ошибках и 5xx.
	// Все попытки одного вызова используют один и тот же ключ идемпотентности.
	MaxAttempts int
}

type MercadoPagoClient struct {
	cfg        MercadoPagoConfig
	httpClient *http.Client
	logger     *slog.Logger
	newKey     func() string
}

func NewMercadoPagoClient(cfg MercadoPagoConfig, logger *slog.Logger) *MercadoPagoClient {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	return &MercadoPagoClient{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger,
		newKey:     func() string { return uuid.NewString() },
	}
}

type mpPayer struct {
	Email string `json:"email"`
}

type mpCreatePaymentRequest struct {
	TransactionAmount json.Number `json:"transaction_amount"`
	Description       string      `json:"description"`
	PaymentMethodID   string      `json:"payment_method_id"`
	Payer             mpPayer     `json:"payer"`
}

type mpPaymentResponse struct {
	ID                 json.Number `json:"id"`
	Status             string      `json:"status"`
	PointOfInteraction struct {
		TransactionData struct {
			QRCode       string `json:"qr_code"`
			QRCodeBase64 string `json:"qr_code_base64"`
			TicketURL    string `json:"ticket_url"`
		} `json:"transaction_data"`
	} `json:"point_of_interaction"`
}

func (r *mpPaymentResponse) toPayment() *Payment {
	td := r.PointOfInteraction.TransactionData
	return &Payment{
		ID:             r.ID.String(),
		Status:         MapStatus(r.Status),
		ProviderStatus: r.Status,
		QRCode:         td.QRCode,
		QRCodeBase64:   td.QRCodeBase64,
		TicketURL:      td.TicketURL,
	}
}

func (c *MercadoPagoClient) CreatePayment(ctx context.Context, req PaymentRequest) (*Payment, error) {
	body := mpCreatePaymentRequest{
		TransactionAmount: json.Number(req.Amount.StringFixed(2)),
		Description:       req.Description,
		PaymentMethodID:   "pix",
		Payer:             mpPayer{Email: req.PayerEmail},
	}

	var resp mpPaymentResponse
	if err := c.do(ctx, http.MethodPost, paymentsPath, body, &resp); err != nil {
		return nil, err
	}
	if resp.ID == "" {
		return nil, ErrMalformedResponse
	}
	return resp.toPayment(), nil
}

func (c *MercadoPagoClient) GetPayment(ctx context.Context, id string) (*Payment, error) {
	var resp mpPaymentResponse
	if err := c.do(ctx, http.MethodGet, paymentsPath+"/"+url.PathEscape(id), nil, &resp); err != nil {
		return nil, err
	}
	if resp.ID == "" {
		return nil, ErrMalformedResponse
	}
	return resp.toPayment(), nil
}

func (c *MercadoPagoClient) CancelPayment(ctx context.Context, id string) error {
	body := map[string]string{"status": "cancelled"}
	return c.do(ctx, http.MethodPut, paymentsPath+"/"+url.PathEscape(id), body, nil)
}

// do выполняет запрос к провайдеру с повторами. Повторяются только сетевые ошибки и 5xx.
func (c *MercadoPagoClient) do(ctx context.Context, method, path string, in, out interface{}) error {
	if c.cfg.AccessToken == "" {
		c.logger.Error("Mercado Pago access token is not configured")
		return ErrNotConfigured
	}

	var payload []byte
	if in != nil {
		var err error
		payload, err = json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode payment request: %w", err)
		}
	}

	idempotencyKey := c.newKey()
	var lastErr error
	for attempt := 1; attempt <= c.cfg.MaxAttempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return fmt.Errorf("payment request aborted: %w", ctx.Err())
			case <-time.After(retryBaseDelay * time.Duration(attempt-1)):
			}
		}

		retry, err := c.attempt(ctx, method, path, payload, idempotencyKey, out)
		if err == nil {
			return nil
		}
		lastErr = err
		if !retry {
			break
		}
		c.logger.Warn("payment provider request failed, retrying",
			slog.String("method", method),
			slog.String("path", path),
			slog.Int("attempt", attempt),
			slog.Any("error", err),
		)
	}
	return lastErr
}

func (c *MercadoPagoClient) attempt(ctx context.Context, method, path string, payload []byte, idempotencyKey string, out interface{}) (bool, error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, body)
	if err != nil {
		return false, fmt.Errorf("failed to build payment request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.AccessToken)
	req.Header.Set("Content-Type", "application/json")
	if method != http.MethodGet {
		req.Header.Set("X-Idempotency-Key", idempotencyKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			return false, fmt.Errorf("payment request canceled: %w", err)
		}
		return true, fmt.Errorf("payment provider unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
		c.logger.Error("payment provider returned an error",
			slog.String("method", method),
			slog.String("path", path),
			slog.Int("status", resp.StatusCode),
			slog.String("body", string(raw)),
		)
		return resp.StatusCode >= 500, fmt.Errorf("%w: status %d", ErrProviderRejected, resp.StatusCode)
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return false, nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return false, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return false, nil
}
