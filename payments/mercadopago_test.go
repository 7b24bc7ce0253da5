package payments

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/Dosada05/tcg-tournaments/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestClient(baseURL string, maxAttempts int) *MercadoPagoClient {
	return NewMercadoPagoClient(MercadoPagoConfig{
		AccessToken: "TEST-token",
		BaseURL:     baseURL,
		MaxAttempts: maxAttempts,
	}, testLogger())
}

const pixResponse = `{
	"id": 1320001,
	"status": "pending",
	"point_of_interaction": {
		"transaction_data": {
			"qr_code": "00020126580014br.gov.bcb.pix",
			"qr_code_base64": "iVBORw0KGgo=",
			"ticket_url": "https://www.mercadopago.com.br/payments/1320001/ticket"
		}
	}
}`

func TestCreatePaymentSendsPixRequest(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/payments", r.URL.Path)
		assert.Equal(t, "Bearer TEST-token", r.Header.Get("Authorization"))
		assert.NotEmpty(t, r.Header.Get("X-Idempotency-Key"))

		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, 25.5, body["transaction_amount"])
		assert.Equal(t, "pix", body["payment_method_id"])
		assert.Equal(t, "Registration for tournament: Sunday Locals", body["description"])
		assert.Equal(t, map[string]interface{}{"email": "ana@example.com"}, body["payer"])

		w.WriteHeader(http.StatusCreated)
		_, _ = io.WriteString(w, pixResponse)
	}))
	defer srv.Close()

	payment, err := newTestClient(srv.URL, 1).CreatePayment(context.Background(), PaymentRequest{
		Amount:      decimal.RequireFromString("25.50"),
		Description: "Registration for tournament: Sunday Locals",
		PayerEmail:  "ana@example.com",
	})

	require.NoError(t, err)
	assert.Equal(t, "1320001", payment.ID)
	assert.Equal(t, models.PaymentPending, payment.Status)
	assert.Equal(t, "pending", payment.ProviderStatus)
	assert.Equal(t, "00020126580014br.gov.bcb.pix", payment.QRCode)
	assert.Equal(t, "iVBORw0KGgo=", payment.QRCodeBase64)
	assert.Contains(t, payment.TicketURL, "/ticket")
}

func TestCreatePaymentWithoutTokenIsConfigurationFault(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
	}))
	defer srv.Close()

	client := NewMercadoPagoClient(MercadoPagoConfig{BaseURL: srv.URL}, testLogger())
	_, err := client.CreatePayment(context.Background(), PaymentRequest{Amount: decimal.NewFromInt(10)})

	assert.ErrorIs(t, err, ErrNotConfigured)
	assert.Zero(t, atomic.LoadInt32(&calls))
}

func TestCreatePaymentClientErrorIsNotRetried(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"message":"invalid payer email","status":400}`)
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL, 3).CreatePayment(context.Background(), PaymentRequest{Amount: decimal.NewFromInt(10)})

	assert.ErrorIs(t, err, ErrProviderRejected)
	assert.NotContains(t, err.Error(), "invalid payer email")
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
}

func TestCreatePaymentRetriesServerErrorsWithSameKey(t *testing.T) {
	var calls int32
	keys := make(chan string, 2)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		keys <- r.Header.Get("X-Idempotency-Key")
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusCreated)
		_, _ = io.WriteString(w, pixResponse)
	}))
	defer srv.Close()

	payment, err := newTestClient(srv.URL, 2).CreatePayment(context.Background(), PaymentRequest{Amount: decimal.NewFromInt(10)})

	require.NoError(t, err)
	assert.Equal(t, "1320001", payment.ID)
	assert.EqualValues(t, 2, atomic.LoadInt32(&calls))
	first, second := <-keys, <-keys
	assert.Equal(t, first, second)
}

func TestCreatePaymentSingleAttemptByDefault(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL, 0).CreatePayment(context.Background(), PaymentRequest{Amount: decimal.NewFromInt(10)})

	assert.ErrorIs(t, err, ErrProviderRejected)
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
}

func TestCreatePaymentMissingIDIsMalformed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"status":"pending"}`)
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL, 1).CreatePayment(context.Background(), PaymentRequest{Amount: decimal.NewFromInt(10)})

	assert.ErrorIs(t, err, ErrMalformedResponse)
}

func TestGetPaymentMapsProviderStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/v1/payments/1320001", r.URL.Path)
		_, _ = io.WriteString(w, `{"id": 1320001, "status": "approved"}`)
	}))
	defer srv.Close()

	payment, err := newTestClient(srv.URL, 1).GetPayment(context.Background(), "1320001")

	require.NoError(t, err)
	assert.Equal(t, models.PaymentPaid, payment.Status)
	assert.Equal(t, "approved", payment.ProviderStatus)
}

func TestCancelPaymentSendsCancelledStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/v1/payments/77", r.URL.Path)
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "cancelled", body["status"])
		_, _ = io.WriteString(w, `{"id": 77, "status": "cancelled"}`)
	}))
	defer srv.Close()

	assert.NoError(t, newTestClient(srv.URL, 1).CancelPayment(context.Background(), "77"))
}

func TestMapStatus(t *testing.T) {
	cases := map[string]models.PaymentStatus{
		"approved":     models.PaymentPaid,
		"pending":      models.PaymentPending,
		"in_process":   models.PaymentPending,
		"authorized":   models.PaymentPending,
		"rejected":     models.PaymentFailed,
		"cancelled":    models.PaymentFailed,
		"refunded":     models.PaymentRefunded,
		"charged_back": models.PaymentRefunded,
		"in_mediation": models.PaymentPending,
		"":             models.PaymentPending,
	}
	for provider, want := range cases {
		assert.Equal(t, want, MapStatus(provider), provider)
	}
}
