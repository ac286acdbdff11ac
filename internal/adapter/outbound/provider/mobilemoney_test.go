package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/paylink/reconciler/internal/model"
	"github.com/paylink/reconciler/internal/port/outbound"
)

const testReference = "0b7c3c0e-6a43-4d1e-9a3f-5d2f7e1c9b10"

type momoServer struct {
	*httptest.Server
	tokens   atomic.Int32
	requests []moneyRequest
	headers  []http.Header
}

func newMomoServer(t *testing.T) *momoServer {
	t.Helper()
	s := &momoServer{}
	mux := http.NewServeMux()

	mux.HandleFunc("POST /token", func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || user != "client" || pass != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		s.tokens.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"tok-1","token_type":"Bearer","expires_in":3600}`))
	})

	accept := func(w http.ResponseWriter, r *http.Request) {
		var body moneyRequest
		_ = json.NewDecoder(r.Body).Decode(&body)
		s.requests = append(s.requests, body)
		s.headers = append(s.headers, r.Header.Clone())

		switch body.Payee.partyOrEmpty() {
		case "busy":
			w.Header().Set("Retry-After", "2")
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"code":"SERVICE_UNAVAILABLE","message":"try later"}`))
			return
		case "unknown":
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"code":"PAYEE_NOT_FOUND","message":"payee not found"}`))
			return
		}
		w.WriteHeader(http.StatusAccepted)
	}
	mux.HandleFunc("POST /collection/v1_0/requesttopay", accept)
	mux.HandleFunc("POST /disbursement/v1_0/transfer", accept)

	mux.HandleFunc("GET /collection/v1_0/requesttopay/{id}", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"amount":"1000","currency":"ugx","externalId":"tx-1","financialTransactionId":"ft-1","status":"SUCCESSFUL"}`))
	})
	mux.HandleFunc("GET /disbursement/v1_0/transfer/{id}", func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("id") == "missing" {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"code":"RESOURCE_NOT_FOUND","message":"not found"}`))
			return
		}
		_, _ = w.Write([]byte(`{"amount":"488","currency":"UGX","externalId":"ref","status":"REJECTED","reason":{"code":"payee_not_found","message":"no wallet"}}`))
	})

	s.Server = httptest.NewServer(mux)
	t.Cleanup(s.Close)
	return s
}

func (p *party) partyOrEmpty() string {
	if p == nil {
		return ""
	}
	return p.PartyID
}

func newMomoAdapter(s *momoServer) outbound.ProviderAdapterPort {
	return NewMobileMoneyAdapter(MobileMoneyConfig{
		Rail:              model.PaymentMethodMobileA,
		BaseURL:           s.URL,
		TokenURL:          s.URL + "/token",
		ClientID:          "client",
		ClientSecret:      "secret",
		CollectionKey:     "col-key",
		DisbursementKey:   "dis-key",
		TargetEnvironment: "sandbox",
		CallbackURL:       "https://pay.example.com/api/v1/webhooks/mobile_a",
	}, s.Client(), zap.NewNop())
}

func TestMobileMoney_InitiatePayment(t *testing.T) {
	s := newMomoServer(t)
	adapter := newMomoAdapter(s)

	id, err := adapter.InitiatePayment(context.Background(), "1000", "UGX", "256700000002", testReference)
	require.NoError(t, err)
	assert.Equal(t, testReference, id)

	require.Len(t, s.requests, 1)
	body := s.requests[0]
	assert.Equal(t, "1000", body.Amount)
	assert.Equal(t, testReference, body.ExternalID)
	require.NotNil(t, body.Payer)
	assert.Equal(t, "256700000002", body.Payer.PartyID)

	h := s.headers[0]
	assert.Equal(t, "Bearer tok-1", h.Get("Authorization"))
	assert.Equal(t, testReference, h.Get("X-Reference-Id"))
	assert.Equal(t, "col-key", h.Get("Ocp-Apim-Subscription-Key"))
	assert.Equal(t, "sandbox", h.Get("X-Target-Environment"))
	assert.Equal(t, "https://pay.example.com/api/v1/webhooks/mobile_a/payment", h.Get("X-Callback-Url"))

	_, err = adapter.InitiatePayment(context.Background(), "500", "UGX", "256700000002", "not-a-uuid")
	require.NoError(t, err)
	assert.Equal(t, int32(1), s.tokens.Load(), "token is cached")
}

func TestMobileMoney_InitiateTransfer(t *testing.T) {
	s := newMomoServer(t)
	adapter := newMomoAdapter(s)
	ctx := context.Background()

	t.Run("accepted", func(t *testing.T) {
		id, err := adapter.InitiateTransfer(ctx, outbound.TransferRequest{
			Amount:    "488",
			Currency:  "UGX",
			PayeeRef:  "256700000001",
			Leg:       model.LegMerchantRefund,
			Reference: testReference,
			SourceRef: "cr-1",
		})
		require.NoError(t, err)
		assert.Equal(t, testReference, id)

		last := s.headers[len(s.headers)-1]
		assert.Equal(t, "dis-key", last.Get("Ocp-Apim-Subscription-Key"))
		assert.Equal(t, "https://pay.example.com/api/v1/webhooks/mobile_a/merchant_refund", last.Get("X-Callback-Url"))
	})

	t.Run("unavailable carries retry after", func(t *testing.T) {
		_, err := adapter.InitiateTransfer(ctx, outbound.TransferRequest{
			Amount: "1", Currency: "UGX", PayeeRef: "busy", Leg: model.LegSettlement, Reference: testReference,
		})
		var pe *outbound.ProviderError
		require.ErrorAs(t, err, &pe)
		assert.Equal(t, http.StatusServiceUnavailable, pe.StatusCode)
		assert.Equal(t, "SERVICE_UNAVAILABLE", pe.Code)
		assert.Equal(t, 2*time.Second, pe.RetryAfter)
		assert.Equal(t, model.PaymentMethodMobileA, pe.Rail)
	})

	t.Run("rejected", func(t *testing.T) {
		_, err := adapter.InitiateTransfer(ctx, outbound.TransferRequest{
			Amount: "1", Currency: "UGX", PayeeRef: "unknown", Leg: model.LegCustomerRefund, Reference: testReference,
		})
		var pe *outbound.ProviderError
		require.ErrorAs(t, err, &pe)
		assert.Equal(t, "PAYEE_NOT_FOUND", pe.Code)
		assert.False(t, pe.Temporary)
	})
}

func TestMobileMoney_CheckStatus(t *testing.T) {
	s := newMomoServer(t)
	adapter := newMomoAdapter(s)
	ctx := context.Background()

	st, err := adapter.CheckStatus(ctx, testReference, model.LegPayment)
	require.NoError(t, err)
	assert.Equal(t, model.ProviderStatusSuccessful, st.Status)
	assert.True(t, decimal.NewFromInt(1000).Equal(st.Amount))
	assert.Equal(t, "UGX", st.Currency)
	assert.Equal(t, "ft-1", st.FinancialTransactionID)
	assert.NotEmpty(t, st.Raw)

	st, err = adapter.CheckStatus(ctx, testReference, model.LegMerchantRefund)
	require.NoError(t, err)
	assert.Equal(t, model.ProviderStatusFailed, st.Status)
	assert.Equal(t, "PAYEE_NOT_FOUND", st.ReasonCode)
	assert.Equal(t, "no wallet", st.Reason)

	_, err = adapter.CheckStatus(ctx, "missing", model.LegSettlement)
	var pe *outbound.ProviderError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, http.StatusNotFound, pe.StatusCode)
}

func TestMobileMoney_TransportFailure(t *testing.T) {
	s := newMomoServer(t)
	adapter := NewMobileMoneyAdapter(MobileMoneyConfig{
		Rail:    model.PaymentMethodMobileB,
		BaseURL: "http://127.0.0.1:1",
	}, s.Client(), zap.NewNop())

	_, err := adapter.CheckStatus(context.Background(), testReference, model.LegPayment)
	var pe *outbound.ProviderError
	require.ErrorAs(t, err, &pe)
	assert.True(t, pe.Temporary)
	assert.Equal(t, model.PaymentMethodMobileB, pe.Rail)
}

func TestMobileMoney_NotifyCounterparty(t *testing.T) {
	var got callbackPayload
	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	adapter := NewMobileMoneyAdapter(MobileMoneyConfig{
		Rail:        model.PaymentMethodMobileA,
		CallbackURL: srv.URL + "/api/v1/webhooks/mobile_a/",
	}, srv.Client(), zap.NewNop())

	err := adapter.NotifyCounterparty(context.Background(), &model.ProviderStatusEvent{
		CorrelationID: "cr-1",
		Amount:        decimal.NewFromInt(500),
		Currency:      "UGX",
		Status:        model.ProviderStatusSuccessful,
	}, model.LegCustomerRefund)

	require.NoError(t, err)
	assert.Equal(t, "/api/v1/webhooks/mobile_a/customer_refund", path)
	assert.Equal(t, "cr-1", got.ExternalID)
	assert.Equal(t, "500", got.Amount)
	assert.Equal(t, "SUCCESSFUL", got.Status)
}

func TestParseReason(t *testing.T) {
	tests := []struct {
		raw     string
		code    string
		message  string
	}{
		{raw: ``, code: "", message: ""},
		{raw: `null`, code: "", message: ""},
		{raw: `"not_enough_funds"`, code: "NOT_ENOUGH_FUNDS", message: ""},
		{raw: `{"code":"payer_not_found","message":"no payer"}`, code: "PAYER_NOT_FOUND", message: "no payer"},
	}
	for _, tt := range tests {
		code, message := parseReason(json.RawMessage(tt.raw))
		assert.Equal(t, tt.code, code, tt.raw)
		assert.Equal(t, tt.message, message, tt.raw)
	}
}
