package transactionhttp

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/paylink/reconciler/internal/domain/transaction"
	"github.com/paylink/reconciler/internal/model"
	"github.com/paylink/reconciler/internal/port/outbound"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// MockTransactionDomain is a mock implementation of transaction.TransactionDomain.
type MockTransactionDomain struct {
	mock.Mock
}

func (m *MockTransactionDomain) CreatePayment(ctx context.Context, req *model.CreatePaymentRequest) (*model.Transaction, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Transaction), args.Error(1)
}

func (m *MockTransactionDomain) GetTransaction(ctx context.Context, transactionID string) (*model.Transaction, error) {
	args := m.Called(ctx, transactionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Transaction), args.Error(1)
}

func (m *MockTransactionDomain) RequestCustomerRefund(ctx context.Context, transactionID string, req *model.RefundRequest) (*model.Transaction, error) {
	args := m.Called(ctx, transactionID, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Transaction), args.Error(1)
}

func (m *MockTransactionDomain) InitiateMerchantRefund(ctx context.Context, transactionID string) (*model.CascadeResult, error) {
	args := m.Called(ctx, transactionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.CascadeResult), args.Error(1)
}

func (m *MockTransactionDomain) HandleWebhook(ctx context.Context, req *model.WebhookRequest) (*model.WebhookResult, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.WebhookResult), args.Error(1)
}

var _ transaction.TransactionDomain = (*MockTransactionDomain)(nil)

type errorBody struct {
	Error struct {
		Code    string         `json:"code"`
		Message string         `json:"message"`
		Details map[string]any `json:"details"`
	} `json:"error"`
}

func newRouter(domain transaction.TransactionDomain) *gin.Engine {
	r := gin.New()
	api := r.Group("/api/v1")
	NewPaymentHandler(domain).RegisterRoutes(api)
	NewRefundHandler(domain).RegisterRoutes(api)
	NewWebhookHandler(domain).RegisterRoutes(api)
	return r
}

func do(r *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) errorBody {
	t.Helper()
	var body errorBody
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestPaymentHandler_CreatePayment(t *testing.T) {
	t.Run("created", func(t *testing.T) {
		domain := new(MockTransactionDomain)
		domain.On("CreatePayment", mock.Anything, mock.MatchedBy(func(req *model.CreatePaymentRequest) bool {
			return req.Amount.Equal(decimal.NewFromInt(1000)) && req.PaymentMethod == model.PaymentMethodMobileA
		})).Return(&model.Transaction{
			TransactionID: "tx-1",
			Status:        model.TransactionStatusPaymentRequestCreated,
		}, nil)

		w := do(newRouter(domain), http.MethodPost, "/api/v1/payments", `{
			"amount": "1000",
			"currency": "UGX",
			"payment_method": "MOBILE_A",
			"merchant_id": "m-1",
			"customer_phone": "256700000001"
		}`)

		assert.Equal(t, http.StatusCreated, w.Code)
		assert.Contains(t, w.Body.String(), `"tx-1"`)
		domain.AssertExpectations(t)
	})

	t.Run("binding failure", func(t *testing.T) {
		domain := new(MockTransactionDomain)

		w := do(newRouter(domain), http.MethodPost, "/api/v1/payments", `{"amount": "1000", "payment_method": "PAYPAL"}`)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, transaction.CodeInvalidRequest, decodeError(t, w).Error.Code)
		domain.AssertNotCalled(t, "CreatePayment", mock.Anything, mock.Anything)
	})

	t.Run("provider unavailable", func(t *testing.T) {
		domain := new(MockTransactionDomain)
		domain.On("CreatePayment", mock.Anything, mock.Anything).
			Return(nil, &outbound.ProviderError{Rail: model.PaymentMethodCard, StatusCode: http.StatusBadGateway})

		w := do(newRouter(domain), http.MethodPost, "/api/v1/payments", `{
			"amount": "10.50",
			"currency": "USD",
			"payment_method": "CARD",
			"merchant_id": "m-1"
		}`)

		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
		body := decodeError(t, w)
		assert.Equal(t, transaction.CodeProviderUnavailable, body.Error.Code)
		assert.Equal(t, true, body.Error.Details["retryable"])
		assert.Equal(t, "CARD", body.Error.Details["rail"])
	})
}

func TestPaymentHandler_GetTransaction(t *testing.T) {
	t.Run("found", func(t *testing.T) {
		domain := new(MockTransactionDomain)
		domain.On("GetTransaction", mock.Anything, "tx-1").
			Return(&model.Transaction{TransactionID: "tx-1", Status: model.TransactionStatusSuccessful}, nil)

		w := do(newRouter(domain), http.MethodGet, "/api/v1/transactions/tx-1", "")

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), string(model.TransactionStatusSuccessful))
	})

	t.Run("not found", func(t *testing.T) {
		domain := new(MockTransactionDomain)
		domain.On("GetTransaction", mock.Anything, "nope").Return(nil, transaction.ErrTransactionNotFound)

		w := do(newRouter(domain), http.MethodGet, "/api/v1/transactions/nope", "")

		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.Equal(t, transaction.CodeTransactionNotFound, decodeError(t, w).Error.Code)
	})

	t.Run("system errors stay generic", func(t *testing.T) {
		domain := new(MockTransactionDomain)
		domain.On("GetTransaction", mock.Anything, "tx-1").Return(nil, errors.New("pq: connection refused"))

		w := do(newRouter(domain), http.MethodGet, "/api/v1/transactions/tx-1", "")

		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.Equal(t, transaction.CodeInternal, decodeError(t, w).Error.Code)
		assert.NotContains(t, w.Body.String(), "connection refused")
	})
}

func TestRefundHandler_RequestCustomerRefund(t *testing.T) {
	t.Run("accepted", func(t *testing.T) {
		domain := new(MockTransactionDomain)
		domain.On("RequestCustomerRefund", mock.Anything, "tx-1", mock.MatchedBy(func(req *model.RefundRequest) bool {
			return req.Amount.Equal(decimal.NewFromInt(500))
		})).Return(&model.Transaction{
			TransactionID: "tx-1",
			Status:        model.TransactionStatusCustomerRefundRequestCreated,
		}, nil)

		w := do(newRouter(domain), http.MethodPost, "/api/v1/transactions/tx-1/refunds", `{"amount": 500, "reason": "damaged"}`)

		assert.Equal(t, http.StatusAccepted, w.Code)
		domain.AssertExpectations(t)
	})

	t.Run("ceiling exceeded", func(t *testing.T) {
		domain := new(MockTransactionDomain)
		domain.On("RequestCustomerRefund", mock.Anything, "tx-1", mock.Anything).
			Return(nil, transaction.ErrRefundAmountExceedsOriginal.WithDetails(map[string]any{"remaining": "500"}))

		w := do(newRouter(domain), http.MethodPost, "/api/v1/transactions/tx-1/refunds", `{"amount": "2000"}`)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		body := decodeError(t, w)
		assert.Equal(t, transaction.CodeRefundAmountExceedsOriginal, body.Error.Code)
		assert.Equal(t, "500", body.Error.Details["remaining"])
		assert.Equal(t, string(transaction.CategoryValidation), body.Error.Details["category"])
		assert.Equal(t, false, body.Error.Details["retryable"])
	})
}

func TestRefundHandler_InitiateMerchantRefund(t *testing.T) {
	t.Run("started", func(t *testing.T) {
		domain := new(MockTransactionDomain)
		domain.On("InitiateMerchantRefund", mock.Anything, "tx-1").Return(&model.CascadeResult{
			TransactionID:    "tx-1",
			Status:           model.TransactionStatusMerchantRefundRequestCreated,
			MerchantRefundID: "mr-1",
			Outcome:          model.OutcomeApplied,
		}, nil)

		w := do(newRouter(domain), http.MethodPost, "/api/v1/transactions/tx-1/merchant-refund", "")

		assert.Equal(t, http.StatusAccepted, w.Code)
		assert.Contains(t, w.Body.String(), `"mr-1"`)
	})

	t.Run("already processed", func(t *testing.T) {
		domain := new(MockTransactionDomain)
		domain.On("InitiateMerchantRefund", mock.Anything, "tx-1").Return(&model.CascadeResult{
			TransactionID: "tx-1",
			Status:        model.TransactionStatusMerchantRefundRequestCreated,
			Outcome:       model.OutcomeAlreadyProcessed,
		}, nil)

		w := do(newRouter(domain), http.MethodPost, "/api/v1/transactions/tx-1/merchant-refund", "")

		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("too early", func(t *testing.T) {
		domain := new(MockTransactionDomain)
		domain.On("InitiateMerchantRefund", mock.Anything, "tx-1").Return(nil, transaction.ErrMerchantRefundNotAllowed)

		w := do(newRouter(domain), http.MethodPost, "/api/v1/transactions/tx-1/merchant-refund", "")

		assert.Equal(t, transaction.Lookup(transaction.CodeMerchantRefundNotAllowed).HTTPStatus, w.Code)
		assert.Equal(t, transaction.CodeMerchantRefundNotAllowed, decodeError(t, w).Error.Code)
	})
}

func TestWebhookHandler_HandleWebhook(t *testing.T) {
	payload := `{"externalId":"ref-1","amount":"1000","currency":"UGX","status":"SUCCESSFUL"}`

	t.Run("applied", func(t *testing.T) {
		domain := new(MockTransactionDomain)
		domain.On("HandleWebhook", mock.Anything, mock.MatchedBy(func(req *model.WebhookRequest) bool {
			return req.Rail == model.PaymentMethodMobileA &&
				req.Leg == model.LegCustomerRefund &&
				string(req.Payload) == payload
		})).Return(&model.WebhookResult{
			TransactionID: "tx-1",
			Status:        model.TransactionStatusCustomerRefundSuccessful,
			Outcome:       model.OutcomeApplied,
		}, nil)

		w := do(newRouter(domain), http.MethodPost, "/api/v1/webhooks/mobile_a/customer_refund", payload)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), string(model.OutcomeApplied))
		domain.AssertExpectations(t)
	})

	t.Run("unknown correlation id", func(t *testing.T) {
		domain := new(MockTransactionDomain)
		domain.On("HandleWebhook", mock.Anything, mock.Anything).Return(nil, transaction.ErrTransactionNotFound)

		w := do(newRouter(domain), http.MethodPost, "/api/v1/webhooks/card/payment", payload)

		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.Equal(t, transaction.CodeTransactionNotFound, decodeError(t, w).Error.Code)
	})

	t.Run("unknown rail", func(t *testing.T) {
		domain := new(MockTransactionDomain)

		w := do(newRouter(domain), http.MethodPost, "/api/v1/webhooks/paypal/payment", payload)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, transaction.CodeUnsupportedRail, decodeError(t, w).Error.Code)
		domain.AssertNotCalled(t, "HandleWebhook", mock.Anything, mock.Anything)
	})

	t.Run("unknown leg", func(t *testing.T) {
		domain := new(MockTransactionDomain)

		w := do(newRouter(domain), http.MethodPost, "/api/v1/webhooks/card/chargeback", payload)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, transaction.CodeInvalidRequest, decodeError(t, w).Error.Code)
	})
}
