package provider

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/paylink/reconciler/internal/model"
	"github.com/paylink/reconciler/internal/port/outbound"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"go.uber.org/zap"
)

// StripeConfig configures the card rail.
type StripeConfig struct {
	SecretKey string
	// BackendURL overrides the API base URL (stripe-mock, tests).
	BackendURL  string
	CallbackURL string
}

// stripeAdapter implements outbound.ProviderAdapterPort for the card rail.
// Each adapter owns its client, so keys never leak through package globals.
type stripeAdapter struct {
	api      *client.API
	notifier *callbackNotifier
	logger   *zap.Logger
}

// NewStripeAdapter creates the card rail adapter.
func NewStripeAdapter(cfg StripeConfig, httpClient *http.Client, logger *zap.Logger) outbound.ProviderAdapterPort {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	backendCfg := &stripe.BackendConfig{
		HTTPClient:        httpClient,
		MaxNetworkRetries: stripe.Int64(0),
		LeveledLogger:     &stripe.LeveledLogger{Level: stripe.LevelNull},
	}
	if cfg.BackendURL != "" {
		backendCfg.URL = stripe.String(cfg.BackendURL)
	}

	return &stripeAdapter{
		api:      client.New(cfg.SecretKey, stripe.NewBackendsWithConfig(backendCfg)),
		notifier: &callbackNotifier{client: httpClient, baseURL: cfg.CallbackURL},
		logger:   logger,
	}
}

func (a *stripeAdapter) Rail() model.PaymentMethod {
	return model.PaymentMethodCard
}

func (a *stripeAdapter) InitiatePayment(ctx context.Context, amount, currency, payerRef, reference string) (string, error) {
	minor, err := toMinor(amount, currency)
	if err != nil {
		return "", a.invalid("initiate_payment", err)
	}

	params := &stripe.PaymentIntentParams{
		Amount:        stripe.Int64(minor),
		Currency:      stripe.String(strings.ToLower(currency)),
		TransferGroup: stripe.String(reference),
		Description:   stripe.String("Payment " + reference),
	}
	if payerRef != "" {
		params.PaymentMethod = stripe.String(payerRef)
		params.Confirm = stripe.Bool(true)
	}
	params.Context = ctx
	params.IdempotencyKey = stripe.String("pay-" + reference)
	params.AddMetadata("reference", reference)

	pi, err := a.api.PaymentIntents.New(params)
	if err != nil {
		return "", a.providerError("initiate_payment", err)
	}
	return pi.ID, nil
}

func (a *stripeAdapter) InitiateTransfer(ctx context.Context, req outbound.TransferRequest) (string, error) {
	minor, err := toMinor(req.Amount, req.Currency)
	if err != nil {
		return "", a.invalid("initiate_transfer", err)
	}

	if req.Leg == model.LegCustomerRefund {
		params := &stripe.RefundParams{
			PaymentIntent: stripe.String(req.SourceRef),
			Amount:        stripe.Int64(minor),
		}
		params.Context = ctx
		params.IdempotencyKey = stripe.String(req.Reference)
		params.AddMetadata("reference", req.Reference)
		if req.Note != "" {
			params.AddMetadata("note", req.Note)
		}

		r, err := a.api.Refunds.New(params)
		if err != nil {
			return "", a.providerError("initiate_transfer", err)
		}
		return r.ID, nil
	}

	params := &stripe.TransferParams{
		Amount:        stripe.Int64(minor),
		Currency:      stripe.String(strings.ToLower(req.Currency)),
		Destination:   stripe.String(req.PayeeRef),
		TransferGroup: stripe.String(req.SourceRef),
	}
	params.Context = ctx
	params.IdempotencyKey = stripe.String(req.Reference)
	params.AddMetadata("reference", req.Reference)
	params.AddMetadata("leg", string(req.Leg))

	tr, err := a.api.Transfers.New(params)
	if err != nil {
		return "", a.providerError("initiate_transfer", err)
	}
	return tr.ID, nil
}

func (a *stripeAdapter) CheckStatus(ctx context.Context, correlationID string, leg model.Leg) (*model.ProviderStatus, error) {
	switch leg {
	case model.LegPayment:
		params := &stripe.PaymentIntentParams{}
		params.Context = ctx
		pi, err := a.api.PaymentIntents.Get(correlationID, params)
		if err != nil {
			return nil, a.providerError("check_status", err)
		}
		st := &model.ProviderStatus{
			CorrelationID: pi.ID,
			Status:        mapIntentStatus(pi),
			Amount:        fromMinor(pi.Amount, string(pi.Currency)),
			Currency:      strings.ToUpper(string(pi.Currency)),
		}
		if pi.LastPaymentError != nil {
			st.ReasonCode = strings.ToUpper(declineCode(pi.LastPaymentError))
			st.Reason = pi.LastPaymentError.Msg
		}
		if pi.LatestCharge != nil {
			st.FinancialTransactionID = pi.LatestCharge.ID
		}
		return st, nil

	case model.LegCustomerRefund:
		params := &stripe.RefundParams{}
		params.Context = ctx
		r, err := a.api.Refunds.Get(correlationID, params)
		if err != nil {
			return nil, a.providerError("check_status", err)
		}
		return &model.ProviderStatus{
			CorrelationID: r.ID,
			Status:        mapRefundStatus(r.Status),
			Amount:        fromMinor(r.Amount, string(r.Currency)),
			Currency:      strings.ToUpper(string(r.Currency)),
			ReasonCode:    strings.ToUpper(string(r.FailureReason)),
		}, nil

	default:
		params := &stripe.TransferParams{}
		params.Context = ctx
		tr, err := a.api.Transfers.Get(correlationID, params)
		if err != nil {
			return nil, a.providerError("check_status", err)
		}
		status := model.ProviderStatusSuccessful
		if tr.Reversed {
			status = model.ProviderStatusFailed
		}
		st := &model.ProviderStatus{
			CorrelationID: tr.ID,
			Status:        status,
			Amount:        fromMinor(tr.Amount, string(tr.Currency)),
			Currency:      strings.ToUpper(string(tr.Currency)),
		}
		if tr.Reversed {
			st.ReasonCode = "TRANSFER_REVERSED"
		}
		return st, nil
	}
}

// NotifyCounterparty posts a simulated webhook; Stripe test mode has no
// way to emit our rail-neutral payload itself.
func (a *stripeAdapter) NotifyCounterparty(ctx context.Context, event *model.ProviderStatusEvent, leg model.Leg) error {
	return a.notifier.notify(ctx, event, leg)
}

func (a *stripeAdapter) providerError(operation string, err error) error {
	var se *stripe.Error
	if !errors.As(err, &se) || se.HTTPStatusCode == 0 {
		return &outbound.ProviderError{
			Rail:      model.PaymentMethodCard,
			Operation: operation,
			Temporary: true,
			Err:       err,
		}
	}
	a.logger.Debug("stripe request failed",
		zap.String("operation", operation),
		zap.Int("status", se.HTTPStatusCode),
		zap.String("code", string(se.Code)),
		zap.String("request_id", se.RequestID),
	)
	return &outbound.ProviderError{
		Rail:       model.PaymentMethodCard,
		Operation:  operation,
		StatusCode: se.HTTPStatusCode,
		Code:       string(se.Code),
		Message:    se.Msg,
		Err:        err,
	}
}

func (a *stripeAdapter) invalid(operation string, err error) error {
	return &outbound.ProviderError{
		Rail:       model.PaymentMethodCard,
		Operation:  operation,
		StatusCode: http.StatusBadRequest,
		Code:       "INVALID_AMOUNT",
		Message:    err.Error(),
		Err:        err,
	}
}

func mapIntentStatus(pi *stripe.PaymentIntent) model.ProviderStatusValue {
	switch pi.Status {
	case stripe.PaymentIntentStatusSucceeded:
		return model.ProviderStatusSuccessful
	case stripe.PaymentIntentStatusCanceled:
		return model.ProviderStatusFailed
	case stripe.PaymentIntentStatusRequiresPaymentMethod:
		// A declined attempt drops the intent back here.
		if pi.LastPaymentError != nil {
			return model.ProviderStatusFailed
		}
	}
	return model.ProviderStatusPending
}

func mapRefundStatus(s stripe.RefundStatus) model.ProviderStatusValue {
	switch s {
	case stripe.RefundStatusSucceeded:
		return model.ProviderStatusSuccessful
	case stripe.RefundStatusFailed, stripe.RefundStatusCanceled:
		return model.ProviderStatusFailed
	default:
		return model.ProviderStatusPending
	}
}

func declineCode(e *stripe.Error) string {
	if e.DeclineCode != "" {
		return string(e.DeclineCode)
	}
	return string(e.Code)
}

// Compile-time check
var _ outbound.ProviderAdapterPort = (*stripeAdapter)(nil)
