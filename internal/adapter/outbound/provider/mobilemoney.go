package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/paylink/reconciler/internal/model"
	"github.com/paylink/reconciler/internal/port/outbound"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// MobileMoneyConfig configures one mobile money rail.
type MobileMoneyConfig struct {
	Rail              model.PaymentMethod
	BaseURL           string
	TokenURL          string
	ClientID          string
	ClientSecret      string
	CollectionKey     string
	DisbursementKey   string
	TargetEnvironment string
	// CallbackURL is the base of our webhook routes for this rail.
	CallbackURL string
}

// mobileMoneyAdapter implements outbound.ProviderAdapterPort for
// request-to-pay style mobile money APIs.
type mobileMoneyAdapter struct {
	cfg      MobileMoneyConfig
	client   *http.Client
	notifier *callbackNotifier
	logger   *zap.Logger
}

// NewMobileMoneyAdapter creates a mobile money rail adapter. When a token
// URL is configured, requests carry an OAuth2 client-credentials token.
func NewMobileMoneyAdapter(cfg MobileMoneyConfig, httpClient *http.Client, logger *zap.Logger) outbound.ProviderAdapterPort {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	client := httpClient
	if cfg.TokenURL != "" {
		cc := &clientcredentials.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			TokenURL:     cfg.TokenURL,
			AuthStyle:    oauth2.AuthStyleInHeader,
		}
		client = cc.Client(context.WithValue(context.Background(), oauth2.HTTPClient, httpClient))
	}
	return &mobileMoneyAdapter{
		cfg:      cfg,
		client:   client,
		notifier: &callbackNotifier{client: httpClient, baseURL: cfg.CallbackURL},
		logger:   logger,
	}
}

// Wire types.

type party struct {
	PartyIDType string `json:"partyIdType"`
	PartyID     string `json:"partyId"`
}

type moneyRequest struct {
	Amount       string `json:"amount"`
	Currency     string `json:"currency"`
	ExternalID   string `json:"externalId"`
	Payer        *party `json:"payer,omitempty"`
	Payee        *party `json:"payee,omitempty"`
	PayerMessage string `json:"payerMessage,omitempty"`
	PayeeNote    string `json:"payeeNote,omitempty"`
}

type moneyStatus struct {
	Amount                 decimal.Decimal `json:"amount"`
	Currency               string          `json:"currency"`
	ExternalID             string          `json:"externalId"`
	FinancialTransactionID string          `json:"financialTransactionId"`
	Status                 string          `json:"status"`
	Reason                 json.RawMessage `json:"reason"`
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (a *mobileMoneyAdapter) Rail() model.PaymentMethod {
	return a.cfg.Rail
}

func (a *mobileMoneyAdapter) InitiatePayment(ctx context.Context, amount, currency, payerRef, reference string) (string, error) {
	referenceID := referenceID(reference)
	body := moneyRequest{
		Amount:       amount,
		Currency:     currency,
		ExternalID:   reference,
		Payer:        &party{PartyIDType: "MSISDN", PartyID: payerRef},
		PayerMessage: "Payment " + reference,
		PayeeNote:    reference,
	}
	err := a.post(ctx, "initiate_payment", "/collection/v1_0/requesttopay", a.cfg.CollectionKey, referenceID, model.LegPayment, body)
	if err != nil {
		return "", err
	}
	return referenceID, nil
}

func (a *mobileMoneyAdapter) InitiateTransfer(ctx context.Context, req outbound.TransferRequest) (string, error) {
	referenceID := referenceID(req.Reference)
	body := moneyRequest{
		Amount:       req.Amount,
		Currency:     req.Currency,
		ExternalID:   req.Reference,
		Payee:        &party{PartyIDType: "MSISDN", PartyID: req.PayeeRef},
		PayerMessage: req.Note,
		PayeeNote:    strings.ToLower(string(req.Leg)) + " " + req.SourceRef,
	}
	err := a.post(ctx, "initiate_transfer", "/disbursement/v1_0/transfer", a.cfg.DisbursementKey, referenceID, req.Leg, body)
	if err != nil {
		return "", err
	}
	return referenceID, nil
}

func (a *mobileMoneyAdapter) CheckStatus(ctx context.Context, correlationID string, leg model.Leg) (*model.ProviderStatus, error) {
	path, key := "/disbursement/v1_0/transfer/", a.cfg.DisbursementKey
	if leg == model.LegPayment {
		path, key = "/collection/v1_0/requesttopay/", a.cfg.CollectionKey
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.cfg.BaseURL+path+correlationID, nil)
	if err != nil {
		return nil, err
	}
	a.setHeaders(req, key)

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, a.transportError("check_status", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, a.transportError("check_status", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, a.responseError("check_status", resp, raw)
	}

	var st moneyStatus
	if err := json.Unmarshal(raw, &st); err != nil {
		return nil, &outbound.ProviderError{
			Rail:       a.cfg.Rail,
			Operation:  "check_status",
			StatusCode: resp.StatusCode,
			Message:    "undecodable status response",
			Err:        err,
		}
	}

	code, message := parseReason(st.Reason)
	return &model.ProviderStatus{
		CorrelationID:          correlationID,
		Status:                 mapMoneyStatus(st.Status),
		Amount:                 st.Amount,
		Currency:               strings.ToUpper(st.Currency),
		ReasonCode:             code,
		Reason:                 message,
		FinancialTransactionID: st.FinancialTransactionID,
		Raw:                    raw,
	}, nil
}

func (a *mobileMoneyAdapter) NotifyCounterparty(ctx context.Context, event *model.ProviderStatusEvent, leg model.Leg) error {
	return a.notifier.notify(ctx, event, leg)
}

func (a *mobileMoneyAdapter) post(ctx context.Context, operation, path, key, referenceID string, leg model.Leg, body moneyRequest) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode %s request: %w", operation, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.BaseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	a.setHeaders(req, key)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Reference-Id", referenceID)
	if a.cfg.CallbackURL != "" {
		req.Header.Set("X-Callback-Url", strings.TrimRight(a.cfg.CallbackURL, "/")+"/"+strings.ToLower(string(leg)))
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return a.transportError(operation, err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusAccepted && resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return a.responseError(operation, resp, raw)
	}

	a.logger.Debug("mobile money request accepted",
		zap.String("rail", string(a.cfg.Rail)),
		zap.String("operation", operation),
		zap.String("reference_id", referenceID),
	)
	return nil
}

func (a *mobileMoneyAdapter) setHeaders(req *http.Request, key string) {
	if key != "" {
		req.Header.Set("Ocp-Apim-Subscription-Key", key)
	}
	if a.cfg.TargetEnvironment != "" {
		req.Header.Set("X-Target-Environment", a.cfg.TargetEnvironment)
	}
}

func (a *mobileMoneyAdapter) transportError(operation string, err error) error {
	pe := &outbound.ProviderError{
		Rail:      a.cfg.Rail,
		Operation: operation,
		Temporary: true,
		Err:       err,
	}
	// Token endpoint failures surface as *oauth2.RetrieveError inside url.Error.
	var re *oauth2.RetrieveError
	if errors.As(err, &re) && re.Response != nil {
		pe.Temporary = false
		pe.StatusCode = re.Response.StatusCode
		pe.Code = "TOKEN_REJECTED"
		if re.ErrorCode != "" {
			pe.Code = strings.ToUpper(re.ErrorCode)
		}
	}
	return pe
}

func (a *mobileMoneyAdapter) responseError(operation string, resp *http.Response, raw []byte) error {
	var body apiError
	_ = json.Unmarshal(raw, &body)
	return &outbound.ProviderError{
		Rail:       a.cfg.Rail,
		Operation:  operation,
		StatusCode: resp.StatusCode,
		Code:       body.Code,
		Message:    body.Message,
		RetryAfter: retryAfter(resp.Header.Get("Retry-After")),
	}
}

// referenceID returns ref when it is already a UUID, as the API requires,
// and a fresh one otherwise.
func referenceID(ref string) string {
	if _, err := uuid.Parse(ref); err == nil {
		return ref
	}
	return uuid.NewString()
}

func mapMoneyStatus(s string) model.ProviderStatusValue {
	switch strings.ToUpper(s) {
	case "SUCCESSFUL", "SUCCESS", "SUCCEEDED":
		return model.ProviderStatusSuccessful
	case "FAILED", "REJECTED", "TIMEOUT", "EXPIRED", "CANCELLED":
		return model.ProviderStatusFailed
	default:
		return model.ProviderStatusPending
	}
}

// parseReason accepts both the bare string and the {code, message} forms.
func parseReason(raw json.RawMessage) (string, string) {
	if len(raw) == 0 || string(raw) == "null" {
		return "", ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.ToUpper(s), ""
	}
	var obj apiError
	if err := json.Unmarshal(raw, &obj); err == nil {
		return strings.ToUpper(obj.Code), obj.Message
	}
	return "", ""
}

func retryAfter(h string) time.Duration {
	if h == "" {
		return 0
	}
	if secs, err := strconv.Atoi(strings.TrimSpace(h)); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(h); err == nil {
		if d := time.Until(at); d > 0 {
			return d
		}
	}
	return 0
}

// Compile-time check
var _ outbound.ProviderAdapterPort = (*mobileMoneyAdapter)(nil)
