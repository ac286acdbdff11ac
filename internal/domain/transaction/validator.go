package transaction

import (
	"bytes"
	"encoding/json"
	"errors"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/paylink/reconciler/internal/model"
)

// WebhookMeta describes where a webhook came from.
type WebhookMeta struct {
	Rail    model.PaymentMethod
	Leg     model.Leg
	Headers map[string]string
}

// webhookPayload is the normalized callback body shared by all rails.
type webhookPayload struct {
	ExternalID             string      `json:"externalId" validate:"required"`
	Amount                 amountField `json:"amount" validate:"required,numeric"`
	Currency               string      `json:"currency" validate:"required,alpha,len=3"`
	Status                 string      `json:"status" validate:"required,oneof=PENDING SUCCESSFUL FAILED"`
	Reason                 reasonField `json:"reason"`
	FinancialTransactionID string      `json:"financialTransactionId"`
	PayerMessage           string      `json:"payerMessage"`
	PayeeNote              string      `json:"payeeNote"`
}

// amountField accepts both JSON numbers and numeric strings.
type amountField string

func (a *amountField) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "null" {
		*a = ""
		return nil
	}
	if strings.HasPrefix(s, `"`) {
		unquoted, err := strconv.Unquote(s)
		if err != nil {
			return err
		}
		s = strings.TrimSpace(unquoted)
	}
	*a = amountField(s)
	return nil
}

// reasonField accepts a plain string or an object with a code, as mobile
// rails send either depending on API version.
type reasonField string

func (r *reasonField) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*r = reasonField(s)
		return nil
	}
	var obj struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(b, &obj); err != nil {
		*r = ""
		return nil
	}
	*r = reasonField(obj.Code)
	return nil
}

// WebhookValidator checks inbound webhook bodies before anything else sees them.
// It holds no state between calls.
type WebhookValidator struct {
	validate *validator.Validate
}

// NewWebhookValidator creates a validator that reports JSON field names.
func NewWebhookValidator() *WebhookValidator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return &WebhookValidator{validate: v}
}

// Validate parses and checks a raw webhook body.
// Unparseable bodies yield MALFORMED_PAYLOAD; missing or invalid fields yield
// MISSING_REQUIRED_FIELDS with the offending field names in Details.
func (v *WebhookValidator) Validate(raw []byte, meta WebhookMeta) (*model.ProviderStatusEvent, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, newError(CodeMalformedPayload, nil)
	}

	var payload webhookPayload
	if err := json.Unmarshal(trimmed, &payload); err != nil {
		return nil, newError(CodeMalformedPayload, err)
	}

	payload.ExternalID = strings.TrimSpace(payload.ExternalID)
	payload.Currency = strings.ToUpper(strings.TrimSpace(payload.Currency))
	payload.Status = strings.ToUpper(strings.TrimSpace(payload.Status))

	if err := v.validate.Struct(payload); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fe.Field())
			}
			return nil, missingFields(fields)
		}
		return nil, newError(CodeMalformedPayload, err)
	}

	amount, err := decimal.NewFromString(string(payload.Amount))
	if err != nil {
		return nil, missingFields([]string{"amount"})
	}

	metadata := map[string]string{
		"rail": string(meta.Rail),
		"leg":  string(meta.Leg),
	}
	if payload.FinancialTransactionID != "" {
		metadata["financialTransactionId"] = payload.FinancialTransactionID
	}
	if payload.PayerMessage != "" {
		metadata["payerMessage"] = payload.PayerMessage
	}
	if payload.PayeeNote != "" {
		metadata["payeeNote"] = payload.PayeeNote
	}

	return &model.ProviderStatusEvent{
		CorrelationID:    payload.ExternalID,
		Amount:           amount,
		Currency:         payload.Currency,
		Status:           model.ProviderStatusValue(payload.Status),
		ReasonCode:       strings.ToUpper(string(payload.Reason)),
		ProviderMetadata: metadata,
	}, nil
}
