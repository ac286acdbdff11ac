package transaction

import (
	"fmt"

	"github.com/paylink/reconciler/internal/model"
)

// Category groups error codes by who is at fault.
type Category string

const (
	CategoryValidation Category = "VALIDATION_ERROR"
	CategoryProvider   Category = "PROVIDER_ERROR"
	CategorySystem     Category = "SYSTEM_ERROR"
)

// Error codes.
const (
	CodeMalformedPayload            = "MALFORMED_PAYLOAD"
	CodeMissingRequiredFields       = "MISSING_REQUIRED_FIELDS"
	CodeInvalidRequest              = "INVALID_REQUEST"
	CodeInvalidRefundAmount         = "INVALID_REFUND_AMOUNT"
	CodeRefundAmountExceedsOriginal = "REFUND_AMOUNT_EXCEEDS_ORIGINAL"
	CodeInvalidStatusTransition     = "INVALID_STATUS_TRANSITION"
	CodeMerchantRefundNotAllowed    = "MERCHANT_REFUND_NOT_ALLOWED"
	CodeTransactionNotFound         = "TRANSACTION_NOT_FOUND"
	CodeUnsupportedRail             = "UNSUPPORTED_RAIL"
	CodeProviderUnavailable         = "PROVIDER_UNAVAILABLE"
	CodeProviderRejected            = "PROVIDER_REJECTED"
	CodePaymentInitiationFailed     = "PAYMENT_INITIATION_FAILED"
	CodeTransferInitiationFailed    = "TRANSFER_INITIATION_FAILED"
	CodeConcurrentModification      = "CONCURRENT_MODIFICATION"
	CodeInternal                    = "INTERNAL_ERROR"
)

// DomainError is the single error shape the transaction domain returns.
type DomainError struct {
	Code            string
	Category        Category
	Message         string
	Retryable       bool
	SuggestedAction string
	HTTPStatus      int
	Details         map[string]any
	Err             error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return e.Code + ": " + e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// Is matches on the error code so sentinels work with errors.Is.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	return ok && t.Code == e.Code
}

// WithDetails returns a copy of e carrying the given details.
func (e *DomainError) WithDetails(details map[string]any) *DomainError {
	c := *e
	c.Details = details
	return &c
}

// newError builds a DomainError from the taxonomy entry for code.
func newError(code string, err error) *DomainError {
	entry := Lookup(code)
	return &DomainError{
		Code:            entry.Code,
		Category:        entry.Category,
		Message:         entry.Message,
		Retryable:       entry.Retryable,
		SuggestedAction: entry.SuggestedAction,
		HTTPStatus:      entry.HTTPStatus,
		Err:             err,
	}
}

var (
	// ErrTransactionNotFound is returned when no transaction matches an id.
	ErrTransactionNotFound = newError(CodeTransactionNotFound, nil)

	// ErrInvalidStatusTransition is returned when the transition table rejects a move.
	ErrInvalidStatusTransition = newError(CodeInvalidStatusTransition, nil)

	// ErrRefundAmountExceedsOriginal is returned when a refund would exceed the payment amount.
	ErrRefundAmountExceedsOriginal = newError(CodeRefundAmountExceedsOriginal, nil)

	// ErrInvalidRefundAmount is returned for non-positive or over-precise refund amounts.
	ErrInvalidRefundAmount = newError(CodeInvalidRefundAmount, nil)

	// ErrMerchantRefundNotAllowed is returned when the cascade is triggered too early.
	ErrMerchantRefundNotAllowed = newError(CodeMerchantRefundNotAllowed, nil)

	// ErrMalformedPayload is returned for webhook bodies that are not JSON objects.
	ErrMalformedPayload = newError(CodeMalformedPayload, nil)

	// ErrMissingRequiredFields is returned for webhook bodies missing required fields.
	ErrMissingRequiredFields = newError(CodeMissingRequiredFields, nil)

	// ErrInvalidRequest is returned for malformed API requests.
	ErrInvalidRequest = newError(CodeInvalidRequest, nil)

	// ErrUnsupportedRail is returned when no adapter serves a rail.
	ErrUnsupportedRail = newError(CodeUnsupportedRail, nil)

	// ErrProviderUnavailable is returned when the provider could not be reached.
	ErrProviderUnavailable = newError(CodeProviderUnavailable, nil)

	// ErrTransferInitiationFailed is returned when an outbound transfer could not be started.
	ErrTransferInitiationFailed = newError(CodeTransferInitiationFailed, nil)

	// ErrPaymentInitiationFailed is returned when a payment request could not be started.
	ErrPaymentInitiationFailed = newError(CodePaymentInitiationFailed, nil)

	// ErrConcurrentModification is returned when optimistic retries are exhausted.
	ErrConcurrentModification = newError(CodeConcurrentModification, nil)

	// ErrInternal is returned for unexpected system failures.
	ErrInternal = newError(CodeInternal, nil)
)

func invalidTransition(from, to model.TransactionStatus) *DomainError {
	return newError(CodeInvalidStatusTransition, nil).WithDetails(map[string]any{
		"from": string(from),
		"to":   string(to),
	})
}

func missingFields(fields []string) *DomainError {
	return newError(CodeMissingRequiredFields, nil).WithDetails(map[string]any{
		"fields": fields,
	})
}

func invalidRequest(reason string) *DomainError {
	e := newError(CodeInvalidRequest, nil)
	e.Message = e.Message + ": " + reason
	return e
}

func internalError(op string, err error) *DomainError {
	return newError(CodeInternal, fmt.Errorf("%s: %w", op, err))
}
