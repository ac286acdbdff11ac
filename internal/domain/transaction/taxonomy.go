package transaction

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/paylink/reconciler/internal/model"
	"github.com/paylink/reconciler/internal/port/outbound"
)

// TaxonomyEntry describes how an error code is classified and surfaced.
type TaxonomyEntry struct {
	Code            string
	Category        Category
	Message         string
	Retryable       bool
	SuggestedAction string
	HTTPStatus      int
}

var taxonomy = map[string]TaxonomyEntry{
	CodeMalformedPayload: {
		Category:        CategoryValidation,
		Message:         "webhook payload is not valid JSON",
		SuggestedAction: "Fix the payload encoding and resend",
		HTTPStatus:      http.StatusBadRequest,
	},
	CodeMissingRequiredFields: {
		Category:        CategoryValidation,
		Message:         "webhook payload is missing required fields",
		SuggestedAction: "Include externalId, amount, currency and status",
		HTTPStatus:      http.StatusBadRequest,
	},
	CodeInvalidRequest: {
		Category:        CategoryValidation,
		Message:         "invalid request",
		SuggestedAction: "Correct the request and retry",
		HTTPStatus:      http.StatusBadRequest,
	},
	CodeInvalidRefundAmount: {
		Category:        CategoryValidation,
		Message:         "refund amount must be a positive amount in the currency's minor unit",
		SuggestedAction: "Request a positive refund amount",
		HTTPStatus:      http.StatusBadRequest,
	},
	CodeRefundAmountExceedsOriginal: {
		Category:        CategoryValidation,
		Message:         "refund amount exceeds the remaining refundable amount",
		SuggestedAction: "Request at most the remaining refundable amount",
		HTTPStatus:      http.StatusBadRequest,
	},
	CodeInvalidStatusTransition: {
		Category:        CategoryValidation,
		Message:         "status transition is not allowed",
		SuggestedAction: "Check the transaction status before retrying",
		HTTPStatus:      http.StatusConflict,
	},
	CodeMerchantRefundNotAllowed: {
		Category:        CategoryValidation,
		Message:         "merchant refund requires a customer refund first",
		SuggestedAction: "Refund the customer before refunding the merchant leg",
		HTTPStatus:      http.StatusConflict,
	},
	CodeTransactionNotFound: {
		Category:        CategoryValidation,
		Message:         "transaction not found",
		SuggestedAction: "Check the transaction or correlation id",
		HTTPStatus:      http.StatusNotFound,
	},
	CodeUnsupportedRail: {
		Category:        CategoryValidation,
		Message:         "payment rail is not supported",
		SuggestedAction: "Use one of CARD, MOBILE_A or MOBILE_B",
		HTTPStatus:      http.StatusBadRequest,
	},
	CodeProviderUnavailable: {
		Category:        CategoryProvider,
		Message:         "payment provider is unavailable",
		Retryable:       true,
		SuggestedAction: "Retry later",
		HTTPStatus:      http.StatusServiceUnavailable,
	},
	CodeProviderRejected: {
		Category:        CategoryProvider,
		Message:         "payment provider rejected the request",
		SuggestedAction: "Inspect the provider reason code",
		HTTPStatus:      http.StatusBadGateway,
	},
	CodePaymentInitiationFailed: {
		Category:        CategoryProvider,
		Message:         "payment request could not be initiated",
		SuggestedAction: "Inspect the provider error and create a new payment",
		HTTPStatus:      http.StatusBadGateway,
	},
	CodeTransferInitiationFailed: {
		Category:        CategoryProvider,
		Message:         "transfer could not be initiated",
		SuggestedAction: "Retry the request once the provider recovers",
		HTTPStatus:      http.StatusBadGateway,
	},
	CodeConcurrentModification: {
		Category:        CategorySystem,
		Message:         "transaction was modified concurrently",
		Retryable:       true,
		SuggestedAction: "Retry the request",
		HTTPStatus:      http.StatusConflict,
	},
	CodeInternal: {
		Category:        CategorySystem,
		Message:         "internal error",
		SuggestedAction: "Contact support with the request id",
		HTTPStatus:      http.StatusInternalServerError,
	},
}

// providerReasons maps provider reason codes from all rails to a classification.
// Keys are upper-cased.
var providerReasons = map[string]TaxonomyEntry{
	// Mobile money rails.
	"PAYER_NOT_FOUND":                {Message: "payer account not found", SuggestedAction: "Verify the payer phone number", HTTPStatus: http.StatusUnprocessableEntity},
	"PAYEE_NOT_FOUND":                {Message: "payee account not found", SuggestedAction: "Verify the payee phone number", HTTPStatus: http.StatusUnprocessableEntity},
	"NOT_ENOUGH_FUNDS":               {Message: "insufficient funds", SuggestedAction: "Ask the payer to top up and retry", HTTPStatus: http.StatusPaymentRequired},
	"PAYER_LIMIT_REACHED":            {Message: "payer limit reached", SuggestedAction: "Retry after the payer's limit resets", HTTPStatus: http.StatusUnprocessableEntity},
	"PAYEE_NOT_ALLOWED_TO_RECEIVE":   {Message: "payee cannot receive funds", SuggestedAction: "Use a different payee account", HTTPStatus: http.StatusUnprocessableEntity},
	"NOT_ALLOWED":                    {Message: "operation not allowed", SuggestedAction: "Check the account permissions", HTTPStatus: http.StatusForbidden},
	"NOT_ALLOWED_TARGET_ENVIRONMENT": {Message: "target environment not allowed", SuggestedAction: "Check the provider environment configuration", HTTPStatus: http.StatusForbidden},
	"INVALID_CURRENCY":               {Message: "currency not supported", SuggestedAction: "Use a supported currency", HTTPStatus: http.StatusUnprocessableEntity},
	"APPROVAL_REJECTED":              {Message: "payer rejected the request", SuggestedAction: "Ask the payer to approve and retry", HTTPStatus: http.StatusUnprocessableEntity},
	"EXPIRED":                        {Message: "request expired before approval", SuggestedAction: "Create a new request", HTTPStatus: http.StatusUnprocessableEntity},
	"TRANSACTION_CANCELED":           {Message: "transaction canceled", SuggestedAction: "Create a new request", HTTPStatus: http.StatusUnprocessableEntity},
	"RESOURCE_NOT_FOUND":             {Message: "provider has no record of the request", SuggestedAction: "Check the correlation id", HTTPStatus: http.StatusNotFound},
	"RESOURCE_ALREADY_EXIST":         {Message: "duplicate reference", SuggestedAction: "Use a new reference id", HTTPStatus: http.StatusConflict},
	"COULD_NOT_PERFORM_TRANSACTION":  {Message: "provider could not perform the transaction", SuggestedAction: "Retry later", HTTPStatus: http.StatusBadGateway},
	"SERVICE_UNAVAILABLE":            {Message: "provider service unavailable", Retryable: true, SuggestedAction: "Retry later", HTTPStatus: http.StatusServiceUnavailable},
	"INTERNAL_PROCESSING_ERROR":      {Message: "provider internal error", Retryable: true, SuggestedAction: "Retry later", HTTPStatus: http.StatusBadGateway},
	"THROTTLED":                      {Message: "provider throttled the request", Retryable: true, SuggestedAction: "Retry with backoff", HTTPStatus: http.StatusTooManyRequests},
	"TOO_MANY_REQUESTS":              {Message: "provider throttled the request", Retryable: true, SuggestedAction: "Retry with backoff", HTTPStatus: http.StatusTooManyRequests},

	// Card rail.
	"CARD_DECLINED":           {Message: "card declined", SuggestedAction: "Ask the customer for another card", HTTPStatus: http.StatusPaymentRequired},
	"INSUFFICIENT_FUNDS":      {Message: "insufficient funds", SuggestedAction: "Ask the customer for another card", HTTPStatus: http.StatusPaymentRequired},
	"EXPIRED_CARD":            {Message: "card expired", SuggestedAction: "Ask the customer for another card", HTTPStatus: http.StatusPaymentRequired},
	"INCORRECT_CVC":           {Message: "incorrect card security code", SuggestedAction: "Ask the customer to re-enter card details", HTTPStatus: http.StatusPaymentRequired},
	"AUTHENTICATION_REQUIRED": {Message: "card requires authentication", SuggestedAction: "Complete 3-D Secure and retry", HTTPStatus: http.StatusPaymentRequired},
	"BALANCE_INSUFFICIENT":    {Message: "platform balance insufficient for transfer", SuggestedAction: "Top up the platform balance", HTTPStatus: http.StatusUnprocessableEntity},
	"CHARGE_ALREADY_REFUNDED": {Message: "charge already refunded", SuggestedAction: "No action needed", HTTPStatus: http.StatusConflict},
	"PROCESSING_ERROR":        {Message: "card processing error", Retryable: true, SuggestedAction: "Retry later", HTTPStatus: http.StatusBadGateway},
	"RATE_LIMIT":              {Message: "provider rate limit reached", Retryable: true, SuggestedAction: "Retry with backoff", HTTPStatus: http.StatusTooManyRequests},
	"LOCK_TIMEOUT":            {Message: "provider lock timeout", Retryable: true, SuggestedAction: "Retry later", HTTPStatus: http.StatusServiceUnavailable},

	// Adapter-level.
	"CIRCUIT_OPEN": {Message: "provider circuit open", SuggestedAction: "Wait for the provider to recover", HTTPStatus: http.StatusServiceUnavailable},
}

func init() {
	for code, entry := range providerReasons {
		entry.Code = code
		entry.Category = CategoryProvider
		providerReasons[code] = entry
	}
}

// Lookup returns the taxonomy entry for an error code. Unknown codes map to INTERNAL_ERROR.
func Lookup(code string) TaxonomyEntry {
	entry, ok := taxonomy[code]
	if !ok {
		code = CodeInternal
		entry = taxonomy[CodeInternal]
	}
	entry.Code = code
	return entry
}

// LookupProviderReason classifies a provider reason code. ok is false for
// codes the table does not know.
func LookupProviderReason(reason string) (TaxonomyEntry, bool) {
	entry, ok := providerReasons[strings.ToUpper(strings.TrimSpace(reason))]
	return entry, ok
}

// IsRetryable reports whether an operation that failed with err may be retried.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Retryable
	}

	var provErr *outbound.ProviderError
	if errors.As(err, &provErr) {
		if provErr.Temporary {
			return true
		}
		if entry, ok := LookupProviderReason(provErr.Code); ok {
			return entry.Retryable
		}
		return provErr.StatusCode == http.StatusTooManyRequests || provErr.StatusCode >= http.StatusInternalServerError
	}

	if errors.Is(err, outbound.ErrLockTimeout) {
		return true
	}

	var netErr net.Error
	return errors.As(err, &netErr)
}

// RetryAfter returns the provider's Retry-After hint carried by err, if any.
func RetryAfter(err error) time.Duration {
	var provErr *outbound.ProviderError
	if errors.As(err, &provErr) {
		return provErr.RetryAfter
	}
	return 0
}

// Classify converts any error into a DomainError. Provider errors become
// PROVIDER_UNAVAILABLE when retryable and PROVIDER_REJECTED otherwise.
func Classify(err error) *DomainError {
	if err == nil {
		return nil
	}

	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr
	}

	var provErr *outbound.ProviderError
	if errors.As(err, &provErr) {
		code := CodeProviderRejected
		if IsRetryable(err) || provErr.Code == "CIRCUIT_OPEN" {
			code = CodeProviderUnavailable
		}
		de := newError(code, err)
		details := map[string]any{"rail": string(provErr.Rail)}
		if provErr.Code != "" {
			details["provider_code"] = provErr.Code
		}
		if entry, ok := LookupProviderReason(provErr.Code); ok {
			de.Message = entry.Message
			de.SuggestedAction = entry.SuggestedAction
		}
		de.Details = details
		return de
	}

	if errors.Is(err, outbound.ErrConcurrentModification) {
		return newError(CodeConcurrentModification, err)
	}

	if IsRetryable(err) {
		return newError(CodeProviderUnavailable, err)
	}

	return newError(CodeInternal, err)
}

// NewTransactionError builds the error record stored on a transaction for a
// failed leg. reason is the provider's reason code; source names the rail
// or component that reported the failure.
func NewTransactionError(reason, fallbackMessage, source string) *model.TransactionError {
	te := &model.TransactionError{
		ErrorCode:    strings.ToUpper(reason),
		ErrorMessage: fallbackMessage,
		ErrorType:    string(CategoryProvider),
		ErrorSource:  source,
	}
	if entry, ok := LookupProviderReason(reason); ok {
		te.ErrorMessage = entry.Message
		te.ErrorType = string(entry.Category)
	}
	if te.ErrorCode == "" {
		te.ErrorCode = CodeProviderRejected
	}
	if te.ErrorMessage == "" {
		te.ErrorMessage = Lookup(CodeProviderRejected).Message
	}
	return te
}

// TransactionErrorFrom builds the error record for a failure that happened on
// our side of a provider call.
func TransactionErrorFrom(err error, source string) *model.TransactionError {
	de := Classify(err)
	code := de.Code
	if pc, ok := de.Details["provider_code"].(string); ok && pc != "" {
		code = strings.ToUpper(pc)
	}
	return &model.TransactionError{
		ErrorCode:    code,
		ErrorMessage: de.Message,
		ErrorType:    string(de.Category),
		ErrorSource:  source,
	}
}
