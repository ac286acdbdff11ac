package model

import "strings"

// TransactionStatus represents the lifecycle status of a transaction.
type TransactionStatus string

const (
	TransactionStatusPaymentRequestCreated        TransactionStatus = "PAYMENT_REQUEST_CREATED"
	TransactionStatusSuccessful                   TransactionStatus = "SUCCESSFUL"
	TransactionStatusFailed                       TransactionStatus = "FAILED"
	TransactionStatusSettlementPending            TransactionStatus = "SETTLEMENT_PENDING"
	TransactionStatusSettlementSuccessful         TransactionStatus = "SETTLEMENT_SUCCESSFUL"
	TransactionStatusSettlementFailed             TransactionStatus = "SETTLEMENT_FAILED"
	TransactionStatusCustomerRefundRequestCreated TransactionStatus = "CUSTOMER_REFUND_REQUEST_CREATED"
	TransactionStatusCustomerRefundSuccessful     TransactionStatus = "CUSTOMER_REFUND_SUCCESSFUL"
	TransactionStatusCustomerRefundFailed         TransactionStatus = "CUSTOMER_REFUND_FAILED"
	TransactionStatusMerchantRefundRequestCreated TransactionStatus = "MERCHANT_REFUND_REQUEST_CREATED"
	TransactionStatusMerchantRefundSuccessful     TransactionStatus = "MERCHANT_REFUND_SUCCESSFUL"
	TransactionStatusMerchantRefundFailed         TransactionStatus = "MERCHANT_REFUND_FAILED"
)

// refundPhase is every status reachable once the first customer refund was
// requested. Several refund legs can be outstanding at the same time and the
// status records the latest leg event, so each refund status may follow any
// other. The leg's own history entry decides whether an event is accepted:
// a refund leg resolves exactly once, and a merchant leg is only started for
// a successful customer refund that has none yet.
var refundPhase = []TransactionStatus{
	TransactionStatusCustomerRefundRequestCreated,
	TransactionStatusCustomerRefundSuccessful,
	TransactionStatusCustomerRefundFailed,
	TransactionStatusMerchantRefundRequestCreated,
	TransactionStatusMerchantRefundSuccessful,
	TransactionStatusMerchantRefundFailed,
}

// transactionTransitions is the closed transition table. A status that is
// missing from the table, or a target missing from its row, is rejected.
var transactionTransitions = map[TransactionStatus][]TransactionStatus{
	TransactionStatusPaymentRequestCreated: {
		TransactionStatusSuccessful,
		TransactionStatusFailed,
	},
	TransactionStatusSuccessful: {
		TransactionStatusSettlementPending,
		TransactionStatusCustomerRefundRequestCreated,
	},
	TransactionStatusSettlementPending: {
		TransactionStatusSettlementSuccessful,
		TransactionStatusSettlementFailed,
	},
	TransactionStatusSettlementSuccessful: {
		TransactionStatusCustomerRefundRequestCreated,
	},
	TransactionStatusSettlementFailed: {
		TransactionStatusCustomerRefundRequestCreated,
	},
	TransactionStatusCustomerRefundRequestCreated: refundPhase,
	TransactionStatusCustomerRefundSuccessful:     refundPhase,
	TransactionStatusCustomerRefundFailed:         refundPhase,
	TransactionStatusMerchantRefundRequestCreated: refundPhase,
	TransactionStatusMerchantRefundSuccessful:     refundPhase,
	TransactionStatusMerchantRefundFailed:         refundPhase,
	TransactionStatusFailed:                       {},
}

// IsValid returns true if the status is part of the closed status set.
func (s TransactionStatus) IsValid() bool {
	_, ok := transactionTransitions[s]
	return ok
}

// CanTransitionTo returns true if the status can transition to the target status.
func (s TransactionStatus) CanTransitionTo(target TransactionStatus) bool {
	for _, allowed := range transactionTransitions[s] {
		if allowed == target {
			return true
		}
	}
	return false
}

// IsTerminal returns true if no transition leaves this status.
func (s TransactionStatus) IsTerminal() bool {
	next, ok := transactionTransitions[s]
	return ok && len(next) == 0
}

// IsFailure returns true for statuses that record a failed leg.
func (s TransactionStatus) IsFailure() bool {
	return strings.HasSuffix(string(s), "FAILED")
}

// IsRefundPhase returns true once the transaction has entered the refund cascade,
// i.e. its status is at or beyond CUSTOMER_REFUND_REQUEST_CREATED.
func (s TransactionStatus) IsRefundPhase() bool {
	return strings.HasPrefix(string(s), "CUSTOMER_REFUND_") || s.IsMerchantRefund()
}

// IsMerchantRefund returns true for any merchant-refund leg status.
func (s TransactionStatus) IsMerchantRefund() bool {
	return strings.HasPrefix(string(s), "MERCHANT_REFUND_")
}

// IsPaid returns true when the payment leg has succeeded, regardless of
// what happened to later legs.
func (s TransactionStatus) IsPaid() bool {
	return s != TransactionStatusPaymentRequestCreated && s != TransactionStatusFailed && s.IsValid()
}

// PaymentMethod identifies the payment rail a transaction was paid on.
type PaymentMethod string

const (
	PaymentMethodCard    PaymentMethod = "CARD"
	PaymentMethodMobileA PaymentMethod = "MOBILE_A"
	PaymentMethodMobileB PaymentMethod = "MOBILE_B"
)

// IsValid returns true for a known rail.
func (m PaymentMethod) IsValid() bool {
	switch m {
	case PaymentMethodCard, PaymentMethodMobileA, PaymentMethodMobileB:
		return true
	default:
		return false
	}
}

// ParsePaymentMethod parses a rail name as used in URLs (card, mobile_a, mobile_b).
func ParsePaymentMethod(s string) (PaymentMethod, bool) {
	m := PaymentMethod(strings.ToUpper(strings.TrimSpace(s)))
	return m, m.IsValid()
}

// Leg identifies which money movement a provider notification refers to.
type Leg string

const (
	LegPayment        Leg = "PAYMENT"
	LegSettlement     Leg = "SETTLEMENT"
	LegCustomerRefund Leg = "CUSTOMER_REFUND"
	LegMerchantRefund Leg = "MERCHANT_REFUND"
)

// IsValid returns true for a known leg.
func (l Leg) IsValid() bool {
	switch l {
	case LegPayment, LegSettlement, LegCustomerRefund, LegMerchantRefund:
		return true
	default:
		return false
	}
}

// ParseLeg parses a leg name as used in URLs (payment, settlement, customer_refund, merchant_refund).
func ParseLeg(s string) (Leg, bool) {
	l := Leg(strings.ToUpper(strings.TrimSpace(s)))
	return l, l.IsValid()
}

// TargetStatus returns the transaction status a terminal provider status moves
// the given leg to. ok is false for PENDING.
func (l Leg) TargetStatus(ps ProviderStatusValue) (TransactionStatus, bool) {
	if ps == ProviderStatusPending {
		return "", false
	}
	success := ps == ProviderStatusSuccessful
	switch l {
	case LegPayment:
		if success {
			return TransactionStatusSuccessful, true
		}
		return TransactionStatusFailed, true
	case LegSettlement:
		if success {
			return TransactionStatusSettlementSuccessful, true
		}
		return TransactionStatusSettlementFailed, true
	case LegCustomerRefund:
		if success {
			return TransactionStatusCustomerRefundSuccessful, true
		}
		return TransactionStatusCustomerRefundFailed, true
	case LegMerchantRefund:
		if success {
			return TransactionStatusMerchantRefundSuccessful, true
		}
		return TransactionStatusMerchantRefundFailed, true
	}
	return "", false
}

// ProviderStatusValue is the status vocabulary shared by all rails.
type ProviderStatusValue string

const (
	ProviderStatusPending    ProviderStatusValue = "PENDING"
	ProviderStatusSuccessful ProviderStatusValue = "SUCCESSFUL"
	ProviderStatusFailed     ProviderStatusValue = "FAILED"
)

// IsTerminal returns true for SUCCESSFUL and FAILED.
func (p ProviderStatusValue) IsTerminal() bool {
	return p == ProviderStatusSuccessful || p == ProviderStatusFailed
}

// Outcome classifies how a webhook or cascade request was handled.
type Outcome string

const (
	OutcomeApplied          Outcome = "APPLIED"
	OutcomeAlreadyProcessed Outcome = "ALREADY_PROCESSED"
	OutcomePending          Outcome = "PENDING"
)

// EventType is the type carried by outbound transaction events.
type EventType string

const (
	EventTypeCreate     EventType = "CREATE"
	EventTypePayment    EventType = "PAYMENT"
	EventTypeSettlement EventType = "SETTLEMENT"
	EventTypeUpdate     EventType = "UPDATE"
	EventTypeFailed     EventType = "FAILED"
)

// EventTypeFor returns the outbound event type for a status change.
func EventTypeFor(s TransactionStatus) EventType {
	switch {
	case s == TransactionStatusPaymentRequestCreated:
		return EventTypeCreate
	case strings.HasPrefix(string(s), "SETTLEMENT_"):
		return EventTypeSettlement
	case s.IsFailure():
		return EventTypeFailed
	case s == TransactionStatusSuccessful:
		return EventTypePayment
	default:
		return EventTypeUpdate
	}
}
