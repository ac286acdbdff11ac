package transaction

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"

	"github.com/paylink/reconciler/internal/model"
)

// legUpdate is a provider-confirmed terminal status for one leg of a transaction.
type legUpdate struct {
	Leg           model.Leg
	Rail          model.PaymentMethod
	CorrelationID string
	// ClaimedAmount is the webhook's amount, used when no request entry exists.
	ClaimedAmount decimal.Decimal
	Result        *ReconciledStatus
	Now           time.Time
}

// StateMachine applies provider-confirmed statuses to a transaction in memory.
// Callers persist the result; the machine never touches storage.
type StateMachine struct {
	fees *FeeCalculator
}

// NewStateMachine creates a state machine using fees for settlement amounts.
func NewStateMachine(fees *FeeCalculator) *StateMachine {
	return &StateMachine{fees: fees}
}

// Transition moves tx to target if the transition table allows it.
func (m *StateMachine) Transition(tx *model.Transaction, target model.TransactionStatus) error {
	if !tx.Status.CanTransitionTo(target) {
		return invalidTransition(tx.Status, target)
	}
	tx.Status = target
	return nil
}

// Apply applies u to tx. It returns OutcomeAlreadyProcessed without touching
// tx when the same terminal status was applied before, and OutcomePending for
// non-terminal provider answers.
func (m *StateMachine) Apply(tx *model.Transaction, u legUpdate) (model.Outcome, error) {
	target, ok := u.Leg.TargetStatus(u.Result.Status)
	if !ok {
		return model.OutcomePending, nil
	}
	if m.alreadyApplied(tx, u, target) {
		return model.OutcomeAlreadyProcessed, nil
	}
	if !tx.Status.CanTransitionTo(target) {
		return "", invalidTransition(tx.Status, target)
	}

	switch u.Leg {
	case model.LegPayment:
		if err := m.applyPayment(tx, u); err != nil {
			return "", err
		}
	case model.LegSettlement:
		m.applySettlement(tx, u)
	case model.LegCustomerRefund:
		m.applyCustomerRefund(tx, u)
	case model.LegMerchantRefund:
		m.applyMerchantRefund(tx, u)
	}

	tx.Status = target
	return model.OutcomeApplied, nil
}

func (m *StateMachine) alreadyApplied(tx *model.Transaction, u legUpdate, target model.TransactionStatus) bool {
	switch u.Leg {
	case model.LegPayment:
		if tx.Status == target {
			return true
		}
		// Later legs moved the status on; the payment itself is settled history.
		return target == model.TransactionStatusSuccessful && tx.Status.IsPaid()
	case model.LegSettlement:
		return tx.Status == target || tx.SettlementStatus == string(u.Result.Status)
	case model.LegCustomerRefund, model.LegMerchantRefund:
		// Several refund legs may be in flight; each resolves exactly once.
		entry, ok := tx.FindRefundLeg(u.Leg, u.CorrelationID)
		return ok && entry.IsTerminal()
	}
	return false
}

func (m *StateMachine) applyPayment(tx *model.Transaction, u legUpdate) error {
	if u.Result.Status == model.ProviderStatusFailed {
		tx.TransactionError = NewTransactionError(u.Result.ReasonCode, u.Result.Reason, string(u.Rail))
		return nil
	}

	breakdown, err := m.fees.Calculate(tx.Amount, tx.Currency)
	if err != nil {
		return internalError("calculate fee", err)
	}
	tx.Fee = breakdown.Fee
	tx.SettlementAmount = breakdown.Settlement
	if tx.ExternalID == "" {
		tx.ExternalID = u.Result.FinancialTransactionID
	}
	return nil
}

func (m *StateMachine) applySettlement(tx *model.Transaction, u legUpdate) {
	tx.SettlementStatus = string(u.Result.Status)
	tx.SettlementResponse = responseJSON(u)
	if u.Result.Status == model.ProviderStatusSuccessful {
		now := u.Now
		tx.SettlementDate = &now
		return
	}
	tx.TransactionError = NewTransactionError(u.Result.ReasonCode, u.Result.Reason, string(u.Rail))
}

func (m *StateMachine) applyCustomerRefund(tx *model.Transaction, u legUpdate) {
	requested, found := tx.FindCustomerRefund(u.CorrelationID)
	entry := newLegEntry(tx, u, requested, found)
	tx.CustomerRefundResponse = append(tx.CustomerRefundResponse, entry)

	if u.Result.Status == model.ProviderStatusFailed {
		// Release the amount reserved when the refund was requested.
		remaining := tx.TotalCustomerRefundAmount.Sub(entry.Amount)
		if remaining.IsNegative() {
			remaining = decimal.Zero
		}
		tx.TotalCustomerRefundAmount = remaining
		tx.TransactionError = NewTransactionError(u.Result.ReasonCode, u.Result.Reason, string(u.Rail))
	}
}

func (m *StateMachine) applyMerchantRefund(tx *model.Transaction, u legUpdate) {
	requested, found := tx.FindMerchantRefund(u.CorrelationID)
	entry := newLegEntry(tx, u, requested, found)
	tx.MerchantRefundResponse = append(tx.MerchantRefundResponse, entry)

	if u.Result.Status == model.ProviderStatusSuccessful {
		tx.TotalMerchantRefundAmount = tx.TotalMerchantRefundAmount.Add(entry.Amount)
		return
	}
	tx.TransactionError = NewTransactionError(u.Result.ReasonCode, u.Result.Reason, string(u.Rail))
}

// newLegEntry builds the terminal history entry, carrying amount and
// reference over from the request entry when there is one.
func newLegEntry(tx *model.Transaction, u legUpdate, requested model.LegResponse, found bool) model.LegResponse {
	entry := model.LegResponse{
		CorrelationID:          u.CorrelationID,
		Status:                 u.Result.Status,
		Amount:                 u.ClaimedAmount,
		Currency:               tx.Currency,
		Rail:                   u.Rail,
		ReasonCode:             u.Result.ReasonCode,
		FinancialTransactionID: u.Result.FinancialTransactionID,
		Reason:                 u.Result.Reason,
		RecordedAt:             u.Now,
	}
	if found {
		entry.Amount = requested.Amount
		entry.Reference = requested.Reference
		entry.Rail = requested.Rail
		entry.SourceCorrelationID = requested.SourceCorrelationID
	}
	return entry
}

func responseJSON(u legUpdate) datatypes.JSON {
	if len(u.Result.Raw) > 0 && json.Valid(u.Result.Raw) {
		return datatypes.JSON(u.Result.Raw)
	}
	b, _ := json.Marshal(map[string]string{
		"correlationId":          u.CorrelationID,
		"status":                 string(u.Result.Status),
		"reason":                 u.Result.ReasonCode,
		"financialTransactionId": u.Result.FinancialTransactionID,
	})
	return datatypes.JSON(b)
}
