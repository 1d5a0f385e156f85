package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Routing keys published on the events exchange.
const (
	EventSubmissionPaid       = "settlement.submission.paid"
	EventBalanceDeposited     = "settlement.balance.deposited"
	EventLedgerAuditViolation = "ledger.audit.violation"
)

// SubmissionPaidEvent is emitted after a settlement commits.
type SubmissionPaidEvent struct {
	SubmissionID string          `json:"submission_id"`
	AgreementID  string          `json:"agreement_id"`
	BuyerID      string          `json:"buyer_id"`
	SupplierID   string          `json:"supplier_id"`
	Amount       decimal.Decimal `json:"amount"`
	PaidAt       time.Time       `json:"paid_at"`
}

// BalanceDepositedEvent is emitted after a deposit commits.
type BalanceDepositedEvent struct {
	AccountID  string          `json:"account_id"`
	Amount     decimal.Decimal `json:"amount"`
	NewBalance decimal.Decimal `json:"new_balance"`
	Timestamp  time.Time       `json:"timestamp"`
}

// LedgerViolationEvent is emitted once per violation found by a ledger audit.
type LedgerViolationEvent struct {
	Kind      ViolationKind   `json:"kind"`
	EntityID  string          `json:"entity_id"`
	Amount    decimal.Decimal `json:"amount"`
	AuditedAt time.Time       `json:"audited_at"`
}
