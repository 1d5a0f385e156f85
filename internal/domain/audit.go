package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// ViolationKind names a broken ledger invariant.
type ViolationKind string

const (
	ViolationNegativeBalance ViolationKind = "negative_balance"
	ViolationPaidWithoutDate ViolationKind = "paid_without_payment_date"
	ViolationUnpaidWithDate  ViolationKind = "unpaid_with_payment_date"
)

// LedgerViolation is a single record that breaks a ledger invariant.
type LedgerViolation struct {
	Kind     ViolationKind   `json:"kind"`
	EntityID string          `json:"entityId"`
	Amount   decimal.Decimal `json:"amount"`
}

// LedgerTotals aggregates balances and unpaid obligations across the store.
type LedgerTotals struct {
	TotalBalance     decimal.Decimal `json:"totalBalance"`
	OutstandingTotal decimal.Decimal `json:"outstandingTotal"`
	UnpaidCount      int64           `json:"unpaidCount"`
	AccountCount     int64           `json:"accountCount"`
}

// LedgerAuditReport is the result of one audit run.
type LedgerAuditReport struct {
	Totals     LedgerTotals      `json:"totals"`
	Violations []LedgerViolation `json:"violations"`
	RanAt      time.Time         `json:"ranAt"`
}
