/**
 * @description
 * This file defines the Account domain model. An account is a party to agreements,
 * either as buyer or as supplier, and holds the balance moved by settlements.
 *
 * @notes
 * - Balances are decimals (shopspring/decimal) stored as NUMERIC(12,2).
 *   They are mutated only by the settlement engine in internal/app.
 */
package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// MoneyScale is the number of fractional digits kept for every stored amount.
const MoneyScale int32 = 2

// Account represents a marketplace participant and its balance.
type Account struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Balance   decimal.Decimal `json:"balance"`
	CreatedAt time.Time       `json:"createdAt"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

// DepositRequest is the body accepted by the deposit endpoint.
type DepositRequest struct {
	Amount decimal.Decimal `json:"amount"`
}
