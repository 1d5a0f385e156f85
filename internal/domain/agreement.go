/**
 * @description
 * Agreement and Submission domain models.
 */
package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// AgreementStatus is the lifecycle state of an agreement. Transitions happen outside
// this service; settlement only reads the status.
type AgreementStatus string

const (
	AgreementStatusNew        AgreementStatus = "new"
	AgreementStatusPending    AgreementStatus = "pending"
	AgreementStatusInProgress AgreementStatus = "in_progress"
	AgreementStatusTerminated AgreementStatus = "terminated"
)

// Agreement pairs a buyer account with a supplier account.
type Agreement struct {
	ID         string          `json:"id"`
	BuyerID    string          `json:"buyerId"`
	SupplierID string          `json:"supplierId"`
	Status     AgreementStatus `json:"status"`
	Terms      string          `json:"terms"`
	CreatedAt  time.Time       `json:"createdAt"`
	UpdatedAt  time.Time       `json:"updatedAt"`

	// Populated only by lookups that join the parties.
	Buyer    *Account `json:"buyer,omitempty"`
	Supplier *Account `json:"supplier,omitempty"`
}

// HasParty reports whether accountID is the buyer or the supplier.
func (a Agreement) HasParty(accountID string) bool {
	return accountID != "" && (a.BuyerID == accountID || a.SupplierID == accountID)
}

// Submission is a unit of billable work under an agreement, owed by the buyer.
type Submission struct {
	ID          string          `json:"id"`
	AgreementID string          `json:"agreementId"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Paid        bool            `json:"paid"`
	PaymentDate *time.Time      `json:"paymentDate"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`

	Agreement *Agreement `json:"agreement,omitempty"`
}

// PayRequest is the body accepted by the pay endpoint.
type PayRequest struct {
	BuyerID string `json:"buyerId"`
}

// PaymentResult is returned by a successful settlement: the now-paid submission and both
// parties after the transfer.
type PaymentResult struct {
	Message    string      `json:"message"`
	Submission *Submission `json:"submission"`
	Buyer      *Account    `json:"buyer"`
	Supplier   *Account    `json:"supplier"`
}
