/**
 * @description
 * This file defines the `Repository` interface, the contract between the settlement
 * engine and the data store. The PostgreSQL implementation lives in
 * postgres_repository.go; tests substitute hand-written stubs.
 *
 * @dependencies
 * - github.com/shopspring/decimal: money amounts.
 * - internal/domain: entity models.
 */
package store

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"github.com/vendor-manager/settlement-service/internal/domain"
)

var (
	ErrAccountNotFound       = errors.New("account not found")
	ErrAgreementNotFound     = errors.New("agreement not found")
	ErrSubmissionNotFound    = errors.New("submission not found")
	ErrSubmissionAlreadyPaid = errors.New("submission already paid")
	ErrNegativeBalance       = errors.New("balance would become negative")
)

// Repository defines the set of methods for interacting with the database.
type Repository interface {
	// WithTx runs fn in a single database transaction. Repository calls made with the
	// context passed to fn take part in that transaction.
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error

	// Account methods
	FindAccountByID(ctx context.Context, accountID string) (*domain.Account, error)
	// FindAccountsForUpdate locks the given accounts in ascending id order. Missing ids are
	// absent from the returned map.
	FindAccountsForUpdate(ctx context.Context, accountIDs ...string) (map[string]*domain.Account, error)
	UpdateAccountBalance(ctx context.Context, accountID string, balance decimal.Decimal) error

	// Agreement methods
	FindAgreementWithParties(ctx context.Context, agreementID string) (*domain.Agreement, error)
	ListAgreements(ctx context.Context, filter AgreementFilter) ([]domain.Agreement, error)

	// Submission methods
	ListSubmissions(ctx context.Context, filter SubmissionFilter) ([]domain.Submission, error)
	SumSubmissionPrices(ctx context.Context, filter SubmissionFilter) (decimal.Decimal, error)
	// FindSubmissionForUpdate locks the submission row and returns it with its agreement.
	FindSubmissionForUpdate(ctx context.Context, submissionID string) (*domain.Submission, error)
	// MarkSubmissionPaid flips paid to true only if it is still false.
	MarkSubmissionPaid(ctx context.Context, submissionID string, paidAt time.Time) error

	// Ledger audit methods
	GetLedgerTotals(ctx context.Context) (*domain.LedgerTotals, error)
	FindLedgerViolations(ctx context.Context) ([]domain.LedgerViolation, error)
}
