/**
 * @description
 * This file contains the settlement engine. The `Service` struct enforces access control
 * on agreement reads, settles submissions by moving money from buyer to supplier, and
 * admits deposits under the outstanding-obligation cap. Every balance change happens in a
 * single store transaction with the affected rows locked.
 *
 * Key features:
 * - Pay: locks the submission, then both accounts in id order, then debits, credits and
 *   marks the submission paid. A repeat payment is always reported as already paid.
 * - Deposit: locks the account and checks the amount against a percentage of the
 *   account's unpaid in-progress obligations as buyer.
 * - Per-account rate limiting on both money-moving operations.
 * - Publishes events to RabbitMQ after commit.
 *
 * @dependencies
 * - github.com/shopspring/decimal: money arithmetic.
 * - internal/store: data access and row locking.
 * - pkg/rabbitmq: event publication.
 */
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
	"github.com/vendor-manager/settlement-service/internal/clock"
	"github.com/vendor-manager/settlement-service/internal/domain"
	"github.com/vendor-manager/settlement-service/internal/metrics"
	"github.com/vendor-manager/settlement-service/internal/store"
	"github.com/vendor-manager/settlement-service/pkg/rabbitmq"
)

const (
	DefaultDepositCapPercent  = 10
	DefaultEventsExchange     = "marketplace.events"
	DefaultRateLimitPerMinute = 60

	OperationPay     = "pay"
	OperationDeposit = "deposit"

	PaymentSuccessMessage = "Payment successful"

	publishTimeout = 5 * time.Second
)

// RateLimiter consumes one unit of a per-subject budget in a window and reports the
// running count for that window.
type RateLimiter interface {
	ConsumeRateLimit(ctx context.Context, scope, subject string, limit int, window time.Duration) (count int, retryAfterSeconds int, err error)
}

// Options carries the tunables of the settlement engine.
type Options struct {
	EventsExchange     string
	DepositCapPercent  float64
	RateLimitPerMinute int
	Logger             *slog.Logger
}

// Service provides the settlement business logic.
type Service struct {
	repo      store.Repository
	publisher rabbitmq.Publisher
	clock     clock.Clock
	limiter   RateLimiter
	logger    *slog.Logger

	exchange           string
	depositCapPercent  decimal.Decimal
	rateLimitPerMinute int
}

// NewService creates a settlement service. A nil publisher falls back to a logging no-op
// and a nil clock to the system clock.
func NewService(repo store.Repository, publisher rabbitmq.Publisher, clk clock.Clock, opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if publisher == nil {
		publisher = &rabbitmq.EventProducerFallback{Logger: logger}
	}
	if clk == nil {
		clk = clock.NewSystem()
	}
	exchange := opts.EventsExchange
	if exchange == "" {
		exchange = DefaultEventsExchange
	}

	return &Service{
		repo:               repo,
		publisher:          publisher,
		clock:              clk,
		logger:             logger.With("component", "settlement"),
		exchange:           exchange,
		depositCapPercent:  clampPercent(decimal.NewFromFloat(opts.DepositCapPercent)),
		rateLimitPerMinute: opts.RateLimitPerMinute,
	}
}

// SetRateLimiter enables per-account rate limiting on pay and deposit.
func (s *Service) SetRateLimiter(limiter RateLimiter) {
	s.limiter = limiter
}

// GetAgreement returns the agreement with both parties if callerAccountID is one of them.
func (s *Service) GetAgreement(ctx context.Context, agreementID, callerAccountID string) (*domain.Agreement, error) {
	agreementID, callerAccountID = canonicalID(agreementID), canonicalID(callerAccountID)
	agreement, err := s.repo.FindAgreementWithParties(ctx, agreementID)
	if err != nil {
		return nil, err
	}
	if !agreement.HasParty(callerAccountID) {
		return nil, ErrAccessDenied
	}
	return agreement, nil
}

// ListAgreements returns the account's agreements that are not terminated.
func (s *Service) ListAgreements(ctx context.Context, accountID string) ([]domain.Agreement, error) {
	return s.repo.ListAgreements(ctx, store.AgreementFilter{
		PartyID:         canonicalID(accountID),
		ExcludeStatuses: []domain.AgreementStatus{domain.AgreementStatusTerminated},
	})
}

// ListUnpaidSubmissions returns unpaid submissions on the account's in-progress agreements.
func (s *Service) ListUnpaidSubmissions(ctx context.Context, accountID string) ([]domain.Submission, error) {
	return s.repo.ListSubmissions(ctx, store.SubmissionFilter{
		Agreement: store.AgreementFilter{
			PartyID:  canonicalID(accountID),
			Statuses: []domain.AgreementStatus{domain.AgreementStatusInProgress},
		},
		Paid: store.Bool(false),
	})
}

// GetBalance returns the account with its current balance.
func (s *Service) GetBalance(ctx context.Context, accountID string) (*domain.Account, error) {
	return s.repo.FindAccountByID(ctx, canonicalID(accountID))
}

// PaySubmission moves the submission price from the agreement's buyer to its supplier
// and marks the submission paid, all in one transaction.
func (s *Service) PaySubmission(ctx context.Context, submissionID, buyerID string) (*domain.PaymentResult, error) {
	submissionID, buyerID = canonicalID(submissionID), canonicalID(buyerID)
	if err := s.consumeRateLimit(ctx, OperationPay, buyerID); err != nil {
		return nil, err
	}

	var result *domain.PaymentResult
	err := s.repo.WithTx(ctx, func(ctx context.Context) error {
		submission, err := s.repo.FindSubmissionForUpdate(ctx, submissionID)
		if err != nil {
			return err
		}
		agreement := submission.Agreement
		if agreement == nil {
			return fmt.Errorf("submission %s loaded without its agreement", submission.ID)
		}
		if agreement.BuyerID != buyerID {
			return ErrNotBuyer
		}
		if submission.Paid {
			return ErrAlreadyPaid
		}

		accounts, err := s.repo.FindAccountsForUpdate(ctx, agreement.BuyerID, agreement.SupplierID)
		if err != nil {
			return err
		}
		buyer, supplier := accounts[agreement.BuyerID], accounts[agreement.SupplierID]
		if buyer == nil || supplier == nil {
			return store.ErrAccountNotFound
		}

		price := submission.Price
		if buyer.Balance.LessThan(price) {
			return &InsufficientFundsError{
				AccountID:    buyer.ID,
				SubmissionID: submission.ID,
				Required:     price,
				Available:    buyer.Balance,
			}
		}

		// A self-dealing agreement settles with no net balance change.
		if buyer.ID != supplier.ID {
			buyer.Balance = buyer.Balance.Sub(price)
			supplier.Balance = supplier.Balance.Add(price)
			if err := s.repo.UpdateAccountBalance(ctx, buyer.ID, buyer.Balance); err != nil {
				return err
			}
			if err := s.repo.UpdateAccountBalance(ctx, supplier.ID, supplier.Balance); err != nil {
				return err
			}
		}

		paidAt := s.clock.Now()
		if err := s.repo.MarkSubmissionPaid(ctx, submission.ID, paidAt); err != nil {
			if errors.Is(err, store.ErrSubmissionAlreadyPaid) {
				return ErrAlreadyPaid
			}
			return err
		}
		submission.Paid = true
		submission.PaymentDate = &paidAt

		result = &domain.PaymentResult{
			Message:    PaymentSuccessMessage,
			Submission: submission,
			Buyer:      buyer,
			Supplier:   supplier,
		}
		return nil
	})
	if err != nil {
		metrics.RecordOperation(OperationPay, resultLabel(err), 0)
		return nil, err
	}

	s.logger.Info("submission paid",
		"submission_id", result.Submission.ID,
		"account_id", result.Buyer.ID,
		"supplier_id", result.Supplier.ID,
		"amount", result.Submission.Price.StringFixed(2),
	)
	metrics.RecordOperation(OperationPay, "success", result.Submission.Price.InexactFloat64())
	s.publish(ctx, domain.EventSubmissionPaid, domain.SubmissionPaidEvent{
		SubmissionID: result.Submission.ID,
		AgreementID:  result.Submission.AgreementID,
		BuyerID:      result.Buyer.ID,
		SupplierID:   result.Supplier.ID,
		Amount:       result.Submission.Price,
		PaidAt:       *result.Submission.PaymentDate,
	})
	return result, nil
}

// Deposit adds amount to the account balance if it does not exceed the account's cap.
func (s *Service) Deposit(ctx context.Context, accountID string, amount decimal.Decimal) (*domain.Account, error) {
	accountID = canonicalID(accountID)
	if err := s.consumeRateLimit(ctx, OperationDeposit, accountID); err != nil {
		return nil, err
	}
	if !ValidAmount(amount) {
		metrics.RecordOperation(OperationDeposit, resultLabel(ErrInvalidAmount), 0)
		return nil, ErrInvalidAmount
	}

	var account *domain.Account
	err := s.repo.WithTx(ctx, func(ctx context.Context) error {
		accounts, err := s.repo.FindAccountsForUpdate(ctx, accountID)
		if err != nil {
			return err
		}
		account = accounts[accountID]
		if account == nil {
			return store.ErrAccountNotFound
		}

		outstanding, err := s.repo.SumSubmissionPrices(ctx, store.SubmissionFilter{
			Agreement: store.AgreementFilter{
				BuyerID:  accountID,
				Statuses: []domain.AgreementStatus{domain.AgreementStatusInProgress},
			},
			Paid: store.Bool(false),
		})
		if err != nil {
			return err
		}

		limit := DepositCap(outstanding, s.depositCapPercent)
		if amount.GreaterThan(limit) {
			return &DepositCapError{
				AccountID:   accountID,
				Requested:   amount,
				Cap:         limit,
				Outstanding: outstanding,
			}
		}

		account.Balance = account.Balance.Add(amount)
		return s.repo.UpdateAccountBalance(ctx, accountID, account.Balance)
	})
	if err != nil {
		metrics.RecordOperation(OperationDeposit, resultLabel(err), 0)
		return nil, err
	}

	s.logger.Info("deposit accepted",
		"account_id", account.ID,
		"amount", amount.StringFixed(2),
		"new_balance", account.Balance.StringFixed(2),
	)
	metrics.RecordOperation(OperationDeposit, "success", amount.InexactFloat64())
	s.publish(ctx, domain.EventBalanceDeposited, domain.BalanceDepositedEvent{
		AccountID:  account.ID,
		Amount:     amount,
		NewBalance: account.Balance,
		Timestamp:  s.clock.Now(),
	})
	return account, nil
}

// ValidAmount reports whether amount is positive with at most two fractional digits.
func ValidAmount(amount decimal.Decimal) bool {
	return amount.IsPositive() && amount.Equal(amount.Truncate(domain.MoneyScale))
}

// DepositCap is percent of outstanding, truncated to cents. Amounts carry at most two
// fractional digits, so comparing against the truncated cap admits the same deposits as
// the exact one.
func DepositCap(outstanding, percent decimal.Decimal) decimal.Decimal {
	if !outstanding.IsPositive() || !percent.IsPositive() {
		return decimal.Zero
	}
	return outstanding.Mul(percent).Div(decimal.NewFromInt(100)).Truncate(domain.MoneyScale)
}

func clampPercent(p decimal.Decimal) decimal.Decimal {
	if p.IsNegative() {
		return decimal.Zero
	}
	if p.GreaterThan(decimal.NewFromInt(100)) {
		return decimal.NewFromInt(100)
	}
	return p
}

func (s *Service) consumeRateLimit(ctx context.Context, operation, subject string) error {
	if s.limiter == nil || s.rateLimitPerMinute <= 0 {
		return nil
	}
	count, retryAfter, err := s.limiter.ConsumeRateLimit(ctx, operation, subject, s.rateLimitPerMinute, time.Minute)
	if err != nil {
		s.logger.Warn("rate limiter unavailable; allowing request", "operation", operation, "account_id", subject, "error", err)
		return nil
	}
	if count > s.rateLimitPerMinute {
		metrics.RecordRateLimited(operation)
		return &RateLimitError{Operation: operation, RetryAfterSeconds: retryAfter}
	}
	return nil
}

// publish sends an event after commit. Failures are logged and counted; the settlement
// they describe stands.
func (s *Service) publish(ctx context.Context, routingKey string, event any) {
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	if err := s.publisher.Publish(pubCtx, s.exchange, routingKey, event); err != nil {
		metrics.RecordPublishFailure(routingKey)
		s.logger.Error("event publish failed", "exchange", s.exchange, "routing_key", routingKey, "error", err)
	}
}

func resultLabel(err error) string {
	switch {
	case errors.Is(err, ErrNotBuyer):
		return "not_buyer"
	case errors.Is(err, ErrAlreadyPaid):
		return "already_paid"
	case errors.Is(err, ErrInsufficientFunds):
		return "insufficient_funds"
	case errors.Is(err, ErrDepositCapExceeded):
		return "policy_violation"
	case errors.Is(err, ErrInvalidAmount):
		return "invalid_amount"
	case errors.Is(err, store.ErrSubmissionNotFound), errors.Is(err, store.ErrAccountNotFound):
		return "not_found"
	default:
		return "error"
	}
}
