package app

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	ErrAccessDenied       = errors.New("account is not a party to this agreement")
	ErrNotBuyer           = errors.New("only the buyer of the agreement can pay for this submission")
	ErrAlreadyPaid        = errors.New("submission has already been paid")
	ErrInsufficientFunds  = errors.New("insufficient funds")
	ErrDepositCapExceeded = errors.New("deposit exceeds the allowed limit")
	ErrInvalidAmount      = errors.New("amount must be positive with at most two decimal places")
	ErrRateLimited        = errors.New("too many settlement requests")
)

// InsufficientFundsError reports a buyer balance below the submission price.
type InsufficientFundsError struct {
	AccountID    string
	SubmissionID string
	Required     decimal.Decimal
	Available    decimal.Decimal
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient funds: account %s has %s, submission %s requires %s",
		e.AccountID, e.Available.StringFixed(2), e.SubmissionID, e.Required.StringFixed(2))
}

func (e *InsufficientFundsError) Unwrap() error { return ErrInsufficientFunds }

// DepositCapError reports a deposit above the account's cap.
type DepositCapError struct {
	AccountID   string
	Requested   decimal.Decimal
	Cap         decimal.Decimal
	Outstanding decimal.Decimal
}

func (e *DepositCapError) Error() string {
	return fmt.Sprintf("deposit of %s exceeds the limit of %s (outstanding unpaid total %s)",
		e.Requested.StringFixed(2), e.Cap.StringFixed(2), e.Outstanding.StringFixed(2))
}

func (e *DepositCapError) Unwrap() error { return ErrDepositCapExceeded }

// RateLimitError reports an exhausted per-account budget.
type RateLimitError struct {
	Operation         string
	RetryAfterSeconds int
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("too many %s requests, retry in %d seconds", e.Operation, e.RetryAfterSeconds)
}

func (e *RateLimitError) Unwrap() error { return ErrRateLimited }
