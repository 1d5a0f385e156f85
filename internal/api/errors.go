package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/vendor-manager/settlement-service/internal/app"
	"github.com/vendor-manager/settlement-service/internal/store"
)

// Error codes returned in the "code" field of every error body.
const (
	CodeMissingAccountID   = "missing_account_id"
	CodeInvalidRequestBody = "invalid_request_body"
	CodeAgreementNotFound  = "agreement_not_found"
	CodeSubmissionNotFound = "submission_not_found"
	CodeAccountNotFound    = "account_not_found"
	CodeAccessDenied       = "access_denied"
	CodeNotBuyer           = "not_buyer"
	CodeAlreadyPaid        = "already_paid"
	CodeInsufficientFunds  = "insufficient_funds"
	CodeDepositLimit       = "deposit_limit_exceeded"
	CodeInvalidAmount      = "invalid_amount"
	CodeRateLimited        = "rate_limited"
	CodeUnauthorized       = "unauthorized"
	CodeInternal           = "internal_error"
)

type errorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code"`
	Details any    `json:"details,omitempty"`
}

type insufficientFundsDetails struct {
	AccountID    string `json:"accountId"`
	SubmissionID string `json:"submissionId"`
	Required     string `json:"required"`
	Available    string `json:"available"`
}

type depositLimitDetails struct {
	AccountID   string `json:"accountId"`
	Requested   string `json:"requested"`
	Limit       string `json:"limit"`
	Outstanding string `json:"outstanding"`
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	respondWithJSON(w, status, errorResponse{Error: message, Code: code})
}

// writeServiceError maps a settlement error to its status and code. Absent records answer
// notFoundStatus, since some routes report them as a bad request rather than a 404.
func writeServiceError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error, notFoundStatus int) {
	var (
		fundsErr *app.InsufficientFundsError
		capErr   *app.DepositCapError
		limitErr *app.RateLimitError
	)

	switch {
	case errors.As(err, &fundsErr):
		respondWithJSON(w, http.StatusBadRequest, errorResponse{
			Error: fundsErr.Error(),
			Code:  CodeInsufficientFunds,
			Details: insufficientFundsDetails{
				AccountID:    fundsErr.AccountID,
				SubmissionID: fundsErr.SubmissionID,
				Required:     fundsErr.Required.StringFixed(2),
				Available:    fundsErr.Available.StringFixed(2),
			},
		})
	case errors.As(err, &capErr):
		respondWithJSON(w, http.StatusBadRequest, errorResponse{
			Error: capErr.Error(),
			Code:  CodeDepositLimit,
			Details: depositLimitDetails{
				AccountID:   capErr.AccountID,
				Requested:   capErr.Requested.StringFixed(2),
				Limit:       capErr.Cap.StringFixed(2),
				Outstanding: capErr.Outstanding.StringFixed(2),
			},
		})
	case errors.As(err, &limitErr):
		w.Header().Set("Retry-After", strconv.Itoa(limitErr.RetryAfterSeconds))
		writeError(w, http.StatusTooManyRequests, CodeRateLimited, limitErr.Error())
	case errors.Is(err, store.ErrAgreementNotFound):
		writeError(w, notFoundStatus, CodeAgreementNotFound, "Agreement not found")
	case errors.Is(err, store.ErrSubmissionNotFound):
		writeError(w, notFoundStatus, CodeSubmissionNotFound, "Submission not found")
	case errors.Is(err, store.ErrAccountNotFound):
		writeError(w, notFoundStatus, CodeAccountNotFound, "Account not found")
	case errors.Is(err, app.ErrAccessDenied):
		writeError(w, http.StatusForbidden, CodeAccessDenied, "Access denied")
	case errors.Is(err, app.ErrNotBuyer):
		writeError(w, http.StatusBadRequest, CodeNotBuyer, app.ErrNotBuyer.Error())
	case errors.Is(err, app.ErrAlreadyPaid):
		writeError(w, http.StatusConflict, CodeAlreadyPaid, app.ErrAlreadyPaid.Error())
	case errors.Is(err, app.ErrInvalidAmount):
		writeError(w, http.StatusBadRequest, CodeInvalidAmount, app.ErrInvalidAmount.Error())
	default:
		logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		writeError(w, http.StatusInternalServerError, CodeInternal, "Internal server error")
	}
}
