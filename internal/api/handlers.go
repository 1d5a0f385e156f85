/**
 * @description
 * HTTP handlers for the settlement service. Handlers extract identifiers, call the
 * settlement engine and translate its errors into status codes.
 */
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/vendor-manager/settlement-service/internal/domain"
)

const maxRequestBodyBytes = 1 << 20

// SettlementService is the part of the settlement engine the handlers call.
type SettlementService interface {
	GetAgreement(ctx context.Context, agreementID, callerAccountID string) (*domain.Agreement, error)
	ListAgreements(ctx context.Context, accountID string) ([]domain.Agreement, error)
	ListUnpaidSubmissions(ctx context.Context, accountID string) ([]domain.Submission, error)
	PaySubmission(ctx context.Context, submissionID, buyerID string) (*domain.PaymentResult, error)
	Deposit(ctx context.Context, accountID string, amount decimal.Decimal) (*domain.Account, error)
	GetBalance(ctx context.Context, accountID string) (*domain.Account, error)
	RunLedgerAudit(ctx context.Context) (*domain.LedgerAuditReport, error)
}

// Handler holds the settlement service that handlers interact with.
type Handler struct {
	service SettlementService
	logger  *slog.Logger
}

// NewHandler creates a new Handler with the given service.
func NewHandler(service SettlementService, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{service: service, logger: logger.With("component", "api")}
}

func (h *Handler) handleGetAgreement(w http.ResponseWriter, r *http.Request) {
	accountID, ok := requireAccountID(w, r)
	if !ok {
		return
	}

	agreement, err := h.service.GetAgreement(r.Context(), chi.URLParam(r, "id"), accountID)
	if err != nil {
		writeServiceError(w, r, h.logger, err, http.StatusNotFound)
		return
	}

	respondWithJSON(w, http.StatusOK, agreement)
}

func (h *Handler) handleListAgreements(w http.ResponseWriter, r *http.Request) {
	accountID, ok := requireAccountID(w, r)
	if !ok {
		return
	}

	agreements, err := h.service.ListAgreements(r.Context(), accountID)
	if err != nil {
		writeServiceError(w, r, h.logger, err, http.StatusNotFound)
		return
	}

	respondWithJSON(w, http.StatusOK, agreements)
}

func (h *Handler) handleListUnpaidSubmissions(w http.ResponseWriter, r *http.Request) {
	accountID, ok := requireAccountID(w, r)
	if !ok {
		return
	}

	submissions, err := h.service.ListUnpaidSubmissions(r.Context(), accountID)
	if err != nil {
		writeServiceError(w, r, h.logger, err, http.StatusNotFound)
		return
	}

	respondWithJSON(w, http.StatusOK, submissions)
}

func (h *Handler) handlePaySubmission(w http.ResponseWriter, r *http.Request) {
	var req domain.PayRequest
	if !decodeBody(w, r, &req) {
		return
	}
	req.BuyerID = strings.TrimSpace(req.BuyerID)
	if req.BuyerID == "" {
		writeError(w, http.StatusBadRequest, CodeInvalidRequestBody, "buyerId is required")
		return
	}

	result, err := h.service.PaySubmission(r.Context(), chi.URLParam(r, "submissionID"), req.BuyerID)
	if err != nil {
		writeServiceError(w, r, h.logger, err, http.StatusBadRequest)
		return
	}

	respondWithJSON(w, http.StatusOK, result)
}

func (h *Handler) handleDeposit(w http.ResponseWriter, r *http.Request) {
	var req domain.DepositRequest
	if !decodeBody(w, r, &req) {
		return
	}

	account, err := h.service.Deposit(r.Context(), chi.URLParam(r, "accountID"), req.Amount)
	if err != nil {
		writeServiceError(w, r, h.logger, err, http.StatusBadRequest)
		return
	}

	respondWithJSON(w, http.StatusOK, account)
}

func (h *Handler) handleGetBalance(w http.ResponseWriter, r *http.Request) {
	account, err := h.service.GetBalance(r.Context(), chi.URLParam(r, "accountID"))
	if err != nil {
		writeServiceError(w, r, h.logger, err, http.StatusNotFound)
		return
	}

	respondWithJSON(w, http.StatusOK, account)
}

func (h *Handler) handleRunLedgerAudit(w http.ResponseWriter, r *http.Request) {
	report, err := h.service.RunLedgerAudit(r.Context())
	if err != nil {
		writeServiceError(w, r, h.logger, err, http.StatusNotFound)
		return
	}

	respondWithJSON(w, http.StatusOK, report)
}

func requireAccountID(w http.ResponseWriter, r *http.Request) (string, bool) {
	accountID := strings.TrimSpace(r.URL.Query().Get("accountId"))
	if accountID == "" {
		writeError(w, http.StatusBadRequest, CodeMissingAccountID, "accountId query parameter is required")
		return "", false
	}
	return accountID, true
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, CodeInvalidRequestBody, "Invalid request body")
		return false
	}
	return true
}

func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}
