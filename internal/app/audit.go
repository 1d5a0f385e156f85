/**
 * @description
 * Ledger audit: aggregates balances and unpaid obligations and scans the store for
 * records that break the ledger invariants. Results feed Prometheus gauges, the log and
 * one `ledger.audit.violation` event per finding.
 */
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/vendor-manager/settlement-service/internal/domain"
	"github.com/vendor-manager/settlement-service/internal/metrics"
)

const ledgerAuditTimeout = 2 * time.Minute

// RunLedgerAudit computes ledger totals and lists invariant violations.
func (s *Service) RunLedgerAudit(ctx context.Context) (*domain.LedgerAuditReport, error) {
	totals, err := s.repo.GetLedgerTotals(ctx)
	if err != nil {
		metrics.RecordAudit(false, 0, 0, 0, 0, nil)
		return nil, fmt.Errorf("ledger totals: %w", err)
	}
	violations, err := s.repo.FindLedgerViolations(ctx)
	if err != nil {
		metrics.RecordAudit(false, 0, 0, 0, 0, nil)
		return nil, fmt.Errorf("ledger violations: %w", err)
	}
	if violations == nil {
		violations = []domain.LedgerViolation{}
	}

	report := &domain.LedgerAuditReport{
		Totals:     *totals,
		Violations: violations,
		RanAt:      s.clock.Now(),
	}

	byKind := make(map[string]int, len(violations))
	for _, v := range violations {
		byKind[string(v.Kind)]++
		s.logger.Error("ledger invariant violated",
			"kind", v.Kind,
			"entity_id", v.EntityID,
			"amount", v.Amount.StringFixed(2),
		)
		s.publish(ctx, domain.EventLedgerAuditViolation, domain.LedgerViolationEvent{
			Kind:      v.Kind,
			EntityID:  v.EntityID,
			Amount:    v.Amount,
			AuditedAt: report.RanAt,
		})
	}
	metrics.RecordAudit(true,
		totals.TotalBalance.InexactFloat64(),
		totals.OutstandingTotal.InexactFloat64(),
		totals.UnpaidCount,
		totals.AccountCount,
		byKind,
	)

	s.logger.Info("ledger audit finished",
		"total_balance", totals.TotalBalance.StringFixed(2),
		"outstanding_total", totals.OutstandingTotal.StringFixed(2),
		"unpaid_count", totals.UnpaidCount,
		"account_count", totals.AccountCount,
		"violations", len(violations),
	)
	return report, nil
}

// AuditLedgerJob runs one audit with its own deadline. It is the cron entry point.
func (s *Service) AuditLedgerJob() {
	s.logger.Info("starting ledger audit job")
	ctx, cancel := context.WithTimeout(context.Background(), ledgerAuditTimeout)
	defer cancel()

	if _, err := s.RunLedgerAudit(ctx); err != nil {
		s.logger.Error("ledger audit job failed", "error", err)
	}
}
