package domain

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestLedgerAuditReport_UsesCamelCaseKeys(t *testing.T) {
	report := LedgerAuditReport{
		Totals:     LedgerTotals{TotalBalance: decimal.NewFromInt(10), UnpaidCount: 1, AccountCount: 2},
		Violations: []LedgerViolation{{Kind: ViolationNegativeBalance, EntityID: "acc-1", Amount: decimal.NewFromInt(-1)}},
		RanAt:      time.Date(2024, 5, 17, 0, 0, 0, 0, time.UTC),
	}
	raw, err := json.Marshal(report)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	body := string(raw)
	for _, key := range []string{`"totalBalance"`, `"outstandingTotal"`, `"unpaidCount"`, `"accountCount"`, `"entityId"`, `"ranAt"`} {
		if !strings.Contains(body, key) {
			t.Errorf("expected key %s in %s", key, body)
		}
	}
	for _, key := range []string{`"total_balance"`, `"entity_id"`, `"ran_at"`} {
		if strings.Contains(body, key) {
			t.Errorf("unexpected key %s in %s", key, body)
		}
	}
}

func TestLedgerViolationEvent_UsesSnakeCaseKeys(t *testing.T) {
	raw, err := json.Marshal(LedgerViolationEvent{Kind: ViolationPaidWithoutDate, EntityID: "sub-1", Amount: decimal.NewFromInt(40)})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	body := string(raw)
	for _, key := range []string{`"kind"`, `"entity_id"`, `"amount"`, `"audited_at"`} {
		if !strings.Contains(body, key) {
			t.Errorf("expected key %s in %s", key, body)
		}
	}
}
