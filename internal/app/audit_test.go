package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/vendor-manager/settlement-service/internal/domain"
)

func TestRunLedgerAudit_CleanLedger(t *testing.T) {
	repo := seedDeposit()
	publisher := &recordingPublisher{}
	svc := newTestService(repo, publisher)

	report, err := svc.RunLedgerAudit(context.Background())
	if err != nil {
		t.Fatalf("RunLedgerAudit returned error: %v", err)
	}
	if !report.Totals.TotalBalance.Equal(dec("10")) || report.Totals.AccountCount != 2 {
		t.Fatalf("unexpected totals: %+v", report.Totals)
	}
	// S1 + S2 on A1 and S5 on A3 are unpaid on in-progress agreements.
	if !report.Totals.OutstandingTotal.Equal(dec("1500")) || report.Totals.UnpaidCount != 3 {
		t.Fatalf("unexpected outstanding: %+v", report.Totals)
	}
	if report.Violations == nil || len(report.Violations) != 0 {
		t.Fatalf("expected empty violation list, got %#v", report.Violations)
	}
	if !report.RanAt.Equal(fixedNow) {
		t.Fatalf("expected audit time %v, got %v", fixedNow, report.RanAt)
	}
	if len(publisher.routingKeys()) != 0 {
		t.Fatalf("expected no events, got %v", publisher.routingKeys())
	}
}

func TestRunLedgerAudit_ReportsAndPublishesViolations(t *testing.T) {
	repo := seedSettlement()
	repo.accounts["S"] = domain.Account{ID: "S", Balance: dec("-1")}
	broken := repo.submissions["S1"]
	broken.Paid = true
	repo.submissions["S1"] = broken
	publisher := &recordingPublisher{}
	svc := newTestService(repo, publisher)

	report, err := svc.RunLedgerAudit(context.Background())
	if err != nil {
		t.Fatalf("RunLedgerAudit returned error: %v", err)
	}
	kinds := map[domain.ViolationKind]string{}
	for _, v := range report.Violations {
		kinds[v.Kind] = v.EntityID
	}
	if kinds[domain.ViolationNegativeBalance] != "S" || kinds[domain.ViolationPaidWithoutDate] != "S1" {
		t.Fatalf("unexpected violations: %+v", report.Violations)
	}
	keys := publisher.routingKeys()
	if len(keys) != 2 || keys[0] != domain.EventLedgerAuditViolation {
		t.Fatalf("expected two violation events, got %v", keys)
	}
	for _, e := range publisher.events {
		event, ok := e.body.(domain.LedgerViolationEvent)
		if !ok || event.EntityID == "" || !event.AuditedAt.Equal(report.RanAt) {
			t.Fatalf("unexpected violation event %#v", e.body)
		}
	}
}

func TestRunLedgerAudit_StoreFailure(t *testing.T) {
	repo := seedSettlement()
	repo.totalsErr = errStoreDown
	svc := newTestService(repo, &recordingPublisher{})

	if _, err := svc.RunLedgerAudit(context.Background()); !errors.Is(err, errStoreDown) {
		t.Fatalf("expected store error, got %v", err)
	}
	// The cron entry point logs instead of failing.
	svc.AuditLedgerJob()
}

func TestScheduler_Start(t *testing.T) {
	noop := func() {}

	if err := NewScheduler(noop, "", nil).Start(); err != nil {
		t.Fatalf("expected empty schedule to disable the job, got %v", err)
	}
	if err := NewScheduler(noop, "not a schedule", nil).Start(); err == nil {
		t.Fatal("expected invalid schedule to fail")
	}

	s := NewScheduler(noop, "@every 15m", nil)
	if err := s.Start(); err != nil {
		t.Fatalf("expected valid schedule to start, got %v", err)
	}
	select {
	case <-s.Stop().Done():
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop")
	}
}
