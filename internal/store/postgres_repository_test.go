package store_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/vendor-manager/settlement-service/internal/domain"
	"github.com/vendor-manager/settlement-service/internal/store"
	"github.com/vendor-manager/settlement-service/internal/testutil"
)

type fixture struct {
	t    *testing.T
	ctx  context.Context
	pool *pgxpool.Pool
	repo *store.PostgresRepository
}

func setupRepository(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	pool := testutil.NewTestPool(t)
	testutil.ApplyMigrations(t, ctx, pool)
	testutil.TruncateAll(t, ctx, pool)
	return &fixture{t: t, ctx: ctx, pool: pool, repo: store.NewPostgresRepository(pool)}
}

func (f *fixture) account(name, balance string) string {
	return testutil.InsertAccount(f.t, f.ctx, f.pool, name, balance)
}

func (f *fixture) agreement(buyerID, supplierID string, status domain.AgreementStatus) string {
	return testutil.InsertAgreement(f.t, f.ctx, f.pool, buyerID, supplierID, status)
}

func (f *fixture) submission(agreementID, price string, paid bool) string {
	return testutil.InsertSubmission(f.t, f.ctx, f.pool, agreementID, price, paid)
}

func TestPostgresRepository_ListAgreementsExcludesTerminated(t *testing.T) {
	f := setupRepository(t)
	repo, ctx := f.repo, f.ctx

	a := f.account("a", "0")
	b := f.account("b", "0")
	c := f.account("c", "0")
	g1 := f.agreement(a, b, domain.AgreementStatusInProgress)
	f.agreement(a, c, domain.AgreementStatusTerminated)
	g3 := f.agreement(c, a, domain.AgreementStatusNew)
	f.agreement(b, c, domain.AgreementStatusPending)

	got, err := repo.ListAgreements(ctx, store.AgreementFilter{
		PartyID:         a,
		ExcludeStatuses: []domain.AgreementStatus{domain.AgreementStatusTerminated},
	})
	if err != nil {
		t.Fatalf("ListAgreements returned error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 agreements, got %d", len(got))
	}
	ids := map[string]bool{got[0].ID: true, got[1].ID: true}
	if !ids[g1] || !ids[g3] {
		t.Fatalf("expected agreements %s and %s, got %+v", g1, g3, got)
	}
}

func TestPostgresRepository_InvalidIDIsNotFound(t *testing.T) {
	f := setupRepository(t)
	repo, ctx := f.repo, f.ctx

	if _, err := repo.FindAccountByID(ctx, "not-a-uuid"); !errors.Is(err, store.ErrAccountNotFound) {
		t.Fatalf("expected ErrAccountNotFound, got %v", err)
	}
	if _, err := repo.FindAgreementWithParties(ctx, "not-a-uuid"); !errors.Is(err, store.ErrAgreementNotFound) {
		t.Fatalf("expected ErrAgreementNotFound, got %v", err)
	}
	agreements, err := repo.ListAgreements(ctx, store.AgreementFilter{PartyID: "not-a-uuid"})
	if err != nil {
		t.Fatalf("ListAgreements returned error: %v", err)
	}
	if len(agreements) != 0 {
		t.Fatalf("expected no agreements, got %d", len(agreements))
	}
}

func TestPostgresRepository_MarkSubmissionPaidOnlyOnce(t *testing.T) {
	f := setupRepository(t)
	repo, ctx := f.repo, f.ctx

	buyer := f.account("buyer", "100")
	supplier := f.account("supplier", "0")
	agreementID := f.agreement(buyer, supplier, domain.AgreementStatusInProgress)
	submissionID := f.submission(agreementID, "40.00", false)

	paidAt := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	if err := repo.MarkSubmissionPaid(ctx, submissionID, paidAt); err != nil {
		t.Fatalf("first MarkSubmissionPaid returned error: %v", err)
	}
	if err := repo.MarkSubmissionPaid(ctx, submissionID, paidAt); !errors.Is(err, store.ErrSubmissionAlreadyPaid) {
		t.Fatalf("expected ErrSubmissionAlreadyPaid, got %v", err)
	}

	err := repo.WithTx(ctx, func(ctx context.Context) error {
		sub, err := repo.FindSubmissionForUpdate(ctx, submissionID)
		if err != nil {
			return err
		}
		if !sub.Paid || sub.PaymentDate == nil || !sub.PaymentDate.Equal(paidAt) {
			t.Fatalf("expected paid submission with payment date %v, got %+v", paidAt, sub)
		}
		if sub.Agreement == nil || sub.Agreement.BuyerID != buyer {
			t.Fatalf("expected agreement with buyer %s, got %+v", buyer, sub.Agreement)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("WithTx returned error: %v", err)
	}
}

func TestPostgresRepository_UpdateAccountBalanceRejectsNegative(t *testing.T) {
	f := setupRepository(t)
	repo, ctx := f.repo, f.ctx

	id := f.account("buyer", "10")
	if err := repo.UpdateAccountBalance(ctx, id, decimal.RequireFromString("-0.01")); !errors.Is(err, store.ErrNegativeBalance) {
		t.Fatalf("expected ErrNegativeBalance, got %v", err)
	}

	account, err := repo.FindAccountByID(ctx, id)
	if err != nil {
		t.Fatalf("FindAccountByID returned error: %v", err)
	}
	if !account.Balance.Equal(decimal.NewFromInt(10)) {
		t.Fatalf("expected balance to stay 10, got %s", account.Balance)
	}
}

func TestPostgresRepository_SumUnpaidForBuyer(t *testing.T) {
	f := setupRepository(t)
	repo, ctx := f.repo, f.ctx

	buyer := f.account("buyer", "0")
	supplier := f.account("supplier", "0")
	active := f.agreement(buyer, supplier, domain.AgreementStatusInProgress)
	pending := f.agreement(buyer, supplier, domain.AgreementStatusPending)
	reverse := f.agreement(supplier, buyer, domain.AgreementStatusInProgress)
	f.submission(active, "200.00", false)
	f.submission(active, "300.00", false)
	f.submission(active, "50.00", true)
	f.submission(pending, "75.00", false)
	f.submission(reverse, "90.00", false)

	total, err := repo.SumSubmissionPrices(ctx, store.SubmissionFilter{
		Agreement: store.AgreementFilter{
			BuyerID:  buyer,
			Statuses: []domain.AgreementStatus{domain.AgreementStatusInProgress},
		},
		Paid: store.Bool(false),
	})
	if err != nil {
		t.Fatalf("SumSubmissionPrices returned error: %v", err)
	}
	if !total.Equal(decimal.NewFromInt(500)) {
		t.Fatalf("expected outstanding 500, got %s", total)
	}
}

func TestPostgresRepository_FindAccountsForUpdateSkipsMissing(t *testing.T) {
	f := setupRepository(t)
	repo, ctx := f.repo, f.ctx

	id := f.account("buyer", "5")
	missing := "00000000-0000-0000-0000-000000000001"

	err := repo.WithTx(ctx, func(ctx context.Context) error {
		accounts, err := repo.FindAccountsForUpdate(ctx, id, missing, id)
		if err != nil {
			return err
		}
		if len(accounts) != 1 || accounts[id] == nil {
			t.Fatalf("expected only account %s, got %+v", id, accounts)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("WithTx returned error: %v", err)
	}
}
