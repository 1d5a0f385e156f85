package app

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/vendor-manager/settlement-service/internal/domain"
	"github.com/vendor-manager/settlement-service/internal/store"
)

type memTxKey struct{}

// memRepo is an in-memory store.Repository. WithTx holds a single mutex for the whole
// callback, which serializes transactions the way row locks serialize them in Postgres,
// and restores a snapshot when the callback fails.
type memRepo struct {
	mu sync.Mutex

	accounts        map[string]domain.Account
	agreements      map[string]domain.Agreement
	submissions     map[string]domain.Submission
	agreementOrder  []string
	submissionOrder []string

	updateBalanceErr map[string]error
	totalsErr        error

	lastAgreementFilter  store.AgreementFilter
	lastSubmissionFilter store.SubmissionFilter
}

type memSnapshot struct {
	accounts    map[string]domain.Account
	submissions map[string]domain.Submission
}

func newMemRepo() *memRepo {
	return &memRepo{
		accounts:         make(map[string]domain.Account),
		agreements:       make(map[string]domain.Agreement),
		submissions:      make(map[string]domain.Submission),
		updateBalanceErr: make(map[string]error),
	}
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func (r *memRepo) addAccount(id, balance string) {
	r.accounts[id] = domain.Account{ID: id, Name: id, Balance: dec(balance)}
}

func (r *memRepo) addAgreement(id, buyerID, supplierID string, status domain.AgreementStatus) {
	r.agreements[id] = domain.Agreement{ID: id, BuyerID: buyerID, SupplierID: supplierID, Status: status}
	r.agreementOrder = append(r.agreementOrder, id)
}

func (r *memRepo) addSubmission(id, agreementID, price string, paid bool) {
	sub := domain.Submission{ID: id, AgreementID: agreementID, Price: dec(price), Paid: paid}
	if paid {
		at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
		sub.PaymentDate = &at
	}
	r.submissions[id] = sub
	r.submissionOrder = append(r.submissionOrder, id)
}

func (r *memRepo) balance(id string) decimal.Decimal {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.accounts[id].Balance
}

func (r *memRepo) submission(id string) domain.Submission {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.submissions[id]
}

func (r *memRepo) lock(ctx context.Context) func() {
	if ctx.Value(memTxKey{}) != nil {
		return func() {}
	}
	r.mu.Lock()
	return r.mu.Unlock
}

func (r *memRepo) snapshot() memSnapshot {
	s := memSnapshot{
		accounts:    make(map[string]domain.Account, len(r.accounts)),
		submissions: make(map[string]domain.Submission, len(r.submissions)),
	}
	for k, v := range r.accounts {
		s.accounts[k] = v
	}
	for k, v := range r.submissions {
		s.submissions[k] = v
	}
	return s
}

func (r *memRepo) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(memTxKey{}) != nil {
		return fn(ctx)
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	saved := r.snapshot()
	if err := fn(context.WithValue(ctx, memTxKey{}, true)); err != nil {
		r.accounts = saved.accounts
		r.submissions = saved.submissions
		return err
	}
	return nil
}

func (r *memRepo) FindAccountByID(ctx context.Context, accountID string) (*domain.Account, error) {
	defer r.lock(ctx)()
	account, ok := r.accounts[accountID]
	if !ok {
		return nil, store.ErrAccountNotFound
	}
	return &account, nil
}

func (r *memRepo) FindAccountsForUpdate(ctx context.Context, accountIDs ...string) (map[string]*domain.Account, error) {
	defer r.lock(ctx)()
	out := make(map[string]*domain.Account, len(accountIDs))
	for _, id := range accountIDs {
		if account, ok := r.accounts[id]; ok {
			out[id] = &account
		}
	}
	return out, nil
}

func (r *memRepo) UpdateAccountBalance(ctx context.Context, accountID string, balance decimal.Decimal) error {
	defer r.lock(ctx)()
	if err := r.updateBalanceErr[accountID]; err != nil {
		return err
	}
	account, ok := r.accounts[accountID]
	if !ok {
		return store.ErrAccountNotFound
	}
	if balance.IsNegative() {
		return store.ErrNegativeBalance
	}
	account.Balance = balance
	r.accounts[accountID] = account
	return nil
}

func (r *memRepo) FindAgreementWithParties(ctx context.Context, agreementID string) (*domain.Agreement, error) {
	defer r.lock(ctx)()
	agreement, ok := r.agreements[agreementID]
	if !ok {
		return nil, store.ErrAgreementNotFound
	}
	buyer, supplier := r.accounts[agreement.BuyerID], r.accounts[agreement.SupplierID]
	agreement.Buyer = &buyer
	agreement.Supplier = &supplier
	return &agreement, nil
}

func (r *memRepo) ListAgreements(ctx context.Context, filter store.AgreementFilter) ([]domain.Agreement, error) {
	defer r.lock(ctx)()
	r.lastAgreementFilter = filter
	out := []domain.Agreement{}
	for _, id := range r.agreementOrder {
		if agreement := r.agreements[id]; matchAgreement(agreement, filter) {
			out = append(out, agreement)
		}
	}
	return out, nil
}

func (r *memRepo) ListSubmissions(ctx context.Context, filter store.SubmissionFilter) ([]domain.Submission, error) {
	defer r.lock(ctx)()
	r.lastSubmissionFilter = filter
	return r.matchingSubmissions(filter), nil
}

func (r *memRepo) SumSubmissionPrices(ctx context.Context, filter store.SubmissionFilter) (decimal.Decimal, error) {
	defer r.lock(ctx)()
	r.lastSubmissionFilter = filter
	total := decimal.Zero
	for _, sub := range r.matchingSubmissions(filter) {
		total = total.Add(sub.Price)
	}
	return total, nil
}

func (r *memRepo) FindSubmissionForUpdate(ctx context.Context, submissionID string) (*domain.Submission, error) {
	defer r.lock(ctx)()
	sub, ok := r.submissions[submissionID]
	if !ok {
		return nil, store.ErrSubmissionNotFound
	}
	agreement := r.agreements[sub.AgreementID]
	sub.Agreement = &agreement
	return &sub, nil
}

func (r *memRepo) MarkSubmissionPaid(ctx context.Context, submissionID string, paidAt time.Time) error {
	defer r.lock(ctx)()
	sub, ok := r.submissions[submissionID]
	if !ok {
		return store.ErrSubmissionNotFound
	}
	if sub.Paid {
		return store.ErrSubmissionAlreadyPaid
	}
	sub.Paid = true
	sub.PaymentDate = &paidAt
	r.submissions[submissionID] = sub
	return nil
}

func (r *memRepo) GetLedgerTotals(ctx context.Context) (*domain.LedgerTotals, error) {
	defer r.lock(ctx)()
	if r.totalsErr != nil {
		return nil, r.totalsErr
	}
	totals := &domain.LedgerTotals{AccountCount: int64(len(r.accounts))}
	for _, account := range r.accounts {
		totals.TotalBalance = totals.TotalBalance.Add(account.Balance)
	}
	for _, sub := range r.matchingSubmissions(store.SubmissionFilter{
		Agreement: store.AgreementFilter{Statuses: []domain.AgreementStatus{domain.AgreementStatusInProgress}},
		Paid:      store.Bool(false),
	}) {
		totals.OutstandingTotal = totals.OutstandingTotal.Add(sub.Price)
		totals.UnpaidCount++
	}
	return totals, nil
}

func (r *memRepo) FindLedgerViolations(ctx context.Context) ([]domain.LedgerViolation, error) {
	defer r.lock(ctx)()
	var out []domain.LedgerViolation
	for _, account := range r.accounts {
		if account.Balance.IsNegative() {
			out = append(out, domain.LedgerViolation{Kind: domain.ViolationNegativeBalance, EntityID: account.ID, Amount: account.Balance})
		}
	}
	for _, id := range r.submissionOrder {
		sub := r.submissions[id]
		switch {
		case sub.Paid && sub.PaymentDate == nil:
			out = append(out, domain.LedgerViolation{Kind: domain.ViolationPaidWithoutDate, EntityID: sub.ID, Amount: sub.Price})
		case !sub.Paid && sub.PaymentDate != nil:
			out = append(out, domain.LedgerViolation{Kind: domain.ViolationUnpaidWithDate, EntityID: sub.ID, Amount: sub.Price})
		}
	}
	return out, nil
}

func (r *memRepo) matchingSubmissions(filter store.SubmissionFilter) []domain.Submission {
	out := []domain.Submission{}
	for _, id := range r.submissionOrder {
		sub := r.submissions[id]
		agreement := r.agreements[sub.AgreementID]
		if !matchAgreement(agreement, filter.Agreement) {
			continue
		}
		if filter.Paid != nil && sub.Paid != *filter.Paid {
			continue
		}
		sub.Agreement = &agreement
		out = append(out, sub)
	}
	return out
}

func matchAgreement(a domain.Agreement, f store.AgreementFilter) bool {
	if f.PartyID != "" && a.BuyerID != f.PartyID && a.SupplierID != f.PartyID {
		return false
	}
	if f.BuyerID != "" && a.BuyerID != f.BuyerID {
		return false
	}
	if len(f.Statuses) > 0 && !containsStatus(f.Statuses, a.Status) {
		return false
	}
	if containsStatus(f.ExcludeStatuses, a.Status) {
		return false
	}
	return true
}

func containsStatus(list []domain.AgreementStatus, status domain.AgreementStatus) bool {
	for _, s := range list {
		if s == status {
			return true
		}
	}
	return false
}

type publishedEvent struct {
	exchange   string
	routingKey string
	body       any
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []publishedEvent
	err    error
}

func (p *recordingPublisher) Publish(ctx context.Context, exchange, routingKey string, body any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, publishedEvent{exchange: exchange, routingKey: routingKey, body: body})
	return nil
}

func (p *recordingPublisher) Close() {}

func (p *recordingPublisher) routingKeys() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	keys := make([]string, 0, len(p.events))
	for _, e := range p.events {
		keys = append(keys, e.routingKey)
	}
	return keys
}

type limiterStub struct {
	count      int
	retryAfter int
	err        error
	calls      []string
}

func (l *limiterStub) ConsumeRateLimit(ctx context.Context, scope, subject string, limit int, window time.Duration) (int, int, error) {
	l.calls = append(l.calls, scope+":"+subject)
	return l.count, l.retryAfter, l.err
}

var errStoreDown = errors.New("store unavailable")
