/**
 * @description
 * This file provides the PostgreSQL implementation of the `Repository` interface.
 * Every method runs on the transaction carried by the context when there is one, so the
 * settlement engine can group reads, row locks and writes into a single commit.
 *
 * @dependencies
 * - github.com/jackc/pgx/v5: The PostgreSQL driver for database operations.
 * - github.com/shopspring/decimal: NUMERIC columns scan into decimal.Decimal.
 * - github.com/google/uuid: malformed ids are answered as not found without a round trip,
 *   which would otherwise abort the surrounding transaction.
 */
package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/vendor-manager/settlement-service/internal/domain"
)

// PostgresRepository is a concrete implementation of the Repository interface for PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository creates a new instance of PostgresRepository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

// WithTx runs fn inside a read-committed transaction. Row locks taken with the
// *ForUpdate methods are held until fn returns.
func (r *PostgresRepository) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return withTx(ctx, r.db, fn)
}

// FindAccountByID retrieves an account without locking it.
func (r *PostgresRepository) FindAccountByID(ctx context.Context, accountID string) (*domain.Account, error) {
	if !isValidID(accountID) {
		return nil, ErrAccountNotFound
	}
	query := `SELECT id, name, balance, created_at, updated_at FROM accounts WHERE id = $1`
	account, err := scanAccount(r.queryRow(ctx, query, accountID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) || isInvalidUUID(err) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("find account: %w", err)
	}
	return account, nil
}

// FindAccountsForUpdate locks the requested accounts. Ids are sorted so concurrent
// settlements touching the same pair always lock in the same order.
func (r *PostgresRepository) FindAccountsForUpdate(ctx context.Context, accountIDs ...string) (map[string]*domain.Account, error) {
	ids := validIDs(uniqueSorted(accountIDs))
	accounts := make(map[string]*domain.Account, len(ids))
	if len(ids) == 0 {
		return accounts, nil
	}

	query := `
		SELECT id, name, balance, created_at, updated_at
		FROM accounts
		WHERE id = ANY($1::uuid[])
		ORDER BY id
		FOR UPDATE
	`
	rows, err := r.query(ctx, query, ids)
	if err != nil {
		if isInvalidUUID(err) {
			return accounts, nil
		}
		return nil, fmt.Errorf("lock accounts: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		accounts[account.ID] = account
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("lock accounts: %w", err)
	}
	return accounts, nil
}

// UpdateAccountBalance writes a new balance. The accounts table rejects negative balances.
func (r *PostgresRepository) UpdateAccountBalance(ctx context.Context, accountID string, balance decimal.Decimal) error {
	query := `UPDATE accounts SET balance = $2, updated_at = NOW() WHERE id = $1`
	tag, err := r.exec(ctx, query, accountID, balance)
	if err != nil {
		if isCheckViolation(err) {
			return ErrNegativeBalance
		}
		return fmt.Errorf("update account balance: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAccountNotFound
	}
	return nil
}

// FindAgreementWithParties retrieves an agreement together with buyer and supplier snapshots.
func (r *PostgresRepository) FindAgreementWithParties(ctx context.Context, agreementID string) (*domain.Agreement, error) {
	if !isValidID(agreementID) {
		return nil, ErrAgreementNotFound
	}
	query := `
		SELECT a.id, a.buyer_id, a.supplier_id, a.status, a.terms, a.created_at, a.updated_at,
		       b.id, b.name, b.balance, b.created_at, b.updated_at,
		       sp.id, sp.name, sp.balance, sp.created_at, sp.updated_at
		FROM agreements a
		JOIN accounts b ON b.id = a.buyer_id
		JOIN accounts sp ON sp.id = a.supplier_id
		WHERE a.id = $1
	`
	var (
		agreement domain.Agreement
		status    string
		buyer     domain.Account
		supplier  domain.Account
	)
	err := r.queryRow(ctx, query, agreementID).Scan(
		&agreement.ID,
		&agreement.BuyerID,
		&agreement.SupplierID,
		&status,
		&agreement.Terms,
		&agreement.CreatedAt,
		&agreement.UpdatedAt,
		&buyer.ID,
		&buyer.Name,
		&buyer.Balance,
		&buyer.CreatedAt,
		&buyer.UpdatedAt,
		&supplier.ID,
		&supplier.Name,
		&supplier.Balance,
		&supplier.CreatedAt,
		&supplier.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) || isInvalidUUID(err) {
			return nil, ErrAgreementNotFound
		}
		return nil, fmt.Errorf("find agreement: %w", err)
	}
	agreement.Status = domain.AgreementStatus(status)
	agreement.Buyer = &buyer
	agreement.Supplier = &supplier
	return &agreement, nil
}

// ListAgreements returns agreements matching the filter, oldest first.
func (r *PostgresRepository) ListAgreements(ctx context.Context, filter AgreementFilter) ([]domain.Agreement, error) {
	query, args := buildAgreementQuery(filter)
	rows, err := r.query(ctx, query, args...)
	if err != nil {
		if isInvalidUUID(err) {
			return []domain.Agreement{}, nil
		}
		return nil, fmt.Errorf("list agreements: %w", err)
	}
	defer rows.Close()

	agreements := []domain.Agreement{}
	for rows.Next() {
		agreement, err := scanAgreement(rows)
		if err != nil {
			return nil, fmt.Errorf("scan agreement: %w", err)
		}
		agreements = append(agreements, *agreement)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list agreements: %w", err)
	}
	return agreements, nil
}

// ListSubmissions returns submissions matching the filter, each with its owning agreement.
func (r *PostgresRepository) ListSubmissions(ctx context.Context, filter SubmissionFilter) ([]domain.Submission, error) {
	query, args := buildSubmissionQuery(filter)
	rows, err := r.query(ctx, query, args...)
	if err != nil {
		if isInvalidUUID(err) {
			return []domain.Submission{}, nil
		}
		return nil, fmt.Errorf("list submissions: %w", err)
	}
	defer rows.Close()

	submissions := []domain.Submission{}
	for rows.Next() {
		submission, err := scanSubmissionWithAgreement(rows)
		if err != nil {
			return nil, fmt.Errorf("scan submission: %w", err)
		}
		submissions = append(submissions, *submission)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list submissions: %w", err)
	}
	return submissions, nil
}

// SumSubmissionPrices totals the prices of submissions matching the filter.
func (r *PostgresRepository) SumSubmissionPrices(ctx context.Context, filter SubmissionFilter) (decimal.Decimal, error) {
	query, args := buildSubmissionSumQuery(filter)
	var total decimal.Decimal
	if err := r.queryRow(ctx, query, args...).Scan(&total); err != nil {
		if isInvalidUUID(err) {
			return decimal.Zero, nil
		}
		return decimal.Zero, fmt.Errorf("sum submission prices: %w", err)
	}
	return total, nil
}

// FindSubmissionForUpdate locks the submission row (not its agreement) for the rest of
// the surrounding transaction.
func (r *PostgresRepository) FindSubmissionForUpdate(ctx context.Context, submissionID string) (*domain.Submission, error) {
	if !isValidID(submissionID) {
		return nil, ErrSubmissionNotFound
	}
	query := `
		SELECT s.id, s.agreement_id, s.description, s.price, s.paid, s.payment_date, s.created_at, s.updated_at,
		       a.id, a.buyer_id, a.supplier_id, a.status, a.terms, a.created_at, a.updated_at
		FROM submissions s
		JOIN agreements a ON a.id = s.agreement_id
		WHERE s.id = $1
		FOR UPDATE OF s
	`
	submission, err := scanSubmissionWithAgreement(r.queryRow(ctx, query, submissionID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) || isInvalidUUID(err) {
			return nil, ErrSubmissionNotFound
		}
		return nil, fmt.Errorf("lock submission: %w", err)
	}
	return submission, nil
}

// MarkSubmissionPaid sets paid and payment_date once. A second attempt affects no rows
// and reports ErrSubmissionAlreadyPaid.
func (r *PostgresRepository) MarkSubmissionPaid(ctx context.Context, submissionID string, paidAt time.Time) error {
	if !isValidID(submissionID) {
		return ErrSubmissionNotFound
	}
	query := `
		UPDATE submissions
		SET paid = TRUE, payment_date = $2, updated_at = NOW()
		WHERE id = $1 AND paid = FALSE
	`
	tag, err := r.exec(ctx, query, submissionID, paidAt)
	if err != nil {
		return fmt.Errorf("mark submission paid: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrSubmissionAlreadyPaid
	}
	return nil
}

// GetLedgerTotals aggregates balances and unpaid in-progress obligations.
func (r *PostgresRepository) GetLedgerTotals(ctx context.Context) (*domain.LedgerTotals, error) {
	query := `
		SELECT
			(SELECT COALESCE(SUM(balance), 0) FROM accounts),
			(SELECT COUNT(*) FROM accounts),
			COALESCE(SUM(s.price), 0),
			COUNT(s.id)
		FROM submissions s
		JOIN agreements a ON a.id = s.agreement_id
		WHERE s.paid = FALSE AND a.status = $1
	`
	var totals domain.LedgerTotals
	err := r.queryRow(ctx, query, string(domain.AgreementStatusInProgress)).Scan(
		&totals.TotalBalance,
		&totals.AccountCount,
		&totals.OutstandingTotal,
		&totals.UnpaidCount,
	)
	if err != nil {
		return nil, fmt.Errorf("ledger totals: %w", err)
	}
	return &totals, nil
}

// FindLedgerViolations lists records that break balance or payment invariants.
func (r *PostgresRepository) FindLedgerViolations(ctx context.Context) ([]domain.LedgerViolation, error) {
	query := `
		SELECT $1::text, id::text, balance FROM accounts WHERE balance < 0
		UNION ALL
		SELECT $2::text, id::text, price FROM submissions WHERE paid AND payment_date IS NULL
		UNION ALL
		SELECT $3::text, id::text, price FROM submissions WHERE NOT paid AND payment_date IS NOT NULL
	`
	rows, err := r.query(ctx, query,
		string(domain.ViolationNegativeBalance),
		string(domain.ViolationPaidWithoutDate),
		string(domain.ViolationUnpaidWithDate),
	)
	if err != nil {
		return nil, fmt.Errorf("find ledger violations: %w", err)
	}
	defer rows.Close()

	var violations []domain.LedgerViolation
	for rows.Next() {
		var (
			v    domain.LedgerViolation
			kind string
		)
		if err := rows.Scan(&kind, &v.EntityID, &v.Amount); err != nil {
			return nil, fmt.Errorf("scan ledger violation: %w", err)
		}
		v.Kind = domain.ViolationKind(kind)
		violations = append(violations, v)
	}
	return violations, rows.Err()
}

// CreateAccount inserts an account and fills in its generated fields.
func (r *PostgresRepository) CreateAccount(ctx context.Context, account *domain.Account) error {
	query := `
		INSERT INTO accounts (id, name, balance)
		VALUES (COALESCE(NULLIF($1, '')::uuid, gen_random_uuid()), $2, $3)
		RETURNING id, created_at, updated_at
	`
	return r.queryRow(ctx, query, account.ID, account.Name, account.Balance).
		Scan(&account.ID, &account.CreatedAt, &account.UpdatedAt)
}

// CreateAgreement inserts an agreement between two existing accounts.
func (r *PostgresRepository) CreateAgreement(ctx context.Context, agreement *domain.Agreement) error {
	query := `
		INSERT INTO agreements (id, buyer_id, supplier_id, status, terms)
		VALUES (COALESCE(NULLIF($1, '')::uuid, gen_random_uuid()), $2, $3, $4, $5)
		RETURNING id, created_at, updated_at
	`
	return r.queryRow(ctx, query,
		agreement.ID,
		agreement.BuyerID,
		agreement.SupplierID,
		string(agreement.Status),
		agreement.Terms,
	).Scan(&agreement.ID, &agreement.CreatedAt, &agreement.UpdatedAt)
}

// CreateSubmission inserts an unpaid submission under an agreement.
func (r *PostgresRepository) CreateSubmission(ctx context.Context, submission *domain.Submission) error {
	query := `
		INSERT INTO submissions (id, agreement_id, description, price)
		VALUES (COALESCE(NULLIF($1, '')::uuid, gen_random_uuid()), $2, $3, $4)
		RETURNING id, paid, payment_date, created_at, updated_at
	`
	return r.queryRow(ctx, query,
		submission.ID,
		submission.AgreementID,
		submission.Description,
		submission.Price,
	).Scan(&submission.ID, &submission.Paid, &submission.PaymentDate, &submission.CreatedAt, &submission.UpdatedAt)
}

func (r *PostgresRepository) exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	if tx := txFromContext(ctx); tx != nil {
		return tx.Exec(ctx, sql, args...)
	}
	return r.db.Exec(ctx, sql, args...)
}

func (r *PostgresRepository) query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	if tx := txFromContext(ctx); tx != nil {
		return tx.Query(ctx, sql, args...)
	}
	return r.db.Query(ctx, sql, args...)
}

func (r *PostgresRepository) queryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	if tx := txFromContext(ctx); tx != nil {
		return tx.QueryRow(ctx, sql, args...)
	}
	return r.db.QueryRow(ctx, sql, args...)
}

func scanAccount(row rowScanner) (*domain.Account, error) {
	var account domain.Account
	if err := row.Scan(
		&account.ID,
		&account.Name,
		&account.Balance,
		&account.CreatedAt,
		&account.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &account, nil
}

func scanAgreement(row rowScanner) (*domain.Agreement, error) {
	var (
		agreement domain.Agreement
		status    string
	)
	if err := row.Scan(
		&agreement.ID,
		&agreement.BuyerID,
		&agreement.SupplierID,
		&status,
		&agreement.Terms,
		&agreement.CreatedAt,
		&agreement.UpdatedAt,
	); err != nil {
		return nil, err
	}
	agreement.Status = domain.AgreementStatus(status)
	return &agreement, nil
}

func scanSubmissionWithAgreement(row rowScanner) (*domain.Submission, error) {
	var (
		submission domain.Submission
		agreement  domain.Agreement
		status     string
	)
	if err := row.Scan(
		&submission.ID,
		&submission.AgreementID,
		&submission.Description,
		&submission.Price,
		&submission.Paid,
		&submission.PaymentDate,
		&submission.CreatedAt,
		&submission.UpdatedAt,
		&agreement.ID,
		&agreement.BuyerID,
		&agreement.SupplierID,
		&status,
		&agreement.Terms,
		&agreement.CreatedAt,
		&agreement.UpdatedAt,
	); err != nil {
		return nil, err
	}
	agreement.Status = domain.AgreementStatus(status)
	submission.Agreement = &agreement
	return &submission, nil
}

func uniqueSorted(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func isValidID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

func validIDs(ids []string) []string {
	out := ids[:0]
	for _, id := range ids {
		if isValidID(id) {
			out = append(out, id)
		}
	}
	return out
}
