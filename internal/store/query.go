/**
 * @description
 * Filter predicates used by the settlement engine to select agreements and submissions.
 * Each filter renders to a SQL WHERE clause with positional arguments so the repository
 * never concatenates caller input into a query.
 */
package store

import (
	"fmt"
	"strings"

	"github.com/vendor-manager/settlement-service/internal/domain"
)

// AgreementFilter selects agreements by membership and status.
type AgreementFilter struct {
	// PartyID matches agreements where the account is buyer or supplier.
	PartyID string
	// BuyerID matches agreements where the account is the buyer.
	BuyerID string
	// Statuses keeps only agreements in one of these statuses.
	Statuses []domain.AgreementStatus
	// ExcludeStatuses drops agreements in any of these statuses.
	ExcludeStatuses []domain.AgreementStatus
}

// SubmissionFilter selects submissions, optionally constrained through their owning agreement.
type SubmissionFilter struct {
	Agreement AgreementFilter
	Paid      *bool
}

type predicates struct {
	clauses []string
	args    []any
}

func (p *predicates) arg(v any) string {
	p.args = append(p.args, v)
	return fmt.Sprintf("$%d", len(p.args))
}

func (p *predicates) add(clause string) {
	p.clauses = append(p.clauses, clause)
}

func (p *predicates) where() string {
	if len(p.clauses) == 0 {
		return ""
	}
	return "WHERE " + strings.Join(p.clauses, " AND ")
}

func (p *predicates) applyAgreement(alias string, f AgreementFilter) {
	if f.PartyID != "" {
		ref := p.arg(f.PartyID)
		p.add(fmt.Sprintf("(%[1]s.buyer_id = %[2]s OR %[1]s.supplier_id = %[2]s)", alias, ref))
	}
	if f.BuyerID != "" {
		p.add(fmt.Sprintf("%s.buyer_id = %s", alias, p.arg(f.BuyerID)))
	}
	if len(f.Statuses) > 0 {
		p.add(fmt.Sprintf("%s.status = ANY(%s)", alias, p.arg(statusStrings(f.Statuses))))
	}
	if len(f.ExcludeStatuses) > 0 {
		p.add(fmt.Sprintf("%s.status <> ALL(%s)", alias, p.arg(statusStrings(f.ExcludeStatuses))))
	}
}

func (p *predicates) applySubmission(alias, agreementAlias string, f SubmissionFilter) {
	p.applyAgreement(agreementAlias, f.Agreement)
	if f.Paid != nil {
		p.add(fmt.Sprintf("%s.paid = %s", alias, p.arg(*f.Paid)))
	}
}

func buildAgreementQuery(f AgreementFilter) (string, []any) {
	var p predicates
	p.applyAgreement("a", f)
	query := `
		SELECT a.id, a.buyer_id, a.supplier_id, a.status, a.terms, a.created_at, a.updated_at
		FROM agreements a
		` + p.where() + `
		ORDER BY a.created_at ASC, a.id ASC
	`
	return query, p.args
}

func buildSubmissionQuery(f SubmissionFilter) (string, []any) {
	var p predicates
	p.applySubmission("s", "a", f)
	query := `
		SELECT s.id, s.agreement_id, s.description, s.price, s.paid, s.payment_date, s.created_at, s.updated_at,
		       a.id, a.buyer_id, a.supplier_id, a.status, a.terms, a.created_at, a.updated_at
		FROM submissions s
		JOIN agreements a ON a.id = s.agreement_id
		` + p.where() + `
		ORDER BY s.created_at ASC, s.id ASC
	`
	return query, p.args
}

func buildSubmissionSumQuery(f SubmissionFilter) (string, []any) {
	var p predicates
	p.applySubmission("s", "a", f)
	query := `
		SELECT COALESCE(SUM(s.price), 0)
		FROM submissions s
		JOIN agreements a ON a.id = s.agreement_id
		` + p.where()
	return query, p.args
}

func statusStrings(statuses []domain.AgreementStatus) []string {
	out := make([]string, 0, len(statuses))
	for _, s := range statuses {
		out = append(out, string(s))
	}
	return out
}

// Bool returns a pointer to b, for optional filter fields.
func Bool(b bool) *bool {
	return &b
}
