// Package claims batches posted transactions into claims, exports them as
// bulk payment request files and reconciles the funder's response.
package claims

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"housing-backend/internal/funding"
	"housing-backend/internal/metrics"
	"housing-backend/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrNoTransactions   = errors.New("no posted, unclaimed transactions to claim")
	ErrNotClaimable     = errors.New("only posted transactions that are not on a claim can be claimed")
	ErrNotDraft         = errors.New("only draft claims can be deleted")
	ErrNotSubmitted     = errors.New("claim has not been submitted")
	ErrStatusTransition = errors.New("claim status change not allowed")
)

// NewClaimNumber returns a unique, date-prefixed claim number.
func NewClaimNumber(now time.Time) string {
	id := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))
	return fmt.Sprintf("CLM-%s-%s", now.Format("20060102"), id[:8])
}

// Reference is the per-line claim reference sent to the funder.
func Reference(claimNumber string, n int) string {
	return fmt.Sprintf("%s-%03d", claimNumber, n)
}

type BuildInput struct {
	TransactionIDs []uint
	PeriodFrom     *time.Time
	PeriodTo       *time.Time
	ResidentIDs    *gorm.DB // optional subquery limiting residents
	Notes          string
	CreatedBy      *uint
}

// Build creates a draft claim over the selected posted transactions and
// moves them to claimed.
func Build(db *gorm.DB, in BuildInput, now time.Time) (*models.Claim, error) {
	var claim models.Claim
	ids := uniq(in.TransactionIDs)
	err := db.Transaction(func(tx *gorm.DB) error {
		q := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Model(&models.Transaction{})
		if len(ids) > 0 {
			q = q.Where("id IN ?", ids)
		} else {
			q = q.Where("status = ? AND claim_id IS NULL", models.TransactionStatusPosted)
			if in.PeriodFrom != nil {
				q = q.Where("service_date >= ?", *in.PeriodFrom)
			}
			if in.PeriodTo != nil {
				q = q.Where("service_date <= ?", *in.PeriodTo)
			}
			if in.ResidentIDs != nil {
				q = q.Where("resident_id IN (?)", in.ResidentIDs)
			}
		}

		var txs []models.Transaction
		if err := q.Order("service_date asc, id asc").Find(&txs).Error; err != nil {
			return err
		}
		if len(txs) == 0 {
			return ErrNoTransactions
		}
		if len(ids) > 0 && len(txs) != len(ids) {
			return fmt.Errorf("%w: some transactions were not found", ErrNotClaimable)
		}

		total := 0.0
		from, to := txs[0].ServiceDate, txs[0].ServiceDate
		for _, t := range txs {
			if t.Status != models.TransactionStatusPosted || t.ClaimID != nil {
				return fmt.Errorf("%w (transaction %d is %s)", ErrNotClaimable, t.ID, t.Status)
			}
			total += t.Amount
			if t.ServiceDate.Before(from) {
				from = t.ServiceDate
			}
			if t.ServiceDate.After(to) {
				to = t.ServiceDate
			}
		}
		if in.PeriodFrom != nil {
			from = *in.PeriodFrom
		}
		if in.PeriodTo != nil {
			to = *in.PeriodTo
		}

		claim = models.Claim{
			ClaimNumber: NewClaimNumber(now),
			Status:      models.ClaimStatusDraft,
			PeriodFrom:  &from,
			PeriodTo:    &to,
			TotalAmount: funding.Round2(total),
			Notes:       in.Notes,
			CreatedBy:   in.CreatedBy,
		}
		if err := tx.Create(&claim).Error; err != nil {
			return err
		}

		for i := range txs {
			ref := Reference(claim.ClaimNumber, i+1)
			if err := tx.Model(&txs[i]).Updates(map[string]any{
				"claim_id":        claim.ID,
				"claim_reference": ref,
				"status":          models.TransactionStatusClaimed,
			}).Error; err != nil {
				return err
			}
			txs[i].ClaimID = &claim.ID
			txs[i].ClaimReference = ref
			txs[i].Status = models.TransactionStatusClaimed
		}
		claim.Transactions = txs
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &claim, nil
}

func uniq(ids []uint) []uint {
	seen := make(map[uint]bool, len(ids))
	out := ids[:0:0]
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}

// Delete removes a draft claim and puts its transactions back to posted.
func Delete(db *gorm.DB, claim *models.Claim) error {
	if claim.Status != models.ClaimStatusDraft {
		return ErrNotDraft
	}
	return db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.Transaction{}).
			Where("claim_id = ?", claim.ID).
			Updates(map[string]any{
				"claim_id":        nil,
				"claim_reference": "",
				"status":          models.TransactionStatusPosted,
			}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.Claim{}, claim.ID).Error
	})
}

// MarkSubmitted moves a draft claim to submitted. Other statuses are left
// alone.
func MarkSubmitted(db *gorm.DB, claim *models.Claim, now time.Time) error {
	if claim.Status != models.ClaimStatusDraft {
		return nil
	}
	claim.Status = models.ClaimStatusSubmitted
	claim.SubmittedAt = &now
	return db.Model(claim).Updates(map[string]any{
		"status":       claim.Status,
		"submitted_at": now,
	}).Error
}

// -------------------------
// Reconciliation
// -------------------------

type RowResult struct {
	Line          int     `json:"line"`
	Reference     string  `json:"claim_reference"`
	TransactionID uint    `json:"transaction_id,omitempty"`
	Outcome       string  `json:"outcome"` // paid, rejected, unmatched, skipped
	PaidAmount    float64 `json:"paid_amount,omitempty"`
	Message       string  `json:"message,omitempty"`
}

type ReconcileResult struct {
	ClaimID     uint               `json:"claim_id"`
	ClaimStatus models.ClaimStatus `json:"claim_status"`
	PaidAmount  float64            `json:"paid_amount"`
	Paid        int                `json:"paid"`
	Rejected    int                `json:"rejected"`
	Unmatched   int                `json:"unmatched"`
	Skipped     int                `json:"skipped"`
	Rows        []RowResult        `json:"rows"`
}

// Reconcile applies response rows to the claim's transactions by claim
// reference. Paid lines keep their drawdown; rejected lines have it reversed.
func Reconcile(db *gorm.DB, claim *models.Claim, rows []ResponseRow, now time.Time) (*ReconcileResult, error) {
	if claim.Status == models.ClaimStatusDraft {
		return nil, ErrNotSubmitted
	}

	res := &ReconcileResult{ClaimID: claim.ID, Rows: make([]RowResult, 0, len(rows))}
	err := db.Transaction(func(tx *gorm.DB) error {
		var txs []models.Transaction
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("claim_id = ?", claim.ID).Order("id").Find(&txs).Error; err != nil {
			return err
		}
		byRef := make(map[string]*models.Transaction, len(txs))
		for i := range txs {
			byRef[strings.ToUpper(txs[i].ClaimReference)] = &txs[i]
		}

		for _, row := range rows {
			rr := RowResult{Line: row.Line, Reference: row.Reference}
			t, ok := byRef[strings.ToUpper(row.Reference)]
			switch {
			case !ok:
				rr.Outcome = "unmatched"
				rr.Message = "no transaction on this claim has this reference"
				res.Unmatched++
			case t.Status != models.TransactionStatusClaimed:
				rr.TransactionID = t.ID
				rr.Outcome = "skipped"
				rr.Message = fmt.Sprintf("transaction already %s", t.Status)
				res.Skipped++
			case row.Outcome == OutcomeSuccess:
				paid := row.PaidAmount
				if paid == 0 {
					paid = t.Amount
				}
				paid = funding.Round2(paid)
				if err := tx.Model(t).Updates(map[string]any{
					"status":      models.TransactionStatusPaid,
					"paid_amount": paid,
				}).Error; err != nil {
					return err
				}
				t.Status = models.TransactionStatusPaid
				t.PaidAmount = paid
				rr.TransactionID = t.ID
				rr.Outcome = "paid"
				rr.PaidAmount = paid
				res.Paid++
			default:
				if t.DrawdownApplied {
					if _, err := funding.ReverseDrawdown(tx, t.ContractID, t.Amount); err != nil {
						return err
					}
				}
				note := row.ErrorMessage
				if note == "" {
					note = "rejected by funder"
				}
				if err := tx.Model(t).Updates(map[string]any{
					"status":           models.TransactionStatusRejected,
					"drawdown_applied": false,
					"paid_amount":      0,
					"note":             note,
				}).Error; err != nil {
					return err
				}
				t.Status = models.TransactionStatusRejected
				t.DrawdownApplied = false
				rr.TransactionID = t.ID
				rr.Outcome = "rejected"
				rr.Message = note
				res.Rejected++
			}
			metrics.RecordClaimResponseRow(rr.Outcome)
			res.Rows = append(res.Rows, rr)
		}

		status, paidTotal := Settle(claim.Status, txs)
		updates := map[string]any{
			"status":      status,
			"paid_amount": paidTotal,
		}
		if (status == models.ClaimStatusPaid || status == models.ClaimStatusPartiallyPaid) && claim.PaidAt == nil {
			updates["paid_at"] = now
			claim.PaidAt = &now
		}
		if err := tx.Model(claim).Updates(updates).Error; err != nil {
			return err
		}
		claim.Status = status
		claim.PaidAmount = paidTotal
		res.ClaimStatus = status
		res.PaidAmount = paidTotal
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// Settle derives a claim's status and paid total from its lines. Lines still
// awaiting a response keep a claim with no paid lines at its current status.
func Settle(current models.ClaimStatus, lines []models.Transaction) (models.ClaimStatus, float64) {
	var paid, rejected, pending int
	total := 0.0
	for _, t := range lines {
		switch t.Status {
		case models.TransactionStatusPaid:
			paid++
			total += t.PaidAmount
		case models.TransactionStatusRejected:
			rejected++
		case models.TransactionStatusClaimed:
			pending++
		}
	}
	total = funding.Round2(total)

	switch {
	case paid > 0 && rejected == 0 && pending == 0:
		return models.ClaimStatusPaid, total
	case paid > 0:
		return models.ClaimStatusPartiallyPaid, total
	case rejected > 0 && pending == 0:
		return models.ClaimStatusRejected, total
	}
	return current, total
}

// -------------------------
// Manual status
// -------------------------

var manualTransitions = map[models.ClaimStatus][]models.ClaimStatus{
	models.ClaimStatusDraft:     {models.ClaimStatusSubmitted},
	models.ClaimStatusSubmitted: {models.ClaimStatusPaid},
}

func CanSetStatus(from, to models.ClaimStatus) bool {
	for _, s := range manualTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// SetStatus applies a manual status change. Marking a claim paid pays every
// line still awaiting a response at its full amount.
func SetStatus(db *gorm.DB, claim *models.Claim, to models.ClaimStatus, now time.Time) error {
	if !CanSetStatus(claim.Status, to) {
		return fmt.Errorf("%w: %s to %s", ErrStatusTransition, claim.Status, to)
	}
	if to == models.ClaimStatusSubmitted {
		return MarkSubmitted(db, claim, now)
	}

	return db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.Transaction{}).
			Where("claim_id = ? AND status = ?", claim.ID, models.TransactionStatusClaimed).
			Updates(map[string]any{
				"status":      models.TransactionStatusPaid,
				"paid_amount": gorm.Expr("amount"),
			}).Error; err != nil {
			return err
		}

		var paid float64
		if err := tx.Model(&models.Transaction{}).
			Where("claim_id = ? AND status = ?", claim.ID, models.TransactionStatusPaid).
			Select("COALESCE(SUM(paid_amount), 0)").Scan(&paid).Error; err != nil {
			return err
		}

		claim.Status = models.ClaimStatusPaid
		claim.PaidAmount = funding.Round2(paid)
		claim.PaidAt = &now
		return tx.Model(claim).Updates(map[string]any{
			"status":      claim.Status,
			"paid_amount": claim.PaidAmount,
			"paid_at":     now,
		}).Error
	})
}

// IsRuleError reports whether err is a claim business rule failure.
func IsRuleError(err error) bool {
	for _, target := range []error{
		ErrNoTransactions, ErrNotClaimable, ErrNotDraft, ErrNotSubmitted,
		ErrStatusTransition, ErrMissingReferenceColumn,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
