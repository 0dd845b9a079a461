// Package transactions records services delivered to residents and draws
// their cost down from funding contracts.
package transactions

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"housing-backend/internal/funding"
	"housing-backend/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrNotDraft       = errors.New("only draft transactions can be changed")
	ErrNotPosted      = errors.New("only posted transactions can be voided")
	ErrAlreadyClaimed = errors.New("transaction is already on a claim")
	ErrInvalidInput   = errors.New("quantity and unit price must be greater than zero")
)

// Input describes a new transaction against a contract.
type Input struct {
	ServiceDate       time.Time
	Quantity          float64
	UnitPrice         float64 // zero falls back to the contract unit price
	SupportItemNumber string  // empty falls back to the contract support item
	Description       string
	Note              string
	AutomationID      *uint
	CreatedBy         *uint
}

// Amount is quantity times unit price, rounded to cents.
func Amount(quantity, unitPrice float64) float64 {
	return funding.Round2(quantity * unitPrice)
}

// Create stores a draft transaction for fc.
func Create(db *gorm.DB, fc *models.FundingContract, in Input) (*models.Transaction, error) {
	if fc.Status == models.ContractStatusCancelled {
		return nil, fmt.Errorf("%w (status %s)", funding.ErrContractNotActive, fc.Status)
	}
	price := in.UnitPrice
	if price == 0 {
		price = fc.UnitPrice
	}
	if in.Quantity <= 0 || price <= 0 {
		return nil, ErrInvalidInput
	}
	item := strings.TrimSpace(in.SupportItemNumber)
	if item == "" {
		item = fc.SupportItemNumber
	}

	t := models.Transaction{
		ResidentID:        fc.ResidentID,
		ContractID:        fc.ID,
		ServiceDate:       funding.DateOnly(in.ServiceDate),
		SupportItemNumber: item,
		Description:       strings.TrimSpace(in.Description),
		Quantity:          in.Quantity,
		UnitPrice:         funding.Round2(price),
		Amount:            Amount(in.Quantity, price),
		Status:            models.TransactionStatusDraft,
		Note:              in.Note,
		AutomationID:      in.AutomationID,
		CreatedBy:         in.CreatedBy,
	}
	if err := db.Create(&t).Error; err != nil {
		return nil, err
	}
	return &t, nil
}

func lock(tx *gorm.DB, id uint) (*models.Transaction, error) {
	var t models.Transaction
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&t, id).Error; err != nil {
		return nil, err
	}
	return &t, nil
}

// Post draws a draft transaction's amount down from its contract and marks
// it posted. The contract row stays locked until the transaction commits so
// concurrent posts cannot overdraw it.
func Post(db *gorm.DB, id uint) (*models.Transaction, *models.FundingContract, error) {
	var (
		out      *models.Transaction
		contract *models.FundingContract
	)
	err := db.Transaction(func(tx *gorm.DB) error {
		var err error
		out, contract, err = PostTx(tx, id)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	return out, contract, nil
}

// PostTx is Post inside a transaction the caller owns, so a draft created in
// the same transaction goes away when posting fails.
func PostTx(tx *gorm.DB, id uint) (*models.Transaction, *models.FundingContract, error) {
	t, err := lock(tx, id)
	if err != nil {
		return nil, nil, err
	}
	if t.Status != models.TransactionStatusDraft {
		return nil, nil, ErrNotDraft
	}

	fc, err := funding.ApplyDrawdown(tx, t.ContractID, t.Amount, t.ServiceDate)
	if err != nil {
		return nil, nil, err
	}

	t.Status = models.TransactionStatusPosted
	t.DrawdownApplied = true
	if err := tx.Model(t).Updates(map[string]any{
		"status":           t.Status,
		"drawdown_applied": true,
	}).Error; err != nil {
		return nil, nil, err
	}
	return t, fc, nil
}

// Void cancels a posted transaction and returns its amount to the contract.
func Void(db *gorm.DB, id uint, reason string) (*models.Transaction, error) {
	var out *models.Transaction
	err := db.Transaction(func(tx *gorm.DB) error {
		t, err := lock(tx, id)
		if err != nil {
			return err
		}
		switch t.Status {
		case models.TransactionStatusPosted:
		case models.TransactionStatusClaimed, models.TransactionStatusPaid:
			return ErrAlreadyClaimed
		default:
			return ErrNotPosted
		}

		if t.DrawdownApplied {
			if _, err := funding.ReverseDrawdown(tx, t.ContractID, t.Amount); err != nil {
				return err
			}
		}

		t.Status = models.TransactionStatusVoided
		t.DrawdownApplied = false
		updates := map[string]any{
			"status":           t.Status,
			"drawdown_applied": false,
		}
		if reason = strings.TrimSpace(reason); reason != "" {
			t.Note = reason
			updates["note"] = reason
		}
		if err := tx.Model(t).Updates(updates).Error; err != nil {
			return err
		}
		out = t
		return nil
	})
	return out, err
}

// IsRuleError reports whether err is a business rule failure rather than a
// storage error.
func IsRuleError(err error) bool {
	for _, target := range []error{
		ErrNotDraft, ErrNotPosted, ErrAlreadyClaimed, ErrInvalidInput,
		funding.ErrInvalidAmount, funding.ErrContractNotActive,
		funding.ErrOutsidePeriod, funding.ErrInsufficientBalance,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
