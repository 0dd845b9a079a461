package funding

import (
	"fmt"
	"time"

	"housing-backend/internal/metrics"
	"housing-backend/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// LockContract loads a contract with a row lock. tx must be a transaction.
func LockContract(tx *gorm.DB, contractID uint) (*models.FundingContract, error) {
	var c models.FundingContract
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&c, contractID).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

// ApplyDrawdown checks and subtracts amount from the contract balance.
func ApplyDrawdown(tx *gorm.DB, contractID uint, amount float64, date time.Time) (*models.FundingContract, error) {
	c, err := LockContract(tx, contractID)
	if err != nil {
		return nil, err
	}
	if err := CheckDrawdown(c, amount, date); err != nil {
		return c, err
	}

	c.CurrentBalance = Round2(c.CurrentBalance - amount)
	if err := tx.Model(c).Update("current_balance", c.CurrentBalance).Error; err != nil {
		return nil, fmt.Errorf("update balance: %w", err)
	}
	metrics.RecordDrawdown(amount)
	return c, nil
}

// ReverseDrawdown returns amount to the contract balance, never above the
// original amount.
func ReverseDrawdown(tx *gorm.DB, contractID uint, amount float64) (*models.FundingContract, error) {
	c, err := LockContract(tx, contractID)
	if err != nil {
		return nil, err
	}

	c.CurrentBalance = Round2(c.CurrentBalance + amount)
	if c.CurrentBalance > c.OriginalAmount {
		c.CurrentBalance = Round2(c.OriginalAmount)
	}
	if err := tx.Model(c).Update("current_balance", c.CurrentBalance).Error; err != nil {
		return nil, fmt.Errorf("update balance: %w", err)
	}
	metrics.RecordDrawdownReversal(amount)
	return c, nil
}

// AdjustOriginalAmount changes the contract amount and shifts the balance by
// the same delta, clamped at zero.
func AdjustOriginalAmount(c *models.FundingContract, newAmount float64) {
	delta := newAmount - c.OriginalAmount
	c.OriginalAmount = Round2(newAmount)
	c.CurrentBalance = Round2(c.CurrentBalance + delta)
	if c.CurrentBalance < 0 {
		c.CurrentBalance = 0
	}
	if c.CurrentBalance > c.OriginalAmount {
		c.CurrentBalance = c.OriginalAmount
	}
}

// ExpireEnded marks active contracts whose end date has passed as expired.
func ExpireEnded(db *gorm.DB, today time.Time) (int64, error) {
	res := db.Model(&models.FundingContract{}).
		Where("status = ? AND end_date < ?", models.ContractStatusActive, DateOnly(today)).
		Update("status", models.ContractStatusExpired)
	return res.RowsAffected, res.Error
}
