package models

import "time"

type ExpenseStatus string

const (
	ExpenseStatusUnpaid ExpenseStatus = "unpaid"
	ExpenseStatusPaid   ExpenseStatus = "paid"
)

// Expense - running cost of a house (maintenance, utilities, ...)
type Expense struct {
	ID          uint          `gorm:"primaryKey" json:"id"`
	HouseID     *uint         `gorm:"index" json:"house_id"`
	House       *House        `json:"-"`
	SupplierID  *uint         `gorm:"index" json:"supplier_id"`
	Supplier    *Supplier     `json:"-"`
	Category    string        `gorm:"size:50;not null;index" json:"category"`
	ExpenseDate time.Time     `gorm:"type:date;not null;index" json:"expense_date"`
	Amount      float64       `gorm:"not null" json:"amount"`
	GSTAmount   float64       `gorm:"column:gst_amount;default:0" json:"gst_amount"`
	Description string        `gorm:"size:255" json:"description"`
	Status      ExpenseStatus `gorm:"size:20;not null;default:unpaid;index" json:"status"`
	PaidAt      *time.Time    `json:"paid_at"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
}
