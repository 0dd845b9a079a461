package models

import "time"

type TransactionStatus string

const (
	TransactionStatusDraft    TransactionStatus = "draft"
	TransactionStatusPosted   TransactionStatus = "posted"
	TransactionStatusClaimed  TransactionStatus = "claimed"
	TransactionStatusPaid     TransactionStatus = "paid"
	TransactionStatusRejected TransactionStatus = "rejected"
	TransactionStatusVoided   TransactionStatus = "voided"
)

// Transaction - a service delivered to a resident and billed against a contract
type Transaction struct {
	ID                uint              `gorm:"primaryKey" json:"id"`
	ResidentID        uint              `gorm:"index;not null" json:"resident_id"`
	Resident          *Resident         `json:"-"`
	ContractID        uint              `gorm:"index;not null" json:"contract_id"`
	Contract          *FundingContract  `json:"-"`
	ServiceDate       time.Time         `gorm:"type:date;not null;index" json:"service_date"`
	SupportItemNumber string            `gorm:"size:30" json:"support_item_number"`
	Description       string            `gorm:"size:500" json:"description"`
	Quantity          float64           `gorm:"not null" json:"quantity"`
	UnitPrice         float64           `gorm:"not null" json:"unit_price"`
	Amount            float64           `gorm:"not null" json:"amount"` // quantity * unit_price
	Status            TransactionStatus `gorm:"size:20;not null;default:draft;index" json:"status"`
	DrawdownApplied   bool              `gorm:"default:false" json:"drawdown_applied"`
	ClaimID           *uint             `gorm:"index" json:"claim_id"`
	ClaimReference    string            `gorm:"size:60;index" json:"claim_reference"`
	PaidAmount        float64           `gorm:"default:0" json:"paid_amount"`
	Note              string            `gorm:"size:500" json:"note"`
	AutomationID      *uint             `gorm:"index" json:"automation_id"`
	CreatedBy         *uint             `json:"created_by"`
	CreatedAt         time.Time         `json:"created_at"`
	UpdatedAt         time.Time         `json:"updated_at"`
}
