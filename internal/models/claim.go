package models

import "time"

type ClaimStatus string

const (
	ClaimStatusDraft         ClaimStatus = "draft"
	ClaimStatusSubmitted     ClaimStatus = "submitted"
	ClaimStatusPaid          ClaimStatus = "paid"
	ClaimStatusPartiallyPaid ClaimStatus = "partially_paid"
	ClaimStatusRejected      ClaimStatus = "rejected"
)

// Claim - batch of transactions submitted to the funder
type Claim struct {
	ID           uint          `gorm:"primaryKey" json:"id"`
	ClaimNumber  string        `gorm:"size:40;not null;uniqueIndex" json:"claim_number"`
	Status       ClaimStatus   `gorm:"size:20;not null;default:draft;index" json:"status"`
	PeriodFrom   *time.Time    `gorm:"type:date" json:"period_from"`
	PeriodTo     *time.Time    `gorm:"type:date" json:"period_to"`
	TotalAmount  float64       `gorm:"not null;default:0" json:"total_amount"`
	PaidAmount   float64       `gorm:"not null;default:0" json:"paid_amount"`
	SubmittedAt  *time.Time    `json:"submitted_at"`
	PaidAt       *time.Time    `json:"paid_at"`
	Notes        string        `gorm:"size:1000" json:"notes"`
	CreatedBy    *uint         `json:"created_by"`
	Transactions []Transaction `gorm:"foreignKey:ClaimID" json:"-"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
}
