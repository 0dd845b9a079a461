package models

import "time"

// Owner - landlord of one or more houses
type Owner struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"size:150;not null" json:"name"`
	Company   string    `gorm:"size:150" json:"company"`
	Email     string    `gorm:"size:150" json:"email"`
	Phone     string    `gorm:"size:50" json:"phone"`
	ABN       string    `gorm:"column:abn;size:11" json:"abn"`
	Notes     string    `gorm:"size:1000" json:"notes"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// PlanManager - third party that pays invoices on behalf of plan-managed residents
type PlanManager struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	Name         string    `gorm:"size:150;not null" json:"name"`
	Organisation string    `gorm:"size:150" json:"organisation"`
	Email        string    `gorm:"size:150" json:"email"`
	Phone        string    `gorm:"size:50" json:"phone"`
	InvoiceEmail string    `gorm:"size:150" json:"invoice_email"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

type ContactType string

const (
	ContactTypeFamily             ContactType = "family"
	ContactTypeGuardian           ContactType = "guardian"
	ContactTypeSupportCoordinator ContactType = "support_coordinator"
	ContactTypeMedical            ContactType = "medical"
	ContactTypeOther              ContactType = "other"
)

type Contact struct {
	ID         uint        `gorm:"primaryKey" json:"id"`
	Name       string      `gorm:"size:150;not null" json:"name"`
	Type       ContactType `gorm:"size:30;not null;index" json:"type"`
	Email      string      `gorm:"size:150" json:"email"`
	Phone      string      `gorm:"size:50" json:"phone"`
	ResidentID *uint       `gorm:"index" json:"resident_id"`
	HouseID    *uint       `gorm:"index" json:"house_id"`
	Notes      string      `gorm:"size:1000" json:"notes"`
	CreatedAt  time.Time   `json:"created_at"`
	UpdatedAt  time.Time   `json:"updated_at"`
}
