package models

import "time"

type FundingType string

const (
	FundingTypeSIL              FundingType = "sil"
	FundingTypeSDA              FundingType = "sda"
	FundingTypeCore             FundingType = "core"
	FundingTypeCapacityBuilding FundingType = "capacity_building"
	FundingTypeOther            FundingType = "other"
)

type DrawdownRate string

const (
	DrawdownDaily       DrawdownRate = "daily"
	DrawdownWeekly      DrawdownRate = "weekly"
	DrawdownFortnightly DrawdownRate = "fortnightly"
	DrawdownMonthly     DrawdownRate = "monthly"
)

type ContractStatus string

const (
	ContractStatusDraft     ContractStatus = "draft"
	ContractStatusActive    ContractStatus = "active"
	ContractStatusExpired   ContractStatus = "expired"
	ContractStatusCancelled ContractStatus = "cancelled"
)

// FundingContract - NDIS funding allocated to a resident for a period
type FundingContract struct {
	ID                uint           `gorm:"primaryKey" json:"id"`
	ResidentID        uint           `gorm:"index;not null" json:"resident_id"`
	Resident          *Resident      `json:"-"`
	ContractNumber    string         `gorm:"size:50;not null;uniqueIndex" json:"contract_number"`
	FundingType       FundingType    `gorm:"size:30;not null" json:"funding_type"`
	SupportItemNumber string         `gorm:"size:30" json:"support_item_number"`
	StartDate         time.Time      `gorm:"type:date;not null" json:"start_date"`
	EndDate           time.Time      `gorm:"type:date;not null" json:"end_date"`
	OriginalAmount    float64        `gorm:"not null" json:"original_amount"`
	CurrentBalance    float64        `gorm:"not null" json:"current_balance"`
	DrawdownRate      DrawdownRate   `gorm:"size:20;not null;default:weekly" json:"drawdown_rate"`
	UnitPrice         float64        `gorm:"default:0" json:"unit_price"`
	AutoDrawdown      bool           `gorm:"default:false" json:"auto_drawdown"`
	Status            ContractStatus `gorm:"size:20;not null;default:draft;index" json:"status"`
	Notes             string         `gorm:"size:1000" json:"notes"`
	CreatedAt         time.Time      `json:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at"`
}
