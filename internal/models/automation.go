package models

import "time"

type AutomationType string

const (
	AutomationRecurringTransaction AutomationType = "recurring_transaction"
	AutomationContractBilling      AutomationType = "contract_billing"
)

type Frequency string

const (
	FrequencyDaily   Frequency = "daily"
	FrequencyWeekly  Frequency = "weekly"
	FrequencyMonthly Frequency = "monthly"
	FrequencyCron    Frequency = "cron"
)

// Automation - scheduled job that creates transactions
type Automation struct {
	ID             uint           `gorm:"primaryKey" json:"id"`
	Name           string         `gorm:"size:150;not null" json:"name"`
	Type           AutomationType `gorm:"size:30;not null" json:"type"`
	IsEnabled      bool           `gorm:"default:true;index" json:"is_enabled"`
	Frequency      Frequency      `gorm:"size:20;not null" json:"frequency"`
	DayOfWeek      *int           `json:"day_of_week"`  // 0 = Sunday
	DayOfMonth     *int           `json:"day_of_month"` // clamped to the month length
	TimeOfDay      string         `gorm:"size:5;not null;default:'00:00'" json:"time_of_day"`
	CronExpression string         `gorm:"size:100" json:"cron_expression"`
	Timezone       string         `gorm:"size:50;not null;default:'Australia/Sydney'" json:"timezone"`

	// recurring_transaction template
	ContractID        *uint   `gorm:"index" json:"contract_id"`
	Quantity          float64 `gorm:"default:0" json:"quantity"`
	UnitPrice         float64 `gorm:"default:0" json:"unit_price"`
	SupportItemNumber string  `gorm:"size:30" json:"support_item_number"`
	Description       string  `gorm:"size:500" json:"description"`
	AutoPost          bool    `gorm:"default:false" json:"auto_post"`

	LastRunAt *time.Time `json:"last_run_at"`
	NextRunAt *time.Time `json:"next_run_at"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

type AutomationRunStatus string

const (
	AutomationRunSuccess AutomationRunStatus = "success"
	AutomationRunFailed  AutomationRunStatus = "failed"
	AutomationRunSkipped AutomationRunStatus = "skipped"
)

type AutomationRun struct {
	ID           uint                `gorm:"primaryKey" json:"id"`
	AutomationID uint                `gorm:"index;not null" json:"automation_id"`
	StartedAt    time.Time           `json:"started_at"`
	FinishedAt   time.Time           `json:"finished_at"`
	Status       AutomationRunStatus `gorm:"size:20;not null" json:"status"`
	CreatedCount int                 `json:"created_count"`
	Message      string              `gorm:"size:1000" json:"message"`
	CreatedAt    time.Time           `json:"created_at"`
}
