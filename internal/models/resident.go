package models

import "time"

type ResidentStatus string

const (
	ResidentStatusActive   ResidentStatus = "active"
	ResidentStatusInactive ResidentStatus = "inactive"
	ResidentStatusExited   ResidentStatus = "exited"
)

type Resident struct {
	ID            uint           `gorm:"primaryKey" json:"id"`
	FirstName     string         `gorm:"size:100;not null" json:"first_name"`
	LastName      string         `gorm:"size:100;not null" json:"last_name"`
	NDISNumber    string         `gorm:"column:ndis_number;size:9;not null;uniqueIndex" json:"ndis_number"`
	DateOfBirth   *time.Time     `gorm:"type:date" json:"date_of_birth"`
	HouseID       uint           `gorm:"index;not null" json:"house_id"`
	House         *House         `json:"-"`
	Room          string         `gorm:"size:50" json:"room"`
	MoveInDate    time.Time      `gorm:"type:date;not null" json:"move_in_date"`
	MoveOutDate   *time.Time     `gorm:"type:date" json:"move_out_date"`
	Status        ResidentStatus `gorm:"size:20;not null;default:active;index" json:"status"`
	PlanManagerID *uint          `gorm:"index" json:"plan_manager_id"`
	PlanManager   *PlanManager   `json:"-"`
	Phone         string         `gorm:"size:50" json:"phone"`
	Email         string         `gorm:"size:150" json:"email"`
	Notes         string         `gorm:"size:1000" json:"notes"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

func (r Resident) FullName() string {
	return r.FirstName + " " + r.LastName
}
