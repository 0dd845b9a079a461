package models

import "time"

type Supplier struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"size:150;not null" json:"name"`
	ABN       string    `gorm:"column:abn;size:11" json:"abn"`
	Email     string    `gorm:"size:150" json:"email"`
	Phone     string    `gorm:"size:50" json:"phone"`
	Category  string    `gorm:"size:50;index" json:"category"`
	IsActive  bool      `gorm:"default:true" json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
