package models

import "time"

type HouseStatus string

const (
	HouseStatusActive   HouseStatus = "active"
	HouseStatusInactive HouseStatus = "inactive"
)

// House is a dwelling residents live in.
type House struct {
	ID        uint        `gorm:"primaryKey" json:"id"`
	Name      string      `gorm:"size:150;not null;uniqueIndex" json:"name"`
	Address   string      `gorm:"size:255" json:"address"`
	Suburb    string      `gorm:"size:100" json:"suburb"`
	State     string      `gorm:"size:10" json:"state"`
	Postcode  string      `gorm:"size:10" json:"postcode"`
	Capacity  int         `gorm:"not null;default:1" json:"capacity"` // number of resident rooms
	Status    HouseStatus `gorm:"size:20;not null;default:active;index" json:"status"`
	OwnerID   *uint       `gorm:"index" json:"owner_id"`
	Owner     *Owner      `json:"-"`
	Notes     string      `gorm:"size:1000" json:"notes"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}
