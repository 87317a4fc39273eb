package models

import "time"

// Ambassador is a bonus-points entity consumed by reporting. Bonus months are
// elapsed whole months since the record was created minus BadMonths, a
// manually curated count of inactive months.
type Ambassador struct {
	ID            string    `gorm:"primaryKey;type:uuid" json:"id"`
	WalletAddress string    `gorm:"uniqueIndex;not null;size:128" json:"wallet_address"`
	DisplayName   string    `gorm:"not null" json:"display_name"`
	Handle        string    `gorm:"uniqueIndex;not null;size:64" json:"handle"`
	BadMonths     int       `gorm:"not null;default:0" json:"bad_months"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

func (Ambassador) TableName() string { return "ambassadors" }
