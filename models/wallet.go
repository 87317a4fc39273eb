package models

import "time"

// Wallet is the registry row for one on-chain address. The address is the
// primary key and immutable. The referral code is unique across all wallets
// and nil only while a repair pass has nulled it out pending regeneration
// (ReferralCodeRegenerated marks those rows).
type Wallet struct {
	Address                 string    `gorm:"primaryKey;size:128" json:"address"`
	ReferralCode            *string   `gorm:"uniqueIndex;size:6" json:"referral_code"`
	ReferralCodeRegenerated bool      `gorm:"not null;default:false" json:"referral_code_regenerated"`
	CreatedAt               time.Time `json:"created_at" gorm:"autoCreateTime;index"`
	UpdatedAt               time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

func (Wallet) TableName() string { return "wallets" }
