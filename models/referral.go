package models

import "time"

// Referral is one referral credit: wallet ReferredWalletAddress signed up
// using code ReferredByCode. The unique index on ReferredWalletAddress is
// what enforces "one credit per new wallet".
//
// ReferredByCode is a value snapshot of the inviter's code at signup time,
// deliberately NOT a foreign key: historical attribution must survive the
// inviter's code being regenerated later.
type Referral struct {
	ID                    uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	ReferredByCode        string    `gorm:"index;not null;size:6" json:"referred_by_code"`
	ReferredWalletAddress string    `gorm:"uniqueIndex;not null;size:128" json:"referred_wallet_address"`
	CreatedAt             time.Time `json:"created_at"`
	UpdatedAt             time.Time `json:"updated_at"`
}

func (Referral) TableName() string { return "referrals" }
