package model

import "time"

// BankDetail is the payout destination on record for a freelancer. Only the
// verification flag matters to the ledger; account numbers live with the
// surrounding profile layer.
type BankDetail struct {
	ID        uint64    `gorm:"primaryKey"`
	OwnerID   uint64    `gorm:"not null;index"`
	Verified  bool      `gorm:"not null;default:false"`
	Label     string    `gorm:"size:128"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
}

func (BankDetail) TableName() string { return "bank_detail" }
