package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Account holds the spendable balance of one marketplace user (a client's
// general balance or a freelancer's wallet). Balance is mutated only inside a
// store transaction, guarded by the Version column.
type Account struct {
	ID        uint64          `gorm:"primaryKey"`
	OwnerID   uint64          `gorm:"uniqueIndex;not null"`
	Balance   decimal.Decimal `gorm:"type:numeric(20,8);not null;default:'0'"`
	Currency  string          `gorm:"size:8;not null;default:'USD'"`
	Version   uint64          `gorm:"not null;default:0"`
	CreatedAt time.Time       `gorm:"autoCreateTime"`
	UpdatedAt time.Time       `gorm:"autoUpdateTime"`
}

func (Account) TableName() string { return "account" }
