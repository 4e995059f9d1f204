package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Wallet statuses
const (
	WalletStatusActive   = "active"
	WalletStatusInactive = "inactive"
)

// Wallet is an internally-addressed custodial account. A user may own
// several wallets (imports keep the old ones around) but exactly one is
// active at a time. Wallets are never deleted, only deactivated.
//
// Balance is the single authoritative balance row for the wallet. It is
// only ever mutated through the ledger repository's conditional updates.
type Wallet struct {
	ID        uint            `gorm:"primarykey"`
	UserID    uint            `gorm:"index;not null"`
	Address   string          `gorm:"uniqueIndex;not null"`
	Balance   decimal.Decimal `gorm:"type:numeric(30,9);not null;default:0"`
	Status    string          `gorm:"default:'active'"`
	CreatedAt time.Time
	UpdatedAt time.Time
}
