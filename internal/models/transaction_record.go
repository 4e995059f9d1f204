package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// TransactionRecord statuses
const (
	RecordStatusPending = "pending"
)

// TransactionRecord is an append-only history entry, one per transfer,
// created as "pending" at initiation. The only permitted mutation is the
// single flip to the transfer's terminal status. It feeds history views and
// audit; it is never authoritative for a balance.
type TransactionRecord struct {
	ID         uint            `gorm:"primarykey"`
	WalletID   uint            `gorm:"index;not null"`
	TransferID uint            `gorm:"uniqueIndex;not null"`
	Kind       string          `gorm:"not null"`
	Amount     decimal.Decimal `gorm:"type:numeric(30,9);not null"`
	Status     string          `gorm:"not null;default:'pending'"`
	Metadata   JSON            `gorm:"type:jsonb"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
}
