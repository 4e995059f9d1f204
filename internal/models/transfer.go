package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Transfer kinds
const (
	TransferKindDeposit    = "deposit"
	TransferKindWithdrawal = "withdrawal"
)

// Transfer statuses. The ordering waiting_step1 < waiting_step2 < terminal
// is strict: a transfer never moves backwards, and once terminal it is
// never mutated again.
const (
	TransferStatusWaitingStep1 = "waiting_step1"
	TransferStatusWaitingStep2 = "waiting_step2"
	TransferStatusFinished     = "finished"
	TransferStatusFailed       = "failed"
	TransferStatusRefunded     = "refunded"
	TransferStatusExpired      = "expired"
)

// Transfer is one settlement attempt: a deposit or a withdrawal moving value
// between the external bridge and the internal ledger.
type Transfer struct {
	ID       uint   `gorm:"primarykey"`
	PublicID string `gorm:"uniqueIndex;not null"`
	WalletID uint   `gorm:"index;not null"`
	Kind     string `gorm:"not null;index:idx_transfers_kind_status"`
	Status   string `gorm:"not null;default:'waiting_step1';index:idx_transfers_kind_status"`

	// RequestedAmount is what the user asked for. DeductedAmount is what
	// actually left the balance at creation (withdrawals only: requested plus
	// the fee buffer) or what was credited on completion (deposits).
	// DeliveredAmount is what the bridge reported delivering, filled in only
	// when the transfer finishes.
	RequestedAmount decimal.Decimal `gorm:"type:numeric(30,9);not null"`
	DeductedAmount  decimal.Decimal `gorm:"type:numeric(30,9);not null;default:0"`
	DeliveredAmount decimal.Decimal `gorm:"type:numeric(30,9);not null;default:0"`

	// FundingAddress is the bridge-issued address the first hop is funded
	// through: the user funds it for deposits, the treasury funds it for
	// withdrawals. DestinationAddress is set on withdrawals only.
	FundingAddress     string
	DestinationAddress string

	// ExchangeID identifies the bridge exchange for the first hop.
	// SecondExchangeID is filled in if the provider reports a distinct id for
	// the second hop; when empty the first id covers both hops.
	ExchangeID       string `gorm:"index"`
	SecondExchangeID string
	DestinationTxRef string

	// Advisory presentation refs: which external chat message to edit when
	// status changes. Stale or absent values never affect settlement.
	ChatRef    string
	MessageRef string

	Step1CompletedAt *time.Time
	Step2CompletedAt *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Terminal reports whether the transfer reached a terminal status.
func (t *Transfer) Terminal() bool {
	return TransferStatusTerminal(t.Status)
}

// TransferStatusTerminal reports whether a status permits no further mutation.
func TransferStatusTerminal(status string) bool {
	switch status {
	case TransferStatusFinished, TransferStatusFailed, TransferStatusRefunded, TransferStatusExpired:
		return true
	}
	return false
}

// ActiveExchangeID returns the exchange id for the hop currently in flight.
func (t *Transfer) ActiveExchangeID() string {
	if t.Status == TransferStatusWaitingStep2 && t.SecondExchangeID != "" {
		return t.SecondExchangeID
	}
	return t.ExchangeID
}
