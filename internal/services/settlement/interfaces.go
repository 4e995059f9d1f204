package settlement

import (
	"context"

	"crest/internal/models"

	"github.com/shopspring/decimal"
)

// Service is the settlement state machine. It owns every transfer
// transition and the single atomic coupling between a transition and a
// ledger mutation.
type Service interface {
	// InitiateDeposit issues a funding address for an incoming transfer. No
	// ledger mutation happens here: money has not arrived yet.
	InitiateDeposit(ctx context.Context, walletID uint, amount decimal.Decimal) (*models.Transfer, error)

	// InitiateWithdrawal debits the balance (requested amount plus fee
	// buffer) and creates the transfer in one atomic unit.
	InitiateWithdrawal(ctx context.Context, walletID uint, destination string, amount decimal.Decimal) (*models.Transfer, error)

	// GetTransfer loads a transfer with its ordered step descriptions.
	GetTransfer(ctx context.Context, publicID string) (*models.Transfer, []Step, error)

	// AttachPresentation stores advisory chat/message refs on a transfer.
	AttachPresentation(ctx context.Context, publicID, chatRef, messageRef string) error

	// ListOpenTransfers returns every transfer not yet in a terminal state.
	ListOpenTransfers(ctx context.Context) ([]models.Transfer, error)

	// Advance applies at most one transition based on the bridge's current
	// view of the transfer's active exchange hop. It is safe to call
	// repeatedly and from multiple processes; duplicates are no-ops.
	Advance(ctx context.Context, transfer *models.Transfer) (bool, error)
}

// Notifier updates any linked external presentation message when a transfer
// changes status. Implementations are strictly best-effort: they must
// swallow their own failures, because presentation can never fail or roll
// back a settlement transition.
type Notifier interface {
	TransferUpdated(ctx context.Context, transfer *models.Transfer)
}

// NoopNotifier discards all updates.
type NoopNotifier struct{}

func (NoopNotifier) TransferUpdated(context.Context, *models.Transfer) {}

// MetricsCollector records settlement activity.
type MetricsCollector interface {
	RecordInitiated(kind string)
	RecordTransition(kind, from, to string)
	RecordError(operation string)
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordInitiated(string)          {}
func (NoopMetricsCollector) RecordTransition(_, _, _ string) {}
func (NoopMetricsCollector) RecordError(string)              {}
