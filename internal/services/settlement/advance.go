package settlement

import (
	"context"
	"errors"
	"fmt"

	"crest/internal/models"
	"crest/internal/repositories"
	"crest/internal/services/bridge"

	"go.uber.org/zap"
)

// Advance inspects the transfer's active exchange hop and applies at most
// one transition. Transient bridge errors propagate to the caller with no
// state change; everything else resolves to a conditional update that is a
// no-op if another process already applied it.
//
// The bridge is always consulted before any local decision. Expiry applies
// only when the observation shows no delivery: a delivered exchange settles
// normally no matter how stale the transfer is, so the outcome can never
// fork into "destination paid and sender compensated". When the bridge is
// unreachable the transfer stays put and keeps retrying; the reconciler's
// consecutive-failure alert is the operator's signal, not a silent expiry.
func (s *service) Advance(ctx context.Context, transfer *models.Transfer) (bool, error) {
	if transfer.Terminal() {
		return false, nil
	}

	status, err := s.bridge.GetExchangeStatus(ctx, transfer.ActiveExchangeID())
	if err != nil {
		if errors.Is(err, bridge.ErrExchangeNotFound) {
			// The provider disowned the exchange; retrying cannot recover it.
			zap.L().Warn("Bridge disowned exchange, failing transfer",
				zap.String("transfer_id", transfer.PublicID),
				zap.String("exchange_id", transfer.ActiveExchangeID()))
			return s.terminalize(ctx, transfer, models.TransferStatusFailed)
		}
		return false, err
	}

	switch status.State {
	case bridge.HopPending:
		if s.stalled(transfer) {
			return s.terminalize(ctx, transfer, models.TransferStatusExpired)
		}
		return false, nil

	case bridge.HopExchanging, bridge.HopDelivered:
		if transfer.Status == models.TransferStatusWaitingStep1 {
			// Even when the bridge already reports delivery, only one
			// transition applies per observation; completion follows on the
			// next poll. This keeps the status sequence strictly monotonic.
			return s.completeStep1(ctx, transfer, status.SecondHopID)
		}
		if status.State == bridge.HopDelivered {
			if transfer.Kind == models.TransferKindDeposit && status.DeliveredAmount.Sign() <= 0 {
				// Finished with nothing delivered means nothing to credit;
				// treating it as failed beats retrying a zero credit forever.
				zap.L().Warn("Bridge reported delivery without an amount, failing deposit",
					zap.String("transfer_id", transfer.PublicID),
					zap.String("exchange_id", transfer.ActiveExchangeID()))
				return s.terminalize(ctx, transfer, models.TransferStatusFailed)
			}
			return s.finish(ctx, transfer, status)
		}
		// Second hop in flight but stalled past the window.
		if s.stalled(transfer) {
			return s.terminalize(ctx, transfer, models.TransferStatusExpired)
		}
		return false, nil

	case bridge.HopFailed:
		return s.terminalize(ctx, transfer, models.TransferStatusFailed)
	case bridge.HopRefunded:
		return s.terminalize(ctx, transfer, models.TransferStatusRefunded)
	case bridge.HopExpired:
		return s.terminalize(ctx, transfer, models.TransferStatusExpired)
	}

	return false, fmt.Errorf("unhandled bridge state %q for transfer %s", status.State, transfer.PublicID)
}

// stalled reports whether the transfer sat in its current waiting state
// beyond the expiry window without progress.
func (s *service) stalled(transfer *models.Transfer) bool {
	lastProgress := transfer.CreatedAt
	if transfer.Step1CompletedAt != nil {
		lastProgress = *transfer.Step1CompletedAt
	}
	return s.now().Sub(lastProgress) > s.cfg.ExpiryWindow
}

// completeStep1 moves waiting_step1 -> waiting_step2. No ledger mutation
// happens here; the step timestamp only feeds the step projection.
func (s *service) completeStep1(ctx context.Context, transfer *models.Transfer, secondHopID string) (bool, error) {
	now := s.now()
	updates := map[string]interface{}{
		"status":             models.TransferStatusWaitingStep2,
		"step1_completed_at": now,
	}
	if secondHopID != "" {
		updates["second_exchange_id"] = secondHopID
	}

	applied, err := s.transfers.UpdateStatusIf(ctx, transfer.ID, models.TransferStatusWaitingStep1, updates)
	if err != nil || !applied {
		return false, err
	}

	transfer.Status = models.TransferStatusWaitingStep2
	transfer.Step1CompletedAt = &now
	if secondHopID != "" {
		transfer.SecondExchangeID = secondHopID
	}

	s.metrics.RecordTransition(transfer.Kind, models.TransferStatusWaitingStep1, models.TransferStatusWaitingStep2)
	s.notifier.TransferUpdated(ctx, transfer)
	zap.L().Info("Transfer advanced to second hop",
		zap.String("transfer_id", transfer.PublicID),
		zap.String("kind", transfer.Kind))
	return true, nil
}

// finish moves waiting_step2 -> finished. Deposits credit the delivered
// amount here; withdrawals only record what was delivered, because their
// debit already happened at creation.
func (s *service) finish(ctx context.Context, transfer *models.Transfer, status *bridge.ExchangeStatus) (bool, error) {
	now := s.now()
	delivered := status.DeliveredAmount.Round(amountScale)

	var applied bool
	err := s.transfers.ExecuteInTransaction(func(tx repositories.TxStore) error {
		updates := map[string]interface{}{
			"status":             models.TransferStatusFinished,
			"step2_completed_at": now,
			"delivered_amount":   delivered,
			"destination_tx_ref": status.DestinationTxRef,
		}
		if transfer.Kind == models.TransferKindDeposit {
			// For deposits the deducted column records what was actually
			// credited, which slippage and fees may shrink below requested.
			updates["deducted_amount"] = delivered
		}

		var err error
		applied, err = tx.Transfers.UpdateStatusIf(ctx, transfer.ID, models.TransferStatusWaitingStep2, updates)
		if err != nil || !applied {
			return err
		}

		if transfer.Kind == models.TransferKindDeposit {
			if err := tx.Ledger.Credit(ctx, transfer.WalletID, delivered); err != nil {
				return err
			}
		}
		return tx.Transfers.CloseRecord(ctx, transfer.ID, models.TransferStatusFinished)
	})
	if err != nil {
		return false, fmt.Errorf("failed to finish transfer %s: %w", transfer.PublicID, err)
	}
	if !applied {
		return false, nil
	}

	transfer.Status = models.TransferStatusFinished
	transfer.Step2CompletedAt = &now
	transfer.DeliveredAmount = delivered
	transfer.DestinationTxRef = status.DestinationTxRef

	if transfer.Kind == models.TransferKindDeposit {
		transfer.DeductedAmount = delivered
		s.invalidateWalletByID(ctx, transfer.WalletID)
	}

	s.metrics.RecordTransition(transfer.Kind, models.TransferStatusWaitingStep2, models.TransferStatusFinished)
	s.notifier.TransferUpdated(ctx, transfer)
	zap.L().Info("Transfer finished",
		zap.String("transfer_id", transfer.PublicID),
		zap.String("kind", transfer.Kind),
		zap.String("delivered", delivered.StringFixed(amountScale)))
	return true, nil
}

// terminalize moves the transfer to a failure-family terminal state. For
// withdrawals the compensating credit of the full deducted amount rides in
// the same transaction as the conditional status flip, which is exactly
// what makes the compensation idempotent: only the one process whose
// conditional update succeeds ever applies it.
func (s *service) terminalize(ctx context.Context, transfer *models.Transfer, terminal string) (bool, error) {
	from := transfer.Status

	var applied bool
	err := s.transfers.ExecuteInTransaction(func(tx repositories.TxStore) error {
		var err error
		applied, err = tx.Transfers.UpdateStatusIf(ctx, transfer.ID, from, map[string]interface{}{
			"status": terminal,
		})
		if err != nil || !applied {
			return err
		}

		if transfer.Kind == models.TransferKindWithdrawal && transfer.DeductedAmount.Sign() > 0 {
			if err := tx.Ledger.Credit(ctx, transfer.WalletID, transfer.DeductedAmount); err != nil {
				return err
			}
		}
		return tx.Transfers.CloseRecord(ctx, transfer.ID, terminal)
	})
	if err != nil {
		return false, fmt.Errorf("failed to terminalize transfer %s: %w", transfer.PublicID, err)
	}
	if !applied {
		return false, nil
	}

	transfer.Status = terminal

	if transfer.Kind == models.TransferKindWithdrawal {
		s.invalidateWalletByID(ctx, transfer.WalletID)
		zap.L().Warn("Withdrawal reached terminal failure, balance compensated",
			zap.String("transfer_id", transfer.PublicID),
			zap.String("terminal", terminal),
			zap.String("compensated", transfer.DeductedAmount.StringFixed(amountScale)))
	} else {
		zap.L().Warn("Deposit reached terminal failure",
			zap.String("transfer_id", transfer.PublicID),
			zap.String("terminal", terminal))
	}

	s.metrics.RecordTransition(transfer.Kind, from, terminal)
	s.notifier.TransferUpdated(ctx, transfer)
	return true, nil
}

func (s *service) invalidateWalletByID(ctx context.Context, walletID uint) {
	if s.cache == nil {
		return
	}
	wallet, err := s.wallets.GetByID(ctx, walletID)
	if err != nil {
		return
	}
	s.invalidateWallet(ctx, wallet.UserID)
}
