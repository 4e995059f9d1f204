// Package settlement implements the deposit and withdrawal state machines.
//
// Every transfer moves waiting_step1 -> waiting_step2 -> finished, with
// failed, refunded and expired reachable from either waiting state. All
// transitions are conditional updates keyed on the expected pre-state, so
// the reconciliation loop can run on any number of processes without ever
// applying a transition twice. Balance changes happen in the same database
// transaction as the transition that justifies them, and only through the
// ledger repository's two primitives.
package settlement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"crest/internal/config"
	errs "crest/internal/errors"
	"crest/internal/models"
	"crest/internal/repositories"
	"crest/internal/repositories/cache"
	"crest/internal/services/bridge"
	"crest/internal/validation"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// amountScale is the fixed precision of the settlement currency.
const amountScale = 9

type service struct {
	transfers repositories.TransferRepository
	ledger    repositories.LedgerRepository
	wallets   repositories.WalletRepository
	bridge    bridge.Client
	cache     *cache.CacheService
	notifier  Notifier
	metrics   MetricsCollector
	cfg       config.SettlementConfig
	now       func() time.Time
}

// NewService creates the settlement service. Cache may be nil; notifier and
// metrics fall back to no-ops.
func NewService(
	transfers repositories.TransferRepository,
	ledger repositories.LedgerRepository,
	wallets repositories.WalletRepository,
	bridgeClient bridge.Client,
	cacheService *cache.CacheService,
	notifier Notifier,
	metrics MetricsCollector,
	cfg config.SettlementConfig,
) Service {
	if transfers == nil || ledger == nil || wallets == nil || bridgeClient == nil {
		panic("settlement: repositories and bridge client are required")
	}
	if notifier == nil {
		notifier = NoopNotifier{}
	}
	if metrics == nil {
		metrics = NoopMetricsCollector{}
	}
	return &service{
		transfers: transfers,
		ledger:    ledger,
		wallets:   wallets,
		bridge:    bridgeClient,
		cache:     cacheService,
		notifier:  notifier,
		metrics:   metrics,
		cfg:       cfg,
		now:       time.Now,
	}
}

func (s *service) InitiateDeposit(ctx context.Context, walletID uint, amount decimal.Decimal) (*models.Transfer, error) {
	if amount.LessThan(s.cfg.MinTransferAmount) {
		return nil, errs.ErrInvalidAmount
	}

	wallet, err := s.wallets.GetByID(ctx, walletID)
	if err != nil {
		if errors.Is(err, repositories.ErrWalletNotFound) {
			return nil, errs.ErrWalletNotFound
		}
		return nil, fmt.Errorf("failed to resolve wallet: %w", err)
	}

	// Fail closed: a bridge error here means no transfer row exists and
	// there is nothing to compensate.
	exchange, err := s.bridge.CreateExchange(ctx, amount, s.cfg.TreasuryAddress)
	if err != nil {
		s.metrics.RecordError("initiate_deposit")
		zap.L().Warn("Deposit creation aborted by bridge failure",
			zap.Uint("wallet_id", wallet.ID),
			zap.Error(err))
		return nil, errs.ErrBridgeUnavailable
	}

	transfer := &models.Transfer{
		PublicID:        uuid.NewString(),
		WalletID:        wallet.ID,
		Kind:            models.TransferKindDeposit,
		Status:          models.TransferStatusWaitingStep1,
		RequestedAmount: amount.Round(amountScale),
		FundingAddress:  exchange.DepositAddress,
		ExchangeID:      exchange.ID,
	}

	err = s.transfers.ExecuteInTransaction(func(tx repositories.TxStore) error {
		if err := tx.Transfers.Create(ctx, transfer); err != nil {
			return err
		}
		return tx.Transfers.CreateRecord(ctx, &models.TransactionRecord{
			WalletID:   wallet.ID,
			TransferID: transfer.ID,
			Kind:       models.TransferKindDeposit,
			Amount:     transfer.RequestedAmount,
			Status:     models.RecordStatusPending,
			Metadata: models.NewJSON(map[string]interface{}{
				"exchange_id":     exchange.ID,
				"funding_address": exchange.DepositAddress,
			}),
		})
	})
	if err != nil {
		s.metrics.RecordError("initiate_deposit")
		return nil, fmt.Errorf("failed to persist deposit: %w", err)
	}

	s.metrics.RecordInitiated(models.TransferKindDeposit)
	zap.L().Info("Deposit initiated",
		zap.String("transfer_id", transfer.PublicID),
		zap.Uint("wallet_id", wallet.ID),
		zap.String("amount", transfer.RequestedAmount.StringFixed(amountScale)))

	return transfer, nil
}

func (s *service) InitiateWithdrawal(ctx context.Context, walletID uint, destination string, amount decimal.Decimal) (*models.Transfer, error) {
	if amount.LessThan(s.cfg.MinTransferAmount) {
		return nil, errs.ErrInvalidAmount
	}
	if !validation.IsValidAddress(destination) {
		return nil, errs.ErrInvalidAddress
	}

	wallet, err := s.wallets.GetByID(ctx, walletID)
	if err != nil {
		if errors.Is(err, repositories.ErrWalletNotFound) {
			return nil, errs.ErrWalletNotFound
		}
		return nil, fmt.Errorf("failed to resolve wallet: %w", err)
	}

	// The real bridge fee is unknown until delivery, so the debit carries a
	// fixed defensive buffer. The full deducted amount, buffer included, is
	// what a failed withdrawal compensates.
	deducted := amount.Mul(decimal.NewFromInt(1).Add(s.cfg.FeeBufferPercent)).Round(amountScale)

	// Cheap pre-checks before touching the bridge. Both are re-validated
	// inside the atomic unit below; these only avoid creating exchanges that
	// are doomed to be abandoned.
	if pending, err := s.transfers.HasPendingWithdrawal(ctx, wallet.ID); err != nil {
		return nil, fmt.Errorf("failed to check pending withdrawals: %w", err)
	} else if pending {
		return nil, errs.ErrPendingWithdrawalExists
	}
	if balance, err := s.ledger.GetBalance(ctx, wallet.ID); err != nil {
		return nil, fmt.Errorf("failed to read balance: %w", err)
	} else if balance.LessThan(deducted) {
		return nil, errs.ErrInsufficientBalance
	}

	exchange, err := s.bridge.CreateExchange(ctx, amount, destination)
	if err != nil {
		s.metrics.RecordError("initiate_withdrawal")
		zap.L().Warn("Withdrawal creation aborted by bridge failure",
			zap.Uint("wallet_id", wallet.ID),
			zap.Error(err))
		return nil, errs.ErrBridgeUnavailable
	}

	transfer := &models.Transfer{
		PublicID:           uuid.NewString(),
		WalletID:           wallet.ID,
		Kind:               models.TransferKindWithdrawal,
		Status:             models.TransferStatusWaitingStep1,
		RequestedAmount:    amount.Round(amountScale),
		DeductedAmount:     deducted,
		FundingAddress:     exchange.DepositAddress,
		DestinationAddress: destination,
		ExchangeID:         exchange.ID,
	}

	// The conditional debit, the exclusivity check and the row creation form
	// one atomic unit. If any piece loses a race the whole unit rolls back
	// and the caller sees a clean rejection, never a partial transfer. The
	// bridge exchange created above is simply never funded and expires on
	// the provider side.
	//
	// The debit runs first on purpose: its row lock serializes concurrent
	// attempts on the same wallet, so the pending count that follows runs on
	// a snapshot that already includes whatever the winner committed. The
	// partial unique index on open withdrawals backstops both checks.
	err = s.transfers.ExecuteInTransaction(func(tx repositories.TxStore) error {
		ok, err := tx.Ledger.TryDebit(ctx, wallet.ID, deducted)
		if err != nil {
			return err
		}
		if !ok {
			return errs.ErrInsufficientBalance
		}

		pending, err := tx.Transfers.HasPendingWithdrawal(ctx, wallet.ID)
		if err != nil {
			return err
		}
		if pending {
			return errs.ErrPendingWithdrawalExists
		}

		if err := tx.Transfers.Create(ctx, transfer); err != nil {
			return err
		}
		return tx.Transfers.CreateRecord(ctx, &models.TransactionRecord{
			WalletID:   wallet.ID,
			TransferID: transfer.ID,
			Kind:       models.TransferKindWithdrawal,
			Amount:     transfer.RequestedAmount,
			Status:     models.RecordStatusPending,
			Metadata: models.NewJSON(map[string]interface{}{
				"exchange_id": exchange.ID,
				"destination": destination,
				"deducted":    deducted.StringFixed(amountScale),
			}),
		})
	})
	if err != nil {
		var domainErr *errs.DomainError
		if errors.As(err, &domainErr) {
			return nil, domainErr
		}
		if errors.Is(err, repositories.ErrConcurrentWithdrawal) {
			return nil, errs.ErrPendingWithdrawalExists
		}
		s.metrics.RecordError("initiate_withdrawal")
		return nil, fmt.Errorf("failed to persist withdrawal: %w", err)
	}

	s.invalidateWallet(ctx, wallet.UserID)
	s.metrics.RecordInitiated(models.TransferKindWithdrawal)
	zap.L().Info("Withdrawal initiated",
		zap.String("transfer_id", transfer.PublicID),
		zap.Uint("wallet_id", wallet.ID),
		zap.String("requested", transfer.RequestedAmount.StringFixed(amountScale)),
		zap.String("deducted", deducted.StringFixed(amountScale)))

	return transfer, nil
}

func (s *service) GetTransfer(ctx context.Context, publicID string) (*models.Transfer, []Step, error) {
	transfer, err := s.transfers.GetByPublicID(ctx, publicID)
	if err != nil {
		if errors.Is(err, repositories.ErrTransferNotFound) {
			return nil, nil, errs.ErrTransferNotFound
		}
		return nil, nil, err
	}
	return transfer, Steps(transfer), nil
}

func (s *service) AttachPresentation(ctx context.Context, publicID, chatRef, messageRef string) error {
	transfer, err := s.transfers.GetByPublicID(ctx, publicID)
	if err != nil {
		if errors.Is(err, repositories.ErrTransferNotFound) {
			return errs.ErrTransferNotFound
		}
		return err
	}
	return s.transfers.SetPresentationRefs(ctx, transfer.ID, chatRef, messageRef)
}

func (s *service) ListOpenTransfers(ctx context.Context) ([]models.Transfer, error) {
	return s.transfers.ListNonTerminal(ctx)
}

func (s *service) invalidateWallet(ctx context.Context, userID uint) {
	if s.cache == nil {
		return
	}
	if err := s.cache.InvalidateWallet(ctx, userID); err != nil {
		zap.L().Debug("Failed to invalidate wallet cache",
			zap.Uint("user_id", userID),
			zap.Error(err))
	}
}
