package repositories

import (
	"context"
	"errors"
	"fmt"

	"crest/internal/models"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var (
	ErrWalletNotFound = errors.New("wallet not found")
)

// LedgerRepository is the balance mutation protocol: the only code path
// permitted to change a wallet's balance. Both primitives are single
// conditional UPDATE statements, so concurrent callers can never produce a
// lost update or a negative balance.
type LedgerRepository interface {
	// TryDebit atomically subtracts amount if the balance covers it.
	// Returns false without mutation when funds are insufficient.
	TryDebit(ctx context.Context, walletID uint, amount decimal.Decimal) (bool, error)

	// Credit atomically adds amount to the balance.
	Credit(ctx context.Context, walletID uint, amount decimal.Decimal) error

	// GetBalance reads the current balance.
	GetBalance(ctx context.Context, walletID uint) (decimal.Decimal, error)
}

type ledgerRepository struct {
	db *gorm.DB
}

// NewLedgerRepository creates a ledger repository bound to db, which may be
// a transaction handle.
func NewLedgerRepository(db *gorm.DB) LedgerRepository {
	return &ledgerRepository{db: db}
}

func (r *ledgerRepository) TryDebit(ctx context.Context, walletID uint, amount decimal.Decimal) (bool, error) {
	if amount.Sign() <= 0 {
		return false, fmt.Errorf("debit amount must be positive, got %s", amount)
	}

	// Compare-and-subtract in one statement. The WHERE clause is the guard:
	// zero rows affected means insufficient funds or a lost race, and in
	// either case nothing changed.
	result := r.db.WithContext(ctx).Model(&models.Wallet{}).
		Where("id = ? AND balance >= ?", walletID, amount).
		Update("balance", gorm.Expr("balance - ?", amount))
	if result.Error != nil {
		return false, fmt.Errorf("failed to debit wallet %d: %w", walletID, result.Error)
	}
	return result.RowsAffected == 1, nil
}

func (r *ledgerRepository) Credit(ctx context.Context, walletID uint, amount decimal.Decimal) error {
	if amount.Sign() <= 0 {
		return fmt.Errorf("credit amount must be positive, got %s", amount)
	}

	result := r.db.WithContext(ctx).Model(&models.Wallet{}).
		Where("id = ?", walletID).
		Update("balance", gorm.Expr("balance + ?", amount))
	if result.Error != nil {
		return fmt.Errorf("failed to credit wallet %d: %w", walletID, result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrWalletNotFound
	}
	return nil
}

func (r *ledgerRepository) GetBalance(ctx context.Context, walletID uint) (decimal.Decimal, error) {
	var wallet models.Wallet
	if err := r.db.WithContext(ctx).First(&wallet, walletID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return decimal.Zero, ErrWalletNotFound
		}
		return decimal.Zero, fmt.Errorf("failed to load wallet %d: %w", walletID, err)
	}
	return wallet.Balance, nil
}
