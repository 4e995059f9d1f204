package repositories

import (
	"context"
	"errors"
	"fmt"

	"crest/internal/models"

	"gorm.io/gorm"
)

// WalletRepository defines wallet row operations. Balance mutation is
// deliberately absent here: that is the ledger repository's job.
type WalletRepository interface {
	// CreateActive inserts the wallet and deactivates any previously active
	// wallet of the same user, atomically. Exactly one wallet per user stays
	// active.
	CreateActive(ctx context.Context, wallet *models.Wallet) error

	GetByID(ctx context.Context, id uint) (*models.Wallet, error)
	GetActiveByUserID(ctx context.Context, userID uint) (*models.Wallet, error)
}

type walletRepository struct {
	db *gorm.DB
}

func NewWalletRepository(db *gorm.DB) WalletRepository {
	return &walletRepository{db: db}
}

func (r *walletRepository) CreateActive(ctx context.Context, wallet *models.Wallet) error {
	wallet.Status = models.WalletStatusActive
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Model(&models.Wallet{}).
			Where("user_id = ? AND status = ?", wallet.UserID, models.WalletStatusActive).
			Update("status", models.WalletStatusInactive).Error
		if err != nil {
			return fmt.Errorf("failed to deactivate previous wallets: %w", err)
		}
		if err := tx.Create(wallet).Error; err != nil {
			return fmt.Errorf("failed to create wallet: %w", err)
		}
		return nil
	})
}

func (r *walletRepository) GetByID(ctx context.Context, id uint) (*models.Wallet, error) {
	var wallet models.Wallet
	if err := r.db.WithContext(ctx).First(&wallet, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrWalletNotFound
		}
		return nil, fmt.Errorf("failed to load wallet %d: %w", id, err)
	}
	return &wallet, nil
}

func (r *walletRepository) GetActiveByUserID(ctx context.Context, userID uint) (*models.Wallet, error) {
	var wallet models.Wallet
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND status = ?", userID, models.WalletStatusActive).
		First(&wallet).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrWalletNotFound
		}
		return nil, fmt.Errorf("failed to load active wallet for user %d: %w", userID, err)
	}
	return &wallet, nil
}
