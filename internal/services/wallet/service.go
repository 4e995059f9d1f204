// Package wallet serves wallet reads and wallet creation. Balances are only
// ever read here; every mutation path belongs to the settlement service.
package wallet

import (
	"context"
	"errors"
	"fmt"
	"strings"

	errs "crest/internal/errors"
	"crest/internal/models"
	"crest/internal/repositories"
	"crest/internal/repositories/cache"
	"crest/internal/services/pricing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// View is a wallet enriched with a display-only USD estimate. USDValue is
// nil when no quote is available.
type View struct {
	Wallet   *models.Wallet   `json:"wallet"`
	USDValue *decimal.Decimal `json:"usd_value,omitempty"`
}

type Service interface {
	// GetWallet returns the user's active wallet, cache-first.
	GetWallet(ctx context.Context, userID uint) (*View, error)

	// CreateWallet provisions an active wallet for the user, deactivating
	// any previous one.
	CreateWallet(ctx context.Context, userID uint) (*models.Wallet, error)

	// History lists the user's transaction records, newest first.
	History(ctx context.Context, userID uint, limit, offset int) ([]models.TransactionRecord, error)
}

type service struct {
	wallets   repositories.WalletRepository
	transfers repositories.TransferRepository
	cache     *cache.CacheService
	pricing   pricing.Service
}

// NewService creates the wallet service. Cache and pricing may be nil.
func NewService(
	wallets repositories.WalletRepository,
	transfers repositories.TransferRepository,
	cacheService *cache.CacheService,
	pricingService pricing.Service,
) Service {
	return &service{
		wallets:   wallets,
		transfers: transfers,
		cache:     cacheService,
		pricing:   pricingService,
	}
}

func (s *service) GetWallet(ctx context.Context, userID uint) (*View, error) {
	wallet, err := s.loadWallet(ctx, userID)
	if err != nil {
		return nil, err
	}

	view := &View{Wallet: wallet}
	if s.pricing != nil {
		if usd, err := s.pricing.QuoteUSD(ctx, wallet.Balance); err == nil {
			view.USDValue = &usd
		} else {
			zap.L().Debug("USD quote unavailable", zap.Error(err))
		}
	}
	return view, nil
}

func (s *service) loadWallet(ctx context.Context, userID uint) (*models.Wallet, error) {
	if s.cache != nil {
		if wallet, found := s.cache.GetWallet(ctx, userID); found {
			return wallet, nil
		}
	}

	wallet, err := s.wallets.GetActiveByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, repositories.ErrWalletNotFound) {
			return nil, errs.ErrWalletNotFound
		}
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.CacheWallet(ctx, wallet); err != nil {
			zap.L().Debug("Failed to cache wallet", zap.Uint("user_id", userID), zap.Error(err))
		}
	}
	return wallet, nil
}

func (s *service) CreateWallet(ctx context.Context, userID uint) (*models.Wallet, error) {
	wallet := &models.Wallet{
		UserID:  userID,
		Address: newWalletAddress(),
		Balance: decimal.Zero,
	}
	if err := s.wallets.CreateActive(ctx, wallet); err != nil {
		return nil, fmt.Errorf("failed to provision wallet: %w", err)
	}

	if s.cache != nil {
		if err := s.cache.InvalidateWallet(ctx, userID); err != nil {
			zap.L().Debug("Failed to invalidate wallet cache", zap.Uint("user_id", userID), zap.Error(err))
		}
	}

	zap.L().Info("Wallet created",
		zap.Uint("user_id", userID),
		zap.Uint("wallet_id", wallet.ID))
	return wallet, nil
}

func (s *service) History(ctx context.Context, userID uint, limit, offset int) ([]models.TransactionRecord, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	wallet, err := s.loadWallet(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.transfers.ListRecordsByWallet(ctx, wallet.ID, limit, offset)
}

// newWalletAddress derives an internal account address. It identifies the
// wallet inside the platform and is unrelated to bridge deposit addresses.
func newWalletAddress() string {
	return "acct-" + strings.ReplaceAll(uuid.NewString(), "-", "")
}
