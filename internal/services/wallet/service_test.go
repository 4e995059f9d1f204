package wallet

import (
	"context"
	"testing"

	errs "crest/internal/errors"
	"crest/internal/models"
	"crest/internal/repositories"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWalletRepo struct {
	wallets map[uint]*models.Wallet
	nextID  uint
}

func newFakeWalletRepo() *fakeWalletRepo {
	return &fakeWalletRepo{wallets: make(map[uint]*models.Wallet), nextID: 1}
}

func (f *fakeWalletRepo) CreateActive(_ context.Context, wallet *models.Wallet) error {
	for _, w := range f.wallets {
		if w.UserID == wallet.UserID {
			w.Status = models.WalletStatusInactive
		}
	}
	wallet.ID = f.nextID
	wallet.Status = models.WalletStatusActive
	f.nextID++
	f.wallets[wallet.ID] = wallet
	return nil
}

func (f *fakeWalletRepo) GetByID(_ context.Context, id uint) (*models.Wallet, error) {
	if w, ok := f.wallets[id]; ok {
		return w, nil
	}
	return nil, repositories.ErrWalletNotFound
}

func (f *fakeWalletRepo) GetActiveByUserID(_ context.Context, userID uint) (*models.Wallet, error) {
	for _, w := range f.wallets {
		if w.UserID == userID && w.Status == models.WalletStatusActive {
			return w, nil
		}
	}
	return nil, repositories.ErrWalletNotFound
}

type fakeRecordLister struct {
	repositories.TransferRepository
	records []models.TransactionRecord
}

func (f *fakeRecordLister) ListRecordsByWallet(_ context.Context, walletID uint, limit, offset int) ([]models.TransactionRecord, error) {
	var out []models.TransactionRecord
	for _, r := range f.records {
		if r.WalletID == walletID {
			out = append(out, r)
		}
	}
	return out, nil
}

func TestCreateWalletDeactivatesPrevious(t *testing.T) {
	repo := newFakeWalletRepo()
	svc := NewService(repo, &fakeRecordLister{}, nil, nil)

	first, err := svc.CreateWallet(context.Background(), 7)
	require.NoError(t, err)
	second, err := svc.CreateWallet(context.Background(), 7)
	require.NoError(t, err)

	assert.NotEqual(t, first.ID, second.ID)
	assert.NotEqual(t, first.Address, second.Address)

	active, err := repo.GetActiveByUserID(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, second.ID, active.ID)
}

func TestGetWalletUnknownUser(t *testing.T) {
	svc := NewService(newFakeWalletRepo(), &fakeRecordLister{}, nil, nil)

	_, err := svc.GetWallet(context.Background(), 99)
	assert.ErrorIs(t, err, errs.ErrWalletNotFound)
}

func TestGetWalletWithoutPricing(t *testing.T) {
	repo := newFakeWalletRepo()
	require.NoError(t, repo.CreateActive(context.Background(), &models.Wallet{
		UserID:  3,
		Address: "acct-x",
		Balance: decimal.RequireFromString("2.5"),
	}))
	svc := NewService(repo, &fakeRecordLister{}, nil, nil)

	view, err := svc.GetWallet(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, "2.5", view.Wallet.Balance.String())
	assert.Nil(t, view.USDValue)
}

func TestHistoryScopedToOwnWallet(t *testing.T) {
	repo := newFakeWalletRepo()
	require.NoError(t, repo.CreateActive(context.Background(), &models.Wallet{UserID: 1, Address: "acct-a"}))
	require.NoError(t, repo.CreateActive(context.Background(), &models.Wallet{UserID: 2, Address: "acct-b"}))

	lister := &fakeRecordLister{records: []models.TransactionRecord{
		{ID: 1, WalletID: 1, Kind: models.TransferKindDeposit},
		{ID: 2, WalletID: 2, Kind: models.TransferKindWithdrawal},
	}}
	svc := NewService(repo, lister, nil, nil)

	records, err := svc.History(context.Background(), 1, 10, 0)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, uint(1), records[0].WalletID)
}
