package settlement

import (
	"context"
	"sync"
	"testing"

	errs "crest/internal/errors"
	"crest/internal/models"
	"crest/internal/repositories"
	"crest/internal/services/bridge"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitiateDepositBelowMinimumRejected(t *testing.T) {
	store := newMemStore()
	wallet := store.addWallet(1, "0")
	svc := newTestService(store, newFakeBridge())

	_, err := svc.InitiateDeposit(context.Background(), wallet.ID, decimal.RequireFromString("0.04"))
	assert.ErrorIs(t, err, errs.ErrInvalidAmount)
	assert.Empty(t, store.transfers, "no transfer row may exist after a rejected deposit")
}

func TestInitiateDepositAtMinimumIssuesFundingAddress(t *testing.T) {
	store := newMemStore()
	wallet := store.addWallet(1, "0")
	svc := newTestService(store, newFakeBridge())

	transfer, err := svc.InitiateDeposit(context.Background(), wallet.ID, decimal.RequireFromString("0.05"))
	require.NoError(t, err)

	assert.Equal(t, models.TransferStatusWaitingStep1, transfer.Status)
	assert.NotEmpty(t, transfer.FundingAddress)
	assert.NotEmpty(t, transfer.ExchangeID)
	assert.NotEmpty(t, transfer.PublicID)

	// No money moves at deposit creation.
	balance, err := store.GetBalance(context.Background(), wallet.ID)
	require.NoError(t, err)
	assert.True(t, balance.IsZero())

	// A pending history record exists.
	records, err := store.ListRecordsByWallet(context.Background(), wallet.ID, 10, 0)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, models.RecordStatusPending, records[0].Status)
}

func TestInitiateDepositBridgeFailureIsFailClosed(t *testing.T) {
	store := newMemStore()
	wallet := store.addWallet(1, "0")
	b := newFakeBridge()
	b.createErr = &bridge.TransientError{Err: assert.AnError}
	svc := newTestService(store, b)

	_, err := svc.InitiateDeposit(context.Background(), wallet.ID, decimal.RequireFromString("1"))
	assert.ErrorIs(t, err, errs.ErrBridgeUnavailable)
	assert.Empty(t, store.transfers)
}

func TestInitiateWithdrawalDebitsRequestedPlusBuffer(t *testing.T) {
	store := newMemStore()
	wallet := store.addWallet(1, "1.000000000")
	svc := newTestService(store, newFakeBridge())

	transfer, err := svc.InitiateWithdrawal(context.Background(), wallet.ID, validDestination, decimal.RequireFromString("0.5"))
	require.NoError(t, err)

	assert.Equal(t, "0.505", transfer.DeductedAmount.String())

	balance, err := store.GetBalance(context.Background(), wallet.ID)
	require.NoError(t, err)
	assert.Equal(t, "0.495", balance.String())
}

func TestInitiateWithdrawalValidation(t *testing.T) {
	store := newMemStore()
	wallet := store.addWallet(1, "10")
	svc := newTestService(store, newFakeBridge())

	_, err := svc.InitiateWithdrawal(context.Background(), wallet.ID, validDestination, decimal.RequireFromString("0.04"))
	assert.ErrorIs(t, err, errs.ErrInvalidAmount)

	_, err = svc.InitiateWithdrawal(context.Background(), wallet.ID, "not a valid address!", decimal.RequireFromString("1"))
	assert.ErrorIs(t, err, errs.ErrInvalidAddress)

	assert.Empty(t, store.transfers)
}

func TestInitiateWithdrawalInsufficientBalance(t *testing.T) {
	store := newMemStore()
	wallet := store.addWallet(1, "0.5")
	svc := newTestService(store, newFakeBridge())

	// 0.5 requested needs 0.505 with the buffer.
	_, err := svc.InitiateWithdrawal(context.Background(), wallet.ID, validDestination, decimal.RequireFromString("0.5"))
	assert.ErrorIs(t, err, errs.ErrInsufficientBalance)

	balance, err := store.GetBalance(context.Background(), wallet.ID)
	require.NoError(t, err)
	assert.Equal(t, "0.5", balance.String(), "a rejected withdrawal must not touch the balance")
}

func TestInitiateWithdrawalExclusivity(t *testing.T) {
	store := newMemStore()
	wallet := store.addWallet(1, "10")
	svc := newTestService(store, newFakeBridge())

	_, err := svc.InitiateWithdrawal(context.Background(), wallet.ID, validDestination, decimal.RequireFromString("1"))
	require.NoError(t, err)

	_, err = svc.InitiateWithdrawal(context.Background(), wallet.ID, validDestination, decimal.RequireFromString("1"))
	assert.ErrorIs(t, err, errs.ErrPendingWithdrawalExists)
}

func TestWithdrawalPendingRecheckRunsAfterDebit(t *testing.T) {
	store := newMemStore()
	wallet := store.addWallet(1, "10")
	svc := newTestService(store, newFakeBridge())

	// Stage the racing interleaving: the pre-check outside the transaction
	// sees no pending withdrawal, but by the time the in-transaction check
	// runs after the debit, a concurrent creation has committed.
	store.pendingQueue = []bool{false, true}

	_, err := svc.InitiateWithdrawal(context.Background(), wallet.ID, validDestination, decimal.RequireFromString("1"))
	assert.ErrorIs(t, err, errs.ErrPendingWithdrawalExists)

	for _, transfer := range store.transfers {
		assert.NotEqual(t, models.TransferKindWithdrawal, transfer.Kind,
			"no withdrawal row may exist after losing the exclusivity race")
	}
}

func TestWithdrawalUniqueIndexViolationMapsToConflict(t *testing.T) {
	store := newMemStore()
	wallet := store.addWallet(1, "10")
	svc := newTestService(store, newFakeBridge())

	// Both application-level checks pass but the insert loses to the
	// database's one-open-withdrawal index.
	store.createErr = repositories.ErrConcurrentWithdrawal

	_, err := svc.InitiateWithdrawal(context.Background(), wallet.ID, validDestination, decimal.RequireFromString("1"))
	assert.ErrorIs(t, err, errs.ErrPendingWithdrawalExists)
	assert.Empty(t, store.transfers)
}

func TestConcurrentWithdrawalsExactlyOneSucceeds(t *testing.T) {
	store := newMemStore()
	wallet := store.addWallet(1, "1.0")
	svc := newTestService(store, newFakeBridge())

	amount := decimal.RequireFromString("0.6")

	var wg sync.WaitGroup
	results := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, results[i] = svc.InitiateWithdrawal(context.Background(), wallet.ID, validDestination, amount)
		}(i)
	}
	wg.Wait()

	var successes, failures int
	for _, err := range results {
		if err == nil {
			successes++
			continue
		}
		failures++
		assert.True(t,
			err == errs.ErrInsufficientBalance || err == errs.ErrPendingWithdrawalExists,
			"unexpected error: %v", err)
	}
	assert.Equal(t, 1, successes)
	assert.Equal(t, 1, failures)

	balance, err := store.GetBalance(context.Background(), wallet.ID)
	require.NoError(t, err)
	assert.Equal(t, "0.394", balance.String())
	assert.False(t, balance.IsNegative())
}

func TestGetTransferReturnsSteps(t *testing.T) {
	store := newMemStore()
	wallet := store.addWallet(1, "0")
	svc := newTestService(store, newFakeBridge())

	created, err := svc.InitiateDeposit(context.Background(), wallet.ID, decimal.RequireFromString("1"))
	require.NoError(t, err)

	transfer, steps, err := svc.GetTransfer(context.Background(), created.PublicID)
	require.NoError(t, err)
	assert.Equal(t, created.PublicID, transfer.PublicID)
	assert.Len(t, steps, 6)

	_, _, err = svc.GetTransfer(context.Background(), "missing")
	assert.ErrorIs(t, err, errs.ErrTransferNotFound)
}

func TestAttachPresentation(t *testing.T) {
	store := newMemStore()
	wallet := store.addWallet(1, "0")
	svc := newTestService(store, newFakeBridge())

	created, err := svc.InitiateDeposit(context.Background(), wallet.ID, decimal.RequireFromString("1"))
	require.NoError(t, err)

	require.NoError(t, svc.AttachPresentation(context.Background(), created.PublicID, "chat-9", "msg-4"))

	transfer, _, err := svc.GetTransfer(context.Background(), created.PublicID)
	require.NoError(t, err)
	assert.Equal(t, "chat-9", transfer.ChatRef)
	assert.Equal(t, "msg-4", transfer.MessageRef)
}

const validDestination = "destAddr4f9c2b7e8a1d6c3f5e9b2a7d4c8f1e6b3a9d2c7f4e8b1a6d3c9f2e7b4a8d1c"
