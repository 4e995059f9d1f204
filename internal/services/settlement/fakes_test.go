package settlement

import (
	"context"
	"fmt"
	"sync"
	"time"

	"crest/internal/config"
	"crest/internal/models"
	"crest/internal/repositories"
	"crest/internal/services/bridge"

	"github.com/shopspring/decimal"
)

// memStore is an in-memory stand-in for the transfer, ledger and wallet
// repositories. One mutex guards everything, which is enough to exercise
// the conditional-update semantics the real repositories get from SQL.
type memStore struct {
	mu sync.Mutex

	nextID    uint
	transfers map[uint]*models.Transfer
	records   map[uint]*models.TransactionRecord
	wallets   map[uint]*models.Wallet

	// pendingQueue scripts HasPendingWithdrawal answers ahead of the real
	// computation, to stage interleavings a sequential test cannot produce.
	pendingQueue []bool
	// createErr fails the next transfer Create with the given error.
	createErr error
}

func newMemStore() *memStore {
	return &memStore{
		nextID:    1,
		transfers: make(map[uint]*models.Transfer),
		records:   make(map[uint]*models.TransactionRecord),
		wallets:   make(map[uint]*models.Wallet),
	}
}

func (m *memStore) addWallet(userID uint, balance string) *models.Wallet {
	m.mu.Lock()
	defer m.mu.Unlock()
	wallet := &models.Wallet{
		ID:      m.nextID,
		UserID:  userID,
		Address: "acct-test",
		Balance: decimal.RequireFromString(balance),
		Status:  models.WalletStatusActive,
	}
	m.nextID++
	m.wallets[wallet.ID] = wallet
	return wallet
}

// TransferRepository

func (m *memStore) Create(_ context.Context, transfer *models.Transfer) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		err := m.createErr
		m.createErr = nil
		return err
	}
	transfer.ID = m.nextID
	m.nextID++
	if transfer.CreatedAt.IsZero() {
		transfer.CreatedAt = time.Now()
	}
	clone := *transfer
	m.transfers[transfer.ID] = &clone
	return nil
}

func (m *memStore) GetByPublicID(_ context.Context, publicID string) (*models.Transfer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.transfers {
		if t.PublicID == publicID {
			clone := *t
			return &clone, nil
		}
	}
	return nil, repositories.ErrTransferNotFound
}

func (m *memStore) ListNonTerminal(_ context.Context) ([]models.Transfer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Transfer
	for _, t := range m.transfers {
		if !t.Terminal() {
			out = append(out, *t)
		}
	}
	return out, nil
}

func (m *memStore) HasPendingWithdrawal(_ context.Context, walletID uint) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.pendingQueue) > 0 {
		answer := m.pendingQueue[0]
		m.pendingQueue = m.pendingQueue[1:]
		return answer, nil
	}
	for _, t := range m.transfers {
		if t.WalletID == walletID && t.Kind == models.TransferKindWithdrawal && !t.Terminal() {
			return true, nil
		}
	}
	return false, nil
}

func (m *memStore) UpdateStatusIf(_ context.Context, transferID uint, expected string, updates map[string]interface{}) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.transfers[transferID]
	if !ok || t.Status != expected {
		return false, nil
	}
	for column, value := range updates {
		switch column {
		case "status":
			t.Status = value.(string)
		case "step1_completed_at":
			at := value.(time.Time)
			t.Step1CompletedAt = &at
		case "step2_completed_at":
			at := value.(time.Time)
			t.Step2CompletedAt = &at
		case "second_exchange_id":
			t.SecondExchangeID = value.(string)
		case "delivered_amount":
			t.DeliveredAmount = value.(decimal.Decimal)
		case "deducted_amount":
			t.DeductedAmount = value.(decimal.Decimal)
		case "destination_tx_ref":
			t.DestinationTxRef = value.(string)
		}
	}
	return true, nil
}

func (m *memStore) SetPresentationRefs(_ context.Context, transferID uint, chatRef, messageRef string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t, ok := m.transfers[transferID]; ok {
		t.ChatRef = chatRef
		t.MessageRef = messageRef
	}
	return nil
}

func (m *memStore) CreateRecord(_ context.Context, record *models.TransactionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	record.ID = m.nextID
	m.nextID++
	clone := *record
	m.records[record.ID] = &clone
	return nil
}

func (m *memStore) CloseRecord(_ context.Context, transferID uint, status string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.records {
		if r.TransferID == transferID && r.Status == models.RecordStatusPending {
			r.Status = status
		}
	}
	return nil
}

func (m *memStore) ListRecordsByWallet(_ context.Context, walletID uint, limit, offset int) ([]models.TransactionRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.TransactionRecord
	for _, r := range m.records {
		if r.WalletID == walletID {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (m *memStore) ExecuteInTransaction(fn func(tx repositories.TxStore) error) error {
	return fn(repositories.TxStore{Transfers: m, Ledger: m})
}

// LedgerRepository

func (m *memStore) TryDebit(_ context.Context, walletID uint, amount decimal.Decimal) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	wallet, ok := m.wallets[walletID]
	if !ok || wallet.Balance.LessThan(amount) {
		return false, nil
	}
	wallet.Balance = wallet.Balance.Sub(amount)
	return true, nil
}

func (m *memStore) Credit(_ context.Context, walletID uint, amount decimal.Decimal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	wallet, ok := m.wallets[walletID]
	if !ok {
		return repositories.ErrWalletNotFound
	}
	wallet.Balance = wallet.Balance.Add(amount)
	return nil
}

func (m *memStore) GetBalance(_ context.Context, walletID uint) (decimal.Decimal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	wallet, ok := m.wallets[walletID]
	if !ok {
		return decimal.Zero, repositories.ErrWalletNotFound
	}
	return wallet.Balance, nil
}

// WalletRepository

func (m *memStore) CreateActive(_ context.Context, wallet *models.Wallet) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	wallet.ID = m.nextID
	m.nextID++
	clone := *wallet
	m.wallets[wallet.ID] = &clone
	return nil
}

func (m *memStore) GetByID(_ context.Context, id uint) (*models.Wallet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	wallet, ok := m.wallets[id]
	if !ok {
		return nil, repositories.ErrWalletNotFound
	}
	clone := *wallet
	return &clone, nil
}

func (m *memStore) GetActiveByUserID(_ context.Context, userID uint) (*models.Wallet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, w := range m.wallets {
		if w.UserID == userID && w.Status == models.WalletStatusActive {
			clone := *w
			return &clone, nil
		}
	}
	return nil, repositories.ErrWalletNotFound
}

// fakeBridge scripts exchange creation and status answers.
type fakeBridge struct {
	mu sync.Mutex

	created   int
	createErr error
	statuses  map[string]*bridge.ExchangeStatus
	statusErr map[string]error
}

func newFakeBridge() *fakeBridge {
	return &fakeBridge{
		statuses:  make(map[string]*bridge.ExchangeStatus),
		statusErr: make(map[string]error),
	}
}

func (f *fakeBridge) CreateExchange(_ context.Context, _ decimal.Decimal, _ string) (*bridge.Exchange, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.created++
	id := fmt.Sprintf("ex-%d", f.created)
	f.statuses[id] = &bridge.ExchangeStatus{State: bridge.HopPending}
	return &bridge.Exchange{ID: id, DepositAddress: "bridge-addr-" + id}, nil
}

func (f *fakeBridge) GetExchangeStatus(_ context.Context, exchangeID string) (*bridge.ExchangeStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.statusErr[exchangeID]; ok {
		return nil, err
	}
	status, ok := f.statuses[exchangeID]
	if !ok {
		return nil, bridge.ErrExchangeNotFound
	}
	clone := *status
	return &clone, nil
}

func (f *fakeBridge) setStatus(exchangeID string, status *bridge.ExchangeStatus) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses[exchangeID] = status
	delete(f.statusErr, exchangeID)
}

func (f *fakeBridge) setStatusErr(exchangeID string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statusErr[exchangeID] = err
}

// recordingNotifier captures status change notifications.
type recordingNotifier struct {
	mu      sync.Mutex
	updates []string
}

func (n *recordingNotifier) TransferUpdated(_ context.Context, transfer *models.Transfer) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.updates = append(n.updates, transfer.Status)
}

func testConfig() config.SettlementConfig {
	return config.SettlementConfig{
		MinTransferAmount: decimal.RequireFromString("0.05"),
		FeeBufferPercent:  decimal.RequireFromString("0.01"),
		PollInterval:      time.Millisecond,
		ExpiryWindow:      24 * time.Hour,
		AlertThreshold:    3,
		TreasuryAddress:   "treasury-relay-address-0123456789abcdef",
	}
}

func newTestService(store *memStore, b *fakeBridge) *service {
	return NewService(store, store, store, b, nil, nil, nil, testConfig()).(*service)
}
