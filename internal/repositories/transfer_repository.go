package repositories

import (
	"context"
	"errors"
	"fmt"

	"crest/internal/models"

	"gorm.io/gorm"
)

var (
	ErrTransferNotFound = errors.New("transfer not found")

	// ErrConcurrentWithdrawal is returned when inserting a withdrawal loses
	// to the partial unique index guarding one open withdrawal per wallet.
	ErrConcurrentWithdrawal = errors.New("another withdrawal is already open for this wallet")
)

// TxStore bundles the repositories bound to one database transaction, so a
// settlement transition and its ledger mutation commit or roll back as one
// unit.
type TxStore struct {
	Transfers TransferRepository
	Ledger    LedgerRepository
}

// TransferRepository persists transfer rows and their append-only history
// records. Status changes go through UpdateStatusIf exclusively: the
// conditional update keyed on the expected pre-state is what makes duplicate
// reconciler instances safe.
type TransferRepository interface {
	Create(ctx context.Context, transfer *models.Transfer) error
	GetByPublicID(ctx context.Context, publicID string) (*models.Transfer, error)
	ListNonTerminal(ctx context.Context) ([]models.Transfer, error)
	HasPendingWithdrawal(ctx context.Context, walletID uint) (bool, error)

	// UpdateStatusIf applies updates (which must include the new status) only
	// when the row still has the expected status. Returns false when another
	// writer got there first.
	UpdateStatusIf(ctx context.Context, transferID uint, expected string, updates map[string]interface{}) (bool, error)

	// SetPresentationRefs stores the advisory chat/message identifiers. This
	// is not a status change and carries no conditional guard.
	SetPresentationRefs(ctx context.Context, transferID uint, chatRef, messageRef string) error

	CreateRecord(ctx context.Context, record *models.TransactionRecord) error

	// CloseRecord flips the history record of a transfer to its terminal
	// status. This is the only mutation history records permit.
	CloseRecord(ctx context.Context, transferID uint, status string) error

	ListRecordsByWallet(ctx context.Context, walletID uint, limit, offset int) ([]models.TransactionRecord, error)

	// ExecuteInTransaction runs fn inside one database transaction, handing
	// it transfer and ledger repositories bound to that transaction.
	ExecuteInTransaction(fn func(tx TxStore) error) error
}

type transferRepository struct {
	db *gorm.DB
}

// NewTransferRepository creates a transfer repository backed by db.
func NewTransferRepository(db *gorm.DB) TransferRepository {
	return &transferRepository{db: db}
}

func (r *transferRepository) Create(ctx context.Context, transfer *models.Transfer) error {
	if err := r.db.WithContext(ctx).Create(transfer).Error; err != nil {
		if transfer.Kind == models.TransferKindWithdrawal && errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrConcurrentWithdrawal
		}
		return fmt.Errorf("failed to create transfer: %w", err)
	}
	return nil
}

func (r *transferRepository) GetByPublicID(ctx context.Context, publicID string) (*models.Transfer, error) {
	var transfer models.Transfer
	err := r.db.WithContext(ctx).Where("public_id = ?", publicID).First(&transfer).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTransferNotFound
		}
		return nil, fmt.Errorf("failed to load transfer %s: %w", publicID, err)
	}
	return &transfer, nil
}

func (r *transferRepository) ListNonTerminal(ctx context.Context) ([]models.Transfer, error) {
	var transfers []models.Transfer
	err := r.db.WithContext(ctx).
		Where("status IN ?", []string{models.TransferStatusWaitingStep1, models.TransferStatusWaitingStep2}).
		Order("id").
		Find(&transfers).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list open transfers: %w", err)
	}
	return transfers, nil
}

func (r *transferRepository) HasPendingWithdrawal(ctx context.Context, walletID uint) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Transfer{}).
		Where("wallet_id = ? AND kind = ? AND status IN ?",
			walletID,
			models.TransferKindWithdrawal,
			[]string{models.TransferStatusWaitingStep1, models.TransferStatusWaitingStep2}).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to count pending withdrawals: %w", err)
	}
	return count > 0, nil
}

func (r *transferRepository) UpdateStatusIf(ctx context.Context, transferID uint, expected string, updates map[string]interface{}) (bool, error) {
	if _, ok := updates["status"]; !ok {
		return false, fmt.Errorf("status update for transfer %d is missing the new status", transferID)
	}

	result := r.db.WithContext(ctx).Model(&models.Transfer{}).
		Where("id = ? AND status = ?", transferID, expected).
		Updates(updates)
	if result.Error != nil {
		return false, fmt.Errorf("failed to transition transfer %d: %w", transferID, result.Error)
	}
	return result.RowsAffected == 1, nil
}

func (r *transferRepository) SetPresentationRefs(ctx context.Context, transferID uint, chatRef, messageRef string) error {
	err := r.db.WithContext(ctx).Model(&models.Transfer{}).
		Where("id = ?", transferID).
		Updates(map[string]interface{}{"chat_ref": chatRef, "message_ref": messageRef}).Error
	if err != nil {
		return fmt.Errorf("failed to set presentation refs for transfer %d: %w", transferID, err)
	}
	return nil
}

func (r *transferRepository) CreateRecord(ctx context.Context, record *models.TransactionRecord) error {
	if err := r.db.WithContext(ctx).Create(record).Error; err != nil {
		return fmt.Errorf("failed to create transaction record: %w", err)
	}
	return nil
}

func (r *transferRepository) CloseRecord(ctx context.Context, transferID uint, status string) error {
	err := r.db.WithContext(ctx).Model(&models.TransactionRecord{}).
		Where("transfer_id = ? AND status = ?", transferID, models.RecordStatusPending).
		Update("status", status).Error
	if err != nil {
		return fmt.Errorf("failed to close record for transfer %d: %w", transferID, err)
	}
	return nil
}

func (r *transferRepository) ListRecordsByWallet(ctx context.Context, walletID uint, limit, offset int) ([]models.TransactionRecord, error) {
	var records []models.TransactionRecord
	err := r.db.WithContext(ctx).
		Where("wallet_id = ?", walletID).
		Order("created_at DESC").
		Limit(limit).Offset(offset).
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list records for wallet %d: %w", walletID, err)
	}
	return records, nil
}

func (r *transferRepository) ExecuteInTransaction(fn func(tx TxStore) error) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		return fn(TxStore{
			Transfers: &transferRepository{db: tx},
			Ledger:    NewLedgerRepository(tx),
		})
	})
}
