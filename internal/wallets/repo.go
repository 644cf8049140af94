package wallets

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/mukhtabar/mukhtabar-backend/pkg/db/models"
	"github.com/mukhtabar/mukhtabar-backend/pkg/enums"
	"github.com/mukhtabar/mukhtabar-backend/pkg/pagination"
)

// Repository persists wallets and their ledger rows. Balance mutations
// are guarded conditional updates; a false return means the guard
// rejected the change and the caller decides what that implies.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	CreateWallet(ctx context.Context, wallet *models.Wallet) error
	FindWalletByID(ctx context.Context, id uuid.UUID) (*models.Wallet, error)
	FindWalletByLabID(ctx context.Context, labID uuid.UUID) (*models.Wallet, error)
	FindBankAccountByID(ctx context.Context, id uuid.UUID) (*models.BankAccount, error)
	CreditBalance(ctx context.Context, walletID uuid.UUID, amount int64) (bool, error)
	DebitBalance(ctx context.Context, walletID uuid.UUID, amount int64) (bool, error)
	FreezeBalance(ctx context.Context, walletID uuid.UUID, amount int64) (bool, error)
	SettleFrozen(ctx context.Context, walletID uuid.UUID, amount int64) (bool, error)
	ReleaseFrozen(ctx context.Context, walletID uuid.UUID, amount int64) (bool, error)
	CreateTransaction(ctx context.Context, txn *models.WalletTransaction) error
	FindTransactionByID(ctx context.Context, id uuid.UUID) (*models.WalletTransaction, error)
	TransitionTransactionStatus(ctx context.Context, id uuid.UUID, from, to enums.TransactionStatus) (bool, error)
	HasReversal(ctx context.Context, transactionID uuid.UUID) (bool, error)
	SumWithdrawalsSince(ctx context.Context, walletID uuid.UUID, since time.Time) (int64, error)
	ListTransactions(ctx context.Context, walletID uuid.UUID, params pagination.Params) ([]models.WalletTransaction, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a wallets repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) CreateWallet(ctx context.Context, wallet *models.Wallet) error {
	return r.db.WithContext(ctx).Create(wallet).Error
}

func (r *repository) FindWalletByID(ctx context.Context, id uuid.UUID) (*models.Wallet, error) {
	var wallet models.Wallet
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&wallet).Error; err != nil {
		return nil, err
	}
	return &wallet, nil
}

func (r *repository) FindWalletByLabID(ctx context.Context, labID uuid.UUID) (*models.Wallet, error) {
	var wallet models.Wallet
	if err := r.db.WithContext(ctx).Where("lab_id = ?", labID).First(&wallet).Error; err != nil {
		return nil, err
	}
	return &wallet, nil
}

func (r *repository) FindBankAccountByID(ctx context.Context, id uuid.UUID) (*models.BankAccount, error) {
	var account models.BankAccount
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&account).Error; err != nil {
		return nil, err
	}
	return &account, nil
}

// CreditBalance adds to the settled balance. The guard enforces the
// wallet is active and, when a maximum balance is configured, that the
// credit does not overflow it.
func (r *repository) CreditBalance(ctx context.Context, walletID uuid.UUID, amount int64) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Wallet{}).
		Where("id = ? AND active = ? AND (maximum_balance_halalas = 0 OR balance_halalas + ? <= maximum_balance_halalas)",
			walletID, true, amount).
		Updates(map[string]any{
			"balance_halalas":     gorm.Expr("balance_halalas + ?", amount),
			"last_transaction_at": time.Now().UTC(),
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// DebitBalance removes from the settled balance, guarded against the
// available balance so frozen funds cannot be spent.
func (r *repository) DebitBalance(ctx context.Context, walletID uuid.UUID, amount int64) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Wallet{}).
		Where("id = ? AND active = ? AND balance_halalas - frozen_halalas >= ?", walletID, true, amount).
		Updates(map[string]any{
			"balance_halalas":     gorm.Expr("balance_halalas - ?", amount),
			"last_transaction_at": time.Now().UTC(),
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// FreezeBalance holds part of the available balance without settling it.
func (r *repository) FreezeBalance(ctx context.Context, walletID uuid.UUID, amount int64) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Wallet{}).
		Where("id = ? AND active = ? AND balance_halalas - frozen_halalas >= ?", walletID, true, amount).
		Updates(map[string]any{
			"frozen_halalas":      gorm.Expr("frozen_halalas + ?", amount),
			"last_transaction_at": time.Now().UTC(),
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// SettleFrozen converts a hold into a real debit in one statement.
func (r *repository) SettleFrozen(ctx context.Context, walletID uuid.UUID, amount int64) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Wallet{}).
		Where("id = ? AND frozen_halalas >= ? AND balance_halalas >= ?", walletID, amount, amount).
		Updates(map[string]any{
			"balance_halalas":     gorm.Expr("balance_halalas - ?", amount),
			"frozen_halalas":      gorm.Expr("frozen_halalas - ?", amount),
			"last_transaction_at": time.Now().UTC(),
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// ReleaseFrozen returns a hold to the available balance.
func (r *repository) ReleaseFrozen(ctx context.Context, walletID uuid.UUID, amount int64) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Wallet{}).
		Where("id = ? AND frozen_halalas >= ?", walletID, amount).
		Updates(map[string]any{
			"frozen_halalas":      gorm.Expr("frozen_halalas - ?", amount),
			"last_transaction_at": time.Now().UTC(),
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repository) CreateTransaction(ctx context.Context, txn *models.WalletTransaction) error {
	return r.db.WithContext(ctx).Create(txn).Error
}

func (r *repository) FindTransactionByID(ctx context.Context, id uuid.UUID) (*models.WalletTransaction, error) {
	var txn models.WalletTransaction
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&txn).Error; err != nil {
		return nil, err
	}
	return &txn, nil
}

// TransitionTransactionStatus flips a ledger row between statuses with a
// compare-and-swap, so a hold resolves exactly once.
func (r *repository) TransitionTransactionStatus(ctx context.Context, id uuid.UUID, from, to enums.TransactionStatus) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.WalletTransaction{}).
		Where("id = ? AND status = ?", id, from).
		Update("status", to)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// HasReversal reports whether a reversal row already points at the
// transaction.
func (r *repository) HasReversal(ctx context.Context, transactionID uuid.UUID) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.WalletTransaction{}).
		Where("reversal_of_id = ?", transactionID).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// SumWithdrawalsSince totals withdrawal debits that still count against
// the daily limit. Cancelled and failed attempts do not.
func (r *repository) SumWithdrawalsSince(ctx context.Context, walletID uuid.UUID, since time.Time) (int64, error) {
	var total int64
	err := r.db.WithContext(ctx).
		Model(&models.WalletTransaction{}).
		Select("COALESCE(SUM(amount_halalas), 0)").
		Where("wallet_id = ? AND category = ? AND created_at >= ? AND status IN ?",
			walletID, enums.TransactionCategoryWithdrawal, since,
			[]enums.TransactionStatus{
				enums.TransactionStatusFrozen,
				enums.TransactionStatusProcessing,
				enums.TransactionStatusCompleted,
			}).
		Scan(&total).Error
	if err != nil {
		return 0, err
	}
	return total, nil
}

func (r *repository) ListTransactions(ctx context.Context, walletID uuid.UUID, params pagination.Params) ([]models.WalletTransaction, error) {
	query := r.db.WithContext(ctx).
		Where("wallet_id = ?", walletID).
		Order("created_at DESC, id DESC").
		Limit(pagination.LimitWithBuffer(params.Limit))

	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, err
	}
	if cursor != nil {
		query = query.Where("(created_at, id) < (?, ?)", cursor.CreatedAt, cursor.ID)
	}

	var rows []models.WalletTransaction
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}
