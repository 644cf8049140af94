package wallets

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/mukhtabar/mukhtabar-backend/pkg/config"
	"github.com/mukhtabar/mukhtabar-backend/pkg/db/models"
	"github.com/mukhtabar/mukhtabar-backend/pkg/enums"
	pkgerrors "github.com/mukhtabar/mukhtabar-backend/pkg/errors"
)

type testRunner struct {
	db *gorm.DB
}

func (r testRunner) WithTx(_ context.Context, fn func(tx *gorm.DB) error) error {
	return r.db.Transaction(fn)
}

func setupWalletsTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := "file:wallets_" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)

	wallets := `
CREATE TABLE IF NOT EXISTS wallets (
  id TEXT PRIMARY KEY,
  lab_id TEXT NOT NULL UNIQUE,
  balance_halalas INTEGER NOT NULL DEFAULT 0,
  frozen_halalas INTEGER NOT NULL DEFAULT 0,
  daily_withdrawal_halalas INTEGER NOT NULL,
  minimum_withdrawal_halalas INTEGER NOT NULL,
  maximum_balance_halalas INTEGER NOT NULL DEFAULT 0,
  active INTEGER NOT NULL DEFAULT 1,
  last_transaction_at DATETIME,
  created_at DATETIME,
  updated_at DATETIME
);`
	transactions := `
CREATE TABLE IF NOT EXISTS wallet_transactions (
  id TEXT PRIMARY KEY,
  wallet_id TEXT NOT NULL,
  type TEXT NOT NULL,
  category TEXT NOT NULL,
  status TEXT NOT NULL DEFAULT 'pending',
  amount_halalas INTEGER NOT NULL,
  balance_before_halalas INTEGER NOT NULL,
  balance_after_halalas INTEGER NOT NULL,
  reference TEXT,
  counterparty_wallet_id TEXT,
  reversal_of_id TEXT UNIQUE,
  description TEXT NOT NULL,
  created_at DATETIME,
  updated_at DATETIME
);`
	bankAccounts := `
CREATE TABLE IF NOT EXISTS bank_accounts (
  id TEXT PRIMARY KEY,
  lab_id TEXT NOT NULL,
  holder_name TEXT NOT NULL,
  bank_name TEXT NOT NULL,
  iban TEXT NOT NULL UNIQUE,
  verified INTEGER NOT NULL DEFAULT 0,
  is_default INTEGER NOT NULL DEFAULT 0,
  created_at DATETIME,
  updated_at DATETIME
);`
	require.NoError(t, db.Exec(wallets).Error)
	require.NoError(t, db.Exec(transactions).Error)
	require.NoError(t, db.Exec(bankAccounts).Error)
	return db
}

func seedBankAccount(t *testing.T, db *gorm.DB, labID uuid.UUID, verified bool) *models.BankAccount {
	t.Helper()

	account := &models.BankAccount{
		ID:         uuid.New(),
		LabID:      labID,
		HolderName: "Mukhtabar Lab",
		BankName:   "Riyad Bank",
		IBAN:       "SA" + uuid.NewString(),
		Verified:   verified,
	}
	require.NoError(t, db.Create(account).Error)
	return account
}

func newWalletService(t *testing.T, db *gorm.DB) Service {
	t.Helper()

	svc, err := NewService(NewRepository(db), testRunner{db}, config.WalletsConfig{
		DefaultDailyWithdrawal:   10000,
		DefaultMinimumWithdrawal: 100,
		DefaultMaximumBalance:    0,
	})
	require.NoError(t, err)
	return svc
}

func replayBalance(t *testing.T, db *gorm.DB, walletID uuid.UUID) int64 {
	t.Helper()

	var rows []models.WalletTransaction
	require.NoError(t, db.Where("wallet_id = ?", walletID).Find(&rows).Error)

	var total int64
	for _, row := range rows {
		if row.Status != enums.TransactionStatusCompleted {
			continue
		}
		total += row.SignedAmount()
	}
	return total
}

func TestDepositDebitLedgerReplay(t *testing.T) {
	t.Parallel()

	db := setupWalletsTestDB(t)
	svc := newWalletService(t, db)
	ctx := context.Background()
	labID := uuid.New()

	_, err := svc.Deposit(ctx, labID, 5000, nil)
	require.NoError(t, err)
	_, err = svc.Deposit(ctx, labID, 2500, nil)
	require.NoError(t, err)

	_, err = svc.Debit(ctx, MovementInput{
		LabID:       labID,
		Amount:      3000,
		Category:    enums.TransactionCategoryPurchase,
		Description: "order payment",
	})
	require.NoError(t, err)

	wallet, err := svc.Get(ctx, labID)
	require.NoError(t, err)
	assert.Equal(t, int64(4500), wallet.BalanceHalalas)
	assert.Equal(t, wallet.BalanceHalalas, replayBalance(t, db, wallet.ID))
}

func TestDebitInsufficientBalance(t *testing.T) {
	t.Parallel()

	db := setupWalletsTestDB(t)
	svc := newWalletService(t, db)
	ctx := context.Background()
	labID := uuid.New()

	_, err := svc.Deposit(ctx, labID, 1000, nil)
	require.NoError(t, err)

	_, err = svc.Debit(ctx, MovementInput{
		LabID:       labID,
		Amount:      1500,
		Category:    enums.TransactionCategoryPurchase,
		Description: "order payment",
	})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInsufficientBalance))

	wallet, err := svc.Get(ctx, labID)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), wallet.BalanceHalalas)
	assert.Equal(t, wallet.BalanceHalalas, replayBalance(t, db, wallet.ID))
}

func TestTransferMovesBothLegs(t *testing.T) {
	t.Parallel()

	db := setupWalletsTestDB(t)
	svc := newWalletService(t, db)
	ctx := context.Background()
	fromLab := uuid.New()
	toLab := uuid.New()

	_, err := svc.Deposit(ctx, fromLab, 8000, nil)
	require.NoError(t, err)

	result, err := svc.Transfer(ctx, TransferInput{
		FromLabID:   fromLab,
		ToLabID:     toLab,
		Amount:      3000,
		Description: "settlement transfer",
	})
	require.NoError(t, err)
	require.NotNil(t, result.Outgoing)
	require.NotNil(t, result.Incoming)
	assert.Equal(t, enums.TransactionCategoryTransferOut, result.Outgoing.Category)
	assert.Equal(t, enums.TransactionCategoryTransferIn, result.Incoming.Category)

	source, err := svc.Get(ctx, fromLab)
	require.NoError(t, err)
	dest, err := svc.Get(ctx, toLab)
	require.NoError(t, err)
	assert.Equal(t, int64(5000), source.BalanceHalalas)
	assert.Equal(t, int64(3000), dest.BalanceHalalas)
}

func TestTransferInsufficientBalanceRollsBack(t *testing.T) {
	t.Parallel()

	db := setupWalletsTestDB(t)
	svc := newWalletService(t, db)
	ctx := context.Background()
	fromLab := uuid.New()
	toLab := uuid.New()

	_, err := svc.Deposit(ctx, fromLab, 1000, nil)
	require.NoError(t, err)

	_, err = svc.Transfer(ctx, TransferInput{
		FromLabID:   fromLab,
		ToLabID:     toLab,
		Amount:      2000,
		Description: "settlement transfer",
	})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInsufficientBalance))

	source, err := svc.Get(ctx, fromLab)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), source.BalanceHalalas)

	// The destination wallet created inside the failed transfer must not
	// survive the rollback.
	_, err = svc.Get(ctx, toLab)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestWithdrawHoldsAvailableBalance(t *testing.T) {
	t.Parallel()

	db := setupWalletsTestDB(t)
	svc := newWalletService(t, db)
	ctx := context.Background()
	labID := uuid.New()

	_, err := svc.Deposit(ctx, labID, 9000, nil)
	require.NoError(t, err)
	account := seedBankAccount(t, db, labID, true)

	hold, err := svc.Withdraw(ctx, WithdrawInput{LabID: labID, Amount: 4000, BankAccountID: account.ID})
	require.NoError(t, err)
	assert.Equal(t, enums.TransactionStatusFrozen, hold.Status)

	wallet, err := svc.Get(ctx, labID)
	require.NoError(t, err)
	assert.Equal(t, int64(9000), wallet.BalanceHalalas)
	assert.Equal(t, int64(4000), wallet.FrozenHalalas)
	assert.Equal(t, int64(5000), wallet.Available())

	// Frozen rows do not count toward the replayable balance.
	assert.Equal(t, int64(9000), replayBalance(t, db, wallet.ID))
}

func TestWithdrawDailyLimit(t *testing.T) {
	t.Parallel()

	db := setupWalletsTestDB(t)
	svc := newWalletService(t, db)
	ctx := context.Background()
	labID := uuid.New()

	_, err := svc.Deposit(ctx, labID, 50000, nil)
	require.NoError(t, err)
	account := seedBankAccount(t, db, labID, true)

	_, err = svc.Withdraw(ctx, WithdrawInput{LabID: labID, Amount: 6000, BankAccountID: account.ID})
	require.NoError(t, err)

	_, err = svc.Withdraw(ctx, WithdrawInput{LabID: labID, Amount: 5000, BankAccountID: account.ID})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeWithdrawalLimit))

	wallet, err := svc.Get(ctx, labID)
	require.NoError(t, err)
	assert.Equal(t, int64(6000), wallet.FrozenHalalas)
}

func TestWithdrawBelowMinimum(t *testing.T) {
	t.Parallel()

	db := setupWalletsTestDB(t)
	svc := newWalletService(t, db)
	ctx := context.Background()
	labID := uuid.New()

	_, err := svc.Deposit(ctx, labID, 5000, nil)
	require.NoError(t, err)
	account := seedBankAccount(t, db, labID, true)

	_, err = svc.Withdraw(ctx, WithdrawInput{LabID: labID, Amount: 50, BankAccountID: account.ID})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestWithdrawRequiresKnownBankAccount(t *testing.T) {
	t.Parallel()

	db := setupWalletsTestDB(t)
	svc := newWalletService(t, db)
	ctx := context.Background()
	labID := uuid.New()

	_, err := svc.Deposit(ctx, labID, 9000, nil)
	require.NoError(t, err)

	_, err = svc.Withdraw(ctx, WithdrawInput{LabID: labID, Amount: 4000, BankAccountID: uuid.New()})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))

	// No hold may be placed against an account that does not exist.
	wallet, err := svc.Get(ctx, labID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), wallet.FrozenHalalas)
}

func TestWithdrawRequiresVerifiedBankAccount(t *testing.T) {
	t.Parallel()

	db := setupWalletsTestDB(t)
	svc := newWalletService(t, db)
	ctx := context.Background()
	labID := uuid.New()

	_, err := svc.Deposit(ctx, labID, 9000, nil)
	require.NoError(t, err)
	account := seedBankAccount(t, db, labID, false)

	_, err = svc.Withdraw(ctx, WithdrawInput{LabID: labID, Amount: 4000, BankAccountID: account.ID})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	wallet, err := svc.Get(ctx, labID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), wallet.FrozenHalalas)
}

func TestWithdrawRejectsForeignBankAccount(t *testing.T) {
	t.Parallel()

	db := setupWalletsTestDB(t)
	svc := newWalletService(t, db)
	ctx := context.Background()
	labID := uuid.New()

	_, err := svc.Deposit(ctx, labID, 9000, nil)
	require.NoError(t, err)
	foreign := seedBankAccount(t, db, uuid.New(), true)

	_, err = svc.Withdraw(ctx, WithdrawInput{LabID: labID, Amount: 4000, BankAccountID: foreign.ID})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))

	wallet, err := svc.Get(ctx, labID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), wallet.FrozenHalalas)
}

func TestConfirmWithdrawalSettlesOnce(t *testing.T) {
	t.Parallel()

	db := setupWalletsTestDB(t)
	svc := newWalletService(t, db)
	ctx := context.Background()
	labID := uuid.New()

	_, err := svc.Deposit(ctx, labID, 9000, nil)
	require.NoError(t, err)
	account := seedBankAccount(t, db, labID, true)

	hold, err := svc.Withdraw(ctx, WithdrawInput{LabID: labID, Amount: 4000, BankAccountID: account.ID})
	require.NoError(t, err)

	settled, err := svc.ConfirmWithdrawal(ctx, hold.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.TransactionStatusCompleted, settled.Status)

	wallet, err := svc.Get(ctx, labID)
	require.NoError(t, err)
	assert.Equal(t, int64(5000), wallet.BalanceHalalas)
	assert.Equal(t, int64(0), wallet.FrozenHalalas)
	assert.Equal(t, wallet.BalanceHalalas, replayBalance(t, db, wallet.ID))

	_, err = svc.ConfirmWithdrawal(ctx, hold.ID)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeAlreadyProcessed))

	wallet, err = svc.Get(ctx, labID)
	require.NoError(t, err)
	assert.Equal(t, int64(5000), wallet.BalanceHalalas)
}

func TestFailWithdrawalReleasesHold(t *testing.T) {
	t.Parallel()

	db := setupWalletsTestDB(t)
	svc := newWalletService(t, db)
	ctx := context.Background()
	labID := uuid.New()

	_, err := svc.Deposit(ctx, labID, 9000, nil)
	require.NoError(t, err)
	account := seedBankAccount(t, db, labID, true)

	hold, err := svc.Withdraw(ctx, WithdrawInput{LabID: labID, Amount: 4000, BankAccountID: account.ID})
	require.NoError(t, err)

	cancelled, err := svc.FailWithdrawal(ctx, hold.ID, "bank rejected")
	require.NoError(t, err)
	assert.Equal(t, enums.TransactionStatusCancelled, cancelled.Status)

	wallet, err := svc.Get(ctx, labID)
	require.NoError(t, err)
	assert.Equal(t, int64(9000), wallet.BalanceHalalas)
	assert.Equal(t, int64(0), wallet.FrozenHalalas)
	assert.Equal(t, wallet.BalanceHalalas, replayBalance(t, db, wallet.ID))
}

func TestReverseAppliesOppositeOnce(t *testing.T) {
	t.Parallel()

	db := setupWalletsTestDB(t)
	svc := newWalletService(t, db)
	ctx := context.Background()
	labID := uuid.New()

	deposit, err := svc.Deposit(ctx, labID, 5000, nil)
	require.NoError(t, err)

	reversal, err := svc.Reverse(ctx, deposit.ID, "deposit bounced")
	require.NoError(t, err)
	assert.Equal(t, enums.TransactionTypeDebit, reversal.Type)
	require.NotNil(t, reversal.ReversalOfID)
	assert.Equal(t, deposit.ID, *reversal.ReversalOfID)

	wallet, err := svc.Get(ctx, labID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), wallet.BalanceHalalas)
	assert.Equal(t, wallet.BalanceHalalas, replayBalance(t, db, wallet.ID))

	_, err = svc.Reverse(ctx, deposit.ID, "deposit bounced")
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeAlreadyProcessed))
}
