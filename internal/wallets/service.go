package wallets

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/mukhtabar/mukhtabar-backend/pkg/config"
	"github.com/mukhtabar/mukhtabar-backend/pkg/db/models"
	"github.com/mukhtabar/mukhtabar-backend/pkg/enums"
	pkgerrors "github.com/mukhtabar/mukhtabar-backend/pkg/errors"
	"github.com/mukhtabar/mukhtabar-backend/pkg/pagination"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service is the wallet ledger. Every balance movement writes exactly one
// ledger row, and replaying completed rows reproduces the balance.
type Service interface {
	WithTx(tx *gorm.DB) Service
	EnsureWallet(ctx context.Context, labID uuid.UUID) (*models.Wallet, error)
	Get(ctx context.Context, labID uuid.UUID) (*models.Wallet, error)
	ListTransactions(ctx context.Context, labID uuid.UUID, params pagination.Params) ([]models.WalletTransaction, error)
	Deposit(ctx context.Context, labID uuid.UUID, amount int64, reference *string) (*models.WalletTransaction, error)
	Credit(ctx context.Context, input MovementInput) (*models.WalletTransaction, error)
	Debit(ctx context.Context, input MovementInput) (*models.WalletTransaction, error)
	Transfer(ctx context.Context, input TransferInput) (*TransferResult, error)
	Withdraw(ctx context.Context, input WithdrawInput) (*models.WalletTransaction, error)
	ConfirmWithdrawal(ctx context.Context, transactionID uuid.UUID) (*models.WalletTransaction, error)
	FailWithdrawal(ctx context.Context, transactionID uuid.UUID, reason string) (*models.WalletTransaction, error)
	Reverse(ctx context.Context, transactionID uuid.UUID, description string) (*models.WalletTransaction, error)
}

// MovementInput describes a single-wallet balance movement.
type MovementInput struct {
	LabID        uuid.UUID
	Amount       int64
	Category     enums.TransactionCategory
	Reference    *string
	Description  string
	Counterparty *uuid.UUID
}

// TransferInput moves funds between two labs' wallets atomically.
type TransferInput struct {
	FromLabID   uuid.UUID
	ToLabID     uuid.UUID
	Amount      int64
	Reference   *string
	Description string
}

// TransferResult carries both legs of a completed transfer.
type TransferResult struct {
	Outgoing *models.WalletTransaction
	Incoming *models.WalletTransaction
}

// WithdrawInput requests a payout hold against the available balance.
type WithdrawInput struct {
	LabID         uuid.UUID
	Amount        int64
	BankAccountID uuid.UUID
}

type service struct {
	repo Repository
	tx   txRunner
	cfg  config.WalletsConfig
}

// NewService wires the wallet ledger with its repository and transaction runner.
func NewService(repo Repository, tx txRunner, cfg config.WalletsConfig) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("wallets repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	return &service{repo: repo, tx: tx, cfg: cfg}, nil
}

// EnsureWallet returns the lab's wallet, creating it with configured
// limits on first touch.
func (s *service) EnsureWallet(ctx context.Context, labID uuid.UUID) (*models.Wallet, error) {
	if labID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "lab id is required")
	}
	wallet, err := s.repo.FindWalletByLabID(ctx, labID)
	if err == nil {
		return wallet, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "loading wallet")
	}

	wallet = &models.Wallet{
		ID:                       uuid.New(),
		LabID:                    labID,
		DailyWithdrawalHalalas:   s.cfg.DefaultDailyWithdrawal,
		MinimumWithdrawalHalalas: s.cfg.DefaultMinimumWithdrawal,
		MaximumBalanceHalalas:    s.cfg.DefaultMaximumBalance,
		Active:                   true,
	}
	if createErr := s.repo.CreateWallet(ctx, wallet); createErr != nil {
		// Lost a create race: the other writer's wallet is the one.
		if existing, findErr := s.repo.FindWalletByLabID(ctx, labID); findErr == nil {
			return existing, nil
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, createErr, "creating wallet")
	}
	return wallet, nil
}

func (s *service) Get(ctx context.Context, labID uuid.UUID) (*models.Wallet, error) {
	if labID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "lab id is required")
	}
	wallet, err := s.repo.FindWalletByLabID(ctx, labID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "wallet not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "loading wallet")
	}
	return wallet, nil
}

func (s *service) ListTransactions(ctx context.Context, labID uuid.UUID, params pagination.Params) ([]models.WalletTransaction, error) {
	wallet, err := s.Get(ctx, labID)
	if err != nil {
		return nil, err
	}
	rows, err := s.repo.ListTransactions(ctx, wallet.ID, params)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "listing wallet transactions")
	}
	return rows, nil
}

func (s *service) Deposit(ctx context.Context, labID uuid.UUID, amount int64, reference *string) (*models.WalletTransaction, error) {
	return s.Credit(ctx, MovementInput{
		LabID:       labID,
		Amount:      amount,
		Category:    enums.TransactionCategoryDeposit,
		Reference:   reference,
		Description: "wallet deposit",
	})
}

// Credit settles funds into a wallet and records the completed ledger row.
func (s *service) Credit(ctx context.Context, input MovementInput) (*models.WalletTransaction, error) {
	if err := validateMovement(input); err != nil {
		return nil, err
	}

	var txn *models.WalletTransaction
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		wallet, err := s.WithTx(tx).EnsureWallet(ctx, input.LabID)
		if err != nil {
			return err
		}

		applied, err := repo.CreditBalance(ctx, wallet.ID, input.Amount)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "crediting wallet")
		}
		if !applied {
			return creditRejection(ctx, repo, wallet.ID, input.Amount)
		}

		updated, err := repo.FindWalletByID(ctx, wallet.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reloading wallet")
		}

		txn = &models.WalletTransaction{
			ID:                   uuid.New(),
			WalletID:             wallet.ID,
			Type:                 enums.TransactionTypeCredit,
			Category:             input.Category,
			Status:               enums.TransactionStatusCompleted,
			AmountHalalas:        input.Amount,
			BalanceBeforeHalalas: updated.BalanceHalalas - input.Amount,
			BalanceAfterHalalas:  updated.BalanceHalalas,
			Reference:            input.Reference,
			CounterpartyWalletID: input.Counterparty,
			Description:          input.Description,
		}
		if err := repo.CreateTransaction(ctx, txn); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "recording credit")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return txn, nil
}

// Debit settles funds out of a wallet, guarded against the available
// balance so holds cannot be spent twice.
func (s *service) Debit(ctx context.Context, input MovementInput) (*models.WalletTransaction, error) {
	if err := validateMovement(input); err != nil {
		return nil, err
	}

	var txn *models.WalletTransaction
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		wallet, err := findWallet(ctx, repo, input.LabID)
		if err != nil {
			return err
		}

		applied, err := repo.DebitBalance(ctx, wallet.ID, input.Amount)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "debiting wallet")
		}
		if !applied {
			return debitRejection(ctx, repo, wallet.ID, input.Amount)
		}

		updated, err := repo.FindWalletByID(ctx, wallet.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reloading wallet")
		}

		txn = &models.WalletTransaction{
			ID:                   uuid.New(),
			WalletID:             wallet.ID,
			Type:                 enums.TransactionTypeDebit,
			Category:             input.Category,
			Status:               enums.TransactionStatusCompleted,
			AmountHalalas:        input.Amount,
			BalanceBeforeHalalas: updated.BalanceHalalas + input.Amount,
			BalanceAfterHalalas:  updated.BalanceHalalas,
			Reference:            input.Reference,
			CounterpartyWalletID: input.Counterparty,
			Description:          input.Description,
		}
		if err := repo.CreateTransaction(ctx, txn); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "recording debit")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return txn, nil
}

// Transfer debits the source and credits the destination in one database
// transaction; either both ledger rows exist or neither does.
func (s *service) Transfer(ctx context.Context, input TransferInput) (*TransferResult, error) {
	if input.FromLabID == uuid.Nil || input.ToLabID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "both labs are required")
	}
	if input.FromLabID == input.ToLabID {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cannot transfer to the same lab")
	}
	if input.Amount <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "amount must be positive")
	}

	var result TransferResult
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		scoped := s.WithTx(tx).(*service)
		repo := scoped.repo

		source, err := findWallet(ctx, repo, input.FromLabID)
		if err != nil {
			return err
		}
		dest, err := scoped.EnsureWallet(ctx, input.ToLabID)
		if err != nil {
			return err
		}

		outgoing, err := scoped.Debit(ctx, MovementInput{
			LabID:        input.FromLabID,
			Amount:       input.Amount,
			Category:     enums.TransactionCategoryTransferOut,
			Reference:    input.Reference,
			Description:  input.Description,
			Counterparty: &dest.ID,
		})
		if err != nil {
			return err
		}
		incoming, err := scoped.Credit(ctx, MovementInput{
			LabID:        input.ToLabID,
			Amount:       input.Amount,
			Category:     enums.TransactionCategoryTransferIn,
			Reference:    input.Reference,
			Description:  input.Description,
			Counterparty: &source.ID,
		})
		if err != nil {
			return err
		}
		result = TransferResult{Outgoing: outgoing, Incoming: incoming}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// Withdraw freezes the requested amount and records a frozen withdrawal
// row. Funds leave the balance only when the payout is confirmed, and
// only a verified bank account of the acting lab may receive it.
func (s *service) Withdraw(ctx context.Context, input WithdrawInput) (*models.WalletTransaction, error) {
	if input.LabID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "lab id is required")
	}
	if input.Amount <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "amount must be positive")
	}
	if input.BankAccountID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "bank account id is required")
	}

	var txn *models.WalletTransaction
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		wallet, err := findWallet(ctx, repo, input.LabID)
		if err != nil {
			return err
		}
		if input.Amount < wallet.MinimumWithdrawalHalalas {
			return pkgerrors.New(pkgerrors.CodeValidation, "amount is below the minimum withdrawal")
		}

		account, err := repo.FindBankAccountByID(ctx, input.BankAccountID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "bank account not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "loading bank account")
		}
		// Another lab's account reads as absent so ownership cannot be probed.
		if account.LabID != input.LabID {
			return pkgerrors.New(pkgerrors.CodeNotFound, "bank account not found")
		}
		if !account.Verified {
			return pkgerrors.New(pkgerrors.CodeValidation, "bank account is not verified")
		}

		dayStart := time.Now().UTC().Truncate(24 * time.Hour)
		withdrawnToday, err := repo.SumWithdrawalsSince(ctx, wallet.ID, dayStart)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "summing withdrawals")
		}
		if withdrawnToday+input.Amount > wallet.DailyWithdrawalHalalas {
			return pkgerrors.New(pkgerrors.CodeWithdrawalLimit, "daily withdrawal limit exceeded")
		}

		frozen, err := repo.FreezeBalance(ctx, wallet.ID, input.Amount)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "freezing balance")
		}
		if !frozen {
			return debitRejection(ctx, repo, wallet.ID, input.Amount)
		}

		updated, err := repo.FindWalletByID(ctx, wallet.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reloading wallet")
		}

		reference := input.BankAccountID.String()
		txn = &models.WalletTransaction{
			ID:       uuid.New(),
			WalletID: wallet.ID,
			Type:     enums.TransactionTypeDebit,
			Category: enums.TransactionCategoryWithdrawal,
			Status:   enums.TransactionStatusFrozen,
			// Holds move the available balance, not the settled one.
			AmountHalalas:        input.Amount,
			BalanceBeforeHalalas: updated.Available() + input.Amount,
			BalanceAfterHalalas:  updated.Available(),
			Reference:            &reference,
			Description:          "wallet withdrawal",
		}
		if err := repo.CreateTransaction(ctx, txn); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "recording withdrawal hold")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return txn, nil
}

// ConfirmWithdrawal settles a frozen withdrawal. The CAS on the ledger
// row is the fence: a second confirmation of the same row reports
// already-processed without moving funds again.
func (s *service) ConfirmWithdrawal(ctx context.Context, transactionID uuid.UUID) (*models.WalletTransaction, error) {
	return s.resolveWithdrawal(ctx, transactionID, enums.TransactionStatusCompleted, "")
}

// FailWithdrawal releases a frozen withdrawal back to the available
// balance and cancels the ledger row.
func (s *service) FailWithdrawal(ctx context.Context, transactionID uuid.UUID, reason string) (*models.WalletTransaction, error) {
	return s.resolveWithdrawal(ctx, transactionID, enums.TransactionStatusCancelled, reason)
}

func (s *service) resolveWithdrawal(ctx context.Context, transactionID uuid.UUID, target enums.TransactionStatus, reason string) (*models.WalletTransaction, error) {
	if transactionID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "transaction id is required")
	}

	var txn *models.WalletTransaction
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		found, err := repo.FindTransactionByID(ctx, transactionID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "transaction not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "loading transaction")
		}
		if found.Category != enums.TransactionCategoryWithdrawal {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "transaction is not a withdrawal")
		}

		flipped, err := repo.TransitionTransactionStatus(ctx, found.ID, enums.TransactionStatusFrozen, target)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "updating transaction status")
		}
		if !flipped {
			return pkgerrors.New(pkgerrors.CodeAlreadyProcessed, "withdrawal already resolved")
		}

		if target == enums.TransactionStatusCompleted {
			settled, err := repo.SettleFrozen(ctx, found.WalletID, found.AmountHalalas)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "settling frozen funds")
			}
			if !settled {
				return pkgerrors.New(pkgerrors.CodeInternal, "frozen funds missing for withdrawal")
			}
		} else {
			released, err := repo.ReleaseFrozen(ctx, found.WalletID, found.AmountHalalas)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "releasing frozen funds")
			}
			if !released {
				return pkgerrors.New(pkgerrors.CodeInternal, "frozen funds missing for withdrawal")
			}
			if reason != "" {
				found.Description = found.Description + ": " + reason
			}
		}

		found.Status = target
		txn = found
		return nil
	})
	if err != nil {
		return nil, err
	}
	return txn, nil
}

// Reverse writes the opposite ledger row for a completed transaction and
// applies the opposite balance movement. The unique reversal link keeps
// any transaction reversible at most once.
func (s *service) Reverse(ctx context.Context, transactionID uuid.UUID, description string) (*models.WalletTransaction, error) {
	if transactionID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "transaction id is required")
	}

	var txn *models.WalletTransaction
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		original, err := repo.FindTransactionByID(ctx, transactionID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "transaction not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "loading transaction")
		}
		if original.Status != enums.TransactionStatusCompleted {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "only completed transactions can be reversed")
		}

		reversed, err := repo.HasReversal(ctx, original.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "checking existing reversal")
		}
		if reversed {
			return pkgerrors.New(pkgerrors.CodeAlreadyProcessed, "transaction already reversed")
		}

		var applied bool
		if original.Type == enums.TransactionTypeDebit {
			applied, err = repo.CreditBalance(ctx, original.WalletID, original.AmountHalalas)
		} else {
			applied, err = repo.DebitBalance(ctx, original.WalletID, original.AmountHalalas)
		}
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "applying reversal movement")
		}
		if !applied {
			return debitRejection(ctx, repo, original.WalletID, original.AmountHalalas)
		}

		updated, err := repo.FindWalletByID(ctx, original.WalletID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reloading wallet")
		}

		before := updated.BalanceHalalas + original.SignedAmount()
		txn = &models.WalletTransaction{
			ID:                   uuid.New(),
			WalletID:             original.WalletID,
			Type:                 original.Type.Opposite(),
			Category:             original.Category,
			Status:               enums.TransactionStatusCompleted,
			AmountHalalas:        original.AmountHalalas,
			BalanceBeforeHalalas: before,
			BalanceAfterHalalas:  updated.BalanceHalalas,
			Reference:            original.Reference,
			ReversalOfID:         &original.ID,
			Description:          description,
		}
		// The unique index on reversal_of_id backstops the check above.
		if err := repo.CreateTransaction(ctx, txn); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "recording reversal")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return txn, nil
}

// WithTx returns a service whose repository is bound to the transaction.
// The returned service must not start nested transactions.
func (s *service) WithTx(tx *gorm.DB) Service {
	if tx == nil {
		return s
	}
	return &service{repo: s.repo.WithTx(tx), tx: passthroughRunner{tx}, cfg: s.cfg}
}

// passthroughRunner reuses the caller's transaction instead of opening a
// new one, so service methods compose inside a single commit.
type passthroughRunner struct {
	tx *gorm.DB
}

func (p passthroughRunner) WithTx(_ context.Context, fn func(tx *gorm.DB) error) error {
	return fn(p.tx)
}

func validateMovement(input MovementInput) error {
	if input.LabID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "lab id is required")
	}
	if input.Amount <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "amount must be positive")
	}
	if !input.Category.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "invalid transaction category")
	}
	if input.Description == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "description is required")
	}
	return nil
}

func findWallet(ctx context.Context, repo Repository, labID uuid.UUID) (*models.Wallet, error) {
	wallet, err := repo.FindWalletByLabID(ctx, labID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "wallet not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "loading wallet")
	}
	return wallet, nil
}

// debitRejection translates a rejected debit or freeze guard into the
// precise failure.
func debitRejection(ctx context.Context, repo Repository, walletID uuid.UUID, amount int64) error {
	wallet, err := repo.FindWalletByID(ctx, walletID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.New(pkgerrors.CodeNotFound, "wallet not found")
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reloading wallet")
	}
	if !wallet.Active {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "wallet is inactive")
	}
	if wallet.Available() < amount {
		return pkgerrors.New(pkgerrors.CodeInsufficientBalance, "insufficient available balance")
	}
	return pkgerrors.New(pkgerrors.CodeConflict, "wallet update rejected")
}

// creditRejection translates a rejected credit guard into the precise
// failure.
func creditRejection(ctx context.Context, repo Repository, walletID uuid.UUID, amount int64) error {
	wallet, err := repo.FindWalletByID(ctx, walletID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.New(pkgerrors.CodeNotFound, "wallet not found")
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reloading wallet")
	}
	if !wallet.Active {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "wallet is inactive")
	}
	if wallet.MaximumBalanceHalalas > 0 && wallet.BalanceHalalas+amount > wallet.MaximumBalanceHalalas {
		return pkgerrors.New(pkgerrors.CodeConflict, "credit exceeds maximum wallet balance")
	}
	return pkgerrors.New(pkgerrors.CodeConflict, "wallet update rejected")
}
