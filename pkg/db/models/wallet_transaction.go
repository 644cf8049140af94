package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/mukhtabar/mukhtabar-backend/pkg/enums"
)

// WalletTransaction is an immutable ledger entry for a wallet. Replaying
// completed entries reproduces the wallet balance: sum of completed
// credits minus sum of completed debits.
type WalletTransaction struct {
	ID                   uuid.UUID                 `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	WalletID             uuid.UUID                 `gorm:"column:wallet_id;type:uuid;not null;index"`
	Type                 enums.TransactionType     `gorm:"column:type;type:text;not null"`
	Category             enums.TransactionCategory `gorm:"column:category;type:text;not null"`
	Status               enums.TransactionStatus   `gorm:"column:status;type:text;not null;default:'pending'"`
	AmountHalalas        int64                     `gorm:"column:amount_halalas;not null;check:amount_halalas > 0"`
	BalanceBeforeHalalas int64                     `gorm:"column:balance_before_halalas;not null"`
	BalanceAfterHalalas  int64                     `gorm:"column:balance_after_halalas;not null"`
	Reference            *string                   `gorm:"column:reference;index"`
	CounterpartyWalletID *uuid.UUID                `gorm:"column:counterparty_wallet_id;type:uuid"`
	ReversalOfID         *uuid.UUID                `gorm:"column:reversal_of_id;type:uuid;uniqueIndex"`
	Description          string                    `gorm:"column:description;not null"`
	CreatedAt            time.Time                 `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt            time.Time                 `gorm:"column:updated_at;autoUpdateTime"`
}

// SignedAmount returns the amount with the sign of its effect on the
// balance when completed.
func (t *WalletTransaction) SignedAmount() int64 {
	if t.Type == enums.TransactionTypeDebit {
		return -t.AmountHalalas
	}
	return t.AmountHalalas
}
