package models

import (
	"time"

	"github.com/google/uuid"
)

// Wallet holds a lab's balance in halalas. Balance is the settled amount;
// FrozenHalalas is held out of the available balance by pending debits.
// Every balance mutation goes through a guarded conditional update and is
// paired with a WalletTransaction row.
type Wallet struct {
	ID                       uuid.UUID  `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	LabID                    uuid.UUID  `gorm:"column:lab_id;type:uuid;not null;uniqueIndex"`
	BalanceHalalas           int64      `gorm:"column:balance_halalas;not null;default:0;check:balance_halalas >= 0"`
	FrozenHalalas            int64      `gorm:"column:frozen_halalas;not null;default:0;check:frozen_halalas >= 0"`
	DailyWithdrawalHalalas   int64      `gorm:"column:daily_withdrawal_halalas;not null"`
	MinimumWithdrawalHalalas int64      `gorm:"column:minimum_withdrawal_halalas;not null"`
	MaximumBalanceHalalas    int64      `gorm:"column:maximum_balance_halalas;not null;default:0"`
	Active                   bool       `gorm:"column:active;not null;default:true"`
	LastTransactionAt        *time.Time `gorm:"column:last_transaction_at"`
	CreatedAt                time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt                time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}

// Available returns the spendable balance in halalas.
func (w *Wallet) Available() int64 {
	return w.BalanceHalalas - w.FrozenHalalas
}
