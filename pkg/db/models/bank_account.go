package models

import (
	"time"

	"github.com/google/uuid"
)

// BankAccount is a lab's registered payout destination for withdrawals.
type BankAccount struct {
	ID            uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	LabID         uuid.UUID `gorm:"column:lab_id;type:uuid;not null;index"`
	HolderName    string    `gorm:"column:holder_name;not null"`
	BankName      string    `gorm:"column:bank_name;not null"`
	IBAN          string    `gorm:"column:iban;not null;uniqueIndex"`
	Verified      bool      `gorm:"column:verified;not null;default:false"`
	Default       bool      `gorm:"column:is_default;not null;default:false"`
	CreatedAt     time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
