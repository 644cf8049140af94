package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/mukhtabar/mukhtabar-backend/pkg/enums"
)

// Listing is an item a lab offers for sale, barter or holds as an internal
// asset. Quantity is only ever mutated through the inventory ledger's
// conditional updates, never by direct assignment.
type Listing struct {
	ID             uuid.UUID            `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OwnerLabID     uuid.UUID            `gorm:"column:owner_lab_id;type:uuid;not null;index"`
	Title          string               `gorm:"column:title;not null"`
	Description    *string              `gorm:"column:description"`
	Kind           enums.ListingKind    `gorm:"column:kind;type:text;not null"`
	Quantity       int                  `gorm:"column:quantity;not null;default:0;check:quantity >= 0"`
	PriceHalalas   *int64               `gorm:"column:price_halalas"`
	Status         enums.ListingStatus  `gorm:"column:status;type:text;not null;default:'active'"`
	ApprovalStatus enums.ApprovalStatus `gorm:"column:approval_status;type:text;not null;default:'pending'"`
	ExchangedCount int                  `gorm:"column:exchanged_count;not null;default:0"`
	CreatedAt      time.Time            `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time            `gorm:"column:updated_at;autoUpdateTime"`
}

// Sellable reports whether the listing can currently back a sale order.
func (l *Listing) Sellable() bool {
	return l.Kind == enums.ListingKindSale &&
		l.Status == enums.ListingStatusActive &&
		l.ApprovalStatus == enums.ApprovalStatusApproved
}

// Barterable reports whether the listing can currently back an exchange.
func (l *Listing) Barterable() bool {
	return l.Kind == enums.ListingKindExchange &&
		l.Status == enums.ListingStatusActive &&
		l.ApprovalStatus == enums.ApprovalStatusApproved
}
