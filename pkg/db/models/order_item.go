package models

import (
	"time"

	"github.com/google/uuid"
)

// OrderItem is a line of an order, snapshotting the listing title and
// unit price at purchase time.
type OrderItem struct {
	ID               uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID          uuid.UUID `gorm:"column:order_id;type:uuid;not null;index"`
	ListingID        uuid.UUID `gorm:"column:listing_id;type:uuid;not null;index"`
	TitleSnapshot    string    `gorm:"column:title_snapshot;not null"`
	UnitPriceHalalas int64     `gorm:"column:unit_price_halalas;not null"`
	Quantity         int       `gorm:"column:quantity;not null"`
	CreatedAt        time.Time `gorm:"column:created_at;autoCreateTime"`
}

// LineTotal returns the line amount in halalas.
func (i *OrderItem) LineTotal() int64 {
	return i.UnitPriceHalalas * int64(i.Quantity)
}
