package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/mukhtabar/mukhtabar-backend/pkg/enums"
	"github.com/mukhtabar/mukhtabar-backend/pkg/types"
)

// Order is a purchase of sale listings from a single seller lab. Monetary
// amounts are stored in halalas. The totals law holds at all times:
// total = subtotal + vat + shipping - discount.
type Order struct {
	ID                 uuid.UUID           `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderNumber        string              `gorm:"column:order_number;not null;uniqueIndex"`
	BuyerUserID        uuid.UUID           `gorm:"column:buyer_user_id;type:uuid;not null"`
	BuyerLabID         uuid.UUID           `gorm:"column:buyer_lab_id;type:uuid;not null;index"`
	SellerLabID        uuid.UUID           `gorm:"column:seller_lab_id;type:uuid;not null;index"`
	SubtotalHalalas    int64               `gorm:"column:subtotal_halalas;not null"`
	VATHalalas         int64               `gorm:"column:vat_halalas;not null"`
	ShippingHalalas    int64               `gorm:"column:shipping_halalas;not null"`
	DiscountHalalas    int64               `gorm:"column:discount_halalas;not null;default:0"`
	TotalHalalas       int64               `gorm:"column:total_halalas;not null"`
	Status             enums.OrderStatus   `gorm:"column:status;type:text;not null;default:'pending'"`
	StatusHistory      types.StatusHistory `gorm:"column:status_history;type:jsonb;serializer:json"`
	PaymentMethod      enums.PaymentMethod `gorm:"column:payment_method;type:text;not null"`
	PaymentStatus      enums.PaymentStatus `gorm:"column:payment_status;type:text;not null;default:'pending'"`
	PaymentReference   *string             `gorm:"column:payment_reference;index"`
	QuantitiesApplied  bool                `gorm:"column:quantities_applied;not null;default:false"`
	QuantitiesRestored bool                `gorm:"column:quantities_restored;not null;default:false"`
	PaidAt             *time.Time          `gorm:"column:paid_at"`
	DeliveredAt        *time.Time          `gorm:"column:delivered_at"`
	CancelledAt        *time.Time          `gorm:"column:cancelled_at"`
	CancelReason       *string             `gorm:"column:cancel_reason"`
	Items              []OrderItem         `gorm:"foreignKey:OrderID"`
	CreatedAt          time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt          time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}

// TotalsConsistent reports whether the totals law holds for the stored
// amounts.
func (o *Order) TotalsConsistent() bool {
	return o.TotalHalalas == o.SubtotalHalalas+o.VATHalalas+o.ShippingHalalas-o.DiscountHalalas
}
