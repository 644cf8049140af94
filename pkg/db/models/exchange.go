package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/mukhtabar/mukhtabar-backend/pkg/enums"
	"github.com/mukhtabar/mukhtabar-backend/pkg/types"
)

// Exchange is an agreed barter transaction between two labs' listings.
// Both listings are decremented exactly once, at the moment the exchange
// is created in accepted state; cancelling from accepted or later restores
// both sides.
type Exchange struct {
	ID                 uuid.UUID            `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	RequesterUserID    uuid.UUID            `gorm:"column:requester_user_id;type:uuid;not null"`
	RequesterLabID     uuid.UUID            `gorm:"column:requester_lab_id;type:uuid;not null;index"`
	ReceiverUserID     uuid.UUID            `gorm:"column:receiver_user_id;type:uuid;not null"`
	ReceiverLabID      uuid.UUID            `gorm:"column:receiver_lab_id;type:uuid;not null;index"`
	RequesterListingID uuid.UUID            `gorm:"column:requester_listing_id;type:uuid;not null"`
	RequesterQty       int                  `gorm:"column:requester_qty;not null"`
	ReceiverListingID  uuid.UUID            `gorm:"column:receiver_listing_id;type:uuid;not null"`
	ReceiverQty        int                  `gorm:"column:receiver_qty;not null"`
	Status             enums.ExchangeStatus `gorm:"column:status;type:text;not null;default:'pending'"`
	StatusHistory      types.StatusHistory  `gorm:"column:status_history;type:jsonb;serializer:json"`
	ExpiresAt          time.Time            `gorm:"column:expires_at;not null"`
	CompletedAt        *time.Time           `gorm:"column:completed_at"`
	CancelledAt        *time.Time           `gorm:"column:cancelled_at"`
	CancelReason       *string              `gorm:"column:cancel_reason"`
	CreatedAt          time.Time            `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt          time.Time            `gorm:"column:updated_at;autoUpdateTime"`
}

// Participant reports whether the lab is one of the two parties.
func (e *Exchange) Participant(labID uuid.UUID) bool {
	return e.RequesterLabID == labID || e.ReceiverLabID == labID
}

// InventoryHeld reports whether listing quantities are currently held by
// this exchange, i.e. the decrement at acceptance has happened and no
// restore has.
func (e *Exchange) InventoryHeld() bool {
	switch e.Status {
	case enums.ExchangeStatusAccepted,
		enums.ExchangeStatusNegotiating,
		enums.ExchangeStatusConfirmed,
		enums.ExchangeStatusInProgress,
		enums.ExchangeStatusDisputed:
		return true
	default:
		return false
	}
}
