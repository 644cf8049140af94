package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/mukhtabar/mukhtabar-backend/pkg/enums"
	"github.com/mukhtabar/mukhtabar-backend/pkg/types"
)

// ExchangeRequest is a barter proposal against a target listing. No
// inventory is touched while a request is pending; stock is re-validated
// at acceptance time.
type ExchangeRequest struct {
	ID               uuid.UUID                   `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	RequesterUserID  uuid.UUID                   `gorm:"column:requester_user_id;type:uuid;not null"`
	RequesterLabID   uuid.UUID                   `gorm:"column:requester_lab_id;type:uuid;not null;index"`
	TargetListingID  uuid.UUID                   `gorm:"column:target_listing_id;type:uuid;not null;index"`
	TargetOwnerLabID uuid.UUID                   `gorm:"column:target_owner_lab_id;type:uuid;not null;index"`
	RequestedQty     int                         `gorm:"column:requested_qty;not null"`
	OfferType        enums.OfferType             `gorm:"column:offer_type;type:text;not null"`
	OfferListingID   *uuid.UUID                  `gorm:"column:offer_listing_id;type:uuid"`
	OfferQty         *int                        `gorm:"column:offer_qty"`
	OfferDescription *string                     `gorm:"column:offer_description"`
	OfferValue       *int64                      `gorm:"column:offer_value_halalas"`
	Message          *string                     `gorm:"column:message"`
	Status           enums.ExchangeRequestStatus `gorm:"column:status;type:text;not null;default:'pending'"`
	ResponseReason   *string                     `gorm:"column:response_reason"`
	CounterProposal  *types.CounterProposal      `gorm:"column:counter_proposal;type:jsonb;serializer:json"`
	ExpiresAt        time.Time                   `gorm:"column:expires_at;not null"`
	LinkedExchangeID *uuid.UUID                  `gorm:"column:linked_exchange_id;type:uuid"`
	ViewedAt         *time.Time                  `gorm:"column:viewed_at"`
	RespondedAt      *time.Time                  `gorm:"column:responded_at"`
	CreatedAt        time.Time                   `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time                   `gorm:"column:updated_at;autoUpdateTime"`
}

// ExpiredAt reports whether the request has lapsed at the given instant.
// Only non-terminal requests can expire.
func (r *ExchangeRequest) ExpiredAt(now time.Time) bool {
	return !r.Status.IsTerminal() && now.After(r.ExpiresAt)
}
