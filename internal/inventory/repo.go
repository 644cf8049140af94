package inventory

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/mukhtabar/mukhtabar-backend/pkg/db/models"
	"github.com/mukhtabar/mukhtabar-backend/pkg/enums"
)

// Repository performs the guarded quantity updates that back the
// inventory ledger. Every mutation is a single conditional UPDATE whose
// WHERE clause carries the invariant; callers read RowsAffected through
// the returned bool.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindListingByID(ctx context.Context, id uuid.UUID) (*models.Listing, error)
	DecrementQuantity(ctx context.Context, listingID uuid.UUID, qty int) (bool, error)
	DecrementQuantityClamped(ctx context.Context, listingID uuid.UUID, qty int) (bool, error)
	RestoreQuantity(ctx context.Context, listingID uuid.UUID, qty int) (bool, error)
	MarkSoldOutIfDepleted(ctx context.Context, listingID uuid.UUID) (bool, error)
	BumpExchangedCount(ctx context.Context, listingID uuid.UUID) (bool, error)
	MarkExchanged(ctx context.Context, listingID uuid.UUID) (bool, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds an inventory repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindListingByID(ctx context.Context, id uuid.UUID) (*models.Listing, error) {
	var listing models.Listing
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&listing).Error; err != nil {
		return nil, err
	}
	return &listing, nil
}

// DecrementQuantity subtracts qty only when enough stock remains. A false
// return means the guard rejected the update: the row is missing or the
// listing has fewer than qty units.
func (r *repository) DecrementQuantity(ctx context.Context, listingID uuid.UUID, qty int) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Listing{}).
		Where("id = ? AND quantity >= ?", listingID, qty).
		Update("quantity", gorm.Expr("quantity - ?", qty))
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// DecrementQuantityClamped subtracts qty, flooring the quantity at zero.
// Used after a payment is already captured, where failing the settlement
// over a stock race would be worse than overselling by the raced units.
func (r *repository) DecrementQuantityClamped(ctx context.Context, listingID uuid.UUID, qty int) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Listing{}).
		Where("id = ?", listingID).
		Update("quantity", gorm.Expr("CASE WHEN quantity >= ? THEN quantity - ? ELSE 0 END", qty, qty))
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// RestoreQuantity adds qty back and reactivates a listing that sold out
// while the quantity was held.
func (r *repository) RestoreQuantity(ctx context.Context, listingID uuid.UUID, qty int) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Listing{}).
		Where("id = ?", listingID).
		Updates(map[string]any{
			"quantity": gorm.Expr("quantity + ?", qty),
			"status": gorm.Expr("CASE WHEN status = ? THEN ? ELSE status END",
				enums.ListingStatusSoldOut, enums.ListingStatusActive),
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// MarkSoldOutIfDepleted flips an active sale listing to sold_out once its
// quantity reaches zero. The guard makes the call safe to repeat.
func (r *repository) MarkSoldOutIfDepleted(ctx context.Context, listingID uuid.UUID) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Listing{}).
		Where("id = ? AND quantity = 0 AND kind = ? AND status = ?",
			listingID, enums.ListingKindSale, enums.ListingStatusActive).
		Update("status", enums.ListingStatusSoldOut)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// BumpExchangedCount increments the listing's exchange counter. It runs
// when a barter is agreed, not when it later completes, so the counter
// reflects accepted deals.
func (r *repository) BumpExchangedCount(ctx context.Context, listingID uuid.UUID) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Listing{}).
		Where("id = ? AND kind = ?", listingID, enums.ListingKindExchange).
		Update("exchanged_count", gorm.Expr("exchanged_count + 1"))
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// MarkExchanged retires a listing whose quantity was exhausted by a
// completed barter. Listings with stock left stay active.
func (r *repository) MarkExchanged(ctx context.Context, listingID uuid.UUID) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Listing{}).
		Where("id = ? AND kind = ?", listingID, enums.ListingKindExchange).
		Update("status", gorm.Expr("CASE WHEN quantity = 0 THEN ? ELSE status END",
			enums.ListingStatusExchanged))
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}
