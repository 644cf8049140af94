package inventory

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/mukhtabar/mukhtabar-backend/pkg/db/models"
	pkgerrors "github.com/mukhtabar/mukhtabar-backend/pkg/errors"
)

// Service exposes the quantity side of settlement. Decrements only
// succeed when stock covers the request; restores compensate decrements
// that later unwind.
type Service interface {
	WithTx(tx *gorm.DB) Service
	GetListing(ctx context.Context, id uuid.UUID) (*models.Listing, error)
	Decrement(ctx context.Context, listingID uuid.UUID, qty int) error
	DecrementClamped(ctx context.Context, listingID uuid.UUID, qty int) error
	Restore(ctx context.Context, listingID uuid.UUID, qty int) error
	BumpExchangedCount(ctx context.Context, listingID uuid.UUID) error
	MarkExchanged(ctx context.Context, listingID uuid.UUID) error
}

type service struct {
	repo Repository
}

// NewService wires an inventory service with the provided repository.
func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("inventory repository required")
	}
	return &service{repo: repo}, nil
}

func (s *service) WithTx(tx *gorm.DB) Service {
	if tx == nil {
		return s
	}
	return &service{repo: s.repo.WithTx(tx)}
}

func (s *service) GetListing(ctx context.Context, id uuid.UUID) (*models.Listing, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "listing id is required")
	}
	listing, err := s.repo.FindListingByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "listing not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading listing")
	}
	return listing, nil
}

// Decrement removes qty units from the listing. The insufficient-stock
// and not-found cases are only distinguished after the guarded update
// rejects, so the hot path stays a single statement.
func (s *service) Decrement(ctx context.Context, listingID uuid.UUID, qty int) error {
	if qty <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
	}

	updated, err := s.repo.DecrementQuantity(ctx, listingID, qty)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "decrementing listing quantity")
	}
	if !updated {
		if _, ferr := s.repo.FindListingByID(ctx, listingID); ferr != nil {
			if errors.Is(ferr, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "listing not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeInternal, ferr, "loading listing")
		}
		return pkgerrors.New(pkgerrors.CodeInsufficientStock, "insufficient stock for listing")
	}

	if _, err := s.repo.MarkSoldOutIfDepleted(ctx, listingID); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "marking listing sold out")
	}
	return nil
}

// DecrementClamped removes up to qty units, flooring at zero instead of
// rejecting. Callers use it when the money already moved and the stock
// race has to resolve in the buyer's favor.
func (s *service) DecrementClamped(ctx context.Context, listingID uuid.UUID, qty int) error {
	if qty <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
	}

	updated, err := s.repo.DecrementQuantityClamped(ctx, listingID, qty)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "decrementing listing quantity")
	}
	if !updated {
		return pkgerrors.New(pkgerrors.CodeNotFound, "listing not found")
	}

	if _, err := s.repo.MarkSoldOutIfDepleted(ctx, listingID); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "marking listing sold out")
	}
	return nil
}

// Restore returns qty units to the listing after a cancelled or failed
// settlement.
func (s *service) Restore(ctx context.Context, listingID uuid.UUID, qty int) error {
	if qty <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
	}

	updated, err := s.repo.RestoreQuantity(ctx, listingID, qty)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "restoring listing quantity")
	}
	if !updated {
		return pkgerrors.New(pkgerrors.CodeNotFound, "listing not found")
	}
	return nil
}

func (s *service) BumpExchangedCount(ctx context.Context, listingID uuid.UUID) error {
	if listingID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "listing id is required")
	}
	if _, err := s.repo.BumpExchangedCount(ctx, listingID); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "bumping exchanged count")
	}
	return nil
}

func (s *service) MarkExchanged(ctx context.Context, listingID uuid.UUID) error {
	if listingID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "listing id is required")
	}
	if _, err := s.repo.MarkExchanged(ctx, listingID); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "marking listing exchanged")
	}
	return nil
}
