package listings

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/mukhtabar/mukhtabar-backend/pkg/db/models"
	"github.com/mukhtabar/mukhtabar-backend/pkg/enums"
	pkgerrors "github.com/mukhtabar/mukhtabar-backend/pkg/errors"
	"github.com/mukhtabar/mukhtabar-backend/pkg/pagination"
)

// Service covers listing lifecycle outside of settlement.
type Service interface {
	Create(ctx context.Context, input CreateListingInput) (*models.Listing, error)
	Get(ctx context.Context, id uuid.UUID) (*models.Listing, error)
	ListByLab(ctx context.Context, labID uuid.UUID, params pagination.Params) ([]models.Listing, error)
	Review(ctx context.Context, id uuid.UUID, approve bool) error
}

// CreateListingInput carries the fields a lab submits for a new listing.
type CreateListingInput struct {
	OwnerLabID   uuid.UUID
	Title        string
	Description  *string
	Kind         enums.ListingKind
	Quantity     int
	PriceHalalas *int64
}

type service struct {
	repo Repository
}

// NewService wires a listings service with the provided repository.
func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("listings repository required")
	}
	return &service{repo: repo}, nil
}

func (s *service) Create(ctx context.Context, input CreateListingInput) (*models.Listing, error) {
	if input.OwnerLabID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "lab context missing")
	}
	if input.Title == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "title is required")
	}
	if !input.Kind.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid listing kind")
	}
	if input.Quantity < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity cannot be negative")
	}
	if input.Kind == enums.ListingKindSale {
		if input.PriceHalalas == nil || *input.PriceHalalas <= 0 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "sale listings require a positive price")
		}
	}

	listing := &models.Listing{
		ID:             uuid.New(),
		OwnerLabID:     input.OwnerLabID,
		Title:          input.Title,
		Description:    input.Description,
		Kind:           input.Kind,
		Quantity:       input.Quantity,
		PriceHalalas:   input.PriceHalalas,
		Status:         enums.ListingStatusActive,
		ApprovalStatus: enums.ApprovalStatusPending,
	}
	if err := s.repo.Create(ctx, listing); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "creating listing")
	}
	return listing, nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*models.Listing, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "listing id is required")
	}
	listing, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "listing not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "loading listing")
	}
	return listing, nil
}

func (s *service) ListByLab(ctx context.Context, labID uuid.UUID, params pagination.Params) ([]models.Listing, error) {
	if labID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "lab context missing")
	}
	rows, err := s.repo.ListByLab(ctx, labID, params)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "listing lab inventory")
	}
	return rows, nil
}

func (s *service) Review(ctx context.Context, id uuid.UUID, approve bool) error {
	if id == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "listing id is required")
	}
	status := enums.ApprovalStatusApproved
	if !approve {
		status = enums.ApprovalStatusRejected
	}
	updated, err := s.repo.UpdateApproval(ctx, id, status)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "updating listing approval")
	}
	if !updated {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "listing is not pending review")
	}
	return nil
}
