package listings

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/mukhtabar/mukhtabar-backend/pkg/db/models"
	"github.com/mukhtabar/mukhtabar-backend/pkg/enums"
	pkgerrors "github.com/mukhtabar/mukhtabar-backend/pkg/errors"
	"github.com/mukhtabar/mukhtabar-backend/pkg/pagination"
)

func setupListingsTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := "file:listings_" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)

	listings := `
CREATE TABLE IF NOT EXISTS listings (
  id TEXT PRIMARY KEY,
  owner_lab_id TEXT NOT NULL,
  title TEXT NOT NULL,
  description TEXT,
  kind TEXT NOT NULL,
  quantity INTEGER NOT NULL DEFAULT 0,
  price_halalas INTEGER,
  status TEXT NOT NULL DEFAULT 'active',
  approval_status TEXT NOT NULL DEFAULT 'pending',
  exchanged_count INTEGER NOT NULL DEFAULT 0,
  created_at DATETIME,
  updated_at DATETIME
);`
	require.NoError(t, db.Exec(listings).Error)
	return db
}

func newListingsService(t *testing.T, db *gorm.DB) Service {
	t.Helper()
	svc, err := NewService(NewRepository(db))
	require.NoError(t, err)
	return svc
}

func TestCreateStartsPendingApproval(t *testing.T) {
	t.Parallel()

	db := setupListingsTestDB(t)
	svc := newListingsService(t, db)
	price := int64(120000)

	listing, err := svc.Create(context.Background(), CreateListingInput{
		OwnerLabID:   uuid.New(),
		Title:        "Benchtop Autoclave",
		Kind:         enums.ListingKindSale,
		Quantity:     2,
		PriceHalalas: &price,
	})
	require.NoError(t, err)

	assert.Equal(t, enums.ApprovalStatusPending, listing.ApprovalStatus)
	assert.Equal(t, enums.ListingStatusActive, listing.Status)
	assert.NotEqual(t, uuid.Nil, listing.ID)
}

func TestCreateSaleRequiresPrice(t *testing.T) {
	t.Parallel()

	db := setupListingsTestDB(t)
	svc := newListingsService(t, db)

	_, err := svc.Create(context.Background(), CreateListingInput{
		OwnerLabID: uuid.New(),
		Title:      "Benchtop Autoclave",
		Kind:       enums.ListingKindSale,
		Quantity:   1,
	})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestReviewApprovesOnce(t *testing.T) {
	t.Parallel()

	db := setupListingsTestDB(t)
	svc := newListingsService(t, db)
	ctx := context.Background()

	listing, err := svc.Create(ctx, CreateListingInput{
		OwnerLabID: uuid.New(),
		Title:      "PCR Thermocycler",
		Kind:       enums.ListingKindExchange,
		Quantity:   1,
	})
	require.NoError(t, err)

	require.NoError(t, svc.Review(ctx, listing.ID, true))

	var reloaded models.Listing
	require.NoError(t, db.First(&reloaded, "id = ?", listing.ID).Error)
	assert.Equal(t, enums.ApprovalStatusApproved, reloaded.ApprovalStatus)

	// A second decision hits the pending-only guard.
	err = svc.Review(ctx, listing.ID, false)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))
}

func TestListByLabReturnsOwnListingsOnly(t *testing.T) {
	t.Parallel()

	db := setupListingsTestDB(t)
	svc := newListingsService(t, db)
	ctx := context.Background()
	owner := uuid.New()

	for i := 0; i < 3; i++ {
		_, err := svc.Create(ctx, CreateListingInput{
			OwnerLabID: owner,
			Title:      "Microscope Slide Stainer",
			Kind:       enums.ListingKindExchange,
			Quantity:   1,
		})
		require.NoError(t, err)
	}
	_, err := svc.Create(ctx, CreateListingInput{
		OwnerLabID: uuid.New(),
		Title:      "Someone Else's Incubator",
		Kind:       enums.ListingKindExchange,
		Quantity:   1,
	})
	require.NoError(t, err)

	rows, err := svc.ListByLab(ctx, owner, pagination.Params{Limit: 10})
	require.NoError(t, err)
	require.Len(t, rows, 3)
	for _, row := range rows {
		assert.Equal(t, owner, row.OwnerLabID)
	}
}
