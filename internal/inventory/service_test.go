package inventory

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
)

func setupInventoryTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := "file:inventory_" + uuid.NewString() + "?mode=memory&cache=shared"
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

func seedListing(t *testing.T, db *gorm.DB, kind enums.ListingKind, qty int) *models.Listing {
	t.Helper()

	listing := &models.Listing{
		ID:             uuid.New(),
		OwnerLabID:     uuid.New(),
		Title:          "Test Centrifuge",
		Kind:           kind,
		Quantity:       qty,
		Status:         enums.ListingStatusActive,
		ApprovalStatus: enums.ApprovalStatusApproved,
	}
	require.NoError(t, db.Create(listing).Error)
	return listing
}

func newInventoryService(t *testing.T, db *gorm.DB) Service {
	t.Helper()
	svc, err := NewService(NewRepository(db))
	require.NoError(t, err)
	return svc
}

func TestDecrementLastUnitWins(t *testing.T) {
	t.Parallel()

	db := setupInventoryTestDB(t)
	svc := newInventoryService(t, db)
	ctx := context.Background()
	listing := seedListing(t, db, enums.ListingKindSale, 1)

	require.NoError(t, svc.Decrement(ctx, listing.ID, 1))

	err := svc.Decrement(ctx, listing.ID, 1)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInsufficientStock))

	var reloaded models.Listing
	require.NoError(t, db.First(&reloaded, "id = ?", listing.ID).Error)
	assert.Equal(t, 0, reloaded.Quantity)
	assert.Equal(t, enums.ListingStatusSoldOut, reloaded.Status)
}

func TestDecrementInsufficientStockLeavesQuantity(t *testing.T) {
	t.Parallel()

	db := setupInventoryTestDB(t)
	svc := newInventoryService(t, db)
	ctx := context.Background()
	listing := seedListing(t, db, enums.ListingKindSale, 3)

	err := svc.Decrement(ctx, listing.ID, 5)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInsufficientStock))

	var reloaded models.Listing
	require.NoError(t, db.First(&reloaded, "id = ?", listing.ID).Error)
	assert.Equal(t, 3, reloaded.Quantity)
	assert.Equal(t, enums.ListingStatusActive, reloaded.Status)
}

func TestDecrementMissingListing(t *testing.T) {
	t.Parallel()

	db := setupInventoryTestDB(t)
	svc := newInventoryService(t, db)

	err := svc.Decrement(context.Background(), uuid.New(), 1)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestRestoreReactivatesSoldOut(t *testing.T) {
	t.Parallel()

	db := setupInventoryTestDB(t)
	svc := newInventoryService(t, db)
	ctx := context.Background()
	listing := seedListing(t, db, enums.ListingKindSale, 2)

	require.NoError(t, svc.Decrement(ctx, listing.ID, 2))

	var depleted models.Listing
	require.NoError(t, db.First(&depleted, "id = ?", listing.ID).Error)
	require.Equal(t, enums.ListingStatusSoldOut, depleted.Status)

	require.NoError(t, svc.Restore(ctx, listing.ID, 2))

	var restored models.Listing
	require.NoError(t, db.First(&restored, "id = ?", listing.ID).Error)
	assert.Equal(t, 2, restored.Quantity)
	assert.Equal(t, enums.ListingStatusActive, restored.Status)
}

func TestMarkExchangedRetiresDepletedListing(t *testing.T) {
	t.Parallel()

	db := setupInventoryTestDB(t)
	svc := newInventoryService(t, db)
	ctx := context.Background()
	listing := seedListing(t, db, enums.ListingKindExchange, 1)

	require.NoError(t, svc.Decrement(ctx, listing.ID, 1))
	require.NoError(t, svc.MarkExchanged(ctx, listing.ID))

	var reloaded models.Listing
	require.NoError(t, db.First(&reloaded, "id = ?", listing.ID).Error)
	assert.Equal(t, enums.ListingStatusExchanged, reloaded.Status)
}

func TestBumpExchangedCountLeavesStatusAlone(t *testing.T) {
	t.Parallel()

	db := setupInventoryTestDB(t)
	svc := newInventoryService(t, db)
	ctx := context.Background()
	listing := seedListing(t, db, enums.ListingKindExchange, 2)

	require.NoError(t, svc.BumpExchangedCount(ctx, listing.ID))
	require.NoError(t, svc.BumpExchangedCount(ctx, listing.ID))

	var reloaded models.Listing
	require.NoError(t, db.First(&reloaded, "id = ?", listing.ID).Error)
	assert.Equal(t, 2, reloaded.ExchangedCount)
	assert.Equal(t, enums.ListingStatusActive, reloaded.Status)
}

func TestMarkExchangedKeepsStockedListingActive(t *testing.T) {
	t.Parallel()

	db := setupInventoryTestDB(t)
	svc := newInventoryService(t, db)
	ctx := context.Background()
	listing := seedListing(t, db, enums.ListingKindExchange, 4)

	require.NoError(t, svc.Decrement(ctx, listing.ID, 1))
	require.NoError(t, svc.MarkExchanged(ctx, listing.ID))

	var reloaded models.Listing
	require.NoError(t, db.First(&reloaded, "id = ?", listing.ID).Error)
	assert.Equal(t, 3, reloaded.Quantity)
	assert.Equal(t, enums.ListingStatusActive, reloaded.Status)
}
