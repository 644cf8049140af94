package exchanges

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/mukhtabar/mukhtabar-backend/internal/inventory"
	"github.com/mukhtabar/mukhtabar-backend/pkg/db/models"
	"github.com/mukhtabar/mukhtabar-backend/pkg/enums"
	pkgerrors "github.com/mukhtabar/mukhtabar-backend/pkg/errors"
	"github.com/mukhtabar/mukhtabar-backend/pkg/logger"
)

type testRunner struct {
	db *gorm.DB
}

func (r testRunner) WithTx(_ context.Context, fn func(tx *gorm.DB) error) error {
	return r.db.Transaction(fn)
}

func setupExchangesTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := "file:exchanges_" + uuid.NewString() + "?mode=memory&cache=shared"
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
	exchangesTable := `
CREATE TABLE IF NOT EXISTS exchanges (
  id TEXT PRIMARY KEY,
  requester_user_id TEXT NOT NULL,
  requester_lab_id TEXT NOT NULL,
  receiver_user_id TEXT NOT NULL,
  receiver_lab_id TEXT NOT NULL,
  requester_listing_id TEXT NOT NULL,
  requester_qty INTEGER NOT NULL,
  receiver_listing_id TEXT NOT NULL,
  receiver_qty INTEGER NOT NULL,
  status TEXT NOT NULL DEFAULT 'pending',
  status_history TEXT,
  expires_at DATETIME NOT NULL,
  completed_at DATETIME,
  cancelled_at DATETIME,
  cancel_reason TEXT,
  created_at DATETIME,
  updated_at DATETIME
);`
	require.NoError(t, db.Exec(listings).Error)
	require.NoError(t, db.Exec(exchangesTable).Error)
	return db
}

type exchangesFixture struct {
	svc              Service
	db               *gorm.DB
	requesterLab     uuid.UUID
	receiverLab      uuid.UUID
	requesterListing *models.Listing
	receiverListing  *models.Listing
}

// newExchangesFixture seeds an accepted exchange whose quantities have
// already been held, mirroring what the broker does on acceptance.
func newExchangesFixture(t *testing.T) (*exchangesFixture, *models.Exchange) {
	t.Helper()

	db := setupExchangesTestDB(t)
	invSvc, err := inventory.NewService(inventory.NewRepository(db))
	require.NoError(t, err)

	logg := logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
	svc, err := NewService(NewRepository(db), testRunner{db}, invSvc, logg)
	require.NoError(t, err)

	f := &exchangesFixture{
		svc:          svc,
		db:           db,
		requesterLab: uuid.New(),
		receiverLab:  uuid.New(),
	}
	f.requesterListing = f.seedListing(t, f.requesterLab, 3)
	f.receiverListing = f.seedListing(t, f.receiverLab, 2)

	exchange := &models.Exchange{
		ID:                 uuid.New(),
		RequesterUserID:    uuid.New(),
		RequesterLabID:     f.requesterLab,
		ReceiverUserID:     uuid.New(),
		ReceiverLabID:      f.receiverLab,
		RequesterListingID: f.requesterListing.ID,
		RequesterQty:       2,
		ReceiverListingID:  f.receiverListing.ID,
		ReceiverQty:        1,
		Status:             enums.ExchangeStatusAccepted,
		ExpiresAt:          time.Now().UTC().Add(time.Hour),
	}
	require.NoError(t, db.Create(exchange).Error)
	return f, exchange
}

func (f *exchangesFixture) seedListing(t *testing.T, labID uuid.UUID, qty int) *models.Listing {
	t.Helper()

	listing := &models.Listing{
		ID:             uuid.New(),
		OwnerLabID:     labID,
		Title:          "Incubator Shaker",
		Kind:           enums.ListingKindExchange,
		Quantity:       qty,
		Status:         enums.ListingStatusActive,
		ApprovalStatus: enums.ApprovalStatusApproved,
	}
	require.NoError(t, f.db.Create(listing).Error)
	return listing
}

func (f *exchangesFixture) listingQty(t *testing.T, id uuid.UUID) int {
	t.Helper()

	var listing models.Listing
	require.NoError(t, f.db.First(&listing, "id = ?", id).Error)
	return listing.Quantity
}

func TestConfirmStartComplete(t *testing.T) {
	t.Parallel()

	f, exchange := newExchangesFixture(t)
	ctx := context.Background()

	confirmed, err := f.svc.Confirm(ctx, exchange.ID, f.receiverLab)
	require.NoError(t, err)
	assert.Equal(t, enums.ExchangeStatusConfirmed, confirmed.Status)

	started, err := f.svc.Start(ctx, exchange.ID, f.requesterLab)
	require.NoError(t, err)
	assert.Equal(t, enums.ExchangeStatusInProgress, started.Status)

	completed, err := f.svc.Complete(ctx, exchange.ID, f.receiverLab)
	require.NoError(t, err)
	assert.Equal(t, enums.ExchangeStatusCompleted, completed.Status)
	require.NotNil(t, completed.CompletedAt)
	assert.Len(t, completed.StatusHistory, 3)

	// The exchanged counter moves when the barter is agreed, not here.
	var requesterListing models.Listing
	require.NoError(t, f.db.First(&requesterListing, "id = ?", f.requesterListing.ID).Error)
	assert.Equal(t, 0, requesterListing.ExchangedCount)
}

func TestRejectOnlyFromPending(t *testing.T) {
	t.Parallel()

	f, exchange := newExchangesFixture(t)
	ctx := context.Background()

	// Exchanges opened through request acceptance are born accepted.
	_, err := f.svc.Reject(ctx, exchange.ID, f.receiverLab, "terms changed")
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))

	require.NoError(t, f.db.Model(&models.Exchange{}).
		Where("id = ?", exchange.ID).
		Update("status", enums.ExchangeStatusPending).Error)

	_, err = f.svc.Reject(ctx, exchange.ID, f.receiverLab, "")
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = f.svc.Reject(ctx, exchange.ID, f.requesterLab, "terms changed")
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))

	rejected, err := f.svc.Reject(ctx, exchange.ID, f.receiverLab, "terms changed")
	require.NoError(t, err)
	assert.Equal(t, enums.ExchangeStatusRejected, rejected.Status)
}

func TestCompleteTwiceReportsAlreadyProcessed(t *testing.T) {
	t.Parallel()

	f, exchange := newExchangesFixture(t)
	ctx := context.Background()

	_, err := f.svc.Confirm(ctx, exchange.ID, f.receiverLab)
	require.NoError(t, err)
	_, err = f.svc.Start(ctx, exchange.ID, f.receiverLab)
	require.NoError(t, err)
	_, err = f.svc.Complete(ctx, exchange.ID, f.receiverLab)
	require.NoError(t, err)

	_, err = f.svc.Complete(ctx, exchange.ID, f.receiverLab)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeAlreadyProcessed))

	var requesterListing models.Listing
	require.NoError(t, f.db.First(&requesterListing, "id = ?", f.requesterListing.ID).Error)
	assert.Equal(t, 0, requesterListing.ExchangedCount)
}

func TestCancelRestoresHeldQuantities(t *testing.T) {
	t.Parallel()

	f, exchange := newExchangesFixture(t)
	ctx := context.Background()

	cancelled, err := f.svc.Cancel(ctx, exchange.ID, f.requesterLab, "shipment damaged")
	require.NoError(t, err)
	assert.Equal(t, enums.ExchangeStatusCancelled, cancelled.Status)
	require.NotNil(t, cancelled.CancelledAt)

	// Held quantities return to both sides.
	assert.Equal(t, 5, f.listingQty(t, f.requesterListing.ID))
	assert.Equal(t, 3, f.listingQty(t, f.receiverListing.ID))

	_, err = f.svc.Cancel(ctx, exchange.ID, f.requesterLab, "shipment damaged")
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeAlreadyProcessed))

	// A second cancel must not restore again.
	assert.Equal(t, 5, f.listingQty(t, f.requesterListing.ID))
}

func TestTransitionTableRejectsSkips(t *testing.T) {
	t.Parallel()

	f, exchange := newExchangesFixture(t)
	ctx := context.Background()

	_, err := f.svc.Start(ctx, exchange.ID, f.receiverLab)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))

	_, err = f.svc.Complete(ctx, exchange.ID, f.receiverLab)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))
}

func TestNonParticipantForbidden(t *testing.T) {
	t.Parallel()

	f, exchange := newExchangesFixture(t)
	ctx := context.Background()

	_, err := f.svc.Confirm(ctx, exchange.ID, uuid.New())
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))
}

func TestExpireStaleCancelsLapsedAccepted(t *testing.T) {
	t.Parallel()

	f, exchange := newExchangesFixture(t)
	ctx := context.Background()

	require.NoError(t, f.db.Model(&models.Exchange{}).
		Where("id = ?", exchange.ID).
		Update("expires_at", time.Now().UTC().Add(-time.Hour)).Error)

	expired, err := f.svc.ExpireStale(ctx, time.Now().UTC(), 50)
	require.NoError(t, err)
	assert.Equal(t, 1, expired)

	var reloaded models.Exchange
	require.NoError(t, f.db.First(&reloaded, "id = ?", exchange.ID).Error)
	assert.Equal(t, enums.ExchangeStatusCancelled, reloaded.Status)

	// Quantities held at acceptance come back.
	assert.Equal(t, 5, f.listingQty(t, f.requesterListing.ID))
	assert.Equal(t, 3, f.listingQty(t, f.receiverListing.ID))
}
