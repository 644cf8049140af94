package exchangerequests

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/mukhtabar/mukhtabar-backend/pkg/db/models"
	"github.com/mukhtabar/mukhtabar-backend/pkg/enums"
	"github.com/mukhtabar/mukhtabar-backend/pkg/pagination"
	"github.com/mukhtabar/mukhtabar-backend/pkg/types"
)

// Repository persists exchange requests. Status moves through guarded
// conditional updates so every negotiation step resolves exactly once.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, request *models.ExchangeRequest) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.ExchangeRequest, error)
	ListIncoming(ctx context.Context, labID uuid.UUID, params pagination.Params) ([]models.ExchangeRequest, error)
	ListOutgoing(ctx context.Context, labID uuid.UUID, params pagination.Params) ([]models.ExchangeRequest, error)
	MarkViewed(ctx context.Context, id uuid.UUID, at time.Time) (bool, error)
	TransitionStatus(ctx context.Context, id uuid.UUID, from []enums.ExchangeRequestStatus, to enums.ExchangeRequestStatus, reason *string, at time.Time) (bool, error)
	SetCounterProposal(ctx context.Context, id uuid.UUID, from []enums.ExchangeRequestStatus, proposal types.CounterProposal, at time.Time) (bool, error)
	LinkAcceptedExchange(ctx context.Context, id uuid.UUID, from []enums.ExchangeRequestStatus, exchangeID uuid.UUID, at time.Time) (bool, error)
	MarkAccepted(ctx context.Context, id uuid.UUID, from []enums.ExchangeRequestStatus, at time.Time) (bool, error)
	ExpireStale(ctx context.Context, now time.Time) (int64, error)
}

// respondable are the statuses a request can still be acted on from.
var respondable = []enums.ExchangeRequestStatus{
	enums.ExchangeRequestStatusPending,
	enums.ExchangeRequestStatusViewed,
	enums.ExchangeRequestStatusCounterOffer,
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds an exchange request repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, request *models.ExchangeRequest) error {
	return r.db.WithContext(ctx).Create(request).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.ExchangeRequest, error) {
	var request models.ExchangeRequest
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&request).Error; err != nil {
		return nil, err
	}
	return &request, nil
}

func (r *repository) ListIncoming(ctx context.Context, labID uuid.UUID, params pagination.Params) ([]models.ExchangeRequest, error) {
	return r.list(ctx, "target_owner_lab_id = ?", labID, params)
}

func (r *repository) ListOutgoing(ctx context.Context, labID uuid.UUID, params pagination.Params) ([]models.ExchangeRequest, error) {
	return r.list(ctx, "requester_lab_id = ?", labID, params)
}

func (r *repository) list(ctx context.Context, where string, labID uuid.UUID, params pagination.Params) ([]models.ExchangeRequest, error) {
	query := r.db.WithContext(ctx).
		Where(where, labID).
		Order("created_at DESC, id DESC").
		Limit(pagination.LimitWithBuffer(params.Limit))

	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, err
	}
	if cursor != nil {
		query = query.Where("(created_at, id) < (?, ?)", cursor.CreatedAt, cursor.ID)
	}

	var rows []models.ExchangeRequest
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// MarkViewed records the first time the owner opens the request.
func (r *repository) MarkViewed(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.ExchangeRequest{}).
		Where("id = ? AND status = ?", id, enums.ExchangeRequestStatusPending).
		Updates(map[string]any{
			"status":    enums.ExchangeRequestStatusViewed,
			"viewed_at": at,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repository) TransitionStatus(ctx context.Context, id uuid.UUID, from []enums.ExchangeRequestStatus, to enums.ExchangeRequestStatus, reason *string, at time.Time) (bool, error) {
	updates := map[string]any{
		"status":       to,
		"responded_at": at,
	}
	if reason != nil {
		updates["response_reason"] = *reason
	}
	result := r.db.WithContext(ctx).
		Model(&models.ExchangeRequest{}).
		Where("id = ? AND status IN ?", id, from).
		Updates(updates)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repository) SetCounterProposal(ctx context.Context, id uuid.UUID, from []enums.ExchangeRequestStatus, proposal types.CounterProposal, at time.Time) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.ExchangeRequest{}).
		Where("id = ? AND status IN ?", id, from).
		Updates(map[string]any{
			"status":           enums.ExchangeRequestStatusCounterOffer,
			"counter_proposal": &proposal,
			"responded_at":     at,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// LinkAcceptedExchange is the acceptance fence for listing-backed offers:
// the linked_exchange_id IS NULL guard admits exactly one winner.
func (r *repository) LinkAcceptedExchange(ctx context.Context, id uuid.UUID, from []enums.ExchangeRequestStatus, exchangeID uuid.UUID, at time.Time) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.ExchangeRequest{}).
		Where("id = ? AND status IN ? AND linked_exchange_id IS NULL", id, from).
		Updates(map[string]any{
			"status":             enums.ExchangeRequestStatusAccepted,
			"linked_exchange_id": exchangeID,
			"responded_at":       at,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// MarkAccepted closes a custom offer, which never produces an exchange.
func (r *repository) MarkAccepted(ctx context.Context, id uuid.UUID, from []enums.ExchangeRequestStatus, at time.Time) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.ExchangeRequest{}).
		Where("id = ? AND status IN ? AND linked_exchange_id IS NULL", id, from).
		Updates(map[string]any{
			"status":       enums.ExchangeRequestStatusAccepted,
			"responded_at": at,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// ExpireStale sweeps lapsed non-terminal requests in bulk. The read-time
// expiry checks make the sweep purely janitorial.
func (r *repository) ExpireStale(ctx context.Context, now time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&models.ExchangeRequest{}).
		Where("status IN ? AND expires_at < ?", respondable, now).
		Update("status", enums.ExchangeRequestStatusExpired)
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}
