package exchanges

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

// Repository persists exchanges. Every status move is a compare-and-swap
// on the current status, so concurrent transitions resolve to exactly one
// winner.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, exchange *models.Exchange) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Exchange, error)
	ListByLab(ctx context.Context, labID uuid.UUID, params pagination.Params) ([]models.Exchange, error)
	TransitionStatus(ctx context.Context, input TransitionInput) (bool, error)
	FindStale(ctx context.Context, now time.Time, limit int) ([]models.Exchange, error)
}

// TransitionInput is one CAS status move, including the audit entry and
// any terminal timestamps it should record.
type TransitionInput struct {
	ExchangeID  uuid.UUID
	From        enums.ExchangeStatus
	To          enums.ExchangeStatus
	History     types.StatusHistory
	CompletedAt *time.Time
	CancelledAt *time.Time
	Reason      *string
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds an exchanges repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, exchange *models.Exchange) error {
	return r.db.WithContext(ctx).Create(exchange).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Exchange, error) {
	var exchange models.Exchange
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&exchange).Error; err != nil {
		return nil, err
	}
	return &exchange, nil
}

func (r *repository) ListByLab(ctx context.Context, labID uuid.UUID, params pagination.Params) ([]models.Exchange, error) {
	query := r.db.WithContext(ctx).
		Where("requester_lab_id = ? OR receiver_lab_id = ?", labID, labID).
		Order("created_at DESC, id DESC").
		Limit(pagination.LimitWithBuffer(params.Limit))

	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, err
	}
	if cursor != nil {
		query = query.Where("(created_at, id) < (?, ?)", cursor.CreatedAt, cursor.ID)
	}

	var rows []models.Exchange
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) TransitionStatus(ctx context.Context, input TransitionInput) (bool, error) {
	updates := map[string]any{
		"status":         input.To,
		"status_history": input.History,
	}
	if input.CompletedAt != nil {
		updates["completed_at"] = *input.CompletedAt
	}
	if input.CancelledAt != nil {
		updates["cancelled_at"] = *input.CancelledAt
	}
	if input.Reason != nil {
		updates["cancel_reason"] = *input.Reason
	}
	result := r.db.WithContext(ctx).
		Model(&models.Exchange{}).
		Where("id = ? AND status = ?", input.ExchangeID, input.From).
		Updates(updates)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// FindStale returns exchanges that lapsed before either party confirmed.
func (r *repository) FindStale(ctx context.Context, now time.Time, limit int) ([]models.Exchange, error) {
	var rows []models.Exchange
	err := r.db.WithContext(ctx).
		Where("status = ? AND expires_at < ?", enums.ExchangeStatusAccepted, now).
		Order("expires_at ASC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}
