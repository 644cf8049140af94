package orders

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

// MarkPaidInput carries the fields written by the mark-paid fence.
type MarkPaidInput struct {
	OrderID          uuid.UUID
	PaymentStatus    enums.PaymentStatus
	PaymentReference *string
	History          types.StatusHistory
	PaidAt           time.Time
}

// TransitionInput moves an order between fulfillment states with a CAS on
// the current status.
type TransitionInput struct {
	OrderID     uuid.UUID
	From        enums.OrderStatus
	To          enums.OrderStatus
	History     types.StatusHistory
	DeliveredAt *time.Time
	CancelledAt *time.Time
	Reason      *string
}

// Repository persists orders. Settlement-critical writes are conditional
// updates whose WHERE clause is the fence; callers read RowsAffected
// through the returned bool.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, order *models.Order) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	FindByOrderNumber(ctx context.Context, number string) (*models.Order, error)
	ListByLab(ctx context.Context, labID uuid.UUID, params pagination.Params) ([]models.Order, error)
	MarkPaid(ctx context.Context, input MarkPaidInput) (bool, error)
	MarkFailed(ctx context.Context, orderID uuid.UUID, history types.StatusHistory, reason string, at time.Time) (bool, error)
	MarkQuantitiesApplied(ctx context.Context, orderID uuid.UUID) (bool, error)
	MarkQuantitiesRestored(ctx context.Context, orderID uuid.UUID) (bool, error)
	TransitionStatus(ctx context.Context, input TransitionInput) (bool, error)
	SetPaymentStatus(ctx context.Context, orderID uuid.UUID, from, to enums.PaymentStatus) (bool, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds an orders repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, order *models.Order) error {
	return r.db.WithContext(ctx).Create(order).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).
		Preload("Items").
		Where("id = ?", id).
		First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) FindByOrderNumber(ctx context.Context, number string) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).
		Preload("Items").
		Where("order_number = ?", number).
		First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) ListByLab(ctx context.Context, labID uuid.UUID, params pagination.Params) ([]models.Order, error) {
	query := r.db.WithContext(ctx).
		Where("buyer_lab_id = ? OR seller_lab_id = ?", labID, labID).
		Order("created_at DESC, id DESC").
		Limit(pagination.LimitWithBuffer(params.Limit))

	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, err
	}
	if cursor != nil {
		query = query.Where("(created_at, id) < (?, ?)", cursor.CreatedAt, cursor.ID)
	}

	var rows []models.Order
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// MarkPaid is the payment fence: only the writer that finds the order
// still pending flips it. Everyone else gets zero rows and replays the
// already-settled order.
func (r *repository) MarkPaid(ctx context.Context, input MarkPaidInput) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND payment_status <> ? AND status = ?",
			input.OrderID, enums.PaymentStatusPaid, enums.OrderStatusPending).
		Updates(map[string]any{
			"payment_status":    input.PaymentStatus,
			"status":            enums.OrderStatusConfirmed,
			"status_history":    input.History,
			"payment_reference": input.PaymentReference,
			"paid_at":           input.PaidAt,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// MarkFailed cancels a pending order whose payment was declined. After
// the order is paid this is a no-op.
func (r *repository) MarkFailed(ctx context.Context, orderID uuid.UUID, history types.StatusHistory, reason string, at time.Time) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND payment_status = ? AND status = ?",
			orderID, enums.PaymentStatusPending, enums.OrderStatusPending).
		Updates(map[string]any{
			"payment_status": enums.PaymentStatusFailed,
			"status":         enums.OrderStatusCancelled,
			"status_history": history,
			"cancelled_at":   at,
			"cancel_reason":  reason,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repository) MarkQuantitiesApplied(ctx context.Context, orderID uuid.UUID) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND quantities_applied = ?", orderID, false).
		Update("quantities_applied", true)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repository) MarkQuantitiesRestored(ctx context.Context, orderID uuid.UUID) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND quantities_applied = ? AND quantities_restored = ?", orderID, true, false).
		Update("quantities_restored", true)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repository) TransitionStatus(ctx context.Context, input TransitionInput) (bool, error) {
	updates := map[string]any{
		"status":         input.To,
		"status_history": input.History,
	}
	if input.DeliveredAt != nil {
		updates["delivered_at"] = *input.DeliveredAt
	}
	if input.CancelledAt != nil {
		updates["cancelled_at"] = *input.CancelledAt
	}
	if input.Reason != nil {
		updates["cancel_reason"] = *input.Reason
	}

	result := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND status = ?", input.OrderID, input.From).
		Updates(updates)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// SetPaymentStatus flips the payment leg with a CAS on its current value.
func (r *repository) SetPaymentStatus(ctx context.Context, orderID uuid.UUID, from, to enums.PaymentStatus) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND payment_status = ?", orderID, from).
		Update("payment_status", to)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}
