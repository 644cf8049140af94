package webhooks

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mukhtabar/mukhtabar-backend/internal/orders"
	pkgerrors "github.com/mukhtabar/mukhtabar-backend/pkg/errors"
	"github.com/mukhtabar/mukhtabar-backend/pkg/logger"
	"github.com/mukhtabar/mukhtabar-backend/pkg/redis"
)

const (
	// EventPaymentPaid is the provider event for a captured payment.
	EventPaymentPaid = "payment_paid"
	// EventPaymentFailed is the provider event for a declined payment.
	EventPaymentFailed = "payment_failed"

	idempotencyScope = "moyasar"
)

// Event is the provider webhook envelope.
type Event struct {
	ID   string    `json:"id"`
	Type string    `json:"type"`
	Data EventData `json:"data"`
}

// EventData is the payment resource carried by the event. Amount is in
// halalas, matching the provider's minor units.
type EventData struct {
	ID       string        `json:"id"`
	Status   string        `json:"status"`
	Amount   int64         `json:"amount"`
	Message  string        `json:"message"`
	Metadata EventMetadata `json:"metadata"`
}

// EventMetadata carries the order correlation set at checkout.
type EventMetadata struct {
	OrderID string `json:"order_id"`
}

// Service routes verified provider events into order settlement. The Redis
// guard short-circuits redeliveries cheaply; the database payment fence
// remains the authoritative duplicate protection.
type Service interface {
	HandleEvent(ctx context.Context, event Event) error
}

type service struct {
	orders orders.Service
	guard  redis.IdempotencyStore
	ttl    time.Duration
	logg   *logger.Logger
}

// NewService wires the webhook router with its collaborators.
func NewService(ord orders.Service, guard redis.IdempotencyStore, ttl time.Duration, logg *logger.Logger) (Service, error) {
	if ord == nil {
		return nil, fmt.Errorf("orders service required")
	}
	if guard == nil {
		return nil, fmt.Errorf("idempotency store required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{orders: ord, guard: guard, ttl: ttl, logg: logg}, nil
}

// HandleEvent processes one provider event. A nil return acknowledges the
// delivery; an error asks the provider to redeliver later.
func (s *service) HandleEvent(ctx context.Context, event Event) error {
	ctx = s.logg.WithFields(ctx, map[string]any{
		"event_id":   event.ID,
		"event_type": event.Type,
		"payment_id": event.Data.ID,
	})

	switch event.Type {
	case EventPaymentPaid, EventPaymentFailed:
	default:
		s.logg.Info(ctx, "ignoring unhandled webhook event type")
		return nil
	}

	orderID, err := uuid.Parse(event.Data.Metadata.OrderID)
	if err != nil {
		s.logg.Warn(ctx, "webhook event carries no usable order id")
		return nil
	}

	key := s.guard.IdempotencyKey(idempotencyScope, eventKey(event))
	fresh, err := s.guard.SetNX(ctx, key, time.Now().UTC().Format(time.RFC3339), s.ttl)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "checking event idempotency")
	}
	if !fresh {
		s.logg.Info(ctx, "duplicate webhook delivery skipped")
		return nil
	}

	switch event.Type {
	case EventPaymentPaid:
		err = s.handlePaid(ctx, orderID, event.Data)
	case EventPaymentFailed:
		err = s.handleFailed(ctx, orderID, event.Data)
	}
	if err != nil {
		// Release the guard so the provider's retry gets another attempt.
		if delErr := s.guard.Del(ctx, key); delErr != nil {
			s.logg.Error(ctx, "releasing webhook idempotency key", delErr)
		}
		return err
	}
	return nil
}

func (s *service) handlePaid(ctx context.Context, orderID uuid.UUID, data EventData) error {
	result, err := s.orders.HandlePaymentPaid(ctx, orderID, data.ID, data.Amount)
	if err != nil {
		if retryable(err) {
			return err
		}
		// Terminal outcomes (unknown order, amount mismatch, stale state)
		// won't change on redelivery; acknowledge and leave a trace.
		s.logg.Warn(ctx, fmt.Sprintf("payment event not applied: %v", err))
		return nil
	}
	if result.AlreadyProcessed {
		s.logg.Info(ctx, "payment event replayed an already settled order")
	}
	return nil
}

func (s *service) handleFailed(ctx context.Context, orderID uuid.UUID, data EventData) error {
	reason := data.Message
	if reason == "" {
		reason = "payment failed"
	}
	if _, err := s.orders.HandlePaymentFailed(ctx, orderID, reason); err != nil {
		if retryable(err) {
			return err
		}
		s.logg.Warn(ctx, fmt.Sprintf("failure event not applied: %v", err))
		return nil
	}
	return nil
}

// retryable reports whether a redelivery could succeed where this attempt
// failed.
func retryable(err error) bool {
	return pkgerrors.IsCode(err, pkgerrors.CodeDependency) ||
		pkgerrors.IsCode(err, pkgerrors.CodeInternal)
}

// eventKey prefers the payment id so differently-enveloped redeliveries of
// the same payment still collapse.
func eventKey(event Event) string {
	if event.Data.ID != "" {
		return event.Type + ":" + event.Data.ID
	}
	return event.Type + ":" + event.ID
}
