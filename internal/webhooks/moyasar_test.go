package webhooks

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mukhtabar/mukhtabar-backend/internal/orders"
	"github.com/mukhtabar/mukhtabar-backend/pkg/db/models"
	"github.com/mukhtabar/mukhtabar-backend/pkg/enums"
	pkgerrors "github.com/mukhtabar/mukhtabar-backend/pkg/errors"
	"github.com/mukhtabar/mukhtabar-backend/pkg/logger"
	"github.com/mukhtabar/mukhtabar-backend/pkg/pagination"
)

type memoryGuard struct {
	mu   sync.Mutex
	keys map[string]string
}

func newMemoryGuard() *memoryGuard {
	return &memoryGuard{keys: map[string]string{}}
}

func (g *memoryGuard) Get(_ context.Context, key string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.keys[key], nil
}

func (g *memoryGuard) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, exists := g.keys[key]; exists {
		return false, nil
	}
	g.keys[key] = "set"
	return true, nil
}

func (g *memoryGuard) IdempotencyKey(scope, id string) string {
	return "test:idempotency:" + scope + ":" + id
}

func (g *memoryGuard) Del(_ context.Context, keys ...string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, key := range keys {
		delete(g.keys, key)
	}
	return nil
}

func (g *memoryGuard) held(key string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.keys[key]
	return ok
}

type stubOrders struct {
	paidCalls   int
	failedCalls int
	paidErr     error
	failedErr   error
	lastAmount  int64
}

func (s *stubOrders) Create(context.Context, orders.CreateInput) (*models.Order, error) {
	return nil, nil
}

func (s *stubOrders) Get(context.Context, uuid.UUID, uuid.UUID) (*models.Order, error) {
	return nil, nil
}

func (s *stubOrders) ListByLab(context.Context, uuid.UUID, pagination.Params) ([]models.Order, error) {
	return nil, nil
}

func (s *stubOrders) ConfirmPayment(context.Context, uuid.UUID, uuid.UUID, string) (*orders.SettlementResult, error) {
	return nil, nil
}

func (s *stubOrders) HandlePaymentPaid(_ context.Context, _ uuid.UUID, _ string, amount int64) (*orders.SettlementResult, error) {
	s.paidCalls++
	s.lastAmount = amount
	if s.paidErr != nil {
		return nil, s.paidErr
	}
	return &orders.SettlementResult{Order: &models.Order{}}, nil
}

func (s *stubOrders) HandlePaymentFailed(context.Context, uuid.UUID, string) (*models.Order, error) {
	s.failedCalls++
	if s.failedErr != nil {
		return nil, s.failedErr
	}
	return &models.Order{}, nil
}

func (s *stubOrders) Cancel(context.Context, uuid.UUID, uuid.UUID, string) (*models.Order, error) {
	return nil, nil
}

func (s *stubOrders) UpdateStatus(context.Context, uuid.UUID, uuid.UUID, enums.OrderStatus) (*models.Order, error) {
	return nil, nil
}

func newWebhookService(t *testing.T, ord *stubOrders, guard *memoryGuard) Service {
	t.Helper()

	logg := logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
	svc, err := NewService(ord, guard, time.Hour, logg)
	require.NoError(t, err)
	return svc
}

func paidEvent(orderID uuid.UUID) Event {
	return Event{
		ID:   "evt_1",
		Type: EventPaymentPaid,
		Data: EventData{
			ID:       "pay_1",
			Status:   "paid",
			Amount:   11500,
			Metadata: EventMetadata{OrderID: orderID.String()},
		},
	}
}

func TestHandleEventRoutesPaid(t *testing.T) {
	t.Parallel()

	ord := &stubOrders{}
	svc := newWebhookService(t, ord, newMemoryGuard())

	require.NoError(t, svc.HandleEvent(context.Background(), paidEvent(uuid.New())))
	assert.Equal(t, 1, ord.paidCalls)
	assert.Equal(t, int64(11500), ord.lastAmount)
}

func TestHandleEventSkipsDuplicateDelivery(t *testing.T) {
	t.Parallel()

	ord := &stubOrders{}
	svc := newWebhookService(t, ord, newMemoryGuard())
	event := paidEvent(uuid.New())

	require.NoError(t, svc.HandleEvent(context.Background(), event))
	require.NoError(t, svc.HandleEvent(context.Background(), event))
	assert.Equal(t, 1, ord.paidCalls)
}

func TestHandleEventReleasesGuardOnRetryableFailure(t *testing.T) {
	t.Parallel()

	ord := &stubOrders{paidErr: pkgerrors.New(pkgerrors.CodeDependency, "db down")}
	guard := newMemoryGuard()
	svc := newWebhookService(t, ord, guard)
	event := paidEvent(uuid.New())

	err := svc.HandleEvent(context.Background(), event)
	require.Error(t, err)
	assert.False(t, guard.held(guard.IdempotencyKey(idempotencyScope, eventKey(event))))

	// The provider's retry reaches the orders service again.
	ord.paidErr = nil
	require.NoError(t, svc.HandleEvent(context.Background(), event))
	assert.Equal(t, 2, ord.paidCalls)
}

func TestHandleEventAcknowledgesTerminalFailures(t *testing.T) {
	t.Parallel()

	ord := &stubOrders{paidErr: pkgerrors.New(pkgerrors.CodeNotFound, "order not found")}
	guard := newMemoryGuard()
	svc := newWebhookService(t, ord, guard)
	event := paidEvent(uuid.New())

	require.NoError(t, svc.HandleEvent(context.Background(), event))
	assert.True(t, guard.held(guard.IdempotencyKey(idempotencyScope, eventKey(event))))
}

func TestHandleEventIgnoresUnknownTypes(t *testing.T) {
	t.Parallel()

	ord := &stubOrders{}
	svc := newWebhookService(t, ord, newMemoryGuard())

	require.NoError(t, svc.HandleEvent(context.Background(), Event{ID: "evt_2", Type: "balance_updated"}))
	assert.Zero(t, ord.paidCalls)
	assert.Zero(t, ord.failedCalls)
}

func TestHandleEventRoutesFailed(t *testing.T) {
	t.Parallel()

	ord := &stubOrders{}
	svc := newWebhookService(t, ord, newMemoryGuard())

	event := Event{
		ID:   "evt_3",
		Type: EventPaymentFailed,
		Data: EventData{
			ID:       "pay_3",
			Status:   "failed",
			Message:  "card declined",
			Metadata: EventMetadata{OrderID: uuid.NewString()},
		},
	}
	require.NoError(t, svc.HandleEvent(context.Background(), event))
	assert.Equal(t, 1, ord.failedCalls)
}
