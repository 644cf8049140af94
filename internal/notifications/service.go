package notifications

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/mukhtabar/mukhtabar-backend/pkg/logger"
)

// Event types emitted by the settlement flows.
const (
	EventExchangeRequestCreated   = "exchange_request.created"
	EventExchangeRequestResponded = "exchange_request.responded"
	EventOrderConfirmed           = "order.confirmed"
	EventOrderCancelled           = "order.cancelled"
	EventWithdrawalRequested      = "withdrawal.requested"
	EventWithdrawalResolved       = "withdrawal.resolved"
)

// Event is a fire-and-forget message to a lab about settlement activity.
type Event struct {
	Type     string
	LabID    uuid.UUID
	Subject  string
	Body     string
	Metadata map[string]any
}

// Sink delivers events to one channel (mail, in-app, chat).
type Sink interface {
	Name() string
	Deliver(ctx context.Context, event Event) error
}

// Service fans events out to every configured sink. Delivery failures are
// logged and swallowed: notifications never affect settlement outcomes.
type Service interface {
	Notify(ctx context.Context, event Event)
}

type service struct {
	sinks []Sink
	logg  *logger.Logger
}

// NewService wires the notifier with its delivery sinks.
func NewService(logg *logger.Logger, sinks ...Sink) (Service, error) {
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	clean := make([]Sink, 0, len(sinks))
	for _, sink := range sinks {
		if sink != nil {
			clean = append(clean, sink)
		}
	}
	return &service{sinks: clean, logg: logg}, nil
}

func (s *service) Notify(ctx context.Context, event Event) {
	ctx = s.logg.WithFields(ctx, map[string]any{
		"event_type": event.Type,
		"lab_id":     event.LabID,
	})

	var errs []error
	for _, sink := range s.sinks {
		if err := sink.Deliver(ctx, event); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", sink.Name(), err))
		}
	}
	if combined := multierr.Combine(errs...); combined != nil {
		s.logg.Error(ctx, "notification delivery failed", combined)
	}
}

// LogSink records events in the service log. It stands in for real
// channels in environments without a mail or push provider.
type LogSink struct {
	logg *logger.Logger
}

// NewLogSink builds a sink that writes events to the structured log.
func NewLogSink(logg *logger.Logger) *LogSink {
	return &LogSink{logg: logg}
}

func (s *LogSink) Name() string { return "log" }

func (s *LogSink) Deliver(ctx context.Context, event Event) error {
	if s.logg == nil {
		return nil
	}
	ctx = s.logg.WithField(ctx, "subject", event.Subject)
	s.logg.Info(ctx, "notification dispatched")
	return nil
}
