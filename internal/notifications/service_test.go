package notifications

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mukhtabar/mukhtabar-backend/pkg/logger"
)

type recordingSink struct {
	name   string
	events []Event
	err    error
}

func (s *recordingSink) Name() string { return s.name }

func (s *recordingSink) Deliver(_ context.Context, event Event) error {
	s.events = append(s.events, event)
	return s.err
}

func TestNotifyFansOutToAllSinks(t *testing.T) {
	t.Parallel()

	logg := logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
	first := &recordingSink{name: "first"}
	second := &recordingSink{name: "second"}
	svc, err := NewService(logg, first, second)
	require.NoError(t, err)

	event := Event{Type: EventOrderConfirmed, LabID: uuid.New(), Subject: "order confirmed"}
	svc.Notify(context.Background(), event)

	require.Len(t, first.events, 1)
	require.Len(t, second.events, 1)
	assert.Equal(t, event.Subject, first.events[0].Subject)
}

func TestNotifySwallowsSinkFailures(t *testing.T) {
	t.Parallel()

	logg := logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
	failing := &recordingSink{name: "mail", err: errors.New("smtp down")}
	healthy := &recordingSink{name: "inapp"}
	svc, err := NewService(logg, failing, healthy)
	require.NoError(t, err)

	// Must not panic or surface the error; the healthy sink still fires.
	svc.Notify(context.Background(), Event{Type: EventWithdrawalRequested, LabID: uuid.New()})
	assert.Len(t, healthy.events, 1)
}
