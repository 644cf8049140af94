package exchanges

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/mukhtabar/mukhtabar-backend/internal/inventory"
	"github.com/mukhtabar/mukhtabar-backend/pkg/db/models"
	"github.com/mukhtabar/mukhtabar-backend/pkg/enums"
	pkgerrors "github.com/mukhtabar/mukhtabar-backend/pkg/errors"
	"github.com/mukhtabar/mukhtabar-backend/pkg/logger"
	"github.com/mukhtabar/mukhtabar-backend/pkg/pagination"
	"github.com/mukhtabar/mukhtabar-backend/pkg/types"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service drives exchanges through their lifecycle. The listing
// quantities held at acceptance are released on cancellation and made
// permanent on completion.
type Service interface {
	Get(ctx context.Context, id, actorLabID uuid.UUID) (*models.Exchange, error)
	ListByLab(ctx context.Context, labID uuid.UUID, params pagination.Params) ([]models.Exchange, error)
	Negotiate(ctx context.Context, id, actorLabID uuid.UUID) (*models.Exchange, error)
	Confirm(ctx context.Context, id, actorLabID uuid.UUID) (*models.Exchange, error)
	Reject(ctx context.Context, id, actorLabID uuid.UUID, reason string) (*models.Exchange, error)
	Start(ctx context.Context, id, actorLabID uuid.UUID) (*models.Exchange, error)
	Complete(ctx context.Context, id, actorLabID uuid.UUID) (*models.Exchange, error)
	Dispute(ctx context.Context, id, actorLabID uuid.UUID, reason string) (*models.Exchange, error)
	Cancel(ctx context.Context, id, actorLabID uuid.UUID, reason string) (*models.Exchange, error)
	ExpireStale(ctx context.Context, now time.Time, limit int) (int, error)
}

type service struct {
	repo      Repository
	tx        txRunner
	inventory inventory.Service
	logg      *logger.Logger
}

// NewService wires the exchange state machine with its collaborators.
func NewService(repo Repository, tx txRunner, inv inventory.Service, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("exchanges repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if inv == nil {
		return nil, fmt.Errorf("inventory service required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{repo: repo, tx: tx, inventory: inv, logg: logg}, nil
}

func (s *service) Get(ctx context.Context, id, actorLabID uuid.UUID) (*models.Exchange, error) {
	exchange, err := s.find(ctx, s.repo, id)
	if err != nil {
		return nil, err
	}
	if !exchange.Participant(actorLabID) {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "exchange does not involve your lab")
	}
	return exchange, nil
}

func (s *service) ListByLab(ctx context.Context, labID uuid.UUID, params pagination.Params) ([]models.Exchange, error) {
	if labID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "lab context missing")
	}
	rows, err := s.repo.ListByLab(ctx, labID, params)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "listing exchanges")
	}
	return rows, nil
}

func (s *service) Negotiate(ctx context.Context, id, actorLabID uuid.UUID) (*models.Exchange, error) {
	return s.transition(ctx, id, actorLabID, enums.ExchangeStatusNegotiating, "")
}

func (s *service) Confirm(ctx context.Context, id, actorLabID uuid.UUID) (*models.Exchange, error) {
	return s.transition(ctx, id, actorLabID, enums.ExchangeStatusConfirmed, "")
}

func (s *service) Start(ctx context.Context, id, actorLabID uuid.UUID) (*models.Exchange, error) {
	return s.transition(ctx, id, actorLabID, enums.ExchangeStatusInProgress, "")
}

// Reject declines a pending exchange. Exchanges opened through request
// acceptance start accepted, so this only applies to rows still pending.
func (s *service) Reject(ctx context.Context, id, actorLabID uuid.UUID, reason string) (*models.Exchange, error) {
	if reason == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "reject reason is required")
	}
	exchange, err := s.authorize(ctx, s.repo, id, actorLabID)
	if err != nil {
		return nil, err
	}
	if exchange.ReceiverLabID != actorLabID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only the receiving lab can reject the exchange")
	}
	return s.transition(ctx, id, actorLabID, enums.ExchangeStatusRejected, reason)
}

func (s *service) Dispute(ctx context.Context, id, actorLabID uuid.UUID, reason string) (*models.Exchange, error) {
	if reason == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "dispute reason is required")
	}
	return s.transition(ctx, id, actorLabID, enums.ExchangeStatusDisputed, reason)
}

// Complete finishes the barter: the CAS fences duplicates, then both
// listings record the completed exchange.
func (s *service) Complete(ctx context.Context, id, actorLabID uuid.UUID) (*models.Exchange, error) {
	var out *models.Exchange
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		exchange, err := s.authorize(ctx, repo, id, actorLabID)
		if err != nil {
			return err
		}
		if exchange.Status == enums.ExchangeStatusCompleted {
			return pkgerrors.New(pkgerrors.CodeAlreadyProcessed, "exchange already completed")
		}
		if !canTransition(exchange.Status, enums.ExchangeStatusCompleted) {
			return transitionRejected(exchange.Status, enums.ExchangeStatusCompleted)
		}

		now := time.Now().UTC()
		flipped, err := repo.TransitionStatus(ctx, TransitionInput{
			ExchangeID:  exchange.ID,
			From:        exchange.Status,
			To:          enums.ExchangeStatusCompleted,
			History:     appendChange(exchange, enums.ExchangeStatusCompleted, actorLabID, ""),
			CompletedAt: &now,
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "completing exchange")
		}
		if !flipped {
			return pkgerrors.New(pkgerrors.CodeAlreadyProcessed, "exchange already resolved")
		}

		inv := s.inventory.WithTx(tx)
		if err := inv.MarkExchanged(ctx, exchange.RequesterListingID); err != nil {
			return err
		}
		if err := inv.MarkExchanged(ctx, exchange.ReceiverListingID); err != nil {
			return err
		}

		exchange.Status = enums.ExchangeStatusCompleted
		exchange.CompletedAt = &now
		out = exchange
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Cancel unwinds the exchange and returns the held quantities to both
// listings. The CAS guarantees the restore runs at most once.
func (s *service) Cancel(ctx context.Context, id, actorLabID uuid.UUID, reason string) (*models.Exchange, error) {
	if reason == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cancel reason is required")
	}

	var out *models.Exchange
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		exchange, err := s.authorize(ctx, repo, id, actorLabID)
		if err != nil {
			return err
		}
		if exchange.Status == enums.ExchangeStatusCancelled {
			return pkgerrors.New(pkgerrors.CodeAlreadyProcessed, "exchange already cancelled")
		}
		if !canTransition(exchange.Status, enums.ExchangeStatusCancelled) {
			return transitionRejected(exchange.Status, enums.ExchangeStatusCancelled)
		}
		restore := exchange.InventoryHeld()

		now := time.Now().UTC()
		flipped, err := repo.TransitionStatus(ctx, TransitionInput{
			ExchangeID:  exchange.ID,
			From:        exchange.Status,
			To:          enums.ExchangeStatusCancelled,
			History:     appendChange(exchange, enums.ExchangeStatusCancelled, actorLabID, reason),
			CancelledAt: &now,
			Reason:      &reason,
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "cancelling exchange")
		}
		if !flipped {
			return pkgerrors.New(pkgerrors.CodeAlreadyProcessed, "exchange already resolved")
		}

		if restore {
			inv := s.inventory.WithTx(tx)
			if err := inv.Restore(ctx, exchange.RequesterListingID, exchange.RequesterQty); err != nil {
				return err
			}
			if err := inv.Restore(ctx, exchange.ReceiverListingID, exchange.ReceiverQty); err != nil {
				return err
			}
		}

		exchange.Status = enums.ExchangeStatusCancelled
		exchange.CancelledAt = &now
		exchange.CancelReason = &reason
		out = exchange
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ExpireStale cancels accepted exchanges that lapsed before confirmation,
// restoring the held quantities. Each exchange is handled in its own
// transaction so one failure does not block the sweep.
func (s *service) ExpireStale(ctx context.Context, now time.Time, limit int) (int, error) {
	stale, err := s.repo.FindStale(ctx, now, limit)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "finding stale exchanges")
	}

	expired := 0
	for _, exchange := range stale {
		if _, err := s.Cancel(ctx, exchange.ID, exchange.ReceiverLabID, "exchange expired before confirmation"); err != nil {
			if pkgerrors.IsCode(err, pkgerrors.CodeAlreadyProcessed) {
				continue
			}
			s.logg.Error(ctx, fmt.Sprintf("expiring exchange %s", exchange.ID), err)
			continue
		}
		expired++
	}
	return expired, nil
}

// transition performs a simple CAS move with no inventory side effects.
func (s *service) transition(ctx context.Context, id, actorLabID uuid.UUID, to enums.ExchangeStatus, reason string) (*models.Exchange, error) {
	exchange, err := s.authorize(ctx, s.repo, id, actorLabID)
	if err != nil {
		return nil, err
	}
	if exchange.Status == to {
		return nil, pkgerrors.New(pkgerrors.CodeAlreadyProcessed, "exchange already in requested state")
	}
	if !canTransition(exchange.Status, to) {
		return nil, transitionRejected(exchange.Status, to)
	}

	flipped, err := s.repo.TransitionStatus(ctx, TransitionInput{
		ExchangeID: exchange.ID,
		From:       exchange.Status,
		To:         to,
		History:    appendChange(exchange, to, actorLabID, reason),
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "updating exchange status")
	}
	if !flipped {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "exchange changed state concurrently")
	}

	exchange.Status = to
	return exchange, nil
}

func (s *service) authorize(ctx context.Context, repo Repository, id, actorLabID uuid.UUID) (*models.Exchange, error) {
	exchange, err := s.find(ctx, repo, id)
	if err != nil {
		return nil, err
	}
	if !exchange.Participant(actorLabID) {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "exchange does not involve your lab")
	}
	return exchange, nil
}

func (s *service) find(ctx context.Context, repo Repository, id uuid.UUID) (*models.Exchange, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "exchange id is required")
	}
	exchange, err := repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "exchange not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "loading exchange")
	}
	return exchange, nil
}

func appendChange(exchange *models.Exchange, to enums.ExchangeStatus, actorLabID uuid.UUID, reason string) types.StatusHistory {
	return exchange.StatusHistory.Append(types.StatusChange{
		From:       exchange.Status.String(),
		To:         to.String(),
		ActorLabID: actorLabID,
		Reason:     reason,
		At:         time.Now().UTC(),
	})
}

func transitionRejected(from, to enums.ExchangeStatus) error {
	return pkgerrors.New(pkgerrors.CodeStateConflict,
		fmt.Sprintf("cannot move exchange from %s to %s", from, to))
}
