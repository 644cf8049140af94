package exchangerequests

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/mukhtabar/mukhtabar-backend/internal/exchanges"
	"github.com/mukhtabar/mukhtabar-backend/internal/inventory"
	"github.com/mukhtabar/mukhtabar-backend/pkg/config"
	"github.com/mukhtabar/mukhtabar-backend/pkg/db/models"
	"github.com/mukhtabar/mukhtabar-backend/pkg/enums"
	pkgerrors "github.com/mukhtabar/mukhtabar-backend/pkg/errors"
	"github.com/mukhtabar/mukhtabar-backend/pkg/pagination"
	"github.com/mukhtabar/mukhtabar-backend/pkg/types"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// errAlreadyAccepted aborts the accept transaction when another responder
// already linked an exchange; the caller reloads the winner afterwards.
var errAlreadyAccepted = errors.New("request already accepted")

// Service brokers barter proposals. Requests never hold inventory; stock
// is validated when the owner accepts, and a listing-backed acceptance
// creates exactly one exchange.
type Service interface {
	Create(ctx context.Context, input CreateInput) (*models.ExchangeRequest, error)
	Get(ctx context.Context, id, actorLabID uuid.UUID) (*models.ExchangeRequest, error)
	ListIncoming(ctx context.Context, labID uuid.UUID, params pagination.Params) ([]models.ExchangeRequest, error)
	ListOutgoing(ctx context.Context, labID uuid.UUID, params pagination.Params) ([]models.ExchangeRequest, error)
	MarkViewed(ctx context.Context, id, actorLabID uuid.UUID) error
	Accept(ctx context.Context, id, actorUserID, actorLabID uuid.UUID) (*AcceptResult, error)
	Reject(ctx context.Context, id, actorLabID uuid.UUID, reason string) error
	Counter(ctx context.Context, id, actorLabID uuid.UUID, proposal types.CounterProposal) error
	Withdraw(ctx context.Context, id, actorLabID uuid.UUID, reason *string) error
	ExpireStale(ctx context.Context, now time.Time) (int64, error)
}

// CreateInput carries a new barter proposal.
type CreateInput struct {
	RequesterUserID uuid.UUID
	RequesterLabID  uuid.UUID
	TargetListingID uuid.UUID
	RequestedQty    int
	OfferType       enums.OfferType
	OfferListingID  *uuid.UUID
	OfferQty        *int
	OfferDesc       *string
	OfferValue      *int64
	Message         *string
}

// AcceptResult reports the accepted request and, for listing-backed
// offers, the exchange it produced. AlreadyAccepted marks an idempotent
// replay of a previous acceptance.
type AcceptResult struct {
	Request         *models.ExchangeRequest
	Exchange        *models.Exchange
	AlreadyAccepted bool
}

type service struct {
	repo      Repository
	tx        txRunner
	inventory inventory.Service
	exchanges exchanges.Repository
	cfg       config.ExchangeConfig
}

// NewService wires the broker with its collaborators.
func NewService(repo Repository, tx txRunner, inv inventory.Service, exch exchanges.Repository, cfg config.ExchangeConfig) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("exchange requests repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if inv == nil {
		return nil, fmt.Errorf("inventory service required")
	}
	if exch == nil {
		return nil, fmt.Errorf("exchanges repository required")
	}
	return &service{repo: repo, tx: tx, inventory: inv, exchanges: exch, cfg: cfg}, nil
}

func (s *service) Create(ctx context.Context, input CreateInput) (*models.ExchangeRequest, error) {
	if input.RequesterUserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	if input.RequesterLabID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "lab context missing")
	}
	if input.RequestedQty <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "requested quantity must be positive")
	}
	if !input.OfferType.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid offer type")
	}

	target, err := s.inventory.GetListing(ctx, input.TargetListingID)
	if err != nil {
		return nil, err
	}
	if target.OwnerLabID == input.RequesterLabID {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cannot request an exchange against your own listing")
	}
	if !target.Barterable() {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "listing is not open for exchange")
	}
	if input.RequestedQty > target.Quantity {
		return nil, pkgerrors.New(pkgerrors.CodeInsufficientStock, "requested quantity exceeds available stock")
	}

	request := &models.ExchangeRequest{
		ID:               uuid.New(),
		RequesterUserID:  input.RequesterUserID,
		RequesterLabID:   input.RequesterLabID,
		TargetListingID:  target.ID,
		TargetOwnerLabID: target.OwnerLabID,
		RequestedQty:     input.RequestedQty,
		OfferType:        input.OfferType,
		Message:          input.Message,
		Status:           enums.ExchangeRequestStatusPending,
		ExpiresAt:        time.Now().UTC().Add(s.cfg.RequestTTL),
	}

	switch input.OfferType {
	case enums.OfferTypeExistingListing:
		if input.OfferListingID == nil || input.OfferQty == nil || *input.OfferQty <= 0 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "listing offers require an offered listing and quantity")
		}
		offer, err := s.inventory.GetListing(ctx, *input.OfferListingID)
		if err != nil {
			return nil, err
		}
		if offer.OwnerLabID != input.RequesterLabID {
			return nil, pkgerrors.New(pkgerrors.CodeForbidden, "offered listing does not belong to your lab")
		}
		if !offer.Barterable() {
			return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "offered listing is not open for exchange")
		}
		if *input.OfferQty > offer.Quantity {
			return nil, pkgerrors.New(pkgerrors.CodeInsufficientStock, "offered quantity exceeds available stock")
		}
		request.OfferListingID = &offer.ID
		request.OfferQty = input.OfferQty
	case enums.OfferTypeCustom:
		if input.OfferDesc == nil || *input.OfferDesc == "" {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "custom offers require a description")
		}
		request.OfferDescription = input.OfferDesc
		request.OfferValue = input.OfferValue
	}

	if err := s.repo.Create(ctx, request); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "creating exchange request")
	}
	return request, nil
}

func (s *service) Get(ctx context.Context, id, actorLabID uuid.UUID) (*models.ExchangeRequest, error) {
	request, err := s.find(ctx, s.repo, id)
	if err != nil {
		return nil, err
	}
	if request.RequesterLabID != actorLabID && request.TargetOwnerLabID != actorLabID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "request does not involve your lab")
	}
	// Expiry is authoritative at read time; the sweep job only persists it.
	if request.ExpiredAt(time.Now().UTC()) {
		if _, err := s.repo.TransitionStatus(ctx, request.ID, respondable, enums.ExchangeRequestStatusExpired, nil, time.Now().UTC()); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "expiring request")
		}
		request.Status = enums.ExchangeRequestStatusExpired
	}
	return request, nil
}

func (s *service) ListIncoming(ctx context.Context, labID uuid.UUID, params pagination.Params) ([]models.ExchangeRequest, error) {
	if labID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "lab context missing")
	}
	rows, err := s.repo.ListIncoming(ctx, labID, params)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "listing incoming requests")
	}
	return rows, nil
}

func (s *service) ListOutgoing(ctx context.Context, labID uuid.UUID, params pagination.Params) ([]models.ExchangeRequest, error) {
	if labID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "lab context missing")
	}
	rows, err := s.repo.ListOutgoing(ctx, labID, params)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "listing outgoing requests")
	}
	return rows, nil
}

func (s *service) MarkViewed(ctx context.Context, id, actorLabID uuid.UUID) error {
	request, err := s.find(ctx, s.repo, id)
	if err != nil {
		return err
	}
	if request.TargetOwnerLabID != actorLabID {
		return pkgerrors.New(pkgerrors.CodeForbidden, "only the listing owner can view the request")
	}
	if err := s.ensureNotExpired(ctx, s.repo, request); err != nil {
		return err
	}
	// Repeat views are fine; only the first one flips the status.
	if _, err := s.repo.MarkViewed(ctx, request.ID, time.Now().UTC()); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "marking request viewed")
	}
	return nil
}

// Accept resolves the request in the owner's favor. For listing-backed
// offers it creates the exchange and decrements both listings inside one
// transaction; the linked-exchange fence admits exactly one acceptance,
// and a replay returns the original outcome.
func (s *service) Accept(ctx context.Context, id, actorUserID, actorLabID uuid.UUID) (*AcceptResult, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "request id is required")
	}
	if actorUserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	if actorLabID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "lab context missing")
	}

	var result AcceptResult
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		now := time.Now().UTC()

		request, err := s.find(ctx, repo, id)
		if err != nil {
			return err
		}
		if request.TargetOwnerLabID != actorLabID {
			return pkgerrors.New(pkgerrors.CodeForbidden, "only the listing owner can accept the request")
		}
		if request.Status == enums.ExchangeRequestStatusAccepted {
			return errAlreadyAccepted
		}
		if err := s.ensureNotExpired(ctx, repo, request); err != nil {
			return err
		}

		if request.OfferType == enums.OfferTypeCustom {
			accepted, err := repo.MarkAccepted(ctx, request.ID, respondable, now)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "accepting request")
			}
			if !accepted {
				return errAlreadyAccepted
			}
			request.Status = enums.ExchangeRequestStatusAccepted
			result = AcceptResult{Request: request}
			return nil
		}

		exchange := &models.Exchange{
			ID:                 uuid.New(),
			RequesterUserID:    request.RequesterUserID,
			RequesterLabID:     request.RequesterLabID,
			ReceiverUserID:     actorUserID,
			ReceiverLabID:      request.TargetOwnerLabID,
			RequesterListingID: *request.OfferListingID,
			RequesterQty:       *request.OfferQty,
			ReceiverListingID:  request.TargetListingID,
			ReceiverQty:        request.RequestedQty,
			Status:             enums.ExchangeStatusAccepted,
			StatusHistory: types.StatusHistory{}.Append(types.StatusChange{
				From:       enums.ExchangeStatusPending.String(),
				To:         enums.ExchangeStatusAccepted.String(),
				ActorLabID: actorLabID,
				At:         now,
			}),
			ExpiresAt: now.Add(s.cfg.ExchangeTTL),
		}
		if err := s.exchanges.WithTx(tx).Create(ctx, exchange); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "creating exchange")
		}

		linked, err := repo.LinkAcceptedExchange(ctx, request.ID, respondable, exchange.ID, now)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "linking exchange")
		}
		if !linked {
			return errAlreadyAccepted
		}

		// Both decrements are guarded; if either side lost its stock since
		// the request was created, the whole acceptance rolls back.
		inv := s.inventory.WithTx(tx)
		if err := inv.Decrement(ctx, request.TargetListingID, request.RequestedQty); err != nil {
			return err
		}
		if err := inv.Decrement(ctx, *request.OfferListingID, *request.OfferQty); err != nil {
			return err
		}
		// The counter tracks agreed barters, so it moves here rather than
		// at completion.
		if err := inv.BumpExchangedCount(ctx, request.TargetListingID); err != nil {
			return err
		}
		if err := inv.BumpExchangedCount(ctx, *request.OfferListingID); err != nil {
			return err
		}

		request.Status = enums.ExchangeRequestStatusAccepted
		request.LinkedExchangeID = &exchange.ID
		result = AcceptResult{Request: request, Exchange: exchange}
		return nil
	})
	if errors.Is(err, errAlreadyAccepted) {
		return s.replayAccepted(ctx, id)
	}
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// replayAccepted reloads a previously accepted request so duplicate
// acceptances render identically to the first success.
func (s *service) replayAccepted(ctx context.Context, id uuid.UUID) (*AcceptResult, error) {
	request, err := s.find(ctx, s.repo, id)
	if err != nil {
		return nil, err
	}
	if request.Status != enums.ExchangeRequestStatusAccepted {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "request cannot be accepted in its current state")
	}
	result := &AcceptResult{Request: request, AlreadyAccepted: true}
	if request.LinkedExchangeID != nil {
		exchange, err := s.exchanges.FindByID(ctx, *request.LinkedExchangeID)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "loading linked exchange")
		}
		result.Exchange = exchange
	}
	return result, nil
}

// Reject resolves the request against the requester. A reason is
// mandatory so the requester learns why.
func (s *service) Reject(ctx context.Context, id, actorLabID uuid.UUID, reason string) error {
	if strings.TrimSpace(reason) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "a reason is required to reject a request")
	}

	request, err := s.find(ctx, s.repo, id)
	if err != nil {
		return err
	}
	if request.TargetOwnerLabID != actorLabID {
		return pkgerrors.New(pkgerrors.CodeForbidden, "only the listing owner can reject the request")
	}
	if err := s.ensureNotExpired(ctx, s.repo, request); err != nil {
		return err
	}

	updated, err := s.repo.TransitionStatus(ctx, request.ID, respondable, enums.ExchangeRequestStatusRejected, &reason, time.Now().UTC())
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "rejecting request")
	}
	if !updated {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "request cannot be rejected in its current state")
	}
	return nil
}

func (s *service) Counter(ctx context.Context, id, actorLabID uuid.UUID, proposal types.CounterProposal) error {
	if proposal.Description == "" || proposal.Qty <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "counter proposals require a description and quantity")
	}

	request, err := s.find(ctx, s.repo, id)
	if err != nil {
		return err
	}
	if request.TargetOwnerLabID != actorLabID {
		return pkgerrors.New(pkgerrors.CodeForbidden, "only the listing owner can counter the request")
	}
	if err := s.ensureNotExpired(ctx, s.repo, request); err != nil {
		return err
	}

	from := []enums.ExchangeRequestStatus{
		enums.ExchangeRequestStatusPending,
		enums.ExchangeRequestStatusViewed,
	}
	updated, err := s.repo.SetCounterProposal(ctx, request.ID, from, proposal, time.Now().UTC())
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "countering request")
	}
	if !updated {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "request cannot be countered in its current state")
	}
	return nil
}

// Withdraw lets the requester pull an open proposal, optionally
// recording why.
func (s *service) Withdraw(ctx context.Context, id, actorLabID uuid.UUID, reason *string) error {
	request, err := s.find(ctx, s.repo, id)
	if err != nil {
		return err
	}
	if request.RequesterLabID != actorLabID {
		return pkgerrors.New(pkgerrors.CodeForbidden, "only the requester can withdraw the request")
	}
	if err := s.ensureNotExpired(ctx, s.repo, request); err != nil {
		return err
	}

	updated, err := s.repo.TransitionStatus(ctx, request.ID, respondable, enums.ExchangeRequestStatusWithdrawn, reason, time.Now().UTC())
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "withdrawing request")
	}
	if !updated {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "request cannot be withdrawn in its current state")
	}
	return nil
}

func (s *service) ExpireStale(ctx context.Context, now time.Time) (int64, error) {
	count, err := s.repo.ExpireStale(ctx, now)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "expiring stale requests")
	}
	return count, nil
}

func (s *service) find(ctx context.Context, repo Repository, id uuid.UUID) (*models.ExchangeRequest, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "request id is required")
	}
	request, err := repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "exchange request not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "loading exchange request")
	}
	return request, nil
}

// ensureNotExpired persists and reports lapsed requests before any
// response is attempted.
func (s *service) ensureNotExpired(ctx context.Context, repo Repository, request *models.ExchangeRequest) error {
	now := time.Now().UTC()
	if !request.ExpiredAt(now) {
		return nil
	}
	if _, err := repo.TransitionStatus(ctx, request.ID, respondable, enums.ExchangeRequestStatusExpired, nil, now); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "expiring request")
	}
	request.Status = enums.ExchangeRequestStatusExpired
	return pkgerrors.New(pkgerrors.CodeExpiredOffer, "exchange request has expired")
}
