package exchangerequests

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/mukhtabar/mukhtabar-backend/api/middleware"
	"github.com/mukhtabar/mukhtabar-backend/api/responses"
	"github.com/mukhtabar/mukhtabar-backend/api/validators"
	internalrequests "github.com/mukhtabar/mukhtabar-backend/internal/exchangerequests"
	"github.com/mukhtabar/mukhtabar-backend/internal/notifications"
	"github.com/mukhtabar/mukhtabar-backend/pkg/enums"
	pkgerrors "github.com/mukhtabar/mukhtabar-backend/pkg/errors"
	"github.com/mukhtabar/mukhtabar-backend/pkg/logger"
	"github.com/mukhtabar/mukhtabar-backend/pkg/pagination"
	"github.com/mukhtabar/mukhtabar-backend/pkg/types"
)

const (
	actionAccept  = "accept"
	actionReject  = "reject"
	actionCounter = "counter"
)

type createRequest struct {
	TargetListingID string  `json:"target_listing_id" validate:"required,uuid"`
	RequestedQty    int     `json:"requested_qty" validate:"required,gt=0"`
	OfferType       string  `json:"offer_type" validate:"required,oneof=existing_listing custom"`
	OfferListingID  *string `json:"offer_listing_id,omitempty" validate:"omitempty,uuid"`
	OfferQty        *int    `json:"offer_qty,omitempty" validate:"omitempty,gt=0"`
	OfferDesc       *string `json:"offer_description,omitempty"`
	OfferValue      *int64  `json:"offer_value_halalas,omitempty" validate:"omitempty,gt=0"`
	Message         *string `json:"message,omitempty"`
}

type respondRequest struct {
	Action  string           `json:"action" validate:"required,oneof=accept reject counter"`
	Reason  *string          `json:"reason,omitempty"`
	Counter *counterProposal `json:"counter,omitempty"`
}

type counterProposal struct {
	Description           string `json:"description" validate:"required,min=3"`
	Qty                   int    `json:"qty" validate:"required,gt=0"`
	EstimatedValueHalalas int64  `json:"estimated_value_halalas,omitempty"`
	Message               string `json:"message,omitempty"`
}

// Create submits a barter proposal against another lab's listing.
func Create(svc internalrequests.Service, notifier notifications.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "exchange requests service unavailable"))
			return
		}

		userID, labID, err := middleware.Identity(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req createRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		targetID, err := uuid.Parse(req.TargetListingID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "target_listing_id must be a valid uuid"))
			return
		}
		offerType, err := enums.ParseOfferType(req.OfferType)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid offer type"))
			return
		}

		input := internalrequests.CreateInput{
			RequesterUserID: userID,
			RequesterLabID:  labID,
			TargetListingID: targetID,
			RequestedQty:    req.RequestedQty,
			OfferType:       offerType,
			OfferQty:        req.OfferQty,
			OfferDesc:       req.OfferDesc,
			OfferValue:      req.OfferValue,
			Message:         req.Message,
		}
		if req.OfferListingID != nil {
			offerID, err := uuid.Parse(*req.OfferListingID)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "offer_listing_id must be a valid uuid"))
				return
			}
			input.OfferListingID = &offerID
		}

		request, err := svc.Create(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if notifier != nil {
			notifier.Notify(r.Context(), notifications.Event{
				Type:    notifications.EventExchangeRequestCreated,
				LabID:   request.TargetOwnerLabID,
				Subject: "new exchange request",
				Metadata: map[string]any{
					"request_id": request.ID,
					"listing_id": request.TargetListingID,
				},
			})
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, request)
	}
}

// Detail returns one request visible to either participant.
func Detail(svc internalrequests.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "exchange requests service unavailable"))
			return
		}

		_, labID, err := middleware.Identity(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		id, err := validators.ParseUUIDParam(r, "requestId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		request, err := svc.Get(r.Context(), id, labID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, request)
	}
}

// List pages through the acting lab's requests. The direction query
// selects incoming (against its listings, the default) or outgoing
// (made by it).
func List(svc internalrequests.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "exchange requests service unavailable"))
			return
		}

		_, labID, err := middleware.Identity(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		params := pagination.Params{
			Limit:  limit,
			Cursor: strings.TrimSpace(r.URL.Query().Get("cursor")),
		}

		var result any
		switch direction := strings.TrimSpace(r.URL.Query().Get("direction")); direction {
		case "", "incoming":
			result, err = svc.ListIncoming(r.Context(), labID, params)
		case "outgoing":
			result, err = svc.ListOutgoing(r.Context(), labID, params)
		default:
			err = pkgerrors.New(pkgerrors.CodeValidation, "direction must be incoming or outgoing")
		}
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

// MarkViewed records that the receiving lab has opened the request.
func MarkViewed(svc internalrequests.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "exchange requests service unavailable"))
			return
		}

		_, labID, err := middleware.Identity(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		id, err := validators.ParseUUIDParam(r, "requestId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := svc.MarkViewed(r.Context(), id, labID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]bool{"viewed": true})
	}
}

// Respond lets the listing owner accept, reject, or counter a request.
// Accepting a listing-backed offer opens an exchange and places quantity
// holds on both listings in the same transaction.
func Respond(svc internalrequests.Service, notifier notifications.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "exchange requests service unavailable"))
			return
		}

		userID, labID, err := middleware.Identity(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		id, err := validators.ParseUUIDParam(r, "requestId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req respondRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload any
		switch req.Action {
		case actionAccept:
			result, err := svc.Accept(r.Context(), id, userID, labID)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
			payload = result
			notifyResponded(r, notifier, result.Request.RequesterLabID, id, actionAccept)
		case actionReject:
			reason := ""
			if req.Reason != nil {
				reason = strings.TrimSpace(*req.Reason)
			}
			if reason == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "a reason is required to reject a request"))
				return
			}
			if err := svc.Reject(r.Context(), id, labID, reason); err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
			payload = map[string]string{"status": string(enums.ExchangeRequestStatusRejected)}
		case actionCounter:
			if req.Counter == nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "counter proposal is required"))
				return
			}
			proposal := types.CounterProposal{
				Description:           strings.TrimSpace(req.Counter.Description),
				Qty:                   req.Counter.Qty,
				EstimatedValueHalalas: req.Counter.EstimatedValueHalalas,
				Message:               req.Counter.Message,
			}
			if err := svc.Counter(r.Context(), id, labID, proposal); err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
			payload = map[string]string{"status": string(enums.ExchangeRequestStatusCounterOffer)}
		default:
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "action must be accept, reject, or counter"))
			return
		}

		responses.WriteSuccess(w, payload)
	}
}

func notifyResponded(r *http.Request, notifier notifications.Service, labID uuid.UUID, requestID uuid.UUID, action string) {
	if notifier == nil {
		return
	}
	notifier.Notify(r.Context(), notifications.Event{
		Type:    notifications.EventExchangeRequestResponded,
		LabID:   labID,
		Subject: "exchange request " + action + "ed",
		Metadata: map[string]any{
			"request_id": requestID,
			"action":     action,
		},
	})
}

type withdrawRequest struct {
	Reason *string `json:"reason,omitempty"`
}

// Withdraw lets the requester pull an open proposal, optionally saying
// why. The body may be omitted entirely.
func Withdraw(svc internalrequests.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "exchange requests service unavailable"))
			return
		}

		_, labID, err := middleware.Identity(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		id, err := validators.ParseUUIDParam(r, "requestId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req withdrawRequest
		if r.ContentLength != 0 {
			if err := validators.DecodeJSONBody(r, &req); err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
		}
		var reason *string
		if req.Reason != nil {
			if trimmed := strings.TrimSpace(*req.Reason); trimmed != "" {
				reason = &trimmed
			}
		}

		if err := svc.Withdraw(r.Context(), id, labID, reason); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"status": string(enums.ExchangeRequestStatusWithdrawn)})
	}
}
