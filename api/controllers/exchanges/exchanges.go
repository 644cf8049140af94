package exchanges

import (
	"net/http"
	"strings"

	"github.com/mukhtabar/mukhtabar-backend/api/middleware"
	"github.com/mukhtabar/mukhtabar-backend/api/responses"
	"github.com/mukhtabar/mukhtabar-backend/api/validators"
	internalexchanges "github.com/mukhtabar/mukhtabar-backend/internal/exchanges"
	pkgerrors "github.com/mukhtabar/mukhtabar-backend/pkg/errors"
	"github.com/mukhtabar/mukhtabar-backend/pkg/logger"
	"github.com/mukhtabar/mukhtabar-backend/pkg/pagination"
)

const (
	actionNegotiate = "negotiate"
	actionConfirm   = "confirm"
	actionReject    = "reject"
	actionStart     = "start"
	actionComplete  = "complete"
	actionDispute   = "dispute"
	actionCancel    = "cancel"
)

type statusRequest struct {
	Action string `json:"action" validate:"required,oneof=negotiate confirm reject start complete dispute cancel"`
	Reason string `json:"reason,omitempty"`
}

// Detail returns an exchange visible to either participant.
func Detail(svc internalexchanges.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "exchanges service unavailable"))
			return
		}

		_, labID, err := middleware.Identity(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		id, err := validators.ParseUUIDParam(r, "exchangeId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		exchange, err := svc.Get(r.Context(), id, labID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, exchange)
	}
}

// List pages through the acting lab's exchanges, newest first.
func List(svc internalexchanges.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "exchanges service unavailable"))
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

		list, err := svc.ListByLab(r.Context(), labID, pagination.Params{
			Limit:  limit,
			Cursor: strings.TrimSpace(r.URL.Query().Get("cursor")),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, list)
	}
}

// UpdateStatus drives the exchange lifecycle. Completing and cancelling
// are idempotent: a replay renders the settled exchange as success.
func UpdateStatus(svc internalexchanges.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "exchanges service unavailable"))
			return
		}

		_, labID, err := middleware.Identity(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		id, err := validators.ParseUUIDParam(r, "exchangeId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req statusRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		reason := strings.TrimSpace(req.Reason)

		var exchange any
		switch req.Action {
		case actionNegotiate:
			exchange, err = svc.Negotiate(r.Context(), id, labID)
		case actionConfirm:
			exchange, err = svc.Confirm(r.Context(), id, labID)
		case actionReject:
			exchange, err = svc.Reject(r.Context(), id, labID, reason)
		case actionStart:
			exchange, err = svc.Start(r.Context(), id, labID)
		case actionComplete:
			exchange, err = svc.Complete(r.Context(), id, labID)
		case actionDispute:
			exchange, err = svc.Dispute(r.Context(), id, labID, reason)
		case actionCancel:
			exchange, err = svc.Cancel(r.Context(), id, labID, reason)
		default:
			err = pkgerrors.New(pkgerrors.CodeValidation, "unsupported action")
		}
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, exchange)
	}
}
