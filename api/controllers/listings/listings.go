package listings

import (
	"net/http"
	"strings"

	"github.com/mukhtabar/mukhtabar-backend/api/middleware"
	"github.com/mukhtabar/mukhtabar-backend/api/responses"
	"github.com/mukhtabar/mukhtabar-backend/api/validators"
	internallistings "github.com/mukhtabar/mukhtabar-backend/internal/listings"
	"github.com/mukhtabar/mukhtabar-backend/pkg/enums"
	pkgerrors "github.com/mukhtabar/mukhtabar-backend/pkg/errors"
	"github.com/mukhtabar/mukhtabar-backend/pkg/logger"
	"github.com/mukhtabar/mukhtabar-backend/pkg/pagination"
)

type createRequest struct {
	Title        string  `json:"title" validate:"required,min=3,max=200"`
	Description  *string `json:"description,omitempty"`
	Kind         string  `json:"kind" validate:"required,oneof=sale exchange asset"`
	Quantity     int     `json:"quantity" validate:"required,gt=0"`
	PriceHalalas *int64  `json:"price_halalas,omitempty"`
}

type reviewRequest struct {
	Approve bool `json:"approve"`
}

// Create registers a new listing owned by the acting lab.
func Create(svc internallistings.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "listings service unavailable"))
			return
		}

		_, labID, err := middleware.Identity(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req createRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		kind, err := enums.ParseListingKind(req.Kind)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid listing kind"))
			return
		}

		listing, err := svc.Create(r.Context(), internallistings.CreateListingInput{
			OwnerLabID:   labID,
			Title:        strings.TrimSpace(req.Title),
			Description:  req.Description,
			Kind:         kind,
			Quantity:     req.Quantity,
			PriceHalalas: req.PriceHalalas,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, listing)
	}
}

// Detail returns a single listing.
func Detail(svc internallistings.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "listings service unavailable"))
			return
		}

		id, err := validators.ParseUUIDParam(r, "listingId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		listing, err := svc.Get(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, listing)
	}
}

// ListMine pages through the acting lab's own listings.
func ListMine(svc internallistings.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "listings service unavailable"))
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

// Review approves or rejects a pending listing. Reaches production labs
// only through the moderation gateway.
func Review(svc internallistings.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "listings service unavailable"))
			return
		}

		id, err := validators.ParseUUIDParam(r, "listingId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req reviewRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := svc.Review(r.Context(), id, req.Approve); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]bool{"approved": req.Approve})
	}
}
