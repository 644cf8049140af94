package orders

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/mukhtabar/mukhtabar-backend/api/middleware"
	"github.com/mukhtabar/mukhtabar-backend/api/responses"
	"github.com/mukhtabar/mukhtabar-backend/api/validators"
	"github.com/mukhtabar/mukhtabar-backend/internal/notifications"
	internalorders "github.com/mukhtabar/mukhtabar-backend/internal/orders"
	"github.com/mukhtabar/mukhtabar-backend/pkg/enums"
	pkgerrors "github.com/mukhtabar/mukhtabar-backend/pkg/errors"
	"github.com/mukhtabar/mukhtabar-backend/pkg/logger"
	"github.com/mukhtabar/mukhtabar-backend/pkg/pagination"
)

type createRequest struct {
	PaymentMethod   string        `json:"payment_method" validate:"required,oneof=moyasar wallet cod"`
	DiscountHalalas int64         `json:"discount_halalas,omitempty" validate:"omitempty,gte=0"`
	Items           []itemRequest `json:"items" validate:"required,min=1,dive"`
}

type itemRequest struct {
	ListingID string `json:"listing_id" validate:"required,uuid"`
	Quantity  int    `json:"quantity" validate:"required,gt=0"`
}

type confirmPaymentRequest struct {
	PaymentReference string `json:"payment_reference,omitempty"`
}

type statusRequest struct {
	Status string `json:"status" validate:"required"`
}

type cancelRequest struct {
	Reason string `json:"reason" validate:"required,min=3"`
}

// Create opens a pending order with computed totals. No stock or money
// moves until payment settles.
func Create(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
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

		method, err := enums.ParsePaymentMethod(req.PaymentMethod)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid payment method"))
			return
		}

		items := make([]internalorders.ItemInput, 0, len(req.Items))
		for _, item := range req.Items {
			listingID, err := uuid.Parse(item.ListingID)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "listing_id must be a valid uuid"))
				return
			}
			items = append(items, internalorders.ItemInput{ListingID: listingID, Quantity: item.Quantity})
		}

		order, err := svc.Create(r.Context(), internalorders.CreateInput{
			BuyerUserID:     userID,
			BuyerLabID:      labID,
			PaymentMethod:   method,
			DiscountHalalas: req.DiscountHalalas,
			Items:           items,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, order)
	}
}

// Detail returns an order visible to its buyer or seller.
func Detail(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}

		_, labID, err := middleware.Identity(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		id, err := validators.ParseUUIDParam(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		order, err := svc.Get(r.Context(), id, labID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, order)
	}
}

// List pages through orders where the acting lab is buyer or seller.
func List(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
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

// ConfirmPayment settles an order after the buyer completes payment.
// Replays of an already settled order return the same success shape.
func ConfirmPayment(svc internalorders.Service, notifier notifications.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}

		_, labID, err := middleware.Identity(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		id, err := validators.ParseUUIDParam(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req confirmPaymentRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.ConfirmPayment(r.Context(), id, labID, strings.TrimSpace(req.PaymentReference))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if notifier != nil && !result.AlreadyProcessed {
			notifier.Notify(r.Context(), notifications.Event{
				Type:    notifications.EventOrderConfirmed,
				LabID:   result.Order.SellerLabID,
				Subject: "order confirmed",
				Metadata: map[string]any{
					"order_id":     result.Order.ID,
					"order_number": result.Order.OrderNumber,
				},
			})
		}
		responses.WriteSuccess(w, result)
	}
}

// UpdateStatus advances fulfillment one step at a time.
func UpdateStatus(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}

		_, labID, err := middleware.Identity(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		id, err := validators.ParseUUIDParam(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req statusRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		status, err := enums.ParseOrderStatus(req.Status)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid order status"))
			return
		}

		order, err := svc.UpdateStatus(r.Context(), id, labID, status)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, order)
	}
}

// Cancel aborts an order before shipment, restoring any applied stock and
// refunding captured wallet payments.
func Cancel(svc internalorders.Service, notifier notifications.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}

		_, labID, err := middleware.Identity(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		id, err := validators.ParseUUIDParam(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req cancelRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		order, err := svc.Cancel(r.Context(), id, labID, strings.TrimSpace(req.Reason))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if notifier != nil {
			counterparty := order.SellerLabID
			if labID == order.SellerLabID {
				counterparty = order.BuyerLabID
			}
			notifier.Notify(r.Context(), notifications.Event{
				Type:    notifications.EventOrderCancelled,
				LabID:   counterparty,
				Subject: "order cancelled",
				Metadata: map[string]any{
					"order_id": order.ID,
					"reason":   req.Reason,
				},
			})
		}
		responses.WriteSuccess(w, order)
	}
}
