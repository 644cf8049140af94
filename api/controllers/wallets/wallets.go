package wallets

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/mukhtabar/mukhtabar-backend/api/middleware"
	"github.com/mukhtabar/mukhtabar-backend/api/responses"
	"github.com/mukhtabar/mukhtabar-backend/api/validators"
	"github.com/mukhtabar/mukhtabar-backend/internal/notifications"
	internalwallets "github.com/mukhtabar/mukhtabar-backend/internal/wallets"
	"github.com/mukhtabar/mukhtabar-backend/pkg/db/models"
	"github.com/mukhtabar/mukhtabar-backend/pkg/enums"
	pkgerrors "github.com/mukhtabar/mukhtabar-backend/pkg/errors"
	"github.com/mukhtabar/mukhtabar-backend/pkg/logger"
	"github.com/mukhtabar/mukhtabar-backend/pkg/pagination"
)

type depositRequest struct {
	AmountHalalas int64   `json:"amount_halalas" validate:"required,gt=0"`
	Reference     *string `json:"reference,omitempty"`
}

type transferRequest struct {
	ToLabID       string  `json:"to_lab_id" validate:"required,uuid"`
	AmountHalalas int64   `json:"amount_halalas" validate:"required,gt=0"`
	Description   string  `json:"description,omitempty"`
	Reference     *string `json:"reference,omitempty"`
}

type withdrawRequest struct {
	AmountHalalas int64  `json:"amount_halalas" validate:"required,gt=0"`
	BankAccountID string `json:"bank_account_id" validate:"required,uuid"`
}

type resolveWithdrawalRequest struct {
	Approve bool   `json:"approve"`
	Reason  string `json:"reason,omitempty"`
}

type adjustRequest struct {
	AmountHalalas int64  `json:"amount_halalas" validate:"required,gt=0"`
	Description   string `json:"description" validate:"required,min=3"`
}

// Me returns the acting lab's wallet, provisioning it on first touch.
func Me(svc internalwallets.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "wallets service unavailable"))
			return
		}

		_, labID, err := middleware.Identity(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		wallet, err := svc.EnsureWallet(r.Context(), labID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, wallet)
	}
}

// Transactions pages through the acting lab's ledger entries, newest first.
func Transactions(svc internalwallets.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "wallets service unavailable"))
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

		list, err := svc.ListTransactions(r.Context(), labID, pagination.Params{
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

// Deposit tops up the acting lab's wallet.
func Deposit(svc internalwallets.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "wallets service unavailable"))
			return
		}

		_, labID, err := middleware.Identity(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req depositRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		txn, err := svc.Deposit(r.Context(), labID, req.AmountHalalas, req.Reference)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, txn)
	}
}

// Transfer moves funds from the acting lab to another lab atomically.
func Transfer(svc internalwallets.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "wallets service unavailable"))
			return
		}

		_, labID, err := middleware.Identity(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req transferRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		toLabID, err := uuid.Parse(req.ToLabID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "to_lab_id must be a valid uuid"))
			return
		}

		result, err := svc.Transfer(r.Context(), internalwallets.TransferInput{
			FromLabID:   labID,
			ToLabID:     toLabID,
			Amount:      req.AmountHalalas,
			Reference:   req.Reference,
			Description: strings.TrimSpace(req.Description),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, result)
	}
}

// Withdraw places a payout hold against the acting lab's balance.
func Withdraw(svc internalwallets.Service, notifier notifications.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "wallets service unavailable"))
			return
		}

		_, labID, err := middleware.Identity(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req withdrawRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		bankAccountID, err := uuid.Parse(req.BankAccountID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "bank_account_id must be a valid uuid"))
			return
		}

		txn, err := svc.Withdraw(r.Context(), internalwallets.WithdrawInput{
			LabID:         labID,
			Amount:        req.AmountHalalas,
			BankAccountID: bankAccountID,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if notifier != nil {
			notifier.Notify(r.Context(), notifications.Event{
				Type:    notifications.EventWithdrawalRequested,
				LabID:   labID,
				Subject: "withdrawal requested",
				Metadata: map[string]any{
					"transaction_id": txn.ID,
					"amount_halalas": txn.AmountHalalas,
				},
			})
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, txn)
	}
}

// ResolveWithdrawal confirms or fails a pending payout. Reaches production
// labs only through the back-office gateway.
func ResolveWithdrawal(svc internalwallets.Service, repo internalwallets.Repository, notifier notifications.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "wallets service unavailable"))
			return
		}

		id, err := validators.ParseUUIDParam(r, "transactionId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req resolveWithdrawalRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var txn *models.WalletTransaction
		if req.Approve {
			txn, err = svc.ConfirmWithdrawal(r.Context(), id)
		} else {
			reason := strings.TrimSpace(req.Reason)
			if reason == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "reason is required when rejecting a withdrawal"))
				return
			}
			txn, err = svc.FailWithdrawal(r.Context(), id, reason)
		}
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if notifier != nil && repo != nil {
			if wallet, walletErr := repo.FindWalletByID(r.Context(), txn.WalletID); walletErr == nil {
				notifier.Notify(r.Context(), notifications.Event{
					Type:    notifications.EventWithdrawalResolved,
					LabID:   wallet.LabID,
					Subject: "withdrawal resolved",
					Metadata: map[string]any{
						"transaction_id": id,
						"approved":       req.Approve,
					},
				})
			}
		}
		responses.WriteSuccess(w, txn)
	}
}

// AddFunds applies a manual credit to a lab's balance.
func AddFunds(svc internalwallets.Service, logg *logger.Logger) http.HandlerFunc {
	return adjustHandler(svc, logg, internalwallets.Service.Credit)
}

// DeductFunds applies a manual debit against a lab's balance. Fails on
// insufficient funds like any other debit.
func DeductFunds(svc internalwallets.Service, logg *logger.Logger) http.HandlerFunc {
	return adjustHandler(svc, logg, internalwallets.Service.Debit)
}

func adjustHandler(svc internalwallets.Service, logg *logger.Logger, move func(internalwallets.Service, context.Context, internalwallets.MovementInput) (*models.WalletTransaction, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "wallets service unavailable"))
			return
		}

		labID, err := validators.ParseUUIDParam(r, "labId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req adjustRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		txn, err := move(svc, r.Context(), internalwallets.MovementInput{
			LabID:       labID,
			Amount:      req.AmountHalalas,
			Category:    enums.TransactionCategoryAdjustment,
			Description: strings.TrimSpace(req.Description),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, txn)
	}
}
