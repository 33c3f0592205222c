package controllers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/splittab/splittab-backend/api/responses"
	"github.com/splittab/splittab-backend/api/validators"
	"github.com/splittab/splittab-backend/internal/bills"
	"github.com/splittab/splittab-backend/internal/claims"
	"github.com/splittab/splittab-backend/pkg/enums"
	pkgerrors "github.com/splittab/splittab-backend/pkg/errors"
	"github.com/splittab/splittab-backend/pkg/logger"
)

type selectionPaidPayload struct {
	Paid *bool `json:"paid" validate:"required"`
}

// OwnerSelectionsList returns all selections with their money view so the
// payer can reconcile who owes what.
func OwnerSelectionsList(billSvc bills.Service, claimSvc claims.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if billSvc == nil || claimSvc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "bill service unavailable"))
			return
		}

		bill, err := ownerBillFromRequest(r, billSvc)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		summaries, err := claimSvc.ListSelections(ctx, bill)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteSuccess(w, toSelectionViews(summaries))
	}
}

// OwnerSelectionCreate records a selection on behalf of someone without a
// browser session, for example a guest who told the payer their share out
// loud. These selections carry no session id and never replace an existing
// one.
func OwnerSelectionCreate(billSvc bills.Service, claimSvc claims.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if billSvc == nil || claimSvc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "bill service unavailable"))
			return
		}

		bill, err := ownerBillFromRequest(r, billSvc)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		var payload selectionSubmitPayload
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		input := claims.SubmitSelectionInput{
			DisplayName: validators.SanitizeDisplayName(payload.DisplayName),
			Items:       payload.Items,
			TipCents:    payload.TipCents,
		}
		if payload.PaymentMethod != nil {
			method, err := enums.ParsePaymentMethod(*payload.PaymentMethod)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid payment method"))
				return
			}
			input.PaymentMethod = &method
		}

		summary, err := claimSvc.SubmitSelection(ctx, bill, input)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, toSelectionView(*summary))
	}
}

// SelectionSetPaid marks one selection settled (or unsettled again when the
// payer fat-fingered it).
func SelectionSetPaid(billSvc bills.Service, claimSvc claims.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if billSvc == nil || claimSvc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "bill service unavailable"))
			return
		}

		bill, err := ownerBillFromRequest(r, billSvc)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		selectionID, err := uuid.Parse(chi.URLParam(r, "selectionId"))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid selection id"))
			return
		}

		var payload selectionPaidPayload
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		if err := claimSvc.SetPaid(ctx, bill.ID, selectionID, *payload.Paid); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteSuccess(w, map[string]bool{"paid": *payload.Paid})
	}
}
