package controllers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/splittab/splittab-backend/api/middleware"
	"github.com/splittab/splittab-backend/api/responses"
	"github.com/splittab/splittab-backend/api/validators"
	"github.com/splittab/splittab-backend/internal/bills"
	"github.com/splittab/splittab-backend/internal/claims"
	"github.com/splittab/splittab-backend/pkg/enums"
	pkgerrors "github.com/splittab/splittab-backend/pkg/errors"
	"github.com/splittab/splittab-backend/pkg/logger"
)

type sharedBillResponse struct {
	Bill      billView      `json:"bill"`
	Breakdown breakdownView `json:"breakdown"`
}

type liveClaimPayload struct {
	DisplayName string  `json:"display_name" validate:"required,min=1,max=100"`
	Quantity    float64 `json:"quantity" validate:"required,gt=0"`
}

type selectionSubmitPayload struct {
	DisplayName   string             `json:"display_name" validate:"required,min=1,max=100"`
	Items         map[string]float64 `json:"items" validate:"required,min=1"`
	TipCents      int64              `json:"tip_cents,omitempty"`
	PaymentMethod *string            `json:"payment_method,omitempty" validate:"omitempty,oneof=paypal cash"`
}

// SharedBillGet returns the guest view: the bill plus the live ledger
// breakdown, never the owner token.
func SharedBillGet(billSvc bills.Service, claimSvc claims.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if billSvc == nil || claimSvc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "bill service unavailable"))
			return
		}

		bill, err := sharedBillFromRequest(r, billSvc)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		breakdown, err := claimSvc.Breakdown(ctx, bill, middleware.SessionIDFromContext(ctx))
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteSuccess(w, sharedBillResponse{
			Bill:      toBillView(bill),
			Breakdown: toBreakdownView(breakdown),
		})
	}
}

// SharedBreakdown returns just the ledger view, cheap to poll as a fallback
// when the event stream is unavailable.
func SharedBreakdown(billSvc bills.Service, claimSvc claims.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if billSvc == nil || claimSvc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "bill service unavailable"))
			return
		}

		bill, err := sharedBillFromRequest(r, billSvc)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		breakdown, err := claimSvc.Breakdown(ctx, bill, middleware.SessionIDFromContext(ctx))
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteSuccess(w, toBreakdownView(breakdown))
	}
}

// SharedSelectionsList returns every submitted selection on the bill so
// guests can see who claimed what and who already paid.
func SharedSelectionsList(billSvc bills.Service, claimSvc claims.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if billSvc == nil || claimSvc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "bill service unavailable"))
			return
		}

		bill, err := sharedBillFromRequest(r, billSvc)
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

// SelectionSubmit finalizes the calling session's selection. A session that
// already submitted replaces its previous selection in full.
func SelectionSubmit(billSvc bills.Service, claimSvc claims.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if billSvc == nil || claimSvc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "bill service unavailable"))
			return
		}

		bill, err := sharedBillFromRequest(r, billSvc)
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
		if sessionID := middleware.SessionIDFromContext(ctx); sessionID != "" {
			input.SessionID = &sessionID
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

// LiveClaimUpsert records that the calling session is holding a quantity of
// one item while still composing. The hold expires on its own if the session
// goes quiet.
func LiveClaimUpsert(billSvc bills.Service, claimSvc claims.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if billSvc == nil || claimSvc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "bill service unavailable"))
			return
		}

		sessionID := middleware.SessionIDFromContext(ctx)
		if sessionID == "" {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "session header required for live claims"))
			return
		}

		bill, err := sharedBillFromRequest(r, billSvc)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		itemID, err := uuid.Parse(chi.URLParam(r, "itemId"))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid item id"))
			return
		}

		var payload liveClaimPayload
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		name := validators.SanitizeDisplayName(payload.DisplayName)
		if err := claimSvc.UpsertLiveClaim(ctx, bill, itemID.String(), sessionID, name, payload.Quantity); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteSuccess(w, map[string]string{"status": "claimed"})
	}
}

// LiveClaimRelease drops the calling session's hold on one item.
func LiveClaimRelease(billSvc bills.Service, claimSvc claims.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if billSvc == nil || claimSvc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "bill service unavailable"))
			return
		}

		sessionID := middleware.SessionIDFromContext(ctx)
		if sessionID == "" {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "session header required for live claims"))
			return
		}

		bill, err := sharedBillFromRequest(r, billSvc)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		itemID, err := uuid.Parse(chi.URLParam(r, "itemId"))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid item id"))
			return
		}

		if err := claimSvc.ReleaseLiveClaim(ctx, bill.ID, itemID.String(), sessionID); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteSuccess(w, map[string]string{"status": "released"})
	}
}

// LiveClaimsList returns the bill's current non-expired live claims for
// clients that only want the in-flight holds, not the full breakdown.
func LiveClaimsList(billSvc bills.Service, claimSvc claims.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if billSvc == nil || claimSvc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "bill service unavailable"))
			return
		}

		bill, err := sharedBillFromRequest(r, billSvc)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		liveClaims, err := claimSvc.ListLiveClaims(ctx, bill.ID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteSuccess(w, toLiveClaimViews(liveClaims))
	}
}
