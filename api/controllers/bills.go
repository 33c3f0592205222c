package controllers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/splittab/splittab-backend/api/responses"
	"github.com/splittab/splittab-backend/api/validators"
	"github.com/splittab/splittab-backend/internal/bills"
	pkgerrors "github.com/splittab/splittab-backend/pkg/errors"
	"github.com/splittab/splittab-backend/pkg/logger"
)

type billItemPayload struct {
	Name       string  `json:"name" validate:"required,min=1,max=200"`
	Quantity   float64 `json:"quantity" validate:"required,gt=0"`
	PriceCents int64   `json:"price_cents" validate:"gte=0"`
}

func (p billItemPayload) toInput() bills.ItemInput {
	return bills.ItemInput{Name: p.Name, Quantity: p.Quantity, PriceCents: p.PriceCents}
}

type billCreatePayload struct {
	Title        string            `json:"title" validate:"required,min=1,max=200"`
	PayerName    string            `json:"payer_name" validate:"required,min=1,max=100"`
	Currency     string            `json:"currency,omitempty" validate:"omitempty,len=3"`
	PaypalHandle *string           `json:"paypal_handle,omitempty"`
	Items        []billItemPayload `json:"items,omitempty" validate:"omitempty,dive"`
}

type billUpdatePayload struct {
	Title        *string `json:"title,omitempty" validate:"omitempty,min=1,max=200"`
	PayerName    *string `json:"payer_name,omitempty" validate:"omitempty,min=1,max=100"`
	Currency     *string `json:"currency,omitempty" validate:"omitempty,len=3"`
	PaypalHandle *string `json:"paypal_handle,omitempty"`
}

// BillCreate mints a new bill together with its owner and share links.
func BillCreate(svc bills.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "bill service unavailable"))
			return
		}

		var payload billCreatePayload
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		input := bills.CreateBillInput{
			Title:        payload.Title,
			PayerName:    payload.PayerName,
			Currency:     payload.Currency,
			PaypalHandle: payload.PaypalHandle,
		}
		for _, item := range payload.Items {
			input.Items = append(input.Items, item.toInput())
		}

		bill, err := svc.CreateBill(ctx, input)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, toOwnerBillView(bill))
	}
}

// BillGet returns the owner view of a bill, both capability tokens included.
func BillGet(svc bills.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "bill service unavailable"))
			return
		}

		bill, err := ownerBillFromRequest(r, svc)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteSuccess(w, toOwnerBillView(bill))
	}
}

// BillUpdate adjusts the mutable bill fields; absent fields stay untouched.
func BillUpdate(svc bills.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "bill service unavailable"))
			return
		}

		bill, err := ownerBillFromRequest(r, svc)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		var payload billUpdatePayload
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		updated, err := svc.UpdateBill(ctx, bill, bills.UpdateBillInput{
			Title:        payload.Title,
			PayerName:    payload.PayerName,
			Currency:     payload.Currency,
			PaypalHandle: payload.PaypalHandle,
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteSuccess(w, toOwnerBillView(updated))
	}
}

// ItemAdd appends one line to the bill.
func ItemAdd(svc bills.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "bill service unavailable"))
			return
		}

		bill, err := ownerBillFromRequest(r, svc)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		var payload billItemPayload
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		item, err := svc.AddItem(ctx, bill, payload.toInput())
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, toItemView(*item))
	}
}

// ItemUpdate replaces the name, quantity, and price of one line. The service
// rejects edits with a conflict once anyone has claimed the item.
func ItemUpdate(svc bills.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "bill service unavailable"))
			return
		}

		bill, err := ownerBillFromRequest(r, svc)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		itemID, err := uuid.Parse(chi.URLParam(r, "itemId"))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid item id"))
			return
		}

		var payload billItemPayload
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		item, err := svc.UpdateItem(ctx, bill, itemID, payload.toInput())
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteSuccess(w, toItemView(*item))
	}
}

// ItemDelete removes one line. Items referenced by a submitted selection or
// held by a live claim refuse deletion with a conflict.
func ItemDelete(svc bills.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "bill service unavailable"))
			return
		}

		bill, err := ownerBillFromRequest(r, svc)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		itemID, err := uuid.Parse(chi.URLParam(r, "itemId"))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid item id"))
			return
		}

		if err := svc.DeleteItem(ctx, bill, itemID); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteSuccess(w, map[string]string{"status": "deleted"})
	}
}
