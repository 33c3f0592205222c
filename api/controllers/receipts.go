package controllers

import (
	"mime"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/splittab/splittab-backend/api/responses"
	"github.com/splittab/splittab-backend/internal/bills"
	"github.com/splittab/splittab-backend/internal/receipts"
	"github.com/splittab/splittab-backend/pkg/db/models"
	"github.com/splittab/splittab-backend/pkg/enums"
	pkgerrors "github.com/splittab/splittab-backend/pkg/errors"
	"github.com/splittab/splittab-backend/pkg/logger"
)

type scanView struct {
	ID        string           `json:"id"`
	Status    enums.ScanStatus `json:"status"`
	ItemCount int              `json:"item_count"`
	Error     *string          `json:"error,omitempty"`
	CreatedAt time.Time        `json:"created_at"`
	UpdatedAt time.Time        `json:"updated_at"`
}

func toScanView(scan *models.ReceiptScan) scanView {
	return scanView{
		ID:        scan.ID.String(),
		Status:    scan.Status,
		ItemCount: scan.ItemCount,
		Error:     scan.Error,
		CreatedAt: scan.CreatedAt,
		UpdatedAt: scan.UpdatedAt,
	}
}

// ReceiptUpload accepts a raw receipt image in the request body and enqueues
// it for extraction. The response carries the scan id to poll.
func ReceiptUpload(billSvc bills.Service, scanSvc receipts.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if billSvc == nil || scanSvc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "receipt service unavailable"))
			return
		}

		bill, err := ownerBillFromRequest(r, billSvc)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		contentType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid content type"))
			return
		}

		scan, err := scanSvc.Upload(ctx, bill, contentType, r.ContentLength, r.Body)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusAccepted, toScanView(scan))
	}
}

// ScanStatus reports where one receipt scan is in its lifecycle.
func ScanStatus(billSvc bills.Service, scanSvc receipts.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if billSvc == nil || scanSvc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "receipt service unavailable"))
			return
		}

		bill, err := ownerBillFromRequest(r, billSvc)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		scanID, err := uuid.Parse(chi.URLParam(r, "scanId"))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid scan id"))
			return
		}

		scan, err := scanSvc.GetScan(ctx, bill.ID, scanID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteSuccess(w, toScanView(scan))
	}
}
