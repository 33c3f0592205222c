package controllers

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/splittab/splittab-backend/internal/bills"
	"github.com/splittab/splittab-backend/internal/claims"
	"github.com/splittab/splittab-backend/pkg/db/models"
	"github.com/splittab/splittab-backend/pkg/db/types"
	"github.com/splittab/splittab-backend/pkg/enums"
	pkgerrors "github.com/splittab/splittab-backend/pkg/errors"
)

type itemView struct {
	ID         string  `json:"id"`
	Name       string  `json:"name"`
	Quantity   float64 `json:"quantity"`
	PriceCents int64   `json:"price_cents"`
	TotalCents int64   `json:"total_cents"`
	Position   int     `json:"position"`
}

type billView struct {
	ID           string     `json:"id"`
	ShareToken   string     `json:"share_token"`
	Title        string     `json:"title"`
	Currency     string     `json:"currency"`
	PayerName    string     `json:"payer_name"`
	PaypalHandle *string    `json:"paypal_handle,omitempty"`
	Items        []itemView `json:"items"`
	CreatedAt    time.Time  `json:"created_at"`
}

// ownerBillView adds the owner capability on top of the shared view. It is
// only ever serialized on owner-token routes.
type ownerBillView struct {
	billView
	OwnerToken string `json:"owner_token"`
}

type selectionView struct {
	ID              string               `json:"id"`
	SessionID       *string              `json:"session_id,omitempty"`
	DisplayName     string               `json:"display_name"`
	Items           types.ItemQuantities `json:"items"`
	TipCents        int64                `json:"tip_cents"`
	PaymentMethod   *enums.PaymentMethod `json:"payment_method,omitempty"`
	Paid            bool                 `json:"paid"`
	ItemsTotalCents int64                `json:"items_total_cents"`
	TotalCents      int64                `json:"total_cents"`
	PayLink         string               `json:"pay_link,omitempty"`
	OversoldItemIDs []string             `json:"oversold_item_ids,omitempty"`
	CreatedAt       time.Time            `json:"created_at"`
}

type itemBreakdownView struct {
	Item           itemView `json:"item"`
	Remaining      float64  `json:"remaining"`
	ClaimedTotal   float64  `json:"claimed_total"`
	Oversold       float64  `json:"oversold"`
	FullyAllocated bool     `json:"fully_allocated"`
}

type liveClaimView struct {
	ItemID      string    `json:"item_id"`
	SessionID   string    `json:"session_id"`
	DisplayName string    `json:"display_name"`
	Quantity    float64   `json:"quantity"`
	ExpiresAt   time.Time `json:"expires_at"`
}

type breakdownView struct {
	Items      []itemBreakdownView `json:"items"`
	LiveClaims []liveClaimView     `json:"live_claims"`
	Complete   bool                `json:"complete"`
}

func toItemView(item models.BillItem) itemView {
	return itemView{
		ID:         item.ID.String(),
		Name:       item.Name,
		Quantity:   item.Quantity,
		PriceCents: item.PriceCents,
		TotalCents: item.TotalCents(),
		Position:   item.Position,
	}
}

func toBillView(bill *models.Bill) billView {
	items := make([]itemView, 0, len(bill.Items))
	for _, item := range bill.Items {
		items = append(items, toItemView(item))
	}
	return billView{
		ID:           bill.ID.String(),
		ShareToken:   bill.ShareToken,
		Title:        bill.Title,
		Currency:     bill.Currency,
		PayerName:    bill.PayerName,
		PaypalHandle: bill.PaypalHandle,
		Items:        items,
		CreatedAt:    bill.CreatedAt,
	}
}

func toOwnerBillView(bill *models.Bill) ownerBillView {
	return ownerBillView{billView: toBillView(bill), OwnerToken: bill.OwnerToken}
}

func toSelectionView(summary claims.SelectionSummary) selectionView {
	return selectionView{
		ID:              summary.Selection.ID.String(),
		SessionID:       summary.Selection.SessionID,
		DisplayName:     summary.Selection.DisplayName,
		Items:           summary.Selection.Items,
		TipCents:        summary.Selection.TipCents,
		PaymentMethod:   summary.Selection.PaymentMethod,
		Paid:            summary.Selection.Paid,
		ItemsTotalCents: summary.ItemsTotalCents,
		TotalCents:      summary.TotalCents,
		PayLink:         summary.PayLink,
		OversoldItemIDs: summary.OversoldItemIDs,
		CreatedAt:       summary.Selection.CreatedAt,
	}
}

func toSelectionViews(summaries []claims.SelectionSummary) []selectionView {
	views := make([]selectionView, 0, len(summaries))
	for _, summary := range summaries {
		views = append(views, toSelectionView(summary))
	}
	return views
}

func toBreakdownView(breakdown *claims.Breakdown) breakdownView {
	items := make([]itemBreakdownView, 0, len(breakdown.Items))
	for _, item := range breakdown.Items {
		items = append(items, itemBreakdownView{
			Item:           toItemView(item.Item),
			Remaining:      item.Remaining,
			ClaimedTotal:   item.ClaimedTotal,
			Oversold:       item.Oversold,
			FullyAllocated: item.FullyAllocated,
		})
	}
	return breakdownView{Items: items, LiveClaims: toLiveClaimViews(breakdown.LiveClaims), Complete: breakdown.Complete}
}

func toLiveClaimViews(liveClaims []claims.LiveClaim) []liveClaimView {
	views := make([]liveClaimView, 0, len(liveClaims))
	for _, claim := range liveClaims {
		views = append(views, liveClaimView{
			ItemID:      claim.ItemID,
			SessionID:   claim.SessionID,
			DisplayName: claim.DisplayName,
			Quantity:    claim.Quantity,
			ExpiresAt:   claim.ExpiresAt,
		})
	}
	return views
}

// ownerBillFromRequest resolves the bill addressed by the ownerToken URL
// param. A bad or unknown token surfaces as not-found so the response does
// not confirm whether a guessed token was close.
func ownerBillFromRequest(r *http.Request, svc bills.Service) (*models.Bill, error) {
	token := strings.TrimSpace(chi.URLParam(r, "ownerToken"))
	if token == "" {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "bill not found")
	}
	return svc.GetByOwnerToken(r.Context(), token)
}

// sharedBillFromRequest resolves the bill addressed by the shareToken URL
// param.
func sharedBillFromRequest(r *http.Request, svc bills.Service) (*models.Bill, error) {
	token := strings.TrimSpace(chi.URLParam(r, "shareToken"))
	if token == "" {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "bill not found")
	}
	return svc.GetByShareToken(r.Context(), token)
}
