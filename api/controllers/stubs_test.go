package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/splittab/splittab-backend/internal/bills"
	"github.com/splittab/splittab-backend/internal/claims"
	"github.com/splittab/splittab-backend/internal/feed"
	"github.com/splittab/splittab-backend/pkg/db/models"
	pkgerrors "github.com/splittab/splittab-backend/pkg/errors"
)

type stubBillService struct {
	bill      *models.Bill
	item      *models.BillItem
	err       error
	deleteErr error
	gotCreate bills.CreateBillInput
	gotUpdate bills.UpdateBillInput
	gotItem   bills.ItemInput
	deletedID uuid.UUID
}

func (s *stubBillService) CreateBill(_ context.Context, input bills.CreateBillInput) (*models.Bill, error) {
	s.gotCreate = input
	if s.err != nil {
		return nil, s.err
	}
	return s.bill, nil
}

func (s *stubBillService) GetByOwnerToken(_ context.Context, token string) (*models.Bill, error) {
	if s.err != nil {
		return nil, s.err
	}
	if s.bill == nil || s.bill.OwnerToken != token {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "bill not found")
	}
	return s.bill, nil
}

func (s *stubBillService) GetByShareToken(_ context.Context, token string) (*models.Bill, error) {
	if s.err != nil {
		return nil, s.err
	}
	if s.bill == nil || s.bill.ShareToken != token {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "bill not found")
	}
	return s.bill, nil
}

func (s *stubBillService) UpdateBill(_ context.Context, bill *models.Bill, input bills.UpdateBillInput) (*models.Bill, error) {
	s.gotUpdate = input
	if s.err != nil {
		return nil, s.err
	}
	return bill, nil
}

func (s *stubBillService) AddItem(_ context.Context, _ *models.Bill, input bills.ItemInput) (*models.BillItem, error) {
	s.gotItem = input
	if s.err != nil {
		return nil, s.err
	}
	return s.item, nil
}

func (s *stubBillService) UpdateItem(_ context.Context, _ *models.Bill, _ uuid.UUID, input bills.ItemInput) (*models.BillItem, error) {
	s.gotItem = input
	if s.err != nil {
		return nil, s.err
	}
	return s.item, nil
}

func (s *stubBillService) DeleteItem(_ context.Context, _ *models.Bill, itemID uuid.UUID) error {
	s.deletedID = itemID
	return s.deleteErr
}

func (s *stubBillService) AddExtractedItems(_ context.Context, _ uuid.UUID, _ []bills.ItemInput) ([]models.BillItem, error) {
	return nil, s.err
}

type stubClaimService struct {
	summary    *claims.SelectionSummary
	summaries  []claims.SelectionSummary
	breakdown  *claims.Breakdown
	liveClaims []claims.LiveClaim
	err        error

	gotSubmit   claims.SubmitSelectionInput
	gotUpsert   []string
	gotQuantity float64
	gotRelease  []string
	gotPaid     *bool
	gotViewer   string
}

func (s *stubClaimService) SubmitSelection(_ context.Context, _ *models.Bill, input claims.SubmitSelectionInput) (*claims.SelectionSummary, error) {
	s.gotSubmit = input
	if s.err != nil {
		return nil, s.err
	}
	return s.summary, nil
}

func (s *stubClaimService) ListSelections(_ context.Context, _ *models.Bill) ([]claims.SelectionSummary, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.summaries, nil
}

func (s *stubClaimService) SetPaid(_ context.Context, _, _ uuid.UUID, paid bool) error {
	s.gotPaid = &paid
	return s.err
}

func (s *stubClaimService) UpsertLiveClaim(_ context.Context, _ *models.Bill, itemID, sessionID, displayName string, quantity float64) error {
	s.gotUpsert = []string{itemID, sessionID, displayName}
	s.gotQuantity = quantity
	return s.err
}

func (s *stubClaimService) ReleaseLiveClaim(_ context.Context, _ uuid.UUID, itemID, sessionID string) error {
	s.gotRelease = []string{itemID, sessionID}
	return s.err
}

func (s *stubClaimService) ListLiveClaims(_ context.Context, _ uuid.UUID) ([]claims.LiveClaim, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.liveClaims, nil
}

func (s *stubClaimService) Breakdown(_ context.Context, _ *models.Bill, viewerSessionID string) (*claims.Breakdown, error) {
	s.gotViewer = viewerSessionID
	if s.err != nil {
		return nil, s.err
	}
	return s.breakdown, nil
}

type stubBroker struct {
	events    chan feed.Event
	cancelled bool
}

func (s *stubBroker) Publish(_ context.Context, _ feed.Event) error { return nil }

func (s *stubBroker) Subscribe(_ string) (<-chan feed.Event, func()) {
	return s.events, func() { s.cancelled = true }
}

func testBill() *models.Bill {
	handle := "maria"
	return &models.Bill{
		ID:           uuid.New(),
		OwnerToken:   "owner-token-abc",
		ShareToken:   "share-xyz",
		Title:        "Dinner at Luigi's",
		Currency:     "EUR",
		PayerName:    "Maria",
		PaypalHandle: &handle,
		Items: []models.BillItem{
			{ID: uuid.New(), Name: "Pizza", Quantity: 4, PriceCents: 1000, Position: 0},
			{ID: uuid.New(), Name: "Wine", Quantity: 2, PriceCents: 1800, Position: 1},
		},
		CreatedAt: time.Now(),
	}
}

func withURLParams(req *http.Request, pairs ...string) *http.Request {
	rc := chi.NewRouteContext()
	for i := 0; i+1 < len(pairs); i += 2 {
		rc.URLParams.Add(pairs[i], pairs[i+1])
	}
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rc))
}
