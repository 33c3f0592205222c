package claims

import (
	"context"
	"strings"
	"testing"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/splittab/splittab-backend/internal/feed"
	"github.com/splittab/splittab-backend/pkg/db/models"
	"github.com/splittab/splittab-backend/pkg/enums"
	pkgerrors "github.com/splittab/splittab-backend/pkg/errors"
)

type fakeRepo struct {
	selections []models.Selection
	failCreate error
}

func (f *fakeRepo) Create(_ context.Context, selection *models.Selection) error {
	if f.failCreate != nil {
		return f.failCreate
	}
	if selection.ID == uuid.Nil {
		selection.ID = uuid.New()
	}
	f.selections = append(f.selections, *selection)
	return nil
}

func (f *fakeRepo) ReplaceForSession(ctx context.Context, selection *models.Selection) error {
	kept := f.selections[:0]
	for _, existing := range f.selections {
		if existing.BillID == selection.BillID && existing.SessionID != nil && *existing.SessionID == *selection.SessionID {
			continue
		}
		kept = append(kept, existing)
	}
	f.selections = kept
	return f.Create(ctx, selection)
}

func (f *fakeRepo) ListByBill(_ context.Context, billID uuid.UUID) ([]models.Selection, error) {
	var out []models.Selection
	for _, selection := range f.selections {
		if selection.BillID == billID {
			out = append(out, selection)
		}
	}
	return out, nil
}

func (f *fakeRepo) GetByID(_ context.Context, billID, selectionID uuid.UUID) (*models.Selection, error) {
	for _, selection := range f.selections {
		if selection.BillID == billID && selection.ID == selectionID {
			copied := selection
			return &copied, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeRepo) SetPaid(_ context.Context, billID, selectionID uuid.UUID, paid bool) error {
	for i, selection := range f.selections {
		if selection.BillID == billID && selection.ID == selectionID {
			f.selections[i].Paid = paid
			return nil
		}
	}
	return gorm.ErrRecordNotFound
}

func (f *fakeRepo) AnyReferencingItem(_ context.Context, billID, itemID uuid.UUID) (bool, error) {
	key := itemID.String()
	for _, selection := range f.selections {
		if selection.BillID == billID {
			if qty, ok := selection.Items[key]; ok && qty > 0 {
				return true, nil
			}
		}
	}
	return false, nil
}

type fakeLiveStore struct {
	claims           []LiveClaim
	releasedSessions []string
}

func (f *fakeLiveStore) Upsert(_ context.Context, billID, itemID, sessionID, displayName string, quantity float64) error {
	f.claims = append(f.claims, LiveClaim{
		BillID:      billID,
		ItemID:      itemID,
		SessionID:   sessionID,
		DisplayName: displayName,
		Quantity:    quantity,
	})
	return nil
}

func (f *fakeLiveStore) ListByBill(_ context.Context, billID string) ([]LiveClaim, error) {
	var out []LiveClaim
	for _, claim := range f.claims {
		if claim.BillID == billID {
			out = append(out, claim)
		}
	}
	return out, nil
}

func (f *fakeLiveStore) Release(_ context.Context, billID, itemID, sessionID string) error {
	kept := f.claims[:0]
	for _, claim := range f.claims {
		if claim.BillID == billID && claim.ItemID == itemID && claim.SessionID == sessionID {
			continue
		}
		kept = append(kept, claim)
	}
	f.claims = kept
	return nil
}

func (f *fakeLiveStore) ReleaseSession(_ context.Context, billID, sessionID string) error {
	f.releasedSessions = append(f.releasedSessions, sessionID)
	kept := f.claims[:0]
	for _, claim := range f.claims {
		if claim.BillID == billID && claim.SessionID == sessionID {
			continue
		}
		kept = append(kept, claim)
	}
	f.claims = kept
	return nil
}

type fakeBroker struct {
	events []feed.Event
}

func (f *fakeBroker) Publish(_ context.Context, event feed.Event) error {
	f.events = append(f.events, event)
	return nil
}

func (f *fakeBroker) kinds() []enums.FeedEventKind {
	kinds := make([]enums.FeedEventKind, 0, len(f.events))
	for _, event := range f.events {
		kinds = append(kinds, event.Kind)
	}
	return kinds
}

func newTestBill() *models.Bill {
	handle := "maria"
	bill := &models.Bill{
		ID:           uuid.New(),
		Title:        "Dinner at Luigi's",
		Currency:     "EUR",
		PayerName:    "Maria",
		PaypalHandle: &handle,
	}
	bill.Items = []models.BillItem{
		{ID: uuid.New(), BillID: bill.ID, Name: "Pizza", Quantity: 4, PriceCents: 1000},
		{ID: uuid.New(), BillID: bill.ID, Name: "Wine", Quantity: 2, PriceCents: 1800},
	}
	return bill
}

func newTestService(t *testing.T) (Service, *fakeRepo, *fakeLiveStore, *fakeBroker) {
	t.Helper()
	repo := &fakeRepo{}
	live := &fakeLiveStore{}
	broker := &fakeBroker{}
	svc, err := NewService(repo, live, broker, nil, nil)
	if err != nil {
		t.Fatalf("NewService failed: %v", err)
	}
	return svc, repo, live, broker
}

func strPtr(v string) *string { return &v }

func methodPtr(m enums.PaymentMethod) *enums.PaymentMethod { return &m }

func TestSubmitSelectionAccepted(t *testing.T) {
	svc, repo, live, broker := newTestService(t)
	bill := newTestBill()
	pizzaID := bill.Items[0].ID.String()

	live.claims = []LiveClaim{{BillID: bill.ID.String(), ItemID: pizzaID, SessionID: "sess-1", Quantity: 2}}

	summary, err := svc.SubmitSelection(context.Background(), bill, SubmitSelectionInput{
		SessionID:     strPtr("sess-1"),
		DisplayName:   "Ana",
		Items:         map[string]float64{pizzaID: 2},
		TipCents:      750,
		PaymentMethod: methodPtr(enums.PaymentMethodPaypal),
	})
	if err != nil {
		t.Fatalf("SubmitSelection failed: %v", err)
	}
	if summary.ItemsTotalCents != 2000 {
		t.Fatalf("items total = %d, want 2000", summary.ItemsTotalCents)
	}
	if summary.TotalCents != 2750 {
		t.Fatalf("total = %d, want 2750", summary.TotalCents)
	}
	if summary.PayLink != "https://paypal.me/maria/27.50EUR" {
		t.Fatalf("unexpected pay link %q", summary.PayLink)
	}
	if len(summary.OversoldItemIDs) != 0 {
		t.Fatalf("unexpected oversold items %v", summary.OversoldItemIDs)
	}
	if len(repo.selections) != 1 {
		t.Fatalf("stored %d selections, want 1", len(repo.selections))
	}
	if len(live.claims) != 0 {
		t.Fatalf("live claims not released: %v", live.claims)
	}
	kinds := broker.kinds()
	if len(kinds) != 2 || kinds[0] != enums.FeedEventLiveClaims || kinds[1] != enums.FeedEventSelections {
		t.Fatalf("unexpected feed events %v", kinds)
	}
}

func TestSubmitReleasesAllSessionHolds(t *testing.T) {
	// A guest who live-claimed wine but submitted only pizza must not leave
	// a phantom hold on wine inflating everyone's oversold warnings.
	svc, _, live, _ := newTestService(t)
	bill := newTestBill()
	pizzaID := bill.Items[0].ID.String()
	wineID := bill.Items[1].ID.String()

	live.claims = []LiveClaim{
		{BillID: bill.ID.String(), ItemID: pizzaID, SessionID: "sess-1", Quantity: 1},
		{BillID: bill.ID.String(), ItemID: wineID, SessionID: "sess-1", Quantity: 1},
		{BillID: bill.ID.String(), ItemID: wineID, SessionID: "sess-2", Quantity: 1},
	}

	if _, err := svc.SubmitSelection(context.Background(), bill, SubmitSelectionInput{
		SessionID:   strPtr("sess-1"),
		DisplayName: "Ana",
		Items:       map[string]float64{pizzaID: 1},
	}); err != nil {
		t.Fatalf("SubmitSelection failed: %v", err)
	}

	if len(live.claims) != 1 || live.claims[0].SessionID != "sess-2" {
		t.Fatalf("expected only sess-2's hold to survive, got %v", live.claims)
	}
}

func TestSubmitSkipsZeroQuantityEntries(t *testing.T) {
	svc, repo, _, _ := newTestService(t)
	bill := newTestBill()
	pizzaID := bill.Items[0].ID.String()
	wineID := bill.Items[1].ID.String()

	summary, err := svc.SubmitSelection(context.Background(), bill, SubmitSelectionInput{
		SessionID:   strPtr("sess-1"),
		DisplayName: "Ana",
		Items:       map[string]float64{pizzaID: 1, wineID: 0},
	})
	if err != nil {
		t.Fatalf("SubmitSelection failed: %v", err)
	}
	if summary.ItemsTotalCents != 1000 {
		t.Fatalf("items total = %d, want 1000", summary.ItemsTotalCents)
	}
	if stored := repo.selections[0].Items; len(stored) != 1 || stored[pizzaID] != 1 {
		t.Fatalf("zero entry must not be stored, got %v", stored)
	}

	_, err = svc.SubmitSelection(context.Background(), bill, SubmitSelectionInput{
		SessionID:   strPtr("sess-2"),
		DisplayName: "Ben",
		Items:       map[string]float64{pizzaID: 0},
	})
	if appErr := pkgerrors.As(err); appErr == nil || appErr.Code() != pkgerrors.CodeValidation {
		t.Fatalf("all-zero selection must be rejected, got %v", err)
	}
}

func TestSubmitSelectionRejectsExcessQuantity(t *testing.T) {
	svc, repo, _, broker := newTestService(t)
	bill := newTestBill()

	_, err := svc.SubmitSelection(context.Background(), bill, SubmitSelectionInput{
		SessionID:   strPtr("sess-1"),
		DisplayName: "Ana",
		Items:       map[string]float64{bill.Items[0].ID.String(): 15},
		TipCents:    0,
	})
	if err == nil {
		t.Fatal("expected rejection for quantity above ceiling")
	}
	if appErr := pkgerrors.As(err); appErr == nil || appErr.Code() != pkgerrors.CodeValidation {
		t.Fatalf("unexpected error %v", err)
	}
	if len(repo.selections) != 0 {
		t.Fatal("rejected submission must not be stored")
	}
	if len(broker.events) != 0 {
		t.Fatal("rejected submission must not publish events")
	}
}

func TestSubmitSelectionValidationStopsAtFirstFailure(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	bill := newTestBill()
	pizzaID := bill.Items[0].ID.String()

	cases := []struct {
		name    string
		input   SubmitSelectionInput
		message string
	}{
		{
			name:    "blank display name",
			input:   SubmitSelectionInput{DisplayName: "   ", Items: map[string]float64{pizzaID: 1}},
			message: "display name",
		},
		{
			name:    "overlong display name",
			input:   SubmitSelectionInput{DisplayName: strings.Repeat("a", 101), Items: map[string]float64{pizzaID: 1}},
			message: "display name",
		},
		{
			name:    "no items",
			input:   SubmitSelectionInput{DisplayName: "Ana"},
			message: "at least one item",
		},
		{
			name:    "unknown item",
			input:   SubmitSelectionInput{DisplayName: "Ana", Items: map[string]float64{uuid.NewString(): 1}},
			message: "not on this bill",
		},
		{
			name:    "negative tip",
			input:   SubmitSelectionInput{DisplayName: "Ana", Items: map[string]float64{pizzaID: 1}, TipCents: -1},
			message: "tip",
		},
		{
			name:    "excessive tip",
			input:   SubmitSelectionInput{DisplayName: "Ana", Items: map[string]float64{pizzaID: 1}, TipCents: 10_000*100 + 1},
			message: "tip",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.SubmitSelection(context.Background(), bill, tc.input)
			if err == nil {
				t.Fatal("expected validation error")
			}
			appErr := pkgerrors.As(err)
			if appErr == nil || appErr.Code() != pkgerrors.CodeValidation {
				t.Fatalf("unexpected error %v", err)
			}
			if !strings.Contains(appErr.Message(), tc.message) {
				t.Fatalf("message %q does not mention %q", appErr.Message(), tc.message)
			}
		})
	}
}

func TestSubmitSelectionReplacesPriorSubmission(t *testing.T) {
	svc, repo, _, _ := newTestService(t)
	bill := newTestBill()
	pizzaID := bill.Items[0].ID.String()
	wineID := bill.Items[1].ID.String()

	ctx := context.Background()
	first := SubmitSelectionInput{
		SessionID:   strPtr("sess-1"),
		DisplayName: "Ana",
		Items:       map[string]float64{pizzaID: 2},
	}
	if _, err := svc.SubmitSelection(ctx, bill, first); err != nil {
		t.Fatalf("first submission failed: %v", err)
	}
	second := SubmitSelectionInput{
		SessionID:   strPtr("sess-1"),
		DisplayName: "Ana",
		Items:       map[string]float64{wineID: 1},
		TipCents:    200,
	}
	summary, err := svc.SubmitSelection(ctx, bill, second)
	if err != nil {
		t.Fatalf("second submission failed: %v", err)
	}
	if len(repo.selections) != 1 {
		t.Fatalf("stored %d selections, want the replacement only", len(repo.selections))
	}
	if summary.TotalCents != 2000 {
		t.Fatalf("total = %d, want 2000", summary.TotalCents)
	}
	if _, ok := repo.selections[0].Items[pizzaID]; ok {
		t.Fatal("replaced selection still claims the old item")
	}
}

func TestSubmitSelectionAcceptsOversold(t *testing.T) {
	svc, repo, _, _ := newTestService(t)
	bill := newTestBill()
	wineID := bill.Items[1].ID.String()

	ctx := context.Background()
	if _, err := svc.SubmitSelection(ctx, bill, SubmitSelectionInput{
		SessionID:   strPtr("sess-1"),
		DisplayName: "Ana",
		Items:       map[string]float64{wineID: 1.1},
	}); err != nil {
		t.Fatalf("first submission failed: %v", err)
	}

	summary, err := svc.SubmitSelection(ctx, bill, SubmitSelectionInput{
		SessionID:   strPtr("sess-2"),
		DisplayName: "Ben",
		Items:       map[string]float64{wineID: 1},
	})
	if err != nil {
		t.Fatalf("oversold submission rejected: %v", err)
	}
	if len(summary.OversoldItemIDs) != 1 || summary.OversoldItemIDs[0] != wineID {
		t.Fatalf("oversold items = %v, want [%s]", summary.OversoldItemIDs, wineID)
	}
	if len(repo.selections) != 2 {
		t.Fatalf("stored %d selections, want 2", len(repo.selections))
	}
}

func TestSubmitSelectionWithoutSessionCreatesGuestlessRow(t *testing.T) {
	svc, repo, _, _ := newTestService(t)
	bill := newTestBill()
	pizzaID := bill.Items[0].ID.String()

	ctx := context.Background()
	for range 2 {
		if _, err := svc.SubmitSelection(ctx, bill, SubmitSelectionInput{
			DisplayName: "Walk-in",
			Items:       map[string]float64{pizzaID: 1},
		}); err != nil {
			t.Fatalf("sessionless submission failed: %v", err)
		}
	}
	// No session means no replace semantics; both rows stand.
	if len(repo.selections) != 2 {
		t.Fatalf("stored %d selections, want 2", len(repo.selections))
	}
	for _, selection := range repo.selections {
		if selection.IsGuest() {
			t.Fatal("sessionless selection must not carry a session id")
		}
	}
}

func TestSetPaid(t *testing.T) {
	svc, repo, _, broker := newTestService(t)
	bill := newTestBill()

	summary, err := svc.SubmitSelection(context.Background(), bill, SubmitSelectionInput{
		SessionID:   strPtr("sess-1"),
		DisplayName: "Ana",
		Items:       map[string]float64{bill.Items[0].ID.String(): 1},
	})
	if err != nil {
		t.Fatalf("submission failed: %v", err)
	}

	if err := svc.SetPaid(context.Background(), bill.ID, summary.Selection.ID, true); err != nil {
		t.Fatalf("SetPaid failed: %v", err)
	}
	if !repo.selections[0].Paid {
		t.Fatal("selection not marked paid")
	}
	if err := svc.SetPaid(context.Background(), bill.ID, uuid.New(), true); err == nil {
		t.Fatal("expected not found for unknown selection")
	} else if appErr := pkgerrors.As(err); appErr == nil || appErr.Code() != pkgerrors.CodeNotFound {
		t.Fatalf("unexpected error %v", err)
	}
	last := broker.events[len(broker.events)-1]
	if last.Kind != enums.FeedEventSelections {
		t.Fatalf("last event kind = %q, want selections", last.Kind)
	}
}

func TestUpsertLiveClaim(t *testing.T) {
	svc, _, live, broker := newTestService(t)
	bill := newTestBill()
	pizzaID := bill.Items[0].ID.String()

	ctx := context.Background()
	if err := svc.UpsertLiveClaim(ctx, bill, pizzaID, "sess-1", "Ana", 2); err != nil {
		t.Fatalf("UpsertLiveClaim failed: %v", err)
	}
	if len(live.claims) != 1 || live.claims[0].Quantity != 2 {
		t.Fatalf("unexpected live claims %v", live.claims)
	}
	if len(broker.events) != 1 || broker.events[0].Kind != enums.FeedEventLiveClaims {
		t.Fatalf("unexpected feed events %v", broker.events)
	}

	if err := svc.UpsertLiveClaim(ctx, bill, pizzaID, "", "Ana", 1); err == nil {
		t.Fatal("expected rejection without a session id")
	}
	if err := svc.UpsertLiveClaim(ctx, bill, pizzaID, "sess-1", "Ana", 11); err == nil {
		t.Fatal("expected rejection above quantity ceiling")
	}
	if err := svc.UpsertLiveClaim(ctx, bill, uuid.NewString(), "sess-1", "Ana", 1); err == nil {
		t.Fatal("expected rejection for unknown item")
	}
}

func TestBreakdown(t *testing.T) {
	svc, _, live, _ := newTestService(t)
	bill := newTestBill()
	pizzaID := bill.Items[0].ID.String()
	wineID := bill.Items[1].ID.String()

	ctx := context.Background()
	if _, err := svc.SubmitSelection(ctx, bill, SubmitSelectionInput{
		SessionID:   strPtr("sess-1"),
		DisplayName: "Ana",
		Items:       map[string]float64{pizzaID: 3},
	}); err != nil {
		t.Fatalf("submission failed: %v", err)
	}
	live.claims = append(live.claims, LiveClaim{
		BillID: bill.ID.String(), ItemID: pizzaID, SessionID: "sess-2", Quantity: 2,
	})

	// sess-2 holds the live claim, so its own view of pizza excludes it.
	breakdown, err := svc.Breakdown(ctx, bill, "sess-2")
	if err != nil {
		t.Fatalf("Breakdown failed: %v", err)
	}

	byID := make(map[string]ItemBreakdown)
	for _, item := range breakdown.Items {
		byID[item.Item.ID.String()] = item
	}

	pizza := byID[pizzaID]
	if pizza.Remaining != 1 {
		t.Fatalf("pizza remaining = %v, want 1 (holder's own live claim excluded)", pizza.Remaining)
	}
	if pizza.Oversold != 1 {
		t.Fatalf("pizza oversold = %v, want 1 (selection 3 + live 2 against 4)", pizza.Oversold)
	}
	wine := byID[wineID]
	if wine.Remaining != 2 || wine.Oversold != 0 {
		t.Fatalf("wine breakdown = %+v", wine)
	}
	if breakdown.Complete {
		t.Fatal("bill must not be complete with wine unclaimed")
	}

	// Any other session sees sess-2's live claim counted against pizza.
	other, err := svc.Breakdown(ctx, bill, "sess-9")
	if err != nil {
		t.Fatalf("Breakdown failed: %v", err)
	}
	for _, item := range other.Items {
		if item.Item.ID.String() == pizzaID && item.Remaining != 0 {
			t.Fatalf("pizza remaining for another guest = %v, want 0", item.Remaining)
		}
	}

	if _, err := svc.SubmitSelection(ctx, bill, SubmitSelectionInput{
		SessionID:   strPtr("sess-3"),
		DisplayName: "Cara",
		Items:       map[string]float64{pizzaID: 1, wineID: 2},
	}); err != nil {
		t.Fatalf("submission failed: %v", err)
	}
	breakdown, err = svc.Breakdown(ctx, bill, "")
	if err != nil {
		t.Fatalf("Breakdown failed: %v", err)
	}
	if !breakdown.Complete {
		t.Fatal("bill should be complete once every item is allocated")
	}
}
