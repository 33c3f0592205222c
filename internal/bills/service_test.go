package bills

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/splittab/splittab-backend/internal/feed"
	"github.com/splittab/splittab-backend/pkg/db/models"
	"github.com/splittab/splittab-backend/pkg/enums"
	pkgerrors "github.com/splittab/splittab-backend/pkg/errors"
)

type fakeBillRepo struct {
	bills map[uuid.UUID]*models.Bill
}

func newFakeBillRepo() *fakeBillRepo {
	return &fakeBillRepo{bills: make(map[uuid.UUID]*models.Bill)}
}

func (f *fakeBillRepo) Create(_ context.Context, bill *models.Bill) error {
	if bill.ID == uuid.Nil {
		bill.ID = uuid.New()
	}
	for i := range bill.Items {
		bill.Items[i].BillID = bill.ID
	}
	copied := *bill
	f.bills[bill.ID] = &copied
	return nil
}

func (f *fakeBillRepo) GetByID(_ context.Context, id uuid.UUID) (*models.Bill, error) {
	bill, ok := f.bills[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *bill
	return &copied, nil
}

func (f *fakeBillRepo) GetByOwnerToken(ctx context.Context, token string) (*models.Bill, error) {
	for _, bill := range f.bills {
		if bill.OwnerToken == token {
			return f.GetByID(ctx, bill.ID)
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeBillRepo) GetByShareToken(ctx context.Context, token string) (*models.Bill, error) {
	for _, bill := range f.bills {
		if bill.ShareToken == token {
			return f.GetByID(ctx, bill.ID)
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeBillRepo) Update(_ context.Context, bill *models.Bill) error {
	stored, ok := f.bills[bill.ID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	stored.Title = bill.Title
	stored.Currency = bill.Currency
	stored.PayerName = bill.PayerName
	stored.PaypalHandle = bill.PaypalHandle
	return nil
}

func (f *fakeBillRepo) AddItems(_ context.Context, items []models.BillItem) error {
	for _, item := range items {
		bill, ok := f.bills[item.BillID]
		if !ok {
			return gorm.ErrRecordNotFound
		}
		bill.Items = append(bill.Items, item)
	}
	return nil
}

func (f *fakeBillRepo) UpdateItem(_ context.Context, item *models.BillItem) error {
	bill, ok := f.bills[item.BillID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	for i := range bill.Items {
		if bill.Items[i].ID == item.ID {
			bill.Items[i] = *item
			return nil
		}
	}
	return gorm.ErrRecordNotFound
}

func (f *fakeBillRepo) DeleteItem(_ context.Context, billID, itemID uuid.UUID) error {
	bill, ok := f.bills[billID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	for i := range bill.Items {
		if bill.Items[i].ID == itemID {
			bill.Items = append(bill.Items[:i], bill.Items[i+1:]...)
			return nil
		}
	}
	return gorm.ErrRecordNotFound
}

func (f *fakeBillRepo) GetItem(_ context.Context, billID, itemID uuid.UUID) (*models.BillItem, error) {
	bill, ok := f.bills[billID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	for _, item := range bill.Items {
		if item.ID == itemID {
			copied := item
			return &copied, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeBillRepo) NextItemPosition(_ context.Context, billID uuid.UUID) (int, error) {
	bill, ok := f.bills[billID]
	if !ok {
		return 0, nil
	}
	next := 0
	for _, item := range bill.Items {
		if item.Position >= next {
			next = item.Position + 1
		}
	}
	return next, nil
}

type fakeSelectionChecker struct {
	referenced map[string]bool
}

func (f *fakeSelectionChecker) AnyReferencingItem(_ context.Context, _, itemID uuid.UUID) (bool, error) {
	return f.referenced[itemID.String()], nil
}

type fakeLiveChecker struct {
	held map[string]bool
}

func (f *fakeLiveChecker) AnyHolding(_ context.Context, _, itemID string) (bool, error) {
	return f.held[itemID], nil
}

type recordingBroker struct {
	events []feed.Event
}

func (r *recordingBroker) Publish(_ context.Context, event feed.Event) error {
	r.events = append(r.events, event)
	return nil
}

func newBillService(t *testing.T) (Service, *fakeBillRepo, *fakeSelectionChecker, *fakeLiveChecker, *recordingBroker) {
	t.Helper()
	repo := newFakeBillRepo()
	selections := &fakeSelectionChecker{referenced: make(map[string]bool)}
	live := &fakeLiveChecker{held: make(map[string]bool)}
	broker := &recordingBroker{}
	svc, err := NewService(repo, selections, live, broker, nil)
	if err != nil {
		t.Fatalf("NewService failed: %v", err)
	}
	return svc, repo, selections, live, broker
}

func mustCreateBill(t *testing.T, svc Service) *models.Bill {
	t.Helper()
	handle := "@maria"
	bill, err := svc.CreateBill(context.Background(), CreateBillInput{
		Title:        "Dinner",
		PayerName:    "Maria",
		PaypalHandle: &handle,
		Items: []ItemInput{
			{Name: "Pizza", Quantity: 4, PriceCents: 1000},
			{Name: "Wine", Quantity: 2, PriceCents: 1800},
		},
	})
	if err != nil {
		t.Fatalf("CreateBill failed: %v", err)
	}
	return bill
}

func TestCreateBill(t *testing.T) {
	svc, _, _, _, _ := newBillService(t)
	bill := mustCreateBill(t, svc)

	if bill.OwnerToken == "" || bill.ShareToken == "" {
		t.Fatal("bill missing capability tokens")
	}
	if bill.OwnerToken == bill.ShareToken {
		t.Fatal("owner and share tokens must differ")
	}
	if bill.Currency != "EUR" {
		t.Fatalf("currency = %q, want default EUR", bill.Currency)
	}
	if bill.PaypalHandle == nil || *bill.PaypalHandle != "maria" {
		t.Fatalf("paypal handle = %v, want normalized maria", bill.PaypalHandle)
	}
	if len(bill.Items) != 2 {
		t.Fatalf("stored %d items, want 2", len(bill.Items))
	}
	if bill.Items[0].Position != 0 || bill.Items[1].Position != 1 {
		t.Fatalf("item positions = %d,%d", bill.Items[0].Position, bill.Items[1].Position)
	}
}

func TestCreateBillValidation(t *testing.T) {
	svc, _, _, _, _ := newBillService(t)
	ctx := context.Background()

	cases := []struct {
		name  string
		input CreateBillInput
	}{
		{"missing title", CreateBillInput{PayerName: "Maria"}},
		{"missing payer", CreateBillInput{Title: "Dinner"}},
		{"bad currency", CreateBillInput{Title: "Dinner", PayerName: "Maria", Currency: "EURO"}},
		{"bad item quantity", CreateBillInput{Title: "Dinner", PayerName: "Maria", Items: []ItemInput{{Name: "Pizza", Quantity: 0, PriceCents: 100}}}},
		{"negative price", CreateBillInput{Title: "Dinner", PayerName: "Maria", Items: []ItemInput{{Name: "Pizza", Quantity: 1, PriceCents: -1}}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := svc.CreateBill(ctx, tc.input); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestTokenLookups(t *testing.T) {
	svc, _, _, _, _ := newBillService(t)
	bill := mustCreateBill(t, svc)
	ctx := context.Background()

	byOwner, err := svc.GetByOwnerToken(ctx, bill.OwnerToken)
	if err != nil {
		t.Fatalf("GetByOwnerToken failed: %v", err)
	}
	if byOwner.ID != bill.ID {
		t.Fatal("owner lookup returned wrong bill")
	}

	byShare, err := svc.GetByShareToken(ctx, bill.ShareToken)
	if err != nil {
		t.Fatalf("GetByShareToken failed: %v", err)
	}
	if byShare.ID != bill.ID {
		t.Fatal("share lookup returned wrong bill")
	}

	// Tokens do not cross over.
	if _, err := svc.GetByOwnerToken(ctx, bill.ShareToken); err == nil {
		t.Fatal("share token must not resolve as owner token")
	}
	if _, err := svc.GetByShareToken(ctx, "missing"); err == nil {
		t.Fatal("unknown token must not resolve")
	} else if appErr := pkgerrors.As(err); appErr == nil || appErr.Code() != pkgerrors.CodeNotFound {
		t.Fatalf("unexpected error %v", err)
	}
}

func TestUpdateBillPartialFields(t *testing.T) {
	svc, _, _, _, _ := newBillService(t)
	bill := mustCreateBill(t, svc)

	title := "Team lunch"
	updated, err := svc.UpdateBill(context.Background(), bill, UpdateBillInput{Title: &title})
	if err != nil {
		t.Fatalf("UpdateBill failed: %v", err)
	}
	if updated.Title != "Team lunch" {
		t.Fatalf("title = %q", updated.Title)
	}
	if updated.PayerName != "Maria" {
		t.Fatalf("payer name changed unexpectedly to %q", updated.PayerName)
	}
}

func TestAddItemPublishesFeedEvent(t *testing.T) {
	svc, _, _, _, broker := newBillService(t)
	bill := mustCreateBill(t, svc)

	item, err := svc.AddItem(context.Background(), bill, ItemInput{Name: "Dessert", Quantity: 1, PriceCents: 450})
	if err != nil {
		t.Fatalf("AddItem failed: %v", err)
	}
	if item.Position != 2 {
		t.Fatalf("position = %d, want 2", item.Position)
	}
	if len(broker.events) != 1 {
		t.Fatalf("published %d events, want 1", len(broker.events))
	}
	event := broker.events[0]
	if event.Kind != enums.FeedEventItems || event.Action != enums.ItemActionCreated || event.ItemID != item.ID.String() {
		t.Fatalf("unexpected event %+v", event)
	}
}

func TestUpdateItemBlockedWhileClaimed(t *testing.T) {
	svc, _, selections, _, broker := newBillService(t)
	bill := mustCreateBill(t, svc)
	pizza := bill.Items[0]
	ctx := context.Background()
	input := ItemInput{Name: "Pizza Grande", Quantity: 6, PriceCents: 1100}

	updated, err := svc.UpdateItem(ctx, bill, pizza.ID, input)
	if err != nil {
		t.Fatalf("UpdateItem failed: %v", err)
	}
	if updated.Name != "Pizza Grande" || updated.Position != pizza.Position {
		t.Fatalf("unexpected item %+v", updated)
	}
	if len(broker.events) != 1 || broker.events[0].Action != enums.ItemActionUpdated {
		t.Fatalf("unexpected events %v", broker.events)
	}

	selections.referenced[pizza.ID.String()] = true
	_, err = svc.UpdateItem(ctx, bill, pizza.ID, input)
	if appErr := pkgerrors.As(err); appErr == nil || appErr.Code() != pkgerrors.CodeConflict {
		t.Fatalf("expected conflict for claimed item, got %v", err)
	}
}

func TestDeleteItemConflicts(t *testing.T) {
	svc, _, selections, live, broker := newBillService(t)
	bill := mustCreateBill(t, svc)
	pizza := bill.Items[0]
	wine := bill.Items[1]
	ctx := context.Background()

	selections.referenced[pizza.ID.String()] = true
	err := svc.DeleteItem(ctx, bill, pizza.ID)
	if appErr := pkgerrors.As(err); appErr == nil || appErr.Code() != pkgerrors.CodeConflict {
		t.Fatalf("expected conflict for selected item, got %v", err)
	}

	live.held[wine.ID.String()] = true
	err = svc.DeleteItem(ctx, bill, wine.ID)
	if appErr := pkgerrors.As(err); appErr == nil || appErr.Code() != pkgerrors.CodeConflict {
		t.Fatalf("expected conflict for held item, got %v", err)
	}
	if len(broker.events) != 0 {
		t.Fatal("conflicting deletes must not publish events")
	}

	live.held[wine.ID.String()] = false
	if err := svc.DeleteItem(ctx, bill, wine.ID); err != nil {
		t.Fatalf("DeleteItem failed: %v", err)
	}
	if len(broker.events) != 1 || broker.events[0].Action != enums.ItemActionDeleted {
		t.Fatalf("unexpected events %v", broker.events)
	}
}

func TestAddExtractedItemsSkipsInvalidLines(t *testing.T) {
	svc, repo, _, _, _ := newBillService(t)
	bill := mustCreateBill(t, svc)

	items, err := svc.AddExtractedItems(context.Background(), bill.ID, []ItemInput{
		{Name: "Tiramisu", Quantity: 2, PriceCents: 500},
		{Name: "", Quantity: 1, PriceCents: 100},
		{Name: "Coffee", Quantity: -1, PriceCents: 200},
	})
	if err != nil {
		t.Fatalf("AddExtractedItems failed: %v", err)
	}
	if len(items) != 1 || items[0].Name != "Tiramisu" {
		t.Fatalf("unexpected items %v", items)
	}

	stored, err := repo.GetByID(context.Background(), bill.ID)
	if err != nil {
		t.Fatalf("reload failed: %v", err)
	}
	if len(stored.Items) != 3 {
		t.Fatalf("bill has %d items, want 3", len(stored.Items))
	}

	if _, err := svc.AddExtractedItems(context.Background(), bill.ID, []ItemInput{{Name: "", Quantity: 0}}); err == nil {
		t.Fatal("expected error when nothing usable was extracted")
	}
}
