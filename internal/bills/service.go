package bills

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/splittab/splittab-backend/internal/feed"
	"github.com/splittab/splittab-backend/pkg/db/models"
	"github.com/splittab/splittab-backend/pkg/enums"
	pkgerrors "github.com/splittab/splittab-backend/pkg/errors"
	"github.com/splittab/splittab-backend/pkg/logger"
	"github.com/splittab/splittab-backend/pkg/security"
)

const (
	maxTitleLength    = 200
	maxNameLength     = 100
	maxItemNameLength = 200
	maxItemQuantity   = 1000.0
	maxItemPriceCents = 100_000 * 100
)

type feedPublisher interface {
	Publish(ctx context.Context, event feed.Event) error
}

// selectionChecker reports whether any durable selection on a bill still
// claims an item.
type selectionChecker interface {
	AnyReferencingItem(ctx context.Context, billID, itemID uuid.UUID) (bool, error)
}

// liveClaimChecker reports whether any unexpired live claim on a bill still
// holds an item.
type liveClaimChecker interface {
	AnyHolding(ctx context.Context, billID, itemID string) (bool, error)
}

// CreateBillInput captures the payer's new-bill payload.
type CreateBillInput struct {
	Title        string
	PayerName    string
	Currency     string
	PaypalHandle *string
	Items        []ItemInput
}

// UpdateBillInput carries the bill fields the payer may change. Nil fields
// are left untouched.
type UpdateBillInput struct {
	Title        *string
	PayerName    *string
	Currency     *string
	PaypalHandle *string
}

// ItemInput is one line item as entered or extracted.
type ItemInput struct {
	Name       string
	Quantity   float64
	PriceCents int64
}

// Service owns bill lifecycle and item management.
type Service interface {
	CreateBill(ctx context.Context, input CreateBillInput) (*models.Bill, error)
	GetByOwnerToken(ctx context.Context, token string) (*models.Bill, error)
	GetByShareToken(ctx context.Context, token string) (*models.Bill, error)
	UpdateBill(ctx context.Context, bill *models.Bill, input UpdateBillInput) (*models.Bill, error)
	AddItem(ctx context.Context, bill *models.Bill, input ItemInput) (*models.BillItem, error)
	UpdateItem(ctx context.Context, bill *models.Bill, itemID uuid.UUID, input ItemInput) (*models.BillItem, error)
	DeleteItem(ctx context.Context, bill *models.Bill, itemID uuid.UUID) error
	AddExtractedItems(ctx context.Context, billID uuid.UUID, inputs []ItemInput) ([]models.BillItem, error)
}

type service struct {
	repo       BillRepository
	selections selectionChecker
	liveClaims liveClaimChecker
	broker     feedPublisher
	logg       *logger.Logger
}

// NewService builds the bills service backed by the provided stack.
func NewService(repo BillRepository, selections selectionChecker, liveClaims liveClaimChecker, broker feedPublisher, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("bill repository required")
	}
	if selections == nil {
		return nil, fmt.Errorf("selection checker required")
	}
	if liveClaims == nil {
		return nil, fmt.Errorf("live claim checker required")
	}
	if broker == nil {
		return nil, fmt.Errorf("feed broker required")
	}
	return &service{
		repo:       repo,
		selections: selections,
		liveClaims: liveClaims,
		broker:     broker,
		logg:       logg,
	}, nil
}

// CreateBill validates the payload, mints both capability tokens and stores
// the bill with its initial items.
func (s *service) CreateBill(ctx context.Context, input CreateBillInput) (*models.Bill, error) {
	title := strings.TrimSpace(input.Title)
	if title == "" || len(title) > maxTitleLength {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "title must be between 1 and 200 characters")
	}
	payerName := strings.TrimSpace(input.PayerName)
	if payerName == "" || len(payerName) > maxNameLength {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payer name must be between 1 and 100 characters")
	}
	currency, err := normalizeCurrency(input.Currency)
	if err != nil {
		return nil, err
	}

	items := make([]models.BillItem, 0, len(input.Items))
	for position, itemInput := range input.Items {
		item, err := buildItem(itemInput, position)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}

	ownerToken, err := security.NewOwnerToken()
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "minting owner token")
	}
	shareToken, err := security.NewShareToken()
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "minting share token")
	}

	bill := &models.Bill{
		OwnerToken:   ownerToken,
		ShareToken:   shareToken,
		Title:        title,
		Currency:     currency,
		PayerName:    payerName,
		PaypalHandle: normalizeHandle(input.PaypalHandle),
		Items:        items,
	}
	if err := s.repo.Create(ctx, bill); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "persisting bill")
	}
	return bill, nil
}

// GetByOwnerToken resolves a payer link.
func (s *service) GetByOwnerToken(ctx context.Context, token string) (*models.Bill, error) {
	return s.lookup(ctx, token, s.repo.GetByOwnerToken)
}

// GetByShareToken resolves a guest link.
func (s *service) GetByShareToken(ctx context.Context, token string) (*models.Bill, error) {
	return s.lookup(ctx, token, s.repo.GetByShareToken)
}

// UpdateBill applies the provided fields and returns the fresh bill.
func (s *service) UpdateBill(ctx context.Context, bill *models.Bill, input UpdateBillInput) (*models.Bill, error) {
	if bill == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "bill not found")
	}
	if input.Title != nil {
		title := strings.TrimSpace(*input.Title)
		if title == "" || len(title) > maxTitleLength {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "title must be between 1 and 200 characters")
		}
		bill.Title = title
	}
	if input.PayerName != nil {
		name := strings.TrimSpace(*input.PayerName)
		if name == "" || len(name) > maxNameLength {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "payer name must be between 1 and 100 characters")
		}
		bill.PayerName = name
	}
	if input.Currency != nil {
		currency, err := normalizeCurrency(*input.Currency)
		if err != nil {
			return nil, err
		}
		bill.Currency = currency
	}
	if input.PaypalHandle != nil {
		bill.PaypalHandle = normalizeHandle(input.PaypalHandle)
	}
	if err := s.repo.Update(ctx, bill); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "updating bill")
	}
	return s.reload(ctx, bill.ID)
}

// AddItem appends one item to the bill.
func (s *service) AddItem(ctx context.Context, bill *models.Bill, input ItemInput) (*models.BillItem, error) {
	if bill == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "bill not found")
	}
	position, err := s.repo.NextItemPosition(ctx, bill.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "computing item position")
	}
	item, err := buildItem(input, position)
	if err != nil {
		return nil, err
	}
	item.BillID = bill.ID
	if err := s.repo.AddItems(ctx, []models.BillItem{item}); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "persisting item")
	}
	stored := item
	if reloaded, err := s.repo.GetItem(ctx, bill.ID, item.ID); err == nil {
		stored = *reloaded
	}
	s.publish(ctx, feed.ItemsChanged(bill.ID.String(), enums.ItemActionCreated, stored.ID.String()))
	return &stored, nil
}

// requireUnclaimed rejects item mutations once anyone has committed to the
// item; changing it under a claim would silently rewrite what the claimant
// agreed to pay.
func (s *service) requireUnclaimed(ctx context.Context, billID, itemID uuid.UUID) error {
	referenced, err := s.selections.AnyReferencingItem(ctx, billID, itemID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "checking selections")
	}
	if referenced {
		return pkgerrors.New(pkgerrors.CodeConflict, "item is claimed by a submitted selection")
	}
	held, err := s.liveClaims.AnyHolding(ctx, billID.String(), itemID.String())
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "checking live claims")
	}
	if held {
		return pkgerrors.New(pkgerrors.CodeConflict, "item is held by an active claim")
	}
	return nil
}

// UpdateItem applies new values to an existing item, provided no selection
// or unexpired live claim references it yet.
func (s *service) UpdateItem(ctx context.Context, bill *models.Bill, itemID uuid.UUID, input ItemInput) (*models.BillItem, error) {
	if bill == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "bill not found")
	}
	if err := s.requireUnclaimed(ctx, bill.ID, itemID); err != nil {
		return nil, err
	}
	existing, err := s.repo.GetItem(ctx, bill.ID, itemID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "item not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading item")
	}
	updated, err := buildItem(input, existing.Position)
	if err != nil {
		return nil, err
	}
	updated.ID = existing.ID
	updated.BillID = bill.ID
	if err := s.repo.UpdateItem(ctx, &updated); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "updating item")
	}
	s.publish(ctx, feed.ItemsChanged(bill.ID.String(), enums.ItemActionUpdated, itemID.String()))
	return &updated, nil
}

// DeleteItem removes an item unless a selection or a live claim still
// references it.
func (s *service) DeleteItem(ctx context.Context, bill *models.Bill, itemID uuid.UUID) error {
	if bill == nil {
		return pkgerrors.New(pkgerrors.CodeNotFound, "bill not found")
	}
	if err := s.requireUnclaimed(ctx, bill.ID, itemID); err != nil {
		return err
	}
	if err := s.repo.DeleteItem(ctx, bill.ID, itemID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.New(pkgerrors.CodeNotFound, "item not found")
		}
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "deleting item")
	}
	s.publish(ctx, feed.ItemsChanged(bill.ID.String(), enums.ItemActionDeleted, itemID.String()))
	return nil
}

// AddExtractedItems bulk-inserts scanner output after the same validation
// manual entry goes through, skipping lines that fail it.
func (s *service) AddExtractedItems(ctx context.Context, billID uuid.UUID, inputs []ItemInput) ([]models.BillItem, error) {
	position, err := s.repo.NextItemPosition(ctx, billID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "computing item position")
	}
	items := make([]models.BillItem, 0, len(inputs))
	for _, input := range inputs {
		item, err := buildItem(input, position)
		if err != nil {
			continue
		}
		item.BillID = billID
		items = append(items, item)
		position++
	}
	if len(items) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "no usable items extracted")
	}
	if err := s.repo.AddItems(ctx, items); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "persisting extracted items")
	}
	s.publish(ctx, feed.ItemsChanged(billID.String(), enums.ItemActionCreated, ""))
	return items, nil
}

func (s *service) lookup(ctx context.Context, token string, loader func(context.Context, string) (*models.Bill, error)) (*models.Bill, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "bill not found")
	}
	bill, err := loader(ctx, token)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "bill not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading bill")
	}
	return bill, nil
}

func (s *service) reload(ctx context.Context, id uuid.UUID) (*models.Bill, error) {
	bill, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "reloading bill")
	}
	return bill, nil
}

func (s *service) publish(ctx context.Context, event feed.Event) {
	if err := s.broker.Publish(ctx, event); err != nil && s.logg != nil {
		s.logg.Error(ctx, "publishing feed event", err)
	}
}

func buildItem(input ItemInput, position int) (models.BillItem, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" || len(name) > maxItemNameLength {
		return models.BillItem{}, pkgerrors.New(pkgerrors.CodeValidation, "item name must be between 1 and 200 characters")
	}
	if math.IsNaN(input.Quantity) || math.IsInf(input.Quantity, 0) || input.Quantity <= 0 || input.Quantity > maxItemQuantity {
		return models.BillItem{}, pkgerrors.New(pkgerrors.CodeValidation, "item quantity is out of range")
	}
	if input.PriceCents < 0 || input.PriceCents > maxItemPriceCents {
		return models.BillItem{}, pkgerrors.New(pkgerrors.CodeValidation, "item price is out of range")
	}
	return models.BillItem{
		ID:         uuid.New(),
		Name:       name,
		Quantity:   input.Quantity,
		PriceCents: input.PriceCents,
		Position:   position,
	}, nil
}

func normalizeCurrency(raw string) (string, error) {
	currency := strings.ToUpper(strings.TrimSpace(raw))
	if currency == "" {
		return "EUR", nil
	}
	if len(currency) != 3 {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "currency must be a 3-letter code")
	}
	for _, r := range currency {
		if r < 'A' || r > 'Z' {
			return "", pkgerrors.New(pkgerrors.CodeValidation, "currency must be a 3-letter code")
		}
	}
	return currency, nil
}

func normalizeHandle(handle *string) *string {
	if handle == nil {
		return nil
	}
	trimmed := strings.TrimPrefix(strings.TrimSpace(*handle), "@")
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
