package claims

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/splittab/splittab-backend/internal/feed"
	"github.com/splittab/splittab-backend/internal/ledger"
	"github.com/splittab/splittab-backend/pkg/db/models"
	dbtypes "github.com/splittab/splittab-backend/pkg/db/types"
	"github.com/splittab/splittab-backend/pkg/enums"
	pkgerrors "github.com/splittab/splittab-backend/pkg/errors"
	"github.com/splittab/splittab-backend/pkg/logger"
	"github.com/splittab/splittab-backend/pkg/metrics"
	"github.com/splittab/splittab-backend/pkg/paylink"
)

const (
	maxDisplayNameLength = 100
	maxQuantityPerItem   = 10.0
	// Tip and total ceilings are sanity bounds in whole currency units,
	// expressed in cents.
	maxTipCents   int64 = 10_000 * 100
	maxTotalCents int64 = 100_000 * 100
)

type feedPublisher interface {
	Publish(ctx context.Context, event feed.Event) error
}

// SubmitSelectionInput is the finalize payload: who is claiming, what they
// claim and how they intend to pay.
type SubmitSelectionInput struct {
	SessionID     *string
	DisplayName   string
	Items         map[string]float64
	TipCents      int64
	PaymentMethod *enums.PaymentMethod
}

// SelectionSummary is a selection with its derived money view.
type SelectionSummary struct {
	Selection       models.Selection
	ItemsTotalCents int64
	TotalCents      int64
	PayLink         string
	OversoldItemIDs []string
}

// ItemBreakdown is the live ledger view of one item. Remaining is computed
// for the requesting session: other sessions' live claims count against it,
// the viewer's own do not.
type ItemBreakdown struct {
	Item           models.BillItem
	Remaining      float64
	ClaimedTotal   float64
	Oversold       float64
	FullyAllocated bool
}

// Breakdown is the live ledger view of the whole bill.
type Breakdown struct {
	Items      []ItemBreakdown
	LiveClaims []LiveClaim
	Complete   bool
}

// Service owns selection finalization and the live-claim surface.
type Service interface {
	SubmitSelection(ctx context.Context, bill *models.Bill, input SubmitSelectionInput) (*SelectionSummary, error)
	ListSelections(ctx context.Context, bill *models.Bill) ([]SelectionSummary, error)
	SetPaid(ctx context.Context, billID, selectionID uuid.UUID, paid bool) error
	UpsertLiveClaim(ctx context.Context, bill *models.Bill, itemID, sessionID, displayName string, quantity float64) error
	ReleaseLiveClaim(ctx context.Context, billID uuid.UUID, itemID, sessionID string) error
	ListLiveClaims(ctx context.Context, billID uuid.UUID) ([]LiveClaim, error)
	Breakdown(ctx context.Context, bill *models.Bill, viewerSessionID string) (*Breakdown, error)
}

type service struct {
	repo         SelectionRepository
	live         LiveClaimStore
	broker       feedPublisher
	claimMetrics *metrics.ClaimMetrics
	logg         *logger.Logger
}

// NewService builds the claims service backed by the provided stack.
func NewService(repo SelectionRepository, live LiveClaimStore, broker feedPublisher, claimMetrics *metrics.ClaimMetrics, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("selection repository required")
	}
	if live == nil {
		return nil, fmt.Errorf("live claim store required")
	}
	if broker == nil {
		return nil, fmt.Errorf("feed broker required")
	}
	return &service{
		repo:         repo,
		live:         live,
		broker:       broker,
		claimMetrics: claimMetrics,
		logg:         logg,
	}, nil
}

// SubmitSelection validates and persists a finalized claim. Validation stops
// at the first failure and nothing is written on rejection. Overselection is
// never a rejection: first-submitted wins nothing here, the payer settles
// disputes at the table, so an oversold accept is recorded as advisory
// output only.
func (s *service) SubmitSelection(ctx context.Context, bill *models.Bill, input SubmitSelectionInput) (*SelectionSummary, error) {
	if bill == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "bill not found")
	}
	name := strings.TrimSpace(input.DisplayName)
	if name == "" || len(name) > maxDisplayNameLength {
		s.claimMetrics.IncSelection("rejected")
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "display name must be between 1 and 100 characters")
	}
	if len(input.Items) == 0 {
		s.claimMetrics.IncSelection("rejected")
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "selection must claim at least one item")
	}

	itemsByID := make(map[string]models.BillItem, len(bill.Items))
	for _, item := range bill.Items {
		itemsByID[item.ID.String()] = item
	}

	quantities := make(dbtypes.ItemQuantities, len(input.Items))
	var itemsTotal int64
	for itemID, qty := range input.Items {
		if math.IsNaN(qty) || math.IsInf(qty, 0) {
			s.claimMetrics.IncSelection("rejected")
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "item quantity must be a finite number")
		}
		if qty < 0 || qty > maxQuantityPerItem {
			s.claimMetrics.IncSelection("rejected")
			return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("item quantity must be between 0 and %v", maxQuantityPerItem))
		}
		item, ok := itemsByID[itemID]
		if !ok {
			s.claimMetrics.IncSelection("rejected")
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "selection references an item not on this bill")
		}
		// A zero entry means "no claim on this item", not an invalid claim.
		if qty == 0 {
			continue
		}
		quantities[itemID] = qty
		itemsTotal += models.MulQuantityCents(item.PriceCents, qty)
	}
	if len(quantities) == 0 {
		s.claimMetrics.IncSelection("rejected")
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "selection must claim at least one item")
	}

	if input.TipCents < 0 || input.TipCents > maxTipCents {
		s.claimMetrics.IncSelection("rejected")
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "tip is out of range")
	}
	total := itemsTotal + input.TipCents
	if total <= 0 || total > maxTotalCents {
		s.claimMetrics.IncSelection("rejected")
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "selection total is out of range")
	}
	if input.PaymentMethod != nil && !input.PaymentMethod.IsValid() {
		s.claimMetrics.IncSelection("rejected")
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unknown payment method")
	}

	selection := &models.Selection{
		BillID:        bill.ID,
		SessionID:     normalizeSessionID(input.SessionID),
		DisplayName:   name,
		Items:         quantities,
		TipCents:      input.TipCents,
		PaymentMethod: input.PaymentMethod,
	}

	oversoldIDs, err := s.oversoldAfter(ctx, bill, selection)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "checking item availability")
	}

	if selection.SessionID != nil {
		err = s.repo.ReplaceForSession(ctx, selection)
	} else {
		err = s.repo.Create(ctx, selection)
	}
	if err != nil {
		s.claimMetrics.IncSelection("error")
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "persisting selection")
	}
	s.claimMetrics.IncSelection("accepted")
	if len(oversoldIDs) > 0 {
		s.claimMetrics.IncOversold()
	}

	// Cleanup and fan-out are best effort once the selection is durable. All
	// of the session's holds are swept, including ones on items it backed
	// out of before submitting.
	if selection.SessionID != nil {
		if err := s.live.ReleaseSession(ctx, bill.ID.String(), *selection.SessionID); err != nil && s.logg != nil {
			s.logg.Error(ctx, "releasing live claims after submit", err)
		}
		s.publish(ctx, feed.LiveClaimsChanged(bill.ID.String()))
	}
	s.publish(ctx, feed.SelectionsChanged(bill.ID.String()))

	summary := s.summarize(bill, *selection)
	summary.OversoldItemIDs = oversoldIDs
	return &summary, nil
}

// ListSelections returns the bill's selections with derived totals.
func (s *service) ListSelections(ctx context.Context, bill *models.Bill) ([]SelectionSummary, error) {
	if bill == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "bill not found")
	}
	selections, err := s.repo.ListByBill(ctx, bill.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "listing selections")
	}
	summaries := make([]SelectionSummary, 0, len(selections))
	for _, selection := range selections {
		summaries = append(summaries, s.summarize(bill, selection))
	}
	return summaries, nil
}

// SetPaid records the payer's confirmation that a selection was settled.
func (s *service) SetPaid(ctx context.Context, billID, selectionID uuid.UUID, paid bool) error {
	if err := s.repo.SetPaid(ctx, billID, selectionID, paid); err != nil {
		if err == gorm.ErrRecordNotFound {
			return pkgerrors.New(pkgerrors.CodeNotFound, "selection not found")
		}
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "updating selection")
	}
	s.publish(ctx, feed.SelectionsChanged(billID.String()))
	return nil
}

// UpsertLiveClaim records a provisional hold while a guest is deciding.
func (s *service) UpsertLiveClaim(ctx context.Context, bill *models.Bill, itemID, sessionID, displayName string, quantity float64) error {
	if bill == nil {
		return pkgerrors.New(pkgerrors.CodeNotFound, "bill not found")
	}
	if sessionID == "" {
		s.claimMetrics.IncLiveClaim("rejected")
		return pkgerrors.New(pkgerrors.CodeValidation, "session id is required")
	}
	if math.IsNaN(quantity) || math.IsInf(quantity, 0) || quantity < 0 || quantity > maxQuantityPerItem {
		s.claimMetrics.IncLiveClaim("rejected")
		return pkgerrors.New(pkgerrors.CodeValidation, "claim quantity is out of range")
	}
	found := false
	for _, item := range bill.Items {
		if item.ID.String() == itemID {
			found = true
			break
		}
	}
	if !found {
		s.claimMetrics.IncLiveClaim("rejected")
		return pkgerrors.New(pkgerrors.CodeValidation, "claim references an item not on this bill")
	}
	if err := s.live.Upsert(ctx, bill.ID.String(), itemID, sessionID, strings.TrimSpace(displayName), quantity); err != nil {
		s.claimMetrics.IncLiveClaim("error")
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "storing live claim")
	}
	s.claimMetrics.IncLiveClaim("accepted")
	s.publish(ctx, feed.LiveClaimsChanged(bill.ID.String()))
	return nil
}

// ReleaseLiveClaim drops one session's hold on one item.
func (s *service) ReleaseLiveClaim(ctx context.Context, billID uuid.UUID, itemID, sessionID string) error {
	if err := s.live.Release(ctx, billID.String(), itemID, sessionID); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "releasing live claim")
	}
	s.publish(ctx, feed.LiveClaimsChanged(billID.String()))
	return nil
}

// ListLiveClaims returns the bill's non-expired live claims.
func (s *service) ListLiveClaims(ctx context.Context, billID uuid.UUID) ([]LiveClaim, error) {
	claims, err := s.live.ListByBill(ctx, billID.String())
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "listing live claims")
	}
	return claims, nil
}

// Breakdown computes the derived ledger view: remaining and oversold per
// item plus the completion flag. Remaining is the viewer's view — other
// sessions' live claims count against it while the viewer's own do not, so
// nobody is ever blocked by their own pending edit. Allocation and
// completion stay viewer-independent, counting durable selections only.
func (s *service) Breakdown(ctx context.Context, bill *models.Bill, viewerSessionID string) (*Breakdown, error) {
	if bill == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "bill not found")
	}
	selections, err := s.repo.ListByBill(ctx, bill.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "listing selections")
	}
	liveClaims, err := s.live.ListByBill(ctx, bill.ID.String())
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "listing live claims")
	}

	claims := ledgerClaims(selections, liveClaims)
	items := make([]ItemBreakdown, 0, len(bill.Items))
	ledgerItems := make([]ledger.Item, 0, len(bill.Items))
	for _, item := range bill.Items {
		li := ledger.Item{ID: item.ID.String(), TotalQuantity: item.Quantity}
		ledgerItems = append(ledgerItems, li)
		items = append(items, ItemBreakdown{
			Item:           item,
			Remaining:      ledger.RemainingFor(li, claims, viewerSessionID),
			ClaimedTotal:   ledger.ClaimedTotalFor(li, claims),
			Oversold:       ledger.OversoldFor(li, claims),
			FullyAllocated: ledger.IsFullyAllocated(li, claims),
		})
	}

	return &Breakdown{
		Items:      items,
		LiveClaims: liveClaims,
		Complete:   ledger.BillComplete(ledgerItems, claims),
	}, nil
}

func (s *service) oversoldAfter(ctx context.Context, bill *models.Bill, candidate *models.Selection) ([]string, error) {
	existing, err := s.repo.ListByBill(ctx, bill.ID)
	if err != nil {
		return nil, err
	}
	claims := make([]ledger.Claim, 0, len(existing)+len(candidate.Items))
	for _, selection := range existing {
		// Replace semantics: when a session resubmits, its previous
		// selection is about to disappear and must not count.
		if candidate.SessionID != nil && selection.SessionID != nil && *selection.SessionID == *candidate.SessionID {
			continue
		}
		claims = append(claims, selectionClaims(selection)...)
	}
	claims = append(claims, selectionClaims(*candidate)...)

	var oversoldIDs []string
	for _, item := range bill.Items {
		li := ledger.Item{ID: item.ID.String(), TotalQuantity: item.Quantity}
		if ledger.OversoldFor(li, claims) > 0 {
			oversoldIDs = append(oversoldIDs, li.ID)
		}
	}
	return oversoldIDs, nil
}

func (s *service) summarize(bill *models.Bill, selection models.Selection) SelectionSummary {
	var itemsTotal int64
	pricesByID := make(map[string]int64, len(bill.Items))
	for _, item := range bill.Items {
		pricesByID[item.ID.String()] = item.PriceCents
	}
	for itemID, qty := range selection.Items {
		itemsTotal += models.MulQuantityCents(pricesByID[itemID], qty)
	}
	total := itemsTotal + selection.TipCents

	summary := SelectionSummary{
		Selection:       selection,
		ItemsTotalCents: itemsTotal,
		TotalCents:      total,
	}
	if selection.PaymentMethod != nil && *selection.PaymentMethod == enums.PaymentMethodPaypal && bill.PaypalHandle != nil {
		if link, err := paylink.PaypalMe(*bill.PaypalHandle, total, bill.Currency); err == nil {
			summary.PayLink = link
		}
	}
	return summary
}

func (s *service) publish(ctx context.Context, event feed.Event) {
	if err := s.broker.Publish(ctx, event); err != nil && s.logg != nil {
		s.logg.Error(ctx, "publishing feed event", err)
	}
}

func normalizeSessionID(sessionID *string) *string {
	if sessionID == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*sessionID)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func selectionClaims(selection models.Selection) []ledger.Claim {
	sessionID := ""
	if selection.SessionID != nil {
		sessionID = *selection.SessionID
	}
	claims := make([]ledger.Claim, 0, len(selection.Items))
	for itemID, qty := range selection.Items {
		claims = append(claims, ledger.Claim{
			ItemID:    itemID,
			SessionID: sessionID,
			Quantity:  qty,
		})
	}
	return claims
}

func ledgerClaims(selections []models.Selection, liveClaims []LiveClaim) []ledger.Claim {
	claims := make([]ledger.Claim, 0, len(selections)*2+len(liveClaims))
	for _, selection := range selections {
		claims = append(claims, selectionClaims(selection)...)
	}
	for _, live := range liveClaims {
		claims = append(claims, ledger.Claim{
			ItemID:    live.ItemID,
			SessionID: live.SessionID,
			Quantity:  live.Quantity,
			Live:      true,
		})
	}
	return claims
}
