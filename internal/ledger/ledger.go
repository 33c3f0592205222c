package ledger

// The quantity ledger is derived state, never stored: given an item's total
// quantity and the claims known to the caller it computes what is left, what
// is taken and what is over-claimed. All arithmetic is exact float
// subtraction/summation; display-level epsilon matching lives with the
// callers, not here.

// Claim is one declared quantity against one item, either from a durable
// selection or from a live (not yet submitted) claim.
type Claim struct {
	ItemID    string
	SessionID string
	Quantity  float64
	// Live marks a claim that has not been submitted yet. Live claims count
	// against every session's remaining view except their own holder's, and
	// always feed overselection warnings.
	Live bool
}

// Item is the quantity-bearing view of a bill item the ledger needs.
type Item struct {
	ID            string
	TotalQuantity float64
}

// RemainingFor returns what the viewing session may still pick: the item's
// total minus every durable selection quantity and minus other sessions'
// live claims, clamped to zero. The viewer's own live claims are skipped so
// a session revising its pending claim never sees itself as blocking; pass
// an empty viewerSessionID to fold in every live claim.
func RemainingFor(item Item, claims []Claim, viewerSessionID string) float64 {
	remaining := item.TotalQuantity
	for _, c := range claims {
		if c.ItemID != item.ID {
			continue
		}
		if c.Live && viewerSessionID != "" && c.SessionID == viewerSessionID {
			continue
		}
		remaining -= c.Quantity
	}
	if remaining < 0 {
		return 0
	}
	return remaining
}

// SelectionRemaining returns the item's total minus durable selections
// only, clamped to zero. Live claims are intent, not commitment, so
// allocation and completion math ignores them.
func SelectionRemaining(item Item, claims []Claim) float64 {
	remaining := item.TotalQuantity
	for _, c := range claims {
		if c.ItemID != item.ID || c.Live {
			continue
		}
		remaining -= c.Quantity
	}
	if remaining < 0 {
		return 0
	}
	return remaining
}

// ClaimedTotalFor returns the unclamped sum of every claim against the
// item, live ones included. Callers compare it against TotalQuantity to
// detect overselection.
func ClaimedTotalFor(item Item, claims []Claim) float64 {
	var total float64
	for _, c := range claims {
		if c.ItemID != item.ID {
			continue
		}
		total += c.Quantity
	}
	return total
}

// OversoldFor returns how far combined claims (live included) exceed the
// item's total quantity, zero when they fit.
func OversoldFor(item Item, claims []Claim) float64 {
	over := ClaimedTotalFor(item, claims) - item.TotalQuantity
	if over < 0 {
		return 0
	}
	return over
}

// IsFullyAllocated reports whether durable selections cover the item's full
// quantity.
func IsFullyAllocated(item Item, claims []Claim) bool {
	return SelectionRemaining(item, claims) == 0
}

// BillComplete reports whether every item is fully allocated by durable
// selections. Callers that fire a one-time signal on completion own the
// has-fired flag and reset it when this turns false again.
func BillComplete(items []Item, claims []Claim) bool {
	for _, item := range items {
		if !IsFullyAllocated(item, claims) {
			return false
		}
	}
	return true
}
