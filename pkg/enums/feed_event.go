package enums

import "fmt"

// FeedEventKind names the resource a change-feed hint invalidates. The hint
// carries no authoritative content; consumers re-fetch the named resource.
type FeedEventKind string

const (
	FeedEventSelections FeedEventKind = "selections"
	FeedEventItems      FeedEventKind = "items"
	FeedEventLiveClaims FeedEventKind = "live_claims"
)

var validFeedEventKinds = []FeedEventKind{
	FeedEventSelections,
	FeedEventItems,
	FeedEventLiveClaims,
}

// String implements fmt.Stringer.
func (k FeedEventKind) String() string {
	return string(k)
}

// IsValid reports whether the value is a known FeedEventKind.
func (k FeedEventKind) IsValid() bool {
	for _, candidate := range validFeedEventKinds {
		if candidate == k {
			return true
		}
	}
	return false
}

// ParseFeedEventKind converts raw input into a FeedEventKind.
func ParseFeedEventKind(value string) (FeedEventKind, error) {
	for _, candidate := range validFeedEventKinds {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid feed event kind %q", value)
}

// ItemAction qualifies an items-changed hint.
type ItemAction string

const (
	ItemActionCreated ItemAction = "created"
	ItemActionUpdated ItemAction = "updated"
	ItemActionDeleted ItemAction = "deleted"
)

// IsValid reports whether the value is a known ItemAction.
func (a ItemAction) IsValid() bool {
	switch a {
	case ItemActionCreated, ItemActionUpdated, ItemActionDeleted:
		return true
	}
	return false
}
