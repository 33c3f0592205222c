package liveview

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/splittab/splittab-backend/internal/claims"
	"github.com/splittab/splittab-backend/internal/feed"
	"github.com/splittab/splittab-backend/pkg/debounce"
	"github.com/splittab/splittab-backend/pkg/enums"
	"github.com/splittab/splittab-backend/pkg/logger"
)

const (
	defaultSelectionsDebounce = 100 * time.Millisecond
	defaultItemsDebounce      = 500 * time.Millisecond
	defaultHighlightWindow    = time.Second
)

// Source is whatever the watcher reads bill state from: the in-process
// services in tests and the HTTP API in the CLI.
type Source interface {
	FetchBreakdown(ctx context.Context, shareToken string) (*claims.Breakdown, error)
	FetchSelections(ctx context.Context, shareToken string) ([]claims.SelectionSummary, error)
	SubscribeFeed(ctx context.Context, shareToken string) (<-chan feed.Event, func(), error)
}

// Snapshot is the watcher's current view of the bill.
type Snapshot struct {
	Items      []claims.ItemBreakdown
	LiveClaims []claims.LiveClaim
	Selections []claims.SelectionSummary
	Complete   bool
}

// Highlight marks an item whose claims just changed through someone else.
type Highlight struct {
	ItemID    string
	ExpiresAt time.Time
}

// Handlers receive watcher output. Nil handlers are skipped. They are called
// from the watcher goroutine and must not block.
type Handlers struct {
	OnState     func(ConnState)
	OnSnapshot  func(Snapshot)
	OnHighlight func([]Highlight)
	OnComplete  func()
}

// Options tunes the watcher's timing. Zero values take the defaults.
type Options struct {
	SelectionsDebounce time.Duration
	ItemsDebounce      time.Duration
	HighlightWindow    time.Duration
	BackoffBase        time.Duration
	BackoffCap         time.Duration
}

// Params wires the watcher's dependencies.
type Params struct {
	Source     Source
	ShareToken string
	SessionID  string
	Logger     *logger.Logger
}

// Watcher keeps a local bill snapshot reconciled against the change feed.
// Hints never carry state; every hint schedules a debounced re-fetch, and a
// (re)connect always does a full refresh to cover whatever was missed while
// offline.
type Watcher struct {
	source     Source
	shareToken string
	sessionID  string
	logg       *logger.Logger
	opts       Options
	handlers   Handlers

	mu            sync.Mutex
	snapshot      Snapshot
	hasSnapshot   bool
	completeFired bool
	state         ConnState

	forceCh chan struct{}
	fastDeb *debounce.Debouncer
	slowDeb *debounce.Debouncer
}

// NewWatcher builds a watcher for one shared bill.
func NewWatcher(params Params, opts Options, handlers Handlers) (*Watcher, error) {
	if params.Source == nil {
		return nil, fmt.Errorf("source required")
	}
	if params.ShareToken == "" {
		return nil, fmt.Errorf("share token required")
	}
	if opts.SelectionsDebounce <= 0 {
		opts.SelectionsDebounce = defaultSelectionsDebounce
	}
	if opts.ItemsDebounce <= 0 {
		opts.ItemsDebounce = defaultItemsDebounce
	}
	if opts.HighlightWindow <= 0 {
		opts.HighlightWindow = defaultHighlightWindow
	}
	return &Watcher{
		source:     params.Source,
		shareToken: params.ShareToken,
		sessionID:  params.SessionID,
		logg:       params.Logger,
		opts:       opts,
		handlers:   handlers,
		state:      StateDisconnected,
		forceCh:    make(chan struct{}, 1),
	}, nil
}

// State returns the current connection state.
func (w *Watcher) State() ConnState {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// Snapshot returns the latest reconciled view.
func (w *Watcher) Snapshot() (Snapshot, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.snapshot, w.hasSnapshot
}

// ForceReconnect tears the current subscription down and reconnects without
// waiting out the backoff.
func (w *Watcher) ForceReconnect() {
	select {
	case w.forceCh <- struct{}{}:
	default:
	}
}

// Run drives the watcher until the context is canceled.
func (w *Watcher) Run(ctx context.Context) error {
	w.fastDeb = debounce.New(w.opts.SelectionsDebounce, func() { w.refresh(ctx) })
	w.slowDeb = debounce.New(w.opts.ItemsDebounce, func() { w.refresh(ctx) })
	defer w.fastDeb.Stop()
	defer w.slowDeb.Stop()

	attempt := 0
	first := true
	for {
		if ctx.Err() != nil {
			w.setState(StateDisconnected)
			return ctx.Err()
		}
		if first {
			w.setState(StateConnecting)
		} else {
			w.setState(StateReconnecting)
		}

		events, cancel, err := w.source.SubscribeFeed(ctx, w.shareToken)
		if err != nil {
			if w.logg != nil {
				w.logg.Error(ctx, "subscribing to change feed", err)
			}
			if !sleepCtx(ctx, backoffDelay(attempt, w.opts.BackoffBase, w.opts.BackoffCap)) {
				w.setState(StateDisconnected)
				return ctx.Err()
			}
			attempt++
			continue
		}

		w.setState(StateConnected)
		attempt = 0
		first = false
		w.refresh(ctx)

		alive := w.consume(ctx, events)
		cancel()
		if !alive {
			w.setState(StateDisconnected)
			return ctx.Err()
		}
	}
}

func (w *Watcher) consume(ctx context.Context, events <-chan feed.Event) bool {
	for {
		select {
		case <-ctx.Done():
			return false
		case <-w.forceCh:
			return true
		case event, ok := <-events:
			if !ok {
				return true
			}
			switch event.Kind {
			case enums.FeedEventSelections, enums.FeedEventLiveClaims:
				w.fastDeb.Trigger()
			case enums.FeedEventItems:
				w.slowDeb.Trigger()
			}
		}
	}
}

// refresh re-fetches the full bill state and emits the resulting snapshot,
// highlights and completion signal.
func (w *Watcher) refresh(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	breakdown, err := w.source.FetchBreakdown(ctx, w.shareToken)
	if err != nil {
		if w.logg != nil {
			w.logg.Error(ctx, "fetching bill breakdown", err)
		}
		return
	}
	selections, err := w.source.FetchSelections(ctx, w.shareToken)
	if err != nil {
		if w.logg != nil {
			w.logg.Error(ctx, "fetching selections", err)
		}
		return
	}

	next := Snapshot{
		Items:      breakdown.Items,
		LiveClaims: breakdown.LiveClaims,
		Selections: selections,
		Complete:   breakdown.Complete,
	}

	w.mu.Lock()
	prev := w.snapshot
	hadPrev := w.hasSnapshot
	w.snapshot = next
	w.hasSnapshot = true

	fireComplete := false
	if next.Complete && !w.completeFired {
		w.completeFired = true
		fireComplete = true
	} else if !next.Complete {
		// Re-arm: if the payer adds an item the bill is incomplete again
		// and a later completion fires again.
		w.completeFired = false
	}
	w.mu.Unlock()

	if w.handlers.OnSnapshot != nil {
		w.handlers.OnSnapshot(next)
	}
	if hadPrev && w.handlers.OnHighlight != nil {
		if highlights := w.diffHighlights(prev, next); len(highlights) > 0 {
			w.handlers.OnHighlight(highlights)
		}
	}
	if fireComplete && w.handlers.OnComplete != nil {
		w.handlers.OnComplete()
	}
}

// diffHighlights flags items whose claims changed through a session other
// than our own. Claim totals are recomputed with our session excluded on both
// sides, so revising our own selection never highlights anything.
func (w *Watcher) diffHighlights(prev, next Snapshot) []Highlight {
	before := claimedByOthers(prev, w.sessionID)
	after := claimedByOthers(next, w.sessionID)

	expires := time.Now().Add(w.opts.HighlightWindow)
	var highlights []Highlight
	for _, item := range next.Items {
		id := item.Item.ID.String()
		if before[id] != after[id] {
			highlights = append(highlights, Highlight{ItemID: id, ExpiresAt: expires})
		}
	}
	return highlights
}

func claimedByOthers(snap Snapshot, ownSession string) map[string]float64 {
	totals := make(map[string]float64)
	for _, summary := range snap.Selections {
		sel := summary.Selection
		if ownSession != "" && sel.SessionID != nil && *sel.SessionID == ownSession {
			continue
		}
		for itemID, qty := range sel.Items {
			totals[itemID] += qty
		}
	}
	for _, live := range snap.LiveClaims {
		if ownSession != "" && live.SessionID == ownSession {
			continue
		}
		totals[live.ItemID] += live.Quantity
	}
	return totals
}

func (w *Watcher) setState(state ConnState) {
	w.mu.Lock()
	changed := w.state != state
	w.state = state
	w.mu.Unlock()
	if changed && w.handlers.OnState != nil {
		w.handlers.OnState(state)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
