package feed

import (
	"context"
	"errors"
	"sync"

	"github.com/splittab/splittab-backend/pkg/logger"
	"github.com/splittab/splittab-backend/pkg/metrics"
)

const defaultSubscriberBuffer = 16

// Hub is the in-process fan-out: every subscriber of a bill gets a buffered
// copy of each published hint. A subscriber that falls behind loses events
// rather than blocking the publisher; lost hints are harmless because
// subscribers re-fetch on the next hint anyway.
type Hub struct {
	mu      sync.Mutex
	subs    map[string]map[*subscriber]struct{}
	buffer  int
	metrics *metrics.FeedMetrics
	logg    *logger.Logger
	closed  bool
}

type subscriber struct {
	ch chan Event
}

// NewHub builds a hub with the given per-subscriber buffer size.
func NewHub(buffer int, m *metrics.FeedMetrics, logg *logger.Logger) *Hub {
	if buffer <= 0 {
		buffer = defaultSubscriberBuffer
	}
	return &Hub{
		subs:    make(map[string]map[*subscriber]struct{}),
		buffer:  buffer,
		metrics: m,
		logg:    logg,
	}
}

// Publish delivers the event to every current subscriber of its bill.
func (h *Hub) Publish(ctx context.Context, event Event) error {
	if event.BillID == "" {
		return errors.New("feed event requires a bill id")
	}
	if !event.Kind.IsValid() {
		return errors.New("feed event requires a valid kind")
	}
	h.metrics.IncPublished(event.Kind.String())
	h.deliver(event)
	return nil
}

// Subscribe registers a listener for one bill. The returned cancel func
// unregisters and closes the channel; it is safe to call more than once.
func (h *Hub) Subscribe(billID string) (<-chan Event, func()) {
	sub := &subscriber{ch: make(chan Event, h.buffer)}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		close(sub.ch)
		return sub.ch, func() {}
	}
	set, ok := h.subs[billID]
	if !ok {
		set = make(map[*subscriber]struct{})
		h.subs[billID] = set
	}
	set[sub] = struct{}{}
	h.mu.Unlock()

	h.metrics.SubscriberConnected("hub")

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			if set, ok := h.subs[billID]; ok {
				if _, present := set[sub]; present {
					delete(set, sub)
					close(sub.ch)
					if len(set) == 0 {
						delete(h.subs, billID)
					}
				}
			}
			h.mu.Unlock()
			h.metrics.SubscriberDisconnected("hub")
		})
	}
	return sub.ch, cancel
}

// Close drops every subscriber and rejects future subscriptions.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for billID, set := range h.subs {
		for sub := range set {
			close(sub.ch)
		}
		delete(h.subs, billID)
	}
}

// deliver sends under the lock: cancel and Close close subscriber channels
// while holding it, so a send can never race a close. Sends never block —
// each channel is buffered and a full one drops the event.
func (h *Hub) deliver(event Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for sub := range h.subs[event.BillID] {
		select {
		case sub.ch <- event:
		default:
			h.metrics.IncDropped(event.Kind.String())
			if h.logg != nil {
				h.logg.Warn(context.Background(), "dropping feed event for slow subscriber")
			}
		}
	}
}
