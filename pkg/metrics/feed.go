package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// FeedMetrics records change-feed fan-out activity.
type FeedMetrics struct {
	subscribers *prometheus.GaugeVec
	published   *prometheus.CounterVec
	dropped     *prometheus.CounterVec
}

// NewFeedMetrics registers the feed metrics on the provided registerer.
func NewFeedMetrics(reg prometheus.Registerer) *FeedMetrics {
	if reg == nil {
		return &FeedMetrics{}
	}
	subscribers := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "feed_subscribers",
		Help: "Connected change-feed subscribers.",
	}, []string{"transport"})
	published := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "feed_events_published",
		Help: "Change-feed events published.",
	}, []string{"kind"})
	dropped := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "feed_events_dropped",
		Help: "Change-feed events dropped on slow subscribers.",
	}, []string{"kind"})
	reg.MustRegister(subscribers, published, dropped)
	return &FeedMetrics{
		subscribers: subscribers,
		published:   published,
		dropped:     dropped,
	}
}

// SubscriberConnected increments the subscriber gauge for the transport.
func (f *FeedMetrics) SubscriberConnected(transport string) {
	if f == nil || f.subscribers == nil {
		return
	}
	f.subscribers.WithLabelValues(normalizeLabel(transport)).Inc()
}

// SubscriberDisconnected decrements the subscriber gauge for the transport.
func (f *FeedMetrics) SubscriberDisconnected(transport string) {
	if f == nil || f.subscribers == nil {
		return
	}
	f.subscribers.WithLabelValues(normalizeLabel(transport)).Dec()
}

// IncPublished increments the published counter for the event kind.
func (f *FeedMetrics) IncPublished(kind string) {
	if f == nil || f.published == nil {
		return
	}
	f.published.WithLabelValues(normalizeLabel(kind)).Inc()
}

// IncDropped increments the dropped counter for the event kind.
func (f *FeedMetrics) IncDropped(kind string) {
	if f == nil || f.dropped == nil {
		return
	}
	f.dropped.WithLabelValues(normalizeLabel(kind)).Inc()
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
