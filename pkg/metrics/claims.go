package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// ClaimMetrics counts live-claim and selection traffic.
type ClaimMetrics struct {
	liveClaims *prometheus.CounterVec
	selections *prometheus.CounterVec
	oversold   prometheus.Counter
}

// NewClaimMetrics registers the claim metrics on the provided registerer.
func NewClaimMetrics(reg prometheus.Registerer) *ClaimMetrics {
	if reg == nil {
		return &ClaimMetrics{}
	}
	liveClaims := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "live_claim_upserts",
		Help: "Live-claim upserts by outcome.",
	}, []string{"outcome"})
	selections := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "selection_submissions",
		Help: "Selection submissions by outcome.",
	}, []string{"outcome"})
	oversold := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "selections_accepted_oversold",
		Help: "Accepted selections that pushed an item past its total quantity.",
	})
	reg.MustRegister(liveClaims, selections, oversold)
	return &ClaimMetrics{
		liveClaims: liveClaims,
		selections: selections,
		oversold:   oversold,
	}
}

// IncLiveClaim increments the live-claim counter for the outcome.
func (c *ClaimMetrics) IncLiveClaim(outcome string) {
	if c == nil || c.liveClaims == nil {
		return
	}
	c.liveClaims.WithLabelValues(normalizeLabel(outcome)).Inc()
}

// IncSelection increments the selection counter for the outcome.
func (c *ClaimMetrics) IncSelection(outcome string) {
	if c == nil || c.selections == nil {
		return
	}
	c.selections.WithLabelValues(normalizeLabel(outcome)).Inc()
}

// IncOversold increments the accepted-oversold counter.
func (c *ClaimMetrics) IncOversold() {
	if c == nil || c.oversold == nil {
		return
	}
	c.oversold.Inc()
}
