package treecontract

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// contractionsTotal counts contractions by outcome.
	contractionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "treecontract_contractions_total",
		Help: "Total tree contractions by result",
	}, []string{"result"}) // "ok", "input_error", or "violation"

	// rakesTotal counts rakes by phase.
	rakesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "treecontract_rakes_total",
		Help: "Total rakes by round phase",
	}, []string{"phase"})

	// contractionRounds tracks the number of rounds per successful contraction.
	contractionRounds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "treecontract_rounds",
		Help:    "Contraction rounds per expression",
		Buckets: prometheus.LinearBuckets(0, 2, 12),
	})
)

func observeContraction(st Stats, err error) {
	switch {
	case err == nil:
		contractionsTotal.WithLabelValues("ok").Inc()
		contractionRounds.Observe(float64(st.Rounds))
	case isViolation(err):
		contractionsTotal.WithLabelValues("violation").Inc()
	default:
		contractionsTotal.WithLabelValues("input_error").Inc()
	}
}

func observeRake(p Phase) {
	rakesTotal.WithLabelValues(p.String()).Inc()
}
