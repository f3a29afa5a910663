package bandit

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	BanditSelectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bandit_selections_total",
			Help: "Count of response-style selections by arm.",
		},
		[]string{"arm"},
	)

	BanditRewardsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bandit_rewards_total",
			Help: "Count of observed rewards by arm and signal.",
		},
		[]string{"arm", "signal"},
	)
)

func init() {
	prometheus.MustRegister(BanditSelectionsTotal, BanditRewardsTotal)
}
