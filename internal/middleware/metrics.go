// Package middleware provides authentication, logging, and metrics middleware.
package middleware

import (
	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Domain metrics. The election and game-loop counters are the ones worth
// alerting on: a climbing ElectionsWon across nodes means leadership is
// flapping, and a stalled RoundsStarted means the station is stuck.
var (
	RedisErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "youniverse_redis_errors_total",
		Help: "Redis command errors by command name.",
	}, []string{"command"})

	ElectionsWon = promauto.NewCounter(prometheus.CounterOpts{
		Name: "youniverse_elections_won_total",
		Help: "Leadership claims won by this node.",
	})

	ElectionsLost = promauto.NewCounter(prometheus.CounterOpts{
		Name: "youniverse_elections_lost_total",
		Help: "Leadership claim races lost by this node.",
	})

	HeartbeatsSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "youniverse_heartbeats_total",
		Help: "Leader heartbeats written by this node.",
	})

	Demotions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "youniverse_demotions_total",
		Help: "Times this node demoted itself from leadership.",
	})

	RoundsStarted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "youniverse_box_rounds_total",
		Help: "Box voting rounds started.",
	})

	VotesCast = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "youniverse_votes_total",
		Help: "Votes cast by kind (user or simulated).",
	}, []string{"kind"})

	HealthRecoveries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "youniverse_health_recoveries_total",
		Help: "Self-heal actions by kind (zombie, empty_broadcast, stale_round).",
	}, []string{"kind"})

	SongsGraveyarded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "youniverse_songs_graveyarded_total",
		Help: "Songs retired at zero stars or failed debuts.",
	})
)

// InitMetrics creates the Prometheus HTTP middleware for the given service name.
func InitMetrics(serviceName string) *fiberprometheus.FiberPrometheus {
	return fiberprometheus.New(serviceName)
}
