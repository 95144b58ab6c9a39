package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	eventsConsumed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mission_events_consumed_total",
			Help: "Consumed bus messages by topic and handler result",
		},
		[]string{"topic", "result"},
	)

	missionsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "missions_completed_total",
			Help: "Missions transitioned to completed, by mission type",
		},
		[]string{"mission_type"},
	)

	rewardsDistributed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "mission_rewards_distributed_total",
			Help: "Rewards actually inserted (not duplicates)",
		},
	)

	outboxOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mission_outbox_messages_total",
			Help: "Outbox sweeper outcomes",
		},
		[]string{"outcome"},
	)
)

func EventConsumed(topic, result string) { eventsConsumed.WithLabelValues(topic, result).Inc() }

func MissionCompleted(missionType string) { missionsCompleted.WithLabelValues(missionType).Inc() }

func RewardDistributed() { rewardsDistributed.Inc() }

func OutboxResent()  { outboxOutcomes.WithLabelValues("resent").Inc() }
func OutboxRetried() { outboxOutcomes.WithLabelValues("retried").Inc() }
func OutboxDead()    { outboxOutcomes.WithLabelValues("failed").Inc() }

// Handler serves the prometheus scrape endpoint.
func Handler() http.Handler { return promhttp.Handler() }
