package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	CommandsSent = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sympa_commands_sent_total",
			Help: "Total commands dispatched to the list manager",
		},
	)

	CommandFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sympa_command_failures_total",
			Help: "Total command dispatch failures",
		},
	)

	LocalOnlyModerations = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "moderation_local_only_total",
			Help: "Moderation decisions recorded without a list manager command",
		},
	)

	SubscriptionsSynced = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "subscriptions_synced_total",
			Help: "Subscription items successfully synced",
		},
	)

	SubscriptionSyncFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "subscription_sync_failures_total",
			Help: "Subscription items that failed to sync",
		},
	)
)

func Init() {
	prometheus.MustRegister(
		CommandsSent,
		CommandFailures,
		LocalOnlyModerations,
		SubscriptionsSynced,
		SubscriptionSyncFailures,
	)
}
