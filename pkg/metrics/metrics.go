// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "homeenergy"

var (
	ActionsDispatched = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "actions_dispatched_total",
		Help:      "Actions applied to the state store, by action kind.",
	}, []string{"action"})

	NavigationHistoryLength = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "navigation_history_length",
		Help:      "Entries in the navigation history.",
	})

	SnapshotDocuments = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "snapshot_documents",
		Help:      "Documents held by the current collection snapshot.",
	})

	SubscriptionsIssued = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "subscriptions_issued_total",
		Help:      "Subscribe calls issued, by publication name.",
	}, []string{"name"})

	SubscriptionErrors = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "subscription_errors_total",
		Help:      "Subscribe calls the transport rejected.",
	})

	ResolverCache = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "resolver_cache_total",
		Help:      "Aggregate resolver cache lookups, by result.",
	}, []string{"result"})

	SnapshotSaveDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "snapshot_save_duration_seconds",
		Help:      "Time spent persisting a collection snapshot.",
		Buckets:   prometheus.DefBuckets,
	})
)
