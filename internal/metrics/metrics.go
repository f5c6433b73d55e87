// Package metrics registers the service's prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SyncWritten counts records written per collection across sync passes.
	SyncWritten = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "rostersync",
		Name:      "sync_records_written_total",
		Help:      "Records written to the store by sync passes.",
	}, []string{"collection"})

	// SyncSkipped counts records dropped by transform validation.
	SyncSkipped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "rostersync",
		Name:      "sync_records_skipped_total",
		Help:      "Records skipped during transform validation.",
	}, []string{"collection"})

	// SyncFailures counts per-collection sync aborts.
	SyncFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "rostersync",
		Name:      "sync_failures_total",
		Help:      "Collection sync passes that aborted with an error.",
	}, []string{"collection"})

	// QueryRequests counts identity-scoped view requests by outcome.
	QueryRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "rostersync",
		Name:      "query_requests_total",
		Help:      "Roster view requests by outcome.",
	}, []string{"outcome"})
)
