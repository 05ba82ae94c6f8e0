package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Remote CRM calls
var (
	SearchRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crm_sync_search_requests_total",
			Help: "Total number of search requests sent to the CRM",
		},
		[]string{"object_type", "status"},
	)

	SearchRetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crm_sync_search_retries_total",
			Help: "Total number of search retries after a failed attempt",
		},
		[]string{"object_type"},
	)

	LookupFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crm_sync_lookup_failures_total",
			Help: "Association or contact lookups that failed and were skipped",
		},
		[]string{"op"},
	)

	TokenRefreshesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crm_sync_token_refreshes_total",
			Help: "Access credentials served, by origin",
		},
		[]string{"source"}, // cache, store, remote, error
	)
)

// Pipeline
var (
	EventsEnqueuedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crm_sync_events_enqueued_total",
			Help: "Action events pushed to the batch queue",
		},
		[]string{"object_type", "action"},
	)

	BatchesFlushedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crm_sync_batches_flushed_total",
			Help: "Batches handed to the sink",
		},
		[]string{"status"},
	)

	ObjectTypeDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "crm_sync_object_type_duration_seconds",
			Help:    "Duration of one object type's pagination loop",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
		},
		[]string{"object_type"},
	)
)

func RecordSearch(objectType string, err error) {
	SearchRequestsTotal.WithLabelValues(objectType, StatusFromError(err)).Inc()
}

func RecordRetry(objectType string) {
	SearchRetriesTotal.WithLabelValues(objectType).Inc()
}

func RecordLookupFailure(op string) {
	LookupFailuresTotal.WithLabelValues(op).Inc()
}

func RecordTokenRefresh(source string) {
	TokenRefreshesTotal.WithLabelValues(source).Inc()
}

func RecordEvent(objectType, action string) {
	EventsEnqueuedTotal.WithLabelValues(objectType, action).Inc()
}

func RecordFlush(err error) {
	BatchesFlushedTotal.WithLabelValues(StatusFromError(err)).Inc()
}

func RecordObjectType(objectType string, duration time.Duration) {
	ObjectTypeDuration.WithLabelValues(objectType).Observe(duration.Seconds())
}

func StatusFromError(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
