// Package metrics declares the prometheus collectors for both sync
// directions and the record helpers used by the server and the client agent.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// API
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "radsync_api_requests_total",
			Help: "Total number of API requests by route and status code",
		},
		[]string{"method", "route", "status"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "radsync_api_request_duration_seconds",
			Help:    "API request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	NotModifiedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "radsync_not_modified_total",
			Help: "Responses short-circuited by a matching If-None-Match",
		},
		[]string{"route"},
	)

	ListCacheTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "radsync_list_cache_total",
			Help: "List cache lookups by kind and result",
		},
		[]string{"kind", "result"}, // "hit", "miss"
	)

	// Server delta engine
	DeltaRowsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "radsync_delta_rows_total",
			Help: "Rows served by the delta endpoint",
		},
		[]string{"type"}, // "change", "tombstone"
	)

	DeltaTruncatedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "radsync_delta_truncated_total",
			Help: "Delta responses whose tombstone page was full",
		},
	)

	// Server push
	PushOpsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "radsync_push_ops_total",
			Help: "Operations received by push, by outcome",
		},
		[]string{"result"}, // "applied", "duplicate"
	)

	PushBatchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "radsync_push_batches_total",
			Help: "Push batches by outcome",
		},
		[]string{"result"}, // "committed", "rolled_back"
	)

	// Side channel
	SideChannelTasksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "radsync_sidechannel_tasks_total",
			Help: "Side-channel mirror tasks by sink and outcome",
		},
		[]string{"sink", "result"}, // "ok", "retry", "failed", "dropped"
	)

	SideChannelQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "radsync_sidechannel_queue_depth",
			Help: "Tasks waiting in the side-channel queue",
		},
	)

	// Client
	ClientSyncTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "radsync_client_sync_total",
			Help: "Client sync attempts by direction and outcome",
		},
		[]string{"direction", "result"}, // direction: "pull", "push"
	)

	ClientQueuePending = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "radsync_client_queue_pending",
			Help: "Operations waiting in the client push queue",
		},
	)

	ClientCacheHitsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "radsync_client_cache_hits_total",
			Help: "Client requests answered with 304 Not Modified",
		},
	)
)

// RecordAPIRequest records one served request.
func RecordAPIRequest(method, route string, status int, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	APIRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// RecordListCache records one list cache lookup.
func RecordListCache(kind string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	ListCacheTotal.WithLabelValues(kind, result).Inc()
}

// RecordDelta records a served delta page.
func RecordDelta(changes, tombstones int, truncated bool) {
	DeltaRowsTotal.WithLabelValues("change").Add(float64(changes))
	DeltaRowsTotal.WithLabelValues("tombstone").Add(float64(tombstones))
	if truncated {
		DeltaTruncatedTotal.Inc()
	}
}

// RecordPush records the outcome of one push batch.
func RecordPush(received, applied int, err error) {
	if err != nil {
		PushBatchesTotal.WithLabelValues("rolled_back").Inc()
		return
	}
	PushBatchesTotal.WithLabelValues("committed").Inc()
	PushOpsTotal.WithLabelValues("applied").Add(float64(applied))
	PushOpsTotal.WithLabelValues("duplicate").Add(float64(received - applied))
}

// RecordSideChannel records a mirror task outcome for sink.
func RecordSideChannel(sink, result string) {
	SideChannelTasksTotal.WithLabelValues(sink, result).Inc()
}

// RecordClientSync records a client pull or push attempt.
func RecordClientSync(direction string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	ClientSyncTotal.WithLabelValues(direction, result).Inc()
}
