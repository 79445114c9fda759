// Package metrics provides Prometheus metrics for s3shift.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Tree mutation metrics
	itemsMovedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "s3shift_items_moved_total",
			Help: "Total number of items moved between folders",
		},
		[]string{"kind", "status"},
	)

	bytesMovedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "s3shift_bytes_moved_total",
			Help: "Total bytes of file content relocated by moves",
		},
	)

	itemsPrunedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "s3shift_items_pruned_total",
			Help: "Total number of already-copied items deleted from the source",
		},
		[]string{"kind", "status"},
	)

	treeSizeBytes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "s3shift_tree_size_bytes",
			Help: "Rolled-up size of the most recently built tree",
		},
	)

	treeItems = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "s3shift_tree_items",
			Help: "Number of descendants in the most recently built tree",
		},
	)

	treeBuildDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "s3shift_tree_build_duration_seconds",
			Help:    "Time to build a directory tree from the store",
			Buckets: prometheus.DefBuckets,
		},
	)

	clustersTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "s3shift_clusters_total",
			Help: "Total clusters produced by the clustering engine",
		},
	)

	// Copy supervision metrics
	copyBytesObserved = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "s3shift_copy_bytes_observed",
			Help: "Cumulative bytes reported by the running copy job",
		},
	)

	copyPollsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "s3shift_copy_polls_total",
			Help: "Total stats polls of the copy job",
		},
		[]string{"result"},
	)

	copyRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "s3shift_copy_runs_total",
			Help: "Total copy job runs by outcome",
		},
		[]string{"outcome"},
	)

	// S3 metrics
	s3OperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "s3shift_s3_operation_duration_seconds",
			Help:    "S3 operation duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	s3OperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "s3shift_s3_operations_total",
			Help: "Total S3 operations",
		},
		[]string{"operation", "status"},
	)
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Serve exposes the metrics on addr in the background. An empty addr
// does nothing.
func Serve(addr string) {
	if addr == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())
	go http.ListenAndServe(addr, mux)
}

func status(success bool) string {
	if success {
		return "success"
	}
	return "error"
}

// RecordMove records one item move.
func RecordMove(kind string, bytes int64, success bool) {
	itemsMovedTotal.WithLabelValues(kind, status(success)).Inc()
	if success {
		bytesMovedTotal.Add(float64(bytes))
	}
}

// RecordPrune records one deletion of an already-copied item.
func RecordPrune(kind string, success bool) {
	itemsPrunedTotal.WithLabelValues(kind, status(success)).Inc()
}

// RecordTreeBuild records a completed tree build.
func RecordTreeBuild(size int64, nitems int, duration time.Duration) {
	treeSizeBytes.Set(float64(size))
	treeItems.Set(float64(nitems))
	treeBuildDuration.Observe(duration.Seconds())
}

// RecordCluster records a produced cluster.
func RecordCluster() {
	clustersTotal.Inc()
}

// RecordCopyPoll records one stats poll and the byte count it saw.
func RecordCopyPoll(bytes int64, success bool) {
	copyPollsTotal.WithLabelValues(status(success)).Inc()
	if success {
		copyBytesObserved.Set(float64(bytes))
	}
}

// RecordCopyRun records how a copy job ended: completed, timed_out,
// stalled or cancelled.
func RecordCopyRun(outcome string) {
	copyRunsTotal.WithLabelValues(outcome).Inc()
}

// RecordS3Operation records an S3 operation.
func RecordS3Operation(operation string, duration time.Duration, success bool) {
	s3OperationDuration.WithLabelValues(operation).Observe(duration.Seconds())
	s3OperationsTotal.WithLabelValues(operation, status(success)).Inc()
}
