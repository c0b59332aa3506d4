package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	apiRequestsTotal  *prometheus.CounterVec
	apiLatencySeconds *prometheus.HistogramVec
	apiErrorsTotal    *prometheus.CounterVec

	backupsTotal          *prometheus.CounterVec
	backupLatencySeconds  prometheus.Histogram
	backupArchivesTotal   prometheus.Counter
	backupExportsTotal    *prometheus.CounterVec
	restoresTotal         *prometheus.CounterVec
	restoredRecordsTotal  prometheus.Counter
	activityWritesTotal   *prometheus.CounterVec
	activityCacheTotal    *prometheus.CounterVec
	connectivityProbes    *prometheus.CounterVec
	connectivityOnline    prometheus.Gauge
	connectivityIssues    prometheus.Gauge
	connectivityReconnect prometheus.Gauge
	connectivityClients   prometheus.Gauge
	connectivityTracked   prometheus.Gauge
)

// RegisterMetrics initialises the Prometheus collectors used across the service.
func RegisterMetrics() {
	registerOnce.Do(func() {
		apiRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "portal_api_requests_total",
			Help: "Total number of API requests served.",
		}, []string{"method", "route", "status"})

		apiLatencySeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "portal_api_latency_seconds",
			Help:    "Latency distribution for API requests.",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.0},
		}, []string{"method", "route"})

		apiErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "portal_api_errors_total",
			Help: "Total number of error responses returned by the API.",
		}, []string{"method", "route", "status"})

		backupsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "portal_backups_total",
			Help: "Backups attempted, labelled by outcome.",
		}, []string{"outcome"})

		backupLatencySeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "portal_backup_latency_seconds",
			Help:    "Time spent producing a backup snapshot.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		})

		backupArchivesTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "portal_backup_archives_total",
			Help: "Previous snapshots moved into the archive collection.",
		})

		backupExportsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "portal_backup_exports_total",
			Help: "Snapshot exports to blob storage, labelled by outcome.",
		}, []string{"outcome"})

		restoresTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "portal_restores_total",
			Help: "Version restores attempted, labelled by outcome.",
		}, []string{"outcome"})

		restoredRecordsTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "portal_restored_records_total",
			Help: "Calculation records re-stamped by restores.",
		})

		activityWritesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "portal_activity_writes_total",
			Help: "Activity log writes, labelled by outcome.",
		}, []string{"outcome"})

		activityCacheTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "portal_activity_cache_total",
			Help: "Recent activity lookups, labelled by cache result.",
		}, []string{"result"})

		connectivityProbes = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "portal_connectivity_probes_total",
			Help: "Reachability probes, labelled by outcome.",
		}, []string{"outcome"})

		connectivityOnline = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "portal_connectivity_online",
			Help: "1 when the client reports it is online.",
		})

		connectivityIssues = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "portal_connectivity_issues",
			Help: "1 when the last reachability probe failed.",
		})

		connectivityReconnect = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "portal_connectivity_reconnect_attempts",
			Help: "Reconnect attempts made since the last successful probe.",
		})

		connectivityClients = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "portal_connectivity_stream_clients",
			Help: "Active connectivity websocket clients.",
		})

		connectivityTracked = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "portal_connectivity_tracked_clients",
			Help: "Portal clients with a connectivity monitor.",
		})

		prometheus.MustRegister(
			apiRequestsTotal, apiLatencySeconds, apiErrorsTotal,
			backupsTotal, backupLatencySeconds, backupArchivesTotal, backupExportsTotal,
			restoresTotal, restoredRecordsTotal,
			activityWritesTotal, activityCacheTotal,
			connectivityProbes, connectivityOnline, connectivityIssues, connectivityReconnect, connectivityClients, connectivityTracked,
		)
	})
}

// APIRequests exposes the counter for API requests.
func APIRequests() *prometheus.CounterVec {
	RegisterMetrics()
	return apiRequestsTotal
}

// APILatency exposes the latency histogram for API requests.
func APILatency() *prometheus.HistogramVec {
	RegisterMetrics()
	return apiLatencySeconds
}

// APIErrors exposes the counter for API error responses.
func APIErrors() *prometheus.CounterVec {
	RegisterMetrics()
	return apiErrorsTotal
}

// Backups exposes the backup outcome counter.
func Backups() *prometheus.CounterVec {
	RegisterMetrics()
	return backupsTotal
}

// BackupLatency exposes the backup latency histogram.
func BackupLatency() prometheus.Histogram {
	RegisterMetrics()
	return backupLatencySeconds
}

// BackupArchives exposes the archived snapshot counter.
func BackupArchives() prometheus.Counter {
	RegisterMetrics()
	return backupArchivesTotal
}

// BackupExports exposes the snapshot export counter.
func BackupExports() *prometheus.CounterVec {
	RegisterMetrics()
	return backupExportsTotal
}

// Restores exposes the restore outcome counter.
func Restores() *prometheus.CounterVec {
	RegisterMetrics()
	return restoresTotal
}

// RestoredRecords exposes the restored calculation counter.
func RestoredRecords() prometheus.Counter {
	RegisterMetrics()
	return restoredRecordsTotal
}

// ActivityWrites exposes the activity write counter.
func ActivityWrites() *prometheus.CounterVec {
	RegisterMetrics()
	return activityWritesTotal
}

// ActivityCache exposes the recent activity cache counter.
func ActivityCache() *prometheus.CounterVec {
	RegisterMetrics()
	return activityCacheTotal
}

// ConnectivityProbes exposes the probe outcome counter.
func ConnectivityProbes() *prometheus.CounterVec {
	RegisterMetrics()
	return connectivityProbes
}

// ConnectivityOnline exposes the online gauge.
func ConnectivityOnline() prometheus.Gauge {
	RegisterMetrics()
	return connectivityOnline
}

// ConnectivityIssues exposes the connectivity issue gauge.
func ConnectivityIssues() prometheus.Gauge {
	RegisterMetrics()
	return connectivityIssues
}

// ConnectivityReconnectAttempts exposes the reconnect attempt gauge.
func ConnectivityReconnectAttempts() prometheus.Gauge {
	RegisterMetrics()
	return connectivityReconnect
}

// ConnectivityStreamClients exposes the websocket client gauge.
func ConnectivityStreamClients() prometheus.Gauge {
	RegisterMetrics()
	return connectivityClients
}

// ConnectivityTrackedClients exposes the per-client monitor gauge.
func ConnectivityTrackedClients() prometheus.Gauge {
	RegisterMetrics()
	return connectivityTracked
}
