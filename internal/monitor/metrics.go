package monitor

import (
	"context"
	"database/sql"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"anoncart/internal/model"
)

// MetricsCollector owns every application metric on a private registry
type MetricsCollector struct {
	registry *prometheus.Registry

	// sessions
	sessionIssuedTotal   *prometheus.CounterVec
	sessionRejectedTotal *prometheus.CounterVec

	// carts
	cartOperationTotal *prometheus.CounterVec

	// merges
	mergeTotal                *prometheus.CounterVec
	mergeCartItemsTransferred prometheus.Counter
	mergeDuplicatesHandled    prometheus.Counter
	mergePreferencesMoved     prometheus.Counter

	// accounts
	userRegistrationTotal *prometheus.CounterVec
	userLoginTotal        *prometheus.CounterVec

	// http
	httpRequestTotal    *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// database pool
	dbConnectionsInUse prometheus.Gauge
	dbConnectionsIdle  prometheus.Gauge
	dbConnectionsOpen  prometheus.Gauge
}

// NewMetricsCollector creates a collector registering under namespace
func NewMetricsCollector(namespace string) *MetricsCollector {
	mc := &MetricsCollector{registry: prometheus.NewRegistry()}
	mc.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	mc.initMetrics(namespace)
	return mc
}

func (mc *MetricsCollector) initMetrics(namespace string) {
	factory := promauto.With(mc.registry)

	mc.sessionIssuedTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "anonymous_session_issued_total",
			Help:      "Total number of anonymous session credentials issued",
		},
		[]string{"status"},
	)
	mc.sessionRejectedTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "anonymous_session_rejected_total",
			Help:      "Total number of requests carrying an unusable anonymous credential",
		},
		[]string{"reason"},
	)

	mc.cartOperationTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cart_operation_total",
			Help:      "Total number of cart operations",
		},
		[]string{"owner", "operation", "result"},
	)

	mc.mergeTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "merge_total",
			Help:      "Total number of anonymous to account merges by outcome",
		},
		[]string{"outcome"},
	)
	mc.mergeCartItemsTransferred = factory.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "merge_cart_items_transferred_total",
		Help:      "Cart lines copied into accounts by merges",
	})
	mc.mergeDuplicatesHandled = factory.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "merge_duplicates_handled_total",
		Help:      "Cart lines folded into existing account lines by merges",
	})
	mc.mergePreferencesMoved = factory.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "merge_preferences_transferred_total",
		Help:      "Location preferences copied into accounts by merges",
	})

	mc.userRegistrationTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "user_registration_total",
			Help:      "Total number of user registrations",
		},
		[]string{"status"},
	)
	mc.userLoginTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "user_login_total",
			Help:      "Total number of user logins",
		},
		[]string{"status"},
	)

	mc.httpRequestTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)
	mc.httpRequestDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	mc.dbConnectionsInUse = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "db_connections_in_use",
		Help:      "Database connections currently in use",
	})
	mc.dbConnectionsIdle = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "db_connections_idle",
		Help:      "Idle database connections",
	})
	mc.dbConnectionsOpen = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "db_connections_open",
		Help:      "Open database connections",
	})
}

// RecordSessionIssued records an anonymous session issuance attempt
func (mc *MetricsCollector) RecordSessionIssued(status string) {
	mc.sessionIssuedTotal.WithLabelValues(status).Inc()
}

// RecordSessionRejected records a request with an unusable anonymous credential
func (mc *MetricsCollector) RecordSessionRejected(reason string) {
	mc.sessionRejectedTotal.WithLabelValues(reason).Inc()
}

// RecordCartOperation records a cart operation outcome
func (mc *MetricsCollector) RecordCartOperation(owner, operation, result string) {
	mc.cartOperationTotal.WithLabelValues(owner, operation, result).Inc()
}

// RecordMerge records a merge outcome and what it moved
func (mc *MetricsCollector) RecordMerge(status model.MergeStatus, details model.MergeDetails) {
	outcome := "failed"
	switch status {
	case model.MergeStatusOK:
		outcome = "success"
		if details.Empty() {
			outcome = "empty"
		}
	case model.MergeStatusInvalidToken:
		outcome = "invalid_token"
	}
	mc.mergeTotal.WithLabelValues(outcome).Inc()

	mc.mergeCartItemsTransferred.Add(float64(details.CartItemsTransferred))
	mc.mergeDuplicatesHandled.Add(float64(details.DuplicatesHandled))
	if details.PreferencesTransferred {
		mc.mergePreferencesMoved.Inc()
	}
}

// RecordUserRegistration records a registration attempt
func (mc *MetricsCollector) RecordUserRegistration(status string) {
	mc.userRegistrationTotal.WithLabelValues(status).Inc()
}

// RecordUserLogin records a login attempt
func (mc *MetricsCollector) RecordUserLogin(status string) {
	mc.userLoginTotal.WithLabelValues(status).Inc()
}

// RecordHTTPRequest records a served request
func (mc *MetricsCollector) RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	mc.httpRequestTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	mc.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// UpdateDBStats copies the connection pool statistics
func (mc *MetricsCollector) UpdateDBStats(stats sql.DBStats) {
	mc.dbConnectionsInUse.Set(float64(stats.InUse))
	mc.dbConnectionsIdle.Set(float64(stats.Idle))
	mc.dbConnectionsOpen.Set(float64(stats.OpenConnections))
}

// StartDBStatsCollection polls stats every interval until ctx is done
func (mc *MetricsCollector) StartDBStatsCollection(ctx context.Context, interval time.Duration, stats func() sql.DBStats) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			mc.UpdateDBStats(stats())
		}
	}
}

// GetRegistry returns the registry holding every metric
func (mc *MetricsCollector) GetRegistry() *prometheus.Registry {
	return mc.registry
}

// Handler serves the registry in the Prometheus exposition format
func (mc *MetricsCollector) Handler() http.Handler {
	return promhttp.HandlerFor(mc.registry, promhttp.HandlerOpts{Registry: mc.registry})
}
