// Package metrics exposes Prometheus instrumentation for the daemon,
// grounded on _examples/r3e-network-service_layer/pkg/metrics/metrics.go:
// a package-level Registry, CounterVec/HistogramVec/GaugeVec collectors
// registered in init(), an HTTP instrumentation middleware, and small
// Record*/Set* helpers the rest of the module calls into.
package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds the application-specific Prometheus collectors.
var Registry = prometheus.NewRegistry()

var (
	httpInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "flowmesh",
		Subsystem: "http",
		Name:      "inflight_requests",
		Help:      "Current number of in-flight HTTP requests.",
	})

	httpRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "flowmesh",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Total number of HTTP requests handled.",
	}, []string{"method", "path", "status"})

	httpDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "flowmesh",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "Duration of HTTP requests.",
		Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10),
	}, []string{"method", "path"})

	flowExecutions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "flowmesh",
		Subsystem: "flows",
		Name:      "executions_total",
		Help:      "Total number of flow executions, grouped by device and outcome.",
	}, []string{"stable_device_id", "success"})

	flowDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "flowmesh",
		Subsystem: "flows",
		Name:      "execution_duration_seconds",
		Help:      "Duration of flow executions.",
		Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
	}, []string{"stable_device_id"})

	queueDepth = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "flowmesh",
		Subsystem: "scheduler",
		Name:      "queue_depth",
		Help:      "Current number of flows queued for a device.",
	}, []string{"stable_device_id"})

	queueOverflow = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "flowmesh",
		Subsystem: "scheduler",
		Name:      "queue_overflow_total",
		Help:      "Total number of enqueue attempts rejected by a full queue.",
	}, []string{"stable_device_id"})

	deviceOnline = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "flowmesh",
		Subsystem: "monitor",
		Name:      "device_online",
		Help:      "Current connectivity of a watched device (1 online, 0 offline).",
	}, []string{"stable_device_id"})

	reconnectAttempts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "flowmesh",
		Subsystem: "monitor",
		Name:      "reconnect_attempts_total",
		Help:      "Total reconnect attempts made by the connection monitor.",
	}, []string{"stable_device_id", "result"})

	performanceAlerts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "flowmesh",
		Subsystem: "perf",
		Name:      "alerts_total",
		Help:      "Total performance alerts raised, grouped by severity and metric.",
	}, []string{"stable_device_id", "severity", "metric_name"})

	sensorPublishes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "flowmesh",
		Subsystem: "broker",
		Name:      "sensor_publishes_total",
		Help:      "Total sensor values published to the broker, grouped by outcome.",
	}, []string{"stable_device_id", "result"})

	commandQueueDepth = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "flowmesh",
		Subsystem: "commandqueue",
		Name:      "pending",
		Help:      "Current number of durable commands pending for a device.",
	}, []string{"stable_device_id"})
)

func init() {
	Registry.MustRegister(
		httpInFlight,
		httpRequests,
		httpDuration,
		flowExecutions,
		flowDuration,
		queueDepth,
		queueOverflow,
		deviceOnline,
		reconnectAttempts,
		performanceAlerts,
		sensorPublishes,
		commandQueueDepth,
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered Prometheus metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// InstrumentHandler wraps next with HTTP request-count/duration metrics,
// skipping the /metrics endpoint itself.
func InstrumentHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		httpInFlight.Inc()
		defer httpInFlight.Dec()

		next.ServeHTTP(rec, r)

		duration := time.Since(start)
		method := strings.ToUpper(r.Method)
		httpRequests.WithLabelValues(method, r.URL.Path, strconv.Itoa(rec.status)).Inc()
		httpDuration.WithLabelValues(method, r.URL.Path).Observe(duration.Seconds())
	})
}

// RecordFlowExecution records one flow run's outcome and duration.
func RecordFlowExecution(stableDeviceID string, success bool, duration time.Duration) {
	flowExecutions.WithLabelValues(stableDeviceID, strconv.FormatBool(success)).Inc()
	flowDuration.WithLabelValues(stableDeviceID).Observe(duration.Seconds())
}

// SetQueueDepth reports a device's current scheduler queue depth.
func SetQueueDepth(stableDeviceID string, depth int) {
	queueDepth.WithLabelValues(stableDeviceID).Set(float64(depth))
}

// RecordQueueOverflow counts a rejected enqueue for a full queue.
func RecordQueueOverflow(stableDeviceID string) {
	queueOverflow.WithLabelValues(stableDeviceID).Inc()
}

// SetDeviceOnline reports a device's current connectivity state.
func SetDeviceOnline(stableDeviceID string, online bool) {
	v := 0.0
	if online {
		v = 1.0
	}
	deviceOnline.WithLabelValues(stableDeviceID).Set(v)
}

// RecordReconnectAttempt counts one reconnect attempt and its result.
func RecordReconnectAttempt(stableDeviceID string, success bool) {
	result := "failure"
	if success {
		result = "success"
	}
	reconnectAttempts.WithLabelValues(stableDeviceID, result).Inc()
}

// RecordPerformanceAlert counts one alert raised by the performance monitor.
func RecordPerformanceAlert(stableDeviceID, severity, metricName string) {
	performanceAlerts.WithLabelValues(stableDeviceID, severity, metricName).Inc()
}

// RecordSensorPublish counts one attempted sensor publish to the broker.
func RecordSensorPublish(stableDeviceID string, success bool) {
	result := "failure"
	if success {
		result = "success"
	}
	sensorPublishes.WithLabelValues(stableDeviceID, result).Inc()
}

// SetCommandQueueDepth reports a device's durable command-queue backlog.
func SetCommandQueueDepth(stableDeviceID string, depth int) {
	commandQueueDepth.WithLabelValues(stableDeviceID).Set(float64(depth))
}
