package services

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "jujitsu"

type Metrics struct {
	analysesTotal    *prometheus.CounterVec
	analysisDuration prometheus.Histogram
	activeAnalyses   prometheus.Gauge
	framesTotal      *prometheus.CounterVec
	modelFaults      prometheus.Counter
	eventsTotal      *prometheus.CounterVec
	fallbacksTotal   *prometheus.CounterVec
	persistFailures  prometheus.Counter

	poseRequests *prometheus.CounterVec
	poseLatency  prometheus.Histogram

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec

	wsConnections prometheus.Gauge
	wsMessages    prometheus.Counter
	wsErrors      prometheus.Counter

	wsCount       atomic.Int64
	lastFrameTime atomic.Int64
}

var (
	metricsInstance *Metrics
	metricsOnce     sync.Once
)

// NewMetrics registers all collectors with reg. Tests pass a fresh
// prometheus.NewRegistry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		analysesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "analyses_total",
			Help:      "Video analyses by outcome",
		}, []string{"outcome"}),
		analysisDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "analysis_duration_seconds",
			Help:      "Wall time of a full video analysis",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300, 600},
		}),
		activeAnalyses: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_analyses",
			Help:      "Analyses currently running",
		}),
		framesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_total",
			Help:      "Frames by pipeline stage (decoded, evaluated, skipped, detected)",
		}, []string{"stage"}),
		modelFaults: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pose_model_faults_total",
			Help:      "Frames where the pose model failed and the frame was treated as empty",
		}),
		eventsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "coaching_events_total",
			Help:      "Coaching events emitted by rule",
		}, []string{"rule"}),
		fallbacksTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fallbacks_total",
			Help:      "Generated-feedback fallbacks by reason",
		}, []string{"reason"}),
		persistFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "persistence_failures_total",
			Help:      "Analyses whose result could not be stored",
		}),
		poseRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pose_requests_total",
			Help:      "Pose sidecar calls by status",
		}, []string{"status"}),
		poseLatency: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "pose_request_duration_seconds",
			Help:      "Pose sidecar call latency",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		}),
		httpRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		}, []string{"method", "path", "status"}),
		httpDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path"}),
		wsConnections: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ws_connections",
			Help:      "Open websocket connections",
		}),
		wsMessages: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ws_messages_total",
			Help:      "Websocket messages sent",
		}),
		wsErrors: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ws_errors_total",
			Help:      "Websocket read or write failures",
		}),
	}
}

// GetMetrics returns the process-wide instance on the default registry.
func GetMetrics() *Metrics {
	metricsOnce.Do(func() {
		metricsInstance = NewMetrics(prometheus.DefaultRegisterer)
	})
	return metricsInstance
}

func (m *Metrics) AnalysisStarted() { m.activeAnalyses.Inc() }

// AnalysisFinished records one analysis. outcome is "ok" or an error kind.
func (m *Metrics) AnalysisFinished(outcome string, d time.Duration) {
	m.activeAnalyses.Dec()
	m.analysesTotal.WithLabelValues(outcome).Inc()
	m.analysisDuration.Observe(d.Seconds())
}

func (m *Metrics) RecordFrames(decoded, evaluated, skipped, detected, faults int) {
	m.framesTotal.WithLabelValues("decoded").Add(float64(decoded))
	m.framesTotal.WithLabelValues("evaluated").Add(float64(evaluated))
	m.framesTotal.WithLabelValues("skipped").Add(float64(skipped))
	m.framesTotal.WithLabelValues("detected").Add(float64(detected))
	m.modelFaults.Add(float64(faults))
	if decoded > 0 {
		m.lastFrameTime.Store(time.Now().Unix())
	}
}

func (m *Metrics) IncrementEvents(rule string) { m.eventsTotal.WithLabelValues(rule).Inc() }

func (m *Metrics) IncrementFallbacks(reason string) { m.fallbacksTotal.WithLabelValues(reason).Inc() }

func (m *Metrics) IncrementPersistFailures() { m.persistFailures.Inc() }

func (m *Metrics) RecordPoseRequest(status string, d time.Duration) {
	m.poseRequests.WithLabelValues(status).Inc()
	m.poseLatency.Observe(d.Seconds())
}

func (m *Metrics) RecordHTTPRequest(method, path string, status int, d time.Duration) {
	m.httpRequests.WithLabelValues(method, path, statusClass(status)).Inc()
	m.httpDuration.WithLabelValues(method, path).Observe(d.Seconds())
}

func statusClass(code int) string {
	switch {
	case code >= 500:
		return "5xx"
	case code >= 400:
		return "4xx"
	case code >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}

func (m *Metrics) GetLastFrameTime() int64 {
	return m.lastFrameTime.Load()
}

func (m *Metrics) IncrementWebSocketConnections() {
	m.wsCount.Add(1)
	m.wsConnections.Inc()
}

func (m *Metrics) DecrementWebSocketConnections() {
	m.wsCount.Add(-1)
	m.wsConnections.Dec()
}

func (m *Metrics) GetWebSocketConnections() int64 {
	return m.wsCount.Load()
}

func (m *Metrics) IncrementWebSocketMessages() {
	m.wsMessages.Inc()
}

func (m *Metrics) IncrementWebSocketErrors() {
	m.wsErrors.Inc()
}
