package common

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusMetrics is a Metrics implementation backed by a dedicated
// prometheus registry. The registry is exposed through Registry so it can be
// served with promhttp.
type PrometheusMetrics struct {
	registry     *prometheus.Registry
	counters     map[string]*prometheus.CounterVec
	countersLock *sync.Mutex
	httpRequests *prometheus.HistogramVec
	logger       Logger
}

func NewPrometheusMetrics(namespace string, logger Logger) *PrometheusMetrics {
	if logger == nil {
		logger = &NoopLogger{}
	}

	registry := prometheus.NewRegistry()

	httpRequests := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_request_duration_seconds",
		Help:      "Duration of HTTP requests handled by the API server.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"path", "method", "status_code"})

	registry.MustRegister(httpRequests)

	return &PrometheusMetrics{
		registry:     registry,
		counters:     make(map[string]*prometheus.CounterVec),
		countersLock: &sync.Mutex{},
		httpRequests: httpRequests,
		logger:       logger,
	}
}

// Registry returns the prometheus registry holding all registered metrics.
func (m *PrometheusMetrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *PrometheusMetrics) RegisterCounter(name, help string, labels ...string) {
	m.countersLock.Lock()
	defer m.countersLock.Unlock()

	if _, ok := m.counters[name]; ok {
		return
	}

	counter := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: name,
		Help: help,
	}, labels)

	if err := m.registry.Register(counter); err != nil {
		m.logger.Errorf("Failed to register counter %s: %s", name, err)
		return
	}

	m.counters[name] = counter
}

func (m *PrometheusMetrics) AddToCounter(name string, value float64, labelValues ...string) {
	m.countersLock.Lock()
	counter, ok := m.counters[name]
	m.countersLock.Unlock()

	if !ok {
		m.logger.Debugf("Counter %s is not registered", name)
		return
	}

	counter.WithLabelValues(labelValues...).Add(value)
}

func (m *PrometheusMetrics) AddHTTPRequestMetric(path, method string, statusCode int, duration time.Duration) {
	m.httpRequests.
		With(prometheus.Labels{
			"path":        path,
			"method":      method,
			"status_code": strconv.Itoa(statusCode),
		}).
		Observe(duration.Seconds())
}
