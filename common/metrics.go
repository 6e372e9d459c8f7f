package common

import "time"

// Metrics is the metrics interface used across all lock-manager packages.
// Counters must be registered before they are incremented; incrementing an
// unregistered counter is a silent no-op.
type Metrics interface {
	RegisterCounter(name, help string, labels ...string)
	AddToCounter(name string, value float64, labelValues ...string)
	AddHTTPRequestMetric(path, method string, statusCode int, duration time.Duration)
}
