// Package metrics provides optional Prometheus metrics collection.
//
// Metrics are disabled by default for zero overhead. Call InitRegistry once
// at startup (the start command does this when metrics are enabled in the
// configuration) and every New*Metrics constructor afterwards returns a live
// collector. Without InitRegistry the constructors return nil, and all
// instrumented code paths treat a nil collector as a no-op.
//
// The concrete Prometheus implementations live in pkg/metrics/prometheus and
// register themselves through Register*MetricsConstructor at package init
// time. This indirection keeps the prometheus client out of the dependency
// graph of callers that never enable metrics.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var (
	registryMu sync.RWMutex
	registry   *prometheus.Registry
)

// InitRegistry creates the global Prometheus registry and seeds it with the
// standard Go runtime and process collectors. Safe to call multiple times;
// only the first call has any effect.
func InitRegistry() {
	registryMu.Lock()
	defer registryMu.Unlock()

	if registry != nil {
		return
	}

	registry = prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
}

// IsEnabled reports whether InitRegistry has been called.
func IsEnabled() bool {
	registryMu.RLock()
	defer registryMu.RUnlock()
	return registry != nil
}

// GetRegistry returns the global registry, or nil when metrics are disabled.
func GetRegistry() *prometheus.Registry {
	registryMu.RLock()
	defer registryMu.RUnlock()
	return registry
}
