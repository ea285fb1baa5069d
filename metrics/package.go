// Package metrics provides easy methods to record driver metrics.
package metrics

import (
	"time"

	gometrics "github.com/rcrowley/go-metrics"
)

// DefaultRegistry holds every metric recorded by the driver. Embedders
// can drain it into their own reporting pipeline with Each.
var DefaultRegistry = gometrics.NewRegistry()

// Mark increases the meter metric with the given name by 1.
func Mark(name string) {
	gometrics.GetOrRegisterMeter(name, DefaultRegistry).Mark(1)
}

// Gauge sets a gauge metric to a given value.
func Gauge(name string, value int64) {
	gometrics.GetOrRegisterGauge(name, DefaultRegistry).Update(value)
}

// TimeSince records time.Since(timestamp) on the named timer.
func TimeSince(name string, timestamp time.Time) {
	gometrics.GetOrRegisterTimer(name, DefaultRegistry).Update(time.Since(timestamp))
}

// Each calls f for every registered metric.
func Each(f func(string, interface{})) {
	DefaultRegistry.Each(f)
}
