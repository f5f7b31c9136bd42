// Package prometheus renders goGuard counters and the login latency
// histogram in Prometheus text exposition format.
//
// Counters are named goguard_*_total and the histogram is
// goguard_login_latency_seconds. Nothing is registered globally; mount
// [PrometheusExporter.Handler] where the scrape should land.
package prometheus
