// Package otel binds goGuard counters to OpenTelemetry observable
// instruments.
//
// [NewOTelExporter] registers one Int64ObservableCounter per counter and
// one Int64ObservableGauge per histogram bucket, fed by a single callback
// that reads [goGuard.Engine.MetricsSnapshot]. The caller owns the
// MeterProvider.
package otel
