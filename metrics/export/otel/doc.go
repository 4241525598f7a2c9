// Package otel publishes goPortal client metrics through an OpenTelemetry
// Meter.
//
// [NewExporter] registers one Int64ObservableCounter per client counter and
// one Int64ObservableGauge per latency bucket. A single callback reads
// [goPortal.Client.MetricsSnapshot] on each collection.
//
// # What this package must NOT do
//
//   - Own the MeterProvider. Callers supply the Meter.
//   - Mutate client state.
package otel
