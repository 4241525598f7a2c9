// Package prometheus renders goPortal client metrics in Prometheus text format.
//
// [NewExporter] reads [goPortal.Client.MetricsSnapshot] on every scrape and
// serves it from [Exporter.Handler]. Counters are named goportal_*_total and
// the one histogram is goportal_backend_latency_seconds.
//
// # What this package must NOT do
//
//   - Register anything in a global Prometheus registry. Callers mount the
//     Handler.
//   - Mutate client state.
package prometheus
