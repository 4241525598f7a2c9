// Package metrics is the counter table behind goPortal.Metrics.
//
// A [Registry] is sized once with the number of metric IDs the caller uses
// and never grows. Counters sit in cache-line-padded slots and are bumped
// with atomic adds; IDs flagged as latency IDs also keep an 8-bucket
// histogram (5ms up to +Inf, see [BucketIndex]). Recording never allocates
// and never blocks, so flows can count from inside their critical sections.
//
// The package knows nothing about metric names. The root package owns the
// ID constants and metrics/export/internaldefs maps them to exported names.
package metrics
