// Package prometheus renders recovery metrics in Prometheus text exposition
// format.
//
// [NewPrometheusExporter] accepts a [goRecover.Engine] and exposes an
// [http.Handler]. Counter names are prefixed gorecover_*_total; the single
// histogram is gorecover_validate_latency_seconds.
//
// # What this package must NOT do
//
//   - Register metrics in a global Prometheus registry; callers mount the Handler.
//   - Mutate engine state.
package prometheus
