// Package prometheus exposes studyauth engine metrics through client_golang.
//
// [NewCollector] wraps a [studyauth.Engine] as a prometheus.Collector.
// Counter names are studyauth_*_total; the single histogram is
// studyauth_authenticate_latency_seconds.
//
// # What this package must NOT do
//
//   - Register metrics in the global Prometheus registry. [Handler] uses a private one.
//   - Mutate engine state.
package prometheus
