// Package metrics records pipeline observability data.
//
// Components receive a Recorder; NoopRecorder is the default so callers never
// need nil checks. PrometheusRecorder registers its collectors on a caller
// supplied registry, and WriteTextfile dumps that registry in the text
// exposition format for the node-exporter textfile collector at the end of a
// run.
package metrics
