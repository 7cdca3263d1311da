// Package metrics provides observability hooks for build supervision.
//
// The package implements the Null Object pattern: components receive a
// Recorder through dependency injection and default to NoopRecorder, so no
// call site needs a nil check and disabled metrics cost nothing. When the
// metrics endpoint is enabled in configuration, the CLI swaps in a
// PrometheusRecorder backed by a private registry and serves it over HTTP
// for the duration of the run.
package metrics
