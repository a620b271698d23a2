// Package telemetry provides the observability layer for the compile
// core: structured logging (zerolog), metrics (Prometheus), and
// distributed tracing (OpenTelemetry).
//
// Logging has two modes. In verbose mode every step and error streams
// live to the console and, once a build workspace exists, to its
// persisted log. In quiet mode nothing reaches the console during the
// build: the workspace log still captures full JSON detail, and on
// failure the supervisor re-emits only the error-relevant lines via
// WriteExcerpt.
//
// Metrics cover whole builds, pipeline stages, generator fan-outs, and
// validation gates; they are collected on a private registry and
// optionally exposed over HTTP. Tracing spans the same phases and
// exports over OTLP/gRPC or stdout.
package telemetry
