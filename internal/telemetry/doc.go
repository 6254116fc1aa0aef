// Package telemetry wires up the OpenTelemetry SDK: a TracerProvider
// and MeterProvider exporting over OTLP gRPC. When telemetry is
// disabled the global providers stay noop and nothing connects out.
package telemetry
