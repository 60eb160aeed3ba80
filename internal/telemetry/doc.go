// Package telemetry mirrors engine activity into Prometheus counters and
// OpenTelemetry spans. Both are engine observers; attach them with
// engine.WithObserver.
package telemetry
