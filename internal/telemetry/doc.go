// Package telemetry builds the CLI's zerolog logger and the prometheus
// counters recorded by the generation pipeline and the recovery engine.
// Metrics live in a private registry and are only written out when the
// operator asks for a textfile via --metrics-file.
package telemetry
