// Package control
// Author: momentics <momentics@gmail.com>
//
// Throughput accounting and runtime telemetry for the benchmark harness.
//
// Provides:
//   - Lock-free Counters incremented on the data path and drained by one reporter
//   - A periodic Reporter that turns drained counts into bandwidth samples
//   - Prometheus instruments and a last-sample snapshot registry
//   - Debug probes evaluated on demand
//   - An HTTP server exposing /metrics, /health and /debug/state
package control
