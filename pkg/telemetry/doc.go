// Package telemetry groups the agent's observability packages.
//
// # Components
//
//   - logging: structured deception log shared by all deceived processes
//   - metrics: Prometheus counters exported through a node-exporter textfile
//
// Nothing here opens a network connection. Telemetry from inside a deceived
// process must stay invisible to whoever is probing it.
package telemetry
