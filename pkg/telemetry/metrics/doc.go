// Package metrics provides Prometheus metrics for the deception agent.
//
// # Overview
//
// Metrics describe what the interposer saw and what it changed:
//
//   - Interception metrics: intercepted calls by function, applied
//     deceptions by honeywire kind, and descriptors currently traced
//   - Reload metrics: honeyaml reload attempts by result, and the number of
//     syscalls currently reading the rule book
//
// # Export
//
// The deceived process must not open a listening socket, so metrics are not
// served over HTTP. A Flusher periodically writes the registry to a
// node-exporter textfile instead. Each process writes its own file; the
// process ID is inserted before the extension:
//
//	/var/lib/node_exporter/textfile_collector/honeywire.4242.prom
//
// # Usage
//
//	collector := metrics.NewCollector(&cfg.Telemetry.Metrics, nil)
//	collector.ObserveState(book.Readers, table.TracedCount)
//
//	flusher := metrics.NewFlusher(&cfg.Telemetry.Metrics, collector.Registry(), logger)
//	if err := flusher.Start(); err != nil {
//		return err
//	}
//	defer flusher.Stop(ctx)
//
//	collector.RecordInterception("write")
//	collector.RecordDeception("http_header")
package metrics
