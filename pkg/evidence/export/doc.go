// Package export writes deception events as JSON or CSV.
//
// Both exporters have a slice form (Export) and a streaming form
// (ExportStream) that consumes the channel returned by
// evidence.Storage.QueryStream, so honeyctl can dump large stores without
// holding every event in memory.
//
// JSON output is always an array, even for zero or one event:
//
//	exporter := export.NewJSONExporter(true)
//	err := exporter.Export(ctx, events, os.Stdout)
//
// CSV output has one column per Event field, times in RFC 3339:
//
//	id,time,pid,process,fd,kind,honeywire,path,detail
package export
