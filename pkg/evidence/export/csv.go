package export

import (
	"context"
	"encoding/csv"
	"io"
	"strconv"
	"time"

	"mercator-hq/honeywire/pkg/evidence"
)

// CSVExporter exports events as CSV.
type CSVExporter struct {
	// IncludeHeader includes a header row with column names.
	IncludeHeader bool
}

// NewCSVExporter creates a new CSV exporter.
func NewCSVExporter(includeHeader bool) *CSVExporter {
	return &CSVExporter{IncludeHeader: includeHeader}
}

// Export writes events to w in CSV format.
func (e *CSVExporter) Export(ctx context.Context, events []*evidence.Event, w io.Writer) error {
	writer := csv.NewWriter(w)

	if e.IncludeHeader {
		if err := writer.Write(headerRow()); err != nil {
			return evidence.NewExportError("csv", 0, err)
		}
	}

	for i, event := range events {
		if err := writer.Write(eventToRow(event)); err != nil {
			return evidence.NewExportError("csv", i, err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return evidence.NewExportError("csv", len(events), err)
	}
	return nil
}

// ExportStream writes events from eventsCh to w in CSV format, flushing
// every 100 rows.
func (e *CSVExporter) ExportStream(ctx context.Context, eventsCh <-chan *evidence.Event, w io.Writer) error {
	writer := csv.NewWriter(w)
	defer writer.Flush()

	if e.IncludeHeader {
		if err := writer.Write(headerRow()); err != nil {
			return evidence.NewExportError("csv", 0, err)
		}
	}

	count := 0
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-eventsCh:
			if !ok {
				writer.Flush()
				if err := writer.Error(); err != nil {
					return evidence.NewExportError("csv", count, err)
				}
				return nil
			}

			if err := writer.Write(eventToRow(event)); err != nil {
				return evidence.NewExportError("csv", count, err)
			}
			count++

			if count%100 == 0 {
				writer.Flush()
				if err := writer.Error(); err != nil {
					return evidence.NewExportError("csv", count, err)
				}
			}
		}
	}
}

func headerRow() []string {
	return []string{"id", "time", "pid", "process", "fd", "kind", "honeywire", "path", "detail"}
}

func eventToRow(event *evidence.Event) []string {
	when := ""
	if !event.Time.IsZero() {
		when = event.Time.UTC().Format(time.RFC3339Nano)
	}
	return []string{
		event.ID,
		when,
		strconv.Itoa(event.PID),
		event.Process,
		strconv.Itoa(event.FD),
		string(event.Kind),
		event.Honeywire,
		event.Path,
		event.Detail,
	}
}
