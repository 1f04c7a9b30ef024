package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"mercator-hq/honeywire/pkg/cli"
	"mercator-hq/honeywire/pkg/evidence"
	"mercator-hq/honeywire/pkg/evidence/export"
	"mercator-hq/honeywire/pkg/evidence/retention"
	"mercator-hq/honeywire/pkg/evidence/storage"
)

// textLimit caps how many events text output prints in full.
const textLimit = 10

var eventsFlags struct {
	db string

	// Query filters
	timeRange string
	kind      string
	honeywire string
	process   string
	pid       int
	limit     int
	offset    int
	sort      string
	format    string
	output    string

	// Prune settings
	retentionDays int
	maxRecords    int64
	archive       string
}

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Inspect recorded deceptions",
	Long: `Query and prune the deception events recorded by injected agents.

Every applied deception (a rewritten response header, a rewritten status
line, a request for the watched admin path) is stored with the process,
descriptor and honeywire responsible for it.`,
}

var eventsQueryCmd = &cobra.Command{
	Use:   "query",
	Short: "List deception events",
	Long: `List deception events, newest first.

Examples:
  # Latest events
  honeyctl events query

  # Admin-path hits against java processes in the last day
  honeyctl events query --kind admin_path --process java \
    --time-range "2026-10-14T00:00:00Z/2026-10-15T00:00:00Z"

  # Export everything as CSV
  honeyctl events query --format csv --limit 0 -o events.csv`,
	RunE: queryEvents,
}

var eventsPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Apply retention to the evidence database",
	Long: `Delete events older than --retention-days, then the oldest events beyond
--max-records. With --archive, deleted events are first exported as JSON to
that directory.

Limits not given on the command line come from the agent configuration.

Examples:
  # Keep one week
  honeyctl events prune --retention-days 7

  # Keep the newest 10000 events, archiving the rest
  honeyctl events prune --max-records 10000 --archive /var/lib/honeywire/archive`,
	RunE: pruneEvents,
}

func init() {
	rootCmd.AddCommand(eventsCmd)
	eventsCmd.AddCommand(eventsQueryCmd)
	eventsCmd.AddCommand(eventsPruneCmd)

	eventsCmd.PersistentFlags().StringVar(&eventsFlags.db, "db", "", "evidence database (default: agent config)")

	eventsQueryCmd.Flags().StringVar(&eventsFlags.timeRange, "time-range", "", "time range (RFC3339 interval: start/end)")
	eventsQueryCmd.Flags().StringVar(&eventsFlags.kind, "kind", "", "filter by kind: header_replaced, status_replaced, admin_path")
	eventsQueryCmd.Flags().StringVar(&eventsFlags.honeywire, "honeywire", "", "filter by honeywire name")
	eventsQueryCmd.Flags().StringVar(&eventsFlags.process, "process", "", "filter by process (argv[0])")
	eventsQueryCmd.Flags().IntVar(&eventsFlags.pid, "pid", 0, "filter by process ID")
	eventsQueryCmd.Flags().IntVar(&eventsFlags.limit, "limit", 100, "max events to return (0 streams all)")
	eventsQueryCmd.Flags().IntVar(&eventsFlags.offset, "offset", 0, "pagination offset")
	eventsQueryCmd.Flags().StringVar(&eventsFlags.sort, "sort", "desc", "sort by time: asc, desc")
	eventsQueryCmd.Flags().StringVar(&eventsFlags.format, "format", "text", "output format: text, json, csv")
	eventsQueryCmd.Flags().StringVarP(&eventsFlags.output, "output", "o", "", "output file (default: stdout)")

	eventsPruneCmd.Flags().IntVar(&eventsFlags.retentionDays, "retention-days", 0, "delete events older than this many days")
	eventsPruneCmd.Flags().Int64Var(&eventsFlags.maxRecords, "max-records", 0, "keep at most this many events")
	eventsPruneCmd.Flags().StringVar(&eventsFlags.archive, "archive", "", "export deleted events to this directory first")
}

// openStore opens an existing evidence database. A missing file is an error
// rather than an empty database.
func openStore() (*storage.SQLiteStorage, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	sqliteConfig := storage.DefaultSQLiteConfig()
	sqliteConfig.Path = cfg.Evidence.SQLitePath
	sqliteConfig.BusyTimeout = cfg.Evidence.BusyTimeout
	if eventsFlags.db != "" {
		sqliteConfig.Path = eventsFlags.db
	}

	if _, err := os.Stat(sqliteConfig.Path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("no evidence database at %s", sqliteConfig.Path)
		}
		return nil, err
	}

	return storage.NewSQLiteStorage(sqliteConfig)
}

// parseTimeRange parses an RFC3339 "start/end" interval.
func parseTimeRange(s string) (start, end time.Time, err error) {
	parts := strings.Split(s, "/")
	if len(parts) != 2 {
		return start, end, fmt.Errorf("invalid time range format (expected: start/end)")
	}
	if start, err = time.Parse(time.RFC3339, parts[0]); err != nil {
		return start, end, fmt.Errorf("invalid start time: %w", err)
	}
	if end, err = time.Parse(time.RFC3339, parts[1]); err != nil {
		return start, end, fmt.Errorf("invalid end time: %w", err)
	}
	if end.Before(start) {
		return start, end, fmt.Errorf("time range ends before it starts")
	}
	return start, end, nil
}

func buildQuery() (*evidence.Query, error) {
	query := &evidence.Query{
		Honeywire: eventsFlags.honeywire,
		Process:   eventsFlags.process,
		PID:       eventsFlags.pid,
		Limit:     eventsFlags.limit,
		Offset:    eventsFlags.offset,
		SortOrder: eventsFlags.sort,
	}

	if eventsFlags.kind != "" {
		kind := evidence.Kind(eventsFlags.kind)
		if !kind.Valid() {
			return nil, fmt.Errorf("unknown kind %q", eventsFlags.kind)
		}
		query.Kind = kind
	}

	if eventsFlags.timeRange != "" {
		start, end, err := parseTimeRange(eventsFlags.timeRange)
		if err != nil {
			return nil, err
		}
		query.StartTime = &start
		query.EndTime = &end
	}
	return query, nil
}

func queryEvents(cmd *cobra.Command, args []string) error {
	query, err := buildQuery()
	if err != nil {
		return err
	}

	var exporter interface {
		evidence.Exporter
		ExportStream(ctx context.Context, eventsCh <-chan *evidence.Event, w io.Writer) error
	}
	switch eventsFlags.format {
	case "json":
		exporter = export.NewJSONExporter(true)
	case "csv":
		exporter = export.NewCSVExporter(true)
	case "text":
	default:
		return fmt.Errorf("unsupported output format %q (want text, json or csv)", eventsFlags.format)
	}

	store, err := openStore()
	if err != nil {
		return cli.NewCommandError("events query", err)
	}
	defer store.Close()

	output := outputOf(cmd)
	if eventsFlags.output != "" {
		f, err := os.Create(eventsFlags.output)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer f.Close()
		output = f
	}

	ctx := context.Background()

	if exporter != nil && query.Limit == 0 {
		// Storage caps unlimited queries, so ask for exactly what exists.
		count, err := store.Count(ctx, query)
		if err != nil {
			return cli.NewCommandError("events query", err)
		}
		query.Limit = int(max(count, 1))

		eventsCh, errCh, err := store.QueryStream(ctx, query)
		if err != nil {
			return cli.NewCommandError("events query", err)
		}
		if err := exporter.ExportStream(ctx, eventsCh, output); err != nil {
			return cli.NewCommandError("events query", err)
		}
		if err := <-errCh; err != nil {
			return cli.NewCommandError("events query", err)
		}
		return nil
	}

	events, err := store.Query(ctx, query)
	if err != nil {
		return cli.NewCommandError("events query", err)
	}
	if exporter != nil {
		return exporter.Export(ctx, events, output)
	}

	total, err := store.Count(ctx, &evidence.Query{
		StartTime: query.StartTime,
		EndTime:   query.EndTime,
		Kind:      query.Kind,
		Honeywire: query.Honeywire,
		Process:   query.Process,
		PID:       query.PID,
	})
	if err != nil {
		return cli.NewCommandError("events query", err)
	}
	return writeEventsText(output, events, total)
}

func writeEventsText(w io.Writer, events []*evidence.Event, total int64) error {
	fmt.Fprintf(w, "Matching events: %d (showing %d)\n", total, len(events))
	if len(events) == 0 {
		fmt.Fprintln(w, "No events found.")
		return nil
	}

	for i, event := range events {
		if i >= textLimit {
			fmt.Fprintf(w, "\n... and %d more events\n", len(events)-textLimit)
			fmt.Fprintln(w, "Use --limit and --offset for pagination, or --format json.")
			break
		}

		fmt.Fprintln(w)
		fmt.Fprintf(w, "%s  %s\n", event.Time.Format(time.RFC3339), event.Kind)
		fmt.Fprintf(w, "  Event ID:  %s\n", event.ID)
		fmt.Fprintf(w, "  Process:   %s (pid %d, fd %d)\n", event.Process, event.PID, event.FD)
		fmt.Fprintf(w, "  Honeywire: %s\n", displayName(event.Honeywire))
		if event.Path != "" {
			fmt.Fprintf(w, "  Path:      %s\n", event.Path)
		}
		if event.Detail != "" {
			fmt.Fprintf(w, "  Detail:    %s\n", event.Detail)
		}
	}
	return nil
}

func pruneEvents(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	retentionConfig := &retention.Config{
		RetentionDays: cfg.Evidence.RetentionDays,
		MaxRecords:    cfg.Evidence.MaxRecords,
		ArchivePath:   eventsFlags.archive,
	}
	if eventsFlags.retentionDays > 0 {
		retentionConfig.RetentionDays = eventsFlags.retentionDays
	}
	if eventsFlags.maxRecords > 0 {
		retentionConfig.MaxRecords = eventsFlags.maxRecords
	}
	if retentionConfig.RetentionDays <= 0 && retentionConfig.MaxRecords <= 0 {
		return fmt.Errorf("nothing to prune: set --retention-days or --max-records")
	}

	store, err := openStore()
	if err != nil {
		return cli.NewCommandError("events prune", err)
	}
	defer store.Close()

	deleted, err := retention.NewPruner(store, retentionConfig).Prune(context.Background())
	if err != nil {
		return cli.NewCommandError("events prune", err)
	}

	fmt.Fprintf(outputOf(cmd), "Deleted %d event(s)\n", deleted)
	return nil
}
