// Package retention prunes old deception events.
//
// Two limits are enforced, together or separately:
//
//   - Age: events older than RetentionDays are deleted
//   - Count: when more than MaxRecords events exist, the oldest are deleted
//
// Pruning runs on a cron schedule (standard five-field syntax) or on demand
// through honeyctl. When ArchivePath is set, events are exported as JSON to
// that directory before they are deleted.
//
// # Basic Usage
//
//	pruner := retention.NewPruner(store, &retention.Config{
//	    RetentionDays: 30,
//	    PruneSchedule: "0 3 * * *",
//	})
//	if err := pruner.Start(ctx); err != nil {
//	    return err
//	}
//	defer pruner.Stop()
package retention
