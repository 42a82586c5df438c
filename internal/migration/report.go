package migration

import (
	"fmt"
	"strings"
	"time"

	"github.com/tphakala/eventlog-migrator/internal/datastore/entities"
)

// Report summarizes a pipeline run.
type Report struct {
	RunID          string
	StartedAfter   int64
	Checkpoint     int64 // persisted resume cursor
	ReadCursor     int64 // last id read, may be ahead of Checkpoint
	Counts         Counts
	Success        bool
	Cancelled      bool
	Abandoned      int64
	CallerRuns     int64
	NoMappingTypes []string
	Duration       time.Duration
	Err            error
}

// Status maps the report to the persisted run status.
func (r *Report) Status() entities.RunStatus {
	switch {
	case r.Err != nil:
		return entities.RunStatusFailed
	case r.Cancelled || r.Abandoned > 0:
		return entities.RunStatusInterrupted
	case !r.Success:
		return entities.RunStatusFailed
	default:
		return entities.RunStatusCompleted
	}
}

// Complete reports whether every legacy record was migrated.
func (r *Report) Complete() bool {
	return r.Success && !r.Cancelled && r.Abandoned == 0 && r.Counts.SkippedNoMapping == 0
}

// Summary renders the report for an operator.
func (r *Report) Summary(targetTable string) string {
	var b strings.Builder
	if HasCheckpoint(r.Checkpoint) {
		fmt.Fprintf(&b, "Processed events from the old event store up to (and including) id = %d\n", r.Checkpoint)
	}
	fmt.Fprintf(&b, "In total %d items have been converted (%d already migrated, %d without mapping, %d failed) in %s.\n",
		r.Counts.Converted, r.Counts.Duplicates, r.Counts.SkippedNoMapping, r.Counts.Failed,
		r.Duration.Round(time.Millisecond))
	if len(r.NoMappingTypes) > 0 {
		fmt.Fprintf(&b, "Payload types without identifier mapping: %s\n", strings.Join(r.NoMappingTypes, ", "))
	}
	if r.Abandoned > 0 {
		fmt.Fprintf(&b, "%d sub-batches were abandoned when the drain timeout expired.\n", r.Abandoned)
	}

	if r.Complete() {
		fmt.Fprintf(&b, "Event store migrated.\nThe new event store is in table %s. Rename tables when ready to finalize the migration of your application.\n", targetTable)
	} else {
		b.WriteString("The migration process has finished, but didn't complete the entire migration.\n" +
			"Make sure all identifier mappings are present and run the process again.\n")
	}
	return b.String()
}
