package app

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/tphakala/eventlog-migrator/internal/datastore"
	"github.com/tphakala/eventlog-migrator/internal/datastore/entities"
)

// Status prints the persisted checkpoint, the latest run and up to
// failureLimit of its failed records.
func (e *Environment) Status(ctx context.Context, failureLimit int) error {
	db, err := e.openStore("target", &e.Settings.Target)
	if err != nil {
		return err
	}
	defer e.closeStore("target", db)

	if !db.Migrator().HasTable(&entities.MigrationState{}) {
		_, err := fmt.Fprintln(e.out, "No migration has been run against this target store.")
		return err
	}

	state := datastore.NewStateManager(db)
	current, err := state.GetState(ctx)
	if err != nil {
		return err
	}

	var failures []entities.MigrationFailure
	if current.RunID != "" && failureLimit > 0 {
		if failures, err = state.Failures(ctx, current.RunID, failureLimit); err != nil {
			return err
		}
	}

	return writeStatus(e.out, current, failures)
}

func writeStatus(out io.Writer, state *entities.MigrationState, failures []entities.MigrationFailure) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)

	checkpoint := "none"
	if state.LastProcessedID != entities.NoCheckpoint {
		checkpoint = fmt.Sprintf("%d", state.LastProcessedID)
	}
	fmt.Fprintf(w, "Checkpoint:\t%s\n", checkpoint)
	fmt.Fprintf(w, "Status:\t%s\n", state.Status)
	if state.RunID != "" {
		fmt.Fprintf(w, "Run:\t%s\n", state.RunID)
	}
	if state.StartedAt != nil {
		fmt.Fprintf(w, "Started:\t%s\n", state.StartedAt.Format(time.RFC3339))
		fmt.Fprintf(w, "Elapsed:\t%s\n", state.Elapsed().Round(time.Second))
	}
	fmt.Fprintf(w, "Converted:\t%d\n", state.Converted)
	fmt.Fprintf(w, "Already migrated:\t%d\n", state.Duplicates)
	fmt.Fprintf(w, "Without mapping:\t%d\n", state.SkippedNoMapping)
	fmt.Fprintf(w, "Failed:\t%d\n", state.Failed)
	if state.ErrorMessage != "" {
		fmt.Fprintf(w, "Error:\t%s\n", state.ErrorMessage)
	}

	if len(failures) > 0 {
		fmt.Fprintln(w, "\nRECORD\tTYPE\tAGGREGATE\tSEQ\tOUTCOME\tREASON")
		for _, f := range failures {
			fmt.Fprintf(w, "%d\t%s\t%s\t%d\t%s\t%s\n",
				f.RecordID, f.Type, f.AggregateIdentifier, f.SequenceNumber, f.Outcome, f.Reason)
		}
	}

	return w.Flush()
}
