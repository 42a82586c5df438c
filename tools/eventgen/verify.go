package main

import (
	"context"
	"fmt"
	"io"
	"iter"
	"maps"
	"slices"
	"text/tabwriter"

	"github.com/tphakala/eventlog-migrator/internal/datastore/entities"
)

const maxReportedMissing = 10

// KeySource enumerates legacy event keys in id order.
type KeySource interface {
	FetchPage(ctx context.Context, after int64, limit int) iter.Seq2[entities.ConversionItem, error]
}

// KeyChecker looks up keys in the target store.
type KeyChecker interface {
	Exists(ctx context.Context, key entities.EventKey) (bool, error)
}

// Verifier checks that every legacy event key is present in the target store.
type Verifier struct {
	source    KeySource
	target    KeyChecker
	batchSize int
}

// NewVerifier creates a new Verifier.
func NewVerifier(source KeySource, target KeyChecker, batchSize int) *Verifier {
	return &Verifier{source: source, target: target, batchSize: max(batchSize, 1)}
}

// VerifyResult summarizes a verification pass.
type VerifyResult struct {
	Legacy        int64
	Present       int64
	Missing       int64
	MissingByType map[string]int64
	FirstMissing  []entities.ConversionItem
}

// Print outputs the verification result.
func (r *VerifyResult) Print(out io.Writer) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "Legacy events:\t%d\n", r.Legacy)
	fmt.Fprintf(w, "Present in target:\t%d\n", r.Present)
	fmt.Fprintf(w, "Missing:\t%d\n", r.Missing)
	for _, t := range slices.Sorted(maps.Keys(r.MissingByType)) {
		fmt.Fprintf(w, "  %s:\t%d\n", t, r.MissingByType[t])
	}
	for _, item := range r.FirstMissing {
		fmt.Fprintf(w, "  id %d:\t%s\n", item.RecordID, item.EventKey)
	}
	_ = w.Flush()
}

// Verify walks the whole legacy store page by page.
func (v *Verifier) Verify(ctx context.Context) (*VerifyResult, error) {
	result := &VerifyResult{MissingByType: map[string]int64{}}
	after := entities.NoCheckpoint

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		read := 0
		for item, err := range v.source.FetchPage(ctx, after, v.batchSize) {
			if err != nil {
				return nil, fmt.Errorf("failed to read legacy keys after id %d: %w", after, err)
			}
			read++
			after = item.RecordID
			result.Legacy++

			ok, err := v.target.Exists(ctx, item.EventKey)
			if err != nil {
				return nil, fmt.Errorf("failed to look up %s: %w", item.EventKey, err)
			}
			if ok {
				result.Present++
				continue
			}
			result.Missing++
			result.MissingByType[item.Type]++
			if len(result.FirstMissing) < maxReportedMissing {
				result.FirstMissing = append(result.FirstMissing, item)
			}
		}

		if read == 0 {
			return result, nil
		}
	}
}
