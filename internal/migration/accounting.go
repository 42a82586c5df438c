package migration

import (
	"slices"
	"sync/atomic"

	"github.com/patrickmn/go-cache"
)

// Counts is a snapshot of the accounting counters.
type Counts struct {
	Converted        int64
	SkippedNoMapping int64
	Failed           int64
	Duplicates       int64
}

// Accounting aggregates per-item outcomes from concurrent workers and owns
// the set of payload types whose mapping warning was already logged.
type Accounting struct {
	converted        atomic.Int64
	skippedNoMapping atomic.Int64
	failed           atomic.Int64
	duplicates       atomic.Int64

	// silenced entries never expire; the set lives for one run.
	silenced *cache.Cache
}

// NewAccounting returns zeroed accounting for one run.
func NewAccounting() *Accounting {
	return &Accounting{silenced: cache.New(cache.NoExpiration, 0)}
}

// Record counts one item outcome.
func (a *Accounting) Record(o Outcome) {
	switch o {
	case OutcomeConverted:
		a.converted.Add(1)
	case OutcomeNoMapping:
		a.skippedNoMapping.Add(1)
	case OutcomeDuplicate:
		a.duplicates.Add(1)
	case OutcomeMalformed, OutcomeFailed:
		a.failed.Add(1)
	}
}

// AddFailed counts n items as failed, used when a whole sub-batch is lost.
func (a *Accounting) AddFailed(n int) {
	a.failed.Add(int64(n))
}

func (a *Accounting) Converted() int64        { return a.converted.Load() }
func (a *Accounting) SkippedNoMapping() int64 { return a.skippedNoMapping.Load() }
func (a *Accounting) Failed() int64           { return a.failed.Load() }
func (a *Accounting) Duplicates() int64       { return a.duplicates.Load() }

// Snapshot returns all counters.
func (a *Accounting) Snapshot() Counts {
	return Counts{
		Converted:        a.Converted(),
		SkippedNoMapping: a.SkippedNoMapping(),
		Failed:           a.Failed(),
		Duplicates:       a.Duplicates(),
	}
}

// Silence adds payloadType to the silenced set. It returns true only for
// the first caller, who should emit the warning.
func (a *Accounting) Silence(payloadType string) bool {
	return a.silenced.Add(payloadType, struct{}{}, cache.NoExpiration) == nil
}

// SilencedTypes returns the payload types that had no usable mapping, sorted.
func (a *Accounting) SilencedTypes() []string {
	items := a.silenced.Items()
	types := make([]string, 0, len(items))
	for k := range items {
		types = append(types, k)
	}
	slices.Sort(types)
	return types
}

// Success reports whether no item failed. Items skipped for a missing
// mapping do not count against success.
func (a *Accounting) Success() bool {
	return a.failed.Load() == 0
}
