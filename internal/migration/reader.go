package migration

import (
	"context"
	"iter"
	"time"

	"golang.org/x/time/rate"

	"github.com/tphakala/eventlog-migrator/internal/datastore/entities"
	"github.com/tphakala/eventlog-migrator/internal/logger"
	"github.com/tphakala/eventlog-migrator/internal/observability/metrics"
)

// ReaderConfig configures a Reader.
type ReaderConfig struct {
	Source       LegacySource
	Start        int64 // cursor; only records with a greater id are read
	PageSize     int
	SubBatchSize int
	PageInterval time.Duration // minimum time between page fetches, 0 for none
	Metrics      *metrics.MigrationMetrics
	Logger       logger.Logger
}

// Page is one bounded fetch from the legacy store. Batches streams the
// page as sub-batches and can be ranged over once; it must be drained
// before the next page is requested.
type Page struct {
	Number  int
	After   int64
	Batches iter.Seq2[SubBatch, error]
}

// Reader walks the legacy store in ascending record id order.
type Reader struct {
	source       LegacySource
	pageSize     int
	subBatchSize int
	limiter      *rate.Limiter
	metrics      *metrics.MigrationMetrics
	log          logger.Logger

	// cursor and the flags below are only touched by the goroutine ranging over Pages.
	cursor    int64
	cancelled bool
}

// NewReader creates a reader starting after cfg.Start.
func NewReader(cfg ReaderConfig) *Reader {
	limit := rate.Inf
	if cfg.PageInterval > 0 {
		limit = rate.Every(cfg.PageInterval)
	}
	log := cfg.Logger
	if log == nil {
		log = logger.NewSlogLogger(nil, logger.LogLevelInfo, nil)
	}
	return &Reader{
		source:       cfg.Source,
		pageSize:     max(cfg.PageSize, 1),
		subBatchSize: max(cfg.SubBatchSize, 1),
		limiter:      rate.NewLimiter(limit, 1),
		metrics:      cfg.Metrics,
		log:          log,
		cursor:       cfg.Start,
	}
}

// Cursor returns the id of the last item read.
func (r *Reader) Cursor() int64 {
	return r.cursor
}

// Cancelled reports whether the reader stopped because ctx was cancelled.
func (r *Reader) Cancelled() bool {
	return r.cancelled
}

type pageState struct {
	items int
	err   error
	quit  bool
}

// Pages yields pages until one is empty, a fetch fails or ctx is
// cancelled. Cancellation is only observed between pages: once a page
// has started it is read to the end.
func (r *Reader) Pages(ctx context.Context) iter.Seq2[Page, error] {
	return func(yield func(Page, error) bool) {
		for number := 1; ; number++ {
			if ctx.Err() != nil {
				r.stopCancelled(number)
				return
			}
			if err := r.limiter.Wait(ctx); err != nil {
				r.stopCancelled(number)
				return
			}

			st := &pageState{}
			page := Page{Number: number, After: r.cursor, Batches: r.batches(ctx, st)}
			if !yield(page, nil) {
				return
			}
			if st.err != nil || st.quit {
				return
			}
			if st.items == 0 {
				r.log.Info("empty page, assuming all records are read", logger.Int64("cursor", r.cursor))
				return
			}
			r.metrics.RecordPage()
		}
	}
}

func (r *Reader) stopCancelled(number int) {
	r.cancelled = true
	r.log.Info("cancellation observed, stopping before page",
		logger.Int("page", number),
		logger.Int64("cursor", r.cursor))
}

func (r *Reader) batches(ctx context.Context, st *pageState) iter.Seq2[SubBatch, error] {
	return func(yield func(SubBatch, error) bool) {
		// Only page boundaries observe cancellation.
		fetchCtx := context.WithoutCancel(ctx)

		items := make([]entities.ConversionItem, 0, r.subBatchSize)
		for item, err := range r.source.FetchPage(fetchCtx, r.cursor, r.pageSize) {
			if err != nil {
				st.err = err
				yield(SubBatch{}, err)
				return
			}
			r.cursor = item.RecordID
			st.items++
			items = append(items, item)
			if len(items) == r.subBatchSize {
				if !yield(SubBatch{Items: items}, nil) {
					st.quit = true
					return
				}
				items = make([]entities.ConversionItem, 0, r.subBatchSize)
			}
		}
		if len(items) > 0 && !yield(SubBatch{Items: items}, nil) {
			st.quit = true
		}
	}
}
