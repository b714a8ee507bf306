package match

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/kumii/tender-finder/internal/models"
	"github.com/kumii/tender-finder/internal/ocds"
)

const (
	// DefaultBatchSize keeps individual upstream requests small so the first
	// page unblocks the view quickly.
	DefaultBatchSize = 50
	// DefaultBatchDelay spaces background fetches to respect upstream rate
	// limits.
	DefaultBatchDelay = 300 * time.Millisecond
)

// PageFetcher is the slice of the upstream client the loader needs.
type PageFetcher interface {
	FetchPage(ctx context.Context, req ocds.PageRequest) (*ocds.Page, error)
}

// BatchFunc receives the accumulated record set and a progress fraction in
// [0,1] after every applied batch.
type BatchFunc func(merged []models.ProcurementRecord, progress float64)

// Loader fetches a date window in bounded sequential batches, merging each
// into the running set so callers can re-score and display partial results.
// A failed batch is logged and skipped; missing a few dozen records beats
// returning nothing.
type Loader struct {
	fetcher   PageFetcher
	batchSize int
	delay     time.Duration
	logger    *zap.Logger
}

func NewLoader(fetcher PageFetcher, batchSize int, delay time.Duration, logger *zap.Logger) *Loader {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	if delay < 0 {
		delay = DefaultBatchDelay
	}
	return &Loader{
		fetcher:   fetcher,
		batchSize: batchSize,
		delay:     delay,
		logger:    logger,
	}
}

// Load fetches the window. Batches are applied strictly in fetch order, so
// the merged set grows monotonically and deterministically; upstream pages
// are assumed disjoint, so no cross-batch dedup happens. Cancellation is
// not an error condition: the context error is returned so the caller can
// recognize a stale load, along with whatever was merged before the abort.
func (l *Loader) Load(ctx context.Context, dateFrom, dateTo string, onBatch BatchFunc) ([]models.ProcurementRecord, error) {
	first, err := l.fetcher.FetchPage(ctx, ocds.PageRequest{
		Page:     1,
		Limit:    l.batchSize,
		DateFrom: dateFrom,
		DateTo:   dateTo,
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, err
	}

	merged := append([]models.ProcurementRecord(nil), first.Records...)
	total := first.Total
	if total < len(merged) {
		total = len(merged)
	}
	totalPages := (total + l.batchSize - 1) / l.batchSize
	if totalPages < 1 {
		totalPages = 1
	}

	emit(onBatch, merged, progress(1, totalPages))

	for page := 2; page <= totalPages; page++ {
		if !l.pause(ctx) {
			return merged, ctx.Err()
		}

		batch, err := l.fetcher.FetchPage(ctx, ocds.PageRequest{
			Page:     page,
			Limit:    l.batchSize,
			DateFrom: dateFrom,
			DateTo:   dateTo,
		})
		if err != nil {
			if ctx.Err() != nil {
				return merged, ctx.Err()
			}
			l.logger.Warn("batch fetch failed, skipping",
				zap.Int("page", page),
				zap.Error(err),
			)
			emit(onBatch, merged, progress(page, totalPages))
			continue
		}

		merged = append(merged, batch.Records...)
		emit(onBatch, merged, progress(page, totalPages))
	}

	return merged, nil
}

// pause waits the inter-batch delay, reporting false when the load was
// cancelled while waiting.
func (l *Loader) pause(ctx context.Context) bool {
	if l.delay == 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(l.delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func emit(onBatch BatchFunc, merged []models.ProcurementRecord, fraction float64) {
	if onBatch != nil {
		onBatch(merged, fraction)
	}
}

func progress(page, totalPages int) float64 {
	if totalPages <= 0 {
		return 1
	}
	f := float64(page) / float64(totalPages)
	if f > 1 {
		f = 1
	}
	return f
}
