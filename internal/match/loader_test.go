package match

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"go.uber.org/zap"

	"github.com/kumii/tender-finder/internal/models"
	"github.com/kumii/tender-finder/internal/ocds"
)

// fakeFetcher serves synthetic pages of perPage records against a fixed
// total, failing the pages listed in failPages.
type fakeFetcher struct {
	total     int
	perPage   int
	failPages map[int]bool
	fetched   []int
	cancelOn  int
	cancel    context.CancelFunc
}

func (f *fakeFetcher) FetchPage(ctx context.Context, req ocds.PageRequest) (*ocds.Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.fetched = append(f.fetched, req.Page)
	if f.cancelOn != 0 && req.Page == f.cancelOn && f.cancel != nil {
		f.cancel()
	}
	if f.failPages[req.Page] {
		return nil, errors.New("upstream hiccup")
	}

	page := &ocds.Page{Total: f.total}
	start := (req.Page - 1) * f.perPage
	for i := start; i < start+f.perPage && i < f.total; i++ {
		page.Records = append(page.Records, models.ProcurementRecord{ID: fmt.Sprintf("rec-%d", i)})
	}
	return page, nil
}

func newTestLoader(f *fakeFetcher) *Loader {
	return NewLoader(f, f.perPage, 0, zap.NewNop())
}

func TestLoadAllBatchesInOrder(t *testing.T) {
	f := &fakeFetcher{total: 120, perPage: 50}
	var fractions []float64

	merged, err := newTestLoader(f).Load(context.Background(), "2026-08-01", "2026-08-29",
		func(_ []models.ProcurementRecord, p float64) {
			fractions = append(fractions, p)
		})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(merged) != 120 {
		t.Errorf("merged %d records, want 120", len(merged))
	}
	if merged[0].ID != "rec-0" || merged[119].ID != "rec-119" {
		t.Errorf("batch order broken: first=%s last=%s", merged[0].ID, merged[119].ID)
	}
	if len(f.fetched) != 3 {
		t.Errorf("fetched pages %v, want 3 pages", f.fetched)
	}
	// progress is monotonic and ends at 1
	for i := 1; i < len(fractions); i++ {
		if fractions[i] < fractions[i-1] {
			t.Errorf("progress not monotonic: %v", fractions)
		}
	}
	if len(fractions) == 0 || fractions[len(fractions)-1] != 1 {
		t.Errorf("final progress: %v", fractions)
	}
}

func TestLoadSkipsFailedBatch(t *testing.T) {
	f := &fakeFetcher{total: 150, perPage: 50, failPages: map[int]bool{2: true}}
	var emits int

	merged, err := newTestLoader(f).Load(context.Background(), "2026-08-01", "2026-08-29",
		func(_ []models.ProcurementRecord, _ float64) { emits++ })
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	// page 2 is lost, pages 1 and 3 survive
	if len(merged) != 100 {
		t.Errorf("merged %d records, want 100", len(merged))
	}
	ids := make(map[string]bool)
	for _, rec := range merged {
		ids[rec.ID] = true
	}
	if ids["rec-50"] || !ids["rec-0"] || !ids["rec-100"] {
		t.Errorf("wrong batch survived: %v", merged)
	}
	// failed batches still emit progress
	if emits != 3 {
		t.Errorf("emits = %d, want 3", emits)
	}
}

func TestLoadFirstPageFailureIsFatal(t *testing.T) {
	f := &fakeFetcher{total: 100, perPage: 50, failPages: map[int]bool{1: true}}

	if _, err := newTestLoader(f).Load(context.Background(), "2026-08-01", "2026-08-29", nil); err == nil {
		t.Fatal("expected error when the first page fails")
	}
}

func TestLoadCancellationReturnsPartial(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	f := &fakeFetcher{total: 500, perPage: 50, cancelOn: 2, cancel: cancel}

	merged, err := newTestLoader(f).Load(ctx, "2026-08-01", "2026-08-29", nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	// everything merged before the abort is preserved
	if len(merged) < 50 {
		t.Errorf("merged %d records, want at least the first batch", len(merged))
	}
	if len(merged) >= 500 {
		t.Errorf("load did not stop: merged %d", len(merged))
	}
}

func TestLoadSinglePageWindow(t *testing.T) {
	f := &fakeFetcher{total: 20, perPage: 50}
	var fractions []float64

	merged, err := newTestLoader(f).Load(context.Background(), "2026-08-01", "2026-08-29",
		func(_ []models.ProcurementRecord, p float64) {
			fractions = append(fractions, p)
		})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(merged) != 20 {
		t.Errorf("merged %d, want 20", len(merged))
	}
	if len(fractions) != 1 || fractions[0] != 1 {
		t.Errorf("fractions = %v, want [1]", fractions)
	}
}

func TestLoadEmptyWindow(t *testing.T) {
	f := &fakeFetcher{total: 0, perPage: 50}

	merged, err := newTestLoader(f).Load(context.Background(), "2026-08-01", "2026-08-29", nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(merged) != 0 {
		t.Errorf("merged %d, want 0", len(merged))
	}
}
