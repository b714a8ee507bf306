package match

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kumii/tender-finder/internal/ai"
	"github.com/kumii/tender-finder/internal/models"
)

// loadTimeout bounds a whole background load sequence, AI overlay included.
const loadTimeout = 10 * time.Minute

// Service owns the live matched view: it runs loads in the background,
// re-scores after every batch, memoizes completed windows in the session
// cache and overlays AI results as they arrive. Reads see a consistent
// snapshot; a new date range cancels the in-flight load and stale
// completions are no-ops against current state (generation token).
type Service struct {
	cache    *SessionCache
	loader   *Loader
	analyzer ai.Analyzer // nil when the reasoning service is unconfigured
	logger   *zap.Logger

	mu         sync.Mutex
	generation int
	cancel     context.CancelFunc

	// overlayLive is true once an overlay pass has been started for the
	// current generation; it keeps polling clients from cancelling a pass
	// mid-flight or restarting a completed one.
	overlayLive bool

	state viewState
}

type viewState struct {
	dateFrom string
	dateTo   string
	profile  models.Profile

	matches   []models.MatchResult
	aiResults map[string]*models.AIMatch
	summary   string

	progress float64
	loading  bool
	loadErr  string
}

// Snapshot is what the presentation layer consumes: the filtered, paginated
// ranked view plus progress and cache metadata.
type Snapshot struct {
	DisplayName string               `json:"display_name"`
	Matches     []models.MatchResult `json:"matches"`
	Total       int                  `json:"total"`
	Page        int                  `json:"page"`
	PageCount   int                  `json:"page_count"`
	Progress    float64              `json:"progress"`
	Loading     bool                 `json:"loading"`
	Error       string               `json:"error,omitempty"`
	Summary     string               `json:"summary,omitempty"`
	CacheInfo   *CacheInfo           `json:"cache_info,omitempty"`
}

func NewService(cache *SessionCache, loader *Loader, analyzer ai.Analyzer, logger *zap.Logger) *Service {
	return &Service{
		cache:    cache,
		loader:   loader,
		analyzer: analyzer,
		logger:   logger,
	}
}

// Refresh ensures a load for the given window is underway or already
// served. A request matching the current view exactly (window and profile)
// is a no-op while its load is running, and again while its overlay pass is
// running or after it has merged, so polling clients neither restart loads
// nor discard paid overlay work. A window or profile change cancels the
// in-flight work. A cache hit skips the loader and starts an overlay only
// when the current view has none.
func (s *Service) Refresh(dateFrom, dateTo string, profile models.Profile) {
	s.mu.Lock()

	sameView := s.state.dateFrom == dateFrom && s.state.dateTo == dateTo &&
		reflect.DeepEqual(s.state.profile, profile)

	if sameView && s.state.loading {
		s.mu.Unlock()
		return
	}

	cached := s.cache.Get(dateFrom, dateTo)
	if sameView && !s.state.loading && s.state.loadErr == "" && cached != nil && s.overlayLive {
		s.mu.Unlock()
		return
	}

	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.generation++
	gen := s.generation
	s.overlayLive = false

	if cached != nil {
		matches := Rank(cached, profile, time.Now())
		s.state = viewState{
			dateFrom:  dateFrom,
			dateTo:    dateTo,
			profile:   profile,
			matches:   matches,
			aiResults: make(map[string]*models.AIMatch),
			progress:  1,
		}
		s.overlayLive = true
		s.mu.Unlock()

		s.logger.Info("serving matches from session cache",
			zap.Int("records", len(cached)),
			zap.Int("matched", len(matches)),
		)

		ctx, cancel := context.WithTimeout(context.Background(), loadTimeout)
		s.setCancel(gen, cancel)
		go s.runOverlay(ctx, gen, matches, profile)
		return
	}

	// Detached from any request lifecycle; the load must survive the
	// triggering HTTP request.
	ctx, cancel := context.WithTimeout(context.Background(), loadTimeout)
	s.cancel = cancel
	s.state = viewState{
		dateFrom:  dateFrom,
		dateTo:    dateTo,
		profile:   profile,
		aiResults: make(map[string]*models.AIMatch),
		loading:   true,
	}
	s.mu.Unlock()

	go s.runLoad(ctx, gen, dateFrom, dateTo, profile)
}

func (s *Service) runLoad(ctx context.Context, gen int, dateFrom, dateTo string, profile models.Profile) {
	onBatch := func(merged []models.ProcurementRecord, fraction float64) {
		matches := Rank(merged, profile, time.Now())

		s.mu.Lock()
		if s.generation == gen {
			s.state.matches = matches
			s.state.progress = fraction
		}
		s.mu.Unlock()
	}

	records, err := s.loader.Load(ctx, dateFrom, dateTo, onBatch)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			// A stale load completing is a no-op, not an error.
			return
		}
		s.mu.Lock()
		if s.generation == gen {
			s.state.loading = false
			s.state.loadErr = err.Error()
		}
		s.mu.Unlock()
		s.logger.Error("tender load failed", zap.Error(err))
		return
	}

	matches := Rank(records, profile, time.Now())

	s.mu.Lock()
	if s.generation != gen {
		s.mu.Unlock()
		return
	}
	s.state.matches = matches
	s.state.progress = 1
	s.state.loading = false
	s.overlayLive = true
	s.cache.Put(records, dateFrom, dateTo)
	s.mu.Unlock()

	s.logger.Info("tender load complete",
		zap.Int("records", len(records)),
		zap.Int("matched", len(matches)),
	)

	s.runOverlay(ctx, gen, matches, profile)
}

// runOverlay executes the AI augmentation pass and merges its results into
// the side map, provided the view has not moved on to a newer generation.
func (s *Service) runOverlay(ctx context.Context, gen int, matches []models.MatchResult, profile models.Profile) {
	if s.analyzer == nil || len(matches) == 0 {
		return
	}

	results := s.analyzer.Enhance(ctx, matches, profile)
	summary := s.analyzer.Summarize(ctx, matches, profile)

	s.mu.Lock()
	if s.generation == gen {
		for id, analysis := range results {
			s.state.aiResults[id] = analysis
		}
		s.state.summary = summary
	}
	s.mu.Unlock()
}

// setCancel installs the cancel func for the given generation, unless a
// newer refresh has taken over in the meantime.
func (s *Service) setCancel(gen int, cancel context.CancelFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.generation == gen {
		s.cancel = cancel
	} else {
		cancel()
	}
}

// Snapshot applies the filter state to the current matched set and returns
// the requested page with AI results merged in.
func (s *Service) Snapshot(f FilterState, page int) Snapshot {
	s.mu.Lock()
	state := s.state
	matches := make([]models.MatchResult, len(state.matches))
	copy(matches, state.matches)
	aiResults := make(map[string]*models.AIMatch, len(state.aiResults))
	for id, a := range state.aiResults {
		aiResults[id] = a
	}
	s.mu.Unlock()

	filtered := Apply(matches, f)
	for i := range filtered {
		if analysis, ok := aiResults[filtered[i].Record.ID]; ok {
			filtered[i].AI = analysis
		}
	}

	if page < 1 {
		page = 1
	}
	return Snapshot{
		DisplayName: state.profile.DisplayName,
		Matches:     Paginate(filtered, page),
		Total:       len(filtered),
		Page:        page,
		PageCount:   PageCount(len(filtered)),
		Progress:    state.progress,
		Loading:     state.loading,
		Error:       state.loadErr,
		Summary:     state.summary,
		CacheInfo:   s.cache.Info(),
	}
}

// Summary returns the AI portfolio summary, empty until the overlay has
// produced one.
func (s *Service) Summary() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.summary
}

// InvalidateCache clears the session cache slot.
func (s *Service) InvalidateCache() {
	s.cache.Invalidate()
	s.logger.Info("session cache invalidated")
}

// CacheInfo exposes cache metadata for the debug endpoint.
func (s *Service) CacheInfo() *CacheInfo {
	return s.cache.Info()
}
