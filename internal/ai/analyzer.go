package ai

import (
	"context"

	"github.com/kumii/tender-finder/internal/models"
)

// Analyzer is the augmentation overlay on top of deterministic scores. Both
// operations are best-effort: implementations absorb service failures and
// callers must always be able to render a deterministic-only view.
type Analyzer interface {
	// Enhance re-scores the given records (already capped to the top of the
	// deterministic ranking) and returns AI results keyed by record id.
	// Records the service could not analyze are simply absent from the map.
	Enhance(ctx context.Context, top []models.MatchResult, p models.Profile) map[string]*models.AIMatch

	// Summarize produces a short portfolio-level summary of the matched set,
	// or an empty string when the service is unavailable.
	Summarize(ctx context.Context, matched []models.MatchResult, p models.Profile) string
}
