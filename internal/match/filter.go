package match

import (
	"sort"
	"strings"
	"time"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/kumii/tender-finder/internal/models"
)

// PageSize is the fixed page size of every paginated view.
const PageSize = 250

// Sort keys accepted by the pipeline.
const (
	SortClosingSoon   = "closing-soon"
	SortClosingLate   = "closing-late"
	SortTitleAsc      = "title-asc"
	SortTitleDesc     = "title-desc"
	SortScoreDesc     = "score-desc"
	SortScoreAsc      = "score-asc"
	SortRecentlyAdded = "recently-added"
)

// FilterState is a user intent snapshot. It is an immutable value: every
// user edit replaces it wholesale, and Apply is a pure function of
// (results, state).
type FilterState struct {
	Keywords      string     `json:"keywords,omitempty"`
	Province      string     `json:"province,omitempty"`
	Category      string     `json:"category,omitempty"`
	Status        string     `json:"status,omitempty"`
	ClosingBefore *time.Time `json:"closing_before,omitempty"`
	MinScore      int        `json:"min_score,omitempty"`
	SortKey       string     `json:"sort_key,omitempty"`
}

// Apply filters and sorts the result set. Filters are conjunctive; the
// keyword filter tokenizes its input and admits a record when any token is
// a case-insensitive substring of the record's searchable text. Sorting is
// stable, with undated records always after dated ones.
func Apply(results []models.MatchResult, f FilterState) []models.MatchResult {
	out := make([]models.MatchResult, 0, len(results))
	tokens := keywordTokens(f.Keywords)

	for _, r := range results {
		if len(tokens) > 0 && !matchesAnyToken(r.Record, tokens) {
			continue
		}
		if f.Province != "" && r.Record.Province != f.Province {
			continue
		}
		if f.Category != "" && r.Record.Category != f.Category {
			continue
		}
		if f.Status != "" && r.Record.Status != f.Status {
			continue
		}
		if f.ClosingBefore != nil {
			// Undated records are excluded from this filter specifically.
			if r.Record.ClosingDate == nil || r.Record.ClosingDate.After(*f.ClosingBefore) {
				continue
			}
		}
		if f.MinScore > 0 && r.Score < f.MinScore {
			continue
		}
		out = append(out, r)
	}

	sortResults(out, f.SortKey)
	return out
}

func keywordTokens(s string) []string {
	var tokens []string
	for _, t := range strings.Fields(strings.ToLower(s)) {
		if t != "" {
			tokens = append(tokens, t)
		}
	}
	return tokens
}

func matchesAnyToken(rec models.ProcurementRecord, tokens []string) bool {
	searchable := strings.ToLower(strings.Join([]string{
		rec.Title, rec.Description, rec.BuyerName, rec.Province, rec.Category,
	}, " "))
	for _, t := range tokens {
		if strings.Contains(searchable, t) {
			return true
		}
	}
	return false
}

func sortResults(results []models.MatchResult, key string) {
	switch key {
	case SortClosingSoon:
		sort.SliceStable(results, func(i, j int) bool {
			return lessByClosing(results[i].Record, results[j].Record, true)
		})
	case SortClosingLate:
		sort.SliceStable(results, func(i, j int) bool {
			return lessByClosing(results[i].Record, results[j].Record, false)
		})
	case SortTitleAsc, SortTitleDesc:
		// A Collator mutates internal iterator buffers on every compare and
		// is not safe for concurrent use, so each sort builds its own.
		col := collate.New(language.English, collate.IgnoreCase)
		asc := key == SortTitleAsc
		sort.SliceStable(results, func(i, j int) bool {
			cmp := col.CompareString(results[i].Record.Title, results[j].Record.Title)
			if asc {
				return cmp < 0
			}
			return cmp > 0
		})
	case SortScoreDesc:
		sort.SliceStable(results, func(i, j int) bool {
			return results[i].Score > results[j].Score
		})
	case SortScoreAsc:
		sort.SliceStable(results, func(i, j int) bool {
			return results[i].Score < results[j].Score
		})
	case SortRecentlyAdded:
		sort.SliceStable(results, func(i, j int) bool {
			return createdAt(results[i].Record).After(createdAt(results[j].Record))
		})
	}
}

// lessByClosing orders by closing date; undated records sort last in both
// directions.
func lessByClosing(a, b models.ProcurementRecord, ascending bool) bool {
	switch {
	case a.ClosingDate == nil && b.ClosingDate == nil:
		return false
	case a.ClosingDate == nil:
		return false
	case b.ClosingDate == nil:
		return true
	}
	if ascending {
		return a.ClosingDate.Before(*b.ClosingDate)
	}
	return a.ClosingDate.After(*b.ClosingDate)
}

// createdAt treats a missing timestamp as the epoch so never-stamped
// records sort last under recently-added.
func createdAt(rec models.ProcurementRecord) time.Time {
	if rec.CreatedAt == nil {
		return time.Time{}
	}
	return *rec.CreatedAt
}

// Paginate slices out the requested 1-indexed page.
func Paginate(results []models.MatchResult, page int) []models.MatchResult {
	if page < 1 {
		page = 1
	}
	start := (page - 1) * PageSize
	if start >= len(results) {
		return nil
	}
	end := start + PageSize
	if end > len(results) {
		end = len(results)
	}
	return results[start:end]
}

// PageCount reports ceil(total/PageSize) with a floor of one page: an empty
// result set still has page 1.
func PageCount(total int) int {
	if total <= 0 {
		return 1
	}
	return (total + PageSize - 1) / PageSize
}

// WrapRecords lifts plain records into unscored results so record-only
// views (private tenders, browsing) share the same pipeline.
func WrapRecords(records []models.ProcurementRecord) []models.MatchResult {
	out := make([]models.MatchResult, 0, len(records))
	for _, rec := range records {
		out = append(out, models.MatchResult{Record: rec})
	}
	return out
}
