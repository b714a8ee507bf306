package match

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/kumii/tender-finder/internal/models"
)

// Scoring is an additive point system. The total is unbounded: the minimum
// score filter is labelled "minimum points" downstream, not a percentage.
const (
	keywordPoints    = 10
	provincePoints   = 20
	categoryPoints   = 30
	goodTimelinePts  = 15
	closingSoonPts   = 5
	minKeywordLength = 4
)

// Score computes the deterministic relevance score and human-readable
// reasons for a (record, profile) pair. A record with nothing in common
// with the profile scores 0 with no reasons; nothing here ever fails.
func Score(rec models.ProcurementRecord, p models.Profile, now time.Time) (int, []string) {
	score := 0
	var reasons []string

	combined := strings.ToLower(rec.Title + " " + rec.Description)
	for _, kw := range ProfileKeywords(p) {
		if strings.Contains(combined, kw) {
			score += keywordPoints
			reasons = append(reasons, "Matches keyword: "+kw)
		}
	}

	if rec.Province != "" && p.Location != "" && rec.Province == p.Location {
		score += provincePoints
		reasons = append(reasons, "Located in "+rec.Province)
	}

	if rec.Category != "" && containsString(p.Categories, rec.Category) {
		score += categoryPoints
		reasons = append(reasons, "Category match: "+rec.Category)
	}

	if rec.ClosingDate != nil {
		days := daysUntil(*rec.ClosingDate, now)
		switch {
		case days > 7 && days < 30:
			score += goodTimelinePts
			reasons = append(reasons, fmt.Sprintf("Good timeline: %d days to close", days))
		case days > 0 && days <= 7:
			score += closingSoonPts
			reasons = append(reasons, fmt.Sprintf("Closes soon: %d days", days))
		}
	}

	return score, reasons
}

// Rank scores every record against the profile and returns the matched set:
// records with score > 0, ordered by descending score. The pass is pure;
// input records are not mutated.
func Rank(records []models.ProcurementRecord, p models.Profile, now time.Time) []models.MatchResult {
	var matched []models.MatchResult
	for _, rec := range records {
		score, reasons := Score(rec, p, now)
		if score > 0 {
			matched = append(matched, models.MatchResult{Record: rec, Score: score, Reasons: reasons})
		}
	}
	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].Score > matched[j].Score
	})
	return matched
}

// ProfileKeywords derives the keyword set from every free-text profile
// attribute: lowercased, whitespace-split, tokens longer than three
// characters, deduplicated in first-seen order.
func ProfileKeywords(p models.Profile) []string {
	fields := []string{p.Industry, p.Services, p.Products, p.Skills, p.Expertise}

	var keywords []string
	seen := make(map[string]bool)
	for _, field := range fields {
		for _, token := range strings.Fields(strings.ToLower(field)) {
			if len(token) < minKeywordLength || seen[token] {
				continue
			}
			seen[token] = true
			keywords = append(keywords, token)
		}
	}
	return keywords
}

func daysUntil(t, now time.Time) int {
	return int(t.Sub(now).Hours() / 24)
}

func containsString(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
