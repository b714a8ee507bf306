package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "embed"

	"go.uber.org/zap"

	"github.com/kumii/tender-finder/internal/models"
)

//go:embed prompt.md
var promptTemplate string

//go:embed summary_prompt.md
var summaryTemplate string

const (
	// DefaultMaxRecords caps how many records one enhancement pass sends to
	// the reasoning service. Cost control, not correctness.
	DefaultMaxRecords = 10
	// DefaultCallDelay spaces sequential calls to respect rate limits.
	DefaultCallDelay = 500 * time.Millisecond

	summaryTopCount = 5
)

type contentGenerator interface {
	GenerateContent(ctx context.Context, prompt string) (string, error)
}

// Analyzer re-scores top matches through Gemini. Every failure degrades to
// "no AI fields for that record"; nothing here propagates an error to the
// deterministic view.
type Analyzer struct {
	generator  contentGenerator
	maxRecords int
	delay      time.Duration
	logger     *zap.Logger
}

func NewAnalyzer(generator contentGenerator, maxRecords int, delay time.Duration, logger *zap.Logger) *Analyzer {
	if maxRecords <= 0 {
		maxRecords = DefaultMaxRecords
	}
	if delay < 0 {
		delay = DefaultCallDelay
	}
	return &Analyzer{
		generator:  generator,
		maxRecords: maxRecords,
		delay:      delay,
		logger:     logger,
	}
}

// Enhance analyzes at most maxRecords records sequentially. A single-record
// failure is logged and skipped, never aborting the remaining records.
func (a *Analyzer) Enhance(ctx context.Context, top []models.MatchResult, p models.Profile) map[string]*models.AIMatch {
	results := make(map[string]*models.AIMatch)
	if a.generator == nil || len(top) == 0 {
		return results
	}

	if len(top) > a.maxRecords {
		top = top[:a.maxRecords]
	}

	for i, m := range top {
		if ctx.Err() != nil {
			return results
		}

		analysis, err := a.analyzeOne(ctx, m.Record, p)
		if err != nil {
			a.logger.Warn("ai analysis failed for record",
				zap.String("record_id", m.Record.ID),
				zap.Error(err),
			)
		} else {
			results[m.Record.ID] = analysis
		}

		if i < len(top)-1 && !sleepCtx(ctx, a.delay) {
			return results
		}
	}

	a.logger.Info("ai analysis complete",
		zap.Int("analyzed", len(results)),
		zap.Int("requested", len(top)),
	)
	return results
}

func (a *Analyzer) analyzeOne(ctx context.Context, rec models.ProcurementRecord, p models.Profile) (*models.AIMatch, error) {
	tenderJSON, err := json.MarshalIndent(map[string]any{
		"title":       rec.Title,
		"description": truncate(rec.Description, 500),
		"category":    orUnspecified(rec.Category),
		"province":    orUnspecified(rec.Province),
	}, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal tender payload: %w", err)
	}

	profileJSON, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal profile payload: %w", err)
	}

	prompt := strings.ReplaceAll(promptTemplate, "{{TENDER_JSON}}", string(tenderJSON))
	prompt = strings.ReplaceAll(prompt, "{{PROFILE_JSON}}", string(profileJSON))

	raw, err := a.generator.GenerateContent(ctx, prompt)
	if err != nil {
		return nil, err
	}

	return parseAnalysis(raw)
}

// Summarize builds a portfolio-level summary of the matched set. Returns an
// empty string when there is nothing to summarize or the service fails.
func (a *Analyzer) Summarize(ctx context.Context, matched []models.MatchResult, p models.Profile) string {
	if a.generator == nil || len(matched) == 0 {
		return ""
	}

	top := matched
	if len(top) > summaryTopCount {
		top = top[:summaryTopCount]
	}

	var lines []string
	for i, m := range top {
		category := orUnspecified(m.Record.Category)
		lines = append(lines, fmt.Sprintf("%d. %s (%d points) - %s", i+1, m.Record.Title, m.Score, category))
	}

	prompt := strings.ReplaceAll(summaryTemplate, "{{INDUSTRY}}", orUnspecified(p.Industry))
	prompt = strings.ReplaceAll(prompt, "{{LOCATION}}", orUnspecified(p.Location))
	prompt = strings.ReplaceAll(prompt, "{{SKILLS}}", p.Skills)
	prompt = strings.ReplaceAll(prompt, "{{TOP_MATCHES}}", strings.Join(lines, "\n"))
	prompt = strings.ReplaceAll(prompt, "{{TOTAL}}", strconv.Itoa(len(matched)))

	summary, err := a.generator.GenerateContent(ctx, prompt)
	if err != nil {
		a.logger.Warn("portfolio summary failed", zap.Error(err))
		return ""
	}
	return strings.TrimSpace(summary)
}

// parseAnalysis tolerates code fences and loosely-typed values in the
// service response; anything unparsable fails the single record.
func parseAnalysis(raw string) (*models.AIMatch, error) {
	cleaned := extractJSON(raw)

	var data map[string]any
	if err := json.Unmarshal([]byte(cleaned), &data); err != nil {
		return nil, fmt.Errorf("parse analysis response: %w", err)
	}

	return &models.AIMatch{
		Score:          coerceInt(data["matchScore"]),
		Confidence:     coerceString(data["confidenceLevel"], "low"),
		Reasons:        coerceStrings(data["topReasons"]),
		Concerns:       coerceStrings(data["concerns"]),
		Recommendation: coerceString(data["recommendation"], ""),
	}, nil
}

func extractJSON(raw string) string {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "```") {
		raw = strings.TrimPrefix(raw, "```json")
		raw = strings.TrimPrefix(raw, "```")
		raw = strings.TrimSpace(raw)
		if idx := strings.LastIndex(raw, "```"); idx != -1 {
			raw = raw[:idx]
		}
	}
	raw = strings.Trim(raw, "`")
	return strings.TrimSpace(raw)
}

func coerceInt(v any) int {
	switch val := v.(type) {
	case float64:
		return int(val)
	case int:
		return val
	case string:
		if n, err := strconv.Atoi(strings.TrimSpace(val)); err == nil {
			return n
		}
	}
	return 0
}

func coerceString(v any, fallback string) string {
	if s, ok := v.(string); ok {
		if s = strings.TrimSpace(s); s != "" {
			return s
		}
	}
	return fallback
}

func coerceStrings(v any) []string {
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	var out []string
	for _, item := range items {
		if s, ok := item.(string); ok {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
	}
	return out
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen]
}

func orUnspecified(s string) string {
	if strings.TrimSpace(s) == "" {
		return "Not specified"
	}
	return s
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d == 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
