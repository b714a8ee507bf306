package models

import "time"

// ProcurementRecord is the canonical tender entity used throughout the
// matching pipeline. Public records come from the upstream OCDS releases
// API; private records are entered by the user and stored locally.
type ProcurementRecord struct {
	ID          string           `json:"id"`
	Title       string           `json:"title"`
	Description string           `json:"description"`
	BuyerName   string           `json:"buyer_name,omitempty"`
	Province    string           `json:"province,omitempty"`
	Category    string           `json:"category,omitempty"`
	Status      string           `json:"status,omitempty"`
	OpeningDate *time.Time       `json:"opening_date,omitempty"`
	ClosingDate *time.Time       `json:"closing_date,omitempty"`
	Documents   []Document       `json:"documents,omitempty"`
	Briefing    *BriefingSession `json:"briefing,omitempty"`
	IsPrivate   bool             `json:"is_private"`
	CreatedAt   *time.Time       `json:"created_at,omitempty"` // private records only
}

// Document is a single tender document link. Documents on a record are
// deduplicated by URL, first occurrence wins.
type Document struct {
	ID    string `json:"id,omitempty"`
	Title string `json:"title,omitempty"`
	URL   string `json:"url"`
	Kind  string `json:"kind,omitempty"`
}

type BriefingSession struct {
	Compulsory bool       `json:"compulsory"`
	Date       *time.Time `json:"date,omitempty"`
	Venue      string     `json:"venue,omitempty"`
}

// MatchResult pairs a record with its deterministic score. AI fields live
// in a side map keyed by record id and are merged at consumption time; they
// are never required for the deterministic result to be valid.
type MatchResult struct {
	Record  ProcurementRecord `json:"record"`
	Score   int               `json:"score"`
	Reasons []string          `json:"reasons"`
	AI      *AIMatch          `json:"ai,omitempty"`
}

// AIMatch is the optional asynchronous re-scoring of a single record by the
// external reasoning service.
type AIMatch struct {
	Score          int      `json:"match_score"`
	Confidence     string   `json:"confidence_level"`
	Reasons        []string `json:"top_reasons"`
	Concerns       []string `json:"concerns,omitempty"`
	Recommendation string   `json:"recommendation,omitempty"`
}

// Profile is the resolved matching subject, extracted from the free-form
// profile service payload via ordered fallback-path probing.
type Profile struct {
	DisplayName string   `json:"display_name"`
	Industry    string   `json:"industry,omitempty"`
	Services    string   `json:"services,omitempty"`
	Products    string   `json:"products,omitempty"`
	Skills      string   `json:"skills,omitempty"`
	Expertise   string   `json:"expertise,omitempty"`
	Bio         string   `json:"bio,omitempty"`
	Location    string   `json:"location,omitempty"`
	Stage       string   `json:"stage,omitempty"`
	Categories  []string `json:"categories,omitempty"`
}
