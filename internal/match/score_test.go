package match

import (
	"reflect"
	"testing"
	"time"

	"github.com/kumii/tender-finder/internal/models"
)

var scoreNow = time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)

func datePtr(t time.Time) *time.Time { return &t }

func TestScoreMedicalEquipmentScenario(t *testing.T) {
	closing := scoreNow.Add(15 * 24 * time.Hour)
	rec := models.ProcurementRecord{
		Title:       "Supply of Medical Equipment",
		Description: "Procurement of hospital beds and diagnostic machines",
		Province:    "Gauteng",
		Category:    "Goods",
		ClosingDate: &closing,
	}
	p := models.Profile{
		Industry:   "medical supplies",
		Location:   "Gauteng",
		Categories: []string{"Goods"},
	}

	score, reasons := Score(rec, p, scoreNow)

	// keyword "medical" (+10), province (+20), category (+30), timeline (+15)
	if score < 35 {
		t.Errorf("score = %d, want at least 35", score)
	}
	if score != 75 {
		t.Errorf("score = %d, want 75", score)
	}
	if len(reasons) < 3 {
		t.Errorf("reasons = %v, want at least 3", reasons)
	}
}

func TestScoreNoOverlap(t *testing.T) {
	rec := models.ProcurementRecord{
		Title:       "Road Maintenance Western Cape",
		Description: "Resurfacing of provincial roads",
	}
	p := models.Profile{Industry: "catering", Location: "Gauteng"}

	score, reasons := Score(rec, p, scoreNow)
	if score != 0 || len(reasons) != 0 {
		t.Errorf("got score=%d reasons=%v, want 0 and none", score, reasons)
	}
}

func TestScoreKeywordRules(t *testing.T) {
	tests := []struct {
		name    string
		profile models.Profile
		want    int
	}{
		{
			name:    "short tokens ignored",
			profile: models.Profile{Industry: "it icu gas"},
			want:    0,
		},
		{
			name:    "duplicate token counted once",
			profile: models.Profile{Industry: "medical", Services: "medical"},
			want:    keywordPoints,
		},
		{
			name:    "two distinct keywords",
			profile: models.Profile{Industry: "medical equipment"},
			want:    2 * keywordPoints,
		},
		{
			name:    "case-insensitive substring",
			profile: models.Profile{Industry: "MEDICAL"},
			want:    keywordPoints,
		},
	}

	rec := models.ProcurementRecord{Title: "Supply of Medical Equipment"}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			score, _ := Score(rec, tt.profile, scoreNow)
			if score != tt.want {
				t.Errorf("score = %d, want %d", score, tt.want)
			}
		})
	}
}

func TestScoreTimelineBands(t *testing.T) {
	p := models.Profile{}
	tests := []struct {
		name string
		days int
		want int
	}{
		{"already closed", -3, 0},
		{"closes today", 0, 0},
		{"closes soon", 3, closingSoonPts},
		{"soon boundary", 7, closingSoonPts},
		{"good timeline", 15, goodTimelinePts},
		{"too far out", 45, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			closing := scoreNow.Add(time.Duration(tt.days) * 24 * time.Hour)
			rec := models.ProcurementRecord{Title: "x", ClosingDate: &closing}
			score, _ := Score(rec, p, scoreNow)
			if score != tt.want {
				t.Errorf("days=%d: score = %d, want %d", tt.days, score, tt.want)
			}
		})
	}
}

func TestRankAdmissionAndOrder(t *testing.T) {
	p := models.Profile{Industry: "medical", Location: "Gauteng"}
	records := []models.ProcurementRecord{
		{ID: "a", Title: "Office furniture"},
		{ID: "b", Title: "Medical supplies", Province: "Gauteng"},
		{ID: "c", Title: "Medical gloves"},
	}

	matched := Rank(records, p, scoreNow)
	if len(matched) != 2 {
		t.Fatalf("matched %d records, want 2", len(matched))
	}
	if matched[0].Record.ID != "b" || matched[1].Record.ID != "c" {
		t.Errorf("order: got %s, %s", matched[0].Record.ID, matched[1].Record.ID)
	}
	// zero-score record is excluded entirely
	for _, m := range matched {
		if m.Record.ID == "a" {
			t.Error("zero-score record admitted")
		}
	}
}

func TestRankStableForEqualScores(t *testing.T) {
	p := models.Profile{Industry: "medical"}
	records := []models.ProcurementRecord{
		{ID: "first", Title: "Medical one"},
		{ID: "second", Title: "Medical two"},
		{ID: "third", Title: "Medical three"},
	}

	matched := Rank(records, p, scoreNow)
	got := []string{matched[0].Record.ID, matched[1].Record.ID, matched[2].Record.ID}
	if !reflect.DeepEqual(got, []string{"first", "second", "third"}) {
		t.Errorf("equal scores must keep input order, got %v", got)
	}
}

func TestProfileKeywords(t *testing.T) {
	p := models.Profile{
		Industry:  "Medical Supplies",
		Services:  "supplies delivery",
		Skills:    "IT",
		Expertise: "cold-chain",
	}

	got := ProfileKeywords(p)
	want := []string{"medical", "supplies", "delivery", "cold-chain"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}
