package ocds

import (
	"html"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/tidwall/gjson"

	"github.com/kumii/tender-finder/internal/models"
)

const (
	defaultTitle       = "Untitled Tender"
	defaultDescription = "No description available"
)

// stripPolicy removes any HTML the upstream sneaks into free-text fields.
var stripPolicy = bluemonday.StrictPolicy()

// Field probing order for a loosely-structured OCDS release. The upstream
// sometimes nests the release under a releases array, so every field is
// probed at both levels and the first non-empty hit wins.
var (
	titlePaths       = []string{"tender.title", "releases.0.tender.title"}
	descriptionPaths = []string{"tender.description", "releases.0.tender.description"}
	buyerPaths       = []string{"buyer.name", "tender.procuringEntity.name", "releases.0.buyer.name"}
	provincePaths    = []string{"tender.province", "releases.0.tender.province"}
	categoryPaths    = []string{"tender.mainProcurementCategory", "tender.category", "releases.0.tender.mainProcurementCategory"}
	statusPaths      = []string{"tender.status", "releases.0.tender.status"}
	openingPaths     = []string{"tender.tenderPeriod.startDate", "releases.0.tender.tenderPeriod.startDate"}
	closingPaths     = []string{"tender.tenderPeriod.endDate", "releases.0.tender.tenderPeriod.endDate"}
	idPaths          = []string{"ocid", "id", "releases.0.ocid"}

	// Documents can live at tender, planning, contract or award level.
	documentPaths = []string{
		"tender.documents",
		"releases.0.tender.documents",
		"planning.documents",
		"contracts.#.documents",
		"awards.#.documents",
	}
)

// Normalize converts a raw OCDS release into the canonical record. It never
// fails: missing or malformed fields fall back to documented defaults, and
// an id is never invented for upstream records.
func Normalize(raw []byte) models.ProcurementRecord {
	rec := models.ProcurementRecord{
		ID:          probeString(raw, idPaths),
		Title:       cleanText(probeString(raw, titlePaths)),
		Description: cleanText(probeString(raw, descriptionPaths)),
		BuyerName:   cleanText(probeString(raw, buyerPaths)),
		Province:    strings.TrimSpace(probeString(raw, provincePaths)),
		Category:    strings.TrimSpace(probeString(raw, categoryPaths)),
		Status:      strings.TrimSpace(probeString(raw, statusPaths)),
		OpeningDate: probeTime(raw, openingPaths),
		ClosingDate: probeTime(raw, closingPaths),
		Documents:   extractDocuments(raw),
		Briefing:    extractBriefing(raw),
	}

	if rec.Title == "" {
		rec.Title = defaultTitle
	}
	if rec.Description == "" {
		rec.Description = defaultDescription
	}

	return rec
}

func probeString(raw []byte, paths []string) string {
	for _, p := range paths {
		if v := gjson.GetBytes(raw, p); v.Exists() && v.String() != "" {
			return v.String()
		}
	}
	return ""
}

func probeTime(raw []byte, paths []string) *time.Time {
	return parseTime(probeString(raw, paths))
}

func parseTime(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return &t
		}
	}
	return nil
}

// extractDocuments flattens documents from every known location into one
// list deduplicated by URL. First occurrence wins.
func extractDocuments(raw []byte) []models.Document {
	var docs []models.Document
	seen := make(map[string]bool)

	add := func(v gjson.Result) {
		url := v.Get("url").String()
		if url == "" || seen[url] {
			return
		}
		seen[url] = true
		docs = append(docs, models.Document{
			ID:    v.Get("id").String(),
			Title: cleanText(v.Get("title").String()),
			URL:   url,
			Kind:  v.Get("documentType").String(),
		})
	}

	for _, path := range documentPaths {
		res := gjson.GetBytes(raw, path)
		if !res.Exists() {
			continue
		}
		res.ForEach(func(_, entry gjson.Result) bool {
			if entry.IsArray() {
				// contracts.#.documents yields an array per contract
				entry.ForEach(func(_, doc gjson.Result) bool {
					add(doc)
					return true
				})
			} else {
				add(entry)
			}
			return true
		})
	}

	return docs
}

func extractBriefing(raw []byte) *models.BriefingSession {
	session := gjson.GetBytes(raw, "tender.briefingSession")
	if !session.Exists() {
		session = gjson.GetBytes(raw, "releases.0.tender.briefingSession")
	}
	if !session.Exists() || !session.Get("isSession").Bool() {
		return nil
	}
	return &models.BriefingSession{
		Compulsory: session.Get("compulsory").Bool(),
		Date:       parseTime(session.Get("date").String()),
		Venue:      cleanText(session.Get("venue").String()),
	}
}

// cleanText strips HTML tags and collapses whitespace.
func cleanText(s string) string {
	if s == "" {
		return ""
	}
	if strings.ContainsAny(s, "<&") {
		s = html.UnescapeString(stripPolicy.Sanitize(s))
	}
	return strings.Join(strings.Fields(s), " ")
}
