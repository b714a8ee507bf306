package profile

import (
	"strings"

	"github.com/tidwall/gjson"

	"github.com/kumii/tender-finder/internal/models"
)

// The profile service payload has no stable schema. Every logical attribute
// is resolved by probing an ordered list of candidate paths and taking the
// first non-empty result. The tables are deliberately explicit so the
// fallback order is testable.
var textProbes = map[string][]string{
	"firstName": {"user.first_name", "user.firstName", "first_name", "firstName", "profile.first_name"},
	"lastName":  {"user.last_name", "user.lastName", "last_name", "lastName", "profile.last_name"},
	"fullName":  {"user.full_name", "user.fullName", "full_name", "fullName", "profile.full_name"},
	"company":   {"company.name", "company.company_name", "companyName"},
	"email":     {"user.email", "email"},
	"industry":  {"company.industry", "startup.industry", "profile.industry"},
	"services":  {"company.services", "profile.services"},
	"products":  {"company.products", "profile.products"},
	"skills":    {"user.skills", "profile.skills"},
	"expertise": {"user.expertise", "profile.expertise"},
	"bio":       {"profile.bio", "user.bio"},
	"location":  {"company.province", "user.province", "startup.location", "profile.location"},
	"stage":     {"startup.stage", "company.stage"},
}

var categoryProbes = []string{"company.categories", "profile.industry_sectors", "profile.interests"}

// Resolve extracts the matching subject from a raw profile payload. It never
// fails: attributes whose candidate paths are all empty resolve to zero
// values and matching degrades gracefully downstream.
func Resolve(raw []byte) models.Profile {
	p := models.Profile{
		Industry:   probeText(raw, textProbes["industry"]),
		Services:   probeText(raw, textProbes["services"]),
		Products:   probeText(raw, textProbes["products"]),
		Skills:     probeText(raw, textProbes["skills"]),
		Expertise:  probeText(raw, textProbes["expertise"]),
		Bio:        probeText(raw, textProbes["bio"]),
		Location:   probeText(raw, textProbes["location"]),
		Stage:      probeText(raw, textProbes["stage"]),
		Categories: probeList(raw, categoryProbes),
	}
	p.DisplayName = displayName(raw)
	return p
}

// probeText returns the first non-empty candidate. Array values are joined
// with spaces since some tenants store skills as lists.
func probeText(raw []byte, paths []string) string {
	for _, path := range paths {
		v := gjson.GetBytes(raw, path)
		if !v.Exists() {
			continue
		}
		if v.IsArray() {
			var parts []string
			v.ForEach(func(_, item gjson.Result) bool {
				if s := strings.TrimSpace(item.String()); s != "" {
					parts = append(parts, s)
				}
				return true
			})
			if len(parts) > 0 {
				return strings.Join(parts, " ")
			}
			continue
		}
		if s := strings.TrimSpace(v.String()); s != "" {
			return s
		}
	}
	return ""
}

func probeList(raw []byte, paths []string) []string {
	for _, path := range paths {
		v := gjson.GetBytes(raw, path)
		if !v.Exists() || !v.IsArray() {
			continue
		}
		var items []string
		v.ForEach(func(_, item gjson.Result) bool {
			if s := strings.TrimSpace(item.String()); s != "" {
				items = append(items, s)
			}
			return true
		})
		if len(items) > 0 {
			return items
		}
	}
	return nil
}

// displayName resolves a greeting name: first+last, then full name, then
// company name, then the email local part, then a generic fallback.
func displayName(raw []byte) string {
	first := probeText(raw, textProbes["firstName"])
	last := probeText(raw, textProbes["lastName"])
	if first != "" && last != "" {
		return first + " " + last
	}
	if full := probeText(raw, textProbes["fullName"]); full != "" {
		return full
	}
	if company := probeText(raw, textProbes["company"]); company != "" {
		return company
	}
	if email := probeText(raw, textProbes["email"]); email != "" {
		if at := strings.Index(email, "@"); at > 0 {
			return email[:at]
		}
		return email
	}
	return "there"
}
