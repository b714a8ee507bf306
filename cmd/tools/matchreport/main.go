// matchreport scores a profile JSON file against live tenders and prints
// the ranked matches. Useful for tuning the scoring weights without running
// the full server.
//
// Usage: matchreport <profile.json> [dateFrom] [dateTo]
package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"go.uber.org/zap"

	"github.com/kumii/tender-finder/internal/config"
	"github.com/kumii/tender-finder/internal/match"
	"github.com/kumii/tender-finder/internal/ocds"
	"github.com/kumii/tender-finder/internal/profile"
)

func main() {
	if len(os.Args) < 2 {
		log.Fatal("usage: matchreport <profile.json> [dateFrom] [dateTo]")
	}

	raw, err := os.ReadFile(os.Args[1])
	if err != nil {
		log.Fatalf("read profile file: %v", err)
	}
	prof := profile.Resolve(raw)

	now := time.Now()
	dateFrom := now.AddDate(0, 0, -30).Format("2006-01-02")
	dateTo := now.Format("2006-01-02")
	if len(os.Args) > 2 {
		dateFrom = os.Args[2]
	}
	if len(os.Args) > 3 {
		dateTo = os.Args[3]
	}

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yaml"
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	zlog := zap.NewNop()
	client := ocds.NewClient(cfg.Upstream.BaseURL, cfg.Upstream.Timeout.Std(), zlog)
	loader := match.NewLoader(client, cfg.Loader.BatchSize, cfg.Loader.BatchDelay.Std(), zlog)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	records, err := loader.Load(ctx, dateFrom, dateTo, nil)
	if err != nil {
		log.Fatalf("load tenders: %v", err)
	}

	matches := match.Rank(records, prof, now)
	totalMatched := len(matches)
	if len(matches) > 20 {
		matches = matches[:20]
	}

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"Score", "Title", "Province", "Category", "Closing", "Reasons"})

	for _, m := range matches {
		closing := "-"
		if m.Record.ClosingDate != nil {
			closing = m.Record.ClosingDate.Format("2006-01-02")
		}
		title := m.Record.Title
		if len(title) > 60 {
			title = title[:57] + "..."
		}
		t.AppendRow(table.Row{m.Score, title, m.Record.Province, m.Record.Category, closing, len(m.Reasons)})
	}
	t.Render()

	log.Printf("matched %d of %d records (%s to %s) for %s", totalMatched, len(records), dateFrom, dateTo, prof.DisplayName)
}
