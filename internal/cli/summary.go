package cli

import (
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/aluiziolira/catalog-harvest/models"
	"github.com/jedib0t/go-pretty/v6/table"
)

func newTable(w io.Writer) table.Writer {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.SetOutputMirror(w)
	return t
}

// PrintCrawlSummary renders one row per crawled category.
func PrintCrawlSummary(w io.Writer, results []*models.CrawlResult) {
	t := newTable(w)
	t.AppendHeader(table.Row{"Category", "State", "Pages", "Listed", "Enriched", "Detail failures", "Saved", "Retries", "Rejected", "Errors", "Duration"})

	var listed, saved int
	for _, r := range results {
		if r == nil {
			continue
		}
		listed += r.ListedCount
		saved += r.SavedCount
		t.AppendRow(table.Row{
			r.Category,
			r.State,
			r.PageCount,
			r.ListedCount,
			r.EnrichedCount,
			r.DetailFailures,
			r.SavedCount,
			r.RetryCount,
			formatCounts(r.Rejected),
			formatCounts(r.ErrorsByType),
			elapsed(r.StartTime, r.EndTime),
		})
	}
	t.AppendFooter(table.Row{"Total", "", "", listed, "", "", saved})
	t.Render()
}

// PrintReconcileSummary renders one row per reconciled category or chunk.
func PrintReconcileSummary(w io.Writer, summaries []*models.ReconcileSummary) {
	t := newTable(w)
	t.AppendHeader(table.Row{"Category", "Chunk", "Range", "Total", "Updated", "Failed", "Unchanged", "Entities", "Variants", "Refetched", "Placeholders", "Mirrored", "Failures", "Duration"})

	var updated, failed, unchanged int
	for _, s := range summaries {
		if s == nil {
			continue
		}
		updated += s.Updated
		failed += s.Failed
		unchanged += s.Unchanged
		t.AppendRow(table.Row{
			s.Category,
			s.ChunkID,
			fmt.Sprintf("%d-%d", s.Start, s.End),
			s.Total,
			s.Updated,
			s.Failed,
			s.Unchanged,
			s.EntityFixes,
			s.VariantUpgrades,
			s.Refetched,
			s.Placeholders,
			s.Mirrored,
			formatCounts(s.FailuresByType),
			elapsed(s.StartTime, s.EndTime),
		})
	}
	t.AppendFooter(table.Row{"Total", "", "", "", updated, failed, unchanged})
	t.Render()
}

func formatCounts(counts map[string]int) string {
	if len(counts) == 0 {
		return "-"
	}
	parts := make([]string, 0, len(counts))
	for _, k := range slices.Sorted(maps.Keys(counts)) {
		parts = append(parts, fmt.Sprintf("%s=%d", k, counts[k]))
	}
	return strings.Join(parts, " ")
}

func elapsed(start, end time.Time) string {
	if start.IsZero() || end.IsZero() {
		return "-"
	}
	return end.Sub(start).Round(time.Millisecond).String()
}
