package cli

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/aluiziolira/catalog-harvest/config"
	"github.com/aluiziolira/catalog-harvest/models"
	"github.com/stretchr/testify/require"
)

func TestTargets(t *testing.T) {
	cfg := config.DefaultConfig()

	all, err := Targets(cfg, nil, true)
	require.NoError(t, err)
	require.Len(t, all, len(config.CategorySlugs()))

	one, err := Targets(cfg, []string{"LIGHTING"}, false)
	require.NoError(t, err)
	require.Len(t, one, 1)
	require.Equal(t, "1-LIGHTING", one[0].Slug)
	require.Equal(t, "https://amsterdammodern.com/categories/1-LIGHTING", one[0].URL)

	_, err = Targets(cfg, []string{"GARDEN"}, false)
	require.True(t, errors.Is(err, config.ErrUnknownCategory))

	tests := []struct {
		name string
		args []string
		all  bool
	}{
		{"nothing", nil, false},
		{"slug and all", []string{"1-LIGHTING"}, true},
		{"two slugs", []string{"1-LIGHTING", "2-SEATING"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Targets(cfg, tt.args, tt.all)
			require.ErrorIs(t, err, ErrTargets)
		})
	}
}

func TestParseRange(t *testing.T) {
	start, end, err := ParseRange("20", "40")
	require.NoError(t, err)
	require.Equal(t, 20, start)
	require.Equal(t, 40, end)

	tests := []struct {
		name       string
		start, end string
		empty      bool
	}{
		{"zero end", "0", "0", true},
		{"reversed", "40", "20", true},
		{"negative start", "-5", "10", true},
		{"not a number", "a", "10", false},
		{"bad end", "0", "ten", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := ParseRange(tt.start, tt.end)
			require.Error(t, err)
			require.Equal(t, tt.empty, errors.Is(err, ErrEmptyRange))
		})
	}
}

func TestPrintCrawlSummary(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	var buf bytes.Buffer
	PrintCrawlSummary(&buf, []*models.CrawlResult{
		{
			Category:     "1-LIGHTING",
			State:        models.CrawlDone,
			PageCount:    2,
			ListedCount:  40,
			SavedCount:   41,
			ErrorsByType: map[string]int{"timeout": 1, "http_5xx": 2},
			Rejected:     map[string]int{"duplicate_id": 3},
			StartTime:    start,
			EndTime:      start.Add(1500 * time.Millisecond),
		},
		nil,
	})

	out := buf.String()
	require.Contains(t, out, "1-LIGHTING")
	require.Contains(t, out, "done")
	require.Contains(t, out, "http_5xx=2 timeout=1")
	require.Contains(t, out, "duplicate_id=3")
	require.Contains(t, out, "1.5s")
}

func TestPrintReconcileSummary(t *testing.T) {
	var buf bytes.Buffer
	PrintReconcileSummary(&buf, []*models.ReconcileSummary{
		{Category: "15-ARCHIVE", ChunkID: "a1b2", Start: 20, End: 40, Total: 20, Updated: 3, Failed: 1, Unchanged: 16},
	})

	out := buf.String()
	require.Contains(t, out, "15-ARCHIVE")
	require.Contains(t, out, "a1b2")
	require.Contains(t, out, "20-40")
}

func TestNewLoggerWritesRotatingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "harvest.log")
	devNull, err := os.OpenFile(os.DevNull, os.O_WRONLY, 0)
	require.NoError(t, err)
	defer devNull.Close()

	logger, sink := NewLogger(devNull, false, path)
	logger.Debug("hidden")
	logger.Info("crawl finished", "category", "1-LIGHTING")
	require.NoError(t, sink.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(data), `"msg":"crawl finished"`)
	require.NotContains(t, string(data), "hidden")
}

func TestRuntimeRebuildsAggregate(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.DataDir = filepath.Join(t.TempDir(), "products")

	rt, err := New(cfg)
	require.NoError(t, err)
	defer rt.Close()
	require.Len(t, rt.RunID, 36)

	require.NoError(t, rt.Store.SaveCategory("2-SEATING", []models.Product{{ID: "7", Name: "Chair"}}))
	require.NoError(t, rt.RebuildAggregate())

	all, ok, err := rt.Store.LoadAggregate()
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, all, 1)
}
