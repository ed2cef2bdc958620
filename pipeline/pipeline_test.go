package pipeline

import (
	"errors"
	"strconv"
	"sync"
	"testing"

	"github.com/aluiziolira/catalog-harvest/config"
	"github.com/aluiziolira/catalog-harvest/models"
	"github.com/aluiziolira/catalog-harvest/parser"
)

type mockSink struct {
	mu       sync.Mutex
	batches  [][]models.Product
	closed   bool
	writeErr error
}

func (ms *mockSink) Write(products []models.Product) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	if ms.writeErr != nil {
		return ms.writeErr
	}
	copyBatch := make([]models.Product, len(products))
	copy(copyBatch, products)
	ms.batches = append(ms.batches, copyBatch)
	return nil
}

func (ms *mockSink) Close() error {
	ms.mu.Lock()
	ms.closed = true
	ms.mu.Unlock()
	return nil
}

func (ms *mockSink) all() []models.Product {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	var out []models.Product
	for _, batch := range ms.batches {
		out = append(out, batch...)
	}
	return out
}

func (ms *mockSink) batchSizes() []int {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	sizes := make([]int, 0, len(ms.batches))
	for _, batch := range ms.batches {
		sizes = append(sizes, len(batch))
	}
	return sizes
}

func raw(id, name string) models.RawProduct {
	return models.RawProduct{
		ID:         id,
		Slug:       "item-" + id,
		Name:       name,
		PriceToken: "$10.00",
		Href:       "/categories/1-LIGHTING/" + id + "-item-" + id,
	}
}

func newTestCollector(t *testing.T, cfg *config.Config, sink Sink) *Collector {
	t.Helper()
	c, err := NewCollector(cfg, parser.NewNormalizer(cfg.BaseURL), sink)
	if err != nil {
		t.Fatalf("new collector: %v", err)
	}
	return c
}

func TestCollectorValidationAndDedupAcrossPages(t *testing.T) {
	cfg := config.DefaultConfig()
	sink := &mockSink{}
	c := newTestCollector(t, cfg, sink)
	c.Start(1)

	page1 := []models.RawProduct{raw("1", "First"), {ID: "2", Href: "/x"}, raw("3", "Third")}
	page2 := []models.RawProduct{raw("1", "First again"), raw("4", "Fourth")}

	if err := c.Process(page1); err != nil {
		t.Fatalf("process page 1: %v", err)
	}
	if err := c.Process(page2); err != nil {
		t.Fatalf("process page 2: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	got := sink.all()
	if len(got) != 3 {
		t.Fatalf("written products = %d, want 3", len(got))
	}
	if got[0].ID != "1" || got[0].Name != "First" {
		t.Fatalf("first-seen record should win, got %+v", got[0])
	}
	if got[1].ID != "3" || got[2].ID != "4" {
		t.Fatalf("order not preserved: %s, %s", got[1].ID, got[2].ID)
	}
	if got[0].URL != cfg.BaseURL+"/categories/1-LIGHTING/1-item-1" {
		t.Fatalf("url not normalized: %q", got[0].URL)
	}
	if c.Accepted() != 3 {
		t.Fatalf("accepted = %d, want 3", c.Accepted())
	}
	if !sink.closed {
		t.Fatalf("sink should be closed")
	}

	metrics := c.GetMetrics()
	validation, ok := metrics["validation_errors"].(map[string]int)
	if !ok {
		t.Fatalf("expected validation errors map")
	}
	if validation["invalid_record"] != 1 {
		t.Fatalf("invalid_record = %d, want 1", validation["invalid_record"])
	}
	if validation["duplicate_id"] != 1 {
		t.Fatalf("duplicate_id = %d, want 1", validation["duplicate_id"])
	}
}

func TestCollectorDedupeMemoryIsBounded(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.DedupeMaxSize = 2
	sink := &mockSink{}
	c := newTestCollector(t, cfg, sink)
	c.Start(1)

	// "1" is evicted by "2" and "3", so its reappearance is accepted.
	records := []models.RawProduct{raw("1", "a"), raw("2", "b"), raw("3", "c"), raw("1", "d")}
	if err := c.Process(records); err != nil {
		t.Fatalf("process: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if got := len(sink.all()); got != 4 {
		t.Fatalf("written = %d, want 4", got)
	}
}

func TestCollectorBatchFlushThreshold(t *testing.T) {
	cfg := config.DefaultConfig()
	sink := &mockSink{}
	c := newTestCollector(t, cfg, sink)
	c.Start(1)

	for i := 0; i < 65; i++ {
		if err := c.Process([]models.RawProduct{raw(strconv.Itoa(i), "Item")}); err != nil {
			t.Fatalf("process: %v", err)
		}
	}
	if err := c.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	sizes := sink.batchSizes()
	if len(sizes) != 2 || sizes[0] != 64 || sizes[1] != 1 {
		t.Fatalf("batch sizes = %v, want [64 1]", sizes)
	}
}

func TestCollectorCloseDrainsPendingItems(t *testing.T) {
	cfg := config.DefaultConfig()
	sink := NewMemorySink()
	c := newTestCollector(t, cfg, sink)
	c.Start(2)

	for i := 0; i < 100; i++ {
		if err := c.Process([]models.RawProduct{raw(strconv.Itoa(i+200), "Item")}); err != nil {
			t.Fatalf("process: %v", err)
		}
	}
	if err := c.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if got := len(sink.Products()); got != 100 {
		t.Fatalf("written = %d, want 100", got)
	}
}

func TestCollectorProcessAfterClose(t *testing.T) {
	c := newTestCollector(t, config.DefaultConfig(), NewMemorySink())
	c.Start(1)
	if err := c.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := c.Process([]models.RawProduct{raw("1", "late")}); !errors.Is(err, ErrPipelineClosed) {
		t.Fatalf("expected ErrPipelineClosed, got %v", err)
	}
}

func TestCollectorSurfacesSinkError(t *testing.T) {
	boom := errors.New("disk full")
	c := newTestCollector(t, config.DefaultConfig(), &mockSink{writeErr: boom})
	c.Start(1)
	if err := c.Process([]models.RawProduct{raw("1", "a")}); err != nil {
		t.Fatalf("process: %v", err)
	}
	if err := c.Close(); !errors.Is(err, boom) {
		t.Fatalf("expected sink error, got %v", err)
	}
}
