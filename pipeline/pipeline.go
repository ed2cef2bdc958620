package pipeline

import (
	"errors"
	"fmt"
	"sync"

	"github.com/aluiziolira/catalog-harvest/config"
	"github.com/aluiziolira/catalog-harvest/models"
	"github.com/aluiziolira/catalog-harvest/parser"
	lru "github.com/hashicorp/golang-lru/v2"
)

var (
	// ErrPipelineClosed is returned when Process is called after shutdown.
	ErrPipelineClosed = errors.New("pipeline: closed")
)

// Sink receives normalized products in batches.
type Sink interface {
	Write(products []models.Product) error
	Close() error
}

// Collector validates, deduplicates and normalizes listing records on their
// way to a Sink. With a single worker, products reach the sink in the order
// they were submitted and the first record seen for an id wins.
type Collector struct {
	sink       Sink
	normalizer *parser.Normalizer
	recordCh   chan models.RawProduct
	batchSize  int

	wg sync.WaitGroup

	seen *lru.Cache[string, struct{}]

	metrics metrics

	mu     sync.Mutex // guards closed/err
	closed bool
	err    error

	closeOnce    sync.Once
	shutdown     chan struct{}
	shutdownOnce sync.Once
}

// NewCollector builds a collector whose dedupe memory holds at most
// cfg.DedupeMaxSize ids.
func NewCollector(cfg *config.Config, normalizer *parser.Normalizer, sink Sink) (*Collector, error) {
	seen, err := lru.New[string, struct{}](cfg.DedupeMaxSize)
	if err != nil {
		return nil, fmt.Errorf("create dedupe cache: %w", err)
	}
	return &Collector{
		sink:       sink,
		normalizer: normalizer,
		recordCh:   make(chan models.RawProduct, 512),
		batchSize:  64,
		seen:       seen,
		metrics:    newMetrics(),
		shutdown:   make(chan struct{}),
	}, nil
}

// Start launches worker goroutines.
func (c *Collector) Start(workers int) {
	if workers <= 0 {
		workers = 1
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()

	for i := 0; i < workers; i++ {
		c.wg.Add(1)
		go c.worker()
	}
}

// Process enqueues raw listing records for downstream processing.
func (c *Collector) Process(records []models.RawProduct) error {
	if len(records) == 0 {
		return nil
	}

	closed, err := c.state()
	if err != nil {
		return err
	}
	if closed {
		return ErrPipelineClosed
	}

	for _, record := range records {
		if err := c.enqueue(record); err != nil {
			return err
		}
	}
	return nil
}

// Close waits for workers to finish, closes the sink and prevents more
// submissions.
func (c *Collector) Close() error {
	c.mu.Lock()
	if !c.closed {
		c.closed = true
	}
	c.mu.Unlock()

	c.signalShutdown()
	c.closeOnce.Do(func() {
		close(c.recordCh)
	})

	c.wg.Wait()
	if err := c.sink.Close(); err != nil {
		c.setErr(fmt.Errorf("close sink: %w", err))
	}
	return c.Err()
}

// Err returns the first error encountered during processing.
func (c *Collector) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// GetMetrics returns a snapshot of the internal counters.
func (c *Collector) GetMetrics() map[string]interface{} {
	return c.metrics.snapshot()
}

// Accepted returns how many records passed validation and dedupe.
func (c *Collector) Accepted() int {
	c.metrics.mu.Lock()
	defer c.metrics.mu.Unlock()
	return int(c.metrics.processed)
}

func (c *Collector) worker() {
	defer c.wg.Done()

	batch := make([]models.Product, 0, c.batchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := c.sink.Write(batch); err != nil {
			return err
		}
		batch = batch[:0]
		return nil
	}

	for record := range c.recordCh {
		prepared, ok := c.prepare(record)
		if !ok {
			continue
		}
		batch = append(batch, prepared)
		if len(batch) >= c.batchSize {
			if err := flush(); err != nil {
				c.setErr(fmt.Errorf("write batch: %w", err))
				return
			}
		}
	}

	if err := flush(); err != nil {
		c.setErr(fmt.Errorf("write batch: %w", err))
	}
}

func (c *Collector) prepare(record models.RawProduct) (models.Product, bool) {
	if err := parser.ValidateRaw(&record); err != nil {
		c.metrics.addValidation("invalid_record")
		return models.Product{}, false
	}

	if seen, _ := c.seen.ContainsOrAdd(record.ID, struct{}{}); seen {
		c.metrics.addValidation("duplicate_id")
		return models.Product{}, false
	}

	c.metrics.incrementProcessed()
	return c.normalizer.Normalize(record), true
}

func (c *Collector) enqueue(record models.RawProduct) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = ErrPipelineClosed
		}
	}()

	select {
	case <-c.shutdown:
		return ErrPipelineClosed
	case c.recordCh <- record:
		return nil
	}
}

func (c *Collector) setErr(err error) {
	if err == nil {
		return
	}

	c.mu.Lock()
	if c.err != nil {
		c.mu.Unlock()
		return
	}
	c.err = err
	c.closed = true
	c.mu.Unlock()

	c.signalShutdown()
	c.closeOnce.Do(func() {
		close(c.recordCh)
	})
}

func (c *Collector) state() (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed, c.err
}

func (c *Collector) signalShutdown() {
	c.shutdownOnce.Do(func() {
		close(c.shutdown)
	})
}

type metrics struct {
	mu         sync.Mutex
	processed  int64
	validation map[string]int
}

func newMetrics() metrics {
	return metrics{
		validation: make(map[string]int),
	}
}

func (m *metrics) incrementProcessed() {
	m.mu.Lock()
	m.processed++
	m.mu.Unlock()
}

func (m *metrics) addValidation(kind string) {
	m.mu.Lock()
	m.validation[kind]++
	m.mu.Unlock()
}

func (m *metrics) snapshot() map[string]interface{} {
	m.mu.Lock()
	defer m.mu.Unlock()

	copyValidation := make(map[string]int, len(m.validation))
	for k, v := range m.validation {
		copyValidation[k] = v
	}

	return map[string]interface{}{
		"processed_products": m.processed,
		"validation_errors":  copyValidation,
	}
}
