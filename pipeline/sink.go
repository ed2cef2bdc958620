package pipeline

import (
	"sync"

	"github.com/aluiziolira/catalog-harvest/models"
)

// MemorySink accumulates products in arrival order.
type MemorySink struct {
	mu       sync.Mutex
	products []models.Product
}

// NewMemorySink returns an empty sink.
func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

// Write appends products to the sink.
func (s *MemorySink) Write(products []models.Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.products = append(s.products, products...)
	return nil
}

// Close is a no-op.
func (s *MemorySink) Close() error {
	return nil
}

// Products returns a copy of everything written so far.
func (s *MemorySink) Products() []models.Product {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Product, len(s.products))
	copy(out, s.products)
	return out
}
