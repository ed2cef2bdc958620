// Package store persists the catalog as one JSON document per category plus
// an aggregate document. It has no merge logic; callers hand it complete
// documents.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/aluiziolira/catalog-harvest/models"
)

const (
	aggregateFile  = "all-products.json"
	categoriesFile = "categories.json"
)

// Store reads and writes dataset documents under a data directory.
type Store struct {
	dataDir string
	lock    lockSettings
}

// New returns a store rooted at dataDir. Advisory locks older than lockTTL
// are treated as abandoned.
func New(dataDir string, opts ...Option) *Store {
	s := &Store{
		dataDir: dataDir,
		lock:    defaultLockSettings(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// DataDir returns the directory holding the category documents.
func (s *Store) DataDir() string {
	return s.dataDir
}

// CategoryPath returns the document path for slug.
func (s *Store) CategoryPath(slug string) string {
	return filepath.Join(s.dataDir, slug+".json")
}

// AggregatePath returns the path of the concatenated document.
func (s *Store) AggregatePath() string {
	return filepath.Join(s.dataDir, aggregateFile)
}

// CategoriesPath returns the path of the category list, one level above the
// products directory.
func (s *Store) CategoriesPath() string {
	return filepath.Join(filepath.Dir(filepath.Clean(s.dataDir)), categoriesFile)
}

// LoadCategory reads the document for slug. A missing document is an empty
// category, not an error.
func (s *Store) LoadCategory(slug string) ([]models.Product, error) {
	products, _, err := readProducts(s.CategoryPath(slug))
	if err != nil {
		return nil, fmt.Errorf("load category %s: %w", slug, err)
	}
	return products, nil
}

// SaveCategory replaces the document for slug with products.
func (s *Store) SaveCategory(slug string, products []models.Product) error {
	if err := writeJSON(s.CategoryPath(slug), canonical(products)); err != nil {
		return fmt.Errorf("save category %s: %w", slug, err)
	}
	return nil
}

// RebuildAggregate concatenates the category documents in slug order into
// the aggregate document and returns the number of products written.
func (s *Store) RebuildAggregate(slugs []string) (int, error) {
	all := make([]models.Product, 0)
	for _, slug := range slugs {
		products, err := s.LoadCategory(slug)
		if err != nil {
			return 0, err
		}
		all = append(all, products...)
	}
	if err := writeJSON(s.AggregatePath(), canonical(all)); err != nil {
		return 0, fmt.Errorf("save aggregate: %w", err)
	}
	return len(all), nil
}

// LoadAggregate reads the aggregate document. ok is false when it does not
// exist.
func (s *Store) LoadAggregate() (products []models.Product, ok bool, err error) {
	products, ok, err = readProducts(s.AggregatePath())
	if err != nil {
		return nil, false, fmt.Errorf("load aggregate: %w", err)
	}
	return products, ok, nil
}

// WriteCategories writes the static category list for consumers.
func (s *Store) WriteCategories(categories []models.Category) error {
	if categories == nil {
		categories = []models.Category{}
	}
	if err := writeJSON(s.CategoriesPath(), categories); err != nil {
		return fmt.Errorf("save categories: %w", err)
	}
	return nil
}

func readProducts(path string) ([]models.Product, bool, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return []models.Product{}, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var products []models.Product
	if err := json.Unmarshal(data, &products); err != nil {
		return nil, false, fmt.Errorf("decode %s: %w", path, err)
	}
	return canonical(products), true, nil
}

// canonical returns products with nil image lists replaced by empty ones so
// documents always serialize "images": [].
func canonical(products []models.Product) []models.Product {
	out := make([]models.Product, len(products))
	for i, p := range products {
		if p.Images == nil {
			p.Images = []models.ProductImage{}
		}
		out[i] = p
	}
	return out
}
