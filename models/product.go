// Package models defines data structures shared by the crawler, the
// reconciliation engine and the dataset store.
package models

import "time"

// ProductImage is one image reference of a product.
type ProductImage struct {
	URL string `json:"url"`
	Alt string `json:"alt"`
}

// Product is the canonical catalog record persisted per category.
type Product struct {
	ID             string         `json:"id"`
	Slug           string         `json:"slug"`
	Name           string         `json:"name"`
	Price          float64        `json:"price"`
	PriceFormatted string         `json:"priceFormatted"`
	SKU            string         `json:"sku"`
	Available      int            `json:"available"`
	Description    string         `json:"description"`
	Designer       string         `json:"designer"`
	Dimensions     string         `json:"dimensions"`
	Category       string         `json:"category"`
	Subcategory    string         `json:"subcategory"`
	Images         []ProductImage `json:"images"`
	URL            string         `json:"url"`
}

// Sold reports whether the product is terminal for inventory purposes.
func (p *Product) Sold() bool {
	return p.Available == 0 || p.PriceFormatted == "sold"
}

// Category is static configuration; the pipeline never mutates it.
type Category struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Slug string `json:"slug"`
	URL  string `json:"url"`

	// PlaceholderSeed offsets deterministic placeholder images per category.
	PlaceholderSeed int `json:"-"`
}

// RawProduct holds extracted fields before normalization. URL fields are
// exactly as found in markup.
type RawProduct struct {
	ID           string
	Slug         string
	Name         string
	PriceToken   string
	Sold         bool
	SKU          string
	Available    int
	HasAvailable bool
	Category     string
	Href         string
	Images       []ProductImage
	Designer     string
	Description  string
	Dimensions   string
}

// CrawlState is the terminal state of a category crawl.
type CrawlState string

const (
	CrawlDone    CrawlState = "done"
	CrawlAborted CrawlState = "aborted"
)

// CrawlResult holds the outcome of one category crawl.
type CrawlResult struct {
	Category       string
	State          CrawlState
	Quick          bool
	StartTime      time.Time
	EndTime        time.Time
	PageCount      int
	TotalPages     int
	ListedCount    int
	EnrichedCount  int
	DetailFailures int
	SavedCount     int
	RetryCount     int
	FailedURLs     []string
	ErrorsByType   map[string]int
	// Rejected counts listing records dropped by validation or dedupe.
	Rejected       map[string]int
}

// ReconcileSummary reports a reconciliation pass over a category or chunk.
type ReconcileSummary struct {
	Category  string
	ChunkID   string
	Start     int
	End       int
	Total     int
	Updated   int
	Failed    int
	Unchanged int

	EntityFixes     int
	VariantUpgrades int
	Refetched       int
	Placeholders    int
	Mirrored        int

	FailuresByType map[string]int
	StartTime      time.Time
	EndTime        time.Time
}
