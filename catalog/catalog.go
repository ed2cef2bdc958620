// Package catalog answers storefront queries over the persisted dataset.
package catalog

import (
	"cmp"
	"fmt"
	"regexp"
	"slices"
	"strings"

	"github.com/aluiziolira/catalog-harvest/config"
	"github.com/aluiziolira/catalog-harvest/models"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// Defaults applied when a limit or page size is not positive.
const (
	DefaultPerPage       = 24
	DefaultFeaturedLimit = 8
	DefaultSearchLimit   = 24
	DefaultRelatedLimit  = 4
)

const featuredSlug = "752-JUST-LANDED"

var leadingID = regexp.MustCompile(`^(\d+)`)

// Source is the read side of the dataset store.
type Source interface {
	LoadCategory(slug string) ([]models.Product, error)
	LoadAggregate() ([]models.Product, bool, error)
}

// Sort orders a category listing.
type Sort string

const (
	SortNewest    Sort = "newest"
	SortOldest    Sort = "oldest"
	SortPriceLow  Sort = "price-low"
	SortPriceHigh Sort = "price-high"
	SortNameAZ    Sort = "name-az"
	SortNameZA    Sort = "name-za"
)

// Availability filters a listing by stock state. The zero value keeps
// everything.
type Availability string

const (
	AvailableAny     Availability = ""
	AvailableInStock Availability = "in-stock"
	AvailableSold    Availability = "sold"
)

// ListOptions controls Products. Nil price bounds are not applied.
type ListOptions struct {
	Page         int
	PerPage      int
	Sort         Sort
	MinPrice     *float64
	MaxPrice     *float64
	Availability Availability
}

// PriceRange spans the known (non-zero) prices of a category.
type PriceRange struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// Stats describe a whole category, before any filter.
type Stats struct {
	PriceRange PriceRange `json:"priceRange"`
	InStock    int        `json:"inStock"`
	Sold       int        `json:"sold"`
}

// Page is one page of a filtered, sorted category listing.
type Page struct {
	Products   []models.Product `json:"products"`
	Total      int              `json:"total"`
	Page       int              `json:"page"`
	TotalPages int              `json:"totalPages"`
	Stats      Stats            `json:"stats"`
}

// Catalog serves read queries over a Source.
type Catalog struct {
	cfg *config.Config
	src Source
}

// New returns a catalog reading from src.
func New(cfg *config.Config, src Source) *Catalog {
	return &Catalog{cfg: cfg, src: src}
}

// Categories returns the configured category table.
func (c *Catalog) Categories() []models.Category {
	return c.cfg.Categories()
}

// Products lists one category. label may be a slug or a category name.
func (c *Catalog) Products(label string, opts ListOptions) (*Page, error) {
	category, ok := config.ResolveCategory(label)
	if !ok {
		return nil, fmt.Errorf("%w: %q", config.ErrUnknownCategory, label)
	}
	all, err := c.src.LoadCategory(category.Slug)
	if err != nil {
		return nil, err
	}

	if opts.Page < 1 {
		opts.Page = 1
	}
	if opts.PerPage <= 0 {
		opts.PerPage = DefaultPerPage
	}

	page := &Page{Page: opts.Page, Stats: statsOf(all)}

	products := make([]models.Product, 0, len(all))
	for _, p := range all {
		if keep(p, opts) {
			products = append(products, p)
		}
	}
	sortProducts(products, opts.Sort)

	page.Total = len(products)
	page.TotalPages = (page.Total + opts.PerPage - 1) / opts.PerPage
	start := min((opts.Page-1)*opts.PerPage, len(products))
	end := min(start+opts.PerPage, len(products))
	page.Products = products[start:end]
	return page, nil
}

// Product finds a product by id, slug or "<id>-<slug>". A leading number is
// tried as an id first.
func (c *Catalog) Product(idOrSlug string) (models.Product, bool, error) {
	all, err := c.all()
	if err != nil {
		return models.Product{}, false, err
	}
	if m := leadingID.FindStringSubmatch(idOrSlug); m != nil {
		for _, p := range all {
			if p.ID == m[1] {
				return p, true, nil
			}
		}
	}
	for _, p := range all {
		if p.Slug == idOrSlug || p.ID+"-"+p.Slug == idOrSlug {
			return p, true, nil
		}
	}
	return models.Product{}, false, nil
}

// Featured returns the newest arrivals, or the start of the whole catalog
// when that category is empty.
func (c *Catalog) Featured(limit int) ([]models.Product, error) {
	if limit <= 0 {
		limit = DefaultFeaturedLimit
	}
	products, err := c.src.LoadCategory(featuredSlug)
	if err != nil {
		return nil, err
	}
	if len(products) == 0 {
		if products, err = c.all(); err != nil {
			return nil, err
		}
	}
	return head(products, limit), nil
}

// Search returns products whose name, designer, description or SKU contain
// every whitespace-separated term of query, case-insensitively.
func (c *Catalog) Search(query string, limit int) ([]models.Product, error) {
	if limit <= 0 {
		limit = DefaultSearchLimit
	}
	all, err := c.all()
	if err != nil {
		return nil, err
	}
	terms := strings.Fields(strings.ToLower(query))

	var out []models.Product
	for _, p := range all {
		text := strings.ToLower(strings.Join([]string{p.Name, p.Designer, p.Description, p.SKU}, " "))
		matched := true
		for _, term := range terms {
			if !strings.Contains(text, term) {
				matched = false
				break
			}
		}
		if matched {
			out = append(out, p)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

// Related returns other products of the product's category.
func (c *Catalog) Related(product models.Product, limit int) ([]models.Product, error) {
	if limit <= 0 {
		limit = DefaultRelatedLimit
	}
	category, ok := config.ResolveCategory(product.Category)
	if !ok {
		return nil, nil
	}
	products, err := c.src.LoadCategory(category.Slug)
	if err != nil {
		return nil, err
	}
	var out []models.Product
	for _, p := range products {
		if p.ID == product.ID {
			continue
		}
		out = append(out, p)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

// all prefers the aggregate document and falls back to the category
// documents in table order.
func (c *Catalog) all() ([]models.Product, error) {
	products, ok, err := c.src.LoadAggregate()
	if err != nil {
		return nil, err
	}
	if ok {
		return products, nil
	}
	var out []models.Product
	for _, slug := range config.CategorySlugs() {
		products, err := c.src.LoadCategory(slug)
		if err != nil {
			return nil, err
		}
		out = append(out, products...)
	}
	return out, nil
}

func statsOf(products []models.Product) Stats {
	var s Stats
	priced := false
	for _, p := range products {
		if p.Sold() {
			s.Sold++
		} else {
			s.InStock++
		}
		if p.Price <= 0 {
			continue
		}
		if !priced || p.Price < s.PriceRange.Min {
			s.PriceRange.Min = p.Price
		}
		if !priced || p.Price > s.PriceRange.Max {
			s.PriceRange.Max = p.Price
		}
		priced = true
	}
	return s
}

func keep(p models.Product, opts ListOptions) bool {
	if opts.MinPrice != nil && p.Price < *opts.MinPrice {
		return false
	}
	if opts.MaxPrice != nil && p.Price > *opts.MaxPrice {
		return false
	}
	switch opts.Availability {
	case AvailableInStock:
		return !p.Sold()
	case AvailableSold:
		return p.Sold()
	}
	return true
}

// sortProducts orders products in place. Stored order is newest first.
func sortProducts(products []models.Product, sort Sort) {
	switch sort {
	case SortOldest:
		slices.Reverse(products)
	case SortPriceLow:
		slices.SortStableFunc(products, func(a, b models.Product) int {
			return cmp.Compare(a.Price, b.Price)
		})
	case SortPriceHigh:
		slices.SortStableFunc(products, func(a, b models.Product) int {
			return cmp.Compare(b.Price, a.Price)
		})
	case SortNameAZ, SortNameZA:
		col := collate.New(language.English)
		sign := 1
		if sort == SortNameZA {
			sign = -1
		}
		slices.SortStableFunc(products, func(a, b models.Product) int {
			return sign * col.CompareString(a.Name, b.Name)
		})
	}
}

func head(products []models.Product, n int) []models.Product {
	if len(products) > n {
		return products[:n]
	}
	return products
}
