package pipeline

import (
	"fmt"

	"dario.cat/mergo"
	"github.com/aluiziolira/catalog-harvest/models"
)

// Index maps product ids to their position in products. Later duplicates do
// not displace earlier ones.
func Index(products []models.Product) map[string]int {
	idx := make(map[string]int, len(products))
	for i, p := range products {
		if _, ok := idx[p.ID]; !ok {
			idx[p.ID] = i
		}
	}
	return idx
}

// MergeByID folds a fresh crawl into the previously stored products.
//
// Crawled products come first in crawl order, followed by prior products the
// crawl did not see, in stored order; nothing is dropped. For a product in
// both, listing fields (price, availability, name, url...) come from the
// crawl and empty fields are back-filled from the prior record. Images from
// the crawl win only for ids in galleries, the products whose detail page
// supplied images; otherwise prior images are kept when there are any, so a
// listing thumbnail never replaces a stored gallery.
func MergeByID(crawled, prior []models.Product, galleries map[string]struct{}) ([]models.Product, error) {
	priorIdx := Index(prior)
	out := make([]models.Product, 0, len(crawled)+len(prior))
	used := make(map[string]struct{}, len(crawled))

	for _, c := range crawled {
		if _, dup := used[c.ID]; dup {
			continue
		}
		used[c.ID] = struct{}{}

		i, ok := priorIdx[c.ID]
		if !ok {
			out = append(out, c)
			continue
		}
		old := prior[i]

		merged := c
		if err := mergo.Merge(&merged, old); err != nil {
			return nil, fmt.Errorf("merge product %s: %w", c.ID, err)
		}
		// Zero is meaningful for these; the crawl is authoritative.
		merged.Price = c.Price
		merged.PriceFormatted = c.PriceFormatted
		merged.Available = c.Available

		if _, fresh := galleries[c.ID]; !fresh && len(old.Images) > 0 {
			merged.Images = old.Images
		}
		if merged.Images == nil {
			merged.Images = []models.ProductImage{}
		}
		out = append(out, merged)
	}

	for _, p := range prior {
		if _, ok := used[p.ID]; ok {
			continue
		}
		used[p.ID] = struct{}{}
		out = append(out, p)
	}
	return out, nil
}

// ApplyByID replaces products in dst whose id matches an update and appends
// updates whose id is absent. It returns the number of replaced products.
// dst is modified in place and the possibly grown slice is returned.
func ApplyByID(dst []models.Product, updates []models.Product) ([]models.Product, int) {
	idx := Index(dst)
	replaced := 0
	for _, u := range updates {
		if i, ok := idx[u.ID]; ok {
			dst[i] = u
			replaced++
			continue
		}
		idx[u.ID] = len(dst)
		dst = append(dst, u)
	}
	return dst, replaced
}
