// Package parser turns source-site markup into raw product records and
// normalizes them into canonical products.
package parser

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/aluiziolira/catalog-harvest/models"
)

// ListingPage is the extraction result of one category listing page.
type ListingPage struct {
	Products []models.RawProduct
	// NextPageURL is the href of the "Next" link exactly as found; empty on
	// the last page.
	NextPageURL string
	// TotalPages is the largest number found in the pagination block. It is
	// informational only.
	TotalPages int
}

// Detail holds the fields only a product detail page carries.
type Detail struct {
	Designer    string
	Description string
	Dimensions  string
	Images      []models.ProductImage
}

// Extractor encapsulates every rule that couples the pipeline to the source
// site's markup. A markup change on the site means a new Extractor, not a
// change in the crawler or the reconciliation engine.
//
// Implementations never fail on parseable HTML; missing structure yields
// empty results.
type Extractor interface {
	ExtractListing(html, categoryLabel string) ListingPage
	ExtractDetail(html, productName string) Detail
	ExtractImageCandidates(html, filterToken string) []models.ProductImage
}

// SiteExtractor implements Extractor for the furniture retailer's markup.
type SiteExtractor struct {
	storageMarker string
}

var _ Extractor = (*SiteExtractor)(nil)

// NewSiteExtractor returns an extractor that treats image sources containing
// storageMarker as product images on detail pages.
func NewSiteExtractor(storageMarker string) *SiteExtractor {
	return &SiteExtractor{storageMarker: storageMarker}
}

func parseDocument(html string) *goquery.Document {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		// The HTML tokenizer only fails on reader errors, which a
		// strings.Reader never returns.
		return nil
	}
	return doc
}
