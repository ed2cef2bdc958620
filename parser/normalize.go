package parser

import (
	"net/url"
	"strings"

	"github.com/aluiziolira/catalog-harvest/models"
	"github.com/shopspring/decimal"
)

// Rendition hashes embedded in storage image paths.
const (
	SmallVariantHash = "2aee56bd1613eab785806717af7b0b01434013a7f089cb7f741b194d6a0c3933"
	LargeVariantHash = "2b828b68e38c7c650e25e76cd0bcabdc362e4178326ec3d97375a4b7734cb483"
)

const soldMarker = "sold"

// Normalizer converts raw extractor output into canonical products.
type Normalizer struct {
	origin string
}

// NewNormalizer returns a normalizer resolving relative URLs against
// baseURL's origin.
func NewNormalizer(baseURL string) *Normalizer {
	return &Normalizer{origin: strings.TrimRight(baseURL, "/")}
}

// Absolutize prefixes scheme-less URLs with the source origin. URLs that
// carry any scheme (http, data, mailto...) pass through unchanged.
func (n *Normalizer) Absolutize(u string) string {
	u = strings.TrimSpace(u)
	if u == "" {
		return ""
	}
	if parsed, err := url.Parse(u); err == nil && parsed.Scheme != "" {
		return u
	}
	if strings.HasPrefix(u, "//") {
		return "https:" + u
	}
	if !strings.HasPrefix(u, "/") {
		u = "/" + u
	}
	return n.origin + u
}

// UpgradeVariant substitutes the large rendition hash for the small one.
// Nothing else in the URL changes.
func UpgradeVariant(u string) string {
	return strings.ReplaceAll(u, SmallVariantHash, LargeVariantHash)
}

// NormalizeImages decodes, absolutizes and upgrades every image URL, drops
// empty ones and removes exact duplicates keeping first-seen order. The
// result is never nil.
func (n *Normalizer) NormalizeImages(images []models.ProductImage) []models.ProductImage {
	out := make([]models.ProductImage, 0, len(images))
	seen := make(map[string]struct{}, len(images))
	for _, img := range images {
		u := UpgradeVariant(n.Absolutize(DecodeEntities(img.URL)))
		if u == "" {
			continue
		}
		if _, dup := seen[u]; dup {
			continue
		}
		seen[u] = struct{}{}
		out = append(out, models.ProductImage{URL: u, Alt: img.Alt})
	}
	return out
}

// Normalize builds a Product from a raw listing record, with any detail
// fields it already carries.
func (n *Normalizer) Normalize(raw models.RawProduct) models.Product {
	name := strings.TrimSpace(raw.Name)

	images := make([]models.ProductImage, len(raw.Images))
	for i, img := range raw.Images {
		if img.Alt == "" {
			img.Alt = name
		}
		images[i] = img
	}

	p := models.Product{
		ID:          strings.TrimSpace(raw.ID),
		Slug:        strings.TrimSpace(raw.Slug),
		Name:        name,
		Price:       ParsePrice(raw.PriceToken),
		SKU:         strings.TrimSpace(raw.SKU),
		Description: strings.TrimSpace(raw.Description),
		Designer:    strings.TrimSpace(raw.Designer),
		Dimensions:  strings.TrimSpace(raw.Dimensions),
		Category:    raw.Category,
		Images:      n.NormalizeImages(images),
		URL:         n.Absolutize(DecodeEntities(raw.Href)),
	}

	switch {
	case raw.PriceToken != "":
		p.PriceFormatted = raw.PriceToken
	case raw.Sold:
		p.PriceFormatted = soldMarker
	}

	switch {
	case raw.HasAvailable:
		p.Available = raw.Available
	case raw.Sold:
		p.Available = 0
	default:
		p.Available = 1
	}
	if p.Available < 0 {
		p.Available = 0
	}

	return p
}

// ParsePrice reads a currency token such as "$1,234.56". Unparseable or
// empty tokens yield 0.
func ParsePrice(token string) float64 {
	cleaned := strings.NewReplacer("$", "", ",", "").Replace(strings.TrimSpace(token))
	if cleaned == "" {
		return 0
	}
	d, err := decimal.NewFromString(cleaned)
	if err != nil || d.IsNegative() {
		return 0
	}
	return d.InexactFloat64()
}
