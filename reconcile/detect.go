// Package reconcile repairs decayed image references in stored category
// documents without a full re-crawl.
package reconcile

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/aluiziolira/catalog-harvest/config"
	"github.com/aluiziolira/catalog-harvest/models"
	"github.com/aluiziolira/catalog-harvest/parser"
)

const (
	signedStorageHost = "s3.amazonaws.com"
	signatureParam    = "X-Amz-Signature"
	placeholderSize   = "800/800"
)

// IsExpired reports whether u is a signed cloud-storage URL that will stop
// resolving once its signature lapses.
func IsExpired(u string) bool {
	return strings.Contains(u, signedStorageHost) || strings.Contains(u, signatureParam)
}

// HasEntityCorruption reports whether any image URL still carries an
// HTML entity.
func HasEntityCorruption(images []models.ProductImage) bool {
	for _, img := range images {
		if parser.HasEntities(img.URL) {
			return true
		}
	}
	return false
}

// IsSmallVariant reports whether u references the small rendition.
func IsSmallVariant(u string) bool {
	return strings.Contains(u, parser.SmallVariantHash)
}

// IsPlaceholder reports whether u points at the placeholder host of base.
func IsPlaceholder(u, base string) bool {
	b, err := url.Parse(base)
	if err != nil || b.Host == "" {
		return false
	}
	parsed, err := url.Parse(u)
	if err != nil {
		return strings.Contains(u, b.Host)
	}
	return strings.EqualFold(parsed.Host, b.Host)
}

// PlaceholderURL derives a stable stand-in image for one image slot of a
// product: the last four digits of the id plus the slot index, offset by
// the category seed. The same inputs always produce the same URL.
func PlaceholderURL(base, productID string, index int, category string) string {
	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, productID)
	if len(digits) > 4 {
		digits = digits[len(digits)-4:]
	}
	n, _ := strconv.Atoi(digits)
	seed := config.PlaceholderSeed(category) + n + index
	return fmt.Sprintf("%s/seed/%d/%s", strings.TrimRight(base, "/"), seed, placeholderSize)
}

func anyExpired(images []models.ProductImage) bool {
	for _, img := range images {
		if IsExpired(img.URL) {
			return true
		}
	}
	return false
}
