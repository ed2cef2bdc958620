package parser

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/aluiziolira/catalog-harvest/models"
)

var (
	productHrefPattern = regexp.MustCompile(`(?i)/categories/\d+-[A-Z-]+/(\d+)-(.+?)(?:\?|$)`)
	pricePattern       = regexp.MustCompile(`\$[\d,]+\.?\d*`)
	skuPattern         = regexp.MustCompile(`([A-Z]\d{2,4}\s*[A-Z]*\d*)`)
	availablePattern   = regexp.MustCompile(`(?i)available:\s*(\d+)`)
	numberPattern      = regexp.MustCompile(`\d+`)
)

// ExtractListing pulls product summaries and pagination from a listing page.
func (e *SiteExtractor) ExtractListing(html, categoryLabel string) ListingPage {
	page := ListingPage{TotalPages: 1}
	doc := parseDocument(html)
	if doc == nil {
		return page
	}

	seen := make(map[string]struct{})
	doc.Find("a h2").Each(func(_ int, heading *goquery.Selection) {
		link := heading.Closest("a")
		href, _ := link.Attr("href")

		m := productHrefPattern.FindStringSubmatch(href)
		if m == nil {
			return
		}
		id, slug := m[1], m[2]
		if _, dup := seen[id]; dup {
			return
		}
		seen[id] = struct{}{}

		name := strings.TrimSpace(heading.Text())
		if name == "" {
			return
		}

		raw := parseInfoText(strings.TrimSpace(link.Find("p").Text()))
		raw.ID = id
		raw.Slug = slug
		raw.Name = name
		raw.Category = categoryLabel
		raw.Href = href

		if src, ok := link.Closest("li").Find("a img").First().Attr("src"); ok && src != "" {
			raw.Images = []models.ProductImage{{URL: src, Alt: name}}
		}

		page.Products = append(page.Products, raw)
	})

	if numbers := numberPattern.FindAllString(doc.Find(".pagination").Text(), -1); len(numbers) > 0 {
		for _, s := range numbers {
			if n, err := strconv.Atoi(s); err == nil && n > page.TotalPages {
				page.TotalPages = n
			}
		}
	}

	doc.Find("a").Each(func(_ int, a *goquery.Selection) {
		if !strings.Contains(a.Text(), "Next") {
			return
		}
		if href, ok := a.Attr("href"); ok && href != "" {
			page.NextPageURL = href
		}
	})

	return page
}

// parseInfoText reads the summary line under a listing heading, for example
// "$650.00 L585 VA available: 9".
func parseInfoText(info string) models.RawProduct {
	var raw models.RawProduct
	raw.PriceToken = pricePattern.FindString(info)
	if m := skuPattern.FindStringSubmatch(info); m != nil {
		raw.SKU = strings.TrimSpace(m[1])
	}
	if m := availablePattern.FindStringSubmatch(info); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil {
			raw.Available = n
			raw.HasAvailable = true
		}
	}
	raw.Sold = strings.Contains(strings.ToLower(info), "sold")
	return raw
}
