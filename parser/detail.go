package parser

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/aluiziolira/catalog-harvest/models"
)

const (
	designerMaxRunes    = 150
	descriptionMinRunes = 100
	largeRepresentation = "/800x600"
)

var representationSize = regexp.MustCompile(`/\d+x\d+\b`)

// ExtractDetail classifies detail-page paragraphs and collects product
// images. When several paragraphs qualify for a field the last one wins.
func (e *SiteExtractor) ExtractDetail(html, productName string) Detail {
	var d Detail
	doc := parseDocument(html)
	if doc == nil {
		return d
	}

	doc.Find("p").Each(func(_ int, p *goquery.Selection) {
		text := strings.TrimSpace(p.Text())
		n := utf8.RuneCountInString(text)
		marked := strings.ContainsAny(text, "@©")
		slashed := strings.Contains(text, "/")

		if slashed && n < designerMaxRunes && !marked {
			d.Designer = text
		}
		if n > descriptionMinRunes && !slashed && !marked {
			d.Description = text
		}
	})

	doc.Find("tr").Each(func(_ int, row *goquery.Selection) {
		if !strings.Contains(row.Text(), "Size:") {
			return
		}
		if cells := row.Find("td"); cells.Length() >= 2 {
			d.Dimensions = strings.TrimSpace(cells.Eq(1).Text())
		}
	})

	seen := make(map[string]struct{})
	doc.Find("img").Each(func(_ int, img *goquery.Selection) {
		src, _ := img.Attr("src")
		if src == "" || !strings.Contains(src, e.storageMarker) {
			return
		}
		if _, dup := seen[src]; dup {
			return
		}
		seen[src] = struct{}{}
		d.Images = append(d.Images, models.ProductImage{URL: upgradeRepresentation(src), Alt: productName})
	})

	return d
}

// upgradeRepresentation swaps the first size segment of a resized
// representation URL for the large rendition.
func upgradeRepresentation(src string) string {
	if !strings.Contains(src, "representations") {
		return src
	}
	loc := representationSize.FindStringIndex(src)
	if loc == nil {
		return src
	}
	return src[:loc[0]] + largeRepresentation + src[loc[1]:]
}
