package parser

import (
	"regexp"
	"strings"
	"sync"

	"github.com/aluiziolira/catalog-harvest/models"
)

type candidatePatterns struct {
	srcset     *regexp.Regexp
	src        *regexp.Regexp
	background *regexp.Regexp
	jsonImage  *regexp.Regexp
}

var patternCache sync.Map // filter token -> *candidatePatterns

func patternsFor(token string) *candidatePatterns {
	if cached, ok := patternCache.Load(token); ok {
		return cached.(*candidatePatterns)
	}
	t := regexp.QuoteMeta(token)
	p := &candidatePatterns{
		srcset:     regexp.MustCompile(`(?i)(?:data-)?srcset="([^"]*` + t + `[^"]*)"`),
		src:        regexp.MustCompile(`(?i)src="(https://` + t + `[^"]*)"`),
		background: regexp.MustCompile(`(?i)background-image:\s*url\(['"]?(https://` + t + `[^'")\s]*)`),
		jsonImage:  regexp.MustCompile(`(?i)"image":\s*"(https://` + t + `[^"]*)"`),
	}
	actual, _ := patternCache.LoadOrStore(token, p)
	return actual.(*candidatePatterns)
}

// ExtractImageCandidates scans raw markup for image URLs containing
// filterToken. Sources are taken in this order: srcset attributes (the last,
// highest resolution entry), src attributes, inline background images, and
// JSON "image" properties. URLs are entity-decoded and deduplicated keeping
// the first occurrence.
func (e *SiteExtractor) ExtractImageCandidates(html, filterToken string) []models.ProductImage {
	if filterToken == "" {
		return nil
	}
	p := patternsFor(filterToken)

	var out []models.ProductImage
	seen := make(map[string]struct{})
	add := func(u string) {
		if u == "" {
			return
		}
		if _, dup := seen[u]; dup {
			return
		}
		seen[u] = struct{}{}
		out = append(out, models.ProductImage{URL: u})
	}

	for _, m := range p.srcset.FindAllStringSubmatch(html, -1) {
		add(lastSrcsetURL(DecodeEntities(m[1])))
	}
	for _, re := range []*regexp.Regexp{p.src, p.background, p.jsonImage} {
		for _, m := range re.FindAllStringSubmatch(html, -1) {
			add(DecodeEntities(m[1]))
		}
	}
	return out
}

func lastSrcsetURL(srcset string) string {
	entries := strings.Split(srcset, ",")
	for i := len(entries) - 1; i >= 0; i-- {
		if fields := strings.Fields(entries[i]); len(fields) > 0 {
			return fields[0]
		}
	}
	return ""
}
