package config

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/aluiziolira/catalog-harvest/models"
)

// ErrUnknownCategory is returned when a label matches no configured category.
var ErrUnknownCategory = errors.New("unknown category")

// DefaultPlaceholderSeed applies to labels outside the category table.
const DefaultPlaceholderSeed = 500

var categoryTable = []models.Category{
	{ID: "1", Name: "LIGHTING", Slug: "1-LIGHTING", PlaceholderSeed: 100},
	{ID: "2", Name: "SEATING", Slug: "2-SEATING", PlaceholderSeed: 200},
	{ID: "3", Name: "TABLES", Slug: "3-TABLES", PlaceholderSeed: 400},
	{ID: "4", Name: "STORAGE", Slug: "4-STORAGE", PlaceholderSeed: 300},
	{ID: "6", Name: "OTHER", Slug: "6-OTHER", PlaceholderSeed: 500},
	{ID: "752", Name: "JUST LANDED", Slug: "752-JUST-LANDED", PlaceholderSeed: 600},
	{ID: "1112", Name: "BY STYLE", Slug: "1112-BY-STYLE", PlaceholderSeed: 700},
	{ID: "15", Name: "ARCHIVE", Slug: "15-ARCHIVE", PlaceholderSeed: 800},
}

var slugPrefix = regexp.MustCompile(`^\d+-`)

// Categories returns the category table in enumeration order with URLs
// rooted at the configured origin. The returned slice is a copy.
func (c *Config) Categories() []models.Category {
	out := make([]models.Category, len(categoryTable))
	for i, cat := range categoryTable {
		cat.URL = c.Origin() + "/categories/" + cat.Slug
		out[i] = cat
	}
	return out
}

// CategorySlugs returns the slugs in enumeration order.
func CategorySlugs() []string {
	out := make([]string, len(categoryTable))
	for i, cat := range categoryTable {
		out[i] = cat.Slug
	}
	return out
}

// ResolveCategory maps either form of a category label ("LIGHTING" or
// "1-LIGHTING") onto the configured category.
func ResolveCategory(label string) (models.Category, bool) {
	label = strings.ToUpper(strings.TrimSpace(label))
	if label == "" {
		return models.Category{}, false
	}
	if slugPrefix.MatchString(label) {
		for _, cat := range categoryTable {
			if strings.ToUpper(cat.Slug) == label {
				return cat, true
			}
		}
		return models.Category{}, false
	}
	for _, cat := range categoryTable {
		if strings.ToUpper(cat.Name) == label || strings.HasSuffix(strings.ToUpper(cat.Slug), "-"+label) {
			return cat, true
		}
	}
	return models.Category{}, false
}

// CategoryBySlug resolves a slug or name to a category carrying its URL.
func (c *Config) CategoryBySlug(label string) (models.Category, error) {
	cat, ok := ResolveCategory(label)
	if !ok {
		return models.Category{}, fmt.Errorf("%w: %q", ErrUnknownCategory, label)
	}
	cat.URL = c.Origin() + "/categories/" + cat.Slug
	return cat, nil
}

// PlaceholderSeed returns the seed offset for a category label.
func PlaceholderSeed(label string) int {
	if cat, ok := ResolveCategory(label); ok {
		return cat.PlaceholderSeed
	}
	return DefaultPlaceholderSeed
}
