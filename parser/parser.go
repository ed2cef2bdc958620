package parser

import (
	"fmt"
	"strings"

	"dario.cat/mergo"
	"github.com/aluiziolira/catalog-harvest/models"
)

// ValidateRaw ensures the extractor captured the fields a listing record
// cannot do without.
func ValidateRaw(r *models.RawProduct) error {
	if r == nil {
		return fmt.Errorf("record is nil")
	}
	if strings.TrimSpace(r.ID) == "" {
		return fmt.Errorf("record missing id")
	}
	if strings.TrimSpace(r.Name) == "" {
		return fmt.Errorf("record missing name for %s", r.ID)
	}
	if strings.TrimSpace(r.Href) == "" {
		return fmt.Errorf("record missing url for %s", r.ID)
	}
	return nil
}

// MergeDetail overlays the non-empty detail fields onto p. Images are
// replaced only when the detail page produced at least one.
func MergeDetail(p *models.Product, d Detail, n *Normalizer) error {
	patch := models.Product{
		Designer:    d.Designer,
		Description: d.Description,
		Dimensions:  d.Dimensions,
		Images:      n.NormalizeImages(d.Images),
	}
	if err := mergo.Merge(p, patch, mergo.WithOverride); err != nil {
		return fmt.Errorf("merge detail for %s: %w", p.ID, err)
	}
	return nil
}
