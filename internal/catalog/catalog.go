package catalog

import (
	"context"
	_ "embed"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"visa-case-tracker/internal/domain"
)

// ErrCategoryNotFound is returned by every Source for an unknown category id.
var ErrCategoryNotFound = domain.ErrUnknownCategory

// Source resolves visa category definitions and their document manifests.
type Source interface {
	VisaCategory(ctx context.Context, categoryID string) (domain.VisaCategory, error)
	VisaCategories(ctx context.Context) ([]domain.VisaCategory, error)
}

//go:embed visa_categories.yaml
var builtinCategories []byte

// StaticCatalog serves the categories bundled with the binary.
type StaticCatalog struct {
	order []string
	byID  map[string]domain.VisaCategory
}

func NewStaticCatalog() (*StaticCatalog, error) {
	return ParseStaticCatalog(builtinCategories)
}

// ParseStaticCatalog loads categories from YAML. Every manifest is checked
// up front so a bad entry fails at startup rather than on first request.
func ParseStaticCatalog(raw []byte) (*StaticCatalog, error) {
	var categories []domain.VisaCategory
	if err := yaml.Unmarshal(raw, &categories); err != nil {
		return nil, fmt.Errorf("decode visa categories: %w", err)
	}

	c := &StaticCatalog{
		order: make([]string, 0, len(categories)),
		byID:  make(map[string]domain.VisaCategory, len(categories)),
	}
	for _, cat := range categories {
		id := strings.TrimSpace(cat.ID)
		if id == "" {
			return nil, fmt.Errorf("visa category without id")
		}
		if _, dup := c.byID[id]; dup {
			return nil, fmt.Errorf("duplicate visa category %q", id)
		}
		if err := domain.ValidateManifest(cat.Documents); err != nil {
			return nil, fmt.Errorf("visa category %q: %w", id, err)
		}
		c.order = append(c.order, id)
		c.byID[id] = cat
	}
	return c, nil
}

func (c *StaticCatalog) VisaCategory(_ context.Context, categoryID string) (domain.VisaCategory, error) {
	cat, ok := c.byID[categoryID]
	if !ok {
		return domain.VisaCategory{}, fmt.Errorf("%w: %s", ErrCategoryNotFound, categoryID)
	}
	return cloneCategory(cat), nil
}

func (c *StaticCatalog) VisaCategories(_ context.Context) ([]domain.VisaCategory, error) {
	out := make([]domain.VisaCategory, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, cloneCategory(c.byID[id]))
	}
	return out, nil
}

func cloneCategory(cat domain.VisaCategory) domain.VisaCategory {
	docs := make([]domain.ManifestEntry, len(cat.Documents))
	copy(docs, cat.Documents)
	cat.Documents = docs
	return cat
}
