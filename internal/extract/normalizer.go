// Package extract orchestrates the catalog extraction pipeline: page
// segmentation, per-page model extraction, normalization, persistence, and
// image indexing.
package extract

import (
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/lucerna/catalog-engine/internal/domain"
	"github.com/lucerna/catalog-engine/internal/pricing"
)

// Normalize turns raw candidate records into persistable products for one
// catalog.
//
// Candidates sharing at least one code (case-insensitive) merge into a
// single product: codes are unioned, non-null fields win over null ones,
// the earliest page number is kept, and attribute bags are unioned. Prices
// are coerced from whatever loose shape the extractor produced; an
// unparsable price stays null rather than dropping the record. Candidates
// without a code cannot be persisted (a stored product always has one), so
// a name-only candidate is dropped with a warning and a candidate with
// neither code nor name is dropped silently as noise.
func Normalize(catalogID uuid.UUID, candidates []domain.CandidateRecord) ([]*domain.Product, []string) {
	// Earliest page first so "earliest occurrence wins" falls out of merge
	// order.
	sorted := make([]domain.CandidateRecord, len(candidates))
	copy(sorted, candidates)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].PageNumber < sorted[j].PageNumber
	})

	var warnings []string
	var groups []*domain.Product
	byCode := map[string]int{} // normalized code -> index into groups

	for _, c := range sorted {
		if !c.HasIdentity() {
			continue
		}
		if len(c.Codes) == 0 {
			warnings = append(warnings,
				fmt.Sprintf("page %d: dropped %q (no product code)", c.PageNumber, strOr(c.Name, "candidate")))
			continue
		}

		product := candidateToProduct(catalogID, c)

		target := -1
		for _, code := range c.Codes {
			if idx, ok := byCode[normalizeCode(code)]; ok {
				if target == -1 {
					target = idx
					mergeProduct(groups[target], product)
				} else if idx != target {
					// The candidate bridges two earlier groups.
					mergeProduct(groups[target], groups[idx])
					groups[idx] = nil
				}
			}
		}
		if target == -1 {
			groups = append(groups, product)
			target = len(groups) - 1
		}
		for _, code := range groups[target].Codes {
			byCode[normalizeCode(code)] = target
		}
	}

	products := make([]*domain.Product, 0, len(groups))
	for _, p := range groups {
		if p != nil {
			products = append(products, p)
		}
	}
	return products, warnings
}

func candidateToProduct(catalogID uuid.UUID, c domain.CandidateRecord) *domain.Product {
	price, embedded := pricing.ParsePrice(c.Price)
	currency := c.Currency
	if currency == nil {
		currency = embedded
	}

	p := &domain.Product{
		CatalogID:   catalogID,
		Codes:       dedupeCodes(c.Codes),
		Name:        c.Name,
		Description: c.Description,
		Color:       c.Color,
		LightSource: c.LightSource,
		Dimensions:  c.Dimensions,
		Wattage:     c.Wattage,
		Price:       price,
		Currency:    currency,
		PageNumber:  c.PageNumber,
		RawText:     c.Raw,
	}
	if len(c.Extra) > 0 {
		p.Extra = make(map[string]any, len(c.Extra))
		for k, v := range c.Extra {
			p.Extra[k] = v
		}
	}
	return p
}

// mergeProduct folds src into dst. dst came from an earlier page (or the
// same page, earlier in reading order), so its non-null fields win.
func mergeProduct(dst, src *domain.Product) {
	dst.Codes = dedupeCodes(append(dst.Codes, src.Codes...))
	if dst.Name == nil {
		dst.Name = src.Name
	}
	if dst.Description == nil {
		dst.Description = src.Description
	}
	if dst.Color == nil {
		dst.Color = src.Color
	}
	if dst.LightSource == nil {
		dst.LightSource = src.LightSource
	}
	if dst.Dimensions == nil {
		dst.Dimensions = src.Dimensions
	}
	if dst.Wattage == nil {
		dst.Wattage = src.Wattage
	}
	if dst.Price == nil {
		dst.Price = src.Price
	}
	if dst.Currency == nil {
		dst.Currency = src.Currency
	}
	if src.PageNumber < dst.PageNumber {
		dst.PageNumber = src.PageNumber
	}
	for k, v := range src.Extra {
		if dst.Extra == nil {
			dst.Extra = map[string]any{}
		}
		if _, ok := dst.Extra[k]; !ok {
			dst.Extra[k] = v
		}
	}
}

func dedupeCodes(codes []string) []string {
	seen := map[string]struct{}{}
	out := make([]string, 0, len(codes))
	for _, c := range codes {
		c = strings.TrimSpace(c)
		if c == "" {
			continue
		}
		key := normalizeCode(c)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, c)
	}
	return out
}

func normalizeCode(code string) string {
	return strings.ToLower(strings.TrimSpace(code))
}

func strOr(s *string, fallback string) string {
	if s != nil && *s != "" {
		return *s
	}
	return fallback
}
