package pricing

import (
	"context"
	"strings"

	"github.com/lucerna/catalog-engine/internal/domain"
)

// ProductFinder resolves a code query to matching products; satisfied by
// storage.ProductRepository.
type ProductFinder interface {
	SearchByCode(ctx context.Context, code string) ([]*domain.Product, error)
}

// QuoteRow is one line of a priced export. Either Product is set, or
// NotFound marks a code that matched nothing.
type QuoteRow struct {
	Line     string          `json:"line"`
	NotFound bool            `json:"not_found,omitempty"`
	Product  *domain.Product `json:"product,omitempty"`

	OriginalPrice *float64 `json:"original_price,omitempty"`
	Currency      string   `json:"currency,omitempty"`
	// FinalPrice is the formatted export price, or the no-price marker when
	// the stored price is null.
	FinalPrice string `json:"final_price"`
}

// Quote is a priced export built from pasted codes and a discount factor.
type Quote struct {
	Multiplier     float64    `json:"multiplier"`
	TargetCurrency string     `json:"target_currency"`
	Rows           []QuoteRow `json:"rows"`
	Missing        int        `json:"missing"`
}

// QuoteBuilder prices pasted code lists against stored products.
type QuoteBuilder struct {
	finder ProductFinder
}

// NewQuoteBuilder creates a quote builder over the given product finder.
func NewQuoteBuilder(finder ProductFinder) *QuoteBuilder {
	return &QuoteBuilder{finder: finder}
}

// Build looks up each input line independently (case-insensitive substring
// against any code of a product) and prices every match with the multiplier
// under the target symbol. A line matching nothing yields a warning row, not
// an error; a line matching several products yields one row per match.
func (b *QuoteBuilder) Build(ctx context.Context, lines []string, multiplier float64, targetSymbol string) (*Quote, error) {
	if multiplier <= 0 {
		return nil, domain.ValidationError("multiplier must be positive", nil)
	}

	quote := &Quote{Multiplier: multiplier, TargetCurrency: targetSymbol}
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		products, err := b.finder.SearchByCode(ctx, line)
		if err != nil {
			return nil, err
		}
		if len(products) == 0 {
			quote.Rows = append(quote.Rows, QuoteRow{Line: line, NotFound: true, FinalPrice: NoPriceMarker})
			quote.Missing++
			continue
		}

		for _, p := range products {
			row := QuoteRow{Line: line, Product: p}
			if p.Currency != nil {
				row.Currency = *p.Currency
			}
			if p.Price != nil {
				row.OriginalPrice = p.Price
				row.FinalPrice = FormatPrice(*p.Price*multiplier, targetSymbol)
			} else {
				row.FinalPrice = NoPriceMarker
			}
			quote.Rows = append(quote.Rows, row)
		}
	}
	return quote, nil
}
