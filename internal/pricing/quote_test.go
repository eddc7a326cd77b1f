package pricing

import (
	"context"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/lucerna/catalog-engine/internal/domain"
)

type fakeFinder struct {
	products []*domain.Product
}

func (f *fakeFinder) SearchByCode(_ context.Context, code string) ([]*domain.Product, error) {
	q := strings.ToLower(code)
	var out []*domain.Product
	for _, p := range f.products {
		for _, c := range p.Codes {
			if strings.Contains(strings.ToLower(c), q) {
				out = append(out, p)
				break
			}
		}
	}
	return out, nil
}

func testProduct(code string, price *float64, currency string) *domain.Product {
	p := &domain.Product{ID: uuid.New(), Codes: []string{code}, Price: price}
	if currency != "" {
		p.Currency = &currency
	}
	return p
}

func TestQuoteBuild(t *testing.T) {
	hundred := 100.0
	fifty := 49.9
	finder := &fakeFinder{products: []*domain.Product{
		testProduct("ABC-100", &hundred, "$"),
		testProduct("ABC-100X", &fifty, "$"),
		testProduct("NOPRICE-1", nil, ""),
	}}
	builder := NewQuoteBuilder(finder)

	quote, err := builder.Build(context.Background(),
		[]string{"abc-100", "", "NOPRICE-1", "zzz"}, 0.7, "€")
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	// "abc-100" matches two products, one row per match; the blank line is
	// skipped; the unknown code yields a warning row.
	if len(quote.Rows) != 4 {
		t.Fatalf("got %d rows, want 4: %+v", len(quote.Rows), quote.Rows)
	}
	if quote.Missing != 1 {
		t.Errorf("missing = %d, want 1", quote.Missing)
	}

	if quote.Rows[0].FinalPrice != "70.00 €" {
		t.Errorf("final price = %q, want %q", quote.Rows[0].FinalPrice, "70.00 €")
	}
	if quote.Rows[0].Currency != "$" {
		t.Errorf("source currency = %q", quote.Rows[0].Currency)
	}
	if quote.Rows[1].FinalPrice != "34.93 €" {
		t.Errorf("second row final price = %q", quote.Rows[1].FinalPrice)
	}

	noPrice := quote.Rows[2]
	if noPrice.NotFound || noPrice.Product == nil {
		t.Fatalf("expected a matched row: %+v", noPrice)
	}
	if noPrice.FinalPrice != NoPriceMarker {
		t.Errorf("null price row = %q, want marker", noPrice.FinalPrice)
	}

	miss := quote.Rows[3]
	if !miss.NotFound || miss.Line != "zzz" {
		t.Errorf("expected warning row for zzz: %+v", miss)
	}
}

func TestQuoteBuildRejectsBadMultiplier(t *testing.T) {
	builder := NewQuoteBuilder(&fakeFinder{})
	for _, m := range []float64{0, -1} {
		_, err := builder.Build(context.Background(), []string{"a"}, m, "€")
		if err == nil {
			t.Errorf("Build with multiplier %v should fail", m)
			continue
		}
		if !domain.IsType(err, domain.ErrorTypeValidation) {
			t.Errorf("expected validation error, got %v", err)
		}
	}
}
