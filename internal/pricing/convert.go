package pricing

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/lucerna/catalog-engine/internal/domain"
)

// FormatPrice renders an export price under its currency symbol.
func FormatPrice(value float64, symbol string) string {
	return fmt.Sprintf("%.2f %s", value, symbol)
}

// NoPriceMarker is exported in place of a computed price when the stored
// price is null.
const NoPriceMarker = "no price"

// PriceOccurrence is one detected price in a document.
type PriceOccurrence struct {
	Page      int     `json:"page"`
	Raw       string  `json:"raw"`
	Original  float64 `json:"original"`
	Converted float64 `json:"converted"`
	Formatted string  `json:"formatted"`
}

// ConversionReport summarizes a document price conversion.
type ConversionReport struct {
	FromSymbol  string            `json:"from_symbol"`
	ToSymbol    string            `json:"to_symbol"`
	Multiplier  float64           `json:"multiplier"`
	Pages       int               `json:"pages"`
	Occurrences []PriceOccurrence `json:"occurrences"`
}

// Converter rewrites prices found next to a source currency symbol.
type Converter struct {
	from       string
	to         string
	multiplier float64
	pattern    *regexp.Regexp
}

// NewConverter builds a converter for one symbol pair and multiplier.
func NewConverter(fromSymbol, toSymbol string, multiplier float64) (*Converter, error) {
	if fromSymbol == "" || toSymbol == "" {
		return nil, domain.ValidationError("both currency symbols are required", nil)
	}
	if multiplier <= 0 {
		return nil, domain.ValidationError("multiplier must be positive", nil)
	}
	// Matches €149, €149.00, €1,234.50 and "€ 149".
	pattern, err := regexp.Compile(regexp.QuoteMeta(fromSymbol) + `\s*([0-9][0-9\s,\.]*)`)
	if err != nil {
		return nil, domain.ValidationError("invalid currency symbol", err)
	}
	return &Converter{from: fromSymbol, to: toSymbol, multiplier: multiplier, pattern: pattern}, nil
}

// ConvertText detects and converts every price in one page's text.
func (c *Converter) ConvertText(page int, text string) []PriceOccurrence {
	var out []PriceOccurrence
	for _, m := range c.pattern.FindAllStringSubmatch(text, -1) {
		raw := strings.TrimSpace(m[0])
		body := strings.NewReplacer(",", "", " ", "").Replace(strings.TrimSpace(m[1]))
		value, err := strconv.ParseFloat(strings.TrimRight(body, "."), 64)
		if err != nil {
			continue
		}
		converted := value * c.multiplier
		out = append(out, PriceOccurrence{
			Page:      page,
			Raw:       raw,
			Original:  value,
			Converted: converted,
			Formatted: FormatPrice(converted, c.to),
		})
	}
	return out
}

// TextSource yields per-page plain text; satisfied by pdf.Document.
type TextSource interface {
	PageCount() int
	Text(ctx context.Context, number int) (string, error)
}

// ConvertDocument scans every page of doc and reports each detected price
// with its converted value. Pages whose text cannot be read are skipped; a
// document where no price matches yields an empty occurrence list, not an
// error.
func (c *Converter) ConvertDocument(ctx context.Context, doc TextSource) (*ConversionReport, error) {
	report := &ConversionReport{
		FromSymbol: c.from,
		ToSymbol:   c.to,
		Multiplier: c.multiplier,
		Pages:      doc.PageCount(),
	}
	for n := 1; n <= doc.PageCount(); n++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		text, err := doc.Text(ctx, n)
		if err != nil {
			continue
		}
		report.Occurrences = append(report.Occurrences, c.ConvertText(n, text)...)
	}
	return report, nil
}
