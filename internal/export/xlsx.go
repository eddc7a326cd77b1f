// Package export renders quotes and conversion reports as XLSX workbooks.
package export

import (
	"fmt"
	"sort"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/lucerna/catalog-engine/internal/pricing"
)

// QuoteSheet is the sheet name of a quote workbook.
const QuoteSheet = "Quote"

var quoteHeaders = []struct {
	name  string
	width float64
}{
	{"Code(s)", 22},
	{"Name", 28},
	{"Description", 40},
	{"Color", 16},
	{"Light Source", 18},
	{"Dimensions", 18},
	{"Wattage", 12},
	{"Original Price", 16},
	{"Currency", 10},
	{"Customer Price", 16},
	{"Page", 8},
	{"Catalog", 22},
}

// BuildQuoteWorkbook renders a priced quote as an XLSX workbook. Columns for
// attribute-bag keys are appended after the fixed columns, one per key seen
// across the quoted products. Warning rows for codes that matched nothing
// are kept so the customer sees what could not be quoted.
func BuildQuoteWorkbook(quote *pricing.Quote) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", QuoteSheet); err != nil {
		return nil, err
	}

	extraKeys := collectExtraKeys(quote)

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Color: "FFFFFF", Size: 11},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"1F3864"}},
		Alignment: &excelize.Alignment{
			Horizontal: "center", Vertical: "center", WrapText: true,
		},
	})
	if err != nil {
		return nil, err
	}

	for i, h := range quoteHeaders {
		writeCell(f, QuoteSheet, i+1, 1, h.name)
		setColWidth(f, QuoteSheet, i+1, h.width)
	}
	for i, key := range extraKeys {
		col := len(quoteHeaders) + i + 1
		writeCell(f, QuoteSheet, col, 1, titleCase(key))
		setColWidth(f, QuoteSheet, col, 16)
	}
	lastCol, _ := excelize.CoordinatesToCellName(len(quoteHeaders)+len(extraKeys), 1)
	_ = f.SetCellStyle(QuoteSheet, "A1", lastCol, headerStyle)
	_ = f.SetPanes(QuoteSheet, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"})

	row := 2
	for _, qr := range quote.Rows {
		if qr.NotFound {
			writeCell(f, QuoteSheet, 1, row, qr.Line)
			writeCell(f, QuoteSheet, 2, row, "NOT FOUND")
			row++
			continue
		}

		p := qr.Product
		writeCell(f, QuoteSheet, 1, row, strings.Join(p.Codes, ", "))
		writeCell(f, QuoteSheet, 2, row, deref(p.Name))
		writeCell(f, QuoteSheet, 3, row, deref(p.Description))
		writeCell(f, QuoteSheet, 4, row, deref(p.Color))
		writeCell(f, QuoteSheet, 5, row, deref(p.LightSource))
		writeCell(f, QuoteSheet, 6, row, deref(p.Dimensions))
		writeCell(f, QuoteSheet, 7, row, deref(p.Wattage))
		if qr.OriginalPrice != nil {
			writeCell(f, QuoteSheet, 8, row, *qr.OriginalPrice)
		}
		writeCell(f, QuoteSheet, 9, row, qr.Currency)
		writeCell(f, QuoteSheet, 10, row, qr.FinalPrice)
		writeCell(f, QuoteSheet, 11, row, p.PageNumber)
		writeCell(f, QuoteSheet, 12, row, p.CatalogName)
		for i, key := range extraKeys {
			if v, ok := p.Extra[key]; ok {
				writeCell(f, QuoteSheet, len(quoteHeaders)+i+1, row, fmt.Sprintf("%v", v))
			}
		}
		row++
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}
	return buf.Bytes(), nil
}

// ConversionSheet is the sheet name of a conversion workbook.
const ConversionSheet = "Converted Prices"

// BuildConversionWorkbook renders a document price-conversion report: one
// row per detected price, with original and converted values.
func BuildConversionWorkbook(report *pricing.ConversionReport) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", ConversionSheet); err != nil {
		return nil, err
	}

	headers := []string{"Page", "Found", fmt.Sprintf("Original (%s)", report.FromSymbol),
		fmt.Sprintf("Converted (× %g)", report.Multiplier), "Formatted"}
	for i, h := range headers {
		writeCell(f, ConversionSheet, i+1, 1, h)
	}
	setColWidth(f, ConversionSheet, 2, 24)
	setColWidth(f, ConversionSheet, 3, 16)
	setColWidth(f, ConversionSheet, 4, 16)
	setColWidth(f, ConversionSheet, 5, 16)

	for i, occ := range report.Occurrences {
		row := i + 2
		writeCell(f, ConversionSheet, 1, row, occ.Page)
		writeCell(f, ConversionSheet, 2, row, occ.Raw)
		writeCell(f, ConversionSheet, 3, row, occ.Original)
		writeCell(f, ConversionSheet, 4, row, occ.Converted)
		writeCell(f, ConversionSheet, 5, row, occ.Formatted)
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}
	return buf.Bytes(), nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func writeCell(f *excelize.File, sheet string, col, row int, v any) {
	cell, _ := excelize.CoordinatesToCellName(col, row)
	_ = f.SetCellValue(sheet, cell, v)
}

func setColWidth(f *excelize.File, sheet string, col int, width float64) {
	name, _ := excelize.ColumnNumberToName(col)
	_ = f.SetColWidth(sheet, name, name, width)
}

func collectExtraKeys(quote *pricing.Quote) []string {
	seen := map[string]struct{}{}
	for _, qr := range quote.Rows {
		if qr.Product == nil {
			continue
		}
		for k := range qr.Product.Extra {
			seen[k] = struct{}{}
		}
	}
	keys := make([]string, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func titleCase(key string) string {
	parts := strings.FieldsFunc(key, func(r rune) bool { return r == '_' || r == '-' })
	for i, p := range parts {
		parts[i] = strings.ToUpper(p[:1]) + p[1:]
	}
	return strings.Join(parts, " ")
}
