package export

import (
	"bytes"
	"testing"

	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"

	"github.com/lucerna/catalog-engine/internal/domain"
	"github.com/lucerna/catalog-engine/internal/pricing"
)

func strPtr(s string) *string { return &s }

func TestBuildQuoteWorkbook(t *testing.T) {
	price := 100.0
	quote := &pricing.Quote{
		Multiplier:     0.7,
		TargetCurrency: "€",
		Missing:        1,
		Rows: []pricing.QuoteRow{
			{
				Line: "abc-100",
				Product: &domain.Product{
					ID:          uuid.New(),
					Codes:       []string{"ABC-100", "ABC-100B"},
					Name:        strPtr("Orbit Pendant"),
					Color:       strPtr("Arancio"),
					PageNumber:  4,
					CatalogName: "Lumen 2026",
					Extra:       map[string]any{"cct": "3000K"},
				},
				OriginalPrice: &price,
				Currency:      "$",
				FinalPrice:    "70.00 €",
			},
			{Line: "zzz", NotFound: true, FinalPrice: pricing.NoPriceMarker},
		},
	}

	data, err := BuildQuoteWorkbook(quote)
	if err != nil {
		t.Fatalf("BuildQuoteWorkbook: %v", err)
	}

	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("OpenReader: %v", err)
	}
	defer f.Close()

	get := func(cell string) string {
		t.Helper()
		v, err := f.GetCellValue(QuoteSheet, cell)
		if err != nil {
			t.Fatalf("GetCellValue(%s): %v", cell, err)
		}
		return v
	}

	if get("A1") != "Code(s)" {
		t.Errorf("A1 = %q", get("A1"))
	}
	// Extra-bag keys become trailing columns.
	if get("M1") != "Cct" {
		t.Errorf("M1 = %q, want extra-field column", get("M1"))
	}

	if get("A2") != "ABC-100, ABC-100B" {
		t.Errorf("A2 = %q", get("A2"))
	}
	if get("B2") != "Orbit Pendant" {
		t.Errorf("B2 = %q", get("B2"))
	}
	if get("J2") != "70.00 €" {
		t.Errorf("J2 = %q", get("J2"))
	}
	if get("L2") != "Lumen 2026" {
		t.Errorf("L2 = %q", get("L2"))
	}
	if get("M2") != "3000K" {
		t.Errorf("M2 = %q", get("M2"))
	}

	// The unmatched code keeps a visible warning row.
	if get("A3") != "zzz" || get("B3") != "NOT FOUND" {
		t.Errorf("warning row = %q / %q", get("A3"), get("B3"))
	}
}

func TestBuildConversionWorkbook(t *testing.T) {
	report := &pricing.ConversionReport{
		FromSymbol: "$",
		ToSymbol:   "€",
		Multiplier: 0.9,
		Pages:      3,
		Occurrences: []pricing.PriceOccurrence{
			{Page: 2, Raw: "$100", Original: 100, Converted: 90, Formatted: "90.00 €"},
		},
	}

	data, err := BuildConversionWorkbook(report)
	if err != nil {
		t.Fatalf("BuildConversionWorkbook: %v", err)
	}

	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("OpenReader: %v", err)
	}
	defer f.Close()

	v, err := f.GetCellValue(ConversionSheet, "E2")
	if err != nil || v != "90.00 €" {
		t.Errorf("E2 = %q, %v", v, err)
	}
	v, err = f.GetCellValue(ConversionSheet, "A2")
	if err != nil || v != "2" {
		t.Errorf("A2 = %q, %v", v, err)
	}
}
