package api

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/lucerna/catalog-engine/internal/config"
	"github.com/lucerna/catalog-engine/internal/export"
	"github.com/lucerna/catalog-engine/internal/observability"
	"github.com/lucerna/catalog-engine/internal/pdf"
	"github.com/lucerna/catalog-engine/internal/pricing"
	"github.com/lucerna/catalog-engine/internal/storage"
)

// PricingHandler handles quote exports and document price conversion.
type PricingHandler struct {
	logger   *observability.Logger
	products *storage.ProductRepository
	quotes   *pricing.QuoteBuilder
	cfg      config.ExtractionConfig
}

// NewPricingHandler creates a new pricing handler.
func NewPricingHandler(
	logger *observability.Logger,
	products *storage.ProductRepository,
	cfg config.ExtractionConfig,
) *PricingHandler {
	return &PricingHandler{
		logger:   logger,
		products: products,
		quotes:   pricing.NewQuoteBuilder(products),
		cfg:      cfg,
	}
}

// QuoteRequestDTO is the priced-export request: codes as pasted lines plus
// a discount multiplier.
type QuoteRequestDTO struct {
	Codes          []string `json:"codes"`
	Multiplier     float64  `json:"multiplier"`
	TargetCurrency string   `json:"target_currency"`
	Format         string   `json:"format,omitempty"` // "json" (default) or "xlsx"
}

// Quote builds a priced export from pasted codes. Codes that match nothing
// come back as warning rows, not errors.
func (h *PricingHandler) Quote(w http.ResponseWriter, r *http.Request) {
	var req QuoteRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	if len(req.Codes) == 0 {
		writeError(w, http.StatusBadRequest, "codes are required", "")
		return
	}
	if req.TargetCurrency == "" {
		writeError(w, http.StatusBadRequest, "target_currency is required", "")
		return
	}

	quote, err := h.quotes.Build(r.Context(), req.Codes, req.Multiplier, req.TargetCurrency)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	if strings.EqualFold(req.Format, "xlsx") {
		data, err := export.BuildQuoteWorkbook(quote)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to build workbook", err.Error())
			return
		}
		writeXLSX(w, "quote.xlsx", data)
		return
	}

	writeJSON(h.logger, w, http.StatusOK, quote)
}

// Convert accepts a multipart PDF plus source symbol, target symbol and
// multiplier, scans the document for prices next to the source symbol, and
// returns the converted listing (JSON report or XLSX workbook).
func (h *PricingHandler) Convert(w http.ResponseWriter, r *http.Request) {
	file, _, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file field is required", err.Error())
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read upload", err.Error())
		return
	}

	multiplier, err := strconv.ParseFloat(r.FormValue("multiplier"), 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "multiplier must be a number", err.Error())
		return
	}

	converter, err := pricing.NewConverter(r.FormValue("from_symbol"), r.FormValue("to_symbol"), multiplier)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	doc, err := pdf.OpenBytes(data)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	defer doc.Close()

	report, err := converter.ConvertDocument(r.Context(), doc)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	if strings.EqualFold(r.FormValue("format"), "xlsx") {
		data, err := export.BuildConversionWorkbook(report)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to build workbook", err.Error())
			return
		}
		writeXLSX(w, "converted-prices.xlsx", data)
		return
	}

	writeJSON(h.logger, w, http.StatusOK, report)
}
