package llm

import "fmt"

// buildExtractionPrompt creates the per-page product extraction prompt. The
// page's extracted text is appended so the model can cross-check values it
// cannot read from the raster.
func buildExtractionPrompt(pageText string) string {
	prompt := `You are reading one page of a lighting product catalog or price list.

YOUR TASK: Extract EVERY row that has a product code (article number) visible on this page.
Scan from top to bottom. Do NOT stop early.

WHAT TO EXTRACT:
1. MAIN product rows: each color/variant row under a product family header
2. ACCESSORY rows: rows under "Accessories" or "Accessori" sections (they have their own codes and prices)
3. ALL product families visible: if multiple products are shown, extract ALL of them
4. Every single row with a code = one JSON entry, no exceptions

RULES:
- One JSON object per code/row
- Prices are plain numbers (e.g. 3120.00). Convert comma decimals: 3120,00 becomes 3120.00
- Find the currency from the column HEADER (e.g. "RMB excl. VAT" means currency "RMB")
- OMIT any field that has no value. Do NOT write null, just skip the key entirely
- Keep field values short and factual
- If no product codes are visible (cover, index, pure text page), return []

Fields to include (only when a value exists):
- codes: ["CODE"] (required)
- name: product family name or accessory description (required)
- color: color name (e.g. "Arancio", "Bianco")
- light_source: e.g. "7.5W 1110lm Integrated LED"
- dimensions: e.g. "D15.5 H28 cm"
- wattage: e.g. "7.5W"
- price: number (e.g. 3120.00), required if visible
- currency: e.g. "RMB", required if visible
- description: short description, mounting type, or accessory use
- extra_fields: object with any other recognizable product attribute, such as
  cct, ip_rating, dimming, voltage, driver, structure, diffuser, net_weight

Return ONLY a valid JSON array. No explanation. No markdown. Include EVERY code row.`

	if pageText != "" {
		prompt += fmt.Sprintf(`

The plain text extracted from this page follows between the markers. Use it to
verify codes and prices you cannot read clearly in the image.
--- PAGE TEXT START ---
%s
--- PAGE TEXT END ---`, pageText)
	}

	return prompt
}

// buildCaptionPrompt creates the product image caption prompt.
func buildCaptionPrompt() string {
	return "Describe this lighting product briefly: type, shape, color, style, any visible codes."
}
