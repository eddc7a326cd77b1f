// Package pricing coerces loosely-typed price values, converts prices in
// catalog documents, and builds priced quote exports from product codes.
package pricing

import (
	"strconv"
	"strings"
	"unicode"
)

var symbolCurrencies = map[rune]string{
	'€': "€",
	'$': "$",
	'£': "£",
	'¥': "¥",
}

// ParsePrice coerces an extractor price value into a numeric amount and, when
// the value embeds one, a currency symbol or code. Handles plain numbers,
// "1,250.00", "€1250", "RMB 3.120,00" and similar shapes. An unparsable
// value returns (nil, nil): the record keeps a null price instead of
// failing.
func ParsePrice(val any) (*float64, *string) {
	switch v := val.(type) {
	case nil:
		return nil, nil
	case float64:
		return nonNegative(v), nil
	case float32:
		return nonNegative(float64(v)), nil
	case int:
		return nonNegative(float64(v)), nil
	case int64:
		return nonNegative(float64(v)), nil
	case string:
		return parsePriceString(v)
	default:
		return nil, nil
	}
}

func nonNegative(v float64) *float64 {
	if v < 0 {
		return nil
	}
	return &v
}

func parsePriceString(s string) (*float64, *string) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}

	currency := detectCurrency(s)

	// Keep only the numeric body.
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' || r == '.' || r == ',' {
			b.WriteRune(r)
		}
	}
	body := b.String()
	if body == "" {
		return nil, currency
	}

	price, ok := parseAmount(body)
	if !ok || price < 0 {
		return nil, currency
	}
	return &price, currency
}

// parseAmount resolves separator ambiguity: when both '.' and ',' appear the
// later one is the decimal mark; a lone ',' followed by exactly two digits is
// a decimal comma, otherwise a thousands separator.
func parseAmount(body string) (float64, bool) {
	dot := strings.LastIndex(body, ".")
	comma := strings.LastIndex(body, ",")

	switch {
	case dot >= 0 && comma >= 0:
		if comma > dot {
			body = strings.ReplaceAll(body, ".", "")
			body = strings.Replace(body, ",", ".", 1)
		} else {
			body = strings.ReplaceAll(body, ",", "")
		}
	case comma >= 0:
		if strings.Count(body, ",") == 1 && len(body)-comma-1 == 2 {
			body = strings.Replace(body, ",", ".", 1)
		} else {
			body = strings.ReplaceAll(body, ",", "")
		}
	}

	if strings.Count(body, ".") > 1 {
		return 0, false
	}
	v, err := strconv.ParseFloat(body, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// detectCurrency looks for a currency symbol or a short uppercase code next
// to the number.
func detectCurrency(s string) *string {
	for _, r := range s {
		if c, ok := symbolCurrencies[r]; ok {
			return &c
		}
	}

	// A run of 2-3 uppercase letters reads as a currency code.
	var run []rune
	for _, r := range s + " " {
		if unicode.IsUpper(r) {
			run = append(run, r)
			continue
		}
		if len(run) >= 2 && len(run) <= 3 {
			c := string(run)
			return &c
		}
		run = run[:0]
	}
	return nil
}
