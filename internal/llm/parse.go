package llm

import (
	"encoding/json"
	"strings"

	"github.com/lucerna/catalog-engine/internal/domain"
)

// ParseCandidateArray recovers a JSON array of objects from a model response.
// Generative extractors wrap output in markdown fences, prepend commentary, or
// truncate long arrays mid-object; each recovery strategy below handles one of
// those failure shapes. Returns a ValidationError when nothing parseable is
// found.
func ParseCandidateArray(content string) ([]map[string]any, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, domain.ValidationError("empty model response", nil)
	}

	// Fenced blocks first: any fence segment that parses as an array wins.
	if strings.Contains(content, "```") {
		for _, part := range strings.Split(content, "```") {
			part = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(part), "json"))
			if arr, ok := tryParseArray(part); ok {
				return arr, nil
			}
		}
	}

	// Direct parse.
	if arr, ok := tryParseArray(content); ok {
		return arr, nil
	}

	// Slice between the first '[' and the last ']'.
	if s, e := strings.Index(content, "["), strings.LastIndex(content, "]"); s != -1 && e > s {
		if arr, ok := tryParseArray(content[s : e+1]); ok {
			return arr, nil
		}
	}

	// Truncated array: keep everything up to the last complete object and
	// close the bracket ourselves.
	if s := strings.Index(content, "["); s != -1 {
		if last := strings.LastIndex(content, "}"); last > s {
			if arr, ok := tryParseArray(content[s:last+1] + "]"); ok {
				return arr, nil
			}
		}
	}

	return nil, domain.ValidationError("model response is not a JSON array", nil)
}

func tryParseArray(s string) ([]map[string]any, bool) {
	if s == "" || !strings.HasPrefix(s, "[") {
		return nil, false
	}
	var arr []map[string]any
	if err := json.Unmarshal([]byte(s), &arr); err != nil {
		return nil, false
	}
	return arr, true
}

// decodeCandidates maps validated raw objects onto typed candidate records.
// Known fields are lifted into struct fields; everything else, including the
// model's own extra_fields object, lands in the open attribute bag.
func decodeCandidates(raw []map[string]any, pageNumber int) []domain.CandidateRecord {
	records := make([]domain.CandidateRecord, 0, len(raw))

	for _, obj := range raw {
		rec := domain.CandidateRecord{
			PageNumber: pageNumber,
			Extra:      map[string]any{},
		}
		if b, err := json.Marshal(obj); err == nil {
			rec.Raw = string(b)
		}

		for key, val := range obj {
			switch key {
			case "codes":
				rec.Codes = toStringSlice(val)
			case "name":
				rec.Name = toStringPtr(val)
			case "description":
				rec.Description = toStringPtr(val)
			case "color":
				rec.Color = toStringPtr(val)
			case "light_source":
				rec.LightSource = toStringPtr(val)
			case "dimensions":
				rec.Dimensions = toStringPtr(val)
			case "wattage":
				rec.Wattage = toStringPtr(val)
			case "price":
				rec.Price = val
			case "currency":
				rec.Currency = toStringPtr(val)
			case "extra_fields":
				if m, ok := val.(map[string]any); ok {
					for k, v := range m {
						rec.Extra[k] = v
					}
				}
			default:
				rec.Extra[key] = val
			}
		}

		records = append(records, rec)
	}

	return records
}

func toStringSlice(val any) []string {
	arr, ok := val.([]any)
	if !ok {
		if s, ok := val.(string); ok && s != "" {
			return []string{s}
		}
		return nil
	}
	out := make([]string, 0, len(arr))
	for _, v := range arr {
		if s, ok := v.(string); ok {
			s = strings.TrimSpace(s)
			if s != "" {
				out = append(out, s)
			}
		}
	}
	return out
}

func toStringPtr(val any) *string {
	s, ok := val.(string)
	if !ok {
		return nil
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
