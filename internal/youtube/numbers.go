package youtube

import (
	"math"
	"strconv"
	"strings"
)

// toNumber coerces a decoded JSON cell into a float. The analytics API
// mixes numbers and numeric strings in its row values; anything else
// (absent, empty, non-numeric) yields nil rather than an error.
func toNumber(value any) *float64 {
	switch v := value.(type) {
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil
		}
		return &v
	case string:
		trimmed := strings.TrimSpace(v)
		if trimmed == "" {
			return nil
		}
		parsed, err := strconv.ParseFloat(trimmed, 64)
		if err != nil || math.IsNaN(parsed) || math.IsInf(parsed, 0) {
			return nil
		}
		return &parsed
	default:
		return nil
	}
}

// round2 rounds to 2 decimal places, passing nil through. All numeric
// metric fields go through this before they reach callers so that
// comparisons and fixtures stay deterministic.
func round2(value *float64) *float64 {
	if value == nil {
		return nil
	}
	rounded := math.Round(*value*100) / 100
	return &rounded
}

func float64Ptr(v float64) *float64 {
	return &v
}
