package archive

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Multiplier applied to heat strings suffixed with 万 or w.
const tenThousand = 10000

// CoerceHeat converts the loosely typed heat value found in raw snapshots
// into a number. Accepted shapes: JSON numbers, numeric strings, strings with
// thousands separators, and strings with a 万/w ten-thousands suffix.
// Anything else coerces to zero.
func CoerceHeat(raw any) float64 {
	switch v := raw.(type) {
	case nil:
		return 0
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return 0
		}

		return f
	case string:
		return coerceHeatString(v)
	default:
		return 0
	}
}

func coerceHeatString(s string) float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}

	s = strings.ReplaceAll(s, ",", "")

	multiplier := 1.0

	switch {
	case strings.HasSuffix(s, "万"):
		s = strings.TrimSuffix(s, "万")
		multiplier = tenThousand
	case strings.HasSuffix(s, "w"), strings.HasSuffix(s, "W"):
		s = s[:len(s)-1]
		multiplier = tenThousand
	}

	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0
	}

	return f * multiplier
}
