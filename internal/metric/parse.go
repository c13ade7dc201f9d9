package metric

import (
	"math"
	"strconv"
	"strings"
)

// ParseUintFlexible accepts "42", "42 %", "42.7" and reports false for anything else.
func ParseUintFlexible(raw string) (uint64, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, false
	}
	raw = strings.TrimSuffix(strings.Fields(raw)[0], "%")
	value, err := strconv.ParseUint(raw, 10, 64)
	if err == nil {
		return value, true
	}
	floatValue, err := strconv.ParseFloat(raw, 64)
	if err != nil || floatValue < 0 || math.IsNaN(floatValue) || math.IsInf(floatValue, 0) {
		return 0, false
	}
	return uint64(floatValue), true
}

func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}
