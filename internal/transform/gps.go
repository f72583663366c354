package transform

import (
	"math"
	"strconv"
	"strings"
)

// DMSToDecimal converts degrees/minutes/seconds and a hemisphere reference to
// signed decimal degrees. S and W references yield negative values.
func DMSToDecimal(deg, min, sec float64, ref string) float64 {
	return applyRef(math.Abs(deg)+min/60+sec/3600, ref)
}

// NormalizeCoordinate accepts either a single pre-computed decimal value or a
// degrees/minutes/seconds triple.
func NormalizeCoordinate(values []float64, ref string) (float64, bool) {
	switch len(values) {
	case 1:
		v := values[0]
		if v < 0 {
			return v, true
		}
		return applyRef(v, ref), true
	case 3:
		return DMSToDecimal(values[0], values[1], values[2], ref), true
	default:
		return 0, false
	}
}

// ParseXMPCoordinate parses the XMP GPS form "DDD,MM,SSk" or "DDD,MM.mmk"
// where k is one of N, S, E, W.
func ParseXMPCoordinate(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if len(s) < 2 {
		return 0, false
	}
	ref := strings.ToUpper(s[len(s)-1:])
	if !strings.ContainsAny(ref, "NSEW") {
		v, err := strconv.ParseFloat(s, 64)
		return v, err == nil
	}
	parts := strings.Split(s[:len(s)-1], ",")
	values := make([]float64, 0, 3)
	for _, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return 0, false
		}
		values = append(values, v)
	}
	switch len(values) {
	case 2:
		return DMSToDecimal(values[0], values[1], 0, ref), true
	case 3:
		return DMSToDecimal(values[0], values[1], values[2], ref), true
	default:
		return 0, false
	}
}

func applyRef(v float64, ref string) float64 {
	switch strings.ToUpper(strings.TrimSpace(ref)) {
	case "S", "W":
		return -v
	}
	return v
}
