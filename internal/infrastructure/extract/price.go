package extract

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	decimalPricePattern = regexp.MustCompile(`(\d+\.\d{2})`)
	integerPricePattern = regexp.MustCompile(`(\d+)`)
	numberPattern       = regexp.MustCompile(`\d+(?:\.\d+)?`)
	integerRunPattern   = regexp.MustCompile(`\d[\d,]*`)
)

// ParsePrice reads a price from the loose formats retail pages use.
// Numbers are taken at face value. In text, a two-decimal amount wins;
// otherwise a bare integer of four or five digits is read as cents.
func ParsePrice(v interface{}) float64 {
	switch p := v.(type) {
	case nil:
		return 0
	case float64:
		return p
	case float32:
		return float64(p)
	case int:
		return float64(p)
	case int64:
		return float64(p)
	case string:
		return parsePriceText(p)
	default:
		return 0
	}
}

func parsePriceText(text string) float64 {
	s := strings.TrimSpace(strings.NewReplacer("$", "", ",", "").Replace(text))
	if s == "" {
		return 0
	}

	if m := decimalPricePattern.FindString(s); m != "" {
		price, err := strconv.ParseFloat(m, 64)
		if err == nil {
			return price
		}
	}

	m := integerPricePattern.FindString(s)
	if m == "" {
		return 0
	}
	num, err := strconv.Atoi(m)
	if err != nil {
		return 0
	}
	if num >= 1000 && num < 100000 {
		return float64(num) / 100
	}
	return float64(num)
}

// parseNumber returns the first decimal number in text
func parseNumber(text string) (float64, bool) {
	m := numberPattern.FindString(strings.ReplaceAll(text, ",", ""))
	if m == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(m, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// lastInteger returns the last whole number in text that is not part of a
// decimal, ignoring thousands separators.
func lastInteger(text string) (int, bool) {
	locs := integerRunPattern.FindAllStringIndex(text, -1)
	for i := len(locs) - 1; i >= 0; i-- {
		start, end := locs[i][0], locs[i][1]
		if start > 0 && text[start-1] == '.' {
			continue
		}
		if end+1 < len(text) && text[end] == '.' && text[end+1] >= '0' && text[end+1] <= '9' {
			continue
		}
		n, err := strconv.Atoi(strings.ReplaceAll(text[start:end], ",", ""))
		if err == nil {
			return n, true
		}
	}
	return 0, false
}
