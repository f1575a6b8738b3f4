// pkg/profile/classifier.go
package profile

import (
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"
)

var (
	dataDatePatterns = []*regexp.Regexp{
		regexp.MustCompile(`^\d{1,2}[/-]\d{1,2}[/-]\d{2,4}`),
		regexp.MustCompile(`^\d{4}[/-]\d{1,2}[/-]\d{1,2}`),
		regexp.MustCompile(`(?i)^\d{1,2}\s+(enero|febrero|marzo|abril|mayo|junio|julio|agosto|septiembre|octubre|noviembre|diciembre)`),
	}
	productCodePattern = regexp.MustCompile(`^[A-Z0-9\-/\s]+$`)
	identifierPattern  = regexp.MustCompile(`^[A-Z]{2,4}\d{3,}$`)
)

const (
	longDescriptionLength = 60
	productCodeMinLength  = 6
)

// LooksLikeData reports whether a cell reads as a data value (amount, date,
// long description, code) rather than a header label.
func LooksLikeData(value string) bool {
	v := strings.TrimSpace(value)

	if _, ok := ParseLooseNumber(v); ok {
		return true
	}

	for _, p := range dataDatePatterns {
		if p.MatchString(v) {
			return true
		}
	}

	length := utf8.RuneCountInString(v)
	if length > longDescriptionLength {
		return true
	}

	if productCodePattern.MatchString(v) && length > productCodeMinLength {
		return true
	}

	return identifierPattern.MatchString(v)
}

// ParseLooseNumber parses amounts written with a currency prefix and either
// decimal separator: "$1.234,56", "1,234.56", "3,5" and "€ 12" all parse.
func ParseLooseNumber(value string) (float64, bool) {
	s := strings.TrimSpace(value)
	s = strings.TrimPrefix(s, "$")
	s = strings.TrimPrefix(s, "€")
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}

	if strings.Contains(s, ",") {
		lastComma := strings.LastIndex(s, ",")
		lastDot := strings.LastIndex(s, ".")
		switch {
		case lastDot >= 0 && lastComma > lastDot:
			// 1.234,56
			s = strings.ReplaceAll(s, ".", "")
			s = strings.Replace(s, ",", ".", 1)
		case lastDot >= 0:
			// 1,234.56
			s = strings.ReplaceAll(s, ",", "")
		default:
			s = strings.ReplaceAll(s, ",", ".")
		}
	}

	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}
