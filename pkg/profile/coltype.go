// pkg/profile/coltype.go
package profile

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/David-Botos/retail-bi/pkg/model"
)

const (
	// DatePatternThreshold is the share of values that must look like dates
	DatePatternThreshold = 0.3
	// NumericThreshold is the share of non-null values that must parse as numbers
	NumericThreshold = 0.5
	// DegenerateHeaderRatio is the share of generic names above which a header is rejected
	DegenerateHeaderRatio = 0.6
)

var (
	dateNameHints = []string{"fecha", "date", "día", "dia", "time", "created", "updated"}

	columnDatePatterns = []*regexp.Regexp{
		regexp.MustCompile(`^\d{2}[/-]\d{2}[/-]\d{4}`),
		regexp.MustCompile(`^\d{4}[/-]\d{2}[/-]\d{2}`),
		regexp.MustCompile(`^\d{1,2}[/-]\d{1,2}[/-]\d{2,4}`),
	}

	genericNamePattern = regexp.MustCompile(`^(Unnamed.*|C\d+|\d+|Column.*)$`)
)

// IsDateColumn decides by name hint first, then by the share of values
// matching a date pattern.
func IsDateColumn(name string, values []interface{}) bool {
	lower := strings.ToLower(name)
	for _, hint := range dateNameHints {
		if strings.Contains(lower, hint) {
			return true
		}
	}

	if len(values) == 0 {
		return false
	}

	matches := 0
	for _, v := range values {
		s := model.Stringify(v)
		for _, p := range columnDatePatterns {
			if p.MatchString(s) {
				matches++
				break
			}
		}
	}
	return float64(matches)/float64(len(values)) > DatePatternThreshold
}

// IsNumericColumn reports whether more than half of the non-null values
// coerce to a finite number. Nulls are left out of the denominator, so a
// sparse column like ["5", nil, nil, nil] is numeric and a quantity column
// with one blank and one typo (["5", nil, "abc", "3.7"]) stays numeric and
// gets both cells repaired.
func IsNumericColumn(values []interface{}) bool {
	present, parsed := 0, 0
	for _, v := range values {
		if model.IsNull(v) {
			continue
		}
		present++
		if _, ok := CoerceNumber(v); ok {
			parsed++
		}
	}
	if present == 0 {
		return false
	}
	return float64(parsed)/float64(present) > NumericThreshold
}

// DetectColumnType classifies a column; a column passing both checks is a date
func DetectColumnType(name string, values []interface{}) model.ColumnType {
	if IsDateColumn(name, values) {
		return model.ColumnTypeDate
	}
	if IsNumericColumn(values) {
		return model.ColumnTypeNumeric
	}
	return model.ColumnTypeText
}

// CoerceNumber converts a cell to a finite float64 using strict parsing
func CoerceNumber(v interface{}) (float64, bool) {
	var f float64
	switch val := v.(type) {
	case nil:
		return 0, false
	case float64:
		f = val
	case float32:
		f = float64(val)
	case int:
		f = float64(val)
	case int64:
		f = float64(val)
	case int32:
		f = float64(val)
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}

	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// IsGenericColumnName reports placeholder names such as "Unnamed: 3", "C7",
// "4" or "Column2".
func IsGenericColumnName(name string) bool {
	return genericNamePattern.MatchString(name)
}

// GenericColumnNames filters the placeholder names out of a header
func GenericColumnNames(names []string) []string {
	var generic []string
	for _, n := range names {
		if IsGenericColumnName(n) {
			generic = append(generic, n)
		}
	}
	return generic
}

// IsDegenerateHeader reports whether too many column names are placeholders
func IsDegenerateHeader(names []string) bool {
	if len(names) == 0 {
		return true
	}
	return float64(len(GenericColumnNames(names))) > DegenerateHeaderRatio*float64(len(names))
}
