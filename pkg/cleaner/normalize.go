// pkg/cleaner/normalize.go
package cleaner

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/David-Botos/retail-bi/pkg/model"
	"github.com/David-Botos/retail-bi/pkg/profile"
)

const (
	// MissingText replaces absent text values
	MissingText = "Sin registro"
	// DateLayout is the output format of date columns
	DateLayout = "02-01-2006"
)

// DefaultDate is written where a date cannot be parsed
var DefaultDate = time.Date(1900, time.January, 1, 0, 0, 0, 0, time.UTC)

const (
	opDefaultFill     = "default_fill"
	opCoercionDefault = "coercion_default"

	reasonNull              = "null_value"
	reasonBlank             = "blank_value"
	reasonNaNMarker         = "nan_marker"
	reasonUnparseableNumber = "unparseable_number"
	reasonUnparseableDate   = "unparseable_date"
)

// Repair records a cell the normalizer had to replace with a default
type Repair struct {
	Position  int
	Original  interface{}
	Value     string
	Operation string
	Reason    string
}

// IsProblemValue reports a null cell or one whose text form is "" or "nan"
func IsProblemValue(v interface{}) bool {
	if model.IsNull(v) {
		return true
	}
	s := model.Stringify(v)
	return s == "" || s == "nan"
}

// missingReason classifies a problem value, returning "" for regular cells
func missingReason(v interface{}) string {
	if model.IsNull(v) {
		return reasonNull
	}
	switch model.Stringify(v) {
	case "":
		return reasonBlank
	case "nan":
		return reasonNaNMarker
	}
	return ""
}

// NormalizeColumn converts every value of a column to its canonical form:
// dates become DD-MM-YYYY strings, numbers become ceiled int64 values and
// text becomes strings with missing markers replaced.
func NormalizeColumn(t model.ColumnType, values []interface{}) ([]interface{}, []Repair) {
	switch t {
	case model.ColumnTypeDate:
		return normalizeDates(values)
	case model.ColumnTypeNumeric:
		return normalizeNumbers(values)
	default:
		return normalizeText(values)
	}
}

func normalizeDates(values []interface{}) ([]interface{}, []Repair) {
	out := make([]interface{}, len(values))
	var repairs []Repair
	fallback := DefaultDate.Format(DateLayout)

	for i, v := range values {
		if reason := missingReason(v); reason != "" {
			out[i] = fallback
			repairs = append(repairs, Repair{i, v, fallback, opDefaultFill, reason})
			continue
		}
		t, ok := ParseDate(v)
		if !ok {
			out[i] = fallback
			repairs = append(repairs, Repair{i, v, fallback, opCoercionDefault, reasonUnparseableDate})
			continue
		}
		out[i] = t.Format(DateLayout)
	}
	return out, repairs
}

func normalizeNumbers(values []interface{}) ([]interface{}, []Repair) {
	out := make([]interface{}, len(values))
	var repairs []Repair

	for i, v := range values {
		if reason := missingReason(v); reason != "" {
			out[i] = int64(0)
			repairs = append(repairs, Repair{i, v, "0", opDefaultFill, reason})
			continue
		}
		f, ok := profile.CoerceNumber(v)
		c := math.Ceil(f)
		if !ok || c >= math.MaxInt64 || c < math.MinInt64 {
			out[i] = int64(0)
			repairs = append(repairs, Repair{i, v, "0", opCoercionDefault, reasonUnparseableNumber})
			continue
		}
		out[i] = int64(c)
	}
	return out, repairs
}

var textMarkers = map[string]string{
	"":     reasonBlank,
	"nan":  reasonNaNMarker,
	"null": reasonNaNMarker,
	"None": reasonNaNMarker,
}

func normalizeText(values []interface{}) ([]interface{}, []Repair) {
	out := make([]interface{}, len(values))
	var repairs []Repair

	for i, v := range values {
		if model.IsNull(v) {
			out[i] = MissingText
			repairs = append(repairs, Repair{i, v, MissingText, opDefaultFill, reasonNull})
			continue
		}
		s := model.Stringify(v)
		if reason, ok := textMarkers[s]; ok {
			out[i] = MissingText
			repairs = append(repairs, Repair{i, v, MissingText, opDefaultFill, reason})
			continue
		}
		out[i] = s
	}
	return out, repairs
}

// Day-first layouts come before month-first ones; two-digit years follow the
// month-first order spreadsheet apps use for short dates.
var dateLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	time.RFC3339,
	"2006/1/2",
	"2006/1/2 15:04:05",
	"2-1-2006",
	"2/1/2006",
	"2.1.2006",
	"2-1-2006 15:04",
	"2/1/2006 15:04",
	"2-1-2006 15:04:05",
	"2/1/2006 15:04:05",
	"1-2-06",
	"1/2/06",
	"2 January 2006",
	"2 Jan 2006",
	"January 2, 2006",
	"Jan 2, 2006",
	"2-Jan-2006",
	"2-Jan-06",
}

var spanishMonths = map[string]time.Month{
	"enero": time.January, "ene": time.January,
	"febrero": time.February, "feb": time.February,
	"marzo": time.March, "mar": time.March,
	"abril": time.April, "abr": time.April,
	"mayo": time.May, "may": time.May,
	"junio": time.June, "jun": time.June,
	"julio": time.July, "jul": time.July,
	"agosto": time.August, "ago": time.August,
	"septiembre": time.September, "setiembre": time.September, "sep": time.September, "sept": time.September,
	"octubre": time.October, "oct": time.October,
	"noviembre": time.November, "nov": time.November,
	"diciembre": time.December, "dic": time.December,
}

var spanishDatePattern = regexp.MustCompile(`^(\d{1,2})(?:\s+de)?[\s\-/]+([a-záéíóú]+)\.?(?:\s+de)?[\s\-/]+(\d{4})$`)

// ParseDate parses the date formats found in the reseller's exports
func ParseDate(v interface{}) (time.Time, bool) {
	switch val := v.(type) {
	case time.Time:
		return val, true
	case string:
		return parseDateString(val)
	default:
		return time.Time{}, false
	}
}

func parseDateString(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}

	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}

	m := spanishDatePattern.FindStringSubmatch(strings.ToLower(s))
	if m == nil {
		return time.Time{}, false
	}
	month, ok := spanishMonths[m[2]]
	if !ok {
		return time.Time{}, false
	}
	day, _ := strconv.Atoi(m[1])
	year, _ := strconv.Atoi(m[3])
	t := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
	if t.Day() != day {
		return time.Time{}, false
	}
	return t, true
}
