// pkg/publish/mapping.go
package publish

import (
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/lib/pq"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/David-Botos/retail-bi/pkg/cleaner"
	"github.com/David-Botos/retail-bi/pkg/model"
)

// maxIdentifierLength is PostgreSQL's NAMEDATALEN - 1
const maxIdentifierLength = 63

// PostgresType maps a cleaned column type to its PostgreSQL column type
func PostgresType(t model.ColumnType) string {
	switch t {
	case model.ColumnTypeDate:
		return "DATE"
	case model.ColumnTypeNumeric:
		return "BIGINT"
	default:
		return "TEXT"
	}
}

// ColumnDefinitions creates PostgreSQL column definitions in dataset order
func ColumnDefinitions(columns []string, types map[string]model.ColumnType) []string {
	defs := make([]string, len(columns))
	for i, col := range columns {
		defs[i] = fmt.Sprintf("%s %s NULL", pq.QuoteIdentifier(col), PostgresType(types[col]))
	}
	return defs
}

// ConvertValue converts a cleaned cell to the Go value bound for its column
func ConvertValue(value interface{}, t model.ColumnType) (interface{}, error) {
	if model.IsNull(value) {
		return nil, nil
	}

	switch t {
	case model.ColumnTypeDate:
		switch v := value.(type) {
		case time.Time:
			return v, nil
		case string:
			d, err := time.Parse(cleaner.DateLayout, strings.TrimSpace(v))
			if err != nil {
				return nil, err
			}
			return d, nil
		}
		return nil, fmt.Errorf("cannot convert %T to date", value)

	case model.ColumnTypeNumeric:
		switch v := value.(type) {
		case int64:
			return v, nil
		case int:
			return int64(v), nil
		case float64:
			return int64(v), nil
		case string:
			n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
			if err != nil {
				return nil, err
			}
			return n, nil
		}
		return nil, fmt.Errorf("cannot convert %T to integer", value)

	default:
		if s, ok := value.(string); ok {
			return s, nil
		}
		return model.Stringify(value), nil
	}
}

// ConvertRows converts every row of a dataset. The first failing cell stops
// the conversion.
func ConvertRows(ds *model.Dataset, types map[string]model.ColumnType) ([][]interface{}, error) {
	columns := ds.Columns()
	index := ds.Index()
	rows := make([][]interface{}, ds.NumRows())

	for pos := range rows {
		raw := ds.Row(pos)
		row := make([]interface{}, len(raw))
		for j, v := range raw {
			converted, err := ConvertValue(v, types[columns[j]])
			if err != nil {
				return nil, &ConversionError{Column: columns[j], Row: index[pos], Value: v, Err: err}
			}
			row[j] = converted
		}
		rows[pos] = row
	}
	return rows, nil
}

// TableName derives a PostgreSQL table name from a source file name:
// accents are stripped, the name is lower-cased and anything outside
// [a-z0-9_] becomes an underscore.
func TableName(sourceFile string) string {
	stem := sourceFile
	if i := strings.LastIndexByte(stem, '.'); i > 0 {
		stem = stem[:i]
	}

	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	plain, _, err := transform.String(t, stem)
	if err != nil {
		plain = stem
	}

	var b strings.Builder
	lastUnderscore := false
	for _, r := range strings.ToLower(plain) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			lastUnderscore = false
			continue
		}
		if !lastUnderscore {
			b.WriteByte('_')
			lastUnderscore = true
		}
	}

	name := strings.Trim(b.String(), "_")
	if name == "" {
		name = "tabla"
	}
	if name[0] >= '0' && name[0] <= '9' {
		name = "t_" + name
	}
	if len(name) > maxIdentifierLength {
		name = name[:maxIdentifierLength]
	}
	return name
}
