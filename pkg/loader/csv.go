// pkg/loader/csv.go
package loader

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

var candidateDelimiters = []rune{',', ';', '\t', '|'}

var (
	bomUTF8    = []byte{0xEF, 0xBB, 0xBF}
	bomUTF16LE = []byte{0xFF, 0xFE}
	bomUTF16BE = []byte{0xFE, 0xFF}
)

// decodeText converts raw file bytes to UTF-8 and names the encoding used
func decodeText(raw []byte) (string, string, error) {
	switch {
	case bytes.HasPrefix(raw, bomUTF8):
		out, _, err := transform.Bytes(unicode.BOMOverride(unicode.UTF8.NewDecoder()), raw)
		if err != nil {
			return "", "", err
		}
		return string(out), "utf-8-sig", nil
	case bytes.HasPrefix(raw, bomUTF16LE), bytes.HasPrefix(raw, bomUTF16BE):
		out, _, err := transform.Bytes(unicode.BOMOverride(unicode.UTF8.NewDecoder()), raw)
		if err != nil {
			return "", "", err
		}
		return string(out), "utf-16", nil
	case utf8.Valid(raw):
		return string(raw), "utf-8", nil
	}

	out, err := charmap.Windows1252.NewDecoder().Bytes(raw)
	if err != nil {
		return "", "", err
	}
	return string(out), "cp1252", nil
}

// sniffDelimiter picks the candidate that splits the first non-empty line
// into the most fields; comma wins ties
func sniffDelimiter(text string) rune {
	line := ""
	for _, l := range strings.Split(text, "\n") {
		if strings.TrimSpace(l) != "" {
			line = l
			break
		}
	}

	best, bestWidth := ',', 1
	for _, d := range candidateDelimiters {
		r := csv.NewReader(strings.NewReader(line))
		r.Comma = d
		r.LazyQuotes = true
		r.FieldsPerRecord = -1
		rec, err := r.Read()
		if err != nil {
			continue
		}
		if len(rec) > bestWidth {
			best, bestWidth = d, len(rec)
		}
	}
	return best
}

func delimiterName(d rune) string {
	if d == '\t' {
		return `\t`
	}
	return string(d)
}

// csvGrid drops blank lines before the header and whitespace-only lines.
// A line made of empty delimited fields (",,,") is a data row of missing
// values and is kept.
func csvGrid(records [][]string) [][]string {
	out := make([][]string, 0, len(records))
	for _, r := range records {
		if isBlankRow(r) && (len(out) == 0 || len(r) <= 1) {
			continue
		}
		out = append(out, r)
	}
	return out
}

// readCSV reads a delimited text file. The first non-blank line is the
// header and fixes the frame width.
func readCSV(raw []byte, delimiter rune) (*Source, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, ErrEmptySource
	}

	text, enc, err := decodeText(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to decode text: %w", err)
	}
	if delimiter == 0 {
		delimiter = sniffDelimiter(text)
	}

	r := csv.NewReader(strings.NewReader(text))
	r.Comma = delimiter
	r.LazyQuotes = true
	r.FieldsPerRecord = -1

	var records [][]string
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to parse csv: %w", err)
		}
		records = append(records, rec)
	}

	grid := csvGrid(records)
	if len(grid) == 0 {
		return nil, ErrEmptySource
	}

	src := &Source{
		Grid:       grid,
		Encoding:   enc,
		Delimiter:  delimiter,
		fixedWidth: len(grid[0]),
	}
	src.Method = fmt.Sprintf("csv (delimitador '%s', codificación %s)", delimiterName(delimiter), enc)

	if enc == "cp1252" {
		src.anomalies = append(src.anomalies,
			"El archivo no es UTF-8 válido; se decodificó como Windows-1252")
	}

	long := 0
	for i := 1; i < len(grid); i++ {
		if len(grid[i]) > src.fixedWidth {
			grid[i] = grid[i][:src.fixedWidth]
			long++
		}
	}
	if long > 0 {
		src.anomalies = append(src.anomalies, fmt.Sprintf(
			"%d filas tienen más campos que el encabezado (%d); se recortaron los campos sobrantes",
			long, src.fixedWidth))
	}

	return src, nil
}
