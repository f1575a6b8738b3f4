// pkg/dashboard/json.go
package dashboard

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/David-Botos/retail-bi/pkg/model"
)

// readJSONRecords loads a JSON array of objects. Columns keep the order in
// which their keys first appear.
func readJSONRecords(path string) (*model.Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	dec := json.NewDecoder(f)
	dec.UseNumber()

	if err := expectDelim(dec, '['); err != nil {
		return nil, err
	}

	var (
		columns []string
		records []map[string]interface{}
	)
	position := make(map[string]int)

	for dec.More() {
		if err := expectDelim(dec, '{'); err != nil {
			return nil, err
		}
		record := make(map[string]interface{})
		for dec.More() {
			tok, err := dec.Token()
			if err != nil {
				return nil, err
			}
			key, ok := tok.(string)
			if !ok {
				return nil, fmt.Errorf("unexpected token %v", tok)
			}
			var raw interface{}
			if err := dec.Decode(&raw); err != nil {
				return nil, err
			}
			if _, known := position[key]; !known {
				position[key] = len(columns)
				columns = append(columns, key)
			}
			record[key] = jsonCell(raw)
		}
		if err := expectDelim(dec, '}'); err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	if err := expectDelim(dec, ']'); err != nil {
		return nil, err
	}
	if len(columns) == 0 {
		return nil, errors.New("json file holds no records")
	}

	rows := make([][]interface{}, len(records))
	for i, rec := range records {
		row := make([]interface{}, len(columns))
		for key, v := range rec {
			row[position[key]] = v
		}
		rows[i] = row
	}
	return model.NewDataset(columns, rows)
}

func expectDelim(dec *json.Decoder, want json.Delim) error {
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != want {
		return fmt.Errorf("expected %q, got %v", want, tok)
	}
	return nil
}

func jsonCell(v interface{}) interface{} {
	switch val := v.(type) {
	case nil:
		return nil
	case json.Number:
		if n, err := val.Int64(); err == nil {
			return n
		}
		if f, err := val.Float64(); err == nil {
			return f
		}
		return val.String()
	case string:
		return val
	default:
		return model.Stringify(val)
	}
}
