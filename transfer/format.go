package transfer

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/huykn/dataquery/types"
)

// Parser turns an import payload into raw records.
type Parser interface {
	Parse(r io.Reader) ([]types.Record, error)
}

// Writer serializes exported records.
type Writer interface {
	Write(w io.Writer, records []types.Record) error
}

// Format names a parser and writer pair.
type Format string

const (
	FormatJSON Format = "json"
	FormatCSV  Format = "csv"
	FormatYAML Format = "yaml"
)

// ParserFor returns the parser of format.
func ParserFor(format Format) (Parser, error) {
	switch format {
	case FormatJSON, "":
		return JSONParser{}, nil
	case FormatCSV:
		return CSVParser{}, nil
	case FormatYAML:
		return YAMLParser{}, nil
	}
	return nil, fmt.Errorf("unsupported format: %s", format)
}

// WriterFor returns the writer of format.
func WriterFor(format Format) (Writer, error) {
	switch format {
	case FormatJSON, "":
		return JSONWriter{Indent: "  "}, nil
	case FormatCSV:
		return CSVWriter{}, nil
	case FormatYAML:
		return YAMLWriter{}, nil
	}
	return nil, fmt.Errorf("unsupported format: %s", format)
}

// JSONParser reads a JSON array of objects.
type JSONParser struct{}

func (JSONParser) Parse(r io.Reader) ([]types.Record, error) {
	var records []types.Record
	dec := json.NewDecoder(r)
	dec.UseNumber()
	if err := dec.Decode(&records); err != nil {
		return nil, types.NewValidationError("invalid JSON payload: %v", err)
	}
	for i, rec := range records {
		if rec == nil {
			return nil, types.NewValidationError("invalid JSON payload: item %d is not an object", i)
		}
	}
	return records, nil
}

// JSONWriter writes records as a JSON array.
type JSONWriter struct {
	Indent string
}

func (w JSONWriter) Write(out io.Writer, records []types.Record) error {
	if records == nil {
		records = []types.Record{}
	}
	enc := json.NewEncoder(out)
	if w.Indent != "" {
		enc.SetIndent("", w.Indent)
	}
	return errors.Wrap(enc.Encode(records), "write JSON")
}

// YAMLParser reads a YAML sequence of mappings.
type YAMLParser struct{}

func (YAMLParser) Parse(r io.Reader) ([]types.Record, error) {
	var records []types.Record
	if err := yaml.NewDecoder(r).Decode(&records); err != nil {
		if err == io.EOF {
			return []types.Record{}, nil
		}
		return nil, types.NewValidationError("invalid YAML payload: %v", err)
	}
	for i, rec := range records {
		if rec == nil {
			return nil, types.NewValidationError("invalid YAML payload: item %d is not a mapping", i)
		}
	}
	return records, nil
}

// YAMLWriter writes records as a YAML sequence.
type YAMLWriter struct{}

func (YAMLWriter) Write(out io.Writer, records []types.Record) error {
	if records == nil {
		records = []types.Record{}
	}
	enc := yaml.NewEncoder(out)
	enc.SetIndent(2)
	if err := enc.Encode(records); err != nil {
		return errors.Wrap(err, "write YAML")
	}
	return errors.Wrap(enc.Close(), "flush YAML")
}

// CSVParser reads comma separated rows. The first row names the fields.
// Empty cells are left out of the record.
type CSVParser struct {
	// Comma defaults to ','.
	Comma rune
}

func (p CSVParser) Parse(r io.Reader) ([]types.Record, error) {
	cr := csv.NewReader(r)
	if p.Comma != 0 {
		cr.Comma = p.Comma
	}
	cr.TrimLeadingSpace = true

	rows, err := cr.ReadAll()
	if err != nil {
		return nil, types.NewValidationError("invalid CSV payload: %v", err)
	}
	if len(rows) == 0 {
		return nil, types.NewValidationError("invalid CSV payload: missing header row")
	}

	header := rows[0]
	for i, name := range header {
		header[i] = strings.TrimSpace(name)
	}

	records := make([]types.Record, 0, len(rows)-1)
	for _, row := range rows[1:] {
		rec := make(types.Record, len(header))
		for i, cell := range row {
			if cell == "" || header[i] == "" {
				continue
			}
			rec[header[i]] = cell
		}
		records = append(records, rec)
	}
	return records, nil
}

// CSVWriter writes records as comma separated rows under a header row.
type CSVWriter struct {
	// Columns fixes the column order. Defaults to every field, sorted, with
	// "id" first.
	Columns []string
	Comma   rune
}

func (w CSVWriter) Write(out io.Writer, records []types.Record) error {
	columns := w.Columns
	if len(columns) == 0 {
		columns = columnsOf(records)
	}

	cw := csv.NewWriter(out)
	if w.Comma != 0 {
		cw.Comma = w.Comma
	}
	if err := cw.Write(columns); err != nil {
		return errors.Wrap(err, "write CSV header")
	}

	row := make([]string, len(columns))
	for _, rec := range records {
		for i, col := range columns {
			row[i] = cellOf(rec[col])
		}
		if err := cw.Write(row); err != nil {
			return errors.Wrap(err, "write CSV row")
		}
	}
	cw.Flush()
	return errors.Wrap(cw.Error(), "flush CSV")
}

func columnsOf(records []types.Record) []string {
	seen := make(map[string]struct{})
	for _, rec := range records {
		for k := range rec {
			seen[k] = struct{}{}
		}
	}
	columns := make([]string, 0, len(seen))
	for k := range seen {
		columns = append(columns, k)
	}
	sort.Slice(columns, func(i, j int) bool {
		if columns[i] == "id" || columns[j] == "id" {
			return columns[i] == "id"
		}
		return columns[i] < columns[j]
	})
	return columns
}

func cellOf(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case map[string]any, []any:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(b)
	default:
		return fmt.Sprint(t)
	}
}
