package mapping

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
	"gopkg.in/yaml.v3"
)

// ErrUnsupportedFormat is returned for files that are not CSV, XLSX or YAML.
var ErrUnsupportedFormat = errors.New("unsupported file format")

// ErrMalformedFile is returned when a supported file cannot be read.
var ErrMalformedFile = errors.New("malformed file")

// MaxTableRows bounds the number of data rows read from one file.
const MaxTableRows = 50000

// ParseTable reads a tabular file into records. The format is chosen from
// the file extension: .csv/.tsv/.txt, .xlsx/.xlsm or .yaml/.yml.
func ParseTable(name string, data []byte) ([]Record, error) {
	var recs []Record
	var err error
	switch strings.ToLower(filepath.Ext(name)) {
	case ".csv", ".txt":
		recs, err = parseDelimited(data, 0)
	case ".tsv":
		recs, err = parseDelimited(data, '\t')
	case ".xlsx", ".xlsm":
		recs, err = parseWorkbook(data)
	case ".yaml", ".yml":
		recs, err = parseYAML(data)
	default:
		return nil, fmt.Errorf("%s: %w", name, ErrUnsupportedFormat)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %w", name, ErrMalformedFile, err)
	}
	return recs, nil
}

// sniffDelimiter picks ';' over ',' when the header line uses semicolons,
// which spreadsheet exports in de-CH locales do.
func sniffDelimiter(data []byte) rune {
	line := data
	if i := bytes.IndexByte(data, '\n'); i >= 0 {
		line = data[:i]
	}
	if bytes.Count(line, []byte(";")) > bytes.Count(line, []byte(",")) {
		return ';'
	}
	return ','
}

func parseDelimited(data []byte, comma rune) ([]Record, error) {
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
	if comma == 0 {
		comma = sniffDelimiter(data)
	}
	r := csv.NewReader(bytes.NewReader(data))
	r.Comma = comma
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	var table [][]string
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv: %w", err)
		}
		table = append(table, rec)
		if len(table) > MaxTableRows+1 {
			return nil, fmt.Errorf("csv has more than %d rows", MaxTableRows)
		}
	}
	return recordsFromTable(table), nil
}

func parseWorkbook(data []byte) ([]Record, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, nil
	}
	table, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheets[0], err)
	}
	if len(table) > MaxTableRows+1 {
		return nil, fmt.Errorf("sheet %q has more than %d rows", sheets[0], MaxTableRows)
	}
	return recordsFromTable(table), nil
}

// recordsFromTable treats the first row as the header. Fully blank rows are
// dropped; short rows are padded with empty values.
func recordsFromTable(table [][]string) []Record {
	if len(table) == 0 {
		return nil
	}
	header := table[0]
	var out []Record
	for _, line := range table[1:] {
		blank := true
		rec := make(Record, len(header))
		for i, h := range header {
			var v string
			if i < len(line) {
				v = line[i]
			}
			if strings.TrimSpace(v) != "" {
				blank = false
			}
			rec[h] = v
		}
		if !blank {
			out = append(out, rec)
		}
	}
	return out
}

type yamlSeed struct {
	Rows []map[string]interface{} `yaml:"rows"`
}

func parseYAML(data []byte) ([]Record, error) {
	var items []map[string]interface{}
	if err := yaml.Unmarshal(data, &items); err != nil {
		var seed yamlSeed
		if err2 := yaml.Unmarshal(data, &seed); err2 != nil {
			return nil, fmt.Errorf("parse yaml: %w", err)
		}
		items = seed.Rows
	}
	out := make([]Record, 0, len(items))
	for _, item := range items {
		rec := make(Record, len(item))
		for k, v := range item {
			if v == nil {
				rec[k] = ""
				continue
			}
			rec[k] = fmt.Sprint(v)
		}
		out = append(out, rec)
	}
	return out, nil
}

// RowsFromRecords coerces records into unkeyed rows.
func RowsFromRecords(recs []Record) []Row {
	rows := make([]Row, len(recs))
	for i, rec := range recs {
		rows[i] = RowFromRecord(rec)
	}
	return rows
}
