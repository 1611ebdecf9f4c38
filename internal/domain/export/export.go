package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"regexp"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/kim/varmap/internal/domain/granularity"
	"github.com/kim/varmap/internal/domain/mapping"
)

// Format is an export file format.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

// ParseFormat defaults to CSV.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "csv":
		return FormatCSV, nil
	case "xlsx", "excel":
		return FormatXLSX, nil
	}
	return "", fmt.Errorf("unsupported export format %q", s)
}

// ContentType returns the MIME type of the format.
func (f Format) ContentType() string {
	if f == FormatXLSX {
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	return "text/csv; charset=utf-8"
}

// Header is the export column order.
var Header = []string{
	"Variable",
	"Organ System",
	"Group",
	"Source",
	"EPIC ID",
	"PDMS ID",
	"Unit",
	"Origin",
	"Summary",
	"Time basis",
}

// Row is one (variable, granularity variant) line of an export.
type Row struct {
	GranularityID string `json:"row_id"`
	RowKey        string `json:"row_key"`
	Variable      string `json:"variable"`
	OrganSystem   string `json:"organ_system"`
	Group         string `json:"group"`
	Source        string `json:"source"`
	EpicID        string `json:"epic_id"`
	PDMSID        string `json:"pdms_id"`
	Unit          string `json:"unit"`
	Origin        string `json:"origin"`
	Summary       string `json:"summary"`
	TimeBasis     string `json:"time_basis"`
}

// Values returns the row in Header order.
func (r Row) Values() []string {
	return []string{
		r.Variable, r.OrganSystem, r.Group, r.Source, r.EpicID, r.PDMSID,
		r.Unit, r.Origin, r.Summary, r.TimeBasis,
	}
}

// Build joins granularity rows with the master view. Rows whose key is not
// in master are dropped.
func Build(gran []granularity.Row, master []mapping.Row) []Row {
	lookup := mapping.Lookup(master)
	out := make([]Row, 0, len(gran))
	for _, g := range gran {
		m, ok := lookup[g.RowKey]
		if !ok {
			continue
		}
		out = append(out, Row{
			GranularityID: g.ID,
			RowKey:        g.RowKey,
			Variable:      m.Variable,
			OrganSystem:   m.OrganSystem,
			Group:         m.Group,
			Source:        m.Source(),
			EpicID:        m.EpicID,
			PDMSID:        m.PDMSID,
			Unit:          m.Unit,
			Origin:        m.OriginLabel(),
			Summary:       string(g.Summary),
			TimeBasis:     string(g.TimeBasis),
		})
	}
	return out
}

// WriteCSV writes a header line and one line per row.
func WriteCSV(w io.Writer, rows []Row) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, r := range rows {
		if err := cw.Write(r.Values()); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

const sheetName = "Variables"

// WriteXLSX writes a single-sheet workbook with a bold, frozen header row.
func WriteXLSX(w io.Writer, rows []Row) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), sheetName); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	header := make([]interface{}, len(Header))
	for i, h := range Header {
		header[i] = h
	}
	if err := f.SetSheetRow(sheetName, "A1", &header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for i, r := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		vals := r.Values()
		line := make([]interface{}, len(vals))
		for j, v := range vals {
			line[j] = v
		}
		if err := f.SetSheetRow(sheetName, cell, &line); err != nil {
			return fmt.Errorf("write row %d: %w", i+1, err)
		}
	}

	style, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("header style: %w", err)
	}
	last, _ := excelize.CoordinatesToCellName(len(Header), 1)
	if err := f.SetCellStyle(sheetName, "A1", last, style); err != nil {
		return fmt.Errorf("apply header style: %w", err)
	}
	if err := f.SetPanes(sheetName, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		return fmt.Errorf("freeze header: %w", err)
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

// Write dispatches on format.
func Write(w io.Writer, format Format, rows []Row) error {
	if format == FormatXLSX {
		return WriteXLSX(w, rows)
	}
	return WriteCSV(w, rows)
}

var slugUnsafe = regexp.MustCompile(`[^a-z0-9_\-]+`)

// Slug lowercases name and replaces spaces with underscores. Characters
// that are unsafe in file names are dropped.
func Slug(name string) string {
	s := strings.ToLower(strings.TrimSpace(name))
	s = strings.ReplaceAll(s, " ", "_")
	s = slugUnsafe.ReplaceAllString(s, "")
	if s == "" {
		return "project"
	}
	return s
}

// Filename returns variablemapping_<slug>_<YYYYMMDD_HHMMSS>.<ext>.
func Filename(project string, now time.Time, format Format) string {
	return fmt.Sprintf("variablemapping_%s_%s.%s", Slug(project), now.Format("20060102_150405"), format)
}
