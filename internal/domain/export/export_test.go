package export

import (
	"bytes"
	"encoding/csv"
	"reflect"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/kim/varmap/internal/domain/granularity"
	"github.com/kim/varmap/internal/domain/mapping"
)

func masterRows() []mapping.Row {
	base := mapping.AssignBaseKeys([]mapping.Row{
		{OrganSystem: "Renal", Group: "Labs", Variable: "Creatinine", EpicID: "123", Unit: "mg/dL"},
		{OrganSystem: "Cardio", Group: "Vitals", Variable: "Heart rate", EpicID: "9", PDMSID: "HR"},
	})
	return append(base,
		mapping.Row{Key: "NEW:1", OrganSystem: "General", Group: "General", Variable: "Pain", Origin: mapping.OriginUser, Contribution: mapping.ContributionUpload, UserCreated: true},
		mapping.Row{Key: "PDMS:x", OrganSystem: "General", Group: "General", Variable: "Score", PDMSID: "x", Origin: mapping.OriginUser, Contribution: mapping.ContributionManual, UserCreated: true},
	)
}

func TestBuild(t *testing.T) {
	gran := []granularity.Row{
		{ID: "g1", RowKey: "EPIC:123", Summary: granularity.SummaryRaw, TimeBasis: granularity.TimeNone},
		{ID: "g2", RowKey: "EPIC:123", Summary: granularity.SummaryHighest, TimeBasis: granularity.TimePerDay},
		{ID: "g3", RowKey: "EPIC:9", Summary: granularity.SummaryMean, TimeBasis: granularity.TimePerShift},
		{ID: "g4", RowKey: "NEW:1", Summary: granularity.SummaryRaw, TimeBasis: granularity.TimeNone},
		{ID: "g5", RowKey: "PDMS:x", Summary: granularity.SummaryRaw, TimeBasis: granularity.TimeNone},
		{ID: "g6", RowKey: "EPIC:gone", Summary: granularity.SummaryRaw, TimeBasis: granularity.TimeNone},
	}
	rows := Build(gran, masterRows())

	if len(rows) != 5 {
		t.Fatalf("got %d rows, want 5 (unknown key dropped)", len(rows))
	}
	if rows[1].Summary != "Highest" || rows[1].TimeBasis != "Per day" || rows[1].Variable != "Creatinine" {
		t.Errorf("rows[1] = %+v", rows[1])
	}
	if rows[0].Source != "EPIC" || rows[2].Source != "Both" || rows[3].Source != "" || rows[4].Source != "PDMS" {
		t.Errorf("sources = %q %q %q %q", rows[0].Source, rows[2].Source, rows[3].Source, rows[4].Source)
	}
	if rows[0].Origin != "Base" || rows[3].Origin != "User upload" || rows[4].Origin != "User created" {
		t.Errorf("origins = %q %q %q", rows[0].Origin, rows[3].Origin, rows[4].Origin)
	}
}

func TestWriteCSV(t *testing.T) {
	rows := []Row{{Variable: "Creatinine, serum", OrganSystem: "Renal", Group: "Labs", Source: "EPIC", EpicID: "123", Origin: "Base", Summary: "Raw", TimeBasis: "None"}}
	var buf bytes.Buffer
	if err := WriteCSV(&buf, rows); err != nil {
		t.Fatalf("WriteCSV: %v", err)
	}
	recs, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 2 {
		t.Fatalf("got %d lines, want 2", len(recs))
	}
	if !reflect.DeepEqual(recs[0], Header) {
		t.Errorf("header = %v", recs[0])
	}
	if recs[1][0] != "Creatinine, serum" || recs[1][9] != "None" {
		t.Errorf("row = %v", recs[1])
	}
}

func TestWriteXLSX(t *testing.T) {
	rows := []Row{{Variable: "Heart rate", EpicID: "9", PDMSID: "HR", Source: "Both", Summary: "Mean", TimeBasis: "Per shift"}}
	var buf bytes.Buffer
	if err := WriteXLSX(&buf, rows); err != nil {
		t.Fatalf("WriteXLSX: %v", err)
	}
	f, err := excelize.OpenReader(&buf)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	got, err := f.GetRows(sheetName)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0][0] != "Variable" || got[1][0] != "Heart rate" || got[1][9] != "Per shift" {
		t.Errorf("sheet = %v", got)
	}
}

func TestFilename(t *testing.T) {
	now := time.Date(2024, 5, 7, 14, 3, 9, 0, time.UTC)
	if got := Filename("ICU Sepsis Study", now, FormatCSV); got != "variablemapping_icu_sepsis_study_20240507_140309.csv" {
		t.Errorf("Filename = %q", got)
	}
	if got := Filename("a/b", now, FormatXLSX); got != "variablemapping_ab_20240507_140309.xlsx" {
		t.Errorf("Filename = %q", got)
	}
	if got := Slug("   "); got != "project" {
		t.Errorf("Slug = %q", got)
	}
}

func TestParseFormat(t *testing.T) {
	if f, err := ParseFormat(""); err != nil || f != FormatCSV {
		t.Errorf("ParseFormat(\"\") = %q, %v", f, err)
	}
	if f, err := ParseFormat("XLSX"); err != nil || f != FormatXLSX {
		t.Errorf("ParseFormat(XLSX) = %q, %v", f, err)
	}
	if _, err := ParseFormat("pdf"); err == nil {
		t.Error("expected error")
	}
}
