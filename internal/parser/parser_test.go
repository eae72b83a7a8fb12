package parser_test

import (
	"archive/zip"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/parquet-go/parquet-go"
	"github.com/xuri/excelize/v2"

	"github.com/KaramelBytes/dataloom-agent/internal/parser"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	return p
}

func TestLoadCSVSniffsDelimiterAndPadsRows(t *testing.T) {
	p := writeFile(t, "hop_harvest.csv", "\ufeffdate;plot;alpha_acids;moisture\n"+
		"2024-08-10;A1;12,5%;74\n"+
		"2024-08-12;A1;11,8%\n"+
		"2024-08-15;B3;10,2%;68\n")
	f, err := parser.LoadFile(p, parser.Options{})
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if f.Name != "hop_harvest.csv" || strings.Join(f.Header, ",") != "date,plot,alpha_acids,moisture" {
		t.Fatalf("unexpected frame: %s %v", f.Name, f.Header)
	}
	if f.NumRows() != 3 || f.Rows[1][3] != "" {
		t.Fatalf("ragged row not padded: %v", f.Rows)
	}
	vals, _ := f.Floats("alpha_acids")
	if len(vals) != 3 || vals[0] != 12.5 {
		t.Fatalf("alpha_acids = %v", vals)
	}
}

func TestLoadTSVAndMaxRows(t *testing.T) {
	p := writeFile(t, "t.tsv", "a\tb\n1\t2\n3\t4\n5\t6\n")
	f, err := parser.LoadFile(p, parser.Options{MaxRows: 2})
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if f.NumRows() != 2 || !f.Truncated {
		t.Fatalf("expected 2 rows and truncation, got %d %v", f.NumRows(), f.Truncated)
	}
}

func TestLoadCSVDuplicateAndBlankHeaders(t *testing.T) {
	p := writeFile(t, "dup.csv", "name,,name\nx,y,z\n")
	f, err := parser.LoadFile(p, parser.Options{})
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if got := strings.Join(f.Header, ","); got != "name,column_2,name_2" {
		t.Fatalf("header = %s", got)
	}
}

func TestLoadJSONRecordsKeepKeyOrder(t *testing.T) {
	p := writeFile(t, "sales.json", `[
		{"region": "East", "sales": 100, "active": true},
		{"region": "West", "sales": 250.5, "extra": {"k": 1}},
		{"sales": null, "region": "North"}
	]`)
	f, err := parser.LoadFile(p, parser.Options{})
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if got := strings.Join(f.Header, ","); got != "region,sales,active,extra" {
		t.Fatalf("header = %s", got)
	}
	if f.Rows[1][1] != "250.5" || f.Rows[1][3] != `{"k":1}` || f.Rows[2][1] != "" {
		t.Fatalf("rows = %v", f.Rows)
	}
}

func TestLoadJSONColumnarAndNested(t *testing.T) {
	col := writeFile(t, "cols.json", `{"x": [1, 2, 3], "y": ["a", "b", "c"]}`)
	f, err := parser.LoadFile(col, parser.Options{})
	if err != nil {
		t.Fatalf("columnar: %v", err)
	}
	if f.NumRows() != 3 || strings.Join(f.Header, ",") != "x,y" || f.Rows[2][1] != "c" {
		t.Fatalf("columnar frame = %v %v", f.Header, f.Rows)
	}

	nested := writeFile(t, "nested.json", `{"meta": {"source": "api"}, "data": [{"id": 1}, {"id": 2}]}`)
	f, err = parser.LoadFile(nested, parser.Options{})
	if err != nil {
		t.Fatalf("nested: %v", err)
	}
	if f.NumRows() != 2 || f.Header[0] != "id" {
		t.Fatalf("nested frame = %v %v", f.Header, f.Rows)
	}

	deep := writeFile(t, "deep.json", `{"payload": {"items": [{"v": 10}, {"v": 20}, {"v": 30}]}}`)
	f, err = parser.LoadFile(deep, parser.Options{JSONPath: "$.payload.items"})
	if err != nil {
		t.Fatalf("jsonpath: %v", err)
	}
	if f.NumRows() != 3 || f.Rows[2][0] != "30" {
		t.Fatalf("jsonpath frame = %v", f.Rows)
	}
	if _, err := parser.LoadFile(deep, parser.Options{JSONPath: "$.missing"}); err == nil {
		t.Fatalf("expected error for unknown path")
	}
}

func TestLoadXLSXSheetSelection(t *testing.T) {
	wb := excelize.NewFile()
	defer wb.Close()
	if err := wb.SetSheetRow("Sheet1", "A1", &[]any{"ignored"}); err != nil {
		t.Fatalf("set row: %v", err)
	}
	if _, err := wb.NewSheet("Data"); err != nil {
		t.Fatalf("new sheet: %v", err)
	}
	_ = wb.SetSheetRow("Data", "A2", &[]any{"Film", "Gross"})
	_ = wb.SetSheetRow("Data", "A3", &[]any{"Avatar", 2923706026})
	_ = wb.SetSheetRow("Data", "A4", &[]any{"Titanic", 2257844554})
	p := filepath.Join(t.TempDir(), "films.xlsx")
	if err := wb.SaveAs(p); err != nil {
		t.Fatalf("save: %v", err)
	}

	f, err := parser.LoadFile(p, parser.Options{Sheet: "data"})
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if strings.Join(f.Header, ",") != "Film,Gross" || f.NumRows() != 2 {
		t.Fatalf("frame = %v %v", f.Header, f.Rows)
	}
	if f.Rows[1][0] != "Titanic" {
		t.Fatalf("rows = %v", f.Rows)
	}

	f, err = parser.LoadFile(p, parser.Options{SheetIndex: 2})
	if err != nil || f.Header[0] != "Film" {
		t.Fatalf("sheet index: %v %v", f, err)
	}
	if _, err := parser.LoadFile(p, parser.Options{Sheet: "nope"}); err == nil {
		t.Fatalf("expected missing sheet error")
	}
}

type filmRow struct {
	Rank  int64   `parquet:"rank"`
	Title string  `parquet:"title"`
	Gross float64 `parquet:"gross"`
}

func TestLoadParquet(t *testing.T) {
	p := filepath.Join(t.TempDir(), "films.parquet")
	rows := []filmRow{{1, "Avatar", 2923706026}, {2, "Avengers: Endgame", 2797501328}}
	if err := parquet.WriteFile(p, rows); err != nil {
		t.Fatalf("write parquet: %v", err)
	}
	f, err := parser.LoadFile(p, parser.Options{})
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	header := append([]string(nil), f.Header...)
	sort.Strings(header)
	if strings.Join(header, ",") != "gross,rank,title" || f.NumRows() != 2 {
		t.Fatalf("frame = %v %v", f.Header, f.Rows)
	}
	titles, _ := f.Column("title")
	if titles[1] != "Avengers: Endgame" {
		t.Fatalf("titles = %v", titles)
	}
	ranks, _ := f.Floats("rank")
	if len(ranks) != 2 || ranks[0] != 1 {
		t.Fatalf("ranks = %v", ranks)
	}
}

func TestUnsupportedFormat(t *testing.T) {
	p := writeFile(t, "image.png", "x")
	if parser.Supported(p) {
		t.Fatalf("png should not be tabular")
	}
	if _, err := parser.LoadFile(p, parser.Options{}); !errors.Is(err, parser.ErrUnsupported) {
		t.Fatalf("expected ErrUnsupported, got %v", err)
	}
}

func TestReadTextFormats(t *testing.T) {
	txt := writeFile(t, "notes.txt", "hello\r\n\r\n\r\n\r\nworld\n")
	out, err := parser.ReadText(txt)
	if err != nil || out != "hello\n\nworld" {
		t.Fatalf("txt = %q err=%v", out, err)
	}

	md := writeFile(t, "a.md", "# Title\n\nBody here\n")
	out, err = parser.ReadText(md)
	if err != nil || !strings.HasPrefix(out, "# Title") {
		t.Fatalf("md = %q err=%v", out, err)
	}

	docx := filepath.Join(t.TempDir(), "brief.docx")
	fh, err := os.Create(docx)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	zw := zip.NewWriter(fh)
	w, _ := zw.Create("word/document.xml")
	_, _ = w.Write([]byte(`<w:document><w:body><w:p><w:r><w:t>Sales &amp; returns</w:t></w:r></w:p><w:p><w:r><w:t>Q3</w:t></w:r></w:p></w:body></w:document>`))
	_ = zw.Close()
	_ = fh.Close()
	out, err = parser.ReadText(docx)
	if err != nil || out != "Sales & returns\nQ3" {
		t.Fatalf("docx = %q err=%v", out, err)
	}
	if !parser.IsText(docx) || parser.IsText("data.csv") {
		t.Fatalf("IsText mismatch")
	}
}
