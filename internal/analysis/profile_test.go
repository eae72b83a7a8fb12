package analysis

import (
	"math"
	"strings"
	"testing"
)

var csvRows = []string{
	"Group;Concentration (g/L);Temp (°F);Score;LocaleNumber;Category;Note",
	"A;0,5;70;10,0;1.000,0;alpha;first",
	"A;0,6;71;11,0;1.100,0;alpha;second",
	"A;0,55;69;9,5;0.900,0;beta;third",
	"B;0,7;75;10,5;1.050,0;alpha;fourth",
	"B;0,65;74;9,8;0.980,0;beta;fifth",
	"B;0,68;73;10,2;1.020,0;alpha;sixth",
	"A;0,52;68;8,8;0.880,0;gamma;seventh",
	"B;0,75;76;9,7;0.970,0;beta;eighth",
	"A;3,0;95;50,0;5.000,0;alpha;ninth",
	"B;0,66;72;10,1;1.010,0;gamma;tenth",
}

func fixtureFrame(t *testing.T) *Frame {
	t.Helper()
	header := strings.Split(csvRows[0], ";")
	var rows [][]string
	for _, line := range csvRows[1:] {
		rows = append(rows, strings.Split(line, ";"))
	}
	return NewFrame("metrics.csv", header, rows)
}

func column(t *testing.T, rep *Report, name string) ColumnSummary {
	t.Helper()
	for _, c := range rep.Cols {
		if c.Name == name {
			return c
		}
	}
	t.Fatalf("column %q missing from report", name)
	return ColumnSummary{}
}

func almostEqual(a, b float64) bool { return math.Abs(a-b) < 1e-6 }

func TestProfileKindsUnitsAndOutliers(t *testing.T) {
	opt := DefaultOptions()
	opt.SampleRows = 3
	rep := Profile(fixtureFrame(t), opt)

	if rep.Rows != 10 || rep.Processed != 10 {
		t.Fatalf("rows=%d processed=%d", rep.Rows, rep.Processed)
	}
	if len(rep.Samples) != 3 {
		t.Fatalf("expected 3 samples, got %d", len(rep.Samples))
	}

	conc := column(t, rep, "Concentration")
	if conc.Kind != KindNumeric || conc.Unit != "mg/L" {
		t.Fatalf("concentration: %+v", conc)
	}
	if !almostEqual(conc.Min, 500) || !almostEqual(conc.Max, 3000) {
		t.Fatalf("concentration not normalized to mg/L: min=%v max=%v", conc.Min, conc.Max)
	}

	temp := column(t, rep, "Temp")
	if temp.Unit != "°C" || !almostEqual(temp.Max, 35) {
		t.Fatalf("temperature not converted: %+v", temp)
	}

	locale := column(t, rep, "LocaleNumber")
	if !almostEqual(locale.Max, 5000) || !almostEqual(locale.Min, 880) {
		t.Fatalf("european numbers misparsed: %+v", locale)
	}

	score := column(t, rep, "Score")
	if score.OutliersCount != 1 || score.OutlierThreshold != 3.5 {
		t.Fatalf("expected one outlier in Score, got %+v", score)
	}

	if k := column(t, rep, "Group").Kind; k != KindCategorical {
		t.Fatalf("Group kind = %s", k)
	}
	if k := column(t, rep, "Note").Kind; k != KindText {
		t.Fatalf("Note kind = %s", k)
	}
	if rep.Corr == nil || len(rep.Corr.Columns) != 4 {
		t.Fatalf("expected 4x4 correlation matrix, got %+v", rep.Corr)
	}
}

func TestProfileMaxRowsAndMarkdown(t *testing.T) {
	opt := DefaultOptions()
	opt.MaxRows = 9
	rep := Profile(fixtureFrame(t), opt)
	md := rep.Markdown()
	for _, want := range []string{
		"[DATASET SUMMARY]",
		"File: metrics.csv",
		"Rows: ~10 (processed 9)",
		"Concentration [mg/L]: numeric",
		"outliers: 1 above |z|>3.5",
		"[CORRELATIONS]",
		"[HEAD AND SAMPLE ROWS]",
		"processed only 9/10 rows",
	} {
		if !strings.Contains(md, want) {
			t.Fatalf("markdown missing %q:\n%s", want, md)
		}
	}
}

func TestProfileEmptyFrame(t *testing.T) {
	rep := Profile(&Frame{Name: "empty.csv"}, DefaultOptions())
	if len(rep.Cols) != 0 {
		t.Fatalf("expected no columns")
	}
	if !strings.Contains(rep.Markdown(), "Columns: 0") {
		t.Fatalf("unexpected markdown: %s", rep.Markdown())
	}
}

func TestNumericAndCategoricalColumns(t *testing.T) {
	f := fixtureFrame(t)
	num := NumericColumns(f)
	if strings.Join(num, ",") != "Concentration (g/L),Temp (°F),Score,LocaleNumber" {
		t.Fatalf("numeric columns = %v", num)
	}
	cat := CategoricalColumns(f)
	if strings.Join(cat, ",") != "Group,Category" {
		t.Fatalf("categorical columns = %v", cat)
	}
}

func TestParseNumber(t *testing.T) {
	cases := []struct {
		in   string
		want float64
		ok   bool
	}{
		{"42", 42, true},
		{"1,234", 1234, true},
		{"$2,923,706,026", 2923706026, true},
		{"1.234,5", 1234.5, true},
		{"1,234.5", 1234.5, true},
		{"0,5", 0.5, true},
		{"12%", 12, true},
		{"€ 3.50", 3.5, true},
		{"1.000.000", 1000000, true},
		{"−7", -7, true},
		{"2.5e3", 2500, true},
		{"NaN", 0, false},
		{"abc", 0, false},
		{"", 0, false},
		{"2024-01-02", 0, false},
		{"01.02.2020", 0, false},
		{"192.168.1.1", 0, false},
		{"1.2.3", 0, false},
		{"1,23,456", 0, false},
		{"1 234,5", 1234.5, true},
		{"1'234.5", 1234.5, true},
		{"$1.5 billion", 1.5e9, true},
		{"250 million", 250e6, true},
		{"$2.8bn", 2.8e9, true},
		{"3.5M", 3.5e6, true},
		{"5 km", 0, false},
	}
	for _, tc := range cases {
		got, ok := ParseNumber(tc.in)
		if ok != tc.ok || (ok && !almostEqual(got, tc.want)) {
			t.Errorf("ParseNumber(%q) = %v,%v want %v,%v", tc.in, got, ok, tc.want, tc.ok)
		}
	}
}

func TestKindOfDottedDatesAndScaledAmounts(t *testing.T) {
	f := NewFrame("films.csv", []string{"when", "gross"}, [][]string{
		{"01.02.2020", "$2.9 billion"},
		{"15.03.2021", "$2.7 billion"},
		{"30.11.2019", "$850 million"},
	})
	kinds := KindOf(f)
	if kinds["when"] != KindDatetime {
		t.Fatalf("when: %s", kinds["when"])
	}
	if kinds["gross"] != KindNumeric {
		t.Fatalf("gross: %s", kinds["gross"])
	}
	xs, err := f.Floats("gross")
	if err != nil || len(xs) != 3 || !almostEqual(xs[2], 850e6) {
		t.Fatalf("gross values: %v %v", xs, err)
	}
}

func TestSplitUnits(t *testing.T) {
	cases := map[string][2]string{
		"Alpha (%)":       {"Alpha", "%"},
		"Mass [mg/L]":     {"Mass", "mg/L"},
		"temp_°F":         {"temp", "°F"},
		"Worldwide gross": {"Worldwide gross", ""},
	}
	for in, want := range cases {
		c, u := SplitUnits(in)
		if c != want[0] || u != want[1] {
			t.Errorf("SplitUnits(%q) = %q,%q", in, c, u)
		}
	}
}
