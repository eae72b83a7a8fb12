package analysis

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Column kinds reported by Profile.
const (
	KindNumeric     = "numeric"
	KindDatetime    = "datetime"
	KindCategorical = "categorical"
	KindText        = "text"
	KindUnknown     = "unknown"
)

// Options controls profiling of a frame.
type Options struct {
	// MaxRows limits rows processed; 0 means unlimited.
	MaxRows int
	// SampleRows determines how many example rows to include in the report.
	SampleRows int
	// Numeric parsing locale. If DecimalSeparator is 0, auto-detect per value.
	DecimalSeparator   rune
	ThousandsSeparator rune
	// Correlations computes Pearson correlations among numeric columns.
	Correlations bool
	// Outlier detection via robust Z-score (MAD).
	Outliers         bool
	OutlierThreshold float64
	// Unit normalization: map[fromUnit]toUnit, e.g. {"g/L":"mg/L"}.
	UnitNormalize bool
	UnitTargets   map[string]string
}

// DefaultOptions returns the options used for prompt summaries.
func DefaultOptions() Options {
	return Options{
		MaxRows:          100000,
		SampleRows:       5,
		Correlations:     true,
		Outliers:         true,
		OutlierThreshold: 3.5,
		UnitNormalize:    true,
		UnitTargets: map[string]string{
			"g/L":  "mg/L",
			"ug/L": "mg/L",
			"°F":   "°C",
		},
	}
}

// Report is a markdown-friendly profile of a frame.
type Report struct {
	Name      string
	Rows      int
	Processed int
	Cols      []ColumnSummary
	Samples   [][]string
	Warnings  []string
	Corr      *CorrMatrix
}

// ColumnSummary captures inferred type and statistics per column.
type ColumnSummary struct {
	Name    string
	Header  string
	Kind    string
	Unit    string
	NonNull int
	Missing int
	Unique  int
	// Numeric stats
	Min  float64
	Max  float64
	Mean float64
	Std  float64
	// Outliers (robust Z via MAD)
	OutliersCount    int
	OutliersMaxAbsZ  float64
	OutlierThreshold float64
	// Categorical top values
	TopValues    []CategoryCount
	ExampleTexts []string
}

type CategoryCount struct {
	Value string
	Count int
}

// CorrMatrix holds a symmetric Pearson correlation matrix across numeric columns.
type CorrMatrix struct {
	Columns []string
	Values  [][]float64
}

type colAcc struct {
	name, header   string
	unit, origUnit string
	nonNull, miss  int
	numCnt, dtCnt  int
	txtCnt         int
	vals           []float64 // one slot per processed row, NaN when not numeric
	cats           map[string]int
	exText         []string
}

// Profile infers column kinds and summary statistics for f.
func Profile(f *Frame, opt Options) *Report {
	rep := &Report{Name: f.Name, Rows: f.NumRows()}
	ncol := f.NumCols()
	if ncol == 0 {
		return rep
	}
	maxRows := opt.MaxRows
	if maxRows <= 0 || maxRows > len(f.Rows) {
		maxRows = len(f.Rows)
	}
	sampleRows := opt.SampleRows
	if sampleRows <= 0 {
		sampleRows = 5
	}

	cols := make([]*colAcc, ncol)
	for i, h := range f.Header {
		clean, unit := SplitUnits(h)
		cols[i] = &colAcc{name: clean, header: h, unit: unit, origUnit: unit, cats: map[string]int{}, vals: make([]float64, 0, maxRows)}
	}

	for _, rec := range f.Rows[:maxRows] {
		rep.Processed++
		if len(rep.Samples) < sampleRows {
			rep.Samples = append(rep.Samples, rec)
		}
		for j, c := range cols {
			v := strings.TrimSpace(rec[j])
			if v == "" {
				c.miss++
				c.vals = append(c.vals, math.NaN())
				continue
			}
			c.nonNull++
			if strings.Contains(v, "%") && c.origUnit == "" {
				c.unit, c.origUnit = "%", "%"
			}
			if x, ok := parseNumeric(v, opt.DecimalSeparator, opt.ThousandsSeparator); ok {
				if opt.UnitNormalize && c.origUnit != "" {
					if nx, nu, ok := normalizeUnit(x, c.origUnit, opt.UnitTargets); ok {
						x = nx
						c.unit = nu
					}
				}
				c.numCnt++
				c.vals = append(c.vals, x)
				continue
			}
			c.vals = append(c.vals, math.NaN())
			if _, ok := parseTimeMaybe(v); ok {
				c.dtCnt++
				continue
			}
			c.txtCnt++
			if len(c.cats) <= 10000 && len(v) <= 64 {
				c.cats[v]++
			}
			if len(c.exText) < 3 {
				c.exText = append(c.exText, v)
			}
		}
	}

	var numIdx []int
	for idx, c := range cols {
		s := ColumnSummary{Name: c.name, Header: c.header, Unit: c.unit, NonNull: c.nonNull, Missing: c.miss, Kind: KindUnknown}
		switch {
		case c.numCnt > 0 && c.numCnt >= c.dtCnt && c.numCnt >= c.txtCnt:
			s.Kind = KindNumeric
			summarizeNumeric(&s, finite(c.vals), opt)
			numIdx = append(numIdx, idx)
		case c.dtCnt > 0 && c.dtCnt >= c.txtCnt:
			s.Kind = KindDatetime
		case len(c.cats) > 0 && len(c.cats) < c.txtCnt && (len(c.cats) <= 20 || 2*len(c.cats) <= c.txtCnt):
			s.Kind = KindCategorical
			s.TopValues = topValues(c.cats, 8)
			s.Unique = len(c.cats)
		case c.txtCnt > 0:
			s.Kind = KindText
			s.Unique = len(c.cats)
			s.ExampleTexts = c.exText
		}
		rep.Cols = append(rep.Cols, s)
	}

	if rep.Processed < rep.Rows {
		rep.Warnings = append(rep.Warnings, fmt.Sprintf("processed only %d/%d rows due to MaxRows", rep.Processed, rep.Rows))
	}
	if f.Truncated {
		rep.Warnings = append(rep.Warnings, "source file was truncated at the loader row limit")
	}

	if opt.Correlations && len(numIdx) >= 2 {
		rep.Corr = correlationMatrix(cols, numIdx)
	}
	return rep
}

func summarizeNumeric(s *ColumnSummary, vals []float64, opt Options) {
	if len(vals) == 0 {
		return
	}
	s.Min = floats.Min(vals)
	s.Max = floats.Max(vals)
	if len(vals) > 1 {
		s.Mean, s.Std = stat.MeanStdDev(vals, nil)
	} else {
		s.Mean = vals[0]
	}
	uniq := map[float64]struct{}{}
	for _, v := range vals {
		uniq[v] = struct{}{}
	}
	s.Unique = len(uniq)
	if !opt.Outliers || len(vals) < 8 {
		return
	}
	thr := opt.OutlierThreshold
	if thr <= 0 {
		thr = 3.5
	}
	s.OutlierThreshold = thr
	median, mad := medianMAD(vals)
	if mad == 0 {
		return
	}
	for _, v := range vals {
		az := math.Abs(0.6745 * (v - median) / mad)
		if az > thr {
			s.OutliersCount++
		}
		if az > s.OutliersMaxAbsZ {
			s.OutliersMaxAbsZ = az
		}
	}
}

// correlationMatrix computes pairwise-complete Pearson r between numeric columns.
func correlationMatrix(cols []*colAcc, numIdx []int) *CorrMatrix {
	n := len(numIdx)
	m := &CorrMatrix{Columns: make([]string, n), Values: make([][]float64, n)}
	for a, ia := range numIdx {
		m.Columns[a] = cols[ia].name
		m.Values[a] = make([]float64, n)
	}
	for a := 0; a < n; a++ {
		m.Values[a][a] = 1
		for b := a + 1; b < n; b++ {
			xs, ys := complete(cols[numIdx[a]].vals, cols[numIdx[b]].vals)
			r, err := Correlation(xs, ys)
			if err != nil {
				r = 0
			}
			m.Values[a][b], m.Values[b][a] = r, r
		}
	}
	return m
}

func complete(a, b []float64) (xs, ys []float64) {
	for i := range a {
		if i < len(b) && !math.IsNaN(a[i]) && !math.IsNaN(b[i]) {
			xs = append(xs, a[i])
			ys = append(ys, b[i])
		}
	}
	return xs, ys
}

func finite(vals []float64) []float64 {
	out := make([]float64, 0, len(vals))
	for _, v := range vals {
		if !math.IsNaN(v) {
			out = append(out, v)
		}
	}
	return out
}

func topValues(cats map[string]int, limit int) []CategoryCount {
	tops := make([]CategoryCount, 0, len(cats))
	for k, v := range cats {
		tops = append(tops, CategoryCount{Value: k, Count: v})
	}
	sort.Slice(tops, func(i, j int) bool {
		if tops[i].Count == tops[j].Count {
			return tops[i].Value < tops[j].Value
		}
		return tops[i].Count > tops[j].Count
	})
	if len(tops) > limit {
		tops = tops[:limit]
	}
	return tops
}

// medianMAD computes median and MAD (median absolute deviation) of values.
func medianMAD(vals []float64) (median, mad float64) {
	cp := append([]float64(nil), vals...)
	sort.Float64s(cp)
	median = stat.Quantile(0.5, stat.LinInterp, cp, nil)
	dev := make([]float64, len(cp))
	for i, v := range cp {
		dev[i] = math.Abs(v - median)
	}
	sort.Float64s(dev)
	mad = stat.Quantile(0.5, stat.LinInterp, dev, nil)
	return median, mad
}

// KindOf returns the profiled kind of each column keyed by header.
func KindOf(f *Frame) map[string]string {
	rep := Profile(f, Options{SampleRows: 1})
	out := make(map[string]string, len(rep.Cols))
	for _, c := range rep.Cols {
		out[c.Header] = c.Kind
	}
	return out
}

// NumericColumns lists headers whose values are predominantly numeric.
func NumericColumns(f *Frame) []string { return columnsOfKind(f, KindNumeric) }

// CategoricalColumns lists headers with a small set of repeated text values.
func CategoricalColumns(f *Frame) []string { return columnsOfKind(f, KindCategorical) }

func columnsOfKind(f *Frame, kind string) []string {
	rep := Profile(f, Options{SampleRows: 1})
	var out []string
	for _, c := range rep.Cols {
		if c.Kind == kind {
			out = append(out, c.Header)
		}
	}
	return out
}

// Markdown renders a compact report suitable for prompts.
func (r *Report) Markdown() string {
	var b strings.Builder
	b.WriteString("[DATASET SUMMARY]\n")
	if r.Name != "" {
		fmt.Fprintf(&b, "File: %s\n", r.Name)
	}
	if r.Processed > 0 && r.Processed < r.Rows {
		fmt.Fprintf(&b, "Rows: ~%d (processed %d)\n", r.Rows, r.Processed)
	} else {
		fmt.Fprintf(&b, "Rows: %d\n", r.Rows)
	}
	fmt.Fprintf(&b, "Columns: %d\n\n", len(r.Cols))

	b.WriteString("[SCHEMA]\n")
	for _, c := range r.Cols {
		total := c.NonNull + c.Missing
		missPct := 0.0
		if total > 0 {
			missPct = float64(c.Missing) * 100.0 / float64(total)
		}
		name := safeName(c.Name)
		if c.Unit != "" {
			name = fmt.Sprintf("%s [%s]", name, c.Unit)
		}
		fmt.Fprintf(&b, "- %s: %s (non-null %d, missing %.1f%%)", name, c.Kind, c.NonNull, missPct)
		switch c.Kind {
		case KindNumeric:
			fmt.Fprintf(&b, "; min %.4g, max %.4g, mean %.4g, std %.4g", c.Min, c.Max, c.Mean, c.Std)
			if c.OutlierThreshold > 0 {
				fmt.Fprintf(&b, "; outliers: %d above |z|>%.1f", c.OutliersCount, c.OutlierThreshold)
			}
		case KindCategorical:
			b.WriteString("; top: ")
			for i, kv := range c.TopValues {
				if i > 0 {
					b.WriteString(", ")
				}
				fmt.Fprintf(&b, "%s(%d)", safeVal(kv.Value), kv.Count)
			}
			if c.Unique > len(c.TopValues) {
				fmt.Fprintf(&b, "; unique=%d", c.Unique)
			}
		case KindText:
			if len(c.ExampleTexts) > 0 {
				b.WriteString("; e.g. ")
				for i, ex := range c.ExampleTexts {
					if i > 0 {
						b.WriteString(" | ")
					}
					b.WriteString(safeVal(truncate(ex, 60)))
				}
			}
		}
		b.WriteString("\n")
	}

	if r.Corr != nil && len(r.Corr.Columns) >= 2 {
		b.WriteString("\n[CORRELATIONS]\n")
		type pr struct {
			A, B string
			R    float64
		}
		var pairs []pr
		n := len(r.Corr.Columns)
		for i := 0; i < n; i++ {
			for j := i + 1; j < n; j++ {
				pairs = append(pairs, pr{A: r.Corr.Columns[i], B: r.Corr.Columns[j], R: r.Corr.Values[i][j]})
			}
		}
		sort.SliceStable(pairs, func(i, j int) bool { return math.Abs(pairs[i].R) > math.Abs(pairs[j].R) })
		if len(pairs) > 10 {
			pairs = pairs[:10]
		}
		for _, p := range pairs {
			fmt.Fprintf(&b, "- %s ~ %s: r=%.3f\n", p.A, p.B, p.R)
		}
	}

	if len(r.Samples) > 0 {
		b.WriteString("\n[HEAD AND SAMPLE ROWS]\n| ")
		for i, c := range r.Cols {
			if i > 0 {
				b.WriteString(" | ")
			}
			b.WriteString(safeName(c.Header))
		}
		b.WriteString(" |\n|")
		b.WriteString(strings.Repeat(" --- |", len(r.Cols)))
		b.WriteString("\n")
		for _, row := range r.Samples {
			b.WriteString("| ")
			for i := range r.Cols {
				if i > 0 {
					b.WriteString(" | ")
				}
				if i < len(row) {
					b.WriteString(safeVal(truncate(row[i], 80)))
				}
			}
			b.WriteString(" |\n")
		}
	}
	if len(r.Warnings) > 0 {
		b.WriteString("\n[NOTES]\n")
		for _, w := range r.Warnings {
			fmt.Fprintf(&b, "- %s\n", w)
		}
	}
	return b.String()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}

func safeName(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "(unnamed)"
	}
	return s
}

func safeVal(s string) string { return strings.ReplaceAll(strings.ReplaceAll(s, "\n", " "), "|", "/") }
