package analysis

import (
	"fmt"
	"strings"
)

// Frame is the in-memory table every pipeline step works on. Cells are kept
// as strings; numeric interpretation happens on demand.
type Frame struct {
	Name   string
	Header []string
	Rows   [][]string
	// Truncated is set when the loader stopped at its row limit.
	Truncated bool
}

// NewFrame builds a frame and pads or trims rows to the header width.
func NewFrame(name string, header []string, rows [][]string) *Frame {
	f := &Frame{Name: name, Header: header}
	for _, r := range rows {
		f.AppendRow(r)
	}
	return f
}

// AppendRow adds a row normalized to the header width.
func (f *Frame) AppendRow(rec []string) {
	n := len(f.Header)
	row := make([]string, n)
	copy(row, rec)
	f.Rows = append(f.Rows, row)
}

func (f *Frame) NumRows() int {
	if f == nil {
		return 0
	}
	return len(f.Rows)
}

func (f *Frame) NumCols() int {
	if f == nil {
		return 0
	}
	return len(f.Header)
}

// ColumnIndex finds a column by name, ignoring case and surrounding spaces.
// Returns -1 when absent.
func (f *Frame) ColumnIndex(name string) int {
	want := strings.ToLower(strings.TrimSpace(name))
	for i, h := range f.Header {
		if strings.ToLower(strings.TrimSpace(h)) == want {
			return i
		}
	}
	return -1
}

// Column returns the raw cells of the named column.
func (f *Frame) Column(name string) ([]string, error) {
	idx := f.ColumnIndex(name)
	if idx < 0 {
		return nil, fmt.Errorf("column %q not found in %s", name, f.Name)
	}
	out := make([]string, len(f.Rows))
	for i, r := range f.Rows {
		out[i] = r[idx]
	}
	return out, nil
}

// Floats returns the parsable numeric values of a column. Missing and
// unparsable cells are skipped.
func (f *Frame) Floats(name string) ([]float64, error) {
	cells, err := f.Column(name)
	if err != nil {
		return nil, err
	}
	out := make([]float64, 0, len(cells))
	for _, c := range cells {
		if x, ok := ParseNumber(c); ok {
			out = append(out, x)
		}
	}
	return out, nil
}

// Pairs returns aligned values of two columns, keeping only rows where both
// cells parse as numbers.
func (f *Frame) Pairs(a, b string) (xs, ys []float64, err error) {
	ia, ib := f.ColumnIndex(a), f.ColumnIndex(b)
	if ia < 0 {
		return nil, nil, fmt.Errorf("column %q not found in %s", a, f.Name)
	}
	if ib < 0 {
		return nil, nil, fmt.Errorf("column %q not found in %s", b, f.Name)
	}
	for _, r := range f.Rows {
		x, okx := ParseNumber(r[ia])
		y, oky := ParseNumber(r[ib])
		if okx && oky {
			xs = append(xs, x)
			ys = append(ys, y)
		}
	}
	return xs, ys, nil
}

// Head returns a frame sharing the first n rows.
func (f *Frame) Head(n int) *Frame {
	if n > len(f.Rows) {
		n = len(f.Rows)
	}
	if n < 0 {
		n = 0
	}
	return &Frame{Name: f.Name, Header: f.Header, Rows: f.Rows[:n], Truncated: f.Truncated}
}
