// Package chart renders question-driven plots as PNG data URIs.
package chart

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image/color"
	"math"
	"sort"
	"strings"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/KaramelBytes/dataloom-agent/internal/analysis"
	"github.com/KaramelBytes/dataloom-agent/internal/logger"
)

// Kind is the chart type requested by a question.
type Kind string

const (
	Scatter   Kind = "scatter"
	Bar       Kind = "bar"
	Histogram Kind = "histogram"
	Line      Kind = "line"
)

const (
	dataURIPrefix = "data:image/png;base64,"
	// BlankPNG is a 1x1 transparent image used when even the error image fails.
	BlankPNG = dataURIPrefix + "iVBORw0KGgoAAAANSUhEUgAAAAEAAAABCAYAAAAfFcSJAAAADUlEQVR42mP8/5+hHgAHggJ/PchI7wAAAABJRU5ErkJggg=="
	// DefaultMaxBytes bounds the data URI length.
	DefaultMaxBytes = 100000
)

// ErrNotEnoughColumns is returned when the frame lacks the columns a chart needs.
var ErrNotEnoughColumns = errors.New("not enough suitable columns")

// Options controls rendering.
type Options struct {
	// MaxBytes bounds the data URI length; 0 means DefaultMaxBytes.
	MaxBytes int
}

// sizes are tried in order until the encoded image fits.
var sizes = [][2]vg.Length{
	{10 * vg.Inch, 6 * vg.Inch},
	{8 * vg.Inch, 4.8 * vg.Inch},
	{6 * vg.Inch, 3.6 * vg.Inch},
	{4 * vg.Inch, 2.4 * vg.Inch},
}

var (
	blue = color.RGBA{R: 31, G: 119, B: 180, A: 255}
	red  = color.RGBA{R: 214, G: 39, B: 40, A: 255}
	grey = color.RGBA{R: 60, G: 60, B: 60, A: 255}
)

// KindFor maps question wording to a chart type; scatter is the default.
func KindFor(question string) Kind {
	q := strings.ToLower(question)
	switch {
	case strings.Contains(q, "scatterplot") || strings.Contains(q, "scatter plot"):
		return Scatter
	case strings.Contains(q, "bar chart") || strings.Contains(q, "bar plot"):
		return Bar
	case strings.Contains(q, "histogram"):
		return Histogram
	case strings.Contains(q, "line plot") || strings.Contains(q, "line chart"):
		return Line
	}
	return Scatter
}

// Render draws the chart the question asks for from f.
func Render(question string, f *analysis.Frame, opt Options) (string, error) {
	if f == nil || f.NumRows() == 0 {
		return "", fmt.Errorf("no data to plot: %w", ErrNotEnoughColumns)
	}
	var (
		p   *plot.Plot
		err error
	)
	switch KindFor(question) {
	case Bar:
		p, err = barChart(f)
	case Histogram:
		p, err = histogram(f)
	case Line:
		p, err = linePlot(f)
	default:
		p, err = scatterPlot(question, f)
	}
	if err != nil {
		return "", err
	}
	return encode(p, opt.MaxBytes)
}

func scatterPlot(question string, f *analysis.Frame) (*plot.Plot, error) {
	numeric := analysis.NumericColumns(f)
	xCol, yCol := pickXY(question, numeric)
	if xCol == "" || yCol == "" {
		return nil, fmt.Errorf("scatterplot needs two numeric columns: %w", ErrNotEnoughColumns)
	}
	xs, ys, err := f.Pairs(xCol, yCol)
	if err != nil {
		return nil, err
	}
	if len(xs) == 0 {
		return nil, fmt.Errorf("no rows with both %s and %s: %w", xCol, yCol, ErrNotEnoughColumns)
	}

	p := newPlot(fmt.Sprintf("%s vs %s", yCol, xCol), xCol, yCol)
	pts := toXYs(xs, ys)
	s, err := plotter.NewScatter(pts)
	if err != nil {
		return nil, fmt.Errorf("scatter: %w", err)
	}
	s.GlyphStyle.Color = color.RGBA{R: 31, G: 119, B: 180, A: 160}
	s.GlyphStyle.Radius = vg.Points(3)
	p.Add(s)

	q := strings.ToLower(question)
	if strings.Contains(q, "regression") || strings.Contains(q, "dotted") {
		reg, err := analysis.LinearRegression(xs, ys)
		if err != nil {
			logger.L().Warn("chart.regression_skipped", "x", xCol, "y", yCol, "error", err)
			return p, nil
		}
		lo, hi := minMax(xs)
		line, err := plotter.NewLine(plotter.XYs{
			{X: lo, Y: reg.Intercept + reg.Slope*lo},
			{X: hi, Y: reg.Intercept + reg.Slope*hi},
		})
		if err != nil {
			return nil, fmt.Errorf("regression line: %w", err)
		}
		line.LineStyle.Width = vg.Points(2)
		line.LineStyle.Color = blue
		if strings.Contains(q, "red") {
			line.LineStyle.Color = red
		}
		if strings.Contains(q, "dotted") {
			line.LineStyle.Dashes = []vg.Length{vg.Points(2), vg.Points(3)}
		}
		p.Add(line)
		p.Legend.Add(fmt.Sprintf("Regression (R² = %.3f)", reg.RValue*reg.RValue), line)
		p.Legend.Top = true
	}
	return p, nil
}

// pickXY chooses the scatter axes: a rank-like column goes on x and a
// peak-like column on y when the question names the axes; otherwise columns
// are taken in the order the question mentions them, then in frame order.
func pickXY(question string, numeric []string) (x, y string) {
	q := strings.ToLower(question)
	mentioned := analysis.MentionedColumns(q, numeric)
	axes := strings.Contains(q, "x-axis") || strings.Contains(q, "y-axis") || strings.Contains(q, " x ") || strings.Contains(q, " y ")
	for _, c := range mentioned {
		lc := strings.ToLower(c)
		switch {
		case axes && x == "" && strings.Contains(lc, "rank"):
			x = c
		case axes && y == "" && strings.Contains(lc, "peak"):
			y = c
		}
	}
	for _, pool := range [][]string{mentioned, numeric} {
		for _, c := range pool {
			if c == x || c == y {
				continue
			}
			if x == "" {
				x = c
			} else if y == "" {
				y = c
			}
		}
	}
	return x, y
}

func barChart(f *analysis.Frame) (*plot.Plot, error) {
	cats := analysis.CategoricalColumns(f)
	nums := analysis.NumericColumns(f)
	if len(cats) == 0 || len(nums) == 0 {
		return nil, fmt.Errorf("bar chart needs a categorical and a numeric column: %w", ErrNotEnoughColumns)
	}
	xCol, yCol := cats[0], nums[0]
	ci, ni := f.ColumnIndex(xCol), f.ColumnIndex(yCol)
	sums := map[string]float64{}
	counts := map[string]int{}
	for _, r := range f.Rows {
		v, ok := analysis.ParseNumber(r[ni])
		if !ok || strings.TrimSpace(r[ci]) == "" {
			continue
		}
		sums[r[ci]] += v
		counts[r[ci]]++
	}
	type group struct {
		name string
		mean float64
	}
	groups := make([]group, 0, len(sums))
	for k, s := range sums {
		groups = append(groups, group{k, s / float64(counts[k])})
	}
	sort.Slice(groups, func(i, j int) bool {
		if groups[i].mean == groups[j].mean {
			return groups[i].name < groups[j].name
		}
		return groups[i].mean > groups[j].mean
	})
	if len(groups) > 20 {
		groups = groups[:20]
	}
	vals := make(plotter.Values, len(groups))
	names := make([]string, len(groups))
	for i, g := range groups {
		vals[i] = g.mean
		names[i] = g.name
	}

	p := newPlot(fmt.Sprintf("Average %s by %s", yCol, xCol), xCol, "Average "+yCol)
	bars, err := plotter.NewBarChart(vals, vg.Points(18))
	if err != nil {
		return nil, fmt.Errorf("bar chart: %w", err)
	}
	bars.Color = blue
	bars.LineStyle.Width = 0
	p.Add(bars)
	p.NominalX(names...)
	return p, nil
}

func histogram(f *analysis.Frame) (*plot.Plot, error) {
	nums := analysis.NumericColumns(f)
	if len(nums) == 0 {
		return nil, fmt.Errorf("histogram needs a numeric column: %w", ErrNotEnoughColumns)
	}
	col := nums[0]
	vals, err := f.Floats(col)
	if err != nil {
		return nil, err
	}
	if len(vals) == 0 {
		return nil, fmt.Errorf("column %s has no numeric values: %w", col, ErrNotEnoughColumns)
	}
	p := newPlot("Distribution of "+col, col, "Frequency")
	h, err := plotter.NewHist(plotter.Values(vals), 30)
	if err != nil {
		return nil, fmt.Errorf("histogram: %w", err)
	}
	h.FillColor = blue
	h.LineStyle.Color = grey
	p.Add(h)
	return p, nil
}

func linePlot(f *analysis.Frame) (*plot.Plot, error) {
	nums := analysis.NumericColumns(f)
	if len(nums) < 2 {
		return nil, fmt.Errorf("line plot needs two numeric columns: %w", ErrNotEnoughColumns)
	}
	xCol, yCol := nums[0], nums[1]
	xs, ys, err := f.Pairs(xCol, yCol)
	if err != nil {
		return nil, err
	}
	pts := toXYs(xs, ys)
	sort.Slice(pts, func(i, j int) bool { return pts[i].X < pts[j].X })
	p := newPlot(fmt.Sprintf("%s vs %s", yCol, xCol), xCol, yCol)
	line, points, err := plotter.NewLinePoints(pts)
	if err != nil {
		return nil, fmt.Errorf("line plot: %w", err)
	}
	line.LineStyle.Color = blue
	points.GlyphStyle.Color = blue
	points.GlyphStyle.Radius = vg.Points(2)
	p.Add(line, points)
	return p, nil
}

func newPlot(title, xLabel, yLabel string) *plot.Plot {
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = xLabel
	p.Y.Label.Text = yLabel
	grid := plotter.NewGrid()
	grid.Vertical.Color = color.Gray{Y: 220}
	grid.Horizontal.Color = color.Gray{Y: 220}
	p.Add(grid)
	return p
}

// encode renders p as PNG, shrinking the canvas until the data URI fits
// maxBytes. The smallest rendering is returned even if it is still too big.
func encode(p *plot.Plot, maxBytes int) (string, error) {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	var uri string
	for _, sz := range sizes {
		wt, err := p.WriterTo(sz[0], sz[1], "png")
		if err != nil {
			return "", fmt.Errorf("render png: %w", err)
		}
		var buf bytes.Buffer
		if _, err := wt.WriteTo(&buf); err != nil {
			return "", fmt.Errorf("encode png: %w", err)
		}
		uri = dataURIPrefix + base64.StdEncoding.EncodeToString(buf.Bytes())
		if len(uri) <= maxBytes {
			return uri, nil
		}
	}
	logger.L().Warn("chart.oversize", "bytes", len(uri), "limit", maxBytes)
	return uri, nil
}

// ErrorImage renders a small image carrying msg, falling back to BlankPNG.
func ErrorImage(msg string) string {
	p := plot.New()
	p.Title.Text = "Error creating plot:\n" + wrap(msg, 60)
	p.HideAxes()
	wt, err := p.WriterTo(6*vg.Inch, 3*vg.Inch, "png")
	if err != nil {
		return BlankPNG
	}
	var buf bytes.Buffer
	if _, err := wt.WriteTo(&buf); err != nil {
		return BlankPNG
	}
	return dataURIPrefix + base64.StdEncoding.EncodeToString(buf.Bytes())
}

func wrap(s string, width int) string {
	words := strings.Fields(s)
	var b strings.Builder
	n := 0
	for _, w := range words {
		if n > 0 && n+len(w) > width {
			b.WriteString("\n")
			n = 0
		} else if n > 0 {
			b.WriteString(" ")
			n++
		}
		b.WriteString(w)
		n += len(w)
	}
	return b.String()
}

func toXYs(xs, ys []float64) plotter.XYs {
	pts := make(plotter.XYs, 0, len(xs))
	for i := range xs {
		if math.IsNaN(xs[i]) || math.IsInf(xs[i], 0) || math.IsNaN(ys[i]) || math.IsInf(ys[i], 0) {
			continue
		}
		pts = append(pts, plotter.XY{X: xs[i], Y: ys[i]})
	}
	return pts
}

func minMax(xs []float64) (lo, hi float64) {
	lo, hi = math.Inf(1), math.Inf(-1)
	for _, x := range xs {
		lo = math.Min(lo, x)
		hi = math.Max(hi, x)
	}
	return lo, hi
}
