package analysis

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

var (
	// ErrInsufficientData is returned when fewer than two aligned points exist.
	ErrInsufficientData = errors.New("not enough numeric data points")
	// ErrZeroVariance is returned when a series is constant.
	ErrZeroVariance = errors.New("series has zero variance")
)

// Regression is the result of a least-squares fit y = Intercept + Slope*x.
type Regression struct {
	Slope     float64 `json:"slope"`
	Intercept float64 `json:"intercept"`
	RValue    float64 `json:"r_value"`
	PValue    float64 `json:"p_value"`
	StdErr    float64 `json:"std_err"`
	N         int     `json:"n"`
}

// BasicStats is the shape/schema overview of a frame.
type BasicStats struct {
	Shape      [2]int            `json:"shape"`
	Columns    []string          `json:"columns"`
	Kinds      map[string]string `json:"dtypes"`
	NullCounts map[string]int    `json:"null_counts"`
}

func checkSeries(xs, ys []float64) error {
	if len(xs) != len(ys) {
		return fmt.Errorf("length mismatch: %d vs %d", len(xs), len(ys))
	}
	if len(xs) < 2 {
		return ErrInsufficientData
	}
	if stat.Variance(xs, nil) == 0 || stat.Variance(ys, nil) == 0 {
		return ErrZeroVariance
	}
	return nil
}

// Correlation returns the Pearson correlation coefficient of xs and ys.
func Correlation(xs, ys []float64) (float64, error) {
	if err := checkSeries(xs, ys); err != nil {
		return 0, err
	}
	r := stat.Correlation(xs, ys, nil)
	return math.Max(-1, math.Min(1, r)), nil
}

// LinearRegression fits ys on xs. The p-value is two-sided for the null
// hypothesis that the slope is zero, using Student's t with n-2 degrees of freedom.
func LinearRegression(xs, ys []float64) (Regression, error) {
	if len(xs) != len(ys) {
		return Regression{}, fmt.Errorf("length mismatch: %d vs %d", len(xs), len(ys))
	}
	if len(xs) < 2 {
		return Regression{}, ErrInsufficientData
	}
	if stat.Variance(xs, nil) == 0 {
		return Regression{}, ErrZeroVariance
	}
	alpha, beta := stat.LinearRegression(xs, ys, nil, false)
	reg := Regression{Slope: beta, Intercept: alpha, N: len(xs)}
	if stat.Variance(ys, nil) == 0 {
		return reg, nil
	}
	r := math.Max(-1, math.Min(1, stat.Correlation(xs, ys, nil)))
	reg.RValue = r
	df := float64(len(xs) - 2)
	if df <= 0 || math.Abs(r) == 1 {
		return reg, nil
	}
	meanX := stat.Mean(xs, nil)
	var sxx, sse float64
	for i, x := range xs {
		sxx += (x - meanX) * (x - meanX)
		res := ys[i] - (alpha + beta*x)
		sse += res * res
	}
	reg.StdErr = math.Sqrt(sse/df) / math.Sqrt(sxx)
	if reg.StdErr > 0 {
		t := beta / reg.StdErr
		dist := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: df}
		reg.PValue = 2 * dist.Survival(math.Abs(t))
	}
	return reg, nil
}

// Describe reports the frame's shape, kinds, and missing-cell counts.
func Describe(f *Frame) BasicStats {
	bs := BasicStats{
		Shape:      [2]int{f.NumRows(), f.NumCols()},
		Columns:    append([]string(nil), f.Header...),
		Kinds:      KindOf(f),
		NullCounts: make(map[string]int, f.NumCols()),
	}
	for j, h := range f.Header {
		n := 0
		for _, r := range f.Rows {
			if strings.TrimSpace(r[j]) == "" {
				n++
			}
		}
		bs.NullCounts[h] = n
	}
	return bs
}

// CorrelationMatrix returns Pearson r for every pair of numeric columns,
// keyed by header. Pairs without enough variance are omitted.
func CorrelationMatrix(f *Frame) map[string]map[string]float64 {
	cols := NumericColumns(f)
	out := make(map[string]map[string]float64, len(cols))
	for _, a := range cols {
		out[a] = map[string]float64{a: 1}
	}
	for i, a := range cols {
		for _, b := range cols[i+1:] {
			xs, ys, err := f.Pairs(a, b)
			if err != nil {
				continue
			}
			r, err := Correlation(xs, ys)
			if err != nil {
				continue
			}
			out[a][b] = r
			out[b][a] = r
		}
	}
	return out
}

// StatisticalAnalysis bundles the statistics a question asks for: basic
// stats, the correlation matrix, and correlation or regression results for
// numeric column pairs named in the question.
func StatisticalAnalysis(question string, f *Frame) map[string]any {
	results := map[string]any{"basic_stats": Describe(f)}
	numeric := NumericColumns(f)
	if len(numeric) >= 2 {
		results["correlations"] = CorrelationMatrix(f)
	}
	q := strings.ToLower(question)
	wantCorr := strings.Contains(q, "correlation")
	wantReg := strings.Contains(q, "regression") || strings.Contains(q, "slope")
	if !wantCorr && !wantReg {
		return results
	}
	mentioned := MentionedColumns(q, numeric)
	for i, a := range mentioned {
		for _, b := range mentioned[i+1:] {
			xs, ys, err := f.Pairs(a, b)
			if err != nil {
				continue
			}
			if wantCorr {
				if r, err := Correlation(xs, ys); err == nil {
					results[fmt.Sprintf("correlation_%s_%s", a, b)] = r
				} else {
					results[fmt.Sprintf("correlation_%s_%s", a, b)] = err.Error()
				}
			}
			if wantReg {
				if reg, err := LinearRegression(xs, ys); err == nil {
					results[fmt.Sprintf("regression_%s_%s", a, b)] = reg
				} else {
					results[fmt.Sprintf("regression_%s_%s", a, b)] = err.Error()
				}
			}
		}
	}
	return results
}

// MentionedColumns returns the columns whose names appear in text, ordered by
// first mention. Underscores in names also match spaces.
func MentionedColumns(text string, columns []string) []string {
	text = strings.ToLower(text)
	type hit struct {
		name string
		pos  int
	}
	var hits []hit
	for _, c := range columns {
		clean, _ := SplitUnits(c)
		lc := strings.ToLower(strings.TrimSpace(clean))
		if lc == "" {
			continue
		}
		pos := strings.Index(text, lc)
		if pos < 0 {
			pos = strings.Index(text, strings.ReplaceAll(lc, "_", " "))
		}
		if pos >= 0 {
			hits = append(hits, hit{c, pos})
		}
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].pos < hits[j].pos })
	out := make([]string, len(hits))
	for i, h := range hits {
		out[i] = h.name
	}
	return out
}
