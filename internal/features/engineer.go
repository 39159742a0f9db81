// Package features turns raw route facts into the tabular feature set the
// risk model consumes, mirroring the transformations the model was trained on.
package features

import (
	"fmt"
	"sort"

	t "github.com/tarterware/roadrisk/internal/types"
	"gonum.org/v1/gonum/stat"
)

// Epsilon guards the speed/curvature ratio against perfectly straight routes.
const curvatureEpsilon = 1e-6

// CategoricalColumns is the fixed set the model contract depends on. The
// names must be preserved verbatim.
var CategoricalColumns = []string{
	"road_type", "lighting", "weather", "time_of_day", "holiday_x_lighting",
	"weather_lighting", "curvature_bin", "speed_x_curvature_bin",
}

var binLabels = []string{"low", "medium", "high"}

// Engineer augments the raw table with the derived columns, casts booleans to
// 0/1 integers and marks the categorical set. Duplicate-row dropping is only
// enabled for training-time batches; inference calls pass false.
func Engineer(in *Table, dropDuplicates bool) (*Table, error) {
	for _, col := range RawColumns {
		if !in.HasColumn(col) {
			return nil, t.ModelSchemaError{Msg: fmt.Sprintf("input table missing column %q", col)}
		}
	}

	tbl := in.clone()
	if dropDuplicates {
		tbl.dropDuplicates()
	}
	n := tbl.NumRows()

	// num_reported_accidents cannot be derived at inference time and would
	// leak during training, so it is zeroed unconditionally.
	zeros := make([]interface{}, n)
	for i := range zeros {
		zeros[i] = float64(0)
	}
	tbl.setColumn("num_reported_accidents", zeros)

	speed, err := tbl.floats("speed_limit")
	if err != nil {
		return nil, err
	}
	curvature, err := tbl.floats("curvature")
	if err != nil {
		return nil, err
	}

	ratio := make([]interface{}, n)
	for i := range ratio {
		ratio[i] = speed[i] / (curvature[i] + curvatureEpsilon)
	}
	tbl.setColumn("speed_curvature_ratio", ratio)

	weatherLighting := make([]interface{}, n)
	for i := 0; i < n; i++ {
		weatherLighting[i] = formatValue(tbl.Value("weather", i)) + "_" + formatValue(tbl.Value("lighting", i))
	}
	tbl.setColumn("weather_lighting", weatherLighting)

	bins := quantileBins(curvature)
	binCol := make([]interface{}, n)
	for i := range bins {
		binCol[i] = bins[i]
	}
	tbl.setColumn("curvature_bin", binCol)

	curvatureSq := make([]interface{}, n)
	speedSq := make([]interface{}, n)
	for i := 0; i < n; i++ {
		curvatureSq[i] = curvature[i] * curvature[i]
		speedSq[i] = speed[i] * speed[i]
	}
	tbl.setColumn("curvature_sq", curvatureSq)
	tbl.setColumn("speed_limit_sq", speedSq)

	speedXBin := make([]interface{}, n)
	for i := 0; i < n; i++ {
		speedXBin[i] = formatValue(tbl.Value("speed_limit", i)) + "_" + bins[i]
	}
	tbl.setColumn("speed_x_curvature_bin", speedXBin)

	holidayXLighting := make([]interface{}, n)
	for i := 0; i < n; i++ {
		holidayXLighting[i] = formatValue(tbl.Value("holiday", i)) + "_" + formatValue(tbl.Value("lighting", i))
	}
	tbl.setColumn("holiday_x_lighting", holidayXLighting)

	castBoolsToInt(tbl)

	for _, col := range CategoricalColumns {
		tbl.categorical[col] = true
	}
	return tbl, nil
}

// quantileBins cuts curvature into low/medium/high on the batch's 25th and
// 75th percentiles. Degenerate batches (fewer than 6 rows, fewer than 2
// distinct values, or collapsed bin edges) all get the middle label instead.
func quantileBins(values []float64) []string {
	n := len(values)
	mid := binLabels[len(binLabels)/2]

	fallback := func() []string {
		out := make([]string, n)
		for i := range out {
			out[i] = mid
		}
		return out
	}

	distinct := map[float64]bool{}
	for _, v := range values {
		distinct[v] = true
	}
	if n < 6 || len(distinct) < 2 {
		return fallback()
	}

	sorted := append([]float64{}, values...)
	sort.Float64s(sorted)
	// Bin edges are exact sample values (empirical quantiles, no
	// interpolation); the training-side exporter computes them the same way.
	edges := []float64{
		sorted[0],
		stat.Quantile(0.25, stat.Empirical, sorted, nil),
		stat.Quantile(0.75, stat.Empirical, sorted, nil),
		sorted[n-1],
	}
	for i := 1; i < len(edges); i++ {
		if edges[i] <= edges[i-1] {
			// A collapsed bin leaves fewer intervals than labels.
			return fallback()
		}
	}

	out := make([]string, n)
	for i, v := range values {
		switch {
		case v <= edges[1]:
			out[i] = binLabels[0]
		case v <= edges[2]:
			out[i] = binLabels[1]
		default:
			out[i] = binLabels[2]
		}
	}
	return out
}

func castBoolsToInt(tbl *Table) {
	for _, col := range tbl.columns {
		vals := tbl.cells[col]
		for i, v := range vals {
			if b, ok := v.(bool); ok {
				if b {
					vals[i] = 1
				} else {
					vals[i] = 0
				}
			}
		}
	}
}
