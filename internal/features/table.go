package features

import (
	"fmt"
	"strconv"
	"strings"

	t "github.com/tarterware/roadrisk/internal/types"
)

// Raw input schema, in column order. The engineering step appends derived
// columns after these.
var RawColumns = []string{
	"road_type", "num_lanes", "curvature", "speed_limit", "lighting",
	"weather", "road_signs_present", "public_road", "time_of_day",
	"holiday", "school_season",
}

// Table is an ordered-column batch of feature rows. Cell values are string,
// bool, int or float64. Columns marked categorical are consumed as discrete
// unordered values by the tree model; everything else is numeric.
type Table struct {
	columns     []string
	cells       map[string][]interface{}
	categorical map[string]bool
	rows        int
}

func NewTable(columns []string) *Table {
	tbl := &Table{
		columns:     append([]string{}, columns...),
		cells:       map[string][]interface{}{},
		categorical: map[string]bool{},
	}
	for _, col := range columns {
		tbl.cells[col] = []interface{}{}
	}
	return tbl
}

// FromRows builds a raw-schema table from one or more feature rows.
func FromRows(rows ...t.FeatureRow) *Table {
	tbl := NewTable(RawColumns)
	for _, r := range rows {
		tbl.AppendRow(map[string]interface{}{
			"road_type":          r.RoadType,
			"num_lanes":          r.NumLanes,
			"curvature":          r.Curvature,
			"speed_limit":        r.SpeedLimit,
			"lighting":           r.Lighting,
			"weather":            r.Weather,
			"road_signs_present": r.RoadSignsPresent,
			"public_road":        r.PublicRoad,
			"time_of_day":        r.TimeOfDay,
			"holiday":            r.Holiday,
			"school_season":      r.SchoolSeason,
		})
	}
	return tbl
}

func (tbl *Table) NumRows() int {
	return tbl.rows
}

func (tbl *Table) Columns() []string {
	return append([]string{}, tbl.columns...)
}

func (tbl *Table) HasColumn(name string) bool {
	_, ok := tbl.cells[name]
	return ok
}

func (tbl *Table) IsCategorical(name string) bool {
	return tbl.categorical[name]
}

// Value returns the cell at (column, row). Panics on unknown column, like an
// out-of-range slice index would.
func (tbl *Table) Value(name string, row int) interface{} {
	col, ok := tbl.cells[name]
	if !ok {
		panic(fmt.Sprintf("features: no column %q", name))
	}
	return col[row]
}

// AppendRow adds one row; every column of the table must be present.
func (tbl *Table) AppendRow(row map[string]interface{}) {
	for _, col := range tbl.columns {
		v, ok := row[col]
		if !ok {
			panic(fmt.Sprintf("features: row missing column %q", col))
		}
		tbl.cells[col] = append(tbl.cells[col], v)
	}
	tbl.rows++
}

func (tbl *Table) clone() *Table {
	out := &Table{
		columns:     append([]string{}, tbl.columns...),
		cells:       map[string][]interface{}{},
		categorical: map[string]bool{},
		rows:        tbl.rows,
	}
	for col, vals := range tbl.cells {
		out.cells[col] = append([]interface{}{}, vals...)
	}
	for col := range tbl.categorical {
		out.categorical[col] = true
	}
	return out
}

// setColumn overwrites or appends the named column.
func (tbl *Table) setColumn(name string, values []interface{}) {
	if !tbl.HasColumn(name) {
		tbl.columns = append(tbl.columns, name)
	}
	tbl.cells[name] = values
}

// floats reads a column as float64, coercing ints.
func (tbl *Table) floats(name string) ([]float64, error) {
	col, ok := tbl.cells[name]
	if !ok {
		return nil, t.ModelSchemaError{Msg: fmt.Sprintf("missing column %q", name)}
	}
	out := make([]float64, len(col))
	for i, v := range col {
		switch n := v.(type) {
		case float64:
			out[i] = n
		case int:
			out[i] = float64(n)
		default:
			return nil, t.ModelSchemaError{Msg: fmt.Sprintf("column %q row %d is not numeric (%T)", name, i, v)}
		}
	}
	return out, nil
}

func (tbl *Table) dropDuplicates() {
	seen := map[string]bool{}
	keep := []int{}
	for i := 0; i < tbl.rows; i++ {
		var b strings.Builder
		for _, col := range tbl.columns {
			fmt.Fprintf(&b, "%v\x1f", tbl.cells[col][i])
		}
		key := b.String()
		if !seen[key] {
			seen[key] = true
			keep = append(keep, i)
		}
	}
	if len(keep) == tbl.rows {
		return
	}
	for col, vals := range tbl.cells {
		kept := make([]interface{}, 0, len(keep))
		for _, i := range keep {
			kept = append(kept, vals[i])
		}
		tbl.cells[col] = kept
	}
	tbl.rows = len(keep)
}

// formatValue renders a cell the way the category-string columns expect:
// bools as true/false, floats in shortest form ("35" not "35.000000").
func formatValue(v interface{}) string {
	switch n := v.(type) {
	case string:
		return n
	case bool:
		return strconv.FormatBool(n)
	case int:
		return strconv.Itoa(n)
	case float64:
		return strconv.FormatFloat(n, 'g', -1, 64)
	default:
		return fmt.Sprintf("%v", v)
	}
}
