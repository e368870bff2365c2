package dataplan

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Row is a single record keyed by column name. A missing key and a nil value
// both mean null.
type Row map[string]any

// Table is an ordered set of columns over rows. Tables are treated as
// immutable once built; filtering produces a new Table sharing rows.
type Table struct {
	Columns []string
	Rows    []Row
}

// NewTable builds a table from explicit columns and rows.
func NewTable(columns []string, rows []Row) *Table {
	return &Table{Columns: append([]string(nil), columns...), Rows: rows}
}

// Len returns the number of rows.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Rows)
}

// HasColumn reports whether the table has the named column.
func (t *Table) HasColumn(name string) bool {
	for _, c := range t.Columns {
		if c == name {
			return true
		}
	}
	return false
}

// Column returns the values of one column in row order.
func (t *Table) Column(name string) []any {
	vals := make([]any, len(t.Rows))
	for i, r := range t.Rows {
		vals[i] = r[name]
	}
	return vals
}

// WithRows returns a table with the same columns over a different row set.
func (t *Table) WithRows(rows []Row) *Table {
	return &Table{Columns: t.Columns, Rows: rows}
}

// Normalized dtype families.
const (
	DTypeInt      = "int"
	DTypeFloat    = "float"
	DTypeString   = "string"
	DTypeDate     = "date"
	DTypeDatetime = "datetime"
	DTypeBool     = "bool"
)

var dtypeFamilies = map[string]string{
	"int2": DTypeInt, "int4": DTypeInt, "int8": DTypeInt, "integer": DTypeInt,
	"smallint": DTypeInt, "bigint": DTypeInt, "int": DTypeInt,
	"float4": DTypeFloat, "float8": DTypeFloat, "numeric": DTypeFloat, "real": DTypeFloat,
	"double precision": DTypeFloat, "float": DTypeFloat,
	"text": DTypeString, "varchar": DTypeString, "character varying": DTypeString,
	"uuid": DTypeString, "string": DTypeString,
	"date": DTypeDate,
	"timestamptz": DTypeDatetime, "timestamp": DTypeDatetime, "datetime": DTypeDatetime,
	"bool": DTypeBool, "boolean": DTypeBool,
}

// NormalizeDType maps a storage dtype onto its family. Unknown dtypes are
// returned unchanged.
func NormalizeDType(dtype string) string {
	if fam, ok := dtypeFamilies[strings.ToLower(strings.TrimSpace(dtype))]; ok {
		return fam
	}
	return dtype
}

// NewTableFromRows builds a typed table from raw rows. Columns follow the
// schema's order with unlisted keys appended in sorted order, and values are
// coerced according to the declared dtypes. Values that cannot be coerced are
// kept as they are.
func NewTableFromRows(rows []Row, doc *SchemaDocument) *Table {
	var columns []string
	known := make(map[string]string)
	if doc != nil {
		columns = doc.ColumnNames()
		for _, c := range doc.Columns {
			known[c.Name] = NormalizeDType(c.DType)
		}
	}
	extra := make(map[string]bool)
	for _, r := range rows {
		for k := range r {
			if _, ok := known[k]; !ok {
				extra[k] = true
			}
		}
	}
	extraCols := make([]string, 0, len(extra))
	for k := range extra {
		extraCols = append(extraCols, k)
	}
	sort.Strings(extraCols)
	columns = append(columns, extraCols...)

	typed := make([]Row, len(rows))
	for i, r := range rows {
		out := make(Row, len(r))
		for k, v := range r {
			out[k] = CoerceValue(v, known[k])
		}
		typed[i] = out
	}
	return &Table{Columns: columns, Rows: typed}
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05.999999Z07:00",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04:05.999999",
	"2006-01-02",
}

// ParseTime parses the date and timestamp formats produced by common SQL
// backends.
func ParseTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// CoerceValue converts v to the Go representation of the dtype family.
func CoerceValue(v any, family string) any {
	if v == nil {
		return nil
	}
	switch family {
	case DTypeInt:
		switch t := v.(type) {
		case float64:
			if t == math.Trunc(t) {
				return int64(t)
			}
		case int:
			return int64(t)
		case int32:
			return int64(t)
		case json.Number:
			if n, err := t.Int64(); err == nil {
				return n
			}
		case string:
			if n, err := strconv.ParseInt(strings.TrimSpace(t), 10, 64); err == nil {
				return n
			}
		}
	case DTypeFloat:
		switch t := v.(type) {
		case int:
			return float64(t)
		case int64:
			return float64(t)
		case json.Number:
			if f, err := t.Float64(); err == nil {
				return f
			}
		case string:
			if f, err := strconv.ParseFloat(strings.TrimSpace(t), 64); err == nil {
				return f
			}
		}
	case DTypeDate, DTypeDatetime:
		switch t := v.(type) {
		case string:
			if ts, ok := ParseTime(t); ok {
				return ts
			}
		case []byte:
			if ts, ok := ParseTime(string(t)); ok {
				return ts
			}
		}
	case DTypeBool:
		switch t := v.(type) {
		case int64:
			return t != 0
		case string:
			if b, err := strconv.ParseBool(t); err == nil {
				return b
			}
		}
	case DTypeString:
		if b, ok := v.([]byte); ok {
			return string(b)
		}
	}
	return v
}

// FormatValue renders a cell for display. Dates without a clock component
// print as YYYY-MM-DD and null prints as an empty string.
func FormatValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case time.Time:
		if t.Hour() == 0 && t.Minute() == 0 && t.Second() == 0 && t.Nanosecond() == 0 {
			return t.Format(time.DateOnly)
		}
		return t.Format(time.RFC3339)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return fmt.Sprint(t)
	}
}
