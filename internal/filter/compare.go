package filter

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/ZanzyTHEbar/dataplan-genkit"
)

func isNull(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case float64:
		return math.IsNaN(t)
	case float32:
		return math.IsNaN(float64(t))
	}
	return false
}

func toFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int8:
		return float64(t), true
	case int16:
		return float64(t), true
	case int32:
		return float64(t), true
	case int64:
		return float64(t), true
	case uint:
		return float64(t), true
	case uint8:
		return float64(t), true
	case uint16:
		return float64(t), true
	case uint32:
		return float64(t), true
	case uint64:
		return float64(t), true
	case json.Number:
		f, err := t.Float64()
		return f, err == nil
	}
	return 0, false
}

func toTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case string:
		return dataplan.ParseTime(t)
	}
	return time.Time{}, false
}

// equalValues compares a cell with a filter value. Values of unrelated kinds
// are never equal.
func equalValues(cell, val any) bool {
	if isNull(cell) || isNull(val) {
		return false
	}
	if a, ok := toFloat(cell); ok {
		b, ok := toFloat(val)
		return ok && a == b
	}
	if a, ok := cell.(time.Time); ok {
		b, ok := toTime(val)
		return ok && a.Equal(b)
	}
	switch a := cell.(type) {
	case string:
		b, ok := val.(string)
		return ok && a == b
	case bool:
		b, ok := val.(bool)
		return ok && a == b
	}
	return fmt.Sprint(cell) == fmt.Sprint(val)
}

// compareValues orders a cell against a filter value.
func compareValues(cell, val any) (int, error) {
	if a, ok := toFloat(cell); ok {
		b, ok := toFloat(val)
		if !ok {
			return 0, fmt.Errorf("cannot compare number with %T", val)
		}
		return cmpFloat(a, b), nil
	}
	if a, ok := cell.(time.Time); ok {
		b, ok := toTime(val)
		if !ok {
			return 0, fmt.Errorf("cannot compare date with %v", val)
		}
		return a.Compare(b), nil
	}
	if a, ok := cell.(string); ok {
		b, ok := val.(string)
		if !ok {
			return 0, fmt.Errorf("cannot compare string with %T", val)
		}
		return strings.Compare(a, b), nil
	}
	return 0, fmt.Errorf("values of type %T are not ordered", cell)
}

func cmpFloat(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// render formats a value the way contains sees it.
func render(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case time.Time:
		if t.Equal(t.Truncate(24*time.Hour)) && t.Location() == time.UTC {
			return t.Format("2006-01-02")
		}
		return t.Format(time.RFC3339)
	}
	return fmt.Sprint(v)
}

func containsFold(cell, val any) bool {
	if isNull(cell) || isNull(val) {
		return false
	}
	return strings.Contains(strings.ToLower(render(cell)), strings.ToLower(render(val)))
}
