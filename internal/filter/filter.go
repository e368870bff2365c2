// Package filter evaluates whitelisted row predicates over tables.
package filter

import (
	"fmt"
	"reflect"
	"sort"
	"sync"

	"github.com/ZanzyTHEbar/dataplan-genkit"
)

var requiredKeys = []string{"col", "op", "val"}

var (
	defaultEngine     *Engine
	defaultEngineOnce sync.Once
)

// Engine applies filters using precompiled predicates. It holds no mutable
// state and is safe for concurrent use.
type Engine struct {
	predicates map[dataplan.Op]*predicate
}

// NewEngine compiles the predicate set.
func NewEngine() (*Engine, error) {
	preds, err := compilePredicates()
	if err != nil {
		return nil, err
	}
	return &Engine{predicates: preds}, nil
}

// Default returns the shared engine.
func Default() *Engine {
	defaultEngineOnce.Do(func() {
		e, err := NewEngine()
		if err != nil {
			panic(err)
		}
		defaultEngine = e
	})
	return defaultEngine
}

// Parse checks the structure of a raw filter list as decoded from JSON or
// YAML without checking column names.
func Parse(raw any) ([]dataplan.Filter, error) {
	return Compile(raw, nil)
}

// Compile checks a raw filter list filter by filter and converts it. When
// columns is non-nil every col must be one of them. The first violation is
// returned.
func Compile(raw any, columns []string) ([]dataplan.Filter, error) {
	items, ok := asList(raw)
	if !ok || len(items) == 0 {
		return nil, dataplan.NewFilterValidationError(-1, "filters must be a non-empty list")
	}
	colSet := columnSet(columns)
	out := make([]dataplan.Filter, 0, len(items))
	for i, item := range items {
		f, err := compileOne(i, item, colSet)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, nil
}

func compileOne(i int, item any, colSet map[string]bool) (dataplan.Filter, error) {
	if f, ok := item.(dataplan.Filter); ok {
		return f, validateOne(i, f, colSet)
	}
	m, ok := item.(map[string]any)
	if !ok {
		return dataplan.Filter{}, dataplan.NewFilterValidationError(i, fmt.Sprintf("filters[%d] must be an object", i))
	}
	for _, k := range requiredKeys {
		if _, ok := m[k]; !ok {
			return dataplan.Filter{}, dataplan.NewFilterValidationError(i, fmt.Sprintf("filters[%d] missing required key '%s'", i, k))
		}
	}
	if len(m) > len(requiredKeys) {
		extra := make([]string, 0, len(m))
		for k := range m {
			if k != "col" && k != "op" && k != "val" {
				extra = append(extra, k)
			}
		}
		sort.Strings(extra)
		return dataplan.Filter{}, dataplan.NewFilterValidationError(i, fmt.Sprintf("filters[%d] has unexpected key '%s'", i, extra[0]))
	}
	col, ok := m["col"].(string)
	if !ok {
		return dataplan.Filter{}, dataplan.NewFilterValidationError(i, fmt.Sprintf("filters[%d].col must be a string", i))
	}
	op, ok := m["op"].(string)
	if !ok {
		return dataplan.Filter{}, dataplan.NewFilterValidationError(i, fmt.Sprintf("filters[%d]: unsupported op '%v'", i, m["op"]))
	}
	f := dataplan.Filter{Col: col, Op: dataplan.Op(op), Val: m["val"]}
	if err := validateOne(i, f, colSet); err != nil {
		return dataplan.Filter{}, err
	}
	if list, ok := asList(f.Val); ok {
		f.Val = list
	}
	return f, nil
}

// Validate checks already-typed filters against the available columns.
func Validate(filters []dataplan.Filter, columns []string) error {
	if len(filters) == 0 {
		return dataplan.NewFilterValidationError(-1, "filters must be a non-empty list")
	}
	colSet := columnSet(columns)
	for i, f := range filters {
		if err := validateOne(i, f, colSet); err != nil {
			return err
		}
	}
	return nil
}

func validateOne(i int, f dataplan.Filter, colSet map[string]bool) error {
	if colSet != nil && !colSet[f.Col] {
		return dataplan.NewFilterValidationError(i, fmt.Sprintf("filters[%d]: unknown column '%s'", i, f.Col))
	}
	if !f.Op.Valid() {
		return dataplan.NewFilterValidationError(i, fmt.Sprintf("filters[%d]: unsupported op '%s'", i, f.Op))
	}
	_, isList := asList(f.Val)
	switch {
	case f.Op.RequiresSequence() && !isList:
		return dataplan.NewFilterValidationError(i, fmt.Sprintf("filters[%d].val must be a list for op '%s'", i, f.Op))
	case !f.Op.RequiresSequence() && isList:
		return dataplan.NewFilterValidationError(i, fmt.Sprintf("filters[%d].val must be a scalar for op '%s'", i, f.Op))
	case f.Op.Ordering() && isNull(f.Val):
		return dataplan.NewFilterValidationError(i, fmt.Sprintf("filters[%d].val must not be null for op '%s'", i, f.Op))
	}
	return nil
}

// CheckValueHints rejects equality and membership filters on columns whose
// value hints are complete when a value is not one of the canonical values.
// Null values are allowed.
func CheckValueHints(filters []dataplan.Filter, hints map[string]dataplan.ValueHint) error {
	for i, f := range filters {
		hint, ok := hints[f.Col]
		if !ok || !hint.Complete {
			continue
		}
		var vals []any
		switch f.Op {
		case dataplan.OpEq, dataplan.OpNe:
			vals = []any{f.Val}
		case dataplan.OpIn, dataplan.OpNotIn:
			vals, _ = asList(f.Val)
		default:
			continue
		}
		for _, v := range vals {
			if isNull(v) || canonical(v, hint.Values) {
				continue
			}
			return dataplan.NewFilterValidationError(i, fmt.Sprintf(
				"filters[%d]: '%v' is not a known value of column '%s'", i, v, f.Col))
		}
	}
	return nil
}

func canonical(v any, values []string) bool {
	s, ok := v.(string)
	if !ok {
		return false
	}
	for _, c := range values {
		if c == s {
			return true
		}
	}
	return false
}

// Apply validates filters against table and returns the rows matching all of
// them, in their original order. The input table is left untouched.
func Apply(table *dataplan.Table, filters []dataplan.Filter) (*dataplan.Table, error) {
	return Default().Apply(table, filters)
}

// Apply validates filters against table and returns the rows matching all of
// them.
func (e *Engine) Apply(table *dataplan.Table, filters []dataplan.Filter) (*dataplan.Table, error) {
	if table == nil {
		return nil, dataplan.NewSequencingError("filter applied without a table")
	}
	if err := Validate(filters, table.Columns); err != nil {
		return nil, err
	}
	normalized := make([]dataplan.Filter, len(filters))
	for i, f := range filters {
		if list, ok := asList(f.Val); ok {
			f.Val = list
		}
		normalized[i] = f
	}

	kept := make([]dataplan.Row, 0, len(table.Rows))
	var firstErr error
	firstIdx := len(normalized)
	for _, row := range table.Rows {
		match, idx, err := e.evalRow(row, normalized)
		if err != nil {
			if idx < firstIdx {
				firstIdx, firstErr = idx, err
			}
			continue
		}
		if match {
			kept = append(kept, row)
		}
	}
	if firstErr != nil {
		return nil, firstErr
	}
	return table.WithRows(kept), nil
}

// Match reports whether a single row satisfies every filter.
func (e *Engine) Match(row dataplan.Row, filters []dataplan.Filter) (bool, error) {
	normalized := make([]dataplan.Filter, len(filters))
	for i, f := range filters {
		if _, ok := e.predicates[f.Op]; !ok {
			return false, dataplan.NewFilterValidationError(i, fmt.Sprintf("filters[%d]: unsupported op '%s'", i, f.Op))
		}
		if list, ok := asList(f.Val); ok {
			f.Val = list
		}
		normalized[i] = f
	}
	match, _, err := e.evalRow(row, normalized)
	return match, err
}

// evalRow evaluates every filter against row. All filters run regardless of
// earlier results so the outcome does not depend on filter order. The error
// returned is the one with the lowest filter index, along with that index.
func (e *Engine) evalRow(row dataplan.Row, filters []dataplan.Filter) (bool, int, error) {
	match := true
	for i, f := range filters {
		ok, err := e.predicates[f.Op].eval(row[f.Col], f.Val)
		if err != nil {
			return false, i, dataplan.NewFilterValidationError(i, fmt.Sprintf("filters[%d]: %v", i, err))
		}
		match = match && ok
	}
	return match, -1, nil
}

func columnSet(columns []string) map[string]bool {
	if columns == nil {
		return nil
	}
	set := make(map[string]bool, len(columns))
	for _, c := range columns {
		set[c] = true
	}
	return set
}

// asList converts any slice or array value into []any.
func asList(v any) ([]any, bool) {
	switch t := v.(type) {
	case nil:
		return nil, false
	case []any:
		return t, true
	case string, []byte:
		return nil, false
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}
