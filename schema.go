package dataplan

import (
	"fmt"
	"sort"
)

// ColumnSpec names a column and its declared storage type.
type ColumnSpec struct {
	Name  string `json:"name" yaml:"name"`
	DType string `json:"dtype" yaml:"dtype"`
}

// SchemaRules carry dataset-level guidance for planners and translators.
type SchemaRules struct {
	OnlyUseListedColumns bool    `json:"only_use_listed_columns" yaml:"only_use_listed_columns"`
	DateColumn           *string `json:"date_column" yaml:"date_column"`
	CategoricalGuidance  string  `json:"categorical_guidance,omitempty" yaml:"categorical_guidance,omitempty"`
}

// ValueHint lists canonical values of a categorical column. Complete is true
// when the list is exhaustive.
type ValueHint struct {
	Values   []string `json:"values" yaml:"values"`
	Complete bool     `json:"complete" yaml:"complete"`
}

// SchemaDocument describes one dataset. Documents handed out by a catalog are
// copies and may be modified by the caller.
type SchemaDocument struct {
	Dataset    string               `json:"dataset" yaml:"dataset"`
	Columns    []ColumnSpec         `json:"columns" yaml:"columns"`
	Rules      SchemaRules          `json:"rules" yaml:"rules"`
	ValueHints map[string]ValueHint `json:"value_hints,omitempty" yaml:"value_hints,omitempty"`
}

// ColumnNames returns the column names in declaration order.
func (d *SchemaDocument) ColumnNames() []string {
	names := make([]string, len(d.Columns))
	for i, c := range d.Columns {
		names[i] = c.Name
	}
	return names
}

// DType returns the declared dtype of column, or "" if it is not listed.
func (d *SchemaDocument) DType(column string) string {
	for _, c := range d.Columns {
		if c.Name == column {
			return c.DType
		}
	}
	return ""
}

// HintedColumns returns the columns carrying value hints, sorted.
func (d *SchemaDocument) HintedColumns() []string {
	cols := make([]string, 0, len(d.ValueHints))
	for c := range d.ValueHints {
		cols = append(cols, c)
	}
	sort.Strings(cols)
	return cols
}

// Validate checks the document is internally consistent.
func (d *SchemaDocument) Validate() error {
	if d.Dataset == "" {
		return NewConfigurationError("schema document has no dataset name", nil)
	}
	if len(d.Columns) == 0 {
		return NewConfigurationError(fmt.Sprintf("schema '%s' lists no columns", d.Dataset), nil)
	}
	seen := make(map[string]bool, len(d.Columns))
	for i, c := range d.Columns {
		if c.Name == "" {
			return NewConfigurationError(fmt.Sprintf("schema '%s': column %d has no name", d.Dataset, i), nil)
		}
		if seen[c.Name] {
			return NewConfigurationError(fmt.Sprintf("schema '%s': duplicate column '%s'", d.Dataset, c.Name), nil)
		}
		seen[c.Name] = true
	}
	if dc := d.Rules.DateColumn; dc != nil && !seen[*dc] {
		return NewConfigurationError(fmt.Sprintf("schema '%s': date column '%s' is not listed", d.Dataset, *dc), nil)
	}
	for col := range d.ValueHints {
		if !seen[col] {
			return NewConfigurationError(fmt.Sprintf("schema '%s': value hints for unlisted column '%s'", d.Dataset, col), nil)
		}
	}
	return nil
}

// Clone returns a deep copy of the document.
func (d *SchemaDocument) Clone() *SchemaDocument {
	c := &SchemaDocument{
		Dataset: d.Dataset,
		Columns: append([]ColumnSpec(nil), d.Columns...),
		Rules:   d.Rules,
	}
	if d.Rules.DateColumn != nil {
		dc := *d.Rules.DateColumn
		c.Rules.DateColumn = &dc
	}
	if d.ValueHints != nil {
		c.ValueHints = make(map[string]ValueHint, len(d.ValueHints))
		for k, v := range d.ValueHints {
			c.ValueHints[k] = ValueHint{Values: append([]string(nil), v.Values...), Complete: v.Complete}
		}
	}
	return c
}
