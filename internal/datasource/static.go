package datasource

import (
	"context"
	"fmt"
	"os"

	"github.com/ZanzyTHEbar/dataplan-genkit"
	"gopkg.in/yaml.v3"
)

// StaticSource serves tables held in memory, typically fixtures.
type StaticSource struct {
	tables map[string][]dataplan.Row
}

// NewStaticSource creates a source over the given tables.
func NewStaticSource(tables map[string][]dataplan.Row) *StaticSource {
	return &StaticSource{tables: tables}
}

// LoadStaticFile reads a YAML or JSON document mapping table names to lists
// of rows.
func LoadStaticFile(path string) (*StaticSource, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, dataplan.NewConfigurationError("read fixture file", err)
	}
	var tables map[string][]dataplan.Row
	if err := yaml.Unmarshal(data, &tables); err != nil {
		return nil, dataplan.NewConfigurationError("parse fixture file", err)
	}
	return NewStaticSource(tables), nil
}

// FetchAll implements dataplan.DataSource.
func (s *StaticSource) FetchAll(ctx context.Context, table string) ([]dataplan.Row, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rows, ok := s.tables[table]
	if !ok {
		return nil, fmt.Errorf("table '%s' not found", table)
	}
	out := make([]dataplan.Row, len(rows))
	for i, r := range rows {
		cp := make(dataplan.Row, len(r))
		for k, v := range r {
			cp[k] = v
		}
		out[i] = cp
	}
	return out, nil
}
