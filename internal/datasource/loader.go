// Package datasource fetches raw rows from backing stores and turns them into
// typed tables.
package datasource

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/ZanzyTHEbar/dataplan-genkit"
)

// DefaultPageSize is the number of rows requested per page.
const DefaultPageSize = 1000

// Loader implements dataplan.TableLoader over a DataSource. The dataset name
// doubles as the table name.
type Loader struct {
	source  dataplan.DataSource
	schemas dataplan.SchemaProvider
	logger  *slog.Logger
}

// NewLoader creates a loader.
func NewLoader(source dataplan.DataSource, schemas dataplan.SchemaProvider, logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{source: source, schemas: schemas, logger: logger.With("component", "loader")}
}

// Load fetches every row of dataset and coerces it with the dataset schema.
func (l *Loader) Load(ctx context.Context, dataset string) (*dataplan.Table, error) {
	doc, err := l.schemas.GetSchema(dataset)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	rows, err := l.source.FetchAll(ctx, dataset)
	if err != nil {
		var dpErr *dataplan.DataPlanError
		if errors.As(err, &dpErr) {
			return nil, err
		}
		return nil, dataplan.NewDataSourceError(dataset, err)
	}
	table := dataplan.NewTableFromRows(rows, doc)
	l.logger.Info("dataset loaded", "dataset", dataset, "rows", table.Len(), "duration", time.Since(start))
	return table, nil
}
