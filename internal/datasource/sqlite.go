package datasource

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"

	"github.com/ZanzyTHEbar/dataplan-genkit"
	_ "modernc.org/sqlite"
)

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

func validIdentifier(name string) error {
	if !identifierPattern.MatchString(name) {
		return dataplan.NewInvalidInputError(dataplan.StageLoad, fmt.Sprintf("invalid table name '%s'", name))
	}
	return nil
}

// SQLiteSource reads tables from a SQLite database.
type SQLiteSource struct {
	db       *sql.DB
	pageSize int
}

// OpenSQLite opens the database at path.
func OpenSQLite(path string, pageSize int) (*SQLiteSource, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, dataplan.NewConfigurationError("open sqlite database", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, dataplan.NewConfigurationError("ping sqlite database", err)
	}
	return NewSQLiteSource(db, pageSize), nil
}

// NewSQLiteSource wraps an open database handle.
func NewSQLiteSource(db *sql.DB, pageSize int) *SQLiteSource {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &SQLiteSource{db: db, pageSize: pageSize}
}

// DB returns the underlying handle.
func (s *SQLiteSource) DB() *sql.DB {
	return s.db
}

// Close closes the database.
func (s *SQLiteSource) Close() error {
	return s.db.Close()
}

// FetchAll implements dataplan.DataSource, paging with LIMIT and OFFSET until
// a short page is returned.
func (s *SQLiteSource) FetchAll(ctx context.Context, table string) ([]dataplan.Row, error) {
	if err := validIdentifier(table); err != nil {
		return nil, err
	}
	query := fmt.Sprintf(`SELECT * FROM "%s" ORDER BY rowid LIMIT ? OFFSET ?`, table)

	var rows []dataplan.Row
	for offset := 0; ; offset += s.pageSize {
		page, err := s.fetchPage(ctx, query, offset)
		if err != nil {
			return nil, err
		}
		rows = append(rows, page...)
		if len(page) < s.pageSize {
			return rows, nil
		}
	}
}

func (s *SQLiteSource) fetchPage(ctx context.Context, query string, offset int) ([]dataplan.Row, error) {
	rs, err := s.db.QueryContext(ctx, query, s.pageSize, offset)
	if err != nil {
		return nil, err
	}
	defer rs.Close()

	cols, err := rs.Columns()
	if err != nil {
		return nil, err
	}
	var page []dataplan.Row
	for rs.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rs.Scan(ptrs...); err != nil {
			return nil, err
		}
		row := make(dataplan.Row, len(cols))
		for i, c := range cols {
			row[c] = vals[i]
		}
		page = append(page, row)
	}
	return page, rs.Err()
}
