package datasource

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ZanzyTHEbar/dataplan-genkit"
	"github.com/ZanzyTHEbar/dataplan-genkit/internal/catalog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostgRESTSource_Paginates(t *testing.T) {
	const total = 5
	var requests atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		assert.Equal(t, "/rest/v1/players", r.URL.Path)
		assert.Equal(t, "*", r.URL.Query().Get("select"))
		assert.Equal(t, "secret", r.Header.Get("apikey"))
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		assert.Equal(t, "items", r.Header.Get("Range-Unit"))

		bounds := strings.SplitN(r.Header.Get("Range"), "-", 2)
		from, _ := strconv.Atoi(bounds[0])
		to, _ := strconv.Atoi(bounds[1])
		var page []map[string]any
		for i := from; i <= to && i < total; i++ {
			page = append(page, map[string]any{"id": i, "player_name": fmt.Sprintf("p%d", i)})
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusPartialContent)
		_ = json.NewEncoder(w).Encode(page)
	}))
	defer srv.Close()

	src, err := NewPostgRESTSource(srv.URL+"/", "secret", WithPageSize(2))
	require.NoError(t, err)

	rows, err := src.FetchAll(context.Background(), "players")
	require.NoError(t, err)
	assert.Len(t, rows, total)
	assert.Equal(t, int32(3), requests.Load())
	assert.Equal(t, "p4", rows[4]["player_name"])
}

func TestPostgRESTSource_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"permission denied"}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	src, err := NewPostgRESTSource(srv.URL, "k")
	require.NoError(t, err)
	_, err = src.FetchAll(context.Background(), "players")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
	assert.Contains(t, err.Error(), "permission denied")
}

func TestPostgRESTSource_RejectsBadTableName(t *testing.T) {
	src, err := NewPostgRESTSource("http://localhost", "k")
	require.NoError(t, err)
	_, err = src.FetchAll(context.Background(), "players?delete=1")
	assert.True(t, dataplan.HasCode(err, dataplan.ErrCodeInvalidInput))
}

func TestNewPostgRESTSource_RequiresCredentials(t *testing.T) {
	_, err := NewPostgRESTSource("", "k")
	assert.True(t, dataplan.HasCode(err, dataplan.ErrCodeConfiguration))
	_, err = NewPostgRESTSource("http://x", "")
	assert.True(t, dataplan.HasCode(err, dataplan.ErrCodeConfiguration))
}

func TestSQLiteSource_FetchAll(t *testing.T) {
	src, err := OpenSQLite(filepath.Join(t.TempDir(), "stats.db"), 2)
	require.NoError(t, err)
	defer src.Close()

	ctx := context.Background()
	_, err = src.DB().ExecContext(ctx, `CREATE TABLE players (id INTEGER, team TEXT, average REAL)`)
	require.NoError(t, err)
	for i, team := range []string{"Betis", "Celta", "Elche"} {
		_, err = src.DB().ExecContext(ctx, `INSERT INTO players VALUES (?, ?, ?)`, i, team, float64(i)+0.5)
		require.NoError(t, err)
	}

	rows, err := src.FetchAll(ctx, "players")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "Elche", rows[2]["team"])
	assert.Equal(t, int64(1), rows[1]["id"])

	_, err = src.FetchAll(ctx, `players"; DROP TABLE players; --`)
	assert.True(t, dataplan.HasCode(err, dataplan.ErrCodeInvalidInput))
}

func TestLoader_CoercesWithSchema(t *testing.T) {
	cat, err := catalog.Builtin()
	require.NoError(t, err)

	src := NewStaticSource(map[string][]dataplan.Row{
		"biwenger_player_stats": {
			{"id": 1.0, "team": "Betis", "points": "42", "average": 3, "as_of_date": "2025-09-14", "extra": "x"},
		},
	})
	table, err := NewLoader(src, cat, nil).Load(context.Background(), "biwenger_player_stats")
	require.NoError(t, err)
	require.Equal(t, 1, table.Len())

	row := table.Rows[0]
	assert.Equal(t, int64(1), row["id"])
	assert.Equal(t, int64(42), row["points"])
	assert.Equal(t, 3.0, row["average"])
	assert.Equal(t, time.Date(2025, 9, 14, 0, 0, 0, 0, time.UTC), row["as_of_date"])
	assert.Equal(t, "id", table.Columns[0])
	assert.Equal(t, "extra", table.Columns[len(table.Columns)-1])
}

func TestLoader_Errors(t *testing.T) {
	cat, err := catalog.Builtin()
	require.NoError(t, err)
	loader := NewLoader(NewStaticSource(nil), cat, nil)

	_, err = loader.Load(context.Background(), "unknown")
	assert.True(t, dataplan.HasCode(err, dataplan.ErrCodeUnknownDataset))

	_, err = loader.Load(context.Background(), "biwenger_player_stats")
	assert.True(t, dataplan.HasCode(err, dataplan.ErrCodeDataSource))
}

func TestLoadStaticFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fixtures.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
players:
  - {id: 1, team: Betis, as_of_date: 2025-09-14}
  - {id: 2, team: Celta, as_of_date: 2025-09-15}
`), 0o644))

	src, err := LoadStaticFile(path)
	require.NoError(t, err)
	rows, err := src.FetchAll(context.Background(), "players")
	require.NoError(t, err)
	assert.Len(t, rows, 2)

	rows[0]["team"] = "changed"
	again, _ := src.FetchAll(context.Background(), "players")
	assert.Equal(t, "Betis", again[0]["team"])
}
