package main

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/ZanzyTHEbar/dataplan-genkit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const fixture = `biwenger_player_stats:
  - {player_name: Courtois, team: Real Madrid, points: 80, as_of_date: "2025-09-14"}
  - {player_name: Bellingham, team: Real Madrid, points: 110, as_of_date: "2025-08-25"}
  - {player_name: Isco, team: Betis, points: 70, as_of_date: "2025-09-14"}
`

func setup(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "players.yaml")
	require.NoError(t, os.WriteFile(path, []byte(fixture), 0o644))
	t.Setenv("DATAPLAN_DATA_SOURCE", "static")
	t.Setenv("DATAPLAN_DATA_PATH", path)
	t.Setenv("DATAPLAN_LOG_LEVEL", "error")

	prev := stderr
	stderr = io.Discard
	t.Cleanup(func() { stderr = prev })
	return dir
}

func TestRun_Usage(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, run(context.Background(), nil, &out))
	assert.Contains(t, out.String(), "serve-mcp")
}

func TestRun_UnknownCommand(t *testing.T) {
	setup(t)
	err := run(context.Background(), []string{"frobnicate"}, io.Discard)
	assert.ErrorContains(t, err, `unknown command "frobnicate"`)
}

func TestRun_Schema(t *testing.T) {
	setup(t)
	var out bytes.Buffer
	require.NoError(t, run(context.Background(), []string{"schema"}, &out))
	assert.Contains(t, out.String(), "player_name")
	assert.Contains(t, out.String(), "date column: as_of_date")
}

func TestRun_SchemaUnknownDataset(t *testing.T) {
	setup(t)
	err := run(context.Background(), []string{"--dataset", "nope", "schema"}, io.Discard)
	assert.Equal(t, dataplan.ErrCodeUnknownDataset, dataplan.CodeOf(err))
}

func TestRun_PlanFile(t *testing.T) {
	dir := setup(t)
	planPath := filepath.Join(dir, "plan.yaml")
	require.NoError(t, os.WriteFile(planPath, []byte(`dataset: biwenger_player_stats
steps:
  - tool: load_biwenger_player_stats
    args: {}
  - tool: filter_df
    args:
      filters:
        - {col: team, op: "==", val: Real Madrid}
        - {col: points, op: ">", val: 100}
`), 0o644))

	var out bytes.Buffer
	require.NoError(t, run(context.Background(), []string{"run", "--plan", planPath}, &out))
	assert.Contains(t, out.String(), "Bellingham")
	assert.NotContains(t, out.String(), "Courtois")
	assert.Contains(t, out.String(), "(1 rows)")
}

func TestRun_PlanFileRequiresPath(t *testing.T) {
	setup(t)
	err := run(context.Background(), []string{"run"}, io.Discard)
	assert.Equal(t, dataplan.ErrCodeInvalidInput, dataplan.CodeOf(err))
}

func TestRun_Warm(t *testing.T) {
	setup(t)
	var out bytes.Buffer
	require.NoError(t, run(context.Background(), []string{"warm", "biwenger_player_stats"}, &out))
	assert.Contains(t, out.String(), "biwenger_player_stats  3")
}

func TestRun_AskNeedsQuestion(t *testing.T) {
	setup(t)
	err := run(context.Background(), []string{"ask"}, io.Discard)
	assert.Equal(t, dataplan.ErrCodeInvalidInput, dataplan.CodeOf(err))
}

func TestPlanNeedsModel(t *testing.T) {
	plan := &dataplan.Plan{Steps: []dataplan.Step{{Tool: "load_x"}}}
	assert.False(t, planNeedsModel(plan))
	plan.Steps = append(plan.Steps, dataplan.Step{Tool: dataplan.TranslateToolName})
	assert.True(t, planNeedsModel(plan))
}

func TestWriteResult_Code(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, writeResult(&out, dataplan.CodeResult("df_out = df_in")))
	assert.Equal(t, "Generated code (not executed):\ndf_out = df_in\n", out.String())
}

func TestOutcomeView(t *testing.T) {
	o := &dataplan.Outcome{
		RequestID: "r1",
		Plan:      &dataplan.Plan{Dataset: "d", Steps: []dataplan.Step{{Tool: "load_d"}}},
		Summary:   "s",
		Result:    dataplan.TableResult(dataplan.NewTable([]string{"a"}, []dataplan.Row{{"a": 1}})),
		States:    []dataplan.ProcessState{dataplan.StateInit, dataplan.StateComplete},
	}
	v := outcomeView(o)
	assert.Equal(t, []string{"init", "complete"}, v.States)
	assert.Equal(t, "s", v.Plan.Summary)
	assert.Equal(t, []string{"a"}, v.Result.Columns)
}
