package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/ZanzyTHEbar/dataplan-genkit"
)

// maxRows bounds the rows printed for a table result.
const maxRows = 100

type planJSON struct {
	Dataset     string          `json:"dataset"`
	Steps       []dataplan.Step `json:"steps"`
	Why         string          `json:"why"`
	Assumptions []string        `json:"assumptions"`
	Summary     string          `json:"summary"`
}

type resultJSON struct {
	Kind    dataplan.ResultKind `json:"kind"`
	Code    string              `json:"code,omitempty"`
	Columns []string            `json:"columns,omitempty"`
	Rows    []dataplan.Row      `json:"rows,omitempty"`
}

type outcomeJSON struct {
	RequestID  string      `json:"request_id"`
	Plan       *planJSON   `json:"plan,omitempty"`
	Result     *resultJSON `json:"result,omitempty"`
	States     []string    `json:"states"`
	DurationMS int64       `json:"duration_ms"`
}

func planView(plan *dataplan.Plan, summary string) *planJSON {
	if plan == nil {
		return nil
	}
	return &planJSON{
		Dataset:     plan.Dataset,
		Steps:       plan.Steps,
		Why:         plan.Why,
		Assumptions: plan.Assumptions,
		Summary:     summary,
	}
}

func resultView(res *dataplan.Result) *resultJSON {
	if res == nil {
		return nil
	}
	if res.IsCode() {
		return &resultJSON{Kind: res.Kind, Code: res.Code}
	}
	view := &resultJSON{Kind: res.Kind}
	if res.Table != nil {
		view.Columns = res.Table.Columns
		view.Rows = res.Table.Rows
	}
	return view
}

func outcomeView(o *dataplan.Outcome) *outcomeJSON {
	states := make([]string, len(o.States))
	for i, s := range o.States {
		states[i] = string(s)
	}
	return &outcomeJSON{
		RequestID:  o.RequestID,
		Plan:       planView(o.Plan, o.Summary),
		Result:     resultView(o.Result),
		States:     states,
		DurationMS: o.Duration.Milliseconds(),
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newTableWriter(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 8, 2, ' ', 0)
}

func writeRow(tw *tabwriter.Writer, cols ...string) {
	for i, col := range cols {
		cols[i] = normalizeCell(col)
	}
	fmt.Fprintln(tw, strings.Join(cols, "\t"))
}

func normalizeCell(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return "-"
	}
	return strings.Join(strings.Fields(value), " ")
}

func writeSchema(w io.Writer, doc *dataplan.SchemaDocument) error {
	tw := newTableWriter(w)
	writeRow(tw, "COLUMN", "DTYPE", "VALUES")
	for _, col := range doc.Columns {
		values := ""
		if hint, ok := doc.ValueHints[col.Name]; ok {
			values = strings.Join(hint.Values, ", ")
			if hint.Complete {
				values += " (complete)"
			}
		}
		writeRow(tw, col.Name, col.DType, values)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	if doc.Rules.DateColumn != nil {
		fmt.Fprintf(w, "\ndate column: %s\n", *doc.Rules.DateColumn)
	}
	return nil
}

func writeResult(w io.Writer, res *dataplan.Result) error {
	switch {
	case res == nil:
		fmt.Fprintln(w, "No result.")
		return nil
	case res.IsCode():
		fmt.Fprintln(w, "Generated code (not executed):")
		fmt.Fprintln(w, res.Code)
		return nil
	}

	t := res.Table
	if t.Len() == 0 {
		fmt.Fprintln(w, "No rows.")
		return nil
	}
	tw := newTableWriter(w)
	header := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		header[i] = strings.ToUpper(c)
	}
	writeRow(tw, header...)
	for i, row := range t.Rows {
		if i == maxRows {
			break
		}
		cells := make([]string, len(t.Columns))
		for j, c := range t.Columns {
			cells[j] = dataplan.FormatValue(row[c])
		}
		writeRow(tw, cells...)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	if t.Len() > maxRows {
		fmt.Fprintf(w, "... %d more rows\n", t.Len()-maxRows)
	}
	fmt.Fprintf(w, "(%d rows)\n", t.Len())
	return nil
}
