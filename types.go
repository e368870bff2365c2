package dataplan

import (
	"fmt"
	"strings"
)

// Wire names of the tools a Plan IR may reference.
const (
	MakePlanToolName  = "make_plan"
	FilterToolName    = "filter_df"
	TranslateToolName = "translate_to_pandas"
	LoadToolPrefix    = "load_"
)

// ToolKind is the closed set of step kinds understood by the executor.
type ToolKind int

const (
	ToolUnknown ToolKind = iota
	ToolLoad
	ToolFilter
	ToolTranslate
)

// String returns the abstract name of the kind.
func (k ToolKind) String() string {
	switch k {
	case ToolLoad:
		return "load"
	case ToolFilter:
		return "filter"
	case ToolTranslate:
		return "translate"
	default:
		return "unknown"
	}
}

// LoadToolName returns the wire name of the load tool bound to dataset.
func LoadToolName(dataset string) string {
	return LoadToolPrefix + dataset
}

// ResolveTool maps a wire tool name onto its kind. Load tools also yield the
// dataset they are bound to.
func ResolveTool(name string) (ToolKind, string, error) {
	switch {
	case name == FilterToolName:
		return ToolFilter, "", nil
	case name == TranslateToolName:
		return ToolTranslate, "", nil
	case strings.HasPrefix(name, LoadToolPrefix) && len(name) > len(LoadToolPrefix):
		return ToolLoad, strings.TrimPrefix(name, LoadToolPrefix), nil
	default:
		return ToolUnknown, "", NewUnknownToolError(name)
	}
}

// Step is a single instruction of a Plan IR.
type Step struct {
	Tool string         `json:"tool" yaml:"tool"`
	Args map[string]any `json:"args" yaml:"args"`
}

// Kind resolves the step's tool name.
func (s Step) Kind() (ToolKind, string, error) {
	return ResolveTool(s.Tool)
}

// Plan is the intermediate representation emitted by the planner and consumed
// by the executor. Dataset is the dataset that was active when the plan was
// produced; it never travels on the wire.
type Plan struct {
	Steps       []Step   `json:"steps" yaml:"steps"`
	Why         string   `json:"why,omitempty" yaml:"why,omitempty"`
	Assumptions []string `json:"assumptions,omitempty" yaml:"assumptions,omitempty"`
	Dataset     string   `json:"-" yaml:"-"`
}

// Clone returns a deep copy of the plan. Nested argument maps and lists are
// copied so the clone shares no mutable state with p.
func (p *Plan) Clone() *Plan {
	if p == nil {
		return nil
	}
	c := &Plan{Why: p.Why, Dataset: p.Dataset}
	if p.Steps != nil {
		c.Steps = make([]Step, len(p.Steps))
		for i, s := range p.Steps {
			c.Steps[i] = Step{Tool: s.Tool}
			if s.Args != nil {
				c.Steps[i].Args = cloneValue(s.Args).(map[string]any)
			}
		}
	}
	if p.Assumptions != nil {
		c.Assumptions = append([]string(nil), p.Assumptions...)
	}
	return c
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		m := make(map[string]any, len(t))
		for k, val := range t {
			m[k] = cloneValue(val)
		}
		return m
	case []any:
		l := make([]any, len(t))
		for i, val := range t {
			l[i] = cloneValue(val)
		}
		return l
	case []string:
		return append([]string(nil), t...)
	default:
		return v
	}
}

// Op is a filter operator.
type Op string

const (
	OpEq       Op = "=="
	OpNe       Op = "!="
	OpGt       Op = ">"
	OpGe       Op = ">="
	OpLt       Op = "<"
	OpLe       Op = "<="
	OpIn       Op = "in"
	OpNotIn    Op = "not_in"
	OpContains Op = "contains"
)

// SupportedOps lists every operator the filter engine accepts.
var SupportedOps = []Op{OpEq, OpNe, OpGt, OpGe, OpLt, OpLe, OpIn, OpNotIn, OpContains}

// Valid reports whether op is whitelisted.
func (o Op) Valid() bool {
	for _, s := range SupportedOps {
		if o == s {
			return true
		}
	}
	return false
}

// RequiresSequence reports whether the operator's value must be a list.
func (o Op) RequiresSequence() bool {
	return o == OpIn || o == OpNotIn
}

// Ordering reports whether the operator compares by order.
func (o Op) Ordering() bool {
	return o == OpGt || o == OpGe || o == OpLt || o == OpLe
}

// Filter is a single row predicate. Filters in a list are combined with AND.
type Filter struct {
	Col string `json:"col" yaml:"col"`
	Op  Op     `json:"op" yaml:"op"`
	Val any    `json:"val" yaml:"val"`
}

// String renders the filter the way plan summaries show it.
func (f Filter) String() string {
	return fmt.Sprintf("%s %s %s", f.Col, f.Op, quoteValue(f.Val))
}

func quoteValue(v any) string {
	switch t := v.(type) {
	case string:
		return "'" + t + "'"
	case []any:
		parts := make([]string, 0, len(t))
		for _, e := range t {
			parts = append(parts, quoteValue(e))
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case nil:
		return "null"
	default:
		return fmt.Sprint(t)
	}
}

// ToolCall is the structured decision extracted from a planning round.
type ToolCall struct {
	ToolName    string         `json:"tool_name"`
	Args        map[string]any `json:"args"`
	Confidence  float64        `json:"confidence"`
	Why         string         `json:"why,omitempty"`
	Assumptions []string       `json:"assumptions,omitempty"`
}

// ToolSpec describes a tool to a model backend. Parameters is a JSON Schema
// object.
type ToolSpec struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// ResultKind distinguishes the two shapes an execution can produce.
type ResultKind string

const (
	ResultTable ResultKind = "table"
	ResultCode  ResultKind = "code"
)

// Result is the outcome of executing a plan: either a table or generated code.
type Result struct {
	Kind  ResultKind
	Table *Table
	Code  string
}

// IsCode reports whether execution stopped at a translate step.
func (r *Result) IsCode() bool {
	return r != nil && r.Kind == ResultCode
}

// TableResult wraps a table.
func TableResult(t *Table) *Result {
	return &Result{Kind: ResultTable, Table: t}
}

// CodeResult wraps generated code.
func CodeResult(code string) *Result {
	return &Result{Kind: ResultCode, Code: code}
}
