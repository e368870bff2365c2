// Package tools defines the tool specs offered to models and the argument
// checks applied to plan steps.
package tools

import (
	"fmt"
	"sort"

	"github.com/ZanzyTHEbar/dataplan-genkit"
	"github.com/ZanzyTHEbar/dataplan-genkit/internal/filter"
)

const makePlanDescription = "Produce a minimal plan that answers the user's question about the dataset. " +
	"Use only the allowed tools. Start with the load tool, narrow rows with filter_df using " +
	"columns and canonical values from the schema context, and use translate_to_pandas only when " +
	"the request needs computation that filters cannot express (aggregation, ranking, derived columns). " +
	"Dates are ISO strings (YYYY-MM-DD)."

// Registry publishes the planner-visible and execution-visible tool specs.
// It implements dataplan.ToolCatalog.
type Registry struct{}

// NewRegistry creates a registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// AllowedToolNames returns the execution tool names a plan for dataset may use.
func AllowedToolNames(dataset string) []string {
	return []string{dataplan.LoadToolName(dataset), dataplan.FilterToolName, dataplan.TranslateToolName}
}

// Limits on the free text a plan carries.
const (
	MaxTextLength  = 120
	MaxAssumptions = 3
)

// MakePlanSchema returns the JSON Schema of make_plan arguments. Unknown keys
// are rejected at the top level and on every step.
func MakePlanSchema(allowed []string) map[string]any {
	enum := append([]string(nil), allowed...)
	sort.Strings(enum)
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"steps": map[string]any{
				"type":     "array",
				"minItems": 1,
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"tool": map[string]any{"type": "string", "enum": enum},
						"args": map[string]any{"type": "object"},
					},
					"required":             []string{"tool", "args"},
					"additionalProperties": false,
				},
			},
			"why": map[string]any{"type": "string", "maxLength": MaxTextLength},
			"assumptions": map[string]any{
				"type":     "array",
				"maxItems": MaxAssumptions,
				"items":    map[string]any{"type": "string", "maxLength": MaxTextLength},
			},
		},
		"required":             []string{"steps", "why", "assumptions"},
		"additionalProperties": false,
	}
}

// MakePlanSpec is the only tool offered during planning.
func MakePlanSpec(dataset string) dataplan.ToolSpec {
	spec := NewSpec(dataplan.MakePlanToolName,
		WithDescription(makePlanDescription),
		WithExamples(
			`{"steps":[{"tool":"`+dataplan.LoadToolName(dataset)+`","args":{}},{"tool":"filter_df","args":{"filters":[{"col":"team","op":"==","val":"Real Madrid"}]}}],"why":"players of one team","assumptions":[]}`,
		),
	)
	spec.Parameters = MakePlanSchema(AllowedToolNames(dataset))
	return spec
}

// LoadSpec describes the load tool bound to dataset.
func LoadSpec(dataset string) dataplan.ToolSpec {
	return NewSpec(dataplan.LoadToolName(dataset),
		WithDescription(fmt.Sprintf("Load the full %s table. Takes no arguments.", dataset)),
		WithClosedArgs(),
	)
}

// FilterSpec describes filter_df.
func FilterSpec() dataplan.ToolSpec {
	ops := make([]string, len(dataplan.SupportedOps))
	for i, op := range dataplan.SupportedOps {
		ops[i] = string(op)
	}
	return NewSpec(dataplan.FilterToolName,
		WithDescription("Keep the rows of the current table matching every filter (AND). "+
			"in and not_in take a list value; contains is a case-insensitive substring match."),
		WithProperty("filters", map[string]any{
			"type":     "array",
			"minItems": 1,
			"items": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"col": map[string]any{"type": "string"},
					"op":  map[string]any{"type": "string", "enum": ops},
					"val": map[string]any{},
				},
				"required":             []string{"col", "op", "val"},
				"additionalProperties": false,
			},
		}),
		WithRequired("filters"),
		WithClosedArgs(),
		WithExamples(`{"filters":[{"col":"as_of_date","op":">=","val":"2025-09-01"}]}`),
	)
}

// TranslateSpec describes translate_to_pandas.
func TranslateSpec() dataplan.ToolSpec {
	return NewSpec(dataplan.TranslateToolName,
		WithDescription("Translate the request into pandas code over the loaded table. "+
			"The code is returned, not executed, and ends the plan."),
		WithProperty("query", map[string]any{"type": "string", "minLength": 1}),
		WithRequired("query"),
		WithClosedArgs(),
	)
}

// PlannerSpecs implements dataplan.ToolCatalog.
func (r *Registry) PlannerSpecs(dataset string) []dataplan.ToolSpec {
	return []dataplan.ToolSpec{MakePlanSpec(dataset)}
}

// ExecutionSpecs implements dataplan.ToolCatalog.
func (r *Registry) ExecutionSpecs(dataset string) []dataplan.ToolSpec {
	return []dataplan.ToolSpec{LoadSpec(dataset), FilterSpec(), TranslateSpec()}
}

// ValidateArgs checks a step's arguments without touching any data. Filter
// columns are not checked here since they depend on the loaded table.
func ValidateArgs(kind dataplan.ToolKind, tool string, args map[string]any) error {
	switch kind {
	case dataplan.ToolLoad:
		if len(args) > 0 {
			return dataplan.NewInvalidArgumentsError(tool, "takes no arguments")
		}
		return nil
	case dataplan.ToolFilter:
		if err := onlyKeys(tool, args, "filters"); err != nil {
			return err
		}
		_, err := filter.Parse(args["filters"])
		return err
	case dataplan.ToolTranslate:
		if err := onlyKeys(tool, args, "query"); err != nil {
			return err
		}
		q, ok := args["query"].(string)
		if !ok || q == "" {
			return dataplan.NewInvalidArgumentsError(tool, "requires a non-empty string 'query'")
		}
		return nil
	default:
		return dataplan.NewUnknownToolError(tool)
	}
}

func onlyKeys(tool string, args map[string]any, allowed ...string) error {
	extra := make([]string, 0)
	for k := range args {
		ok := false
		for _, a := range allowed {
			if k == a {
				ok = true
				break
			}
		}
		if !ok {
			extra = append(extra, k)
		}
	}
	if len(extra) == 0 {
		return nil
	}
	sort.Strings(extra)
	return dataplan.NewInvalidArgumentsError(tool, fmt.Sprintf("unexpected argument '%s'", extra[0]))
}
