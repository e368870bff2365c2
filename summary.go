package dataplan

import (
	"encoding/json"
	"fmt"
	"strings"
)

// SummarizePlan renders a short Markdown description of plan without
// calling a model.
func SummarizePlan(plan *Plan) string {
	if plan == nil || len(plan.Steps) == 0 {
		return "No plan produced."
	}

	var b strings.Builder
	if plan.Why != "" {
		fmt.Fprintf(&b, "**Intent:** %s\n\n", plan.Why)
	}
	b.WriteString("**Steps:**\n")
	for i, step := range plan.Steps {
		fmt.Fprintf(&b, "%d. %s\n", i+1, describeStep(step))
	}
	if len(plan.Assumptions) > 0 {
		b.WriteString("\n**Assumptions:**\n")
		for _, a := range plan.Assumptions {
			fmt.Fprintf(&b, "- %s\n", a)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func describeStep(step Step) string {
	kind, dataset, err := step.Kind()
	if err != nil {
		kind = ToolUnknown
	}
	switch kind {
	case ToolLoad:
		return fmt.Sprintf("Load %s snapshot (cached).", dataset)
	case ToolFilter:
		descs := describeFilters(step.Args["filters"])
		if len(descs) == 0 {
			return "Filter current table (no filters provided)."
		}
		return "Filter current table where " + strings.Join(descs, "; ") + "."
	case ToolTranslate:
		q, _ := step.Args["query"].(string)
		return fmt.Sprintf("Generate pandas code for: %s (no execution here).", quoteValue(q))
	}
	args, err := json.Marshal(step.Args)
	if err != nil || step.Args == nil {
		args = []byte("{}")
	}
	return fmt.Sprintf("%s (args: %s)", step.Tool, args)
}

func describeFilters(raw any) []string {
	list, ok := raw.([]any)
	if !ok {
		return nil
	}
	descs := make([]string, 0, len(list))
	for _, item := range list {
		m, ok := item.(map[string]any)
		if !ok {
			descs = append(descs, fmt.Sprint(item))
			continue
		}
		col, _ := m["col"].(string)
		op, _ := m["op"].(string)
		descs = append(descs, Filter{Col: col, Op: Op(op), Val: m["val"]}.String())
	}
	return descs
}
