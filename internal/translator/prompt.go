package translator

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ZanzyTHEbar/dataplan-genkit"
)

// SystemPrompt is sent with every translation request.
const SystemPrompt = "You output ONLY valid Python pandas code — no prose."

// BuildPrompt renders the translation prompt for query over the dataset
// described by doc. previewLimit bounds the number of canonical values listed
// per column; values beyond it are elided.
func BuildPrompt(query string, doc *dataplan.SchemaDocument, aliases map[string]string, previewLimit int) string {
	var b strings.Builder

	b.WriteString("Translate the request into pandas code operating on an existing DataFrame named df_in.\n\n")
	fmt.Fprintf(&b, "Request: %s\n\n", query)

	fmt.Fprintf(&b, "Dataset: %s\n", doc.Dataset)
	b.WriteString("Columns (name: dtype):\n")
	for _, c := range doc.Columns {
		fmt.Fprintf(&b, "- %s: %s\n", c.Name, dataplan.NormalizeDType(c.DType))
	}
	if doc.Rules.DateColumn != nil {
		fmt.Fprintf(&b, "Date column: %s\n", *doc.Rules.DateColumn)
	}

	if hinted := doc.HintedColumns(); len(hinted) > 0 {
		b.WriteString("\nCanonical values:\n")
		for _, col := range hinted {
			hint := doc.ValueHints[col]
			vals := hint.Values
			suffix := ""
			if previewLimit > 0 && len(vals) > previewLimit {
				vals = vals[:previewLimit]
				suffix = fmt.Sprintf(", ... (%d more)", len(hint.Values)-previewLimit)
			} else if !hint.Complete {
				suffix = ", ... (incomplete)"
			}
			fmt.Fprintf(&b, "- %s: %s%s\n", col, strings.Join(vals, ", "), suffix)
		}
	}

	if len(aliases) > 0 {
		keys := make([]string, 0, len(aliases))
		for k := range aliases {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteString("\nAliases (user wording -> canonical value):\n")
		for _, k := range keys {
			fmt.Fprintf(&b, "- %s -> %s\n", k, aliases[k])
		}
	}

	b.WriteString("\nRules:\n")
	b.WriteString("- Use only the listed columns.")
	if doc.Rules.OnlyUseListedColumns {
		b.WriteString(" Any other column name is an error.")
	}
	b.WriteString("\n")
	if doc.Rules.CategoricalGuidance != "" {
		fmt.Fprintf(&b, "- %s\n", doc.Rules.CategoricalGuidance)
	}
	b.WriteString("- Never modify categorical columns; filter them with exact == (or isin) against canonical values.\n")
	b.WriteString("- If the request uses a non-canonical name, map it through the aliases when listed; " +
		"otherwise choose the canonical value the alias clearly refers to.\n")
	if doc.Rules.DateColumn != nil {
		dc := *doc.Rules.DateColumn
		fmt.Fprintf(&b, "- Coerce %s once with pd.to_datetime and compare against inclusive ISO bounds; do not use .dt.year or .dt.month.\n", dc)
	}
	b.WriteString("- Import only pandas (import pandas as pd).\n")
	b.WriteString("- Start with: df = df_in.copy()\n")
	b.WriteString("- End with: df_out = df\n")
	b.WriteString("- No file, network or database I/O.\n")
	b.WriteString("- Return code only, without markdown fences or commentary.\n")

	return b.String()
}
