package planner

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/ZanzyTHEbar/dataplan-genkit"
)

// Confidence assigned to structured tool invocations, which carry none.
const toolInvocationConfidence = 0.75

// Confidence assigned to text answers that omit it.
const defaultTextConfidence = 0.5

var fencedJSON = regexp.MustCompile("(?s)```(?:json)?\\s*(\\{.*?\\})\\s*```")

// extractor yields a candidate decision document from a model response.
// ok is false when the strategy does not apply or its output does not parse.
type extractor func(resp *dataplan.ModelResponse) (doc map[string]any, ok bool)

// extractionChain is tried in order; the first strategy yielding a document
// wins.
var extractionChain = []extractor{
	fromToolInvocation,
	fromFencedJSON,
	fromBraceSpan,
}

func fromToolInvocation(resp *dataplan.ModelResponse) (map[string]any, bool) {
	if len(resp.ToolCalls) == 0 {
		return nil, false
	}
	call := resp.ToolCalls[0]
	args := map[string]any{}
	if strings.TrimSpace(call.Arguments) != "" {
		if err := json.Unmarshal([]byte(call.Arguments), &args); err != nil {
			return nil, false
		}
	}
	return map[string]any{
		"tool_name":  call.Name,
		"args":       args,
		"confidence": toolInvocationConfidence,
	}, true
}

func fromFencedJSON(resp *dataplan.ModelResponse) (map[string]any, bool) {
	m := fencedJSON.FindStringSubmatch(resp.Text)
	if m == nil {
		return nil, false
	}
	return parseObject(m[1])
}

func fromBraceSpan(resp *dataplan.ModelResponse) (map[string]any, bool) {
	span, ok := firstBalancedObject(resp.Text)
	if !ok {
		return nil, false
	}
	return parseObject(span)
}

func parseObject(s string) (map[string]any, bool) {
	var doc map[string]any
	if err := json.Unmarshal([]byte(s), &doc); err != nil || doc == nil {
		return nil, false
	}
	return doc, true
}

// firstBalancedObject returns the first {...} span whose braces balance,
// ignoring braces inside JSON strings.
func firstBalancedObject(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", false
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}

// toToolCall checks the shape of a decision document.
func toToolCall(doc map[string]any) (*dataplan.ToolCall, error) {
	name, ok := doc["tool_name"].(string)
	if !ok || strings.TrimSpace(name) == "" {
		return nil, dataplan.NewPlanningError("decision is missing a non-empty 'tool_name'", nil)
	}
	call := &dataplan.ToolCall{ToolName: name, Confidence: defaultTextConfidence}

	switch a := doc["args"].(type) {
	case nil:
		call.Args = map[string]any{}
	case map[string]any:
		call.Args = a
	default:
		return nil, dataplan.NewPlanningError("decision 'args' must be an object", nil)
	}

	if raw, present := doc["confidence"]; present && raw != nil {
		c, ok := raw.(float64)
		if !ok || c < 0 || c > 1 {
			return nil, dataplan.NewPlanningError("decision 'confidence' must be a number between 0 and 1", nil)
		}
		call.Confidence = c
	}
	if why, ok := doc["why"].(string); ok {
		call.Why = why
	}
	if list, ok := doc["assumptions"].([]any); ok {
		for _, a := range list {
			if s, ok := a.(string); ok {
				call.Assumptions = append(call.Assumptions, s)
			}
		}
	}
	return call, nil
}
