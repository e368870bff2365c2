package filter

import (
	"fmt"

	"github.com/Knetic/govaluate"
	"github.com/ZanzyTHEbar/dataplan-genkit"
)

// Predicates are compiled govaluate expressions over two parameters, "cell"
// and "val". Only the functions registered below are callable, and filter
// values are only ever bound as parameters, never spliced into the source.
var predicateSources = map[dataplan.Op]string{
	dataplan.OpEq:       "same(cell, val)",
	dataplan.OpNe:       "!same(cell, val)",
	dataplan.OpGt:       "order(cell, val) > 0",
	dataplan.OpGe:       "order(cell, val) >= 0",
	dataplan.OpLt:       "order(cell, val) < 0",
	dataplan.OpLe:       "order(cell, val) <= 0",
	dataplan.OpIn:       "member(cell, val)",
	dataplan.OpNotIn:    "!member(cell, val)",
	dataplan.OpContains: "contains(cell, val)",
}

// whitelistedFunctions returns the only functions predicates may call.
func whitelistedFunctions() map[string]govaluate.ExpressionFunction {
	return map[string]govaluate.ExpressionFunction{
		"same": func(args ...interface{}) (interface{}, error) {
			if len(args) != 2 {
				return nil, fmt.Errorf("same expects 2 arguments, got %d", len(args))
			}
			return equalValues(args[0], args[1]), nil
		},
		"order": func(args ...interface{}) (interface{}, error) {
			if len(args) != 2 {
				return nil, fmt.Errorf("order expects 2 arguments, got %d", len(args))
			}
			c, err := compareValues(args[0], args[1])
			if err != nil {
				return nil, err
			}
			return float64(c), nil
		},
		"member": func(args ...interface{}) (interface{}, error) {
			if len(args) != 2 {
				return nil, fmt.Errorf("member expects 2 arguments, got %d", len(args))
			}
			set, ok := args[1].([]any)
			if !ok {
				return nil, fmt.Errorf("member expects a list, got %T", args[1])
			}
			for _, v := range set {
				if equalValues(args[0], v) {
					return true, nil
				}
			}
			return false, nil
		},
		"contains": func(args ...interface{}) (interface{}, error) {
			if len(args) != 2 {
				return nil, fmt.Errorf("contains expects 2 arguments, got %d", len(args))
			}
			return containsFold(args[0], args[1]), nil
		},
	}
}

type predicate struct {
	op   dataplan.Op
	expr *govaluate.EvaluableExpression
}

func compilePredicates() (map[dataplan.Op]*predicate, error) {
	funcs := whitelistedFunctions()
	out := make(map[dataplan.Op]*predicate, len(predicateSources))
	for op, src := range predicateSources {
		expr, err := govaluate.NewEvaluableExpressionWithFunctions(src, funcs)
		if err != nil {
			return nil, fmt.Errorf("compile predicate for op '%s': %w", op, err)
		}
		out[op] = &predicate{op: op, expr: expr}
	}
	return out, nil
}

// eval applies the predicate to one cell. Null cells never reach the
// expression: they satisfy only the negated operators.
func (p *predicate) eval(cell, val any) (bool, error) {
	if isNull(cell) {
		return p.op == dataplan.OpNe || p.op == dataplan.OpNotIn, nil
	}
	res, err := p.expr.Evaluate(map[string]interface{}{"cell": cell, "val": val})
	if err != nil {
		return false, err
	}
	b, ok := res.(bool)
	if !ok {
		return false, fmt.Errorf("predicate for op '%s' returned %T", p.op, res)
	}
	return b, nil
}
