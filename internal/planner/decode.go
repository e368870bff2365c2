package planner

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/ZanzyTHEbar/dataplan-genkit"
	"github.com/ZanzyTHEbar/dataplan-genkit/internal/tools"
	"github.com/xeipuuv/gojsonschema"
)

// compiled make_plan schemas by dataset
var planSchemas sync.Map

func planSchema(dataset string) (*gojsonschema.Schema, error) {
	if s, ok := planSchemas.Load(dataset); ok {
		return s.(*gojsonschema.Schema), nil
	}
	schema, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(tools.MakePlanSchema(tools.AllowedToolNames(dataset))))
	if err != nil {
		return nil, err
	}
	actual, _ := planSchemas.LoadOrStore(dataset, schema)
	return actual.(*gojsonschema.Schema), nil
}

// DecodePlanArgs validates make_plan arguments and converts them into a Plan
// bound to dataset.
func DecodePlanArgs(args map[string]any, dataset string) (*dataplan.Plan, error) {
	if dataset == "" {
		return nil, dataplan.NewInvalidInputError(dataplan.StagePlanning, "dataset must be non-empty")
	}
	if err := checkToolNames(args, dataset); err != nil {
		return nil, err
	}

	schema, err := planSchema(dataset)
	if err != nil {
		return nil, dataplan.NewPlanningError("compile plan schema", err)
	}
	result, err := schema.Validate(gojsonschema.NewGoLoader(args))
	if err != nil {
		return nil, dataplan.NewPlanningError("validate plan arguments", err)
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return nil, dataplan.NewPlanningError("plan does not match make_plan schema: "+strings.Join(msgs, "; "), nil)
	}

	data, err := json.Marshal(args)
	if err != nil {
		return nil, dataplan.NewPlanningError("encode plan arguments", err)
	}
	var plan dataplan.Plan
	if err := json.Unmarshal(data, &plan); err != nil {
		return nil, dataplan.NewPlanningError("decode plan arguments", err)
	}
	for i := range plan.Steps {
		if plan.Steps[i].Args == nil {
			plan.Steps[i].Args = map[string]any{}
		}
	}
	plan.Dataset = dataset
	return &plan, nil
}

// checkToolNames reports steps naming tools outside the allowed set before
// schema validation, so they surface as unknown tools.
func checkToolNames(args map[string]any, dataset string) error {
	steps, ok := args["steps"].([]any)
	if !ok {
		return nil
	}
	allowed := tools.AllowedToolNames(dataset)
	for i, s := range steps {
		step, ok := s.(map[string]any)
		if !ok {
			continue
		}
		name, ok := step["tool"].(string)
		if !ok {
			continue
		}
		known := false
		for _, a := range allowed {
			if name == a {
				known = true
				break
			}
		}
		if !known {
			err := dataplan.NewUnknownToolError(name)
			err.Stage = dataplan.StagePlanning
			err.Message = fmt.Sprintf("steps[%d]: %s", i, err.Message)
			return err
		}
	}
	return nil
}
