package planner

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/ZanzyTHEbar/dataplan-genkit"
	"gopkg.in/yaml.v3"
)

// PlanFileLoader decodes a plan document of one format.
type PlanFileLoader interface {
	Decode(data []byte) (map[string]any, error)
	Format() string // e.g. "yaml", "json"
}

var loaderRegistry = make(map[string]PlanFileLoader)

// RegisterPlanFileLoader registers a loader for its format.
func RegisterPlanFileLoader(loader PlanFileLoader) {
	loaderRegistry[loader.Format()] = loader
}

// GetPlanFileLoader retrieves a loader by format name.
func GetPlanFileLoader(format string) (PlanFileLoader, bool) {
	loader, ok := loaderRegistry[format]
	return loader, ok
}

type yamlLoader struct{}

func (yamlLoader) Decode(data []byte) (map[string]any, error) {
	var doc map[string]any
	err := yaml.Unmarshal(data, &doc)
	return doc, err
}

func (yamlLoader) Format() string { return "yaml" }

type jsonLoader struct{}

func (jsonLoader) Decode(data []byte) (map[string]any, error) {
	var doc map[string]any
	err := json.Unmarshal(data, &doc)
	return doc, err
}

func (jsonLoader) Format() string { return "json" }

func init() {
	RegisterPlanFileLoader(yamlLoader{})
	RegisterPlanFileLoader(jsonLoader{})
}

// planDocument is the on-disk shape of a plan.
type planDocument struct {
	Dataset     string          `json:"dataset" yaml:"dataset"`
	Steps       []dataplan.Step `json:"steps" yaml:"steps"`
	Why         string          `json:"why,omitempty" yaml:"why,omitempty"`
	Assumptions []string        `json:"assumptions,omitempty" yaml:"assumptions,omitempty"`
}

// ParsePlanDocument decodes a plan document. The document names its dataset
// and is validated with the same schema as model output; why and
// assumptions may be left out of hand-written files.
func ParsePlanDocument(data []byte, format string) (*dataplan.Plan, error) {
	loader, ok := GetPlanFileLoader(format)
	if !ok {
		return nil, dataplan.NewInvalidInputError(dataplan.StagePlanning, "unsupported plan format '"+format+"'")
	}
	doc, err := loader.Decode(data)
	if err != nil {
		return nil, dataplan.NewPlanningError("parse plan document", err)
	}
	if doc == nil {
		return nil, dataplan.NewPlanningError("plan document is empty", nil)
	}
	dataset, _ := doc["dataset"].(string)
	delete(doc, "dataset")
	if _, ok := doc["why"]; !ok {
		doc["why"] = ""
	}
	if _, ok := doc["assumptions"]; !ok {
		doc["assumptions"] = []any{}
	}
	return DecodePlanArgs(doc, dataset)
}

// LoadPlanFile reads a plan document, picking the format from the extension.
func LoadPlanFile(path string) (*dataplan.Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, dataplan.NewInvalidInputError(dataplan.StagePlanning, "read plan file: "+err.Error())
	}
	return ParsePlanDocument(data, formatOf(path))
}

// SavePlanFile writes plan in the format implied by the extension.
func SavePlanFile(path string, plan *dataplan.Plan) error {
	doc := planDocument{Dataset: plan.Dataset, Steps: plan.Steps, Why: plan.Why, Assumptions: plan.Assumptions}
	var (
		data []byte
		err  error
	)
	if formatOf(path) == "json" {
		data, err = json.MarshalIndent(doc, "", "  ")
	} else {
		data, err = yaml.Marshal(doc)
	}
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func formatOf(path string) string {
	if strings.EqualFold(filepath.Ext(path), ".json") {
		return "json"
	}
	return "yaml"
}
