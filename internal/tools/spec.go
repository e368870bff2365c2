package tools

import (
	"strings"

	"github.com/ZanzyTHEbar/dataplan-genkit"
)

// specBuilder accumulates a JSON Schema object for one tool.
type specBuilder struct {
	name        string
	description string
	examples    []string
	properties  map[string]any
	required    []string
	closed      bool
}

// SpecOption configures a tool spec.
type SpecOption func(*specBuilder)

// WithDescription sets the description shown to the model.
func WithDescription(description string) SpecOption {
	return func(b *specBuilder) {
		b.description = description
	}
}

// WithProperty adds an argument with its JSON Schema.
func WithProperty(name string, schema map[string]any) SpecOption {
	return func(b *specBuilder) {
		b.properties[name] = schema
	}
}

// WithRequired marks arguments as required.
func WithRequired(names ...string) SpecOption {
	return func(b *specBuilder) {
		b.required = append(b.required, names...)
	}
}

// WithClosedArgs rejects arguments not declared with WithProperty.
func WithClosedArgs() SpecOption {
	return func(b *specBuilder) {
		b.closed = true
	}
}

// WithExamples appends usage examples to the description.
func WithExamples(examples ...string) SpecOption {
	return func(b *specBuilder) {
		b.examples = append(b.examples, examples...)
	}
}

// NewSpec builds a tool spec.
func NewSpec(name string, options ...SpecOption) dataplan.ToolSpec {
	b := &specBuilder{
		name:       name,
		properties: map[string]any{},
	}
	for _, option := range options {
		option(b)
	}

	params := map[string]any{
		"type":       "object",
		"properties": b.properties,
	}
	if len(b.required) > 0 {
		params["required"] = b.required
	}
	if b.closed {
		params["additionalProperties"] = false
	}

	desc := b.description
	if len(b.examples) > 0 {
		desc += "\nExamples:\n- " + strings.Join(b.examples, "\n- ")
	}
	return dataplan.ToolSpec{Name: b.name, Description: desc, Parameters: params}
}
