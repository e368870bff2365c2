package dataplan

import "context"

// Role identifies the author of a chat message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one chat message sent to a model backend.
type Message struct {
	Role    Role
	Content string
}

// ToolChoiceMode controls whether the backend may answer in text.
type ToolChoiceMode string

const (
	ToolChoiceNone     ToolChoiceMode = "none"
	ToolChoiceAuto     ToolChoiceMode = "auto"
	ToolChoiceRequired ToolChoiceMode = "required"
)

// ToolChoice selects a tool mode. Name forces one specific tool when Mode is
// ToolChoiceRequired.
type ToolChoice struct {
	Mode ToolChoiceMode
	Name string
}

// ModelRequest is a single chat completion request.
type ModelRequest struct {
	Messages   []Message
	Tools      []ToolSpec
	ToolChoice ToolChoice
}

// ModelToolCall is a structured tool invocation returned by a backend.
// Arguments holds the raw JSON text as produced by the model.
type ModelToolCall struct {
	Name      string
	Arguments string
}

// ModelResponse holds either tool invocations, text, or both.
type ModelResponse struct {
	ToolCalls []ModelToolCall
	Text      string
}

// ModelBackend performs one chat completion round-trip.
type ModelBackend interface {
	Complete(ctx context.Context, req *ModelRequest) (*ModelResponse, error)
}

// PlanRequest is the input of one planning round.
type PlanRequest struct {
	UserText      string
	Specs         []ToolSpec
	SchemaContext string
	ForcedTool    string
	SystemPrompt  string
}

// Planner turns user text into a tool call and decodes make_plan calls into a
// Plan IR.
type Planner interface {
	Plan(ctx context.Context, req PlanRequest) (*ToolCall, error)
	DecodePlan(call *ToolCall, dataset string) (*Plan, error)
}

// Executor runs a Plan IR to completion.
type Executor interface {
	ExecutePlan(ctx context.Context, plan *Plan) (*Result, error)
}

// Translator turns a natural language query into dataframe code.
type Translator interface {
	GenerateCode(ctx context.Context, query string, doc *SchemaDocument) (string, error)
}

// SchemaProvider resolves dataset schemas.
type SchemaProvider interface {
	GetSchema(dataset string) (*SchemaDocument, error)
	PlannerContext(dataset string) (string, error)
	ListColumns(dataset string) ([]string, error)
}

// ToolCatalog exposes the planner-visible and execution-visible tool specs.
// The two sets never overlap.
type ToolCatalog interface {
	PlannerSpecs(dataset string) []ToolSpec
	ExecutionSpecs(dataset string) []ToolSpec
}

// DataSource fetches every row of a table.
type DataSource interface {
	FetchAll(ctx context.Context, table string) ([]Row, error)
}

// TableLoader produces typed tables for datasets.
type TableLoader interface {
	Load(ctx context.Context, dataset string) (*Table, error)
}
