package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ZanzyTHEbar/dataplan-genkit"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

const (
	ToolPlanRequest     = "plan_request"
	ToolAskDataset      = "ask_dataset"
	ToolDescribeDataset = "describe_dataset"

	// previewRows bounds the table rows rendered into an ask_dataset answer.
	previewRows = 50
)

// Orchestrator is the part of the orchestration core the server exposes.
type Orchestrator interface {
	PlanRequest(ctx context.Context, text, dataset string) (*dataplan.PlanOutcome, error)
	Ask(ctx context.Context, text, dataset string) (*dataplan.Outcome, error)
}

// Server wraps an mcp-go server with the dataplan tools registered.
type Server struct {
	mcpServer      *server.MCPServer
	core           Orchestrator
	schemas        dataplan.SchemaProvider
	defaultDataset string
	logger         *slog.Logger
}

type Option func(*Server)

func WithDefaultDataset(dataset string) Option {
	return func(s *Server) {
		s.defaultDataset = dataset
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New creates a server and registers plan_request, ask_dataset and describe_dataset.
func New(name, version string, core Orchestrator, schemas dataplan.SchemaProvider, options ...Option) *Server {
	s := &Server{
		mcpServer: server.NewMCPServer(name, version, server.WithToolCapabilities(false)),
		core:      core,
		schemas:   schemas,
		logger:    slog.Default(),
	}
	for _, opt := range options {
		opt(s)
	}
	s.logger = s.logger.With("component", "mcp_server")

	datasetArg := mcp.WithString("dataset", mcp.Description("Dataset name. Defaults to "+s.defaultDataset+"."))

	s.mcpServer.AddTool(mcp.NewTool(ToolPlanRequest,
		mcp.WithDescription("Plan a data lookup for a question without executing it. Returns the plan and a readable summary."),
		mcp.WithString("text", mcp.Required(), mcp.Description("The user's question.")),
		datasetArg,
	), s.handlePlanRequest)

	s.mcpServer.AddTool(mcp.NewTool(ToolAskDataset,
		mcp.WithDescription("Plan and execute a data lookup. Returns a table preview or generated pandas code."),
		mcp.WithString("text", mcp.Required(), mcp.Description("The user's question.")),
		datasetArg,
	), s.handleAsk)

	s.mcpServer.AddTool(mcp.NewTool(ToolDescribeDataset,
		mcp.WithDescription("Return the schema document of a dataset as JSON."),
		datasetArg,
	), s.handleDescribe)

	return s
}

// MCPServer exposes the underlying server.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcpServer
}

// ServeStdio blocks serving the tools on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

func (s *Server) dataset(req mcp.CallToolRequest) string {
	if ds := strings.TrimSpace(req.GetString("dataset", "")); ds != "" {
		return ds
	}
	return s.defaultDataset
}

func (s *Server) handlePlanRequest(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	text, err := req.RequireString("text")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out, err := s.core.PlanRequest(ctx, text, s.dataset(req))
	if err != nil {
		return s.toolError(ToolPlanRequest, err), nil
	}
	planJSON, err := json.MarshalIndent(out.Plan, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode plan: %w", err)
	}
	return mcp.NewToolResultText(out.Summary + "\n\n```json\n" + string(planJSON) + "\n```"), nil
}

func (s *Server) handleAsk(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	text, err := req.RequireString("text")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out, err := s.core.Ask(ctx, text, s.dataset(req))
	if err != nil {
		return s.toolError(ToolAskDataset, err), nil
	}

	var b strings.Builder
	b.WriteString(out.Summary)
	b.WriteString("\n\n")
	switch {
	case out.Result.IsCode():
		b.WriteString("Generated code (not executed):\n```python\n")
		b.WriteString(out.Result.Code)
		b.WriteString("\n```")
	case out.Result != nil:
		writeTable(&b, out.Result.Table, previewRows)
	}
	return mcp.NewToolResultText(b.String()), nil
}

func (s *Server) handleDescribe(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	doc, err := s.schemas.GetSchema(s.dataset(req))
	if err != nil {
		return s.toolError(ToolDescribeDataset, err), nil
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode schema: %w", err)
	}
	return mcp.NewToolResultText(string(data)), nil
}

// toolError reports failures in-band so the client model can react to them.
func (s *Server) toolError(tool string, err error) *mcp.CallToolResult {
	s.logger.Warn("tool call failed", "tool", tool, "code", dataplan.CodeOf(err), "error", err)
	return mcp.NewToolResultError(err.Error())
}

// writeTable renders up to limit rows as a Markdown table.
func writeTable(b *strings.Builder, t *dataplan.Table, limit int) {
	if t == nil || len(t.Columns) == 0 {
		b.WriteString("No rows.")
		return
	}
	fmt.Fprintf(b, "%d rows\n\n", t.Len())
	b.WriteString("| " + strings.Join(t.Columns, " | ") + " |\n")
	b.WriteString("|" + strings.Repeat(" --- |", len(t.Columns)) + "\n")
	for i, row := range t.Rows {
		if i == limit {
			fmt.Fprintf(b, "\n(%d more rows)", t.Len()-limit)
			break
		}
		cells := make([]string, len(t.Columns))
		for j, col := range t.Columns {
			cells[j] = dataplan.FormatValue(row[col])
		}
		b.WriteString("| " + strings.Join(cells, " | ") + " |\n")
	}
}
