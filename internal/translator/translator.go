// Package translator turns natural language requests into dataframe code.
package translator

import (
	"context"
	"log/slog"
	"strings"

	"github.com/ZanzyTHEbar/dataplan-genkit"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// DefaultPreviewLimit bounds the canonical values listed per column.
const DefaultPreviewLimit = 40

// Translator performs exactly one model round-trip per request.
type Translator struct {
	backend      dataplan.ModelBackend
	aliases      map[string]string
	previewLimit int
	logger       *slog.Logger
	tracer       trace.Tracer
}

// Option configures a Translator.
type Option func(*Translator)

// WithAliases sets alias hints mapping user wording to canonical values.
func WithAliases(aliases map[string]string) Option {
	return func(t *Translator) {
		t.aliases = aliases
	}
}

// WithPreviewLimit sets the per-column bound on listed canonical values.
func WithPreviewLimit(n int) Option {
	return func(t *Translator) {
		t.previewLimit = n
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(t *Translator) {
		t.logger = logger
	}
}

// WithTracer sets the tracer.
func WithTracer(tracer trace.Tracer) Option {
	return func(t *Translator) {
		t.tracer = tracer
	}
}

// New creates a translator over backend.
func New(backend dataplan.ModelBackend, options ...Option) *Translator {
	t := &Translator{
		backend:      backend,
		previewLimit: DefaultPreviewLimit,
		logger:       slog.Default(),
		tracer:       otel.Tracer("dataplan/translator"),
	}
	for _, option := range options {
		option(t)
	}
	t.logger = t.logger.With("component", "translator")
	return t
}

// GenerateCode implements dataplan.Translator. The generated code is
// returned with surrounding whitespace trimmed and is never executed.
func (t *Translator) GenerateCode(ctx context.Context, query string, doc *dataplan.SchemaDocument) (string, error) {
	if strings.TrimSpace(query) == "" {
		return "", dataplan.NewInvalidInputError(dataplan.StageTranslation, "query must be non-empty")
	}
	if doc == nil {
		return "", dataplan.NewInvalidInputError(dataplan.StageTranslation, "schema document is required")
	}

	ctx, span := t.tracer.Start(ctx, "Translator.GenerateCode",
		trace.WithAttributes(attribute.String("dataset", doc.Dataset)))
	defer span.End()

	req := &dataplan.ModelRequest{
		Messages: []dataplan.Message{
			{Role: dataplan.RoleSystem, Content: SystemPrompt},
			{Role: dataplan.RoleUser, Content: BuildPrompt(query, doc, t.aliases, t.previewLimit)},
		},
		ToolChoice: dataplan.ToolChoice{Mode: dataplan.ToolChoiceNone},
	}
	t.logger.Debug("translating request", "dataset", doc.Dataset, "query", query)

	resp, err := t.backend.Complete(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "backend request failed")
		return "", dataplan.NewBackendError(dataplan.StageTranslation, err)
	}
	code := strings.TrimSpace(resp.Text)
	if code == "" {
		span.SetStatus(codes.Error, "empty code")
		return "", dataplan.NewTranslationError("model returned no code", nil)
	}

	span.SetAttributes(attribute.Int("code.length", len(code)))
	t.logger.Info("translation complete", "dataset", doc.Dataset, "code_length", len(code))
	return code, nil
}
