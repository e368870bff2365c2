package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/firebase/genkit/go/genkit"
	"github.com/firebase/genkit/go/plugins/googleai"
	"github.com/openai/openai-go/option"
	"go.opentelemetry.io/otel"

	"github.com/ZanzyTHEbar/dataplan-genkit"
	"github.com/ZanzyTHEbar/dataplan-genkit/internal/adapters"
	"github.com/ZanzyTHEbar/dataplan-genkit/internal/cache"
	"github.com/ZanzyTHEbar/dataplan-genkit/internal/catalog"
	"github.com/ZanzyTHEbar/dataplan-genkit/internal/config"
	"github.com/ZanzyTHEbar/dataplan-genkit/internal/datasource"
	"github.com/ZanzyTHEbar/dataplan-genkit/internal/eventbus"
	"github.com/ZanzyTHEbar/dataplan-genkit/internal/executor"
	"github.com/ZanzyTHEbar/dataplan-genkit/internal/planner"
	"github.com/ZanzyTHEbar/dataplan-genkit/internal/telemetry"
	"github.com/ZanzyTHEbar/dataplan-genkit/internal/tools"
	"github.com/ZanzyTHEbar/dataplan-genkit/internal/translator"
)

const (
	serviceName = "dataplan"
	version     = "0.1.0"
)

// app holds the collaborators a command needs. Model-backed parts are nil
// unless the command asked for them.
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	catalog *catalog.Catalog
	tables  *cache.TableCache

	backend    dataplan.ModelBackend
	translator *translator.Translator
	executor   *executor.PlanExecutor
	core       *dataplan.DataPlan

	closers []func(context.Context) error
}

type needs struct {
	data  bool
	model bool
	core  bool
}

func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	creds, err := config.LoadCredentials()
	if err != nil {
		return nil, err
	}
	cfg.ApplyCredentials(creds)
	return cfg, nil
}

func newApp(ctx context.Context, cfg *config.Config, logOut io.Writer, n needs) (*app, error) {
	a := &app{
		cfg:    cfg,
		logger: telemetry.ConfigureSlog(logOut, cfg.ParsedLogLevel(), cfg.Log.Format),
	}

	if cfg.Telemetry.Enabled {
		shutdown, err := telemetry.Init(cfg.Telemetry.ServiceName, version, logOut)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, shutdown)
	}

	cat, err := catalog.Builtin()
	if err != nil {
		return nil, err
	}
	for _, path := range cfg.Catalog.Files {
		if err := cat.LoadFile(path); err != nil {
			return nil, err
		}
	}
	a.catalog = cat

	if !n.data && !n.model && !n.core {
		return a, nil
	}
	if err := cfg.Validate(n.model || n.core); err != nil {
		a.close(ctx)
		return nil, err
	}

	if n.data || n.core {
		source, err := a.dataSource()
		if err != nil {
			a.close(ctx)
			return nil, err
		}
		loader := datasource.NewLoader(source, cat, a.logger)
		a.tables, err = cache.NewTableCache(loader,
			cache.WithSize(cfg.Cache.Size),
			cache.WithTTL(cfg.Cache.TTL),
			cache.WithLogger(a.logger),
		)
		if err != nil {
			a.close(ctx)
			return nil, err
		}
	}

	if n.model || n.core {
		if a.backend, err = a.modelBackend(ctx); err != nil {
			a.close(ctx)
			return nil, err
		}
		a.translator = translator.New(a.backend,
			translator.WithLogger(a.logger),
			translator.WithTracer(otel.Tracer(serviceName)),
		)
	}

	if a.tables != nil {
		opts := []executor.ExecutorOption{
			executor.WithLogger(a.logger),
			executor.WithTracer(otel.Tracer(serviceName)),
			executor.WithMeter(otel.Meter(serviceName)),
		}
		if a.translator != nil {
			opts = append(opts, executor.WithTranslator(a.translator))
		}
		if a.executor, err = executor.NewExecutor(a.tables, cat, opts...); err != nil {
			a.close(ctx)
			return nil, err
		}
	}

	if n.core {
		if err := a.buildCore(); err != nil {
			a.close(ctx)
			return nil, err
		}
	}
	return a, nil
}

func (a *app) dataSource() (dataplan.DataSource, error) {
	cfg := a.cfg.Data
	switch cfg.Source {
	case config.SourcePostgREST:
		return datasource.NewPostgRESTSource(cfg.URL, cfg.APIKey,
			datasource.WithPageSize(cfg.PageSize),
			datasource.WithPostgRESTLogger(a.logger),
		)
	case config.SourceSQLite:
		src, err := datasource.OpenSQLite(cfg.Path, cfg.PageSize)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func(context.Context) error { return src.Close() })
		return src, nil
	default:
		if cfg.Path == "" {
			a.logger.Warn("no data.path configured, static source is empty")
			return datasource.NewStaticSource(nil), nil
		}
		return datasource.LoadStaticFile(cfg.Path)
	}
}

func (a *app) modelBackend(ctx context.Context) (dataplan.ModelBackend, error) {
	llm := a.cfg.LLM
	switch llm.Provider {
	case config.ProviderGoogleAI:
		g, err := genkit.Init(ctx, genkit.WithPlugins(&googleai.GoogleAI{APIKey: llm.APIKey}))
		if err != nil {
			return nil, dataplan.NewConfigurationError("failed to initialize genkit", err)
		}
		model := googleai.Model(g, a.cfg.ModelName())
		if model == nil {
			return nil, dataplan.NewConfigurationError(fmt.Sprintf("unknown googleai model %q", a.cfg.ModelName()), nil)
		}
		return adapters.NewGenkitBackend(model, adapters.WithGenkitLogger(a.logger))
	default:
		opts := []adapters.OpenAIOption{
			adapters.WithOpenAIModel(a.cfg.ModelName()),
			adapters.WithOpenAIAPIKey(llm.APIKey),
			adapters.WithOpenAIRequestOptions(option.WithMaxRetries(llm.MaxRetries)),
			adapters.WithOpenAILogger(a.logger),
		}
		if llm.BaseURL != "" {
			opts = append(opts, adapters.WithOpenAIBaseURL(llm.BaseURL))
		}
		return adapters.NewOpenAIBackend(opts...), nil
	}
}

func (a *app) buildCore() error {
	cfg := dataplan.DefaultConfig()
	cfg.ForcePlanTool = a.cfg.Request.ForcePlanTool
	cfg.RequestTimeout = a.cfg.Request.Timeout

	router := planner.NewRouter(a.backend,
		planner.WithLogger(a.logger),
		planner.WithTracer(otel.Tracer(serviceName)),
	)
	core, err := dataplan.New(
		dataplan.WithConfig(cfg),
		dataplan.WithPlanner(router),
		dataplan.WithExecutor(a.executor),
		dataplan.WithSchemaProvider(a.catalog),
		dataplan.WithToolCatalog(tools.NewRegistry()),
		dataplan.WithLogger(a.logger),
		dataplan.WithTracer(otel.Tracer(serviceName)),
	)
	if err != nil {
		return err
	}
	a.core = core
	a.closers = append(a.closers, func(context.Context) error { return core.Close() })

	if bus := core.EventBus(); bus != nil {
		if _, err := bus.SubscribeAll(a.logEvent); err != nil {
			return err
		}
	}
	return nil
}

func (a *app) logEvent(ctx context.Context, e eventbus.Event) error {
	a.logger.Debug("lifecycle event",
		"type", e.Type(),
		"request_id", e.RequestID(),
		"source", e.Source(),
	)
	return nil
}

// close runs the closers in reverse order.
func (a *app) close(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i](ctx))
	}
	a.closers = nil
	return errors.Join(errs...)
}

// stderr is where logs and telemetry go so stdout stays machine readable.
var stderr io.Writer = os.Stderr
