package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/ZanzyTHEbar/dataplan-genkit"
	"github.com/ZanzyTHEbar/dataplan-genkit/internal/config"
	"github.com/ZanzyTHEbar/dataplan-genkit/internal/mcpserver"
	"github.com/ZanzyTHEbar/dataplan-genkit/internal/planner"
)

type globalFlags struct {
	ConfigPath string
	Dataset    string
	JSON       bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, err)
		if code := dataplan.CodeOf(err); code != "" {
			fmt.Fprintf(os.Stderr, "  code: %s\n", code)
		}
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("dataplan", flag.ContinueOnError)
	var global globalFlags
	fs.StringVar(&global.ConfigPath, "config", os.Getenv("DATAPLAN_CONFIG"), "path to a YAML config file")
	fs.StringVar(&global.Dataset, "dataset", "", "dataset name (default from config)")
	fs.BoolVar(&global.JSON, "json", false, "JSON output")
	fs.Usage = func() { printUsage(fs.Output()) }
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return err
	}
	rest := fs.Args()
	if len(rest) == 0 {
		printUsage(out)
		return nil
	}

	cfg, err := loadConfig(global.ConfigPath)
	if err != nil {
		return err
	}
	if global.Dataset != "" {
		cfg.Dataset = global.Dataset
	}

	cmd, cmdArgs := rest[0], rest[1:]
	switch cmd {
	case "schema":
		return runSchema(ctx, cfg, global, out)
	case "plan":
		return runPlan(ctx, cfg, global, cmdArgs, out)
	case "ask":
		return runAsk(ctx, cfg, global, cmdArgs, out)
	case "run":
		return runPlanFile(ctx, cfg, global, cmdArgs, out)
	case "translate":
		return runTranslate(ctx, cfg, global, cmdArgs, out)
	case "warm":
		return runWarm(ctx, cfg, cmdArgs, out)
	case "serve-mcp":
		return runServeMCP(ctx, cfg)
	case "help":
		printUsage(out)
		return nil
	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, `dataplan turns questions about a dataset into validated plans and runs them.

Usage:
  dataplan [global flags] <command> [args]

Global flags:
  --config <path>    YAML config file (env DATAPLAN_CONFIG)
  --dataset <name>   Dataset to use (default from config)
  --json             JSON output

Commands:
  schema                         Show the dataset schema
  plan [--out file] <question>   Plan without executing
  ask <question>                 Plan and execute
  run --plan <file>              Execute a saved plan
  translate <question>           Generate pandas code for a question
  warm [dataset...]              Prefetch tables into the cache
  serve-mcp                      Serve plan/ask/describe tools over MCP stdio`)
}

func question(args []string) (string, error) {
	q := strings.TrimSpace(strings.Join(args, " "))
	if q == "" {
		return "", dataplan.NewInvalidInputError(dataplan.StagePlanning, "a question is required")
	}
	return q, nil
}

func runSchema(ctx context.Context, cfg *config.Config, global globalFlags, out io.Writer) error {
	a, err := newApp(ctx, cfg, stderr, needs{})
	if err != nil {
		return err
	}
	defer a.close(ctx)

	doc, err := a.catalog.GetSchema(cfg.Dataset)
	if err != nil {
		return err
	}
	if global.JSON {
		return writeJSON(out, doc)
	}
	return writeSchema(out, doc)
}

func runPlan(ctx context.Context, cfg *config.Config, global globalFlags, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("plan", flag.ContinueOnError)
	outPath := fs.String("out", "", "save the plan to a YAML or JSON file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	q, err := question(fs.Args())
	if err != nil {
		return err
	}

	a, err := newApp(ctx, cfg, stderr, needs{core: true})
	if err != nil {
		return err
	}
	defer a.close(ctx)

	res, err := a.core.PlanRequest(ctx, q, cfg.Dataset)
	if err != nil {
		return err
	}
	if *outPath != "" {
		if err := planner.SavePlanFile(*outPath, res.Plan); err != nil {
			return err
		}
	}
	if global.JSON {
		return writeJSON(out, planView(res.Plan, res.Summary))
	}
	fmt.Fprintln(out, res.Summary)
	return nil
}

func runAsk(ctx context.Context, cfg *config.Config, global globalFlags, args []string, out io.Writer) error {
	q, err := question(args)
	if err != nil {
		return err
	}
	a, err := newApp(ctx, cfg, stderr, needs{core: true})
	if err != nil {
		return err
	}
	defer a.close(ctx)

	res, err := a.core.Ask(ctx, q, cfg.Dataset)
	if err != nil {
		return err
	}
	if global.JSON {
		return writeJSON(out, outcomeView(res))
	}
	fmt.Fprintln(out, res.Summary)
	fmt.Fprintln(out)
	return writeResult(out, res.Result)
}

func runPlanFile(ctx context.Context, cfg *config.Config, global globalFlags, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	path := fs.String("plan", "", "plan file to execute")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *path == "" {
		return dataplan.NewInvalidInputError(dataplan.StageExecution, "--plan is required")
	}
	plan, err := planner.LoadPlanFile(*path)
	if err != nil {
		return err
	}

	a, err := newApp(ctx, cfg, stderr, needs{data: true, model: planNeedsModel(plan)})
	if err != nil {
		return err
	}
	defer a.close(ctx)

	res, err := a.executor.ExecutePlan(ctx, plan)
	if err != nil {
		return err
	}
	if global.JSON {
		return writeJSON(out, resultView(res))
	}
	return writeResult(out, res)
}

// planNeedsModel reports whether any step is a translate step.
func planNeedsModel(plan *dataplan.Plan) bool {
	for _, step := range plan.Steps {
		if kind, _, err := step.Kind(); err == nil && kind == dataplan.ToolTranslate {
			return true
		}
	}
	return false
}

func runTranslate(ctx context.Context, cfg *config.Config, global globalFlags, args []string, out io.Writer) error {
	q, err := question(args)
	if err != nil {
		return err
	}
	a, err := newApp(ctx, cfg, stderr, needs{model: true})
	if err != nil {
		return err
	}
	defer a.close(ctx)

	doc, err := a.catalog.GetSchema(cfg.Dataset)
	if err != nil {
		return err
	}
	code, err := a.translator.GenerateCode(ctx, q, doc)
	if err != nil {
		return err
	}
	if global.JSON {
		return writeJSON(out, resultView(dataplan.CodeResult(code)))
	}
	fmt.Fprintln(out, code)
	return nil
}

func runWarm(ctx context.Context, cfg *config.Config, args []string, out io.Writer) error {
	a, err := newApp(ctx, cfg, stderr, needs{data: true})
	if err != nil {
		return err
	}
	defer a.close(ctx)

	datasets := args
	if len(datasets) == 0 {
		datasets = a.catalog.Datasets()
	}
	if err := a.tables.Warm(ctx, datasets...); err != nil {
		return err
	}
	tw := newTableWriter(out)
	writeRow(tw, "DATASET", "ROWS")
	for _, ds := range datasets {
		t, err := a.tables.Get(ctx, ds)
		if err != nil {
			return err
		}
		writeRow(tw, ds, fmt.Sprint(t.Len()))
	}
	return tw.Flush()
}

func runServeMCP(ctx context.Context, cfg *config.Config) error {
	a, err := newApp(ctx, cfg, stderr, needs{core: true})
	if err != nil {
		return err
	}
	defer a.close(ctx)

	srv := mcpserver.New(serviceName, version, a.core, a.catalog,
		mcpserver.WithDefaultDataset(cfg.Dataset),
		mcpserver.WithLogger(a.logger),
	)
	a.logger.Info("serving MCP over stdio", "dataset", cfg.Dataset)
	return srv.ServeStdio()
}
