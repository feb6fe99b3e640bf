// Command loom runs stored workflows headlessly.
//
// Usage:
//
//	loom run <workflow> [--prompt ...] [--autoruns N]   # execute a workflow
//	loom list                                           # list stored workflows
//	loom version                                        # show version
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/loomworks/loom/config"
	"github.com/loomworks/loom/internal/telemetry"
	"github.com/loomworks/loom/llm"
	"github.com/loomworks/loom/runner"
	"github.com/loomworks/loom/store"
	"github.com/loomworks/loom/tools"
)

// Injected at build time.
var (
	Version   = "dev"
	GitCommit = "unknown"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "run":
		runRun(os.Args[2:])
	case "list":
		runList(os.Args[2:])
	case "version":
		fmt.Printf("loom %s (%s)\n", Version, GitCommit)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func runRun(args []string) {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	configPath := fs.String("config", "loom.yaml", "path to the config file")
	session := fs.String("session", "", "session id (random when empty)")
	prompt := fs.String("prompt", "", "seed prompt for the start node")
	model := fs.String("model", "", "model override")
	temperature := fs.Float64("temperature", 0, "temperature override")
	autoruns := fs.Int("autoruns", -1, "successor run budget override")
	outDir := fs.String("out-dir", "", "output directory override")
	fs.Parse(args)

	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: loom run <workflow> [options]")
		os.Exit(1)
	}
	workflow := fs.Arg(0)

	cfg := loadConfig(*configPath)
	if *outDir != "" {
		cfg.OutDir = *outDir
	}

	logger, err := telemetry.NewLogger(cfg.Log)
	if err != nil {
		fatal(err)
	}
	defer logger.Sync()

	otelProviders, err := telemetry.InitTracing(cfg.Tracing, "loom")
	if err != nil {
		logger.Warn("tracing unavailable", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	defer otelProviders.Shutdown(context.Background())

	r, err := buildRunner(cfg, logger)
	if err != nil {
		fatal(err)
	}

	req := runner.RunRequest{
		Session:     *session,
		Workflow:    workflow,
		Prompt:      *prompt,
		Model:       firstNonEmpty(*model, cfg.Model),
		Temperature: cfg.Temperature,
		Autoruns:    cfg.Autoruns,
	}
	if *temperature != 0 {
		req.Temperature = *temperature
	}
	if *autoruns >= 0 {
		req.Autoruns = *autoruns
	}

	docs, err := r.Run(ctx, req)
	for _, doc := range docs {
		fmt.Printf("%s run %d: %s (%dms)\n", doc.Workflow, doc.Run, doc.Status, doc.ElapsedMs)
		if doc.Pending != nil {
			fmt.Printf("  pending handoff: %s\n", doc.Pending.Workflow)
		}
	}
	if err != nil {
		fatal(err)
	}
	if len(docs) > 0 && docs[len(docs)-1].Status != "completed" {
		os.Exit(1)
	}
}

func runList(args []string) {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	configPath := fs.String("config", "loom.yaml", "path to the config file")
	fs.Parse(args)

	cfg := loadConfig(*configPath)
	workflows, err := store.NewWorkflowStore(cfg.WorkflowDir, nil)
	if err != nil {
		fatal(err)
	}
	for _, name := range workflows.Names() {
		if desc := workflows.Description(name); desc != "" {
			fmt.Printf("%s\t%s\n", name, desc)
		} else {
			fmt.Println(name)
		}
	}
}

func loadConfig(path string) *config.Config {
	cfg, err := config.Load(path)
	if err != nil {
		fatal(err)
	}
	return cfg
}

func buildRunner(cfg *config.Config, logger *zap.Logger) (*runner.Runner, error) {
	workflows, err := store.NewWorkflowStore(cfg.WorkflowDir, logger)
	if err != nil {
		return nil, err
	}

	var queue store.ChainQueue
	switch cfg.Chain.Backend {
	case config.ChainBackendRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Chain.Addr,
			Password: cfg.Chain.Password,
			DB:       cfg.Chain.DB,
		})
		queue = store.NewRedisChain(client, "default")
	default:
		queue = store.NewFileChain(cfg.Chain.Path)
	}

	var history *store.History
	if cfg.HistoryPath != "" {
		history, err = store.OpenHistory(cfg.HistoryPath, logger)
		if err != nil {
			return nil, err
		}
	}

	providers := llm.NewRegistry()
	openai := llm.NewOpenAIProvider(llm.OpenAIConfig{
		APIKey:  os.Getenv("OPENAI_API_KEY"),
		BaseURL: os.Getenv("OPENAI_BASE_URL"),
	}, logger)
	providers.Register(openai)
	providers.SetFallback(openai)

	return runner.New(runner.Params{
		Workflows:   workflows,
		Queue:       queue,
		History:     history,
		Providers:   providers,
		Tools:       tools.NewRegistry(),
		Logger:      logger,
		OutDir:      cfg.OutDir,
		Concurrency: cfg.Concurrency,
	})
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "loom: %v\n", err)
	os.Exit(1)
}

func printUsage() {
	fmt.Println(`loom - typed dataflow workflow runner

Usage:
  loom <command> [options]

Commands:
  run <workflow>   Execute a stored workflow and any chained follow-ups
  list             List stored workflows
  version          Show version information
  help             Show this help message

Options for 'run':
  --config <path>     Config file (default loom.yaml)
  --session <id>      Session id shared by chained runs
  --prompt <text>     Seed prompt for the start node
  --model <id>        Model override
  --temperature <f>   Temperature override
  --autoruns <n>      Successor run budget override (0 disables chaining)
  --out-dir <path>    Output directory override

Examples:
  loom run triage --prompt "summarize the inbox"
  loom run pipeline --autoruns 3 --session nightly
  loom list`)
}
