// Package loom provides a convenience entry point for running stored
// workflows with minimal boilerplate.
//
// Usage:
//
//	import "github.com/loomworks/loom"
//
//	docs, err := loom.Run(ctx, "workflows", "triage",
//	    loom.WithPrompt("summarize the inbox"),
//	    loom.WithProvider(myProvider),
//	)
//
// Programs that need providers registries, redis-backed chains, or run
// history should wire [runner.Runner] directly.
package loom

import (
	"context"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/loomworks/loom/llm"
	"github.com/loomworks/loom/runner"
	"github.com/loomworks/loom/store"
	"github.com/loomworks/loom/tools"
)

type options struct {
	prompt      string
	model       string
	temperature float64
	autoruns    int
	outDir      string
	provider    llm.Provider
	tools       []tools.Tool
	logger      *zap.Logger
}

// Option configures a [Run] invocation.
type Option func(*options)

// WithPrompt seeds the start node's prompt output.
func WithPrompt(prompt string) Option {
	return func(o *options) { o.prompt = prompt }
}

// WithModel sets the default model for runs that do not pick one.
func WithModel(model string) Option {
	return func(o *options) { o.model = model }
}

// WithTemperature sets the default sampling temperature.
func WithTemperature(t float64) Option {
	return func(o *options) { o.temperature = t }
}

// WithAutoruns budgets chained successor runs after the initial run.
func WithAutoruns(n int) Option {
	return func(o *options) { o.autoruns = n }
}

// WithOutDir writes one JSON document per run into the directory.
func WithOutDir(dir string) Option {
	return func(o *options) { o.outDir = dir }
}

// WithProvider registers the model backend used for chat nodes.
func WithProvider(p llm.Provider) Option {
	return func(o *options) { o.provider = p }
}

// WithTool registers a tool the workflows may call.
func WithTool(t tools.Tool) Option {
	return func(o *options) { o.tools = append(o.tools, t) }
}

// WithLogger sets a custom zap logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}

// Run executes the named workflow from the directory of YAML definitions,
// following chain handoffs up to the autorun budget. It returns one
// document per run.
func Run(ctx context.Context, dir, workflow string, opts ...Option) ([]runner.Document, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	workflows, err := store.NewWorkflowStore(dir, o.logger)
	if err != nil {
		return nil, err
	}

	providers := llm.NewRegistry()
	if o.provider != nil {
		providers.Register(o.provider)
		providers.SetFallback(o.provider)
	}

	registry := tools.NewRegistry()
	for _, t := range o.tools {
		registry.Register(t)
	}

	r, err := runner.New(runner.Params{
		Workflows: workflows,
		Queue:     store.NewFileChain(filepath.Join(dir, ".chain.json")),
		Providers: providers,
		Tools:     registry,
		Logger:    o.logger,
		OutDir:    o.outDir,
	})
	if err != nil {
		return nil, err
	}

	return r.Run(ctx, runner.RunRequest{
		Workflow:    workflow,
		Prompt:      o.prompt,
		Model:       o.model,
		Temperature: o.temperature,
		Autoruns:    o.autoruns,
	})
}
