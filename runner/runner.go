// Package runner drives headless workflow sessions: it loads stored
// definitions, executes them, writes one JSON document per run, and walks
// chain handoffs until the autorun budget is spent.
package runner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/loomworks/loom/engine"
	"github.com/loomworks/loom/graph"
	"github.com/loomworks/loom/internal/telemetry"
	"github.com/loomworks/loom/llm"
	_ "github.com/loomworks/loom/nodes" // built-in node types
	"github.com/loomworks/loom/store"
	"github.com/loomworks/loom/tools"
	"github.com/loomworks/loom/types"
)

// Params wires a Runner.
type Params struct {
	Workflows *store.WorkflowStore
	Queue     store.ChainQueue
	// History is optional; nil disables run recording.
	History   *store.History
	Providers *llm.Registry
	Tools     *tools.Registry
	Logger    *zap.Logger
	// OutDir receives one JSON document per run. Empty disables writing.
	OutDir string
	// Concurrency caps parallel iterations inside iterative subgraphs.
	Concurrency int
}

// Runner executes stored workflows for one session at a time.
type Runner struct {
	workflows   *store.WorkflowStore
	queue       store.ChainQueue
	history     *store.History
	providers   *llm.Registry
	tools       *tools.Registry
	log         *zap.Logger
	outDir      string
	concurrency int
}

// New builds a runner and registers the chain tools against the workflow
// catalog.
func New(p Params) (*Runner, error) {
	if p.Workflows == nil {
		return nil, fmt.Errorf("runner: workflow store is required")
	}
	if p.Queue == nil {
		return nil, fmt.Errorf("runner: chain queue is required")
	}
	if p.Tools == nil {
		p.Tools = tools.NewRegistry()
	}
	if p.Providers == nil {
		p.Providers = llm.NewRegistry()
	}
	if p.Logger == nil {
		p.Logger = zap.NewNop()
	}

	r := &Runner{
		workflows:   p.Workflows,
		queue:       p.Queue,
		history:     p.History,
		providers:   p.Providers,
		tools:       p.Tools,
		log:         telemetry.Component(p.Logger, "runner"),
		outDir:      p.OutDir,
		concurrency: p.Concurrency,
	}
	r.tools.Register(tools.NewChainTool(&chainLister{workflows: p.Workflows}))
	r.tools.Register(tools.NewChainBreaker())
	return r, nil
}

// RunRequest describes one session invocation.
type RunRequest struct {
	Session  string
	Workflow string
	Prompt   string
	// Model and Temperature override the workflow's own defaults when set.
	Model       string
	Temperature float64
	// Autoruns budgets chained successor runs. The initial run always
	// executes; each consumed handoff spends one unit. Zero or negative
	// disables chaining, leaving any handoff queued.
	Autoruns int
}

// Artifact is one labeled value an output node emitted during a run.
type Artifact struct {
	Label string      `json:"label"`
	Value types.Value `json:"value"`
}

// Document is the JSON record written for one run.
type Document struct {
	Session  string                 `json:"session"`
	Workflow string                 `json:"workflow"`
	Run      int                    `json:"run"`
	Status   string                 `json:"status"`
	Outputs  map[string]types.Value `json:"outputs,omitempty"`
	Artifacts []Artifact            `json:"artifacts,omitempty"`
	Error    string                 `json:"error,omitempty"`
	// Pending surfaces a queued handoff this invocation had no budget left
	// to run. It stays queued for the next invocation.
	Pending   *store.PendingChain `json:"pending,omitempty"`
	StartedAt time.Time           `json:"started_at"`
	ElapsedMs int64               `json:"elapsed_ms"`
}

// Run executes the named workflow and then any chained handoffs, up to the
// autorun budget. It returns one document per run, in order. A halted or
// stalled run ends the chain; its document is still returned.
func (r *Runner) Run(ctx context.Context, req RunRequest) ([]Document, error) {
	if req.Session == "" {
		req.Session = uuid.NewString()
	}
	// The budget counts successor starts only, never the initial run.
	successors := req.Autoruns
	if successors < 0 {
		successors = 0
	}

	name, prompt := req.Workflow, req.Prompt
	var docs []Document
	for i := 0; ; i++ {
		doc, status, err := r.runOne(ctx, req, name, prompt, i)
		if err != nil {
			return docs, err
		}

		next := false
		if status == engine.StatusCompleted {
			pending, perr := r.queue.Peek(ctx)
			switch {
			case errors.Is(perr, store.ErrNoPending):
				// Chain over.
			case perr != nil:
				return docs, perr
			case successors > 0:
				if _, terr := r.queue.Take(ctx); terr != nil && !errors.Is(terr, store.ErrNoPending) {
					return docs, terr
				}
				successors--
				name, prompt = pending.Workflow, pending.Prompt
				next = true
			default:
				// Budget spent: leave the handoff queued and surface it.
				doc.Pending = &pending
			}
		}

		if err := r.writeDocument(doc); err != nil {
			return docs, err
		}
		docs = append(docs, *doc)
		if !next {
			return docs, nil
		}
	}
}

func (r *Runner) runOne(ctx context.Context, req RunRequest, name, prompt string, run int) (*Document, engine.Status, error) {
	def, err := r.workflows.Load(name)
	if err != nil {
		return nil, 0, err
	}
	g, err := def.Build()
	if err != nil {
		return nil, 0, err
	}

	model := req.Model
	if model == "" {
		model = g.DefaultModel
	}
	temperature := req.Temperature
	if temperature == 0 {
		temperature = g.DefaultTemperature
	}

	var artifacts []Artifact
	rc := &graph.RunContext{
		Logger:      r.log,
		Providers:   r.providers,
		Tools:       r.tools,
		Prompt:      prompt,
		Model:       model,
		Temperature: temperature,
		Concurrency: r.concurrency,
		Outputs: graph.OutputFunc(func(label string, v types.Value) {
			artifacts = append(artifacts, Artifact{Label: label, Value: v})
		}),
		Previews: graph.PreviewFunc(func(node graph.NodeID, title string, v types.Value) {
			r.log.Debug("preview",
				zap.Int("node", int(node)),
				zap.String("title", title),
			)
		}),
	}
	if g.ChainEligible {
		rc.Chain = &queueRecorder{ctx: ctx, queue: r.queue, log: r.log}
	}

	r.log.Info("run starting",
		zap.String("session", req.Session),
		zap.String("workflow", name),
		zap.Int("run", run),
	)
	started := time.Now()
	res := engine.New(g, r.log).Run(ctx, rc)
	elapsed := time.Since(started)

	doc := &Document{
		Session:   req.Session,
		Workflow:  name,
		Run:       run,
		Status:    res.Status.String(),
		Outputs:   res.Outputs,
		Artifacts: artifacts,
		StartedAt: started.UTC(),
		ElapsedMs: elapsed.Milliseconds(),
	}
	if res.Err != nil {
		doc.Error = res.Err.Error()
	}

	if r.history != nil {
		if err := r.history.Record(ctx, req.Session, name, res.Status.String(), prompt, res.Outputs, res.Err, elapsed); err != nil {
			r.log.Warn("run history write failed", zap.Error(err))
		}
	}
	return doc, res.Status, nil
}

func (r *Runner) writeDocument(doc *Document) error {
	if r.outDir == "" {
		return nil
	}
	if err := os.MkdirAll(r.outDir, 0o755); err != nil {
		return fmt.Errorf("runner: %w", err)
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("runner: %w", err)
	}
	name := fmt.Sprintf("%s-%03d-%s.json", doc.Session, doc.Run, doc.Workflow)
	return os.WriteFile(filepath.Join(r.outDir, name), data, 0o644)
}

// queueRecorder lands chain requests from the chainer tool in the session's
// queue.
type queueRecorder struct {
	ctx   context.Context
	queue store.ChainQueue
	log   *zap.Logger
}

func (q *queueRecorder) RequestNext(workflow, seed string) error {
	telemetry.Metrics().RecordChainRequest()
	q.log.Info("chain requested", zap.String("workflow", workflow))
	return q.queue.Put(q.ctx, store.PendingChain{
		Workflow:    workflow,
		Prompt:      seed,
		RequestedAt: time.Now().UTC(),
	})
}

func (q *queueRecorder) Break() {
	if err := q.queue.Clear(q.ctx); err != nil {
		q.log.Warn("chain clear failed", zap.Error(err))
	}
}

// chainLister restricts the chain tool to stored, chain-eligible workflows.
type chainLister struct {
	workflows *store.WorkflowStore
}

func (l *chainLister) Has(name string) bool {
	def, err := l.workflows.Load(name)
	return err == nil && def.Chain
}

func (l *chainLister) Names() []string {
	var names []string
	for _, name := range l.workflows.Names() {
		if l.Has(name) {
			names = append(names, name)
		}
	}
	return names
}
