// Package executor turns a workflow into a ready-to-run sync engine.
//
// The Factory resolves the provider adapter from the integration registry,
// builds it from the workflow credentials, and wires it to the local store.
// Callers pick the flow at run time:
//
//	exec, err := executor.NewFactory(db).Build(wf)
//	if err != nil {
//	    return err
//	}
//	res, err := exec.Run(ctx, syncengine.ModeBidirectional)
package executor

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/steveyegge/actionsync/internal/config"
	"github.com/steveyegge/actionsync/internal/integration"
	"github.com/steveyegge/actionsync/internal/syncengine"

	// Adapters register themselves with the integration registry.
	_ "github.com/steveyegge/actionsync/internal/integration/gtasks"
	_ "github.com/steveyegge/actionsync/internal/integration/notion"
)

// Store is the local persistence an executor needs. *store.DB satisfies it.
type Store interface {
	syncengine.ActionStore
	syncengine.RecordStore
}

// loggerSetter is implemented by adapters that accept an injected logger.
type loggerSetter interface {
	SetLogger(*log.Logger)
}

// Factory builds Executors over one store.
type Factory struct {
	store       Store
	logger      *log.Logger
	debug       *log.Logger
	adapterLog  *log.Logger
	concurrency int
	override    integration.Service
}

// FactoryOption configures a Factory.
type FactoryOption func(*Factory)

// WithLogger sets the engine logger.
func WithLogger(l *log.Logger) FactoryOption {
	return func(f *Factory) {
		f.logger = l
	}
}

// WithDebugLogger sets the engine's per-item logger.
func WithDebugLogger(l *log.Logger) FactoryOption {
	return func(f *Factory) {
		f.debug = l
	}
}

// WithAdapterLogger sets the logger handed to the provider adapter.
func WithAdapterLogger(l *log.Logger) FactoryOption {
	return func(f *Factory) {
		f.adapterLog = l
	}
}

// WithConcurrency sets the engine's item parallelism.
func WithConcurrency(n int) FactoryOption {
	return func(f *Factory) {
		f.concurrency = n
	}
}

// WithServiceOverride skips the registry and uses svc for every Build.
func WithServiceOverride(svc integration.Service) FactoryOption {
	return func(f *Factory) {
		f.override = svc
	}
}

// NewFactory creates a Factory.
func NewFactory(st Store, opts ...FactoryOption) *Factory {
	f := &Factory{
		store:  st,
		logger: log.New(os.Stderr, "[sync] ", log.LstdFlags),
		debug:  log.New(io.Discard, "", 0),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Executor runs the flows of one workflow.
type Executor struct {
	workflow *config.Workflow
	svc      integration.Service
	engine   *syncengine.Engine
	cfg      syncengine.Config
}

// Build validates the workflow and wires its adapter and engine.
func (f *Factory) Build(wf *config.Workflow) (*Executor, error) {
	if wf == nil {
		return nil, fmt.Errorf("workflow is required")
	}
	if err := wf.Validate(); err != nil {
		return nil, fmt.Errorf("invalid workflow: %w", err)
	}

	svc, err := f.service(wf)
	if err != nil {
		return nil, err
	}

	cfg, err := wf.SyncConfig()
	if err != nil {
		return nil, err
	}

	opts := []syncengine.Option{
		syncengine.WithLogger(f.logger),
		syncengine.WithDebugLogger(f.debug),
	}
	if f.concurrency > 0 {
		opts = append(opts, syncengine.WithConcurrency(f.concurrency))
	}

	return &Executor{
		workflow: wf,
		svc:      svc,
		engine:   syncengine.New(f.store, f.store, svc, opts...),
		cfg:      cfg,
	}, nil
}

func (f *Factory) service(wf *config.Workflow) (integration.Service, error) {
	if f.override != nil {
		if f.override.Provider() != wf.Provider {
			return nil, fmt.Errorf("service override is for %q, workflow wants %q", f.override.Provider(), wf.Provider)
		}
		return f.override, nil
	}

	svc, err := integration.New(wf.Provider, wf.IntegrationCredentials())
	if err != nil {
		return nil, fmt.Errorf("failed to create %s adapter: %w", wf.Provider, err)
	}
	if ls, ok := svc.(loggerSetter); ok && f.adapterLog != nil {
		ls.SetLogger(f.adapterLog)
	}
	return svc, nil
}

// Service returns the provider adapter, for discovery commands.
func (e *Executor) Service() integration.Service {
	return e.svc
}

// Workflow returns the workflow the executor was built from.
func (e *Executor) Workflow() *config.Workflow {
	return e.workflow
}

// Config returns a copy of the engine config used by Run.
func (e *Executor) Config() syncengine.Config {
	return e.cfg
}

// Run executes one flow with the workflow's config.
func (e *Executor) Run(ctx context.Context, mode syncengine.Mode) (*syncengine.Result, error) {
	return e.RunWith(ctx, mode, e.cfg)
}

// RunWith executes one flow with an adjusted config, e.g. a CLI
// --overwrite or --ids override.
func (e *Executor) RunWith(ctx context.Context, mode syncengine.Mode, cfg syncengine.Config) (*syncengine.Result, error) {
	switch mode {
	case syncengine.ModePull:
		return e.engine.Pull(ctx, cfg)
	case syncengine.ModePush:
		return e.engine.Push(ctx, cfg)
	case syncengine.ModeBidirectional:
		return e.engine.Bidirectional(ctx, cfg)
	}
	return nil, fmt.Errorf("unknown sync mode %q", mode)
}
