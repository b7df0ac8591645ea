package syncengine

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/steveyegge/actionsync/internal/integration"
	"github.com/steveyegge/actionsync/internal/store"
	"github.com/steveyegge/actionsync/internal/types"
)

// DefaultConcurrency is the number of items processed in parallel.
const DefaultConcurrency = 4

// ActionStore is the local action CRUD surface the engine needs.
type ActionStore interface {
	CreateAction(ctx context.Context, a *types.Action) error
	UpdateAction(ctx context.Context, a *types.Action) error
	GetAction(ctx context.Context, id string) (*types.Action, error)
	ListActions(ctx context.Context, filter store.ActionFilter) ([]*types.Action, error)
}

// RecordStore is the sync record surface the engine needs.
type RecordStore interface {
	GetRecordByExternalID(ctx context.Context, provider, externalID string) (*types.SyncRecord, error)
	GetRecordByActionID(ctx context.Context, provider, actionID string) (*types.SyncRecord, error)
	ListRecords(ctx context.Context, filter store.RecordFilter) ([]*types.SyncRecord, error)
	CreateRecord(ctx context.Context, rec *types.SyncRecord) error
	UpdateRecord(ctx context.Context, rec *types.SyncRecord) error
	DeleteRecord(ctx context.Context, id string) error
	CreateLinkedAction(ctx context.Context, a *types.Action, rec *types.SyncRecord) error
}

// Engine runs sync flows. It holds no state between calls.
type Engine struct {
	actions     ActionStore
	records     RecordStore
	svc         integration.Service
	logger      *log.Logger
	debug       *log.Logger
	concurrency int
	now         func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger for run summaries and item failures.
func WithLogger(l *log.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithDebugLogger sets the logger for per-item decisions. Discarded by
// default.
func WithDebugLogger(l *log.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.debug = l
		}
	}
}

// WithConcurrency sets how many items are processed in parallel.
func WithConcurrency(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.concurrency = n
		}
	}
}

// WithClock overrides the clock used for sync instants.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// New creates an Engine. *store.DB satisfies both store interfaces.
func New(actions ActionStore, records RecordStore, svc integration.Service, opts ...Option) *Engine {
	e := &Engine{
		actions:     actions,
		records:     records,
		svc:         svc,
		logger:      log.New(os.Stderr, "[sync] ", log.LstdFlags),
		debug:       log.New(io.Discard, "", 0),
		concurrency: DefaultConcurrency,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// provider is the record namespace for this engine's service.
func (e *Engine) provider() string {
	return e.svc.Provider().String()
}

// syncInstant returns the instant a record is advanced to after a mutation:
// now, or later if either side carries a later timestamp.
func (e *Engine) syncInstant(sides ...time.Time) time.Time {
	t := e.now().UTC()
	for _, s := range sides {
		if s.After(t) {
			t = s.UTC()
		}
	}
	return t
}

// forEach runs fn for every item with bounded parallelism and waits.
func forEach[T any](ctx context.Context, limit int, items []T, fn func(context.Context, T)) {
	var g errgroup.Group
	g.SetLimit(limit)
	for _, item := range items {
		g.Go(func() error {
			fn(ctx, item)
			return nil
		})
	}
	_ = g.Wait()
}

// begin validates cfg and starts a run.
func (e *Engine) begin(mode Mode, cfg *Config) (*run, error) {
	r := newRun(mode, e.provider(), e.now().UTC())
	if err := cfg.normalize(); err != nil {
		return r, err
	}
	if cfg.Provider != "" && cfg.Provider != e.svc.Provider() {
		return r, fmt.Errorf("config is for provider %q but service is %q", cfg.Provider, e.svc.Provider())
	}
	return r, nil
}

func (e *Engine) logSummary(res *Result) {
	e.logger.Printf("%s %s complete: processed=%d created=%d updated=%d skipped=%d deleted=%d conflicts=%d errors=%d",
		res.Mode, res.Provider, res.ItemsProcessed, res.ItemsCreated, res.ItemsUpdated,
		res.ItemsSkipped, res.ItemsDeleted, len(res.Conflicts), len(res.Errors))
}
