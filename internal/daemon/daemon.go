// Package daemon keeps a workflow in sync continuously.
//
// The daemon:
//  1. Runs the workflow once at start
//  2. Runs it again every Interval
//  3. Watches the workflow file and reruns, with a fresh runner, shortly
//     after it changes
//  4. Stops when its context is cancelled
package daemon

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/steveyegge/actionsync/internal/syncengine"
)

// Runner executes one sync flow. *executor.Executor satisfies it.
type Runner interface {
	Run(ctx context.Context, mode syncengine.Mode) (*syncengine.Result, error)
}

// BuildFunc creates a Runner, typically by reloading the workflow file.
type BuildFunc func() (Runner, error)

// Config holds configuration for the daemon.
type Config struct {
	// Mode is the flow to run. Defaults to bidirectional.
	Mode syncengine.Mode

	// Interval between scheduled runs.
	Interval time.Duration

	// Debounce is how long to wait after a file change before rerunning.
	// Editors often write a file several times in a row.
	Debounce time.Duration

	// RunTimeout bounds each run. Zero means no bound.
	RunTimeout time.Duration

	// WatchFiles are reloaded on change. Usually the workflow file.
	WatchFiles []string

	// OnResult is called after every run, from the daemon goroutine.
	OnResult func(*syncengine.Result, error)

	// Logger for daemon activity
	Logger *log.Logger
}

// DefaultConfig returns the defaults.
func DefaultConfig() *Config {
	return &Config{
		Mode:     syncengine.ModeBidirectional,
		Interval: 5 * time.Minute,
		Debounce: 500 * time.Millisecond,
		Logger:   log.New(os.Stderr, "[daemon] ", log.LstdFlags),
	}
}

// Daemon runs a workflow on a schedule and on file changes.
type Daemon struct {
	build  BuildFunc
	config *Config

	mu     sync.Mutex
	runner Runner
	runs   int
}

// New creates a daemon. The runner is built immediately so configuration
// errors surface before Start.
func New(build BuildFunc, config *Config) (*Daemon, error) {
	if build == nil {
		return nil, fmt.Errorf("build func cannot be nil")
	}
	if config == nil {
		config = DefaultConfig()
	}
	defaults := DefaultConfig()
	if config.Mode == "" {
		config.Mode = defaults.Mode
	}
	if config.Interval <= 0 {
		config.Interval = defaults.Interval
	}
	if config.Debounce <= 0 {
		config.Debounce = defaults.Debounce
	}
	if config.Logger == nil {
		config.Logger = defaults.Logger
	}

	runner, err := build()
	if err != nil {
		return nil, err
	}
	return &Daemon{build: build, config: config, runner: runner}, nil
}

// Runs returns how many runs have completed.
func (d *Daemon) Runs() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.runs
}

// Start runs until ctx is cancelled. It returns nil on cancellation.
func (d *Daemon) Start(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	// Watch parent directories: editors replace files by rename, which
	// drops a watch on the file itself.
	watched := make(map[string]bool, len(d.config.WatchFiles))
	for _, f := range d.config.WatchFiles {
		abs, err := filepath.Abs(f)
		if err != nil {
			return fmt.Errorf("failed to resolve %s: %w", f, err)
		}
		watched[abs] = true
		if err := watcher.Add(filepath.Dir(abs)); err != nil {
			return fmt.Errorf("failed to watch %s: %w", f, err)
		}
	}

	d.config.Logger.Printf("Starting %s every %v", d.config.Mode, d.config.Interval)
	d.runOnce(ctx)

	ticker := time.NewTicker(d.config.Interval)
	defer ticker.Stop()

	// Stopped until a relevant change arrives.
	debounce := time.NewTimer(time.Hour)
	debounce.Stop()
	defer debounce.Stop()

	for {
		select {
		case <-ctx.Done():
			d.config.Logger.Println("Stopping")
			return nil

		case <-ticker.C:
			d.runOnce(ctx)

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !relevant(event, watched) {
				continue
			}
			debounce.Reset(d.config.Debounce)

		case <-debounce.C:
			d.reload()
			d.runOnce(ctx)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			d.config.Logger.Printf("Watcher error: %v", err)
		}
	}
}

func relevant(event fsnotify.Event, watched map[string]bool) bool {
	abs, err := filepath.Abs(event.Name)
	if err != nil || !watched[abs] {
		return false
	}
	return event.Has(fsnotify.Create) || event.Has(fsnotify.Write) || event.Has(fsnotify.Rename)
}

// reload rebuilds the runner. On failure the previous runner is kept.
func (d *Daemon) reload() {
	runner, err := d.build()
	if err != nil {
		d.config.Logger.Printf("Reload failed, keeping previous workflow: %v", err)
		return
	}
	d.mu.Lock()
	d.runner = runner
	d.mu.Unlock()
	d.config.Logger.Println("Workflow reloaded")
}

func (d *Daemon) runOnce(ctx context.Context) {
	d.mu.Lock()
	runner := d.runner
	d.mu.Unlock()

	if d.config.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.config.RunTimeout)
		defer cancel()
	}

	res, err := runner.Run(ctx, d.config.Mode)
	if err != nil {
		d.config.Logger.Printf("Run failed: %v", err)
	}

	d.mu.Lock()
	d.runs++
	d.mu.Unlock()

	if d.config.OnResult != nil {
		d.config.OnResult(res, err)
	}
}
