// Package exp implements the braid experiment core: the stash-backed ledger
// of staged runs, the staging engine, and baseline resolution. Execution is
// handled by internal/sched; this package owns everything that happens
// before dispatch and after results exist.
package exp

import (
	"context"
	"fmt"
	"path/filepath"

	"braid/internal/config"
	"braid/internal/flock"
	"braid/internal/gitx"
)

// Experiments manages experiments in one repository.
type Experiments struct {
	git    *gitx.Git
	root   string
	cfg    *config.Config
	lock   *flock.Lock
	ledger *Ledger
}

// Open constructs the subsystem for the repository containing dir. Fails
// with ErrNoDriver if no git backend can be built there.
func Open(ctx context.Context, dir string, cfg *config.Config) (*Experiments, error) {
	g, err := gitx.Open(ctx, dir, cfg.Git.Backends)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoDriver, err)
	}
	return NewExperiments(g, cfg), nil
}

// NewExperiments wires the subsystem onto an existing driver. Tests use this
// with fake backends.
func NewExperiments(g *gitx.Git, cfg *config.Config) *Experiments {
	root := g.RootDir()
	return &Experiments{
		git:    g,
		root:   root,
		cfg:    cfg,
		lock:   flock.New(filepath.Join(root, ".braid", "tmp", "scm.lock")),
		ledger: NewLedger(g),
	}
}

func (e *Experiments) Git() *gitx.Git        { return e.git }
func (e *Experiments) Ledger() *Ledger       { return e.ledger }
func (e *Experiments) Root() string          { return e.root }
func (e *Experiments) Config() *config.Config { return e.cfg }

// WithLock runs fn holding the repository-wide experiments lock. Every
// ledger or ref mutating entry point goes through here so that concurrent
// braid invocations cannot interleave git operations.
func (e *Experiments) WithLock(ctx context.Context, fn func(context.Context) error) error {
	if err := e.lock.Acquire(ctx); err != nil {
		return err
	}
	defer e.lock.Release()
	return fn(ctx)
}

// argsFile returns the absolute packed-arguments path.
func (e *Experiments) argsFile() string {
	return filepath.Join(e.root, filepath.FromSlash(PackedArgsFile))
}
