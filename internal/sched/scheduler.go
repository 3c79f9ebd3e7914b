// Package sched runs batches of staged experiments. Each unit gets an
// isolated workspace and a dedicated worker process; the coordinator caps
// concurrency, relays operator interrupts to running workers, and harvests
// results when every unit has reached a terminal state.
package sched

import (
	"context"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"

	"golang.org/x/sync/errgroup"

	"braid/internal/exp"
	"braid/internal/logging"
	"braid/internal/worker"
)

// workerFactory builds the isolated workspace for one unit. Swapped out in
// tests.
type workerFactory func(ctx context.Context, root string, stashRev string, entry exp.StashEntry, req worker.SpawnRequest) (*Worker, error)

// Scheduler coordinates one batch at a time over a single repository.
type Scheduler struct {
	exps    *exp.Experiments
	runner  Runner
	factory workerFactory
}

// New builds a scheduler whose workers are spawned as processes of the
// configured worker binary, defaulting to the running executable.
func New(exps *exp.Experiments) (*Scheduler, error) {
	binary := exps.Config().Execution.WorkerBinary
	if binary == "" {
		var err error
		binary, err = os.Executable()
		if err != nil {
			return nil, err
		}
	}
	return &Scheduler{exps: exps, runner: &processRunner{binary: binary}, factory: newWorker}, nil
}

// NewWithRunner builds a scheduler around a custom runner.
func NewWithRunner(exps *exp.Experiments, runner Runner) *Scheduler {
	return &Scheduler{exps: exps, runner: runner, factory: newWorker}
}

// ReproduceOptions narrows or tunes a batch. Zero values mean "run the whole
// ledger with configured settings".
type ReproduceOptions struct {
	// Revs selects specific stash revs or ad hoc commits. Empty runs every
	// ledger entry.
	Revs []string

	// Jobs overrides the configured parallelism when positive.
	Jobs int

	// Force lets published experiment refs be overwritten on divergence.
	Force bool

	// OnDiverged overrides the divergence policy. Nil refuses collisions.
	OnDiverged OnDiverged
}

// Reproduce executes the selected staged experiments and returns a mapping
// from input rev to resulting experiment commit, containing only the units
// that succeeded. Per-unit failures are reported and withheld from the
// mapping; they never abort sibling units. Only structural failures, a
// ledger that cannot be read or a workspace that cannot be built, abort the
// batch.
func (s *Scheduler) Reproduce(ctx context.Context, opts ReproduceOptions) (map[string]string, error) {
	results := make(map[string]string)
	err := s.exps.WithLock(ctx, func(ctx context.Context) error {
		return s.reproduce(ctx, opts, results)
	})
	return results, err
}

func (s *Scheduler) reproduce(ctx context.Context, opts ReproduceOptions, results map[string]string) error {
	git := s.exps.Git()
	cfg := s.exps.Config()
	ledger := s.exps.Ledger()

	entries, err := ledger.List(ctx)
	if err != nil {
		return err
	}
	toRun := make(map[string]exp.StashEntry)
	if len(opts.Revs) == 0 {
		toRun = entries
	} else {
		for _, rev := range opts.Revs {
			sha, err := git.Resolve(ctx, rev)
			if err != nil {
				return err
			}
			if entry, ok := entries[sha]; ok {
				toRun[sha] = entry
			} else {
				// Ad hoc rev outside the ledger: run it as its own baseline.
				toRun[sha] = exp.StashEntry{Index: -1, Rev: sha, BaselineRev: sha}
			}
		}
	}
	if len(toRun) == 0 {
		logging.Sched("nothing staged to reproduce")
		return nil
	}

	workers, err := s.stageWorkers(ctx, toRun)
	if err != nil {
		return err
	}
	defer func() {
		for _, w := range workers {
			w.Cleanup()
		}
	}()

	statuses := s.dispatch(ctx, workers, opts)

	succeeded := 0
	for i, w := range workers {
		st := statuses[i]
		switch st.State {
		case StateSucceeded:
			refs, perr := publish(ctx, git, w, opts.Force || st.Result.Force, opts.OnDiverged)
			if perr != nil {
				logging.Get(logging.CategorySched).Errorf(
					"failed to publish experiment %.7s: %v", w.Entry.Rev, perr)
				continue
			}
			if len(refs) > 0 {
				if expRev, gerr := git.GetRef(ctx, refs[0], true); gerr == nil && expRev != "" {
					results[w.StashRev] = expRev
					succeeded++
				}
			}
			if st.Result.Killed {
				logging.Sched("checkpoint %.7s interrupted, partial progress published", w.Entry.Rev)
			}
		case StateCancelled:
			logging.Sched("experiment %.7s cancelled", w.Entry.Rev)
		default:
			logging.Get(logging.CategorySched).Errorf(
				"failed to reproduce experiment %.7s: %v", w.Entry.Rev, st.Err)
		}
	}

	// The batch wrote refs behind the read driver's back.
	if err := git.Reload(); err != nil {
		return err
	}

	if err := s.prune(ctx, entries, toRun, results, cfg.Execution.KeepStash); err != nil {
		return err
	}
	logging.Sched("reproduced %d/%d staged experiments", succeeded, len(workers))
	return nil
}

// stageWorkers sets the handoff refs per unit, seeds each unit's isolated
// workspace from them, and removes them once the whole batch is built.
func (s *Scheduler) stageWorkers(ctx context.Context, toRun map[string]exp.StashEntry) ([]*Worker, error) {
	git := s.exps.Git()
	cfg := s.exps.Config()

	var workers []*Worker
	fail := func(err error) ([]*Worker, error) {
		for _, ref := range handoffRefs {
			_ = git.RemoveRef(ctx, ref, "")
		}
		for _, w := range workers {
			w.Cleanup()
		}
		return nil, err
	}
	for stashRev, entry := range toRun {
		if err := git.SetRef(ctx, exp.ExecHead, entry.Rev, "", "braid: handoff"); err != nil {
			return fail(err)
		}
		if err := git.SetRef(ctx, exp.ExecMerge, stashRev, "", "braid: handoff"); err != nil {
			return fail(err)
		}
		if err := git.SetRef(ctx, exp.ExecBaseline, entry.BaselineRev, "", "braid: handoff"); err != nil {
			return fail(err)
		}

		checkpoint := false
		if entry.Branch != "" {
			if info, ok := exp.ParseRef(entry.Branch); ok {
				checkpoint = info.Checkpoint
			}
		}
		w, err := s.factory(ctx, s.exps.Root(), stashRev, entry, worker.SpawnRequest{
			Rev:          entry.Rev,
			Name:         entry.Name,
			Branch:       entry.Branch,
			Checkpoint:   checkpoint,
			ReproCommand: cfg.Execution.ReproCommand,
		})
		if err != nil {
			return fail(err)
		}
		workers = append(workers, w)
	}
	for _, ref := range handoffRefs {
		if err := git.RemoveRef(ctx, ref, ""); err != nil {
			return fail(err)
		}
	}
	return workers, nil
}

// dispatch runs the units under the parallelism cap and relays operator
// interrupts: already-running workers get the signal forwarded, units never
// started are marked cancelled without running.
func (s *Scheduler) dispatch(ctx context.Context, workers []*Worker, opts ReproduceOptions) []RunStatus {
	jobs := s.exps.Config().Execution.Parallelism
	if opts.Jobs > 0 {
		jobs = opts.Jobs
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	var cancelled atomic.Bool
	done := make(chan struct{})
	defer close(done)
	go func() {
		for {
			select {
			case <-sigCh:
				cancelled.Store(true)
				for _, w := range workers {
					if pid := w.PID(); pid > 0 {
						_ = syscall.Kill(pid, syscall.SIGINT)
					}
				}
			case <-done:
				return
			}
		}
	}()

	statuses := make([]RunStatus, len(workers))
	var eg errgroup.Group
	eg.SetLimit(jobs)
	for i, w := range workers {
		i, w := i, w
		eg.Go(func() error {
			if cancelled.Load() {
				statuses[i] = RunStatus{State: StateCancelled}
				return nil
			}
			logging.Sched("dispatching experiment %.7s", w.Entry.Rev)
			statuses[i] = s.runner.Run(ctx, w)
			return nil
		})
	}
	_ = eg.Wait()
	return statuses
}

// prune drops spent ledger entries. With keep_stash only entries that
// produced a published experiment are dropped; without it every entry in
// the working set is dropped regardless of outcome. Ad hoc revs were never
// in the ledger and are left alone.
func (s *Scheduler) prune(ctx context.Context, entries, toRun map[string]exp.StashEntry, results map[string]string, keepStash bool) error {
	var indices []int
	if keepStash {
		for stashRev := range results {
			if entry, ok := entries[stashRev]; ok && entry.Index >= 0 {
				indices = append(indices, entry.Index)
			}
		}
	} else {
		for stashRev := range toRun {
			if entry, ok := entries[stashRev]; ok && entry.Index >= 0 {
				indices = append(indices, entry.Index)
			}
		}
	}
	if len(indices) == 0 {
		return nil
	}
	return s.exps.Ledger().DropSet(ctx, indices)
}
