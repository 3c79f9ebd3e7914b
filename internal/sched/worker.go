package sched

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/google/uuid"

	"braid/internal/exp"
	"braid/internal/gitx"
	"braid/internal/logging"
	"braid/internal/worker"
)

// State tracks a unit through the batch. Units move Staged -> Dispatched ->
// one terminal state; a unit cancelled before dispatch never runs.
type State int

const (
	StateStaged State = iota
	StateDispatched
	StateSucceeded
	StateFailed
	StateCancelled
)

// RunStatus is the terminal outcome of one unit as seen by the coordinator.
type RunStatus struct {
	State  State
	Result worker.Result
	Err    error
}

// Worker is the coordinator-side handle for one execution unit: an isolated
// repository copy seeded with the handoff refs, plus the spawn request and
// result files bridging the process boundary.
type Worker struct {
	ID       string
	StashRev string
	Entry    exp.StashEntry

	baseDir     string
	repoDir     string
	requestPath string
	resultPath  string

	pid atomic.Int64
}

var handoffRefs = []string{exp.ExecHead, exp.ExecMerge, exp.ExecBaseline}

// newWorker builds the unit's isolated workspace under the repository's tmp
// dir and seeds it from the handoff refs, which must already be set in the
// owning repository. After this returns the unit no longer depends on them.
func newWorker(ctx context.Context, root string, stashRev string, entry exp.StashEntry, req worker.SpawnRequest) (*Worker, error) {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	w := &Worker{
		ID:       id,
		StashRev: stashRev,
		Entry:    entry,
		baseDir:  filepath.Join(root, ".braid", "tmp", "exec-"+id),
	}
	w.repoDir = filepath.Join(w.baseDir, "repo")
	w.requestPath = filepath.Join(w.baseDir, "request.json")
	w.resultPath = filepath.Join(w.baseDir, "result.json")

	if err := os.MkdirAll(w.repoDir, 0o755); err != nil {
		return nil, err
	}
	wgit, err := gitx.InitRepo(ctx, w.repoDir)
	if err != nil {
		w.Cleanup()
		return nil, fmt.Errorf("init worker repo: %w", err)
	}
	refspecs := make([]string, 0, len(handoffRefs))
	for _, ref := range handoffRefs {
		refspecs = append(refspecs, ref+":"+ref)
	}
	if _, err := wgit.FetchRefspecs(ctx, root, refspecs, true, nil); err != nil {
		w.Cleanup()
		return nil, fmt.Errorf("seed worker repo: %w", err)
	}

	req.RepoDir = w.repoDir
	req.ResultPath = w.resultPath
	data, err := json.Marshal(req)
	if err != nil {
		w.Cleanup()
		return nil, err
	}
	if err := os.WriteFile(w.requestPath, append(data, '\n'), 0o644); err != nil {
		w.Cleanup()
		return nil, err
	}
	logging.SchedDebug("unit %s staged for %.7s in %s", id, entry.Rev, w.baseDir)
	return w, nil
}

// GitURL is the fetch URL for harvesting the unit's results.
func (w *Worker) GitURL() string { return w.repoDir }

// PID reports the worker process id, or 0 before dispatch.
func (w *Worker) PID() int { return int(w.pid.Load()) }

func (w *Worker) Cleanup() {
	if err := os.RemoveAll(w.baseDir); err != nil {
		logging.SchedDebug("cleanup %s: %v", w.baseDir, err)
	}
}

// Runner dispatches one unit and blocks until it reaches a terminal state.
// The process-backed implementation is the default; tests substitute their
// own.
type Runner interface {
	Run(ctx context.Context, w *Worker) RunStatus
}

// processRunner spawns the worker entrypoint of the given binary, normally
// the running executable itself.
type processRunner struct {
	binary string
}

func (r *processRunner) Run(ctx context.Context, w *Worker) RunStatus {
	cmd := exec.CommandContext(ctx, r.binary, "worker", "--request", w.requestPath)
	cmd.Dir = w.repoDir
	var output bytes.Buffer
	cmd.Stderr = &output
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return RunStatus{State: StateFailed, Err: err}
	}
	if err := cmd.Start(); err != nil {
		return RunStatus{State: StateFailed, Err: err}
	}

	// The worker self-reports its pid on the first stdout line so the
	// coordinator can signal it directly.
	scanner := bufio.NewScanner(stdout)
	for scanner.Scan() {
		line := scanner.Text()
		if pid, ok := strings.CutPrefix(line, "PID "); ok && w.pid.Load() == 0 {
			if n, err := strconv.Atoi(strings.TrimSpace(pid)); err == nil {
				w.pid.Store(int64(n))
				logging.SchedDebug("unit %s running as pid %d", w.ID, n)
			}
			continue
		}
		output.WriteString(line)
		output.WriteByte('\n')
	}
	werr := cmd.Wait()

	res, rerr := worker.ReadResult(w.resultPath)
	switch code := cmd.ProcessState.ExitCode(); code {
	case worker.ExitOK:
		if rerr != nil {
			return RunStatus{State: StateFailed, Err: fmt.Errorf("worker finished but left no result: %w", rerr)}
		}
		return RunStatus{State: StateSucceeded, Result: res}
	case worker.ExitCheckpointKilled:
		// Partial checkpoint progress was committed before the worker went
		// down; harvest what it preserved.
		return RunStatus{State: StateSucceeded, Result: res}
	case worker.ExitCancelled:
		return RunStatus{State: StateCancelled, Result: res}
	default:
		err := werr
		if res.Error != "" {
			err = fmt.Errorf("%s", res.Error)
		}
		return RunStatus{State: StateFailed, Result: res, Err: fmt.Errorf("worker exited %d: %w\n%s", code, err, output.String())}
	}
}
