// Package worker implements the process that executes one staged experiment
// inside an isolated repository copy. The coordinator (internal/sched)
// constructs the workspace and a spawn request file; this package is what
// runs on the other side of the process boundary. It mutates only its own
// repository and reports back through its result file and exit code.
package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"

	"braid/internal/exp"
	"braid/internal/gitx"
	"braid/internal/logging"
)

// Exit codes reported to the coordinator. ExitCheckpointKilled marks the
// expected termination of an interrupted checkpoint run; the worker has
// already reported it, so the coordinator suppresses duplicate logging.
const (
	ExitOK               = 0
	ExitFailure          = 1
	ExitCheckpointKilled = 75
	ExitCancelled        = 130
)

// SpawnRequest is the structured argument block handed to a freshly spawned
// worker, serialized by the coordinator at spawn time.
type SpawnRequest struct {
	RepoDir      string   `json:"repo_dir"`
	ResultPath   string   `json:"result_path"`
	Rev          string   `json:"rev"`
	Name         string   `json:"name,omitempty"`
	Branch       string   `json:"branch,omitempty"`
	Checkpoint   bool     `json:"checkpoint"`
	ReproCommand []string `json:"repro_command"`
}

// Result is what a finished worker leaves behind for harvest.
type Result struct {
	ExpRev     string `json:"exp_rev"`
	ExpHash    string `json:"exp_hash"`
	Force      bool   `json:"force"`
	Checkpoint bool   `json:"checkpoint"`
	Killed     bool   `json:"killed"`
	Error      string `json:"error,omitempty"`
}

// ReadRequest loads a spawn request file.
func ReadRequest(path string) (SpawnRequest, error) {
	var req SpawnRequest
	data, err := os.ReadFile(path)
	if err != nil {
		return req, fmt.Errorf("read spawn request: %w", err)
	}
	if err := json.Unmarshal(data, &req); err != nil {
		return req, fmt.Errorf("parse spawn request: %w", err)
	}
	return req, nil
}

// ReadResult loads a worker's result file.
func ReadResult(path string) (Result, error) {
	var res Result
	data, err := os.ReadFile(path)
	if err != nil {
		return res, fmt.Errorf("read worker result: %w", err)
	}
	if err := json.Unmarshal(data, &res); err != nil {
		return res, fmt.Errorf("parse worker result: %w", err)
	}
	return res, nil
}

func writeResult(path string, res Result) {
	data, err := json.Marshal(res)
	if err != nil {
		return
	}
	_ = os.WriteFile(path, append(data, '\n'), 0o644)
}

// repoGit is the slice of the git driver a worker needs against its own
// repository copy.
type repoGit interface {
	GetRef(ctx context.Context, name string, follow bool) (string, error)
	Checkout(ctx context.Context, rev string, detach bool) error
	StashApply(ctx context.Context, rev string) error
	Add(ctx context.Context, paths []string) error
	Commit(ctx context.Context, message string) (string, error)
	TreeHash(ctx context.Context, rev string) (string, error)
	SetRef(ctx context.Context, name, newSHA, oldSHA, message string) error
}

// Run executes the request and returns the process exit code. The first
// thing it does is self-report its process id on stdout; the coordinator
// needs it to deliver cancellation signals.
func Run(ctx context.Context, req SpawnRequest) int {
	fmt.Printf("PID %d\n", os.Getpid())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	git, err := gitx.NewCLIBackend(ctx, req.RepoDir)
	if err != nil {
		res := failure(err)
		writeResult(req.ResultPath, res)
		return ExitFailure
	}
	res, code := reproduce(ctx, req, git, sigCh)
	writeResult(req.ResultPath, res)
	return code
}

func reproduce(ctx context.Context, req SpawnRequest, git repoGit, sigCh <-chan os.Signal) (Result, int) {
	// Restore the staged state: detach at the target rev, then replay the
	// staged changes from the merge commit.
	head, err := git.GetRef(ctx, exp.ExecHead, true)
	if err != nil || head == "" {
		return failure(fmt.Errorf("missing handoff head ref: %v", err)), ExitFailure
	}
	merge, err := git.GetRef(ctx, exp.ExecMerge, true)
	if err != nil || merge == "" {
		return failure(fmt.Errorf("missing handoff merge ref: %v", err)), ExitFailure
	}
	baseline, err := git.GetRef(ctx, exp.ExecBaseline, true)
	if err != nil || baseline == "" {
		return failure(fmt.Errorf("missing handoff baseline ref: %v", err)), ExitFailure
	}
	if err := git.Checkout(ctx, head, true); err != nil {
		return failure(err), ExitFailure
	}
	if head != merge {
		if err := git.StashApply(ctx, merge); err != nil {
			return failure(fmt.Errorf("apply staged changes: %w", err)), ExitFailure
		}
	}

	cmdline := append([]string(nil), req.ReproCommand...)
	if packed, err := exp.ReadPackedArgs(
		filepath.Join(req.RepoDir, filepath.FromSlash(exp.PackedArgsFile)),
	); err == nil {
		cmdline = appendPackedArgs(cmdline, packed)
	}

	logging.Worker("reproducing %.7s: %s", req.Rev, strings.Join(cmdline, " "))
	killed, runErr := runCommand(ctx, req.RepoDir, cmdline, sigCh)

	if killed && req.Checkpoint {
		// Preserve partial checkpoint progress before going down.
		if res, err := commitResult(ctx, git, req, baseline); err == nil {
			res.Killed = true
			logging.Worker("checkpoint %.7s interrupted, progress preserved at %.7s", req.Rev, res.ExpRev)
			return res, ExitCheckpointKilled
		}
		return Result{Force: req.Branch != "", Killed: true, Checkpoint: true, Error: "checkpoint interrupted"}, ExitCheckpointKilled
	}
	if killed {
		return Result{Error: "cancelled by operator"}, ExitCancelled
	}
	if runErr != nil {
		return failure(fmt.Errorf("reproduction failed: %w", runErr)), ExitFailure
	}

	res, err := commitResult(ctx, git, req, baseline)
	if err != nil {
		return failure(err), ExitFailure
	}
	logging.Worker("reproduced %.7s as %.7s", req.Rev, res.ExpRev)
	return res, ExitOK
}

func failure(err error) Result {
	return Result{Error: err.Error()}
}

// appendPackedArgs expands the packed side file onto the reproduction
// command line: positional arguments first, then keyword arguments as
// key=value in stable order.
func appendPackedArgs(cmdline []string, packed exp.PackedArgs) []string {
	cmdline = append(cmdline, packed.Args...)
	keys := make([]string, 0, len(packed.Kwargs))
	for k := range packed.Kwargs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		cmdline = append(cmdline, k+"="+packed.Kwargs[k])
	}
	return cmdline
}

// runCommand runs the external reproduction command, forwarding any
// interrupt to it and reporting whether the run was killed by one.
func runCommand(ctx context.Context, dir string, cmdline []string, sigCh <-chan os.Signal) (killed bool, err error) {
	cmd := exec.CommandContext(ctx, cmdline[0], cmdline[1:]...)
	cmd.Dir = dir
	var output bytes.Buffer
	cmd.Stdout = &output
	cmd.Stderr = &output
	if err := cmd.Start(); err != nil {
		return false, err
	}

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	interrupted := false
	for {
		select {
		case <-sigCh:
			interrupted = true
			_ = cmd.Process.Signal(os.Interrupt)
		case werr := <-done:
			if werr != nil {
				return interrupted, fmt.Errorf("%w\n%s", werr, output.String())
			}
			return interrupted, nil
		}
	}
}

// commitResult commits everything the reproduction produced and records the
// experiment ref for it in the worker's own repository; the coordinator
// fetches it from there.
func commitResult(ctx context.Context, git repoGit, req SpawnRequest, baseline string) (Result, error) {
	// Log output lands under .braid/logs and must not become part of the
	// experiment commit.
	if err := git.Add(ctx, []string{".", ":(exclude).braid/logs"}); err != nil {
		return Result{}, err
	}
	msg := "braid: experiment"
	if req.Name != "" {
		msg = "braid: experiment " + req.Name
	}
	expRev, err := git.Commit(ctx, msg)
	if err != nil {
		return Result{}, err
	}
	expHash, err := git.TreeHash(ctx, expRev)
	if err != nil {
		return Result{}, err
	}

	ref := req.Branch
	if ref == "" {
		info := exp.RefInfo{
			BaselineSHA: baseline[:7],
			ExpSHA:      expHash,
			Checkpoint:  req.Checkpoint,
		}
		ref = info.Ref()
	}
	if err := git.SetRef(ctx, ref, expRev, "", "braid: experiment result"); err != nil {
		return Result{}, err
	}
	return Result{
		ExpRev:  expRev,
		ExpHash: expHash,
		// A continuation advances a ref that already exists; the publisher
		// must be told the overwrite is expected.
		Force:      req.Branch != "",
		Checkpoint: req.Checkpoint,
	}, nil
}
