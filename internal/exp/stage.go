package exp

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"braid/internal/logging"
)

// LastCheckpoint resumes from the most recently recorded checkpoint.
const LastCheckpoint = ":last"

// StageOptions describes one staging request.
type StageOptions struct {
	// Params maps target files to value overrides deep-merged on top of the
	// file's current contents. Override wins on key conflict.
	Params map[string]map[string]interface{}

	// CheckpointResume selects checkpoint-resume staging: a checkpoint
	// ref/rev, or LastCheckpoint.
	CheckpointResume string

	// DetachRev stages a specific revision instead of the workspace.
	DetachRev string

	// BaselineRev overrides the recorded baseline; defaults to the staged
	// checkout's revision.
	BaselineRev string

	// Branch stages onto an existing experiment branch instead of creating
	// a new one.
	Branch string

	// Name is the optional human-readable experiment name.
	Name string

	// ExtraArgs and Kwargs are passed opaquely to the reproduction command
	// through the packed-arguments side file.
	ExtraArgs []string
	Kwargs    map[string]string
}

// New stages a new experiment (or a checkpoint resume) and returns its
// ledger entry id.
func (e *Experiments) New(ctx context.Context, opts StageOptions) (string, error) {
	var stashRev string
	err := e.WithLock(ctx, func(ctx context.Context) error {
		var err error
		if opts.CheckpointResume != "" {
			stashRev, err = e.resume(ctx, opts)
		} else {
			stashRev, err = e.stash(ctx, opts)
		}
		return err
	})
	return stashRev, err
}

// stash captures workspace or detached-rev changes as one ledger entry.
// Every exit path hard-resets the workspace before the prior workspace state
// is unstashed, so no failure can leave the stash-applied intermediate state
// behind.
func (e *Experiments) stash(ctx context.Context, opts StageOptions) (stashRev string, err error) {
	if verr := ValidateName(opts.Name); verr != nil {
		return "", verr
	}

	includeUntracked := opts.DetachRev != "" || opts.Branch != ""
	wsRev, err := e.git.StashPush(ctx, "refs/stash", "braid: staging", includeUntracked)
	if err != nil {
		return "", fmt.Errorf("stash workspace: %w", err)
	}
	if wsRev != "" {
		defer func() {
			if perr := e.git.StashPop(ctx); perr != nil && err == nil {
				err = fmt.Errorf("restore workspace: %w", perr)
			}
		}()
	}

	// If we are not extending an existing branch, the staged run should
	// carry the current workspace changes.
	if opts.Branch == "" && opts.DetachRev == "" && wsRev != "" {
		if err := e.git.StashApply(ctx, wsRev); err != nil {
			return "", fmt.Errorf("apply workspace changes: %w", err)
		}
		if err := e.pruneLockfiles(ctx); err != nil {
			return "", err
		}
	}

	// Checkout and detach at detach_rev, branch, or current HEAD.
	head := opts.DetachRev
	if head == "" {
		head = opts.Branch
	}
	origHead, err := e.git.GetRef(ctx, "HEAD", false)
	if err != nil {
		return "", err
	}
	if err := e.git.Checkout(ctx, head, true); err != nil {
		return "", fmt.Errorf("detach at %q: %w", head, err)
	}
	defer func() {
		if rerr := e.restoreHead(ctx, origHead); rerr != nil && err == nil {
			err = rerr
		}
	}()
	// Reset any changes before the prior workspace is unstashed.
	defer func() {
		if rerr := e.git.Reset(ctx, true, nil); rerr != nil && err == nil {
			err = fmt.Errorf("reset workspace: %w", rerr)
		}
	}()

	rev, err := e.git.Resolve(ctx, "HEAD")
	if err != nil {
		return "", err
	}
	baseline := opts.BaselineRev
	if baseline == "" {
		baseline = rev
	}

	if len(opts.Params) > 0 {
		if err := e.updateParams(ctx, opts.Params); err != nil {
			return "", err
		}
	}
	if err := e.packArgs(ctx, opts.ExtraArgs, opts.Kwargs); err != nil {
		return "", err
	}

	msg := FormatMsg(rev, baseline, opts.Name, opts.Branch)
	stashRev, err = e.ledger.Push(ctx, msg)
	if err != nil {
		return "", err
	}
	logging.Stage("staged experiment %.7s with baseline %.7s", stashRev, baseline)
	return stashRev, nil
}

// restoreHead checks out whatever HEAD referenced before the staging
// transaction detached it.
func (e *Experiments) restoreHead(ctx context.Context, origHead string) error {
	if branch, ok := strings.CutPrefix(origHead, "refs/heads/"); ok {
		return e.git.Checkout(ctx, branch, false)
	}
	return e.git.Checkout(ctx, origHead, true)
}

// pruneLockfiles restores dirty pipeline lock files to index state. They
// must reflect the index, not the dirty workspace, or a later checkout could
// materialize the wrong persisted or checkpoint outputs.
func (e *Experiments) pruneLockfiles(ctx context.Context) error {
	files, err := e.git.TrackedFiles(ctx, "HEAD")
	if err != nil {
		return err
	}
	var locks []string
	for _, f := range files {
		if filepath.Base(f) == e.cfg.Execution.LockFile {
			locks = append(locks, f)
		}
	}
	if len(locks) == 0 {
		return nil
	}
	logging.StageDebug("restoring %d lock file(s) to index state", len(locks))
	if err := e.git.Reset(ctx, false, locks); err != nil {
		return err
	}
	return e.git.CheckoutPaths(ctx, locks, true)
}

// updateParams deep-merges override values into each target params file and
// stages the result. The explicit add matters: stash change detection can be
// mtime-based and would otherwise miss a rewrite that keeps size and
// timestamp ambiguous.
func (e *Experiments) updateParams(ctx context.Context, params map[string]map[string]interface{}) error {
	logging.StageDebug("using experiment params %v", params)
	names := make([]string, 0, len(params))
	for fname, overrides := range params {
		path := filepath.Join(e.root, filepath.FromSlash(fname))
		doc, err := loadParamsFile(path)
		if err != nil {
			return fmt.Errorf("params file %s: %w", fname, err)
		}
		deepMerge(doc, overrides)
		if err := writeParamsFile(path, doc); err != nil {
			return fmt.Errorf("params file %s: %w", fname, err)
		}
		names = append(names, fname)
	}
	return e.git.Add(ctx, names)
}

func loadParamsFile(path string) (map[string]interface{}, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return map[string]interface{}{}, nil
	}
	if err != nil {
		return nil, err
	}
	doc := map[string]interface{}{}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &doc)
	case ".json":
		err = json.Unmarshal(data, &doc)
	default:
		return nil, fmt.Errorf("unsupported params format %q", filepath.Ext(path))
	}
	return doc, err
}

func writeParamsFile(path string, doc map[string]interface{}) error {
	var (
		data []byte
		err  error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err = yaml.Marshal(doc)
	case ".json":
		data, err = json.MarshalIndent(doc, "", "  ")
		data = append(data, '\n')
	}
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// deepMerge merges src into dst; src wins on key conflict, nested maps merge
// recursively.
func deepMerge(dst, src map[string]interface{}) {
	for k, v := range src {
		if sv, ok := v.(map[string]interface{}); ok {
			if dv, ok := dst[k].(map[string]interface{}); ok {
				deepMerge(dv, sv)
				continue
			}
		}
		dst[k] = v
	}
}

// packArgs writes the packed-arguments side file and stages it so the worker
// receives it with the stash. A leftover copy that is tracked by git is a
// user mistake; it is warned about and its retry counter carried forward so
// repeated misuse stays observable.
func (e *Experiments) packArgs(ctx context.Context, args []string, kwargs map[string]string) error {
	path := e.argsFile()
	packed := PackedArgs{Args: args, Kwargs: kwargs}
	if _, serr := os.Stat(path); serr == nil {
		tracked, terr := e.git.IsTracked(ctx, PackedArgsFile)
		if terr == nil && tracked {
			logging.Get(logging.CategoryStage).Warnf(
				"'%s' exists and was likely committed to git by mistake. "+
					"It should be removed with:\n\tgit rm --cached %s",
				PackedArgsFile, PackedArgsFile,
			)
			if prev, rerr := ReadPackedArgs(path); rerr == nil {
				packed.Extra = prev.Extra + 1
			}
		}
	}
	if err := WritePackedArgs(path, packed); err != nil {
		return fmt.Errorf("pack repro args: %w", err)
	}
	return e.git.Add(ctx, []string{PackedArgsFile})
}

// resume stages a checkpoint continuation. With param overrides the result
// forks an unbranched line from the checkpoint tip; without them it extends
// the checkpoint's existing branch.
func (e *Experiments) resume(ctx context.Context, opts StageOptions) (string, error) {
	target := opts.CheckpointResume

	var resumeRev string
	if target == LastCheckpoint {
		rev, err := e.git.GetRef(ctx, ExecCheckpoint, true)
		if err != nil {
			return "", err
		}
		if rev == "" {
			return "", fmt.Errorf("no existing checkpoint experiment to continue: %w", ErrNotFound)
		}
		resumeRev = rev
	} else {
		rev, err := e.git.Resolve(ctx, target)
		if err != nil {
			return "", fmt.Errorf("checkpoint '%s': %w", target, ErrNotFound)
		}
		resumeRev = rev
	}

	// Modified params imply branching off rather than an ambiguous
	// continuation, so multiple containing branches are tolerated.
	allowMultiple := len(opts.Params) > 0
	branch, err := e.getBranchByRev(ctx, resumeRev, allowMultiple)
	if err != nil {
		return "", err
	}
	if branch == "" {
		return "", fmt.Errorf("could not find checkpoint experiment '%s': %w", target, ErrNotFound)
	}

	baseline, err := e.baselineForRef(ctx, branch)
	if err != nil {
		return "", err
	}

	stageOpts := StageOptions{
		Params:      opts.Params,
		BaselineRev: baseline,
		Name:        opts.Name,
		ExtraArgs:   opts.ExtraArgs,
		Kwargs:      opts.Kwargs,
	}
	if len(opts.Params) > 0 {
		logging.StageDebug(
			"branching from checkpoint '%s' with modified params, baseline %.7s",
			target, baseline,
		)
		stageOpts.DetachRev = resumeRev
	} else {
		logging.StageDebug("continuing from tip of checkpoint '%s'", target)
		stageOpts.Branch = branch
	}
	return e.stash(ctx, stageOpts)
}
