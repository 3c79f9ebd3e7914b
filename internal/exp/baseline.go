package exp

import (
	"context"
	"fmt"

	"braid/internal/logging"
)

// GetBaseline returns the baseline rev for an experiment rev, or "" when it
// cannot be determined.
func (e *Experiments) GetBaseline(ctx context.Context, rev string) (string, error) {
	var baseline string
	err := e.WithLock(ctx, func(ctx context.Context) error {
		var err error
		baseline, err = e.getBaseline(ctx, rev)
		return err
	})
	return baseline, err
}

func (e *Experiments) getBaseline(ctx context.Context, rev string) (string, error) {
	resolved, err := e.git.Resolve(ctx, rev)
	if err != nil {
		return "", err
	}

	entries, err := e.ledger.List(ctx)
	if err != nil {
		return "", err
	}
	if entry, ok := entries[resolved]; ok {
		return entry.BaselineRev, nil
	}

	refs, err := e.refsByRev(ctx, resolved)
	if err != nil {
		return "", err
	}
	if len(refs) > 0 {
		return e.git.Resolve(ctx, refs[0].BaselineSHA)
	}
	return "", nil
}

// CheckBaseline guards every "apply an experiment result" path: it returns
// the rev's baseline only when that baseline equals the repository's current
// head, and a BaselineMismatchError otherwise.
func (e *Experiments) CheckBaseline(ctx context.Context, rev string) (string, error) {
	head, err := e.git.Resolve(ctx, "HEAD")
	if err != nil {
		return "", err
	}
	if rev == head {
		return rev, nil
	}

	baseline, err := e.getBaseline(ctx, rev)
	if err != nil {
		return "", err
	}
	if baseline == "" {
		// Cannot tell from ledger or ref name; fall back to the parent
		// commit.
		commit, err := e.git.ResolveCommit(ctx, rev)
		if err == nil && len(commit.Parents) > 0 {
			baseline = commit.Parents[0]
		}
	}
	if baseline == head {
		return baseline, nil
	}
	logging.Baseline("baseline %.7s for %.7s does not match head %.7s", baseline, rev, head)
	return "", &BaselineMismatchError{Baseline: baseline, Head: head}
}

// refsByRev returns the decoded experiment refs whose branches contain rev,
// skipping anything in the namespace that does not parse.
func (e *Experiments) refsByRev(ctx context.Context, rev string) ([]RefInfo, error) {
	refs, err := e.git.RefsContaining(ctx, rev, Namespace)
	if err != nil {
		return nil, err
	}
	var infos []RefInfo
	for _, r := range refs {
		if info, ok := ParseRef(r.Name); ok {
			infos = append(infos, info)
		}
	}
	return infos, nil
}

// GetBranchByRev returns the full ref name of the experiment branch
// containing rev. With allowMultiple false, two or more containing branches
// yield a MultipleBranchError; resolvable only by explicit disambiguation.
func (e *Experiments) GetBranchByRev(ctx context.Context, rev string, allowMultiple bool) (string, error) {
	var branch string
	err := e.WithLock(ctx, func(ctx context.Context) error {
		var err error
		branch, err = e.getBranchByRev(ctx, rev, allowMultiple)
		return err
	})
	return branch, err
}

func (e *Experiments) getBranchByRev(ctx context.Context, rev string, allowMultiple bool) (string, error) {
	infos, err := e.refsByRev(ctx, rev)
	if err != nil {
		return "", err
	}
	if len(infos) == 0 {
		return "", nil
	}
	if len(infos) > 1 && !allowMultiple {
		return "", &MultipleBranchError{Rev: rev}
	}
	return infos[0].Ref(), nil
}

// baselineForRef resolves the full baseline commit encoded in an experiment
// ref name.
func (e *Experiments) baselineForRef(ctx context.Context, ref string) (string, error) {
	info, ok := ParseRef(ref)
	if !ok {
		return "", fmt.Errorf("malformed experiment ref %q", ref)
	}
	return e.git.Resolve(ctx, info.BaselineSHA)
}

// GetExactName returns the preferred display name for a revision: the first
// experiment ref pointing exactly at it, excluding execution refs.
func (e *Experiments) GetExactName(ctx context.Context, rev string) (string, error) {
	ref, err := e.git.Describe(ctx, rev, Namespace, "", ExecNamespace+"/*")
	if err != nil {
		return "", err
	}
	if ref == "" {
		return "", nil
	}
	if info, ok := ParseRef(ref); ok {
		return info.Name(), nil
	}
	return "", nil
}
