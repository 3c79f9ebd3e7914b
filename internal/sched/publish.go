package sched

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/avast/retry-go/v4"

	"braid/internal/exp"
	"braid/internal/gitx"
	"braid/internal/logging"
)

// OnDiverged decides whether an already-published experiment ref may be
// overwritten by a diverged candidate. Returning false with a nil error
// skips the ref quietly.
type OnDiverged func(ref string, checkpoint bool) (bool, error)

// refuseDiverged is the default policy: surface a collision instead of
// clobbering published results.
func refuseDiverged(ref string, checkpoint bool) (bool, error) {
	info, _ := exp.ParseRef(ref)
	if checkpoint {
		return false, &exp.CheckpointExistsError{Name: info.Name()}
	}
	return false, &exp.ExperimentExistsError{Name: info.Name()}
}

const publishAttempts = 3

// publish harvests the experiment refs a finished unit recorded in its
// isolated repository and installs them in the owning repository. Handoff
// refs and anything else outside the ref grammar are never transferred.
// Checkpoint refs additionally advance the resume pointer.
func publish(ctx context.Context, g *gitx.Git, w *Worker, force bool, onDiverged OnDiverged) ([]string, error) {
	if onDiverged == nil {
		onDiverged = refuseDiverged
	}

	remote, err := g.IterRemoteRefs(ctx, w.GitURL(), exp.Namespace)
	if err != nil {
		return nil, fmt.Errorf("list worker refs: %w", err)
	}
	var refspecs []string
	byName := make(map[string]exp.RefInfo)
	for _, r := range remote {
		if strings.HasPrefix(r.Name, exp.ExecNamespace+"/") {
			continue
		}
		info, ok := exp.ParseRef(r.Name)
		if !ok {
			continue
		}
		refspecs = append(refspecs, r.Name+":"+r.Name)
		byName[r.Name] = info
	}
	if len(refspecs) == 0 {
		return nil, fmt.Errorf("unit %s produced no experiment refs", w.ID)
	}

	cb := func(ref, sha string) (bool, error) {
		return onDiverged(ref, byName[ref].Checkpoint)
	}

	var fetched []gitx.Ref
	err = retry.Do(
		func() error {
			var ferr error
			fetched, ferr = g.FetchRefspecs(ctx, w.GitURL(), refspecs, force, cb)
			return ferr
		},
		retry.Context(ctx),
		retry.Attempts(publishAttempts),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			var ee *exp.ExperimentExistsError
			var ce *exp.CheckpointExistsError
			return !errors.As(err, &ee) && !errors.As(err, &ce)
		}),
	)
	if err != nil {
		return nil, err
	}

	var refs []string
	for _, r := range fetched {
		refs = append(refs, r.Name)
		if byName[r.Name].Checkpoint {
			if err := g.SetRef(ctx, exp.ExecCheckpoint, r.SHA, "", "braid: checkpoint"); err != nil {
				return nil, fmt.Errorf("advance checkpoint pointer: %w", err)
			}
		}
		logging.Publish("published %s at %.7s", r.Name, r.SHA)
	}
	return refs, nil
}
