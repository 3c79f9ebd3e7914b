// Package gitx provides the version-control driver used by braid.
// It defines one capability surface (Backend) over interchangeable git
// engines and a facade (Git) that chains them: a backend that cannot serve a
// call returns ErrUnsupported and the next backend in the chain is tried.
package gitx

import (
	"context"
	"errors"
)

// ErrUnsupported is returned by a backend for calls it cannot serve.
// The Git facade treats it as "try the next backend"; any other error is
// final.
var ErrUnsupported = errors.New("gitx: operation not supported by backend")

// ErrNoBackend is returned by the facade when no backend in the chain could
// serve a call.
var ErrNoBackend = errors.New("gitx: no backend supports this operation")

// Ref is a named reference and the commit it points to.
type Ref struct {
	Name string
	SHA  string
}

// Commit exposes the parent links and message of a resolved commit.
type Commit struct {
	SHA     string
	Parents []string
	Message string
}

// StashCommit is one entry of a stash ref's reflog.
type StashCommit struct {
	SHA     string
	Message string
}

// DivergedFunc is invoked when a ref transfer finds the destination already
// pointing elsewhere and force is off. Returning true overwrites the ref; a
// non-nil error aborts the transfer.
type DivergedFunc func(ref string, sha string) (bool, error)

// Backend is the driver contract. Engines implement as much of it as they
// can and return ErrUnsupported for the rest.
type Backend interface {
	// Name identifies the backend ("cli", "gogit").
	Name() string
	RootDir() string
	Close() error

	// Workspace mutation.
	Add(ctx context.Context, paths []string) error
	Commit(ctx context.Context, message string) (string, error)
	Checkout(ctx context.Context, rev string, detach bool) error
	CheckoutPaths(ctx context.Context, paths []string, force bool) error
	Reset(ctx context.Context, hard bool, paths []string) error

	// Stash. All calls take the stash ref they operate on; StashPop only
	// ever applies to the default workspace stash.
	StashPush(ctx context.Context, ref, message string, includeUntracked bool) (string, error)
	StashApply(ctx context.Context, rev string) error
	StashPop(ctx context.Context) error
	StashList(ctx context.Context, ref string) ([]StashCommit, error)
	StashDrop(ctx context.Context, ref string, index int) error

	// Refs. SetRef with oldRef only succeeds if the ref currently equals
	// oldRef; message is recorded in the reflog.
	GetRef(ctx context.Context, name string, follow bool) (string, error)
	SetRef(ctx context.Context, name, newSHA, oldSHA, message string) error
	RemoveRef(ctx context.Context, name, oldSHA string) error
	IterRefs(ctx context.Context, base string) ([]Ref, error)
	IterRemoteRefs(ctx context.Context, url, base string) ([]Ref, error)
	RefsContaining(ctx context.Context, rev, base string) ([]Ref, error)

	// Transfer. src/dest are full ref names; onDiverged decides overwrite
	// when the destination exists, differs and force is off.
	PushRefspec(ctx context.Context, url, src, dest string, force bool, onDiverged DivergedFunc) error
	FetchRefspecs(ctx context.Context, url string, refspecs []string, force bool, onDiverged DivergedFunc) ([]Ref, error)

	// Resolution and queries.
	Resolve(ctx context.Context, rev string) (string, error)
	ResolveCommit(ctx context.Context, rev string) (*Commit, error)
	ActiveBranch(ctx context.Context) (string, error)
	IsTracked(ctx context.Context, path string) (bool, error)
	IsDirty(ctx context.Context) (bool, error)
	UntrackedFiles(ctx context.Context) ([]string, error)
	TrackedFiles(ctx context.Context, rev string) ([]string, error)
	Diff(ctx context.Context, revA, revB string) (string, error)
	Describe(ctx context.Context, rev, base, match, exclude string) (string, error)
}
