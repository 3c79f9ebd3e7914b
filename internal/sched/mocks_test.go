package sched

import (
	"context"

	"braid/internal/gitx"
)

// --- MockBackend ---

// MockBackend implements gitx.Backend for testing. Unwired methods report
// gitx.ErrUnsupported so unexpected driver calls surface as ErrNoBackend
// instead of passing silently.
type MockBackend struct {
	Root string

	StashListFunc      func(ctx context.Context, ref string) ([]gitx.StashCommit, error)
	StashDropFunc      func(ctx context.Context, ref string, index int) error
	GetRefFunc         func(ctx context.Context, name string, follow bool) (string, error)
	SetRefFunc         func(ctx context.Context, name, newSHA, oldSHA, message string) error
	RemoveRefFunc      func(ctx context.Context, name, oldSHA string) error
	IterRemoteRefsFunc func(ctx context.Context, url, base string) ([]gitx.Ref, error)
	FetchRefspecsFunc  func(ctx context.Context, url string, refspecs []string, force bool, onDiverged gitx.DivergedFunc) ([]gitx.Ref, error)
	ResolveFunc        func(ctx context.Context, rev string) (string, error)
}

func (m *MockBackend) Name() string    { return "mock" }
func (m *MockBackend) RootDir() string { return m.Root }
func (m *MockBackend) Close() error    { return nil }

func (m *MockBackend) Add(ctx context.Context, paths []string) error {
	return gitx.ErrUnsupported
}

func (m *MockBackend) Commit(ctx context.Context, message string) (string, error) {
	return "", gitx.ErrUnsupported
}

func (m *MockBackend) Checkout(ctx context.Context, rev string, detach bool) error {
	return gitx.ErrUnsupported
}

func (m *MockBackend) CheckoutPaths(ctx context.Context, paths []string, force bool) error {
	return gitx.ErrUnsupported
}

func (m *MockBackend) Reset(ctx context.Context, hard bool, paths []string) error {
	return gitx.ErrUnsupported
}

func (m *MockBackend) StashPush(ctx context.Context, ref, message string, includeUntracked bool) (string, error) {
	return "", gitx.ErrUnsupported
}

func (m *MockBackend) StashApply(ctx context.Context, rev string) error {
	return gitx.ErrUnsupported
}

func (m *MockBackend) StashPop(ctx context.Context) error {
	return gitx.ErrUnsupported
}

func (m *MockBackend) StashList(ctx context.Context, ref string) ([]gitx.StashCommit, error) {
	if m.StashListFunc == nil {
		return nil, gitx.ErrUnsupported
	}
	return m.StashListFunc(ctx, ref)
}

func (m *MockBackend) StashDrop(ctx context.Context, ref string, index int) error {
	if m.StashDropFunc == nil {
		return gitx.ErrUnsupported
	}
	return m.StashDropFunc(ctx, ref, index)
}

func (m *MockBackend) GetRef(ctx context.Context, name string, follow bool) (string, error) {
	if m.GetRefFunc == nil {
		return "", gitx.ErrUnsupported
	}
	return m.GetRefFunc(ctx, name, follow)
}

func (m *MockBackend) SetRef(ctx context.Context, name, newSHA, oldSHA, message string) error {
	if m.SetRefFunc == nil {
		return gitx.ErrUnsupported
	}
	return m.SetRefFunc(ctx, name, newSHA, oldSHA, message)
}

func (m *MockBackend) RemoveRef(ctx context.Context, name, oldSHA string) error {
	if m.RemoveRefFunc == nil {
		return gitx.ErrUnsupported
	}
	return m.RemoveRefFunc(ctx, name, oldSHA)
}

func (m *MockBackend) IterRefs(ctx context.Context, base string) ([]gitx.Ref, error) {
	return nil, gitx.ErrUnsupported
}

func (m *MockBackend) IterRemoteRefs(ctx context.Context, url, base string) ([]gitx.Ref, error) {
	if m.IterRemoteRefsFunc == nil {
		return nil, gitx.ErrUnsupported
	}
	return m.IterRemoteRefsFunc(ctx, url, base)
}

func (m *MockBackend) RefsContaining(ctx context.Context, rev, base string) ([]gitx.Ref, error) {
	return nil, gitx.ErrUnsupported
}

func (m *MockBackend) PushRefspec(ctx context.Context, url, src, dest string, force bool, onDiverged gitx.DivergedFunc) error {
	return gitx.ErrUnsupported
}

func (m *MockBackend) FetchRefspecs(ctx context.Context, url string, refspecs []string, force bool, onDiverged gitx.DivergedFunc) ([]gitx.Ref, error) {
	if m.FetchRefspecsFunc == nil {
		return nil, gitx.ErrUnsupported
	}
	return m.FetchRefspecsFunc(ctx, url, refspecs, force, onDiverged)
}

func (m *MockBackend) Resolve(ctx context.Context, rev string) (string, error) {
	if m.ResolveFunc == nil {
		return "", gitx.ErrUnsupported
	}
	return m.ResolveFunc(ctx, rev)
}

func (m *MockBackend) ResolveCommit(ctx context.Context, rev string) (*gitx.Commit, error) {
	return nil, gitx.ErrUnsupported
}

func (m *MockBackend) ActiveBranch(ctx context.Context) (string, error) {
	return "", gitx.ErrUnsupported
}

func (m *MockBackend) IsTracked(ctx context.Context, path string) (bool, error) {
	return false, gitx.ErrUnsupported
}

func (m *MockBackend) IsDirty(ctx context.Context) (bool, error) {
	return false, gitx.ErrUnsupported
}

func (m *MockBackend) UntrackedFiles(ctx context.Context) ([]string, error) {
	return nil, gitx.ErrUnsupported
}

func (m *MockBackend) TrackedFiles(ctx context.Context, rev string) ([]string, error) {
	return nil, gitx.ErrUnsupported
}

func (m *MockBackend) Diff(ctx context.Context, revA, revB string) (string, error) {
	return "", gitx.ErrUnsupported
}

func (m *MockBackend) Describe(ctx context.Context, rev, base, match, exclude string) (string, error) {
	return "", gitx.ErrUnsupported
}
