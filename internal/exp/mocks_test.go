package exp

import (
	"context"

	"braid/internal/gitx"
)

// --- MockBackend ---

// MockBackend implements gitx.Backend for testing. Methods without an
// installed func report gitx.ErrUnsupported, so a test that forgets to wire
// an operation fails loudly through the facade instead of silently passing.
type MockBackend struct {
	Root string

	AddFunc            func(ctx context.Context, paths []string) error
	CommitFunc         func(ctx context.Context, message string) (string, error)
	CheckoutFunc       func(ctx context.Context, rev string, detach bool) error
	CheckoutPathsFunc  func(ctx context.Context, paths []string, force bool) error
	ResetFunc          func(ctx context.Context, hard bool, paths []string) error
	StashPushFunc      func(ctx context.Context, ref, message string, includeUntracked bool) (string, error)
	StashApplyFunc     func(ctx context.Context, rev string) error
	StashPopFunc       func(ctx context.Context) error
	StashListFunc      func(ctx context.Context, ref string) ([]gitx.StashCommit, error)
	StashDropFunc      func(ctx context.Context, ref string, index int) error
	GetRefFunc         func(ctx context.Context, name string, follow bool) (string, error)
	SetRefFunc         func(ctx context.Context, name, newSHA, oldSHA, message string) error
	RemoveRefFunc      func(ctx context.Context, name, oldSHA string) error
	IterRefsFunc       func(ctx context.Context, base string) ([]gitx.Ref, error)
	IterRemoteRefsFunc func(ctx context.Context, url, base string) ([]gitx.Ref, error)
	RefsContainingFunc func(ctx context.Context, rev, base string) ([]gitx.Ref, error)
	PushRefspecFunc    func(ctx context.Context, url, src, dest string, force bool, onDiverged gitx.DivergedFunc) error
	FetchRefspecsFunc  func(ctx context.Context, url string, refspecs []string, force bool, onDiverged gitx.DivergedFunc) ([]gitx.Ref, error)
	ResolveFunc        func(ctx context.Context, rev string) (string, error)
	ResolveCommitFunc  func(ctx context.Context, rev string) (*gitx.Commit, error)
	ActiveBranchFunc   func(ctx context.Context) (string, error)
	IsTrackedFunc      func(ctx context.Context, path string) (bool, error)
	IsDirtyFunc        func(ctx context.Context) (bool, error)
	UntrackedFilesFunc func(ctx context.Context) ([]string, error)
	TrackedFilesFunc   func(ctx context.Context, rev string) ([]string, error)
	DiffFunc           func(ctx context.Context, revA, revB string) (string, error)
	DescribeFunc       func(ctx context.Context, rev, base, match, exclude string) (string, error)
}

func (m *MockBackend) Name() string    { return "mock" }
func (m *MockBackend) RootDir() string { return m.Root }
func (m *MockBackend) Close() error    { return nil }

func (m *MockBackend) Add(ctx context.Context, paths []string) error {
	if m.AddFunc == nil {
		return gitx.ErrUnsupported
	}
	return m.AddFunc(ctx, paths)
}

func (m *MockBackend) Commit(ctx context.Context, message string) (string, error) {
	if m.CommitFunc == nil {
		return "", gitx.ErrUnsupported
	}
	return m.CommitFunc(ctx, message)
}

func (m *MockBackend) Checkout(ctx context.Context, rev string, detach bool) error {
	if m.CheckoutFunc == nil {
		return gitx.ErrUnsupported
	}
	return m.CheckoutFunc(ctx, rev, detach)
}

func (m *MockBackend) CheckoutPaths(ctx context.Context, paths []string, force bool) error {
	if m.CheckoutPathsFunc == nil {
		return gitx.ErrUnsupported
	}
	return m.CheckoutPathsFunc(ctx, paths, force)
}

func (m *MockBackend) Reset(ctx context.Context, hard bool, paths []string) error {
	if m.ResetFunc == nil {
		return gitx.ErrUnsupported
	}
	return m.ResetFunc(ctx, hard, paths)
}

func (m *MockBackend) StashPush(ctx context.Context, ref, message string, includeUntracked bool) (string, error) {
	if m.StashPushFunc == nil {
		return "", gitx.ErrUnsupported
	}
	return m.StashPushFunc(ctx, ref, message, includeUntracked)
}

func (m *MockBackend) StashApply(ctx context.Context, rev string) error {
	if m.StashApplyFunc == nil {
		return gitx.ErrUnsupported
	}
	return m.StashApplyFunc(ctx, rev)
}

func (m *MockBackend) StashPop(ctx context.Context) error {
	if m.StashPopFunc == nil {
		return gitx.ErrUnsupported
	}
	return m.StashPopFunc(ctx)
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
	if m.IterRefsFunc == nil {
		return nil, gitx.ErrUnsupported
	}
	return m.IterRefsFunc(ctx, base)
}

func (m *MockBackend) IterRemoteRefs(ctx context.Context, url, base string) ([]gitx.Ref, error) {
	if m.IterRemoteRefsFunc == nil {
		return nil, gitx.ErrUnsupported
	}
	return m.IterRemoteRefsFunc(ctx, url, base)
}

func (m *MockBackend) RefsContaining(ctx context.Context, rev, base string) ([]gitx.Ref, error) {
	if m.RefsContainingFunc == nil {
		return nil, gitx.ErrUnsupported
	}
	return m.RefsContainingFunc(ctx, rev, base)
}

func (m *MockBackend) PushRefspec(ctx context.Context, url, src, dest string, force bool, onDiverged gitx.DivergedFunc) error {
	if m.PushRefspecFunc == nil {
		return gitx.ErrUnsupported
	}
	return m.PushRefspecFunc(ctx, url, src, dest, force, onDiverged)
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
	if m.ResolveCommitFunc == nil {
		return nil, gitx.ErrUnsupported
	}
	return m.ResolveCommitFunc(ctx, rev)
}

func (m *MockBackend) ActiveBranch(ctx context.Context) (string, error) {
	if m.ActiveBranchFunc == nil {
		return "", gitx.ErrUnsupported
	}
	return m.ActiveBranchFunc(ctx)
}

func (m *MockBackend) IsTracked(ctx context.Context, path string) (bool, error) {
	if m.IsTrackedFunc == nil {
		return false, gitx.ErrUnsupported
	}
	return m.IsTrackedFunc(ctx, path)
}

func (m *MockBackend) IsDirty(ctx context.Context) (bool, error) {
	if m.IsDirtyFunc == nil {
		return false, gitx.ErrUnsupported
	}
	return m.IsDirtyFunc(ctx)
}

func (m *MockBackend) UntrackedFiles(ctx context.Context) ([]string, error) {
	if m.UntrackedFilesFunc == nil {
		return nil, gitx.ErrUnsupported
	}
	return m.UntrackedFilesFunc(ctx)
}

func (m *MockBackend) TrackedFiles(ctx context.Context, rev string) ([]string, error) {
	if m.TrackedFilesFunc == nil {
		return nil, gitx.ErrUnsupported
	}
	return m.TrackedFilesFunc(ctx, rev)
}

func (m *MockBackend) Diff(ctx context.Context, revA, revB string) (string, error) {
	if m.DiffFunc == nil {
		return "", gitx.ErrUnsupported
	}
	return m.DiffFunc(ctx, revA, revB)
}

func (m *MockBackend) Describe(ctx context.Context, rev, base, match, exclude string) (string, error) {
	if m.DescribeFunc == nil {
		return "", gitx.ErrUnsupported
	}
	return m.DescribeFunc(ctx, rev, base, match, exclude)
}
