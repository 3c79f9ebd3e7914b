package gitx

import (
	"context"
	"errors"
	"fmt"
)

// Git is the driver facade. It holds an ordered backend chain built once at
// startup; each call walks the chain until a backend serves it.
type Git struct {
	backends []Backend
}

// Open builds the facade for the repository containing dir. order names the
// backends to chain ("gogit", "cli"); an empty order selects the default
// chain of gogit followed by cli.
func Open(ctx context.Context, dir string, order []string) (*Git, error) {
	if len(order) == 0 {
		order = []string{"gogit", "cli"}
	}
	g := &Git{}
	for _, name := range order {
		switch name {
		case "cli":
			b, err := NewCLIBackend(ctx, dir)
			if err != nil {
				return nil, err
			}
			g.backends = append(g.backends, b)
		case "gogit":
			b, err := OpenGoGit(dir)
			if err != nil {
				return nil, err
			}
			g.backends = append(g.backends, b)
		default:
			return nil, fmt.Errorf("unknown git backend %q", name)
		}
	}
	return g, nil
}

// NewGit chains the given backends directly. Tests use this with fakes.
func NewGit(backends ...Backend) *Git {
	return &Git{backends: backends}
}

func (g *Git) RootDir() string {
	if len(g.backends) == 0 {
		return ""
	}
	return g.backends[0].RootDir()
}

func (g *Git) Close() error {
	var err error
	for _, b := range g.backends {
		if cerr := b.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}

// Reload refreshes backends that cache repository state. Called after
// another process or a sibling backend has rewritten refs.
func (g *Git) Reload() error {
	for _, b := range g.backends {
		if gg, ok := b.(*GoGitBackend); ok {
			if err := gg.Reload(); err != nil {
				return err
			}
		}
	}
	return nil
}

// each walks the chain until a backend serves the call.
func (g *Git) each(f func(Backend) error) error {
	for _, b := range g.backends {
		err := f(b)
		if errors.Is(err, ErrUnsupported) {
			continue
		}
		return err
	}
	return ErrNoBackend
}

func (g *Git) Add(ctx context.Context, paths []string) error {
	return g.each(func(b Backend) error { return b.Add(ctx, paths) })
}

func (g *Git) Commit(ctx context.Context, message string) (sha string, err error) {
	err = g.each(func(b Backend) (e error) { sha, e = b.Commit(ctx, message); return })
	return
}

func (g *Git) Checkout(ctx context.Context, rev string, detach bool) error {
	return g.each(func(b Backend) error { return b.Checkout(ctx, rev, detach) })
}

func (g *Git) CheckoutPaths(ctx context.Context, paths []string, force bool) error {
	return g.each(func(b Backend) error { return b.CheckoutPaths(ctx, paths, force) })
}

func (g *Git) Reset(ctx context.Context, hard bool, paths []string) error {
	return g.each(func(b Backend) error { return b.Reset(ctx, hard, paths) })
}

func (g *Git) StashPush(ctx context.Context, ref, message string, includeUntracked bool) (sha string, err error) {
	err = g.each(func(b Backend) (e error) { sha, e = b.StashPush(ctx, ref, message, includeUntracked); return })
	return
}

func (g *Git) StashApply(ctx context.Context, rev string) error {
	return g.each(func(b Backend) error { return b.StashApply(ctx, rev) })
}

func (g *Git) StashPop(ctx context.Context) error {
	return g.each(func(b Backend) error { return b.StashPop(ctx) })
}

func (g *Git) StashList(ctx context.Context, ref string) (entries []StashCommit, err error) {
	err = g.each(func(b Backend) (e error) { entries, e = b.StashList(ctx, ref); return })
	return
}

func (g *Git) StashDrop(ctx context.Context, ref string, index int) error {
	return g.each(func(b Backend) error { return b.StashDrop(ctx, ref, index) })
}

func (g *Git) GetRef(ctx context.Context, name string, follow bool) (sha string, err error) {
	err = g.each(func(b Backend) (e error) { sha, e = b.GetRef(ctx, name, follow); return })
	return
}

func (g *Git) SetRef(ctx context.Context, name, newSHA, oldSHA, message string) error {
	return g.each(func(b Backend) error { return b.SetRef(ctx, name, newSHA, oldSHA, message) })
}

func (g *Git) RemoveRef(ctx context.Context, name, oldSHA string) error {
	return g.each(func(b Backend) error { return b.RemoveRef(ctx, name, oldSHA) })
}

func (g *Git) IterRefs(ctx context.Context, base string) (refs []Ref, err error) {
	err = g.each(func(b Backend) (e error) { refs, e = b.IterRefs(ctx, base); return })
	return
}

func (g *Git) IterRemoteRefs(ctx context.Context, url, base string) (refs []Ref, err error) {
	err = g.each(func(b Backend) (e error) { refs, e = b.IterRemoteRefs(ctx, url, base); return })
	return
}

func (g *Git) RefsContaining(ctx context.Context, rev, base string) (refs []Ref, err error) {
	err = g.each(func(b Backend) (e error) { refs, e = b.RefsContaining(ctx, rev, base); return })
	return
}

func (g *Git) PushRefspec(ctx context.Context, url, src, dest string, force bool, onDiverged DivergedFunc) error {
	return g.each(func(b Backend) error { return b.PushRefspec(ctx, url, src, dest, force, onDiverged) })
}

func (g *Git) FetchRefspecs(ctx context.Context, url string, refspecs []string, force bool, onDiverged DivergedFunc) (refs []Ref, err error) {
	err = g.each(func(b Backend) (e error) {
		refs, e = b.FetchRefspecs(ctx, url, refspecs, force, onDiverged)
		return
	})
	return
}

func (g *Git) Resolve(ctx context.Context, rev string) (sha string, err error) {
	err = g.each(func(b Backend) (e error) { sha, e = b.Resolve(ctx, rev); return })
	return
}

func (g *Git) ResolveCommit(ctx context.Context, rev string) (c *Commit, err error) {
	err = g.each(func(b Backend) (e error) { c, e = b.ResolveCommit(ctx, rev); return })
	return
}

func (g *Git) ActiveBranch(ctx context.Context) (name string, err error) {
	err = g.each(func(b Backend) (e error) { name, e = b.ActiveBranch(ctx); return })
	return
}

func (g *Git) IsTracked(ctx context.Context, path string) (ok bool, err error) {
	err = g.each(func(b Backend) (e error) { ok, e = b.IsTracked(ctx, path); return })
	return
}

func (g *Git) IsDirty(ctx context.Context) (dirty bool, err error) {
	err = g.each(func(b Backend) (e error) { dirty, e = b.IsDirty(ctx); return })
	return
}

func (g *Git) UntrackedFiles(ctx context.Context) (files []string, err error) {
	err = g.each(func(b Backend) (e error) { files, e = b.UntrackedFiles(ctx); return })
	return
}

func (g *Git) TrackedFiles(ctx context.Context, rev string) (files []string, err error) {
	err = g.each(func(b Backend) (e error) { files, e = b.TrackedFiles(ctx, rev); return })
	return
}

func (g *Git) Diff(ctx context.Context, revA, revB string) (out string, err error) {
	err = g.each(func(b Backend) (e error) { out, e = b.Diff(ctx, revA, revB); return })
	return
}

func (g *Git) Describe(ctx context.Context, rev, base, match, exclude string) (ref string, err error) {
	err = g.each(func(b Backend) (e error) { ref, e = b.Describe(ctx, rev, base, match, exclude); return })
	return
}
