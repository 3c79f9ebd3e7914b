package gitx

import (
	"context"
	"errors"
	"fmt"
	"strings"

	gogit "github.com/go-git/go-git/v5"
	gitcfg "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/storage/memory"
)

// GoGitBackend serves the read side of the driver contract in-process with
// go-git, avoiding a subprocess per call. Workspace mutation, stashes and
// ref transfers fall through to the CLI backend.
type GoGitBackend struct {
	root string
	repo *gogit.Repository
}

// OpenGoGit opens the repository containing dir.
func OpenGoGit(dir string) (*GoGitBackend, error) {
	repo, err := gogit.PlainOpenWithOptions(dir, &gogit.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return nil, fmt.Errorf("%s is not a git repository: %w", dir, err)
	}
	wt, err := repo.Worktree()
	if err != nil {
		return nil, err
	}
	return &GoGitBackend{root: wt.Filesystem.Root(), repo: repo}, nil
}

// NewGoGitBackend wraps an already-open repository. Tests use this with
// in-memory repositories.
func NewGoGitBackend(repo *gogit.Repository, root string) *GoGitBackend {
	return &GoGitBackend{root: root, repo: repo}
}

func (b *GoGitBackend) Name() string    { return "gogit" }
func (b *GoGitBackend) RootDir() string { return b.root }
func (b *GoGitBackend) Close() error    { return nil }

// Reload re-opens the underlying repository. go-git caches packed-refs
// state, so the facade reloads this backend after refs were written through
// the CLI backend.
func (b *GoGitBackend) Reload() error {
	if b.root == "" {
		return nil
	}
	repo, err := gogit.PlainOpenWithOptions(b.root, &gogit.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return err
	}
	b.repo = repo
	return nil
}

func (b *GoGitBackend) Resolve(ctx context.Context, rev string) (string, error) {
	h, err := b.repo.ResolveRevision(plumbing.Revision(rev))
	if err != nil {
		return "", fmt.Errorf("cannot resolve %q: %w", rev, err)
	}
	return h.String(), nil
}

func (b *GoGitBackend) ResolveCommit(ctx context.Context, rev string) (*Commit, error) {
	h, err := b.repo.ResolveRevision(plumbing.Revision(rev))
	if err != nil {
		return nil, fmt.Errorf("cannot resolve %q: %w", rev, err)
	}
	c, err := b.repo.CommitObject(*h)
	if err != nil {
		return nil, err
	}
	out := &Commit{SHA: c.Hash.String(), Message: strings.TrimRight(c.Message, "\n")}
	for _, p := range c.ParentHashes {
		out.Parents = append(out.Parents, p.String())
	}
	return out, nil
}

func (b *GoGitBackend) GetRef(ctx context.Context, name string, follow bool) (string, error) {
	ref, err := b.repo.Reference(plumbing.ReferenceName(name), follow)
	if errors.Is(err, plumbing.ErrReferenceNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	if !follow && ref.Type() == plumbing.SymbolicReference {
		return ref.Target().String(), nil
	}
	return ref.Hash().String(), nil
}

func (b *GoGitBackend) SetRef(ctx context.Context, name, newSHA, oldSHA, message string) error {
	if message != "" {
		// go-git does not write reflog entries; let the CLI record it.
		return ErrUnsupported
	}
	ref := plumbing.NewHashReference(plumbing.ReferenceName(name), plumbing.NewHash(newSHA))
	if oldSHA != "" {
		old := plumbing.NewHashReference(plumbing.ReferenceName(name), plumbing.NewHash(oldSHA))
		return b.repo.Storer.CheckAndSetReference(ref, old)
	}
	return b.repo.Storer.SetReference(ref)
}

func (b *GoGitBackend) RemoveRef(ctx context.Context, name, oldSHA string) error {
	rn := plumbing.ReferenceName(name)
	if oldSHA != "" {
		cur, err := b.repo.Reference(rn, true)
		if err != nil {
			return err
		}
		if cur.Hash().String() != oldSHA {
			return fmt.Errorf("ref %s moved, expected %s", name, oldSHA)
		}
	}
	return b.repo.Storer.RemoveReference(rn)
}

func (b *GoGitBackend) IterRefs(ctx context.Context, base string) ([]Ref, error) {
	iter, err := b.repo.References()
	if err != nil {
		return nil, err
	}
	defer iter.Close()
	var refs []Ref
	err = iter.ForEach(func(r *plumbing.Reference) error {
		if r.Type() != plumbing.HashReference {
			return nil
		}
		name := r.Name().String()
		if base != "" && !strings.HasPrefix(name, strings.TrimSuffix(base, "/")+"/") && name != base {
			return nil
		}
		refs = append(refs, Ref{Name: name, SHA: r.Hash().String()})
		return nil
	})
	return refs, err
}

func (b *GoGitBackend) IterRemoteRefs(ctx context.Context, url, base string) ([]Ref, error) {
	remote := gogit.NewRemote(memory.NewStorage(), &gitcfg.RemoteConfig{
		Name: "anonymous",
		URLs: []string{url},
	})
	listed, err := remote.ListContext(ctx, &gogit.ListOptions{})
	if err != nil {
		return nil, err
	}
	var refs []Ref
	for _, r := range listed {
		if r.Type() != plumbing.HashReference {
			continue
		}
		name := r.Name().String()
		if base != "" && !strings.HasPrefix(name, strings.TrimSuffix(base, "/")+"/") && name != base {
			continue
		}
		refs = append(refs, Ref{Name: name, SHA: r.Hash().String()})
	}
	return refs, nil
}

func (b *GoGitBackend) ActiveBranch(ctx context.Context) (string, error) {
	head, err := b.repo.Reference(plumbing.HEAD, false)
	if err != nil {
		return "", err
	}
	if head.Type() != plumbing.SymbolicReference || !head.Target().IsBranch() {
		return "", errors.New("HEAD is detached")
	}
	return head.Target().Short(), nil
}

// Unsupported surface: workspace mutation, stashes, ancestry scans and ref
// transfers go through the CLI backend.

func (b *GoGitBackend) Add(ctx context.Context, paths []string) error { return ErrUnsupported }
func (b *GoGitBackend) Commit(ctx context.Context, message string) (string, error) {
	return "", ErrUnsupported
}
func (b *GoGitBackend) Checkout(ctx context.Context, rev string, detach bool) error {
	return ErrUnsupported
}
func (b *GoGitBackend) CheckoutPaths(ctx context.Context, paths []string, force bool) error {
	return ErrUnsupported
}
func (b *GoGitBackend) Reset(ctx context.Context, hard bool, paths []string) error {
	return ErrUnsupported
}
func (b *GoGitBackend) StashPush(ctx context.Context, ref, message string, includeUntracked bool) (string, error) {
	return "", ErrUnsupported
}
func (b *GoGitBackend) StashApply(ctx context.Context, rev string) error { return ErrUnsupported }
func (b *GoGitBackend) StashPop(ctx context.Context) error               { return ErrUnsupported }
func (b *GoGitBackend) StashList(ctx context.Context, ref string) ([]StashCommit, error) {
	return nil, ErrUnsupported
}
func (b *GoGitBackend) StashDrop(ctx context.Context, ref string, index int) error {
	return ErrUnsupported
}
func (b *GoGitBackend) RefsContaining(ctx context.Context, rev, base string) ([]Ref, error) {
	return nil, ErrUnsupported
}
func (b *GoGitBackend) PushRefspec(ctx context.Context, url, src, dest string, force bool, onDiverged DivergedFunc) error {
	return ErrUnsupported
}
func (b *GoGitBackend) FetchRefspecs(ctx context.Context, url string, refspecs []string, force bool, onDiverged DivergedFunc) ([]Ref, error) {
	return nil, ErrUnsupported
}
func (b *GoGitBackend) IsTracked(ctx context.Context, path string) (bool, error) {
	return false, ErrUnsupported
}
func (b *GoGitBackend) IsDirty(ctx context.Context) (bool, error) { return false, ErrUnsupported }
func (b *GoGitBackend) UntrackedFiles(ctx context.Context) ([]string, error) {
	return nil, ErrUnsupported
}
func (b *GoGitBackend) TrackedFiles(ctx context.Context, rev string) ([]string, error) {
	return nil, ErrUnsupported
}
func (b *GoGitBackend) Diff(ctx context.Context, revA, revB string) (string, error) {
	return "", ErrUnsupported
}
func (b *GoGitBackend) Describe(ctx context.Context, rev, base, match, exclude string) (string, error) {
	return "", ErrUnsupported
}
