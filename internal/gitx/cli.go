package gitx

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"path"
	"strconv"
	"strings"

	"braid/internal/logging"
)

// CLIBackend drives the git binary with os/exec. It implements the full
// Backend surface and is the last backend in the default chain.
type CLIBackend struct {
	root string
}

// NewCLIBackend returns a CLI backend rooted at dir. It fails if dir is not
// inside a git work tree.
func NewCLIBackend(ctx context.Context, dir string) (*CLIBackend, error) {
	b := &CLIBackend{root: dir}
	out, err := b.run(ctx, "rev-parse", "--show-toplevel")
	if err != nil {
		return nil, fmt.Errorf("%s is not a git repository: %w", dir, err)
	}
	b.root = strings.TrimSpace(out)
	return b, nil
}

// InitRepo creates an empty git repository at dir and returns a CLI backend
// for it. Used for worker workspace construction.
func InitRepo(ctx context.Context, dir string) (*CLIBackend, error) {
	cmd := exec.CommandContext(ctx, "git", "init", "-q", dir)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("git init %s: %w: %s", dir, err, strings.TrimSpace(stderr.String()))
	}
	b := &CLIBackend{root: dir}
	// Worker repositories commit without a user-level git identity.
	for _, kv := range [][2]string{
		{"user.name", "braid"},
		{"user.email", "braid@localhost"},
	} {
		if _, err := b.run(ctx, "config", "--local", kv[0], kv[1]); err != nil {
			return nil, err
		}
	}
	return b, nil
}

func (b *CLIBackend) Name() string    { return "cli" }
func (b *CLIBackend) RootDir() string { return b.root }
func (b *CLIBackend) Close() error    { return nil }

// run executes one git command in the repository root. stderr is folded into
// the returned error so callers get full diagnostic detail.
func (b *CLIBackend) run(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = b.root
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	logging.GitDebug("git %s", strings.Join(args, " "))
	if err := cmd.Run(); err != nil {
		return stdout.String(), fmt.Errorf("git %s: %w: %s",
			args[0], err, strings.TrimSpace(stderr.String()))
	}
	return stdout.String(), nil
}

func (b *CLIBackend) Add(ctx context.Context, paths []string) error {
	args := append([]string{"add", "--"}, paths...)
	_, err := b.run(ctx, args...)
	return err
}

func (b *CLIBackend) Commit(ctx context.Context, message string) (string, error) {
	if _, err := b.run(ctx, "commit", "--no-verify", "-m", message); err != nil {
		return "", err
	}
	return b.Resolve(ctx, "HEAD")
}

func (b *CLIBackend) Checkout(ctx context.Context, rev string, detach bool) error {
	args := []string{"checkout"}
	if detach {
		args = append(args, "--detach")
	}
	if rev != "" {
		args = append(args, rev)
	}
	_, err := b.run(ctx, args...)
	return err
}

func (b *CLIBackend) CheckoutPaths(ctx context.Context, paths []string, force bool) error {
	args := []string{"checkout"}
	if force {
		args = append(args, "-f")
	}
	args = append(append(args, "--"), paths...)
	_, err := b.run(ctx, args...)
	return err
}

func (b *CLIBackend) Reset(ctx context.Context, hard bool, paths []string) error {
	args := []string{"reset", "-q"}
	if hard {
		args = append(args, "--hard")
	}
	if len(paths) > 0 {
		args = append(append(args, "--"), paths...)
	}
	_, err := b.run(ctx, args...)
	return err
}

// StashPush stashes the working tree under ref. Returns the stash commit SHA,
// or "" when there was nothing to stash. Custom stash refs are built by
// pushing to the default stash and relocating the entry, so the relocated
// reflog subject keeps the "commit: <message>" shape the ledger grammar
// expects.
func (b *CLIBackend) StashPush(ctx context.Context, ref, message string, includeUntracked bool) (string, error) {
	args := []string{"stash", "push", "-m", message}
	if includeUntracked {
		args = append(args, "--include-untracked")
	}
	out, err := b.run(ctx, args...)
	if err != nil {
		return "", err
	}
	if strings.Contains(out, "No local changes to save") {
		return "", nil
	}
	sha, err := b.Resolve(ctx, "refs/stash")
	if err != nil {
		return "", err
	}
	if ref == "" || ref == "refs/stash" {
		return sha, nil
	}
	if err := b.SetRef(ctx, ref, sha, "", "commit: "+message); err != nil {
		return "", err
	}
	if _, err := b.run(ctx, "stash", "drop", "-q", "stash@{0}"); err != nil {
		return "", err
	}
	return sha, nil
}

func (b *CLIBackend) StashApply(ctx context.Context, rev string) error {
	_, err := b.run(ctx, "stash", "apply", rev)
	return err
}

func (b *CLIBackend) StashPop(ctx context.Context) error {
	_, err := b.run(ctx, "stash", "pop", "-q")
	return err
}

// StashList walks the reflog of a stash ref, newest first. Index i in the
// result is addressable as <ref>@{i}.
func (b *CLIBackend) StashList(ctx context.Context, ref string) ([]StashCommit, error) {
	if sha, err := b.GetRef(ctx, ref, true); err != nil || sha == "" {
		return nil, err
	}
	out, err := b.run(ctx, "log", "-g", "--format=%H%x00%gs", ref)
	if err != nil {
		return nil, err
	}
	var entries []StashCommit
	for _, line := range strings.Split(strings.TrimRight(out, "\n"), "\n") {
		if line == "" {
			continue
		}
		sha, msg, ok := strings.Cut(line, "\x00")
		if !ok {
			continue
		}
		entries = append(entries, StashCommit{SHA: sha, Message: msg})
	}
	return entries, nil
}

func (b *CLIBackend) StashDrop(ctx context.Context, ref string, index int) error {
	entries, err := b.StashList(ctx, ref)
	if err != nil {
		return err
	}
	if index < 0 || index >= len(entries) {
		return fmt.Errorf("stash %s has no entry at index %d", ref, index)
	}
	spec := ref + "@{" + strconv.Itoa(index) + "}"
	if _, err := b.run(ctx, "reflog", "delete", "--updateref", "--rewrite", spec); err != nil {
		return err
	}
	if len(entries) == 1 {
		// reflog delete leaves the now-empty ref behind
		return b.RemoveRef(ctx, ref, "")
	}
	return nil
}

func (b *CLIBackend) GetRef(ctx context.Context, name string, follow bool) (string, error) {
	if !follow {
		out, err := b.run(ctx, "symbolic-ref", "-q", name)
		if err == nil {
			return strings.TrimSpace(out), nil
		}
	}
	out, err := b.run(ctx, "rev-parse", "--verify", "--quiet", name)
	if err != nil {
		// missing refs are not an error
		return "", nil
	}
	return strings.TrimSpace(out), nil
}

func (b *CLIBackend) SetRef(ctx context.Context, name, newSHA, oldSHA, message string) error {
	args := []string{"update-ref", "--create-reflog"}
	if message != "" {
		args = append(args, "-m", message)
	}
	args = append(args, name, newSHA)
	if oldSHA != "" {
		args = append(args, oldSHA)
	}
	_, err := b.run(ctx, args...)
	return err
}

func (b *CLIBackend) RemoveRef(ctx context.Context, name, oldSHA string) error {
	args := []string{"update-ref", "-d", name}
	if oldSHA != "" {
		args = append(args, oldSHA)
	}
	_, err := b.run(ctx, args...)
	return err
}

func (b *CLIBackend) IterRefs(ctx context.Context, base string) ([]Ref, error) {
	args := []string{"for-each-ref", "--format=%(refname)%00%(objectname)"}
	if base != "" {
		args = append(args, base)
	}
	out, err := b.run(ctx, args...)
	if err != nil {
		return nil, err
	}
	return parseRefLines(out), nil
}

func (b *CLIBackend) IterRemoteRefs(ctx context.Context, url, base string) ([]Ref, error) {
	args := []string{"ls-remote", url}
	if base != "" {
		args = append(args, base+"*")
	}
	out, err := b.run(ctx, args...)
	if err != nil {
		return nil, err
	}
	var refs []Ref
	for _, line := range strings.Split(strings.TrimRight(out, "\n"), "\n") {
		if line == "" {
			continue
		}
		sha, name, ok := strings.Cut(line, "\t")
		if !ok || strings.HasSuffix(name, "^{}") {
			continue
		}
		refs = append(refs, Ref{Name: name, SHA: sha})
	}
	return refs, nil
}

func (b *CLIBackend) RefsContaining(ctx context.Context, rev, base string) ([]Ref, error) {
	args := []string{"for-each-ref", "--contains", rev, "--format=%(refname)%00%(objectname)"}
	if base != "" {
		args = append(args, base)
	}
	out, err := b.run(ctx, args...)
	if err != nil {
		return nil, err
	}
	return parseRefLines(out), nil
}

func parseRefLines(out string) []Ref {
	var refs []Ref
	for _, line := range strings.Split(strings.TrimRight(out, "\n"), "\n") {
		if line == "" {
			continue
		}
		name, sha, ok := strings.Cut(line, "\x00")
		if !ok {
			continue
		}
		refs = append(refs, Ref{Name: name, SHA: sha})
	}
	return refs
}

func (b *CLIBackend) PushRefspec(ctx context.Context, url, src, dest string, force bool, onDiverged DivergedFunc) error {
	if src == "" {
		_, err := b.run(ctx, "push", url, ":"+dest)
		return err
	}
	if !force {
		remote, err := b.IterRemoteRefs(ctx, url, dest)
		if err == nil {
			local, lerr := b.GetRef(ctx, src, true)
			for _, r := range remote {
				if r.Name != dest || lerr != nil || local == r.SHA {
					continue
				}
				overwrite, derr := divergedOverwrite(onDiverged, dest, r.SHA)
				if derr != nil {
					return derr
				}
				if !overwrite {
					return nil
				}
				force = true
			}
		}
	}
	spec := src + ":" + dest
	if force {
		spec = "+" + spec
	}
	_, err := b.run(ctx, "push", url, spec)
	return err
}

// FetchRefspecs fetches each src:dest refspec from url. Destination refs that
// exist and point elsewhere are only overwritten when force is set or the
// divergence callback allows it; refused refs are skipped, not errors.
func (b *CLIBackend) FetchRefspecs(ctx context.Context, url string, refspecs []string, force bool, onDiverged DivergedFunc) ([]Ref, error) {
	var fetched []Ref
	for _, spec := range refspecs {
		src, dest, ok := strings.Cut(spec, ":")
		if !ok {
			dest = src
		}
		overwrite := force
		if !overwrite {
			local, err := b.GetRef(ctx, dest, true)
			if err != nil {
				return fetched, err
			}
			if local != "" {
				remote, err := b.remoteSHA(ctx, url, src)
				if err != nil {
					return fetched, err
				}
				if remote != "" && remote != local {
					ok, derr := divergedOverwrite(onDiverged, dest, remote)
					if derr != nil {
						return fetched, derr
					}
					if !ok {
						continue
					}
					overwrite = true
				}
			}
		}
		arg := src + ":" + dest
		if overwrite {
			arg = "+" + arg
		}
		if _, err := b.run(ctx, "fetch", "-q", url, arg); err != nil {
			return fetched, err
		}
		sha, err := b.GetRef(ctx, dest, true)
		if err != nil {
			return fetched, err
		}
		fetched = append(fetched, Ref{Name: dest, SHA: sha})
	}
	return fetched, nil
}

func (b *CLIBackend) remoteSHA(ctx context.Context, url, ref string) (string, error) {
	refs, err := b.IterRemoteRefs(ctx, url, ref)
	if err != nil {
		return "", err
	}
	for _, r := range refs {
		if r.Name == ref {
			return r.SHA, nil
		}
	}
	return "", nil
}

func divergedOverwrite(fn DivergedFunc, ref, sha string) (bool, error) {
	if fn == nil {
		return false, nil
	}
	return fn(ref, sha)
}

func (b *CLIBackend) Resolve(ctx context.Context, rev string) (string, error) {
	out, err := b.run(ctx, "rev-parse", "--verify", rev+"^{commit}")
	if err != nil {
		return "", fmt.Errorf("cannot resolve %q: %w", rev, err)
	}
	return strings.TrimSpace(out), nil
}

// TreeHash resolves the tree object id for a commit. Two commits with
// identical content hash to the same tree even when their metadata differs.
func (b *CLIBackend) TreeHash(ctx context.Context, rev string) (string, error) {
	out, err := b.run(ctx, "rev-parse", "--verify", rev+"^{tree}")
	if err != nil {
		return "", fmt.Errorf("cannot resolve tree for %q: %w", rev, err)
	}
	return strings.TrimSpace(out), nil
}

func (b *CLIBackend) ResolveCommit(ctx context.Context, rev string) (*Commit, error) {
	out, err := b.run(ctx, "show", "-s", "--format=%H%x00%P%x00%s", rev)
	if err != nil {
		return nil, err
	}
	sha, rest, _ := strings.Cut(strings.TrimRight(out, "\n"), "\x00")
	parents, msg, _ := strings.Cut(rest, "\x00")
	c := &Commit{SHA: sha, Message: msg}
	if parents != "" {
		c.Parents = strings.Fields(parents)
	}
	return c, nil
}

func (b *CLIBackend) ActiveBranch(ctx context.Context) (string, error) {
	out, err := b.run(ctx, "symbolic-ref", "--short", "-q", "HEAD")
	if err != nil {
		return "", fmt.Errorf("HEAD is detached: %w", err)
	}
	return strings.TrimSpace(out), nil
}

func (b *CLIBackend) IsTracked(ctx context.Context, path string) (bool, error) {
	_, err := b.run(ctx, "ls-files", "--error-unmatch", "--", path)
	return err == nil, nil
}

func (b *CLIBackend) IsDirty(ctx context.Context) (bool, error) {
	out, err := b.run(ctx, "status", "--porcelain")
	if err != nil {
		return false, err
	}
	return strings.TrimSpace(out) != "", nil
}

func (b *CLIBackend) UntrackedFiles(ctx context.Context) ([]string, error) {
	out, err := b.run(ctx, "ls-files", "--others", "--exclude-standard")
	if err != nil {
		return nil, err
	}
	return splitLines(out), nil
}

func (b *CLIBackend) TrackedFiles(ctx context.Context, rev string) ([]string, error) {
	out, err := b.run(ctx, "ls-tree", "-r", "--name-only", rev)
	if err != nil {
		return nil, err
	}
	return splitLines(out), nil
}

func splitLines(out string) []string {
	var lines []string
	for _, line := range strings.Split(strings.TrimRight(out, "\n"), "\n") {
		if line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

func (b *CLIBackend) Diff(ctx context.Context, revA, revB string) (string, error) {
	return b.run(ctx, "diff", revA, revB)
}

// Describe returns the first ref under base pointing exactly at rev,
// filtered by the optional match/exclude glob patterns.
func (b *CLIBackend) Describe(ctx context.Context, rev, base, match, exclude string) (string, error) {
	if base == "" {
		base = "refs/tags"
	}
	args := []string{"for-each-ref", "--points-at", rev, "--format=%(refname)", base}
	out, err := b.run(ctx, args...)
	if err != nil {
		return "", err
	}
	for _, name := range splitLines(out) {
		if matchRef(name, match, exclude) {
			return name, nil
		}
	}
	return "", nil
}

func matchRef(name, match, exclude string) bool {
	if match != "" {
		if ok, _ := path.Match(match, name); !ok {
			return false
		}
	}
	if exclude != "" {
		if ok, _ := path.Match(exclude, name); ok {
			return false
		}
	}
	return true
}
