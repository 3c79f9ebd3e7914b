package exp

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"braid/internal/gitx"
	"braid/internal/logging"
)

// stashMsgPrefix tags ledger entries so stash commits created by unrelated
// tooling are recognizable and skipped.
const stashMsgPrefix = "braid-exp"

// stashMsgRe is the ledger wire format:
// commit: braid-exp:<rev>:<baseline>:<name>[:<branch>]
// <name> may be empty and must not contain the ref grammar delimiters.
var stashMsgRe = regexp.MustCompile(
	`^commit: ` + stashMsgPrefix +
		`:(?P<rev>[0-9a-f]+):(?P<baseline>[0-9a-f]+)` +
		`:(?P<name>[^~^:\\?\[\]*]*)` +
		`(:(?P<branch>.+))?$`,
)

// StashEntry is one staged experiment in the ledger. Index is positional and
// only stable until the next drop.
type StashEntry struct {
	Index       int
	Rev         string
	BaselineRev string
	Branch      string
	Name        string
}

// Ledger is the ordered queue of staged experiment snapshots, backed by the
// stash ref in the repository itself. The Ledger exclusively owns entry
// lifetimes: entries vanish only via Drop.
type Ledger struct {
	git *gitx.Git
}

func NewLedger(g *gitx.Git) *Ledger {
	return &Ledger{git: g}
}

// FormatMsg renders the grammar payload for a staged experiment. The stash
// machinery prepends "commit: " when the entry is recorded, completing the
// wire format ParseMsg expects.
func FormatMsg(rev, baselineRev, name, branch string) string {
	if baselineRev == "" {
		baselineRev = rev
	}
	msg := fmt.Sprintf("%s:%s:%s:%s", stashMsgPrefix, rev, baselineRev, name)
	if branch != "" {
		msg += ":" + branch
	}
	return msg
}

// ParseMsg decodes a recorded stash message. ok is false for entries
// created by other tooling.
func ParseMsg(msg string) (rev, baselineRev, name, branch string, ok bool) {
	m := stashMsgRe.FindStringSubmatch(strings.TrimSpace(msg))
	if m == nil {
		return "", "", "", "", false
	}
	return m[1], m[2], m[3], m[5], true
}

// ValidateName rejects names and branch labels that would collide with the
// message grammar delimiters.
func ValidateName(name string) error {
	if strings.ContainsAny(name, "~^:\\?[]*") {
		return fmt.Errorf("invalid experiment name %q: cannot contain '~^:\\?[]*'", name)
	}
	return nil
}

// Push records the current staged snapshot as a ledger entry and returns its
// stash commit id.
func (l *Ledger) Push(ctx context.Context, msg string) (string, error) {
	sha, err := l.git.StashPush(ctx, StashRef, msg, false)
	if err != nil {
		return "", fmt.Errorf("push ledger entry: %w", err)
	}
	if sha == "" {
		return "", fmt.Errorf("push ledger entry: no changes to stage")
	}
	logging.Ledger("queued entry %.7s", sha)
	return sha, nil
}

// List scans the stash and returns entries keyed by stash commit id.
// Non-matching stash commits are silently skipped.
func (l *Ledger) List(ctx context.Context) (map[string]StashEntry, error) {
	commits, err := l.git.StashList(ctx, StashRef)
	if err != nil {
		return nil, fmt.Errorf("read ledger: %w", err)
	}
	entries := make(map[string]StashEntry, len(commits))
	for i, c := range commits {
		rev, baseline, name, branch, ok := ParseMsg(c.Message)
		if !ok {
			continue
		}
		entries[c.SHA] = StashEntry{
			Index:       i,
			Rev:         rev,
			BaselineRev: baseline,
			Branch:      branch,
			Name:        name,
		}
	}
	return entries, nil
}

// Drop removes the entry at index. Positional removal shifts the indices of
// later entries; callers removing several entries must go through DropSet.
func (l *Ledger) Drop(ctx context.Context, index int) error {
	if err := l.git.StashDrop(ctx, StashRef, index); err != nil {
		return fmt.Errorf("drop ledger entry %d: %w", index, err)
	}
	logging.Ledger("dropped entry at index %d", index)
	return nil
}

// DropSet removes the entries at the given original indices, in descending
// numeric order so earlier drops cannot shift later targets.
func (l *Ledger) DropSet(ctx context.Context, indices []int) error {
	sorted := append([]int(nil), indices...)
	sort.Sort(sort.Reverse(sort.IntSlice(sorted)))
	for _, idx := range sorted {
		if err := l.Drop(ctx, idx); err != nil {
			return err
		}
	}
	return nil
}
