package exp

import (
	"regexp"
	"strings"
)

// Reserved ref namespace. Everything braid publishes or uses for worker
// handoff lives under refs/braid; ordinary branches and tags are never
// touched.
const (
	// Namespace roots published experiment refs.
	Namespace = "refs/braid"

	// StashRef backs the experiment ledger.
	StashRef = "refs/braid/stash"

	// ExecNamespace holds transient execution refs, excluded from queries.
	ExecNamespace = "refs/braid/exec"

	// Handoff refs: written immediately before a worker is constructed,
	// removed after the whole batch is constructed.
	ExecHead     = "refs/braid/exec/HEAD"
	ExecMerge    = "refs/braid/exec/MERGE"
	ExecBaseline = "refs/braid/exec/BASELINE"

	// ExecCheckpoint points at the most recently published checkpoint tip;
	// resume ":last" starts here.
	ExecCheckpoint = "refs/braid/exec/CHECKPOINT"
)

// refInfoRe matches the experiment ref basename grammar:
// <baseline-7hex>-<exp-full-hex>[-checkpoint]
var refInfoRe = regexp.MustCompile(
	`^(?P<baseline>[0-9a-f]{7})-(?P<exp>[0-9a-f]+)(?P<checkpoint>-checkpoint)?$`,
)

// RefInfo is the decoded form of a published experiment ref name.
type RefInfo struct {
	BaselineSHA string // 7-hex baseline prefix
	ExpSHA      string // full experiment content hash
	Checkpoint  bool
}

// Ref renders the full ref name under the experiment namespace. It is the
// exact inverse of ParseRef.
func (i RefInfo) Ref() string {
	name := i.BaselineSHA + "-" + i.ExpSHA
	if i.Checkpoint {
		name += "-checkpoint"
	}
	return Namespace + "/" + name
}

// Name returns the human-facing short form of the ref.
func (i RefInfo) Name() string {
	return strings.TrimPrefix(i.Ref(), Namespace+"/")
}

// ParseRef decodes a full ref name. Parsing is total over the grammar:
// names outside the namespace or not matching it return ok=false and are
// skipped by callers, never treated as errors.
func ParseRef(ref string) (RefInfo, bool) {
	base, found := strings.CutPrefix(ref, Namespace+"/")
	if !found || strings.Contains(base, "/") {
		return RefInfo{}, false
	}
	m := refInfoRe.FindStringSubmatch(base)
	if m == nil {
		return RefInfo{}, false
	}
	return RefInfo{
		BaselineSHA: m[1],
		ExpSHA:      m[2],
		Checkpoint:  m[3] != "",
	}, true
}
