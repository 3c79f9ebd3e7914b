package exp

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// PackedArgsFile is the workspace-relative path of the packed-arguments side
// file. The blob is private to the staging/worker pair and not a stable
// public format.
const PackedArgsFile = ".braid/tmp/repro-args.json"

const packedArgsVersion = 1

// PackedArgs carries extra reproduction arguments from staging into the
// worker, plus the retry counter bumped when a stale tracked copy is found.
type PackedArgs struct {
	Version int               `json:"version"`
	Args    []string          `json:"args,omitempty"`
	Kwargs  map[string]string `json:"kwargs,omitempty"`
	Extra   int               `json:"extra"`
}

// WritePackedArgs writes the side file at path, creating parent directories.
func WritePackedArgs(path string, a PackedArgs) error {
	a.Version = packedArgsVersion
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.Marshal(a)
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}

// ReadPackedArgs loads the side file. A corrupt blob yields zero-value args
// rather than an error: the format is private and a damaged file only costs
// the retry counter.
func ReadPackedArgs(path string) (PackedArgs, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return PackedArgs{}, fmt.Errorf("read packed args: %w", err)
	}
	var a PackedArgs
	if err := json.Unmarshal(data, &a); err != nil {
		return PackedArgs{}, nil
	}
	return a, nil
}
