package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"braid/internal/exp"
)

var gcCmd = &cobra.Command{
	Use:   "gc",
	Short: "Remove leftover execution workspaces and stale handoff refs",
	RunE:  runGC,
}

func runGC(cmd *cobra.Command, args []string) error {
	ctx, cancel := cmdContext()
	defer cancel()

	exps, err := openExperiments(ctx)
	if err != nil {
		return err
	}
	defer exps.Git().Close()

	return exps.WithLock(ctx, func(ctx context.Context) error {
		removed := 0
		tmpDir := filepath.Join(workspace, ".braid", "tmp")
		entries, err := os.ReadDir(tmpDir)
		if err != nil && !os.IsNotExist(err) {
			return err
		}
		for _, entry := range entries {
			if !entry.IsDir() || !strings.HasPrefix(entry.Name(), "exec-") {
				continue
			}
			if err := os.RemoveAll(filepath.Join(tmpDir, entry.Name())); err != nil {
				return err
			}
			removed++
		}

		stale := 0
		for _, ref := range []string{exp.ExecHead, exp.ExecMerge, exp.ExecBaseline} {
			sha, err := exps.Git().GetRef(ctx, ref, false)
			if err != nil || sha == "" {
				continue
			}
			if err := exps.Git().RemoveRef(ctx, ref, sha); err != nil {
				return err
			}
			stale++
		}

		fmt.Printf("Removed %d execution workspace(s), %d stale handoff ref(s)\n", removed, stale)
		return nil
	})
}
