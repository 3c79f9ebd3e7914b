package main

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/spf13/cobra"

	"braid/internal/exp"
)

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Inspect and edit the experiment ledger",
}

var queueLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List staged experiments",
	RunE:  runQueueLs,
}

var queueDropCmd = &cobra.Command{
	Use:   "drop [index...]",
	Short: "Drop staged experiments by index (all of them without arguments)",
	RunE:  runQueueDrop,
}

func init() {
	queueCmd.AddCommand(queueLsCmd)
	queueCmd.AddCommand(queueDropCmd)
}

func runQueueLs(cmd *cobra.Command, args []string) error {
	ctx, cancel := cmdContext()
	defer cancel()

	exps, err := openExperiments(ctx)
	if err != nil {
		return err
	}
	defer exps.Git().Close()

	entries, err := exps.Ledger().List(ctx)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Println("No experiments staged")
		return nil
	}
	ordered := make([]exp.StashEntry, 0, len(entries))
	for _, entry := range entries {
		ordered = append(ordered, entry)
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Index < ordered[j].Index })
	for _, entry := range ordered {
		name := entry.Name
		if name == "" {
			name = "-"
		}
		fmt.Printf("%3d  %.7s  (baseline %.7s)  %s\n", entry.Index, entry.Rev, entry.BaselineRev, name)
	}
	return nil
}

func runQueueDrop(cmd *cobra.Command, args []string) error {
	ctx, cancel := cmdContext()
	defer cancel()

	exps, err := openExperiments(ctx)
	if err != nil {
		return err
	}
	defer exps.Git().Close()

	var indices []int
	if len(args) == 0 {
		entries, err := exps.Ledger().List(ctx)
		if err != nil {
			return err
		}
		for _, entry := range entries {
			indices = append(indices, entry.Index)
		}
	} else {
		for _, arg := range args {
			idx, err := strconv.Atoi(arg)
			if err != nil {
				return fmt.Errorf("invalid index %q", arg)
			}
			indices = append(indices, idx)
		}
	}
	if len(indices) == 0 {
		fmt.Println("No experiments staged")
		return nil
	}
	if err := exps.Ledger().DropSet(ctx, indices); err != nil {
		return err
	}
	fmt.Printf("Dropped %d staged experiment(s)\n", len(indices))
	return nil
}
