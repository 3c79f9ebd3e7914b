package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// baselineCmd resolves the baseline of an experiment or staged entry
var baselineCmd = &cobra.Command{
	Use:   "baseline <rev>",
	Short: "Print the baseline commit an experiment derives from",
	Args:  cobra.ExactArgs(1),
	RunE:  runBaseline,
}

// nameCmd resolves an experiment rev back to its ref name
var nameCmd = &cobra.Command{
	Use:   "name <rev>",
	Short: "Print the experiment ref name pointing exactly at a revision",
	Args:  cobra.ExactArgs(1),
	RunE:  runName,
}

func runBaseline(cmd *cobra.Command, args []string) error {
	ctx, cancel := cmdContext()
	defer cancel()

	exps, err := openExperiments(ctx)
	if err != nil {
		return err
	}
	defer exps.Git().Close()

	baseline, err := exps.GetBaseline(ctx, args[0])
	if err != nil {
		return err
	}
	if baseline == "" {
		return fmt.Errorf("no baseline recorded for %q", args[0])
	}
	fmt.Println(baseline)
	return nil
}

func runName(cmd *cobra.Command, args []string) error {
	ctx, cancel := cmdContext()
	defer cancel()

	exps, err := openExperiments(ctx)
	if err != nil {
		return err
	}
	defer exps.Git().Close()

	name, err := exps.GetExactName(ctx, args[0])
	if err != nil {
		return err
	}
	if name == "" {
		return fmt.Errorf("no experiment ref points at %q", args[0])
	}
	fmt.Println(name)
	return nil
}
