package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"braid/internal/exp"
	"braid/internal/sched"
)

var (
	runJobs  int
	runForce bool
)

// runCmd executes staged experiments
var runCmd = &cobra.Command{
	Use:   "run [rev...]",
	Short: "Run staged experiments",
	Long: `Runs staged experiments in isolated workspaces, up to --jobs at a
time. Without arguments the whole ledger runs; with revs only those entries
run (a rev outside the ledger runs ad hoc as its own baseline).

Interrupting with Ctrl-C forwards the signal to running workers; staged
entries that never started are left queued.`,
	RunE: runBatch,
}

// resumeCmd continues a checkpoint experiment
var resumeCmd = &cobra.Command{
	Use:   "resume [checkpoint-rev]",
	Short: "Stage and run the continuation of a checkpoint experiment",
	Long: `Stages a continuation of an interrupted checkpoint experiment and
runs it. Without arguments the most recent checkpoint resumes. Passing
parameter overrides detaches the continuation into a new unbranched run
instead of extending the checkpoint's branch.

Examples:
  braid resume
  braid resume 1a2b3c4 -S params.yaml:lr=0.01`,
	Args: cobra.MaximumNArgs(1),
	RunE: runResume,
}

func init() {
	runCmd.Flags().IntVarP(&runJobs, "jobs", "j", 0, "Max concurrent workers (default: configured parallelism)")
	runCmd.Flags().BoolVarP(&runForce, "force", "f", false, "Overwrite already-published experiment refs on collision")

	resumeCmd.Flags().StringArrayVarP(&stageParams, "set-param", "S", nil, "Parameter override as [file:]key=value (repeatable)")
	resumeCmd.Flags().IntVarP(&runJobs, "jobs", "j", 0, "Max concurrent workers")
}

func runBatch(cmd *cobra.Command, args []string) error {
	ctx, cancel := cmdContext()
	defer cancel()

	exps, err := openExperiments(ctx)
	if err != nil {
		return err
	}
	defer exps.Git().Close()

	s, err := sched.New(exps)
	if err != nil {
		return err
	}
	results, err := s.Reproduce(ctx, sched.ReproduceOptions{
		Revs:  args,
		Jobs:  runJobs,
		Force: runForce,
	})
	if err != nil {
		return err
	}
	printResults(results)
	return nil
}

func runResume(cmd *cobra.Command, args []string) error {
	ctx, cancel := cmdContext()
	defer cancel()

	exps, err := openExperiments(ctx)
	if err != nil {
		return err
	}
	defer exps.Git().Close()

	checkpoint := exp.LastCheckpoint
	if len(args) == 1 {
		checkpoint = args[0]
	}
	params, err := parseParams(stageParams)
	if err != nil {
		return err
	}
	stashRev, err := exps.New(ctx, exp.StageOptions{
		CheckpointResume: checkpoint,
		Params:           params,
	})
	if err != nil {
		return err
	}

	s, err := sched.New(exps)
	if err != nil {
		return err
	}
	results, err := s.Reproduce(ctx, sched.ReproduceOptions{
		Revs: []string{stashRev},
		Jobs: runJobs,
	})
	if err != nil {
		return err
	}
	printResults(results)
	return nil
}

func printResults(results map[string]string) {
	if len(results) == 0 {
		fmt.Println("No experiments completed")
		return
	}
	revs := make([]string, 0, len(results))
	for rev := range results {
		revs = append(revs, rev)
	}
	sort.Strings(revs)
	for _, rev := range revs {
		fmt.Printf("%.7s -> %.7s\n", rev, results[rev])
	}
}
