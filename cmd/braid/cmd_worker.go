package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"braid/internal/config"
	"braid/internal/worker"
)

var workerRequest string

// workerCmd is the in-process entrypoint the scheduler spawns; it is not
// part of the user-facing surface.
var workerCmd = &cobra.Command{
	Use:    "worker",
	Short:  "Execute one staged experiment (spawned internally)",
	Hidden: true,
	RunE:   runWorker,
}

// initCmd prepares a repository for experiment staging
var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write the default configuration into the workspace",
	RunE:  runInit,
}

func init() {
	workerCmd.Flags().StringVar(&workerRequest, "request", "", "Path to the spawn request file")
	workerCmd.MarkFlagRequired("request")
}

func runWorker(cmd *cobra.Command, args []string) error {
	req, err := worker.ReadRequest(workerRequest)
	if err != nil {
		return err
	}
	// Exit codes carry the outcome; the coordinator maps them back.
	os.Exit(worker.Run(context.Background(), req))
	return nil
}

func runInit(cmd *cobra.Command, args []string) error {
	cfg := config.Default()
	if err := cfg.Save(workspace); err != nil {
		return err
	}
	fmt.Printf("Initialized braid configuration in %s/.braid\n", workspace)
	return nil
}
