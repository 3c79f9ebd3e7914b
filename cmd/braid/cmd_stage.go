package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"braid/internal/exp"
)

var (
	stageName     string
	stageBranch   string
	stageRev      string
	stageBaseline string
	stageParams   []string
	stageArgs     []string
	stageKwargs   []string
)

// stageCmd captures the workspace as a ledger entry without running it
var stageCmd = &cobra.Command{
	Use:   "stage",
	Short: "Stage the workspace (or a revision) as a queued experiment",
	Long: `Captures the current workspace state, plus any parameter overrides,
as an entry in the experiment ledger. The workspace is restored exactly as
it was; nothing runs until 'braid run'.

Examples:
  braid stage -n tuned -S params.yaml:lr=0.1
  braid stage --rev HEAD~2 -S train.epochs=20`,
	RunE: runStage,
}

func init() {
	stageCmd.Flags().StringVarP(&stageName, "name", "n", "", "Experiment name")
	stageCmd.Flags().StringVar(&stageBranch, "branch", "", "Stage onto an existing experiment branch")
	stageCmd.Flags().StringVar(&stageRev, "rev", "", "Stage a specific revision instead of the workspace")
	stageCmd.Flags().StringVar(&stageBaseline, "baseline", "", "Override the recorded baseline revision")
	stageCmd.Flags().StringArrayVarP(&stageParams, "set-param", "S", nil, "Parameter override as [file:]key=value (repeatable)")
	stageCmd.Flags().StringArrayVar(&stageArgs, "arg", nil, "Extra argument passed to the reproduction command (repeatable)")
	stageCmd.Flags().StringArrayVar(&stageKwargs, "kwarg", nil, "Keyword argument passed to the reproduction command as key=value (repeatable)")
}

func runStage(cmd *cobra.Command, args []string) error {
	ctx, cancel := cmdContext()
	defer cancel()

	exps, err := openExperiments(ctx)
	if err != nil {
		return err
	}
	defer exps.Git().Close()

	params, err := parseParams(stageParams)
	if err != nil {
		return err
	}
	kwargs, err := parseKwargs(stageKwargs)
	if err != nil {
		return err
	}
	stashRev, err := exps.New(ctx, exp.StageOptions{
		Params:      params,
		DetachRev:   stageRev,
		BaselineRev: stageBaseline,
		Branch:      stageBranch,
		Name:        stageName,
		ExtraArgs:   stageArgs,
		Kwargs:      kwargs,
	})
	if err != nil {
		return err
	}
	fmt.Printf("Staged experiment %.7s\n", stashRev)
	return nil
}

const defaultParamsFile = "params.yaml"

// parseKwargs turns repeated key=value flags into the keyword-argument map
// packed for the worker.
func parseKwargs(specs []string) (map[string]string, error) {
	if len(specs) == 0 {
		return nil, nil
	}
	kwargs := make(map[string]string, len(specs))
	for _, spec := range specs {
		key, value, ok := strings.Cut(spec, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid kwarg %q, want key=value", spec)
		}
		kwargs[key] = value
	}
	return kwargs, nil
}

// parseParams turns repeated [file:]key=value flags into per-file override
// maps. Dotted keys nest, and values go through YAML so scalars keep their
// types.
func parseParams(specs []string) (map[string]map[string]interface{}, error) {
	if len(specs) == 0 {
		return nil, nil
	}
	params := make(map[string]map[string]interface{})
	for _, spec := range specs {
		file := defaultParamsFile
		rest := spec
		if i := strings.Index(spec, ":"); i >= 0 && strings.Contains(spec[i:], "=") {
			file, rest = spec[:i], spec[i+1:]
		}
		key, raw, ok := strings.Cut(rest, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid parameter override %q: want [file:]key=value", spec)
		}
		var value interface{}
		if err := yaml.Unmarshal([]byte(raw), &value); err != nil {
			value = raw
		}
		if params[file] == nil {
			params[file] = make(map[string]interface{})
		}
		setNested(params[file], strings.Split(key, "."), value)
	}
	return params, nil
}

func setNested(m map[string]interface{}, path []string, value interface{}) {
	if len(path) == 1 {
		m[path[0]] = value
		return
	}
	child, ok := m[path[0]].(map[string]interface{})
	if !ok {
		child = make(map[string]interface{})
		m[path[0]] = child
	}
	setNested(child, path[1:], value)
}
