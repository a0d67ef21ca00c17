// Copyright 2023 Stacklok, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package app

import (
	"fmt"
	"time"

	json "github.com/goccy/go-json"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/justachillguy/bigbuild/internal/buildfile"
	"github.com/justachillguy/bigbuild/internal/config"
	"github.com/justachillguy/bigbuild/internal/deps/scalibr"
	"github.com/justachillguy/bigbuild/internal/evaluate"
	"github.com/justachillguy/bigbuild/internal/logger"
	"github.com/justachillguy/bigbuild/internal/model"
	"github.com/justachillguy/bigbuild/internal/sandbox"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Evaluate a single instance, without an orchestrator",
	Long: `run drives the evaluator directly over one instance_id pulled out of a
dataset file, useful for debugging a single repo instance's patch, parser,
or sandboxed CI outcome without running a whole batch.`,
	RunE: runRun,
}

func init() {
	flags := runCmd.Flags()
	flags.String("dataset", "", "path to the JSON-lines dataset file (required)")
	flags.String("repos-dir", "", "directory of <instance_id> checkouts (required)")
	flags.String("instance-id", "", "instance_id to evaluate (required)")
	flags.Bool("text", true, "compute textual dependency metrics")
	flags.Bool("exec", false, "run the sandboxed CI job")
	for _, name := range []string{"dataset", "repos-dir", "instance-id"} {
		if err := runCmd.MarkFlagRequired(name); err != nil {
			panic(err)
		}
	}

	RootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, _ []string) error {
	cfg, err := config.ReadConfigFromViper(viper.GetViper())
	if err != nil {
		return fmt.Errorf("app: reading config: %w", err)
	}

	log := logger.FromFlags(cfg.Logging)
	ctx := log.WithContext(cmd.Context())

	datasetPath, _ := cmd.Flags().GetString("dataset")
	reposDir, _ := cmd.Flags().GetString("repos-dir")
	instanceID, _ := cmd.Flags().GetString("instance-id")
	textEval, _ := cmd.Flags().GetBool("text")
	execEval, _ := cmd.Flags().GetBool("exec")

	instances, err := model.LoadDataset(datasetPath)
	if err != nil {
		return fmt.Errorf("app: loading dataset: %w", err)
	}
	var inst *model.RepoInstance
	for i := range instances {
		if instances[i].InstanceID == instanceID {
			inst = &instances[i]
			break
		}
	}
	if inst == nil {
		return fmt.Errorf("app: instance %q not found in %s", instanceID, datasetPath)
	}

	roots := dirProjectRootSource{dir: reposDir}
	projectRoot, err := roots.ProjectRoot(*inst)
	if err != nil {
		return err
	}
	candidate, err := (filePatchSource{dir: cfg.Orchestrator.PredictionsDir}).CandidatePatch(*inst)
	if err != nil {
		return err
	}

	probe := buildfile.NewRegistryProbe(time.Duration(cfg.Registry.TimeoutSeconds) * time.Second)

	var runner *sandbox.Runner
	if execEval {
		runner = sandbox.NewRunner(log)
	}

	evaluator := evaluate.New(evaluate.Config{
		ResultDir:  cfg.Orchestrator.ResultDir,
		Resume:     false,
		CacheLevel: model.CacheLevel(cfg.Orchestrator.CacheLevel),
		TextEval:   textEval,
		ExecEval:   execEval,
		PatchExec:  cfg.Orchestrator.PatchExec,
		RemoveFake: cfg.Orchestrator.RemoveFake,
		Sandbox:    cfg.Sandbox,
		Probe:      probe,
		Scalibr:    scalibr.NewExtractor(),
	}, runner)

	result, err := evaluator.Evaluate(ctx, *inst, projectRoot, candidate, log)
	if err != nil {
		return fmt.Errorf("app: evaluating %s: %w", instanceID, err)
	}

	out, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("app: encoding result: %w", err)
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), string(out))
	return err
}
