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
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/justachillguy/bigbuild/internal/buildfile"
	"github.com/justachillguy/bigbuild/internal/config"
	"github.com/justachillguy/bigbuild/internal/deps/scalibr"
	"github.com/justachillguy/bigbuild/internal/evaluate"
	"github.com/justachillguy/bigbuild/internal/logger"
	"github.com/justachillguy/bigbuild/internal/model"
	"github.com/justachillguy/bigbuild/internal/orchestrate"
	"github.com/justachillguy/bigbuild/internal/sandbox"
)

var evaluateCmd = &cobra.Command{
	Use:   "evaluate",
	Short: "Evaluate every instance in a dataset",
	Long: `evaluate loads a JSON-lines dataset of repo instances, stages each
instance's oracle and candidate patches into its own workspace, runs the
configured checks, and writes one result.json per instance plus an
aggregate results.jsonl.`,
	RunE: runEvaluate,
}

func init() {
	flags := evaluateCmd.Flags()
	flags.String("dataset", "", "path to the JSON-lines dataset file (required)")
	flags.String("repos-dir", "", "directory of <instance_id> checkouts the dataset's instances refer to (required)")
	flags.String("id-range", "", "optional start:end slice of the dataset to evaluate, e.g. 0:50")
	flags.Bool("text", true, "compute textual dependency metrics")
	flags.Bool("exec", false, "run the sandboxed CI job for each instance")
	if err := evaluateCmd.MarkFlagRequired("dataset"); err != nil {
		panic(err)
	}
	if err := evaluateCmd.MarkFlagRequired("repos-dir"); err != nil {
		panic(err)
	}

	v := viper.GetViper()
	must(config.BindConfigFlag(v, flags, "orchestrator.concurrency", "concurrency", 4,
		"number of instances to evaluate concurrently", flags.Int))
	must(config.BindConfigFlag(v, flags, "orchestrator.result_dir", "result-dir", "./results",
		"root directory results are written under", flags.String))
	must(config.BindConfigFlag(v, flags, "orchestrator.resume", "resume", true,
		"skip instances that already have a result.json", flags.Bool))
	must(config.BindConfigFlag(v, flags, "orchestrator.cache_level", "cache-level", "log",
		"how much of a finished workspace to keep: all, log, or none", flags.String))
	must(config.BindConfigFlag(v, flags, "orchestrator.predictions_dir", "predictions-dir", "",
		"directory of <language>/<instance_id>/patch.diff candidate patches", flags.String))
	must(config.BindConfigFlag(v, flags, "orchestrator.patch_exec", "patch-exec", false,
		"also run the CI job with only the oracle patch applied", flags.Bool))
	must(config.BindConfigFlag(v, flags, "orchestrator.remove_fake", "remove-fake", false,
		"also rerun the CI job with fake dependencies stripped from the candidate", flags.Bool))

	RootCmd.AddCommand(evaluateCmd)
}

func must(err error) {
	if err != nil {
		panic(err)
	}
}

func runEvaluate(cmd *cobra.Command, _ []string) error {
	cfg, err := config.ReadConfigFromViper(viper.GetViper())
	if err != nil {
		return fmt.Errorf("app: reading config: %w", err)
	}

	log := logger.FromFlags(cfg.Logging)
	ctx := log.WithContext(cmd.Context())

	datasetPath, _ := cmd.Flags().GetString("dataset")
	reposDir, _ := cmd.Flags().GetString("repos-dir")
	idRange, _ := cmd.Flags().GetString("id-range")
	textEval, _ := cmd.Flags().GetBool("text")
	execEval, _ := cmd.Flags().GetBool("exec")

	instances, err := model.LoadDataset(datasetPath)
	if err != nil {
		return fmt.Errorf("app: loading dataset: %w", err)
	}
	start, end, err := parseIDRange(idRange, len(instances))
	if err != nil {
		return err
	}
	instances, err = model.SliceRange(instances, start, end)
	if err != nil {
		return fmt.Errorf("app: slicing dataset: %w", err)
	}

	probe := buildfile.NewRegistryProbe(time.Duration(cfg.Registry.TimeoutSeconds) * time.Second)

	var runner *sandbox.Runner
	if execEval {
		runner = sandbox.NewRunner(log)
	}

	cacheLevel := model.CacheLevel(cfg.Orchestrator.CacheLevel)

	evaluator := evaluate.New(evaluate.Config{
		ResultDir:  cfg.Orchestrator.ResultDir,
		Resume:     cfg.Orchestrator.Resume,
		CacheLevel: cacheLevel,
		TextEval:   textEval,
		ExecEval:   execEval,
		PatchExec:  cfg.Orchestrator.PatchExec,
		RemoveFake: cfg.Orchestrator.RemoveFake,
		Sandbox:    cfg.Sandbox,
		Probe:      probe,
		Scalibr:    scalibr.NewExtractor(),
	}, runner)

	orch := orchestrate.New(orchestrate.Config{
		ResultDir:   cfg.Orchestrator.ResultDir,
		Concurrency: cfg.Orchestrator.Concurrency,
		Resume:      cfg.Orchestrator.Resume,
		CacheLevel:  cacheLevel,
	}, evaluator, filePatchSource{dir: cfg.Orchestrator.PredictionsDir}, dirProjectRootSource{dir: reposDir}, log)

	log.Info().Int("instances", len(instances)).Msg("starting evaluation batch")
	if err := orch.Run(ctx, instances); err != nil {
		return fmt.Errorf("app: evaluation batch failed: %w", err)
	}
	return nil
}

// parseIDRange parses a "start:end" string into bounds, defaulting to the
// full dataset when s is empty (dibench/eval.py's id_range flag).
func parseIDRange(s string, total int) (int, int, error) {
	if s == "" {
		return 0, 0, nil
	}
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("app: --id-range must be start:end, got %q", s)
	}
	start, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, fmt.Errorf("app: invalid --id-range start: %w", err)
	}
	end := total
	if parts[1] != "" {
		end, err = strconv.Atoi(parts[1])
		if err != nil {
			return 0, 0, fmt.Errorf("app: invalid --id-range end: %w", err)
		}
	}
	return start, end, nil
}
