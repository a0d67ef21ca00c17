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

package evaluate

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"text/template"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/justachillguy/bigbuild/internal/apperrors"
	"github.com/justachillguy/bigbuild/internal/buildfile"
	"github.com/justachillguy/bigbuild/internal/config"
	"github.com/justachillguy/bigbuild/internal/deps/scalibr"
	"github.com/justachillguy/bigbuild/internal/model"
	"github.com/justachillguy/bigbuild/internal/patch"
	"github.com/justachillguy/bigbuild/internal/resultio"
	"github.com/justachillguy/bigbuild/internal/sandbox"
)

// Config controls one Evaluator.
type Config struct {
	// ResultDir is the root <result_dir>; the evaluator descends into
	// <ResultDir>/<language>/<instance_id> per instance.
	ResultDir string
	// Resume, when true, skips instances whose workspace already has a
	// result.json matching the instance.
	Resume bool
	// CacheLevel governs what Release keeps after the instance finishes.
	CacheLevel model.CacheLevel
	// TextEval enables the textual metrics stage.
	TextEval bool
	// ExecEval enables the sandboxed CI stage.
	ExecEval bool
	// PatchExec and RemoveFake enable the optional patch-exec /
	// remove-fake evaluation modes, both off by default.
	PatchExec  bool
	RemoveFake bool
	// Sandbox carries the container runtime parameters for the CI runner.
	Sandbox config.SandboxConfig
	// Probe is the shared registry-probe client; nil selects the
	// package default.
	Probe *buildfile.RegistryProbe
	// Scalibr, if non-nil, runs the best-effort sanity cross-check after
	// parsing the model tree.
	Scalibr *scalibr.Extractor
}

// Evaluator drives one RepoInstance's evaluation end to end.
type Evaluator struct {
	cfg    Config
	runner *sandbox.Runner
}

// New constructs an Evaluator. runner may be nil when cfg.ExecEval is false.
func New(cfg Config, runner *sandbox.Runner) *Evaluator {
	return &Evaluator{cfg: cfg, runner: runner}
}

// Evaluate runs the full pipeline for one instance, in strict order: resume
// check, oracle stage/parse, model stage/parse, textual metrics, optional CI
// execution, result write, and workspace release.
func (e *Evaluator) Evaluate(
	ctx context.Context,
	inst model.RepoInstance,
	projectRoot string,
	candidatePatch string,
	log zerolog.Logger,
) (*model.EvaluationResult, error) {
	langDir := filepath.Join(e.cfg.ResultDir, string(inst.Language))
	ws, err := Open(langDir, inst.InstanceID)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := ws.Release(e.cfg.CacheLevel); err != nil {
			log.Warn().Err(err).Msg("failed to release workspace")
		}
	}()

	if e.cfg.Resume {
		if cached, err := resultio.ReadResult(ws.ResultPath()); err != nil {
			log.Warn().Err(err).Msg("failed to read cached result, recomputing")
		} else if cached != nil && cached.InstanceID == inst.InstanceID {
			log.Info().Msg("resuming from cached result")
			return cached, nil
		}
	}

	probe := e.cfg.Probe
	if probe == nil {
		probe = buildfile.DefaultRegistryProbe()
	}

	if strings.TrimSpace(inst.Patch) == "" {
		log.Error().Err(patch.ErrEmptyDiff).Msg("oracle patch is empty")
		return nil, fmt.Errorf("evaluate: oracle patch: %w", patch.ErrEmptyDiff)
	}

	if err := ws.StageOracle(projectRoot); err != nil {
		log.Error().Err(err).Msg("oracle stage failed")
		return nil, fmt.Errorf("evaluate: stage oracle: %w", err)
	}
	if err := applyAndCommit(ctx, ws.OracleDir, inst.Patch); err != nil {
		log.Error().Err(err).Msg("oracle patch apply failed")
		return nil, fmt.Errorf("evaluate: apply oracle patch: %w", err)
	}

	oracleBF, err := buildfile.New(inst.Language, ws.OracleDir, inst.BuildFiles, probe)
	if err != nil {
		return nil, fmt.Errorf("evaluate: construct oracle parser: %w", err)
	}
	oracleDeps, err := oracleBF.ParseDependencies()
	if err != nil {
		log.Error().Err(err).Str("instance_id", inst.InstanceID).Msg("oracle parse failed")
		return nil, fmt.Errorf("evaluate: parse oracle dependencies: %w", err)
	}
	if err := assertKeys(oracleDeps, inst.BuildFiles); err != nil {
		return nil, fmt.Errorf("evaluate: oracle parse: %w", err)
	}

	var modelBF buildfile.BuildFile
	modelDeps := emptyDeps(inst.BuildFiles)
	modelStaged := true
	if err := ws.StageModel(projectRoot); err != nil {
		log.Warn().Err(err).Msg("model stage failed, treating candidate as empty")
		modelStaged = false
	} else if err := applyAndCommit(ctx, ws.ModelDir, candidatePatch); err != nil {
		log.Warn().Err(err).Msg("model patch apply failed, treating candidate as empty")
		modelStaged = false
	} else if bf, err := buildfile.New(inst.Language, ws.ModelDir, inst.BuildFiles, probe); err != nil {
		log.Warn().Err(err).Msg("model parser construction failed")
		modelStaged = false
	} else if parsed, err := bf.ParseDependencies(); err != nil {
		log.Warn().Err(err).Str("instance_id", inst.InstanceID).Msg("model parse failed")
		modelStaged = false
	} else {
		modelBF = bf
		modelDeps = parsed
	}

	result := &model.EvaluationResult{
		InstanceID: inst.InstanceID,
		Detail: &model.Detail{
			Oracle:    namesOf(oracleDeps),
			Predicted: namesOf(modelDeps),
		},
	}

	if e.cfg.Scalibr != nil {
		e.logScalibrSanity(ctx, ws.ModelDir, modelDeps, log)
	}

	if e.cfg.TextEval {
		result.Text = e.computeTextMetrics(inst.BuildFiles, modelDeps, oracleDeps, modelBF, ws.ModelDir, log)
	}

	if e.cfg.ExecEval {
		outcome := e.execResult(ctx, inst, ws.ModelDir, ws, modelStaged, log)
		result.Exec = &outcome
	}

	if e.cfg.PatchExec {
		s := e.execOutcomeString(ctx, inst, ws.OracleDir, ws, log)
		result.PatchExec = &s
	}

	if e.cfg.RemoveFake && modelStaged && modelBF != nil && result.Text != nil && result.Text.FakeLibs > 0 {
		s := e.removeFakeAndRun(ctx, inst, ws, modelBF, modelDeps, log)
		result.RemoveFake = &s
	}

	if err := resultio.WriteResult(ws.ResultPath(), result); err != nil {
		return nil, fmt.Errorf("evaluate: write result: %w", err)
	}
	return result, nil
}

func applyAndCommit(ctx context.Context, root, diff string) error {
	if err := patch.Apply(ctx, root, diff); err != nil {
		return err
	}
	if _, err := patch.CommitAll(root, "fix build", "bigbuild", "bigbuild@local"); err != nil {
		return err
	}
	return nil
}

func emptyDeps(buildFiles []string) map[string][]model.Dependency {
	out := make(map[string][]model.Dependency, len(buildFiles))
	for _, f := range buildFiles {
		out[f] = nil
	}
	return out
}

func namesOf(deps map[string][]model.Dependency) map[string][]string {
	out := make(map[string][]string, len(deps))
	for file, ds := range deps {
		names := make([]string, 0, len(ds))
		for _, d := range ds {
			names = append(names, d.Name())
		}
		sort.Strings(names)
		out[file] = names
	}
	return out
}

func assertKeys(parsed map[string][]model.Dependency, buildFiles []string) error {
	if len(parsed) != len(buildFiles) {
		return fmt.Errorf("parsed %d files, expected %d", len(parsed), len(buildFiles))
	}
	for _, f := range buildFiles {
		if _, ok := parsed[f]; !ok {
			return fmt.Errorf("missing parsed entry for build file %q", f)
		}
	}
	return nil
}

func (e *Evaluator) computeTextMetrics(
	buildFiles []string,
	modelDeps, oracleDeps map[string][]model.Dependency,
	modelBF buildfile.BuildFile,
	modelRoot string,
	log zerolog.Logger,
) *model.TextMetrics {
	var exact, nameOnly model.Counts
	fakeLibs := 0
	for _, file := range buildFiles {
		exact.Add(model.ExactCounts(modelDeps[file], oracleDeps[file]))
		nameOnly.Add(model.NameOnlyCounts(modelDeps[file], oracleDeps[file]))

		if modelBF == nil {
			continue
		}
		for _, dep := range modelDeps[file] {
			isFake, err := modelBF.IsFakeLib(dep, buildfile.FakeLibContext{ProjectRoot: modelRoot, BuildFile: file})
			if err != nil {
				log.Debug().Err(err).Str("dependency", dep.Name()).Msg("fake-lib probe inconclusive, counted as not fake")
				continue
			}
			if isFake {
				fakeLibs++
			}
		}
	}
	return &model.TextMetrics{Exact: exact, NameOnly: nameOnly, FakeLibs: fakeLibs}
}

func (e *Evaluator) logScalibrSanity(ctx context.Context, root string, modelDeps map[string][]model.Dependency, log zerolog.Logger) {
	count, err := e.cfg.Scalibr.ScanFilesystem(ctx, os.DirFS(root))
	if err != nil {
		log.Debug().Err(err).Msg("scalibr sanity scan failed, skipping")
		return
	}
	parserCount := 0
	for _, ds := range modelDeps {
		parserCount += len(ds)
	}
	if count.Count > 0 && (parserCount == 0 || count.Count > parserCount*3) {
		log.Warn().Int("scalibr_count", count.Count).Int("parser_count", parserCount).
			Msg("scalibr found substantially more packages than the build-file parser; possible parser regression")
	}
}

func (e *Evaluator) renderImage(inst model.RepoInstance) (string, error) {
	tmpl, err := template.New("image").Parse(e.cfg.Sandbox.ImageTemplate)
	if err != nil {
		return "", fmt.Errorf("evaluate: parse image template: %w", err)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, inst.EnvSpecs); err != nil {
		return "", fmt.Errorf("evaluate: render image template: %w", err)
	}
	return buf.String(), nil
}

func (e *Evaluator) runCI(ctx context.Context, inst model.RepoInstance, workDir string, ws *Workspace, log zerolog.Logger) (*sandbox.Result, error) {
	image, err := e.renderImage(inst)
	if err != nil {
		return nil, &apperrors.SandboxError{Cause: err}
	}
	res, err := e.runner.Run(ctx, sandbox.Config{
		Image:            image,
		WorkDir:          workDir,
		ContainerWorkDir: e.cfg.Sandbox.ContainerWorkDir,
		Command:          inst.ActCommand,
		TimeoutSeconds:   e.cfg.Sandbox.TimeoutSeconds,
		Privileged:       e.cfg.Sandbox.Privileged,
		Runtime:          e.cfg.Sandbox.Runtime,
	})
	if err != nil {
		return nil, err
	}
	if writeErr := os.WriteFile(ws.ExecOutputPath(), []byte(res.Stdout), 0o644); writeErr != nil {
		log.Warn().Err(writeErr).Msg("failed to write exec-output.log")
	}
	return res, nil
}

func (e *Evaluator) execResult(ctx context.Context, inst model.RepoInstance, workDir string, ws *Workspace, staged bool, log zerolog.Logger) model.ExecResult {
	if !staged {
		return model.ExecFail
	}
	res, err := e.runCI(ctx, inst, workDir, ws, log)
	if err != nil {
		log.Error().Err(err).Msg("sandbox run failed")
		return model.ExecFail
	}
	log.Info().Str("outcome", res.Outcome.String()).Int("exit_code", res.ExitCode).Msg("CI job finished")
	if res.Outcome == apperrors.CIPass {
		return model.ExecPass
	}
	return model.ExecFail
}

func (e *Evaluator) execOutcomeString(ctx context.Context, inst model.RepoInstance, workDir string, ws *Workspace, log zerolog.Logger) string {
	return string(e.execResult(ctx, inst, workDir, ws, true, log))
}

// removeFakeAndRun strips predicted dependencies IsFakeLib flags as fake,
// re-dumps the model's build files into a sibling "model-nofake" tree, and
// reruns the CI job there, mirroring dibench's remove_fake mode.
func (e *Evaluator) removeFakeAndRun(
	ctx context.Context,
	inst model.RepoInstance,
	ws *Workspace,
	modelBF buildfile.BuildFile,
	modelDeps map[string][]model.Dependency,
	log zerolog.Logger,
) string {
	filtered := make(map[string][]model.Dependency, len(modelDeps))
	for file, ds := range modelDeps {
		kept := make([]model.Dependency, 0, len(ds))
		for _, d := range ds {
			isFake, err := modelBF.IsFakeLib(d, buildfile.FakeLibContext{ProjectRoot: ws.ModelDir, BuildFile: file})
			if err == nil && isFake {
				continue
			}
			kept = append(kept, d)
		}
		filtered[file] = kept
	}

	dumped, err := modelBF.DumpDependencies(filtered)
	if err != nil {
		log.Warn().Err(err).Msg("remove-fake: dump failed")
		return string(model.ExecFail)
	}

	nofakeDir := ws.ModelDir + "-nofake-" + uuid.NewString()[:8]
	if err := copyTree(ws.ModelDir, nofakeDir); err != nil {
		log.Warn().Err(err).Msg("remove-fake: stage failed")
		return string(model.ExecFail)
	}
	defer os.RemoveAll(nofakeDir)

	for file, content := range dumped {
		if err := os.WriteFile(filepath.Join(nofakeDir, file), []byte(content), 0o644); err != nil {
			log.Warn().Err(err).Str("file", file).Msg("remove-fake: write failed")
			return string(model.ExecFail)
		}
	}

	return e.execOutcomeString(ctx, inst, nofakeDir, ws, log)
}
