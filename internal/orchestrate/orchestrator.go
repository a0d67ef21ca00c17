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

// Package orchestrate implements a bounded worker pool that drives one
// evaluation per dataset instance, with resume semantics, workspace/
// aggregate backup, and a single-writer aggregate output.
package orchestrate

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/justachillguy/bigbuild/internal/apperrors"
	"github.com/justachillguy/bigbuild/internal/evaluate"
	"github.com/justachillguy/bigbuild/internal/logger"
	"github.com/justachillguy/bigbuild/internal/model"
	"github.com/justachillguy/bigbuild/internal/resultio"
)

// PatchSource resolves the candidate ("model") patch text for an instance.
// The CLI's implementation reads
// <predictions_dir>/<language>/<instance_id>/patch.diff; tests supply a
// map-backed stub.
type PatchSource interface {
	CandidatePatch(inst model.RepoInstance) (string, error)
}

// ProjectRootSource resolves the on-disk checkout an instance's dataset
// record describes. How that checkout is obtained (cloning, cache warmup)
// is out of scope here; the orchestrator only needs a path.
type ProjectRootSource interface {
	ProjectRoot(inst model.RepoInstance) (string, error)
}

// Config controls one orchestrator run.
type Config struct {
	ResultDir   string
	Concurrency int
	Resume      bool
	CacheLevel  model.CacheLevel
}

// Orchestrator drives a batch of instances through an Evaluator.
type Orchestrator struct {
	cfg       Config
	evaluator *evaluate.Evaluator
	patches   PatchSource
	roots     ProjectRootSource
	log       zerolog.Logger
}

// New constructs an Orchestrator.
func New(cfg Config, evaluator *evaluate.Evaluator, patches PatchSource, roots ProjectRootSource, log zerolog.Logger) *Orchestrator {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 10
	}
	return &Orchestrator{cfg: cfg, evaluator: evaluator, patches: patches, roots: roots, log: log}
}

// Run evaluates every instance in instances, writing one result.json per
// instance (via the Evaluator) and one line per instance to
// <ResultDir>/results.jsonl, in completion order. It backs up a prior
// ResultDir and a prior aggregate file under a "-bak" suffix when
// cfg.Resume is false.
//
// Run's only non-nil error is an *apperrors.OrchestratorError (batch-fatal I/O failure);
// individual instance failures are recorded in their own result and never
// abort the batch.
func (o *Orchestrator) Run(ctx context.Context, instances []model.RepoInstance) error {
	if !o.cfg.Resume {
		if _, err := resultio.BackupPath(o.cfg.ResultDir); err != nil {
			return &apperrors.OrchestratorError{Cause: fmt.Errorf("orchestrate: backup result dir: %w", err)}
		}
	}
	if err := os.MkdirAll(o.cfg.ResultDir, 0o755); err != nil {
		return &apperrors.OrchestratorError{Cause: fmt.Errorf("orchestrate: create result dir: %w", err)}
	}

	aggregatePath := filepath.Join(o.cfg.ResultDir, "results.jsonl")
	if !o.cfg.Resume {
		if _, err := resultio.BackupPath(aggregatePath); err != nil {
			return &apperrors.OrchestratorError{Cause: fmt.Errorf("orchestrate: backup aggregate file: %w", err)}
		}
	}
	aggregate, err := resultio.OpenAggregate(aggregatePath)
	if err != nil {
		return &apperrors.OrchestratorError{Cause: fmt.Errorf("orchestrate: open aggregate file: %w", err)}
	}
	defer func() {
		if err := aggregate.Close(); err != nil {
			o.log.Warn().Err(err).Msg("failed to close aggregate file")
		}
	}()

	var succeeded, completed int64

	// Plain errgroup without WithContext: one instance's failure must
	// never cancel its siblings. evaluateOne never returns a non-nil
	// error for an instance-scoped failure, so Wait() only ever reports
	// on genuinely unexpected failures.
	g := &errgroup.Group{}
	g.SetLimit(o.cfg.Concurrency)

	for _, inst := range instances {
		inst := inst
		g.Go(func() error {
			result := o.evaluateOne(ctx, inst)
			if err := aggregate.Append(result); err != nil {
				return fmt.Errorf("orchestrate: append aggregate entry for %s: %w", inst.InstanceID, err)
			}
			n := atomic.AddInt64(&completed, 1)
			if result.Succeeded() {
				atomic.AddInt64(&succeeded, 1)
			}
			o.log.Info().
				Int64("completed", n).
				Int("total", len(instances)).
				Int64("succeeded", atomic.LoadInt64(&succeeded)).
				Str("instance_id", inst.InstanceID).
				Msg("instance evaluated")
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return &apperrors.OrchestratorError{Cause: err}
	}
	return nil
}

// evaluateOne runs one instance end to end, converting any setup or
// evaluator error into a failed-but-present result rather than propagating
// it: worker-scope errors are caught at the evaluator boundary and
// converted into a per-instance result.
func (o *Orchestrator) evaluateOne(ctx context.Context, inst model.RepoInstance) *model.EvaluationResult {
	langDir := filepath.Join(o.cfg.ResultDir, string(inst.Language))
	ws, err := evaluate.Open(langDir, inst.InstanceID)
	if err != nil {
		return failedResult(inst, err)
	}
	instLogger, err := logger.OpenInstanceLogger(o.log, ws.Dir, inst.InstanceID)
	if err != nil {
		return failedResult(inst, err)
	}
	defer func() {
		if err := instLogger.Close(); err != nil {
			o.log.Warn().Err(err).Str("instance_id", inst.InstanceID).Msg("failed to close instance logger")
		}
	}()

	fail := func(err error) *model.EvaluationResult {
		res := failedResult(inst, err)
		if werr := resultio.WriteResult(ws.ResultPath(), res); werr != nil {
			instLogger.Logger.Warn().Err(werr).Msg("failed to write failed result")
		}
		return res
	}

	root, err := o.roots.ProjectRoot(inst)
	if err != nil {
		instLogger.Logger.Error().Err(err).Msg("failed to resolve project root")
		return fail(err)
	}
	candidate, err := o.patches.CandidatePatch(inst)
	if err != nil {
		instLogger.Logger.Error().Err(err).Msg("failed to resolve candidate patch")
		return fail(err)
	}

	result, err := o.evaluator.Evaluate(ctx, inst, root, candidate, instLogger.Logger)
	if err != nil {
		instLogger.Logger.Error().Err(err).Msg("evaluation failed")
		return fail(err)
	}
	return result
}

func failedResult(inst model.RepoInstance, cause error) *model.EvaluationResult {
	exec := model.ExecFail
	return &model.EvaluationResult{
		InstanceID: inst.InstanceID,
		Exec:       &exec,
		Detail:     &model.Detail{Oracle: map[string][]string{}, Predicted: map[string][]string{}},
	}
}
