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

package orchestrate_test

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/justachillguy/bigbuild/internal/evaluate"
	"github.com/justachillguy/bigbuild/internal/model"
	"github.com/justachillguy/bigbuild/internal/orchestrate"
)

const orchAddFlaskDiff = `--- a/requirements.txt
+++ b/requirements.txt
@@ -1 +1,2 @@
 requests
+flask
`

func newOrchProjectFixture(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "requirements.txt"), []byte("requests\n"), 0o600))

	repo, err := git.PlainInit(dir, false)
	require.NoError(t, err)
	wt, err := repo.Worktree()
	require.NoError(t, err)
	_, err = wt.Add(".")
	require.NoError(t, err)
	_, err = wt.Commit("initial", &git.CommitOptions{
		Author: &object.Signature{Name: "fixture", Email: "fixture@local"},
	})
	require.NoError(t, err)
	return dir
}

type mapRootSource map[string]string

func (m mapRootSource) ProjectRoot(inst model.RepoInstance) (string, error) {
	root, ok := m[inst.InstanceID]
	if !ok {
		return "", fmt.Errorf("no project root for %s", inst.InstanceID)
	}
	return root, nil
}

type mapPatchSource map[string]string

func (m mapPatchSource) CandidatePatch(inst model.RepoInstance) (string, error) {
	return m[inst.InstanceID], nil
}

func TestOrchestratorRunWritesResultsForEveryInstance(t *testing.T) {
	resultDir := t.TempDir()
	evaluator := evaluate.New(evaluate.Config{ResultDir: resultDir, CacheLevel: model.CacheLog, TextEval: true}, nil)

	goodProject := newOrchProjectFixture(t)
	instances := []model.RepoInstance{
		{
			InstanceID: "good-1",
			Language:   model.LanguagePython,
			ActCommand: "pip install -r requirements.txt",
			Patch:      orchAddFlaskDiff,
			BuildFiles: []string{"requirements.txt"},
		},
		{
			InstanceID: "broken-1",
			Language:   model.LanguagePython,
			ActCommand: "pip install -r requirements.txt",
			Patch:      "   ",
			BuildFiles: []string{"requirements.txt"},
		},
	}

	roots := mapRootSource{"good-1": goodProject, "broken-1": goodProject}
	patches := mapPatchSource{}

	orch := orchestrate.New(orchestrate.Config{ResultDir: resultDir, Concurrency: 2, CacheLevel: model.CacheLog}, evaluator, patches, roots, zerolog.Nop())

	err := orch.Run(context.Background(), instances)
	require.NoError(t, err)

	for _, id := range []string{"good-1", "broken-1"} {
		_, statErr := os.Stat(filepath.Join(resultDir, "python", id, "result.json"))
		assert.NoError(t, statErr)
	}

	f, err := os.Open(filepath.Join(resultDir, "results.jsonl"))
	require.NoError(t, err)
	defer f.Close()

	lines := 0
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		lines++
	}
	assert.Equal(t, 2, lines)
}

func TestOrchestratorRunFailsUnresolvableProjectRootGracefully(t *testing.T) {
	resultDir := t.TempDir()
	evaluator := evaluate.New(evaluate.Config{ResultDir: resultDir, CacheLevel: model.CacheLog, TextEval: true}, nil)

	instances := []model.RepoInstance{
		{
			InstanceID: "missing-1",
			Language:   model.LanguagePython,
			ActCommand: "pip install -r requirements.txt",
			Patch:      orchAddFlaskDiff,
			BuildFiles: []string{"requirements.txt"},
		},
	}

	orch := orchestrate.New(orchestrate.Config{ResultDir: resultDir, CacheLevel: model.CacheLog}, evaluator, mapPatchSource{}, mapRootSource{}, zerolog.Nop())

	err := orch.Run(context.Background(), instances)
	require.NoError(t, err)

	result, err := os.ReadFile(filepath.Join(resultDir, "results.jsonl"))
	require.NoError(t, err)
	assert.Contains(t, string(result), "missing-1")
}
