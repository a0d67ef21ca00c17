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

package evaluate_test

import (
	"context"
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
)

const addFlaskDiff = `--- a/requirements.txt
+++ b/requirements.txt
@@ -1 +1,2 @@
 requests
+flask
`

func newGitProjectFixture(t *testing.T) string {
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

func baseInstance(patch string) model.RepoInstance {
	return model.RepoInstance{
		InstanceID: "instance-1",
		Language:   model.LanguagePython,
		ActCommand: "pip install -r requirements.txt",
		Patch:      patch,
		BuildFiles: []string{"requirements.txt"},
	}
}

func TestEvaluateOracleEmptyPatchAborts(t *testing.T) {
	resultDir := t.TempDir()
	e := evaluate.New(evaluate.Config{ResultDir: resultDir, CacheLevel: model.CacheNone, TextEval: true}, nil)

	project := newGitProjectFixture(t)
	inst := baseInstance("   \n")

	_, err := e.Evaluate(context.Background(), inst, project, "", zerolog.Nop())
	assert.Error(t, err)
}

func TestEvaluateComputesTextMetricsWhenCandidateMissesDependency(t *testing.T) {
	resultDir := t.TempDir()
	e := evaluate.New(evaluate.Config{ResultDir: resultDir, CacheLevel: model.CacheNone, TextEval: true}, nil)

	project := newGitProjectFixture(t)
	inst := baseInstance(addFlaskDiff)

	result, err := e.Evaluate(context.Background(), inst, project, "", zerolog.Nop())
	require.NoError(t, err)
	require.NotNil(t, result)
	require.NotNil(t, result.Text)

	assert.Equal(t, 1, result.Text.Exact.TP)
	assert.Equal(t, 0, result.Text.Exact.FP)
	assert.Equal(t, 1, result.Text.Exact.FN)

	assert.Equal(t, []string{"flask", "requests"}, result.Detail.Oracle["requirements.txt"])
	assert.Equal(t, []string{"requests"}, result.Detail.Predicted["requirements.txt"])
}

func TestEvaluateResumeReturnsCachedResultWithoutProjectRoot(t *testing.T) {
	resultDir := t.TempDir()
	e := evaluate.New(evaluate.Config{ResultDir: resultDir, CacheLevel: model.CacheAll, TextEval: true, Resume: true}, nil)

	project := newGitProjectFixture(t)
	inst := baseInstance(addFlaskDiff)

	first, err := e.Evaluate(context.Background(), inst, project, "", zerolog.Nop())
	require.NoError(t, err)
	require.NotNil(t, first)

	require.NoError(t, os.RemoveAll(project))

	second, err := e.Evaluate(context.Background(), inst, project, "", zerolog.Nop())
	require.NoError(t, err)
	require.NotNil(t, second)
	assert.Equal(t, first.InstanceID, second.InstanceID)
	assert.Equal(t, first.Text.Exact, second.Text.Exact)
}
