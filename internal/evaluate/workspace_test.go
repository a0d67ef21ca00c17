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
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/justachillguy/bigbuild/internal/evaluate"
	"github.com/justachillguy/bigbuild/internal/model"
)

func newProjectFixture(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "requirements.txt"), []byte("requests\n"), 0o600))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "pkg"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "pkg", "mod.py"), []byte("x = 1\n"), 0o600))
	if runtime.GOOS != "windows" {
		require.NoError(t, os.Symlink("mod.py", filepath.Join(dir, "pkg", "alias.py")))
	}
	return dir
}

func TestWorkspaceStageOracleAndModel(t *testing.T) {
	root := t.TempDir()
	ws, err := evaluate.Open(root, "instance-1")
	require.NoError(t, err)

	project := newProjectFixture(t)
	require.NoError(t, ws.StageOracle(project))
	require.NoError(t, ws.StageModel(project))

	for _, dir := range []string{ws.OracleDir, ws.ModelDir} {
		data, err := os.ReadFile(filepath.Join(dir, "requirements.txt"))
		require.NoError(t, err)
		assert.Equal(t, "requests\n", string(data))

		if runtime.GOOS != "windows" {
			target, err := os.Readlink(filepath.Join(dir, "pkg", "alias.py"))
			require.NoError(t, err)
			assert.Equal(t, "mod.py", target)
		}
	}
}

func TestWorkspaceReleaseCacheLog(t *testing.T) {
	root := t.TempDir()
	ws, err := evaluate.Open(root, "instance-2")
	require.NoError(t, err)
	project := newProjectFixture(t)
	require.NoError(t, ws.StageOracle(project))
	require.NoError(t, ws.StageModel(project))

	require.NoError(t, ws.Release(model.CacheLog))

	_, err = os.Stat(ws.OracleDir)
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(ws.ModelDir)
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(ws.Dir)
	assert.NoError(t, err)
}

func TestWorkspaceReleaseCacheNone(t *testing.T) {
	root := t.TempDir()
	ws, err := evaluate.Open(root, "instance-3")
	require.NoError(t, err)

	require.NoError(t, ws.Release(model.CacheNone))
	_, err = os.Stat(ws.Dir)
	assert.True(t, os.IsNotExist(err))
}

func TestWorkspaceReleaseCacheAllKeepsEverything(t *testing.T) {
	root := t.TempDir()
	ws, err := evaluate.Open(root, "instance-4")
	require.NoError(t, err)
	project := newProjectFixture(t)
	require.NoError(t, ws.StageOracle(project))

	require.NoError(t, ws.Release(model.CacheAll))
	_, err = os.Stat(ws.OracleDir)
	assert.NoError(t, err)
}
