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

package resultio_test

import (
	"bufio"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/justachillguy/bigbuild/internal/model"
	"github.com/justachillguy/bigbuild/internal/resultio"
)

func TestAggregateAppendWritesOneLinePerResult(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "results.jsonl")

	agg, err := resultio.OpenAggregate(path)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			err := agg.Append(&model.EvaluationResult{InstanceID: "instance"})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()
	require.NoError(t, agg.Close())

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	lines := 0
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		lines++
	}
	assert.Equal(t, 10, lines)
}

func TestBackupPathNoopWhenMissing(t *testing.T) {
	dir := t.TempDir()
	got, err := resultio.BackupPath(filepath.Join(dir, "missing"))
	require.NoError(t, err)
	assert.Equal(t, "", got)
}

func TestBackupPathChainsSuffixes(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "results")
	require.NoError(t, os.Mkdir(path, 0o755))

	first, err := resultio.BackupPath(path)
	require.NoError(t, err)
	assert.Equal(t, path+"-bak", first)

	require.NoError(t, os.Mkdir(path, 0o755))
	second, err := resultio.BackupPath(path)
	require.NoError(t, err)
	assert.Equal(t, path+"-bak-bak", second)
}
