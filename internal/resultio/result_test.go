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
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/justachillguy/bigbuild/internal/model"
	"github.com/justachillguy/bigbuild/internal/resultio"
)

func TestReadResultMissingFileReturnsNil(t *testing.T) {
	dir := t.TempDir()
	result, err := resultio.ReadResult(filepath.Join(dir, "result.json"))
	require.NoError(t, err)
	assert.Nil(t, result)
}

func TestWriteThenReadResultRoundTrips(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "result.json")

	exec := model.ExecPass
	want := &model.EvaluationResult{
		InstanceID: "instance-1",
		Exec:       &exec,
		Text: &model.TextMetrics{
			Exact:    model.Counts{TP: 1, FP: 0, FN: 0},
			NameOnly: model.Counts{TP: 1, FP: 0, FN: 0},
		},
		Detail: &model.Detail{
			Oracle:    map[string][]string{"requirements.txt": {"requests"}},
			Predicted: map[string][]string{"requirements.txt": {"requests"}},
		},
	}

	require.NoError(t, resultio.WriteResult(path, want))
	got, err := resultio.ReadResult(path)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, want.InstanceID, got.InstanceID)
	assert.True(t, got.Succeeded())
	assert.Equal(t, want.Text.Exact, got.Text.Exact)
}

func TestWriteResultLeavesNoTempFileBehind(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "result.json")
	require.NoError(t, resultio.WriteResult(path, &model.EvaluationResult{InstanceID: "x"}))

	leftover, err := resultio.ReadResult(path + ".tmp")
	require.NoError(t, err)
	assert.Nil(t, leftover)
}
