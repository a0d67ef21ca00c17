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

package patch_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/justachillguy/bigbuild/internal/patch"
)

const sampleDiff = `--- a/foo.txt
+++ b/foo.txt
@@ -1 +1 @@
-hello
+hello world
`

func TestApplyEmptyDiffIsNoop(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "foo.txt"), []byte("hello\n"), 0o600))

	err := patch.Apply(context.Background(), dir, "   \n")
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(dir, "foo.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hello\n", string(data))
}

func TestApplyAppliesUnifiedDiff(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "foo.txt"), []byte("hello\n"), 0o600))

	err := patch.Apply(context.Background(), dir, sampleDiff)
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(dir, "foo.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hello world\n", string(data))
}

func TestApplyMalformedDiffReturnsPatchError(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "foo.txt"), []byte("hello\n"), 0o600))

	err := patch.Apply(context.Background(), dir, "not a diff at all\n")
	assert.Error(t, err)
}
