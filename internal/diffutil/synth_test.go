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

package diffutil_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/justachillguy/bigbuild/internal/diffutil"
)

func TestSynthesizeModifiedFile(t *testing.T) {
	old := diffutil.Snapshot{"requirements.txt": "requests\n"}
	new := diffutil.Snapshot{"requirements.txt": "requests\nflask\n"}

	diff, err := diffutil.Synthesize(old, new)
	require.NoError(t, err)
	assert.Contains(t, diff, "requirements.txt")
	assert.Contains(t, diff, "+flask")
}

func TestSynthesizeAddedAndRemovedFiles(t *testing.T) {
	old := diffutil.Snapshot{"a.txt": "a\n", "b.txt": "b\n"}
	new := diffutil.Snapshot{"a.txt": "a\n", "c.txt": "c\n"}

	diff, err := diffutil.Synthesize(old, new)
	require.NoError(t, err)
	assert.True(t, strings.Contains(diff, "b.txt"))
	assert.True(t, strings.Contains(diff, "c.txt"))
	assert.False(t, strings.Contains(diff, "a.txt"))
}

func TestSynthesizeNoChangesYieldsEmptyDiff(t *testing.T) {
	snap := diffutil.Snapshot{"a.txt": "a\n"}
	diff, err := diffutil.Synthesize(snap, snap)
	require.NoError(t, err)
	assert.Empty(t, strings.TrimSpace(diff))
}
