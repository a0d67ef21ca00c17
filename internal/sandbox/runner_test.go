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

package sandbox_test

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/justachillguy/bigbuild/internal/sandbox"
)

func TestRunRejectsInvalidImageReferenceBeforeTouchingDocker(t *testing.T) {
	r := sandbox.NewRunner(zerolog.Nop())
	_, err := r.Run(context.Background(), sandbox.Config{Image: "not a valid ref::"})
	assert.Error(t, err)
}

func TestParseTimeoutAcceptsBareSeconds(t *testing.T) {
	secs, err := sandbox.ParseTimeout("300")
	require.NoError(t, err)
	assert.Equal(t, 300, secs)
}

func TestParseTimeoutAcceptsDurationString(t *testing.T) {
	secs, err := sandbox.ParseTimeout("5m")
	require.NoError(t, err)
	assert.Equal(t, 300, secs)
}

func TestParseTimeoutEmptyIsZero(t *testing.T) {
	secs, err := sandbox.ParseTimeout("")
	require.NoError(t, err)
	assert.Equal(t, 0, secs)
}

func TestParseTimeoutRejectsGarbage(t *testing.T) {
	_, err := sandbox.ParseTimeout("not-a-duration")
	assert.Error(t, err)
}
