//
// Copyright 2024 Stacklok, Inc.
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

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestGetKeysWithNullValueFromYAML(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		yamlInput string
		want      []string
	}{
		{
			name: "Test with null values",
			yamlInput: `
key1: null
key2:
  subkey1: null
  subkey2: value
key3: [null, value]
`,
			want: []string{
				".key1",
				".key2.subkey1",
				".key3[0]",
			},
		},
		{
			name: "Test without null values",
			yamlInput: `
key1: value1
key2:
  subkey1: subvalue1
  subkey2: subvalue2
key3: [value1, value2]
`,
			want: []string{},
		},
	}

	for _, test := range tests {
		test := test

		t.Run(test.name, func(t *testing.T) {
			t.Parallel()
			var data interface{}
			err := yaml.Unmarshal([]byte(test.yamlInput), &data)
			if err != nil {
				t.Fatalf("Error parsing YAML: %v", err)
			}

			got := GetKeysWithNullValueFromYAML(data, "")
			assert.ElementsMatchf(t, got, test.want, "GetKeysWithNullValueFromYAML() = %v, want %v", got, test.want)
		})
	}
}

func TestGetConfigFileData(t *testing.T) {
	t.Parallel()

	t.Run("missing file returns no error", func(t *testing.T) {
		t.Parallel()
		dir := t.TempDir()
		data, err := GetConfigFileData("", filepath.Join(dir, "bigbuild.yaml"))
		require.NoError(t, err)
		require.Nil(t, data)
	})

	t.Run("reads explicit path over default", func(t *testing.T) {
		t.Parallel()
		dir := t.TempDir()
		explicit := filepath.Join(dir, "explicit.yaml")
		require.NoError(t, os.WriteFile(explicit, []byte("orchestrator:\n  concurrency: 8\n"), 0o600))

		data, err := GetConfigFileData(explicit, filepath.Join(dir, "bigbuild.yaml"))
		require.NoError(t, err)
		m, ok := data.(map[string]interface{})
		require.True(t, ok)
		orch, ok := m["orchestrator"].(map[string]interface{})
		require.True(t, ok)
		require.Equal(t, 8, orch["concurrency"])
	})
}
