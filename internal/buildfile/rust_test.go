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

package buildfile_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/justachillguy/bigbuild/internal/buildfile"
	"github.com/justachillguy/bigbuild/internal/model"
)

const cargoToml = `[package]
name = "demo"
version = "0.1.0"

[dependencies]
serde = { version = "1.0", features = ["derive"] }
log = "0.4"
`

func TestRustBuildFileParseDependencies(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "Cargo.toml"), []byte(cargoToml), 0o600))

	bf := buildfile.NewRustBuildFile(dir, []string{"Cargo.toml"}, nil)
	deps, err := bf.ParseDependencies()
	require.NoError(t, err)
	require.Len(t, deps["Cargo.toml"], 2)

	byName := map[string]buildfile.RustDependency{}
	for _, d := range deps["Cargo.toml"] {
		rd := d.(buildfile.RustDependency)
		byName[rd.DepName] = rd
	}
	assert.Equal(t, "1.0", byName["serde"].Version)
	assert.Equal(t, []string{"derive"}, byName["serde"].Features)
	assert.Equal(t, "0.4", byName["log"].Version)
}

func TestRustBuildFileDumpDependenciesRoundTrips(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "Cargo.toml"), []byte(cargoToml), 0o600))

	bf := buildfile.NewRustBuildFile(dir, []string{"Cargo.toml"}, nil)
	deps, err := bf.ParseDependencies()
	require.NoError(t, err)

	deps["Cargo.toml"] = append(deps["Cargo.toml"], buildfile.RustDependency{DepName: "anyhow", Version: "1.0"})
	dumped, err := bf.DumpDependencies(deps)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "Cargo.toml"), []byte(dumped["Cargo.toml"]), 0o600))
	reparsed, err := bf.ParseDependencies()
	require.NoError(t, err)
	assert.Len(t, reparsed["Cargo.toml"], 3)
}

func TestRustBuildFileMissingBuildFileIsParseError(t *testing.T) {
	dir := t.TempDir()
	bf := buildfile.NewRustBuildFile(dir, []string{"Cargo.toml"}, nil)
	_, err := bf.ParseDependencies()
	assert.Error(t, err)
}

func TestRustCanonicalName(t *testing.T) {
	assert.Equal(t, "serde_json", model.CanonicalName("serde-json"))
}

func TestRustBuildFileExample(t *testing.T) {
	bf := buildfile.NewRustBuildFile("", nil, nil)
	ex := bf.Example()
	assert.Equal(t, "Cargo.toml", ex.File)
	assert.Contains(t, ex.Content, "[dependencies]")
}
