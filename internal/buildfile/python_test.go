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

const requirementsTxt = `# top-level deps
requests>=2,<3
numpy==1.26.0

flask
`

func TestPythonRequirementsParseDependencies(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "requirements.txt"), []byte(requirementsTxt), 0o600))

	bf, err := buildfile.New(model.LanguagePython, dir, []string{"requirements.txt"}, nil)
	require.NoError(t, err)

	deps, err := bf.ParseDependencies()
	require.NoError(t, err)
	require.Len(t, deps["requirements.txt"], 3)

	names := make([]string, 0, 3)
	for _, d := range deps["requirements.txt"] {
		names = append(names, d.Name())
	}
	assert.ElementsMatch(t, []string{"requests", "numpy", "flask"}, names)
}

func TestPythonRequirementsDumpDependenciesSortsByName(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "requirements.txt"), []byte(requirementsTxt), 0o600))

	bf, err := buildfile.New(model.LanguagePython, dir, []string{"requirements.txt"}, nil)
	require.NoError(t, err)

	deps := map[string][]model.Dependency{
		"requirements.txt": {
			buildfile.PythonDependency{DepName: "zeta", Raw: "zeta==1.0"},
			buildfile.PythonDependency{DepName: "alpha", Raw: "alpha==1.0"},
		},
	}
	dumped, err := bf.DumpDependencies(deps)
	require.NoError(t, err)
	assert.Less(t,
		indexOf(dumped["requirements.txt"], "alpha"),
		indexOf(dumped["requirements.txt"], "zeta"),
	)
}

func indexOf(s, substr string) int {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return i
		}
	}
	return -1
}

const setupPyDirectList = `from setuptools import setup

setup(
    name="widget",
    install_requires=["requests>=2", "flask"],
)
`

const setupPyVariableReference = `from setuptools import setup

dependencies = [
    "requests>=2",
    "flask",
    "numpy==1.26.0",
]

setup(
    name="widget",
    install_requires=dependencies,
)
`

func TestPythonSetupPyParsesDirectInstallRequiresList(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "setup.py"), []byte(setupPyDirectList), 0o600))

	bf, err := buildfile.New(model.LanguagePython, dir, []string{"setup.py"}, nil)
	require.NoError(t, err)

	deps, err := bf.ParseDependencies()
	require.NoError(t, err)

	names := make([]string, 0, len(deps["setup.py"]))
	for _, d := range deps["setup.py"] {
		names = append(names, d.Name())
	}
	assert.ElementsMatch(t, []string{"requests", "flask"}, names)
}

func TestPythonSetupPyResolvesInstallRequiresVariableReference(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "setup.py"), []byte(setupPyVariableReference), 0o600))

	bf, err := buildfile.New(model.LanguagePython, dir, []string{"setup.py"}, nil)
	require.NoError(t, err)

	deps, err := bf.ParseDependencies()
	require.NoError(t, err)

	names := make([]string, 0, len(deps["setup.py"]))
	for _, d := range deps["setup.py"] {
		names = append(names, d.Name())
	}
	assert.ElementsMatch(t, []string{"requests", "flask", "numpy"}, names)
}

func TestPythonDependencyKey(t *testing.T) {
	a := buildfile.PythonDependency{DepName: "Requests", Raw: "requests >=2,<3"}
	b := buildfile.PythonDependency{DepName: "requests", Raw: "requests>=2,<3"}
	assert.Equal(t, a.Key(), b.Key())
}
